// Command server runs the SDispatch demo server.
package main

import "github.com/Suhaibinator/SDispatch/internal/app"

func main() {
	app.New().Run()
}
