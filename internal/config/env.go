// Package config reads the server's process configuration from the environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap/zapcore"
)

// Supported values of OTEL_EXPORTER.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// Env holds the server configuration.
type Env struct {
	Port         int           `env:"PORT" envDefault:"8080"`
	ServiceName  string        `env:"SERVICE_NAME" envDefault:"sdispatch"`
	Version      string        `env:"VERSION" envDefault:"1.0.0"`
	LogLevel     zapcore.Level `env:"LOG_LEVEL" envDefault:"info"`
	ConsoleColor bool          `env:"CONSOLE_COLOR" envDefault:"true"`
	// APIKeys guard the /admin routes. Empty means every admin request is rejected.
	APIKeys      []string      `env:"API_KEYS" envSeparator:","`
	RateLimit    int           `env:"RATE_LIMIT" envDefault:"100"`
	RateWindow   time.Duration `env:"RATE_WINDOW" envDefault:"1m"`
	MaxBodyBytes int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	OtelExporter string        `env:"OTEL_EXPORTER" envDefault:"none"`
	MetricsPath  string        `env:"METRICS_PATH" envDefault:"/metrics"`
	TrustProxy   bool          `env:"TRUST_PROXY"`
}

// ParseEnv parses the process environment into an Env.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return e, errors.Wrap(err, "failed to parse environment")
	}
	if err := e.validate(); err != nil {
		return e, err
	}
	return e, nil
}

func (e Env) validate() error {
	switch e.OtelExporter {
	case ExporterNone, ExporterStdout:
	default:
		return errors.Newf("unsupported OTEL_EXPORTER: %q (supported: none, stdout)", e.OtelExporter)
	}
	if e.RateLimit < 0 {
		return errors.Newf("RATE_LIMIT must not be negative, got %d", e.RateLimit)
	}
	if e.RateLimit > 0 && e.RateWindow <= 0 {
		return errors.Newf("RATE_WINDOW must be positive, got %s", e.RateWindow)
	}
	return nil
}
