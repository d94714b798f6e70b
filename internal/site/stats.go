package site

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Suhaibinator/SDispatch/pkg/codec"
	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/store"
)

// Stats is the in-memory data source behind /api/stats.
type Stats struct {
	started  time.Time
	requests atomic.Int64
	routes   int
}

// NewStats creates a Stats started now.
func NewStats() *Stats {
	return &Stats{started: time.Now()}
}

// OpenStats returns a store.Opener that hands out s.
func OpenStats(s *Stats) store.Opener[*Stats] {
	return func(context.Context) (*Stats, error) {
		return s, nil
	}
}

// Counter is a hook counting every dispatched request.
func (s *Stats) Counter() common.Middleware {
	return common.Hook(func(*common.Context) {
		s.requests.Add(1)
	})
}

// SetRoutes records the number of registered routes.
func (s *Stats) SetRoutes(n int) {
	s.routes = n
}

// Snapshot returns the current figures as {label, value} entries.
func (s *Stats) Snapshot(now time.Time) []any {
	return []any{
		codec.NewMap("label", "Requests served", "value", s.requests.Load()),
		codec.NewMap("label", "Routes registered", "value", s.routes),
		codec.NewMap("label", "Features", "value", len(Features)),
		codec.NewMap("label", "Uptime seconds", "value", int64(now.Sub(s.started).Seconds())),
	}
}
