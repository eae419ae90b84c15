package health

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// State is the process-wide health flag served by the health endpoint.
// All methods are safe for concurrent use.
type State struct {
	healthy atomic.Bool
	logger  *zap.Logger
}

// New creates a State holding initial.
func New(initial bool, logger *zap.Logger) *State {
	s := &State{logger: logger.Named("health")}
	s.healthy.Store(initial)
	return s
}

// Healthy returns the current value of the flag.
func (s *State) Healthy() bool {
	return s.healthy.Load()
}

// Set overwrites the flag. Used when applying configuration before serving.
func (s *State) Set(healthy bool) {
	s.healthy.Store(healthy)
}

// Toggle flips the flag and returns the value it stored.
func (s *State) Toggle() bool {
	for {
		prev := s.healthy.Load()
		if s.healthy.CompareAndSwap(prev, !prev) {
			s.logger.Sugar().Infow("healthcheck status toggled", "healthy", !prev)
			return !prev
		}
	}
}

func (s *State) String() string {
	if s.Healthy() {
		return "OK"
	}
	return "KO"
}
