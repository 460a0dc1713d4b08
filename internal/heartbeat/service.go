// Package heartbeat runs a configured prompt through the agent on a fixed
// interval, so the assistant can surface pending work without being asked.
package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RunFunc submits the heartbeat prompt to the agent.
type RunFunc func(ctx context.Context, prompt string) error

// Service ticks in the background and reports its liveness to the status
// provider.
type Service struct {
	prompt   string
	interval time.Duration
	run      RunFunc

	mu       sync.Mutex
	live     bool
	beats    int
	lastBeat time.Time
	lastErr  error
}

// NewService creates a heartbeat ticking every interval.
// interval defaults to 30 minutes if zero.
func NewService(prompt string, interval time.Duration, run RunFunc) *Service {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Service{
		prompt:   prompt,
		interval: interval,
		run:      run,
	}
}

// Start runs the heartbeat loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.mu.Lock()
	s.live = true
	s.mu.Unlock()
	slog.Info("heartbeat: started", "interval", s.interval)

	defer func() {
		s.mu.Lock()
		s.live = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ticker.C:
			s.beat(ctx)
		case <-ctx.Done():
			slog.Info("heartbeat: stopped")
			return ctx.Err()
		}
	}
}

func (s *Service) beat(ctx context.Context) {
	if s.prompt == "" || s.run == nil {
		return
	}

	err := s.run(ctx, s.prompt)

	s.mu.Lock()
	s.beats++
	s.lastBeat = time.Now()
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		slog.Error("heartbeat: run failed", "error", err)
		return
	}
	slog.Debug("heartbeat: beat complete")
}

// Live reports whether the loop is currently running.
func (s *Service) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Beats returns how many times the prompt has run.
func (s *Service) Beats() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beats
}

// LastBeat returns the time and error of the most recent run; the zero time
// means the prompt has not run yet.
func (s *Service) LastBeat() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBeat, s.lastErr
}
