// Package actor implements the supervisor that runs each long-lived actor
// as an independent task, restarting it on failure. Grounded on
// original_source/apps/bms-iot-app/src/main.py::supervise_actor.
package actor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openbms-io/bms-edge-agent/internal/common/logger"
	"github.com/openbms-io/bms-edge-agent/internal/telemetry"
)

// RestartDelay is the fixed pause between a failed run and the next
// restart attempt.
const RestartDelay = 5 * time.Second

// MaxConsecutiveFailures terminates the process once reached. The counter
// does not reset on a mere "no panic" run — only a run that reports at
// least one successfully handled message clears it. This mirrors a quirk
// in the source (spec.md §9) deliberately, not a design choice of ours.
const MaxConsecutiveFailures = 3

// Handle is passed to every actor's Run function so it can report
// liveness. Calling Heartbeat at least once during a run resets the
// supervisor's failure counter when that run later exits, successfully or
// not.
type Handle struct {
	mu      sync.Mutex
	touched bool
}

// Heartbeat marks this run as having made at least one successful
// message-handling cycle.
func (h *Handle) Heartbeat() {
	h.mu.Lock()
	h.touched = true
	h.mu.Unlock()
}

func (h *Handle) hadSuccess() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.touched
}

// Actor is a long-lived task run under supervision.
type Actor struct {
	Name string
	Run  func(ctx context.Context, handle *Handle) error
}

// Supervisor runs a fixed set of actors, restarting each independently.
type Supervisor struct {
	actors  []Actor
	metrics *telemetry.Metrics
}

// New builds a supervisor for the given actors.
func New(metrics *telemetry.Metrics, actors ...Actor) *Supervisor {
	return &Supervisor{actors: actors, metrics: metrics}
}

// Run starts every actor and blocks until ctx is cancelled or one actor
// exhausts MaxConsecutiveFailures, in which case Run returns that actor's
// last error so the caller can exit non-zero.
func (s *Supervisor) Run(ctx context.Context) error {
	errCh := make(chan error, len(s.actors))
	var wg sync.WaitGroup

	for _, a := range s.actors {
		wg.Add(1)
		go func(a Actor) {
			defer wg.Done()
			if err := s.superviseOne(ctx, a); err != nil {
				errCh <- fmt.Errorf("actor %s: %w", a.Name, err)
			}
		}(a)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case err := <-errCh:
		return err
	case <-done:
		return nil
	case <-ctx.Done():
		wg.Wait()
		return nil
	}
}

func (s *Supervisor) superviseOne(ctx context.Context, a Actor) error {
	consecutiveFailures := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		handle := &Handle{}
		err := a.Run(ctx, handle)

		if ctx.Err() != nil {
			return nil
		}

		if err == nil {
			consecutiveFailures = 0
			continue
		}

		logger.Error("actor %s failed: %v", a.Name, err)

		if handle.hadSuccess() {
			consecutiveFailures = 0
		} else {
			consecutiveFailures++
		}

		if s.metrics != nil {
			s.metrics.RecordActorRestart(a.Name)
		}

		if consecutiveFailures >= MaxConsecutiveFailures {
			return fmt.Errorf("%d consecutive failures without success: %w", consecutiveFailures, err)
		}

		select {
		case <-time.After(RestartDelay):
		case <-ctx.Done():
			return nil
		}
	}
}
