// Package supervisor runs named background goroutines with panic recovery
// and optional restart-with-backoff semantics.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"airabot/pkg/logx"
)

// RestartPolicy controls GoRestart behavior.
type RestartPolicy struct {
	// MinBackoff is the initial delay between restarts.
	MinBackoff time.Duration
	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration
	// ResetAfter resets the backoff if the task ran at least this long.
	ResetAfter time.Duration
}

func (p RestartPolicy) withDefaults() RestartPolicy {
	if p.MinBackoff <= 0 {
		p.MinBackoff = time.Second
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = time.Minute
	}
	if p.ResetAfter <= 0 {
		p.ResetAfter = 5 * time.Minute
	}
	return p
}

// Supervisor tracks a group of goroutines sharing one lifecycle context.
type Supervisor struct {
	log    logx.Logger
	ctx    context.Context
	cancel context.CancelFunc

	wg sync.WaitGroup

	mu   sync.Mutex
	errs []error
}

func New(parent context.Context, log logx.Logger) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{log: log.With(logx.String("comp", "supervisor")), ctx: ctx, cancel: cancel}
}

// Context returns the supervisor's lifecycle context.
func (s *Supervisor) Context() context.Context { return s.ctx }

// Go runs fn once. A panic is recovered and recorded as an error;
// a non-nil error return is recorded and logged.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.run(name, fn); err != nil && !errors.Is(err, context.Canceled) {
			s.record(name, err)
		}
	}()
}

// Go0 runs a task that reports no error.
func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// GoRestart runs fn and restarts it with jittered exponential backoff
// whenever it returns or panics, until the supervisor is cancelled.
func (s *Supervisor) GoRestart(name string, policy RestartPolicy, fn func(ctx context.Context) error) {
	policy = policy.withDefaults()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		backoff := policy.MinBackoff
		for {
			started := time.Now()
			err := s.run(name, fn)
			if s.ctx.Err() != nil {
				return
			}
			if time.Since(started) >= policy.ResetAfter {
				backoff = policy.MinBackoff
			}
			delay := jitter(backoff)
			s.log.Warn("task restarting",
				logx.String("task", name),
				logx.Duration("after", delay),
				logx.Err(err))
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(delay):
			}
			backoff *= 2
			if backoff > policy.MaxBackoff {
				backoff = policy.MaxBackoff
			}
		}
	}()
}

func (s *Supervisor) run(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", name, r)
			s.log.Error("task panic",
				logx.String("task", name),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()
	return fn(s.ctx)
}

func (s *Supervisor) record(name string, err error) {
	s.mu.Lock()
	s.errs = append(s.errs, fmt.Errorf("%s: %w", name, err))
	s.mu.Unlock()
	s.log.Error("task failed", logx.String("task", name), logx.Err(err))
}

// Cancel signals all tasks to stop.
func (s *Supervisor) Cancel() { s.cancel() }

// Wait blocks until all tasks have returned, or ctx expires.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the accumulated task errors, if any.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.errs...)
}

// jitter returns d +/- 20%.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	f := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(d) * f)
}
