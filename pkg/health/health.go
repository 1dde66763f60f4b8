// Package health serves liveness and readiness probes.
//
// Registered checks run periodically in the background; probe endpoints only
// read the latest results. A check flips to unhealthy after a run of
// consecutive failures and back after a run of consecutive successes, so a
// single slow ping does not take the service out of rotation.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc reports a component's health: nil when healthy.
type CheckFunc func(ctx context.Context) error

// Probe selects which endpoint a check affects.
type Probe uint8

const (
	Liveness Probe = iota
	Readiness
)

func (p Probe) String() string {
	if p == Readiness {
		return "readiness"
	}
	return "liveness"
}

const (
	defaultFailureThreshold = 3
	defaultSuccessThreshold = 1
)

// Option tunes a single check.
type Option func(*check)

// FailureThreshold sets how many consecutive failures mark a check unhealthy.
func FailureThreshold(n int) Option {
	return func(c *check) { c.failAfter = max(n, 1) }
}

// SuccessThreshold sets how many consecutive successes mark a check healthy
// again.
func SuccessThreshold(n int) Option {
	return func(c *check) { c.recoverAfter = max(n, 1) }
}

type check struct {
	name         string
	probe        Probe
	timeout      time.Duration
	fn           CheckFunc
	failAfter    int
	recoverAfter int

	mu      sync.Mutex
	healthy bool
	lastErr error // most recent failure
	streak  int   // >0 consecutive successes, <0 consecutive failures
}

// observe runs the check once and folds the result into its state.
func (c *check) observe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	err := c.fn(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.lastErr = err
		c.streak = min(c.streak, 0) - 1
		if -c.streak >= c.failAfter {
			c.healthy = false
		}
		return
	}
	c.streak = max(c.streak, 0) + 1
	if c.streak >= c.recoverAfter {
		c.healthy = true
	}
}

// status returns "" when healthy, otherwise the failure reason.
func (c *check) status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.healthy:
		return ""
	case c.lastErr != nil:
		return c.lastErr.Error()
	default:
		return "check is unhealthy"
	}
}

func (c *check) loop(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		c.observe(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Health owns the registered checks and the manual readiness gate.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	checks []*check
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Health that reports not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// Add registers a check for probe. Checks start healthy.
func (h *Health) Add(probe Probe, name string, timeout time.Duration, fn CheckFunc, opts ...Option) {
	c := &check{
		name:         name,
		probe:        probe,
		timeout:      timeout,
		fn:           fn,
		failAfter:    defaultFailureThreshold,
		recoverAfter: defaultSuccessThreshold,
		healthy:      true,
	}
	for _, o := range opts {
		o(c)
	}

	h.mu.Lock()
	h.checks = append(h.checks, c)
	h.mu.Unlock()
}

// AddLivenessCheck registers a check that fails /livez.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...Option) {
	h.Add(Liveness, name, timeout, fn, opts...)
}

// AddReadinessCheck registers a check that fails /readyz.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...Option) {
	h.Add(Readiness, name, timeout, fn, opts...)
}

// Start runs every registered check now and then every interval until Stop
// or ctx cancellation. Checks added after Start are not scheduled.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return
	}
	ctx, h.cancel = context.WithCancel(ctx)
	for _, c := range h.checks {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			c.loop(ctx, interval)
		}()
	}
}

// Stop cancels the background checks and waits for them to exit. It may be
// called more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		h.wg.Wait()
	}
}

// SetReady opens or closes the readiness gate. The server opens it once
// dependencies are wired and closes it before draining.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the gate is open and every readiness check passes.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

func (h *Health) failures(probe Probe) map[string]string {
	h.mu.RLock()
	checks := slices.Clone(h.checks)
	h.mu.RUnlock()

	out := make(map[string]string)
	for _, c := range checks {
		if c.probe != probe {
			continue
		}
		if reason := c.status(); reason != "" {
			out[c.name] = reason
		}
	}
	return out
}

// LiveEndpoint serves /livez: 200 {"status":"ok"} or 503 with the failing
// checks.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeProbe(w, h.failures(Liveness))
}

// ReadyEndpoint serves /readyz. A closed readiness gate is reported as the
// "_readiness" check.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(Readiness)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeProbe(w, failures)
}

func writeProbe(w http.ResponseWriter, failures map[string]string) {
	status := http.StatusOK
	var e jx.Encoder
	e.ObjStart()
	if len(failures) == 0 {
		e.FieldStart("status")
		e.Str("ok")
	} else {
		status = http.StatusServiceUnavailable
		e.FieldStart("status")
		e.Str("unhealthy")
		e.FieldStart("checks")
		e.ObjStart()
		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			e.FieldStart(name)
			e.Str(failures[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
