package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passing(context.Context) error { return nil }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

// observeN runs every registered check n times.
func observeN(h *Health, n int) {
	for range n {
		for _, c := range h.checks {
			c.observe(context.Background())
		}
	}
}

func get(endpoint http.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	endpoint(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func TestLiveEndpoint(t *testing.T) {
	t.Run("NoChecks", func(t *testing.T) {
		h := New()
		w := get(h.LiveEndpoint)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})
	t.Run("Failing", func(t *testing.T) {
		h := New()
		h.AddLivenessCheck("goroutines", time.Second, failing("too many"))
		h.AddLivenessCheck("gc_pause", time.Second, passing)
		observeN(h, defaultFailureThreshold)

		w := get(h.LiveEndpoint)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.JSONEq(t, `{"status":"unhealthy","checks":{"goroutines":"too many"}}`, w.Body.String())
	})
	t.Run("BelowThreshold", func(t *testing.T) {
		h := New()
		h.AddLivenessCheck("flaky", time.Second, failing("temporary"))
		observeN(h, defaultFailureThreshold-1)
		assert.Equal(t, http.StatusOK, get(h.LiveEndpoint).Code)
	})
	t.Run("IgnoresReadiness", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("postgres", time.Second, failing("pg down"))
		observeN(h, defaultFailureThreshold)
		assert.Equal(t, http.StatusOK, get(h.LiveEndpoint).Code)
	})
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.AddReadinessCheck("redis", time.Second, failing("redis down"))
	h.AddReadinessCheck("postgres", time.Second, failing("pg down"))

	w := get(h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"_readiness":"service is not ready"}}`, w.Body.String())

	h.SetReady(true)
	assert.Equal(t, http.StatusOK, get(h.ReadyEndpoint).Code)

	observeN(h, defaultFailureThreshold)
	w = get(h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"postgres":"pg down","redis":"redis down"}}`, w.Body.String())
}

func TestIsReady(t *testing.T) {
	var down atomic.Bool
	h := New()
	h.AddReadinessCheck("postgres", time.Second, func(context.Context) error {
		if down.Load() {
			return errors.New("down")
		}
		return nil
	}, FailureThreshold(1))

	assert.False(t, h.IsReady())
	h.SetReady(true)
	assert.True(t, h.IsReady())

	down.Store(true)
	observeN(h, 1)
	assert.False(t, h.IsReady())

	down.Store(false)
	observeN(h, 1)
	assert.True(t, h.IsReady())

	h.SetReady(false)
	assert.False(t, h.IsReady())
}

func TestThresholds(t *testing.T) {
	var fail atomic.Bool
	h := New()
	h.AddLivenessCheck("flaky", time.Second, func(context.Context) error {
		if fail.Load() {
			return errors.New("down")
		}
		return nil
	}, FailureThreshold(2), SuccessThreshold(2))
	c := h.checks[0]

	fail.Store(true)
	observeN(h, 1)
	assert.Empty(t, c.status())
	observeN(h, 1)
	assert.Equal(t, "down", c.status())

	fail.Store(false)
	observeN(h, 1)
	assert.Equal(t, "down", c.status(), "one success is not enough to recover")

	// A failure resets the success streak.
	fail.Store(true)
	observeN(h, 1)
	fail.Store(false)
	observeN(h, 1)
	assert.NotEmpty(t, c.status())
	observeN(h, 1)
	assert.Empty(t, c.status())
}

func TestCheckTimeout(t *testing.T) {
	h := New()
	h.AddReadinessCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, FailureThreshold(1))
	observeN(h, 1)
	assert.Equal(t, context.DeadlineExceeded.Error(), h.checks[0].status())
}

func TestStartStop(t *testing.T) {
	var runs atomic.Int32
	h := New()
	h.AddLivenessCheck("counter", time.Second, func(context.Context) error {
		runs.Add(1)
		return nil
	})

	h.Start(context.Background(), 5*time.Millisecond)
	h.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, time.Millisecond)

	h.Stop()
	h.Stop()
	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no runs after Stop")
}

func TestConcurrentAccess(t *testing.T) {
	h := New()
	h.AddLivenessCheck("liveness", time.Second, failing("err"))
	h.AddReadinessCheck("readiness", time.Second, passing)
	h.SetReady(true)
	h.Start(context.Background(), time.Millisecond)
	defer h.Stop()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				h.IsReady()
				get(h.LiveEndpoint)
				get(h.ReadyEndpoint)
			}
		}()
	}
	wg.Wait()
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))

	err := GoroutineCountCheck(0)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds threshold")
}

func TestGCMaxPauseCheck(t *testing.T) {
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(context.Background()))
	assert.Equal(t, 3*time.Millisecond, maxPause([]time.Duration{time.Millisecond, 3 * time.Millisecond, 2 * time.Millisecond}))
	assert.Zero(t, maxPause(nil))
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestPingCheck(t *testing.T) {
	assert.NoError(t, PingCheck(pingerFunc(passing))(context.Background()))

	err := PingCheck(pingerFunc(failing("connection refused")))(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRedisCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	check := RedisCheck(client)
	assert.NoError(t, check(context.Background()))

	mr.Close()
	assert.Error(t, check(context.Background()))
}
