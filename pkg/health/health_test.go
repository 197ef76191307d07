package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type probeBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func probe(t *testing.T, handler http.HandlerFunc) (int, probeBody) {
	t.Helper()
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body probeBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w.Code, body
}

// --- Mock implementations ---

type fakePinger struct {
	mu  sync.Mutex
	err error
}

func (p *fakePinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakePinger) set(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func runN(c *check, n int) {
	for range n {
		c.run(context.Background())
	}
}

func TestLiveEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		runs       int
		wantStatus int
		wantBody   string
	}{
		{name: "no runs yet", runs: 0, wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "below threshold", runs: 2, wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "at threshold", runs: 3, wantStatus: http.StatusServiceUnavailable, wantBody: "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			h.AddLivenessCheck("postgres", time.Second, PingCheck(&fakePinger{err: errors.New("connection refused")}))
			runN(h.live[0], tt.runs)

			code, body := probe(t, h.LiveEndpoint)
			assert.Equal(t, tt.wantStatus, code)
			assert.Equal(t, tt.wantBody, body.Status)
			if code != http.StatusOK {
				assert.Equal(t, "ping: connection refused", body.Checks["postgres"])
			}
		})
	}
}

func TestReadyEndpoint(t *testing.T) {
	db := &fakePinger{}
	cache := &fakePinger{err: errors.New("redis down")}

	h := New()
	h.AddReadinessCheck("postgres", time.Second, PingCheck(db))
	h.AddReadinessCheck("redis", time.Second, PingCheck(cache), WithFailureThreshold(1))

	code, body := probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks, "_readiness")

	h.SetReady(true)
	code, _ = probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)

	runN(h.readyC[1], 1)
	code, body = probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks, "redis")
	assert.NotContains(t, body.Checks, "postgres")
	assert.False(t, h.IsReady())

	h.SetReady(false)
	assert.False(t, h.IsReady())
}

func TestCheckRecoversAfterSuccessThreshold(t *testing.T) {
	p := &fakePinger{err: errors.New("down")}
	h := New()
	h.AddReadinessCheck("postgres", time.Second, PingCheck(p), WithSuccessThreshold(2))
	h.SetReady(true)
	c := h.readyC[0]

	runN(c, DefaultFailureThreshold)
	assert.False(t, h.IsReady())

	p.set(nil)
	runN(c, 1)
	assert.False(t, h.IsReady(), "one success is below the success threshold")
	runN(c, 1)
	assert.True(t, h.IsReady())

	_, failed := c.failure()
	assert.False(t, failed)
}

func TestStartAndStop(t *testing.T) {
	p := &fakePinger{}
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, GoroutineCountCheck(100000))
	h.AddReadinessCheck("postgres", time.Second, PingCheck(p), WithFailureThreshold(1))
	h.SetReady(true)

	h.Start(context.Background(), 10*time.Millisecond)
	defer h.Stop()

	p.set(errors.New("gone"))
	require.Eventually(t, func() bool { return !h.IsReady() }, time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				probe(t, h.LiveEndpoint)
				probe(t, h.ReadyEndpoint)
			}
		}()
	}
	wg.Wait()

	h.Stop()
	h.Stop()
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))

	err := GoroutineCountCheck(0)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds threshold")
}

func TestGCMaxPauseCheck(t *testing.T) {
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(context.Background()))
}
