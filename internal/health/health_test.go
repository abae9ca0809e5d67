package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthy(context.Context) CheckResult { return CheckResult{Status: StatusHealthy} }

func TestOverallStatus(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("loop", true, healthy)
	assert.Equal(t, StatusUnknown, c.OverallStatus())

	c.Check(context.Background())
	assert.Equal(t, StatusHealthy, c.OverallStatus())

	c.RegisterFunc("control", false, CustomCheck(func() error { return errors.New("no socket") }))
	c.Check(context.Background())
	assert.Equal(t, StatusDegraded, c.OverallStatus())

	c.RegisterFunc("capability", true, CustomCheck(func() error { return errors.New("disabled") }))
	results := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, c.OverallStatus())
	assert.Equal(t, "disabled", results["capability"].Error)
}

func TestCheckTimeoutAndPanic(t *testing.T) {
	c := NewChecker()
	c.Register(&Component{
		Name:    "slow",
		Timeout: 10 * time.Millisecond,
		Check: func(ctx context.Context) CheckResult {
			<-ctx.Done()
			time.Sleep(5 * time.Millisecond)
			return CheckResult{Status: StatusHealthy}
		},
	})
	c.RegisterFunc("panics", false, func(context.Context) CheckResult { panic("boom") })

	results := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, results["slow"].Status)
	assert.Equal(t, "check timed out", results["slow"].Message)
	assert.Equal(t, "boom", results["panics"].Error)

	got, ok := c.GetResult("panics")
	require.True(t, ok)
	assert.False(t, got.LastChecked.IsZero())
}

func TestCheckComponent(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("loop", true, healthy)

	result, ok := c.CheckComponent(context.Background(), "loop")
	require.True(t, ok)
	assert.Equal(t, StatusHealthy, result.Status)

	_, ok = c.CheckComponent(context.Background(), "missing")
	assert.False(t, ok)
}

func TestQueueCheck(t *testing.T) {
	pending := 3
	check := QueueCheck(func() int { return pending }, 4)
	assert.Equal(t, StatusHealthy, check(context.Background()).Status)

	pending = 4
	result := check(context.Background())
	assert.Equal(t, StatusDegraded, result.Status)
	assert.Equal(t, 4, result.Details["limit"])

	assert.Equal(t, StatusHealthy, QueueCheck(func() int { return 100 }, 0)(context.Background()).Status)
}

func get(t *testing.T, h http.Handler, target string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHandlers(t *testing.T) {
	c := NewChecker()
	mux := http.NewServeMux()
	c.Mount(mux)
	failing := false
	c.RegisterFunc("capability", true, CustomCheck(func() error {
		if failing {
			return errors.New("tap lost")
		}
		return nil
	}))

	code, body := get(t, mux, "/livez")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alive", body["status"])

	code, body = get(t, mux, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not ready", body["status"])

	c.SetReady(true)
	code, _ = get(t, mux, "/readyz")
	assert.Equal(t, http.StatusOK, code)

	code, body = get(t, mux, "/healthz?full=true")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Contains(t, body["components"], "capability")

	failing = true
	code, body = get(t, mux, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body["status"])
	assert.NotContains(t, body, "components")
}
