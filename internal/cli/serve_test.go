package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/njchilds90/goflux"
	"github.com/njchilds90/goflux/internal/problem"
)

const planeRequest = `{
	"name": "plane",
	"field": ["2*x", "5*y", "0"],
	"surface": ["u", "v", "4*u + 3*v"],
	"u": [0, 1],
	"v": ["-8", 8],
	"dx": 0.25,
	"expected": -64
}`

func testHandler(t *testing.T) http.Handler {
	t.Helper()
	log, _ := test.NewNullLogger()
	return NewHandler(Server{Evaluator: &goflux.Evaluator{Log: log}, Log: log, Timeout: time.Minute})
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(testHandler(t), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ok", got["status"])
	_, err := time.Parse(time.RFC3339, got["time"])
	assert.NoError(t, err)
}

func TestServeFlux(t *testing.T) {
	rec := do(testHandler(t), http.MethodPost, "/flux", planeRequest)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got FluxResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.InDelta(t, -64, got.Flux, 1e-9)
	assert.Equal(t, 4, got.Rows)
	assert.Equal(t, 4*64, got.Samples)
	assert.Zero(t, got.Skipped)
	require.NotNil(t, got.Expected)
	assert.Equal(t, -64.0, *got.Expected)
}

func TestServeFluxDerivativeStep(t *testing.T) {
	body := strings.Replace(planeRequest, `"dx": 0.25,`, `"dx": 0.25, "derivative_step": 0.001,`, 1)
	rec := do(testHandler(t), http.MethodPost, "/flux", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got FluxResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.InDelta(t, -64, got.Flux, 1e-6)
}

func TestServeFluxBadRequests(t *testing.T) {
	h := testHandler(t)
	for name, body := range map[string]string{
		"malformed":     `{"name":`,
		"unknown field": `{"name": "x", "stepsize": 1}`,
		"trailing data": planeRequest + `{}`,
		"bad field":     strings.Replace(planeRequest, `"2*x"`, `"2*"`, 1),
		"bad expected":  strings.Replace(planeRequest, `-64`, `"w"`, 1),
		"bad step":      strings.Replace(planeRequest, `0.25`, `-1`, 1),
		"one bound":     strings.Replace(planeRequest, `[0, 1]`, `[0]`, 1),
	} {
		t.Run(name, func(t *testing.T) {
			rec := do(h, http.MethodPost, "/flux", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			var got map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.NotEmpty(t, got["error"])
		})
	}
}

func TestServeFluxTimeout(t *testing.T) {
	log, _ := test.NewNullLogger()
	h := NewHandler(Server{Evaluator: &goflux.Evaluator{Log: log}, Log: log, Timeout: time.Nanosecond})
	body := strings.Replace(planeRequest, `0.25`, `0.001`, 1)
	rec := do(h, http.MethodPost, "/flux", body)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code, rec.Body.String())
}

func TestServeMethodNotAllowed(t *testing.T) {
	rec := do(testHandler(t), http.MethodGet, "/flux", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServeProblems(t *testing.T) {
	rec := do(testHandler(t), http.MethodGet, "/problems", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []problem.Spec
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, len(problem.Textbook()))
	assert.Equal(t, "plane", got[0].Name)
}

func TestServeRateLimit(t *testing.T) {
	log, _ := test.NewNullLogger()
	h := NewHandler(Server{Log: log, Limit: rate.Every(time.Hour), Burst: 2})
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/problems", "").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, do(h, http.MethodGet, "/problems", "").Code)

	// Health checks are not limited.
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/health", "").Code)

	// Other clients have their own bucket.
	req := httptest.NewRequest(http.MethodGet, "/problems", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServeRecoversPanics(t *testing.T) {
	log, hook := test.NewNullLogger()
	s := Server{Log: log}
	h := s.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := do(h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "boom", hook.LastEntry().Data["panic"])
}

func TestClientLimiterEvictsIdleClients(t *testing.T) {
	c := newClientLimiter(rate.Limit(2), 5)
	require.Equal(t, clientIdle, c.idle)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.get("192.0.2.1")
	c.get("192.0.2.2")
	now = now.Add(clientIdle / 2)
	c.get("192.0.2.2")
	assert.Len(t, c.clients, 2)

	now = now.Add(clientIdle/2 + time.Second)
	c.get("192.0.2.3")
	assert.Len(t, c.clients, 2)
	assert.NotContains(t, c.clients, "192.0.2.1")
	assert.Contains(t, c.clients, "192.0.2.2")
}

func TestClientLimiterKeepsSlowBuckets(t *testing.T) {
	c := newClientLimiter(rate.Every(time.Hour), 2)
	assert.InDelta(t, float64(2*time.Hour), float64(c.idle), float64(time.Millisecond))
}
