package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/njchilds90/goflux"
	"github.com/njchilds90/goflux/internal/problem"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// serveCmd exposes flux estimation over HTTP.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve flux estimates over HTTP",
	Long: `serve starts an HTTP server.

  POST /flux      estimate one integral
  GET  /problems  list the built-in textbook problems
  GET  /health    liveness check`,
	Args:              cobra.NoArgs,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		timeout := Cfg.GetDuration("timeout")
		h := NewHandler(Server{
			Evaluator: evaluator(),
			Log:       logrus.StandardLogger(),
			Timeout:   timeout,
			Limit:     rate.Limit(Cfg.GetFloat64("rate")),
			Burst:     Cfg.GetInt("burst"),
		})
		srv := &http.Server{
			Addr:              Cfg.GetString("addr"),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      timeout + 15*time.Second,
			IdleTimeout:       60 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		errc := make(chan error, 1)
		go func() {
			logrus.WithField("addr", srv.Addr).Info("flux: listening")
			errc <- srv.ListenAndServe()
		}()
		select {
		case err := <-errc:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logrus.Info("flux: shutting down")
		return srv.Shutdown(shutdownCtx)
	},
}

// Server configures the HTTP handler.
type Server struct {
	Evaluator *goflux.Evaluator
	Log       logrus.FieldLogger
	// Timeout bounds each flux request. Zero means no bound beyond the
	// client's own connection.
	Timeout time.Duration
	// Limit and Burst configure per-client rate limiting. A zero Limit
	// disables it.
	Limit rate.Limit
	Burst int
}

// NewHandler returns the HTTP API for s.
func NewHandler(s Server) http.Handler {
	if s.Evaluator == nil {
		s.Evaluator = &goflux.Evaluator{}
	}
	if s.Log == nil {
		s.Log = logrus.StandardLogger()
	}
	r := mux.NewRouter()
	r.HandleFunc("/health", health).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(s.recoverMiddleware)
	if s.Limit > 0 {
		api.Use(newClientLimiter(s.Limit, s.Burst).middleware)
	}
	api.HandleFunc("/flux", s.flux).Methods(http.MethodPost)
	api.HandleFunc("/problems", s.problems).Methods(http.MethodGet)
	return r
}

// FluxRequest is the body of POST /flux. Bounds may be numbers or
// expression strings.
type FluxRequest struct {
	problem.Spec
	DerivativeStep float64 `json:"derivative_step"`
}

// FluxResponse is the reply to POST /flux.
type FluxResponse struct {
	Flux     float64  `json:"flux"`
	Rows     int      `json:"rows"`
	Samples  int      `json:"samples"`
	Skipped  int      `json:"skipped"`
	Expected *float64 `json:"expected,omitempty"`
}

func (s Server) flux(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req FluxRequest
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	// Ensure there's no trailing junk.
	if dec.More() {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON: trailing data"))
		return
	}

	p, err := req.Problem()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var resp FluxResponse
	if req.Expected != nil {
		want, err := req.ExpectedValue()
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resp.Expected = &want
	}

	ctx := r.Context()
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	ev := *s.Evaluator
	if req.DerivativeStep != 0 {
		ev.DerivativeStep = req.DerivativeStep
	}
	est, err := ev.Estimate(ctx, p)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err)
		return
	case errors.Is(err, context.Canceled):
		s.Log.WithField("remote", r.RemoteAddr).Debug("flux: client went away")
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp.Flux, resp.Rows, resp.Samples, resp.Skipped = est.Flux, est.Rows, est.Samples, est.Skipped
	writeJSON(w, http.StatusOK, resp)
}

func (s Server) problems(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, problem.Textbook())
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.Log.WithFields(logrus.Fields{
					"panic": rec,
					"path":  r.URL.Path,
					"stack": string(debug.Stack()),
				}).Error("flux: recovered from panic")
				writeError(w, http.StatusInternalServerError, fmt.Errorf("internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// clientIdle is how long a client's bucket is kept after its last request,
// unless refilling the bucket takes longer.
const clientIdle = 10 * time.Minute

// clientLimiter keeps one token bucket per client host. Buckets unused for
// longer than idle are dropped, so the map holds only recent clients.
type clientLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	r       rate.Limit
	b       int
	idle    time.Duration
	swept   time.Time
	now     func() time.Time
}

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

func newClientLimiter(r rate.Limit, b int) *clientLimiter {
	idle := clientIdle
	// An evicted bucket comes back full, so keep it at least until it
	// would have refilled anyway.
	if r > 0 && r != rate.Inf {
		if full := time.Duration(float64(b) / float64(r) * float64(time.Second)); full > idle {
			idle = full
		}
	}
	return &clientLimiter{clients: make(map[string]*client), r: r, b: b, idle: idle, now: time.Now}
}

func (c *clientLimiter) get(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if now.Sub(c.swept) > c.idle {
		for h, cl := range c.clients {
			if now.Sub(cl.seen) > c.idle {
				delete(c.clients, h)
			}
		}
		c.swept = now
	}
	cl, ok := c.clients[host]
	if !ok {
		cl = &client{lim: rate.NewLimiter(c.r, c.b)}
		c.clients[host] = cl
	}
	cl.seen = now
	return cl.lim
}

func (c *clientLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !c.get(host).Allow() {
			writeError(w, http.StatusTooManyRequests, errors.New("too many requests, try again later"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
