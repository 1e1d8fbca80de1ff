// Package server exposes the stream resolver over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ytget/ytstreams/errs"
	"github.com/ytget/ytstreams/internal/logger"
	"github.com/ytget/ytstreams/session"
	"github.com/ytget/ytstreams/types"
	"github.com/ytget/ytstreams/youtube/cipher"
)

const (
	defaultRequestTimeout = 60 * time.Second
	shutdownTimeout       = 10 * time.Second
	historyLimit          = 10
)

// Resolver turns a video id into its stream list.
type Resolver interface {
	ResolveStreams(ctx context.Context, videoID string) (*types.StreamList, error)
}

// StateReader exposes the session snapshot.
type StateReader interface {
	Snapshot() session.Snapshot
}

// HistoryReader lists recent refresh attempts.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]session.Attempt, error)
}

// MetricsSource reports decipher counters.
type MetricsSource interface {
	Metrics() cipher.Metrics
}

// Options configures a Server. Resolver and State are required.
type Options struct {
	Resolver Resolver
	State    StateReader
	History  HistoryReader
	Metrics  MetricsSource
	Logger   *logger.Logger
	// RequestTimeout bounds one /streams call.
	RequestTimeout time.Duration
}

// Server is the HTTP API.
type Server struct {
	resolver Resolver
	state    StateReader
	history  HistoryReader
	metrics  MetricsSource
	timeout  time.Duration
	log      *logger.ComponentLogger
	handler  http.Handler
}

// New validates opts and builds the route table.
func New(opts Options) (*Server, error) {
	if opts.Resolver == nil {
		return nil, fmt.Errorf("%w: missing resolver", errs.ErrConfiguration)
	}
	if opts.State == nil {
		return nil, fmt.Errorf("%w: missing session state", errs.ErrConfiguration)
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	s := &Server{
		resolver: opts.Resolver,
		state:    opts.State,
		history:  opts.History,
		metrics:  opts.Metrics,
		timeout:  timeout,
		log:      logger.For(opts.Logger, logger.ComponentAPI),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/streams/{videoId}", s.handleStreams)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/session", s.handleSession)
	mux.HandleFunc("/", s.handleNotFound)
	s.handler = s.withRequestID(s.withAccessLog(s.withRecover(mux)))
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.log.Info("Listening", map[string]any{"addr": ln.Addr().String()})

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

type errorResp struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResp{Error: msg})
}

// statusFor maps pipeline errors to a status and public message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrNoStreamingData):
		return http.StatusNotFound, errs.ErrNoStreamingData.Error()
	case errors.Is(err, errs.ErrNotReady):
		return http.StatusServiceUnavailable, errs.ErrNotReady.Error()
	case errors.Is(err, errs.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	videoID := r.PathValue("videoId")

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	list, err := s.resolver.ResolveStreams(ctx, videoID)
	if err != nil {
		status, msg := statusFor(err)
		fields := map[string]any{"video": videoID, "status": status, "error": err.Error()}
		if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
			s.log.Error("Failed to resolve streams", fields)
		} else {
			s.log.Info("Streams unavailable", fields)
		}
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type healthResp struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	snap := s.state.Snapshot()
	if !snap.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, healthResp{Status: snap.State.String(), Error: errs.ErrNotReady.Error()})
		return
	}
	writeJSON(w, http.StatusOK, healthResp{Status: snap.State.String()})
}

type sessionResp struct {
	State       session.State     `json:"state"`
	Cookies     int               `json:"cookies"`
	Generation  uint64            `json:"generation"`
	RefreshedAt *time.Time        `json:"refreshedAt,omitempty"`
	AttemptedAt *time.Time        `json:"attemptedAt,omitempty"`
	LastError   string            `json:"lastError,omitempty"`
	History     []session.Attempt `json:"history,omitempty"`
	Cipher      *cipher.Metrics   `json:"cipher,omitempty"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	snap := s.state.Snapshot()
	resp := sessionResp{
		State:       snap.State,
		Cookies:     snap.Cookies,
		Generation:  snap.Generation,
		RefreshedAt: timePtr(snap.RefreshedAt),
		AttemptedAt: timePtr(snap.AttemptedAt),
	}
	if snap.LastError != nil {
		resp.LastError = snap.LastError.Error()
	}
	if s.history != nil {
		attempts, err := s.history.Recent(r.Context(), historyLimit)
		if err != nil {
			s.log.Warn("Failed to read refresh history", map[string]any{"error": err.Error()})
		} else {
			resp.History = attempts
		}
	}
	if s.metrics != nil {
		m := s.metrics.Metrics()
		resp.Cipher = &m
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}
