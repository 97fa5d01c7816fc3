package scripthost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fruitsalade/studiokit/internal/logging"
	"github.com/fruitsalade/studiokit/internal/metrics"
	"github.com/fruitsalade/studiokit/pkg/protocol"
)

const maxExpressionBytes = 1 << 20

// Server exposes an Engine over HTTP.
type Server struct {
	engine      *Engine
	broadcaster *Broadcaster
	auth        *Auth
	limiter     *RateLimiter
	root        string

	EvalTimeout time.Duration
	Heartbeat   time.Duration
}

// NewServer creates a Server. root is reported by /health only.
func NewServer(engine *Engine, broadcaster *Broadcaster, auth *Auth, limiter *RateLimiter, root string) *Server {
	return &Server{
		engine:      engine,
		broadcaster: broadcaster,
		auth:        auth,
		limiter:     limiter,
		root:        root,
		EvalTimeout: engine.cfg.ScriptTimeout + 5*time.Second,
		Heartbeat:   30 * time.Second,
	}
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	protected := http.NewServeMux()
	protected.HandleFunc("POST /api/v1/evaluate", s.handleEvaluate)
	protected.HandleFunc("GET /api/v1/events", s.handleEvents)

	// Auth first so the limiter can key on the client name.
	mux.Handle("/api/v1/", s.auth.Middleware(s.limiter.Middleware(protected)))

	return metrics.Middleware(logging.Middleware(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, protocol.HealthResponse{Status: "ok", Root: s.root})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req protocol.EvaluateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExpressionBytes)).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Expression == "" {
		s.sendError(w, http.StatusBadRequest, "expression is required")
		return
	}

	ctx := r.Context()
	if s.EvalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.EvalTimeout)
		defer cancel()
	}

	out, err := s.engine.Run(ctx, req.Expression)
	switch {
	case err == nil:
		s.sendJSON(w, http.StatusOK, protocol.EvaluateResponse{Result: out})
	case errors.Is(err, ErrTimeout):
		s.sendError(w, http.StatusGatewayTimeout, err.Error())
	default:
		logging.WithContext(r.Context()).Warn("evaluation failed", logging.Err(err))
		s.sendJSON(w, http.StatusOK, protocol.EvaluateResponse{Result: Sentinel, Error: err.Error()})
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(ch)

	heartbeat := time.NewTicker(s.Heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	sendError(w, code, message)
}
