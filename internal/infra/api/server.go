package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"interview-orchestrator/internal/domain"
	"interview-orchestrator/internal/infra/logging"
	"interview-orchestrator/internal/infra/redis"
	"interview-orchestrator/internal/usecase"
)

// Server exposes the orchestration facade over HTTP: start, message, poll.
type Server struct {
	uc      usecase.InterviewUseCase
	limiter *redis.RateLimiter // nil disables rate limiting
	apiKey  string             // empty disables the bearer guard
	rate    int
	log     *zerolog.Logger
	http    *http.Server
}

func NewServer(
	uc usecase.InterviewUseCase,
	limiter *redis.RateLimiter,
	apiKey string,
	ratePerMinute int,
	logger *zerolog.Logger,
) *Server {
	apiLog := logger.With().Str("component", "API").Logger()
	return &Server{
		uc:      uc,
		limiter: limiter,
		apiKey:  apiKey,
		rate:    ratePerMinute,
		log:     &apiLog,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authGuard)
		r.Post("/interviews", s.handleCreate)
		r.Route("/interviews/{id}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Post("/start", s.handleStart)
			r.With(s.rateLimit).Post("/messages", s.handleMessage)
			r.Post("/finish", s.handleFinish)
		})
		r.Get("/jobs/{id}", s.handleJobStatus)
	})
	return r
}

func (s *Server) Start(port int) error {
	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Router(),
	}
	s.log.Info().Int("port", port).Msg("http server listening")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// ----- middleware -----

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logging.WithTraceID(r.Context(), uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
		logging.With(ctx, s.log).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// authGuard provides simple bearer-key authentication when a key is configured.
func (s *Server) authGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] != s.apiKey {
			writeJSON(w, http.StatusUnauthorized, errorBody{Code: "unauthorized", Error: "missing or invalid bearer token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || s.rate <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		key := redis.ClientRouteKey(clientID(r), "messages")
		ok, err := s.limiter.Allow(r.Context(), key, s.rate, time.Minute)
		if err != nil {
			// Rate limiting is best-effort; never block the path on Redis.
			s.log.Warn().Err(err).Msg("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Code: "rate_limited", Error: "too many messages, slow down"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientID(r *http.Request) string {
	if v := r.Header.Get("X-Client-ID"); v != "" {
		return v
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return host
}

// ----- error mapping -----

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInterviewBusy):
		writeJSON(w, http.StatusConflict, errorBody{Code: "busy", Error: err.Error()})
	case errors.Is(err, domain.ErrInterviewClosed):
		writeJSON(w, http.StatusGone, errorBody{Code: "closed", Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidState):
		writeJSON(w, http.StatusConflict, errorBody{Code: "invalid_state", Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Code: "not_found", Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_argument", Error: err.Error()})
	case errors.Is(err, domain.ErrDuplicateActiveJob):
		// The facade's state guard should make this unreachable; reaching it
		// means the single-job invariant broke.
		s.log.Error().Err(err).Msg("consistency bug: duplicate active job surfaced")
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: "internal", Error: "internal error"})
	default:
		s.log.Error().Err(err).Msg("internal error")
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: "internal", Error: "internal error"})
	}
}
