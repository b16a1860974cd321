package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/zykairotis/perplexity-bridge/pkg/convstore"
	"github.com/zykairotis/perplexity-bridge/pkg/perplexity"
)

// Server is the HTTP façade over one upstream client.
type Server struct {
	cfg           *Config
	client        *perplexity.Client
	conversations convstore.Store
	log           zerolog.Logger

	server    *http.Server
	startedAt time.Time
}

func NewServer(cfg *Config, client *perplexity.Client, conversations convstore.Store, log zerolog.Logger) *Server {
	return &Server{
		cfg:           cfg.WithDefaults(),
		client:        client,
		conversations: conversations,
		log:           log.With().Str("component", "proxy").Logger(),
	}
}

// Handler builds the route table. Exposed separately from Start for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/session", s.handleSession)
	mux.HandleFunc("/api/modes", s.handleModes)
	mux.HandleFunc("/api/profiles", s.handleProfiles)
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/search/files", s.handleSearchFiles)
	mux.HandleFunc("/api/spaces", s.handleListSpaces)
	mux.HandleFunc("/api/spaces/create", s.handleCreateSpace)
	mux.HandleFunc("/api/tags", s.handleTags)

	mux.HandleFunc("/v1/models", s.handleModels)
	mux.HandleFunc("/v1/completions", s.handleCompletions)
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)

	return s.logRequests(mux)
}

func (s *Server) Start() error {
	s.startedAt = time.Now()
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("start server: %w", err)
		}
		return nil
	case <-time.After(50 * time.Millisecond):
		s.log.Info().Str("addr", s.server.Addr).Msg("Proxy listening")
		return nil
	}
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeOpenAIError emits the OpenAI error envelope used across /v1.
func writeOpenAIError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    errType,
			"param":   nil,
			"code":    nil,
		},
	})
}

// errorStatus maps client errors onto HTTP statuses. Invalid input is the
// caller's fault; everything the upstream did wrong is a bad gateway.
func errorStatus(err error) (int, string) {
	var cfgErr *perplexity.ConfigError
	if errors.As(err, &cfgErr) {
		return http.StatusBadRequest, "invalid_request_error"
	}
	var upErr *perplexity.UploadError
	if errors.As(err, &upErr) {
		return http.StatusBadGateway, "upstream_error"
	}
	var tErr *perplexity.TransportError
	if errors.As(err, &tErr) {
		return http.StatusBadGateway, "upstream_error"
	}
	if errors.Is(err, perplexity.ErrNoAnswer) {
		return http.StatusBadGateway, "upstream_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, errType := errorStatus(err)
	writeOpenAIError(w, status, errType, err.Error())
}
