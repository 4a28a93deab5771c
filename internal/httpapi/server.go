// Package httpapi exposes the gateway over HTTP: chat, cache control,
// health, and the tool listing.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"trackgate/internal/chat"
	"trackgate/internal/config"
	"trackgate/internal/llm"
	"trackgate/internal/redmine"
	"trackgate/internal/tools"
)

const (
	readTimeout  = 30 * time.Second
	writeTimeout = 120 * time.Second
	// chatTimeout bounds a whole chat turn including every model round.
	chatTimeout = 90 * time.Second
)

// Server is the gateway's HTTP front.
type Server struct {
	loop       *chat.Loop
	engine     chat.CacheControl
	cfg        *config.Config
	log        *zap.Logger
	httpServer *http.Server
	startedAt  time.Time
}

// NewServer wires the HTTP surface over an assembled chat loop and cache
// engine.
func NewServer(loop *chat.Loop, engine chat.CacheControl, cfg *config.Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		loop:      loop,
		engine:    engine,
		cfg:       cfg,
		log:       log,
		startedAt: time.Now(),
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return s
}

// Handler returns the configured router; tests mount it on httptest.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/tools", s.handleTools)
	r.Post("/api/chat", s.handleChat)
	r.Post("/api/redmine-cache", s.handleCache)

	return r
}

// Start runs the server until it fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("gateway listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type chatRequest struct {
	Message             string          `json:"message"`
	ConversationHistory []chat.Turn     `json:"conversationHistory"`
	EnabledTools        map[string]bool `json:"enabledTools"`
}

type chatResponse struct {
	Response            string      `json:"response"`
	ConversationHistory []chat.Turn `json:"conversationHistory"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), chatTimeout)
	defer cancel()

	reply, history, err := s.loop.Run(ctx, req.Message, req.ConversationHistory, req.EnabledTools)
	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, chatResponse{
		Response:            reply,
		ConversationHistory: history,
	})
}

type cacheRequest struct {
	Action string `json:"action"`
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	var req cacheRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Action {
	case "on":
		status, err := s.engine.Enable(r.Context())
		if err != nil {
			s.writeJSON(w, http.StatusOK, map[string]any{
				"success": false,
				"error":   err.Error(),
				"status":  "enabled",
			})
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"status":     "enabled",
			"cache_info": status,
		})
	case "off":
		s.engine.Disable()
		s.writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"status":  "disabled",
		})
	case "refresh":
		if err := s.engine.Refresh(r.Context()); err != nil {
			s.writeJSON(w, http.StatusOK, map[string]any{
				"success": false,
				"error":   err.Error(),
			})
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"cache_info": s.engine.Status(),
		})
	case "status":
		s.writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"cache_info": s.engine.Status(),
		})
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"uptime_s": int(time.Since(s.startedAt).Seconds()),
	})
}

// handleTools lists every registered tool so deployers can see what the
// model may call per category.
func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	type toolInfo struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Category    string `json:"category"`
	}
	byCategory := map[string][]toolInfo{}
	for _, d := range tools.Registry {
		byCategory[d.Category] = append(byCategory[d.Category], toolInfo{
			Name:        d.Name,
			Description: d.Description,
			Category:    d.Category,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"categories": tools.Categories,
		"tools":      byCategory,
	})
}

// statusForError maps upstream failure classes onto HTTP codes. Tool-level
// failures never reach here; they are encoded inside the assistant content.
func statusForError(err error) int {
	if errors.Is(err, llm.ErrRateLimited) {
		return http.StatusTooManyRequests
	}
	if kind := redmine.KindOf(err); kind == redmine.KindRateLimited {
		return http.StatusTooManyRequests
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("response encoding failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{"success": false, "error": message})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t0 := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(t0)))
	})
}
