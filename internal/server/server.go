// Package server provides the HTTP server and handlers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"greader/internal/database"
	"greader/internal/model"
	"greader/internal/rss"
)

// Server is the main HTTP server.
type Server struct {
	store  database.Store
	engine *rss.Engine
	router chi.Router
	tokens map[string]string
	log    *zap.SugaredLogger
}

// New creates a new server. tokens maps verified bearer tokens to user IDs;
// origins is the CORS allow-list echoed on preflight (never a wildcard).
func New(store database.Store, engine *rss.Engine, tokens map[string]string, origins []string, log *zap.SugaredLogger) *Server {
	s := &Server{
		store:  store,
		engine: engine,
		tokens: tokens,
		log:    log,
	}
	s.setupRoutes(origins)
	return s
}

func (s *Server) setupRoutes(origins []string) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/fetch-feeds", s.handleFetchFeeds)

		r.Get("/feeds", s.handleListFeeds)
		r.Delete("/feeds/{feedID}", s.handleUnsubscribe)
		r.Get("/feeds/{feedID}/articles", s.handleListArticles)

		r.Post("/articles/{articleID}/read", s.markRead(true))
		r.Post("/articles/{articleID}/unread", s.markRead(false))
		r.Post("/articles/{articleID}/star", s.markStarred(true))
		r.Post("/articles/{articleID}/unstar", s.markStarred(false))

		r.Get("/folders", s.handleListFolders)
		r.Post("/folders", s.handleCreateFolder)
	})

	s.router = r
}

// Handler exposes the router for http.Server and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

type contextKey string

const userIDKey contextKey = "user_id"

// authenticate resolves the caller identity from the bearer token. Token
// verification proper belongs to an external collaborator; the engine only
// needs an opaque identity for rate limiting.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
			s.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, ok := s.tokens[auth[len(prefix):]]
		if !ok {
			s.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func callerID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

// fetchRequest is the single invoke body: a URL (subscribe or ad-hoc
// refresh), a known feed ID (targeted refresh), or neither (full sweep).
type fetchRequest struct {
	FeedURL      string  `json:"feed_url"`
	FeedID       string  `json:"feed_id"`
	SubscriberID string  `json:"subscriber_id"`
	FolderID     *string `json:"folder_id"`
}

func (s *Server) handleFetchFeeds(w http.ResponseWriter, r *http.Request) {
	// An absent or empty body means a full sweep.
	var req fetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	identity := callerID(r)

	switch {
	case req.FeedURL != "":
		var sub *rss.Subscriber
		if req.SubscriberID != "" {
			sub = &rss.Subscriber{UserID: req.SubscriberID, FolderID: req.FolderID}
		}
		res, err := s.engine.Subscribe(r.Context(), identity, req.FeedURL, sub)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"feed":          res.Feed,
			"article_count": res.ArticleCount,
		})

	case req.FeedID != "":
		res, err := s.engine.RefreshFeed(r.Context(), identity, req.FeedID)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"feed":          res.Feed,
			"article_count": res.ArticleCount,
		})

	default:
		results, err := s.engine.Sweep(r.Context())
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"results": results,
		})
	}
}

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	subs, err := s.store.ListSubscriptions(r.Context(), callerID(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list feeds")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "feeds": subs})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "feedID")
	if err := s.store.DeleteSubscription(r.Context(), callerID(r), feedID); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to unsubscribe")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "feedID")
	arts, err := s.store.ListArticles(r.Context(), callerID(r), feedID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list articles")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "articles": arts})
}

func (s *Server) markRead(read bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		articleID := chi.URLParam(r, "articleID")
		if err := s.store.SetArticleRead(r.Context(), callerID(r), articleID, read, time.Now().UTC()); err != nil {
			s.writeError(w, http.StatusInternalServerError, "failed to update read state")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func (s *Server) markStarred(starred bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		articleID := chi.URLParam(r, "articleID")
		if err := s.store.SetArticleStarred(r.Context(), callerID(r), articleID, starred, time.Now().UTC()); err != nil {
			s.writeError(w, http.StatusInternalServerError, "failed to update starred state")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		SortOrder int    `json:"sort_order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "folder name is required")
		return
	}
	folder := model.Folder{
		UserID:    callerID(r),
		Name:      req.Name,
		SortOrder: req.SortOrder,
	}
	if err := s.store.CreateFolder(r.Context(), &folder); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to create folder")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "folder": folder})
}

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := s.store.ListFolders(r.Context(), callerID(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list folders")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "folders": folders})
}

// writeEngineError maps the engine error taxonomy onto HTTP statuses:
// validation/parse 400, rate limit 429, fetch 502, persistence 500.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var (
		ve *rss.ValidationError
		pe *rss.ParseError
		re *rss.RateLimitError
		fe *rss.FetchError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &ve), errors.As(err, &pe):
		status = http.StatusBadRequest
	case errors.As(err, &re):
		status = http.StatusTooManyRequests
	case errors.As(err, &fe):
		status = http.StatusBadGateway
	}
	s.writeError(w, status, err.Error())
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorw("write response", "error", err)
	}
}
