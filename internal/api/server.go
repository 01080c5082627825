// Package api exposes the HTTP surface of a docmesh node: document CRUD,
// the replication receiver, and the health check. It also owns write
// orchestration, binding a local CAS write to the peer fan-out and the
// rollback that a peer conflict forces.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/dreamware/docmesh/internal/engine"
	"github.com/dreamware/docmesh/internal/replication"
)

// listLimit caps GET /api/docs responses.
const listLimit = 1000

// Server wires the engine and the replication client behind the HTTP
// handlers.
type Server struct {
	engine *engine.Engine
	pusher *replication.Client
	tokens []string
}

// NewServer creates a server. tokens are the accepted inbound bearer
// tokens; pusher carries the peer list and outbound token.
func NewServer(eng *engine.Engine, pusher *replication.Client, tokens []string) *Server {
	return &Server{
		engine: eng,
		pusher: pusher,
		tokens: append([]string(nil), tokens...),
	}
}

// Handler builds the route tree. Every route, including /health, sits
// behind bearer authentication.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverer)
	r.Use(requestLogger)
	r.Use(s.authenticate)

	r.Get("/health", s.handleHealth)
	r.Post("/replicate", s.handleReplicate)

	r.Route("/api/docs", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleCreate)
		r.Get("/{id}", s.handleGet)
		r.Delete("/{id}", s.handleDelete)
	})

	return r
}

// recoverer is the single top-level catch: anything that panics out of a
// handler becomes a generic 500.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logrus.WithFields(logrus.Fields{
					"path":  r.URL.Path,
					"panic": rec,
				}).Error("handler panic")
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestLogger traces requests at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logrus.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Debug("request")
		next.ServeHTTP(w, r)
	})
}

// authenticate enforces "Authorization: Bearer <token>" against the
// configured token set. Comparison is constant-time per token.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || !s.tokenValid(token) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) tokenValid(token string) bool {
	valid := false
	for _, t := range s.tokens {
		if len(t) == len(token) && subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			valid = true
		}
	}
	return valid
}

// handleHealth reports liveness.
//
// GET /health -> 200 {"status":"ok"}
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON renders v with the JSON content type.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("write response")
	}
}

// writeError renders the uniform {"error": msg} body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
