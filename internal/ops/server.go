// Package ops exposes the dispatcher's read-only operational HTTP endpoints:
// a liveness check and a scheduler stats snapshot. It is not a management
// API; campaigns are controlled through the database.
package ops

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// StatsSource supplies the scheduler counters served at /stats.
type StatsSource interface {
	Stats() map[string]interface{}
}

// Server is the ops HTTP server.
type Server struct {
	srv *http.Server
}

// New builds the ops server on addr.
func New(addr string, db *sql.DB, stats StatsSource) *Server {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		if err := db.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]string{"status": "degraded", "database": err.Error()}
		}
		writeJSON(w, status, body)
	})

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, stats.Stats())
	})

	return &Server{srv: &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}}
}

// Start serves until Shutdown. It returns http.ErrServerClosed on a clean
// shutdown.
func (s *Server) Start() error {
	logger.Info("ops server listening", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
