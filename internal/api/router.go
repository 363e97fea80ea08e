package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/tickerbox/internal/supervisor"
)

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, ErrCodeNotFound, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, r.Method+" not allowed on "+r.URL.Path)
	})

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeError(w, r, http.StatusServiceUnavailable, ErrCodeUnavailable, "pipeline status not wired")
		return
	}
	st := s.status.Status()
	if st.Components == nil {
		st.Components = []supervisor.ComponentStats{}
	}
	writeJSON(w, http.StatusOK, st)
}
