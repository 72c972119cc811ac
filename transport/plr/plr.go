// Package plr is the central `plr` service (spec.md §6): a thin HTTP
// wrapper over planner.Planner, authorizing and placing a compiled
// workflow before it reaches the VM.
package plr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/brane-run/brane/emit"
	"github.com/brane-run/brane/planner"
	"github.com/brane-run/brane/wir"
)

// PlanRequest is the body of POST /plan (spec.md §6).
type PlanRequest struct {
	AppID    string       `json:"app_id"`
	Workflow *wir.Workflow `json:"workflow"`
}

// PlanResponse is the 200 OK reply body.
type PlanResponse struct {
	Plan *wir.Workflow `json:"plan"`
}

// DeniedResponse is the 401 reply body on a CheckerDenied (spec.md §6:
// "401 with {domain, reasons}").
type DeniedResponse struct {
	Domain  wir.Location `json:"domain"`
	Reasons []string     `json:"reasons"`
}

// Server is the plr service.
type Server struct {
	Planner *planner.Planner
	Emitter emit.Emitter

	router chi.Router
}

// NewServer builds a Server wired to p.
func NewServer(p *planner.Planner, emitter emit.Emitter) *Server {
	if emitter == nil {
		emitter = &emit.NullEmitter{}
	}
	s := &Server{Planner: p, Emitter: emitter}
	s.setupRouter()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) setupRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequest)
	r.Post("/plan", s.handlePlan)
	s.router = r
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Emitter.Emit(emit.Event{Msg: "plr_request", Meta: map[string]interface{}{
			"method": r.Method, "path": r.URL.Path,
		}})
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Workflow == nil {
		http.Error(w, "missing workflow", http.StatusBadRequest)
		return
	}

	plan, err := s.Planner.Plan(r.Context(), req.Workflow, req.AppID)
	if err != nil {
		var denied *planner.CheckerDenied
		if errors.As(err, &denied) {
			writeJSON(w, http.StatusUnauthorized, DeniedResponse{Domain: denied.Domain, Reasons: denied.Reasons})
			return
		}
		http.Error(w, "planning failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, PlanResponse{Plan: plan})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
