package checker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/brane-run/brane/emit"
)

// Evaluator decides a checker workflow's verdict for a domain. Production
// implementations consult a signature-verification service and a
// domain-local policy document; PolicySet (policy.go) is the reference
// implementation this package ships.
type Evaluator interface {
	Evaluate(ctx context.Context, cw *CheckerWorkflow, claims Claims) (verdict bool, reasons []string)
}

// Server is the chk service: a chi router authenticating every /v1/check
// request with a domain KeySet and delegating the verdict to an Evaluator
// (spec.md §4.9, SPEC_FULL.md §4.9: "go-chi/chi/v5 (router, middleware:
// RequestID, RealIP, Recoverer)").
type Server struct {
	Keys      *KeySet
	Evaluator Evaluator
	Emitter   emit.Emitter
	router    chi.Router
}

// NewServer builds a Server and wires its routes.
func NewServer(keys *KeySet, eval Evaluator, emitter emit.Emitter) *Server {
	if emitter == nil {
		emitter = &emit.NullEmitter{}
	}
	s := &Server{Keys: keys, Evaluator: eval, Emitter: emitter}
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

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/check", s.handleCheck)
		r.Post("/policies", s.handlePolicies)
	})
	s.router = r
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Emitter.Emit(emit.Event{Msg: "checker_request", Meta: map[string]interface{}{
			"method": r.Method, "path": r.URL.Path,
		}})
		next.ServeHTTP(w, r)
	})
}

type claimsKey struct{}

// authenticate validates the bearer JWT on every /v1 request and stores its
// claims in the request context for handlers to read.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		claims, err := s.Keys.Validate(token)
		if err != nil {
			http.Error(w, "invalid token: "+err.Error(), http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFrom(ctx context.Context) Claims {
	c, _ := ctx.Value(claimsKey{}).(Claims)
	return c
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Workflow == nil {
		http.Error(w, "missing workflow", http.StatusBadRequest)
		return
	}
	verdict, reasons := s.Evaluator.Evaluate(r.Context(), req.Workflow, claimsFrom(r.Context()))
	writeJSON(w, http.StatusOK, CheckReply{Verdict: verdict, Reasons: reasons})
}

// handlePolicies accepts a domain's updated policy document. The reference
// Evaluator (PolicySet) reloads from it atomically; an Evaluator that has
// no concept of a mutable policy document may simply ignore the body.
func (s *Server) handlePolicies(w http.ResponseWriter, r *http.Request) {
	reloader, ok := s.Evaluator.(interface {
		ReloadPolicies(ctx context.Context, body []byte) error
	})
	if !ok {
		http.Error(w, "this checker does not accept policy updates", http.StatusNotImplemented)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "reading body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := reloader.ReloadPolicies(r.Context(), body); err != nil {
		http.Error(w, "reloading policies: "+err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
