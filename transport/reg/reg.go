// Package reg is a worker's `reg` service (spec.md §4.10, §6): it serves a
// worker's locally-held datasets and results, checks use against a domain
// policy before handing data out, and streams payloads to other workers'
// reg services during a transfer (SPEC_FULL.md §188: "reg (HTTP):
// go-chi/chi/v5").
package reg

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/brane-run/brane/checker"
	"github.com/brane-run/brane/emit"
	"github.com/brane-run/brane/wir"
)

// Store is the worker's local dataset/result holdings: byte payloads keyed
// by name, plus the wir.Dataset metadata the `/data/info` surface reports.
// A production Store persists under the configured data root, one
// subdirectory per dataset (spec.md §6, "Persisted state"); Store here is
// the interface a persistence-backed implementation must satisfy.
type Store interface {
	Info(name string) (wir.Dataset, bool)
	Open(name string) (io.ReadCloser, bool, error) // bool: true if directory-layout (archived on the wire)
	Put(name string, kind wir.LayoutKind, r io.Reader) error
}

// TransferChecker re-authorizes a transfer against the same checker
// workflow used in planning, a second independent check at the point of
// transfer (spec.md §4.10).
type TransferChecker interface {
	Check(ctx context.Context, domain wir.Location, cw *checker.CheckerWorkflow) (checker.CheckReply, error)
}

// CheckRequest is the body of POST /data/check/{name} and
// POST /results/check/{name} (spec.md §6).
type CheckRequest struct {
	UseCase  string                   `json:"use_case"`
	Workflow *checker.CheckerWorkflow `json:"workflow"`
	Task     *wir.TaskDef             `json:"task,omitempty"`
}

// CheckReply is the shared reply shape for both check endpoints.
type CheckReply struct {
	Verdict bool     `json:"verdict"`
	Reasons []string `json:"reasons,omitempty"`
}

// Server is the reg service.
type Server struct {
	Datasets Store
	Results  Store
	Domain   wir.Location
	Checker  TransferChecker
	Emitter  emit.Emitter

	router chi.Router
}

// NewServer builds a Server and wires its routes.
func NewServer(domain wir.Location, datasets, results Store, ck TransferChecker, emitter emit.Emitter) *Server {
	if emitter == nil {
		emitter = &emit.NullEmitter{}
	}
	s := &Server{Domain: domain, Datasets: datasets, Results: results, Checker: ck, Emitter: emitter}
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

	r.Get("/data/info", s.handleInfo(s.datasetsOf))
	r.Get("/data/download/{name}", s.handleDownload(s.datasetsOf))
	r.Post("/data/check/{name}", s.handleCheck(s.datasetsOf))
	r.Get("/data/{name}/stream", s.handleStreamGet(s.datasetsOf))
	r.Put("/data/{name}/stream", s.handleStreamPut(s.datasetsOf))

	r.Get("/results/info", s.handleInfo(s.resultsOf))
	r.Get("/results/download/{name}", s.handleDownload(s.resultsOf))
	r.Post("/results/check/{name}", s.handleCheck(s.resultsOf))
	r.Get("/results/{name}/stream", s.handleStreamGet(s.resultsOf))
	r.Put("/results/{name}/stream", s.handleStreamPut(s.resultsOf))

	s.router = r
}

func (s *Server) datasetsOf() Store { return s.Datasets }
func (s *Server) resultsOf() Store  { return s.Results }

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Emitter.Emit(emit.Event{Msg: "reg_request", Meta: map[string]interface{}{
			"method": r.Method, "path": r.URL.Path,
		}})
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleInfo(store func() Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		d, ok := store().Info(name)
		if !ok {
			http.Error(w, "unknown dataset "+name, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func (s *Server) handleDownload(store func() Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		rc, isDir, err := store().Open(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if rc == nil {
			http.Error(w, "unknown dataset "+name, http.StatusNotFound)
			return
		}
		defer rc.Close()
		if isDir {
			w.Header().Set("X-Brane-Layout", "directory")
		}
		io.Copy(w, rc)
	}
}

// handleCheck re-authorizes use of name against the requester's checker
// workflow (spec.md §4.10: "its checker has authorized the transfer
// against the same checker workflow used in planning").
func (s *Server) handleCheck(store func() Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if _, ok := store().Info(name); !ok {
			http.Error(w, "unknown dataset "+name, http.StatusNotFound)
			return
		}
		var req CheckRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request: "+err.Error(), http.StatusBadRequest)
			return
		}
		reply, err := s.Checker.Check(r.Context(), s.Domain, req.Workflow)
		if err != nil {
			http.Error(w, "checker: "+err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, CheckReply{Verdict: reply.Verdict, Reasons: reply.Reasons})
	}
}

// handleStreamGet serves a dataset's raw bytes for a transfer (the
// fetch side of registry.Client.transfer, SPEC_FULL.md §4.10). Like
// handleDownload, it performs no check itself; the sender already
// authorized the transfer via handleCheck before initiating it.
func (s *Server) handleStreamGet(store func() Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		rc, isDir, err := store().Open(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if rc == nil {
			http.Error(w, "unknown dataset "+name, http.StatusNotFound)
			return
		}
		defer rc.Close()
		if isDir {
			w.Header().Set("X-Brane-Layout", "directory")
		}
		n, _ := io.Copy(w, rc)
		s.Emitter.Emit(emit.Event{Msg: "transfer_bytes", Meta: map[string]interface{}{"bytes": n}})
	}
}

// handleStreamPut receives a transferred dataset's bytes and stores them
// under name (the push side of registry.Client.transfer).
func (s *Server) handleStreamPut(store func() Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		kind := wir.LayoutFile
		if r.Header.Get("X-Brane-Layout") == "directory" {
			kind = wir.LayoutDirectory
		}
		counted := &countingReader{r: r.Body}
		if err := store().Put(name, kind, counted); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		s.Emitter.Emit(emit.Event{Msg: "transfer_bytes", Meta: map[string]interface{}{"bytes": counted.n}})
		w.WriteHeader(http.StatusCreated)
	}
}

// countingReader wraps an io.Reader to report how many bytes passed through
// it, for transfer_bytes metrics on the stream-put path.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
