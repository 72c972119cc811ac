// Package api is the central `api` service (spec.md §6): the package
// index, the dataset and location catalogs, and a health/version surface,
// all served over HTTP via go-chi/chi/v5 (SPEC_FULL.md §6), matching the
// router/middleware stack checker.Server already uses for `chk`.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/brane-run/brane/emit"
	"github.com/brane-run/brane/wir"
)

// Version is the running build's version string, reported by GET /version.
const Version = "0.1.0"

// Server is the central api service.
type Server struct {
	Packages *PackageStore
	Datasets *DatasetStore
	Infra    *InfraStore
	Emitter  emit.Emitter

	router chi.Router
}

// NewServer builds a Server with fresh, empty stores wired to a router.
func NewServer(packages *PackageStore, datasets *DatasetStore, infra *InfraStore, emitter emit.Emitter) *Server {
	if emitter == nil {
		emitter = &emit.NullEmitter{}
	}
	s := &Server{Packages: packages, Datasets: datasets, Infra: infra, Emitter: emitter}
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

	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleVersion)

	r.Route("/packages", func(r chi.Router) {
		r.Post("/", s.handlePublishPackage)
		r.Get("/{name}/{version}", s.handleGetPackage)
	})

	r.Route("/data", func(r chi.Router) {
		r.Get("/info", s.handleDataInfoQuery)
		r.Get("/info/{name}", s.handleDataInfoByName)
	})

	r.Route("/infra", func(r chi.Router) {
		r.Get("/registries", s.handleListRegistries)
		r.Get("/registries/{loc}", s.handleGetRegistry)
		r.Get("/capabilities/{loc}", s.handleCapabilities)
	})

	r.Post("/graphql", s.handleGraphQL)

	s.router = r
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Emitter.Emit(emit.Event{Msg: "api_request", Meta: map[string]interface{}{
			"method": r.Method, "path": r.URL.Path,
		}})
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": Version})
}

func (s *Server) handlePublishPackage(w http.ResponseWriter, r *http.Request) {
	var e PackageEntry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		http.Error(w, "malformed package entry: "+err.Error(), http.StatusBadRequest)
		return
	}
	if e.Name == "" {
		http.Error(w, "missing package name", http.StatusBadRequest)
		return
	}
	s.Packages.Publish(e)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleGetPackage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	versionStr := chi.URLParam(r, "version")
	version, err := wir.ParseVersion(versionStr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tasks, classes, err := s.Packages.Resolve(name, version)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, PackageEntry{Name: name, Version: version, Tasks: tasks, Classes: classes})
}

// handleDataInfoQuery serves `GET /data/info?name=<dataset>`, the surface
// registry.Client.Locations consumes (SPEC_FULL.md §4.7).
func (s *Server) handleDataInfoQuery(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "missing name query parameter", http.StatusBadRequest)
		return
	}
	d, ok := s.Datasets.Get(name)
	if !ok {
		http.Error(w, "unknown dataset "+name, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDataInfoByName(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	d, ok := s.Datasets.Get(name)
	if !ok {
		http.Error(w, "unknown dataset "+name, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleListRegistries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Infra.List())
}

func (s *Server) handleGetRegistry(w http.ResponseWriter, r *http.Request) {
	loc := wir.Location(chi.URLParam(r, "loc"))
	reg, ok := s.Infra.Get(loc)
	if !ok {
		http.Error(w, "unknown location "+string(loc), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// handleCapabilities serves `GET /infra/capabilities/{loc}`, the surface
// registry.Client.capabilities consumes (SPEC_FULL.md §4.7). The response
// shape matches registry.Capabilities field-for-field.
func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	loc := wir.Location(chi.URLParam(r, "loc"))
	reg, ok := s.Infra.Get(loc)
	if !ok {
		http.Error(w, "unknown location "+string(loc), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		RegistryAddress string `json:"registry_address"`
		CheckerAddress  string `json:"checker_address"`
		JobAddress      string `json:"job_address"`
	}{RegistryAddress: reg.RegistryAddress, CheckerAddress: reg.CheckerAddress, JobAddress: reg.JobAddress})
}

// graphqlRequest is the minimal GraphQL envelope the /graphql stub accepts
// (SPEC_FULL.md §6: "a single POST handler accepting a minimal
// {query, variables} envelope and dispatching to a small internal resolver
// map rather than pulling in a full GraphQL server library").
type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

// resolvers maps a known query name (the whole point of matching is the
// operation name, not a real GraphQL parse) to a handler. Callers that need
// arbitrary GraphQL query shapes are out of scope (SPEC_FULL.md §6).
var graphqlResolvers = map[string]func(*Server, map[string]interface{}) (interface{}, error){
	"datasets": func(s *Server, vars map[string]interface{}) (interface{}, error) {
		name, _ := vars["name"].(string)
		d, ok := s.Datasets.Get(name)
		if !ok {
			return nil, nil
		}
		return d, nil
	},
	"registries": func(s *Server, vars map[string]interface{}) (interface{}, error) {
		return s.Infra.List(), nil
	},
}

func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	var req graphqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed graphql request: "+err.Error(), http.StatusBadRequest)
		return
	}
	op := operationName(req.Query)
	resolver, ok := graphqlResolvers[op]
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"errors": []map[string]string{{"message": "unknown operation " + op}},
		})
		return
	}
	data, err := resolver(s, req.Variables)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"errors": []map[string]string{{"message": err.Error()}},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{op: data}})
}

// operationName extracts the leading identifier of a minimal query string
// like "{ datasets(name: \"x\") { name } }" or "query { registries { ... } }".
// This is not a GraphQL parser; it only recognizes the resolver map's keys.
func operationName(query string) string {
	for name := range graphqlResolvers {
		if containsWord(query, name) {
			return name
		}
	}
	return ""
}

func containsWord(s, word string) bool {
	for i := 0; i+len(word) <= len(s); i++ {
		if s[i:i+len(word)] == word {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
