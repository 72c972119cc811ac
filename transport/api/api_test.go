package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brane-run/brane/wir"
)

func TestPackages_PublishAndGet(t *testing.T) {
	s := NewServer(NewPackageStore(), NewDatasetStore(), NewInfraStore(), nil)

	entry := PackageEntry{
		Name:    "genomics",
		Version: wir.Version{Major: 1, Minor: 0, Patch: 0},
		Tasks:   []wir.TaskDef{{Name: "align"}},
	}
	body, _ := json.Marshal(entry)
	req := httptest.NewRequest(http.MethodPost, "/packages/", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("publish: status %d, body %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/packages/genomics/1.0.0", nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d, body %s", rec.Code, rec.Body.String())
	}
	var got PackageEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Tasks) != 1 || got.Tasks[0].Name != "align" {
		t.Fatalf("got = %+v", got)
	}
}

func TestPackages_LatestResolvesHighestVersion(t *testing.T) {
	store := NewPackageStore()
	store.Publish(PackageEntry{Name: "p", Version: wir.Version{Major: 1}})
	store.Publish(PackageEntry{Name: "p", Version: wir.Version{Major: 2}})

	tasks, _, err := store.Resolve("p", wir.Version{Latest: true})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	_ = tasks
	e, ok := store.lookup("p", wir.Version{Latest: true})
	if !ok || e.Version.Major != 2 {
		t.Fatalf("expected latest to resolve to major 2, got %+v", e)
	}
}

func TestDataInfo(t *testing.T) {
	ds := NewDatasetStore()
	ds.Put(wir.Dataset{Name: "customers", Locations: []wir.Location{"site-a"}})
	s := NewServer(NewPackageStore(), ds, NewInfraStore(), nil)

	req := httptest.NewRequest(http.MethodGet, "/data/info?name=customers", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var got wir.Dataset
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Name != "customers" {
		t.Fatalf("got = %+v", got)
	}
}

func TestCapabilities(t *testing.T) {
	infra := NewInfraStore()
	infra.Register(Registration{Location: "site-a", RegistryAddress: "https://reg.site-a", CheckerAddress: "https://chk.site-a"})
	s := NewServer(NewPackageStore(), NewDatasetStore(), infra, nil)

	req := httptest.NewRequest(http.MethodGet, "/infra/capabilities/site-a", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		RegistryAddress string `json:"registry_address"`
		CheckerAddress  string `json:"checker_address"`
	}
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.RegistryAddress != "https://reg.site-a" {
		t.Fatalf("got = %+v", got)
	}
}

func TestGraphQL_Datasets(t *testing.T) {
	ds := NewDatasetStore()
	ds.Put(wir.Dataset{Name: "customers", Locations: []wir.Location{"site-a"}})
	s := NewServer(NewPackageStore(), ds, NewInfraStore(), nil)

	reqBody, _ := json.Marshal(graphqlRequest{
		Query:     `{ datasets(name: "customers") { name } }`,
		Variables: map[string]interface{}{"name": "customers"},
	})
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(string(reqBody)))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var got map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &got)
	data, ok := got["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing data field: %+v", got)
	}
	if _, ok := data["datasets"]; !ok {
		t.Fatalf("missing datasets key: %+v", data)
	}
}

func TestHealth(t *testing.T) {
	s := NewServer(NewPackageStore(), NewDatasetStore(), NewInfraStore(), nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
}
