package registry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brane-run/brane/wir"
)

func newCentralAPI(t *testing.T, ds wir.Dataset, capsByLoc map[string]Capabilities) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/data/info", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ds)
	})
	mux.HandleFunc("/infra/capabilities/", func(w http.ResponseWriter, r *http.Request) {
		loc := r.URL.Path[len("/infra/capabilities/"):]
		caps, ok := capsByLoc[loc]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(caps)
	})
	return httptest.NewServer(mux)
}

func TestLocations(t *testing.T) {
	ds := wir.Dataset{Name: "customers", Locations: []wir.Location{"site-a", "site-b"}}
	api := newCentralAPI(t, ds, nil)
	defer api.Close()

	c := NewClient(api.URL)
	locs, err := c.Locations(context.Background(), "customers")
	if err != nil {
		t.Fatalf("Locations: %v", err)
	}
	if len(locs) != 2 || locs[0] != "site-a" || locs[1] != "site-b" {
		t.Fatalf("Locations = %v", locs)
	}
}

func TestLocations_CachesWithinTTL(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/data/info", func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(wir.Dataset{Name: "d", Locations: []wir.Location{"site-a"}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL)
	c.TTL = time.Hour
	for i := 0; i < 3; i++ {
		if _, err := c.Locations(context.Background(), "d"); err != nil {
			t.Fatalf("Locations: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one upstream fetch within TTL, got %d", calls)
	}
}

func TestStage_AlreadyAtTarget(t *testing.T) {
	ds := wir.Dataset{Name: "customers", Locations: []wir.Location{"site-a", "site-b"}}
	api := newCentralAPI(t, ds, nil)
	defer api.Close()

	c := NewClient(api.URL)
	v := wir.DataRef("customers")
	resolved, err := c.Stage(context.Background(), v, "site-a")
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if resolved.Origin != "site-a" {
		t.Fatalf("Origin = %q, want site-a", resolved.Origin)
	}
}

func TestStage_TransfersFromFirstAlphabeticalSource(t *testing.T) {
	ds := wir.Dataset{Name: "customers", Locations: []wir.Location{"site-b", "site-a"}}

	var transferred bool
	regA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte("payload-bytes"))
			return
		}
		http.NotFound(w, r)
	}))
	defer regA.Close()

	regC := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			data, _ := io.ReadAll(r.Body)
			if string(data) != "payload-bytes" {
				t.Errorf("unexpected payload: %q", data)
			}
			transferred = true
			w.WriteHeader(http.StatusCreated)
			return
		}
		http.NotFound(w, r)
	}))
	defer regC.Close()

	api := newCentralAPI(t, ds, map[string]Capabilities{
		"site-a": {RegistryAddress: regA.URL},
		"site-c": {RegistryAddress: regC.URL},
	})
	defer api.Close()

	c := NewClient(api.URL)
	v := wir.DataRef("customers")
	resolved, err := c.Stage(context.Background(), v, "site-c")
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if resolved.Origin != "site-c" {
		t.Fatalf("Origin = %q, want site-c", resolved.Origin)
	}
	if !transferred {
		t.Fatalf("expected a transfer to have run")
	}
}

func TestCheckerAddress(t *testing.T) {
	api := newCentralAPI(t, wir.Dataset{}, map[string]Capabilities{
		"site-a": {CheckerAddress: "https://checker.site-a.example"},
	})
	defer api.Close()

	c := NewClient(api.URL)
	addr, err := c.CheckerAddress(context.Background(), "site-a")
	if err != nil {
		t.Fatalf("CheckerAddress: %v", err)
	}
	if addr != "https://checker.site-a.example" {
		t.Fatalf("CheckerAddress = %q", addr)
	}
}
