package reg

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brane-run/brane/checker"
	"github.com/brane-run/brane/wir"
)

type fakeChecker struct {
	reply checker.CheckReply
	err   error
}

func (f *fakeChecker) Check(ctx context.Context, domain wir.Location, cw *checker.CheckerWorkflow) (checker.CheckReply, error) {
	return f.reply, f.err
}

func TestInfoAndDownload(t *testing.T) {
	store := NewMemStore()
	store.Seed(wir.Dataset{Name: "customers"}, []byte("payload"))
	s := NewServer("site-a", store, NewMemStore(), &fakeChecker{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/data/info?name=customers", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("info: status %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/data/download/customers", nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "payload" {
		t.Fatalf("download: status %d body %q", rec.Code, rec.Body.String())
	}
}

func TestCheck_DeniedSurfacesReasons(t *testing.T) {
	store := NewMemStore()
	store.Seed(wir.Dataset{Name: "customers"}, []byte("payload"))
	s := NewServer("site-a", store, NewMemStore(), &fakeChecker{
		reply: checker.CheckReply{Verdict: false, Reasons: []string{"not authorized"}},
	}, nil)

	body, _ := json.Marshal(CheckRequest{UseCase: "train", Workflow: &checker.CheckerWorkflow{}})
	req := httptest.NewRequest(http.MethodPost, "/data/check/customers", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var reply CheckReply
	json.Unmarshal(rec.Body.Bytes(), &reply)
	if reply.Verdict || len(reply.Reasons) != 1 {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestStreamRoundTrip(t *testing.T) {
	store := NewMemStore()
	store.Seed(wir.Dataset{Name: "customers"}, []byte("original-bytes"))
	s := NewServer("site-a", store, NewMemStore(), &fakeChecker{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/data/customers/stream", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "original-bytes" {
		t.Fatalf("stream get: status %d body %q", rec.Code, rec.Body.String())
	}

	putReq := httptest.NewRequest(http.MethodPut, "/data/new-dataset/stream", strings.NewReader("new-bytes"))
	putRec := httptest.NewRecorder()
	s.ServeHTTP(putRec, putReq)
	if putRec.Code != http.StatusCreated {
		t.Fatalf("stream put: status %d", putRec.Code)
	}
	if d, ok := store.Info("new-dataset"); !ok || d.Name != "new-dataset" {
		t.Fatalf("new-dataset not recorded: %+v, %v", d, ok)
	}
}
