package session

import (
	"errors"
	"testing"
	"time"

	"github.com/brane-run/brane/snippet"
)

func TestRegistry_CreateGetDelete(t *testing.T) {
	r := NewRegistry(time.Hour, time.Hour)
	defer r.Close()

	s := r.Create("app-1", &snippet.CompileState{})
	if s.AppID != "app-1" {
		t.Fatalf("AppID = %q", s.AppID)
	}
	if got, ok := r.Get("app-1"); !ok || got != s {
		t.Fatalf("Get: got (%v, %v)", got, ok)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}

	r.Delete("app-1")
	if _, ok := r.Get("app-1"); ok {
		t.Fatalf("session should be gone after Delete")
	}
}

func TestSession_CompileSerializesAndTouches(t *testing.T) {
	r := NewRegistry(time.Hour, time.Hour)
	defer r.Close()

	s := r.Create("app-1", &snippet.CompileState{})
	before := s.idleSince(time.Now().Add(time.Minute))

	sawErr := errors.New("boom")
	err := s.Compile(func(cs *snippet.CompileState) error {
		if cs == nil {
			t.Fatalf("expected non-nil CompileState")
		}
		return sawErr
	})
	if err != sawErr {
		t.Fatalf("Compile: got %v, want %v", err, sawErr)
	}

	after := s.idleSince(time.Now().Add(time.Minute))
	if after >= before {
		t.Fatalf("lastTouched should have advanced: before=%v after=%v", before, after)
	}
}

func TestRegistry_EvictsIdleSessions(t *testing.T) {
	r := NewRegistry(10*time.Millisecond, 5*time.Millisecond)
	defer r.Close()

	r.Create("app-1", &snippet.CompileState{})
	time.Sleep(100 * time.Millisecond)

	if _, ok := r.Get("app-1"); ok {
		t.Fatalf("expected app-1 to be evicted as idle")
	}
}
