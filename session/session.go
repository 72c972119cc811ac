// Package session is the process-wide session registry (spec.md §5): each
// client's REPL-like interaction — its accreted compile state, its planned
// workflow, and its VM — keyed by app_id, evicted by an idle-timeout GC.
package session

import (
	"sync"
	"time"

	"github.com/brane-run/brane/snippet"
	"github.com/brane-run/brane/vm"
	"github.com/brane-run/brane/wir"
)

// Session is one client's interaction: its own accreted CompileState (so
// successive REPL snippets build on each other, spec.md §4.6) and, once a
// workflow has been planned, the VM running it. A Session owns no network
// connection; transport/drv's gRPC service looks one up by app_id per RPC.
type Session struct {
	AppID string

	mu          sync.Mutex
	compile     *snippet.CompileState
	vm          *vm.VM
	planned     *wir.Workflow
	lastTouched time.Time
}

func newSession(appID string, cs *snippet.CompileState) *Session {
	return &Session{AppID: appID, compile: cs, lastTouched: time.Now()}
}

// Compile runs fn with this session's CompileState held under lock, so two
// concurrent snippet submissions for the same app_id serialize instead of
// racing on the accreted SymTable.
func (s *Session) Compile(fn func(*snippet.CompileState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTouched = time.Now()
	return fn(s.compile)
}

// SetVM installs the VM for the most recently planned workflow, replacing
// any previous one (a session runs one workflow at a time).
func (s *Session) SetVM(wf *wir.Workflow, v *vm.VM) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.planned = wf
	s.vm = v
	s.lastTouched = time.Now()
}

// VM returns the session's current VM, or nil if none has been planned yet.
func (s *Session) VM() *vm.VM {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vm
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastTouched)
}

// Registry is the process-wide `sessions: map<app_id, (vm, last_touched)>`
// spec.md §5 describes, protected by a top-level RWMutex guarding
// insertion/eviction and a per-Session mutex guarding that session's own
// state, so two sessions never contend on each other's compile/VM state
// (spec.md §5: "fine-grained per-entry locking... no global lock is held
// across an RPC").
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	idleTimeout time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewRegistry constructs an empty Registry and starts its GC goroutine,
// which evicts sessions idle past idleTimeout on every sweep tick.
func NewRegistry(idleTimeout, sweep time.Duration) *Registry {
	r := &Registry{
		sessions:    map[string]*Session{},
		idleTimeout: idleTimeout,
		stop:        make(chan struct{}),
	}
	go r.gcLoop(sweep)
	return r
}

// Create starts a new session for appID with a fresh CompileState,
// replacing any existing session of the same id (a client re-creating its
// session starts over, matching `drv`'s `CreateSession() -> {uuid}` always
// minting a new id rather than resuming one).
func (r *Registry) Create(appID string, cs *snippet.CompileState) *Session {
	s := newSession(appID, cs)
	r.mu.Lock()
	r.sessions[appID] = s
	r.mu.Unlock()
	return s
}

// Get looks up a session by app_id. ok is false if it does not exist or has
// already been evicted.
func (r *Registry) Get(appID string) (s *Session, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok = r.sessions[appID]
	return s, ok
}

// Delete removes a session immediately (an explicit client close, as
// opposed to idle eviction).
func (r *Registry) Delete(appID string) {
	r.mu.Lock()
	delete(r.sessions, appID)
	r.mu.Unlock()
}

// Len reports the number of live sessions, for metrics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close stops the GC goroutine. Existing sessions are left in place; this
// only stops future eviction sweeps.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *Registry) gcLoop(sweep time.Duration) {
	ticker := time.NewTicker(sweep)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case now := <-ticker.C:
			r.evictIdle(now)
		}
	}
}

func (r *Registry) evictIdle(now time.Time) {
	r.mu.RLock()
	var dead []string
	for id, s := range r.sessions {
		if s.idleSince(now) > r.idleTimeout {
			dead = append(dead, id)
		}
	}
	r.mu.RUnlock()
	if len(dead) == 0 {
		return
	}
	r.mu.Lock()
	for _, id := range dead {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
}
