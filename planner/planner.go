// Package planner assigns a location to every Node edge of a compiled
// workflow and authorizes the result with every domain's policy checker
// before the VM ever runs it (spec.md §4.7).
package planner

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/brane-run/brane/checker"
	"github.com/brane-run/brane/emit"
	"github.com/brane-run/brane/wir"
)

// LocationIndex answers "where is dataset/intermediate-result X currently
// available?" on behalf of the planner's candidate-location intersection
// (spec.md §4.7 step 1). A production implementation is backed by the
// central registry's HTTP surface (SPEC_FULL.md §4.7); tests use an
// in-memory fake.
type LocationIndex interface {
	Locations(ctx context.Context, dataset string) ([]wir.Location, error)
}

// CheckerDenied is returned when every candidate location for some Node was
// denied by its involved checkers (spec.md §4.7: "If any checker denies,
// the planner aborts immediately and returns CheckerDenied{domain,
// reasons}"). Domain and Reasons are the last candidate's denying checker;
// the planner never reveals one checker's reasons to another, but is free
// to surface the final denial to its own caller.
type CheckerDenied struct {
	Domain  wir.Location
	Reasons []string
}

func (e *CheckerDenied) Error() string {
	return fmt.Sprintf("planner: %s denied: %v", e.Domain, e.Reasons)
}

// Planner plans workflows. A Planner is safe for concurrent use; its
// per-session memoisation cache is shared across every Plan call made
// through the same instance (construct one Planner per session).
type Planner struct {
	Registry LocationIndex
	Checker  checker.Client
	// Emitter records a checker_verdict event per Check call (spec.md §2
	// AMBIENT: "checker-verdict outcomes"). Left nil, verdicts simply aren't
	// reported; Plan itself never requires one.
	Emitter emit.Emitter

	memo sync.Map // "<domain>:<checker-workflow-hash>" -> checker.CheckReply
}

// New constructs a Planner.
func New(reg LocationIndex, ck checker.Client) *Planner {
	return &Planner{Registry: reg, Checker: ck}
}

// Plan returns a copy of wf with every Node edge's At populated and every
// required cross-domain dataset movement recorded as a wir.Transfer, or a
// *CheckerDenied error. wf itself is never mutated.
func (p *Planner) Plan(ctx context.Context, wf *wir.Workflow, appID string) (*wir.Workflow, error) {
	planned := cloneWorkflow(wf)

	if err := p.planGraph(ctx, planned, wir.MainFunc, planned.Graph); err != nil {
		return nil, err
	}
	for id, g := range planned.Funcs {
		if err := p.planGraph(ctx, planned, id, g); err != nil {
			return nil, err
		}
	}
	return planned, nil
}

func cloneWorkflow(wf *wir.Workflow) *wir.Workflow {
	out := *wf
	out.Graph = append([]wir.Edge(nil), wf.Graph...)
	out.Funcs = make(map[int][]wir.Edge, len(wf.Funcs))
	for id, g := range wf.Funcs {
		out.Funcs[id] = append([]wir.Edge(nil), g...)
	}
	return &out
}

// planGraph walks every edge reachable from g's entry (index 0), planning
// each Node edge in the topological order execution would visit them and
// tracking, per variable, which dataset/intermediate-result literal it was
// last assigned from (see provenance.go).
func (p *Planner) planGraph(ctx context.Context, wf *wir.Workflow, funcID int, g []wir.Edge) error {
	if len(g) == 0 {
		return nil
	}
	visited := make([]bool, len(g))
	return p.planFrom(ctx, wf, funcID, g, 0, map[int]string{}, visited)
}

func (p *Planner) planFrom(ctx context.Context, wf *wir.Workflow, funcID int, g []wir.Edge, idx int, prov map[int]string, visited []bool) error {
	if idx == wir.NoEdge || visited[idx] {
		return nil
	}
	visited[idx] = true
	edge := &g[idx]

	switch edge.EdgeKind {
	case wir.EdgeLinear:
		applyProvenance(edge.Instrs, prov)
		return p.planFrom(ctx, wf, funcID, g, edge.Next, prov, visited)

	case wir.EdgeNode:
		if err := p.planNode(ctx, wf, funcID, idx, edge, prov); err != nil {
			return err
		}
		return p.planFrom(ctx, wf, funcID, g, edge.Next, prov, visited)

	case wir.EdgeJoin:
		return p.planFrom(ctx, wf, funcID, g, edge.Next, prov, visited)

	case wir.EdgeBranch:
		if err := p.planFrom(ctx, wf, funcID, g, edge.TrueNext, copyProv(prov), visited); err != nil {
			return err
		}
		return p.planFrom(ctx, wf, funcID, g, edge.FalseNext, copyProv(prov), visited)

	case wir.EdgeParallel:
		for _, b := range edge.Branches {
			if err := p.planFrom(ctx, wf, funcID, g, b, copyProv(prov), visited); err != nil {
				return err
			}
		}
		return p.planFrom(ctx, wf, funcID, g, edge.Merge, prov, visited)

	case wir.EdgeLoop:
		if err := p.planFrom(ctx, wf, funcID, g, edge.Cond, copyProv(prov), visited); err != nil {
			return err
		}
		if err := p.planFrom(ctx, wf, funcID, g, edge.Body, copyProv(prov), visited); err != nil {
			return err
		}
		return p.planFrom(ctx, wf, funcID, g, edge.Next, prov, visited)

	case wir.EdgeCall:
		return p.planFrom(ctx, wf, funcID, g, edge.Next, prov, visited)

	case wir.EdgeReturn, wir.EdgeStop:
		return nil

	default:
		return fmt.Errorf("planner: unknown edge kind %v", edge.EdgeKind)
	}
}

func copyProv(prov map[int]string) map[int]string {
	out := make(map[int]string, len(prov))
	for k, v := range prov {
		out[k] = v
	}
	return out
}

// inputAvailability is one Node input whose value is a known dataset/
// intermediate-result reference, together with the locations it is
// currently available at.
type inputAvailability struct {
	varIdx  int
	dataset string
	locs    []wir.Location
}

// planNode implements spec.md §4.7's per-Node algorithm: enumerate
// candidates, insert transfers where data is missing, try candidates in
// deterministic order submitting every involved checker concurrently, and
// commit the first candidate every checker approves.
func (p *Planner) planNode(ctx context.Context, wf *wir.Workflow, funcID, idx int, edge *wir.Edge, prov map[int]string) error {
	if len(edge.Locs) == 0 {
		return fmt.Errorf("planner: task %q has no candidate locations", edge.Task)
	}

	var avail []inputAvailability
	for _, in := range edge.Input {
		dataset, ok := prov[in.Var]
		if !ok {
			continue // not a statically-known dataset reference; no location constraint
		}
		locs, err := p.Registry.Locations(ctx, dataset)
		if err != nil {
			return fmt.Errorf("planner: looking up %q: %w", dataset, err)
		}
		avail = append(avail, inputAvailability{varIdx: in.Var, dataset: dataset, locs: locs})
	}

	candidates := sortedLocations(edge.Locs)

	var lastDomain wir.Location
	var lastReasons []string
	for _, candidate := range candidates {
		var transfers []wir.Transfer
		for _, a := range avail {
			if containsLocation(a.locs, candidate) {
				continue
			}
			src, found := firstSorted(a.locs)
			if !found {
				return fmt.Errorf("planner: dataset %q is not available at any location", a.dataset)
			}
			transfers = append(transfers, wir.Transfer{Var: a.varIdx, Dataset: a.dataset, From: src, To: candidate})
		}

		denied, domain, reasons, err := p.checkCandidate(ctx, wf, funcID, idx, candidate, transfers)
		if err != nil {
			return err
		}
		if !denied {
			edge.At = &candidate
			edge.Transfers = transfers
			return nil
		}
		lastDomain, lastReasons = domain, reasons
	}
	return &CheckerDenied{Domain: lastDomain, Reasons: lastReasons}
}

// checkCandidate submits the checker workflow for candidate (the task
// site) and one for each transfer's source domain, concurrently, ANDing
// verdicts with short-circuit on first deny (spec.md §4.7 step 4).
func (p *Planner) checkCandidate(ctx context.Context, wf *wir.Workflow, funcID, idx int, candidate wir.Location, transfers []wir.Transfer) (denied bool, domain wir.Location, reasons []string, err error) {
	type pending struct {
		domain wir.Location
		cw     *checker.CheckerWorkflow
	}
	checks := make([]pending, 0, 1+len(transfers))

	taskCW, err := checker.ProjectNode(wf, funcID, idx)
	if err != nil {
		return false, "", nil, err
	}
	checks = append(checks, pending{candidate, taskCW})
	for _, t := range transfers {
		checks = append(checks, pending{t.From, checker.ProjectTransfer(t.Dataset, t.From, t.To)})
	}

	results := make([]checker.CheckReply, len(checks))
	done := make([]bool, len(checks))
	g, gctx := errgroup.WithContext(ctx)
	sctx, cancel := context.WithCancel(gctx)
	defer cancel()
	for i, c := range checks {
		i, c := i, c
		g.Go(func() error {
			reply, err := p.checkMemoized(sctx, c.domain, c.cw)
			if err != nil {
				return err
			}
			results[i], done[i] = reply, true
			if !reply.Verdict {
				cancel() // first deny: abandon the checks still in flight
			}
			return nil
		})
	}
	werr := g.Wait()
	for i, r := range results {
		if done[i] && !r.Verdict {
			return true, checks[i].domain, r.Reasons, nil
		}
	}
	if werr != nil {
		return false, "", nil, werr
	}
	return false, "", nil, nil
}

// checkMemoized caches a checker verdict by (domain, checker-workflow hash)
// for the Planner's lifetime (one session; spec.md §4.7, "The planner
// memoises per-session candidate verdicts to avoid re-asking for identical
// sub-workflows").
func (p *Planner) checkMemoized(ctx context.Context, domain wir.Location, cw *checker.CheckerWorkflow) (checker.CheckReply, error) {
	hash, err := cw.Hash()
	if err != nil {
		return checker.CheckReply{}, err
	}
	key := string(domain) + ":" + hash
	if v, ok := p.memo.Load(key); ok {
		return v.(checker.CheckReply), nil
	}
	reply, err := p.Checker.Check(ctx, domain, cw)
	if err != nil {
		return checker.CheckReply{}, err
	}
	if p.Emitter != nil {
		outcome := "deny"
		if reply.Verdict {
			outcome = "allow"
		}
		p.Emitter.Emit(emit.Event{Msg: "checker_verdict", Meta: map[string]interface{}{"domain": string(domain), "outcome": outcome}})
	}
	p.memo.Store(key, reply)
	return reply, nil
}

func containsLocation(locs []wir.Location, target wir.Location) bool {
	for _, l := range locs {
		if l == target {
			return true
		}
	}
	return false
}

// sortedLocations returns locs sorted alphabetically by identifier, the
// deterministic tie-break spec.md §4.7 requires ("candidate sorting is by
// identifier; a later candidate is only selected if all earlier candidates
// were denied").
func sortedLocations(locs []wir.Location) []wir.Location {
	out := append([]wir.Location(nil), locs...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func firstSorted(locs []wir.Location) (wir.Location, bool) {
	sorted := sortedLocations(locs)
	if len(sorted) == 0 {
		return "", false
	}
	return sorted[0], true
}
