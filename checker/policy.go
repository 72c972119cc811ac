package checker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// transferTaskPrefix names the synthetic TaskNode the planner projects for
// a dataset/intermediate-result transfer check (SPEC_FULL.md §4.7: "a
// transfer is itself subject to its own policy check"). It is not a real
// task in any package index; PolicySet recognizes it to apply dataset
// sharing rules instead of task rules.
const transferTaskPrefix = "transfer:"

// PolicySet is the reference Evaluator: a small, reloadable rule document
// a domain operator edits to control which tasks may run and which
// datasets may leave the domain (spec.md §4.9; spec.md §8, "denied
// transfer" scenario).
type PolicySet struct {
	mu sync.RWMutex
	doc policyDocument
}

type policyDocument struct {
	DeniedTasks       map[string]string `yaml:"denied_tasks"`
	NonShareable      map[string]string `yaml:"non_shareable_datasets"`
	RequireSignatures bool              `yaml:"require_signatures"`
}

// NewPolicySet builds a PolicySet from a YAML policy document (spec.md §6,
// "POST /v1/policies").
func NewPolicySet(yamlDoc []byte) (*PolicySet, error) {
	ps := &PolicySet{}
	if len(yamlDoc) == 0 {
		return ps, nil
	}
	if err := ps.ReloadPolicies(context.Background(), yamlDoc); err != nil {
		return nil, err
	}
	return ps, nil
}

// ReloadPolicies atomically replaces ps's rule document, implementing the
// optional interface Server.handlePolicies looks for.
func (ps *PolicySet) ReloadPolicies(_ context.Context, body []byte) error {
	var doc policyDocument
	if err := yaml.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("checker: parsing policy document: %w", err)
	}
	ps.mu.Lock()
	ps.doc = doc
	ps.mu.Unlock()
	return nil
}

// Evaluate implements Evaluator by walking every TaskNode reachable from
// cw.Root (and every handle's sub-graph) and applying ps's rules in order:
// denied tasks, then non-shareable transfers, then (if configured)
// signature validity.
func (ps *PolicySet) Evaluate(_ context.Context, cw *CheckerWorkflow, _ Claims) (bool, []string) {
	ps.mu.RLock()
	doc := ps.doc
	ps.mu.RUnlock()

	var reasons []string
	visit := func(n *CheckerNode) {
		walk(n, func(t *TaskNode) {
			if reason, ok := ruleFor(doc, t); ok {
				reasons = append(reasons, reason)
			}
		})
	}
	visit(cw.Root)
	for _, h := range cw.Handles {
		visit(h)
	}
	if len(reasons) > 0 {
		return false, reasons
	}
	return true, nil
}

func ruleFor(doc policyDocument, t *TaskNode) (string, bool) {
	if name, ok := strings.CutPrefix(t.Name, transferTaskPrefix); ok {
		if reason, denied := doc.NonShareable[name]; denied {
			if reason == "" {
				reason = fmt.Sprintf("%s is not shareable", name)
			}
			return reason, true
		}
		return "", false
	}
	if reason, denied := doc.DeniedTasks[t.Name]; denied {
		if reason == "" {
			reason = fmt.Sprintf("task %s is denied", t.Name)
		}
		return reason, true
	}
	if doc.RequireSignatures {
		for _, tag := range t.Tags {
			if tag.SignatureValid != nil && !*tag.SignatureValid {
				return fmt.Sprintf("invalid signature for %s.%s", tag.Owner, tag.Tag), true
			}
		}
	}
	return "", false
}

// walk visits every TaskNode reachable from n, following all continuation
// fields. Cond/Body/Branches/Next/TrueNext/FalseNext are each followed at
// most once per call since CheckerNode trees are finite by construction
// (Project never emits a cycle; Call edges reference handles instead).
func walk(n *CheckerNode, visit func(*TaskNode)) {
	if n == nil {
		return
	}
	if n.Task != nil {
		visit(n.Task)
	}
	walk(n.Next, visit)
	walk(n.TrueNext, visit)
	walk(n.FalseNext, visit)
	walk(n.Cond, visit)
	walk(n.Body, visit)
	for _, b := range n.Branches {
		walk(b, visit)
	}
}
