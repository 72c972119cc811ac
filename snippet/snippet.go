// Package snippet is the REPL's incremental compiler entry point: it
// re-wires the same front-end passes package compiler uses one-shot, but
// around a CompileState that accretes across successive calls (spec.md
// §4.6, spec.md §8 scenario 4: "snippet accretion").
package snippet

import (
	"fmt"

	"github.com/brane-run/brane/attrs"
	"github.com/brane-run/brane/lexer"
	"github.com/brane-run/brane/lower"
	"github.com/brane-run/brane/parser"
	"github.com/brane-run/brane/resolve"
	"github.com/brane-run/brane/typecheck"
	"github.com/brane-run/brane/wir"
)

// CompileState is the REPL session's persistent compile state: the line
// offset new ranges get shifted by, the accreted SymTable, the growing name
// maps, and every function body lowered so far. The zero value is ready for
// a session's first snippet.
type CompileState struct {
	Dialect  lexer.Dialect
	Packages resolve.PackageIndex
	Universe []wir.Location

	offset     int
	sym        wir.SymTable
	topVars    map[string]int
	topFuncs   map[string]int
	topClasses map[string]int
	funcGraphs map[int][]wir.Edge
}

// Result is one snippet's compile output: `<main>`'s lowered graph, already
// merged with every function body known to the session so the VM can call
// into a function declared by an earlier entry.
type Result struct {
	Workflow     *wir.Workflow
	FoldWarnings []attrs.Warning
	MetaWarnings []attrs.Warning
	TypeWarnings []typecheck.Warning
}

// Compile lowers one REPL entry against cs. On success cs is advanced in
// place (the new offset, the accreted SymTable, the growing name maps and
// function bodies); on error cs is left exactly as it was (spec.md §4.6).
func Compile(cs *CompileState, src, file string) (*Result, []error) {
	prog, errs := parser.Parse(src, parser.Options{Dialect: cs.Dialect, File: file})
	if len(errs) > 0 {
		return nil, errs
	}
	shiftProgram(prog, cs.offset)

	r := resolve.NewSnippet(cs.Packages, cs.sym, cs.topVars, cs.topFuncs, cs.topClasses)
	res, errs := r.Resolve(prog)
	if len(errs) > 0 {
		return nil, errs
	}

	tcRes, errs := typecheck.New(res).Check(prog)
	if len(errs) > 0 {
		return nil, errs
	}

	foldWarns := attrs.Fold(prog)

	locScopes, errs := attrs.ComputeLocationScope(prog, cs.Universe)
	if len(errs) > 0 {
		return nil, errs
	}

	mdata, metaWarns := attrs.ComputeMetadata(prog)

	wf, errs := lower.Lower("<main>", prog, res, tcRes, locScopes, mdata)
	if len(errs) > 0 {
		return nil, errs
	}

	if err := wf.ValidateEdgeIndices(); err != nil {
		return nil, []error{fmt.Errorf("snippet: lowered WIR failed validation: %w", err)}
	}

	// Every function this or an earlier snippet declared must stay callable
	// from <main>: a prior entry's body fills in any index this lowering
	// didn't redeclare, and a redeclaration (a later entry shadowing an
	// earlier `func f`) keeps this lowering's body instead.
	for idx, edges := range cs.funcGraphs {
		if _, ok := wf.Funcs[idx]; !ok {
			wf.Funcs[idx] = edges
		}
	}

	cs.offset += countLines(src)
	cs.sym = wf.Sym
	cs.topVars = res.TopVars
	cs.topFuncs = res.TopFuncs
	cs.topClasses = res.TopClasses
	if cs.funcGraphs == nil {
		cs.funcGraphs = map[int][]wir.Edge{}
	}
	for idx, edges := range wf.Funcs {
		cs.funcGraphs[idx] = edges
	}

	return &Result{
		Workflow:     wf,
		FoldWarnings: foldWarns,
		MetaWarnings: metaWarns,
		TypeWarnings: tcRes.Warnings,
	}, nil
}

func countLines(src string) int {
	n := 1
	for _, r := range src {
		if r == '\n' {
			n++
		}
	}
	return n
}
