// Package compiler is the top-level facade wiring the front end together:
// lexer (via parser) -> parser -> resolver -> type checker -> attribute/
// location/metadata passes -> WIR lowering (spec.md §4.1-4.5). It is the
// one-shot entry point; the REPL's incremental entry point is package
// snippet, which re-wires the same passes around an accreted CompileState
// (spec.md §4.6).
package compiler

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

// Options configures one Compile call.
type Options struct {
	Dialect lexer.Dialect
	File    string
	// Packages resolves `import` statements to task/class definitions.
	// May be nil for programs that import nothing.
	Packages resolve.PackageIndex
	// Universe is the full set of known locations, used as the starting
	// point for the location-scope pass's intersection (spec.md §4.4).
	Universe []wir.Location
}

// Result is a successful compile's output: the lowered WIR plus every
// non-fatal finding from the attribute and type-check passes.
type Result struct {
	Workflow      *wir.Workflow
	FoldWarnings  []attrs.Warning
	MetaWarnings  []attrs.Warning
	TypeWarnings  []typecheck.Warning
}

// Compile runs the full front end over src, producing a WIR ready for the
// planner, or a non-empty list of errors from whichever pass failed first.
// Unlike the snippet compiler, each call starts from a fresh, empty symbol
// table.
func Compile(src string, opts Options) (*Result, []error) {
	prog, errs := parser.Parse(src, parser.Options{Dialect: opts.Dialect, File: opts.File})
	if len(errs) > 0 {
		return nil, errs
	}

	res, errs := resolve.New(opts.Packages).Resolve(prog)
	if len(errs) > 0 {
		return nil, errs
	}

	tcRes, errs := typecheck.New(res).Check(prog)
	if len(errs) > 0 {
		return nil, errs
	}

	foldWarns := attrs.Fold(prog)

	locScopes, errs := attrs.ComputeLocationScope(prog, opts.Universe)
	if len(errs) > 0 {
		return nil, errs
	}

	mdata, metaWarns := attrs.ComputeMetadata(prog)

	wf, errs := lower.Lower(opts.File, prog, res, tcRes, locScopes, mdata)
	if len(errs) > 0 {
		return nil, errs
	}

	if err := wf.ValidateEdgeIndices(); err != nil {
		return nil, []error{fmt.Errorf("compiler: lowered WIR failed validation: %w", err)}
	}

	return &Result{
		Workflow:     wf,
		FoldWarnings: foldWarns,
		MetaWarnings: metaWarns,
		TypeWarnings: tcRes.Warnings,
	}, nil
}
