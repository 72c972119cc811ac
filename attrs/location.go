package attrs

import (
	"fmt"
	"strings"

	"github.com/brane-run/brane/ast"
	"github.com/brane-run/brane/wir"
)

// locationAttrKeys names every attribute key the location-scope pass
// recognizes. The source's deprecated `on`-block construct is folded into
// the same surface as `#[on(...)]` (spec.md §9 open question: "a rewrite
// should pick one surface syntax" — this implementation keeps only the
// `#[attr]` form and drops the separate `on`-block).
var locationAttrKeys = map[string]bool{"on": true, "loc": true, "location": true}

// reasonEntry is one attribute site contributing to a (possibly empty)
// location intersection, preserved so an empty-intersection error can show
// its full reason trail (spec.md §4.4).
type reasonEntry struct {
	Range wir.Range
	Locs  []wir.Location
}

// Scopes maps every statement carrying a location-restricting attribute
// (transitively, including inherited block attributes) to its resolved
// allowed-locations set.
type Scopes struct {
	ByStmt map[*ast.Stmt][]wir.Location
}

// ComputeLocationScope walks prog, intersecting `on`/`loc`/`location`
// attributes along the enclosing chain starting from universe (every
// known location; pass nil to mean "unrestricted until the first
// attribute"). An empty intersection is an error carrying every
// contributing attribute site (spec.md §4.4).
func ComputeLocationScope(prog *ast.Program, universe []wir.Location) (*Scopes, []error) {
	sc := &Scopes{ByStmt: map[*ast.Stmt][]wir.Location{}}
	var errs []error
	walkLocationScope(prog.Stmts, nil, universe, sc, &errs)
	return sc, errs
}

func walkLocationScope(stmts []*ast.Stmt, trail []reasonEntry, universe []wir.Location, sc *Scopes, errs *[]error) {
	for _, s := range stmts {
		localTrail := trail
		for _, a := range s.Attrs {
			if !locationAttrKeys[a.Key] {
				continue
			}
			locs := attrLocations(a)
			localTrail = append(localTrail, reasonEntry{Range: a.Range, Locs: locs})
		}
		if len(localTrail) > 0 {
			result := intersect(universe, localTrail)
			sc.ByStmt[s] = result
			if result == nil && allRestricting(localTrail) {
				*errs = append(*errs, &Error{Range: s.Range, Msg: locationErrorMsg(localTrail)})
			}
		}
		switch s.Kind {
		case ast.StmtIf:
			walkLocationScope(s.Then, localTrail, universe, sc, errs)
			walkLocationScope(s.Else, localTrail, universe, sc, errs)
		case ast.StmtFor, ast.StmtWhile:
			walkLocationScope(s.Body, localTrail, universe, sc, errs)
		case ast.StmtFunc:
			walkLocationScope(s.FuncBody, localTrail, universe, sc, errs)
		case ast.StmtClass:
			for _, m := range s.Methods {
				walkLocationScope([]*ast.Stmt{m}, localTrail, universe, sc, errs)
			}
		}
		if s.Kind == ast.StmtLet || s.Kind == ast.StmtExpr {
			expr := s.Value
			if expr == nil {
				expr = s.X
			}
			if expr != nil && expr.Kind == ast.ExprParallel {
				for _, br := range expr.Branches {
					walkLocationScope(br.Body, localTrail, universe, sc, errs)
				}
			}
		}
	}
}

func attrLocations(a ast.Attribute) []wir.Location {
	var out []wir.Location
	for _, arg := range a.Args {
		if arg.Kind == ast.ExprLiteral && arg.LitKind == wir.KindString {
			out = append(out, wir.Location(arg.Str))
		} else if arg.Kind == ast.ExprIdent {
			out = append(out, wir.Location(arg.Name))
		}
	}
	return out
}

func intersect(universe []wir.Location, trail []reasonEntry) []wir.Location {
	current := universe
	first := current == nil
	for _, entry := range trail {
		if first {
			current = entry.Locs
			first = false
			continue
		}
		current = intersectTwo(current, entry.Locs)
	}
	return current
}

func intersectTwo(a, b []wir.Location) []wir.Location {
	set := map[wir.Location]bool{}
	for _, l := range a {
		set[l] = true
	}
	var out []wir.Location
	for _, l := range b {
		if set[l] {
			out = append(out, l)
		}
	}
	return out
}

func allRestricting(trail []reasonEntry) bool {
	for _, e := range trail {
		if len(e.Locs) == 0 {
			return false
		}
	}
	return len(trail) > 0
}

func locationErrorMsg(trail []reasonEntry) string {
	var sb strings.Builder
	sb.WriteString("no location satisfies every restriction in scope:")
	for _, e := range trail {
		sb.WriteString(fmt.Sprintf(" [%s: %v]", e.Range, e.Locs))
	}
	return sb.String()
}
