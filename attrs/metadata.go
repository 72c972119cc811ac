package attrs

import (
	"fmt"
	"strings"

	"github.com/brane-run/brane/ast"
	"github.com/brane-run/brane/wir"
)

// attrTag, attrMetadata, attrWorkflowTag and attrWorkflowMd name the
// per-node and workflow-level tag attributes
// (spec.md §4.4).
const (
	attrTag         = "tag"
	attrMetadata    = "metadata"
	attrWorkflowTag = "wf_tag"
	attrWorkflowMd  = "wf_metadata"
)

// Metadata is the accumulated node-level and workflow-level tag state
// produced by the metadata pass.
type Metadata struct {
	ByStmt   map[*ast.Stmt]wir.Metadata
	Workflow wir.WorkflowMetadata
}

// ComputeMetadata walks prog accumulating `tag`/`metadata` attributes into
// per-statement wir.Metadata, and `wf_tag`/`wf_metadata` into
// workflow-level metadata. Tags not containing `.` and duplicate tags
// produce warnings (spec.md §4.4).
func ComputeMetadata(prog *ast.Program) (*Metadata, []Warning) {
	md := &Metadata{ByStmt: map[*ast.Stmt]wir.Metadata{}}
	var warns []Warning
	seen := map[string]bool{}
	walkMetadata(prog.Stmts, md, &warns, seen)
	return md, warns
}

func walkMetadata(stmts []*ast.Stmt, md *Metadata, warns *[]Warning, seen map[string]bool) {
	for _, s := range stmts {
		var tags []wir.Tag
		for _, a := range s.Attrs {
			switch a.Key {
			case attrTag, attrMetadata:
				for _, t := range attrTagStrings(a) {
					tags = append(tags, validateTag(t, a.Range, warns, seen))
				}
			case attrWorkflowTag, attrWorkflowMd:
				for _, t := range attrTagStrings(a) {
					md.Workflow.Tags = append(md.Workflow.Tags, validateTag(t, a.Range, warns, seen))
				}
			}
		}
		if len(tags) > 0 {
			md.ByStmt[s] = wir.Metadata{Tags: tags}
		}
		switch s.Kind {
		case ast.StmtIf:
			walkMetadata(s.Then, md, warns, seen)
			walkMetadata(s.Else, md, warns, seen)
		case ast.StmtFor, ast.StmtWhile:
			walkMetadata(s.Body, md, warns, seen)
		case ast.StmtFunc:
			walkMetadata(s.FuncBody, md, warns, seen)
		case ast.StmtClass:
			for _, m := range s.Methods {
				walkMetadata([]*ast.Stmt{m}, md, warns, seen)
			}
		}
		expr := s.Value
		if expr == nil {
			expr = s.X
		}
		if expr != nil && expr.Kind == ast.ExprParallel {
			for _, br := range expr.Branches {
				walkMetadata(br.Body, md, warns, seen)
			}
		}
	}
}

func attrTagStrings(a ast.Attribute) []string {
	var out []string
	for _, arg := range a.Args {
		if arg.Kind == ast.ExprLiteral && arg.LitKind == wir.KindString {
			out = append(out, arg.Str)
		} else if arg.Kind == ast.ExprIdent {
			out = append(out, arg.Name)
		}
	}
	return out
}

func validateTag(raw string, r wir.Range, warns *[]Warning, seen map[string]bool) wir.Tag {
	if !strings.Contains(raw, ".") {
		*warns = append(*warns, Warning{Range: r, Msg: fmt.Sprintf("tag %q should be of the form owner.tag", raw)})
	}
	if seen[raw] {
		*warns = append(*warns, Warning{Range: r, Msg: fmt.Sprintf("duplicate tag %q", raw)})
	}
	seen[raw] = true
	owner, tag := raw, ""
	if idx := strings.Index(raw, "."); idx >= 0 {
		owner, tag = raw[:idx], raw[idx+1:]
	}
	return wir.Tag{Owner: owner, Tag: tag}
}
