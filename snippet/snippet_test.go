package snippet

import (
	"testing"

	"github.com/brane-run/brane/lexer"
	"github.com/brane-run/brane/wir"
)

func TestCompile_AccretesAcrossEntries(t *testing.T) {
	cs := &CompileState{Dialect: lexer.DialectBraneScript}

	res1, errs := Compile(cs, "func f() { return 1; }\n", "repl-1.bs")
	if len(errs) > 0 {
		t.Fatalf("entry 1: %v", errs)
	}
	if len(res1.Workflow.Graph) != 1 || res1.Workflow.Graph[0].EdgeKind != wir.EdgeStop {
		t.Fatalf("entry 1: expected empty <main> (single Stop), got %+v", res1.Workflow.Graph)
	}
	if len(res1.Workflow.Funcs) != 1 {
		t.Fatalf("entry 1: expected f's body to be lowered, got %+v", res1.Workflow.Funcs)
	}

	res2, errs := Compile(cs, "return f();\n", "repl-2.bs")
	if len(errs) > 0 {
		t.Fatalf("entry 2: %v", errs)
	}
	if len(res2.Workflow.Funcs) != 1 {
		t.Fatalf("entry 2: expected f to still be reachable from call-1 state, got %+v", res2.Workflow.Funcs)
	}
	foundCall := false
	for _, e := range res2.Workflow.Graph {
		if e.EdgeKind == wir.EdgeCall {
			foundCall = true
		}
	}
	if !foundCall {
		t.Fatalf("entry 2: expected <main> to call f, got %+v", res2.Workflow.Graph)
	}
}

func TestCompile_StateUnchangedOnError(t *testing.T) {
	cs := &CompileState{Dialect: lexer.DialectBraneScript}
	if _, errs := Compile(cs, "func f() { return 1; }\n", "repl-1.bs"); len(errs) > 0 {
		t.Fatalf("entry 1: %v", errs)
	}
	before := cs.offset

	if _, errs := Compile(cs, "return g();\n", "repl-2.bs"); len(errs) == 0 {
		t.Fatalf("entry 2: expected an unresolved-call error calling undeclared g")
	}
	if cs.offset != before {
		t.Fatalf("offset advanced despite a failed compile: %d != %d", cs.offset, before)
	}

	res3, errs := Compile(cs, "return f();\n", "repl-3.bs")
	if len(errs) > 0 {
		t.Fatalf("entry 3 (retry after failure): %v", errs)
	}
	if len(res3.Workflow.Funcs) != 1 {
		t.Fatalf("entry 3: f should still be reachable after the failed entry 2, got %+v", res3.Workflow.Funcs)
	}
}
