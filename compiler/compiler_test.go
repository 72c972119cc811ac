package compiler

import (
	"testing"

	"github.com/brane-run/brane/lexer"
	"github.com/brane-run/brane/parser"
	"github.com/brane-run/brane/wir"
)

type fakePackages struct{}

func (fakePackages) Resolve(pkg string, _ wir.Version) ([]wir.TaskDef, []wir.ClassDef, error) {
	return []wir.TaskDef{{
		Name:             "hello_world",
		Package:          pkg,
		ReturnType:       wir.Str(),
		AllowedLocations: []wir.Location{"site-a"},
	}}, nil, nil
}

func TestCompile_HelloWorld(t *testing.T) {
	src := `import "hello_world" "1.0.0"; return hello_world();`
	res, errs := Compile(src, Options{
		Dialect:  lexer.DialectBraneScript,
		File:     "hello.bs",
		Packages: fakePackages{},
		Universe: []wir.Location{"site-a", "site-b"},
	})
	if len(errs) > 0 {
		t.Fatalf("Compile: %v", errs)
	}
	if len(res.Workflow.Graph) != 2 {
		t.Fatalf("expected Node + Return, got %d edges: %+v", len(res.Workflow.Graph), res.Workflow.Graph)
	}
	if res.Workflow.Graph[0].EdgeKind != wir.EdgeNode {
		t.Fatalf("expected first edge to be a Node, got %v", res.Workflow.Graph[0].EdgeKind)
	}
}

func TestCompile_EmptyProgramIsSingleStop(t *testing.T) {
	res, errs := Compile("", Options{Dialect: lexer.DialectBraneScript, File: "empty.bs"})
	if len(errs) > 0 {
		t.Fatalf("Compile: %v", errs)
	}
	if len(res.Workflow.Graph) != 1 || res.Workflow.Graph[0].EdgeKind != wir.EdgeStop {
		t.Fatalf("expected a single Stop edge, got %+v", res.Workflow.Graph)
	}
}

func TestPrettyPrint_RoundTrip(t *testing.T) {
	src := `let x: Int := 1;
if x < 2 {
  x := x + 1;
} else if x > 10 {
  return x;
} else {
  return 0;
}
func add(a: Int, b: Int) -> Int {
  return a + b;
}
let y := parallel[x] {
  { x; }
  { add(x, 1); }
} merge sum;
return y;
`
	opts := parser.Options{Dialect: lexer.DialectBraneScript, File: "t.bs"}
	prog1, errs := parser.Parse(src, opts)
	if len(errs) > 0 {
		t.Fatalf("first parse: %v", errs)
	}
	printed := PrettyPrint(prog1)
	prog2, errs := parser.Parse(printed, opts)
	if len(errs) > 0 {
		t.Fatalf("reparse of pretty-printed source: %v\n---\n%s", errs, printed)
	}
	if len(prog1.Stmts) != len(prog2.Stmts) {
		t.Fatalf("statement count changed: %d vs %d\n---\n%s", len(prog1.Stmts), len(prog2.Stmts), printed)
	}
	printedAgain := PrettyPrint(prog2)
	if printed != printedAgain {
		t.Fatalf("pretty-printing is not stable after one reparse:\n---%s\n---\n%s", printed, printedAgain)
	}
}
