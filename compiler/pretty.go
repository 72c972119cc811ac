package compiler

import (
	"strconv"
	"strings"

	"github.com/brane-run/brane/ast"
	"github.com/brane-run/brane/wir"
)

// PrettyPrint renders prog back to BraneScript surface syntax, satisfying
// spec.md §8's round-trip law `parse ∘ pretty_print ∘ parse = parse`. It
// always emits the C-family BraneScript surface regardless of which
// dialect produced prog — Bakery, the sentence-oriented dialect, is
// parse-only and has no canonical writer.
//
// Every sub-expression is fully parenthesized rather than reconstructing
// minimal-parens output from operator precedence: correctness of the
// round-trip matters here, not readability of the rendered source.
func PrettyPrint(prog *ast.Program) string {
	var b strings.Builder
	for _, s := range prog.Stmts {
		writeStmt(&b, s, 0)
	}
	return b.String()
}

func writeIndent(b *strings.Builder, depth int) {
	for i := 0; i < depth; i++ {
		b.WriteString("  ")
	}
}

func writeBlock(b *strings.Builder, stmts []*ast.Stmt, depth int) {
	b.WriteString("{\n")
	for _, s := range stmts {
		writeStmt(b, s, depth+1)
	}
	writeIndent(b, depth)
	b.WriteString("}")
}

func writeStmt(b *strings.Builder, s *ast.Stmt, depth int) {
	writeIndent(b, depth)
	writeStmtBody(b, s, depth)
}

// writeStmtBody writes s without a leading indent, so an `else` clause's
// nested `if` can follow "else " on the same line.
func writeStmtBody(b *strings.Builder, s *ast.Stmt, depth int) {
	switch s.Kind {
	case ast.StmtLet:
		b.WriteString("let ")
		b.WriteString(s.Name)
		if s.Type != nil {
			b.WriteString(": ")
			b.WriteString(typeExprString(s.Type))
		}
		b.WriteString(" := ")
		b.WriteString(exprString(s.Value))
		b.WriteString(";\n")

	case ast.StmtAssign:
		b.WriteString(exprString(s.Target))
		b.WriteString(" := ")
		b.WriteString(exprString(s.Value))
		b.WriteString(";\n")

	case ast.StmtIf:
		b.WriteString("if ")
		b.WriteString(exprString(s.Cond))
		b.WriteString(" ")
		writeBlock(b, s.Then, depth)
		if s.Else != nil {
			b.WriteString(" else ")
			if len(s.Else) == 1 && s.Else[0].Kind == ast.StmtIf {
				writeStmtBody(b, s.Else[0], depth)
				return
			}
			writeBlock(b, s.Else, depth)
		}
		b.WriteString("\n")

	case ast.StmtFor:
		b.WriteString("for ")
		b.WriteString(s.Var)
		b.WriteString(" in ")
		b.WriteString(exprString(s.Iter))
		b.WriteString(" ")
		writeBlock(b, s.Body, depth)
		b.WriteString("\n")

	case ast.StmtWhile:
		b.WriteString("while ")
		b.WriteString(exprString(s.Cond))
		b.WriteString(" ")
		writeBlock(b, s.Body, depth)
		b.WriteString("\n")

	case ast.StmtReturn:
		b.WriteString("return")
		if s.HasValue {
			b.WriteString(" ")
			b.WriteString(exprString(s.X))
		}
		b.WriteString(";\n")

	case ast.StmtExpr:
		b.WriteString(exprString(s.X))
		b.WriteString(";\n")

	case ast.StmtFunc:
		b.WriteString("func ")
		b.WriteString(s.FuncName)
		b.WriteString(paramListString(s.Params))
		if s.ReturnType != nil {
			b.WriteString(" -> ")
			b.WriteString(typeExprString(s.ReturnType))
		}
		b.WriteString(" ")
		writeBlock(b, s.FuncBody, depth)
		b.WriteString("\n")

	case ast.StmtClass:
		b.WriteString("class ")
		b.WriteString(s.ClassName)
		b.WriteString(" {\n")
		for _, f := range s.Fields {
			writeIndent(b, depth+1)
			b.WriteString(f.Name)
			if f.Type != nil {
				b.WriteString(": ")
				b.WriteString(typeExprString(f.Type))
			}
			b.WriteString(";\n")
		}
		for _, m := range s.Methods {
			writeStmt(b, m, depth+1)
		}
		writeIndent(b, depth)
		b.WriteString("}\n")

	case ast.StmtImport:
		b.WriteString("import ")
		b.WriteString(quoteString(s.Package))
		b.WriteString(" ")
		b.WriteString(quoteString(s.Version))
		b.WriteString(";\n")

	case ast.StmtAttr, ast.StmtBlockAttr:
		if s.Kind == ast.StmtBlockAttr {
			b.WriteString("#![")
		} else {
			b.WriteString("#[")
		}
		b.WriteString(s.AttrKey)
		if len(s.AttrArgs) > 0 {
			b.WriteString("(")
			for i, a := range s.AttrArgs {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(exprString(a))
			}
			b.WriteString(")")
		}
		b.WriteString("];\n")
	}
}

func paramListString(params []ast.Param) string {
	var b strings.Builder
	b.WriteString("(")
	for i, p := range params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		if p.Type != nil {
			b.WriteString(": ")
			b.WriteString(typeExprString(p.Type))
		}
	}
	b.WriteString(")")
	return b.String()
}

func typeExprString(t *ast.TypeExpr) string {
	switch t.Kind {
	case wir.KindArray:
		return "Array(" + typeExprString(t.Elem) + ")"
	case wir.KindClass:
		return t.ClassName
	default:
		return t.Kind.String()
	}
}

func exprString(e *ast.Expr) string {
	switch e.Kind {
	case ast.ExprIdent:
		return e.Name
	case ast.ExprLiteral:
		return literalString(e)
	case ast.ExprArray:
		var b strings.Builder
		b.WriteString("[")
		for i, el := range e.Elems {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(exprString(el))
		}
		b.WriteString("]")
		return b.String()
	case ast.ExprBinary:
		return "(" + exprString(e.Left) + " " + string(e.Op) + " " + exprString(e.Right) + ")"
	case ast.ExprUnary:
		if e.Op == wir.Neg {
			return "(-" + exprString(e.X) + ")"
		}
		return "(!" + exprString(e.X) + ")"
	case ast.ExprProject:
		return "(" + exprString(e.X) + ")." + e.Field
	case ast.ExprCall:
		var b strings.Builder
		b.WriteString(e.Callee)
		b.WriteString("(")
		for i, a := range e.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(exprString(a))
		}
		b.WriteString(")")
		return b.String()
	case ast.ExprParallel:
		var b strings.Builder
		b.WriteString("parallel")
		if len(e.Shared) > 0 {
			b.WriteString("[")
			b.WriteString(strings.Join(e.Shared, ", "))
			b.WriteString("]")
		}
		b.WriteString(" {\n")
		for _, br := range e.Branches {
			b.WriteString("  ")
			b.WriteString("{\n")
			for _, s := range br.Body {
				writeStmt(&b, s, 2)
			}
			b.WriteString("  }\n")
		}
		b.WriteString("}")
		if e.HasStrategy {
			b.WriteString(" merge ")
			b.WriteString(e.Strategy.String())
		}
		return b.String()
	default:
		return ""
	}
}

func literalString(e *ast.Expr) string {
	switch e.LitKind {
	case wir.KindBool:
		if e.Bool {
			return "true"
		}
		return "false"
	case wir.KindInt:
		return strconv.FormatInt(e.Int, 10)
	case wir.KindReal:
		s := strconv.FormatFloat(e.Real, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	case wir.KindString:
		return quoteString(e.Str)
	default:
		return ""
	}
}

func quoteString(s string) string {
	var b strings.Builder
	b.WriteString(`"`)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteString(`"`)
	return b.String()
}
