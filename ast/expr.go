// Package ast defines the untyped syntax tree produced by the parser
// (spec.md §3, "AST"). Expr and Stmt are tagged unions: a Kind
// discriminator plus the fields relevant to that kind, mirroring the WIR's
// own sum-type representation rather than an interface-per-node-type
// hierarchy (spec.md §9, "Polymorphism via sum types").
package ast

import (
	"github.com/brane-run/brane/wir"
)

// ExprKind discriminates the Expr sum type.
type ExprKind int

const (
	ExprIdent ExprKind = iota
	ExprLiteral
	ExprArray
	ExprBinary
	ExprUnary
	ExprProject
	ExprCall
	ExprParallel
)

func (k ExprKind) String() string {
	switch k {
	case ExprIdent:
		return "Ident"
	case ExprLiteral:
		return "Literal"
	case ExprArray:
		return "Array"
	case ExprBinary:
		return "Binary"
	case ExprUnary:
		return "Unary"
	case ExprProject:
		return "Project"
	case ExprCall:
		return "Call"
	case ExprParallel:
		return "Parallel"
	default:
		return "Unknown"
	}
}

// ParallelBranch is one branch of a parallel block: a statement sequence
// evaluated concurrently with its siblings.
type ParallelBranch struct {
	Name  string // optional, empty if anonymous
	Body  []*Stmt
	Range wir.Range
}

// Expr is one node of the expression tree. Only the fields relevant to Kind
// are populated.
type Expr struct {
	Range wir.Range
	Kind  ExprKind

	// Ident.
	Name string

	// Literal. LitKind is one of KindBool/KindInt/KindReal/KindString.
	LitKind wir.DataKind
	Bool    bool
	Int     int64
	Real    float64
	Str     string

	// Array.
	Elems []*Expr

	// Binary / Unary. Op is an arithmetic/logical/comparison operator
	// spelled the same as wir.Arith.
	Op          wir.Arith
	Left, Right *Expr // Binary
	X           *Expr // Unary operand, or Project receiver

	// Project: X.Field
	Field string

	// Call: Callee(Args...). Callee is an unresolved name until the
	// resolver rewrites it to a definition index.
	Callee string
	Args   []*Expr

	// Parallel: parallel[shared...] { branch; branch; ... } merge <strategy>
	Branches    []ParallelBranch
	Shared      []string
	Strategy    wir.MergeStrategy
	HasStrategy bool
}

// NewIdent, NewCall and friends are light constructors used by the parser;
// most fields are still set directly on the literal for brevity.

func NewIdent(name string, r wir.Range) *Expr {
	return &Expr{Kind: ExprIdent, Name: name, Range: r}
}

func NewBoolLit(v bool, r wir.Range) *Expr {
	return &Expr{Kind: ExprLiteral, LitKind: wir.KindBool, Bool: v, Range: r}
}

func NewIntLit(v int64, r wir.Range) *Expr {
	return &Expr{Kind: ExprLiteral, LitKind: wir.KindInt, Int: v, Range: r}
}

func NewRealLit(v float64, r wir.Range) *Expr {
	return &Expr{Kind: ExprLiteral, LitKind: wir.KindReal, Real: v, Range: r}
}

func NewStringLit(v string, r wir.Range) *Expr {
	return &Expr{Kind: ExprLiteral, LitKind: wir.KindString, Str: v, Range: r}
}

func NewBinary(op wir.Arith, left, right *Expr, r wir.Range) *Expr {
	return &Expr{Kind: ExprBinary, Op: op, Left: left, Right: right, Range: r}
}

func NewUnary(op wir.Arith, x *Expr, r wir.Range) *Expr {
	return &Expr{Kind: ExprUnary, Op: op, X: x, Range: r}
}

func NewProject(x *Expr, field string, r wir.Range) *Expr {
	return &Expr{Kind: ExprProject, X: x, Field: field, Range: r}
}

func NewCall(callee string, args []*Expr, r wir.Range) *Expr {
	return &Expr{Kind: ExprCall, Callee: callee, Args: args, Range: r}
}
