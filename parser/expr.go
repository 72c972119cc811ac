package parser

import (
	"strconv"

	"github.com/brane-run/brane/ast"
	"github.com/brane-run/brane/lexer"
	"github.com/brane-run/brane/wir"
)

// Precedence levels follow C for arithmetic, with `.` (projection) tightest
// (spec.md §4.1).
const (
	precLowest = iota
	precOr
	precAnd
	precEquality
	precRelational
	precAdditive
	precMultiplicative
	precUnary
	precProject
)

var binPrec = map[lexer.Kind]int{
	lexer.TOrOr: precOr, lexer.TAndAnd: precAnd,
	lexer.TEqEq: precEquality, lexer.TNotEq: precEquality,
	lexer.TLt: precRelational, lexer.TLte: precRelational, lexer.TGt: precRelational, lexer.TGte: precRelational,
	lexer.TPlus: precAdditive, lexer.TMinus: precAdditive,
	lexer.TStar: precMultiplicative, lexer.TSlash: precMultiplicative, lexer.TPercent: precMultiplicative,
}

var tokArith = map[lexer.Kind]wir.Arith{
	lexer.TPlus: wir.Add, lexer.TMinus: wir.Sub, lexer.TStar: wir.Mul, lexer.TSlash: wir.Div, lexer.TPercent: wir.Mod,
	lexer.TAndAnd: wir.And, lexer.TOrOr: wir.Or,
	lexer.TEqEq: wir.Eq, lexer.TNotEq: wir.Neq,
	lexer.TLt: wir.Lt, lexer.TLte: wir.Lte, lexer.TGt: wir.Gt, lexer.TGte: wir.Gte,
}

func (p *Parser) parseExpr(minPrec int) *ast.Expr {
	left := p.parseUnary()
	for {
		prec, ok := binPrec[p.tok.Kind]
		if !ok || prec < minPrec {
			return left
		}
		op := tokArith[p.tok.Kind]
		opStart := left.Range.Start
		p.advance()
		right := p.parseExpr(prec + 1)
		left = ast.NewBinary(op, left, right, p.rangeFrom(opStart))
	}
}

func (p *Parser) parseUnary() *ast.Expr {
	start := p.pos()
	switch p.tok.Kind {
	case lexer.TBang:
		p.advance()
		x := p.parseUnary()
		return ast.NewUnary(wir.Not, x, p.rangeFrom(start))
	case lexer.TMinus:
		p.advance()
		x := p.parseUnary()
		return ast.NewUnary(wir.Neg, x, p.rangeFrom(start))
	default:
		return p.parsePostfix()
	}
}

func (p *Parser) parsePostfix() *ast.Expr {
	start := p.pos()
	x := p.parsePrimary()
	for {
		switch p.tok.Kind {
		case lexer.TDot:
			p.advance()
			field := p.expect(lexer.TIdent).Lit
			x = ast.NewProject(x, field, p.rangeFrom(start))
		default:
			return x
		}
	}
}

func (p *Parser) parsePrimary() *ast.Expr {
	start := p.pos()
	switch p.tok.Kind {
	case lexer.TInt:
		lit := p.advance().Lit
		v, _ := strconv.ParseInt(lit, 10, 64)
		return ast.NewIntLit(v, p.rangeFrom(start))
	case lexer.TReal:
		lit := p.advance().Lit
		v, _ := strconv.ParseFloat(lit, 64)
		return ast.NewRealLit(v, p.rangeFrom(start))
	case lexer.TString:
		lit := p.advance().Lit
		return ast.NewStringLit(lit, p.rangeFrom(start))
	case lexer.TBool:
		lit := p.advance().Lit
		return ast.NewBoolLit(lit == "true", p.rangeFrom(start))
	case lexer.TLParen:
		p.advance()
		x := p.parseExpr(precLowest)
		p.expect(lexer.TRParen)
		return x
	case lexer.TLBracket:
		return p.parseArrayLit(start)
	case lexer.TParallel:
		return p.parseParallel(start)
	case lexer.TIdent:
		name := p.advance().Lit
		if p.tok.Kind == lexer.TLParen {
			return p.parseCallArgs(name, start)
		}
		return ast.NewIdent(name, p.rangeFrom(start))
	default:
		p.errorf("expected expression, found %s %q", p.tok.Kind, p.tok.Lit)
		p.advance()
		return &ast.Expr{Kind: ast.ExprIdent, Name: "<error>", Range: p.rangeFrom(start)}
	}
}

func (p *Parser) parseArrayLit(start wir.Position) *ast.Expr {
	p.expect(lexer.TLBracket)
	var elems []*ast.Expr
	for p.tok.Kind != lexer.TRBracket && p.tok.Kind != lexer.TEOF {
		elems = append(elems, p.parseExpr(precLowest))
		if p.tok.Kind == lexer.TComma {
			p.advance()
		}
	}
	p.expect(lexer.TRBracket)
	return &ast.Expr{Kind: ast.ExprArray, Elems: elems, Range: p.rangeFrom(start)}
}

func (p *Parser) parseCallArgs(callee string, start wir.Position) *ast.Expr {
	p.expect(lexer.TLParen)
	var args []*ast.Expr
	for p.tok.Kind != lexer.TRParen && p.tok.Kind != lexer.TEOF {
		args = append(args, p.parseExpr(precLowest))
		if p.tok.Kind == lexer.TComma {
			p.advance()
		}
	}
	p.expect(lexer.TRParen)
	return ast.NewCall(callee, args, p.rangeFrom(start))
}

// parseParallel parses `parallel[shared-vars...] { branch; branch; ... }
// merge <strategy>`. Each top-level `{}` group inside the outer braces is
// one branch, and so is each bare statement written directly inside them,
// so `parallel { 1; 2; 3 }` has three branches (spec.md §3, "parallel block (with merge
// strategy)"; spec.md §8 scenario 3).
func (p *Parser) parseParallel(start wir.Position) *ast.Expr {
	p.advance() // parallel
	var shared []string
	if p.tok.Kind == lexer.TLBracket {
		p.advance()
		for p.tok.Kind != lexer.TRBracket && p.tok.Kind != lexer.TEOF {
			shared = append(shared, p.expect(lexer.TIdent).Lit)
			if p.tok.Kind == lexer.TComma {
				p.advance()
			}
		}
		p.expect(lexer.TRBracket)
	}
	p.expect(lexer.TLBrace)
	var branches []ast.ParallelBranch
	for p.tok.Kind != lexer.TRBrace && p.tok.Kind != lexer.TEOF {
		bstart := p.pos()
		if p.tok.Kind == lexer.TLBrace {
			body := p.parseBlock()
			branches = append(branches, ast.ParallelBranch{Body: body, Range: p.rangeFrom(bstart)})
			continue
		}
		// A bare statement is its own single-statement branch.
		if s := p.parseStmt(); s != nil {
			branches = append(branches, ast.ParallelBranch{Body: []*ast.Stmt{s}, Range: s.Range})
		}
	}
	p.expect(lexer.TRBrace)
	strategy := wir.MergeAll
	hasStrategy := false
	if p.tok.Kind == lexer.TMerge {
		p.advance()
		name := p.expect(lexer.TIdent).Lit
		if s, ok := wir.ParseMergeStrategy(name); ok {
			strategy = s
			hasStrategy = true
		} else {
			p.errorf("unknown merge strategy %q", name)
		}
	}
	return &ast.Expr{
		Kind: ast.ExprParallel, Shared: shared, Branches: branches,
		Strategy: strategy, HasStrategy: hasStrategy, Range: p.rangeFrom(start),
	}
}
