package parser

import (
	"github.com/brane-run/brane/ast"
	"github.com/brane-run/brane/lexer"
	"github.com/brane-run/brane/wir"
)

func (p *Parser) parseStmt() *ast.Stmt {
	start := p.pos()
	stmt := p.parseStmtInner(start)
	if stmt == nil {
		p.synchronize()
		return nil
	}
	return stmt
}

func (p *Parser) parseStmtInner(start wir.Position) *ast.Stmt {
	switch p.tok.Kind {
	case lexer.THash, lexer.THashBang:
		return p.parseAttr(start)
	case lexer.TLet:
		return p.parseLet(start)
	case lexer.TIf:
		return p.parseIf(start)
	case lexer.TFor:
		return p.parseFor(start)
	case lexer.TWhile:
		return p.parseWhile(start)
	case lexer.TReturn:
		return p.parseReturn(start)
	case lexer.TFunc:
		return p.parseFunc(start)
	case lexer.TClass:
		return p.parseClass(start)
	case lexer.TImport:
		return p.parseImport(start)
	default:
		return p.parseExprOrAssignStmt(start)
	}
}

func (p *Parser) parseBlock() []*ast.Stmt {
	p.expect(lexer.TLBrace)
	var stmts []*ast.Stmt
	for p.tok.Kind != lexer.TRBrace && p.tok.Kind != lexer.TEOF {
		if s := p.parseStmt(); s != nil {
			stmts = append(stmts, s)
		}
	}
	p.expect(lexer.TRBrace)
	return stmts
}

func (p *Parser) parseAttr(start wir.Position) *ast.Stmt {
	block := p.tok.Kind == lexer.THashBang
	p.advance() // '#[' or '#!['
	key := p.expect(lexer.TIdent).Lit
	var args []*ast.Expr
	if p.tok.Kind == lexer.TLParen {
		p.advance()
		for p.tok.Kind != lexer.TRParen && p.tok.Kind != lexer.TEOF {
			args = append(args, p.parseExpr(precLowest))
			if p.tok.Kind == lexer.TComma {
				p.advance()
			}
		}
		p.expect(lexer.TRParen)
	} else if p.tok.Kind == lexer.TEqEq || p.tok.Kind == lexer.TAssign {
		p.advance()
		args = append(args, p.parseExpr(precLowest))
	}
	p.expect(lexer.TRBracket)
	if p.tok.Kind == lexer.TSemi {
		p.advance()
	}
	return ast.NewAttr(key, args, block, p.rangeFrom(start))
}

func (p *Parser) parseLet(start wir.Position) *ast.Stmt {
	p.advance() // let
	name := p.expect(lexer.TIdent).Lit
	var ty *ast.TypeExpr
	if p.tok.Kind == lexer.TColon {
		p.advance()
		ty = p.parseType()
	}
	p.expect(lexer.TAssign)
	value := p.parseExpr(precLowest)
	p.expectSemi()
	return ast.NewLet(name, ty, value, p.rangeFrom(start))
}

func (p *Parser) parseIf(start wir.Position) *ast.Stmt {
	p.advance() // if
	cond := p.parseExpr(precLowest)
	then := p.parseBlock()
	var els []*ast.Stmt
	if p.tok.Kind == lexer.TElse {
		p.advance()
		if p.tok.Kind == lexer.TIf {
			nested := p.parseStmt()
			if nested != nil {
				els = []*ast.Stmt{nested}
			}
		} else {
			els = p.parseBlock()
		}
	}
	return ast.NewIf(cond, then, els, p.rangeFrom(start))
}

func (p *Parser) parseFor(start wir.Position) *ast.Stmt {
	p.advance() // for
	v := p.expect(lexer.TIdent).Lit
	p.expect(lexer.TIn)
	iter := p.parseExpr(precLowest)
	body := p.parseBlock()
	return ast.NewFor(v, iter, body, p.rangeFrom(start))
}

func (p *Parser) parseWhile(start wir.Position) *ast.Stmt {
	p.advance() // while
	cond := p.parseExpr(precLowest)
	body := p.parseBlock()
	return ast.NewWhile(cond, body, p.rangeFrom(start))
}

func (p *Parser) parseReturn(start wir.Position) *ast.Stmt {
	p.advance() // return
	if p.tok.Kind == lexer.TSemi {
		p.advance()
		return ast.NewReturn(nil, p.rangeFrom(start))
	}
	value := p.parseExpr(precLowest)
	p.expectSemi()
	return ast.NewReturn(value, p.rangeFrom(start))
}

func (p *Parser) parseParamList() []ast.Param {
	p.expect(lexer.TLParen)
	var params []ast.Param
	for p.tok.Kind != lexer.TRParen && p.tok.Kind != lexer.TEOF {
		pstart := p.pos()
		name := p.expect(lexer.TIdent).Lit
		var ty *ast.TypeExpr
		if p.tok.Kind == lexer.TColon {
			p.advance()
			ty = p.parseType()
		}
		params = append(params, ast.Param{Name: name, Type: ty, Range: p.rangeFrom(pstart)})
		if p.tok.Kind == lexer.TComma {
			p.advance()
		}
	}
	p.expect(lexer.TRParen)
	return params
}

func (p *Parser) parseFunc(start wir.Position) *ast.Stmt {
	p.advance() // func
	name := p.expect(lexer.TIdent).Lit
	params := p.parseParamList()
	var ret *ast.TypeExpr
	if p.tok.Kind == lexer.TArrow {
		p.advance()
		ret = p.parseType()
	}
	body := p.parseBlock()
	return ast.NewFunc(name, params, ret, body, p.rangeFrom(start))
}

func (p *Parser) parseClass(start wir.Position) *ast.Stmt {
	p.advance() // class
	name := p.expect(lexer.TIdent).Lit
	p.expect(lexer.TLBrace)
	var fields []ast.Param
	var methods []*ast.Stmt
	for p.tok.Kind != lexer.TRBrace && p.tok.Kind != lexer.TEOF {
		if p.tok.Kind == lexer.TFunc {
			mstart := p.pos()
			methods = append(methods, p.parseFunc(mstart))
			continue
		}
		fstart := p.pos()
		fname := p.expect(lexer.TIdent).Lit
		var ty *ast.TypeExpr
		if p.tok.Kind == lexer.TColon {
			p.advance()
			ty = p.parseType()
		}
		p.expectSemi()
		fields = append(fields, ast.Param{Name: fname, Type: ty, Range: p.rangeFrom(fstart)})
	}
	p.expect(lexer.TRBrace)
	return ast.NewClass(name, fields, methods, p.rangeFrom(start))
}

func (p *Parser) parseImport(start wir.Position) *ast.Stmt {
	p.advance() // import
	pkg := p.expect(lexer.TString).Lit
	version := "latest"
	if p.tok.Kind == lexer.TString {
		version = p.advance().Lit
	}
	p.expectSemi()
	return ast.NewImport(pkg, version, p.rangeFrom(start))
}

func (p *Parser) parseExprOrAssignStmt(start wir.Position) *ast.Stmt {
	x := p.parseExpr(precLowest)
	if p.tok.Kind == lexer.TAssign {
		p.advance()
		value := p.parseExpr(precLowest)
		p.expectSemi()
		return ast.NewAssign(x, value, p.rangeFrom(start))
	}
	p.expectSemi()
	return ast.NewExprStmt(x, p.rangeFrom(start))
}

func (p *Parser) expectSemi() {
	if p.tok.Kind == lexer.TSemi {
		p.advance()
		return
	}
	p.errorf("expected ';', found %s %q", p.tok.Kind, p.tok.Lit)
}

func (p *Parser) parseType() *ast.TypeExpr {
	start := p.pos()
	switch p.tok.Kind {
	case lexer.TIdent:
		name := p.advance().Lit
		switch name {
		case "Bool":
			return &ast.TypeExpr{Kind: wir.KindBool, Range: p.rangeFrom(start)}
		case "Int":
			return &ast.TypeExpr{Kind: wir.KindInt, Range: p.rangeFrom(start)}
		case "Real":
			return &ast.TypeExpr{Kind: wir.KindReal, Range: p.rangeFrom(start)}
		case "String":
			return &ast.TypeExpr{Kind: wir.KindString, Range: p.rangeFrom(start)}
		case "Data":
			return &ast.TypeExpr{Kind: wir.KindData, Range: p.rangeFrom(start)}
		case "IntermediateResult":
			return &ast.TypeExpr{Kind: wir.KindIntermediateResult, Range: p.rangeFrom(start)}
		case "Void":
			return &ast.TypeExpr{Kind: wir.KindVoid, Range: p.rangeFrom(start)}
		case "Any":
			return &ast.TypeExpr{Kind: wir.KindAny, Range: p.rangeFrom(start)}
		case "Array":
			p.expect(lexer.TLParen)
			elem := p.parseType()
			p.expect(lexer.TRParen)
			return &ast.TypeExpr{Kind: wir.KindArray, Elem: elem, Range: p.rangeFrom(start)}
		default:
			return &ast.TypeExpr{Kind: wir.KindClass, ClassName: name, Range: p.rangeFrom(start)}
		}
	default:
		p.errorf("expected type, found %s %q", p.tok.Kind, p.tok.Lit)
		p.advance()
		return &ast.TypeExpr{Kind: wir.KindAny, Range: p.rangeFrom(start)}
	}
}
