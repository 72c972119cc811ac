// Package parser implements Brane's recursive-descent, Pratt-precedence
// parser (spec.md §4.1). It accepts either dialect the lexer supports and
// produces an ast.Program with every node carrying a source range, or a
// batch of recoverable errors.
package parser

import (
	"fmt"

	"github.com/brane-run/brane/ast"
	"github.com/brane-run/brane/lexer"
	"github.com/brane-run/brane/wir"
)

// Options selects dialect and the file name attached to emitted ranges.
type Options struct {
	Dialect lexer.Dialect
	File    string
}

// Error is one recoverable parse failure with its source range.
type Error struct {
	Range wir.Range
	Msg   string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Range, e.Msg) }

// ErrEof is returned (wrapped in Error) when the parser hits end of input
// mid-construct, so REPL callers can distinguish "needs more input" from a
// genuine syntax error (spec.md §4.1, "An Eof variant is surfaced
// separately").
type ErrEof struct{ Err *Error }

func (e *ErrEof) Error() string { return e.Err.Error() }

// Parser holds one parse's mutable state: the token stream (with one-token
// lookahead), the file name, and accumulated errors. It does not re-enter;
// each Parse call constructs a fresh Parser.
type Parser struct {
	lex     *lexer.Lexer
	opts    Options
	tok     lexer.Token
	ahead   *lexer.Token
	errs    []error
}

// Parse tokenizes and parses src, returning the resulting Program (always
// non-nil, possibly partial) and any errors encountered. Multiple
// statement-level errors may be returned from a single call; the parser
// resynchronizes at the next ';' or block boundary after an error.
func Parse(src string, opts Options) (*ast.Program, []error) {
	p := &Parser{lex: lexer.New(src, opts.Dialect), opts: opts}
	p.advance()
	prog := &ast.Program{}
	for p.tok.Kind != lexer.TEOF {
		stmt := p.parseStmt()
		if stmt != nil {
			prog.Stmts = append(prog.Stmts, stmt)
		}
	}
	for _, lerr := range p.lex.Errors() {
		p.errs = append(p.errs, &Error{Range: p.rangeAt(lerr.Line, lerr.Col), Msg: lerr.Msg})
	}
	if len(prog.Stmts) > 0 {
		prog.Range = wir.Range{
			File:  opts.File,
			Start: prog.Stmts[0].Range.Start,
			End:   prog.Stmts[len(prog.Stmts)-1].Range.End,
		}
	}
	return prog, p.errs
}

func (p *Parser) rangeAt(line, col int) wir.Range {
	pos := wir.Position{Line: line, Col: col}
	return wir.Range{File: p.opts.File, Start: pos, End: pos}
}

func (p *Parser) rangeFrom(start wir.Position) wir.Range {
	return wir.Range{File: p.opts.File, Start: start, End: wir.Position{Line: p.tok.Line, Col: p.tok.Col}}
}

func (p *Parser) pos() wir.Position { return wir.Position{Line: p.tok.Line, Col: p.tok.Col} }

func (p *Parser) advance() lexer.Token {
	prev := p.tok
	if p.ahead != nil {
		p.tok = *p.ahead
		p.ahead = nil
	} else {
		p.tok = p.lex.Next()
	}
	return prev
}

func (p *Parser) peekAhead() lexer.Token {
	if p.ahead == nil {
		t := p.lex.Next()
		p.ahead = &t
	}
	return *p.ahead
}

func (p *Parser) errorf(format string, args ...interface{}) {
	if p.tok.Kind == lexer.TEOF {
		p.errs = append(p.errs, &ErrEof{Err: &Error{Range: p.rangeAt(p.tok.Line, p.tok.Col), Msg: fmt.Sprintf(format, args...)}})
		return
	}
	p.errs = append(p.errs, &Error{Range: p.rangeAt(p.tok.Line, p.tok.Col), Msg: fmt.Sprintf(format, args...)})
}

func (p *Parser) expect(k lexer.Kind) lexer.Token {
	if p.tok.Kind != k {
		p.errorf("expected %s, found %s %q", k, p.tok.Kind, p.tok.Lit)
		return p.tok
	}
	return p.advance()
}

// synchronize skips tokens until the next statement boundary, so one error
// does not cascade into spurious follow-on errors (spec.md §4.1, "Errors
// are recoverable at statement boundaries").
func (p *Parser) synchronize() {
	for p.tok.Kind != lexer.TEOF && p.tok.Kind != lexer.TSemi && p.tok.Kind != lexer.TRBrace {
		p.advance()
	}
	if p.tok.Kind == lexer.TSemi {
		p.advance()
	}
}
