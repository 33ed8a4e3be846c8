// Copyright the Quiche authors.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package parser builds a Module AST from a Quiche token stream by
// recursive descent.
package parser

import (
	"strconv"
	"strings"

	"github.com/quichelang/quiche/pkg/ast"
	"github.com/quichelang/quiche/pkg/lexer"
	"github.com/quichelang/quiche/pkg/source"
	"github.com/quichelang/quiche/pkg/token"
)

// ParseError reports a grammar violation: the token the parser was looking
// for versus the token it actually found (§4.2, §7).
type ParseError struct {
	Span     source.Span
	Expected string
	Found    string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return "expected " + e.Expected + ", found " + e.Found
}

// Parser holds the state of a single recursive-descent pass over one token
// stream.
type Parser struct {
	file      *source.File
	tokens    []token.Token
	pos       int
	decorated map[ast.Stmt][]ast.Decorator
	typeNames []string
	imports   []ast.Import
}

// Parse lexes and parses a complete source file into a Module.
func Parse(file *source.File) (*ast.Module, error) {
	toks, lexErr := lexer.Tokenize(file)
	if lexErr != nil {
		return nil, lexErr
	}

	p := &Parser{
		file:      file,
		tokens:    toks,
		decorated: map[ast.Stmt][]ast.Decorator{},
	}

	mod, err := p.parseModule()
	if err != nil {
		return nil, err
	}

	return mod, nil
}

// ===========================================================================
// Token-stream primitives
// ===========================================================================

func (p *Parser) cur() token.Token {
	return p.tokens[p.pos]
}

func (p *Parser) prev() token.Token {
	if p.pos == 0 {
		return p.tokens[0]
	}

	return p.tokens[p.pos-1]
}

func (p *Parser) peekAt(n int) token.Token {
	idx := p.pos + n
	if idx >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}

	return p.tokens[idx]
}

func (p *Parser) advance() token.Token {
	t := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}

	return t
}

func (p *Parser) at(k token.Kind) bool {
	return p.cur().Kind == k
}

func (p *Parser) atKw(kw token.Keyword) bool {
	return p.cur().Is(kw)
}

func (p *Parser) spanFrom(start token.Token) source.Span {
	startSpan := start.Span
	endSpan := p.prev().Span

	return source.NewSpan(startSpan.Start(), endSpan.End())
}

func (p *Parser) errorf(expected string) *ParseError {
	found := p.cur().Kind.String()
	if p.cur().Kind == token.KEYWORD {
		found = p.cur().Keyword.String()
	} else if p.cur().Kind == token.IDENT || p.cur().Kind == token.INT || p.cur().Kind == token.FLOAT {
		found = p.cur().Lexeme
	}

	return &ParseError{Span: p.cur().Span, Expected: expected, Found: found}
}

func (p *Parser) expect(k token.Kind) (token.Token, *ParseError) {
	if !p.at(k) {
		return token.Token{}, p.errorf(k.String())
	}

	return p.advance(), nil
}

func (p *Parser) expectKw(kw token.Keyword) (token.Token, *ParseError) {
	if !p.atKw(kw) {
		return token.Token{}, p.errorf(kw.String())
	}

	return p.advance(), nil
}

// atStmtEnd reports whether the current token cannot begin an expression,
// used to detect a trailing comma.
func (p *Parser) atStmtEnd() bool {
	switch p.cur().Kind {
	case token.NEWLINE, token.EOF, token.DEDENT, token.EQ, token.COLON,
		token.RPAREN, token.RBRACKET, token.RBRACE, token.SEMICOLON:
		return true
	}

	return false
}

// ===========================================================================
// Module / block structure
// ===========================================================================

func (p *Parser) parseModule() (*ast.Module, *ParseError) {
	start := p.cur()

	body, err := p.parseStmtsUntil(func() bool { return p.at(token.EOF) })
	if err != nil {
		return nil, err
	}

	return &ast.Module{
		Base:      ast.NewBase(p.spanFrom(start)),
		Body:      body,
		Imports:   p.imports,
		TypeNames: p.typeNames,
		Decorated: p.decorated,
	}, nil
}

// parseStmtsUntil consumes statements, skipping blank-line NEWLINE tokens,
// until stop() reports true.
func (p *Parser) parseStmtsUntil(stop func() bool) ([]ast.Stmt, *ParseError) {
	var stmts []ast.Stmt

	for {
		for p.at(token.NEWLINE) {
			p.advance()
		}

		if stop() {
			return stmts, nil
		}

		line, err := p.parseStatementLine()
		if err != nil {
			return nil, err
		}

		stmts = append(stmts, line...)
	}
}

func (p *Parser) parseBlock() ([]ast.Stmt, *ParseError) {
	if _, err := p.expect(token.COLON); err != nil {
		return nil, err
	}

	if _, err := p.expect(token.NEWLINE); err != nil {
		return nil, err
	}

	if _, err := p.expect(token.INDENT); err != nil {
		return nil, err
	}

	body, err := p.parseStmtsUntil(func() bool { return p.at(token.DEDENT) })
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(token.DEDENT); err != nil {
		return nil, err
	}

	return body, nil
}

// parseStatementLine parses one logical line: either a single compound
// statement, or one or more semicolon-separated simple statements.
func (p *Parser) parseStatementLine() ([]ast.Stmt, *ParseError) {
	if p.at(token.AT) {
		stmt, err := p.parseDecorated()
		if err != nil {
			return nil, err
		}

		return []ast.Stmt{stmt}, nil
	}

	if stmt, ok, err := p.tryParseCompound(); ok || err != nil {
		if err != nil {
			return nil, err
		}

		return []ast.Stmt{stmt}, nil
	}

	var stmts []ast.Stmt

	for {
		s, err := p.parseSimpleStatement()
		if err != nil {
			return nil, err
		}

		stmts = append(stmts, s)

		if p.at(token.SEMICOLON) {
			p.advance()

			if p.at(token.NEWLINE) || p.at(token.EOF) {
				break
			}

			continue
		}

		break
	}

	if p.at(token.NEWLINE) {
		p.advance()
	}

	return stmts, nil
}

// tryParseCompound dispatches to a compound-statement parser if the current
// token introduces one; ok is false (with no error) if it does not.
func (p *Parser) tryParseCompound() (ast.Stmt, bool, *ParseError) {
	switch {
	case p.atKw(token.DEF):
		s, err := p.parseFunctionDef(false)
		return s, true, err
	case p.atKw(token.CLASS):
		s, err := p.parseClassDef()
		return s, true, err
	case p.atKw(token.TYPE) && (p.peekAt(1).Kind == token.IDENT):
		s, err := p.parseTypeDef()
		return s, true, err
	case p.atKw(token.IF):
		s, err := p.parseIf()
		return s, true, err
	case p.atKw(token.WHILE):
		s, err := p.parseWhile()
		return s, true, err
	case p.atKw(token.FOR):
		s, err := p.parseFor()
		return s, true, err
	case p.atKw(token.MATCH):
		s, err := p.parseMatch()
		return s, true, err
	case p.atKw(token.TRY):
		s, err := p.parseTry()
		return s, true, err
	}

	return nil, false, nil
}

// ===========================================================================
// Decorators
// ===========================================================================

func (p *Parser) parseDecorated() (ast.Stmt, *ParseError) {
	var decs []ast.Decorator

	for p.at(token.AT) {
		dec, err := p.parseDecorator()
		if err != nil {
			return nil, err
		}

		decs = append(decs, dec)
	}

	stmt, ok, err := p.tryParseCompound()
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, p.errorf("class or function declaration after decorator")
	}

	p.decorated[stmt] = decs

	return stmt, nil
}

func (p *Parser) parseDecorator() (ast.Decorator, *ParseError) {
	start := p.cur()

	if _, err := p.expect(token.AT); err != nil {
		return ast.Decorator{}, err
	}

	name, err := p.expect(token.IDENT)
	if err != nil {
		return ast.Decorator{}, err
	}

	dec := ast.Decorator{Name: name.Lexeme, Kwargs: map[string]ast.Expr{}}

	if p.at(token.LPAREN) {
		p.advance()

		for !p.at(token.RPAREN) {
			if p.at(token.IDENT) && p.peekAt(1).Kind == token.EQ {
				key := p.advance().Lexeme
				p.advance() // '='

				val, err := p.parseTernary()
				if err != nil {
					return ast.Decorator{}, err
				}

				dec.Kwargs[key] = val
			} else {
				val, err := p.parseTernary()
				if err != nil {
					return ast.Decorator{}, err
				}

				dec.Args = append(dec.Args, val)
			}

			if p.at(token.COMMA) {
				p.advance()
				continue
			}

			break
		}

		if _, err := p.expect(token.RPAREN); err != nil {
			return ast.Decorator{}, err
		}
	}

	if p.at(token.NEWLINE) {
		p.advance()
	}

	dec.Base = ast.NewBase(p.spanFrom(start))

	return dec, nil
}

// ===========================================================================
// Declarations
// ===========================================================================

func (p *Parser) parseTypeParams() ([]ast.TypeParam, *ParseError) {
	if !p.at(token.LBRACKET) {
		return nil, nil
	}

	p.advance()

	var params []ast.TypeParam

	for !p.at(token.RBRACKET) {
		name, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}

		tp := ast.TypeParam{Name: name.Lexeme}

		if p.at(token.COLON) {
			p.advance()

			for {
				bound, err := p.expect(token.IDENT)
				if err != nil {
					return nil, err
				}

				tp.Bounds = append(tp.Bounds, bound.Lexeme)

				if p.at(token.PLUS) {
					p.advance()
					continue
				}

				break
			}
		}

		params = append(params, tp)

		if p.at(token.COMMA) {
			p.advance()
			continue
		}

		break
	}

	if _, err := p.expect(token.RBRACKET); err != nil {
		return nil, err
	}

	return params, nil
}

func (p *Parser) parseParamList() ([]ast.Param, *ParseError) {
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}

	var params []ast.Param

	for !p.at(token.RPAREN) {
		name, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}

		param := ast.Param{Name: name.Lexeme}

		if p.at(token.COLON) {
			p.advance()

			annot, err := p.parseTernary()
			if err != nil {
				return nil, err
			}

			param.Annotation = annot
		}

		if p.at(token.EQ) {
			p.advance()

			def, err := p.parseTernary()
			if err != nil {
				return nil, err
			}

			param.Default = def
		}

		params = append(params, param)

		if p.at(token.COMMA) {
			p.advance()
			continue
		}

		break
	}

	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}

	return params, nil
}

func (p *Parser) parseFunctionDef(isMethod bool) (*ast.FunctionDef, *ParseError) {
	start := p.cur()

	if _, err := p.expectKw(token.DEF); err != nil {
		return nil, err
	}

	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}

	typeParams, err := p.parseTypeParams()
	if err != nil {
		return nil, err
	}

	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}

	var retType ast.Expr

	if p.at(token.ARROW) {
		p.advance()

		retType, err = p.parseTernary()
		if err != nil {
			return nil, err
		}
	}

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}

	fn := &ast.FunctionDef{
		Base:       ast.NewBase(p.spanFrom(start)),
		Name:       name.Lexeme,
		TypeParams: typeParams,
		Params:     params,
		ReturnType: retType,
		Body:       body,
		IsMethod:   isMethod,
	}

	if len(params) > 0 && params[0].Name == "self" {
		fn.IsMethod = true
		fn.ReceiverName = "self"

		if sub, ok := params[0].Annotation.(*ast.SubscriptExpr); ok {
			if name, ok := sub.Value.(*ast.NameExpr); ok && name.Name == "mutref" {
				fn.ReceiverMut = true
			}
		}
	}

	return fn, nil
}

func (p *Parser) parseClassDef() (*ast.ClassDef, *ParseError) {
	start := p.cur()

	if _, err := p.expectKw(token.CLASS); err != nil {
		return nil, err
	}

	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}

	typeParams, err := p.parseTypeParams()
	if err != nil {
		return nil, err
	}

	var bases []ast.Expr

	if p.at(token.LPAREN) {
		p.advance()

		for !p.at(token.RPAREN) {
			b, err := p.parseTernary()
			if err != nil {
				return nil, err
			}

			bases = append(bases, b)

			if p.at(token.COMMA) {
				p.advance()
				continue
			}

			break
		}

		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
	}

	body, err := p.parseClassBody()
	if err != nil {
		return nil, err
	}

	p.typeNames = append(p.typeNames, name.Lexeme)

	return &ast.ClassDef{
		Base:       ast.NewBase(p.spanFrom(start)),
		Name:       name.Lexeme,
		TypeParams: typeParams,
		Bases:      bases,
		Body:       body,
	}, nil
}

// parseClassBody parses a class/type block, treating bare `def` lines inside
// it as methods (§4.3: first `self` parameter marks a method).
func (p *Parser) parseClassBody() ([]ast.Stmt, *ParseError) {
	if _, err := p.expect(token.COLON); err != nil {
		return nil, err
	}

	if _, err := p.expect(token.NEWLINE); err != nil {
		return nil, err
	}

	if _, err := p.expect(token.INDENT); err != nil {
		return nil, err
	}

	var body []ast.Stmt

	for !p.at(token.DEDENT) {
		for p.at(token.NEWLINE) {
			p.advance()
		}

		if p.at(token.DEDENT) {
			break
		}

		if p.at(token.AT) {
			stmt, err := p.parseDecorated()
			if err != nil {
				return nil, err
			}

			body = append(body, stmt)

			continue
		}

		if p.atKw(token.DEF) {
			fn, err := p.parseFunctionDef(true)
			if err != nil {
				return nil, err
			}

			body = append(body, fn)

			continue
		}

		line, err := p.parseStatementLine()
		if err != nil {
			return nil, err
		}

		body = append(body, line...)
	}

	if _, err := p.expect(token.DEDENT); err != nil {
		return nil, err
	}

	return body, nil
}

func (p *Parser) parseTypeDef() (ast.Stmt, *ParseError) {
	start := p.cur()

	if _, err := p.expectKw(token.TYPE); err != nil {
		return nil, err
	}

	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}

	typeParams, err := p.parseTypeParams()
	if err != nil {
		return nil, err
	}

	p.typeNames = append(p.typeNames, name.Lexeme)

	if p.at(token.EQ) {
		p.advance()

		var alts []ast.Expr

		for {
			alt, err := p.parseBitXor()
			if err != nil {
				return nil, err
			}

			alts = append(alts, alt)

			if p.at(token.PIPE) {
				p.advance()
				continue
			}

			break
		}

		if p.at(token.NEWLINE) {
			p.advance()
		}

		return &ast.TypeDef{
			Base:       ast.NewBase(p.spanFrom(start)),
			Name:       name.Lexeme,
			TypeParams: typeParams,
			Union:      alts,
		}, nil
	}

	body, err := p.parseClassBody()
	if err != nil {
		return nil, err
	}

	return &ast.TypeDef{
		Base:       ast.NewBase(p.spanFrom(start)),
		Name:       name.Lexeme,
		TypeParams: typeParams,
		Body:       body,
	}, nil
}

// ===========================================================================
// Compound statements
// ===========================================================================

func (p *Parser) parseIf() (*ast.IfStmt, *ParseError) {
	start := p.cur()

	if _, err := p.expectKw(token.IF); err != nil {
		return nil, err
	}

	cond, err := p.parseTupleOrExpr()
	if err != nil {
		return nil, err
	}

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}

	stmt := &ast.IfStmt{Base: ast.NewBase(p.spanFrom(start)), Cond: cond, Body: body}

	if p.atKw(token.ELIF) {
		elif, err := p.parseElif()
		if err != nil {
			return nil, err
		}

		stmt.Else = []ast.Stmt{elif}
		stmt.Base = ast.NewBase(p.spanFrom(start))

		return stmt, nil
	}

	if p.atKw(token.ELSE) {
		p.advance()

		elseBody, err := p.parseBlock()
		if err != nil {
			return nil, err
		}

		stmt.Else = elseBody
	}

	stmt.Base = ast.NewBase(p.spanFrom(start))

	return stmt, nil
}

// parseElif parses an `elif` clause as a nested IfStmt, matching the
// else-chain representation documented on ast.IfStmt.
func (p *Parser) parseElif() (*ast.IfStmt, *ParseError) {
	start := p.cur()

	if _, err := p.expectKw(token.ELIF); err != nil {
		return nil, err
	}

	cond, err := p.parseTupleOrExpr()
	if err != nil {
		return nil, err
	}

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}

	stmt := &ast.IfStmt{Base: ast.NewBase(p.spanFrom(start)), Cond: cond, Body: body}

	if p.atKw(token.ELIF) {
		nested, err := p.parseElif()
		if err != nil {
			return nil, err
		}

		stmt.Else = []ast.Stmt{nested}
	} else if p.atKw(token.ELSE) {
		p.advance()

		elseBody, err := p.parseBlock()
		if err != nil {
			return nil, err
		}

		stmt.Else = elseBody
	}

	stmt.Base = ast.NewBase(p.spanFrom(start))

	return stmt, nil
}

func (p *Parser) parseWhile() (*ast.WhileStmt, *ParseError) {
	start := p.cur()

	if _, err := p.expectKw(token.WHILE); err != nil {
		return nil, err
	}

	cond, err := p.parseTupleOrExpr()
	if err != nil {
		return nil, err
	}

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}

	return &ast.WhileStmt{Base: ast.NewBase(p.spanFrom(start)), Cond: cond, Body: body}, nil
}

func (p *Parser) parseFor() (*ast.ForStmt, *ParseError) {
	start := p.cur()

	if _, err := p.expectKw(token.FOR); err != nil {
		return nil, err
	}

	target, err := p.parseBitOr()
	if err != nil {
		return nil, err
	}

	if _, err := p.expectKw(token.IN); err != nil {
		return nil, err
	}

	iter, err := p.parseTupleOrExpr()
	if err != nil {
		return nil, err
	}

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}

	return &ast.ForStmt{Base: ast.NewBase(p.spanFrom(start)), Target: target, Iter: iter, Body: body}, nil
}

func (p *Parser) parseMatch() (*ast.MatchStmt, *ParseError) {
	start := p.cur()

	if _, err := p.expectKw(token.MATCH); err != nil {
		return nil, err
	}

	subject, err := p.parseTupleOrExpr()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(token.COLON); err != nil {
		return nil, err
	}

	if _, err := p.expect(token.NEWLINE); err != nil {
		return nil, err
	}

	if _, err := p.expect(token.INDENT); err != nil {
		return nil, err
	}

	var arms []ast.MatchArm

	for !p.at(token.DEDENT) {
		for p.at(token.NEWLINE) {
			p.advance()
		}

		if p.at(token.DEDENT) {
			break
		}

		arm, err := p.parseMatchArm()
		if err != nil {
			return nil, err
		}

		arms = append(arms, arm)
	}

	if _, err := p.expect(token.DEDENT); err != nil {
		return nil, err
	}

	return &ast.MatchStmt{Base: ast.NewBase(p.spanFrom(start)), Subject: subject, Arms: arms}, nil
}

func (p *Parser) parseMatchArm() (ast.MatchArm, *ParseError) {
	start := p.cur()

	if _, err := p.expectKw(token.CASE); err != nil {
		return ast.MatchArm{}, err
	}

	pat, err := p.parsePattern()
	if err != nil {
		return ast.MatchArm{}, err
	}

	var guard ast.Expr

	if p.atKw(token.IF) {
		p.advance()

		guard, err = p.parseTupleOrExpr()
		if err != nil {
			return ast.MatchArm{}, err
		}
	}

	body, err := p.parseBlock()
	if err != nil {
		return ast.MatchArm{}, err
	}

	return ast.MatchArm{Base: ast.NewBase(p.spanFrom(start)), Pattern: pat, Guard: guard, Body: body}, nil
}

func (p *Parser) parseTry() (*ast.TryStmt, *ParseError) {
	start := p.cur()

	if _, err := p.expectKw(token.TRY); err != nil {
		return nil, err
	}

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}

	var handlers []ast.ExceptHandler

	for p.atKw(token.EXCEPT) {
		h, err := p.parseExceptHandler()
		if err != nil {
			return nil, err
		}

		handlers = append(handlers, h)
	}

	var finally []ast.Stmt

	if p.atKw(token.FINALLY) {
		p.advance()

		finally, err = p.parseBlock()
		if err != nil {
			return nil, err
		}
	}

	return &ast.TryStmt{
		Base:     ast.NewBase(p.spanFrom(start)),
		Body:     body,
		Handlers: handlers,
		Finally:  finally,
	}, nil
}

func (p *Parser) parseExceptHandler() (ast.ExceptHandler, *ParseError) {
	start := p.cur()

	if _, err := p.expectKw(token.EXCEPT); err != nil {
		return ast.ExceptHandler{}, err
	}

	h := ast.ExceptHandler{}

	if !p.at(token.COLON) {
		typ, err := p.parseTernary()
		if err != nil {
			return ast.ExceptHandler{}, err
		}

		h.Type = typ

		if p.atKw(token.AS) {
			p.advance()

			name, err := p.expect(token.IDENT)
			if err != nil {
				return ast.ExceptHandler{}, err
			}

			h.Name = name.Lexeme
		}
	}

	body, err := p.parseBlock()
	if err != nil {
		return ast.ExceptHandler{}, err
	}

	h.Body = body
	h.Base = ast.NewBase(p.spanFrom(start))

	return h, nil
}

// ===========================================================================
// Simple statements
// ===========================================================================

func (p *Parser) parseSimpleStatement() (ast.Stmt, *ParseError) {
	start := p.cur()

	switch {
	case p.atKw(token.PASS):
		p.advance()
		return &ast.PassStmt{Base: ast.NewBase(p.spanFrom(start))}, nil
	case p.atKw(token.BREAK):
		p.advance()
		return &ast.BreakStmt{Base: ast.NewBase(p.spanFrom(start))}, nil
	case p.atKw(token.CONTINUE):
		p.advance()
		return &ast.ContinueStmt{Base: ast.NewBase(p.spanFrom(start))}, nil
	case p.atKw(token.RETURN):
		p.advance()

		var val ast.Expr

		if !p.atStmtEnd() {
			v, err := p.parseTupleOrExpr()
			if err != nil {
				return nil, err
			}

			val = v
		}

		return &ast.ReturnStmt{Base: ast.NewBase(p.spanFrom(start)), Value: val}, nil
	case p.atKw(token.RAISE):
		p.advance()

		var val ast.Expr

		if !p.atStmtEnd() {
			v, err := p.parseTupleOrExpr()
			if err != nil {
				return nil, err
			}

			val = v
		}

		return &ast.RaiseStmt{Base: ast.NewBase(p.spanFrom(start)), Value: val}, nil
	case p.atKw(token.ASSERT):
		p.advance()

		cond, err := p.parseTernary()
		if err != nil {
			return nil, err
		}

		stmt := &ast.AssertStmt{Cond: cond}

		if p.at(token.COMMA) {
			p.advance()

			msg, err := p.parseTernary()
			if err != nil {
				return nil, err
			}

			stmt.Msg = msg
		}

		stmt.Base = ast.NewBase(p.spanFrom(start))

		return stmt, nil
	case p.atKw(token.IMPORT):
		return p.parseImport()
	case p.atKw(token.FROM):
		return p.parseFromImport()
	}

	return p.parseExprOrAssignStatement()
}

func (p *Parser) parseImport() (*ast.ImportStmt, *ParseError) {
	start := p.cur()

	if _, err := p.expectKw(token.IMPORT); err != nil {
		return nil, err
	}

	var names []ast.Import

	for {
		name, err := p.parseDottedName()
		if err != nil {
			return nil, err
		}

		imp := ast.Import{Module: name}

		if p.atKw(token.AS) {
			p.advance()

			alias, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}

			imp.Alias = alias.Lexeme
		}

		names = append(names, imp)
		p.imports = append(p.imports, imp)

		if p.at(token.COMMA) {
			p.advance()
			continue
		}

		break
	}

	return &ast.ImportStmt{Base: ast.NewBase(p.spanFrom(start)), Names: names}, nil
}

func (p *Parser) parseFromImport() (*ast.FromImportStmt, *ParseError) {
	start := p.cur()

	if _, err := p.expectKw(token.FROM); err != nil {
		return nil, err
	}

	module, err := p.parseDottedName()
	if err != nil {
		return nil, err
	}

	if _, err := p.expectKw(token.IMPORT); err != nil {
		return nil, err
	}

	var names []ast.Import

	for {
		name, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}

		imp := ast.Import{Module: module + "." + name.Lexeme}

		if p.atKw(token.AS) {
			p.advance()

			alias, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}

			imp.Alias = alias.Lexeme
		}

		names = append(names, imp)
		p.imports = append(p.imports, imp)

		if p.at(token.COMMA) {
			p.advance()
			continue
		}

		break
	}

	return &ast.FromImportStmt{Base: ast.NewBase(p.spanFrom(start)), Module: module, Names: names}, nil
}

func (p *Parser) parseDottedName() (string, *ParseError) {
	first, err := p.expect(token.IDENT)
	if err != nil {
		return "", err
	}

	var sb strings.Builder

	sb.WriteString(first.Lexeme)

	for p.at(token.DOT) {
		p.advance()

		next, err := p.expect(token.IDENT)
		if err != nil {
			return "", err
		}

		sb.WriteString(".")
		sb.WriteString(next.Lexeme)
	}

	return sb.String(), nil
}

var augOps = map[token.Kind]ast.AugAssignOp{
	token.PLUSEQ: ast.AugAdd, token.MINUSEQ: ast.AugSub, token.STAREQ: ast.AugMul,
	token.SLASHEQ: ast.AugDiv, token.DSLASHEQ: ast.AugFloorDiv, token.PERCENTEQ: ast.AugMod,
	token.DSTAREQ: ast.AugPow, token.PIPEEQ: ast.AugBitOr, token.AMPEQ: ast.AugBitAnd,
	token.CARETEQ: ast.AugBitXor, token.LSHIFTEQ: ast.AugLShift, token.RSHIFTEQ: ast.AugRShift,
}

// parseExprOrAssignStatement parses one of: ExprStmt, AssignStmt,
// AnnAssignStmt, AugAssignStmt, distinguishing by what follows the first
// parsed expression.
func (p *Parser) parseExprOrAssignStatement() (ast.Stmt, *ParseError) {
	start := p.cur()

	first, err := p.parseTupleOrExpr()
	if err != nil {
		return nil, err
	}

	if p.at(token.COLON) {
		p.advance()

		annot, err := p.parseTernary()
		if err != nil {
			return nil, err
		}

		var value ast.Expr

		if p.at(token.EQ) {
			p.advance()

			value, err = p.parseTupleOrExpr()
			if err != nil {
				return nil, err
			}
		}

		return &ast.AnnAssignStmt{
			Base: ast.NewBase(p.spanFrom(start)), Target: first, Annotation: annot, Value: value,
		}, nil
	}

	if p.at(token.EQ) {
		targets := []ast.Expr{first}

		for p.at(token.EQ) {
			p.advance()

			v, err := p.parseTupleOrExpr()
			if err != nil {
				return nil, err
			}

			targets = append(targets, v)
		}

		value := targets[len(targets)-1]
		targets = targets[:len(targets)-1]

		return &ast.AssignStmt{Base: ast.NewBase(p.spanFrom(start)), Targets: targets, Value: value}, nil
	}

	if op, ok := augOps[p.cur().Kind]; ok {
		p.advance()

		value, err := p.parseTupleOrExpr()
		if err != nil {
			return nil, err
		}

		return &ast.AugAssignStmt{Base: ast.NewBase(p.spanFrom(start)), Target: first, Op: op, Value: value}, nil
	}

	return &ast.ExprStmt{Base: ast.NewBase(p.spanFrom(start)), Value: first}, nil
}

// ===========================================================================
// Patterns
// ===========================================================================

func (p *Parser) parsePattern() (ast.Pattern, *ParseError) {
	start := p.cur()

	if p.at(token.IDENT) && p.cur().Lexeme == "_" {
		p.advance()
		return &ast.WildcardPattern{Base: ast.NewBase(p.spanFrom(start))}, nil
	}

	if p.at(token.STAR) {
		p.advance()

		name := ""

		if p.at(token.IDENT) {
			name = p.advance().Lexeme
		}

		return &ast.StarRestPattern{Base: ast.NewBase(p.spanFrom(start)), Name: name}, nil
	}

	if p.at(token.LPAREN) {
		p.advance()

		var elems []ast.Pattern

		for !p.at(token.RPAREN) {
			elem, err := p.parsePattern()
			if err != nil {
				return nil, err
			}

			elems = append(elems, elem)

			if p.at(token.COMMA) {
				p.advance()
				continue
			}

			break
		}

		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}

		return &ast.TuplePattern{Base: ast.NewBase(p.spanFrom(start)), Elements: elems}, nil
	}

	if p.at(token.IDENT) && (p.peekAt(1).Kind == token.LPAREN || p.peekAt(1).Kind == token.LBRACE) {
		name := p.advance().Lexeme
		ctor := &ast.ConstructorPattern{Name: name}

		if p.at(token.LPAREN) {
			p.advance()

			for !p.at(token.RPAREN) {
				sub, err := p.parsePattern()
				if err != nil {
					return nil, err
				}

				ctor.Positional = append(ctor.Positional, sub)

				if p.at(token.COMMA) {
					p.advance()
					continue
				}

				break
			}

			if _, err := p.expect(token.RPAREN); err != nil {
				return nil, err
			}
		} else {
			p.advance() // '{'

			for !p.at(token.RBRACE) {
				fname, err := p.expect(token.IDENT)
				if err != nil {
					return nil, err
				}

				if _, err := p.expect(token.COLON); err != nil {
					return nil, err
				}

				fpat, err := p.parsePattern()
				if err != nil {
					return nil, err
				}

				ctor.Fields = append(ctor.Fields, ast.CtorField{Name: fname.Lexeme, Pattern: fpat})

				if p.at(token.COMMA) {
					p.advance()
					continue
				}

				break
			}

			if _, err := p.expect(token.RBRACE); err != nil {
				return nil, err
			}
		}

		ctor.Base = ast.NewBase(p.spanFrom(start))

		return ctor, nil
	}

	if p.at(token.IDENT) {
		name := p.advance().Lexeme
		return &ast.BindPattern{Base: ast.NewBase(p.spanFrom(start)), Name: name}, nil
	}

	lit, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	return &ast.LiteralPattern{Base: ast.NewBase(p.spanFrom(start)), Value: lit}, nil
}

// ===========================================================================
// Expressions: precedence climbing, low to high as in §4.2's table
// ===========================================================================

func (p *Parser) parseTupleOrExpr() (ast.Expr, *ParseError) {
	start := p.cur()

	first, err := p.parseTernary()
	if err != nil {
		return nil, err
	}

	if !p.at(token.COMMA) {
		return first, nil
	}

	elems := []ast.Expr{first}

	for p.at(token.COMMA) {
		p.advance()

		if p.atStmtEnd() {
			break
		}

		e, err := p.parseTernary()
		if err != nil {
			return nil, err
		}

		elems = append(elems, e)
	}

	return &ast.TupleExpr{Base: ast.NewBase(p.spanFrom(start)), Elements: elems}, nil
}

func (p *Parser) parseTernary() (ast.Expr, *ParseError) {
	start := p.cur()

	body, err := p.parsePipe()
	if err != nil {
		return nil, err
	}

	if !p.atKw(token.IF) {
		return body, nil
	}

	p.advance()

	test, err := p.parsePipe()
	if err != nil {
		return nil, err
	}

	if _, err := p.expectKw(token.ELSE); err != nil {
		return nil, err
	}

	orelse, err := p.parseTernary()
	if err != nil {
		return nil, err
	}

	return &ast.IfExpExpr{Base: ast.NewBase(p.spanFrom(start)), Test: test, Body: body, OrElse: orelse}, nil
}

func (p *Parser) parsePipe() (ast.Expr, *ParseError) {
	start := p.cur()

	left, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	for p.at(token.PIPE_ARROW) {
		p.advance()

		right, err := p.parseOr()
		if err != nil {
			return nil, err
		}

		call, ok := right.(*ast.CallExpr)
		if !ok {
			return nil, p.errorf("call expression after |>")
		}

		left = &ast.PipeExpr{Base: ast.NewBase(p.spanFrom(start)), Value: left, Call: call}
	}

	return left, nil
}

func (p *Parser) parseOr() (ast.Expr, *ParseError) {
	start := p.cur()

	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	if !p.atKw(token.OR) {
		return first, nil
	}

	values := []ast.Expr{first}

	for p.atKw(token.OR) {
		p.advance()

		v, err := p.parseAnd()
		if err != nil {
			return nil, err
		}

		values = append(values, v)
	}

	return &ast.BoolOpExpr{Base: ast.NewBase(p.spanFrom(start)), Op: ast.BoolOr, Values: values}, nil
}

func (p *Parser) parseAnd() (ast.Expr, *ParseError) {
	start := p.cur()

	first, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	if !p.atKw(token.AND) {
		return first, nil
	}

	values := []ast.Expr{first}

	for p.atKw(token.AND) {
		p.advance()

		v, err := p.parseNot()
		if err != nil {
			return nil, err
		}

		values = append(values, v)
	}

	return &ast.BoolOpExpr{Base: ast.NewBase(p.spanFrom(start)), Op: ast.BoolAnd, Values: values}, nil
}

func (p *Parser) parseNot() (ast.Expr, *ParseError) {
	start := p.cur()

	if p.atKw(token.NOT) {
		p.advance()

		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}

		return &ast.UnaryOpExpr{Base: ast.NewBase(p.spanFrom(start)), Op: ast.UNot, Operand: operand}, nil
	}

	return p.parseComparison()
}

var cmpOps = map[token.Kind]ast.CmpOperator{
	token.EQEQ: ast.CmpEq, token.NOTEQ: ast.CmpNotEq, token.LT: ast.CmpLt,
	token.LTEQ: ast.CmpLtEq, token.GT: ast.CmpGt, token.GTEQ: ast.CmpGtEq,
}

func (p *Parser) parseComparison() (ast.Expr, *ParseError) {
	start := p.cur()

	left, err := p.parseBitOr()
	if err != nil {
		return nil, err
	}

	var ops []ast.CmpOperator
	var comparators []ast.Expr

	for {
		if op, ok := cmpOps[p.cur().Kind]; ok {
			p.advance()

			right, err := p.parseBitOr()
			if err != nil {
				return nil, err
			}

			ops = append(ops, op)
			comparators = append(comparators, right)

			continue
		}

		if p.atKw(token.IN) {
			p.advance()

			right, err := p.parseBitOr()
			if err != nil {
				return nil, err
			}

			ops = append(ops, ast.CmpIn)
			comparators = append(comparators, right)

			continue
		}

		if p.atKw(token.NOT) && p.peekAt(1).Is(token.IN) {
			p.advance()
			p.advance()

			right, err := p.parseBitOr()
			if err != nil {
				return nil, err
			}

			ops = append(ops, ast.CmpNotIn)
			comparators = append(comparators, right)

			continue
		}

		if p.atKw(token.IS) && p.peekAt(1).Is(token.NOT) {
			p.advance()
			p.advance()

			right, err := p.parseBitOr()
			if err != nil {
				return nil, err
			}

			ops = append(ops, ast.CmpIsNot)
			comparators = append(comparators, right)

			continue
		}

		if p.atKw(token.IS) {
			p.advance()

			right, err := p.parseBitOr()
			if err != nil {
				return nil, err
			}

			ops = append(ops, ast.CmpIs)
			comparators = append(comparators, right)

			continue
		}

		break
	}

	if len(ops) == 0 {
		return left, nil
	}

	return &ast.CompareExpr{
		Base: ast.NewBase(p.spanFrom(start)), Left: left, Ops: ops, Comparators: comparators,
	}, nil
}

func (p *Parser) parseBitOr() (ast.Expr, *ParseError) {
	start := p.cur()

	left, err := p.parseBitXor()
	if err != nil {
		return nil, err
	}

	for p.at(token.PIPE) {
		p.advance()

		right, err := p.parseBitXor()
		if err != nil {
			return nil, err
		}

		left = &ast.BinOpExpr{Base: ast.NewBase(p.spanFrom(start)), Left: left, Op: ast.BitOr, Right: right}
	}

	return left, nil
}

func (p *Parser) parseBitXor() (ast.Expr, *ParseError) {
	start := p.cur()

	left, err := p.parseBitAnd()
	if err != nil {
		return nil, err
	}

	for p.at(token.CARET) {
		p.advance()

		right, err := p.parseBitAnd()
		if err != nil {
			return nil, err
		}

		left = &ast.BinOpExpr{Base: ast.NewBase(p.spanFrom(start)), Left: left, Op: ast.BitXor, Right: right}
	}

	return left, nil
}

func (p *Parser) parseBitAnd() (ast.Expr, *ParseError) {
	start := p.cur()

	left, err := p.parseShift()
	if err != nil {
		return nil, err
	}

	for p.at(token.AMP) {
		p.advance()

		right, err := p.parseShift()
		if err != nil {
			return nil, err
		}

		left = &ast.BinOpExpr{Base: ast.NewBase(p.spanFrom(start)), Left: left, Op: ast.BitAnd, Right: right}
	}

	return left, nil
}

func (p *Parser) parseShift() (ast.Expr, *ParseError) {
	start := p.cur()

	left, err := p.parseAddSub()
	if err != nil {
		return nil, err
	}

	for p.at(token.LSHIFT) || p.at(token.RSHIFT) {
		op := ast.LShift
		if p.at(token.RSHIFT) {
			op = ast.RShift
		}

		p.advance()

		right, err := p.parseAddSub()
		if err != nil {
			return nil, err
		}

		left = &ast.BinOpExpr{Base: ast.NewBase(p.spanFrom(start)), Left: left, Op: op, Right: right}
	}

	return left, nil
}

func (p *Parser) parseAddSub() (ast.Expr, *ParseError) {
	start := p.cur()

	left, err := p.parseMulDiv()
	if err != nil {
		return nil, err
	}

	for p.at(token.PLUS) || p.at(token.MINUS) {
		op := ast.Add
		if p.at(token.MINUS) {
			op = ast.Sub
		}

		p.advance()

		right, err := p.parseMulDiv()
		if err != nil {
			return nil, err
		}

		left = &ast.BinOpExpr{Base: ast.NewBase(p.spanFrom(start)), Left: left, Op: op, Right: right}
	}

	return left, nil
}

func (p *Parser) parseMulDiv() (ast.Expr, *ParseError) {
	start := p.cur()

	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		var op ast.BinOperator

		switch {
		case p.at(token.STAR):
			op = ast.Mul
		case p.at(token.SLASH):
			op = ast.Div
		case p.at(token.DSLASH):
			op = ast.FloorDiv
		case p.at(token.PERCENT):
			op = ast.Mod
		default:
			return left, nil
		}

		p.advance()

		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		left = &ast.BinOpExpr{Base: ast.NewBase(p.spanFrom(start)), Left: left, Op: op, Right: right}
	}
}

func (p *Parser) parseUnary() (ast.Expr, *ParseError) {
	start := p.cur()

	var op ast.UnaryOperator

	switch {
	case p.at(token.PLUS):
		op = ast.UPlus
	case p.at(token.MINUS):
		op = ast.UMinus
	case p.at(token.TILDE):
		op = ast.UInvert
	default:
		return p.parsePow()
	}

	p.advance()

	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	return &ast.UnaryOpExpr{Base: ast.NewBase(p.spanFrom(start)), Op: op, Operand: operand}, nil
}

func (p *Parser) parsePow() (ast.Expr, *ParseError) {
	start := p.cur()

	left, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}

	if !p.at(token.DSTAR) {
		return left, nil
	}

	p.advance()

	right, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	return &ast.BinOpExpr{Base: ast.NewBase(p.spanFrom(start)), Left: left, Op: ast.Pow, Right: right}, nil
}

func (p *Parser) parsePostfix() (ast.Expr, *ParseError) {
	start := p.cur()

	expr, err := p.parseAtom()
	if err != nil {
		return nil, err
	}

	for {
		switch {
		case p.at(token.DOT):
			p.advance()

			attr, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}

			expr = &ast.AttributeExpr{Base: ast.NewBase(p.spanFrom(start)), Value: expr, Attr: attr.Lexeme}
		case p.at(token.LPAREN):
			call, err := p.parseCallTail(expr, start)
			if err != nil {
				return nil, err
			}

			expr = call
		case p.at(token.LBRACKET):
			p.advance()

			index, err := p.parseSubscriptIndex()
			if err != nil {
				return nil, err
			}

			if _, err := p.expect(token.RBRACKET); err != nil {
				return nil, err
			}

			expr = &ast.SubscriptExpr{Base: ast.NewBase(p.spanFrom(start)), Value: expr, Index: index}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parseCallTail(fn ast.Expr, start token.Token) (*ast.CallExpr, *ParseError) {
	p.advance() // '('

	call := &ast.CallExpr{Func: fn}

	for !p.at(token.RPAREN) {
		if p.at(token.STAR) {
			starStart := p.cur()

			p.advance()

			v, err := p.parseTernary()
			if err != nil {
				return nil, err
			}

			call.Args = append(call.Args, &ast.StarredExpr{Base: ast.NewBase(p.spanFrom(starStart)), Value: v})
		} else if p.at(token.IDENT) && p.peekAt(1).Kind == token.EQ {
			name := p.advance().Lexeme
			p.advance() // '='

			v, err := p.parseTernary()
			if err != nil {
				return nil, err
			}

			call.Keywords = append(call.Keywords, ast.Keyword{Name: name, Value: v})
		} else {
			v, err := p.parseTernary()
			if err != nil {
				return nil, err
			}

			call.Args = append(call.Args, v)
		}

		if p.at(token.COMMA) {
			p.advance()
			continue
		}

		break
	}

	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}

	call.Base = ast.NewBase(p.spanFrom(start))

	return call, nil
}

// parseSubscriptIndex parses either a plain expression or a `lower:upper:step`
// slice; generic-argument-vs-subscript classification is left to later
// stages, which read the structural position of the SubscriptExpr (§4.2).
func (p *Parser) parseSubscriptIndex() (ast.Expr, *ParseError) {
	start := p.cur()

	var lower, upper, step ast.Expr
	var err *ParseError
	isSlice := false

	if !p.at(token.COLON) {
		lower, err = p.parseTernary()
		if err != nil {
			return nil, err
		}
	}

	if p.at(token.COLON) {
		isSlice = true

		p.advance()

		if !p.at(token.COLON) && !p.at(token.RBRACKET) {
			upper, err = p.parseTernary()
			if err != nil {
				return nil, err
			}
		}

		if p.at(token.COLON) {
			p.advance()

			if !p.at(token.RBRACKET) {
				step, err = p.parseTernary()
				if err != nil {
					return nil, err
				}
			}
		}
	}

	if !isSlice {
		// Plain generic-argument or index list: `Name[A, B]`.
		if p.at(token.COMMA) {
			elems := []ast.Expr{lower}

			for p.at(token.COMMA) {
				p.advance()

				if p.at(token.RBRACKET) {
					break
				}

				e, err := p.parseTernary()
				if err != nil {
					return nil, err
				}

				elems = append(elems, e)
			}

			return &ast.TupleExpr{Base: ast.NewBase(p.spanFrom(start)), Elements: elems}, nil
		}

		return lower, nil
	}

	return &ast.SliceExpr{Base: ast.NewBase(p.spanFrom(start)), Lower: lower, Upper: upper, Step: step}, nil
}

// ===========================================================================
// Atoms
// ===========================================================================

func (p *Parser) parseAtom() (ast.Expr, *ParseError) {
	start := p.cur()

	switch {
	case p.at(token.IDENT):
		p.advance()
		return &ast.NameExpr{Base: ast.NewBase(p.spanFrom(start)), Name: start.Lexeme}, nil
	case p.at(token.INT):
		return p.parseNumberLiteral(start, false)
	case p.at(token.FLOAT):
		return p.parseNumberLiteral(start, true)
	case p.at(token.STRING):
		p.advance()
		return &ast.StringLiteral{Base: ast.NewBase(p.spanFrom(start)), Value: start.Lexeme}, nil
	case p.at(token.BYTES):
		p.advance()
		return &ast.StringLiteral{Base: ast.NewBase(p.spanFrom(start)), Value: start.Lexeme, IsBytes: true}, nil
	case p.at(token.FSTRING_START):
		p.advance()
		return p.buildFString(start)
	case p.atKw(token.TRUE):
		p.advance()
		return &ast.BooleanLiteral{Base: ast.NewBase(p.spanFrom(start)), Value: true}, nil
	case p.atKw(token.FALSE):
		p.advance()
		return &ast.BooleanLiteral{Base: ast.NewBase(p.spanFrom(start)), Value: false}, nil
	case p.atKw(token.NONE):
		p.advance()
		return &ast.NoneLiteral{Base: ast.NewBase(p.spanFrom(start))}, nil
	case p.atKw(token.LAMBDA):
		return p.parseLambda()
	case p.at(token.PIPE):
		return p.parsePipeLambda()
	case p.at(token.LPAREN):
		return p.parseParenOrTuple()
	case p.at(token.LBRACKET):
		return p.parseListOrComprehension()
	case p.at(token.LBRACE):
		return p.parseDictOrSet()
	}

	return nil, p.errorf("expression")
}

func (p *Parser) parseNumberLiteral(tok token.Token, isFloat bool) (ast.Expr, *ParseError) {
	p.advance()

	lit := &ast.NumberLiteral{Base: ast.NewBase(tok.Span), IsFloat: isFloat, Raw: tok.Lexeme}
	clean := strings.ReplaceAll(tok.Lexeme, "_", "")

	if isFloat {
		v, convErr := strconv.ParseFloat(clean, 64)
		if convErr != nil {
			return nil, p.errorf("valid float literal")
		}

		lit.FltValue = v
	} else {
		v, convErr := strconv.ParseInt(clean, 0, 64)
		if convErr != nil {
			return nil, p.errorf("valid integer literal")
		}

		lit.IntValue = v
	}

	return lit, nil
}

// buildFString splits an FSTRING_START token's raw lexeme into literal and
// expression parts, re-lexing and re-parsing each embedded expression
// independently (§4.1, §4.2).
func (p *Parser) buildFString(tok token.Token) (ast.Expr, *ParseError) {
	raw := []rune(tok.Lexeme)

	prefixLen := 1 // the leading 'f'
	i := prefixLen

	quote := raw[i]
	triple := i+2 < len(raw) && raw[i+1] == quote && raw[i+2] == quote

	if triple {
		i += 3
	} else {
		i++
	}

	end := len(raw) - 1

	if triple {
		end -= 2
	}

	body := raw[i:end]

	fstr := &ast.FStringExpr{Base: ast.NewBase(tok.Span)}

	var literal strings.Builder

	j := 0
	for j < len(body) {
		switch body[j] {
		case '{':
			if j+1 < len(body) && body[j+1] == '{' {
				literal.WriteRune('{')
				j += 2
				continue
			}

			if literal.Len() > 0 {
				fstr.Parts = append(fstr.Parts, ast.FStringPart{Literal: literal.String()})
				literal.Reset()
			}

			depth := 1
			start := j + 1
			j++

			for j < len(body) && depth > 0 {
				if body[j] == '{' {
					depth++
				} else if body[j] == '}' {
					depth--

					if depth == 0 {
						break
					}
				}

				j++
			}

			exprSrc := string(body[start:j])
			j++ // consume closing '}'

			inner := source.NewSourceFile(p.file.Filename(), []byte(exprSrc))

			innerExpr, err := Parse(inner)
			if err == nil && len(innerExpr.Body) == 1 {
				if es, ok := innerExpr.Body[0].(*ast.ExprStmt); ok {
					fstr.Parts = append(fstr.Parts, ast.FStringPart{IsExpr: true, Expr: es.Value})
					continue
				}
			}

			fstr.Parts = append(fstr.Parts, ast.FStringPart{
				IsExpr: true,
				Expr:   &ast.StringLiteral{Value: exprSrc},
			})
		case '}':
			if j+1 < len(body) && body[j+1] == '}' {
				literal.WriteRune('}')
				j += 2
				continue
			}

			literal.WriteRune(body[j])
			j++
		default:
			literal.WriteRune(body[j])
			j++
		}
	}

	if literal.Len() > 0 {
		fstr.Parts = append(fstr.Parts, ast.FStringPart{Literal: literal.String()})
	}

	return fstr, nil
}

func (p *Parser) parseLambda() (ast.Expr, *ParseError) {
	start := p.cur()

	p.advance()

	var params []ast.Param

	for !p.at(token.COLON) {
		name, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}

		params = append(params, ast.Param{Name: name.Lexeme})

		if p.at(token.COMMA) {
			p.advance()
			continue
		}

		break
	}

	if _, err := p.expect(token.COLON); err != nil {
		return nil, err
	}

	body, err := p.parseTernary()
	if err != nil {
		return nil, err
	}

	return &ast.LambdaExpr{Base: ast.NewBase(p.spanFrom(start)), Params: params, Body: body}, nil
}

// parsePipeLambda parses the `|x, y| body` and `|x: T, y: T| body` surface
// forms for lambdas (§4.2).
func (p *Parser) parsePipeLambda() (ast.Expr, *ParseError) {
	start := p.cur()

	p.advance() // opening '|'

	var params []ast.Param

	for !p.at(token.PIPE) {
		name, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}

		param := ast.Param{Name: name.Lexeme}

		if p.at(token.COLON) {
			p.advance()

			annot, err := p.parseTernary()
			if err != nil {
				return nil, err
			}

			param.Annotation = annot
		}

		params = append(params, param)

		if p.at(token.COMMA) {
			p.advance()
			continue
		}

		break
	}

	if _, err := p.expect(token.PIPE); err != nil {
		return nil, err
	}

	body, err := p.parseTernary()
	if err != nil {
		return nil, err
	}

	return &ast.LambdaExpr{Base: ast.NewBase(p.spanFrom(start)), Params: params, Body: body}, nil
}

func (p *Parser) parseParenOrTuple() (ast.Expr, *ParseError) {
	start := p.cur()

	p.advance()

	if p.at(token.RPAREN) {
		p.advance()
		return &ast.TupleExpr{Base: ast.NewBase(p.spanFrom(start))}, nil
	}

	first, err := p.parseTernary()
	if err != nil {
		return nil, err
	}

	if !p.at(token.COMMA) {
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}

		return first, nil
	}

	elems := []ast.Expr{first}

	for p.at(token.COMMA) {
		p.advance()

		if p.at(token.RPAREN) {
			break
		}

		e, err := p.parseTernary()
		if err != nil {
			return nil, err
		}

		elems = append(elems, e)
	}

	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}

	return &ast.TupleExpr{Base: ast.NewBase(p.spanFrom(start)), Elements: elems}, nil
}

// parseListOrComprehension parses `[e1, e2, ...]` or `[e for x in xs if c]`.
func (p *Parser) parseListOrComprehension() (ast.Expr, *ParseError) {
	start := p.cur()

	p.advance()

	if p.at(token.RBRACKET) {
		p.advance()
		return &ast.ListExpr{Base: ast.NewBase(p.spanFrom(start))}, nil
	}

	first, err := p.parseTernary()
	if err != nil {
		return nil, err
	}

	if p.atKw(token.FOR) {
		comp, err := p.parseComprehensionTail(start, ast.ListComp, nil, first)
		if err != nil {
			return nil, err
		}

		if _, err := p.expect(token.RBRACKET); err != nil {
			return nil, err
		}

		return comp, nil
	}

	elems := []ast.Expr{first}

	for p.at(token.COMMA) {
		p.advance()

		if p.at(token.RBRACKET) {
			break
		}

		e, err := p.parseTernary()
		if err != nil {
			return nil, err
		}

		elems = append(elems, e)
	}

	if _, err := p.expect(token.RBRACKET); err != nil {
		return nil, err
	}

	return &ast.ListExpr{Base: ast.NewBase(p.spanFrom(start)), Elements: elems}, nil
}

func (p *Parser) parseComprehensionTail(
	start token.Token, kind ast.ComprehensionKind, key, element ast.Expr,
) (*ast.ComprehensionExpr, *ParseError) {
	if _, err := p.expectKw(token.FOR); err != nil {
		return nil, err
	}

	target, err := p.parseBitOr()
	if err != nil {
		return nil, err
	}

	if _, err := p.expectKw(token.IN); err != nil {
		return nil, err
	}

	iter, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	comp := &ast.ComprehensionExpr{Kind: kind, Element: element, Key: key, Target: target, Iter: iter}

	for p.atKw(token.IF) {
		p.advance()

		cond, err := p.parseOr()
		if err != nil {
			return nil, err
		}

		comp.Ifs = append(comp.Ifs, cond)
	}

	comp.Base = ast.NewBase(p.spanFrom(start))

	return comp, nil
}

// parseDictOrSet parses `{}`, `{k: v, ...}`, `{k: v for ...}`, `{v, ...}`, and
// `{v for ...}` (§4.2's dict-vs-set disambiguation).
func (p *Parser) parseDictOrSet() (ast.Expr, *ParseError) {
	start := p.cur()

	p.advance()

	if p.at(token.RBRACE) {
		p.advance()
		return &ast.DictExpr{Base: ast.NewBase(p.spanFrom(start))}, nil
	}

	first, err := p.parseTernary()
	if err != nil {
		return nil, err
	}

	if p.at(token.COLON) {
		p.advance()

		val, err := p.parseTernary()
		if err != nil {
			return nil, err
		}

		if p.atKw(token.FOR) {
			comp, err := p.parseComprehensionTail(start, ast.DictComp, first, val)
			if err != nil {
				return nil, err
			}

			if _, err := p.expect(token.RBRACE); err != nil {
				return nil, err
			}

			return comp, nil
		}

		entries := []ast.DictEntry{{Key: first, Value: val}}

		for p.at(token.COMMA) {
			p.advance()

			if p.at(token.RBRACE) {
				break
			}

			k, err := p.parseTernary()
			if err != nil {
				return nil, err
			}

			if _, err := p.expect(token.COLON); err != nil {
				return nil, err
			}

			v, err := p.parseTernary()
			if err != nil {
				return nil, err
			}

			entries = append(entries, ast.DictEntry{Key: k, Value: v})
		}

		if _, err := p.expect(token.RBRACE); err != nil {
			return nil, err
		}

		return &ast.DictExpr{Base: ast.NewBase(p.spanFrom(start)), Entries: entries}, nil
	}

	if p.atKw(token.FOR) {
		comp, err := p.parseComprehensionTail(start, ast.SetComp, nil, first)
		if err != nil {
			return nil, err
		}

		if _, err := p.expect(token.RBRACE); err != nil {
			return nil, err
		}

		return comp, nil
	}

	elems := []ast.Expr{first}

	for p.at(token.COMMA) {
		p.advance()

		if p.at(token.RBRACE) {
			break
		}

		e, err := p.parseTernary()
		if err != nil {
			return nil, err
		}

		elems = append(elems, e)
	}

	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}

	return &ast.SetExpr{Base: ast.NewBase(p.spanFrom(start)), Elements: elems}, nil
}
