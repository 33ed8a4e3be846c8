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

// Package lexer turns Quiche surface source into a token stream with
// significant indentation, per §4.1.
package lexer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/quichelang/quiche/pkg/source"
	"github.com/quichelang/quiche/pkg/token"
	"github.com/quichelang/quiche/pkg/util/collection/stack"
)

// LexError reports a lexical failure: an unterminated literal, a bad escape,
// an illegal character, or inconsistent indentation (§4.1, §7).
type LexError struct {
	*source.SyntaxError
}

func (l *Lexer) errorf(span source.Span, format string, args ...any) *LexError {
	return &LexError{l.file.SyntaxError(span, fmt.Sprintf(format, args...))}
}

// Lexer holds the mutable state of a single lexing pass over one file.
type Lexer struct {
	file        *source.File
	runes       []rune
	pos            int
	indents        *stack.Stack[int]
	depth          int // open-bracket nesting depth, suppresses NEWLINE while non-zero (§4.1)
	atLineStart    bool
	pendingDedents int // remaining DEDENTs owed for a line that dropped more than one indent level
	tokens         []token.Token
}

// New constructs a lexer over the given source file.
func New(file *source.File) *Lexer {
	indents := stack.NewStack[int]()
	indents.Push(0)

	return &Lexer{
		file:        file,
		runes:       file.Contents(),
		indents:     indents,
		atLineStart: true,
	}
}

// Tokenize runs the lexer to completion, returning every token up to and
// including the terminating NEWLINE+EOF (a lone EOF when the input holds no
// tokens), or the first LexError encountered.
func Tokenize(file *source.File) ([]token.Token, *LexError) {
	l := New(file)

	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}

		l.tokens = append(l.tokens, tok)

		if tok.Kind == token.EOF {
			return l.tokens, nil
		}
	}
}

func (l *Lexer) span(start int) source.Span {
	return source.NewSpan(start, l.pos)
}

func (l *Lexer) peek() rune {
	if l.pos >= len(l.runes) {
		return 0
	}

	return l.runes[l.pos]
}

func (l *Lexer) peekAt(offset int) rune {
	if l.pos+offset >= len(l.runes) {
		return 0
	}

	return l.runes[l.pos+offset]
}

func (l *Lexer) advance() rune {
	r := l.runes[l.pos]
	l.pos++

	return r
}

func (l *Lexer) eof() bool {
	return l.pos >= len(l.runes)
}

// next produces the next token, handling indentation at logical line starts.
func (l *Lexer) next() (token.Token, *LexError) {
	if l.pendingDedents > 0 {
		l.pendingDedents--

		if l.pendingDedents == 0 {
			l.atLineStart = false
		}

		return token.Token{Kind: token.DEDENT, Span: l.span(l.pos)}, nil
	}

	if l.atLineStart && l.depth == 0 {
		if tok, done, err := l.lexIndentation(); err != nil {
			return token.Token{}, err
		} else if done {
			return tok, nil
		}
	}

	l.atLineStart = false

	l.skipInlineWhitespace()

	if l.eof() {
		return l.finalizeAtEof()
	}

	switch r := l.peek(); {
	case r == '\n':
		return l.lexNewline()
	case r == '\\' && l.peekAt(1) == '\n':
		l.pos += 2
		return l.next()
	case r == '#':
		l.skipComment()
		return l.next()
	case r == '"' || r == '\'':
		return l.lexString()
	case isIdentStart(r):
		return l.lexIdentOrKeywordOrFString()
	case isDigit(r):
		return l.lexNumber()
	default:
		return l.lexOperator()
	}
}

// lexIndentation measures leading whitespace on a fresh logical line and
// emits INDENT/DEDENT tokens per the indentation-stack algorithm in §4.1. It
// returns done=true with a token to emit immediately (INDENT/DEDENT), or
// done=false to fall through to ordinary lexing once indentation is settled.
func (l *Lexer) lexIndentation() (token.Token, bool, *LexError) {
	start := l.pos
	spaces, tabs := 0, 0

loop:
	for !l.eof() {
		switch l.peek() {
		case ' ':
			spaces++
			l.pos++
		case '\t':
			tabs++
			l.pos++
		default:
			break loop
		}
	}

	// A blank or comment-only line contributes no indentation change.
	if l.eof() || l.peek() == '\n' || l.peek() == '#' {
		l.atLineStart = false
		return token.Token{}, false, nil
	}

	if spaces > 0 && tabs > 0 {
		return token.Token{}, false, l.errorf(l.span(start), "mixed tabs and spaces in indentation")
	}

	col := spaces + tabs
	top := l.indents.Peek(0)

	switch {
	case col > top:
		l.indents.Push(col)
		l.atLineStart = false

		return token.Token{Kind: token.INDENT, Span: l.span(start)}, true, nil
	case col < top:
		levels := 0

		for !l.indents.IsEmpty() && col < l.indents.Peek(0) {
			l.indents.Pop()
			levels++
		}

		if l.indents.Peek(0) != col {
			return token.Token{}, false, l.errorf(l.span(start), "inconsistent indentation")
		}

		// One DEDENT is returned immediately below; any further levels this
		// line dropped are owed as pending DEDENTs, drained by next() without
		// re-measuring the (already-consumed) leading whitespace.
		l.pendingDedents = levels - 1
		if l.pendingDedents == 0 {
			l.atLineStart = false
		}

		return token.Token{Kind: token.DEDENT, Span: l.span(start)}, true, nil
	default:
		l.atLineStart = false
		return token.Token{}, false, nil
	}
}

// finalizeAtEof drains any still-open indentation levels into trailing
// DEDENT tokens, emits a closing NEWLINE if the logical line was never
// terminated, and finally returns EOF. Called repeatedly at end of input
// until EOF is produced.
func (l *Lexer) finalizeAtEof() (token.Token, *LexError) {
	if len(l.tokens) > 0 && l.tokens[len(l.tokens)-1].Kind != token.NEWLINE &&
		l.tokens[len(l.tokens)-1].Kind != token.DEDENT && l.tokens[len(l.tokens)-1].Kind != token.INDENT {
		return token.Token{Kind: token.NEWLINE, Span: l.span(l.pos)}, nil
	}

	if l.indents.Peek(0) > 0 {
		l.indents.Pop()
		return token.Token{Kind: token.DEDENT, Span: l.span(l.pos)}, nil
	}

	return token.Token{Kind: token.EOF, Span: l.span(l.pos)}, nil
}

// lexNewline consumes a physical newline. Inside an open bracket it carries
// no logical significance and is swallowed, per §4.1.
func (l *Lexer) lexNewline() (token.Token, *LexError) {
	start := l.pos
	l.pos++

	if l.depth > 0 {
		return l.next()
	}

	l.atLineStart = true

	return token.Token{Kind: token.NEWLINE, Span: l.span(start)}, nil
}

func (l *Lexer) skipInlineWhitespace() {
	for !l.eof() && (l.peek() == ' ' || l.peek() == '\t') {
		l.pos++
	}
}

func (l *Lexer) skipComment() {
	for !l.eof() && l.peek() != '\n' {
		l.pos++
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentCont(r rune) bool {
	return isIdentStart(r) || isDigit(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func (l *Lexer) lexIdentOrKeywordOrFString() (token.Token, *LexError) {
	start := l.pos

	for !l.eof() && isIdentCont(l.peek()) {
		l.pos++
	}

	name := string(l.runes[start:l.pos])

	// f-strings / byte strings are prefixed identifiers immediately followed
	// by a quote, e.g. f"...", b'...'.
	if !l.eof() && (l.peek() == '"' || l.peek() == '\'') {
		switch strings.ToLower(name) {
		case "f":
			return l.lexFString(start)
		case "b":
			return l.lexBytes(start)
		}
	}

	if kw, ok := token.Keywords[name]; ok {
		return token.Token{Kind: token.KEYWORD, Keyword: kw, Lexeme: name, Span: l.span(start)}, nil
	}

	return token.Token{Kind: token.IDENT, Lexeme: name, Span: l.span(start)}, nil
}

// lexNumber lexes decimal/hex/binary/octal integers and decimal floats, with
// underscore digit separators, per §4.1.
func (l *Lexer) lexNumber() (token.Token, *LexError) {
	start := l.pos

	if l.peek() == '0' && (l.peekAt(1) == 'x' || l.peekAt(1) == 'X') {
		l.pos += 2
		l.consumeDigitRun(isHexDigit)
		return l.finishNumber(start, false)
	}

	if l.peek() == '0' && (l.peekAt(1) == 'b' || l.peekAt(1) == 'B') {
		l.pos += 2
		l.consumeDigitRun(isBinDigit)
		return l.finishNumber(start, false)
	}

	if l.peek() == '0' && (l.peekAt(1) == 'o' || l.peekAt(1) == 'O') {
		l.pos += 2
		l.consumeDigitRun(isOctDigit)
		return l.finishNumber(start, false)
	}

	l.consumeDigitRun(isDigit)

	isFloat := false
	if l.peek() == '.' && isDigit(l.peekAt(1)) {
		isFloat = true
		l.pos++
		l.consumeDigitRun(isDigit)
	}

	if l.peek() == 'e' || l.peek() == 'E' {
		save := l.pos
		l.pos++

		if l.peek() == '+' || l.peek() == '-' {
			l.pos++
		}

		if isDigit(l.peek()) {
			isFloat = true
			l.consumeDigitRun(isDigit)
		} else {
			l.pos = save
		}
	}

	return l.finishNumber(start, isFloat)
}

func (l *Lexer) consumeDigitRun(pred func(rune) bool) {
	for !l.eof() && (pred(l.peek()) || l.peek() == '_') {
		l.pos++
	}
}

func isHexDigit(r rune) bool {
	return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func isBinDigit(r rune) bool { return r == '0' || r == '1' }
func isOctDigit(r rune) bool { return r >= '0' && r <= '7' }

func (l *Lexer) finishNumber(start int, isFloat bool) (token.Token, *LexError) {
	raw := string(l.runes[start:l.pos])
	clean := strings.ReplaceAll(raw, "_", "")

	if isFloat {
		if _, err := strconv.ParseFloat(clean, 64); err != nil {
			return token.Token{}, l.errorf(l.span(start), "invalid float literal")
		}

		return token.Token{Kind: token.FLOAT, Lexeme: raw, Span: l.span(start)}, nil
	}

	if _, err := strconv.ParseInt(clean, 0, 64); err != nil {
		return token.Token{}, l.errorf(l.span(start), "invalid integer literal")
	}

	return token.Token{Kind: token.INT, Lexeme: raw, Span: l.span(start)}, nil
}

// lexString lexes a single/double, optionally triple-quoted string literal.
func (l *Lexer) lexString() (token.Token, *LexError) {
	start := l.pos
	quote := l.advance()
	triple := l.peek() == quote && l.peekAt(1) == quote

	if triple {
		l.pos += 2
	}

	var sb strings.Builder

	for {
		if l.eof() {
			return token.Token{}, l.errorf(l.span(start), "unterminated string literal")
		}

		if triple {
			if l.peek() == quote && l.peekAt(1) == quote && l.peekAt(2) == quote {
				l.pos += 3
				break
			}
		} else if l.peek() == quote {
			l.pos++
			break
		} else if l.peek() == '\n' {
			return token.Token{}, l.errorf(l.span(start), "unterminated string literal")
		}

		if l.peek() == '\\' {
			r, err := l.lexEscape(start)
			if err != nil {
				return token.Token{}, err
			}

			sb.WriteRune(r)

			continue
		}

		sb.WriteRune(l.advance())
	}

	return token.Token{Kind: token.STRING, Lexeme: sb.String(), Span: l.span(start)}, nil
}

func (l *Lexer) lexBytes(start int) (token.Token, *LexError) {
	tok, err := l.lexString()
	if err != nil {
		return tok, err
	}

	tok.Kind = token.BYTES
	tok.Span = l.span(start)

	return tok, nil
}

// lexFString lexes an f-string into alternating literal chunks and embedded
// expression source text; the embedded expression text is re-lexed and
// re-parsed independently by the parser (§4.1, §4.2). Here the raw text
// (including `{expr}` markers) is retained in Lexeme; splitting into parts
// is done by the parser so that it can recursively invoke Tokenize on each
// embedded expression's byte range.
func (l *Lexer) lexFString(start int) (token.Token, *LexError) {
	quote := l.advance()
	triple := l.peek() == quote && l.peekAt(1) == quote

	if triple {
		l.pos += 2
	}

	braceDepth := 0

	for {
		if l.eof() {
			return token.Token{}, l.errorf(l.span(start), "unterminated f-string literal")
		}

		if braceDepth == 0 {
			if triple {
				if l.peek() == quote && l.peekAt(1) == quote && l.peekAt(2) == quote {
					l.pos += 3
					break
				}
			} else if l.peek() == quote {
				l.pos++
				break
			} else if l.peek() == '\n' && !triple {
				return token.Token{}, l.errorf(l.span(start), "unterminated f-string literal")
			}
		}

		switch l.peek() {
		case '{':
			if l.peekAt(1) == '{' && braceDepth == 0 {
				l.pos += 2
				continue
			}

			braceDepth++
			l.pos++
		case '}':
			if l.peekAt(1) == '}' && braceDepth == 0 {
				l.pos += 2
				continue
			}

			if braceDepth > 0 {
				braceDepth--
			}

			l.pos++
		case '\\':
			if braceDepth == 0 {
				if _, err := l.lexEscape(start); err != nil {
					return token.Token{}, err
				}

				continue
			}

			l.pos++
		default:
			l.pos++
		}
	}

	return token.Token{Kind: token.FSTRING_START, Lexeme: string(l.runes[start:l.pos]), Span: l.span(start)}, nil
}

func (l *Lexer) lexEscape(strStart int) (rune, *LexError) {
	l.pos++ // consume backslash

	if l.eof() {
		return 0, l.errorf(l.span(strStart), "unterminated escape sequence")
	}

	switch r := l.advance(); r {
	case 'n':
		return '\n', nil
	case 't':
		return '\t', nil
	case 'r':
		return '\r', nil
	case '\\':
		return '\\', nil
	case '\'':
		return '\'', nil
	case '"':
		return '"', nil
	case '0':
		return 0, nil
	default:
		if r == 'x' || r == 'u' || r == 'U' {
			// Hex escapes (\xHH, \uHHHH, \UHHHHHHHH) are decoded to the code
			// point they name, like the other escapes above.
			width := map[rune]int{'x': 2, 'u': 4, 'U': 8}[r]
			if l.pos+width > len(l.runes) {
				return 0, l.errorf(l.span(strStart), "invalid escape sequence")
			}

			v, convErr := strconv.ParseUint(string(l.runes[l.pos:l.pos+width]), 16, 32)
			if convErr != nil {
				return 0, l.errorf(l.span(strStart), "invalid escape sequence")
			}

			l.pos += width

			return rune(v), nil
		}

		return 0, l.errorf(l.span(strStart), "invalid escape sequence")
	}
}

// lexOperator lexes punctuation and operator tokens, longest-match first.
func (l *Lexer) lexOperator() (token.Token, *LexError) {
	start := l.pos
	r := l.advance()

	three := func(a, b rune) bool { return l.peek() == a && l.peekAt(1) == b }

	switch r {
	case '(':
		l.depth++
		return l.emit(start, token.LPAREN), nil
	case ')':
		l.depth--
		return l.emit(start, token.RPAREN), nil
	case '[':
		l.depth++
		return l.emit(start, token.LBRACKET), nil
	case ']':
		l.depth--
		return l.emit(start, token.RBRACKET), nil
	case '{':
		l.depth++
		return l.emit(start, token.LBRACE), nil
	case '}':
		l.depth--
		return l.emit(start, token.RBRACE), nil
	case ',':
		return l.emit(start, token.COMMA), nil
	case ';':
		return l.emit(start, token.SEMICOLON), nil
	case ':':
		if l.peek() == '=' {
			l.pos++
			return l.emit(start, token.COLONEQ), nil
		}

		return l.emit(start, token.COLON), nil
	case '.':
		if l.peek() == '.' && l.peekAt(1) == '.' {
			l.pos += 2
			return l.emit(start, token.ELLIPSIS), nil
		}

		return l.emit(start, token.DOT), nil
	case '+':
		if l.peek() == '=' {
			l.pos++
			return l.emit(start, token.PLUSEQ), nil
		}

		return l.emit(start, token.PLUS), nil
	case '-':
		if l.peek() == '=' {
			l.pos++
			return l.emit(start, token.MINUSEQ), nil
		}

		if l.peek() == '>' {
			l.pos++
			return l.emit(start, token.ARROW), nil
		}

		return l.emit(start, token.MINUS), nil
	case '*':
		if three('*', '=') {
			l.pos += 2
			return l.emit(start, token.DSTAREQ), nil
		}

		if l.peek() == '*' {
			l.pos++
			return l.emit(start, token.DSTAR), nil
		}

		if l.peek() == '=' {
			l.pos++
			return l.emit(start, token.STAREQ), nil
		}

		return l.emit(start, token.STAR), nil
	case '/':
		if three('/', '=') {
			l.pos += 2
			return l.emit(start, token.DSLASHEQ), nil
		}

		if l.peek() == '/' {
			l.pos++
			return l.emit(start, token.DSLASH), nil
		}

		if l.peek() == '=' {
			l.pos++
			return l.emit(start, token.SLASHEQ), nil
		}

		return l.emit(start, token.SLASH), nil
	case '%':
		if l.peek() == '=' {
			l.pos++
			return l.emit(start, token.PERCENTEQ), nil
		}

		return l.emit(start, token.PERCENT), nil
	case '@':
		return l.emit(start, token.AT), nil
	case '=':
		if l.peek() == '=' {
			l.pos++
			return l.emit(start, token.EQEQ), nil
		}

		return l.emit(start, token.EQ), nil
	case '!':
		if l.peek() == '=' {
			l.pos++
			return l.emit(start, token.NOTEQ), nil
		}

		return token.Token{}, l.errorf(l.span(start), "illegal character '!'")
	case '<':
		if l.peek() == '<' {
			l.pos++

			if l.peek() == '=' {
				l.pos++
				return l.emit(start, token.LSHIFTEQ), nil
			}

			return l.emit(start, token.LSHIFT), nil
		}

		if l.peek() == '=' {
			l.pos++
			return l.emit(start, token.LTEQ), nil
		}

		return l.emit(start, token.LT), nil
	case '>':
		if l.peek() == '>' {
			l.pos++

			if l.peek() == '=' {
				l.pos++
				return l.emit(start, token.RSHIFTEQ), nil
			}

			return l.emit(start, token.RSHIFT), nil
		}

		if l.peek() == '=' {
			l.pos++
			return l.emit(start, token.GTEQ), nil
		}

		return l.emit(start, token.GT), nil
	case '|':
		if l.peek() == '>' {
			l.pos++
			return l.emit(start, token.PIPE_ARROW), nil
		}

		if l.peek() == '=' {
			l.pos++
			return l.emit(start, token.PIPEEQ), nil
		}

		return l.emit(start, token.PIPE), nil
	case '&':
		if l.peek() == '=' {
			l.pos++
			return l.emit(start, token.AMPEQ), nil
		}

		return l.emit(start, token.AMP), nil
	case '^':
		if l.peek() == '=' {
			l.pos++
			return l.emit(start, token.CARETEQ), nil
		}

		return l.emit(start, token.CARET), nil
	case '~':
		return l.emit(start, token.TILDE), nil
	default:
		return token.Token{}, l.errorf(l.span(start), "illegal character %q", r)
	}
}

func (l *Lexer) emit(start int, kind token.Kind) token.Token {
	return token.Token{Kind: kind, Span: l.span(start), Lexeme: string(l.runes[start:l.pos])}
}
