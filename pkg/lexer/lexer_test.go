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
package lexer

import (
	"testing"

	"github.com/quichelang/quiche/pkg/source"
	"github.com/quichelang/quiche/pkg/token"
	"github.com/quichelang/quiche/pkg/util/assert"
)

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, len(toks))

	for i, tok := range toks {
		out[i] = tok.Kind
	}

	return out
}

func checkKinds(t *testing.T, input string, expected ...token.Kind) {
	file := source.NewSourceFile("<test>", []byte(input))

	toks, err := Tokenize(file)
	if err != nil {
		t.Fatalf("unexpected lex error: %v", err)
	}

	assert.Equal(t, expected, kinds(toks))
}

func TestLexer_Empty(t *testing.T) {
	checkKinds(t, "", token.EOF)
}

func TestLexer_SimpleAssign(t *testing.T) {
	checkKinds(t, "x = 1\n",
		token.IDENT, token.EQ, token.INT, token.NEWLINE, token.EOF)
}

func TestLexer_Indentation(t *testing.T) {
	checkKinds(t, "if x:\n    y = 1\nz = 2\n",
		token.KEYWORD, token.IDENT, token.COLON, token.NEWLINE,
		token.INDENT, token.IDENT, token.EQ, token.INT, token.NEWLINE,
		token.DEDENT, token.IDENT, token.EQ, token.INT, token.NEWLINE,
		token.EOF)
}

func TestLexer_NestedIndentation(t *testing.T) {
	checkKinds(t, "if a:\n    if b:\n        c\n    d\n",
		token.KEYWORD, token.IDENT, token.COLON, token.NEWLINE,
		token.INDENT, token.KEYWORD, token.IDENT, token.COLON, token.NEWLINE,
		token.INDENT, token.IDENT, token.NEWLINE,
		token.DEDENT, token.IDENT, token.NEWLINE,
		token.DEDENT, token.EOF)
}

// A dedent back to a nonzero column must not corrupt the indent stack for
// the rest of the file: a second statement at that same column must not
// see a spurious extra DEDENT.
func TestLexer_DedentToNonzeroColumnThenContinuing(t *testing.T) {
	checkKinds(t, "if a:\n    if b:\n        c\n    d\n    e\n",
		token.KEYWORD, token.IDENT, token.COLON, token.NEWLINE,
		token.INDENT, token.KEYWORD, token.IDENT, token.COLON, token.NEWLINE,
		token.INDENT, token.IDENT, token.NEWLINE,
		token.DEDENT, token.IDENT, token.NEWLINE,
		token.IDENT, token.NEWLINE,
		token.DEDENT, token.EOF)
}

// Dropping two indent levels on a single line must emit one DEDENT per
// level, not one token for the whole transition.
func TestLexer_MultiLevelDedentEmitsOnePerLevel(t *testing.T) {
	checkKinds(t, "if a:\n    if b:\n        c\nd\n",
		token.KEYWORD, token.IDENT, token.COLON, token.NEWLINE,
		token.INDENT, token.KEYWORD, token.IDENT, token.COLON, token.NEWLINE,
		token.INDENT, token.IDENT, token.NEWLINE,
		token.DEDENT, token.DEDENT, token.IDENT, token.NEWLINE,
		token.EOF)
}

func TestLexer_BracketSuppressesNewline(t *testing.T) {
	checkKinds(t, "f(\n    1,\n    2,\n)\n",
		token.IDENT, token.LPAREN, token.INT, token.COMMA, token.INT, token.COMMA, token.RPAREN, token.NEWLINE,
		token.EOF)
}

func TestLexer_LineContinuation(t *testing.T) {
	checkKinds(t, "x = 1 + \\\n    2\n",
		token.IDENT, token.EQ, token.INT, token.PLUS, token.INT, token.NEWLINE, token.EOF)
}

func TestLexer_Comment(t *testing.T) {
	checkKinds(t, "x = 1 # comment\n",
		token.IDENT, token.EQ, token.INT, token.NEWLINE, token.EOF)
}

func TestLexer_Operators(t *testing.T) {
	checkKinds(t, "a // b ** c |> d\n",
		token.IDENT, token.DSLASH, token.IDENT, token.DSTAR, token.IDENT, token.PIPE_ARROW, token.IDENT,
		token.NEWLINE, token.EOF)
}

func TestLexer_HexBinOctNumbers(t *testing.T) {
	checkKinds(t, "0xFF 0b101 0o17 1_000\n",
		token.INT, token.INT, token.INT, token.INT, token.NEWLINE, token.EOF)
}

func TestLexer_Float(t *testing.T) {
	checkKinds(t, "1.5 2.0e10\n", token.FLOAT, token.FLOAT, token.NEWLINE, token.EOF)
}

func TestLexer_StringLiteral(t *testing.T) {
	file := source.NewSourceFile("<test>", []byte(`"hi\n"` + "\n"))

	toks, err := Tokenize(file)
	if err != nil {
		t.Fatalf("unexpected lex error: %v", err)
	}

	assert.Equal(t, token.STRING, toks[0].Kind)
	assert.Equal(t, "hi\n", toks[0].Lexeme)
}

func TestLexer_FString(t *testing.T) {
	checkKinds(t, "f\"hello {name}\"\n", token.FSTRING_START, token.NEWLINE, token.EOF)
}

func TestLexer_InconsistentIndentationErrors(t *testing.T) {
	file := source.NewSourceFile("<test>", []byte("if a:\n    x\n  y\n"))

	if _, err := Tokenize(file); err == nil {
		t.Fatalf("expected an indentation error")
	}
}

func TestLexer_UnterminatedStringErrors(t *testing.T) {
	file := source.NewSourceFile("<test>", []byte(`"unterminated`))

	if _, err := Tokenize(file); err == nil {
		t.Fatalf("expected an unterminated-string error")
	}
}
