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

package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/quichelang/quiche/pkg/ast"
	"github.com/quichelang/quiche/pkg/cliutil"
	"github.com/quichelang/quiche/pkg/codegen"
	"github.com/quichelang/quiche/pkg/desugar"
	"github.com/quichelang/quiche/pkg/lexer"
	"github.com/quichelang/quiche/pkg/parser"
	"github.com/quichelang/quiche/pkg/semantic"
	"github.com/quichelang/quiche/pkg/source"
)

// runCompile drives the full pipeline over a single file and prints the
// emission mode the --emit flag selects, exiting non-zero and reporting
// `file:line:col: kind: message` to stderr on the first failing stage
// (§6, §7: no partial emission).
func runCompile(cmd *cobra.Command, path string) {
	if cliutil.GetFlag(cmd, "verbose") {
		log.SetLevel(log.DebugLevel)
	}

	emit := cliutil.GetString(cmd, "emit")

	contents, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
		os.Exit(2)
	}

	file := source.NewSourceFile(path, contents)

	log.WithFields(log.Fields{"stage": "lex", "file": path}).Debug("starting pipeline")

	rawMod, err := parser.Parse(file)
	if err != nil {
		reportAndExit(file, err)
	}

	if emit == "raw-ast" {
		fmt.Println(dumpModule(rawMod))
		return
	}

	loweredMod, derr := desugar.Lower(rawMod)
	if derr != nil {
		reportAndExit(file, derr)
	}

	if emit == "ast" {
		fmt.Println(dumpModule(loweredMod))
		return
	}

	result, serrs := semantic.Analyze(loweredMod)
	if len(serrs) > 0 {
		reportAndExit(file, serrs[0])
	}

	out, cerr := codegen.EmitModule(loweredMod, result)
	if cerr != nil {
		reportAndExit(file, cerr)
	}

	fmt.Print(out)
}

// reportAndExit formats err in the controller's `file:line:col: kind:
// message` shape and exits with a non-zero status. Each pipeline error
// kind carries its span differently (LexError embeds *source.SyntaxError;
// Parse/Desugar/Semantic/CodegenError carry a bare source.Span field), so
// this dispatches per concrete type rather than via a shared interface.
func reportAndExit(file *source.File, err error) {
	var (
		span    source.Span
		kind    string
		message string
	)

	switch e := err.(type) {
	case *lexer.LexError:
		span = e.Span()
		kind = "lex"
		message = e.Message()
	case *parser.ParseError:
		span = e.Span
		kind = "parse"
		message = e.Error()
	case *desugar.DesugarError:
		span = e.Span
		kind = "desugar"
		message = e.Reason
	case *semantic.SemanticError:
		span = e.Span
		kind = "semantic"
		message = e.Reason
	case *codegen.CodegenError:
		span = e.Span
		kind = "codegen"
		message = e.Error()
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Fprintln(os.Stderr, formatDiagnostic(file, span, kind, message))
	os.Exit(1)
}

// formatDiagnostic renders "file:startLine:startCol: <kind>: <message>"
// per §6's CLI error-reporting contract.
func formatDiagnostic(file *source.File, span source.Span, kind, message string) string {
	line := file.FindFirstEnclosingLine(span)
	col := span.Start() - line.Start() + 1

	return fmt.Sprintf("%s:%d:%d: %s: %s", file.Filename(), line.Number(), col, kind, message)
}

// dumpModule renders a module's statement tree with Go's own struct
// formatting -- every AST node's fields are exported, and %+v's
// recursive struct/pointer expansion is exactly what --emit=ast and
// --emit=raw-ast need: a faithful, greppable dump of the tree, not a
// polished pretty-printer.
func dumpModule(mod *ast.Module) string {
	var out string

	for i, stmt := range mod.Body {
		out += fmt.Sprintf("[%d] %+v\n", i, stmt)
	}

	return out
}
