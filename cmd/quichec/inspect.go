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
	"math"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quichelang/quiche/pkg/codegen"
	"github.com/quichelang/quiche/pkg/desugar"
	"github.com/quichelang/quiche/pkg/lexer"
	"github.com/quichelang/quiche/pkg/parser"
	"github.com/quichelang/quiche/pkg/semantic"
	"github.com/quichelang/quiche/pkg/source"
	"github.com/quichelang/quiche/pkg/token"
	"github.com/quichelang/quiche/pkg/util/termio"
	"github.com/quichelang/quiche/pkg/util/termio/widget"
)

// inspectCmd opens an interactive viewer over a single file's pipeline
// stages (tokens, raw AST, desugared AST, symbol table, emitted text),
// adapted from the teacher's trace inspector (arrow-key navigation
// between "columns") to navigation between compiler pipeline stages.
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "interactively browse a file's pipeline stages",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runInspect(args[0]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

// stage is one named, pre-rendered view of the pipeline over a single
// file.
type stage struct {
	title string
	lines []string
}

// buildStages runs the pipeline as far as it will go, turning the first
// failing stage into a final "error" stage rather than aborting --
// the viewer should always show at least the stages that did succeed.
func buildStages(path string) ([]stage, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	file := source.NewSourceFile(path, contents)

	toks, lexErr := lexer.Tokenize(file)

	var stages []stage

	if lexErr != nil {
		stages = append(stages, stage{title: "error", lines: []string{formatDiagnostic(file, lexErr.Span(), "lex", lexErr.Message())}})
		return stages, nil
	}

	stages = append(stages, stage{title: "tokens", lines: dumpTokens(toks)})

	rawMod, perr := parser.Parse(file)
	if perr != nil {
		stages = append(stages, stage{title: "error", lines: []string{describeError(file, perr)}})
		return stages, nil
	}

	stages = append(stages, stage{title: "raw-ast", lines: splitLines(dumpModule(rawMod))})

	loweredMod, derr := desugar.Lower(rawMod)
	if derr != nil {
		stages = append(stages, stage{title: "error", lines: []string{formatDiagnostic(file, derr.Span, "desugar", derr.Reason)}})
		return stages, nil
	}

	stages = append(stages, stage{title: "desugared-ast", lines: splitLines(dumpModule(loweredMod))})

	result, serrs := semantic.Analyze(loweredMod)
	if len(serrs) > 0 {
		stages = append(stages, stage{title: "error", lines: []string{formatDiagnostic(file, serrs[0].Span, "semantic", serrs[0].Reason)}})
		return stages, nil
	}

	stages = append(stages, stage{title: "symbols", lines: dumpSymbols(result)})

	out, cerr := codegen.EmitModule(loweredMod, result)
	if cerr != nil {
		stages = append(stages, stage{title: "error", lines: []string{formatDiagnostic(file, cerr.Span, "codegen", cerr.Error())}})
		return stages, nil
	}

	stages = append(stages, stage{title: "emitted", lines: splitLines(out)})

	return stages, nil
}

func describeError(file *source.File, err error) string {
	if e, ok := err.(*parser.ParseError); ok {
		return formatDiagnostic(file, e.Span, "parse", e.Error())
	}

	return err.Error()
}

func dumpTokens(toks []token.Token) []string {
	lines := make([]string, 0, len(toks))
	for _, t := range toks {
		lines = append(lines, fmt.Sprintf("%-20s %q", t.Kind.String(), t.Lexeme))
	}

	return lines
}

func dumpSymbols(result *semantic.Result) []string {
	var lines []string

	for name := range result.Types {
		lines = append(lines, fmt.Sprintf("type  %s", name))
	}

	return lines
}

func splitLines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

// runInspect opens the interactive, raw-mode terminal viewer, handling
// left/right arrow keys to switch between stages and up/down to scroll.
func runInspect(path string) error {
	stages, err := buildStages(path)
	if err != nil {
		return err
	}

	term, err := termio.NewTerminal()
	if err != nil {
		return err
	}

	defer term.Restore()

	titles := make([]string, len(stages))
	for i, s := range stages {
		titles[i] = s.title
	}

	tabs := widget.NewTabs(titles...)
	body := newLinesPane()
	status := widget.NewText()

	term.Add(tabs)
	term.Add(widget.NewSeparator("-"))
	term.Add(body)
	term.Add(status)

	current := 0
	scroll := uint(0)

	render := func() {
		tabs.Select(uint(current))
		body.setLines(stages[current].lines, scroll)
		status.Clear()
		status.Add(termio.NewText(fmt.Sprintf(" stage %d/%d -- arrows to navigate, q to quit", current+1, len(stages))))
		term.Render()
	}

	render()

	for {
		key, err := term.ReadKey()
		if err != nil {
			return err
		}

		switch key {
		case 'q', termio.ESC:
			return nil
		case termio.CURSOR_LEFT:
			if current > 0 {
				current--
				scroll = 0
			}
		case termio.CURSOR_RIGHT:
			if current < len(stages)-1 {
				current++
				scroll = 0
			}
		case termio.CURSOR_UP:
			if scroll > 0 {
				scroll--
			}
		case termio.CURSOR_DOWN:
			scroll++
		}

		render()
	}
}

// linesPane renders a scrollable window over a slice of plain text lines.
type linesPane struct {
	lines  []string
	scroll uint
}

func newLinesPane() *linesPane {
	return &linesPane{}
}

func (p *linesPane) setLines(lines []string, scroll uint) {
	p.lines = lines
	p.scroll = scroll
}

func (p *linesPane) GetHeight() uint {
	return math.MaxUint
}

func (p *linesPane) Render(canvas termio.Canvas) {
	_, height := canvas.GetDimensions()

	for row := uint(0); row < height; row++ {
		idx := p.scroll + row
		if idx >= uint(len(p.lines)) {
			break
		}

		canvas.Write(0, row, termio.NewText(p.lines[idx]))
	}
}
