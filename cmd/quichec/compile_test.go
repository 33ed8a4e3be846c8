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
	"strings"
	"testing"

	"github.com/quichelang/quiche/pkg/ast"
	"github.com/quichelang/quiche/pkg/parser"
	"github.com/quichelang/quiche/pkg/source"
	"github.com/quichelang/quiche/pkg/util/assert"
)

func TestFormatDiagnostic(t *testing.T) {
	src := "x = 1\ny = 2\n"
	file := source.NewSourceFile("a.qc", []byte(src))
	line := file.FindFirstEnclosingLine(source.NewSpan(6, 7))

	got := formatDiagnostic(file, source.NewSpan(6, 7), "parse", "unexpected token")

	assert.True(t, strings.HasPrefix(got, "a.qc:"))
	assert.True(t, strings.Contains(got, "parse: unexpected token"))
	assert.Equal(t, 2, line.Number())
}

func TestDumpModule_ListsEachStatement(t *testing.T) {
	file := source.NewSourceFile("b.qc", []byte("x = 1\ny = 2\n"))

	mod, err := parser.Parse(file)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	out := dumpModule(mod)

	assert.Equal(t, 2, strings.Count(out, "\n"))
	assert.True(t, strings.HasPrefix(out, "[0] "))
	assert.True(t, strings.Contains(out, "[1] "))
}

func TestDumpModule_EmptyModuleProducesNoLines(t *testing.T) {
	out := dumpModule(&ast.Module{})

	assert.Equal(t, "", out)
}
