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

package codegen

import (
	"strings"
	"testing"

	"github.com/quichelang/quiche/pkg/desugar"
	"github.com/quichelang/quiche/pkg/parser"
	"github.com/quichelang/quiche/pkg/semantic"
	"github.com/quichelang/quiche/pkg/source"
	"github.com/quichelang/quiche/pkg/util/assert"
)

func mustEmit(t *testing.T, src string) string {
	t.Helper()

	file := source.NewSourceFile("test.qc", []byte(src))

	mod, err := parser.Parse(file)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	lowered, derr := desugar.Lower(mod)
	if derr != nil {
		t.Fatalf("unexpected desugar error: %v", derr)
	}

	result, errs := semantic.Analyze(lowered)
	if len(errs) != 0 {
		t.Fatalf("unexpected semantic errors: %v", errs)
	}

	out, cerr := EmitModule(lowered, result)
	if cerr != nil {
		t.Fatalf("unexpected codegen error: %v", cerr)
	}

	return out
}

func TestCodegen_PlainReassignmentOmitsSecondLet(t *testing.T) {
	out := mustEmit(t, "def f() -> int:\n    x = 1\n    x = 2\n    return x\n")

	assert.Equal(t, 1, strings.Count(out, "let "))
	assert.True(t, strings.Contains(out, "let mut x = 1;"))
	assert.True(t, strings.Contains(out, "x = 2;"))
}

func TestCodegen_MutatedBindingGetsLetMut(t *testing.T) {
	out := mustEmit(t, "def f() -> int:\n    x = 1\n    x += 1\n    return x\n")

	assert.True(t, strings.Contains(out, "let mut x = 1;"))
}

func TestCodegen_AugPowRoutesThroughPowCall(t *testing.T) {
	out := mustEmit(t, "def f() -> int:\n    x = 2\n    x **= 3\n    return x\n")

	assert.True(t, strings.Contains(out, "x = x.pow(3);"))
	assert.False(t, strings.Contains(out, "x = 3;"))
}

func TestCodegen_VectorAppendRemapsToPush(t *testing.T) {
	out := mustEmit(t, "def f(xs: mutref[vec[int]]) -> int:\n    xs.append(1)\n    return 0\n")

	assert.True(t, strings.Contains(out, "xs.push(1)"))
}

func TestCodegen_MapGetAppendsCloned(t *testing.T) {
	src := "def f(m: mutref[dict[str, int]]) -> int:\n    v = m.get(\"a\")\n    return 0\n"
	out := mustEmit(t, src)

	assert.True(t, strings.Contains(out, "m.get(\"a\").cloned()"))
}

func TestCodegen_MapRemoveBorrowsKey(t *testing.T) {
	src := "def f(m: mutref[dict[str, int]]) -> int:\n    m.remove(\"a\")\n    return 0\n"
	out := mustEmit(t, src)

	assert.True(t, strings.Contains(out, "m.remove(&\"a\")"))
}

func TestCodegen_NonExhaustiveMatchFails(t *testing.T) {
	src := "type Shape = Circle | Square\n\n" +
		"def f(s: Shape) -> int:\n    match s:\n        case Circle():\n            return 1\n    return 0\n"

	file := source.NewSourceFile("test.qc", []byte(src))

	mod, err := parser.Parse(file)
	assert.True(t, err == nil)

	lowered, derr := desugar.Lower(mod)
	assert.True(t, derr == nil)

	result, errs := semantic.Analyze(lowered)
	assert.True(t, len(errs) == 0)

	_, cerr := EmitModule(lowered, result)
	assert.True(t, cerr != nil)
	assert.Equal(t, "non-exhaustive-match", cerr.Kind)
}

func TestCodegen_WildcardArmIsExhaustive(t *testing.T) {
	src := "type Shape = Circle | Square\n\n" +
		"def f(s: Shape) -> int:\n    match s:\n        case Circle():\n            return 1\n        case _:\n            return 0\n    return 0\n"
	mustEmit(t, src)
}

func TestCodegen_ConstWithLiteralInitializer(t *testing.T) {
	out := mustEmit(t, "MAX_SIZE: int = 64\n\ndef f() -> int:\n    return MAX_SIZE\n")

	assert.True(t, strings.Contains(out, "const MAX_SIZE: int = 64;"))
}

func TestCodegen_ConstWithNonConstInitializerFails(t *testing.T) {
	src := "def helper() -> int:\n    return 1\n\nMAX_SIZE: int = helper()\n"

	file := source.NewSourceFile("test.qc", []byte(src))

	mod, err := parser.Parse(file)
	assert.True(t, err == nil)

	lowered, derr := desugar.Lower(mod)
	assert.True(t, derr == nil)

	result, errs := semantic.Analyze(lowered)
	assert.True(t, len(errs) == 0)

	_, cerr := EmitModule(lowered, result)
	assert.True(t, cerr != nil)
	assert.Equal(t, "non-const-initializer", cerr.Kind)
}

func TestCodegen_StatementCallWrappedInCheck(t *testing.T) {
	out := mustEmit(t, "def risky() -> int:\n    return 1\n\ndef f() -> int:\n    risky()\n    return 0\n")

	assert.True(t, strings.Contains(out, "check(risky())"))
}

func TestCodegen_SkipListCallNotWrapped(t *testing.T) {
	out := mustEmit(t, "def f(xs: vec[int]) -> int:\n    xs.len()\n    return 0\n")

	assert.False(t, strings.Contains(out, "check(xs.len())"))
}

func TestCodegen_StructEmitsNamedFields(t *testing.T) {
	src := "type Point:\n    x: int\n    y: int\n\ndef f() -> int:\n    p = Point(x=1, y=2)\n    return 0\n"
	out := mustEmit(t, src)

	assert.True(t, strings.Contains(out, "struct Point {"))
	assert.True(t, strings.Contains(out, "Point { x: 1, y: 2 }"))
}

func TestCodegen_TryExceptLowersToClosureAndMatch(t *testing.T) {
	src := "def f() -> int:\n    try:\n        x = 1\n    except Err as e:\n        x = 0\n    return 0\n"
	out := mustEmit(t, src)

	assert.True(t, strings.Contains(out, "__try_result"))
	assert.True(t, strings.Contains(out, "if let Err(e) = __try_result"))
}
