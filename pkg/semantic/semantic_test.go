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

package semantic

import (
	"testing"

	"github.com/quichelang/quiche/pkg/ast"
	"github.com/quichelang/quiche/pkg/desugar"
	"github.com/quichelang/quiche/pkg/parser"
	"github.com/quichelang/quiche/pkg/source"
	"github.com/quichelang/quiche/pkg/util/assert"
)

func mustAnalyze(t *testing.T, src string) *Result {
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

	result, errs := Analyze(lowered)
	if len(errs) != 0 {
		t.Fatalf("unexpected semantic errors: %v", errs)
	}

	return result
}

func TestSemantic_ReassignmentMarksMutable(t *testing.T) {
	src := "def f() -> int:\n    x = 1\n    x = 2\n    return x\n"
	result := mustAnalyze(t, src)

	assert.Equal(t, 1, len(result.Scopes))

	for _, scope := range result.Scopes {
		assert.True(t, scope.Names["x"].IsMutRef)
	}
}

func TestSemantic_AugAssignMarksMutable(t *testing.T) {
	result := mustAnalyze(t, "def f() -> int:\n    x = 1\n    x += 1\n    return x\n")

	assert.Equal(t, 1, len(result.Scopes))

	for _, scope := range result.Scopes {
		assert.True(t, scope.Names["x"].IsMutRef)
	}
}

func TestSemantic_MutatingMethodCallMarksReceiverMutable(t *testing.T) {
	result := mustAnalyze(t, "def f(xs: list) -> int:\n    xs.append(1)\n    return 0\n")

	assert.Equal(t, 1, len(result.Scopes))

	for _, scope := range result.Scopes {
		assert.True(t, scope.Names["xs"].IsMutRef)
	}
}

func TestSemantic_UnresolvedNameProducesError(t *testing.T) {
	file := source.NewSourceFile("test.qc", []byte("def f() -> int:\n    return y\n"))

	mod, err := parser.Parse(file)
	assert.True(t, err == nil)

	lowered, derr := desugar.Lower(mod)
	assert.True(t, derr == nil)

	_, errs := Analyze(lowered)
	assert.True(t, len(errs) > 0)
}

func TestSemantic_AttributeBaseUnresolvedIsNotAnError(t *testing.T) {
	mustAnalyze(t, "def f() -> int:\n    return os.path.join(1)\n")
}

func TestSemantic_ParamExclusiveRefMarkedIterable(t *testing.T) {
	src := "def total(xs: mutref[list]) -> int:\n    for x in xs:\n        pass\n    return 0\n"
	result := mustAnalyze(t, src)

	assert.Equal(t, 1, len(result.Scopes))

	for _, scope := range result.Scopes {
		assert.True(t, scope.Names["xs"].IsIterableRef)
	}
}

func TestSemantic_StructDeclaredAsType(t *testing.T) {
	result := mustAnalyze(t, "type Point:\n    x: int\n    y: int\n")

	_, ok := result.Types["Point"]
	assert.True(t, ok)

	_, ok = result.Table.Lookup("Point")
	assert.True(t, ok)
}

func TestSemantic_MatchArmBindingIsArmLocal(t *testing.T) {
	src := "def f(v: int) -> int:\n    match v:\n        case x:\n            return x\n    return 0\n"
	result := mustAnalyze(t, src)

	assert.Equal(t, 1, len(result.Scopes))

	for _, scope := range result.Scopes {
		_, ok := scope.Names["x"]
		assert.False(t, ok)
	}
}

func TestSemantic_FunctionDeclaredAtModuleScope(t *testing.T) {
	result := mustAnalyze(t, "def helper() -> int:\n    return 1\n\ndef caller() -> int:\n    return helper()\n")

	sym, ok := result.Table.Lookup("caller")
	assert.True(t, ok)
	assert.Equal(t, int(SymFunction), int(sym.Kind))
}

func TestSemantic_DerefAssignmentMarksMutable(t *testing.T) {
	mustAnalyze(t, "def f(x: mutref[int]) -> int:\n    deref(x) = 5\n    return 0\n")
}

func TestSemantic_FunctionScopeSurvivesAnalyze(t *testing.T) {
	src := "def f() -> int:\n    x = 1\n    x += 1\n    return x\n"
	result := mustAnalyze(t, src)

	_, ok := result.Table.Lookup("x")
	assert.True(t, !ok)

	var fn *ast.FunctionDef

	for key := range result.Scopes {
		fn = key
	}

	if fn == nil {
		t.Fatalf("expected a persisted function scope")
	}

	sym, ok := result.Scopes[fn].Names["x"]
	assert.True(t, ok)
	assert.True(t, sym.IsMutRef)
}
