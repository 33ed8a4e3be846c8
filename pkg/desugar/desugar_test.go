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

package desugar

import (
	"testing"

	"github.com/quichelang/quiche/pkg/ast"
	"github.com/quichelang/quiche/pkg/parser"
	"github.com/quichelang/quiche/pkg/source"
	"github.com/quichelang/quiche/pkg/util/assert"
)

func mustLower(t *testing.T, src string) *ast.Module {
	t.Helper()

	file := source.NewSourceFile("test.qc", []byte(src))

	mod, err := parser.Parse(file)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	lowered, derr := Lower(mod)
	if derr != nil {
		t.Fatalf("unexpected desugar error: %v", derr)
	}

	return lowered
}

func TestDesugar_AssertBecomesCheckCall(t *testing.T) {
	mod := mustLower(t, "assert x > 0, \"must be positive\"\n")

	stmt, ok := mod.Body[0].(*ast.ExprStmt)
	assert.True(t, ok)

	call, ok := stmt.Value.(*ast.CallExpr)
	assert.True(t, ok)

	fn, ok := call.Func.(*ast.NameExpr)
	assert.True(t, ok)
	assert.Equal(t, "check", fn.Name)
	assert.Equal(t, 2, len(call.Args))
}

func TestDesugar_AssertWithoutMessage(t *testing.T) {
	mod := mustLower(t, "assert x > 0\n")

	stmt := mod.Body[0].(*ast.ExprStmt)
	call := stmt.Value.(*ast.CallExpr)
	assert.Equal(t, 1, len(call.Args))
}

func TestDesugar_FStringBecomesFormatCall(t *testing.T) {
	mod := mustLower(t, "y = f\"hello {name}!\"\n")

	assign := mod.Body[0].(*ast.AssignStmt)
	call, ok := assign.Value.(*ast.CallExpr)
	assert.True(t, ok)

	fn := call.Func.(*ast.NameExpr)
	assert.Equal(t, "format", fn.Name)

	template := call.Args[0].(*ast.StringLiteral)
	assert.Equal(t, "hello {}!", template.Value)
	assert.Equal(t, 2, len(call.Args))
}

func TestDesugar_ListComprehensionBecomesIteratorChain(t *testing.T) {
	mod := mustLower(t, "y = [x * 2 for x in xs if x > 0]\n")

	assign := mod.Body[0].(*ast.AssignStmt)
	collectCall, ok := assign.Value.(*ast.CallExpr)
	assert.True(t, ok)

	collectAttr := collectCall.Func.(*ast.AttributeExpr)
	assert.Equal(t, "collect", collectAttr.Attr)

	mapCall := collectAttr.Value.(*ast.CallExpr)
	mapAttr := mapCall.Func.(*ast.AttributeExpr)
	assert.Equal(t, "map", mapAttr.Attr)

	filterCall := mapAttr.Value.(*ast.CallExpr)
	filterAttr := filterCall.Func.(*ast.AttributeExpr)
	assert.Equal(t, "filter", filterAttr.Attr)

	iterCall := filterAttr.Value.(*ast.CallExpr)
	iterAttr := iterCall.Func.(*ast.AttributeExpr)
	assert.Equal(t, "iter", iterAttr.Attr)
}

func TestDesugar_DictComprehensionPairsKeyAndValue(t *testing.T) {
	mod := mustLower(t, "y = {k: v for k in ks}\n")

	assign := mod.Body[0].(*ast.AssignStmt)
	collectCall := assign.Value.(*ast.CallExpr)
	mapCall := collectCall.Func.(*ast.AttributeExpr).Value.(*ast.CallExpr)
	lambda := mapCall.Args[0].(*ast.LambdaExpr)

	tup, ok := lambda.Body.(*ast.TupleExpr)
	assert.True(t, ok)
	assert.Equal(t, 2, len(tup.Elements))
}

func TestDesugar_PipeBecomesCall(t *testing.T) {
	mod := mustLower(t, "y = x |> f(1)\n")

	assign := mod.Body[0].(*ast.AssignStmt)
	call, ok := assign.Value.(*ast.CallExpr)
	assert.True(t, ok)
	assert.Equal(t, 2, len(call.Args))

	first := call.Args[0].(*ast.NameExpr)
	assert.Equal(t, "x", first.Name)
}

func TestDesugar_ScreamingNameBecomesConstDef(t *testing.T) {
	mod := mustLower(t, "MAX_SIZE: int = 64\n")

	def, ok := mod.Body[0].(*ast.ConstDef)
	assert.True(t, ok)
	assert.Equal(t, "MAX_SIZE", def.Name)
}

func TestDesugar_ConstAnnotationBecomesConstDef(t *testing.T) {
	mod := mustLower(t, "limit: Const[int] = 10\n")

	def, ok := mod.Body[0].(*ast.ConstDef)
	assert.True(t, ok)
	assert.Equal(t, "limit", def.Name)

	name, ok := def.Type.(*ast.NameExpr)
	assert.True(t, ok)
	assert.Equal(t, "int", name.Name)
}

func TestDesugar_PlainAnnAssignStaysPlain(t *testing.T) {
	mod := mustLower(t, "count: int = 0\n")

	_, ok := mod.Body[0].(*ast.ConstDef)
	assert.False(t, ok)

	_, ok = mod.Body[0].(*ast.AnnAssignStmt)
	assert.True(t, ok)
}

func TestDesugar_TypeBlockWithFieldsBecomesStruct(t *testing.T) {
	mod := mustLower(t, "type Point:\n    x: int\n    y: int\n")

	def, ok := mod.Body[0].(*ast.StructDef)
	assert.True(t, ok)
	assert.Equal(t, "Point", def.Name)
	assert.Equal(t, 2, len(def.Fields))
	assert.Equal(t, "x", def.Fields[0].Name)
}

func TestDesugar_TypeBlockWithVariantsBecomesEnum(t *testing.T) {
	mod := mustLower(t, "type Shape:\n    Circle = (float)\n    Square = (float)\n")

	def, ok := mod.Body[0].(*ast.EnumDef)
	assert.True(t, ok)
	assert.Equal(t, "Shape", def.Name)
	assert.Equal(t, 2, len(def.Variants))
	assert.Equal(t, "Circle", def.Variants[0].Name)
	assert.Equal(t, 1, len(def.Variants[0].Fields))
}

func TestDesugar_InlineUnionBecomesEnum(t *testing.T) {
	mod := mustLower(t, "type Dir = North | South | East | West\n")

	def, ok := mod.Body[0].(*ast.EnumDef)
	assert.True(t, ok)
	assert.Equal(t, 4, len(def.Variants))
	assert.Equal(t, "North", def.Variants[0].Name)
}

func TestDesugar_ClassStructBase(t *testing.T) {
	mod := mustLower(t, "class Point(Struct):\n    x: int\n    y: int\n")

	def, ok := mod.Body[0].(*ast.StructDef)
	assert.True(t, ok)
	assert.Equal(t, 2, len(def.Fields))
}

func TestDesugar_ClassUnsupportedBaseRejected(t *testing.T) {
	file := source.NewSourceFile("test.qc", []byte("class Foo(Bar):\n    x: int\n"))

	mod, err := parser.Parse(file)
	assert.True(t, err == nil)

	_, derr := Lower(mod)
	assert.True(t, derr != nil)
}

func TestDesugar_ImplDecoratorProducesImplDef(t *testing.T) {
	mod := mustLower(t, "@implement(Show, for_=Point)\nclass PointShow(Trait):\n    def fmt(self) -> str:\n        return \"p\"\n")

	def, ok := mod.Body[0].(*ast.ImplDef)
	assert.True(t, ok)
	assert.Equal(t, "Show", def.Trait)
	assert.Equal(t, "Point", def.Target)
	assert.Equal(t, 1, len(def.Methods))
}

func TestDesugar_ExternDecoratorProducesExternDef(t *testing.T) {
	mod := mustLower(t, "@extern(path=\"std::collections::HashMap\", no_generic=False)\nclass RawMap(Struct):\n    pass\n")

	def, ok := mod.Body[0].(*ast.ExternDef)
	assert.True(t, ok)
	assert.Equal(t, "RawMap", def.Name)
	assert.Equal(t, "std::collections::HashMap", def.Path)
	assert.False(t, def.NoGeneric)
}

func TestDesugar_MacroDecoratorRejected(t *testing.T) {
	file := source.NewSourceFile("test.qc", []byte("@macro\nclass Gen(Struct):\n    pass\n"))

	mod, err := parser.Parse(file)
	assert.True(t, err == nil)

	_, derr := Lower(mod)
	assert.True(t, derr != nil)
}

func TestDesugar_DefaultArgumentRejected(t *testing.T) {
	file := source.NewSourceFile("test.qc", []byte("def f(x: int = 1) -> int:\n    return x\n"))

	mod, err := parser.Parse(file)
	assert.True(t, err == nil)

	_, derr := Lower(mod)
	assert.True(t, derr != nil)
}

func TestDesugar_IteratorSourceParamMarked(t *testing.T) {
	mod := mustLower(t, "def total(xs: mutref[list]) -> int:\n    return 0\n")

	fn, ok := mod.Body[0].(*ast.FunctionDef)
	assert.True(t, ok)
	assert.True(t, fn.Params[0].IsIteratorSource)
}

func TestDesugar_NestedPipeInsideFunctionBodyLowered(t *testing.T) {
	mod := mustLower(t, "def run() -> int:\n    y = x |> f(1)\n    return y\n")

	fn := mod.Body[0].(*ast.FunctionDef)
	assign := fn.Body[0].(*ast.AssignStmt)

	_, ok := assign.Value.(*ast.CallExpr)
	assert.True(t, ok)
}
