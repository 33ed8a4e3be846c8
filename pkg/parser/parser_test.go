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

package parser

import (
	"testing"

	"github.com/quichelang/quiche/pkg/ast"
	"github.com/quichelang/quiche/pkg/source"
	"github.com/quichelang/quiche/pkg/util/assert"
)

func mustParse(t *testing.T, src string) *ast.Module {
	t.Helper()

	file := source.NewSourceFile("test.qc", []byte(src))

	mod, err := Parse(file)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	return mod
}

func TestParser_SimpleAssign(t *testing.T) {
	mod := mustParse(t, "x = 1\n")

	assert.Equal(t, 1, len(mod.Body))

	assign, ok := mod.Body[0].(*ast.AssignStmt)
	assert.True(t, ok, "expected AssignStmt")
	assert.Equal(t, 1, len(assign.Targets))

	name, ok := assign.Targets[0].(*ast.NameExpr)
	assert.True(t, ok, "expected NameExpr target")
	assert.Equal(t, "x", name.Name)

	num, ok := assign.Value.(*ast.NumberLiteral)
	assert.True(t, ok, "expected NumberLiteral value")
	assert.Equal(t, int64(1), num.IntValue)
}

func TestParser_AnnAssign(t *testing.T) {
	mod := mustParse(t, "count: int = 0\n")

	ann, ok := mod.Body[0].(*ast.AnnAssignStmt)
	assert.True(t, ok, "expected AnnAssignStmt")

	name, ok := ann.Target.(*ast.NameExpr)
	assert.True(t, ok, "expected NameExpr target")
	assert.Equal(t, "count", name.Name)
}

func TestParser_FunctionDef(t *testing.T) {
	src := "def add(x: int, y: int) -> int:\n    return x + y\n"
	mod := mustParse(t, src)

	fn, ok := mod.Body[0].(*ast.FunctionDef)
	assert.True(t, ok, "expected FunctionDef")
	assert.Equal(t, "add", fn.Name)
	assert.Equal(t, 2, len(fn.Params))
	assert.Equal(t, "x", fn.Params[0].Name)
	assert.Equal(t, 1, len(fn.Body))

	ret, ok := fn.Body[0].(*ast.ReturnStmt)
	assert.True(t, ok, "expected ReturnStmt")

	bin, ok := ret.Value.(*ast.BinOpExpr)
	assert.True(t, ok, "expected BinOpExpr")
	assert.Equal(t, ast.Add, bin.Op)
}

func TestParser_FunctionTypeParamsWithBound(t *testing.T) {
	src := "def first[T: Sized](xs: list[T]) -> T:\n    return xs[0]\n"
	mod := mustParse(t, src)

	fn, ok := mod.Body[0].(*ast.FunctionDef)
	assert.True(t, ok, "expected FunctionDef")
	assert.Equal(t, 1, len(fn.TypeParams))
	assert.Equal(t, "T", fn.TypeParams[0].Name)
	assert.Equal(t, 1, len(fn.TypeParams[0].Bounds))
	assert.Equal(t, "Sized", fn.TypeParams[0].Bounds[0])
}

func TestParser_MethodSelfReceiver(t *testing.T) {
	src := "class Counter:\n    def bump(self):\n        pass\n"
	mod := mustParse(t, src)

	cls, ok := mod.Body[0].(*ast.ClassDef)
	assert.True(t, ok, "expected ClassDef")
	assert.Equal(t, 1, len(cls.Body))

	fn, ok := cls.Body[0].(*ast.FunctionDef)
	assert.True(t, ok, "expected FunctionDef")
	assert.True(t, fn.IsMethod, "expected method from self-parameter")
	assert.Equal(t, "self", fn.ReceiverName)
}

func TestParser_TypeUnion(t *testing.T) {
	mod := mustParse(t, "type Shape = Circle | Square | Triangle\n")

	td, ok := mod.Body[0].(*ast.TypeDef)
	assert.True(t, ok, "expected TypeDef")
	assert.Equal(t, "Shape", td.Name)
	assert.Equal(t, 3, len(td.Union))
}

func TestParser_IfElifElse(t *testing.T) {
	src := "if x == 1:\n    pass\nelif x == 2:\n    pass\nelse:\n    pass\n"
	mod := mustParse(t, src)

	ifStmt, ok := mod.Body[0].(*ast.IfStmt)
	assert.True(t, ok, "expected IfStmt")
	assert.Equal(t, 1, len(ifStmt.Else))

	elif, ok := ifStmt.Else[0].(*ast.IfStmt)
	assert.True(t, ok, "expected nested IfStmt for elif")
	assert.Equal(t, 1, len(elif.Else))

	_, ok = elif.Else[0].(*ast.PassStmt)
	assert.True(t, ok, "expected PassStmt in final else")
}

func TestParser_ForLoop(t *testing.T) {
	mod := mustParse(t, "for x in xs:\n    pass\n")

	forStmt, ok := mod.Body[0].(*ast.ForStmt)
	assert.True(t, ok, "expected ForStmt")

	target, ok := forStmt.Target.(*ast.NameExpr)
	assert.True(t, ok, "expected NameExpr target")
	assert.Equal(t, "x", target.Name)
}

func TestParser_MatchStatement(t *testing.T) {
	src := "match point:\n" +
		"    case Point(x, y) if x == y:\n" +
		"        pass\n" +
		"    case _:\n" +
		"        pass\n"
	mod := mustParse(t, src)

	m, ok := mod.Body[0].(*ast.MatchStmt)
	assert.True(t, ok, "expected MatchStmt")
	assert.Equal(t, 2, len(m.Arms))

	ctor, ok := m.Arms[0].Pattern.(*ast.ConstructorPattern)
	assert.True(t, ok, "expected ConstructorPattern")
	assert.Equal(t, "Point", ctor.Name)
	assert.Equal(t, 2, len(ctor.Positional))
	assert.True(t, m.Arms[0].Guard != nil, "expected guard clause")

	_, ok = m.Arms[1].Pattern.(*ast.WildcardPattern)
	assert.True(t, ok, "expected WildcardPattern")
}

func TestParser_TryExceptFinally(t *testing.T) {
	src := "try:\n    pass\nexcept ValueError as e:\n    pass\nfinally:\n    pass\n"
	mod := mustParse(t, src)

	tryStmt, ok := mod.Body[0].(*ast.TryStmt)
	assert.True(t, ok, "expected TryStmt")
	assert.Equal(t, 1, len(tryStmt.Handlers))
	assert.Equal(t, "e", tryStmt.Handlers[0].Name)
	assert.Equal(t, 1, len(tryStmt.Finally))
}

func TestParser_AssertWithMessage(t *testing.T) {
	mod := mustParse(t, "assert x > 0, \"x must be positive\"\n")

	a, ok := mod.Body[0].(*ast.AssertStmt)
	assert.True(t, ok, "expected AssertStmt")
	assert.True(t, a.Msg != nil, "expected message expression")
}

func TestParser_PrecedenceArithmetic(t *testing.T) {
	mod := mustParse(t, "x = 1 + 2 * 3\n")

	assign := mod.Body[0].(*ast.AssignStmt)
	bin, ok := assign.Value.(*ast.BinOpExpr)
	assert.True(t, ok, "expected BinOpExpr")
	assert.Equal(t, ast.Add, bin.Op)

	right, ok := bin.Right.(*ast.BinOpExpr)
	assert.True(t, ok, "expected nested BinOpExpr for higher-precedence multiply")
	assert.Equal(t, ast.Mul, right.Op)
}

func TestParser_PowerRightAssociative(t *testing.T) {
	mod := mustParse(t, "x = 2 ** 3 ** 2\n")

	assign := mod.Body[0].(*ast.AssignStmt)
	top, ok := assign.Value.(*ast.BinOpExpr)
	assert.True(t, ok, "expected BinOpExpr")
	assert.Equal(t, ast.Pow, top.Op)

	left, ok := top.Left.(*ast.NumberLiteral)
	assert.True(t, ok, "expected left operand to be a literal, proving right-associativity")
	assert.Equal(t, int64(2), left.IntValue)

	_, ok = top.Right.(*ast.BinOpExpr)
	assert.True(t, ok, "expected nested power on the right")
}

func TestParser_ComparisonChainCollapses(t *testing.T) {
	mod := mustParse(t, "x = a < b <= c\n")

	assign := mod.Body[0].(*ast.AssignStmt)
	cmp, ok := assign.Value.(*ast.CompareExpr)
	assert.True(t, ok, "expected a single CompareExpr for the chained comparison")
	assert.Equal(t, 2, len(cmp.Ops))
	assert.Equal(t, ast.CmpLt, cmp.Ops[0])
	assert.Equal(t, ast.CmpLtEq, cmp.Ops[1])
}

func TestParser_PipeExprKeepsCallOperand(t *testing.T) {
	mod := mustParse(t, "y = x |> f(2)\n")

	assign := mod.Body[0].(*ast.AssignStmt)
	pipe, ok := assign.Value.(*ast.PipeExpr)
	assert.True(t, ok, "expected PipeExpr")
	assert.Equal(t, 1, len(pipe.Call.Args))
}

func TestParser_ListComprehension(t *testing.T) {
	mod := mustParse(t, "y = [v * 2 for v in values if v > 0]\n")

	assign := mod.Body[0].(*ast.AssignStmt)
	comp, ok := assign.Value.(*ast.ComprehensionExpr)
	assert.True(t, ok, "expected ComprehensionExpr")
	assert.Equal(t, ast.ListComp, comp.Kind)
	assert.Equal(t, 1, len(comp.Ifs))
}

func TestParser_DictLiteralVsSetLiteral(t *testing.T) {
	dictMod := mustParse(t, "d = {\"a\": 1}\n")
	dictAssign := dictMod.Body[0].(*ast.AssignStmt)
	_, ok := dictAssign.Value.(*ast.DictExpr)
	assert.True(t, ok, "expected DictExpr")

	setMod := mustParse(t, "s = {1, 2}\n")
	setAssign := setMod.Body[0].(*ast.AssignStmt)
	_, ok = setAssign.Value.(*ast.SetExpr)
	assert.True(t, ok, "expected SetExpr")
}

func TestParser_LambdaPipeForm(t *testing.T) {
	mod := mustParse(t, "f = |x, y| x + y\n")

	assign := mod.Body[0].(*ast.AssignStmt)
	lam, ok := assign.Value.(*ast.LambdaExpr)
	assert.True(t, ok, "expected LambdaExpr")
	assert.Equal(t, 2, len(lam.Params))
}

func TestParser_FStringSplitsLiteralAndExpr(t *testing.T) {
	mod := mustParse(t, "s = f\"hello {name}!\"\n")

	assign := mod.Body[0].(*ast.AssignStmt)
	fstr, ok := assign.Value.(*ast.FStringExpr)
	assert.True(t, ok, "expected FStringExpr")
	assert.Equal(t, 3, len(fstr.Parts))
	assert.False(t, fstr.Parts[0].IsExpr, "expected leading literal chunk")
	assert.True(t, fstr.Parts[1].IsExpr, "expected embedded expression chunk")

	name, ok := fstr.Parts[1].Expr.(*ast.NameExpr)
	assert.True(t, ok, "expected re-parsed NameExpr inside f-string")
	assert.Equal(t, "name", name.Name)
}

func TestParser_SliceSubscript(t *testing.T) {
	mod := mustParse(t, "y = xs[1:10:2]\n")

	assign := mod.Body[0].(*ast.AssignStmt)
	sub, ok := assign.Value.(*ast.SubscriptExpr)
	assert.True(t, ok, "expected SubscriptExpr")

	slice, ok := sub.Index.(*ast.SliceExpr)
	assert.True(t, ok, "expected SliceExpr index")
	assert.True(t, slice.Lower != nil, "expected lower bound")
	assert.True(t, slice.Upper != nil, "expected upper bound")
	assert.True(t, slice.Step != nil, "expected step")
}

func TestParser_DecoratorBindsToNextDef(t *testing.T) {
	src := "@cached(max_size=16)\ndef fib(n: int) -> int:\n    return n\n"
	mod := mustParse(t, src)

	assert.Equal(t, 1, len(mod.Body))

	fn := mod.Body[0].(*ast.FunctionDef)
	decs := mod.Decorated[fn]
	assert.Equal(t, 1, len(decs))
	assert.Equal(t, "cached", decs[0].Name)

	v, ok := decs[0].Kwargs["max_size"]
	assert.True(t, ok, "expected max_size kwarg")

	num, ok := v.(*ast.NumberLiteral)
	assert.True(t, ok, "expected NumberLiteral kwarg value")
	assert.Equal(t, int64(16), num.IntValue)
}

func TestParser_ImportStatement(t *testing.T) {
	mod := mustParse(t, "import collections as cl\n")

	imp, ok := mod.Body[0].(*ast.ImportStmt)
	assert.True(t, ok, "expected ImportStmt")
	assert.Equal(t, 1, len(imp.Names))
	assert.Equal(t, "collections", imp.Names[0].Module)
	assert.Equal(t, "cl", imp.Names[0].Alias)
}

func TestParser_AugmentedAssign(t *testing.T) {
	mod := mustParse(t, "total += 1\n")

	aug, ok := mod.Body[0].(*ast.AugAssignStmt)
	assert.True(t, ok, "expected AugAssignStmt")
	assert.Equal(t, ast.AugAdd, aug.Op)
}

func TestParser_SyntaxErrorReportsExpected(t *testing.T) {
	file := source.NewSourceFile("bad.qc", []byte("def f(:\n    pass\n"))

	_, err := Parse(file)
	assert.True(t, err != nil, "expected a parse error for malformed parameter list")
}
