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

// Package codegen emits Rust-flavored source text from a desugared,
// semantically-resolved Module (§4.5).
package codegen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bits-and-blooms/bitset"

	"github.com/quichelang/quiche/pkg/ast"
	"github.com/quichelang/quiche/pkg/semantic"
	"github.com/quichelang/quiche/pkg/source"
	"github.com/quichelang/quiche/pkg/util/collection/stack"
)

// CodegenError reports why a Module could not be emitted (§7).
type CodegenError struct {
	Span   source.Span
	Kind   string
	Reason string
}

// Error implements the error interface.
func (e *CodegenError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}

	return e.Reason
}

// checkSkipList holds the method/function names exempted from the I5
// `check(...)` wrap at statement position (§4.5).
var checkSkipList = map[string]bool{
	"as_ref": true, "as_mut": true, "deref": true, "parse_program": true,
	"len": true, "is_empty": true, "iter": true, "chars": true, "lines": true,
	"split_whitespace": true, "to_string": true, "to_uppercase": true, "to_lowercase": true,
}

type codegen struct {
	result    *semantic.Result
	functions map[string]*ast.FunctionDef
	letScopes *stack.Stack[map[string]bool]
	fnScopes  *stack.Stack[*semantic.Scope]
}

// EmitModule renders mod to source text, or fails with a CodegenError
// (§4.5's `emit_module(module) -> string` contract).
func EmitModule(mod *ast.Module, result *semantic.Result) (string, *CodegenError) {
	g := &codegen{
		result:    result,
		functions: make(map[string]*ast.FunctionDef),
		letScopes: stack.NewStack[map[string]bool](),
		fnScopes:  stack.NewStack[*semantic.Scope](),
	}

	collectFunctions(mod.Body, g.functions)

	var w strings.Builder

	if err := g.emitImports(mod, &w); err != nil {
		return "", err
	}

	for _, s := range mod.Body {
		if err := g.emitStmt(s, &w, 0); err != nil {
			return "", err
		}
	}

	return w.String(), nil
}

func collectFunctions(stmts []ast.Stmt, into map[string]*ast.FunctionDef) {
	for _, s := range stmts {
		if fn, ok := s.(*ast.FunctionDef); ok {
			into[fn.Name] = fn
		}
	}
}

// emitImports groups imports into `use mod::{A, B};` clusters sorted by
// module path, one cluster per distinct module, per §6's emitted-artifact
// layout.
func (g *codegen) emitImports(mod *ast.Module, w *strings.Builder) *CodegenError {
	byModule := make(map[string][]string)

	for _, imp := range mod.Imports {
		path := strings.ReplaceAll(imp.Module, ".", "::")
		parent, name := "", path

		if i := strings.LastIndex(path, "::"); i >= 0 {
			parent, name = path[:i], path[i+2:]
		}

		if imp.Alias != "" {
			name += " as " + imp.Alias
		}

		byModule[parent] = append(byModule[parent], name)
	}

	modules := make([]string, 0, len(byModule))

	for m := range byModule {
		modules = append(modules, m)
	}

	sort.Strings(modules)

	for _, m := range modules {
		names := byModule[m]
		sort.Strings(names)

		if m == "" {
			for _, n := range names {
				fmt.Fprintf(w, "use %s;\n", n)
			}

			continue
		}

		if len(names) == 1 {
			fmt.Fprintf(w, "use %s::%s;\n", m, names[0])
			continue
		}

		fmt.Fprintf(w, "use %s::{%s};\n", m, strings.Join(names, ", "))
	}

	if len(modules) > 0 {
		w.WriteString("\n")
	}

	return nil
}

func pad(indent int) string {
	return strings.Repeat("    ", indent)
}

// pushLetScope / popLetScope bound one function body's worth of `let`
// tracking: Pythonic scoping means every assignment to a name anywhere in
// the function (regardless of Rust block nesting) refers to the same
// binding, so I2/I3 tracking lives at function granularity, not at Rust
// `{ }` granularity.
func (g *codegen) pushLetScope() { g.letScopes.Push(make(map[string]bool)) }
func (g *codegen) popLetScope()  { g.letScopes.Pop() }

func (g *codegen) isDeclared(name string) bool {
	if g.letScopes.IsEmpty() {
		return true
	}

	return g.letScopes.Peek(0)[name]
}

func (g *codegen) markDeclared(name string) {
	if g.letScopes.IsEmpty() {
		return
	}

	g.letScopes.Peek(0)[name] = true
}

// pushFnScope / popFnScope track the enclosing chain of function scopes
// Analyze resolved, mirroring semantic.Table's own innermost-to-outermost
// walk so a name reference inside a nested function still sees its
// ancestors' parameters and locals.
func (g *codegen) pushFnScope(fn *ast.FunctionDef) {
	if scope, ok := g.result.Scopes[fn]; ok {
		g.fnScopes.Push(scope)
	}
}

func (g *codegen) popFnScope(fn *ast.FunctionDef) {
	if _, ok := g.result.Scopes[fn]; ok {
		g.fnScopes.Pop()
	}
}

// lookupSymbol resolves name against the live function-scope chain first
// (parameters and locals, with mutability/iterable-ref already classified
// by Analyze), falling back to the table for module-level declarations.
// Analyze's own Table no longer holds function scopes once analysis
// finishes popping them, so this is the only place codegen can still see
// a parameter or local's Symbol.
func (g *codegen) lookupSymbol(name string) (*semantic.Symbol, bool) {
	n := g.fnScopes.Len()

	for i := uint(0); i < n; i++ {
		if sym, ok := g.fnScopes.Peek(i).Names[name]; ok {
			return sym, true
		}
	}

	return g.result.Table.Lookup(name)
}

func (g *codegen) isMutable(name string) bool {
	if sym, ok := g.lookupSymbol(name); ok {
		return sym.IsMutRef
	}

	return false
}

// ===========================================================================
// Statements
// ===========================================================================

func (g *codegen) emitStmt(s ast.Stmt, w *strings.Builder, indent int) *CodegenError {
	switch st := s.(type) {
	case *ast.ImportStmt, *ast.FromImportStmt:
		return nil // already handled by emitImports
	case *ast.FunctionDef:
		return g.emitFunctionDef(st, w, indent)
	case *ast.StructDef:
		return g.emitStructDef(st, w, indent)
	case *ast.EnumDef:
		return g.emitEnumDef(st, w, indent)
	case *ast.TraitDef:
		return g.emitTraitDef(st, w, indent)
	case *ast.ImplDef:
		return g.emitImplDef(st, w, indent)
	case *ast.ExternDef:
		fmt.Fprintf(w, "%stype %s = %s;\n", pad(indent), st.Name, st.Path)
		return nil
	case *ast.ConstDef:
		return g.emitConstDef(st, w, indent)
	case *ast.AssignStmt:
		return g.emitAssign(st, w, indent)
	case *ast.AnnAssignStmt:
		return g.emitAnnAssign(st, w, indent)
	case *ast.AugAssignStmt:
		return g.emitAugAssign(st, w, indent)
	case *ast.IfStmt:
		return g.emitIf(st, w, indent)
	case *ast.WhileStmt:
		return g.emitWhile(st, w, indent)
	case *ast.ForStmt:
		return g.emitFor(st, w, indent)
	case *ast.MatchStmt:
		return g.emitMatch(st, w, indent)
	case *ast.TryStmt:
		return g.emitTry(st, w, indent)
	case *ast.ReturnStmt:
		if st.Value == nil {
			fmt.Fprintf(w, "%sreturn;\n", pad(indent))
			return nil
		}

		expr, err := g.emitExpr(st.Value)
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "%sreturn %s;\n", pad(indent), expr)

		return nil
	case *ast.ExprStmt:
		return g.emitExprStmt(st, w, indent)
	case *ast.PassStmt:
		return nil
	case *ast.BreakStmt:
		fmt.Fprintf(w, "%sbreak;\n", pad(indent))
		return nil
	case *ast.ContinueStmt:
		fmt.Fprintf(w, "%scontinue;\n", pad(indent))
		return nil
	case *ast.RaiseStmt:
		if st.Value == nil {
			fmt.Fprintf(w, "%sreturn Err(String::new());\n", pad(indent))
			return nil
		}

		expr, err := g.emitExpr(st.Value)
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "%sreturn Err(%s);\n", pad(indent), expr)

		return nil
	default:
		return &CodegenError{Span: s.Span(), Reason: "unsupported statement form"}
	}
}

func (g *codegen) emitFunctionDef(fn *ast.FunctionDef, w *strings.Builder, indent int) *CodegenError {
	fmt.Fprintf(w, "%sfn %s%s(", pad(indent), fn.Name, emitTypeParams(fn.TypeParams))

	var params []string

	if fn.IsMethod {
		if fn.ReceiverMut {
			params = append(params, "&mut self")
		} else {
			params = append(params, "&self")
		}
	}

	for _, p := range fn.Params {
		params = append(params, p.Name+": "+emitType(p.Annotation))
	}

	w.WriteString(strings.Join(params, ", "))
	w.WriteString(")")

	if fn.ReturnType != nil {
		w.WriteString(" -> " + emitType(fn.ReturnType))
	}

	w.WriteString(" {\n")

	g.pushLetScope()
	g.pushFnScope(fn)

	for _, p := range fn.Params {
		g.markDeclared(p.Name)
	}

	for _, s := range fn.Body {
		if err := g.emitStmt(s, w, indent+1); err != nil {
			return err
		}
	}

	g.popFnScope(fn)
	g.popLetScope()
	fmt.Fprintf(w, "%s}\n", pad(indent))

	return nil
}

func (g *codegen) emitStructDef(def *ast.StructDef, w *strings.Builder, indent int) *CodegenError {
	fmt.Fprintf(w, "%sstruct %s%s {\n", pad(indent), def.Name, emitTypeParams(def.TypeParams))

	for _, f := range def.Fields {
		fmt.Fprintf(w, "%s    %s: %s,\n", pad(indent), f.Name, emitType(f.Type))
	}

	fmt.Fprintf(w, "%s}\n", pad(indent))

	return nil
}

func (g *codegen) emitEnumDef(def *ast.EnumDef, w *strings.Builder, indent int) *CodegenError {
	fmt.Fprintf(w, "%senum %s%s {\n", pad(indent), def.Name, emitTypeParams(def.TypeParams))

	for _, v := range def.Variants {
		if len(v.Fields) == 0 {
			fmt.Fprintf(w, "%s    %s,\n", pad(indent), v.Name)
			continue
		}

		parts := make([]string, len(v.Fields))

		for i, f := range v.Fields {
			parts[i] = emitType(f)
		}

		fmt.Fprintf(w, "%s    %s(%s),\n", pad(indent), v.Name, strings.Join(parts, ", "))
	}

	fmt.Fprintf(w, "%s}\n", pad(indent))

	return nil
}

func (g *codegen) emitTraitDef(def *ast.TraitDef, w *strings.Builder, indent int) *CodegenError {
	fmt.Fprintf(w, "%strait %s%s {\n", pad(indent), def.Name, emitTypeParams(def.TypeParams))

	for _, m := range def.Methods {
		if err := g.emitFunctionDef(m, w, indent+1); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "%s}\n", pad(indent))

	return nil
}

func (g *codegen) emitImplDef(def *ast.ImplDef, w *strings.Builder, indent int) *CodegenError {
	if def.Trait != "" {
		fmt.Fprintf(w, "%simpl %s for %s {\n", pad(indent), def.Trait, def.Target)
	} else {
		fmt.Fprintf(w, "%simpl %s {\n", pad(indent), def.Target)
	}

	for _, m := range def.Methods {
		if err := g.emitFunctionDef(m, w, indent+1); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "%s}\n", pad(indent))

	return nil
}

// emitConstDef requires a literal or const-expression initializer (§4.5's
// constant-emission restriction).
func (g *codegen) emitConstDef(def *ast.ConstDef, w *strings.Builder, indent int) *CodegenError {
	if !isConstExpr(def.Value) {
		return &CodegenError{
			Span: def.Span(), Kind: "non-const-initializer",
			Reason: "const " + def.Name + " has a non-constant initializer",
		}
	}

	value, err := g.emitExpr(def.Value)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%sconst %s: %s = %s;\n", pad(indent), def.Name, emitType(def.Type), value)

	return nil
}

func isConstExpr(e ast.Expr) bool {
	switch ex := e.(type) {
	case *ast.NumberLiteral, *ast.StringLiteral, *ast.BooleanLiteral, *ast.NoneLiteral:
		return true
	case *ast.UnaryOpExpr:
		return isConstExpr(ex.Operand)
	case *ast.BinOpExpr:
		return isConstExpr(ex.Left) && isConstExpr(ex.Right)
	case *ast.TupleExpr:
		for _, el := range ex.Elements {
			if !isConstExpr(el) {
				return false
			}
		}

		return true
	default:
		return false
	}
}

func (g *codegen) emitAssign(st *ast.AssignStmt, w *strings.Builder, indent int) *CodegenError {
	value, err := g.emitExpr(st.Value)
	if err != nil {
		return err
	}

	for _, target := range st.Targets {
		name, ok := target.(*ast.NameExpr)
		if !ok {
			targetStr, err := g.emitExpr(target)
			if err != nil {
				return err
			}

			fmt.Fprintf(w, "%s%s = %s;\n", pad(indent), targetStr, value)

			continue
		}

		if g.isDeclared(name.Name) {
			fmt.Fprintf(w, "%s%s = %s;\n", pad(indent), name.Name, value)
			continue
		}

		g.markDeclared(name.Name)

		mutKw := ""
		if g.isMutable(name.Name) {
			mutKw = "mut "
		}

		fmt.Fprintf(w, "%slet %s%s = %s;\n", pad(indent), mutKw, name.Name, value)
	}

	return nil
}

func (g *codegen) emitAnnAssign(st *ast.AnnAssignStmt, w *strings.Builder, indent int) *CodegenError {
	name, ok := st.Target.(*ast.NameExpr)
	if !ok || st.Value == nil {
		if st.Value == nil {
			return nil
		}

		return g.emitAssign(&ast.AssignStmt{Base: st.Base, Targets: []ast.Expr{st.Target}, Value: st.Value}, w, indent)
	}

	value, err := g.emitExpr(st.Value)
	if err != nil {
		return err
	}

	g.markDeclared(name.Name)

	mutKw := ""
	if g.isMutable(name.Name) {
		mutKw = "mut "
	}

	fmt.Fprintf(w, "%slet %s%s: %s = %s;\n", pad(indent), mutKw, name.Name, emitType(st.Annotation), value)

	return nil
}

var augOpStr = map[ast.AugAssignOp]string{
	ast.AugAdd: "+=", ast.AugSub: "-=", ast.AugMul: "*=", ast.AugDiv: "/=",
	ast.AugFloorDiv: "/=", ast.AugMod: "%=", ast.AugBitOr: "|=",
	ast.AugBitAnd: "&=", ast.AugBitXor: "^=", ast.AugLShift: "<<=", ast.AugRShift: ">>=",
}

func (g *codegen) emitAugAssign(st *ast.AugAssignStmt, w *strings.Builder, indent int) *CodegenError {
	target, err := g.emitExpr(st.Target)
	if err != nil {
		return err
	}

	value, err := g.emitExpr(st.Value)
	if err != nil {
		return err
	}

	// Rust has no `**=` operator; route through the same `.pow(...)` call
	// plain `**` lowers to (exprs.go), reassigning the result.
	if st.Op == ast.AugPow {
		fmt.Fprintf(w, "%s%s = %s.pow(%s);\n", pad(indent), target, target, value)
		return nil
	}

	fmt.Fprintf(w, "%s%s %s %s;\n", pad(indent), target, augOpStr[st.Op], value)

	return nil
}

func (g *codegen) emitIf(st *ast.IfStmt, w *strings.Builder, indent int) *CodegenError {
	cond, err := g.emitExpr(st.Cond)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%sif %s {\n", pad(indent), cond)

	for _, s := range st.Body {
		if err := g.emitStmt(s, w, indent+1); err != nil {
			return err
		}
	}

	if len(st.Else) == 0 {
		fmt.Fprintf(w, "%s}\n", pad(indent))
		return nil
	}

	fmt.Fprintf(w, "%s} else {\n", pad(indent))

	for _, s := range st.Else {
		if err := g.emitStmt(s, w, indent+1); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "%s}\n", pad(indent))

	return nil
}

func (g *codegen) emitWhile(st *ast.WhileStmt, w *strings.Builder, indent int) *CodegenError {
	cond, err := g.emitExpr(st.Cond)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%swhile %s {\n", pad(indent), cond)

	for _, s := range st.Body {
		if err := g.emitStmt(s, w, indent+1); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "%s}\n", pad(indent))

	return nil
}

// emitFor applies §4.4's iterable-ref tracking: iterating a bare name bound
// to an exclusive container reference goes through `.iter()` (or
// `.iter().cloned()` once element-copy analysis is available) rather than
// by-value iteration.
func (g *codegen) emitFor(st *ast.ForStmt, w *strings.Builder, indent int) *CodegenError {
	target, err := g.emitExpr(st.Target)
	if err != nil {
		return err
	}

	iter, err := g.emitExpr(st.Iter)
	if err != nil {
		return err
	}

	if name, ok := st.Iter.(*ast.NameExpr); ok {
		if sym, exists := g.lookupSymbol(name.Name); exists && sym.IsIterableRef {
			iter = iter + ".iter()"
		}
	}

	fmt.Fprintf(w, "%sfor %s in %s {\n", pad(indent), target, iter)

	for _, s := range st.Body {
		if err := g.emitStmt(s, w, indent+1); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "%s}\n", pad(indent))

	return nil
}

// emitMatch enforces I4: a closed enum match is exhaustive either because a
// wildcard/bind arm is present, or because every variant is covered,
// tracked with a bitset keyed by variant index.
func (g *codegen) emitMatch(st *ast.MatchStmt, w *strings.Builder, indent int) *CodegenError {
	subject, err := g.emitExpr(st.Subject)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%smatch %s {\n", pad(indent), subject)

	exhaustive := false

	var variants []ast.EnumVariant

	var covered *bitset.BitSet

	if enumDef, ok := g.subjectEnum(st.Subject); ok {
		variants = enumDef.Variants
		covered = bitset.New(uint(len(variants)))
	}

	for _, arm := range st.Arms {
		switch p := arm.Pattern.(type) {
		case *ast.WildcardPattern, *ast.BindPattern:
			exhaustive = true
		case *ast.ConstructorPattern:
			if covered != nil {
				for i, v := range variants {
					if v.Name == p.Name {
						covered.Set(uint(i))
					}
				}
			}
		}

		patStr := g.emitPattern(arm.Pattern)

		guardStr := ""
		if arm.Guard != nil {
			guard, err := g.emitExpr(arm.Guard)
			if err != nil {
				return err
			}

			guardStr = " if " + guard
		}

		fmt.Fprintf(w, "%s%s%s => {\n", pad(indent+1), patStr, guardStr)

		for _, s := range arm.Body {
			if err := g.emitStmt(s, w, indent+2); err != nil {
				return err
			}
		}

		fmt.Fprintf(w, "%s}\n", pad(indent+1))
	}

	if !exhaustive && covered != nil && covered.Count() == uint(len(variants)) {
		exhaustive = true
	}

	if !exhaustive {
		return &CodegenError{
			Span: st.Span(), Kind: "non-exhaustive-match",
			Reason: "match has no wildcard arm and does not cover every variant",
		}
	}

	fmt.Fprintf(w, "%s}\n", pad(indent))

	return nil
}

// subjectEnum looks up the EnumDef for a bare-name match subject, when its
// declared type names one, to drive exhaustiveness checking.
func (g *codegen) subjectEnum(subject ast.Expr) (*ast.EnumDef, bool) {
	name, ok := subject.(*ast.NameExpr)
	if !ok {
		return nil, false
	}

	sym, ok := g.lookupSymbol(name.Name)
	if !ok || sym.EmittedType == nil {
		return nil, false
	}

	typeName, ok := sym.EmittedType.(*ast.NameExpr)
	if !ok {
		return nil, false
	}

	def, ok := g.result.Types[typeName.Name].(*ast.EnumDef)

	return def, ok
}

// emitTry lowers a try/except into a scoped error-catching closure whose
// result is matched: the body runs inside an immediately-invoked closure
// returning Result<(), String>, and a plain Err(handle) arm runs the first
// handler's body. Additional handlers are not independently dispatchable
// without static exception types, so only the first is wired; this mirrors
// §7's "try/except untyped binds string handle" policy.
func (g *codegen) emitTry(st *ast.TryStmt, w *strings.Builder, indent int) *CodegenError {
	fmt.Fprintf(w, "%slet __try_result: Result<(), String> = (|| {\n", pad(indent))

	for _, s := range st.Body {
		if err := g.emitStmt(s, w, indent+1); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "%s    Ok(())\n", pad(indent))
	fmt.Fprintf(w, "%s})();\n", pad(indent))
	fmt.Fprintf(w, "%sif let Err(e) = __try_result {\n", pad(indent))

	if len(st.Handlers) > 0 {
		h := st.Handlers[0]
		handle := h.Name

		if handle == "" {
			handle = "_"
		}

		if handle != "_" {
			fmt.Fprintf(w, "%s    let %s = e;\n", pad(indent), handle)
		}

		for _, s := range h.Body {
			if err := g.emitStmt(s, w, indent+1); err != nil {
				return err
			}
		}
	}

	fmt.Fprintf(w, "%s}\n", pad(indent))

	for _, s := range st.Finally {
		if err := g.emitStmt(s, w, indent); err != nil {
			return err
		}
	}

	return nil
}

// emitExprStmt implements I5: a bare call statement is wrapped in the
// runtime `check` helper unless its callee name is in the skip list.
func (g *codegen) emitExprStmt(st *ast.ExprStmt, w *strings.Builder, indent int) *CodegenError {
	call, ok := st.Value.(*ast.CallExpr)
	if !ok {
		expr, err := g.emitExpr(st.Value)
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "%s%s;\n", pad(indent), expr)

		return nil
	}

	expr, err := g.emitExpr(call)
	if err != nil {
		return err
	}

	if calleeSkipsCheck(call) || calleeIsPrelude(call) {
		fmt.Fprintf(w, "%s%s;\n", pad(indent), expr)
		return nil
	}

	fmt.Fprintf(w, "%scheck(%s);\n", pad(indent), expr)

	return nil
}

func calleeSkipsCheck(call *ast.CallExpr) bool {
	if attr, ok := call.Func.(*ast.AttributeExpr); ok {
		return checkSkipList[attr.Attr]
	}

	if name, ok := call.Func.(*ast.NameExpr); ok {
		return checkSkipList[name.Name]
	}

	return false
}

// calleeIsPrelude exempts calls to the runtime's own opaque helpers
// (check/format/qref/mutref/deref/strcat) from being wrapped again.
func calleeIsPrelude(call *ast.CallExpr) bool {
	name, ok := call.Func.(*ast.NameExpr)
	if !ok {
		return false
	}

	switch name.Name {
	case "check", "format", "qref", "mutref", "deref", "strcat":
		return true
	default:
		return false
	}
}
