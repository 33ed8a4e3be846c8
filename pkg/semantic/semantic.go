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

// Package semantic resolves names, builds the symbol table, and infers
// per-binding borrowing mode over a desugared Module (§4.4).
package semantic

import (
	"github.com/quichelang/quiche/pkg/ast"
	"github.com/quichelang/quiche/pkg/source"
)

// SemanticError reports an unresolved name or another invariant violation
// caught during name resolution (§7).
type SemanticError struct {
	Span   source.Span
	Reason string
}

// Error implements the error interface.
func (e *SemanticError) Error() string {
	return e.Reason
}

// Result is the output of Analyze: the finished symbol table, a lookup of
// every type-like declaration by name (consulted later by codegen for
// constructor-shape and method-remap decisions), and each function's own
// resolved scope (every parameter and local it declared, with mutability/
// iterable-ref classification already applied) keyed by its FunctionDef,
// since the table itself only retains module-level declarations once
// analysis finishes popping function scopes back off.
type Result struct {
	Table  *Table
	Types  map[string]ast.Stmt
	Scopes map[*ast.FunctionDef]*Scope
}

// mutatingMethods are the method names that, when called on a bare local,
// mark that local mutable per §4.4 rule (c); drawn from §4.5's method
// remapping tables.
var mutatingMethods = map[string]bool{
	"append": true, "push": true, "pop": true, "clear": true, "reverse": true,
	"sort": true, "insert": true, "extend": true, "remove": true, "update": true,
}

type analyzer struct {
	table   *Table
	imports map[string]*Symbol
	types   map[string]ast.Stmt
	scopes  map[*ast.FunctionDef]*Scope
	errors  []*SemanticError
}

// Analyze builds the symbol table for mod and infers mutability/iterable-ref
// classification for every binding it can reach. Errors are collected
// rather than halting at the first one, matching §7's per-stage collection
// policy.
func Analyze(mod *ast.Module) (*Result, []*SemanticError) {
	a := &analyzer{
		table:   NewTable(),
		imports: make(map[string]*Symbol),
		types:   make(map[string]ast.Stmt),
		scopes:  make(map[*ast.FunctionDef]*Scope),
	}

	for _, imp := range mod.Imports {
		name := imp.Alias
		if name == "" {
			name = imp.Module
		}

		a.imports[name] = &Symbol{Name: name, Kind: SymModule}
	}

	var functions []*ast.FunctionDef

	for _, s := range mod.Body {
		functions = append(functions, a.declareTopLevel(s)...)
	}

	for _, fn := range functions {
		a.analyzeFunction(fn)
	}

	return &Result{Table: a.table, Types: a.types, Scopes: a.scopes}, a.errors
}

// declareTopLevel registers one module-scope declaration and returns any
// FunctionDef(s) reachable from it (its own body, or its methods) for a
// later mutability-analysis pass.
func (a *analyzer) declareTopLevel(s ast.Stmt) []*ast.FunctionDef {
	switch st := s.(type) {
	case *ast.FunctionDef:
		a.table.DeclareLocal(&Symbol{Name: st.Name, Kind: SymFunction})
		return []*ast.FunctionDef{st}
	case *ast.StructDef:
		a.table.DeclareLocal(&Symbol{Name: st.Name, Kind: SymType})
		a.types[st.Name] = st
	case *ast.EnumDef:
		a.table.DeclareLocal(&Symbol{Name: st.Name, Kind: SymType})
		a.types[st.Name] = st
	case *ast.TraitDef:
		a.table.DeclareLocal(&Symbol{Name: st.Name, Kind: SymTrait})
		a.types[st.Name] = st

		return append([]*ast.FunctionDef(nil), st.Methods...)
	case *ast.ImplDef:
		a.types[st.Target] = st

		return append([]*ast.FunctionDef(nil), st.Methods...)
	case *ast.ExternDef:
		a.table.DeclareLocal(&Symbol{Name: st.Name, Kind: SymExtern, ExternPath: st.Path})
		a.types[st.Name] = st
	case *ast.ConstDef:
		a.table.DeclareLocal(&Symbol{Name: st.Name, Kind: SymConst, EmittedType: st.Type, IsConst: true})
	}

	return nil
}

// isMutRefAnnotation reports whether annot is `mutref[...]`/`MutRef[...]`:
// a parameter taken by exclusive reference (§3's is_mut_ref classification).
func isMutRefAnnotation(annot ast.Expr) bool {
	sub, ok := annot.(*ast.SubscriptExpr)
	if !ok {
		return false
	}

	name, ok := sub.Value.(*ast.NameExpr)

	return ok && (name.Name == "mutref" || name.Name == "MutRef")
}

func (a *analyzer) analyzeFunction(fn *ast.FunctionDef) {
	a.table.PushFunction()

	if fn.IsMethod && fn.ReceiverName != "" {
		a.table.DeclareLocal(&Symbol{Name: fn.ReceiverName, Kind: SymVariable, IsMutRef: fn.ReceiverMut})
	}

	for _, p := range fn.Params {
		a.table.DeclareLocal(&Symbol{
			Name:          p.Name,
			Kind:          SymVariable,
			EmittedType:   p.Annotation,
			IsMutRef:      isMutRefAnnotation(p.Annotation),
			IsIterableRef: p.IsIteratorSource,
		})
	}

	a.walkStmts(fn.Body)
	a.scopes[fn] = a.table.Pop()
}

func (a *analyzer) walkStmts(stmts []ast.Stmt) {
	for _, s := range stmts {
		a.walkStmt(s)
	}
}

func (a *analyzer) walkStmt(s ast.Stmt) {
	switch st := s.(type) {
	case *ast.AssignStmt:
		for _, target := range st.Targets {
			a.bindAssignTarget(target)
		}

		a.walkExpr(st.Value)
	case *ast.AugAssignStmt:
		if name, ok := st.Target.(*ast.NameExpr); ok {
			a.markMutable(name.Name) // rule (a)
		}

		a.walkExpr(st.Value)
	case *ast.AnnAssignStmt:
		if name, ok := st.Target.(*ast.NameExpr); ok {
			if _, exists := a.table.Lookup(name.Name); !exists {
				a.table.DeclareLocal(&Symbol{Name: name.Name, Kind: SymVariable, EmittedType: st.Annotation})
			}
		}

		if st.Value != nil {
			a.walkExpr(st.Value)
		}
	case *ast.IfStmt:
		a.walkExpr(st.Cond)
		a.walkStmts(st.Body)
		a.walkStmts(st.Else)
	case *ast.WhileStmt:
		a.walkExpr(st.Cond)
		a.walkStmts(st.Body)
	case *ast.ForStmt:
		a.walkExpr(st.Iter)
		a.bindForTarget(st.Target)

		if iterName, ok := st.Iter.(*ast.NameExpr); ok {
			if sym, exists := a.table.Lookup(iterName.Name); exists && sym.IsIterableRef {
				sym.IsMutRef = true // rule (e)
			}
		}

		a.walkStmts(st.Body)
	case *ast.MatchStmt:
		a.walkExpr(st.Subject)

		for _, arm := range st.Arms {
			a.table.PushMatchArm()
			a.declarePattern(arm.Pattern)

			if arm.Guard != nil {
				a.walkExpr(arm.Guard)
			}

			a.walkStmts(arm.Body)
			a.table.Pop()
		}
	case *ast.TryStmt:
		a.walkStmts(st.Body)

		for _, h := range st.Handlers {
			if h.Name != "" {
				a.table.DeclareLocal(&Symbol{Name: h.Name, Kind: SymVariable})
			}

			a.walkStmts(h.Body)
		}

		a.walkStmts(st.Finally)
	case *ast.ReturnStmt:
		if st.Value != nil {
			a.walkExpr(st.Value)
		}
	case *ast.ExprStmt:
		a.walkExpr(st.Value)
	case *ast.RaiseStmt:
		if st.Value != nil {
			a.walkExpr(st.Value)
		}
	case *ast.FunctionDef:
		// A nested function definition; analyzed independently so its own
		// locals don't leak into the enclosing scope.
		a.analyzeFunction(st)
	}
}

// bindAssignTarget implements rules (b) (rebinding marks mutable) and (d)
// (`deref(x) = value` marks x mutable).
func (a *analyzer) bindAssignTarget(target ast.Expr) {
	switch t := target.(type) {
	case *ast.NameExpr:
		if _, exists := a.table.Lookup(t.Name); exists {
			a.markMutable(t.Name)
		} else {
			a.table.DeclareLocal(&Symbol{Name: t.Name, Kind: SymVariable})
		}
	case *ast.CallExpr:
		if fn, ok := t.Func.(*ast.NameExpr); ok && fn.Name == "deref" && len(t.Args) == 1 {
			if inner, ok := t.Args[0].(*ast.NameExpr); ok {
				a.markMutable(inner.Name)
			}
		}
	case *ast.TupleExpr:
		for _, el := range t.Elements {
			a.bindAssignTarget(el)
		}
	}
}

func (a *analyzer) bindForTarget(target ast.Expr) {
	if name, ok := target.(*ast.NameExpr); ok {
		a.table.DeclareLocal(&Symbol{Name: name.Name, Kind: SymVariable})
		return
	}

	if tup, ok := target.(*ast.TupleExpr); ok {
		for _, el := range tup.Elements {
			a.bindForTarget(el)
		}
	}
}

func (a *analyzer) markMutable(name string) {
	if sym, exists := a.table.Lookup(name); exists {
		sym.IsMutRef = true
	}
}

func (a *analyzer) declarePattern(p ast.Pattern) {
	switch pat := p.(type) {
	case *ast.BindPattern:
		a.table.DeclareHere(&Symbol{Name: pat.Name, Kind: SymVariable})
	case *ast.ConstructorPattern:
		for _, sub := range pat.Positional {
			a.declarePattern(sub)
		}

		for _, f := range pat.Fields {
			a.declarePattern(f.Pattern)
		}
	case *ast.TuplePattern:
		for _, el := range pat.Elements {
			a.declarePattern(el)
		}
	case *ast.StarRestPattern:
		if pat.Name != "" {
			a.table.DeclareHere(&Symbol{Name: pat.Name, Kind: SymVariable})
		}
	}
}

// walkExpr recurses through an expression, resolving names (I1), flagging
// mutating method calls (rule (c)) and mutref/deref usage (rule (d)).
// AttributeExpr bases that fail to resolve are treated as external module
// paths per §9's dynamic-attribute-access fallback, not as errors.
func (a *analyzer) walkExpr(e ast.Expr) {
	if e == nil {
		return
	}

	switch ex := e.(type) {
	case *ast.NameExpr:
		if _, ok := a.table.Resolve(ex.Name, a.imports); !ok {
			a.errors = append(a.errors, &SemanticError{Span: ex.Span(), Reason: "unresolved name: " + ex.Name})
		}
	case *ast.AttributeExpr:
		if _, ok := ex.Value.(*ast.NameExpr); !ok {
			a.walkExpr(ex.Value)
		}
	case *ast.SubscriptExpr:
		a.walkExpr(ex.Value)
		a.walkExpr(ex.Index)
	case *ast.CallExpr:
		a.checkMutatingCall(ex)
		a.walkExpr(ex.Func)

		for _, arg := range ex.Args {
			a.walkExpr(arg)
		}

		for _, kw := range ex.Keywords {
			a.walkExpr(kw.Value)
		}
	case *ast.BinOpExpr:
		a.walkExpr(ex.Left)
		a.walkExpr(ex.Right)
	case *ast.UnaryOpExpr:
		a.walkExpr(ex.Operand)
	case *ast.BoolOpExpr:
		for _, v := range ex.Values {
			a.walkExpr(v)
		}
	case *ast.CompareExpr:
		a.walkExpr(ex.Left)

		for _, c := range ex.Comparators {
			a.walkExpr(c)
		}
	case *ast.LambdaExpr:
		a.table.PushFunction()

		for _, p := range ex.Params {
			a.table.DeclareLocal(&Symbol{Name: p.Name, Kind: SymVariable, EmittedType: p.Annotation})
		}

		a.walkExpr(ex.Body)
		a.table.Pop()
	case *ast.IfExpExpr:
		a.walkExpr(ex.Test)
		a.walkExpr(ex.Body)
		a.walkExpr(ex.OrElse)
	case *ast.TupleExpr:
		for _, el := range ex.Elements {
			a.walkExpr(el)
		}
	case *ast.ListExpr:
		for _, el := range ex.Elements {
			a.walkExpr(el)
		}
	case *ast.SetExpr:
		for _, el := range ex.Elements {
			a.walkExpr(el)
		}
	case *ast.DictExpr:
		for _, entry := range ex.Entries {
			a.walkExpr(entry.Key)
			a.walkExpr(entry.Value)
		}
	case *ast.SliceExpr:
		a.walkExpr(ex.Lower)
		a.walkExpr(ex.Upper)
		a.walkExpr(ex.Step)
	case *ast.StarredExpr:
		a.walkExpr(ex.Value)
	case *ast.ComprehensionExpr:
		a.walkExpr(ex.Iter)
		a.table.PushComprehension()
		a.bindForTarget(ex.Target)

		for _, cond := range ex.Ifs {
			a.walkExpr(cond)
		}

		if ex.Key != nil {
			a.walkExpr(ex.Key)
		}

		a.walkExpr(ex.Element)
		a.table.Pop()
	case *ast.PipeExpr:
		a.walkExpr(ex.Value)
		a.walkExpr(ex.Call)
	}
}

func (a *analyzer) checkMutatingCall(call *ast.CallExpr) {
	if attr, ok := call.Func.(*ast.AttributeExpr); ok {
		if recv, ok := attr.Value.(*ast.NameExpr); ok && mutatingMethods[attr.Attr] {
			a.markMutable(recv.Name) // rule (c)
		}

		return
	}

	if fn, ok := call.Func.(*ast.NameExpr); ok && fn.Name == "mutref" && len(call.Args) == 1 {
		if inner, ok := call.Args[0].(*ast.NameExpr); ok {
			a.markMutable(inner.Name) // rule (d)
		}
	}
}
