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

// Package desugar rewrites a parsed Module into a restricted core: f-strings
// become format calls, comprehensions become iterator chains, pipes become
// calls, legacy class forms and `type` blocks become struct/enum/trait
// declarations, and decorators are resolved into impl/extern declarations
// (§4.3).
package desugar

import (
	"strings"

	"github.com/quichelang/quiche/pkg/ast"
	"github.com/quichelang/quiche/pkg/source"
)

// DesugarError reports an unrecognized decorator, a rejected default
// argument, or another reserved form the desugarer does not implement
// (§7).
type DesugarError struct {
	Span   source.Span
	Reason string
}

// Error implements the error interface.
func (e *DesugarError) Error() string {
	return e.Reason
}

var containerFamilies = map[string]bool{
	"list": true, "List": true, "Vec": true, "vec": true,
	"dict": true, "Dict": true, "HashMap": true, "map": true,
	"str": true, "String": true, "StrRef": true,
	"set": true, "Set": true,
}

type lowerer struct {
	decorated map[ast.Stmt][]ast.Decorator
}

// Lower rewrites a parsed Module into its desugared form.
func Lower(mod *ast.Module) (*ast.Module, *DesugarError) {
	l := &lowerer{decorated: mod.Decorated}

	body, err := l.lowerStmts(mod.Body)
	if err != nil {
		return nil, err
	}

	return &ast.Module{
		Base:      mod.Base,
		Body:      body,
		Imports:   mod.Imports,
		TypeNames: mod.TypeNames,
		Decorated: mod.Decorated,
	}, nil
}

func (l *lowerer) lowerStmts(stmts []ast.Stmt) ([]ast.Stmt, *DesugarError) {
	var out []ast.Stmt

	for _, s := range stmts {
		lowered, err := l.lowerStmt(s)
		if err != nil {
			return nil, err
		}

		out = append(out, lowered...)
	}

	return out, nil
}

func (l *lowerer) decoratorsOf(s ast.Stmt) []ast.Decorator {
	return l.decorated[s]
}

// lowerStmt lowers one statement, possibly expanding it into several (a
// decorated ClassDef can become an ImplDef plus nothing else, but the
// signature stays plural for uniformity with lowerStmts).
func (l *lowerer) lowerStmt(s ast.Stmt) ([]ast.Stmt, *DesugarError) {
	switch st := s.(type) {
	case *ast.AssertStmt:
		return l.lowerAssert(st)
	case *ast.FunctionDef:
		return l.lowerFunctionDef(st)
	case *ast.ClassDef:
		return l.lowerClassDef(st)
	case *ast.TypeDef:
		return l.lowerTypeDef(st)
	case *ast.AnnAssignStmt:
		return l.lowerAnnAssign(st)
	case *ast.AssignStmt:
		val, err := l.lowerExpr(st.Value)
		if err != nil {
			return nil, err
		}

		targets := make([]ast.Expr, len(st.Targets))

		for i, t := range st.Targets {
			lt, err := l.lowerExpr(t)
			if err != nil {
				return nil, err
			}

			targets[i] = lt
		}

		return []ast.Stmt{&ast.AssignStmt{Base: st.Base, Targets: targets, Value: val}}, nil
	case *ast.AugAssignStmt:
		val, err := l.lowerExpr(st.Value)
		if err != nil {
			return nil, err
		}

		target, err := l.lowerExpr(st.Target)
		if err != nil {
			return nil, err
		}

		return []ast.Stmt{&ast.AugAssignStmt{Base: st.Base, Target: target, Op: st.Op, Value: val}}, nil
	case *ast.IfStmt:
		return l.lowerIf(st)
	case *ast.WhileStmt:
		cond, err := l.lowerExpr(st.Cond)
		if err != nil {
			return nil, err
		}

		body, err := l.lowerStmts(st.Body)
		if err != nil {
			return nil, err
		}

		return []ast.Stmt{&ast.WhileStmt{Base: st.Base, Cond: cond, Body: body}}, nil
	case *ast.ForStmt:
		return l.lowerFor(st)
	case *ast.MatchStmt:
		return l.lowerMatch(st)
	case *ast.TryStmt:
		return l.lowerTry(st)
	case *ast.ReturnStmt:
		if st.Value == nil {
			return []ast.Stmt{st}, nil
		}

		v, err := l.lowerExpr(st.Value)
		if err != nil {
			return nil, err
		}

		return []ast.Stmt{&ast.ReturnStmt{Base: st.Base, Value: v}}, nil
	case *ast.ExprStmt:
		v, err := l.lowerExpr(st.Value)
		if err != nil {
			return nil, err
		}

		return []ast.Stmt{&ast.ExprStmt{Base: st.Base, Value: v}}, nil
	case *ast.RaiseStmt:
		if st.Value == nil {
			return []ast.Stmt{st}, nil
		}

		v, err := l.lowerExpr(st.Value)
		if err != nil {
			return nil, err
		}

		return []ast.Stmt{&ast.RaiseStmt{Base: st.Base, Value: v}}, nil
	default:
		// Import/FromImport/Pass/Break/Continue/ConstDef carry no
		// sub-expressions requiring lowering.
		return []ast.Stmt{s}, nil
	}
}

// lowerAssert lowers `assert cond[, msg]` into a call to the runtime
// validity-check helper (§4.3).
func (l *lowerer) lowerAssert(st *ast.AssertStmt) ([]ast.Stmt, *DesugarError) {
	cond, err := l.lowerExpr(st.Cond)
	if err != nil {
		return nil, err
	}

	call := &ast.CallExpr{
		Base: st.Base,
		Func: &ast.NameExpr{Base: st.Base, Name: "check"},
		Args: []ast.Expr{cond},
	}

	if st.Msg != nil {
		msg, err := l.lowerExpr(st.Msg)
		if err != nil {
			return nil, err
		}

		call.Args = append(call.Args, msg)
	}

	return []ast.Stmt{&ast.ExprStmt{Base: st.Base, Value: call}}, nil
}

// lowerFunctionDef rejects default arguments (§7), marks exclusive-reference
// container parameters as iterator sources (§4.3, §4.4), and recurses into
// the body. A decorated FunctionDef may become an ImplDef method carrier's
// sibling declaration, but bare functions pass through as FunctionDef.
func (l *lowerer) lowerFunctionDef(fn *ast.FunctionDef) ([]ast.Stmt, *DesugarError) {
	for _, dec := range l.decoratorsOf(fn) {
		if dec.Name == "macro" {
			return nil, &DesugarError{Span: fn.Span(), Reason: "unrecognized decorator: @macro is reserved and unsupported"}
		}
	}

	for _, p := range fn.Params {
		if p.Default != nil {
			return nil, &DesugarError{Span: fn.Span(), Reason: "default argument present (rejected)"}
		}
	}

	for i, p := range fn.Params {
		if isExclusiveContainerRef(p.Annotation) {
			fn.Params[i].IsIteratorSource = true
		}
	}

	retType := fn.ReturnType
	if retType != nil {
		lowered, err := l.lowerExpr(retType)
		if err != nil {
			return nil, err
		}

		retType = lowered
	}

	body, err := l.lowerStmts(fn.Body)
	if err != nil {
		return nil, err
	}

	out := &ast.FunctionDef{
		Base:         fn.Base,
		Name:         fn.Name,
		TypeParams:   fn.TypeParams,
		Params:       fn.Params,
		ReturnType:   retType,
		Body:         body,
		IsMethod:     fn.IsMethod,
		ReceiverName: fn.ReceiverName,
		ReceiverMut:  fn.ReceiverMut,
	}

	if decs := l.decoratorsOf(fn); decs != nil {
		l.decorated[out] = decs
	}

	return []ast.Stmt{out}, nil
}

// isExclusiveContainerRef reports whether annot is `mutref[C]`/`MutRef[C]`
// for a known container family C (§4.4).
func isExclusiveContainerRef(annot ast.Expr) bool {
	sub, ok := annot.(*ast.SubscriptExpr)
	if !ok {
		return false
	}

	name, ok := sub.Value.(*ast.NameExpr)
	if !ok || !(name.Name == "mutref" || name.Name == "MutRef") {
		return false
	}

	inner, ok := sub.Index.(*ast.NameExpr)
	if !ok {
		if innerSub, ok := sub.Index.(*ast.SubscriptExpr); ok {
			inner, ok = innerSub.Value.(*ast.NameExpr)
			if !ok {
				return false
			}

			return containerFamilies[inner.Name]
		}

		return false
	}

	return containerFamilies[inner.Name]
}

// lowerClassDef rewrites the legacy `class X(Base, ...)` surface into a
// StructDef, EnumDef, or TraitDef per the single recognized base name, or
// resolves an `@impl`/`@implement`/`@extern` decorator into the
// corresponding declaration (§4.3, §9).
func (l *lowerer) lowerClassDef(cls *ast.ClassDef) ([]ast.Stmt, *DesugarError) {
	for _, dec := range l.decoratorsOf(cls) {
		switch dec.Name {
		case "impl", "implement":
			return l.lowerImplDecorator(cls, dec)
		case "extern":
			return l.lowerExternDecorator(cls, dec)
		case "macro":
			return nil, &DesugarError{Span: cls.Span(), Reason: "unrecognized decorator: @macro is reserved and unsupported"}
		}
	}

	baseName := ""
	if len(cls.Bases) == 1 {
		if n, ok := cls.Bases[0].(*ast.NameExpr); ok {
			baseName = n.Name
		}
	}

	body, err := l.lowerStmts(cls.Body)
	if err != nil {
		return nil, err
	}

	switch baseName {
	case "Struct":
		return []ast.Stmt{fieldsToStruct(cls.Base, cls.Name, cls.TypeParams, body)}, nil
	case "Enum":
		return []ast.Stmt{assignsToEnum(cls.Base, cls.Name, cls.TypeParams, body)}, nil
	case "Trait":
		return []ast.Stmt{methodsToTrait(cls.Base, cls.Name, cls.TypeParams, body)}, nil
	case "":
		return nil, &DesugarError{
			Span: cls.Span(), Reason: "class declaration requires exactly one of Struct, Enum, or Trait as its base",
		}
	default:
		return nil, &DesugarError{
			Span: cls.Span(), Reason: "unsupported class base " + baseName + ": only Struct, Enum, Trait are recognized (§9)",
		}
	}
}

func (l *lowerer) lowerImplDecorator(cls *ast.ClassDef, dec ast.Decorator) ([]ast.Stmt, *DesugarError) {
	trait := ""
	if len(dec.Args) > 0 {
		if n, ok := dec.Args[0].(*ast.NameExpr); ok {
			trait = n.Name
		}
	}

	target := cls.Name

	if forExpr, ok := dec.Kwargs["for_"]; ok {
		if n, ok := forExpr.(*ast.NameExpr); ok {
			target = n.Name
		}
	}

	body, err := l.lowerStmts(cls.Body)
	if err != nil {
		return nil, err
	}

	var methods []*ast.FunctionDef

	for _, s := range body {
		if fn, ok := s.(*ast.FunctionDef); ok {
			methods = append(methods, fn)
		}
	}

	return []ast.Stmt{&ast.ImplDef{Base: cls.Base, Trait: trait, Target: target, Methods: methods}}, nil
}

func (l *lowerer) lowerExternDecorator(cls *ast.ClassDef, dec ast.Decorator) ([]ast.Stmt, *DesugarError) {
	path := ""
	if pathExpr, ok := dec.Kwargs["path"]; ok {
		if s, ok := pathExpr.(*ast.StringLiteral); ok {
			path = s.Value
		}
	}

	noGeneric := false
	if ngExpr, ok := dec.Kwargs["no_generic"]; ok {
		if b, ok := ngExpr.(*ast.BooleanLiteral); ok {
			noGeneric = b.Value
		}
	}

	return []ast.Stmt{&ast.ExternDef{Base: cls.Base, Name: cls.Name, Path: path, NoGeneric: noGeneric}}, nil
}

// lowerTypeDef classifies a `type X:` block as a StructDef or EnumDef by
// its body shape, or an inline `type X = A | B | C` union as an EnumDef
// with synthetic unit variants (§4.3).
func (l *lowerer) lowerTypeDef(td *ast.TypeDef) ([]ast.Stmt, *DesugarError) {
	if td.Union != nil {
		variants := make([]ast.EnumVariant, len(td.Union))

		for i, alt := range td.Union {
			if n, ok := alt.(*ast.NameExpr); ok {
				variants[i] = ast.EnumVariant{Name: n.Name}
				continue
			}

			return nil, &DesugarError{Span: td.Span(), Reason: "union member of inline type alias must be a bare name"}
		}

		return []ast.Stmt{&ast.EnumDef{Base: td.Base, Name: td.Name, TypeParams: td.TypeParams, Variants: variants}}, nil
	}

	body, err := l.lowerStmts(td.Body)
	if err != nil {
		return nil, err
	}

	isEnum := false

	for _, s := range body {
		if _, ok := s.(*ast.AssignStmt); ok {
			isEnum = true
			break
		}
	}

	if isEnum {
		return []ast.Stmt{assignsToEnum(td.Base, td.Name, td.TypeParams, body)}, nil
	}

	return []ast.Stmt{fieldsToStruct(td.Base, td.Name, td.TypeParams, body)}, nil
}

func fieldsToStruct(base ast.Base, name string, typeParams []ast.TypeParam, body []ast.Stmt) *ast.StructDef {
	var fields []ast.StructField

	for _, s := range body {
		if ann, ok := s.(*ast.AnnAssignStmt); ok {
			if n, ok := ann.Target.(*ast.NameExpr); ok {
				fields = append(fields, ast.StructField{Name: n.Name, Type: ann.Annotation})
			}
		}
	}

	return &ast.StructDef{Base: base, Name: name, TypeParams: typeParams, Fields: fields}
}

func assignsToEnum(base ast.Base, name string, typeParams []ast.TypeParam, body []ast.Stmt) *ast.EnumDef {
	var variants []ast.EnumVariant

	for _, s := range body {
		assign, ok := s.(*ast.AssignStmt)
		if !ok || len(assign.Targets) != 1 {
			continue
		}

		target, ok := assign.Targets[0].(*ast.NameExpr)
		if !ok {
			continue
		}

		variant := ast.EnumVariant{Name: target.Name}

		if tup, ok := assign.Value.(*ast.TupleExpr); ok {
			variant.Fields = tup.Elements
		} else if assign.Value != nil {
			// `Variant = (T)` parses to the bare type expression T.
			variant.Fields = []ast.Expr{assign.Value}
		}

		variants = append(variants, variant)
	}

	return &ast.EnumDef{Base: base, Name: name, TypeParams: typeParams, Variants: variants}
}

func methodsToTrait(base ast.Base, name string, typeParams []ast.TypeParam, body []ast.Stmt) *ast.TraitDef {
	var methods []*ast.FunctionDef

	for _, s := range body {
		if fn, ok := s.(*ast.FunctionDef); ok {
			methods = append(methods, fn)
		}
	}

	return &ast.TraitDef{Base: base, Name: name, TypeParams: typeParams, Methods: methods}
}

// lowerAnnAssign recognizes the two const-declaration surfaces
// (`SCREAMING_NAME: T = v` and `name: Const[T] = v`) and rewrites them to
// ConstDef; all other annotated assignments pass through with their
// sub-expressions lowered (§4.3).
func (l *lowerer) lowerAnnAssign(st *ast.AnnAssignStmt) ([]ast.Stmt, *DesugarError) {
	name, ok := st.Target.(*ast.NameExpr)
	if !ok {
		return []ast.Stmt{st}, nil
	}

	typ := st.Annotation
	isConst := isScreamingName(name.Name)

	if sub, ok := typ.(*ast.SubscriptExpr); ok {
		if n, ok := sub.Value.(*ast.NameExpr); ok && n.Name == "Const" {
			isConst = true
			typ = sub.Index
		}
	}

	if !isConst || st.Value == nil {
		ann := st.Annotation
		if ann != nil {
			loweredAnn, err := l.lowerExpr(ann)
			if err != nil {
				return nil, err
			}

			ann = loweredAnn
		}

		val := st.Value
		if val != nil {
			loweredVal, err := l.lowerExpr(val)
			if err != nil {
				return nil, err
			}

			val = loweredVal
		}

		return []ast.Stmt{&ast.AnnAssignStmt{Base: st.Base, Target: st.Target, Annotation: ann, Value: val}}, nil
	}

	val, err := l.lowerExpr(st.Value)
	if err != nil {
		return nil, err
	}

	return []ast.Stmt{&ast.ConstDef{Base: st.Base, Name: name.Name, Type: typ, Value: val}}, nil
}

func isScreamingName(name string) bool {
	hasLetter := false

	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			hasLetter = true
		case r == '_' || (r >= '0' && r <= '9'):
			continue
		default:
			return false
		}
	}

	return hasLetter
}

func (l *lowerer) lowerIf(st *ast.IfStmt) ([]ast.Stmt, *DesugarError) {
	cond, err := l.lowerExpr(st.Cond)
	if err != nil {
		return nil, err
	}

	body, err := l.lowerStmts(st.Body)
	if err != nil {
		return nil, err
	}

	var elseBody []ast.Stmt

	if st.Else != nil {
		elseBody, err = l.lowerStmts(st.Else)
		if err != nil {
			return nil, err
		}
	}

	return []ast.Stmt{&ast.IfStmt{Base: st.Base, Cond: cond, Body: body, Else: elseBody}}, nil
}

func (l *lowerer) lowerFor(st *ast.ForStmt) ([]ast.Stmt, *DesugarError) {
	target, err := l.lowerExpr(st.Target)
	if err != nil {
		return nil, err
	}

	iter, err := l.lowerExpr(st.Iter)
	if err != nil {
		return nil, err
	}

	body, err := l.lowerStmts(st.Body)
	if err != nil {
		return nil, err
	}

	return []ast.Stmt{&ast.ForStmt{Base: st.Base, Target: target, Iter: iter, Body: body}}, nil
}

func (l *lowerer) lowerMatch(st *ast.MatchStmt) ([]ast.Stmt, *DesugarError) {
	subject, err := l.lowerExpr(st.Subject)
	if err != nil {
		return nil, err
	}

	arms := make([]ast.MatchArm, len(st.Arms))

	for i, arm := range st.Arms {
		var guard ast.Expr

		if arm.Guard != nil {
			guard, err = l.lowerExpr(arm.Guard)
			if err != nil {
				return nil, err
			}
		}

		body, err := l.lowerStmts(arm.Body)
		if err != nil {
			return nil, err
		}

		arms[i] = ast.MatchArm{Base: arm.Base, Pattern: arm.Pattern, Guard: guard, Body: body}
	}

	return []ast.Stmt{&ast.MatchStmt{Base: st.Base, Subject: subject, Arms: arms}}, nil
}

// lowerTry recurses into body/handlers/finally; the scoped
// error-catching-expression rewrite itself is a codegen-time concern (§4.5)
// since it depends on the symbol table's result-type classification, so the
// desugarer only normalizes sub-expressions here.
func (l *lowerer) lowerTry(st *ast.TryStmt) ([]ast.Stmt, *DesugarError) {
	body, err := l.lowerStmts(st.Body)
	if err != nil {
		return nil, err
	}

	handlers := make([]ast.ExceptHandler, len(st.Handlers))

	for i, h := range st.Handlers {
		hbody, err := l.lowerStmts(h.Body)
		if err != nil {
			return nil, err
		}

		handlers[i] = ast.ExceptHandler{Base: h.Base, Type: h.Type, Name: h.Name, Body: hbody}
	}

	var finally []ast.Stmt

	if st.Finally != nil {
		finally, err = l.lowerStmts(st.Finally)
		if err != nil {
			return nil, err
		}
	}

	return []ast.Stmt{&ast.TryStmt{Base: st.Base, Body: body, Handlers: handlers, Finally: finally}}, nil
}

// ===========================================================================
// Expressions
// ===========================================================================

func (l *lowerer) lowerExpr(e ast.Expr) (ast.Expr, *DesugarError) {
	if e == nil {
		return nil, nil
	}

	switch ex := e.(type) {
	case *ast.NameExpr, *ast.NumberLiteral, *ast.StringLiteral, *ast.BooleanLiteral, *ast.NoneLiteral:
		return e, nil
	case *ast.AttributeExpr:
		v, err := l.lowerExpr(ex.Value)
		if err != nil {
			return nil, err
		}

		return &ast.AttributeExpr{Base: ex.Base, Value: v, Attr: ex.Attr}, nil
	case *ast.SubscriptExpr:
		v, err := l.lowerExpr(ex.Value)
		if err != nil {
			return nil, err
		}

		idx, err := l.lowerExpr(ex.Index)
		if err != nil {
			return nil, err
		}

		return &ast.SubscriptExpr{Base: ex.Base, Value: v, Index: idx}, nil
	case *ast.SliceExpr:
		lower, err := l.lowerExpr(ex.Lower)
		if err != nil {
			return nil, err
		}

		upper, err := l.lowerExpr(ex.Upper)
		if err != nil {
			return nil, err
		}

		step, err := l.lowerExpr(ex.Step)
		if err != nil {
			return nil, err
		}

		return &ast.SliceExpr{Base: ex.Base, Lower: lower, Upper: upper, Step: step}, nil
	case *ast.CallExpr:
		fn, err := l.lowerExpr(ex.Func)
		if err != nil {
			return nil, err
		}

		args := make([]ast.Expr, len(ex.Args))

		for i, a := range ex.Args {
			la, err := l.lowerExpr(a)
			if err != nil {
				return nil, err
			}

			args[i] = la
		}

		kwargs := make([]ast.Keyword, len(ex.Keywords))

		for i, k := range ex.Keywords {
			kv, err := l.lowerExpr(k.Value)
			if err != nil {
				return nil, err
			}

			kwargs[i] = ast.Keyword{Name: k.Name, Value: kv}
		}

		return &ast.CallExpr{Base: ex.Base, Func: fn, Args: args, Keywords: kwargs}, nil
	case *ast.BinOpExpr:
		left, err := l.lowerExpr(ex.Left)
		if err != nil {
			return nil, err
		}

		right, err := l.lowerExpr(ex.Right)
		if err != nil {
			return nil, err
		}

		return &ast.BinOpExpr{Base: ex.Base, Left: left, Op: ex.Op, Right: right}, nil
	case *ast.UnaryOpExpr:
		operand, err := l.lowerExpr(ex.Operand)
		if err != nil {
			return nil, err
		}

		return &ast.UnaryOpExpr{Base: ex.Base, Op: ex.Op, Operand: operand}, nil
	case *ast.BoolOpExpr:
		values := make([]ast.Expr, len(ex.Values))

		for i, v := range ex.Values {
			lv, err := l.lowerExpr(v)
			if err != nil {
				return nil, err
			}

			values[i] = lv
		}

		return &ast.BoolOpExpr{Base: ex.Base, Op: ex.Op, Values: values}, nil
	case *ast.CompareExpr:
		left, err := l.lowerExpr(ex.Left)
		if err != nil {
			return nil, err
		}

		comparators := make([]ast.Expr, len(ex.Comparators))

		for i, c := range ex.Comparators {
			lc, err := l.lowerExpr(c)
			if err != nil {
				return nil, err
			}

			comparators[i] = lc
		}

		return &ast.CompareExpr{Base: ex.Base, Left: left, Ops: ex.Ops, Comparators: comparators}, nil
	case *ast.LambdaExpr:
		body, err := l.lowerExpr(ex.Body)
		if err != nil {
			return nil, err
		}

		return &ast.LambdaExpr{Base: ex.Base, Params: ex.Params, Body: body}, nil
	case *ast.IfExpExpr:
		test, err := l.lowerExpr(ex.Test)
		if err != nil {
			return nil, err
		}

		body, err := l.lowerExpr(ex.Body)
		if err != nil {
			return nil, err
		}

		orElse, err := l.lowerExpr(ex.OrElse)
		if err != nil {
			return nil, err
		}

		return &ast.IfExpExpr{Base: ex.Base, Test: test, Body: body, OrElse: orElse}, nil
	case *ast.TupleExpr:
		elems, err := l.lowerExprList(ex.Elements)
		if err != nil {
			return nil, err
		}

		return &ast.TupleExpr{Base: ex.Base, Elements: elems}, nil
	case *ast.ListExpr:
		elems, err := l.lowerExprList(ex.Elements)
		if err != nil {
			return nil, err
		}

		return &ast.ListExpr{Base: ex.Base, Elements: elems}, nil
	case *ast.SetExpr:
		elems, err := l.lowerExprList(ex.Elements)
		if err != nil {
			return nil, err
		}

		return &ast.SetExpr{Base: ex.Base, Elements: elems}, nil
	case *ast.DictExpr:
		entries := make([]ast.DictEntry, len(ex.Entries))

		for i, en := range ex.Entries {
			k, err := l.lowerExpr(en.Key)
			if err != nil {
				return nil, err
			}

			v, err := l.lowerExpr(en.Value)
			if err != nil {
				return nil, err
			}

			entries[i] = ast.DictEntry{Key: k, Value: v}
		}

		return &ast.DictExpr{Base: ex.Base, Entries: entries}, nil
	case *ast.StarredExpr:
		v, err := l.lowerExpr(ex.Value)
		if err != nil {
			return nil, err
		}

		return &ast.StarredExpr{Base: ex.Base, Value: v}, nil
	case *ast.FStringExpr:
		return l.lowerFString(ex)
	case *ast.ComprehensionExpr:
		return l.lowerComprehension(ex)
	case *ast.PipeExpr:
		return l.lowerPipe(ex)
	default:
		return e, nil
	}
}

func (l *lowerer) lowerExprList(exprs []ast.Expr) ([]ast.Expr, *DesugarError) {
	out := make([]ast.Expr, len(exprs))

	for i, e := range exprs {
		lowered, err := l.lowerExpr(e)
		if err != nil {
			return nil, err
		}

		out[i] = lowered
	}

	return out, nil
}

// lowerFString rewrites an f-string into a format call carrying a literal
// template (`{}` placeholders, braces doubled to escape literal braces) and
// the sequence of embedded expressions, each independently lowered (§4.3).
func (l *lowerer) lowerFString(fs *ast.FStringExpr) (ast.Expr, *DesugarError) {
	var template strings.Builder

	var args []ast.Expr

	for _, part := range fs.Parts {
		if !part.IsExpr {
			template.WriteString(strings.ReplaceAll(strings.ReplaceAll(part.Literal, "{", "{{"), "}", "}}"))
			continue
		}

		template.WriteString("{}")

		arg, err := l.lowerExpr(part.Expr)
		if err != nil {
			return nil, err
		}

		args = append(args, arg)
	}

	call := &ast.CallExpr{
		Base: fs.Base,
		Func: &ast.NameExpr{Base: fs.Base, Name: "format"},
		Args: append([]ast.Expr{&ast.StringLiteral{Base: fs.Base, Value: template.String()}}, args...),
	}

	return call, nil
}

// lowerComprehension rewrites `[e for x in xs if c...]` and its dict/set
// variants into `xs.iter().filter(...).map(...).collect()` (§4.3, S4).
func (l *lowerer) lowerComprehension(comp *ast.ComprehensionExpr) (ast.Expr, *DesugarError) {
	iter, err := l.lowerExpr(comp.Iter)
	if err != nil {
		return nil, err
	}

	paramName := "x"
	if n, ok := comp.Target.(*ast.NameExpr); ok {
		paramName = n.Name
	}

	chain := methodCall(comp.Base, iter, "iter", nil)

	for _, cond := range comp.Ifs {
		loweredCond, err := l.lowerExpr(cond)
		if err != nil {
			return nil, err
		}

		filterLambda := &ast.LambdaExpr{Base: comp.Base, Params: []ast.Param{{Name: paramName}}, Body: loweredCond}
		chain = methodCall(comp.Base, chain, "filter", []ast.Expr{filterLambda})
	}

	var mapBody ast.Expr

	switch comp.Kind {
	case ast.DictComp:
		key, err := l.lowerExpr(comp.Key)
		if err != nil {
			return nil, err
		}

		val, err := l.lowerExpr(comp.Element)
		if err != nil {
			return nil, err
		}

		mapBody = &ast.TupleExpr{Base: comp.Base, Elements: []ast.Expr{key, val}}
	default:
		el, err := l.lowerExpr(comp.Element)
		if err != nil {
			return nil, err
		}

		mapBody = el
	}

	mapLambda := &ast.LambdaExpr{Base: comp.Base, Params: []ast.Param{{Name: paramName}}, Body: mapBody}
	chain = methodCall(comp.Base, chain, "map", []ast.Expr{mapLambda})
	chain = methodCall(comp.Base, chain, "collect", nil)

	return chain, nil
}

func methodCall(base ast.Base, receiver ast.Expr, method string, args []ast.Expr) ast.Expr {
	return &ast.CallExpr{
		Base: base,
		Func: &ast.AttributeExpr{Base: base, Value: receiver, Attr: method},
		Args: args,
	}
}

// lowerPipe rewrites `x |> f(args)` into `f(x, args)` (§4.3, S3).
func (l *lowerer) lowerPipe(pipe *ast.PipeExpr) (ast.Expr, *DesugarError) {
	value, err := l.lowerExpr(pipe.Value)
	if err != nil {
		return nil, err
	}

	fn, err := l.lowerExpr(pipe.Call.Func)
	if err != nil {
		return nil, err
	}

	args, err := l.lowerExprList(pipe.Call.Args)
	if err != nil {
		return nil, err
	}

	return &ast.CallExpr{
		Base:     pipe.Base,
		Func:     fn,
		Args:     append([]ast.Expr{value}, args...),
		Keywords: pipe.Call.Keywords,
	}, nil
}
