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

	"github.com/quichelang/quiche/pkg/ast"
)

// emitCall dispatches a call expression to named-field constructor,
// container method-remap, turbo-fish, or plain-call emission, in that
// priority order.
func (g *codegen) emitCall(call *ast.CallExpr) (string, *CodegenError) {
	if rendered, ok, err := g.emitConstructorCall(call); ok || err != nil {
		return rendered, err
	}

	if attr, ok := call.Func.(*ast.AttributeExpr); ok {
		if rendered, matched, err := g.emitContainerMethodCall(call, attr); matched || err != nil {
			return rendered, err
		}
	}

	if sub, ok := call.Func.(*ast.SubscriptExpr); ok {
		return g.emitTurbofishCall(call, sub)
	}

	funcStr, err := g.emitExpr(call.Func)
	if err != nil {
		return "", err
	}

	args, err := g.emitCallArgs(call)
	if err != nil {
		return "", err
	}

	return funcStr + "(" + strings.Join(args, ", ") + ")", nil
}

// emitConstructorCall recognizes `Name(field=value, ...)` calls against a
// known struct type and renders them as a named-field struct literal
// (§4.5's constructor-call emission).
func (g *codegen) emitConstructorCall(call *ast.CallExpr) (string, bool, *CodegenError) {
	name, ok := call.Func.(*ast.NameExpr)
	if !ok || len(call.Keywords) == 0 || len(call.Args) > 0 {
		return "", false, nil
	}

	if _, ok := g.result.Types[name.Name].(*ast.StructDef); !ok {
		return "", false, nil
	}

	parts := make([]string, len(call.Keywords))

	for i, kw := range call.Keywords {
		value, err := g.emitExpr(kw.Value)
		if err != nil {
			return "", true, err
		}

		parts[i] = kw.Name + ": " + value
	}

	return name.Name + " { " + strings.Join(parts, ", ") + " }", true, nil
}

// emitContainerMethodCall remaps a vector/map mutating method call to its
// Rust stdlib equivalent, borrowing key/index arguments where the target
// method requires a reference.
func (g *codegen) emitContainerMethodCall(call *ast.CallExpr, attr *ast.AttributeExpr) (string, bool, *CodegenError) {
	receiverName, ok := attr.Value.(*ast.NameExpr)
	if !ok {
		return "", false, nil
	}

	sym, exists := g.lookupSymbol(receiverName.Name)
	if !exists || sym.EmittedType == nil {
		return "", false, nil
	}

	family := isContainerType(sym.EmittedType)
	if family == "" {
		return "", false, nil
	}

	var remapped string

	var known bool

	switch family {
	case "Vec":
		remapped, known = vectorRemap[attr.Attr]
	case "HashMap":
		remapped, known = mapRemap[attr.Attr]
	}

	if !known {
		return "", false, nil
	}

	args, err := g.emitCallArgs(call)
	if err != nil {
		return "", true, err
	}

	if family == "HashMap" && mapArgRefMethods[attr.Attr] && len(args) > 0 {
		args[0] = "&" + args[0]
	}

	rendered := receiverName.Name + "." + remapped + "(" + strings.Join(args, ", ") + ")"

	if family == "HashMap" && attr.Attr == "get" {
		rendered += ".cloned()"
	}

	return rendered, true, nil
}

// emitTurbofishCall renders a generic call `f[T](args)` as `f::<T>(args)`.
func (g *codegen) emitTurbofishCall(call *ast.CallExpr, sub *ast.SubscriptExpr) (string, *CodegenError) {
	base, err := g.emitExpr(sub.Value)
	if err != nil {
		return "", err
	}

	targs := emitTypeArgs(sub.Index)

	args, err := g.emitCallArgs(call)
	if err != nil {
		return "", err
	}

	return base + "::<" + targs + ">(" + strings.Join(args, ", ") + ")", nil
}

func (g *codegen) emitCallArgs(call *ast.CallExpr) ([]string, *CodegenError) {
	fn := g.calleeFunctionDef(call.Func)

	args := make([]string, 0, len(call.Args)+len(call.Keywords))

	for i, a := range call.Args {
		rendered, err := g.emitExpr(a)
		if err != nil {
			return nil, err
		}

		if fn != nil && i < len(fn.Params) {
			rendered = autoBorrow(rendered, a, fn.Params[i].Annotation)
		}

		args = append(args, rendered)
	}

	for _, kw := range call.Keywords {
		rendered, err := g.emitExpr(kw.Value)
		if err != nil {
			return nil, err
		}

		args = append(args, kw.Name+": "+rendered)
	}

	return args, nil
}

// calleeFunctionDef finds the top-level FunctionDef a call targets, when
// its callee is a bare name, to drive auto-borrow insertion.
func (g *codegen) calleeFunctionDef(fn ast.Expr) *ast.FunctionDef {
	name, ok := fn.(*ast.NameExpr)
	if !ok {
		return nil
	}

	return g.functions[name.Name]
}

// autoBorrow wraps a bare-name argument in `&`/`&mut` when the matching
// parameter declares a reference type; non-name arguments and by-value
// parameters pass through unchanged. Ownership-move arguments that are
// used again after the call are not auto-cloned: that requires a liveness
// analysis this pass does not perform, and is accepted as a known
// simplification (surviving instances must `qref`/`mutref` explicitly, or
// clone, in source).
func autoBorrow(rendered string, arg ast.Expr, paramType ast.Expr) string {
	if _, ok := arg.(*ast.NameExpr); !ok {
		return rendered
	}

	sub, ok := paramType.(*ast.SubscriptExpr)
	if !ok {
		return rendered
	}

	name, ok := sub.Value.(*ast.NameExpr)
	if !ok {
		return rendered
	}

	switch name.Name {
	case "MutRef", "mutref":
		if strings.HasPrefix(rendered, "&") {
			return rendered
		}

		return "&mut " + rendered
	case "Ref", "ref":
		if strings.HasPrefix(rendered, "&") {
			return rendered
		}

		return "&" + rendered
	default:
		return rendered
	}
}
