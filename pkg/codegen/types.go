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

// builtinTypeNames maps a source-surface bare type name to its emitted form
// (§4.5's type string mapping table).
var builtinTypeNames = map[string]string{
	"List": "Vec", "list": "Vec", "Vec": "Vec", "vec": "Vec",
	"Dict": "HashMap", "dict": "HashMap", "HashMap": "HashMap", "map": "HashMap",
	"String": "String", "str": "String", "Str": "String",
	"Option": "Option", "option": "Option",
	"Result": "Result", "result": "Result",
}

// emitType renders a type expression per §4.5's mapping table: container
// generics rename (List/Vec → Vec, Dict/HashMap → HashMap), Option/Result
// pass through unchanged, String/str/Str collapse to an owned String,
// StrRef becomes a borrowed string slice, Ref/ref and MutRef/mutref become
// `&T`/`&mut T`, Dyn becomes `dyn T`, Box becomes a boxed type, Const
// unwraps to its inner type, and any other generic subscript becomes
// `C<A, B, ...>`.
func emitType(e ast.Expr) string {
	if e == nil {
		return ""
	}

	switch t := e.(type) {
	case *ast.NameExpr:
		if mapped, ok := builtinTypeNames[t.Name]; ok {
			return mapped
		}

		return t.Name
	case *ast.SubscriptExpr:
		name, ok := t.Value.(*ast.NameExpr)
		if !ok {
			return emitType(t.Value) + "<" + emitTypeArgs(t.Index) + ">"
		}

		switch name.Name {
		case "Ref", "ref":
			return "&" + emitType(t.Index)
		case "MutRef", "mutref":
			return "&mut " + emitType(t.Index)
		case "Dyn":
			return "dyn " + emitType(t.Index)
		case "Box":
			return "Box<" + emitType(t.Index) + ">"
		case "Const":
			return emitType(t.Index)
		case "StrRef":
			return "&str"
		default:
			return emitType(t.Value) + "<" + emitTypeArgs(t.Index) + ">"
		}
	case *ast.StringLiteral:
		return t.Value
	default:
		return ""
	}
}

func emitTypeArgs(idx ast.Expr) string {
	if tup, ok := idx.(*ast.TupleExpr); ok {
		parts := make([]string, len(tup.Elements))

		for i, el := range tup.Elements {
			parts[i] = emitType(el)
		}

		return strings.Join(parts, ", ")
	}

	return emitType(idx)
}

// emitTypeParams renders `<T, U: Trait, V: A + B>` from a generic parameter
// list, or "" when there are none (§4.5's generics-with-bounds emission).
func emitTypeParams(params []ast.TypeParam) string {
	if len(params) == 0 {
		return ""
	}

	parts := make([]string, len(params))

	for i, p := range params {
		if len(p.Bounds) == 0 {
			parts[i] = p.Name
			continue
		}

		parts[i] = p.Name + ": " + strings.Join(p.Bounds, " + ")
	}

	return "<" + strings.Join(parts, ", ") + ">"
}

// isContainerType reports the container family name ("Vec", "HashMap") that
// emittedType renders as, or "" if it isn't one, for method-remap selection.
func isContainerType(emittedType ast.Expr) string {
	rendered := emitType(emittedType)

	switch {
	case strings.HasPrefix(rendered, "Vec<") || strings.HasPrefix(rendered, "&Vec<") || strings.HasPrefix(rendered, "&mut Vec<"):
		return "Vec"
	case strings.HasPrefix(rendered, "HashMap<") || strings.HasPrefix(rendered, "&HashMap<") ||
		strings.HasPrefix(rendered, "&mut HashMap<"):
		return "HashMap"
	default:
		return ""
	}
}
