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
	"strconv"
	"strings"

	"github.com/quichelang/quiche/pkg/ast"
	"github.com/quichelang/quiche/pkg/semantic"
)

// vectorRemap and mapRemap translate the method names used on the
// surface language's list/dict values into their Rust stdlib equivalents
// (§4.5's method remapping tables).
var vectorRemap = map[string]string{
	"append": "push", "pop": "pop", "clear": "clear", "reverse": "reverse",
	"sort": "sort", "insert": "insert", "extend": "extend",
}

var mapRemap = map[string]string{
	"get": "get", "insert": "insert", "remove": "remove", "contains_key": "contains_key",
	"clear": "clear", "keys": "keys", "values": "values", "items": "iter",
	"pop": "remove", "update": "extend",
}

// mapArgRefMethods names the map methods whose first argument must be
// borrowed (`&key`) rather than passed by value.
var mapArgRefMethods = map[string]bool{"remove": true, "contains_key": true}

var binOpStr = map[ast.BinOperator]string{
	ast.BitOr: "|", ast.BitXor: "^", ast.BitAnd: "&", ast.LShift: "<<", ast.RShift: ">>",
	ast.Add: "+", ast.Sub: "-", ast.Mul: "*", ast.Div: "/", ast.FloorDiv: "/", ast.Mod: "%", ast.Pow: "",
}

var unaryOpStr = map[ast.UnaryOperator]string{
	ast.UPlus: "+", ast.UMinus: "-", ast.UInvert: "!", ast.UNot: "!",
}

var cmpOpStr = map[ast.CmpOperator]string{
	ast.CmpEq: "==", ast.CmpNotEq: "!=", ast.CmpLt: "<", ast.CmpLtEq: "<=",
	ast.CmpGt: ">", ast.CmpGtEq: ">=", ast.CmpIs: "==", ast.CmpIsNot: "!=",
}

func (g *codegen) emitExpr(e ast.Expr) (string, *CodegenError) {
	switch ex := e.(type) {
	case *ast.NameExpr:
		return ex.Name, nil
	case *ast.NumberLiteral:
		if ex.Raw != "" {
			return ex.Raw, nil
		}

		if ex.IsFloat {
			return strconv.FormatFloat(ex.FltValue, 'g', -1, 64), nil
		}

		return strconv.FormatInt(ex.IntValue, 10), nil
	case *ast.StringLiteral:
		return strconv.Quote(ex.Value), nil
	case *ast.BooleanLiteral:
		if ex.Value {
			return "true", nil
		}

		return "false", nil
	case *ast.NoneLiteral:
		return "None", nil
	case *ast.AttributeExpr:
		return g.emitAttribute(ex)
	case *ast.SubscriptExpr:
		return g.emitSubscript(ex)
	case *ast.SliceExpr:
		return g.emitSlice(ex)
	case *ast.CallExpr:
		return g.emitCall(ex)
	case *ast.BinOpExpr:
		left, err := g.emitExpr(ex.Left)
		if err != nil {
			return "", err
		}

		right, err := g.emitExpr(ex.Right)
		if err != nil {
			return "", err
		}

		if ex.Op == ast.Pow {
			return left + ".pow(" + right + ")", nil
		}

		return "(" + left + " " + binOpStr[ex.Op] + " " + right + ")", nil
	case *ast.UnaryOpExpr:
		operand, err := g.emitExpr(ex.Operand)
		if err != nil {
			return "", err
		}

		return "(" + unaryOpStr[ex.Op] + operand + ")", nil
	case *ast.BoolOpExpr:
		op := " && "
		if ex.Op == ast.BoolOr {
			op = " || "
		}

		parts := make([]string, len(ex.Values))

		for i, v := range ex.Values {
			rendered, err := g.emitExpr(v)
			if err != nil {
				return "", err
			}

			parts[i] = rendered
		}

		return "(" + strings.Join(parts, op) + ")", nil
	case *ast.CompareExpr:
		return g.emitCompare(ex)
	case *ast.LambdaExpr:
		return g.emitLambda(ex)
	case *ast.IfExpExpr:
		test, err := g.emitExpr(ex.Test)
		if err != nil {
			return "", err
		}

		body, err := g.emitExpr(ex.Body)
		if err != nil {
			return "", err
		}

		orelse, err := g.emitExpr(ex.OrElse)
		if err != nil {
			return "", err
		}

		return "(if " + test + " { " + body + " } else { " + orelse + " })", nil
	case *ast.TupleExpr:
		return g.emitExprSeq(ex.Elements, "(", ")")
	case *ast.ListExpr:
		inner, err := g.emitExprSeq(ex.Elements, "[", "]")
		if err != nil {
			return "", err
		}

		return "vec!" + inner, nil
	case *ast.SetExpr:
		return g.emitExprSeq(ex.Elements, "[", "]")
	case *ast.DictExpr:
		return g.emitDict(ex)
	case *ast.StarredExpr:
		inner, err := g.emitExpr(ex.Value)
		if err != nil {
			return "", err
		}

		return "..." + inner, nil
	case *ast.ComprehensionExpr:
		return "", &CodegenError{Span: e.Span(), Reason: "comprehension reached codegen without lowering"}
	case *ast.PipeExpr:
		return "", &CodegenError{Span: e.Span(), Reason: "pipe expression reached codegen without lowering"}
	case *ast.FStringExpr:
		return "", &CodegenError{Span: e.Span(), Reason: "f-string reached codegen without lowering"}
	default:
		return "", &CodegenError{Span: e.Span(), Reason: "unsupported expression form"}
	}
}

func (g *codegen) emitExprSeq(elems []ast.Expr, open, close string) (string, *CodegenError) {
	parts := make([]string, len(elems))

	for i, el := range elems {
		rendered, err := g.emitExpr(el)
		if err != nil {
			return "", err
		}

		parts[i] = rendered
	}

	return open + strings.Join(parts, ", ") + close, nil
}

func (g *codegen) emitDict(d *ast.DictExpr) (string, *CodegenError) {
	parts := make([]string, len(d.Entries))

	for i, entry := range d.Entries {
		key, err := g.emitExpr(entry.Key)
		if err != nil {
			return "", err
		}

		value, err := g.emitExpr(entry.Value)
		if err != nil {
			return "", err
		}

		parts[i] = "(" + key + ", " + value + ")"
	}

	return "HashMap::from([" + strings.Join(parts, ", ") + "])", nil
}

func (g *codegen) emitCompare(ex *ast.CompareExpr) (string, *CodegenError) {
	left, err := g.emitExpr(ex.Left)
	if err != nil {
		return "", err
	}

	var parts []string

	prev := left

	for i, op := range ex.Ops {
		rhs, err := g.emitExpr(ex.Comparators[i])
		if err != nil {
			return "", err
		}

		switch op {
		case ast.CmpIn:
			parts = append(parts, rhs+".contains(&"+prev+")")
		case ast.CmpNotIn:
			parts = append(parts, "!"+rhs+".contains(&"+prev+")")
		default:
			parts = append(parts, "("+prev+" "+cmpOpStr[op]+" "+rhs+")")
		}

		prev = rhs
	}

	return strings.Join(parts, " && "), nil
}

func (g *codegen) emitLambda(ex *ast.LambdaExpr) (string, *CodegenError) {
	names := make([]string, len(ex.Params))

	for i, p := range ex.Params {
		names[i] = p.Name
	}

	g.pushLetScope()

	for _, n := range names {
		g.markDeclared(n)
	}

	body, err := g.emitExpr(ex.Body)

	g.popLetScope()

	if err != nil {
		return "", err
	}

	return "|" + strings.Join(names, ", ") + "| " + body, nil
}

func (g *codegen) emitSlice(ex *ast.SliceExpr) (string, *CodegenError) {
	var lower, upper string

	var err *CodegenError

	if ex.Lower != nil {
		lower, err = g.emitExpr(ex.Lower)
		if err != nil {
			return "", err
		}
	}

	if ex.Upper != nil {
		upper, err = g.emitExpr(ex.Upper)
		if err != nil {
			return "", err
		}
	}

	return lower + ".." + upper, nil
}

func (g *codegen) emitSubscript(ex *ast.SubscriptExpr) (string, *CodegenError) {
	value, err := g.emitExpr(ex.Value)
	if err != nil {
		return "", err
	}

	if slice, ok := ex.Index.(*ast.SliceExpr); ok {
		idx, err := g.emitSlice(slice)
		if err != nil {
			return "", err
		}

		return value + "[" + idx + "]", nil
	}

	index, err := g.emitExpr(ex.Index)
	if err != nil {
		return "", err
	}

	return value + "[" + index + "]", nil
}

// emitAttribute applies the `.`/`::` separator rule: value access uses `.`,
// while access through a type, module, trait, or extern symbol uses `::`.
// `.new` is always a static (`::`) constructor call, and a trailing `def_`
// (used to dodge the `def` keyword) renders back to `def`.
func (g *codegen) emitAttribute(ex *ast.AttributeExpr) (string, *CodegenError) {
	base, err := g.emitExpr(ex.Value)
	if err != nil {
		return "", err
	}

	attr := ex.Attr
	if attr == "def_" {
		attr = "def"
	}

	sep := "."

	if name, ok := ex.Value.(*ast.NameExpr); ok {
		if sym, exists := g.result.Table.Lookup(name.Name); exists {
			switch sym.Kind {
			case semantic.SymType, semantic.SymModule, semantic.SymExtern, semantic.SymTrait:
				sep = "::"
			}
		}
	}

	if attr == "new" {
		sep = "::"
	}

	return base + sep + attr, nil
}

func (g *codegen) emitPattern(p ast.Pattern) string {
	switch pat := p.(type) {
	case *ast.WildcardPattern:
		return "_"
	case *ast.BindPattern:
		return pat.Name
	case *ast.LiteralPattern:
		rendered, err := g.emitExpr(pat.Value)
		if err != nil {
			return "_"
		}

		return rendered
	case *ast.ConstructorPattern:
		if len(pat.Fields) > 0 {
			parts := make([]string, len(pat.Fields))

			for i, f := range pat.Fields {
				parts[i] = f.Name + ": " + g.emitPattern(f.Pattern)
			}

			return pat.Name + " { " + strings.Join(parts, ", ") + " }"
		}

		if len(pat.Positional) == 0 {
			return pat.Name
		}

		parts := make([]string, len(pat.Positional))

		for i, sub := range pat.Positional {
			parts[i] = g.emitPattern(sub)
		}

		return pat.Name + "(" + strings.Join(parts, ", ") + ")"
	case *ast.TuplePattern:
		parts := make([]string, len(pat.Elements))

		for i, sub := range pat.Elements {
			parts[i] = g.emitPattern(sub)
		}

		return "(" + strings.Join(parts, ", ") + ")"
	case *ast.StarRestPattern:
		if pat.Name == "" {
			return ".."
		}

		return pat.Name + " @ .."
	default:
		return "_"
	}
}
