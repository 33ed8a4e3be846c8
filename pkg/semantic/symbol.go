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

import "github.com/quichelang/quiche/pkg/ast"

// SymbolKind classifies what a Symbol refers to (§3).
type SymbolKind uint8

// Symbol kinds.
const (
	SymVariable SymbolKind = iota
	SymFunction
	SymType
	SymModule
	SymConst
	SymExtern
	SymEnumVariant
	SymTrait
)

// Symbol is one resolved binding: a variable, function, type, module alias,
// constant, extern alias, enum variant, or trait (§3).
type Symbol struct {
	Name string
	Kind SymbolKind
	// EmittedType is the symbol's declared or inferred type expression, if
	// known; nil when unannotated.
	EmittedType ast.Expr
	// IsMutRef records both a parameter's `&mut`/`mutref[...]` annotation
	// and a local's inferred need for a `let mut` binding (§4.4's
	// mutability-inference rules (a)-(e) reuse the same field per §3's
	// Symbol shape, which names no separate needs-mut field).
	IsMutRef bool
	// IsIterableRef is set when this binding is an exclusive reference to a
	// known container family that is also consumed by a `for` loop over its
	// bare name (§4.4's iterable-ref tracking).
	IsIterableRef bool
	IsConst       bool
	// ExternPath holds the external path for an ExternDef-classified symbol.
	ExternPath    string
	GenericParams []string
}
