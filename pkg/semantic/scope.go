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

import "github.com/quichelang/quiche/pkg/util/collection/stack"

// ScopeKind distinguishes the scope boundaries that actually introduce
// bindings. §3 lists for/while body, if/elif/else, and block expression as
// scope boundaries too, but §4.4 resolves that broader list down to
// Pythonic scoping: assignments inside those bodies bind in the nearest
// enclosing function (or module) scope, so no frame is pushed for them here.
type ScopeKind uint8

// Scope kinds.
const (
	ScopeModule ScopeKind = iota
	ScopeFunction
	ScopeMatchArm
	ScopeComprehension
)

// Scope holds the bindings introduced directly within one scope frame.
type Scope struct {
	Kind  ScopeKind
	Names map[string]*Symbol
}

func newScope(kind ScopeKind) *Scope {
	return &Scope{Kind: kind, Names: make(map[string]*Symbol)}
}

// Table is the symbol table described in §3: a stack of scopes, with
// lookups walking outward from the innermost frame.
type Table struct {
	scopes *stack.Stack[*Scope]
}

// NewTable constructs a table with its module scope already pushed.
func NewTable() *Table {
	t := &Table{scopes: stack.NewStack[*Scope]()}
	t.scopes.Push(newScope(ScopeModule))

	return t
}

// PushFunction opens a new function scope.
func (t *Table) PushFunction() { t.scopes.Push(newScope(ScopeFunction)) }

// PushMatchArm opens a new match-arm scope.
func (t *Table) PushMatchArm() { t.scopes.Push(newScope(ScopeMatchArm)) }

// PushComprehension opens a new comprehension scope.
func (t *Table) PushComprehension() { t.scopes.Push(newScope(ScopeComprehension)) }

// Pop closes the innermost scope.
func (t *Table) Pop() *Scope { return t.scopes.Pop() }

// Current returns the innermost scope.
func (t *Table) Current() *Scope { return t.scopes.Peek(0) }

// nearestBindingScope returns the nearest module or function scope, per
// §4.4's Pythonic scoping: an assignment inside a match arm or
// comprehension still binds in the enclosing function, except for the
// pattern/loop-variable names those constructs bind directly via
// DeclareHere.
func (t *Table) nearestBindingScope() *Scope {
	n := t.scopes.Len()

	for i := uint(0); i < n; i++ {
		s := t.scopes.Peek(i)
		if s.Kind == ScopeModule || s.Kind == ScopeFunction {
			return s
		}
	}

	return t.scopes.Peek(0)
}

// DeclareLocal binds sym in the nearest enclosing function (or module)
// scope. Returns false if a binding of that name already exists there
// (I2: no further `let` is emitted for it).
func (t *Table) DeclareLocal(sym *Symbol) bool {
	scope := t.nearestBindingScope()

	if _, exists := scope.Names[sym.Name]; exists {
		return false
	}

	scope.Names[sym.Name] = sym

	return true
}

// DeclareHere binds sym directly in the current top-of-stack scope,
// bypassing the Pythonic walk-up; used for match-pattern bindings and
// comprehension loop variables, which are arm-/comprehension-local (§4.4).
func (t *Table) DeclareHere(sym *Symbol) bool {
	scope := t.Current()

	if _, exists := scope.Names[sym.Name]; exists {
		return false
	}

	scope.Names[sym.Name] = sym

	return true
}

// Lookup returns the symbol bound to name in the nearest enclosing scope,
// without consulting imports or the prelude.
func (t *Table) Lookup(name string) (*Symbol, bool) {
	n := t.scopes.Len()

	for i := uint(0); i < n; i++ {
		s := t.scopes.Peek(i)
		if sym, ok := s.Names[name]; ok {
			return sym, true
		}
	}

	return nil, false
}

// Resolve implements §4.4's full name resolution precedence: local →
// enclosing function(s) → module → imports → implicit prelude.
func (t *Table) Resolve(name string, imports map[string]*Symbol) (*Symbol, bool) {
	if sym, ok := t.Lookup(name); ok {
		return sym, true
	}

	if sym, ok := imports[name]; ok {
		return sym, true
	}

	sym, ok := prelude[name]

	return sym, ok
}

// prelude holds the implicit intrinsic types visible in every scope (§4.4).
var prelude = map[string]*Symbol{
	"vector": {Name: "vector", Kind: SymType},
	"Vec":    {Name: "Vec", Kind: SymType},
	"list":   {Name: "list", Kind: SymType},
	"map":    {Name: "map", Kind: SymType},
	"dict":   {Name: "dict", Kind: SymType},
	"HashMap": {Name: "HashMap", Kind: SymType},
	"option":  {Name: "option", Kind: SymType},
	"Option":  {Name: "Option", Kind: SymType},
	"result":  {Name: "Result", Kind: SymType},
	"Result":  {Name: "Result", Kind: SymType},
	"str":     {Name: "str", Kind: SymType},
	"String":  {Name: "String", Kind: SymType},
	"StrRef":  {Name: "StrRef", Kind: SymType},
	"bool":    {Name: "bool", Kind: SymType},
	"int":     {Name: "int", Kind: SymType},
	"float":   {Name: "float", Kind: SymType},
	"i8":      {Name: "i8", Kind: SymType},
	"i16":     {Name: "i16", Kind: SymType},
	"i32":     {Name: "i32", Kind: SymType},
	"i64":     {Name: "i64", Kind: SymType},
	"u8":      {Name: "u8", Kind: SymType},
	"u16":     {Name: "u16", Kind: SymType},
	"u32":     {Name: "u32", Kind: SymType},
	"u64":     {Name: "u64", Kind: SymType},
	"f32":     {Name: "f32", Kind: SymType},
	"f64":     {Name: "f64", Kind: SymType},
	"self":    {Name: "self", Kind: SymVariable},
	"Self":    {Name: "Self", Kind: SymType},
	"check":   {Name: "check", Kind: SymFunction},
	"format":  {Name: "format", Kind: SymFunction},
	"mutref":  {Name: "mutref", Kind: SymFunction},
	"qref":    {Name: "qref", Kind: SymFunction},
	"deref":   {Name: "deref", Kind: SymFunction},
	"strcat":  {Name: "strcat", Kind: SymFunction},
}
