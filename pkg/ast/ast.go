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

// Package ast defines the Quiche abstract syntax tree: the sum types for
// statements, expressions, and match patterns produced by the parser and
// rebuilt into a new, lowered Module by the desugarer.
package ast

import "github.com/quichelang/quiche/pkg/source"

// Node is implemented by every statement, expression, and pattern.
type Node interface {
	Span() source.Span
}

// Stmt is implemented by every statement variant.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is implemented by every expression variant.
type Expr interface {
	Node
	exprNode()
}

// Pattern is implemented by every match-pattern variant.
type Pattern interface {
	Node
	patternNode()
}

// Base embeds a span and furnishes Span() for every concrete node.
type Base struct {
	Span_ source.Span
}

// Span returns the source span covered by this node.
func (b Base) Span() source.Span { return b.Span_ }

// NewBase constructs the embeddable span Base for a node at the given span.
func NewBase(span source.Span) Base { return Base{span} }

// Module is an ordered sequence of statements together with the bookkeeping
// the code generator consults: the import map, the set of type names this
// file emits, and per-declaration decorator metadata.
type Module struct {
	Base
	Body      []Stmt
	Imports   []Import
	TypeNames []string
	Decorated map[Stmt][]Decorator
}

// Decorator is a parsed `@name(args...)` annotation attached to the
// declaration immediately following it.
type Decorator struct {
	Base
	Name string
	Args []Expr
	// Kwargs holds keyword arguments such as `for_=S` in `@implement(T, for_=S)`.
	Kwargs map[string]Expr
}

// ===========================================================================
// Statements
// ===========================================================================

func (*ImportStmt) stmtNode()     {}
func (*FromImportStmt) stmtNode() {}
func (*FunctionDef) stmtNode()    {}
func (*ClassDef) stmtNode()       {}
func (*TypeDef) stmtNode()        {}
func (*ConstDef) stmtNode()       {}
func (*AssignStmt) stmtNode()     {}
func (*AnnAssignStmt) stmtNode()  {}
func (*AugAssignStmt) stmtNode()  {}
func (*IfStmt) stmtNode()         {}
func (*WhileStmt) stmtNode()      {}
func (*ForStmt) stmtNode()        {}
func (*MatchStmt) stmtNode()      {}
func (*TryStmt) stmtNode()        {}
func (*ReturnStmt) stmtNode()     {}
func (*ExprStmt) stmtNode()       {}
func (*PassStmt) stmtNode()       {}
func (*BreakStmt) stmtNode()      {}
func (*ContinueStmt) stmtNode()   {}
func (*RaiseStmt) stmtNode()      {}
func (*AssertStmt) stmtNode()     {}

// Import holds one `import module [as alias]` clause.
type Import struct {
	Module string
	Alias  string
}

// ImportStmt is a bare `import a, b as c` statement.
type ImportStmt struct {
	Base
	Names []Import
}

// FromImportStmt is a `from module import a, b as c` statement.
type FromImportStmt struct {
	Base
	Module string
	Names  []Import
}

// Param is a single function/lambda parameter.
type Param struct {
	Name       string
	Annotation Expr // nil if unannotated
	Default    Expr // nil if no default; §7 rejects non-nil defaults
	// IsIteratorSource is set by the desugarer when Annotation names an
	// exclusive reference to a known container family (§4.3, §4.4); a
	// `for` loop over this bare parameter must be adapted at codegen time.
	IsIteratorSource bool
}

// TypeParam is one generic parameter, optionally carrying `+`-joined trait
// bounds (`T: Trait`, `T: A+B`); `where` clauses are not supported (§9).
type TypeParam struct {
	Name   string
	Bounds []string
}

// FunctionDef is a `def name[T,...](params) -> ret: body` declaration, and
// also a method when nested inside a ClassDef/TypeDef body.
type FunctionDef struct {
	Base
	Name         string
	TypeParams   []TypeParam
	Params       []Param
	ReturnType   Expr // nil if unannotated
	Body         []Stmt
	IsMethod     bool
	ReceiverName string // "self" or "" when IsMethod is false
	ReceiverMut  bool   // true when receiver annotated mutref[Self]
}

// ClassDef is a legacy `class Name(Base, ...): body` declaration. The
// desugarer rewrites this to StructDef/EnumDef/TraitDef based on the base
// list per §4.3 and §9; ClassDef itself only exists pre-desugar.
type ClassDef struct {
	Base
	Name       string
	TypeParams []TypeParam
	Bases      []Expr
	Body       []Stmt
}

// TypeDef is a `type Name[T,...]: body` or `type Name = A | B | C`
// declaration; the desugarer classifies it as struct/enum/union based on
// body shape per the §4.3 lowering table.
type TypeDef struct {
	Base
	Name       string
	TypeParams []TypeParam
	// Union holds the `A | B | C` alternatives for an inline union form; nil
	// for the block form.
	Union []Expr
	Body  []Stmt
}

// ConstDef is a module-scope `SCREAMING_NAME: T = v` or `name: Const[T] = v`
// declaration, as recognized by the desugarer (§4.3).
type ConstDef struct {
	Base
	Name  string
	Type  Expr
	Value Expr
}

func (*StructDef) stmtNode() {}
func (*EnumDef) stmtNode()   {}
func (*TraitDef) stmtNode()  {}
func (*ImplDef) stmtNode()   {}
func (*ExternDef) stmtNode() {}

// StructField is one `name: type` member of a StructDef.
type StructField struct {
	Name string
	Type Expr
}

// StructDef is a lowered struct declaration, produced by the desugarer from
// a `type X:` field-annotation block or a legacy `class X(Struct):` (§4.3).
type StructDef struct {
	Base
	Name       string
	TypeParams []TypeParam
	Fields     []StructField
}

// EnumVariant is one variant of an EnumDef. Fields is nil for a unit
// variant; otherwise it holds the tuple-variant's positional field types.
type EnumVariant struct {
	Name   string
	Fields []Expr
}

// EnumDef is a lowered enum declaration, produced by the desugarer from a
// `type X:` variant-assignment block, an inline `type X = A | B | C` union,
// or a legacy `class X(Enum):` (§4.3).
type EnumDef struct {
	Base
	Name       string
	TypeParams []TypeParam
	Variants   []EnumVariant
}

// TraitDef is a lowered trait declaration, produced by the desugarer from a
// legacy `class X(Trait):` (§4.3, §9).
type TraitDef struct {
	Base
	Name       string
	TypeParams []TypeParam
	Methods    []*FunctionDef
}

// ImplDef ties a method-bearing block to a trait implementation on a
// target type, produced by the desugarer from `@impl(T)` /
// `@implement(T, for_=S)` (§4.3, §6).
type ImplDef struct {
	Base
	Trait   string
	Target  string
	Methods []*FunctionDef
}

// ExternDef is a type alias to an external path, produced by the desugarer
// from `@extern(path=..., no_generic=...)` (§4.3, §6).
type ExternDef struct {
	Base
	Name      string
	Path      string
	NoGeneric bool
}

// AssignStmt is `target, ... = value`.
type AssignStmt struct {
	Base
	Targets []Expr
	Value   Expr
}

// AnnAssignStmt is `target: Type = value` (value may be nil).
type AnnAssignStmt struct {
	Base
	Target     Expr
	Annotation Expr
	Value      Expr
}

// AugAssignOp enumerates augmented-assignment operators.
type AugAssignOp uint8

// Augmented-assignment operators.
const (
	AugAdd AugAssignOp = iota
	AugSub
	AugMul
	AugDiv
	AugFloorDiv
	AugMod
	AugPow
	AugBitOr
	AugBitAnd
	AugBitXor
	AugLShift
	AugRShift
)

// AugAssignStmt is `target op= value`.
type AugAssignStmt struct {
	Base
	Target Expr
	Op     AugAssignOp
	Value  Expr
}

// IfStmt is `if cond: body [elif cond: body]* [else: body]`; elif chains are
// represented as a nested IfStmt in Else.
type IfStmt struct {
	Base
	Cond Expr
	Body []Stmt
	Else []Stmt
}

// WhileStmt is `while cond: body`.
type WhileStmt struct {
	Base
	Cond Expr
	Body []Stmt
}

// ForStmt is `for target in iter: body`.
type ForStmt struct {
	Base
	Target Expr
	Iter   Expr
	Body   []Stmt
}

// MatchArm is one `case pattern [if guard]: body` clause.
type MatchArm struct {
	Base
	Pattern Pattern
	Guard   Expr // nil if no guard
	Body    []Stmt
}

// MatchStmt is `match subject: arm+`.
type MatchStmt struct {
	Base
	Subject Expr
	Arms    []MatchArm
}

// ExceptHandler is one `except [Type] [as name]: body` clause.
type ExceptHandler struct {
	Base
	Type Expr // nil for a bare `except`
	Name string // "" if unbound
	Body []Stmt
}

// TryStmt is `try: body except... [finally: body]`.
type TryStmt struct {
	Base
	Body     []Stmt
	Handlers []ExceptHandler
	Finally  []Stmt
}

// ReturnStmt is `return [value]`.
type ReturnStmt struct {
	Base
	Value Expr // nil for bare return
}

// ExprStmt wraps an expression used as a statement.
type ExprStmt struct {
	Base
	Value Expr
}

// PassStmt is `pass`.
type PassStmt struct{ Base }

// BreakStmt is `break`.
type BreakStmt struct{ Base }

// ContinueStmt is `continue`.
type ContinueStmt struct{ Base }

// RaiseStmt is `raise [value]`.
type RaiseStmt struct {
	Base
	Value Expr // nil for bare re-raise
}

// AssertStmt is `assert cond[, msg]`; lowered by the desugarer into a
// conditional call to the runtime failure helper (§4.3).
type AssertStmt struct {
	Base
	Cond Expr
	Msg  Expr // nil if no message given
}

// ===========================================================================
// Expressions
// ===========================================================================

func (*NameExpr) exprNode()          {}
func (*AttributeExpr) exprNode()     {}
func (*SubscriptExpr) exprNode()     {}
func (*CallExpr) exprNode()          {}
func (*BinOpExpr) exprNode()         {}
func (*UnaryOpExpr) exprNode()       {}
func (*BoolOpExpr) exprNode()        {}
func (*CompareExpr) exprNode()       {}
func (*LambdaExpr) exprNode()        {}
func (*IfExpExpr) exprNode()         {}
func (*TupleExpr) exprNode()         {}
func (*ListExpr) exprNode()          {}
func (*DictExpr) exprNode()          {}
func (*SetExpr) exprNode()           {}
func (*FStringExpr) exprNode()       {}
func (*NumberLiteral) exprNode()     {}
func (*StringLiteral) exprNode()     {}
func (*BooleanLiteral) exprNode()    {}
func (*NoneLiteral) exprNode()       {}
func (*SliceExpr) exprNode()         {}
func (*StarredExpr) exprNode()       {}
func (*ComprehensionExpr) exprNode() {}
func (*PipeExpr) exprNode()          {}

// NameExpr is a bare identifier reference.
type NameExpr struct {
	Base
	Name string
}

// AttributeExpr is `value.attr`.
type AttributeExpr struct {
	Base
	Value Expr
	Attr  string
}

// SubscriptExpr is `value[index]`, where Index may be a SliceExpr.
type SubscriptExpr struct {
	Base
	Value Expr
	Index Expr
}

// Keyword is a `name=value` call keyword argument.
type Keyword struct {
	Name  string
	Value Expr
}

// CallExpr is `fn(args..., name=value...)`.
type CallExpr struct {
	Base
	Func     Expr
	Args     []Expr
	Keywords []Keyword
}

// BinOperator enumerates binary arithmetic/bitwise operators.
type BinOperator uint8

// Binary operators, ordered to match the precedence table in §4.2.
const (
	BitOr BinOperator = iota
	BitXor
	BitAnd
	LShift
	RShift
	Add
	Sub
	Mul
	Div
	FloorDiv
	Mod
	Pow
)

// BinOpExpr is `left op right`.
type BinOpExpr struct {
	Base
	Left  Expr
	Op    BinOperator
	Right Expr
}

// UnaryOperator enumerates unary operators.
type UnaryOperator uint8

// Unary operators.
const (
	UPlus UnaryOperator = iota
	UMinus
	UInvert
	UNot
)

// UnaryOpExpr is `op operand`.
type UnaryOpExpr struct {
	Base
	Op      UnaryOperator
	Operand Expr
}

// BoolOperator enumerates short-circuiting boolean operators.
type BoolOperator uint8

// Boolean operators.
const (
	BoolAnd BoolOperator = iota
	BoolOr
)

// BoolOpExpr is `v1 op v2 op v3 ...`.
type BoolOpExpr struct {
	Base
	Op     BoolOperator
	Values []Expr
}

// CmpOperator enumerates chainable comparison operators.
type CmpOperator uint8

// Comparison operators.
const (
	CmpEq CmpOperator = iota
	CmpNotEq
	CmpLt
	CmpLtEq
	CmpGt
	CmpGtEq
	CmpIn
	CmpNotIn
	CmpIs
	CmpIsNot
)

// CompareExpr is a left-associative chain `left op1 c1 op2 c2 ...` collapsed
// into a single node per §4.2.
type CompareExpr struct {
	Base
	Left        Expr
	Ops         []CmpOperator
	Comparators []Expr
}

// LambdaExpr is `lambda params: body` or one of its `|x, y| body` surface
// forms (§4.2); all forms desugar to the same node shape.
type LambdaExpr struct {
	Base
	Params []Param
	Body   Expr
}

// IfExpExpr is the ternary `body if test else orelse`.
type IfExpExpr struct {
	Base
	Test   Expr
	Body   Expr
	OrElse Expr
}

// TupleExpr is `(a, b, ...)`.
type TupleExpr struct {
	Base
	Elements []Expr
}

// ListExpr is `[a, b, ...]`.
type ListExpr struct {
	Base
	Elements []Expr
}

// DictEntry is one `key: value` pair in a dict literal.
type DictEntry struct {
	Key   Expr
	Value Expr
}

// DictExpr is `{k: v, ...}`.
type DictExpr struct {
	Base
	Entries []DictEntry
}

// SetExpr is `{v, ...}`.
type SetExpr struct {
	Base
	Elements []Expr
}

// FStringPart is either a literal chunk or an embedded expression inside an
// f-string; exactly one of Literal/Expr is meaningful, selected by IsExpr.
type FStringPart struct {
	IsExpr  bool
	Literal string
	Expr    Expr
}

// FStringExpr is an f-string literal, lexed into alternating literal chunks
// and independently re-parsed embedded expressions (§4.1, §4.2).
type FStringExpr struct {
	Base
	Parts []FStringPart
}

// NumberLiteral is an integer or float literal.
type NumberLiteral struct {
	Base
	IsFloat  bool
	IntValue int64
	FltValue float64
	Raw      string
}

// StringLiteral is a string or bytes literal.
type StringLiteral struct {
	Base
	Value   string
	IsBytes bool
}

// BooleanLiteral is `True`/`False`.
type BooleanLiteral struct {
	Base
	Value bool
}

// NoneLiteral is `None`.
type NoneLiteral struct{ Base }

// SliceExpr is `lower:upper:step` inside a subscript, each part optional.
type SliceExpr struct {
	Base
	Lower Expr // nil if absent
	Upper Expr // nil if absent
	Step  Expr // nil if absent
}

// StarredExpr is `*expr`, used in call arguments and assignment targets.
type StarredExpr struct {
	Base
	Value Expr
}

// ComprehensionKind distinguishes list/dict/set comprehensions.
type ComprehensionKind uint8

// Comprehension kinds.
const (
	ListComp ComprehensionKind = iota
	DictComp
	SetComp
)

// ComprehensionExpr is `[e for x in xs if c]` and its dict/set variants
// (§3, lowered per §4.3's table into iterator-chain form).
type ComprehensionExpr struct {
	Base
	Kind    ComprehensionKind
	Element Expr      // list/set element, or dict value when Kind==DictComp
	Key     Expr      // dict key; nil unless Kind==DictComp
	Target  Expr      // loop variable pattern
	Iter    Expr      // source iterable
	Ifs     []Expr    // zero or more filter conditions
}

// PipeExpr is `x |> f(args)`, lowered to `f(x, args)` at desugar time (§4.3,
// S3).
type PipeExpr struct {
	Base
	Value Expr
	Call  *CallExpr
}

// ===========================================================================
// Patterns
// ===========================================================================

func (*WildcardPattern) patternNode()    {}
func (*LiteralPattern) patternNode()     {}
func (*BindPattern) patternNode()        {}
func (*ConstructorPattern) patternNode() {}
func (*TuplePattern) patternNode()       {}
func (*StarRestPattern) patternNode()    {}

// WildcardPattern is the catch-all `_` pattern.
type WildcardPattern struct{ Base }

// LiteralPattern matches a literal value exactly.
type LiteralPattern struct {
	Base
	Value Expr
}

// BindPattern binds the scrutinee (or sub-scrutinee) to a name.
type BindPattern struct {
	Base
	Name string
}

// CtorField is one `name: pattern` entry in a named-field constructor
// pattern.
type CtorField struct {
	Name    string
	Pattern Pattern
}

// ConstructorPattern matches `Ctor(sub, ...)` or `Ctor{field: pat, ...}`.
type ConstructorPattern struct {
	Base
	Name   string
	Positional []Pattern
	Fields     []CtorField
}

// TuplePattern matches `(p1, p2, ...)`.
type TuplePattern struct {
	Base
	Elements []Pattern
}

// StarRestPattern matches `*rest` within a tuple/sequence pattern.
type StarRestPattern struct {
	Base
	Name string // "" for an unbound `*_`
}
