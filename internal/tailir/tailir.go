// Package tailir is the tail-form IR produced by explicate-control
// (spec §3, §4.2): a function is a map from block label to tail, with
// control flow expressed only via Goto, If, and Return.
package tailir

import "github.com/tinylang/xcc/internal/ir"

// Atom is either a literal or a symbol reference — the only shapes
// that may appear as an operand to a primitive, call, or branch
// (spec §3 atom invariant).
type Atom struct {
	IsLit bool
	Lit   ir.Literal
	Sym   ir.Symbol
}

func AtomLit(l ir.Literal) Atom { return Atom{IsLit: true, Lit: l} }
func AtomSym(s ir.Symbol) Atom  { return Atom{Sym: s} }

// CExpr is the right-hand side of a Seq or Return: an atom, a
// primitive applied to atoms, a function reference, or an indirect
// call.
type CExprKind int

const (
	CAtom CExprKind = iota
	CPrim
	CFunRef
	CApply
)

type CExpr struct {
	Kind CExprKind
	Atom Atom
	Op   ir.Op
	Args []Atom // CPrim, CApply
	Fun  ir.Symbol
	// CApply indirect callee, when the callee itself is a computed atom
	// rather than a statically known function symbol.
	Callee Atom
	Direct bool // true if Callee refers to a known function symbol (CApply)
}

func CAtomExpr(a Atom) CExpr                 { return CExpr{Kind: CAtom, Atom: a} }
func CPrimExpr(op ir.Op, args ...Atom) CExpr { return CExpr{Kind: CPrim, Op: op, Args: args} }
func CFunRefExpr(s ir.Symbol) CExpr          { return CExpr{Kind: CFunRef, Fun: s} }
func CApplyExpr(callee Atom, direct bool, args ...Atom) CExpr {
	return CExpr{Kind: CApply, Callee: callee, Direct: direct, Args: args}
}

// Label names a basic block.
type Label = ir.Symbol

// TailKind tags which shape a Tail has.
type TailKind int

const (
	TReturn TailKind = iota
	TSeq
	TIf
	TGoto
)

// Tail is a block body: exactly one of Return, Seq, If, Goto
// (spec §3, the tail-form invariant).
type Tail struct {
	Kind TailKind

	// TReturn
	Value CExpr

	// TSeq
	Bind CExpr
	Sym  ir.Symbol
	Next *Tail

	// TIf
	Cond     Atom
	ThenLbl  Label
	ElseLbl  Label

	// TGoto
	Target Label
}

func Return(v CExpr) *Tail { return &Tail{Kind: TReturn, Value: v} }
func SeqT(sym ir.Symbol, bind CExpr, next *Tail) *Tail {
	return &Tail{Kind: TSeq, Sym: sym, Bind: bind, Next: next}
}
func IfT(cond Atom, thenLbl, elseLbl Label) *Tail {
	return &Tail{Kind: TIf, Cond: cond, ThenLbl: thenLbl, ElseLbl: elseLbl}
}
func Goto(target Label) *Tail { return &Tail{Kind: TGoto, Target: target} }

// Function is a tail-form function: its blocks, entry/exit labels,
// parameters, and return type.
type Function struct {
	Sym     ir.Symbol
	Params  []ir.Param
	Ret     ir.Type
	Blocks  map[uint64]*Tail
	Order   []Label // block declaration order, for deterministic iteration
	Entry   Label
	Exit    Label
}

func NewFunction(sym ir.Symbol, params []ir.Param, ret ir.Type) *Function {
	return &Function{Sym: sym, Params: params, Ret: ret, Blocks: make(map[uint64]*Tail)}
}

// AddBlock installs tail as the body of label, recording order the
// first time a label is added.
func (f *Function) AddBlock(label Label, tail *Tail) {
	if _, exists := f.Blocks[label.ID()]; !exists {
		f.Order = append(f.Order, label)
	}
	f.Blocks[label.ID()] = tail
}

func (f *Function) Block(label Label) (*Tail, bool) {
	t, ok := f.Blocks[label.ID()]
	return t, ok
}

// Program mirrors ir.Program at tail-form stage.
type Program struct {
	Funcs map[uint64]*Function
	Order []ir.Symbol
	Entry ir.Symbol
}

func NewProgram(entry ir.Symbol) *Program {
	return &Program{Funcs: make(map[uint64]*Function), Entry: entry}
}

func (p *Program) AddFunc(fn *Function) {
	if _, exists := p.Funcs[fn.Sym.ID()]; !exists {
		p.Order = append(p.Order, fn.Sym)
	}
	p.Funcs[fn.Sym.ID()] = fn
}
