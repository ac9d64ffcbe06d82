package liveness

import (
	"sort"

	"github.com/tinylang/xcc/internal/x86ir"
)

// cfgEdges returns, for each block, the labels it can branch to
// (Jmp/Jcc targets), used to build the predecessor graph the
// work-queue iterates over (spec §4.4).
func cfgEdges(fn *x86ir.Function) map[uint64][]uint64 {
	succ := make(map[uint64][]uint64)
	for _, lbl := range fn.Order {
		blk, _ := fn.Block(lbl)
		for _, in := range blk.Instrs {
			switch in.Op {
			case x86ir.IJmp, x86ir.IJcc:
				succ[lbl.ID()] = append(succ[lbl.ID()], in.Label.ID())
			}
		}
	}
	return succ
}

// Analyze runs the backward fixed-point liveness analysis described in
// spec §4.4 over every block of fn, returning the liveness-annotated
// function.
func Analyze(fn *x86ir.Function) *Function {
	succ := cfgEdges(fn)
	pred := make(map[uint64][]uint64)
	for from, tos := range succ {
		for _, to := range tos {
			pred[to] = append(pred[to], from)
		}
	}

	before := make(map[uint64]Set)

	// Seed the work-queue with every block, smallest id first, so
	// identical inputs produce identical intermediate states (spec §5,
	// §9 "work-queue liveness").
	queue := make([]uint64, 0, len(fn.Order))
	idSet := make(map[uint64]bool)
	for _, lbl := range fn.Order {
		before[lbl.ID()] = NewSet()
		queue = append(queue, lbl.ID())
		idSet[lbl.ID()] = true
	}
	sort.Slice(queue, func(i, j int) bool { return queue[i] < queue[j] })

	idToBlock := make(map[uint64]*x86ir.Block)
	for _, lbl := range fn.Order {
		blk, _ := fn.Block(lbl)
		idToBlock[lbl.ID()] = blk
	}

	annotated := make(map[uint64]*Block)

	enqueue := func(id uint64) {
		if !idSet[id] {
			idSet[id] = true
			// insertion-sorted so the queue always pops smallest id first
			i := sort.Search(len(queue), func(i int) bool { return queue[i] >= id })
			queue = append(queue, 0)
			copy(queue[i+1:], queue[i:])
			queue[i] = id
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		idSet[id] = false

		blk := idToBlock[id]
		liveAfterBlock := NewSet()
		for _, succID := range succ[id] {
			liveAfterBlock.Union(before[succID])
		}

		ann, entryLive := analyzeBlock(blk, liveAfterBlock, before)
		annotated[id] = ann

		old := before[id]
		if !entryLive.Equal(old) {
			before[id] = entryLive
			for _, p := range pred[id] {
				enqueue(p)
			}
		}
	}

	return &Function{Src: fn, Blocks: annotated, BeforeMap: before}
}

// Equal reports whether two liveness sets contain the same elements.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for k := range s {
		if _, ok := other[k]; !ok {
			return false
		}
	}
	return true
}

// analyzeBlock walks blk's instructions backward starting from
// liveAfterBlock (the union of live-at-entry of every successor),
// returning the annotated instructions and the resulting live-at-entry
// set for blk itself.
func analyzeBlock(blk *x86ir.Block, liveAfterBlock Set, before map[uint64]Set) (*Block, Set) {
	live := liveAfterBlock.Clone()
	n := len(blk.Instrs)
	out := make([]Annotated, n)

	for i := n - 1; i >= 0; i-- {
		in := blk.Instrs[i]
		out[i] = Annotated{Instr: in, LiveAfter: live.Clone()}
		live = step(in, live, before)
	}
	return &Block{Instrs: out}, live
}

// step applies one instruction's read/write/readwrite classification
// backward to the live set, per the exhaustive table in spec §4.4.
func step(in x86ir.Instruction, live Set, before map[uint64]Set) Set {
	next := live.Clone()

	readArg := func(a x86ir.Arg) {
		if l, ok := a.AsLArg(); ok {
			next.Add(l)
		}
		if a.Kind == x86ir.ADeref {
			next.Add(x86ir.LArgReg(a.Reg))
		}
	}
	writeArg := func(a x86ir.Arg) {
		if l, ok := a.AsLArg(); ok {
			next.Remove(l)
		}
		if a.Kind == x86ir.ADeref {
			next.Add(x86ir.LArgReg(a.Reg))
		}
	}

	switch in.Op {
	case x86ir.IAdd, x86ir.ISub, x86ir.IAnd, x86ir.IOr, x86ir.IXor:
		// dst is read-write, src is read
		readArg(in.Src)
		readArg(in.Dst)
		writeArg(in.Dst)

	case x86ir.ICmp:
		readArg(in.Src)
		readArg(in.Dst)

	case x86ir.IMov:
		readArg(in.Src)
		writeArg(in.Dst)

	case x86ir.IPush:
		readArg(in.Operand)

	case x86ir.IPop:
		writeArg(in.Operand)

	case x86ir.INeg, x86ir.INot:
		readArg(in.Operand)
		writeArg(in.Operand)

	case x86ir.IMul:
		// Mul reads the operand and RAX, writes RAX and RDX (spec §4.4).
		readArg(in.Operand)
		next.Remove(x86ir.LArgReg(x86ir.RAX))
		next.Remove(x86ir.LArgReg(x86ir.RDX))
		next.Add(x86ir.LArgReg(x86ir.RAX))

	case x86ir.IDiv:
		// Div reads the operand, RAX, and RDX; writes RAX and RDX.
		readArg(in.Operand)
		next.Remove(x86ir.LArgReg(x86ir.RAX))
		next.Remove(x86ir.LArgReg(x86ir.RDX))
		next.Add(x86ir.LArgReg(x86ir.RAX))
		next.Add(x86ir.LArgReg(x86ir.RDX))

	case x86ir.IJmp:
		// Reads the entry-liveness of the target block (spec §4.4);
		// default empty if not yet known.
		if b, ok := before[in.Label.ID()]; ok {
			next.Union(b)
		}

	case x86ir.IJcc:
		if b, ok := before[in.Label.ID()]; ok {
			next.Union(b)
		}

	case x86ir.ISetcc:
		next.Remove(x86ir.LArgReg(x86ir.RAX))

	case x86ir.ILoadLbl:
		writeArg(in.Dst)

	case x86ir.ICallDirect:
		killCallerSaved(next, in.Arity)

	case x86ir.ICallIndirect:
		readArg(in.CallSrc)
		killCallerSaved(next, in.Arity)

	case x86ir.ISyscall:
		for _, r := range x86ir.SyscallRegs[:min(in.Arity, len(x86ir.SyscallRegs))] {
			next.Add(x86ir.LArgReg(r))
		}
		killCallerSaved(next, 0)

	case x86ir.IRet:
		next.Add(x86ir.LArgReg(x86ir.RAX))
	}

	return next
}

// killCallerSaved removes every caller-saved register from live, then
// re-adds the first `arity` argument registers as read-write (spec
// §4.4: "Calls kill all caller-saved registers except the first arity
// (which are read-write)"). RAX is always killed: it carries the call's
// return value, never an incoming argument.
func killCallerSaved(live Set, arity int) {
	for _, r := range x86ir.ClobberedByCall {
		live.Remove(x86ir.LArgReg(r))
	}
	for i, r := range x86ir.ArgRegs {
		if i < arity {
			live.Add(x86ir.LArgReg(r))
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
