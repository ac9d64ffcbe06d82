// Package interfere implements C6: building the interference graph
// from a liveness-annotated function (spec §4.5). For every write
// operand w with live-after set L, edges {w, l} are added for every
// l in L, l != w.
package interfere

import (
	"sort"

	"github.com/tinylang/xcc/internal/liveness"
	"github.com/tinylang/xcc/internal/x86ir"
)

// Graph is an undirected interference graph over LArgs.
type Graph struct {
	nodes map[uint64]x86ir.LArg
	edges map[uint64]map[uint64]bool
}

func NewGraph() *Graph {
	return &Graph{nodes: make(map[uint64]x86ir.LArg), edges: make(map[uint64]map[uint64]bool)}
}

// AddNode ensures l is represented in the graph even if it never
// interferes with anything (spec §4.5: "nodes are also added for
// isolated writes").
func (g *Graph) AddNode(l x86ir.LArg) {
	if _, ok := g.nodes[l.Key()]; !ok {
		g.nodes[l.Key()] = l
		g.edges[l.Key()] = make(map[uint64]bool)
	}
}

// AddEdge records that a and b cannot share a home.
func (g *Graph) AddEdge(a, b x86ir.LArg) {
	if a.Key() == b.Key() {
		return
	}
	g.AddNode(a)
	g.AddNode(b)
	g.edges[a.Key()][b.Key()] = true
	g.edges[b.Key()][a.Key()] = true
}

// Neighbors returns the LArgs adjacent to l, sorted by key for
// deterministic downstream iteration.
func (g *Graph) Neighbors(l x86ir.LArg) []x86ir.LArg {
	keys := make([]uint64, 0, len(g.edges[l.Key()]))
	for k := range g.edges[l.Key()] {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]x86ir.LArg, len(keys))
	for i, k := range keys {
		out[i] = g.nodes[k]
	}
	return out
}

// Interferes reports whether a and b share an edge.
func (g *Graph) Interferes(a, b x86ir.LArg) bool {
	return g.edges[a.Key()][b.Key()]
}

// Nodes returns every node in the graph, sorted by key.
func (g *Graph) Nodes() []x86ir.LArg {
	keys := make([]uint64, 0, len(g.nodes))
	for k := range g.nodes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]x86ir.LArg, len(keys))
	for i, k := range keys {
		out[i] = g.nodes[k]
	}
	return out
}

// Build constructs the interference graph for a whole liveness-annotated
// function (spec §4.5). Move instructions are not treated specially:
// the move-biased optimization the spec calls out as optional is not
// implemented, matching spec's "acceptable but not required" wording.
func Build(fn *liveness.Function) *Graph {
	g := NewGraph()
	for _, lbl := range fn.Src.Order {
		blk := fn.Blocks[lbl.ID()]
		for _, ann := range blk.Instrs {
			for _, w := range writesOf(ann.Instr) {
				g.AddNode(w)
				for _, l := range ann.LiveAfter.Sorted() {
					if l.Key() != w.Key() {
						g.AddEdge(w, l)
					}
				}
			}
		}
	}
	return g
}

// writesOf returns the LArgs an instruction writes, matching the same
// classification liveness analysis uses (internal/liveness.step).
func writesOf(in x86ir.Instruction) []x86ir.LArg {
	var out []x86ir.LArg
	add := func(a x86ir.Arg) {
		if l, ok := a.AsLArg(); ok {
			out = append(out, l)
		}
	}
	switch in.Op {
	case x86ir.IAdd, x86ir.ISub, x86ir.IAnd, x86ir.IOr, x86ir.IXor, x86ir.IMov:
		add(in.Dst)
	case x86ir.IPop, x86ir.INeg, x86ir.INot, x86ir.ILoadLbl:
		if in.Op == x86ir.ILoadLbl {
			add(in.Dst)
		} else {
			add(in.Operand)
		}
	case x86ir.IMul:
		out = append(out, x86ir.LArgReg(x86ir.RAX), x86ir.LArgReg(x86ir.RDX))
	case x86ir.IDiv:
		out = append(out, x86ir.LArgReg(x86ir.RAX), x86ir.LArgReg(x86ir.RDX))
	case x86ir.ISetcc:
		out = append(out, x86ir.LArgReg(x86ir.RAX))
	case x86ir.ICallDirect, x86ir.ICallIndirect:
		for _, r := range x86ir.ClobberedByCall {
			out = append(out, x86ir.LArgReg(r))
		}
	case x86ir.ISyscall:
		for _, r := range x86ir.ClobberedByCall {
			out = append(out, x86ir.LArgReg(r))
		}
	}
	return out
}
