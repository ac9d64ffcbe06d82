// Package regalloc implements C7: saturation-based graph coloring of
// the interference graph with spilling to stack slots (spec §4.6).
package regalloc

import (
	"sort"

	"github.com/tinylang/xcc/internal/interfere"
	"github.com/tinylang/xcc/internal/x86ir"
)

// Home is the storage location assigned to a virtual variable: either
// an allocatable register or a spill slot index (spec §3, §4.7).
type Home struct {
	IsReg  bool
	Reg    x86ir.Reg
	Spill  int // spill slot index, valid when !IsReg
}

// Result is the output of coloring: a home for every virtual variable
// the interference graph names, the set of callee-saved registers that
// ended up assigned (spec §4.6 point 4), and the number of spill slots
// used.
type Result struct {
	Homes        map[uint64]Home
	SavedCallee  []x86ir.Reg
	SpillSlots   int
}

// Color runs saturation-based graph coloring over g using the default
// allocatable register palette (spec §4.6).
func Color(g *interfere.Graph) *Result {
	return ColorWithPalette(g, x86ir.Allocatable)
}

// ColorWithPalette runs the same algorithm as Color but over a
// caller-supplied register palette, letting pipeline.Options override
// the default without mutating package-level state (the core must
// stay safe to invoke twice in one process, spec §10.3).
//
// Precolored nodes (registers that already appear as graph nodes, e.g.
// because an instruction reads/writes them directly) keep their fixed
// color. Uncolored virtual-variable nodes are colored by repeatedly
// picking the node of maximum saturation (most distinct colors among
// its neighbors), breaking ties by higher degree, then lower node key
// for full determinism (spec §5 deterministic iteration).
func ColorWithPalette(g *interfere.Graph, palette []x86ir.Reg) *Result {
	colorOf := make(map[uint64]int)
	regIndex := make(map[x86ir.Reg]int)
	for i, r := range palette {
		regIndex[r] = i
	}

	nodes := g.Nodes()
	var toColor []x86ir.LArg
	for _, n := range nodes {
		if n.IsReg {
			if idx, ok := regIndex[n.Reg]; ok {
				colorOf[n.Key()] = idx
			} else {
				// A reserved register (RAX/RBP/RSP) appearing as a node
				// still needs a fixed, stable color outside the palette
				// so it never collides with an allocatable color, but it
				// is never itself assigned to a virtual variable.
				colorOf[n.Key()] = -1
			}
			continue
		}
		toColor = append(toColor, n)
	}

	saturation := func(n x86ir.LArg) map[int]bool {
		sat := make(map[int]bool)
		for _, nb := range g.Neighbors(n) {
			if c, ok := colorOf[nb.Key()]; ok && c >= 0 {
				sat[c] = true
			}
		}
		return sat
	}

	remaining := make(map[uint64]x86ir.LArg, len(toColor))
	for _, n := range toColor {
		remaining[n.Key()] = n
	}

	for len(remaining) > 0 {
		var best x86ir.LArg
		bestSat, bestDeg := -1, -1
		var keys []uint64
		for k := range remaining {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, k := range keys {
			n := remaining[k]
			sat := len(saturation(n))
			deg := len(g.Neighbors(n))
			if sat > bestSat || (sat == bestSat && deg > bestDeg) {
				best, bestSat, bestDeg = n, sat, deg
			}
		}

		used := saturation(best)
		color := 0
		for used[color] {
			color++
		}
		colorOf[best.Key()] = color
		delete(remaining, best.Key())
	}

	homes := make(map[uint64]Home)
	maxSpill := -1
	savedSeen := make(map[x86ir.Reg]bool)
	var savedOrder []x86ir.Reg

	for _, n := range nodes {
		if n.IsReg {
			continue // registers are not themselves virtual variables to home
		}
		c := colorOf[n.Key()]
		if c < len(palette) {
			r := palette[c]
			homes[n.Key()] = Home{IsReg: true, Reg: r}
			if x86ir.IsCalleeSaved(r) && !savedSeen[r] {
				savedSeen[r] = true
				savedOrder = append(savedOrder, r)
			}
		} else {
			slot := c - len(palette) + 1 // 1-indexed spill slot (spec §4.6)
			homes[n.Key()] = Home{Spill: slot}
			if slot > maxSpill {
				maxSpill = slot
			}
		}
	}

	sort.Slice(savedOrder, func(i, j int) bool { return savedOrder[i] < savedOrder[j] })
	spillSlots := 0
	if maxSpill >= 0 {
		spillSlots = maxSpill // slots are 1-indexed, so the max index is the count used
	}
	return &Result{Homes: homes, SavedCallee: savedOrder, SpillSlots: spillSlots}
}

// StackOffset returns the RBP-relative byte offset for spill slot n
// (1-indexed), per spec §4.6: color k (spilled) maps to offset
// -8 * (k - palette_size + 1).
func StackOffset(slot int) int32 {
	return int32(-8 * slot)
}

// StackSpace computes the frame's allocated stack space (spec §4.6):
// 8 bytes per spill slot, rounded up so that
// (stack_space + 8*saved_callee_count + 8) % 16 == 0 at call sites —
// the +8 accounts for the return address a Call pushes.
func (r *Result) StackSpace() int {
	base := 8 * r.SpillSlots
	savedBytes := 8 * len(r.SavedCallee)
	for (base+savedBytes+8)%16 != 0 {
		base += 8
	}
	return base
}
