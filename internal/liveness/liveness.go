// Package liveness implements C5: backward data-flow over a function's
// selected instructions, computing the set of live L-args after every
// instruction (spec §4.4).
package liveness

import (
	"sort"

	"github.com/tinylang/xcc/internal/x86ir"
)

// Set is an (ordered-iterable) set of LArgs, keyed by LArg.Key().
type Set map[uint64]x86ir.LArg

func NewSet() Set { return make(Set) }

func (s Set) Add(l x86ir.LArg)      { s[l.Key()] = l }
func (s Set) Remove(l x86ir.LArg)   { delete(s, l.Key()) }
func (s Set) Has(l x86ir.LArg) bool { _, ok := s[l.Key()]; return ok }

// Clone returns a copy of s.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Union mutates s to include every element of other, returning whether
// s changed. Analyze decides re-enqueueing with Equal, not with this
// result.
func (s Set) Union(other Set) bool {
	changed := false
	for k, v := range other {
		if _, ok := s[k]; !ok {
			s[k] = v
			changed = true
		}
	}
	return changed
}

// Sorted returns the set's elements ordered by key, for deterministic
// downstream iteration (spec §5, §9).
func (s Set) Sorted() []x86ir.LArg {
	out := make([]x86ir.LArg, 0, len(s))
	for _, v := range s {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Annotated is one instruction paired with the live set immediately
// after it executes.
type Annotated struct {
	Instr     x86ir.Instruction
	LiveAfter Set
}

// Block is a liveness-annotated block.
type Block struct {
	Instrs []Annotated
}

// Function is a liveness-annotated function: every block's annotated
// instructions in reverse-translated (forward) order, plus the
// live-at-entry set per block (spec §3 "before_map").
type Function struct {
	Src       *x86ir.Function
	Blocks    map[uint64]*Block
	BeforeMap map[uint64]Set
}
