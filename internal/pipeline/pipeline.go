// Package pipeline orchestrates C2 through C11 over one program,
// threading the explicit Options a driver configures once at startup
// (spec §10.3) rather than through package-level globals, so the core
// stays safe to invoke twice in one process (needed for the
// differential tests in this package).
package pipeline

import (
	"fmt"
	"io"

	"github.com/tinylang/xcc/internal/atomize"
	"github.com/tinylang/xcc/internal/conclude"
	"github.com/tinylang/xcc/internal/encode"
	"github.com/tinylang/xcc/internal/explicate"
	"github.com/tinylang/xcc/internal/homes"
	"github.com/tinylang/xcc/internal/interfere"
	"github.com/tinylang/xcc/internal/ir"
	"github.com/tinylang/xcc/internal/isel"
	"github.com/tinylang/xcc/internal/liveness"
	"github.com/tinylang/xcc/internal/patch"
	"github.com/tinylang/xcc/internal/regalloc"
	"github.com/tinylang/xcc/internal/x86ir"
)

// Options configures one compilation. The zero value is a valid
// default: the standard allocatable palette, no debug dump.
type Options struct {
	// Palette overrides the register-coloring palette C7 uses; nil
	// means x86ir.Allocatable.
	Palette []x86ir.Reg

	// DebugDump, when non-nil, receives a textual trace of each
	// function's x86 IR immediately after instruction selection, tagged
	// with a collision-free per-run name (internal/ir.NewDebugDumpName).
	DebugDump io.Writer
}

func (o Options) palette() []x86ir.Reg {
	if o.Palette != nil {
		return o.Palette
	}
	return x86ir.Allocatable
}

// Output is the result of compiling a program: the flat machine-code
// byte stream and the offset within it of the runtime entry point
// (spec §6: "a flat sequence of x86-64 machine bytes ... plus an
// entry-point offset").
type Output struct {
	Code        []byte
	EntryOffset int
}

// Compile runs the whole back-end pipeline (C2-C11) over prog.
func Compile(prog *ir.Program, opts Options) (*Output, error) {
	atomized := atomize.Program(prog)
	tailProg := explicate.Program(atomized)
	x86prog, err := isel.Program(tailProg)
	if err != nil {
		return nil, fmt.Errorf("instruction selection: %w", err)
	}

	if opts.DebugDump != nil {
		dumpName := ir.NewDebugDumpName()
		fmt.Fprintf(opts.DebugDump, "; %s\n", dumpName)
	}

	results := make(map[uint64]*regalloc.Result, len(x86prog.Order))
	for _, sym := range x86prog.Order {
		fn := x86prog.Funcs[sym.ID()]

		if opts.DebugDump != nil {
			dumpFunction(opts.DebugDump, fn)
		}

		annotated := liveness.Analyze(fn)
		g := interfere.Build(annotated)
		res := regalloc.ColorWithPalette(g, opts.palette())
		homes.Function(fn, res)
		results[sym.ID()] = res
	}

	patch.Program(x86prog)
	concluded := conclude.Program(x86prog, results)

	out, err := encode.Program(concluded)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	return &Output{Code: out.Code, EntryOffset: out.EntryOffset}, nil
}

// dumpFunction writes a minimal per-block instruction listing for fn,
// used only when Options.DebugDump is set.
func dumpFunction(w io.Writer, fn *x86ir.Function) {
	fmt.Fprintf(w, "func %s:\n", fn.Sym)
	for _, lbl := range fn.Order {
		blk, _ := fn.Block(lbl)
		fmt.Fprintf(w, "  %s:\n", lbl)
		for _, in := range blk.Instrs {
			fmt.Fprintf(w, "    %d\n", in.Op)
		}
	}
}
