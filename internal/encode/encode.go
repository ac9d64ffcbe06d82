// Package encode implements C11: two-pass encoding of a concluded x86
// IR program into raw x86-64 machine bytes (spec §4.10).
package encode

import (
	"encoding/binary"
	"math"

	"github.com/tinylang/xcc/internal/conclude"
	"github.com/tinylang/xcc/internal/ir"
	"github.com/tinylang/xcc/internal/x86ir"
	"github.com/tinylang/xcc/internal/xerr"
)

// Result is the encoder's output: the flat instruction stream and the
// byte offset of the runtime entry point within it.
type Result struct {
	Code       []byte
	EntryOffset int
}

// fixup records a 4-byte little-endian relative displacement field
// still waiting on its target block's offset.
type fixup struct {
	at     int // byte offset of the 4-byte displacement field
	target uint64
}

// Program encodes a concluded program's blocks in order, resolving
// every Jmp/Jcc/CallDirect/LoadLbl displacement in a second pass over
// the recorded fixups (spec §4.10).
func Program(r *conclude.Result) (*Result, error) {
	var code []byte
	labelOffset := make(map[uint64]int)
	var fixups []fixup

	for _, lbl := range r.Order {
		labelOffset[lbl.ID()] = len(code)
		blk := r.Blocks[lbl.ID()]
		for _, in := range blk.Instrs {
			enc, fx := encodeInstr(in, len(code))
			code = append(code, enc...)
			fixups = append(fixups, fx...)
		}
	}

	for _, fx := range fixups {
		target, ok := labelOffset[fx.target]
		if !ok {
			return nil, xerr.Unreachable("encode: unresolved label id %d", fx.target)
		}
		disp := int64(target) - int64(fx.at+4)
		if disp > math.MaxInt32 || disp < math.MinInt32 {
			return nil, xerr.EncodingOverflow("jump/call target", disp)
		}
		binary.LittleEndian.PutUint32(code[fx.at:fx.at+4], uint32(int32(disp)))
	}

	entryOffset, ok := labelOffset[r.RuntimeLbl.ID()]
	if !ok {
		return nil, xerr.Unreachable("encode: runtime entry label never emitted")
	}

	return &Result{Code: code, EntryOffset: entryOffset}, nil
}

// encodeInstr returns in's encoded bytes plus any fixups those bytes
// still need, given the instruction's starting byte offset base.
func encodeInstr(in x86ir.Instruction, base int) ([]byte, []fixup) {
	switch in.Op {
	case x86ir.IAdd, x86ir.ISub, x86ir.IAnd, x86ir.IOr, x86ir.IXor, x86ir.ICmp, x86ir.IMov:
		return encodeArith(in), nil
	case x86ir.IPush:
		return encodePushPop(0x50, in.Operand), nil
	case x86ir.IPop:
		return encodePushPop(0x58, in.Operand), nil
	case x86ir.INeg:
		return encodeUnary(0xF7, 3, in.Operand), nil
	case x86ir.INot:
		return encodeUnary(0xF7, 2, in.Operand), nil
	case x86ir.IMul:
		return encodeUnary(0xF7, 4, in.Operand), nil
	case x86ir.IDiv:
		return encodeUnary(0xF7, 6, in.Operand), nil
	case x86ir.IJmp:
		return encodeRel32(0xE9, nil, base, in.Label)
	case x86ir.IJcc:
		return encodeRel32(0x0F, []byte{jccOpcode(in.Cond)}, base, in.Label)
	case x86ir.ISetcc:
		return []byte{0x0F, setccOpcode(in.Cond), 0xC0}, nil
	case x86ir.ILoadLbl:
		return encodeLoadLbl(in, base)
	case x86ir.ICallDirect:
		return encodeCallDirect(in, base)
	case x86ir.ICallIndirect:
		return encodeUnary(0xFF, 2, in.CallSrc), nil
	case x86ir.ISyscall:
		return []byte{0x0F, 0x05}, nil
	case x86ir.IRet:
		return []byte{0xC3}, nil
	}
	return nil, nil
}

// modrmOperand returns the ModRM mod/rm bits and any SIB+disp bytes
// for a register or [base+disp32] memory operand (spec §4.10).
func modrmOperand(a x86ir.Arg) (mod byte, rm byte, tail []byte, extB bool) {
	if a.IsReg() {
		return 0b11, a.Reg.Low3(), nil, a.Reg.Ext()
	}
	// ADeref: mod 10 (disp32), SIB required when the base is RSP or R12.
	base := a.Reg
	disp := make([]byte, 4)
	binary.LittleEndian.PutUint32(disp, uint32(a.Off))
	if base.Low3() == 0b100 {
		return 0b10, 0b100, append([]byte{0x24}, disp...), base.Ext()
	}
	return 0b10, base.Low3(), disp, base.Ext()
}

func rex(w, r, x, b bool) byte {
	var out byte = 0b0100_0000
	if w {
		out |= 1 << 3
	}
	if r {
		out |= 1 << 2
	}
	if x {
		out |= 1 << 1
	}
	if b {
		out |= 1
	}
	return out
}

// arithOpcodes holds the reg->rm, rm->reg, and imm->rm (with /digit)
// opcodes for the two-operand instruction family (spec §4.10).
type arithOpcodes struct {
	regToRM, rmToReg, immToRM byte
	immDigit                  byte
}

var arithTable = map[x86ir.OpKind]arithOpcodes{
	x86ir.IAdd: {0x01, 0x03, 0x81, 0},
	x86ir.IOr:  {0x09, 0x0B, 0x81, 1},
	x86ir.IAnd: {0x21, 0x23, 0x81, 4},
	x86ir.ISub: {0x29, 0x2B, 0x81, 5},
	x86ir.IXor: {0x31, 0x33, 0x81, 6},
	x86ir.ICmp: {0x39, 0x3B, 0x81, 7},
	x86ir.IMov: {0x89, 0x8B, 0xC7, 0},
}

// encodeArith encodes the Add/Sub/And/Or/Xor/Cmp/Mov family: an
// immediate source always uses the imm->rm form; otherwise a register
// source uses reg->rm (reg field holds Src, rm field holds Dst — the
// MR encoding, chosen over RM so reg-reg forms are byte-identical to a
// reference assembler's default form, not just semantically
// equivalent to one) and only a memory source (Dst is then always a
// register, since two-memory-operand shapes are ruled out by C9
// patching) falls back to rm->reg (spec §4.10).
func encodeArith(in x86ir.Instruction) []byte {
	ops := arithTable[in.Op]
	var out []byte

	if in.Src.IsImm() {
		mod, rm, tail, extB := modrmOperand(in.Dst)
		out = append(out, rex(true, false, false, extB))
		out = append(out, ops.immToRM)
		out = append(out, (mod<<6)|(ops.immDigit<<3)|rm)
		out = append(out, tail...)
		imm := make([]byte, 4)
		binary.LittleEndian.PutUint32(imm, uint32(in.Src.Imm))
		return append(out, imm...)
	}

	if in.Src.IsReg() {
		mod, rm, tail, extB := modrmOperand(in.Dst)
		out = append(out, rex(true, in.Src.Reg.Ext(), false, extB))
		out = append(out, ops.regToRM)
		out = append(out, (mod<<6)|(byte(in.Src.Reg.Low3())<<3)|rm)
		return append(out, tail...)
	}

	mod, rm, tail, extB := modrmOperand(in.Src)
	out = append(out, rex(true, in.Dst.Reg.Ext(), false, extB))
	out = append(out, ops.rmToReg)
	out = append(out, (mod<<6)|(byte(in.Dst.Reg.Low3())<<3)|rm)
	return append(out, tail...)
}

// encodePushPop encodes the 0x50+r / 0x58+r single-byte register
// forms, prefixed with 0x41 when the register needs the B extension
// (spec §4.10).
func encodePushPop(base byte, operand x86ir.Arg) []byte {
	var out []byte
	if operand.Reg.Ext() {
		out = append(out, 0x41)
	}
	out = append(out, base+operand.Reg.Low3())
	return out
}

// encodeUnary encodes the single-ModRM-operand family (Neg/Not/Mul/Div
// via opcode 0xF7, CallIndirect via 0xFF), using digit as the ModRM
// reg-field extension (spec §4.10).
func encodeUnary(opcode byte, digit byte, operand x86ir.Arg) []byte {
	mod, rm, tail, extB := modrmOperand(operand)
	w := opcode == 0xF7
	out := []byte{rex(w, false, false, extB), opcode, (mod << 6) | (digit << 3) | rm}
	return append(out, tail...)
}

// encodeRel32 encodes an opcode (one or two bytes) followed by a
// 32-bit relative displacement fixup resolved in Program's second pass.
func encodeRel32(opcode byte, extra []byte, base int, target ir.Symbol) ([]byte, []fixup) {
	out := append([]byte{opcode}, extra...)
	fixupAt := base + len(out)
	out = append(out, 0, 0, 0, 0)
	return out, []fixup{{at: fixupAt, target: target.ID()}}
}

// encodeLoadLbl encodes `lea dst, [rip+disp32]`, whose fixup is
// resolved the same way as a relative jump/call: the RIP value it is
// relative to is the address right after this instruction (spec §4.10).
func encodeLoadLbl(in x86ir.Instruction, base int) ([]byte, []fixup) {
	dst := in.Dst.Reg
	out := []byte{rex(true, dst.Ext(), false, false), 0x8D, (0b00 << 6) | (byte(dst.Low3()) << 3) | 0b101}
	fixupAt := base + len(out)
	out = append(out, 0, 0, 0, 0)
	return out, []fixup{{at: fixupAt, target: in.Label.ID()}}
}

// encodeCallDirect encodes a near relative call (0xE8 rel32).
func encodeCallDirect(in x86ir.Instruction, base int) ([]byte, []fixup) {
	return encodeRel32(0xE8, nil, base, in.Label)
}

var jccOpcodes = map[x86ir.Cond]byte{
	x86ir.CondE:  0x84,
	x86ir.CondNE: 0x85,
	x86ir.CondL:  0x8C,
	x86ir.CondLE: 0x8E,
	x86ir.CondG:  0x8F,
	x86ir.CondGE: 0x8D,
}

var setccOpcodes = map[x86ir.Cond]byte{
	x86ir.CondE:  0x94,
	x86ir.CondNE: 0x95,
	x86ir.CondL:  0x9C,
	x86ir.CondLE: 0x9E,
	x86ir.CondG:  0x9F,
	x86ir.CondGE: 0x9D,
}

func jccOpcode(c x86ir.Cond) byte   { return jccOpcodes[c] }
func setccOpcode(c x86ir.Cond) byte { return setccOpcodes[c] }
