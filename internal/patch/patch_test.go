package patch

import (
	"testing"

	"github.com/tinylang/xcc/internal/x86ir"
)

func TestPatchSplitsTwoMemoryOperands(t *testing.T) {
	in := x86ir.Mov(x86ir.Deref(x86ir.RBP, -8), x86ir.Deref(x86ir.RBP, -16))
	out := patchInstr(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 instructions, got %d", len(out))
	}
	if !out[0].Dst.IsReg() || out[0].Dst.Reg != x86ir.RAX {
		t.Fatalf("expected first move into RAX scratch, got %+v", out[0])
	}
	if !out[1].Src.IsReg() || out[1].Src.Reg != x86ir.RAX {
		t.Fatalf("expected second move from RAX scratch, got %+v", out[1])
	}
	if !out[1].Dst.IsMem() {
		t.Fatalf("expected second move's destination to stay the original memory operand")
	}
}

func TestPatchDropsNoOpMove(t *testing.T) {
	in := x86ir.Mov(x86ir.RegArg(x86ir.RBX), x86ir.RegArg(x86ir.RBX))
	out := patchInstr(in)
	if len(out) != 0 {
		t.Fatalf("expected no-op move to be dropped, got %v", out)
	}
}

func TestPatchRejectsImmediateCmpDestination(t *testing.T) {
	in := x86ir.Cmp(x86ir.RegArg(x86ir.RBX), x86ir.Imm(5))
	out := patchInstr(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 instructions, got %d", len(out))
	}
	if out[1].Dst.IsImm() {
		t.Fatalf("patched Cmp must not have an immediate destination")
	}
}

func TestPatchLeavesLegalInstructionsAlone(t *testing.T) {
	in := x86ir.Add(x86ir.RegArg(x86ir.RAX), x86ir.RegArg(x86ir.RBX))
	out := patchInstr(in)
	if len(out) != 1 || out[0] != in {
		t.Fatalf("expected legal instruction unchanged, got %v", out)
	}
}
