package pseudocode

import (
	"strings"
	"testing"

	"github.com/acrajesh/reverse-asm/internal/ir"
)

func TestRenderSimpleProcedureCLike(t *testing.T) {
	blocks := []ir.BasicBlock{
		{Start: 0, End: 2, Edges: []ir.Edge{{From: 0, Type: ir.EdgeReturn}}},
	}
	insts := []ir.Instruction{
		{Address: 0, Mnemonic: "BCR", IsBranch: true, IsReturn: true, Confidence: ir.High},
	}
	procs := []ir.Procedure{
		{EntryAddress: 0, Name: "PROC_00000000", Blocks: []uint64{0}, DetectionMethod: "region-start", Linkage: ir.LinkageUnknown, Confidence: ir.Low},
	}

	out := New(CLike, blocks, insts, procs).Render()

	if !strings.Contains(out, "PROCEDURE PROC_00000000()") {
		t.Errorf("out missing procedure header:\n%s", out)
	}
	if !strings.Contains(out, "return") {
		t.Errorf("out missing return statement:\n%s", out)
	}
	if !strings.Contains(out, "}") {
		t.Errorf("out missing c-like closing brace:\n%s", out)
	}
}

func TestRenderEvidenceCommentCitesAddressAndHexBytes(t *testing.T) {
	blocks := []ir.BasicBlock{
		{Start: 0, End: 2, Edges: []ir.Edge{{From: 0, Type: ir.EdgeReturn}}},
	}
	insts := []ir.Instruction{
		{Address: 0, Mnemonic: "BCR", RawBytes: []byte{0x07, 0xFE}, IsBranch: true, IsReturn: true, Confidence: ir.High},
	}
	procs := []ir.Procedure{
		{EntryAddress: 0, Name: "PROC_00000000", Blocks: []uint64{0}},
	}

	out := New(CLike, blocks, insts, procs).Render()

	if !strings.Contains(out, "// @0x00000000: 07FE") {
		t.Errorf("out = %q, want an evidence comment citing address and hex bytes", out)
	}
}

func TestRenderCallUsesCalleeProcedureName(t *testing.T) {
	blocks := []ir.BasicBlock{
		{Start: 0, End: 6, Edges: []ir.Edge{{From: 0, To: 100, Type: ir.EdgeCall}, {From: 0, To: 6, Type: ir.EdgeFallthrough}}},
		{Start: 6, End: 8, Edges: []ir.Edge{{From: 6, Type: ir.EdgeReturn}}},
		{Start: 100, End: 102, Edges: []ir.Edge{{From: 100, Type: ir.EdgeReturn}}},
	}
	insts := []ir.Instruction{
		{Address: 0, Mnemonic: "BRASL", IsCall: true, HasTarget: true, BranchTarget: 100, Confidence: ir.High},
		{Address: 6, Mnemonic: "BCR", IsBranch: true, IsReturn: true, Confidence: ir.High},
		{Address: 100, Mnemonic: "BCR", IsBranch: true, IsReturn: true, Confidence: ir.High},
	}
	procs := []ir.Procedure{
		{EntryAddress: 0, Name: "PROC_00000000", Blocks: []uint64{0, 6}},
		{EntryAddress: 100, Name: "PROC_00000064", Blocks: []uint64{100}},
	}

	out := New(CLike, blocks, insts, procs).Render()

	if !strings.Contains(out, "call PROC_00000064()") {
		t.Errorf("out missing resolved call target:\n%s", out)
	}
}

func TestRenderCallWithUnresolvedTargetUsesLiteral(t *testing.T) {
	blocks := []ir.BasicBlock{
		{Start: 0, End: 2, Edges: []ir.Edge{{From: 0, Type: ir.EdgeUnresolved}, {From: 0, To: 2, Type: ir.EdgeFallthrough}}},
		{Start: 2, End: 4, Edges: []ir.Edge{{From: 2, Type: ir.EdgeReturn}}},
	}
	insts := []ir.Instruction{
		{Address: 0, Mnemonic: "BALR", IsCall: true, Confidence: ir.High},
		{Address: 2, Mnemonic: "BCR", IsBranch: true, IsReturn: true, Confidence: ir.High},
	}
	procs := []ir.Procedure{
		{EntryAddress: 0, Name: "PROC_00000000", Blocks: []uint64{0, 2}},
	}

	out := New(CLike, blocks, insts, procs).Render()

	if !strings.Contains(out, "call UNRESOLVED_TARGET()") {
		t.Errorf("out missing UNRESOLVED_TARGET literal for an indirect call:\n%s", out)
	}
}

func TestRenderIfElseCLike(t *testing.T) {
	blocks := []ir.BasicBlock{
		{Start: 0, End: 4, Edges: []ir.Edge{{From: 0, To: 8, Type: ir.EdgeTaken}, {From: 0, To: 4, Type: ir.EdgeNotTaken}}},
		{Start: 4, End: 8, Edges: []ir.Edge{{From: 4, Type: ir.EdgeReturn}}},
		{Start: 8, End: 10, Edges: []ir.Edge{{From: 8, Type: ir.EdgeReturn}}},
	}
	insts := []ir.Instruction{
		{
			Address: 0, Mnemonic: "BC", IsBranch: true, HasTarget: true, BranchTarget: 8, Confidence: ir.High,
			Operands: []ir.Operand{{Kind: ir.OperandRegister, Reg: 8}},
		},
		{Address: 4, Mnemonic: "BCR", IsBranch: true, IsReturn: true, Confidence: ir.High},
		{Address: 8, Mnemonic: "BCR", IsBranch: true, IsReturn: true, Confidence: ir.High},
	}
	procs := []ir.Procedure{
		{EntryAddress: 0, Name: "PROC_00000000", Blocks: []uint64{0, 4, 8}},
	}

	out := New(CLike, blocks, insts, procs).Render()
	if !strings.Contains(out, "if (equal) {") {
		t.Errorf("out missing if with decoded condition mask:\n%s", out)
	}
	if !strings.Contains(out, "} else {") {
		t.Errorf("out missing c-like else branch:\n%s", out)
	}

	pyOut := New(PythonLike, blocks, insts, procs).Render()
	if !strings.Contains(pyOut, "if equal:") || !strings.Contains(pyOut, "else:") {
		t.Errorf("python-like out missing if equal:/else::\n%s", pyOut)
	}
}

func TestRenderGotoUnresolvedTarget(t *testing.T) {
	blocks := []ir.BasicBlock{
		{Start: 0, End: 2, Edges: []ir.Edge{{From: 0, Type: ir.EdgeUnresolved}}},
	}
	insts := []ir.Instruction{
		{Address: 0, Mnemonic: "BCR", IsBranch: true, Confidence: ir.High,
			Operands: []ir.Operand{{Kind: ir.OperandRegister, Reg: 15}, {Kind: ir.OperandRegister, Reg: 4}}},
	}
	procs := []ir.Procedure{{EntryAddress: 0, Name: "PROC_00000000", Blocks: []uint64{0}}}

	out := New(CLike, blocks, insts, procs).Render()
	if !strings.Contains(out, "goto UNRESOLVED_TARGET") {
		t.Errorf("out missing goto UNRESOLVED_TARGET for an unconditional branch with no resolvable edge:\n%s", out)
	}
}

func TestRenderGotoFallbackOnConvergentRevisit(t *testing.T) {
	// Block 0 branches to both 4 and 8 (conditional); block 4 and block 8
	// both fall through to block 12 — a converging shape, not a loop
	// back-edge, that the structural walk can't recover as IF/ELSE.
	blocks := []ir.BasicBlock{
		{Start: 0, End: 4, Edges: []ir.Edge{{From: 0, To: 12, Type: ir.EdgeTaken}, {From: 0, To: 4, Type: ir.EdgeNotTaken}}},
		{Start: 4, End: 8, Edges: []ir.Edge{{From: 4, To: 12, Type: ir.EdgeUnconditional}}},
		{Start: 8, End: 12, Edges: []ir.Edge{{From: 8, Type: ir.EdgeReturn}}},
		{Start: 12, End: 14, Edges: []ir.Edge{{From: 12, Type: ir.EdgeReturn}}},
	}
	insts := []ir.Instruction{
		{
			Address: 0, Mnemonic: "BC", IsBranch: true, HasTarget: true, BranchTarget: 12, Confidence: ir.High,
			Operands: []ir.Operand{{Kind: ir.OperandRegister, Reg: 8}},
		},
		{Address: 4, Mnemonic: "B", IsBranch: true, HasTarget: true, BranchTarget: 12, Confidence: ir.High},
		{Address: 12, Mnemonic: "BCR", IsBranch: true, IsReturn: true, Confidence: ir.High},
	}
	procs := []ir.Procedure{{EntryAddress: 0, Name: "PROC_00000000", Blocks: []uint64{0, 4, 8, 12}}}

	out := New(CLike, blocks, insts, procs).Render()
	if !strings.Contains(out, "goto L_0000000C  // unrecovered: block reached a second time via a different path") {
		t.Errorf("out missing labeled goto fallback with reason for the convergent revisit of block 12:\n%s", out)
	}
}

func TestRenderWhileLoopConditionAtHeader(t *testing.T) {
	// Block 0 tests the loop condition and branches into the body (4) or
	// out to the exit (8); block 4 jumps back to 0 unconditionally.
	blocks := []ir.BasicBlock{
		{Start: 0, End: 4, Edges: []ir.Edge{{From: 0, To: 4, Type: ir.EdgeTaken}, {From: 0, To: 8, Type: ir.EdgeNotTaken}}},
		{Start: 4, End: 8, Edges: []ir.Edge{{From: 4, To: 0, Type: ir.EdgeUnconditional}}},
		{Start: 8, End: 10, Edges: []ir.Edge{{From: 8, Type: ir.EdgeReturn}}},
	}
	insts := []ir.Instruction{
		{
			Address: 0, Mnemonic: "BC", IsBranch: true, HasTarget: true, BranchTarget: 4, Confidence: ir.High,
			Operands: []ir.Operand{{Kind: ir.OperandRegister, Reg: 8}},
		},
		{Address: 4, Mnemonic: "B", IsBranch: true, HasTarget: true, BranchTarget: 0, Confidence: ir.High},
		{Address: 8, Mnemonic: "BCR", IsBranch: true, IsReturn: true, Confidence: ir.High},
	}
	procs := []ir.Procedure{{EntryAddress: 0, Name: "PROC_00000000", Blocks: []uint64{0, 4, 8}}}

	out := New(CLike, blocks, insts, procs).Render()
	if !strings.Contains(out, "while (equal) {") {
		t.Errorf("out missing while(cond) form for a header-conditional loop:\n%s", out)
	}
	if !strings.Contains(out, "continue  // loop_start") {
		t.Errorf("out missing continue for the loop's back edge:\n%s", out)
	}
}

func TestRenderDoWhileLoopConditionAtTail(t *testing.T) {
	// Block 0 is plain sequential code that falls into the body (4);
	// block 4 tests the loop condition, looping back to 0 or exiting to 8.
	blocks := []ir.BasicBlock{
		{Start: 0, End: 4, Edges: []ir.Edge{{From: 0, To: 4, Type: ir.EdgeFallthrough}}},
		{Start: 4, End: 8, Edges: []ir.Edge{{From: 4, To: 0, Type: ir.EdgeTaken}, {From: 4, To: 8, Type: ir.EdgeNotTaken}}},
		{Start: 8, End: 10, Edges: []ir.Edge{{From: 8, Type: ir.EdgeReturn}}},
	}
	insts := []ir.Instruction{
		{
			Address: 4, Mnemonic: "BC", IsBranch: true, HasTarget: true, BranchTarget: 0, Confidence: ir.High,
			Operands: []ir.Operand{{Kind: ir.OperandRegister, Reg: 8}},
		},
		{Address: 8, Mnemonic: "BCR", IsBranch: true, IsReturn: true, Confidence: ir.High},
	}
	procs := []ir.Procedure{{EntryAddress: 0, Name: "PROC_00000000", Blocks: []uint64{0, 4, 8}}}

	out := New(CLike, blocks, insts, procs).Render()
	if !strings.Contains(out, "do {") {
		t.Errorf("out missing do{ opener for a tail-conditional loop:\n%s", out)
	}
	if !strings.Contains(out, "} while (equal);") {
		t.Errorf("out missing while(cond); closer for a tail-conditional loop:\n%s", out)
	}
}
