package cfgbuild

import (
	"testing"

	"github.com/acrajesh/reverse-asm/internal/ir"
)

func rr(addr uint64, mnemonic string) ir.Instruction {
	return ir.Instruction{Address: addr, Mnemonic: mnemonic, RawBytes: []byte{0x00, 0x00}}
}

func TestBuildEmptyInput(t *testing.T) {
	if got := Build(nil, 0); len(got.Blocks) != 0 || len(got.Unresolved) != 0 {
		t.Fatalf("Build(nil, 0) = %+v, want empty result", got)
	}
}

func TestBuildStraightLineSingleBlock(t *testing.T) {
	insts := []ir.Instruction{rr(0, "LR"), rr(2, "LR"), rr(4, "LR")}
	result := Build(insts, 6)
	if len(result.Blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(result.Blocks))
	}
	if result.Blocks[0].Start != 0 || result.Blocks[0].End != 6 {
		t.Errorf("block = [%d,%d), want [0,6)", result.Blocks[0].Start, result.Blocks[0].End)
	}
	if len(result.Blocks[0].Edges) != 1 || result.Blocks[0].Edges[0].Type != ir.EdgeFallthrough {
		t.Errorf("edges = %+v, want single FALLTHROUGH edge", result.Blocks[0].Edges)
	}
}

func TestBuildConditionalBranchThreeBlocks(t *testing.T) {
	insts := []ir.Instruction{
		rr(0, "LR"),
		{
			Address:      2,
			Mnemonic:     "BC",
			RawBytes:     []byte{0x47, 0x80, 0x00, 0x08},
			IsBranch:     true,
			HasTarget:    true,
			BranchTarget: 8,
			Operands:     []ir.Operand{{Kind: ir.OperandRegister, Reg: 8}},
		},
		rr(4, "LR"),
		rr(6, "LR"),
		{
			Address:  8,
			Mnemonic: "BCR",
			RawBytes: []byte{0x07, 0xFE},
			IsBranch: true,
			IsReturn: true,
			Operands: []ir.Operand{{Kind: ir.OperandRegister, Reg: 15}, {Kind: ir.OperandRegister, Reg: 14}},
		},
	}
	result := Build(insts, 10)

	if len(result.Blocks) != 3 {
		t.Fatalf("got %d blocks, want 3: %+v", len(result.Blocks), result.Blocks)
	}
	if result.Blocks[0].Start != 0 || result.Blocks[0].End != 4 {
		t.Errorf("block0 = [%d,%d), want [0,4)", result.Blocks[0].Start, result.Blocks[0].End)
	}
	edges := result.Blocks[0].Edges
	if len(edges) != 2 {
		t.Fatalf("block0 edges = %+v, want 2 (TAKEN, NOT_TAKEN)", edges)
	}
	if edges[0].Type != ir.EdgeTaken || edges[0].To != 8 {
		t.Errorf("first edge = %+v, want TAKEN -> 8", edges[0])
	}
	if edges[1].Type != ir.EdgeNotTaken || edges[1].To != 4 {
		t.Errorf("second edge = %+v, want NOT_TAKEN -> 4", edges[1])
	}

	if result.Blocks[1].Start != 4 || result.Blocks[1].End != 8 {
		t.Errorf("block1 = [%d,%d), want [4,8)", result.Blocks[1].Start, result.Blocks[1].End)
	}
	if len(result.Blocks[1].Edges) != 1 || result.Blocks[1].Edges[0].Type != ir.EdgeFallthrough || result.Blocks[1].Edges[0].To != 8 {
		t.Errorf("block1 edges = %+v, want single FALLTHROUGH -> 8", result.Blocks[1].Edges)
	}

	if result.Blocks[2].Start != 8 || result.Blocks[2].End != 10 {
		t.Errorf("block2 = [%d,%d), want [8,10)", result.Blocks[2].Start, result.Blocks[2].End)
	}
	if len(result.Blocks[2].Edges) != 1 || result.Blocks[2].Edges[0].Type != ir.EdgeReturn {
		t.Errorf("block2 edges = %+v, want single RETURN", result.Blocks[2].Edges)
	}

	if len(result.Unresolved) != 0 {
		t.Errorf("unresolved = %v, want none", result.Unresolved)
	}
}

func TestBuildUnconditionalBranchOutOfRegionProducesExternalBlock(t *testing.T) {
	insts := []ir.Instruction{
		{
			Address:      0,
			Mnemonic:     "BC",
			RawBytes:     []byte{0x47, 0xF0, 0x03, 0xE8},
			IsBranch:     true,
			HasTarget:    true,
			BranchTarget: 1000,
			Operands:     []ir.Operand{{Kind: ir.OperandRegister, Reg: 15}},
		},
	}
	result := Build(insts, 2)

	if len(result.Blocks) != 2 {
		t.Fatalf("got %d blocks, want 2 (in-region + external): %+v", len(result.Blocks), result.Blocks)
	}
	if result.Blocks[0].Start != 0 {
		t.Errorf("first block start = %d, want 0", result.Blocks[0].Start)
	}
	edges := result.Blocks[0].Edges
	if len(edges) != 1 || edges[0].Type != ir.EdgeUnconditional || edges[0].To != 1000 {
		t.Errorf("edges = %+v, want single UNCONDITIONAL -> 1000", edges)
	}
	if result.Blocks[1].Start != 1000 || !result.Blocks[1].IsExternal {
		t.Errorf("second block = %+v, want external ref at 1000", result.Blocks[1])
	}
}

func TestBuildUnresolvedCallRecordsUnresolvedAndStillFallsThrough(t *testing.T) {
	insts := []ir.Instruction{
		{
			Address:  0,
			Mnemonic: "BALR",
			RawBytes: []byte{0x05, 0xEF},
			IsCall:   true,
			Operands: []ir.Operand{{Kind: ir.OperandRegister, Reg: 14}, {Kind: ir.OperandRegister, Reg: 15}},
		},
	}
	result := Build(insts, 2)

	if len(result.Unresolved) != 1 || result.Unresolved[0] != 0 {
		t.Fatalf("unresolved = %v, want [0]", result.Unresolved)
	}
	if len(result.Blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(result.Blocks))
	}
	edges := result.Blocks[0].Edges
	if len(edges) != 2 || edges[0].Type != ir.EdgeUnresolved || edges[1].Type != ir.EdgeFallthrough {
		t.Errorf("edges = %+v, want [UNRESOLVED, FALLTHROUGH]", edges)
	}
}
