package procinfer

import (
	"testing"

	"github.com/acrajesh/reverse-asm/internal/ir"
)

func TestInferRegionStartFallback(t *testing.T) {
	input := Input{
		RegionStart: 0,
		Insts:       []ir.Instruction{{Address: 0, Mnemonic: "LR"}},
		Blocks:      []ir.BasicBlock{{Start: 0, End: 2, Edges: []ir.Edge{{From: 0, To: 2, Type: ir.EdgeFallthrough}}}},
	}
	out := Infer([]Input{input})

	if len(out.Procedures) != 1 {
		t.Fatalf("got %d procedures, want 1: %+v", len(out.Procedures), out.Procedures)
	}
	p := out.Procedures[0]
	if p.Name != "PROC_00000000" {
		t.Errorf("Name = %q, want PROC_00000000", p.Name)
	}
	if p.DetectionMethod != "region-start" {
		t.Errorf("DetectionMethod = %q, want region-start", p.DetectionMethod)
	}
	if p.Confidence != ir.Low {
		t.Errorf("Confidence = %v, want Low", p.Confidence)
	}
}

func TestInferDeclaredEntryTakesPriorityOverRegionStart(t *testing.T) {
	input := Input{
		RegionStart: 0,
		Insts:       []ir.Instruction{{Address: 0, Mnemonic: "LR"}},
		Blocks:      []ir.BasicBlock{{Start: 0, End: 2}},
		EntryHints:  []uint64{0},
	}
	out := Infer([]Input{input})

	if len(out.Procedures) != 1 {
		t.Fatalf("got %d procedures, want 1", len(out.Procedures))
	}
	p := out.Procedures[0]
	if p.DetectionMethod != "declared" || p.Confidence != ir.High {
		t.Errorf("got method=%q confidence=%v, want declared/High", p.DetectionMethod, p.Confidence)
	}
}

func TestInferProloguePattern(t *testing.T) {
	input := Input{
		RegionStart: 0x40,
		Insts: []ir.Instruction{
			{
				Address:  0x40,
				Mnemonic: "STM",
				Operands: []ir.Operand{
					{Kind: ir.OperandRegister, Reg: 14},
					{Kind: ir.OperandRegister, Reg: 12},
					{Kind: ir.OperandBaseDisp, Base: 13, Disp: 12},
				},
			},
		},
		Blocks: []ir.BasicBlock{{Start: 0x40, End: 0x44}},
	}
	out := Infer([]Input{input})

	if len(out.Procedures) != 1 {
		t.Fatalf("got %d procedures, want 1", len(out.Procedures))
	}
	p := out.Procedures[0]
	if p.DetectionMethod != "prologue-pattern" || p.Confidence != ir.Medium {
		t.Errorf("got method=%q confidence=%v, want prologue-pattern/Medium", p.DetectionMethod, p.Confidence)
	}
	if p.Name != "PROC_00000040" {
		t.Errorf("Name = %q, want PROC_00000040", p.Name)
	}
}

func TestInferPrologueRequiresExactSaveAreaDisplacement(t *testing.T) {
	input := Input{
		RegionStart: 0,
		Insts: []ir.Instruction{
			{Address: 0, Mnemonic: "LR"},
			{
				Address:  0x40,
				Mnemonic: "STM",
				Operands: []ir.Operand{
					{Kind: ir.OperandRegister, Reg: 14},
					{Kind: ir.OperandRegister, Reg: 12},
					{Kind: ir.OperandBaseDisp, Base: 15, Disp: 0},
				},
			},
		},
		Blocks: []ir.BasicBlock{{Start: 0, End: 0x40}, {Start: 0x40, End: 0x44}},
	}
	out := Infer([]Input{input})

	if len(out.Procedures) != 1 {
		t.Fatalf("got %d procedures, want 1 (only the region-start fallback): %+v", len(out.Procedures), out.Procedures)
	}
	p := out.Procedures[0]
	if p.Name != "PROC_00000000" || p.DetectionMethod != "region-start" {
		t.Errorf("got %+v, want a single region-start procedure at 0 — STM R14,R12,0(R15) is not the save-area idiom", p)
	}
}

func TestInferCallTargetCreatesCalleeProcedureAndGraphEdge(t *testing.T) {
	caller := Input{
		RegionStart: 0,
		Insts: []ir.Instruction{
			{Address: 0, Mnemonic: "BRASL", IsCall: true, HasTarget: true, BranchTarget: 100},
		},
		Blocks:     []ir.BasicBlock{{Start: 0, End: 6, Edges: []ir.Edge{{From: 0, To: 6, Type: ir.EdgeFallthrough}}}},
		EntryHints: []uint64{0},
	}
	callee := Input{
		RegionStart: 100,
		Insts: []ir.Instruction{
			{
				Address:  100,
				Mnemonic: "BCR",
				IsBranch: true,
				IsReturn: true,
				Operands: []ir.Operand{{Kind: ir.OperandRegister, Reg: 15}, {Kind: ir.OperandRegister, Reg: 14}},
			},
		},
		Blocks: []ir.BasicBlock{{Start: 100, End: 102, Edges: []ir.Edge{{From: 100, Type: ir.EdgeReturn}}}},
	}

	out := Infer([]Input{caller, callee})

	if len(out.Procedures) != 2 {
		t.Fatalf("got %d procedures, want 2: %+v", len(out.Procedures), out.Procedures)
	}
	procA, procB := out.Procedures[0], out.Procedures[1]
	if procA.EntryAddress != 0 || procB.EntryAddress != 100 {
		t.Fatalf("procedures not in ascending address order: %+v", out.Procedures)
	}
	if procB.DetectionMethod != "call-target" {
		t.Errorf("callee DetectionMethod = %q, want call-target", procB.DetectionMethod)
	}
	if procB.Name != "PROC_00000064" {
		t.Errorf("callee Name = %q, want PROC_00000064", procB.Name)
	}

	if len(out.CallEdges) != 1 {
		t.Fatalf("got %d call edges, want 1: %+v", len(out.CallEdges), out.CallEdges)
	}
	edge := out.CallEdges[0]
	if edge.CallSite != 0 || edge.Caller != 0 || edge.Callee != 100 || edge.Confidence != ir.High {
		t.Errorf("call edge = %+v, want {CallSite:0 Caller:0 Callee:100 Confidence:High}", edge)
	}

	if len(out.Graph.Nodes) != 2 {
		t.Errorf("graph nodes = %v, want 2", out.Graph.Nodes)
	}
	if len(out.Graph.Edges) != 1 || out.Graph.Edges[0].Caller != procA.Name || out.Graph.Edges[0].Callee != procB.Name {
		t.Errorf("graph edges = %+v, want single %s -> %s", out.Graph.Edges, procA.Name, procB.Name)
	}

	if procA.Linkage != ir.LinkageUnknown {
		t.Errorf("caller linkage = %v, want Unknown (entry is a call, not STM)", procA.Linkage)
	}
	if procB.Linkage != ir.LinkageUnknown {
		t.Errorf("callee linkage = %v, want Unknown (return exit only, no STM entry)", procB.Linkage)
	}
}

func TestInferStandardLinkage(t *testing.T) {
	input := Input{
		RegionStart: 0,
		Insts: []ir.Instruction{
			{
				Address:  0,
				Mnemonic: "STM",
				Operands: []ir.Operand{
					{Kind: ir.OperandRegister, Reg: 14},
					{Kind: ir.OperandRegister, Reg: 12},
					{Kind: ir.OperandBaseDisp, Base: 13, Disp: 12},
				},
			},
			{
				Address:  4,
				Mnemonic: "BCR",
				IsBranch: true,
				IsReturn: true,
				Operands: []ir.Operand{{Kind: ir.OperandRegister, Reg: 15}, {Kind: ir.OperandRegister, Reg: 14}},
			},
		},
		Blocks: []ir.BasicBlock{
			{Start: 0, End: 4, Edges: []ir.Edge{{From: 0, To: 4, Type: ir.EdgeFallthrough}}},
			{Start: 4, End: 6, Edges: []ir.Edge{{From: 4, Type: ir.EdgeReturn}}},
		},
	}
	out := Infer([]Input{input})

	if len(out.Procedures) != 1 {
		t.Fatalf("got %d procedures, want 1: %+v", len(out.Procedures), out.Procedures)
	}
	if out.Procedures[0].Linkage != ir.LinkageStandard {
		t.Errorf("linkage = %v, want Standard", out.Procedures[0].Linkage)
	}
}
