// Package cfgbuild builds a control flow graph from a stream of decoded
// instructions within a single CODE region. A three-pass sweep —
// leader identification, block partitioning, successor-edge
// construction — keys everything off instruction address rather than
// index arithmetic, since z/Architecture instructions are variable
// 2/4/6-byte lengths.
package cfgbuild

import (
	"sort"

	"github.com/acrajesh/reverse-asm/internal/ir"
)

// Result is a region's control flow graph: its basic blocks (each
// carrying its own outgoing edges) and the addresses of branch and call
// instructions whose target is not statically known.
type Result struct {
	Blocks     []ir.BasicBlock
	Unresolved []uint64
}

// Build constructs the CFG for one contiguous run of instructions. regionEnd
// is the exclusive end address of the CODE region the instructions belong
// to; branch targets outside [insts[0].Address, regionEnd) are treated as
// cross-region and produce a synthetic external-ref block rather than an
// in-region edge.
func Build(insts []ir.Instruction, regionEnd uint64) Result {
	if len(insts) == 0 {
		return Result{}
	}

	addrToIdx := make(map[uint64]int, len(insts))
	for i, in := range insts {
		addrToIdx[in.Address] = i
	}

	leaders := map[uint64]bool{insts[0].Address: true}
	for i, in := range insts {
		if in.IsBranch {
			if in.HasTarget {
				if _, ok := addrToIdx[in.BranchTarget]; ok {
					leaders[in.BranchTarget] = true
				}
			}
			if !isUnconditional(in) && i+1 < len(insts) {
				leaders[insts[i+1].Address] = true
			}
		} else if in.IsCall {
			if i+1 < len(insts) {
				leaders[insts[i+1].Address] = true
			}
		} else if in.IsReturn {
			if i+1 < len(insts) {
				leaders[insts[i+1].Address] = true
			}
		}
	}

	sorted := make([]uint64, 0, len(leaders))
	for l := range leaders {
		sorted = append(sorted, l)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	blockEnd := make(map[uint64]uint64, len(sorted))
	lastAddr := insts[len(insts)-1].Address
	lastSize := uint64(insts[len(insts)-1].Size())
	for i, start := range sorted {
		if i+1 < len(sorted) {
			blockEnd[start] = sorted[i+1]
		} else {
			blockEnd[start] = lastAddr + lastSize
		}
	}

	var result Result
	external := map[uint64]bool{}

	for _, start := range sorted {
		end := blockEnd[start]
		startIdx, ok := addrToIdx[start]
		if !ok {
			continue
		}
		endIdx := len(insts)
		if nextAddr, ok := firstAddrAtOrAfter(insts, end); ok {
			endIdx = nextAddr
		}
		if endIdx <= startIdx {
			continue
		}
		last := insts[endIdx-1]

		block := ir.BasicBlock{Start: start, End: end}
		block.Edges = edgesFor(last, start, end, leaders, regionEnd, &result.Unresolved, external)
		result.Blocks = append(result.Blocks, block)
	}

	for extAddr := range external {
		result.Blocks = append(result.Blocks, ir.BasicBlock{
			Start:      extAddr,
			End:        extAddr,
			IsExternal: true,
		})
	}
	sort.Slice(result.Blocks, func(i, j int) bool { return result.Blocks[i].Start < result.Blocks[j].Start })
	sort.Slice(result.Unresolved, func(i, j int) bool { return result.Unresolved[i] < result.Unresolved[j] })

	return result
}

func firstAddrAtOrAfter(insts []ir.Instruction, addr uint64) (int, bool) {
	for i, in := range insts {
		if in.Address >= addr {
			return i, true
		}
	}
	return 0, false
}

func isUnconditional(in ir.Instruction) bool {
	switch in.Mnemonic {
	case "B", "BR":
		return true
	case "BC", "BCR", "BRC", "BRCL":
		return len(in.Operands) > 0 && in.Operands[0].Kind == ir.OperandRegister && in.Operands[0].Reg == 15
	}
	return false
}

// edgesFor computes the outgoing edges for a block whose last
// instruction is last, in the fixed emission order: TAKEN, NOT_TAKEN,
// FALLTHROUGH, UNCONDITIONAL, CALL, UNRESOLVED, RETURN.
func edgesFor(last ir.Instruction, blockStart, blockEnd uint64, leaders map[uint64]bool, regionEnd uint64, unresolved *[]uint64, external map[uint64]bool) []ir.Edge {
	var edges []ir.Edge

	switch {
	case last.IsReturn:
		edges = append(edges, ir.Edge{From: blockStart, Type: ir.EdgeReturn})

	case last.IsBranch && !last.IsCall && !isUnconditional(last):
		if last.HasTarget {
			if last.BranchTarget < regionEnd && leaders[last.BranchTarget] {
				edges = append(edges, ir.Edge{From: blockStart, To: last.BranchTarget, Type: ir.EdgeTaken})
			} else {
				external[last.BranchTarget] = true
				edges = append(edges, ir.Edge{From: blockStart, To: last.BranchTarget, Type: ir.EdgeTaken})
			}
		} else {
			*unresolved = append(*unresolved, last.Address)
			edges = append(edges, ir.Edge{From: blockStart, Type: ir.EdgeUnresolved})
		}
		edges = append(edges, ir.Edge{From: blockStart, To: blockEnd, Type: ir.EdgeNotTaken})

	case last.IsBranch && !last.IsCall && isUnconditional(last):
		if last.HasTarget {
			if last.BranchTarget >= regionEnd || !leaders[last.BranchTarget] {
				external[last.BranchTarget] = true
			}
			edges = append(edges, ir.Edge{From: blockStart, To: last.BranchTarget, Type: ir.EdgeUnconditional})
		} else {
			*unresolved = append(*unresolved, last.Address)
			edges = append(edges, ir.Edge{From: blockStart, Type: ir.EdgeUnresolved})
		}

	case last.IsCall:
		if last.HasTarget {
			if last.BranchTarget >= regionEnd {
				external[last.BranchTarget] = true
			}
			edges = append(edges, ir.Edge{From: blockStart, To: last.BranchTarget, Type: ir.EdgeCall})
		} else {
			*unresolved = append(*unresolved, last.Address)
			edges = append(edges, ir.Edge{From: blockStart, Type: ir.EdgeUnresolved})
		}
		edges = append(edges, ir.Edge{From: blockStart, To: blockEnd, Type: ir.EdgeFallthrough})

	default:
		edges = append(edges, ir.Edge{From: blockStart, To: blockEnd, Type: ir.EdgeFallthrough})
	}

	return edges
}
