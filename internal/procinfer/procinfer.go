// Package procinfer infers procedure boundaries and linkage over a
// region's control flow graph, then builds the call graph between
// inferred procedures. Detection combines three ordered sources —
// declared entries, call targets, prologue patterns — plus a fourth,
// lowest-confidence fallback (region start), and represents the call
// graph with a lattice.Graph.
package procinfer

import (
	"fmt"
	"sort"

	"github.com/zboralski/lattice"

	"github.com/acrajesh/reverse-asm/internal/ir"
)

// CallEdge carries call-site metadata the lattice.Graph itself has no
// room for: the graph is for traversal, this slice is for evidence.
type CallEdge struct {
	CallSite   uint64
	Caller     uint64
	Callee     uint64
	Confidence ir.Confidence
}

// Input is the per-region material the inferencer needs: its decoded
// instructions, CFG blocks, and the address of the region they belong
// to (for region-start-fallback detection).
type Input struct {
	RegionStart uint64
	Insts       []ir.Instruction
	Blocks      []ir.BasicBlock
	EntryHints  []uint64 // declared entry points, e.g. from ir.Artifact.EntryPoint
}

// Output is the inferencer's result for one region: the procedures it
// found, the resolved/unresolved call edges between them, and a
// lattice.Graph built from the resolved edges for traversal or DOT
// rendering.
type Output struct {
	Procedures []ir.Procedure
	CallEdges  []CallEdge
	Graph      *lattice.Graph
}

// Infer detects procedures and their call relationships across all
// regions passed in. Each Input is processed independently; call edges
// that cross region boundaries are still recorded (by address, not by
// block), so the returned graph reflects the whole artifact.
func Infer(inputs []Input) Output {
	instByAddr := map[uint64]ir.Instruction{}
	blockByStart := map[uint64]ir.BasicBlock{}
	var allBlocks []ir.BasicBlock
	for _, in := range inputs {
		for _, i := range in.Insts {
			instByAddr[i.Address] = i
		}
		for _, b := range in.Blocks {
			blockByStart[b.Start] = b
			allBlocks = append(allBlocks, b)
		}
	}

	entrySet := map[uint64]bool{}
	for _, in := range inputs {
		for _, e := range in.EntryHints {
			entrySet[e] = true
		}
	}

	procByEntry := map[uint64]*ir.Procedure{}
	var order []uint64

	addProc := func(entry uint64, method string, conf ir.Confidence) *ir.Procedure {
		if p, ok := procByEntry[entry]; ok {
			return p
		}
		if _, ok := blockByStart[entry]; !ok {
			return nil
		}
		p := &ir.Procedure{
			EntryAddress:    entry,
			Name:            procName(entry),
			DetectionMethod: method,
			Confidence:      conf,
		}
		procByEntry[entry] = p
		order = append(order, entry)
		return p
	}

	// Method 1: declared entry points (highest confidence).
	for e := range entrySet {
		addProc(e, "declared", ir.High)
	}

	// Method 2: call targets.
	for _, in := range inputs {
		for _, i := range in.Insts {
			if i.IsCall && i.HasTarget {
				addProc(i.BranchTarget, "call-target", ir.High)
			}
		}
	}

	// Method 3: prologue-pattern detection (the STM R14,R12,12(R13)
	// save-area idiom), a linear scan over the region's instructions.
	for _, in := range inputs {
		detectPrologues(in.Insts, func(entry uint64) {
			addProc(entry, "prologue-pattern", ir.Medium)
		})
	}

	// Method 4: region-start fallback, lowest confidence — only when
	// nothing else claimed the region's first instruction.
	for _, in := range inputs {
		if len(in.Insts) == 0 {
			continue
		}
		first := in.Insts[0].Address
		if _, ok := procByEntry[first]; !ok {
			addProc(first, "region-start", ir.Low)
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	// Forward-reachability walk: first procedure to reach a block owns
	// it, processed in ascending entry-address order, so a lower-address
	// entry claims contested blocks before a higher-address one.
	owned := map[uint64]uint64{} // block start -> owning procedure entry
	for _, entry := range order {
		p := procByEntry[entry]
		walkReachable(entry, blockByStart, owned, func(blockStart uint64) {
			p.Blocks = append(p.Blocks, blockStart)
			if b := blockByStart[blockStart]; !b.IsExternal {
				for _, e := range b.Edges {
					if e.Type == ir.EdgeReturn {
						p.ExitAddresses = append(p.ExitAddresses, blockStart)
					}
				}
			}
		})
	}

	for _, entry := range order {
		p := procByEntry[entry]
		sort.Slice(p.Blocks, func(i, j int) bool { return p.Blocks[i] < p.Blocks[j] })
		p.Linkage = classifyLinkage(instByAddr, p)
	}

	var procedures []ir.Procedure
	for _, entry := range order {
		procedures = append(procedures, *procByEntry[entry])
	}
	sort.Slice(procedures, func(i, j int) bool { return procedures[i].EntryAddress < procedures[j].EntryAddress })

	edges, graph := buildCallGraph(procedures, blockByStart, instByAddr)

	return Output{Procedures: procedures, CallEdges: edges, Graph: graph}
}

// procName builds a procedure's synthetic identifier. Every procedure
// is named PROC_<hex> regardless of detection method; DetectionMethod
// carries the "declared"/"call-target"/"prologue-pattern"/"region-start"
// provenance separately.
func procName(entry uint64) string {
	return fmt.Sprintf("PROC_%08X", entry)
}

// walkReachable performs an iterative forward reachability walk from
// start, visiting only blocks not already owned by another procedure,
// and never crossing a CALL edge (callees are separate procedures).
func walkReachable(start uint64, blockByStart map[uint64]ir.BasicBlock, owned map[uint64]uint64, visit func(uint64)) {
	stack := []uint64{start}
	seen := map[uint64]bool{}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		if _, already := owned[cur]; already {
			continue
		}
		b, ok := blockByStart[cur]
		if !ok {
			continue
		}
		seen[cur] = true
		owned[cur] = start
		visit(cur)
		for _, e := range b.Edges {
			if e.Type == ir.EdgeCall || e.Type == ir.EdgeReturn || e.Type == ir.EdgeUnresolved {
				continue
			}
			if e.To != 0 {
				stack = append(stack, e.To)
			}
		}
	}
}

// detectPrologues scans instructions in address order for the exact
// STM R14,R12,12(R13) save-registers idiom and reports each match's
// address. What follows the STM is not inspected.
func detectPrologues(insts []ir.Instruction, found func(entry uint64)) {
	for _, in := range insts {
		if in.Mnemonic != "STM" || len(in.Operands) < 3 {
			continue
		}
		if in.Operands[0].Kind != ir.OperandRegister || in.Operands[0].Reg != 14 {
			continue
		}
		if in.Operands[1].Kind != ir.OperandRegister || in.Operands[1].Reg != 12 {
			continue
		}
		if in.Operands[2].Kind != ir.OperandBaseDisp || in.Operands[2].Base != 13 || in.Operands[2].Disp != 12 {
			continue
		}
		found(in.Address)
	}
}

// classifyLinkage inspects a procedure's entry instruction, the
// instruction after it, and its exit blocks to decide whether it
// follows the standard STM/BCR save-area convention, the LE-conformant
// variant of it that establishes R12 as its base register, or cannot be
// classified.
func classifyLinkage(instByAddr map[uint64]ir.Instruction, p *ir.Procedure) ir.LinkageKind {
	entry, hasEntry := instByAddr[p.EntryAddress]
	if !hasEntry {
		return ir.LinkageUnknown
	}
	standardEntry := entry.Mnemonic == "STM" && len(entry.Operands) >= 2 &&
		entry.Operands[0].Kind == ir.OperandRegister && entry.Operands[0].Reg == 14 &&
		entry.Operands[1].Kind == ir.OperandRegister && entry.Operands[1].Reg == 12

	// Every exit block ends in a return instruction: cfgbuild gives a
	// RETURN edge only to blocks whose last instruction IsReturn.
	standardExit := len(p.ExitAddresses) > 0

	next, hasNext := instByAddr[p.EntryAddress+uint64(entry.Size())]
	base12 := hasNext && len(next.Operands) >= 2 && next.Operands[0].Reg == 12 &&
		(((next.Mnemonic == "BALR" || next.Mnemonic == "BASR") && next.Operands[1].Reg == 0) ||
			(next.Mnemonic == "LR" && next.Operands[1].Reg == 15))

	switch {
	case standardEntry && standardExit && base12:
		return ir.LinkageLEConformant
	case standardEntry && standardExit:
		return ir.LinkageStandard
	default:
		return ir.LinkageUnknown
	}
}

// buildCallGraph folds resolved call edges into a lattice.Graph, one
// node per procedure, deduplicating edges at the end, while also
// returning the full
// CallEdge slice — including unresolved edges the graph itself cannot
// represent — for evidence reporting. A block's call instruction is
// always its last instruction (cfgbuild ends blocks there), so the call
// site is found by scanning each owned block's instructions for the
// last one marked IsCall.
func buildCallGraph(procedures []ir.Procedure, blockByStart map[uint64]ir.BasicBlock, instByAddr map[uint64]ir.Instruction) ([]CallEdge, *lattice.Graph) {
	procNameByEntry := map[uint64]string{}
	for _, p := range procedures {
		procNameByEntry[p.EntryAddress] = p.Name
	}

	var addrs []uint64
	for a := range instByAddr {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	var edges []CallEdge
	g := &lattice.Graph{}
	for _, p := range procedures {
		g.Nodes = append(g.Nodes, p.Name)
		for _, blockStart := range p.Blocks {
			b, ok := blockByStart[blockStart]
			if !ok || b.IsExternal {
				continue
			}
			callAddr, in, found := lastCallIn(b, addrs, instByAddr)
			if !found {
				continue
			}
			conf := ir.Low
			calleeName := ""
			if in.HasTarget {
				if name, ok := procNameByEntry[in.BranchTarget]; ok {
					calleeName = name
					conf = ir.High
				}
			}
			edges = append(edges, CallEdge{
				CallSite:   callAddr,
				Caller:     p.EntryAddress,
				Callee:     in.BranchTarget,
				Confidence: conf,
			})
			if calleeName != "" {
				g.Edges = append(g.Edges, lattice.Edge{Caller: p.Name, Callee: calleeName})
			}
		}
	}

	sort.Slice(edges, func(i, j int) bool { return edges[i].CallSite < edges[j].CallSite })
	g.Dedup()
	return edges, g
}

// lastCallIn returns the last IsCall instruction within [b.Start, b.End),
// using the globally sorted instruction address list to walk the range.
func lastCallIn(b ir.BasicBlock, addrs []uint64, instByAddr map[uint64]ir.Instruction) (uint64, ir.Instruction, bool) {
	lo := sort.Search(len(addrs), func(i int) bool { return addrs[i] >= b.Start })
	for i := lo; i < len(addrs) && addrs[i] < b.End; i++ {
		if in := instByAddr[addrs[i]]; in.IsCall {
			return addrs[i], in, true
		}
	}
	return 0, ir.Instruction{}, false
}
