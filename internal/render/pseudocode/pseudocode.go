// Package pseudocode converts a procedure's control flow graph into
// structured pseudocode: IF/ELSE from conditional branches, LOOP from
// back edges, CALL/RETURN from call and return instructions, and a
// GOTO fallback for branch shapes the structural walk can't recover.
// The recovery walk recurses from block to successor block and tracks
// a visited set, so cyclic CFGs terminate.
package pseudocode

import (
	"fmt"
	"sort"
	"strings"

	"github.com/acrajesh/reverse-asm/internal/ir"
)

// Style selects the renderer's surface syntax.
type Style int

const (
	CLike Style = iota
	PythonLike
)

// statement is one recovered line of structured pseudocode, carrying
// the instruction address it was derived from so the renderer can
// attach an evidence comment.
type statement struct {
	indent      int
	text        string
	addrLo      uint64
	addrHi      uint64
	hasEvidence bool // true when addrLo/addrHi name a real instruction to cite
	closeLine   bool // true for closer lines (}, } else {, else:, END PROCEDURE)
}

// Generator walks one artifact's procedures and blocks and renders them
// as pseudocode in the given style.
type Generator struct {
	style       Style
	blockByAddr map[uint64]ir.BasicBlock
	instByAddr  map[uint64]ir.Instruction
	procByEntry map[uint64]ir.Procedure
	procByBlock map[uint64]uint64
}

// New builds a Generator over a full set of blocks, instructions and
// procedures (addresses may span multiple regions).
func New(style Style, blocks []ir.BasicBlock, insts []ir.Instruction, procs []ir.Procedure) *Generator {
	g := &Generator{
		style:       style,
		blockByAddr: map[uint64]ir.BasicBlock{},
		instByAddr:  map[uint64]ir.Instruction{},
		procByEntry: map[uint64]ir.Procedure{},
		procByBlock: map[uint64]uint64{},
	}
	for _, b := range blocks {
		g.blockByAddr[b.Start] = b
	}
	for _, i := range insts {
		g.instByAddr[i.Address] = i
	}
	for _, p := range procs {
		g.procByEntry[p.EntryAddress] = p
		for _, bs := range p.Blocks {
			g.procByBlock[bs] = p.EntryAddress
		}
	}
	return g
}

// Render produces the full pseudocode text for every procedure, in
// ascending entry-address order.
func (g *Generator) Render() string {
	var entries []uint64
	for e := range g.procByEntry {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i] < entries[j] })

	var b strings.Builder
	b.WriteString("// pseudocode recovered from control flow analysis\n")
	b.WriteString("// structure is inferred; verify against the assembler listing\n\n")

	for _, e := range entries {
		p := g.procByEntry[e]
		stmts := g.renderProcedure(p)
		for _, s := range stmts {
			b.WriteString(g.format(s))
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// blockOpenToken returns the token that opens a braced/colon block in
// the generator's style: a brace for c-like, a colon for python-like.
func (g *Generator) blockOpenToken() string {
	if g.style == PythonLike {
		return ":"
	}
	return "{"
}

// closeBlock returns the statement(s) that close a braced block: a
// bare "}" for c-like, nothing for python-like, where dedentation is
// the closer.
func (g *Generator) closeBlock(indent int) []statement {
	if g.style == CLike {
		return []statement{{indent: indent, text: "}", closeLine: true}}
	}
	return nil
}

func (g *Generator) renderProcedure(p ir.Procedure) []statement {
	header := fmt.Sprintf("PROCEDURE %s() %s", p.Name, g.blockOpenToken())
	stmts := []statement{
		{indent: 0, text: header, addrLo: p.EntryAddress, addrHi: p.EntryAddress, hasEvidence: true},
		{indent: 1, text: fmt.Sprintf("// detection: %s, linkage: %s", p.DetectionMethod, p.Linkage), addrLo: p.EntryAddress, addrHi: p.EntryAddress, hasEvidence: true},
	}

	loopHeaders := g.findLoopHeaders(p)
	visited := map[uint64]bool{}
	stmts = append(stmts, g.walkBlock(p.EntryAddress, 1, loopHeaders, visited)...)

	if g.style == CLike {
		stmts = append(stmts, statement{indent: 0, text: "}", closeLine: true})
	} else {
		stmts = append(stmts, statement{indent: 0, text: "END PROCEDURE", closeLine: true})
	}
	return stmts
}

// findLoopHeaders locates blocks that are the target of a back edge
// (a successor edge whose target starts at or before the source block),
// restricted to blocks owned by this procedure.
func (g *Generator) findLoopHeaders(p ir.Procedure) map[uint64]bool {
	owned := map[uint64]bool{}
	for _, bs := range p.Blocks {
		owned[bs] = true
	}
	headers := map[uint64]bool{}
	for _, bs := range p.Blocks {
		b := g.blockByAddr[bs]
		for _, e := range b.Edges {
			if !owned[e.To] {
				continue
			}
			if e.To <= b.Start && (e.Type == ir.EdgeTaken || e.Type == ir.EdgeUnconditional || e.Type == ir.EdgeFallthrough) {
				headers[e.To] = true
			}
		}
	}
	return headers
}

func (g *Generator) walkBlock(addr uint64, indent int, loopHeaders, visited map[uint64]bool) []statement {
	if visited[addr] {
		if loopHeaders[addr] {
			return []statement{{indent: indent, text: "continue  // loop_start"}}
		}
		// Converging control flow, not a loop back-edge: the structural
		// walk can't recover a single-entry shape for this block, so it
		// falls back to a labeled jump instead of dropping the branch.
		reason := fmt.Sprintf("goto L_%08X  // unrecovered: block reached a second time via a different path", addr)
		return []statement{{indent: indent, text: reason, addrLo: addr, addrHi: addr, hasEvidence: true}}
	}
	visited[addr] = true

	b, ok := g.blockByAddr[addr]
	if !ok {
		return nil
	}

	if loopHeaders[addr] {
		return g.renderLoop(b, indent, loopHeaders, visited)
	}

	var stmts []statement
	stmts = append(stmts, g.blockBodyStatements(b, indent)...)
	stmts = append(stmts, g.tailStatements(b, indent, loopHeaders, visited)...)
	return stmts
}

func (g *Generator) blockBodyStatements(b ir.BasicBlock, indent int) []statement {
	var stmts []statement
	for _, addr := range orderedRange(b, g.instByAddr) {
		in := g.instByAddr[addr]
		if in.IsBranch || in.IsCall || in.IsReturn {
			continue
		}
		stmts = append(stmts, statement{
			indent:      indent,
			text:        g.instructionText(in),
			addrLo:      in.Address,
			addrHi:      in.Address,
			hasEvidence: true,
		})
	}
	return stmts
}

func (g *Generator) tailStatements(b ir.BasicBlock, indent int, loopHeaders, visited map[uint64]bool) []statement {
	last, ok := lastInstruction(b, g.instByAddr)
	if !ok {
		return nil
	}

	if last.IsReturn {
		return []statement{{indent: indent, text: "return", addrLo: last.Address, addrHi: last.Address, hasEvidence: true}}
	}

	if last.IsCall {
		target := g.callTargetName(last)
		stmts := []statement{{indent: indent, text: fmt.Sprintf("call %s()", target), addrLo: last.Address, addrHi: last.Address, hasEvidence: true}}
		if fallTo, ok := fallthroughTarget(b); ok {
			stmts = append(stmts, g.walkBlock(fallTo, indent, loopHeaders, visited)...)
		}
		return stmts
	}

	if last.IsBranch {
		return g.branchStructure(b, last, indent, loopHeaders, visited)
	}

	if fallTo, ok := fallthroughTarget(b); ok {
		return g.walkBlock(fallTo, indent, loopHeaders, visited)
	}
	return nil
}

func (g *Generator) branchStructure(b ir.BasicBlock, last ir.Instruction, indent int, loopHeaders, visited map[uint64]bool) []statement {
	taken, hasTaken := takenTarget(b)

	if isUnconditionalEdge(b) {
		if !hasTaken {
			return []statement{{indent: indent, text: "goto UNRESOLVED_TARGET", addrLo: last.Address, addrHi: last.Address, hasEvidence: true}}
		}
		var stmts []statement
		stmts = append(stmts, statement{indent: indent, text: fmt.Sprintf("goto L_%08X", taken), addrLo: last.Address, addrHi: last.Address, hasEvidence: true})
		stmts = append(stmts, g.walkBlock(taken, indent, loopHeaders, visited)...)
		return stmts
	}

	condition := branchCondition(last)

	var stmts []statement
	stmts = append(stmts, statement{indent: indent, text: g.ifOpen(condition), addrLo: last.Address, addrHi: last.Address, hasEvidence: true})
	if hasTaken {
		stmts = append(stmts, g.walkBlock(taken, indent+1, loopHeaders, visited)...)
	}
	stmts = append(stmts, g.elseOpen(indent))
	if fallTo, ok := fallthroughTarget(b); ok {
		stmts = append(stmts, g.walkBlock(fallTo, indent+1, loopHeaders, visited)...)
	}
	stmts = append(stmts, g.closeBlock(indent)...)
	return stmts
}

// ifOpen renders the opening line of a conditional in the generator's
// style: braced c-like, or colon-terminated python-like.
func (g *Generator) ifOpen(cond string) string {
	if g.style == CLike {
		return fmt.Sprintf("if (%s) {", cond)
	}
	return fmt.Sprintf("if %s:", cond)
}

func (g *Generator) elseOpen(indent int) statement {
	if g.style == CLike {
		return statement{indent: indent, text: "} else {", closeLine: true}
	}
	return statement{indent: indent, text: "else:", closeLine: true}
}

// renderLoop dispatches on where the loop's condition sits: a
// conditional branch at the header itself recovers as a while loop; a
// header with no branch of its own (the test lives at the tail, on the
// back edge) recovers as a do-while.
func (g *Generator) renderLoop(b ir.BasicBlock, indent int, loopHeaders, visited map[uint64]bool) []statement {
	last, hasLast := lastInstruction(b, g.instByAddr)
	if hasLast && last.IsBranch && !isUnconditionalEdge(b) {
		return g.renderWhileLoop(b, last, indent, loopHeaders, visited)
	}
	return g.renderDoWhileLoop(b, indent, loopHeaders, visited)
}

func (g *Generator) renderWhileLoop(b ir.BasicBlock, last ir.Instruction, indent int, loopHeaders, visited map[uint64]bool) []statement {
	condition := branchCondition(last)
	taken, hasTaken := takenTarget(b)

	var stmts []statement
	stmts = append(stmts, statement{indent: indent, text: g.whileOpen(condition), addrLo: last.Address, addrHi: last.Address, hasEvidence: true})
	if hasTaken {
		stmts = append(stmts, g.walkBlock(taken, indent+1, loopHeaders, visited)...)
	}
	stmts = append(stmts, g.closeBlock(indent)...)
	if fallTo, ok := fallthroughTarget(b); ok {
		stmts = append(stmts, g.walkBlock(fallTo, indent, loopHeaders, visited)...)
	}
	return stmts
}

func (g *Generator) whileOpen(cond string) string {
	if g.style == CLike {
		return fmt.Sprintf("while (%s) {", cond)
	}
	return fmt.Sprintf("while %s:", cond)
}

func (g *Generator) renderDoWhileLoop(b ir.BasicBlock, indent int, loopHeaders, visited map[uint64]bool) []statement {
	var stmts []statement
	if g.style == CLike {
		stmts = append(stmts, statement{indent: indent, text: "do {", addrLo: b.Start, addrHi: b.Start, hasEvidence: true})
	} else {
		stmts = append(stmts, statement{indent: indent, text: "while True:", addrLo: b.Start, addrHi: b.Start, hasEvidence: true})
	}
	stmts = append(stmts, g.blockBodyStatements(b, indent+1)...)
	for _, e := range b.Edges {
		if e.To == b.Start || e.To == 0 {
			continue
		}
		stmts = append(stmts, g.walkBlock(e.To, indent+1, loopHeaders, visited)...)
	}

	condition := "true"
	if tailBlock, tailLast, ok := g.findBackEdgeSource(b.Start); ok && tailLast.IsBranch && !isUnconditionalEdge(tailBlock) {
		condition = branchCondition(tailLast)
	}
	if g.style == CLike {
		stmts = append(stmts, statement{indent: indent, text: fmt.Sprintf("} while (%s);", condition), closeLine: true})
	} else {
		stmts = append(stmts, statement{indent: indent + 1, text: fmt.Sprintf("if not (%s):", condition)})
		stmts = append(stmts, statement{indent: indent + 2, text: "break"})
	}
	return stmts
}

// findBackEdgeSource locates the block within the loop header's owning
// procedure whose edge targets the header — the tail a do-while's
// condition is tested at — and returns its last instruction.
func (g *Generator) findBackEdgeSource(headerStart uint64) (ir.BasicBlock, ir.Instruction, bool) {
	entry, ok := g.procByBlock[headerStart]
	if !ok {
		return ir.BasicBlock{}, ir.Instruction{}, false
	}
	p := g.procByEntry[entry]
	for _, bs := range p.Blocks {
		if bs == headerStart {
			continue
		}
		blk := g.blockByAddr[bs]
		for _, e := range blk.Edges {
			if e.To == headerStart {
				if last, ok := lastInstruction(blk, g.instByAddr); ok {
					return blk, last, true
				}
			}
		}
	}
	return ir.BasicBlock{}, ir.Instruction{}, false
}

func (g *Generator) callTargetName(in ir.Instruction) string {
	if in.HasTarget {
		if p, ok := g.procByEntry[in.BranchTarget]; ok {
			return p.Name
		}
		return fmt.Sprintf("PROC_%08X", in.BranchTarget)
	}
	return "UNRESOLVED_TARGET"
}

var branchConditions = map[int]string{
	15: "always", 8: "equal", 7: "not_equal", 6: "not_equal",
	4: "less_than", 2: "greater_than", 11: "less_or_equal",
	13: "greater_or_equal", 1: "overflow", 14: "no_overflow",
}

func branchCondition(in ir.Instruction) string {
	if (in.Mnemonic == "BC" || in.Mnemonic == "BCR" || in.Mnemonic == "BRC") && len(in.Operands) > 0 && in.Operands[0].Kind == ir.OperandRegister {
		mask := in.Operands[0].Reg
		if c, ok := branchConditions[mask]; ok {
			return c
		}
		return fmt.Sprintf("condition_mask_%d", mask)
	}
	return "condition"
}

func (g *Generator) instructionText(in ir.Instruction) string {
	ops := in.Operands
	switch in.Mnemonic {
	case "L", "LR", "LG", "LA":
		if len(ops) >= 2 {
			if in.Mnemonic == "LA" {
				return fmt.Sprintf("R%d = ADDRESS_OF(%s)", regOf(ops[0]), ops[1].Text())
			}
			return fmt.Sprintf("R%d = LOAD(%s)", regOf(ops[0]), ops[1].Text())
		}
	case "ST", "STM", "STG":
		if len(ops) >= 2 {
			return fmt.Sprintf("STORE R%d to %s", regOf(ops[0]), ops[1].Text())
		}
	case "A", "AR", "AG":
		if len(ops) >= 2 {
			return fmt.Sprintf("R%d = R%d + %s", regOf(ops[0]), regOf(ops[0]), ops[1].Text())
		}
	case "S", "SR", "SG":
		if len(ops) >= 2 {
			return fmt.Sprintf("R%d = R%d - %s", regOf(ops[0]), regOf(ops[0]), ops[1].Text())
		}
	case "C", "CR", "CL", "CLR":
		if len(ops) >= 2 {
			return fmt.Sprintf("COMPARE R%d with %s", regOf(ops[0]), ops[1].Text())
		}
	case "MVC":
		if len(ops) >= 2 {
			return fmt.Sprintf("MOVE %s to %s", ops[1].Text(), ops[0].Text())
		}
	}
	if in.Confidence == ir.Low {
		return fmt.Sprintf("UNKNOWN: %s", in.HexBytes())
	}
	parts := make([]string, len(ops))
	for i, o := range ops {
		parts[i] = o.Text()
	}
	return fmt.Sprintf("%s %s", in.Mnemonic, strings.Join(parts, ", "))
}

func regOf(o ir.Operand) int {
	if o.Kind == ir.OperandRegister {
		return o.Reg
	}
	return -1
}

func (g *Generator) format(s statement) string {
	indent := strings.Repeat("    ", s.indent)
	line := indent + s.text
	if s.text == "" {
		return ""
	}
	if s.closeLine || !s.hasEvidence {
		return line
	}
	in, ok := g.instByAddr[s.addrLo]
	if !ok {
		return line
	}
	return line + fmt.Sprintf("  // @0x%08X: %s", s.addrLo, in.HexBytes())
}

func takenTarget(b ir.BasicBlock) (uint64, bool) {
	for _, e := range b.Edges {
		if e.Type == ir.EdgeTaken || e.Type == ir.EdgeUnconditional || e.Type == ir.EdgeCall {
			return e.To, true
		}
	}
	return 0, false
}

func fallthroughTarget(b ir.BasicBlock) (uint64, bool) {
	for _, e := range b.Edges {
		if e.Type == ir.EdgeFallthrough || e.Type == ir.EdgeNotTaken {
			return e.To, true
		}
	}
	return 0, false
}

// isUnconditionalEdge reports whether a block ends in an unconditional
// branch: it has an UNCONDITIONAL edge, or an UNRESOLVED edge with no
// NOT_TAKEN alternative (an indirect unconditional branch).
func isUnconditionalEdge(b ir.BasicBlock) bool {
	unresolved, notTaken := false, false
	for _, e := range b.Edges {
		switch e.Type {
		case ir.EdgeUnconditional:
			return true
		case ir.EdgeUnresolved:
			unresolved = true
		case ir.EdgeNotTaken:
			notTaken = true
		}
	}
	return unresolved && !notTaken
}

func lastInstruction(b ir.BasicBlock, instByAddr map[uint64]ir.Instruction) (ir.Instruction, bool) {
	var best ir.Instruction
	found := false
	for addr, in := range instByAddr {
		if addr >= b.Start && addr < b.End {
			if !found || addr > best.Address {
				best = in
				found = true
			}
		}
	}
	return best, found
}

// orderedRange returns the addresses within [b.Start, b.End) in
// ascending order.
func orderedRange(b ir.BasicBlock, instByAddr map[uint64]ir.Instruction) []uint64 {
	var addrs []uint64
	for addr := range instByAddr {
		if addr >= b.Start && addr < b.End {
			addrs = append(addrs, addr)
		}
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}
