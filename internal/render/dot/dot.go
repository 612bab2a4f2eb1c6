// Package dot renders per-procedure CFGs and the artifact-wide call
// graph as Graphviz DOT text, for optional visualization from the CLI.
package dot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zboralski/lattice"

	"github.com/acrajesh/reverse-asm/internal/ir"
)

// Theme holds the colors used by CFG and call-graph rendering.
type Theme struct {
	Background string
	NodeFill   string
	NodeBorder string
	TextColor  string
	EdgeTaken  string
	EdgeOther  string
	StubFill   string
}

// Mono is a sparse, monochrome theme.
var Mono = Theme{
	Background: "#F5F5F5",
	NodeFill:   "white",
	NodeBorder: "#1A1A1A",
	TextColor:  "#1A1A1A",
	EdgeTaken:  "#0B3D91",
	EdgeOther:  "#424242",
	StubFill:   "#ECEFF1",
}

func escape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}

// ProcedureCFG renders one procedure's basic blocks and edges as a DOT
// digraph, with instruction text drawn from instByAddr.
func ProcedureCFG(p ir.Procedure, blockByStart map[uint64]ir.BasicBlock, instByAddr map[uint64]ir.Instruction, t Theme) string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph cfg_%08X {\n", p.EntryAddress)
	b.WriteString("  rankdir=TB;\n")
	fmt.Fprintf(&b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(&b, "  node [shape=rect, style=filled, fillcolor=%q, color=%q, fontname=\"Courier,monospace\", fontsize=8, fontcolor=%q];\n",
		t.NodeFill, t.NodeBorder, t.TextColor)
	fmt.Fprintf(&b, "  label=<<font point-size=\"9\">%s</font>>;\n  labelloc=t;\n  labeljust=l;\n\n", escape(p.Name))

	for _, bs := range p.Blocks {
		blk, ok := blockByStart[bs]
		if !ok {
			continue
		}
		id := nodeID(bs)
		var lines []string
		for addr := bs; addr < blk.End; {
			in, ok := instByAddr[addr]
			if !ok {
				break
			}
			lines = append(lines, escape(fmt.Sprintf("0x%08X: %s", in.Address, in.Mnemonic)))
			addr += uint64(in.Size())
		}
		if len(lines) > 12 {
			lines = append(lines[:6], lines[len(lines)-6:]...)
		}
		label := strings.Join(lines, "<br align=\"left\"/>") + "<br align=\"left\"/>"
		attrs := ""
		if bs == p.EntryAddress {
			attrs = fmt.Sprintf(", penwidth=1.5, color=%q", t.EdgeTaken)
		}
		if blk.IsExternal {
			attrs += fmt.Sprintf(", fillcolor=%q", t.StubFill)
		}
		fmt.Fprintf(&b, "  %s [label=<%s>%s];\n", id, label, attrs)
	}
	b.WriteByte('\n')

	for _, bs := range p.Blocks {
		blk, ok := blockByStart[bs]
		if !ok {
			continue
		}
		from := nodeID(bs)
		for _, e := range blk.Edges {
			if e.To == 0 {
				continue
			}
			to := nodeID(e.To)
			color := t.EdgeOther
			if e.Type == ir.EdgeTaken || e.Type == ir.EdgeUnconditional {
				color = t.EdgeTaken
			}
			fmt.Fprintf(&b, "  %s -> %s [color=%q, label=%q];\n", from, to, color, e.Type.String())
		}
	}

	b.WriteString("}\n")
	return b.String()
}

func nodeID(addr uint64) string { return fmt.Sprintf("bb%08X", addr) }

// CallGraph renders a lattice.Graph (as built by procinfer.Infer) as a
// DOT digraph, one node per procedure and one edge per resolved call.
func CallGraph(g *lattice.Graph, t Theme) string {
	var b strings.Builder
	b.WriteString("digraph callgraph {\n")
	b.WriteString("  rankdir=LR;\n")
	fmt.Fprintf(&b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(&b, "  node [shape=box, style=filled, fillcolor=%q, color=%q, fontname=\"Courier,monospace\", fontsize=9, fontcolor=%q];\n\n",
		t.NodeFill, t.NodeBorder, t.TextColor)

	nodes := append([]string(nil), g.Nodes...)
	sort.Strings(nodes)
	for _, n := range nodes {
		fmt.Fprintf(&b, "  %q;\n", n)
	}
	b.WriteByte('\n')
	for _, e := range g.Edges {
		fmt.Fprintf(&b, "  %q -> %q [color=%q];\n", e.Caller, e.Callee, t.EdgeOther)
	}
	b.WriteString("}\n")
	return b.String()
}
