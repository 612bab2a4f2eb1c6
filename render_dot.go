package reverseasm

import (
	"github.com/acrajesh/reverse-asm/internal/render/dot"
)

// RenderCallGraphDOT renders the whole-artifact call graph as Graphviz
// DOT text, for optional visualization from the CLI. The core pipeline
// never depends on this; it exists purely for cmd/zreverse.
func (r *AnalysisResult) RenderCallGraphDOT() string {
	return dot.CallGraph(r.graph, dot.Mono)
}

// RenderProcedureCFGDOT renders one procedure's CFG as Graphviz DOT
// text, keyed by its entry address. The second return value is false
// if no procedure with that entry address was inferred.
func (r *AnalysisResult) RenderProcedureCFGDOT(entry uint64) (string, bool) {
	for _, p := range r.Procedures {
		if p.EntryAddress == entry {
			return dot.ProcedureCFG(p, r.blockByStart, r.instByAddr, dot.Mono), true
		}
	}
	return "", false
}
