package reverseasm

import (
	"fmt"

	"github.com/acrajesh/reverse-asm/internal/ir"
)

// Validation is an informational scoring pass over a completed
// analysis; it never changes Status. Scores decode rate, CFG
// reachability from entry points, and average procedure confidence.
type Validation struct {
	IsValid                bool
	DecodeRateScore        float64
	ReachabilityScore      float64
	HasReachabilityScore   bool
	AvgProcedureConfidence float64
	HasProcedureScore      bool
	Issues                 []string
}

// Validate scores a completed AnalysisResult without altering it.
func Validate(result *AnalysisResult) Validation {
	v := Validation{IsValid: true, DecodeRateScore: result.Statistics.DecodeRate}

	switch {
	case v.DecodeRateScore < 0.3:
		v.Issues = append(v.Issues, "very low decode rate: likely not valid z/Architecture code")
		v.IsValid = false
	case v.DecodeRateScore < 0.7:
		v.Issues = append(v.Issues, "low decode rate: some regions may be data or unrecognized instructions")
	}

	if len(result.Blocks) > 0 {
		reachable := reachableBlocks(result)
		v.ReachabilityScore = float64(len(reachable)) / float64(len(result.Blocks))
		v.HasReachabilityScore = true
		if v.ReachabilityScore < 0.5 {
			v.Issues = append(v.Issues, fmt.Sprintf("low CFG reachability (%.0f%% orphan blocks): many blocks unreached from any entry point", (1-v.ReachabilityScore)*100))
		}
	}

	if len(result.Procedures) > 0 {
		var sum float64
		for _, p := range result.Procedures {
			sum += float64(p.Confidence.Ordinal())
		}
		avg := sum / float64(len(result.Procedures)) / float64(ir.High.Ordinal())
		v.AvgProcedureConfidence = avg
		v.HasProcedureScore = true
		if avg < 0.5 {
			v.Issues = append(v.Issues, "low confidence in detected procedures")
		}
	}

	return v
}

// reachableBlocks performs a BFS from every declared entry point (the
// procedure entry addresses already inferred), keyed by block start
// address.
func reachableBlocks(result *AnalysisResult) map[uint64]bool {
	reachable := map[uint64]bool{}
	var queue []uint64
	for _, p := range result.Procedures {
		if _, ok := result.blockByStart[p.EntryAddress]; ok {
			queue = append(queue, p.EntryAddress)
		}
	}

	for len(queue) > 0 {
		start := queue[0]
		queue = queue[1:]
		if reachable[start] {
			continue
		}
		reachable[start] = true
		b, ok := result.blockByStart[start]
		if !ok {
			continue
		}
		for _, e := range b.Edges {
			if e.To != 0 && !reachable[e.To] {
				queue = append(queue, e.To)
			}
		}
	}
	return reachable
}
