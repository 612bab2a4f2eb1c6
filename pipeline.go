// Package reverseasm implements the z/Architecture binary recovery
// pipeline end to end: ingest, decode, classify, CFG build, and
// procedure inference, plus the two outbound renderers and a
// post-analysis validation pass. Every internal/ package is a pure
// function over its input; the root package does nothing but wiring.
package reverseasm

import (
	"errors"
	"fmt"
	"sort"

	"github.com/zboralski/lattice"

	"github.com/acrajesh/reverse-asm/internal/cfgbuild"
	"github.com/acrajesh/reverse-asm/internal/classify"
	"github.com/acrajesh/reverse-asm/internal/decode"
	"github.com/acrajesh/reverse-asm/internal/ingest"
	"github.com/acrajesh/reverse-asm/internal/ir"
	"github.com/acrajesh/reverse-asm/internal/procinfer"
	"github.com/acrajesh/reverse-asm/internal/render/asmlist"
	"github.com/acrajesh/reverse-asm/internal/render/pseudocode"
)

// PseudocodeStyle selects the pseudocode renderer's surface syntax.
type PseudocodeStyle = pseudocode.Style

const (
	CLike      = pseudocode.CLike
	PythonLike = pseudocode.PythonLike
)

// Config controls the pipeline's tunable parameters. Zero values fall
// back to classify.Config's own defaults (64-byte windows, 0.70/0.30
// thresholds).
type Config struct {
	DecodeWindowSize int
	CodeThreshold    float64
	DataThreshold    float64
	EmitHex          bool
	PseudocodeStyle  PseudocodeStyle
}

// Status summarizes how completely an artifact was decoded. Thresholds
// are fixed at 0.80/0.20, distinct from classify.Config's 0.70/0.30
// region-classification thresholds; the two are never shared.
type Status int

const (
	StatusSuccess Status = iota
	StatusPartial
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPartial:
		return "partial"
	default:
		return "failure"
	}
}

func deriveStatus(decodeRate float64, ingestFailed bool) Status {
	if ingestFailed {
		return StatusFailure
	}
	switch {
	case decodeRate > 0.80:
		return StatusSuccess
	case decodeRate < 0.20:
		return StatusFailure
	default:
		return StatusPartial
	}
}

// MnemonicCount pairs a mnemonic with its occurrence count, for the
// top-N histogram surfaced in Statistics.
type MnemonicCount struct {
	Mnemonic string
	Count    int
}

// Statistics aggregates counts over one completed analysis.
type Statistics struct {
	DecodedInstructionCount int
	DecodedByteCount        int
	UnknownByteCount        int
	DecodeRate              float64
	BranchCount             int
	CallCount               int
	ReturnCount             int
	MnemonicHistogram       map[string]int
	TopMnemonics            []MnemonicCount
}

// AnalysisResult is the full output of one Analyze call.
type AnalysisResult struct {
	Artifact     ir.Artifact
	Instructions []ir.Instruction
	UnknownSpans []ir.UnknownSpan
	Regions      []ir.Region
	Blocks       []ir.BasicBlock
	Unresolved   []uint64
	Procedures   []ir.Procedure
	CallGraph    ir.CallGraph
	Statistics   Statistics
	Status       Status
	Warnings     []string

	style        PseudocodeStyle
	graph        *lattice.Graph
	blockByStart map[uint64]ir.BasicBlock
	instByAddr   map[uint64]ir.Instruction
}

// Analyze runs the full pipeline over data and returns the aggregated
// result. Only an unreadable artifact (ingest.ErrUnreadable) is a fatal
// Go error; every other non-fatal condition is recorded in the result
// with its own reason and confidence.
func Analyze(data []byte, filename string, entryHints []uint64, cfg Config) (*AnalysisResult, error) {
	art, istats, ingestErr := ingest.Ingest(data, filename)
	if ingestErr != nil && errors.Is(ingestErr, ingest.ErrUnreadable) {
		return nil, fmt.Errorf("reverseasm: analyze %s: %w", filename, ingestErr)
	}

	result := &AnalysisResult{
		Artifact: *art,
		style:    cfg.PseudocodeStyle,
	}
	if ingestErr != nil {
		result.Warnings = append(result.Warnings, ingestErr.Error())
	}

	classifyCfg := classify.Config{
		WindowSize:    cfg.DecodeWindowSize,
		CodeThreshold: cfg.CodeThreshold,
		DataThreshold: cfg.DataThreshold,
	}

	var procInputs []procinfer.Input
	for _, sec := range art.Sections {
		insts, spans := decode.DecodeAll(sec.Data, decode.Options{BaseAddr: sec.Start})
		result.Instructions = append(result.Instructions, insts...)
		result.UnknownSpans = append(result.UnknownSpans, spans...)

		regions := classify.Classify(sec.Start, sec.End, insts, classifyCfg)
		result.Regions = append(result.Regions, regions...)

		for _, region := range regions {
			if region.Kind != ir.RegionCode {
				continue
			}
			regionInsts := instructionsIn(insts, region.Start, region.End)
			if len(regionInsts) == 0 {
				continue
			}
			cfgResult := cfgbuild.Build(regionInsts, region.End)
			result.Blocks = append(result.Blocks, cfgResult.Blocks...)
			result.Unresolved = append(result.Unresolved, cfgResult.Unresolved...)

			procInputs = append(procInputs, procinfer.Input{
				RegionStart: region.Start,
				Insts:       regionInsts,
				Blocks:      cfgResult.Blocks,
				EntryHints:  entryHintsIn(entryHints, region.Start, region.End, art),
			})
		}
	}

	sort.Slice(result.Instructions, func(i, j int) bool { return result.Instructions[i].Address < result.Instructions[j].Address })
	sort.Slice(result.Regions, func(i, j int) bool { return result.Regions[i].Start < result.Regions[j].Start })
	sort.Slice(result.Blocks, func(i, j int) bool { return result.Blocks[i].Start < result.Blocks[j].Start })
	sort.Slice(result.Unresolved, func(i, j int) bool { return result.Unresolved[i] < result.Unresolved[j] })

	procOut := procinfer.Infer(procInputs)
	result.Procedures = procOut.Procedures
	result.graph = procOut.Graph
	for _, ce := range procOut.CallEdges {
		result.CallGraph.Edges = append(result.CallGraph.Edges, ir.CallGraphEdge{
			CallSite:   ce.CallSite,
			Caller:     ce.Caller,
			Callee:     ce.Callee,
			Confidence: ce.Confidence,
		})
	}

	assignSyntheticLabels(result.Instructions, result.Procedures)

	result.blockByStart = make(map[uint64]ir.BasicBlock, len(result.Blocks))
	for _, b := range result.Blocks {
		result.blockByStart[b.Start] = b
	}
	result.instByAddr = make(map[uint64]ir.Instruction, len(result.Instructions))
	for _, in := range result.Instructions {
		result.instByAddr[in.Address] = in
	}

	result.Statistics = computeStatistics(result)
	result.Status = deriveStatus(result.Statistics.DecodeRate, false)
	result.Warnings = append(result.Warnings, deriveWarnings(result)...)

	_ = istats // ingest.Stats is not carried into AnalysisResult
	return result, nil
}

// assignSyntheticLabels stamps each instruction's SyntheticLabel for
// display in the assembler listing: PROC_<hex> at a procedure's entry
// address, LOC_<hex> at any other address reached by a branch, call
// targets excluded since those already carry the callee's procedure
// name. It then stamps every branch instruction's TargetLabel from the
// same table, so the listing can print a name instead of a numeric
// target wherever the target resolved to an address this analysis
// actually saw.
func assignSyntheticLabels(insts []ir.Instruction, procedures []ir.Procedure) {
	procNames := make(map[uint64]string, len(procedures))
	for _, p := range procedures {
		procNames[p.EntryAddress] = p.Name
	}

	branchTargets := map[uint64]bool{}
	for _, in := range insts {
		if in.IsBranch && !in.IsCall && in.HasTarget {
			branchTargets[in.BranchTarget] = true
		}
	}

	labelAt := make(map[uint64]string, len(procNames)+len(branchTargets))
	for addr, name := range procNames {
		labelAt[addr] = name
	}
	for addr := range branchTargets {
		if _, ok := labelAt[addr]; !ok {
			labelAt[addr] = fmt.Sprintf("LOC_%08X", addr)
		}
	}

	for i := range insts {
		addr := insts[i].Address
		if name, ok := labelAt[addr]; ok {
			insts[i].SyntheticLabel = name
		}
		if insts[i].IsBranch && insts[i].HasTarget {
			insts[i].TargetLabel = labelAt[insts[i].BranchTarget]
		}
	}
}

func instructionsIn(insts []ir.Instruction, start, end uint64) []ir.Instruction {
	var out []ir.Instruction
	for _, in := range insts {
		if in.Address >= start && in.Address < end {
			out = append(out, in)
		}
	}
	return out
}

func entryHintsIn(hints []uint64, start, end uint64, art *ir.Artifact) []uint64 {
	var out []uint64
	for _, h := range hints {
		if h >= start && h < end {
			out = append(out, h)
		}
	}
	if art.HasEntry && art.EntryPoint >= start && art.EntryPoint < end {
		out = append(out, art.EntryPoint)
	}
	return out
}

func computeStatistics(result *AnalysisResult) Statistics {
	stats := Statistics{MnemonicHistogram: map[string]int{}}
	for _, in := range result.Instructions {
		stats.DecodedInstructionCount++
		stats.DecodedByteCount += in.Size()
		stats.MnemonicHistogram[in.Mnemonic]++
		if in.IsBranch {
			stats.BranchCount++
		}
		if in.IsCall {
			stats.CallCount++
		}
		if in.IsReturn {
			stats.ReturnCount++
		}
	}
	for _, sp := range result.UnknownSpans {
		stats.UnknownByteCount += int(sp.End - sp.Start)
	}
	if total := stats.DecodedByteCount + stats.UnknownByteCount; total > 0 {
		stats.DecodeRate = float64(stats.DecodedByteCount) / float64(total)
	}
	stats.TopMnemonics = topMnemonics(stats.MnemonicHistogram)
	return stats
}

func topMnemonics(hist map[string]int) []MnemonicCount {
	out := make([]MnemonicCount, 0, len(hist))
	for m, c := range hist {
		out = append(out, MnemonicCount{Mnemonic: m, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Mnemonic < out[j].Mnemonic
	})
	return out
}

func deriveWarnings(result *AnalysisResult) []string {
	var warnings []string
	if result.Statistics.DecodeRate < 0.5 {
		warnings = append(warnings, fmt.Sprintf("low decode rate: %.2f", result.Statistics.DecodeRate))
	}
	if len(result.Unresolved) > 10 {
		warnings = append(warnings, fmt.Sprintf("%d unresolved branch targets", len(result.Unresolved)))
	}
	return warnings
}

// RenderAsm renders the full assembler listing for a completed
// analysis: one line per instruction plus hex-dumped unknown spans, in
// ascending address order.
func (r *AnalysisResult) RenderAsm() string {
	return asmlist.Render(r.Instructions, r.UnknownSpans)
}

// RenderPseudocode renders structured pseudocode for every inferred
// procedure, in the style carried by the Config passed to Analyze.
func (r *AnalysisResult) RenderPseudocode() string {
	gen := pseudocode.New(r.style, r.Blocks, r.Instructions, r.Procedures)
	return gen.Render()
}
