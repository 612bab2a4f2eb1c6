// Package classify implements the sliding-window region classifier: it
// labels spans of a section's address range as CODE, DATA or UNKNOWN
// based on instruction decode density, then coalesces adjacent
// same-kind windows into regions snapped to instruction boundaries.
package classify

import (
	"fmt"
	"sort"

	"github.com/acrajesh/reverse-asm/internal/ir"
)

// Config holds the classifier's tunable thresholds and window size.
type Config struct {
	WindowSize    int     // bytes per sliding window; 0 defaults to 64
	CodeThreshold float64 // decode rate strictly above this -> CODE; 0 defaults to 0.70
	DataThreshold float64 // decode rate strictly below this -> DATA; 0 defaults to 0.30
}

func (c Config) effective() Config {
	if c.WindowSize <= 0 {
		c.WindowSize = 64
	}
	if c.CodeThreshold <= 0 {
		c.CodeThreshold = 0.70
	}
	if c.DataThreshold <= 0 {
		c.DataThreshold = 0.30
	}
	return c
}

// Classify windows a section's address range at cfg.WindowSize
// granularity, scores each window's instruction decode density, then
// coalesces adjacent windows of identical classification into Regions
// whose boundaries are snapped to the nearest instruction start.
//
// Ties at exactly the threshold keep the previous window's
// classification rather than flipping, so a long uniform run never
// fragments on floating-point noise at the boundary.
func Classify(sectionStart, sectionEnd uint64, insts []ir.Instruction, cfg Config) []ir.Region {
	cfg = cfg.effective()
	if sectionEnd <= sectionStart {
		return nil
	}

	instByAddr := make(map[uint64]ir.Instruction, len(insts))
	var starts []uint64
	for _, in := range insts {
		instByAddr[in.Address] = in
		starts = append(starts, in.Address)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	var windows []window
	prevKind := ir.RegionUnknown
	havePrev := false

	for ws := sectionStart; ws < sectionEnd; ws += uint64(cfg.WindowSize) {
		we := ws + uint64(cfg.WindowSize)
		if we > sectionEnd {
			we = sectionEnd
		}
		size := we - ws
		var decoded uint64
		addr := ws
		for addr < we {
			if in, ok := instByAddr[addr]; ok && in.Mnemonic != "UNKNOWN" {
				decoded += uint64(in.Size())
				addr += uint64(in.Size())
				continue
			}
			addr++
		}
		rate := 0.0
		if size > 0 {
			rate = float64(decoded) / float64(size)
		}

		var kind ir.RegionKind
		switch {
		case rate > cfg.CodeThreshold:
			kind = ir.RegionCode
		case rate < cfg.DataThreshold:
			kind = ir.RegionData
		case havePrev && (rate == cfg.CodeThreshold || rate == cfg.DataThreshold):
			kind = prevKind
		default:
			kind = ir.RegionUnknown
		}
		prevKind = kind
		havePrev = true

		windows = append(windows, window{start: ws, end: we, kind: kind, rate: rate})
	}

	if len(windows) == 0 {
		return nil
	}

	// Coalesce adjacent same-kind windows.
	var regions []ir.Region
	cur := windows[0]
	sumRate := cur.rate
	count := 1
	for _, w := range windows[1:] {
		if w.kind == cur.kind {
			cur.end = w.end
			sumRate += w.rate
			count++
			continue
		}
		regions = append(regions, finishRegion(cur, sumRate/float64(count), starts, instByAddr))
		cur = w
		sumRate = w.rate
		count = 1
	}
	regions = append(regions, finishRegion(cur, sumRate/float64(count), starts, instByAddr))

	downgradeConstantPools(regions)
	return regions
}

type window struct {
	start, end uint64
	kind       ir.RegionKind
	rate       float64
}

func finishRegion(w window, avgRate float64, starts []uint64, instByAddr map[uint64]ir.Instruction) ir.Region {
	start := snapToInstruction(w.start, starts, instByAddr)
	conf := ir.Low
	evidence := fmt.Sprintf("decode_rate=%.2f in uncertain range", avgRate)
	switch w.kind {
	case ir.RegionCode:
		conf = ir.High
		evidence = fmt.Sprintf("decode_rate=%.2f > code threshold", avgRate)
	case ir.RegionData:
		conf = ir.Medium
		evidence = fmt.Sprintf("decode_rate=%.2f < data threshold", avgRate)
	}
	return ir.Region{
		Start:      start,
		End:        w.end,
		Kind:       w.kind,
		Confidence: conf,
		Evidence:   evidence,
		DecodeRate: avgRate,
	}
}

// snapToInstruction moves a coalesced region's start back to the start
// of the instruction that straddles it, so a region never begins
// mid-instruction because a window boundary fell inside one. An address
// that already is an instruction boundary is returned unchanged.
func snapToInstruction(addr uint64, starts []uint64, instByAddr map[uint64]ir.Instruction) uint64 {
	best := addr
	for _, s := range starts {
		if s > addr {
			break
		}
		if s+uint64(instByAddr[s].Size()) > addr {
			best = s
		}
	}
	return best
}

const smallRegionSize = 256

// downgradeConstantPools reclassifies small UNKNOWN regions sandwiched
// between two CODE regions as DATA, on the theory that an unresolved
// island between code is most often a literal/constant pool rather than
// truly unclassifiable bytes.
func downgradeConstantPools(regions []ir.Region) {
	for i := range regions {
		r := &regions[i]
		if r.Kind != ir.RegionUnknown {
			continue
		}
		if r.End-r.Start >= smallRegionSize {
			continue
		}
		hasCodeBefore, hasCodeAfter := false, false
		for _, o := range regions {
			if o.Kind == ir.RegionCode && o.End <= r.Start {
				hasCodeBefore = true
			}
			if o.Kind == ir.RegionCode && o.Start >= r.End {
				hasCodeAfter = true
			}
		}
		if hasCodeBefore && hasCodeAfter {
			r.Kind = ir.RegionData
			r.Confidence = ir.Medium
			r.Evidence = "constant_pool_pattern (between code regions)"
		}
	}
}
