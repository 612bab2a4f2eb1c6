// Package asmlist renders decoded instructions and unknown spans as an
// HLASM-style assembler listing: one line per instruction in the format
// ir.Instruction.ToAsmLine produces, with unknown bytes rendered as
// chunked hex dumps carrying a DC X'...' style comment. Lines are
// emitted in deterministic ascending-address order.
package asmlist

import (
	"fmt"
	"sort"
	"strings"

	"github.com/acrajesh/reverse-asm/internal/ir"
)

const hexDumpChunkSize = 16

type line struct {
	addr uint64
	text string
}

// Render produces the full listing text for a region's instructions and
// unknown spans, interleaved in ascending address order.
func Render(insts []ir.Instruction, spans []ir.UnknownSpan) string {
	var lines []line

	for _, in := range insts {
		lines = append(lines, line{addr: in.Address, text: in.ToAsmLine()})
	}
	for _, sp := range spans {
		for _, l := range renderUnknownSpan(sp) {
			lines = append(lines, l)
		}
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].addr < lines[j].addr })

	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.text)
		b.WriteByte('\n')
	}
	return b.String()
}

func renderUnknownSpan(sp ir.UnknownSpan) []line {
	header := fmt.Sprintf("* Unknown/Undecodable Region: 0x%X-0x%X (%d bytes)", sp.Start, sp.End, sp.End-sp.Start)
	out := []line{{addr: sp.Start, text: header}}
	addr := sp.Start
	data := sp.Bytes
	for len(data) > 0 {
		n := hexDumpChunkSize
		if n > len(data) {
			n = len(data)
		}
		chunk := data[:n]
		var hex strings.Builder
		for _, by := range chunk {
			fmt.Fprintf(&hex, "%02X", by)
		}
		text := fmt.Sprintf("%08X %-16s %s DC    X'%s'", addr, hex.String(), strings.Repeat(" ", 8), hex.String())
		out = append(out, line{addr: addr, text: text})
		addr += uint64(n)
		data = data[n:]
	}
	return out
}
