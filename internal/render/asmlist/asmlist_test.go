package asmlist

import (
	"strings"
	"testing"

	"github.com/acrajesh/reverse-asm/internal/ir"
)

func TestRenderOrdersInstructionsAndSpansByAddress(t *testing.T) {
	insts := []ir.Instruction{
		{Address: 0, Mnemonic: "LR", RawBytes: []byte{0x18, 0x12}},
		{Address: 4, Mnemonic: "BCR", RawBytes: []byte{0x07, 0xFE}},
	}
	spans := []ir.UnknownSpan{
		{Start: 2, End: 4, Bytes: []byte{0xFF, 0xFF}},
	}
	out := Render(insts, spans)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4 (LR, region header, DC, BCR): %q", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "00000000") {
		t.Errorf("line0 = %q, want address 00000000 first", lines[0])
	}
	if !strings.Contains(lines[1], "Unknown/Undecodable Region") {
		t.Errorf("line1 = %q, want the unknown-region header second", lines[1])
	}
	if !strings.HasPrefix(lines[2], "00000002") {
		t.Errorf("line2 = %q, want the unknown span's hex dump at address 00000002 third", lines[2])
	}
	if !strings.HasPrefix(lines[3], "00000004") {
		t.Errorf("line3 = %q, want BCR at address 00000004 fourth", lines[3])
	}
}

func TestRenderUnknownSpanHexDump(t *testing.T) {
	out := Render(nil, []ir.UnknownSpan{{Start: 0x10, End: 0x12, Bytes: []byte{0xAB, 0xCD}}})
	if !strings.Contains(out, "ABCD") {
		t.Errorf("out = %q, want hex dump of span bytes", out)
	}
	if !strings.Contains(out, "DC") {
		t.Errorf("out = %q, want a DC X'...' style comment", out)
	}
}

func TestRenderChunksLongUnknownSpans(t *testing.T) {
	data := make([]byte, hexDumpChunkSize+1)
	for i := range data {
		data[i] = 0x90
	}
	out := Render(nil, []ir.UnknownSpan{{Start: 0, End: uint64(len(data)), Bytes: data}})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3 (header + one full chunk + one trailing byte): %q", len(lines), out)
	}
}

func TestRenderEmpty(t *testing.T) {
	if got := Render(nil, nil); got != "" {
		t.Errorf("Render(nil, nil) = %q, want empty", got)
	}
}
