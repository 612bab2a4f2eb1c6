// Package ingest loads z/OS load modules and program objects into
// ir.Artifact, detecting the container format and recovering the
// metadata the rest of the pipeline needs (entry point, sections,
// AMODE/RMODE, external symbols).
package ingest

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/acrajesh/reverse-asm/internal/ir"
)

// ErrUnreadable is returned when the input cannot be interpreted as a
// z/OS binary artifact at all. It is fatal: callers should map it to a
// failure status rather than continuing the pipeline.
var ErrUnreadable = errors.New("ingest: unreadable artifact")

// ErrEmptyArtifact is not fatal. A zero-length input yields a valid,
// empty Artifact with no sections; Ingest reports this sentinel so
// callers can record it as a warning without aborting.
var ErrEmptyArtifact = errors.New("ingest: empty artifact")

const (
	pdsHeaderSize = 20

	programObjectMagicHi = 0x00
	programObjectMagicLo = 0x03
)

var entryPatterns = [][2]byte{
	{0x47, 0xF0}, // BC 15,x
	{0x90, 0xEC}, // STM 14,12,x
	{0x18, 0x0F}, // LR 0,15
	{0x05, 0xC0}, // BALR 12,0
}

// Stats summarizes what ingestion found, independent of later decode or
// classification results.
type Stats struct {
	TotalSize    int
	CodeSize     int
	Format       string
	HasExternals bool
	SectionCount int
}

// Ingest detects the artifact's container format and produces an
// ir.Artifact plus ingestion statistics. An empty input yields a valid
// empty Artifact and ErrEmptyArtifact (non-fatal); a failure to read or
// make sense of non-empty input returns ErrUnreadable (fatal).
func Ingest(data []byte, name string) (*ir.Artifact, Stats, error) {
	sum := sha256.Sum256(data)
	art := &ir.Artifact{
		Name:        stem(name),
		ContentHash: hex.EncodeToString(sum[:]),
		FormatType:  "unknown",
		AMODE:       31,
		RMODE:       "ANY",
		Attributes:  map[string]string{},
	}

	if len(data) == 0 {
		return art, Stats{Format: "unknown"}, fmt.Errorf("%s: %w", name, ErrEmptyArtifact)
	}
	if len(data) < 2 {
		return nil, Stats{}, fmt.Errorf("%s: %w: too small (%d bytes)", name, ErrUnreadable, len(data))
	}

	switch {
	case len(data) >= 4 && data[0] == programObjectMagicHi && data[1] == programObjectMagicLo:
		art.FormatType = "program_object"
		parseProgramObject(art, data)
	case looksLikeLoadModule(data):
		art.FormatType = "load_module"
		parseLoadModule(art, data)
	default:
		art.FormatType = "unknown"
		applyHeuristics(art, data)
	}

	codeSize := 0
	for _, s := range art.Sections {
		codeSize += len(s.Data)
	}

	stats := Stats{
		TotalSize:    len(data),
		CodeSize:     codeSize,
		Format:       art.FormatType,
		HasExternals: len(art.ExternalSymbols) > 0,
		SectionCount: len(art.Sections),
	}
	return art, stats, nil
}

func looksLikeLoadModule(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	for _, p := range entryPatterns {
		if data[0] == p[0] && data[1] == p[1] {
			return true
		}
	}
	return false
}

func parseLoadModule(art *ir.Artifact, data []byte) {
	offset := uint64(0)
	if hasPDSHeader(data) {
		offset = pdsHeaderSize
		art.Attributes["pds_member"] = EBCDICToASCII(data[:8])
	}

	end := uint64(len(data))
	art.Sections = append(art.Sections, ir.Section{
		Name:  "TEXT",
		Start: offset,
		End:   end,
		Data:  data[offset:],
	})
	art.EntryPoint = offset
	art.HasEntry = offset < end
	art.AMODE = 31
	art.RMODE = "ANY"
}

func hasPDSHeader(data []byte) bool {
	if len(data) < pdsHeaderSize {
		return false
	}
	for _, b := range data[:8] {
		if b != 0x40 && !(b >= 0xC1 && b <= 0xE9) {
			return false
		}
	}
	return true
}

func parseProgramObject(art *ir.Artifact, data []byte) {
	if len(data) < 32 {
		art.Attributes["warning"] = "program object too small for header"
		return
	}

	textSize := binary.BigEndian.Uint32(data[8:12])
	entryOffset := binary.BigEndian.Uint32(data[12:16])
	externalCount := binary.BigEndian.Uint16(data[16:18])
	sectionCount := binary.BigEndian.Uint16(data[18:20])

	codeStart := uint64(32)
	codeEnd := codeStart + uint64(textSize)
	if codeEnd > uint64(len(data)) {
		codeEnd = uint64(len(data))
	}

	art.Sections = append(art.Sections, ir.Section{
		Name:  "TEXT",
		Start: codeStart,
		End:   codeEnd,
		Data:  data[codeStart:codeEnd],
	})
	art.EntryPoint = uint64(entryOffset)
	art.HasEntry = true
	art.AMODE = 31
	art.RMODE = "ANY"

	offset := codeEnd
	for i := uint16(0); i < externalCount; i++ {
		if offset+16 > uint64(len(data)) {
			break
		}
		name := EBCDICToASCII(data[offset : offset+8])
		art.ExternalSymbols = append(art.ExternalSymbols, trimSpaces(name))
		offset += 16
	}
	for i := uint16(0); i < sectionCount; i++ {
		if offset+20 > uint64(len(data)) {
			break
		}
		secStart := uint64(binary.BigEndian.Uint32(data[offset : offset+4]))
		secSize := uint64(binary.BigEndian.Uint32(data[offset+4 : offset+8]))
		secEnd := secStart + secSize
		if secEnd > uint64(len(data)) {
			secEnd = uint64(len(data))
		}
		if secStart <= secEnd && secEnd <= uint64(len(data)) {
			art.Sections = append(art.Sections, ir.Section{
				Name:  fmt.Sprintf("CSECT%d", i),
				Start: secStart,
				End:   secEnd,
				Data:  data[secStart:secEnd],
			})
		}
		offset += 20
	}
}

func applyHeuristics(art *ir.Artifact, data []byte) {
	art.Sections = append(art.Sections, ir.Section{
		Name:  "TEXT",
		Start: 0,
		End:   uint64(len(data)),
		Data:  data,
	})

	limit := len(data) - 1
	if limit > 256 {
		limit = 256
	}
	for i := 0; i+1 < limit; i += 2 {
		op := data[i]
		op2 := data[i+1]
		if op == 0x90 && op2 == 0xEC {
			art.EntryPoint = uint64(i)
			art.HasEntry = true
			break
		}
		if op == 0x05 || op == 0x0D {
			art.EntryPoint = uint64(i)
			art.HasEntry = true
			break
		}
	}
	art.AMODE = 31
	art.RMODE = "ANY"
}

// stem returns the artifact identifier: the base filename with any
// directory path and final extension removed.
func stem(name string) string {
	base := filepath.Base(name)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

func trimSpaces(s string) string {
	start, end := 0, len(s)
	for start < end && s[start] == ' ' {
		start++
	}
	for end > start && s[end-1] == ' ' {
		end--
	}
	return s[start:end]
}

// EBCDICToASCII converts an EBCDIC byte string to ASCII, following the
// same simplified letter/digit/space mapping z/OS directory and external
// symbol names use. Bytes outside the mapped ranges become '.'.
func EBCDICToASCII(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		switch {
		case c == 0x40:
			out[i] = ' '
		case c >= 0xC1 && c <= 0xC9:
			out[i] = 'A' + (c - 0xC1)
		case c >= 0xD1 && c <= 0xD9:
			out[i] = 'J' + (c - 0xD1)
		case c >= 0xE2 && c <= 0xE9:
			out[i] = 'S' + (c - 0xE2)
		case c >= 0xF0 && c <= 0xF9:
			out[i] = '0' + (c - 0xF0)
		default:
			out[i] = '.'
		}
	}
	return string(out)
}
