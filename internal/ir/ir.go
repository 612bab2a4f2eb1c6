// Package ir defines the shared intermediate representation for the
// z/Architecture recovery pipeline: artifacts, instructions, regions,
// basic blocks, procedures and the call graph. Types are arena-style and
// address-keyed rather than pointer-linked, so a CFG or call graph with
// cycles never needs reference cycles in Go.
package ir

import (
	"fmt"
	"strings"
)

// Confidence is a three-valued ordinal. Comparisons must use Ordinal,
// never arithmetic on the values themselves.
type Confidence int

const (
	Low Confidence = iota
	Medium
	High
)

// Ordinal returns the comparable rank of a confidence value.
func (c Confidence) Ordinal() int { return int(c) }

func (c Confidence) String() string {
	switch c {
	case High:
		return "HIGH"
	case Medium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// InstructionFormat names a z/Architecture instruction encoding shape.
type InstructionFormat int

const (
	FormatUnknown InstructionFormat = iota
	FormatRR
	FormatRX
	FormatRS
	FormatSI
	FormatSS
	FormatRRE
	FormatRXE
	FormatRXY
	FormatRSY
	FormatRI
	FormatRIL
	FormatRIE
	FormatSSE
)

func (f InstructionFormat) String() string {
	switch f {
	case FormatRR:
		return "RR"
	case FormatRX:
		return "RX"
	case FormatRS:
		return "RS"
	case FormatSI:
		return "SI"
	case FormatSS:
		return "SS"
	case FormatRRE:
		return "RRE"
	case FormatRXE:
		return "RXE"
	case FormatRXY:
		return "RXY"
	case FormatRSY:
		return "RSY"
	case FormatRI:
		return "RI"
	case FormatRIL:
		return "RIL"
	case FormatRIE:
		return "RIE"
	case FormatSSE:
		return "SSE"
	default:
		return "UNKNOWN"
	}
}

// OperandKind is the closed tag of the Operand union.
type OperandKind int

const (
	OperandRegister OperandKind = iota
	OperandImmediate
	OperandBaseDisp
	OperandBaseIndexDisp
	OperandPCRelative
	OperandOpaque
)

// Operand is a closed tagged union over the operand shapes z/Architecture
// instructions can carry. Only the fields relevant to Kind are meaningful.
type Operand struct {
	Kind OperandKind

	Reg  int   // OperandRegister
	Imm  int64 // OperandImmediate
	Base int   // OperandBaseDisp, OperandBaseIndexDisp
	Idx  int   // OperandBaseIndexDisp
	Disp int32 // OperandBaseDisp, OperandBaseIndexDisp
	Len  int   // OperandBaseDisp, SS-format length field (0 if absent)

	Target uint64 // OperandPCRelative: resolved absolute target
	Raw    string // OperandOpaque: source text for anything else; OperandPCRelative: the encoded signed halfword offset
}

// Text renders an operand the way an HLASM listing would.
func (o Operand) Text() string {
	switch o.Kind {
	case OperandRegister:
		return fmt.Sprintf("%d", o.Reg)
	case OperandImmediate:
		return fmt.Sprintf("X'%X'", o.Imm)
	case OperandBaseDisp:
		if o.Len > 0 {
			return fmt.Sprintf("%d(%d,%d)", o.Disp, o.Len, o.Base)
		}
		return fmt.Sprintf("%d(%d)", o.Disp, o.Base)
	case OperandBaseIndexDisp:
		if o.Idx != 0 {
			return fmt.Sprintf("%d(%d,%d)", o.Disp, o.Idx, o.Base)
		}
		return fmt.Sprintf("%d(%d)", o.Disp, o.Base)
	case OperandPCRelative:
		return fmt.Sprintf("X'%X'", o.Target)
	default:
		return o.Raw
	}
}

// Instruction is a single decoded z/Architecture instruction.
type Instruction struct {
	Address        uint64
	RawBytes       []byte
	Mnemonic       string
	Operands       []Operand
	Format         InstructionFormat
	SyntheticLabel string

	IsBranch bool
	IsCall   bool
	IsReturn bool

	// BranchTarget is the resolved absolute target address, valid only
	// when HasTarget is true (absolute-displacement or PC-relative
	// encodings); base-register relative branches cannot be resolved
	// statically and leave HasTarget false.
	BranchTarget uint64
	HasTarget    bool

	// TargetLabel is the synthetic label of BranchTarget (PROC_<hex> or
	// LOC_<hex>), stamped once labels are assigned across the whole
	// artifact. Empty until then, or if the target carries no label.
	TargetLabel string

	Annotation string
	Confidence Confidence
}

// Size returns the instruction length in bytes.
func (i Instruction) Size() int { return len(i.RawBytes) }

// HexBytes renders the raw encoding as upper-case hex.
func (i Instruction) HexBytes() string {
	var b strings.Builder
	for _, by := range i.RawBytes {
		fmt.Fprintf(&b, "%02X", by)
	}
	return b.String()
}

// operandsText renders an instruction's operand list. A branch's last
// operand carries its target — register or base-displacement for the
// indirect forms, the relative-offset encoding for RI/RIL — and that
// target is never rendered as-is: a resolved target prints its
// synthetic label (or X'<addr>' when no label was assigned), and an
// unresolved one prints the literal UNRESOLVED_TARGET, per the
// listing's no-speculation rule.
func (i Instruction) operandsText() string {
	parts := make([]string, len(i.Operands))
	for n, op := range i.Operands {
		parts[n] = op.Text()
	}
	if i.IsBranch && len(parts) > 0 {
		last := len(parts) - 1
		switch {
		case i.HasTarget && i.TargetLabel != "":
			parts[last] = i.TargetLabel
		case i.HasTarget:
			parts[last] = fmt.Sprintf("X'%X'", i.BranchTarget)
		default:
			parts[last] = "UNRESOLVED_TARGET"
		}
	}
	return strings.Join(parts, ",")
}

// ToAsmLine renders the instruction as one HLASM-style listing line:
// an 8-digit hex address, the raw bytes padded to 16 hex characters, an
// 8-column label field, the mnemonic and operands, and a trailing
// evidence comment when present.
func (i Instruction) ToAsmLine() string {
	label := strings.Repeat(" ", 8)
	if i.SyntheticLabel != "" {
		label = fmt.Sprintf("%-8s", i.SyntheticLabel)
	}
	bytesField := i.HexBytes()
	if len(bytesField) > 16 {
		bytesField = bytesField[:16]
	}
	bytesField = fmt.Sprintf("%-16s", bytesField)
	line := fmt.Sprintf("%08X %s %s %-6s %s", i.Address, bytesField, label, i.Mnemonic, i.operandsText())
	if i.Annotation != "" {
		line += "  * " + i.Annotation
	}
	return line
}

// UnknownSpan is a contiguous run of bytes the decoder could not resolve
// into an instruction.
type UnknownSpan struct {
	Start uint64
	End   uint64 // exclusive
	Bytes []byte
}

// RegionKind classifies a span of an artifact's address space.
type RegionKind int

const (
	RegionUnknown RegionKind = iota
	RegionCode
	RegionData
)

func (k RegionKind) String() string {
	switch k {
	case RegionCode:
		return "CODE"
	case RegionData:
		return "DATA"
	default:
		return "UNKNOWN"
	}
}

// Region is a classified span of an artifact's address space.
type Region struct {
	Start      uint64
	End        uint64 // exclusive
	Kind       RegionKind
	Confidence Confidence
	Evidence   string
	DecodeRate float64
}

// EdgeType is the fixed, ordered kind of a CFG edge.
type EdgeType int

const (
	EdgeTaken EdgeType = iota
	EdgeNotTaken
	EdgeFallthrough
	EdgeUnconditional
	EdgeCall
	EdgeUnresolved
	EdgeReturn
)

func (t EdgeType) String() string {
	switch t {
	case EdgeTaken:
		return "TAKEN"
	case EdgeNotTaken:
		return "NOT_TAKEN"
	case EdgeFallthrough:
		return "FALLTHROUGH"
	case EdgeUnconditional:
		return "UNCONDITIONAL"
	case EdgeCall:
		return "CALL"
	case EdgeUnresolved:
		return "UNRESOLVED"
	case EdgeReturn:
		return "RETURN"
	default:
		return "UNKNOWN"
	}
}

// Edge is a directed control-flow edge between two basic blocks,
// addressed by block leader address rather than pointer.
type Edge struct {
	From uint64
	To   uint64 // 0 when Type is EdgeUnresolved or EdgeReturn with no target
	Type EdgeType
}

// BasicBlock is a maximal straight-line instruction run, addressed by the
// address of its leading instruction.
type BasicBlock struct {
	Start      uint64
	End        uint64 // exclusive, address of first instruction after the block
	IsExternal bool   // synthetic external-ref block (cross-region target)
	Edges      []Edge
}

// LinkageKind classifies how a procedure establishes and tears down its
// stack frame.
type LinkageKind int

const (
	LinkageUnknown LinkageKind = iota
	LinkageStandard
	LinkageLEConformant
)

func (l LinkageKind) String() string {
	switch l {
	case LinkageStandard:
		return "standard"
	case LinkageLEConformant:
		return "le-conformant"
	default:
		return "unknown"
	}
}

// Procedure is an inferred subroutine: an entry address, the blocks
// reachable from it before any other procedure's entry is reached, and
// the evidence that led to detecting it.
type Procedure struct {
	EntryAddress    uint64
	Name            string
	ExitAddresses   []uint64
	Blocks          []uint64 // block Start addresses, ascending
	DetectionMethod string   // "declared", "call-target", "prologue-pattern", "region-start"
	Linkage         LinkageKind
	Confidence      Confidence
}

// CallGraphEdge is one resolved or unresolved call relationship between
// procedures, carried alongside the lattice.Graph used for traversal.
type CallGraphEdge struct {
	CallSite   uint64
	Caller     uint64
	Callee     uint64 // 0 when unresolved
	Confidence Confidence
}

// CallGraph is the set of procedure call relationships in an artifact.
type CallGraph struct {
	Edges []CallGraphEdge
}

// EvidenceLink records why a derived fact (a label, a classification, an
// edge) was produced, for traceability in renderer output.
type EvidenceLink struct {
	Address uint64
	Reason  string
}

// Section is a named, based span of an artifact's raw bytes, as reported
// by ingestion (one CSECT/program-object section, or the whole artifact
// when no section table exists).
type Section struct {
	Name  string
	Start uint64
	End   uint64 // exclusive
	Data  []byte
}

// Artifact is the ingested binary under analysis plus its z/OS-specific
// metadata.
type Artifact struct {
	Name        string
	ContentHash string // hex SHA-256 of the raw input bytes
	FormatType  string // "load_module", "program_object", "unknown"
	EntryPoint  uint64
	HasEntry    bool

	Sections        []Section
	ExternalSymbols []string
	AMODE           int
	RMODE           string
	Attributes      map[string]string
}
