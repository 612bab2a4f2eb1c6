// Package decode implements the z/Architecture instruction decoder: a
// static opcode table driving instruction length, mnemonic and operand
// recovery, plus branch-target resolution. The decoder never returns a
// Go error — a byte sequence it cannot make sense of becomes part of an
// ir.UnknownSpan instead, recovered one byte at a time by the caller.
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/acrajesh/reverse-asm/internal/ir"
)

// Options controls decoding behavior.
type Options struct {
	BaseAddr uint64 // address of data[0]
}

// DecodeAll decodes a byte region into instructions and the unknown
// spans it could not resolve. It always consumes the whole of data: a
// decode miss advances by one byte and is folded into the current
// unknown span, so byte accounting stays total.
func DecodeAll(data []byte, opts Options) ([]ir.Instruction, []ir.UnknownSpan) {
	var insts []ir.Instruction
	var spans []ir.UnknownSpan

	offset := 0
	addr := opts.BaseAddr
	var unknownStart uint64
	var unknownBytes []byte
	inUnknown := false

	flush := func(end uint64) {
		if inUnknown {
			spans = append(spans, ir.UnknownSpan{Start: unknownStart, End: end, Bytes: unknownBytes})
			inUnknown = false
			unknownBytes = nil
		}
	}

	for offset < len(data) {
		inst, n, ok := decodeOne(data[offset:], addr)
		if ok {
			flush(addr)
			insts = append(insts, inst)
			offset += n
			addr += uint64(n)
			continue
		}
		if !inUnknown {
			inUnknown = true
			unknownStart = addr
		}
		unknownBytes = append(unknownBytes, data[offset])
		offset++
		addr++
	}
	flush(addr)

	return insts, spans
}

// decodeOne decodes a single instruction at the front of data, whose
// first byte is at absolute address addr. Returns ok=false if there are
// not enough bytes left for the opcode's required length.
func decodeOne(data []byte, addr uint64) (ir.Instruction, int, bool) {
	if len(data) == 0 {
		return ir.Instruction{}, 0, false
	}
	opcode := data[0]
	n := lengthOf(opcode)
	if n > len(data) {
		return ir.Instruction{}, 0, false
	}

	raw := append([]byte(nil), data[:n]...)
	mnemonic, operands, format := decodeDetails(raw)
	if mnemonic == "UNKNOWN" {
		return ir.Instruction{}, 0, false
	}
	if format == ir.FormatRI || format == ir.FormatRIL {
		if target, resolved := branchTarget(raw, addr, format); resolved {
			for k := range operands {
				if operands[k].Kind == ir.OperandPCRelative {
					operands[k].Target = target
				}
			}
		}
	}

	inst := ir.Instruction{
		Address:    addr,
		RawBytes:   raw,
		Mnemonic:   mnemonic,
		Operands:   operands,
		Format:     format,
		IsBranch:   isBranch(mnemonic, operands),
		IsCall:     callMnemonics[mnemonic],
		Confidence: ir.High,
	}
	inst.IsReturn = isReturn(mnemonic, operands)
	if inst.IsBranch {
		if target, resolved := branchTarget(raw, addr, format); resolved {
			inst.BranchTarget = target
			inst.HasTarget = true
		}
	}
	return inst, n, true
}

func decodeDetails(raw []byte) (string, []ir.Operand, ir.InstructionFormat) {
	opcode := raw[0]
	length := len(raw)

	switch length {
	case 2:
		return decodeRR(raw)
	case 4:
		switch {
		case isRIOpcode(opcode):
			return decodeRI(raw)
		case isSIOpcode(opcode):
			return decodeSI(raw)
		case isRREOpcode(opcode):
			return decodeRRE(raw)
		case isRSOpcode(opcode):
			return decodeRS(raw)
		default:
			return decodeRX(raw)
		}
	case 6:
		switch {
		case isSSOpcode(opcode):
			return decodeSS(raw)
		case isRILOpcode(opcode):
			return decodeRIL(raw)
		case isRXYOpcode(opcode):
			return decodeRXY(raw)
		default:
			return "UNKNOWN", nil, ir.FormatUnknown
		}
	}
	return "UNKNOWN", nil, ir.FormatUnknown
}

func decodeRR(raw []byte) (string, []ir.Operand, ir.InstructionFormat) {
	opcode := raw[0]
	mn, ok := mnemonics[opcode]
	if !ok {
		return "UNKNOWN", nil, ir.FormatRR
	}
	r1 := int(raw[1]>>4) & 0xF
	r2 := int(raw[1]) & 0xF
	ops := []ir.Operand{
		{Kind: ir.OperandRegister, Reg: r1},
		{Kind: ir.OperandRegister, Reg: r2},
	}
	return mn, ops, ir.FormatRR
}

func decodeSI(raw []byte) (string, []ir.Operand, ir.InstructionFormat) {
	opcode := raw[0]
	mn, ok := mnemonics[opcode]
	if !ok {
		return "UNKNOWN", nil, ir.FormatSI
	}
	i2 := raw[1]
	b1 := int(raw[2]>>4) & 0xF
	d1 := (int32(raw[2]&0xF) << 8) | int32(raw[3])
	ops := []ir.Operand{
		{Kind: ir.OperandImmediate, Imm: int64(i2)},
		{Kind: ir.OperandBaseDisp, Base: b1, Disp: d1},
	}
	return mn, ops, ir.FormatSI
}

func decodeRS(raw []byte) (string, []ir.Operand, ir.InstructionFormat) {
	opcode := raw[0]
	mn, ok := mnemonics[opcode]
	if !ok {
		return "UNKNOWN", nil, ir.FormatRS
	}
	r1 := int(raw[1]>>4) & 0xF
	r3 := int(raw[1]) & 0xF
	b2 := int(raw[2]>>4) & 0xF
	d2 := (int32(raw[2]&0xF) << 8) | int32(raw[3])
	ops := []ir.Operand{
		{Kind: ir.OperandRegister, Reg: r1},
		{Kind: ir.OperandRegister, Reg: r3},
		{Kind: ir.OperandBaseDisp, Base: b2, Disp: d2},
	}
	return mn, ops, ir.FormatRS
}

func decodeRX(raw []byte) (string, []ir.Operand, ir.InstructionFormat) {
	opcode := raw[0]
	mn, ok := mnemonics[opcode]
	if !ok {
		return "UNKNOWN", nil, ir.FormatRX
	}
	r1 := int(raw[1]>>4) & 0xF
	x2 := int(raw[1]) & 0xF
	b2 := int(raw[2]>>4) & 0xF
	d2 := (int32(raw[2]&0xF) << 8) | int32(raw[3])
	ops := []ir.Operand{
		{Kind: ir.OperandRegister, Reg: r1},
		{Kind: ir.OperandBaseIndexDisp, Base: b2, Idx: x2, Disp: d2},
	}
	return mn, ops, ir.FormatRX
}

func decodeRRE(raw []byte) (string, []ir.Operand, ir.InstructionFormat) {
	opcode := raw[0]
	key := [2]byte{opcode, raw[1]}
	mn, ok := rxyMnemonics[key]
	if !ok {
		mn = "UNKNOWN"
	}
	r1 := int(raw[3]>>4) & 0xF
	r2 := int(raw[3]) & 0xF
	ops := []ir.Operand{
		{Kind: ir.OperandRegister, Reg: r1},
		{Kind: ir.OperandRegister, Reg: r2},
	}
	return mn, ops, ir.FormatRRE
}

func decodeSS(raw []byte) (string, []ir.Operand, ir.InstructionFormat) {
	opcode := raw[0]
	mn, ok := mnemonics[opcode]
	if !ok {
		return "UNKNOWN", nil, ir.FormatSS
	}
	ll := int(raw[1])
	b1 := int(raw[2]>>4) & 0xF
	d1 := (int32(raw[2]&0xF) << 8) | int32(raw[3])
	b2 := int(raw[4]>>4) & 0xF
	d2 := (int32(raw[4]&0xF) << 8) | int32(raw[5])
	ops := []ir.Operand{
		{Kind: ir.OperandBaseDisp, Base: b1, Disp: d1, Len: ll},
		{Kind: ir.OperandBaseDisp, Base: b2, Disp: d2},
	}
	return mn, ops, ir.FormatSS
}

// decodeRI decodes the RI-format opcode 0xA7 family: a one-byte opcode,
// an R1/extended-opcode byte, and a 2-byte signed halfword that is a
// relative target (BRC/BRAS), mirroring decodeRIL's wider RIL encoding.
func decodeRI(raw []byte) (string, []ir.Operand, ir.InstructionFormat) {
	opcode := raw[0]
	if opcode != 0xA7 {
		return "UNKNOWN", nil, ir.FormatRI
	}
	r1 := int(raw[1]>>4) & 0xF
	mn, ok := riMnemonics[raw[1]&0xF]
	if !ok {
		return "UNKNOWN", nil, ir.FormatRI
	}
	i2 := int32(int16(binary.BigEndian.Uint16(raw[2:4])))
	ops := []ir.Operand{
		{Kind: ir.OperandRegister, Reg: r1},
		{Kind: ir.OperandPCRelative, Target: 0, Raw: fmt.Sprintf("%d", i2)},
	}
	return mn, ops, ir.FormatRI
}

func decodeRIL(raw []byte) (string, []ir.Operand, ir.InstructionFormat) {
	opcode := raw[0]
	key := [2]byte{opcode, raw[1] & 0x0F}
	mn, ok := rxyMnemonics[key]
	if !ok {
		mn = "UNKNOWN"
	}
	r1 := int(raw[1]>>4) & 0xF
	i2 := int32(binary.BigEndian.Uint32(raw[2:6]))
	ops := []ir.Operand{
		{Kind: ir.OperandRegister, Reg: r1},
		{Kind: ir.OperandPCRelative, Target: 0, Raw: fmt.Sprintf("%d", i2)},
	}
	return mn, ops, ir.FormatRIL
}

func decodeRXY(raw []byte) (string, []ir.Operand, ir.InstructionFormat) {
	opcode := raw[0]
	key := [2]byte{opcode, raw[5]}
	mn, ok := rxyMnemonics[key]
	if !ok {
		mn = "UNKNOWN"
	}
	r1 := int(raw[1]>>4) & 0xF
	x2 := int(raw[1]) & 0xF
	b2 := int(raw[2]>>4) & 0xF
	dl2 := int32(raw[2]&0xF)<<8 | int32(raw[3])
	dh2 := int32(raw[4])
	disp := dh2<<12 | dl2
	if disp&0x80000 != 0 {
		disp |= ^int32(0xFFFFF)
	}
	fmtKind := ir.FormatRXY
	if opcode == 0xEB {
		fmtKind = ir.FormatRSY
	}
	ops := []ir.Operand{
		{Kind: ir.OperandRegister, Reg: r1},
		{Kind: ir.OperandBaseIndexDisp, Base: b2, Idx: x2, Disp: disp},
	}
	return mn, ops, fmtKind
}

// branchTarget resolves an absolute branch target where the encoding
// makes that possible: RX-format branches with a zero base register
// (treated as an absolute displacement) and RI/RIL-format relative
// branches (BRC/BRAS/BRASL/BRCL), whose signed immediate is a halfword
// count from the instruction's own address. Base-register-relative
// RX/RS branches cannot be resolved without runtime register state and
// return false.
func branchTarget(raw []byte, addr uint64, format ir.InstructionFormat) (uint64, bool) {
	switch format {
	case ir.FormatRX:
		b2 := int(raw[2]>>4) & 0xF
		d2 := (int32(raw[2]&0xF) << 8) | int32(raw[3])
		if b2 == 0 {
			return uint64(d2), true
		}
		return 0, false
	case ir.FormatRI:
		off := int32(int16(binary.BigEndian.Uint16(raw[2:4])))
		return uint64(int64(addr) + int64(off)*2), true
	case ir.FormatRIL:
		off := int32(binary.BigEndian.Uint32(raw[2:6]))
		return uint64(int64(addr) + int64(off)*2), true
	default:
		return 0, false
	}
}
