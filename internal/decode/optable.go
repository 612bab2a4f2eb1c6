package decode

import "github.com/acrajesh/reverse-asm/internal/ir"

// mnemonics maps an opcode's first byte to its mnemonic for the subset of
// z/Architecture instructions this decoder recognizes. An opcode not
// present here yields no instruction: decodeOne rejects it and DecodeAll
// folds its first byte into an unknown span and resynchronizes one byte
// later.
var mnemonics = map[byte]string{
	0x05: "BALR", 0x0D: "BASR", 0x07: "BCR", 0x47: "BC",
	0x18: "LR", 0x58: "L", 0x50: "ST", 0x90: "STM", 0x98: "LM",
	0x41: "LA", 0x1A: "AR", 0x5A: "A", 0x1B: "SR", 0x5B: "S",
	0x12: "LTR", 0x55: "CL", 0x95: "CLI", 0x15: "CLR",
	0x19: "CR", 0x59: "C", 0x89: "SLL", 0x88: "SRL",
	0x13: "LCR", 0x11: "LNR", 0x10: "LPR", 0x14: "NR",
	0x16: "OR", 0x17: "XR", 0x54: "N", 0x56: "O", 0x57: "X",
	0x96: "OI", 0x94: "NI", 0x97: "XI", 0x92: "MVI",
	0x43: "IC", 0x42: "STC", 0x44: "EX", 0x45: "BAL",
	0x46: "BCT", 0x8E: "SRDA", 0x8C: "SRDL", 0x8D: "SLDA",
	0x86: "BXH", 0x87: "BXLE", 0xD2: "MVC", 0xD5: "CLC",
	0xDC: "TR", 0xDD: "TRT", 0xD1: "MVN", 0xD3: "MVZ",
	0xF1: "MVO", 0xF2: "PACK", 0xF3: "UNPK", 0xD7: "XC",
	0xD6: "OC", 0xD4: "NC", 0xD9: "MVCK", 0xDA: "MVCP",
	0xDB: "MVCS", 0xDE: "ED", 0xDF: "EDMK", 0xFA: "AP",
	0xFB: "SP", 0xF8: "ZAP", 0xF9: "CP", 0xFC: "MP", 0xFD: "DP",
	0x01: "SVC",
	// RRE/RXY/RSY/RIL extended families — mnemonic picked from the
	// second opcode byte where the first byte alone is ambiguous.
	0xB2: "RRE", 0xB3: "RRE", 0xB9: "RRE",
	0xE3: "RXY", 0xEB: "RSY", 0xEC: "RIE", 0xED: "RXE",
	0xC0: "RIL", 0xC2: "RIL", 0xC4: "RIL", 0xC6: "RIL", 0xC8: "RIL",
}

// rxyMnemonics refines the generic "RXY"/"RSY"/"RIL" placeholder above
// using the trailing opcode byte, for the handful of instructions this
// decoder gives a real name instead of a format placeholder.
var rxyMnemonics = map[[2]byte]string{
	{0xE3, 0x04}: "LG",
	{0xE3, 0x24}: "STG",
	{0xE3, 0x14}: "LGF",
	{0xEB, 0x24}: "STMG",
	{0xEB, 0x04}: "LMG",
	{0xC0, 0x00}: "LARL",
	{0xC0, 0x05}: "BRASL",
	{0xC0, 0x04}: "BRCL",
}

// riMnemonics refines the RI-format opcode 0xA7, keyed by the extended
// opcode in the low nibble of the second byte: 0x4 is BRC (branch
// relative on condition), 0x5 is BRAS (branch relative and save).
var riMnemonics = map[byte]string{
	0x4: "BRC",
	0x5: "BRAS",
}

func isRIOpcode(op byte) bool { return op == 0xA7 }

// lengthOf returns an instruction's length in bytes from the top two
// bits of its opcode byte, per the z/Architecture encoding rule: 00 -> 2
// bytes, 01 or 10 -> 4 bytes, 11 -> 6 bytes.
func lengthOf(opcode byte) int {
	switch opcode >> 6 {
	case 0b00:
		return 2
	case 0b11:
		return 6
	default:
		return 4
	}
}

// isSIOpcode and isRSOpcode distinguish the 4-byte SI/RS/RX encodings
// by opcode range.
func isSIOpcode(op byte) bool { return op >= 0x90 && op <= 0x9B }

func isRSOpcode(op byte) bool {
	switch op {
	case 0x88, 0x89, 0x8A, 0x8B, 0x8C, 0x8D, 0x8E, 0x8F, 0x90, 0x98, 0x86, 0x87:
		return true
	}
	return false
}

func isSSOpcode(op byte) bool { return op >= 0xD0 && op <= 0xDF }

func isRILOpcode(op byte) bool {
	switch op {
	case 0xC0, 0xC2, 0xC4, 0xC6, 0xC8:
		return true
	}
	return false
}

func isRREOpcode(op byte) bool {
	switch op {
	case 0xB2, 0xB3, 0xB9:
		return true
	}
	return false
}

func isRXYOpcode(op byte) bool {
	switch op {
	case 0xE3, 0xEB, 0xEC, 0xED:
		return true
	}
	return false
}

var branchMnemonics = map[string]bool{
	"BC": true, "BCR": true, "BAL": true, "BALR": true, "BASR": true,
	"BAS": true, "BXH": true, "BXLE": true, "BCT": true, "BCTR": true,
	"BRASL": true, "BRCL": true, "BRC": true, "BRAS": true,
}

var callMnemonics = map[string]bool{
	"BALR": true, "BASR": true, "BAL": true, "BAS": true, "BRASL": true,
	"BRAS": true,
}

// maskedBranchMnemonics are the mnemonics whose first operand is a
// condition-code mask rather than a register: mask 0 never branches
// (classified sequential, per spec.md:68) and mask 15 always does.
var maskedBranchMnemonics = map[string]bool{
	"BC": true, "BCR": true, "BRC": true,
}

func isUnconditionalBranch(mn string, ops []ir.Operand) bool {
	switch mn {
	case "BR", "B":
		return true
	case "BC", "BCR", "BRC":
		return len(ops) > 0 && ops[0].Kind == ir.OperandRegister && ops[0].Reg == 15
	}
	return false
}

// isBranch reports whether a decoded instruction is a branch. For the
// masked forms (BC/BCR/BRC) a mask of 0 is a no-op and is not a branch;
// isUnconditionalBranch's mask check doubles as the "always branches"
// fast path, with any other non-zero mask treated as conditional.
func isBranch(mn string, ops []ir.Operand) bool {
	if !maskedBranchMnemonics[mn] {
		return branchMnemonics[mn]
	}
	if isUnconditionalBranch(mn, ops) {
		return true
	}
	return len(ops) > 0 && ops[0].Kind == ir.OperandRegister && ops[0].Reg != 0
}

func isReturn(mn string, ops []ir.Operand) bool {
	if mn == "BCR" && len(ops) >= 2 && ops[0].Reg == 15 && ops[1].Reg == 14 {
		return true
	}
	if mn == "BR" && len(ops) >= 1 && ops[0].Reg == 14 {
		return true
	}
	return false
}
