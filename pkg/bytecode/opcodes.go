package bytecode

import "fmt"

// Opcode represents a single bytecode instruction.
// Values match the class-file instruction set exactly so that code produced
// by any standard compiler can be executed unchanged.
type Opcode byte

const (
	// ========================================================================
	// Constants (0x00-0x14)
	// ========================================================================

	OpNop         Opcode = 0x00
	OpAconstNull  Opcode = 0x01
	OpIconstM1    Opcode = 0x02
	OpIconst0     Opcode = 0x03
	OpIconst1     Opcode = 0x04
	OpIconst2     Opcode = 0x05
	OpIconst3     Opcode = 0x06
	OpIconst4     Opcode = 0x07
	OpIconst5     Opcode = 0x08
	OpLconst0     Opcode = 0x09
	OpLconst1     Opcode = 0x0A
	OpFconst0     Opcode = 0x0B
	OpFconst1     Opcode = 0x0C
	OpFconst2     Opcode = 0x0D
	OpDconst0     Opcode = 0x0E
	OpDconst1     Opcode = 0x0F
	OpBipush      Opcode = 0x10 // <byte:s8>
	OpSipush      Opcode = 0x11 // <short:s16>
	OpLdc         Opcode = 0x12 // <index:u8>
	OpLdcW        Opcode = 0x13 // <index:u16>
	OpLdc2W       Opcode = 0x14 // <index:u16>

	// ========================================================================
	// Loads (0x15-0x35)
	// ========================================================================

	OpIload   Opcode = 0x15 // <local:u8>
	OpLload   Opcode = 0x16
	OpFload   Opcode = 0x17
	OpDload   Opcode = 0x18
	OpAload   Opcode = 0x19
	OpIload0  Opcode = 0x1A
	OpIload1  Opcode = 0x1B
	OpIload2  Opcode = 0x1C
	OpIload3  Opcode = 0x1D
	OpLload0  Opcode = 0x1E
	OpLload1  Opcode = 0x1F
	OpLload2  Opcode = 0x20
	OpLload3  Opcode = 0x21
	OpFload0  Opcode = 0x22
	OpFload1  Opcode = 0x23
	OpFload2  Opcode = 0x24
	OpFload3  Opcode = 0x25
	OpDload0  Opcode = 0x26
	OpDload1  Opcode = 0x27
	OpDload2  Opcode = 0x28
	OpDload3  Opcode = 0x29
	OpAload0  Opcode = 0x2A
	OpAload1  Opcode = 0x2B
	OpAload2  Opcode = 0x2C
	OpAload3  Opcode = 0x2D
	OpIaload  Opcode = 0x2E
	OpLaload  Opcode = 0x2F
	OpFaload  Opcode = 0x30
	OpDaload  Opcode = 0x31
	OpAaload  Opcode = 0x32
	OpBaload  Opcode = 0x33
	OpCaload  Opcode = 0x34
	OpSaload  Opcode = 0x35

	// ========================================================================
	// Stores (0x36-0x56)
	// ========================================================================

	OpIstore  Opcode = 0x36 // <local:u8>
	OpLstore  Opcode = 0x37
	OpFstore  Opcode = 0x38
	OpDstore  Opcode = 0x39
	OpAstore  Opcode = 0x3A
	OpIstore0 Opcode = 0x3B
	OpIstore1 Opcode = 0x3C
	OpIstore2 Opcode = 0x3D
	OpIstore3 Opcode = 0x3E
	OpLstore0 Opcode = 0x3F
	OpLstore1 Opcode = 0x40
	OpLstore2 Opcode = 0x41
	OpLstore3 Opcode = 0x42
	OpFstore0 Opcode = 0x43
	OpFstore1 Opcode = 0x44
	OpFstore2 Opcode = 0x45
	OpFstore3 Opcode = 0x46
	OpDstore0 Opcode = 0x47
	OpDstore1 Opcode = 0x48
	OpDstore2 Opcode = 0x49
	OpDstore3 Opcode = 0x4A
	OpAstore0 Opcode = 0x4B
	OpAstore1 Opcode = 0x4C
	OpAstore2 Opcode = 0x4D
	OpAstore3 Opcode = 0x4E
	OpIastore Opcode = 0x4F
	OpLastore Opcode = 0x50
	OpFastore Opcode = 0x51
	OpDastore Opcode = 0x52
	OpAastore Opcode = 0x53
	OpBastore Opcode = 0x54
	OpCastore Opcode = 0x55
	OpSastore Opcode = 0x56

	// ========================================================================
	// Stack (0x57-0x5F)
	// ========================================================================

	OpPop    Opcode = 0x57
	OpPop2   Opcode = 0x58
	OpDup    Opcode = 0x59
	OpDupX1  Opcode = 0x5A
	OpDupX2  Opcode = 0x5B
	OpDup2   Opcode = 0x5C
	OpDup2X1 Opcode = 0x5D
	OpDup2X2 Opcode = 0x5E
	OpSwap   Opcode = 0x5F

	// ========================================================================
	// Math (0x60-0x84)
	// ========================================================================

	OpIadd  Opcode = 0x60
	OpLadd  Opcode = 0x61
	OpFadd  Opcode = 0x62
	OpDadd  Opcode = 0x63
	OpIsub  Opcode = 0x64
	OpLsub  Opcode = 0x65
	OpFsub  Opcode = 0x66
	OpDsub  Opcode = 0x67
	OpImul  Opcode = 0x68
	OpLmul  Opcode = 0x69
	OpFmul  Opcode = 0x6A
	OpDmul  Opcode = 0x6B
	OpIdiv  Opcode = 0x6C
	OpLdiv  Opcode = 0x6D
	OpFdiv  Opcode = 0x6E
	OpDdiv  Opcode = 0x6F
	OpIrem  Opcode = 0x70
	OpLrem  Opcode = 0x71
	OpFrem  Opcode = 0x72
	OpDrem  Opcode = 0x73
	OpIneg  Opcode = 0x74
	OpLneg  Opcode = 0x75
	OpFneg  Opcode = 0x76
	OpDneg  Opcode = 0x77
	OpIshl  Opcode = 0x78
	OpLshl  Opcode = 0x79
	OpIshr  Opcode = 0x7A
	OpLshr  Opcode = 0x7B
	OpIushr Opcode = 0x7C
	OpLushr Opcode = 0x7D
	OpIand  Opcode = 0x7E
	OpLand  Opcode = 0x7F
	OpIor   Opcode = 0x80
	OpLor   Opcode = 0x81
	OpIxor  Opcode = 0x82
	OpLxor  Opcode = 0x83
	OpIinc  Opcode = 0x84 // <local:u8> <delta:s8>

	// ========================================================================
	// Conversions (0x85-0x93)
	// ========================================================================

	OpI2l Opcode = 0x85
	OpI2f Opcode = 0x86
	OpI2d Opcode = 0x87
	OpL2i Opcode = 0x88
	OpL2f Opcode = 0x89
	OpL2d Opcode = 0x8A
	OpF2i Opcode = 0x8B
	OpF2l Opcode = 0x8C
	OpF2d Opcode = 0x8D
	OpD2i Opcode = 0x8E
	OpD2l Opcode = 0x8F
	OpD2f Opcode = 0x90
	OpI2b Opcode = 0x91
	OpI2c Opcode = 0x92
	OpI2s Opcode = 0x93

	// ========================================================================
	// Comparisons (0x94-0xA6)
	// ========================================================================

	OpLcmp     Opcode = 0x94
	OpFcmpl    Opcode = 0x95
	OpFcmpg    Opcode = 0x96
	OpDcmpl    Opcode = 0x97
	OpDcmpg    Opcode = 0x98
	OpIfeq     Opcode = 0x99 // <offset:s16>
	OpIfne     Opcode = 0x9A
	OpIflt     Opcode = 0x9B
	OpIfge     Opcode = 0x9C
	OpIfgt     Opcode = 0x9D
	OpIfle     Opcode = 0x9E
	OpIfIcmpeq Opcode = 0x9F
	OpIfIcmpne Opcode = 0xA0
	OpIfIcmplt Opcode = 0xA1
	OpIfIcmpge Opcode = 0xA2
	OpIfIcmpgt Opcode = 0xA3
	OpIfIcmple Opcode = 0xA4
	OpIfAcmpeq Opcode = 0xA5
	OpIfAcmpne Opcode = 0xA6

	// ========================================================================
	// Control (0xA7-0xB1)
	// ========================================================================

	OpGoto         Opcode = 0xA7 // <offset:s16>
	OpJsr          Opcode = 0xA8 // <offset:s16>
	OpRet          Opcode = 0xA9 // <local:u8>
	OpTableswitch  Opcode = 0xAA // padded, variable length
	OpLookupswitch Opcode = 0xAB // padded, variable length
	OpIreturn      Opcode = 0xAC
	OpLreturn      Opcode = 0xAD
	OpFreturn      Opcode = 0xAE
	OpDreturn      Opcode = 0xAF
	OpAreturn      Opcode = 0xB0
	OpReturn       Opcode = 0xB1

	// ========================================================================
	// References (0xB2-0xC3)
	// ========================================================================

	OpGetstatic       Opcode = 0xB2 // <index:u16>
	OpPutstatic       Opcode = 0xB3
	OpGetfield        Opcode = 0xB4
	OpPutfield        Opcode = 0xB5
	OpInvokevirtual   Opcode = 0xB6
	OpInvokespecial   Opcode = 0xB7
	OpInvokestatic    Opcode = 0xB8
	OpInvokeinterface Opcode = 0xB9 // <index:u16> <count:u8> <0:u8>
	OpInvokedynamic   Opcode = 0xBA // <index:u16> <0:u8> <0:u8>
	OpNew             Opcode = 0xBB
	OpNewarray        Opcode = 0xBC // <atype:u8>
	OpAnewarray       Opcode = 0xBD
	OpArraylength     Opcode = 0xBE
	OpAthrow          Opcode = 0xBF
	OpCheckcast       Opcode = 0xC0
	OpInstanceof      Opcode = 0xC1
	OpMonitorenter    Opcode = 0xC2
	OpMonitorexit     Opcode = 0xC3

	// ========================================================================
	// Extended (0xC4-0xC9)
	// ========================================================================

	OpWide           Opcode = 0xC4
	OpMultianewarray Opcode = 0xC5 // <index:u16> <dims:u8>
	OpIfnull         Opcode = 0xC6 // <offset:s16>
	OpIfnonnull      Opcode = 0xC7
	OpGotoW          Opcode = 0xC8 // <offset:s32>
	OpJsrW           Opcode = 0xC9

	// ========================================================================
	// Reserved
	// ========================================================================

	OpBreakpoint Opcode = 0xCA
)

// Array type codes used by newarray.
const (
	ATBoolean byte = 4
	ATChar    byte = 5
	ATFloat   byte = 6
	ATDouble  byte = 7
	ATByte    byte = 8
	ATShort   byte = 9
	ATInt     byte = 10
	ATLong    byte = 11
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name       string // mnemonic
	OperandLen int    // operand bytes, -1 when the length depends on the instruction
}

// VariableLength marks instructions whose size is computed from the code.
const VariableLength = -1

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpNop: {"nop", 0}, OpAconstNull: {"aconst_null", 0},
	OpIconstM1: {"iconst_m1", 0}, OpIconst0: {"iconst_0", 0}, OpIconst1: {"iconst_1", 0},
	OpIconst2: {"iconst_2", 0}, OpIconst3: {"iconst_3", 0}, OpIconst4: {"iconst_4", 0},
	OpIconst5: {"iconst_5", 0}, OpLconst0: {"lconst_0", 0}, OpLconst1: {"lconst_1", 0},
	OpFconst0: {"fconst_0", 0}, OpFconst1: {"fconst_1", 0}, OpFconst2: {"fconst_2", 0},
	OpDconst0: {"dconst_0", 0}, OpDconst1: {"dconst_1", 0},
	OpBipush: {"bipush", 1}, OpSipush: {"sipush", 2},
	OpLdc: {"ldc", 1}, OpLdcW: {"ldc_w", 2}, OpLdc2W: {"ldc2_w", 2},

	OpIload: {"iload", 1}, OpLload: {"lload", 1}, OpFload: {"fload", 1},
	OpDload: {"dload", 1}, OpAload: {"aload", 1},
	OpIload0: {"iload_0", 0}, OpIload1: {"iload_1", 0}, OpIload2: {"iload_2", 0}, OpIload3: {"iload_3", 0},
	OpLload0: {"lload_0", 0}, OpLload1: {"lload_1", 0}, OpLload2: {"lload_2", 0}, OpLload3: {"lload_3", 0},
	OpFload0: {"fload_0", 0}, OpFload1: {"fload_1", 0}, OpFload2: {"fload_2", 0}, OpFload3: {"fload_3", 0},
	OpDload0: {"dload_0", 0}, OpDload1: {"dload_1", 0}, OpDload2: {"dload_2", 0}, OpDload3: {"dload_3", 0},
	OpAload0: {"aload_0", 0}, OpAload1: {"aload_1", 0}, OpAload2: {"aload_2", 0}, OpAload3: {"aload_3", 0},
	OpIaload: {"iaload", 0}, OpLaload: {"laload", 0}, OpFaload: {"faload", 0}, OpDaload: {"daload", 0},
	OpAaload: {"aaload", 0}, OpBaload: {"baload", 0}, OpCaload: {"caload", 0}, OpSaload: {"saload", 0},

	OpIstore: {"istore", 1}, OpLstore: {"lstore", 1}, OpFstore: {"fstore", 1},
	OpDstore: {"dstore", 1}, OpAstore: {"astore", 1},
	OpIstore0: {"istore_0", 0}, OpIstore1: {"istore_1", 0}, OpIstore2: {"istore_2", 0}, OpIstore3: {"istore_3", 0},
	OpLstore0: {"lstore_0", 0}, OpLstore1: {"lstore_1", 0}, OpLstore2: {"lstore_2", 0}, OpLstore3: {"lstore_3", 0},
	OpFstore0: {"fstore_0", 0}, OpFstore1: {"fstore_1", 0}, OpFstore2: {"fstore_2", 0}, OpFstore3: {"fstore_3", 0},
	OpDstore0: {"dstore_0", 0}, OpDstore1: {"dstore_1", 0}, OpDstore2: {"dstore_2", 0}, OpDstore3: {"dstore_3", 0},
	OpAstore0: {"astore_0", 0}, OpAstore1: {"astore_1", 0}, OpAstore2: {"astore_2", 0}, OpAstore3: {"astore_3", 0},
	OpIastore: {"iastore", 0}, OpLastore: {"lastore", 0}, OpFastore: {"fastore", 0}, OpDastore: {"dastore", 0},
	OpAastore: {"aastore", 0}, OpBastore: {"bastore", 0}, OpCastore: {"castore", 0}, OpSastore: {"sastore", 0},

	OpPop: {"pop", 0}, OpPop2: {"pop2", 0}, OpDup: {"dup", 0}, OpDupX1: {"dup_x1", 0},
	OpDupX2: {"dup_x2", 0}, OpDup2: {"dup2", 0}, OpDup2X1: {"dup2_x1", 0}, OpDup2X2: {"dup2_x2", 0},
	OpSwap: {"swap", 0},

	OpIadd: {"iadd", 0}, OpLadd: {"ladd", 0}, OpFadd: {"fadd", 0}, OpDadd: {"dadd", 0},
	OpIsub: {"isub", 0}, OpLsub: {"lsub", 0}, OpFsub: {"fsub", 0}, OpDsub: {"dsub", 0},
	OpImul: {"imul", 0}, OpLmul: {"lmul", 0}, OpFmul: {"fmul", 0}, OpDmul: {"dmul", 0},
	OpIdiv: {"idiv", 0}, OpLdiv: {"ldiv", 0}, OpFdiv: {"fdiv", 0}, OpDdiv: {"ddiv", 0},
	OpIrem: {"irem", 0}, OpLrem: {"lrem", 0}, OpFrem: {"frem", 0}, OpDrem: {"drem", 0},
	OpIneg: {"ineg", 0}, OpLneg: {"lneg", 0}, OpFneg: {"fneg", 0}, OpDneg: {"dneg", 0},
	OpIshl: {"ishl", 0}, OpLshl: {"lshl", 0}, OpIshr: {"ishr", 0}, OpLshr: {"lshr", 0},
	OpIushr: {"iushr", 0}, OpLushr: {"lushr", 0},
	OpIand: {"iand", 0}, OpLand: {"land", 0}, OpIor: {"ior", 0}, OpLor: {"lor", 0},
	OpIxor: {"ixor", 0}, OpLxor: {"lxor", 0}, OpIinc: {"iinc", 2},

	OpI2l: {"i2l", 0}, OpI2f: {"i2f", 0}, OpI2d: {"i2d", 0}, OpL2i: {"l2i", 0},
	OpL2f: {"l2f", 0}, OpL2d: {"l2d", 0}, OpF2i: {"f2i", 0}, OpF2l: {"f2l", 0},
	OpF2d: {"f2d", 0}, OpD2i: {"d2i", 0}, OpD2l: {"d2l", 0}, OpD2f: {"d2f", 0},
	OpI2b: {"i2b", 0}, OpI2c: {"i2c", 0}, OpI2s: {"i2s", 0},

	OpLcmp: {"lcmp", 0}, OpFcmpl: {"fcmpl", 0}, OpFcmpg: {"fcmpg", 0},
	OpDcmpl: {"dcmpl", 0}, OpDcmpg: {"dcmpg", 0},
	OpIfeq: {"ifeq", 2}, OpIfne: {"ifne", 2}, OpIflt: {"iflt", 2},
	OpIfge: {"ifge", 2}, OpIfgt: {"ifgt", 2}, OpIfle: {"ifle", 2},
	OpIfIcmpeq: {"if_icmpeq", 2}, OpIfIcmpne: {"if_icmpne", 2}, OpIfIcmplt: {"if_icmplt", 2},
	OpIfIcmpge: {"if_icmpge", 2}, OpIfIcmpgt: {"if_icmpgt", 2}, OpIfIcmple: {"if_icmple", 2},
	OpIfAcmpeq: {"if_acmpeq", 2}, OpIfAcmpne: {"if_acmpne", 2},

	OpGoto: {"goto", 2}, OpJsr: {"jsr", 2}, OpRet: {"ret", 1},
	OpTableswitch: {"tableswitch", VariableLength}, OpLookupswitch: {"lookupswitch", VariableLength},
	OpIreturn: {"ireturn", 0}, OpLreturn: {"lreturn", 0}, OpFreturn: {"freturn", 0},
	OpDreturn: {"dreturn", 0}, OpAreturn: {"areturn", 0}, OpReturn: {"return", 0},

	OpGetstatic: {"getstatic", 2}, OpPutstatic: {"putstatic", 2},
	OpGetfield: {"getfield", 2}, OpPutfield: {"putfield", 2},
	OpInvokevirtual: {"invokevirtual", 2}, OpInvokespecial: {"invokespecial", 2},
	OpInvokestatic: {"invokestatic", 2}, OpInvokeinterface: {"invokeinterface", 4},
	OpInvokedynamic: {"invokedynamic", 4},
	OpNew: {"new", 2}, OpNewarray: {"newarray", 1}, OpAnewarray: {"anewarray", 2},
	OpArraylength: {"arraylength", 0}, OpAthrow: {"athrow", 0},
	OpCheckcast: {"checkcast", 2}, OpInstanceof: {"instanceof", 2},
	OpMonitorenter: {"monitorenter", 0}, OpMonitorexit: {"monitorexit", 0},

	OpWide: {"wide", VariableLength}, OpMultianewarray: {"multianewarray", 3},
	OpIfnull: {"ifnull", 2}, OpIfnonnull: {"ifnonnull", 2},
	OpGotoW: {"goto_w", 4}, OpJsrW: {"jsr_w", 4},
	OpBreakpoint: {"breakpoint", 0},
}

var opcodesByName map[string]Opcode

func init() {
	opcodesByName = make(map[string]Opcode, len(opcodeInfoTable))
	for op, info := range opcodeInfoTable {
		opcodesByName[info.Name] = op
	}
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns an OpcodeInfo named "unknown(0xNN)" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("unknown(0x%02X)", byte(op))}
}

// Lookup finds an opcode by mnemonic.
func Lookup(name string) (Opcode, bool) {
	op, ok := opcodesByName[name]
	return op, ok
}

// Defined reports whether op is part of the instruction set.
func (op Opcode) Defined() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// String returns the mnemonic of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen
}

// IsBranch returns true for instructions with a relative 16-bit branch target.
func (op Opcode) IsBranch() bool {
	return (op >= OpIfeq && op <= OpJsr) || op == OpIfnull || op == OpIfnonnull
}

// IsReturn returns true if this opcode terminates the current method.
func (op Opcode) IsReturn() bool {
	return op >= OpIreturn && op <= OpReturn
}

// IsInvoke returns true for the method invocation family.
func (op Opcode) IsInvoke() bool {
	return op >= OpInvokevirtual && op <= OpInvokedynamic
}

// AllOpcodes returns a slice of all defined opcodes.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}

// InstructionLen returns the full length of the instruction at pc, including
// the opcode byte. It returns an error for truncated or unknown instructions.
func InstructionLen(code []byte, pc int) (int, error) {
	if pc < 0 || pc >= len(code) {
		return 0, fmt.Errorf("bytecode: pc %d out of range", pc)
	}
	op := Opcode(code[pc])
	info, ok := opcodeInfoTable[op]
	if !ok {
		return 0, fmt.Errorf("bytecode: unknown opcode 0x%02X at %d", byte(op), pc)
	}
	n := 1 + info.OperandLen
	switch op {
	case OpWide:
		if pc+1 >= len(code) {
			return 0, fmt.Errorf("bytecode: truncated wide at %d", pc)
		}
		if Opcode(code[pc+1]) == OpIinc {
			n = 6
		} else {
			n = 4
		}
	case OpTableswitch:
		base := pad(pc)
		if base+12 > len(code) {
			return 0, fmt.Errorf("bytecode: truncated tableswitch at %d", pc)
		}
		lo := int32(ReadU32(code, base+4))
		hi := int32(ReadU32(code, base+8))
		if hi < lo {
			return 0, fmt.Errorf("bytecode: tableswitch low %d > high %d at %d", lo, hi, pc)
		}
		n = base - pc + 12 + 4*int(hi-lo+1)
	case OpLookupswitch:
		base := pad(pc)
		if base+8 > len(code) {
			return 0, fmt.Errorf("bytecode: truncated lookupswitch at %d", pc)
		}
		npairs := int32(ReadU32(code, base+4))
		if npairs < 0 {
			return 0, fmt.Errorf("bytecode: negative lookupswitch count at %d", pc)
		}
		n = base - pc + 8 + 8*int(npairs)
	}
	if pc+n > len(code) {
		return 0, fmt.Errorf("bytecode: truncated %s at %d", op, pc)
	}
	return n, nil
}

// SwitchBase returns the 4-byte aligned offset of the first operand of a
// tableswitch or lookupswitch at pc.
func SwitchBase(pc int) int {
	return pad(pc)
}

func pad(pc int) int {
	return (pc + 4) &^ 3
}

// ReadU16 reads a big-endian uint16 at off.
func ReadU16(code []byte, off int) uint16 {
	return uint16(code[off])<<8 | uint16(code[off+1])
}

// ReadU32 reads a big-endian uint32 at off.
func ReadU32(code []byte, off int) uint32 {
	return uint32(code[off])<<24 | uint32(code[off+1])<<16 | uint32(code[off+2])<<8 | uint32(code[off+3])
}
