package bytecode

import (
	"fmt"
	"strings"
)

// ConstantNamer renders a constant-pool index for listings. It may be nil.
type ConstantNamer func(index uint16) string

// Disassemble returns a human-readable listing of code, one instruction per
// line prefixed by its offset.
func Disassemble(code []byte, names ConstantNamer) string {
	var sb strings.Builder
	for pc := 0; pc < len(code); {
		n, err := InstructionLen(code, pc)
		if err != nil {
			sb.WriteString(fmt.Sprintf("%5d: ; %v\n", pc, err))
			break
		}
		sb.WriteString(fmt.Sprintf("%5d: %s\n", pc, formatInstruction(code, pc, names)))
		pc += n
	}
	return sb.String()
}

func formatInstruction(code []byte, pc int, names ConstantNamer) string {
	op := Opcode(code[pc])
	name := op.String()
	cp := func(idx uint16) string {
		if names != nil {
			return fmt.Sprintf("#%d // %s", idx, names(idx))
		}
		return fmt.Sprintf("#%d", idx)
	}

	switch {
	case op == OpBipush:
		return fmt.Sprintf("%s %d", name, int8(code[pc+1]))
	case op == OpSipush:
		return fmt.Sprintf("%s %d", name, int16(ReadU16(code, pc+1)))
	case op == OpLdc:
		return fmt.Sprintf("%s %s", name, cp(uint16(code[pc+1])))
	case op == OpNewarray:
		return fmt.Sprintf("%s %s", name, ArrayTypeName(code[pc+1]))
	case op == OpIinc:
		return fmt.Sprintf("%s %d %d", name, code[pc+1], int8(code[pc+2]))
	case op == OpMultianewarray:
		return fmt.Sprintf("%s %s dims=%d", name, cp(ReadU16(code, pc+1)), code[pc+3])
	case op == OpInvokeinterface:
		return fmt.Sprintf("%s %s count=%d", name, cp(ReadU16(code, pc+1)), code[pc+3])
	case op.IsBranch():
		return fmt.Sprintf("%s %d", name, pc+int(int16(ReadU16(code, pc+1))))
	case op == OpGotoW || op == OpJsrW:
		return fmt.Sprintf("%s %d", name, pc+int(int32(ReadU32(code, pc+1))))
	case op == OpWide:
		inner := Opcode(code[pc+1])
		idx := ReadU16(code, pc+2)
		if inner == OpIinc {
			return fmt.Sprintf("wide %s %d %d", inner, idx, int16(ReadU16(code, pc+4)))
		}
		return fmt.Sprintf("wide %s %d", inner, idx)
	case op == OpTableswitch:
		base := SwitchBase(pc)
		def := int32(ReadU32(code, base))
		lo := int32(ReadU32(code, base+4))
		hi := int32(ReadU32(code, base+8))
		var parts []string
		for k := lo; k <= hi; k++ {
			off := int32(ReadU32(code, base+12+4*int(k-lo)))
			parts = append(parts, fmt.Sprintf("%d:%d", k, pc+int(off)))
		}
		return fmt.Sprintf("%s {%s default:%d}", name, strings.Join(parts, " "), pc+int(def))
	case op == OpLookupswitch:
		base := SwitchBase(pc)
		def := int32(ReadU32(code, base))
		npairs := int(int32(ReadU32(code, base+4)))
		var parts []string
		for k := 0; k < npairs; k++ {
			match := int32(ReadU32(code, base+8+8*k))
			off := int32(ReadU32(code, base+12+8*k))
			parts = append(parts, fmt.Sprintf("%d:%d", match, pc+int(off)))
		}
		return fmt.Sprintf("%s {%s default:%d}", name, strings.Join(parts, " "), pc+int(def))
	}

	switch op.OperandLen() {
	case 1:
		return fmt.Sprintf("%s %d", name, code[pc+1])
	case 2:
		return fmt.Sprintf("%s %s", name, cp(ReadU16(code, pc+1)))
	case 4:
		return fmt.Sprintf("%s %s", name, cp(ReadU16(code, pc+1)))
	}
	return name
}

// ArrayTypeName returns the primitive type name for a newarray type code.
func ArrayTypeName(atype byte) string {
	switch atype {
	case ATBoolean:
		return "boolean"
	case ATChar:
		return "char"
	case ATFloat:
		return "float"
	case ATDouble:
		return "double"
	case ATByte:
		return "byte"
	case ATShort:
		return "short"
	case ATInt:
		return "int"
	case ATLong:
		return "long"
	}
	return fmt.Sprintf("atype(%d)", atype)
}

// ArrayTypeCode is the inverse of ArrayTypeName.
func ArrayTypeCode(name string) (byte, bool) {
	for code := ATBoolean; code <= ATLong; code++ {
		if ArrayTypeName(code) == name {
			return code, true
		}
	}
	return 0, false
}
