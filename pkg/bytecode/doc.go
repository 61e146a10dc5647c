// Package bytecode describes the instruction set executed by the javelin
// interpreter.
//
// Opcode values are the standard class-file values, so code assembled by
// any conforming compiler runs unchanged. The package provides:
//
//   - Opcodes: the full set from nop (0x00) through jsr_w (0xC9) plus
//     breakpoint (0xCA), each with a mnemonic and fixed operand length
//   - Decoding helpers: InstructionLen for variable-length instructions
//     (tableswitch, lookupswitch, wide), SwitchBase for the 4-byte padding
//     rule, and big-endian ReadU16/ReadU32
//   - Disassembly: Disassemble renders a code array one instruction per
//     line, naming constant-pool operands through a caller-supplied
//     ConstantNamer
//
// # Operand Layout
//
// Operands follow the opcode byte in big-endian order. Branch offsets are
// signed and relative to the opcode's own pc. Switch instructions pad to
// a 4-byte boundary measured from the start of the code array, then carry
// a default offset and their match table:
//
//	tableswitch:  default low high offset[high-low+1]
//	lookupswitch: default npairs (match offset)[npairs]
//
// The wide prefix widens the local index of the load, store and ret
// instructions to 16 bits, and for iinc also widens the increment.
//
// Nothing here executes code; see package vm for the interpreter.
package bytecode
