package vm

import (
	"fmt"

	"github.com/chazu/javelin/classfile"
	"github.com/chazu/javelin/pkg/bytecode"
)

// Verifier checks a linked class before any of its code may run. An error
// is reported as VerifyError and the class is not defined.
type Verifier interface {
	Verify(c *Class) error
}

// StructuralVerifier checks instruction boundaries, branch targets,
// constant pool and local variable indices, and exception ranges. It does
// not infer operand types.
type StructuralVerifier struct{}

func (StructuralVerifier) Verify(c *Class) error {
	for _, m := range c.LocalMethods {
		if err := verifyMethod(c, m); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrVerify, m, err)
		}
	}
	return nil
}

func verifyMethod(c *Class, m *Method) error {
	switch {
	case m.Builtin != nil:
		return nil
	case m.IsAbstract() || m.IsNative():
		if m.Code != nil {
			return fmt.Errorf("abstract or native method has code")
		}
		return nil
	case m.Code == nil:
		return fmt.Errorf("missing code")
	}

	code := m.Code.Bytes
	if len(code) == 0 {
		return fmt.Errorf("empty code")
	}
	if int(m.Code.MaxLocals) < m.StackConsume {
		return fmt.Errorf("max_locals %d below argument size %d", m.Code.MaxLocals, m.StackConsume)
	}

	starts := make([]bool, len(code)+1)
	var targets []int
	for pc := 0; pc < len(code); {
		n, err := bytecode.InstructionLen(code, pc)
		if err != nil {
			return err
		}
		starts[pc] = true
		t, err := checkInstruction(c, m, code, pc)
		if err != nil {
			return fmt.Errorf("pc %d: %w", pc, err)
		}
		targets = append(targets, t...)
		pc += n
	}
	starts[len(code)] = true

	for _, t := range targets {
		if t < 0 || t >= len(code) || !starts[t] {
			return fmt.Errorf("branch target %d is not an instruction", t)
		}
	}
	for _, ex := range m.Code.Exceptions {
		if !starts[ex.StartPC] || !starts[ex.EndPC] || !starts[ex.HandlerPC] {
			return fmt.Errorf("exception range [%d,%d)->%d off instruction boundary", ex.StartPC, ex.EndPC, ex.HandlerPC)
		}
	}
	return nil
}

// checkInstruction validates operands and returns the branch targets of the
// instruction at pc.
func checkInstruction(c *Class, m *Method, code []byte, pc int) ([]int, error) {
	op := bytecode.Opcode(code[pc])
	maxLocals := int(m.Code.MaxLocals)
	local := func(idx, width int) error {
		if idx+width > maxLocals {
			return fmt.Errorf("%s local %d outside max_locals %d", op, idx, maxLocals)
		}
		return nil
	}
	pool := func(idx int, tags ...classfile.ConstantTag) error {
		k, err := c.File.Constant(idx)
		if err != nil {
			return err
		}
		for _, t := range tags {
			if k.Tag == t {
				return nil
			}
		}
		return fmt.Errorf("%s constant %d is %s", op, idx, k.Tag)
	}

	switch {
	case op.IsBranch():
		return []int{pc + int(int16(bytecode.ReadU16(code, pc+1)))}, nil
	case op == bytecode.OpGotoW || op == bytecode.OpJsrW:
		return []int{pc + int(int32(bytecode.ReadU32(code, pc+1)))}, nil
	}

	switch op {
	case bytecode.OpIload, bytecode.OpFload, bytecode.OpAload, bytecode.OpIstore,
		bytecode.OpFstore, bytecode.OpAstore, bytecode.OpRet, bytecode.OpIinc:
		return nil, local(int(code[pc+1]), 1)
	case bytecode.OpLload, bytecode.OpDload, bytecode.OpLstore, bytecode.OpDstore:
		return nil, local(int(code[pc+1]), 2)
	case bytecode.OpWide:
		inner := bytecode.Opcode(code[pc+1])
		width := 1
		if inner == bytecode.OpLload || inner == bytecode.OpDload || inner == bytecode.OpLstore || inner == bytecode.OpDstore {
			width = 2
		}
		return nil, local(int(bytecode.ReadU16(code, pc+2)), width)
	case bytecode.OpLdc:
		return nil, pool(int(code[pc+1]), classfile.TagInteger, classfile.TagFloat, classfile.TagString, classfile.TagClass)
	case bytecode.OpLdcW:
		return nil, pool(int(bytecode.ReadU16(code, pc+1)), classfile.TagInteger, classfile.TagFloat, classfile.TagString, classfile.TagClass)
	case bytecode.OpLdc2W:
		return nil, pool(int(bytecode.ReadU16(code, pc+1)), classfile.TagLong, classfile.TagDouble)
	case bytecode.OpGetstatic, bytecode.OpPutstatic, bytecode.OpGetfield, bytecode.OpPutfield:
		return nil, pool(int(bytecode.ReadU16(code, pc+1)), classfile.TagFieldref)
	case bytecode.OpInvokevirtual, bytecode.OpInvokespecial, bytecode.OpInvokestatic:
		return nil, pool(int(bytecode.ReadU16(code, pc+1)), classfile.TagMethodref, classfile.TagInterfaceMethodref)
	case bytecode.OpInvokeinterface:
		return nil, pool(int(bytecode.ReadU16(code, pc+1)), classfile.TagInterfaceMethodref)
	case bytecode.OpInvokedynamic:
		return nil, pool(int(bytecode.ReadU16(code, pc+1)), classfile.TagNameAndType)
	case bytecode.OpNew, bytecode.OpAnewarray, bytecode.OpCheckcast, bytecode.OpInstanceof, bytecode.OpMultianewarray:
		if err := pool(int(bytecode.ReadU16(code, pc+1)), classfile.TagClass); err != nil {
			return nil, err
		}
		if op == bytecode.OpMultianewarray && code[pc+3] == 0 {
			return nil, fmt.Errorf("multianewarray with zero dimensions")
		}
		return nil, nil
	case bytecode.OpNewarray:
		if code[pc+1] < bytecode.ATBoolean || code[pc+1] > bytecode.ATLong {
			return nil, fmt.Errorf("bad newarray type %d", code[pc+1])
		}
		return nil, nil
	case bytecode.OpTableswitch:
		base := bytecode.SwitchBase(pc)
		lo := int32(bytecode.ReadU32(code, base+4))
		hi := int32(bytecode.ReadU32(code, base+8))
		targets := []int{pc + int(int32(bytecode.ReadU32(code, base)))}
		for k := 0; k <= int(hi-lo); k++ {
			targets = append(targets, pc+int(int32(bytecode.ReadU32(code, base+12+4*k))))
		}
		return targets, nil
	case bytecode.OpLookupswitch:
		base := bytecode.SwitchBase(pc)
		npairs := int(int32(bytecode.ReadU32(code, base+4)))
		targets := []int{pc + int(int32(bytecode.ReadU32(code, base)))}
		for k := 0; k < npairs; k++ {
			if k > 0 && int32(bytecode.ReadU32(code, base+8+8*k)) <= int32(bytecode.ReadU32(code, base+8*k)) {
				return nil, fmt.Errorf("lookupswitch keys not ascending")
			}
			targets = append(targets, pc+int(int32(bytecode.ReadU32(code, base+12+8*k))))
		}
		return targets, nil
	}

	switch {
	case op >= bytecode.OpIload0 && op <= bytecode.OpAload3:
		n := int(op-bytecode.OpIload0) % 4
		width := 1
		if (op >= bytecode.OpLload0 && op <= bytecode.OpLload3) || (op >= bytecode.OpDload0 && op <= bytecode.OpDload3) {
			width = 2
		}
		return nil, local(n, width)
	case op >= bytecode.OpIstore0 && op <= bytecode.OpAstore3:
		n := int(op-bytecode.OpIstore0) % 4
		width := 1
		if (op >= bytecode.OpLstore0 && op <= bytecode.OpLstore3) || (op >= bytecode.OpDstore0 && op <= bytecode.OpDstore3) {
			width = 2
		}
		return nil, local(n, width)
	case op == bytecode.OpBreakpoint:
		return nil, fmt.Errorf("reserved opcode %s", op)
	}
	return nil, nil
}
