package classfile

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/chazu/javelin/pkg/bytecode"
)

// DefaultMaxStack is used when a method body does not declare its operand
// stack depth.
const DefaultMaxStack = 16

// Assembler turns mnemonic listings into method code. Listings use one
// instruction per line:
//
//	L0:                          ; label
//	iload_0
//	ifeq Done
//	invokestatic demo/Main.f(I)I
//	getfield demo/Point.x I
//	ldc "hello"                  ; String, also: ldc 42, ldc 1.5f, ldc class demo/A
//	ldc2_w 7L                    ; long, ldc2_w 2.5 for double
//	tableswitch 0 A B default=C
//	lookupswitch 3=A 9=B default=C
//	.catch java/lang/Exception Start End Handler   ; or .catch any ...
//	.line 12
//	.limit stack 4
//	.limit locals 3
type Assembler struct {
	Pool *PoolBuilder
}

type asmInsn struct {
	line   int
	pc     int
	op     bytecode.Opcode
	args   []string
	rest   string
	size   int
	wide   bool
	cpIdx  uint16
	intArg int
}

type asmCatch struct {
	class               string
	from, to, handler   string
	line                int
}

// Assemble assembles src. argSlots is the number of local slots taken by
// parameters (including the receiver), used as the floor for MaxLocals.
func (a *Assembler) Assemble(src string, argSlots int) (*Code, error) {
	if a.Pool == nil {
		a.Pool = NewPoolBuilder()
	}
	var (
		insns     []*asmInsn
		labels    = make(map[string]int)
		catches   []asmCatch
		lines     []LineNumber
		maxStack  = -1
		maxLocals = argSlots
		declLocal = -1
		pc        int
	)

	for n, raw := range strings.Split(src, "\n") {
		lineNo := n + 1
		text := strings.TrimSpace(stripComment(raw))
		if text == "" {
			continue
		}
		for {
			colon := strings.IndexByte(text, ':')
			if colon <= 0 || strings.ContainsAny(text[:colon], " \t\"=") {
				break
			}
			label := text[:colon]
			if _, dup := labels[label]; dup {
				return nil, fmt.Errorf("asm line %d: duplicate label %q", lineNo, label)
			}
			labels[label] = pc
			text = strings.TrimSpace(text[colon+1:])
		}
		if text == "" {
			continue
		}

		if strings.HasPrefix(text, ".") {
			fields := strings.Fields(text)
			switch fields[0] {
			case ".line":
				if len(fields) != 2 {
					return nil, fmt.Errorf("asm line %d: .line takes one argument", lineNo)
				}
				v, err := strconv.Atoi(fields[1])
				if err != nil {
					return nil, fmt.Errorf("asm line %d: %w", lineNo, err)
				}
				lines = append(lines, LineNumber{StartPC: uint16(pc), Line: uint16(v)})
			case ".catch":
				if len(fields) != 5 {
					return nil, fmt.Errorf("asm line %d: .catch <class|any> <from> <to> <handler>", lineNo)
				}
				catches = append(catches, asmCatch{fields[1], fields[2], fields[3], fields[4], lineNo})
			case ".limit":
				if len(fields) != 3 {
					return nil, fmt.Errorf("asm line %d: .limit <stack|locals> <n>", lineNo)
				}
				v, err := strconv.Atoi(fields[2])
				if err != nil {
					return nil, fmt.Errorf("asm line %d: %w", lineNo, err)
				}
				switch fields[1] {
				case "stack":
					maxStack = v
				case "locals":
					declLocal = v
				default:
					return nil, fmt.Errorf("asm line %d: unknown limit %q", lineNo, fields[1])
				}
			default:
				return nil, fmt.Errorf("asm line %d: unknown directive %s", lineNo, fields[0])
			}
			continue
		}

		mnemonic, rest := splitMnemonic(text)
		op, ok := bytecode.Lookup(mnemonic)
		if !ok {
			return nil, fmt.Errorf("asm line %d: unknown instruction %q", lineNo, mnemonic)
		}
		in := &asmInsn{line: lineNo, pc: pc, op: op, rest: rest, args: strings.Fields(rest)}
		if err := a.size(in, &maxLocals); err != nil {
			return nil, fmt.Errorf("asm line %d: %w", lineNo, err)
		}
		insns = append(insns, in)
		pc += in.size
	}

	code := make([]byte, 0, pc)
	for _, in := range insns {
		var err error
		code, err = a.emit(code, in, labels)
		if err != nil {
			return nil, fmt.Errorf("asm line %d: %w", in.line, err)
		}
	}

	out := &Code{Bytes: code, Lines: lines}
	for _, c := range catches {
		from, ok1 := labels[c.from]
		to, ok2 := labels[c.to]
		handler, ok3 := labels[c.handler]
		if !ok1 || !ok2 || !ok3 {
			return nil, fmt.Errorf("asm line %d: undefined label in .catch", c.line)
		}
		entry := ExceptionEntry{StartPC: uint16(from), EndPC: uint16(to), HandlerPC: uint16(handler)}
		if c.class != "any" {
			entry.CatchType = a.Pool.Class(c.class)
		}
		out.Exceptions = append(out.Exceptions, entry)
	}
	if maxStack < 0 {
		maxStack = DefaultMaxStack
	}
	if declLocal > maxLocals {
		maxLocals = declLocal
	}
	if maxStack > math.MaxUint16 || maxLocals > math.MaxUint16 {
		return nil, fmt.Errorf("asm: limits out of range")
	}
	out.MaxStack = uint16(maxStack)
	out.MaxLocals = uint16(maxLocals)
	return out, nil
}

// stripComment drops a trailing comment. '#' starts one anywhere outside a
// string; ';' only at line start or after whitespace, since it also ends
// class types in descriptors.
func stripComment(s string) string {
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if inQuote {
				i++
			}
		case '"':
			inQuote = !inQuote
		case '#':
			if !inQuote {
				return s[:i]
			}
		case ';':
			if !inQuote && (i == 0 || s[i-1] == ' ' || s[i-1] == '\t') {
				return s[:i]
			}
		}
	}
	return s
}

func splitMnemonic(text string) (string, string) {
	idx := strings.IndexAny(text, " \t")
	if idx < 0 {
		return text, ""
	}
	return text[:idx], strings.TrimSpace(text[idx+1:])
}

// localOp reports the slot width of a load/store taking an explicit index.
func localOp(op bytecode.Opcode) (width int, ok bool) {
	switch op {
	case bytecode.OpIload, bytecode.OpFload, bytecode.OpAload,
		bytecode.OpIstore, bytecode.OpFstore, bytecode.OpAstore, bytecode.OpRet:
		return 1, true
	case bytecode.OpLload, bytecode.OpDload, bytecode.OpLstore, bytecode.OpDstore:
		return 2, true
	}
	return 0, false
}

// implicitLocal returns the slot and width touched by the _0.._3 forms.
func implicitLocal(op bytecode.Opcode) (slot, width int, ok bool) {
	switch {
	case op >= bytecode.OpIload0 && op <= bytecode.OpAload3:
		n := int(op - bytecode.OpIload0)
		group, slot := n/4, n%4
		if group == 1 || group == 3 {
			return slot, 2, true
		}
		return slot, 1, true
	case op >= bytecode.OpIstore0 && op <= bytecode.OpAstore3:
		n := int(op - bytecode.OpIstore0)
		group, slot := n/4, n%4
		if group == 1 || group == 3 {
			return slot, 2, true
		}
		return slot, 1, true
	}
	return 0, 0, false
}

func (a *Assembler) size(in *asmInsn, maxLocals *int) error {
	touch := func(slot, width int) {
		if slot+width > *maxLocals {
			*maxLocals = slot + width
		}
	}
	if slot, width, ok := implicitLocal(in.op); ok {
		touch(slot, width)
	}
	need := func(n int) error {
		if len(in.args) != n {
			return fmt.Errorf("%s expects %d operand(s), got %d", in.op, n, len(in.args))
		}
		return nil
	}

	switch op := in.op; {
	case op == bytecode.OpLdc || op == bytecode.OpLdcW:
		idx, err := a.ldcConstant(in.rest)
		if err != nil {
			return err
		}
		in.cpIdx = idx
		if op == bytecode.OpLdc && idx > 0xFF {
			in.op = bytecode.OpLdcW
		}
		in.size = 1 + in.op.OperandLen()
		return nil
	case op == bytecode.OpLdc2W:
		idx, err := a.ldc2Constant(in.rest)
		if err != nil {
			return err
		}
		in.cpIdx = idx
		in.size = 3
		return nil
	case op == bytecode.OpIinc:
		if err := need(2); err != nil {
			return err
		}
		slot, err := strconv.Atoi(in.args[0])
		if err != nil {
			return err
		}
		delta, err := strconv.Atoi(in.args[1])
		if err != nil {
			return err
		}
		touch(slot, 1)
		in.intArg = slot
		in.wide = slot > 0xFF || delta < math.MinInt8 || delta > math.MaxInt8
		in.size = 3
		if in.wide {
			in.size = 6
		}
		return nil
	case op == bytecode.OpTableswitch || op == bytecode.OpLookupswitch:
		base := bytecode.SwitchBase(in.pc)
		targets := 0
		for _, arg := range in.args {
			if !strings.HasPrefix(arg, "default=") {
				targets++
			}
		}
		if op == bytecode.OpTableswitch {
			targets-- // the low bound
			if targets < 1 {
				return fmt.Errorf("tableswitch needs a low bound and at least one target")
			}
			in.size = base - in.pc + 12 + 4*targets
		} else {
			in.size = base - in.pc + 8 + 8*targets
		}
		return nil
	case op == bytecode.OpWide:
		return fmt.Errorf("wide is inserted automatically")
	}

	if width, ok := localOp(in.op); ok {
		if err := need(1); err != nil {
			return err
		}
		slot, err := strconv.Atoi(in.args[0])
		if err != nil {
			return err
		}
		if slot < 0 || slot > math.MaxUint16 {
			return fmt.Errorf("local index %d out of range", slot)
		}
		touch(slot, width)
		in.intArg = slot
		in.wide = slot > 0xFF
		in.size = 2
		if in.wide {
			in.size = 4
		}
		return nil
	}

	in.size = 1 + in.op.OperandLen()
	return nil
}

func (a *Assembler) ldcConstant(rest string) (uint16, error) {
	rest = strings.TrimSpace(rest)
	switch {
	case strings.HasPrefix(rest, "\""):
		s, err := strconv.Unquote(rest)
		if err != nil {
			return 0, fmt.Errorf("bad string literal %s: %w", rest, err)
		}
		return a.Pool.String(s), nil
	case strings.HasPrefix(rest, "class "):
		return a.Pool.Class(strings.TrimSpace(rest[len("class "):])), nil
	case strings.HasSuffix(rest, "f") || strings.HasSuffix(rest, "F") ||
		strings.ContainsAny(rest, ".eE") || rest == "NaN" || strings.HasSuffix(rest, "Inf"):
		v, err := strconv.ParseFloat(strings.TrimRight(rest, "fF"), 32)
		if err != nil {
			return 0, fmt.Errorf("bad float literal %s: %w", rest, err)
		}
		return a.Pool.Float(float32(v)), nil
	}
	v, err := strconv.ParseInt(rest, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad int literal %s: %w", rest, err)
	}
	return a.Pool.Integer(int32(v)), nil
}

func (a *Assembler) ldc2Constant(rest string) (uint16, error) {
	rest = strings.TrimSpace(rest)
	if strings.HasSuffix(rest, "L") || strings.HasSuffix(rest, "l") {
		v, err := strconv.ParseInt(rest[:len(rest)-1], 0, 64)
		if err != nil {
			return 0, fmt.Errorf("bad long literal %s: %w", rest, err)
		}
		return a.Pool.Long(v), nil
	}
	if strings.ContainsAny(rest, ".eE") || strings.HasSuffix(rest, "d") || strings.HasSuffix(rest, "D") ||
		rest == "NaN" || strings.HasSuffix(rest, "Inf") {
		v, err := strconv.ParseFloat(strings.TrimRight(rest, "dD"), 64)
		if err != nil {
			return 0, fmt.Errorf("bad double literal %s: %w", rest, err)
		}
		return a.Pool.Double(v), nil
	}
	v, err := strconv.ParseInt(rest, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad long literal %s: %w", rest, err)
	}
	return a.Pool.Long(v), nil
}

// splitMemberRef splits "owner.name(desc)ret" or "owner.name".
func splitMemberRef(ref string) (owner, name, desc string, err error) {
	paren := strings.IndexByte(ref, '(')
	head := ref
	if paren >= 0 {
		head = ref[:paren]
		desc = ref[paren:]
	}
	dot := strings.LastIndexByte(head, '.')
	if dot <= 0 || dot == len(head)-1 {
		return "", "", "", fmt.Errorf("bad member reference %q", ref)
	}
	return head[:dot], head[dot+1:], desc, nil
}

func put16(code []byte, v uint16) []byte {
	return append(code, byte(v>>8), byte(v))
}

func put32(code []byte, v uint32) []byte {
	return append(code, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func (a *Assembler) emit(code []byte, in *asmInsn, labels map[string]int) ([]byte, error) {
	target := func(label string) (int, error) {
		pc, ok := labels[label]
		if !ok {
			return 0, fmt.Errorf("undefined label %q", label)
		}
		return pc - in.pc, nil
	}
	need := func(n int) error {
		if len(in.args) != n {
			return fmt.Errorf("%s expects %d operand(s), got %d", in.op, n, len(in.args))
		}
		return nil
	}

	op := in.op
	if in.wide {
		code = append(code, byte(bytecode.OpWide), byte(op))
		code = put16(code, uint16(in.intArg))
		if op == bytecode.OpIinc {
			delta, _ := strconv.Atoi(in.args[1])
			code = put16(code, uint16(int16(delta)))
		}
		return code, nil
	}
	code = append(code, byte(op))

	switch {
	case op == bytecode.OpLdc:
		return append(code, byte(in.cpIdx)), nil
	case op == bytecode.OpLdcW || op == bytecode.OpLdc2W:
		return put16(code, in.cpIdx), nil
	case op == bytecode.OpBipush:
		if err := need(1); err != nil {
			return nil, err
		}
		v, err := strconv.ParseInt(in.args[0], 0, 8)
		if err != nil {
			return nil, err
		}
		return append(code, byte(int8(v))), nil
	case op == bytecode.OpSipush:
		if err := need(1); err != nil {
			return nil, err
		}
		v, err := strconv.ParseInt(in.args[0], 0, 16)
		if err != nil {
			return nil, err
		}
		return put16(code, uint16(int16(v))), nil
	case op == bytecode.OpIinc:
		delta, _ := strconv.Atoi(in.args[1])
		return append(code, byte(in.intArg), byte(int8(delta))), nil
	case op == bytecode.OpNewarray:
		if err := need(1); err != nil {
			return nil, err
		}
		atype, ok := bytecode.ArrayTypeCode(in.args[0])
		if !ok {
			return nil, fmt.Errorf("unknown array type %q", in.args[0])
		}
		return append(code, atype), nil
	case op.IsBranch():
		if err := need(1); err != nil {
			return nil, err
		}
		off, err := target(in.args[0])
		if err != nil {
			return nil, err
		}
		if off < math.MinInt16 || off > math.MaxInt16 {
			return nil, fmt.Errorf("branch to %s out of 16-bit range", in.args[0])
		}
		return put16(code, uint16(int16(off))), nil
	case op == bytecode.OpGotoW || op == bytecode.OpJsrW:
		if err := need(1); err != nil {
			return nil, err
		}
		off, err := target(in.args[0])
		if err != nil {
			return nil, err
		}
		return put32(code, uint32(int32(off))), nil
	case op == bytecode.OpGetstatic || op == bytecode.OpPutstatic ||
		op == bytecode.OpGetfield || op == bytecode.OpPutfield:
		if err := need(2); err != nil {
			return nil, err
		}
		owner, name, _, err := splitMemberRef(in.args[0])
		if err != nil {
			return nil, err
		}
		if _, err := ParseFieldDescriptor(in.args[1]); err != nil {
			return nil, err
		}
		return put16(code, a.Pool.Field(owner, name, in.args[1])), nil
	case op == bytecode.OpInvokevirtual || op == bytecode.OpInvokespecial ||
		op == bytecode.OpInvokestatic || op == bytecode.OpInvokeinterface:
		if err := need(1); err != nil {
			return nil, err
		}
		owner, name, desc, err := splitMemberRef(in.args[0])
		if err != nil {
			return nil, err
		}
		mt, err := ParseMethodDescriptor(desc)
		if err != nil {
			return nil, err
		}
		if op == bytecode.OpInvokeinterface {
			code = put16(code, a.Pool.InterfaceMethod(owner, name, desc))
			return append(code, byte(mt.ArgSlots()+1), 0), nil
		}
		return put16(code, a.Pool.Method(owner, name, desc)), nil
	case op == bytecode.OpInvokedynamic:
		if err := need(1); err != nil {
			return nil, err
		}
		paren := strings.IndexByte(in.args[0], '(')
		if paren <= 0 {
			return nil, fmt.Errorf("bad invokedynamic call site %q", in.args[0])
		}
		code = put16(code, a.Pool.NameAndType(in.args[0][:paren], in.args[0][paren:]))
		return append(code, 0, 0), nil
	case op == bytecode.OpNew || op == bytecode.OpAnewarray ||
		op == bytecode.OpCheckcast || op == bytecode.OpInstanceof:
		if err := need(1); err != nil {
			return nil, err
		}
		return put16(code, a.Pool.Class(in.args[0])), nil
	case op == bytecode.OpMultianewarray:
		if err := need(2); err != nil {
			return nil, err
		}
		dims, err := strconv.Atoi(in.args[1])
		if err != nil || dims < 1 || dims > 255 {
			return nil, fmt.Errorf("bad dimension count %q", in.args[1])
		}
		code = put16(code, a.Pool.Class(in.args[0]))
		return append(code, byte(dims)), nil
	case op == bytecode.OpTableswitch || op == bytecode.OpLookupswitch:
		return a.emitSwitch(code, in, target)
	}

	if _, ok := localOp(op); ok {
		return append(code, byte(in.intArg)), nil
	}
	if op.OperandLen() != 0 {
		return nil, fmt.Errorf("%s: unsupported operand form", op)
	}
	if len(in.args) != 0 {
		return nil, fmt.Errorf("%s takes no operands", op)
	}
	return code, nil
}

func (a *Assembler) emitSwitch(code []byte, in *asmInsn, target func(string) (int, error)) ([]byte, error) {
	for len(code)%4 != 0 {
		code = append(code, 0)
	}
	var def string
	var rest []string
	for _, arg := range in.args {
		if strings.HasPrefix(arg, "default=") {
			def = strings.TrimPrefix(arg, "default=")
		} else {
			rest = append(rest, arg)
		}
	}
	if def == "" {
		return nil, fmt.Errorf("%s requires default=<label>", in.op)
	}
	defOff, err := target(def)
	if err != nil {
		return nil, err
	}
	code = put32(code, uint32(int32(defOff)))

	if in.op == bytecode.OpTableswitch {
		low, err := strconv.ParseInt(rest[0], 0, 32)
		if err != nil {
			return nil, fmt.Errorf("bad tableswitch low bound %q", rest[0])
		}
		high := low + int64(len(rest)-1) - 1
		code = put32(code, uint32(int32(low)))
		code = put32(code, uint32(int32(high)))
		for _, label := range rest[1:] {
			off, err := target(label)
			if err != nil {
				return nil, err
			}
			code = put32(code, uint32(int32(off)))
		}
		return code, nil
	}

	code = put32(code, uint32(len(rest)))
	prev := int64(math.MinInt64)
	for _, pair := range rest {
		eq := strings.IndexByte(pair, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("bad lookupswitch pair %q", pair)
		}
		match, err := strconv.ParseInt(pair[:eq], 0, 32)
		if err != nil {
			return nil, fmt.Errorf("bad lookupswitch key %q", pair[:eq])
		}
		if match <= prev {
			return nil, fmt.Errorf("lookupswitch keys must be ascending")
		}
		prev = match
		off, err := target(pair[eq+1:])
		if err != nil {
			return nil, err
		}
		code = put32(code, uint32(int32(match)))
		code = put32(code, uint32(int32(off)))
	}
	return code, nil
}
