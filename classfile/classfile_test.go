package classfile

import (
	"bytes"
	"strings"
	"testing"

	"github.com/chazu/javelin/pkg/bytecode"
)

func TestParseMethodDescriptor(t *testing.T) {
	tests := []struct {
		desc    string
		params  []string
		ret     string
		slots   int
		wantErr bool
	}{
		{"()V", nil, "V", 0, false},
		{"(IJ)D", []string{"I", "J"}, "D", 3, false},
		{"(Ljava/lang/String;[[I)Ljava/lang/Object;", []string{"Ljava/lang/String;", "[[I"}, "Ljava/lang/Object;", 2, false},
		{"(I", nil, "", 0, true},
		{"(Ljava/lang/String)V", nil, "", 0, true},
		{"I", nil, "", 0, true},
		{"()", nil, "", 0, true},
		{"()VV", nil, "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			mt, err := ParseMethodDescriptor(tt.desc)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseMethodDescriptor(%q) succeeded, want error", tt.desc)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMethodDescriptor(%q) error: %v", tt.desc, err)
			}
			if strings.Join(mt.Params, ",") != strings.Join(tt.params, ",") {
				t.Errorf("Params = %v, want %v", mt.Params, tt.params)
			}
			if mt.Return != tt.ret {
				t.Errorf("Return = %q, want %q", mt.Return, tt.ret)
			}
			if mt.ArgSlots() != tt.slots {
				t.Errorf("ArgSlots = %d, want %d", mt.ArgSlots(), tt.slots)
			}
		})
	}
}

func TestDescriptorNames(t *testing.T) {
	if got := ClassNameOf("Ljava/lang/String;"); got != "java/lang/String" {
		t.Errorf("ClassNameOf = %q", got)
	}
	if got := ClassNameOf("[I"); got != "[I" {
		t.Errorf("ClassNameOf([I) = %q", got)
	}
	if got := DescriptorOf("int"); got != "I" {
		t.Errorf("DescriptorOf(int) = %q", got)
	}
	if got := DescriptorOf("demo/A"); got != "Ldemo/A;" {
		t.Errorf("DescriptorOf(demo/A) = %q", got)
	}
	if name, ok := PrimitiveName("J"); !ok || name != "long" {
		t.Errorf("PrimitiveName(J) = %q, %v", name, ok)
	}
}

func TestPoolBuilderDedup(t *testing.T) {
	p := NewPoolBuilder()
	a := p.String("hi")
	b := p.String("hi")
	if a != b {
		t.Errorf("duplicate string got indices %d and %d", a, b)
	}
	l := p.Long(7)
	next := p.Integer(1)
	if next != l+2 {
		t.Errorf("entry after long = %d, want %d", next, l+2)
	}
	if p.Pool()[l+1].Tag != TagUnusable {
		t.Errorf("slot after long is %s, want Unusable", p.Pool()[l+1].Tag)
	}
	if p.Method("a/B", "f", "()V") == p.InterfaceMethod("a/B", "f", "()V") {
		t.Error("method and interface method refs should not share an index")
	}
}

func TestAssembleLoop(t *testing.T) {
	src := `
		iconst_0
		istore_1
	Loop:
		iload_1
		bipush 10
		if_icmpge Done   ; exit
		iinc 1 1
		goto Loop
	Done:
		iload_1
		ireturn
	`
	asm := &Assembler{}
	code, err := asm.Assemble(src, 0)
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if len(code.Bytes) != 16 {
		t.Fatalf("len = %d, want 16\n%s", len(code.Bytes), bytecode.Disassemble(code.Bytes, nil))
	}
	if got := bytecode.Opcode(code.Bytes[5]); got != bytecode.OpIfIcmpge {
		t.Errorf("byte 5 = %s, want if_icmpge", got)
	}
	if off := int16(bytecode.ReadU16(code.Bytes, 6)); off != 9 {
		t.Errorf("if_icmpge offset = %d, want 9", off)
	}
	if off := int16(bytecode.ReadU16(code.Bytes, 12)); off != -9 {
		t.Errorf("goto offset = %d, want -9", off)
	}
	if code.MaxLocals != 2 {
		t.Errorf("MaxLocals = %d, want 2", code.MaxLocals)
	}
	if code.MaxStack != DefaultMaxStack {
		t.Errorf("MaxStack = %d, want %d", code.MaxStack, DefaultMaxStack)
	}
}

func TestAssembleClassTypeDescriptors(t *testing.T) {
	asm := &Assembler{}
	code, err := asm.Assemble(`
		; leading comment
		getstatic javelin/Console.NEWLINE Ljava/lang/String; ; trailing comment
		invokestatic javelin/Console.print(Ljava/lang/String;)V # another
		return
	`, 0)
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	pool := asm.Pool.Pool()
	field := pool[bytecode.ReadU16(code.Bytes, 1)]
	if field.Tag != TagFieldref || field.Descriptor != "Ljava/lang/String;" {
		t.Errorf("getstatic constant = %v, want a Fieldref with descriptor Ljava/lang/String;", field)
	}
	method := pool[bytecode.ReadU16(code.Bytes, 4)]
	if method.Tag != TagMethodref || method.Descriptor != "(Ljava/lang/String;)V" {
		t.Errorf("invokestatic constant = %v, want (Ljava/lang/String;)V", method)
	}
}

func TestAssembleWideAndConstants(t *testing.T) {
	asm := &Assembler{}
	code, err := asm.Assemble(`
		.limit stack 4
		ldc "a;b"
		astore 300
		iinc 2 1000
		ldc2_w 5L
		ldc2_w 2.5
		ldc 1.5f
		return
	`, 0)
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if code.MaxStack != 4 {
		t.Errorf("MaxStack = %d, want 4", code.MaxStack)
	}
	if code.MaxLocals != 301 {
		t.Errorf("MaxLocals = %d, want 301", code.MaxLocals)
	}
	b := code.Bytes
	if bytecode.Opcode(b[2]) != bytecode.OpWide || bytecode.Opcode(b[3]) != bytecode.OpAstore {
		t.Errorf("expected wide astore at 2, got %s %s", bytecode.Opcode(b[2]), bytecode.Opcode(b[3]))
	}
	if bytecode.Opcode(b[6]) != bytecode.OpWide || bytecode.Opcode(b[7]) != bytecode.OpIinc {
		t.Errorf("expected wide iinc at 6")
	}
	pool := asm.Pool.Pool()
	if c := pool[b[1]]; c.Tag != TagString || c.Text != "a;b" {
		t.Errorf("ldc constant = %v", c)
	}
	if c := pool[bytecode.ReadU16(b, 13)]; c.Tag != TagLong || c.Int != 5 {
		t.Errorf("ldc2_w long constant = %v", c)
	}
	if c := pool[bytecode.ReadU16(b, 16)]; c.Tag != TagDouble || c.Float != 2.5 {
		t.Errorf("ldc2_w double constant = %v", c)
	}
}

func TestAssembleSwitches(t *testing.T) {
	asm := &Assembler{}
	code, err := asm.Assemble(`
		iload_0
		tableswitch 1 One Two default=Other
	One:
		iconst_1
		ireturn
	Two:
		iconst_2
		ireturn
	Other:
		iload_0
		lookupswitch -5=One 40=Two default=Other2
	Other2:
		iconst_m1
		ireturn
	`, 1)
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	listing := bytecode.Disassemble(code.Bytes, nil)
	for _, want := range []string{"tableswitch {1:", "2:", "lookupswitch {-5:", "40:"} {
		if !strings.Contains(listing, want) {
			t.Errorf("listing missing %q:\n%s", want, listing)
		}
	}
	for pc := 0; pc < len(code.Bytes); {
		n, err := bytecode.InstructionLen(code.Bytes, pc)
		if err != nil {
			t.Fatalf("InstructionLen(%d): %v", pc, err)
		}
		pc += n
	}
}

func TestAssembleCatchAndLines(t *testing.T) {
	asm := &Assembler{}
	code, err := asm.Assemble(`
	Start:
		.line 3
		aconst_null
		athrow
	End:
	Handler:
		.line 5
		areturn
		.catch java/lang/NullPointerException Start End Handler
		.catch any Start End Handler
	`, 0)
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if len(code.Exceptions) != 2 {
		t.Fatalf("exceptions = %d, want 2", len(code.Exceptions))
	}
	first := code.Exceptions[0]
	if first.StartPC != 0 || first.EndPC != 2 || first.HandlerPC != 2 {
		t.Errorf("entry = %+v", first)
	}
	if c := asm.Pool.Pool()[first.CatchType]; c.Tag != TagClass || c.Text != "java/lang/NullPointerException" {
		t.Errorf("catch type = %v", c)
	}
	if code.Exceptions[1].CatchType != 0 {
		t.Errorf("catch any type = %d, want 0", code.Exceptions[1].CatchType)
	}
	if got := code.LineFor(1); got != 3 {
		t.Errorf("LineFor(1) = %d, want 3", got)
	}
	if got := code.LineFor(2); got != 5 {
		t.Errorf("LineFor(2) = %d, want 5", got)
	}
}

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown op", "frobnicate"},
		{"undefined label", "goto Nowhere"},
		{"duplicate label", "A:\nA:\nreturn"},
		{"bad field ref", "getstatic nodot I"},
		{"bad descriptor", "invokestatic a/B.f(Q)V"},
		{"explicit wide", "wide"},
		{"unsorted lookup", "iconst_0\nlookupswitch 5=X 1=X default=X\nX:\nreturn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := (&Assembler{}).Assemble(tt.src, 0); err == nil {
				t.Errorf("Assemble(%q) succeeded, want error", tt.src)
			}
		})
	}
}

const pointYAML = `
name: demo/Point
flags: [public]
source: Point.java
fields:
  - name: x
    descriptor: I
  - name: ORIGIN_NAME
    descriptor: Ljava/lang/String;
    flags: [public, static, final]
    value: origin
methods:
  - name: <init>
    descriptor: ()V
    code: |
      aload_0
      invokespecial java/lang/Object.<init>()V
      return
  - name: getX
    descriptor: ()I
    max_stack: 1
    code: |
      aload_0
      getfield demo/Point.x I
      ireturn
---
name: demo/Shape
flags: [public, interface, abstract]
methods:
  - name: area
    descriptor: ()D
    flags: [public, abstract]
`

func TestParseYAML(t *testing.T) {
	classes, err := ParseYAML(pointYAML)
	if err != nil {
		t.Fatalf("ParseYAML error: %v", err)
	}
	if len(classes) != 2 {
		t.Fatalf("classes = %d, want 2", len(classes))
	}
	point := classes[0]
	if point.Super != "java/lang/Object" {
		t.Errorf("Super = %q, want java/lang/Object", point.Super)
	}
	if point.SourceFile != "Point.java" {
		t.Errorf("SourceFile = %q", point.SourceFile)
	}
	getX := point.FindMethod("getX", "()I")
	if getX == nil || getX.Code == nil {
		t.Fatal("getX missing or has no code")
	}
	if getX.Code.MaxStack != 1 || getX.Code.MaxLocals != 1 {
		t.Errorf("getX limits = %d/%d, want 1/1", getX.Code.MaxStack, getX.Code.MaxLocals)
	}
	cv, err := point.Constant(int(point.Fields[1].ConstantValue))
	if err != nil || cv.Tag != TagString || cv.Text != "origin" {
		t.Errorf("ORIGIN_NAME constant = %v, %v", cv, err)
	}
	shape := classes[1]
	if !shape.Access.Has(AccInterface) {
		t.Error("demo/Shape should be an interface")
	}
	if shape.Methods[0].Code != nil {
		t.Error("abstract method should have no code")
	}
}

func TestParseYAMLErrors(t *testing.T) {
	tests := []string{
		"name: a/B\nflags: [bogus]\n",
		"name: a/B\nmethods:\n  - name: f\n    descriptor: ()V\n    code: |\n      nope\n",
		"name: a/B\nfields:\n  - name: f\n    descriptor: Q\n",
	}
	for _, src := range tests {
		if _, err := ParseYAML(src); err == nil {
			t.Errorf("ParseYAML(%q) succeeded, want error", src)
		}
	}
}

func TestBundleRoundTrip(t *testing.T) {
	classes, err := ParseYAML(pointYAML)
	if err != nil {
		t.Fatalf("ParseYAML error: %v", err)
	}
	data, err := MarshalBundle(classes)
	if err != nil {
		t.Fatalf("MarshalBundle error: %v", err)
	}
	again, err := MarshalBundle(classes)
	if err != nil || !bytes.Equal(data, again) {
		t.Error("bundle encoding is not deterministic")
	}
	back, err := UnmarshalBundle(data)
	if err != nil {
		t.Fatalf("UnmarshalBundle error: %v", err)
	}
	if len(back) != 2 || back[0].Name != "demo/Point" {
		t.Fatalf("decoded %d classes", len(back))
	}
	m := back[0].FindMethod("getX", "()I")
	if m == nil || !bytes.Equal(m.Code.Bytes, classes[0].FindMethod("getX", "()I").Code.Bytes) {
		t.Error("getX code did not survive the round trip")
	}
}

func TestUnmarshalRejectsInvalid(t *testing.T) {
	data, err := Marshal(&Class{Name: "a/B", Super: "java/lang/Object"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(data); err == nil {
		t.Error("class without reserved pool index 0 should be rejected")
	}
}
