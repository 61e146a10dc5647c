package bytecode

import (
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.Name == "" || strings.HasPrefix(info.Name, "unknown") {
			t.Errorf("Opcode 0x%02X has no metadata", byte(op))
		}
	}
}

func TestOpcodeCount(t *testing.T) {
	// 0x00 through 0xCA inclusive
	if got := OpcodeCount(); got != 0xCB {
		t.Errorf("OpcodeCount() = %d, want %d", got, 0xCB)
	}
}

func TestOpcodeNumericValues(t *testing.T) {
	tests := []struct {
		op   Opcode
		want byte
		name string
	}{
		{OpIconst0, 0x03, "iconst_0"},
		{OpIdiv, 0x6C, "idiv"},
		{OpLrem, 0x71, "lrem"},
		{OpFcmpl, 0x95, "fcmpl"},
		{OpDcmpg, 0x98, "dcmpg"},
		{OpIushr, 0x7C, "iushr"},
		{OpInvokeinterface, 0xB9, "invokeinterface"},
		{OpAthrow, 0xBF, "athrow"},
		{OpMonitorexit, 0xC3, "monitorexit"},
		{OpJsrW, 0xC9, "jsr_w"},
	}
	for _, tt := range tests {
		if byte(tt.op) != tt.want {
			t.Errorf("%s = 0x%02X, want 0x%02X", tt.name, byte(tt.op), tt.want)
		}
		if tt.op.String() != tt.name {
			t.Errorf("Opcode(0x%02X).String() = %q, want %q", byte(tt.op), tt.op.String(), tt.name)
		}
		op, ok := Lookup(tt.name)
		if !ok || op != tt.op {
			t.Errorf("Lookup(%q) = %v, %v", tt.name, op, ok)
		}
	}
}

func TestUnknownOpcodeString(t *testing.T) {
	op := Opcode(0xEE)
	if op.Defined() {
		t.Fatal("0xEE should not be defined")
	}
	if !strings.HasPrefix(op.String(), "unknown") {
		t.Errorf("Unknown opcode should render as unknown, got %q", op.String())
	}
}

func TestOpcodeClassification(t *testing.T) {
	for _, op := range []Opcode{OpIfeq, OpIfAcmpne, OpGoto, OpJsr, OpIfnull, OpIfnonnull} {
		if !op.IsBranch() {
			t.Errorf("%s.IsBranch() = false, want true", op)
		}
	}
	for _, op := range []Opcode{OpRet, OpGotoW, OpIadd, OpTableswitch} {
		if op.IsBranch() {
			t.Errorf("%s.IsBranch() = true, want false", op)
		}
	}
	for _, op := range []Opcode{OpIreturn, OpAreturn, OpReturn} {
		if !op.IsReturn() {
			t.Errorf("%s.IsReturn() = false, want true", op)
		}
	}
	for _, op := range []Opcode{OpInvokevirtual, OpInvokestatic, OpInvokeinterface} {
		if !op.IsInvoke() {
			t.Errorf("%s.IsInvoke() = false, want true", op)
		}
	}
}

func TestInstructionLen(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		pc   int
		want int
	}{
		{"nop", []byte{0x00}, 0, 1},
		{"bipush", []byte{0x10, 0x05}, 0, 2},
		{"invokeinterface", []byte{0xB9, 0, 1, 1, 0}, 0, 5},
		{"wide iload", []byte{0xC4, 0x15, 0x01, 0x00}, 0, 4},
		{"wide iinc", []byte{0xC4, 0x84, 0x01, 0x00, 0x00, 0x05}, 0, 6},
		// tableswitch at pc 1: operands padded to offset 4, 0..1 => 2 entries
		{"tableswitch", []byte{
			0x00, 0xAA, 0, 0,
			0, 0, 0, 20,
			0, 0, 0, 0,
			0, 0, 0, 1,
			0, 0, 0, 20,
			0, 0, 0, 20,
		}, 1, 23},
		{"lookupswitch", []byte{
			0xAB, 0, 0, 0,
			0, 0, 0, 12,
			0, 0, 0, 1,
			0, 0, 0, 7,
			0, 0, 0, 12,
		}, 0, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InstructionLen(tt.code, tt.pc)
			if err != nil {
				t.Fatalf("InstructionLen: %v", err)
			}
			if got != tt.want {
				t.Errorf("InstructionLen = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestInstructionLenTruncated(t *testing.T) {
	if _, err := InstructionLen([]byte{0x11, 0x00}, 0); err == nil {
		t.Error("truncated sipush should fail")
	}
	if _, err := InstructionLen([]byte{0xEE}, 0); err == nil {
		t.Error("unknown opcode should fail")
	}
}
