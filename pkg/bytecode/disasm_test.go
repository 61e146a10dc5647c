package bytecode

import (
	"fmt"
	"strings"
	"testing"
)

func TestDisassembleSimple(t *testing.T) {
	code := []byte{
		byte(OpIconst2),
		byte(OpIconst3),
		byte(OpIadd),
		byte(OpIreturn),
	}
	output := Disassemble(code, nil)
	for _, want := range []string{"0: iconst_2", "1: iconst_3", "2: iadd", "3: ireturn"} {
		if !strings.Contains(output, want) {
			t.Errorf("Disassembly missing %q:\n%s", want, output)
		}
	}
}

func TestDisassembleBranchTargetsAreAbsolute(t *testing.T) {
	code := []byte{
		byte(OpIconst0),
		byte(OpIfeq), 0x00, 0x04, // 1: ifeq +4 => 5
		byte(OpNop),
		byte(OpReturn),
	}
	output := Disassemble(code, nil)
	if !strings.Contains(output, "ifeq 5") {
		t.Errorf("expected absolute branch target, got:\n%s", output)
	}
}

func TestDisassembleWithConstantNames(t *testing.T) {
	code := []byte{byte(OpInvokestatic), 0x00, 0x07, byte(OpReturn)}
	output := Disassemble(code, func(idx uint16) string {
		return fmt.Sprintf("Method demo/A.f()V@%d", idx)
	})
	if !strings.Contains(output, "#7 // Method demo/A.f()V@7") {
		t.Errorf("constant name not rendered:\n%s", output)
	}
}

func TestDisassembleNewarray(t *testing.T) {
	code := []byte{byte(OpIconst1), byte(OpNewarray), ATLong, byte(OpAreturn)}
	output := Disassemble(code, nil)
	if !strings.Contains(output, "newarray long") {
		t.Errorf("missing newarray type:\n%s", output)
	}
}

func TestArrayTypeCodeRoundTrip(t *testing.T) {
	for code := ATBoolean; code <= ATLong; code++ {
		got, ok := ArrayTypeCode(ArrayTypeName(code))
		if !ok || got != code {
			t.Errorf("ArrayTypeCode(%s) = %d, %v", ArrayTypeName(code), got, ok)
		}
	}
}
