package classfile

import (
	"fmt"
	"strings"
)

// MethodType is a parsed method descriptor.
type MethodType struct {
	Params []string
	Return string // "V" for void
}

// ArgSlots returns the number of operand slots the parameters occupy, with
// long and double counting as two. The receiver is not included.
func (mt MethodType) ArgSlots() int {
	n := 0
	for _, p := range mt.Params {
		n += SlotWidth(p)
	}
	return n
}

// SlotWidth returns 2 for long/double descriptors, 0 for void, 1 otherwise.
func SlotWidth(desc string) int {
	switch desc {
	case "J", "D":
		return 2
	case "V", "":
		return 0
	}
	return 1
}

// ParseMethodDescriptor parses "(IJLjava/lang/String;)V" style descriptors.
func ParseMethodDescriptor(desc string) (MethodType, error) {
	var mt MethodType
	if len(desc) < 3 || desc[0] != '(' {
		return mt, fmt.Errorf("invalid method descriptor %q", desc)
	}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		n, err := scanFieldType(desc, i)
		if err != nil {
			return mt, fmt.Errorf("invalid method descriptor %q: %w", desc, err)
		}
		mt.Params = append(mt.Params, desc[i:i+n])
		i += n
	}
	if i >= len(desc) {
		return mt, fmt.Errorf("invalid method descriptor %q: missing ')'", desc)
	}
	i++
	if desc[i:] == "V" {
		mt.Return = "V"
		return mt, nil
	}
	n, err := scanFieldType(desc, i)
	if err != nil || i+n != len(desc) {
		return mt, fmt.Errorf("invalid method descriptor %q: bad return type", desc)
	}
	mt.Return = desc[i:]
	return mt, nil
}

// ParseFieldDescriptor validates a field descriptor and returns it unchanged.
func ParseFieldDescriptor(desc string) (string, error) {
	n, err := scanFieldType(desc, 0)
	if err != nil {
		return "", fmt.Errorf("invalid field descriptor %q: %w", desc, err)
	}
	if n != len(desc) {
		return "", fmt.Errorf("invalid field descriptor %q: trailing characters", desc)
	}
	return desc, nil
}

// ArgSlots is a convenience wrapper over ParseMethodDescriptor.
func ArgSlots(desc string) (int, error) {
	mt, err := ParseMethodDescriptor(desc)
	if err != nil {
		return 0, err
	}
	return mt.ArgSlots(), nil
}

func scanFieldType(desc string, i int) (int, error) {
	start := i
	for i < len(desc) && desc[i] == '[' {
		i++
	}
	if i-start > 255 {
		return 0, fmt.Errorf("too many array dimensions")
	}
	if i >= len(desc) {
		return 0, fmt.Errorf("truncated type at %d", start)
	}
	switch desc[i] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return i + 1 - start, nil
	case 'L':
		end := strings.IndexByte(desc[i:], ';')
		if end <= 1 {
			return 0, fmt.Errorf("unterminated class type at %d", i)
		}
		return i + end + 1 - start, nil
	}
	return 0, fmt.Errorf("unexpected %q at %d", desc[i], i)
}

// ClassNameOf converts a field descriptor naming a reference type to the
// class name used for lookup: "Ljava/lang/String;" -> "java/lang/String",
// array descriptors are returned unchanged.
func ClassNameOf(desc string) string {
	if strings.HasPrefix(desc, "L") && strings.HasSuffix(desc, ";") {
		return desc[1 : len(desc)-1]
	}
	return desc
}

// DescriptorOf converts a class name to its field descriptor form.
func DescriptorOf(className string) string {
	if strings.HasPrefix(className, "[") {
		return className
	}
	if prim, ok := primitiveDescriptors[className]; ok {
		return prim
	}
	return "L" + className + ";"
}

var primitiveDescriptors = map[string]string{
	"boolean": "Z",
	"byte":    "B",
	"char":    "C",
	"short":   "S",
	"int":     "I",
	"long":    "J",
	"float":   "F",
	"double":  "D",
	"void":    "V",
}

// PrimitiveName maps a one-letter descriptor to the primitive type name.
func PrimitiveName(desc string) (string, bool) {
	for name, d := range primitiveDescriptors {
		if d == desc {
			return name, true
		}
	}
	return "", false
}

// IsReference reports whether a field descriptor denotes an object or array.
func IsReference(desc string) bool {
	return strings.HasPrefix(desc, "L") || strings.HasPrefix(desc, "[")
}
