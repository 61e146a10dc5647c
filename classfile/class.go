// Package classfile holds the parsed form of a class definition as consumed
// by the runtime linker, together with the text (YAML) and binary (CBOR)
// encodings used to store class definitions on disk.
package classfile

import (
	"fmt"
	"strings"
)

// AccessFlags is the access_flags bit set shared by classes, fields and methods.
type AccessFlags uint16

const (
	AccPublic       AccessFlags = 0x0001
	AccPrivate      AccessFlags = 0x0002
	AccProtected    AccessFlags = 0x0004
	AccStatic       AccessFlags = 0x0008
	AccFinal        AccessFlags = 0x0010
	AccSuper        AccessFlags = 0x0020 // classes
	AccSynchronized AccessFlags = 0x0020 // methods
	AccVolatile     AccessFlags = 0x0040
	AccBridge       AccessFlags = 0x0040
	AccTransient    AccessFlags = 0x0080
	AccVarargs      AccessFlags = 0x0080
	AccNative       AccessFlags = 0x0100
	AccInterface    AccessFlags = 0x0200
	AccAbstract     AccessFlags = 0x0400
	AccStrict       AccessFlags = 0x0800
	AccSynthetic    AccessFlags = 0x1000
	AccAnnotation   AccessFlags = 0x2000
	AccEnum         AccessFlags = 0x4000
)

// Has reports whether all bits of mask are set.
func (f AccessFlags) Has(mask AccessFlags) bool {
	return f&mask == mask
}

var flagNames = []struct {
	name string
	bit  AccessFlags
}{
	{"public", AccPublic},
	{"private", AccPrivate},
	{"protected", AccProtected},
	{"static", AccStatic},
	{"final", AccFinal},
	{"super", AccSuper},
	{"synchronized", AccSynchronized},
	{"volatile", AccVolatile},
	{"transient", AccTransient},
	{"native", AccNative},
	{"interface", AccInterface},
	{"abstract", AccAbstract},
	{"strict", AccStrict},
	{"synthetic", AccSynthetic},
	{"annotation", AccAnnotation},
	{"enum", AccEnum},
}

// ParseFlags converts flag keywords ("public", "static", ...) to a bit set.
func ParseFlags(words []string) (AccessFlags, error) {
	var f AccessFlags
	for _, w := range words {
		found := false
		for _, fn := range flagNames {
			if fn.name == strings.ToLower(w) {
				f |= fn.bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("classfile: unknown access flag %q", w)
		}
	}
	return f, nil
}

// ConstantTag identifies the kind of a constant pool entry.
type ConstantTag uint8

const (
	TagUnusable           ConstantTag = 0 // index 0 and the slot after a long/double
	TagUtf8               ConstantTag = 1
	TagInteger            ConstantTag = 3
	TagFloat              ConstantTag = 4
	TagLong               ConstantTag = 5
	TagDouble             ConstantTag = 6
	TagClass              ConstantTag = 7
	TagString             ConstantTag = 8
	TagFieldref           ConstantTag = 9
	TagMethodref          ConstantTag = 10
	TagInterfaceMethodref ConstantTag = 11
	TagNameAndType        ConstantTag = 12
)

func (t ConstantTag) String() string {
	switch t {
	case TagUnusable:
		return "Unusable"
	case TagUtf8:
		return "Utf8"
	case TagInteger:
		return "Integer"
	case TagFloat:
		return "Float"
	case TagLong:
		return "Long"
	case TagDouble:
		return "Double"
	case TagClass:
		return "Class"
	case TagString:
		return "String"
	case TagFieldref:
		return "Fieldref"
	case TagMethodref:
		return "Methodref"
	case TagInterfaceMethodref:
		return "InterfaceMethodref"
	case TagNameAndType:
		return "NameAndType"
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

// Constant is one constant pool entry with its symbolic references already
// expanded to names. Numeric entries use Int (Integer, Long) or Float
// (Float, Double); Text carries Utf8 text, String literals and Class names.
type Constant struct {
	Tag        ConstantTag `cbor:"1,keyasint" yaml:"tag"`
	Int        int64       `cbor:"2,keyasint,omitempty" yaml:"int,omitempty"`
	Float      float64     `cbor:"3,keyasint,omitempty" yaml:"float,omitempty"`
	Text       string      `cbor:"4,keyasint,omitempty" yaml:"text,omitempty"`
	Class      string      `cbor:"5,keyasint,omitempty" yaml:"class,omitempty"`
	Name       string      `cbor:"6,keyasint,omitempty" yaml:"name,omitempty"`
	Descriptor string      `cbor:"7,keyasint,omitempty" yaml:"descriptor,omitempty"`
}

// Wide reports whether the entry occupies two pool indices.
func (c Constant) Wide() bool {
	return c.Tag == TagLong || c.Tag == TagDouble
}

func (c Constant) String() string {
	switch c.Tag {
	case TagInteger, TagLong:
		return fmt.Sprintf("%s %d", c.Tag, c.Int)
	case TagFloat, TagDouble:
		return fmt.Sprintf("%s %g", c.Tag, c.Float)
	case TagUtf8, TagClass:
		return fmt.Sprintf("%s %s", c.Tag, c.Text)
	case TagString:
		return fmt.Sprintf("%s %q", c.Tag, c.Text)
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
		return fmt.Sprintf("%s %s.%s:%s", c.Tag, c.Class, c.Name, c.Descriptor)
	case TagNameAndType:
		return fmt.Sprintf("%s %s:%s", c.Tag, c.Name, c.Descriptor)
	}
	return c.Tag.String()
}

// ExceptionEntry is one row of a method's exception table. CatchType is a
// constant pool index of a Class entry, or 0 to catch everything.
type ExceptionEntry struct {
	StartPC   uint16 `cbor:"1,keyasint"`
	EndPC     uint16 `cbor:"2,keyasint"`
	HandlerPC uint16 `cbor:"3,keyasint"`
	CatchType uint16 `cbor:"4,keyasint,omitempty"`
}

// LineNumber maps the first pc of a run of instructions to a source line.
type LineNumber struct {
	StartPC uint16 `cbor:"1,keyasint"`
	Line    uint16 `cbor:"2,keyasint"`
}

// Code is the decoded Code attribute of a method.
type Code struct {
	MaxStack   uint16           `cbor:"1,keyasint"`
	MaxLocals  uint16           `cbor:"2,keyasint"`
	Bytes      []byte           `cbor:"3,keyasint"`
	Exceptions []ExceptionEntry `cbor:"4,keyasint,omitempty"`
	Lines      []LineNumber     `cbor:"5,keyasint,omitempty"`
}

// LineFor returns the source line for pc, or -1 when unknown.
func (c *Code) LineFor(pc int) int {
	line := -1
	best := -1
	for _, ln := range c.Lines {
		if int(ln.StartPC) <= pc && int(ln.StartPC) > best {
			best = int(ln.StartPC)
			line = int(ln.Line)
		}
	}
	return line
}

// Method is a method declaration.
type Method struct {
	Name       string      `cbor:"1,keyasint"`
	Descriptor string      `cbor:"2,keyasint"`
	Access     AccessFlags `cbor:"3,keyasint"`
	Code       *Code       `cbor:"4,keyasint,omitempty"`
}

// Field is a field declaration. Offset is only set by predefined types that
// dictate their own storage layout; ConstantValue is a pool index (0 = none).
type Field struct {
	Name          string      `cbor:"1,keyasint"`
	Descriptor    string      `cbor:"2,keyasint"`
	Access        AccessFlags `cbor:"3,keyasint"`
	Offset        *int        `cbor:"4,keyasint,omitempty"`
	ConstantValue uint16      `cbor:"5,keyasint,omitempty"`
}

// Class is a parsed class definition.
type Class struct {
	Name       string      `cbor:"1,keyasint"`
	Super      string      `cbor:"2,keyasint,omitempty"`
	Interfaces []string    `cbor:"3,keyasint,omitempty"`
	Access     AccessFlags `cbor:"4,keyasint"`
	Pool       []Constant  `cbor:"5,keyasint"`
	Fields     []Field     `cbor:"6,keyasint,omitempty"`
	Methods    []Method    `cbor:"7,keyasint,omitempty"`
	SourceFile string      `cbor:"8,keyasint,omitempty"`
}

// Constant returns the pool entry at index, checking bounds and usability.
func (c *Class) Constant(index int) (Constant, error) {
	if index <= 0 || index >= len(c.Pool) {
		return Constant{}, fmt.Errorf("classfile: %s: constant index %d out of range", c.Name, index)
	}
	entry := c.Pool[index]
	if entry.Tag == TagUnusable {
		return Constant{}, fmt.Errorf("classfile: %s: constant index %d is unusable", c.Name, index)
	}
	return entry, nil
}

// FindMethod returns the declared method with the given name and descriptor.
func (c *Class) FindMethod(name, descriptor string) *Method {
	for i := range c.Methods {
		if c.Methods[i].Name == name && c.Methods[i].Descriptor == descriptor {
			return &c.Methods[i]
		}
	}
	return nil
}

// Validate performs the structural checks the linker relies on: names are
// present, pool references point at entries of the right kind, and member
// descriptors parse.
func (c *Class) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("classfile: class has no name")
	}
	if c.Super == "" && c.Name != "java/lang/Object" {
		return fmt.Errorf("classfile: %s: missing superclass", c.Name)
	}
	if len(c.Pool) == 0 || c.Pool[0].Tag != TagUnusable {
		return fmt.Errorf("classfile: %s: constant pool must reserve index 0", c.Name)
	}
	for i := 1; i < len(c.Pool); i++ {
		if c.Pool[i].Wide() {
			if i+1 >= len(c.Pool) || c.Pool[i+1].Tag != TagUnusable {
				return fmt.Errorf("classfile: %s: wide constant %d lacks its second slot", c.Name, i)
			}
			i++
		}
	}
	for _, f := range c.Fields {
		if _, err := ParseFieldDescriptor(f.Descriptor); err != nil {
			return fmt.Errorf("classfile: %s.%s: %w", c.Name, f.Name, err)
		}
		if f.ConstantValue != 0 {
			if _, err := c.Constant(int(f.ConstantValue)); err != nil {
				return err
			}
		}
	}
	seen := make(map[string]bool, len(c.Methods))
	for _, m := range c.Methods {
		key := m.Name + m.Descriptor
		if seen[key] {
			return fmt.Errorf("classfile: %s: duplicate method %s%s", c.Name, m.Name, m.Descriptor)
		}
		seen[key] = true
		if _, err := ParseMethodDescriptor(m.Descriptor); err != nil {
			return fmt.Errorf("classfile: %s.%s: %w", c.Name, m.Name, err)
		}
		if m.Code == nil {
			continue
		}
		n := len(m.Code.Bytes)
		for _, ex := range m.Code.Exceptions {
			if ex.StartPC >= ex.EndPC || int(ex.EndPC) > n || int(ex.HandlerPC) >= n {
				return fmt.Errorf("classfile: %s.%s: bad exception range [%d,%d)->%d",
					c.Name, m.Name, ex.StartPC, ex.EndPC, ex.HandlerPC)
			}
			if ex.CatchType != 0 {
				ct, err := c.Constant(int(ex.CatchType))
				if err != nil {
					return err
				}
				if ct.Tag != TagClass {
					return fmt.Errorf("classfile: %s.%s: catch type %d is %s", c.Name, m.Name, ex.CatchType, ct.Tag)
				}
			}
		}
	}
	return nil
}
