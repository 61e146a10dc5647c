package vm

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chazu/javelin/classfile"
)

// ---------------------------------------------------------------------------
// Class: the runtime model of a loaded type
// ---------------------------------------------------------------------------

// ClassFlags are runtime properties not present in class-file access flags.
type ClassFlags uint16

const (
	FlagArray ClassFlags = 1 << iota
	FlagPrimitive
	FlagNativeData // instances carry a Go value (String, Class, StringBuilder)
	FlagPredefined // defined by the VM itself; linkage problems are fatal
	FlagThrowable
)

// Class is a loaded, linked type. Everything below the structural fields is
// built once by the linker and immutable afterwards.
type Class struct {
	Name       string
	Loader     *ClassLoader // nil for the bootstrap loader
	Access     classfile.AccessFlags
	Flags      ClassFlags
	Super      *Class
	Interfaces []*Class
	SourceFile string
	File       *classfile.Class // nil for synthesized classes

	// AssignList holds every ancestor type. AssignList[0] is the direct
	// superclass; it is empty only for types without a superclass.
	AssignList []*Class
	// VTable is the primary dispatch table, ClassMethodCount entries.
	VTable []*Method
	// ITables[k] maps the primary slots of AssignList[k] onto slots of
	// VTable when AssignList[k] is an interface, nil otherwise.
	ITables [][]int

	LocalMethods []*Method
	LocalFields  []*Field

	InstanceSize int
	StaticSize   int
	Statics      Storage

	// Arrays
	Component *Class
	Dims      int

	init        classInit
	links       linkCache
	mirror      *Object
	mirrorMu    sync.Mutex
	abstractMsg string
}

// ClassMethodCount returns the size of the primary dispatch table.
func (c *Class) ClassMethodCount() int { return len(c.VTable) }

func (c *Class) IsInterface() bool { return c.Access.Has(classfile.AccInterface) }
func (c *Class) IsAbstract() bool  { return c.Access.Has(classfile.AccAbstract) }
func (c *Class) IsFinal() bool     { return c.Access.Has(classfile.AccFinal) }
func (c *Class) IsArray() bool     { return c.Flags&FlagArray != 0 }
func (c *Class) IsPrimitive() bool { return c.Flags&FlagPrimitive != 0 }

// JavaName returns the dotted name ("java.lang.String", "[I").
func (c *Class) JavaName() string { return javaName(c.Name) }

func (c *Class) String() string { return c.Name }

// IsAssignableFrom reports whether a value of type other can be stored in a
// variable of type c: c == other or c appears in other's AssignList.
func (c *Class) IsAssignableFrom(other *Class) bool {
	if c == other {
		return true
	}
	if other == nil {
		return false
	}
	if other.IsArray() && c.IsArray() {
		ce, oe := c.Component, other.Component
		if ce.IsPrimitive() || oe.IsPrimitive() {
			return ce == oe
		}
		return ce.IsAssignableFrom(oe)
	}
	for _, a := range other.AssignList {
		if a == c {
			return true
		}
	}
	return false
}

// assignIndex returns the position of t in c's AssignList, or -1.
func (c *Class) assignIndex(t *Class) int {
	for i, a := range c.AssignList {
		if a == t {
			return i
		}
	}
	return -1
}

// IsSubclassOf walks the superclass chain only.
func (c *Class) IsSubclassOf(other *Class) bool {
	for cur := c; cur != nil; cur = cur.Super {
		if cur == other {
			return true
		}
	}
	return false
}

// DeclaredMethod returns a method declared directly in c.
func (c *Class) DeclaredMethod(name, desc string) *Method {
	for _, m := range c.LocalMethods {
		if m.Name == name && m.Descriptor == desc {
			return m
		}
	}
	return nil
}

// DeclaredField returns a field declared directly in c.
func (c *Class) DeclaredField(name, desc string) *Field {
	for _, f := range c.LocalFields {
		if f.Name == name && (desc == "" || f.Descriptor == desc) {
			return f
		}
	}
	return nil
}

// FindMethod resolves a method reference the way the class-file rules
// describe: the class and its superclasses, then its superinterfaces.
func (c *Class) FindMethod(name, desc string) *Method {
	for cur := c; cur != nil; cur = cur.Super {
		if m := cur.DeclaredMethod(name, desc); m != nil {
			return m
		}
	}
	return c.findInterfaceMethod(name, desc)
}

// FindInterfaceMethod resolves an interface method reference: the interface,
// its superinterfaces, then java/lang/Object.
func (c *Class) FindInterfaceMethod(name, desc string) *Method {
	if m := c.DeclaredMethod(name, desc); m != nil {
		return m
	}
	if m := c.findInterfaceMethod(name, desc); m != nil {
		return m
	}
	if c.Super != nil {
		if m := c.Super.DeclaredMethod(name, desc); m != nil && m.IsPublic() && !m.IsStatic() {
			return m
		}
	}
	return nil
}

func (c *Class) findInterfaceMethod(name, desc string) *Method {
	var abstractHit *Method
	for _, a := range c.AssignList {
		if a == nil || !a.IsInterface() {
			continue
		}
		if m := a.DeclaredMethod(name, desc); m != nil && !m.IsStatic() && !m.IsPrivate() {
			if !m.IsAbstract() {
				return m
			}
			if abstractHit == nil {
				abstractHit = m
			}
		}
	}
	return abstractHit
}

// FindField resolves a field reference: the class, its direct
// superinterfaces (recursively), then the superclass chain.
func (c *Class) FindField(name, desc string) *Field {
	if f := c.DeclaredField(name, desc); f != nil {
		return f
	}
	for _, i := range c.Interfaces {
		if f := i.FindField(name, desc); f != nil {
			return f
		}
	}
	if c.Super != nil {
		return c.Super.FindField(name, desc)
	}
	return nil
}

// ClassInitializer returns <clinit>, which the linker keeps at
// LocalMethods[0] when present.
func (c *Class) ClassInitializer() *Method {
	if len(c.LocalMethods) > 0 && c.LocalMethods[0].Name == "<clinit>" {
		return c.LocalMethods[0]
	}
	return nil
}

// elemCode returns the storage code of an array's elements: a primitive
// descriptor letter, or 'L' for references.
func (c *Class) elemCode() byte {
	if c.Component != nil && c.Component.IsPrimitive() {
		return c.Component.primitiveCode()
	}
	return 'L'
}

func (c *Class) primitiveCode() byte {
	return classfile.DescriptorOf(c.Name)[0]
}

// Descriptor returns the field descriptor naming c.
func (c *Class) Descriptor() string {
	return classfile.DescriptorOf(c.Name)
}

// ---------------------------------------------------------------------------
// Method
// ---------------------------------------------------------------------------

// NativeFunc implements a builtin or native method. args holds the
// receiver (for instance methods) followed by the arguments, long and
// double values taking two entries. A non-nil error is ErrExceptionPending
// after raising on env, or any other error, which is reported as an
// InternalError.
type NativeFunc func(env *Env, args []Slot) (Slot, error)

// Method is a method entry of a loaded class.
type Method struct {
	Name       string
	Descriptor string
	Access     classfile.AccessFlags
	Class      *Class

	// MethodIndex is the slot in Class.VTable, -1 for entries that are
	// never dispatched virtually (<init>, <clinit>, static, private).
	MethodIndex int
	// StackConsume counts argument slots plus one for the receiver.
	StackConsume int
	ArgSlots     int
	Return       string

	Code    *classfile.Code
	Builtin NativeFunc

	native atomic.Pointer[NativeFunc]
}

func (m *Method) IsStatic() bool       { return m.Access.Has(classfile.AccStatic) }
func (m *Method) IsAbstract() bool     { return m.Access.Has(classfile.AccAbstract) }
func (m *Method) IsNative() bool       { return m.Access.Has(classfile.AccNative) }
func (m *Method) IsPrivate() bool      { return m.Access.Has(classfile.AccPrivate) }
func (m *Method) IsPublic() bool       { return m.Access.Has(classfile.AccPublic) }
func (m *Method) IsSynchronized() bool { return m.Access.Has(classfile.AccSynchronized) }
func (m *Method) IsSynthetic() bool    { return m.Access.Has(classfile.AccSynthetic) }

// IsInitializer reports whether m is <init> or <clinit>.
func (m *Method) IsInitializer() bool {
	return m.Name == "<init>" || m.Name == "<clinit>"
}

func (m *Method) String() string {
	owner := "?"
	if m.Class != nil {
		owner = m.Class.Name
	}
	return owner + "." + m.Name + m.Descriptor
}

// sameSignature reports whether m and other share name and descriptor.
func (m *Method) sameSignature(other *Method) bool {
	return m.Name == other.Name && m.Descriptor == other.Descriptor
}

// ---------------------------------------------------------------------------
// Field
// ---------------------------------------------------------------------------

// Field is a field entry; Offset indexes the instance body or, for statics,
// the class's static block.
type Field struct {
	Name          string
	Descriptor    string
	Access        classfile.AccessFlags
	Class         *Class
	Offset        int
	ConstantValue uint16

	predefined bool
}

func (f *Field) IsStatic() bool { return f.Access.Has(classfile.AccStatic) }

func (f *Field) String() string {
	return fmt.Sprintf("%s.%s:%s", f.Class.Name, f.Name, f.Descriptor)
}

// GetStatic reads a static field.
func (f *Field) GetStatic() Slot { return f.Class.Statics.Get(f.Offset, f.Descriptor[0]) }

// SetStatic writes a static field.
func (f *Field) SetStatic(v Slot) { f.Class.Statics.Set(f.Offset, f.Descriptor[0], v) }

// packageOf returns the package part of an internal name.
func packageOf(name string) string {
	if strings.HasPrefix(name, "[") {
		name = classfile.ClassNameOf(strings.TrimLeft(name, "["))
	}
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[:i]
	}
	return ""
}
