package vm

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Storage: the byte-addressed body of an instance, a static block, or an array
// ---------------------------------------------------------------------------

// Storage holds primitive values little-endian in data and references in
// refs, indexed by offset/8 (reference fields are always 8-byte aligned).
// Reference arrays keep their elements in refs, one per index.
type Storage struct {
	data []byte
	refs []*Object
}

func newStorage(alloc Allocator, size int, refCells int) (Storage, error) {
	var s Storage
	if size > 0 {
		b, err := alloc.Alloc(size)
		if err != nil {
			return s, err
		}
		s.data = b
	}
	if refCells > 0 {
		s.refs = make([]*Object, refCells)
	}
	return s, nil
}

// Get reads the value of type desc at byte offset off.
func (s *Storage) Get(off int, desc byte) Slot {
	switch desc {
	case 'Z', 'B':
		return IntSlot(int32(int8(s.data[off])))
	case 'C':
		return IntSlot(int32(binary.LittleEndian.Uint16(s.data[off:])))
	case 'S':
		return IntSlot(int32(int16(binary.LittleEndian.Uint16(s.data[off:]))))
	case 'I':
		return IntSlot(int32(binary.LittleEndian.Uint32(s.data[off:])))
	case 'F':
		return Slot{Kind: KindFloat, Bits: uint64(binary.LittleEndian.Uint32(s.data[off:]))}
	case 'J':
		return Slot{Kind: KindLong, Bits: binary.LittleEndian.Uint64(s.data[off:])}
	case 'D':
		return Slot{Kind: KindDouble, Bits: binary.LittleEndian.Uint64(s.data[off:])}
	}
	return RefSlot(s.refs[off/8])
}

// Set stores v as type desc at byte offset off, narrowing ints as needed.
func (s *Storage) Set(off int, desc byte, v Slot) {
	switch desc {
	case 'Z':
		s.data[off] = byte(v.Int() & 1)
	case 'B':
		s.data[off] = byte(v.Int())
	case 'C', 'S':
		binary.LittleEndian.PutUint16(s.data[off:], uint16(v.Int()))
	case 'I', 'F':
		binary.LittleEndian.PutUint32(s.data[off:], uint32(v.Bits))
	case 'J', 'D':
		binary.LittleEndian.PutUint64(s.data[off:], v.Bits)
	default:
		s.refs[off/8] = v.Ref
	}
}

// ---------------------------------------------------------------------------
// Object
// ---------------------------------------------------------------------------

// Object is an instance, an array, or a native-backed value such as a
// String or Class mirror.
type Object struct {
	Class  *Class
	Fields Storage

	length  int // arrays only
	native  any
	hash    atomic.Int32
	monitor atomic.Pointer[Monitor]
}

// Native returns the Go value backing a native-data object.
func (o *Object) Native() any { return o.native }

// SetNative attaches a Go value to the object.
func (o *Object) SetNative(v any) { o.native = v }

// Monitor returns the object's monitor, creating it on first use.
func (o *Object) Monitor() *Monitor {
	if m := o.monitor.Load(); m != nil {
		return m
	}
	o.monitor.CompareAndSwap(nil, NewMonitor())
	return o.monitor.Load()
}

// IsArray reports whether o is an array.
func (o *Object) IsArray() bool { return o.Class.IsArray() }

// Len returns the array length.
func (o *Object) Len() int { return o.length }

// GetField reads an instance field.
func (o *Object) GetField(f *Field) Slot { return o.Fields.Get(f.Offset, f.Descriptor[0]) }

// SetField writes an instance field.
func (o *Object) SetField(f *Field, v Slot) { o.Fields.Set(f.Offset, f.Descriptor[0], v) }

// ElemSlot reads array element i. Bounds must already be checked.
func (o *Object) ElemSlot(i int) Slot {
	code := o.Class.elemCode()
	if code == 'L' {
		return RefSlot(o.Fields.refs[i])
	}
	return o.Fields.Get(i*elemSize(code), code)
}

// SetElem writes array element i. Bounds must already be checked.
func (o *Object) SetElem(i int, v Slot) {
	code := o.Class.elemCode()
	if code == 'L' {
		o.Fields.refs[i] = v.Ref
		return
	}
	o.Fields.Set(i*elemSize(code), code, v)
}

// GoString returns the text of a java/lang/String object.
func (o *Object) GoString() string {
	if o == nil {
		return "null"
	}
	if s, ok := o.native.(string); ok {
		return s
	}
	return o.String()
}

func (o *Object) String() string {
	if o == nil {
		return "null"
	}
	switch v := o.native.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case *Class:
		return "class " + v.JavaName()
	}
	if o.IsArray() {
		return fmt.Sprintf("%s[%d]", o.Class.JavaName(), o.length)
	}
	return fmt.Sprintf("%s@%x", o.Class.JavaName(), identityHash(o))
}

func elemSize(code byte) int {
	switch code {
	case 'Z', 'B':
		return 1
	case 'C', 'S':
		return 2
	case 'I', 'F':
		return 4
	}
	return 8
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

// newObject allocates an instance of c with zeroed fields.
func (vm *VM) newObject(c *Class) (*Object, error) {
	st, err := newStorage(vm.cfg.Allocator, c.InstanceSize, refCells(c.InstanceSize))
	if err != nil {
		return nil, err
	}
	return &Object{Class: c, Fields: st}, nil
}

// newArray allocates an array of class ac with n zeroed elements.
func (vm *VM) newArray(ac *Class, n int) (*Object, error) {
	if n > vm.cfg.MaxArrayLength {
		return nil, ErrOutOfMemory
	}
	code := ac.elemCode()
	var st Storage
	var err error
	if code == 'L' {
		st, err = newStorage(vm.cfg.Allocator, 0, n)
	} else {
		st, err = newStorage(vm.cfg.Allocator, n*elemSize(code), 0)
	}
	if err != nil {
		return nil, err
	}
	return &Object{Class: ac, Fields: st, length: n}, nil
}

// NewArray allocates an array of class ac, which must be an array class,
// with n zeroed elements.
func (vm *VM) NewArray(ac *Class, n int) (*Object, error) {
	if !ac.IsArray() {
		return nil, fmt.Errorf("%w: %s is not an array class", ErrInvalidRequest, ac.Name)
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: negative array length %d", ErrInvalidRequest, n)
	}
	return vm.newArray(ac, n)
}

func refCells(size int) int {
	return (size + 7) / 8
}

// cloneObject returns a shallow copy of o.
func (vm *VM) cloneObject(o *Object) (*Object, error) {
	st, err := newStorage(vm.cfg.Allocator, len(o.Fields.data), len(o.Fields.refs))
	if err != nil {
		return nil, err
	}
	copy(st.data, o.Fields.data)
	copy(st.refs, o.Fields.refs)
	return &Object{Class: o.Class, Fields: st, length: o.length, native: o.native}, nil
}

var hashSeq atomic.Uint32

// identityHash is stable for the life of the object and never zero.
func identityHash(o *Object) int32 {
	if o == nil {
		return 0
	}
	if h := o.hash.Load(); h != 0 {
		return h
	}
	v := int32(hashSeq.Add(0x9E3779B9) & math.MaxInt32)
	if v == 0 {
		v = 1
	}
	o.hash.CompareAndSwap(0, v)
	return o.hash.Load()
}

// javaName converts an internal name to dotted form.
func javaName(internal string) string {
	return strings.ReplaceAll(internal, "/", ".")
}
