package vm

import (
	"fmt"
	"math"
)

// Kind tags the contents of a Slot.
type Kind uint8

const (
	// KindTop marks an empty slot and the second half of a long or double.
	KindTop Kind = iota
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindRef
	KindRetAddr
)

func (k Kind) String() string {
	switch k {
	case KindTop:
		return "top"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindRef:
		return "ref"
	case KindRetAddr:
		return "retaddr"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Slot is one entry of the frame arena: a local variable or operand stack
// cell. Long and double values occupy two consecutive slots, the value
// followed by a KindTop filler.
type Slot struct {
	Kind Kind
	Bits uint64
	Ref  *Object
}

var topSlot = Slot{}

// IntSlot returns a slot holding an int (also boolean, byte, char, short).
func IntSlot(v int32) Slot { return Slot{Kind: KindInt, Bits: uint64(uint32(v))} }

// LongSlot returns a slot holding a long.
func LongSlot(v int64) Slot { return Slot{Kind: KindLong, Bits: uint64(v)} }

// FloatSlot returns a slot holding a float.
func FloatSlot(v float32) Slot { return Slot{Kind: KindFloat, Bits: uint64(math.Float32bits(v))} }

// DoubleSlot returns a slot holding a double.
func DoubleSlot(v float64) Slot { return Slot{Kind: KindDouble, Bits: math.Float64bits(v)} }

// RefSlot returns a slot holding a reference; nil is the null reference.
func RefSlot(o *Object) Slot { return Slot{Kind: KindRef, Ref: o} }

// NullSlot is the null reference.
var NullSlot = Slot{Kind: KindRef}

func retAddrSlot(pc int) Slot { return Slot{Kind: KindRetAddr, Bits: uint64(pc)} }

func (s Slot) Int() int32       { return int32(uint32(s.Bits)) }
func (s Slot) Long() int64      { return int64(s.Bits) }
func (s Slot) Float() float32   { return math.Float32frombits(uint32(s.Bits)) }
func (s Slot) Double() float64  { return math.Float64frombits(s.Bits) }
func (s Slot) Object() *Object  { return s.Ref }
func (s Slot) IsNull() bool     { return s.Ref == nil }
func (s Slot) Wide() bool       { return s.Kind == KindLong || s.Kind == KindDouble }
func (s Slot) Boolean() bool    { return s.Int() != 0 }

func (s Slot) String() string {
	switch s.Kind {
	case KindInt:
		return fmt.Sprintf("%d", s.Int())
	case KindLong:
		return fmt.Sprintf("%dL", s.Long())
	case KindFloat:
		return fmt.Sprintf("%gf", s.Float())
	case KindDouble:
		return fmt.Sprintf("%gd", s.Double())
	case KindRef:
		if s.Ref == nil {
			return "null"
		}
		return s.Ref.String()
	case KindRetAddr:
		return fmt.Sprintf("ret@%d", s.Bits)
	}
	return "top"
}

// zeroSlot returns the default value for a field descriptor.
func zeroSlot(desc string) Slot {
	switch desc[0] {
	case 'J':
		return LongSlot(0)
	case 'F':
		return FloatSlot(0)
	case 'D':
		return DoubleSlot(0)
	case 'L', '[':
		return NullSlot
	}
	return IntSlot(0)
}

// BoolSlot converts a Go bool to the int encoding used for booleans.
func BoolSlot(b bool) Slot {
	if b {
		return IntSlot(1)
	}
	return IntSlot(0)
}
