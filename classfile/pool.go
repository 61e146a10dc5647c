package classfile

import (
	"fmt"
	"math"
)

// PoolBuilder accumulates a constant pool, reusing identical entries.
type PoolBuilder struct {
	pool  []Constant
	index map[string]uint16
}

// NewPoolBuilder returns a builder whose index 0 is already reserved.
func NewPoolBuilder() *PoolBuilder {
	return &PoolBuilder{
		pool:  []Constant{{Tag: TagUnusable}},
		index: make(map[string]uint16),
	}
}

// NewPoolBuilderFrom continues an existing pool.
func NewPoolBuilderFrom(pool []Constant) *PoolBuilder {
	p := NewPoolBuilder()
	if len(pool) == 0 {
		return p
	}
	p.pool = append([]Constant(nil), pool...)
	for i, c := range p.pool {
		if c.Tag != TagUnusable {
			p.index[poolKey(c)] = uint16(i)
		}
	}
	return p
}

func poolKey(c Constant) string {
	return fmt.Sprintf("%d|%d|%x|%s|%s|%s|%s",
		c.Tag, c.Int, math.Float64bits(c.Float), c.Text, c.Class, c.Name, c.Descriptor)
}

// Add interns c and returns its index.
func (p *PoolBuilder) Add(c Constant) uint16 {
	key := poolKey(c)
	if idx, ok := p.index[key]; ok {
		return idx
	}
	idx := uint16(len(p.pool))
	p.pool = append(p.pool, c)
	if c.Wide() {
		p.pool = append(p.pool, Constant{Tag: TagUnusable})
	}
	p.index[key] = idx
	return idx
}

// Integer interns an int constant.
func (p *PoolBuilder) Integer(v int32) uint16 {
	return p.Add(Constant{Tag: TagInteger, Int: int64(v)})
}

// Float interns a float constant.
func (p *PoolBuilder) Float(v float32) uint16 {
	return p.Add(Constant{Tag: TagFloat, Float: float64(v)})
}

// Long interns a long constant.
func (p *PoolBuilder) Long(v int64) uint16 {
	return p.Add(Constant{Tag: TagLong, Int: v})
}

// Double interns a double constant.
func (p *PoolBuilder) Double(v float64) uint16 {
	return p.Add(Constant{Tag: TagDouble, Float: v})
}

// String interns a string literal.
func (p *PoolBuilder) String(s string) uint16 {
	return p.Add(Constant{Tag: TagString, Text: s})
}

// Utf8 interns raw text.
func (p *PoolBuilder) Utf8(s string) uint16 {
	return p.Add(Constant{Tag: TagUtf8, Text: s})
}

// Class interns a class reference.
func (p *PoolBuilder) Class(name string) uint16 {
	return p.Add(Constant{Tag: TagClass, Text: name})
}

// Field interns a field reference.
func (p *PoolBuilder) Field(class, name, desc string) uint16 {
	return p.Add(Constant{Tag: TagFieldref, Class: class, Name: name, Descriptor: desc})
}

// Method interns a method reference.
func (p *PoolBuilder) Method(class, name, desc string) uint16 {
	return p.Add(Constant{Tag: TagMethodref, Class: class, Name: name, Descriptor: desc})
}

// InterfaceMethod interns an interface method reference.
func (p *PoolBuilder) InterfaceMethod(class, name, desc string) uint16 {
	return p.Add(Constant{Tag: TagInterfaceMethodref, Class: class, Name: name, Descriptor: desc})
}

// NameAndType interns a name and type pair.
func (p *PoolBuilder) NameAndType(name, desc string) uint16 {
	return p.Add(Constant{Tag: TagNameAndType, Name: name, Descriptor: desc})
}

// Len returns the current pool size.
func (p *PoolBuilder) Len() int {
	return len(p.pool)
}

// Pool returns the accumulated entries.
func (p *PoolBuilder) Pool() []Constant {
	return p.pool
}
