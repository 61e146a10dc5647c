package vm

import "fmt"

// packOrder lists field type codes in ascending size, the order in which
// fields are placed so that none is misaligned.
var packOrder = []struct {
	codes string
	size  int
}{
	{"ZB", 1},
	{"C", 2},
	{"S", 2},
	{"I", 4},
	{"F", 4},
	{"L[", 8},
	{"J", 8},
	{"D", 8},
}

// fieldSize returns the storage size (and alignment) for a descriptor.
func fieldSize(desc string) int {
	for _, p := range packOrder {
		for i := 0; i < len(p.codes); i++ {
			if desc[0] == p.codes[i] {
				return p.size
			}
		}
	}
	return 8
}

type extent struct{ off, end int }

// PackClassFieldData assigns offsets to c's fields and allocates its static
// storage. Instance fields continue after the superclass's instance size;
// static fields start at 0 in a fresh block. Fields with predefined offsets
// are validated instead of placed.
func PackClassFieldData(c *Class, alloc Allocator) error {
	var inst, stat []*Field
	for _, f := range c.LocalFields {
		f.Class = c
		if f.IsStatic() {
			stat = append(stat, f)
		} else {
			inst = append(inst, f)
		}
	}

	start := 0
	if c.Super != nil {
		start = c.Super.InstanceSize
	}
	size, err := packFields(c, inst, start)
	if err != nil {
		return err
	}
	c.InstanceSize = size

	size, err = packFields(c, stat, 0)
	if err != nil {
		return err
	}
	c.StaticSize = size
	st, err := newStorage(alloc, size, refCells(size))
	if err != nil {
		return err
	}
	c.Statics = st
	return nil
}

func packFields(c *Class, fields []*Field, start int) (int, error) {
	var used []extent
	end := start

	for _, f := range fields {
		if !f.predefined {
			continue
		}
		size := fieldSize(f.Descriptor)
		if f.Offset < start || f.Offset%size != 0 {
			return 0, fmt.Errorf("%w: %s: predefined offset %d misaligned or inside superclass storage", ErrClassFormat, f, f.Offset)
		}
		e := extent{f.Offset, f.Offset + size}
		if overlapsAny(used, e) {
			return 0, fmt.Errorf("%w: %s: predefined offset %d overlaps another field", ErrClassFormat, f, f.Offset)
		}
		used = append(used, e)
		if e.end > end {
			end = e.end
		}
	}

	cursor := start
	for _, group := range packOrder {
		for _, f := range fields {
			if f.predefined || !inGroup(f.Descriptor[0], group.codes) {
				continue
			}
			off := alignUp(cursor, group.size)
			for {
				e := extent{off, off + group.size}
				blocker := -1
				for i, u := range used {
					if e.off < u.end && u.off < e.end {
						blocker = i
						break
					}
				}
				if blocker < 0 {
					break
				}
				off = alignUp(used[blocker].end, group.size)
			}
			f.Offset = off
			used = append(used, extent{off, off + group.size})
			cursor = off + group.size
			if cursor > end {
				end = cursor
			}
		}
	}
	return end, nil
}

func inGroup(code byte, codes string) bool {
	for i := 0; i < len(codes); i++ {
		if codes[i] == code {
			return true
		}
	}
	return false
}

func overlapsAny(used []extent, e extent) bool {
	for _, u := range used {
		if e.off < u.end && u.off < e.end {
			return true
		}
	}
	return false
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}
