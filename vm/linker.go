package vm

import (
	"fmt"

	"github.com/chazu/javelin/classfile"
	"github.com/tliron/commonlog"
)

var linkLog = commonlog.GetLogger("javelin.linker")

// ---------------------------------------------------------------------------
// Hierarchy construction
// ---------------------------------------------------------------------------

// BuildClassHierData builds c's dispatch tables, interface maps and
// assignment list from its superclass, direct interfaces and LocalMethods.
// The superclass and interfaces must already be linked.
//
// Overrides keep the slot of the method they replace and new methods are
// appended, so a slot number taken from any ancestor stays valid for every
// descendant. An interface method with no implementation in a concrete
// class is an immediate ErrAbstractLinkage for predefined classes; loaded
// classes are instead marked for a deferred AbstractMethodError.
func BuildClassHierData(c *Class) error {
	table := baseTable(c)

	for _, m := range c.LocalMethods {
		m.Class = c
		if m.IsInitializer() || m.IsStatic() || m.IsPrivate() {
			m.MethodIndex = -1
			continue
		}
		if slot := findSlot(table, m); slot >= 0 {
			prev := table[slot]
			if prev.Access.Has(classfile.AccFinal) && prev.Class != c && !prev.Class.IsInterface() {
				return fmt.Errorf("%w: %s overrides final method %s", ErrVerify, m, prev)
			}
			table[slot] = m
			m.MethodIndex = slot
			continue
		}
		m.MethodIndex = len(table)
		table = append(table, m)
	}

	// The initializer sits at a fixed position.
	for i, m := range c.LocalMethods {
		if m.Name == "<clinit>" && i != 0 {
			c.LocalMethods[0], c.LocalMethods[i] = c.LocalMethods[i], c.LocalMethods[0]
			break
		}
	}

	var (
		assign []*Class
		itabs  [][]int
	)
	contains := func(t *Class) bool {
		for _, a := range assign {
			if a == t {
				return true
			}
		}
		return false
	}

	if c.Super != nil {
		assign = append(assign, c.Super)
		itabs = append(itabs, nil)
		for k, a := range c.Super.AssignList {
			if !contains(a) {
				assign = append(assign, a)
				itabs = append(itabs, c.Super.ITables[k])
			}
		}
	}

	for _, iface := range c.Interfaces {
		if !iface.IsInterface() {
			return fmt.Errorf("%w: %s implements non-interface %s", ErrIncompatibleClassChange, c.Name, iface.Name)
		}
		candidates := append([]*Class{iface}, iface.AssignList...)
		for _, t := range candidates {
			if t == nil || contains(t) {
				continue
			}
			var itab []int
			if t.IsInterface() {
				var err error
				itab, table, err = mapInterface(c, t, table)
				if err != nil {
					return err
				}
			}
			assign = append(assign, t)
			itabs = append(itabs, itab)
		}
	}

	c.VTable = table
	c.AssignList = assign
	c.ITables = itabs

	if !c.IsInterface() && !c.IsAbstract() {
		if err := checkImplemented(c); err != nil {
			return err
		}
	}

	for _, m := range c.LocalMethods {
		mt, err := classfile.ParseMethodDescriptor(m.Descriptor)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrClassFormat, m, err)
		}
		m.ArgSlots = mt.ArgSlots()
		m.Return = mt.Return
		m.StackConsume = m.ArgSlots
		if !m.IsStatic() {
			m.StackConsume++
		}
	}

	linkLog.Debugf("linked %s: %d slots, %d ancestors", c.Name, len(c.VTable), len(c.AssignList))
	return nil
}

// baseTable clones the table c inherits from. Classes extend their
// superclass table. Interfaces start from their largest superinterface and
// merge in the methods of the others.
func baseTable(c *Class) []*Method {
	var base []*Method
	if c.IsInterface() {
		for _, i := range c.Interfaces {
			if len(i.VTable) > len(base) {
				base = i.VTable
			}
		}
	} else if c.Super != nil {
		base = c.Super.VTable
	}
	table := make([]*Method, len(base), len(base)+len(c.LocalMethods))
	copy(table, base)
	if c.IsInterface() {
		for _, i := range c.Interfaces {
			for _, m := range i.VTable {
				if findSlot(table, m) < 0 {
					table = append(table, m)
				}
			}
		}
	}
	return table
}

// mapInterface builds the interface map of iface for c, adding slots for
// missing implementations.
func mapInterface(c, iface *Class, table []*Method) ([]int, []*Method, error) {
	itab := make([]int, len(iface.VTable))
	for s, im := range iface.VTable {
		slot := findSlot(table, im)
		if slot >= 0 {
			// An abstract placeholder gives way to a default method.
			if cur := table[slot]; cur.IsAbstract() && cur.IsSynthetic() && !im.IsAbstract() {
				table[slot] = im
			}
			itab[s] = slot
			continue
		}

		if im.IsAbstract() {
			im = abstractPlaceholder(c, im, len(table))
		}
		itab[s] = len(table)
		table = append(table, im)
	}
	return itab, table, nil
}

// checkImplemented looks for interface methods a concrete class left
// without an implementation, including those inherited from abstract
// superclasses.
func checkImplemented(c *Class) error {
	for _, m := range c.VTable {
		if !m.IsAbstract() || !m.IsSynthetic() {
			continue
		}
		msg := fmt.Sprintf("%s does not implement %s.%s%s", c.Name, m.Class.Name, m.Name, m.Descriptor)
		if c.Flags&FlagPredefined != 0 {
			return fmt.Errorf("%w: %s", ErrAbstractLinkage, msg)
		}
		c.abstractMsg = msg
		c.init.markAbstractError()
		linkLog.Warningf("deferring abstract linkage error: %s", msg)
		return nil
	}
	return nil
}

func abstractPlaceholder(c *Class, im *Method, slot int) *Method {
	return &Method{
		Name:         im.Name,
		Descriptor:   im.Descriptor,
		Access:       classfile.AccPublic | classfile.AccAbstract | classfile.AccSynthetic,
		Class:        c,
		MethodIndex:  slot,
		StackConsume: im.StackConsume,
		ArgSlots:     im.ArgSlots,
		Return:       im.Return,
	}
}

func findSlot(table []*Method, m *Method) int {
	for i, t := range table {
		if t.sameSignature(m) {
			return i
		}
	}
	return -1
}
