package vm

import (
	"sync"

	"github.com/chazu/javelin/classfile"
	"github.com/tliron/commonlog"
)

var initLog = commonlog.GetLogger("javelin.init")

// InitState is a class's initialization state. Progress is monotonic: once
// InitComplete or InitFailed is reached the state never changes again.
type InitState int32

const (
	Uninitialized InitState = iota
	InProgress
	AbstractError // linked with a missing interface implementation
	InitComplete
	InitFailed
)

func (s InitState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case InProgress:
		return "in-progress"
	case AbstractError:
		return "abstract-error"
	case InitComplete:
		return "complete"
	case InitFailed:
		return "failed"
	}
	return "unknown"
}

// classInit guards a class's InitState. Waiters block on changed, which is
// closed and replaced on every transition.
type classInit struct {
	mu      sync.Mutex
	state   InitState
	owner   *Env
	changed chan struct{}
}

func (ci *classInit) markAbstractError() {
	ci.mu.Lock()
	if ci.state == Uninitialized {
		ci.setLocked(AbstractError)
	}
	ci.mu.Unlock()
}

func (ci *classInit) markComplete() {
	ci.mu.Lock()
	ci.setLocked(InitComplete)
	ci.mu.Unlock()
}

func (ci *classInit) setLocked(s InitState) {
	ci.state = s
	if s != InProgress {
		ci.owner = nil
	}
	if ci.changed != nil {
		close(ci.changed)
		ci.changed = nil
	}
}

func (ci *classInit) waitChanLocked() <-chan struct{} {
	if ci.changed == nil {
		ci.changed = make(chan struct{})
	}
	return ci.changed
}

// InitState returns the current initialization state.
func (c *Class) InitState() InitState {
	c.init.mu.Lock()
	defer c.init.mu.Unlock()
	return c.init.state
}

// InitializeClass runs c's static initialization if it has not happened yet.
// A thread already initializing c returns immediately (initializers may
// call back into their own class); other threads wait for the outcome.
func (e *Env) InitializeClass(c *Class) error {
	ci := &c.init
	for {
		ci.mu.Lock()
		switch ci.state {
		case InitComplete:
			ci.mu.Unlock()
			return nil

		case InitFailed:
			ci.mu.Unlock()
			return e.ThrowCore(CoreNoClassDefFoundError, "Could not initialize class "+c.JavaName())

		case AbstractError:
			ci.setLocked(InitFailed)
			ci.mu.Unlock()
			return e.ThrowCore(CoreAbstractMethodError, c.abstractMsg)

		case InProgress:
			if ci.owner == e {
				ci.mu.Unlock()
				return nil
			}
			ch := ci.waitChanLocked()
			ci.mu.Unlock()
			if !e.vm.waitBounded(ch) {
				initLog.Debugf("env %s: still waiting for %s initialization", e.ID, c.Name)
			}

		case Uninitialized:
			ci.state = InProgress
			ci.owner = e
			ci.mu.Unlock()

			initLog.Debugf("initializing %s", c.Name)
			err := e.runInitializer(c)

			ci.mu.Lock()
			if err != nil {
				ci.setLocked(InitFailed)
			} else {
				ci.setLocked(InitComplete)
			}
			ci.mu.Unlock()
			if err != nil {
				initLog.Debugf("initialization of %s failed", c.Name)
			}
			return err
		}
	}
}

func (e *Env) runInitializer(c *Class) error {
	if !c.IsInterface() && c.Super != nil {
		if err := e.InitializeClass(c.Super); err != nil {
			return err
		}
	}

	for _, f := range c.LocalFields {
		if !f.IsStatic() || f.ConstantValue == 0 || c.File == nil {
			continue
		}
		v, err := e.constantValue(c, f)
		if err != nil {
			return err
		}
		f.SetStatic(v)
	}

	clinit := c.ClassInitializer()
	if clinit == nil {
		return nil
	}
	fault, err := e.invokeCaptured(clinit)
	if err != nil {
		return err
	}
	if fault == nil {
		return nil
	}
	if e.vm.coreClass(CoreError).IsAssignableFrom(fault.Class) {
		return e.Throw(fault)
	}
	wrapped, err := e.NewThrowable(e.vm.coreClass(CoreExceptionInInitializerError), "", fault)
	if err != nil {
		return err
	}
	return e.Throw(wrapped)
}

func (e *Env) constantValue(c *Class, f *Field) (Slot, error) {
	k, err := c.File.Constant(int(f.ConstantValue))
	if err != nil {
		return Slot{}, e.ThrowCore(CoreClassFormatError, err.Error())
	}
	switch k.Tag {
	case classfile.TagInteger:
		return IntSlot(int32(k.Int)), nil
	case classfile.TagLong:
		return LongSlot(k.Int), nil
	case classfile.TagFloat:
		return FloatSlot(float32(k.Float)), nil
	case classfile.TagDouble:
		return DoubleSlot(k.Float), nil
	case classfile.TagString:
		s, err := e.vm.Intern(k.Text)
		if err != nil {
			return Slot{}, e.raiseAllocFailure(err)
		}
		return RefSlot(s), nil
	}
	return Slot{}, e.ThrowCore(CoreClassFormatError, "bad ConstantValue for "+f.String())
}
