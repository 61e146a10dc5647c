package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/javelin/classfile"
	"github.com/chazu/javelin/classpath"
	"github.com/tliron/commonlog"
)

var loaderLog = commonlog.GetLogger("javelin.loader")

// ClassSource supplies class definitions by internal name. A missing class
// is reported with an error wrapping classpath.ErrNotFound.
type ClassSource interface {
	Find(name string) (*classfile.Class, error)
}

// ClassLoader defines classes from a source after delegating to its parent.
// The bootstrap loader is represented by a nil *ClassLoader.
type ClassLoader struct {
	Name   string
	Parent *ClassLoader
	Source ClassSource
}

// NewClassLoader creates a loader. A nil parent delegates to bootstrap.
func (vm *VM) NewClassLoader(name string, parent *ClassLoader, src ClassSource) *ClassLoader {
	return &ClassLoader{Name: name, Parent: parent, Source: src}
}

func (l *ClassLoader) String() string {
	if l == nil {
		return "bootstrap"
	}
	return l.Name
}

func (vm *VM) sourceOf(loader *ClassLoader) ClassSource {
	if loader == nil {
		return vm.cfg.BootSource
	}
	return loader.Source
}

// defineOptions controls definition of classes built by the runtime itself.
type defineOptions struct {
	predefined bool
	flags      ClassFlags
	builtins   map[string]NativeFunc // name+descriptor -> implementation
}

// ---------------------------------------------------------------------------
// Lookup
// ---------------------------------------------------------------------------

// LocateClass finds or loads name through loader without raising: failures
// are reported as Go errors (ErrClassNotFound, ErrClassCircularity,
// ErrClassFormat, ...).
func (e *Env) LocateClass(loader *ClassLoader, name string) (*Class, error) {
	if strings.HasPrefix(name, "[") {
		return e.arrayClass(loader, name)
	}

	ns := e.vm.Registry.Namespace(loader)
	c, err := ns.RetrieveClass(e, name)
	if err == nil || !errors.Is(err, ErrClassNotFound) {
		return c, err
	}

	if loader != nil {
		c, err := e.LocateClass(loader.Parent, name)
		if err == nil || !errors.Is(err, ErrClassNotFound) {
			return c, err
		}
	}

	src := e.vm.sourceOf(loader)
	if src == nil {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
	}

	existing, err := ns.beginDefine(e, name)
	if existing != nil || err != nil {
		return existing, err
	}
	c, err = e.loadFrom(loader, src, name)
	if err != nil {
		ns.abortDefine(e, name)
		return nil, err
	}
	return ns.finishDefine(e, c)
}

func (e *Env) loadFrom(loader *ClassLoader, src ClassSource, name string) (*Class, error) {
	cf, err := src.Find(name)
	if errors.Is(err, classpath.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrClassFormat, name, err)
	}
	if cf.Name != name {
		return nil, fmt.Errorf("%w: %s (wrong name: %s)", ErrClassNotFound, name, cf.Name)
	}
	loaderLog.Debugf("loading %s via %s", name, loader)
	return e.defineClass(loader, cf, defineOptions{})
}

// FindClass is LocateClass with failures raised as Java faults. When
// linking is set a missing class is NoClassDefFoundError rather than
// ClassNotFoundException.
func (e *Env) FindClass(loader *ClassLoader, name string, linking bool) (*Class, error) {
	c, err := e.LocateClass(loader, name)
	if err == nil {
		return c, nil
	}
	return nil, e.raiseLinkError(err, name, linking)
}

func (e *Env) raiseLinkError(err error, name string, linking bool) error {
	msg := err.Error()
	var missing *MissingClassError
	switch {
	case errors.Is(err, ErrExceptionPending), errors.Is(err, ErrInvalidRequest):
		return err
	case errors.Is(err, ErrOutOfMemory):
		return e.raiseAllocFailure(err)
	case errors.Is(err, ErrClassCircularity):
		return e.ThrowCore(CoreClassCircularityError, javaName(name))
	case errors.As(err, &missing):
		return e.ThrowCore(CoreNoClassDefFoundError, missing.Name)
	case errors.Is(err, ErrClassNotFound):
		if linking {
			return e.ThrowCore(CoreNoClassDefFoundError, name)
		}
		return e.ThrowCore(CoreClassNotFoundException, javaName(name))
	case errors.Is(err, ErrClassFormat):
		return e.ThrowCore(CoreClassFormatError, msg)
	case errors.Is(err, ErrAbstractLinkage):
		return e.ThrowCore(CoreAbstractMethodError, msg)
	case errors.Is(err, ErrIncompatibleClassChange):
		return e.ThrowCore(CoreIncompatibleClassChangeError, msg)
	case errors.Is(err, ErrVerify):
		return e.ThrowCore(CoreVerifyError, msg)
	case errors.Is(err, ErrProhibitedPackage):
		return e.ThrowCore(CoreSecurityException, msg)
	case errors.Is(err, ErrDuplicateClass):
		return e.ThrowCore(CoreLinkageError, msg)
	}
	return e.ThrowCore(CoreInternalError, msg)
}

// DefineClass links cf and stores it in loader's namespace. Defining a name
// that already exists is ErrDuplicateClass.
func (e *Env) DefineClass(loader *ClassLoader, cf *classfile.Class) (*Class, error) {
	ns := e.vm.Registry.Namespace(loader)
	existing, err := ns.beginDefine(e, cf.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateClass, cf.Name)
	}
	c, err := e.defineClass(loader, cf, defineOptions{})
	if err != nil {
		ns.abortDefine(e, cf.Name)
		return nil, err
	}
	return ns.finishDefine(e, c)
}

// ---------------------------------------------------------------------------
// Definition
// ---------------------------------------------------------------------------

// defineClass builds and links a runtime class from cf without storing it.
func (e *Env) defineClass(loader *ClassLoader, cf *classfile.Class, opts defineOptions) (*Class, error) {
	if err := cf.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassFormat, err)
	}
	if loader != nil && isReservedPackage(cf.Name) {
		return nil, fmt.Errorf("%w: %s", ErrProhibitedPackage, javaName(packageOf(cf.Name)))
	}

	c := &Class{
		Name:       cf.Name,
		Loader:     loader,
		Access:     cf.Access,
		SourceFile: cf.SourceFile,
		File:       cf,
	}
	if opts.predefined {
		c.Flags |= FlagPredefined
	}
	c.Flags |= opts.flags

	if cf.Super != "" {
		sc, err := e.LocateClass(loader, cf.Super)
		if err != nil {
			return nil, dependencyError(err, cf.Super, cf.Name)
		}
		switch {
		case sc.IsInterface():
			return nil, fmt.Errorf("%w: class %s has interface %s as super class", ErrIncompatibleClassChange, c.Name, sc.Name)
		case sc.IsFinal():
			return nil, fmt.Errorf("%w: %s cannot inherit from final class %s", ErrVerify, c.Name, sc.Name)
		case sc.IsArray() || sc.IsPrimitive():
			return nil, fmt.Errorf("%w: %s has invalid superclass %s", ErrClassFormat, c.Name, sc.Name)
		}
		c.Super = sc
		c.Flags |= sc.Flags & (FlagThrowable | FlagNativeData)
	}
	if c.IsInterface() && c.Super != nil && c.Super.Super != nil {
		return nil, fmt.Errorf("%w: interface %s must extend java/lang/Object", ErrClassFormat, c.Name)
	}

	for _, in := range cf.Interfaces {
		ic, err := e.LocateClass(loader, in)
		if err != nil {
			return nil, dependencyError(err, in, cf.Name)
		}
		if !ic.IsInterface() {
			return nil, fmt.Errorf("%w: %s implements class %s", ErrIncompatibleClassChange, c.Name, ic.Name)
		}
		c.Interfaces = append(c.Interfaces, ic)
	}

	for i := range cf.Methods {
		fm := &cf.Methods[i]
		m := &Method{
			Name:       fm.Name,
			Descriptor: fm.Descriptor,
			Access:     fm.Access,
			Class:      c,
			Code:       fm.Code,
		}
		if fn, ok := opts.builtins[fm.Name+fm.Descriptor]; ok {
			m.Builtin = fn
		}
		c.LocalMethods = append(c.LocalMethods, m)
	}
	for i := range cf.Fields {
		ff := &cf.Fields[i]
		f := &Field{
			Name:          ff.Name,
			Descriptor:    ff.Descriptor,
			Access:        ff.Access,
			Class:         c,
			ConstantValue: ff.ConstantValue,
		}
		if ff.Offset != nil {
			f.Offset = *ff.Offset
			f.predefined = true
		}
		c.LocalFields = append(c.LocalFields, f)
	}

	if err := BuildClassHierData(c); err != nil {
		return nil, err
	}
	if err := PackClassFieldData(c, e.vm.cfg.Allocator); err != nil {
		return nil, err
	}
	if err := e.vm.cfg.Verifier.Verify(c); err != nil {
		if !errors.Is(err, ErrVerify) {
			err = fmt.Errorf("%w: %v", ErrVerify, err)
		}
		return nil, err
	}
	return c, nil
}

// dependencyError turns a missing superclass or interface into a
// MissingClassError naming it. Other failures pass through unchanged.
func dependencyError(err error, name, dependent string) error {
	if errors.Is(err, ErrClassNotFound) {
		return &MissingClassError{Name: name, Dependent: dependent}
	}
	return err
}

var reservedPackages = []string{"java/", "javax/", "javelin/"}

func isReservedPackage(name string) bool {
	for _, p := range reservedPackages {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Arrays and primitives
// ---------------------------------------------------------------------------

// arrayClass returns the array class name ("[I", "[[Ljava/lang/String;"),
// creating it in the namespace of its element type's loader.
func (e *Env) arrayClass(loader *ClassLoader, name string) (*Class, error) {
	compDesc := name[1:]
	var comp *Class
	switch {
	case compDesc == "":
		return nil, fmt.Errorf("%w: %s", ErrClassFormat, name)
	case compDesc[0] == '[':
		c, err := e.arrayClass(loader, compDesc)
		if err != nil {
			return nil, err
		}
		comp = c
	case compDesc[0] == 'L':
		if !strings.HasSuffix(compDesc, ";") {
			return nil, fmt.Errorf("%w: %s", ErrClassFormat, name)
		}
		c, err := e.LocateClass(loader, compDesc[1:len(compDesc)-1])
		if err != nil {
			return nil, err
		}
		comp = c
	default:
		p, ok := classfile.PrimitiveName(compDesc)
		if !ok || p == "void" {
			return nil, fmt.Errorf("%w: %s", ErrClassFormat, name)
		}
		comp = e.vm.primitives[p]
	}
	return e.vm.arrayOf(comp)
}

// arrayOf returns the one-dimension-deeper array class of comp.
func (vm *VM) arrayOf(comp *Class) (*Class, error) {
	name := "[" + comp.Descriptor()
	ns := vm.Registry.Namespace(comp.Loader)
	if c := ns.Lookup(name); c != nil {
		return c, nil
	}
	if comp.Dims+1 > 255 {
		return nil, fmt.Errorf("%w: %s has too many dimensions", ErrClassFormat, name)
	}
	c := &Class{
		Name:       name,
		Loader:     comp.Loader,
		Access:     classfile.AccPublic | classfile.AccFinal | classfile.AccAbstract,
		Flags:      FlagArray | FlagPredefined,
		Super:      vm.ObjectClass,
		Interfaces: []*Class{vm.CloneableClass, vm.SerializableClass},
		Component:  comp,
		Dims:       comp.Dims + 1,
	}
	if err := BuildClassHierData(c); err != nil {
		return nil, err
	}
	c.init.markComplete()
	return ns.NameSpaceStore(c, true)
}

// ArrayOf is the exported form of arrayOf.
func (vm *VM) ArrayOf(comp *Class) (*Class, error) { return vm.arrayOf(comp) }

func (vm *VM) definePrimitives() error {
	var batch []*Class
	for _, p := range []string{"boolean", "byte", "char", "short", "int", "long", "float", "double", "void"} {
		c := &Class{
			Name:   p,
			Access: classfile.AccPublic | classfile.AccFinal | classfile.AccAbstract,
			Flags:  FlagPrimitive | FlagPredefined,
		}
		c.init.markComplete()
		batch = append(batch, c)
	}
	stored, err := vm.Registry.RegisterClasses(nil, batch)
	if err != nil {
		return err
	}
	for _, c := range stored {
		vm.primitives[c.Name] = c
	}
	return nil
}
