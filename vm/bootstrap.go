package vm

import (
	_ "embed"
	"fmt"

	"github.com/chazu/javelin/classfile"
)

//go:embed boot/bootstrap.yaml
var bootstrapYAML string

// Runtime flags of bootstrap classes; subclasses inherit them.
var bootFlags = map[string]ClassFlags{
	"java/lang/String":        FlagNativeData,
	"java/lang/Class":         FlagNativeData,
	"java/lang/StringBuilder": FlagNativeData,
	"java/lang/Throwable":     FlagThrowable | FlagNativeData,
}

// bootstrap defines the primitive types, the bootstrap class set and the
// core exception hierarchy in the bootstrap namespace.
func (vm *VM) bootstrap(env *Env) error {
	if err := vm.definePrimitives(); err != nil {
		return err
	}
	classes, err := classfile.ParseYAML(bootstrapYAML)
	if err != nil {
		return err
	}
	table := bootBuiltins()
	for _, cf := range classes {
		c, err := vm.defineBoot(env, cf, table[cf.Name])
		if err != nil {
			return fmt.Errorf("%s: %w", cf.Name, err)
		}
		switch c.Name {
		case "java/lang/Object":
			vm.ObjectClass = c
		case "java/lang/String":
			vm.StringClass = c
		case "java/lang/Class":
			vm.ClassClass = c
		case "java/lang/StringBuilder":
			vm.StringBuilderClass = c
		case "java/lang/Cloneable":
			vm.CloneableClass = c
		case "java/io/Serializable":
			vm.SerializableClass = c
		case "java/lang/Throwable":
			vm.ThrowableClass = c
			vm.core[CoreThrowable] = c
		}
	}
	if vm.ObjectClass == nil || vm.ThrowableClass == nil || vm.StringClass == nil || vm.ClassClass == nil {
		return fmt.Errorf("%w: incomplete bootstrap class set", ErrClassNotFound)
	}
	vm.throwableMessage = vm.ThrowableClass.DeclaredField("detailMessage", "Ljava/lang/String;")
	vm.throwableCause = vm.ThrowableClass.DeclaredField("cause", "Ljava/lang/Throwable;")

	ctors := throwableCtors()
	for ce := CoreBaseException; ce < coreCount; ce++ {
		cf := &classfile.Class{
			Name:       ce.ClassName(),
			Super:      coreHierarchy[ce].super.ClassName(),
			Access:     classfile.AccPublic,
			Pool:       classfile.NewPoolBuilder().Pool(),
			SourceFile: ce.ClassName()[len("java/lang/"):] + ".java",
		}
		c, err := vm.defineBoot(env, cf, ctors)
		if err != nil {
			return fmt.Errorf("%s: %w", cf.Name, err)
		}
		vm.core[ce] = c
	}

	oom, err := env.NewThrowable(vm.core[CoreOutOfMemoryError], "Java heap space", nil)
	if err != nil {
		return err
	}
	traceOf(oom).trace = []TraceElement{}
	vm.oom = oom
	return nil
}

// defineBoot links cf as a predefined bootstrap class. Builtins not
// declared by cf are added to it first.
func (vm *VM) defineBoot(env *Env, cf *classfile.Class, builtins []builtin) (*Class, error) {
	fns := make(map[string]NativeFunc, len(builtins))
	for _, b := range builtins {
		if cf.FindMethod(b.name, b.desc) == nil {
			cf.Methods = append(cf.Methods, classfile.Method{Name: b.name, Descriptor: b.desc, Access: b.access})
		}
		fns[b.name+b.desc] = b.fn
	}
	c, err := env.defineClass(nil, cf, defineOptions{predefined: true, flags: bootFlags[cf.Name], builtins: fns})
	if err != nil {
		return nil, err
	}
	return vm.Registry.NameSpaceStore(nil, c, false)
}
