package vm

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/chazu/javelin/classfile"
)

// builtin declares a method of a bootstrap class implemented in Go. Methods
// the class file does not declare are added with the given access flags.
type builtin struct {
	name   string
	desc   string
	access classfile.AccessFlags
	fn     NativeFunc
}

const (
	accPub       = classfile.AccPublic
	accPubStatic = classfile.AccPublic | classfile.AccStatic
	accPubFinal  = classfile.AccPublic | classfile.AccFinal
)

// bootBuiltins maps bootstrap class names to their Go-implemented methods.
func bootBuiltins() map[string][]builtin {
	return map[string][]builtin{
		"java/lang/Object": {
			{"hashCode", "()I", accPub, objectHashCode},
			{"equals", "(Ljava/lang/Object;)Z", accPub, objectEquals},
			{"toString", "()Ljava/lang/String;", accPub, objectToString},
			{"getClass", "()Ljava/lang/Class;", accPubFinal, objectGetClass},
			{"clone", "()Ljava/lang/Object;", classfile.AccProtected, objectClone},
			{"wait", "()V", accPubFinal, objectWait},
			{"wait", "(J)V", accPubFinal, objectWait},
			{"notify", "()V", accPubFinal, objectNotify},
			{"notifyAll", "()V", accPubFinal, objectNotifyAll},
		},
		"java/lang/String": {
			{"<init>", "()V", accPub, stringInit},
			{"length", "()I", accPub, stringLength},
			{"charAt", "(I)C", accPub, stringCharAt},
			{"isEmpty", "()Z", accPub, stringIsEmpty},
			{"equals", "(Ljava/lang/Object;)Z", accPub, stringEquals},
			{"hashCode", "()I", accPub, stringHashCode},
			{"toString", "()Ljava/lang/String;", accPub, stringToString},
			{"concat", "(Ljava/lang/String;)Ljava/lang/String;", accPub, stringConcat},
			{"substring", "(II)Ljava/lang/String;", accPub, stringSubstring},
			{"indexOf", "(I)I", accPub, stringIndexOf},
			{"intern", "()Ljava/lang/String;", accPub, stringIntern},
			{"valueOf", "(I)Ljava/lang/String;", accPubStatic, stringValueOfInt},
			{"valueOf", "(J)Ljava/lang/String;", accPubStatic, stringValueOfLong},
			{"valueOf", "(D)Ljava/lang/String;", accPubStatic, stringValueOfDouble},
			{"valueOf", "(Ljava/lang/Object;)Ljava/lang/String;", accPubStatic, stringValueOfObject},
		},
		"java/lang/Class": {
			{"getName", "()Ljava/lang/String;", accPub, classGetName},
			{"toString", "()Ljava/lang/String;", accPub, classToString},
			{"isArray", "()Z", accPub, classIsArray},
			{"isInterface", "()Z", accPub, classIsInterface},
			{"isPrimitive", "()Z", accPub, classIsPrimitive},
			{"getSuperclass", "()Ljava/lang/Class;", accPub, classGetSuperclass},
			{"getComponentType", "()Ljava/lang/Class;", accPub, classGetComponentType},
			{"isInstance", "(Ljava/lang/Object;)Z", accPub, classIsInstance},
			{"isAssignableFrom", "(Ljava/lang/Class;)Z", accPub, classIsAssignableFrom},
			{"forName", "(Ljava/lang/String;)Ljava/lang/Class;", accPubStatic, classForName},
		},
		"java/lang/StringBuilder": {
			{"<init>", "()V", accPub, builderInit},
			{"<init>", "(Ljava/lang/String;)V", accPub, builderInit},
			{"append", "(Ljava/lang/String;)Ljava/lang/StringBuilder;", accPub, builderAppend},
			{"append", "(Ljava/lang/Object;)Ljava/lang/StringBuilder;", accPub, builderAppend},
			{"append", "(I)Ljava/lang/StringBuilder;", accPub, builderAppendKind('I')},
			{"append", "(J)Ljava/lang/StringBuilder;", accPub, builderAppendKind('J')},
			{"append", "(C)Ljava/lang/StringBuilder;", accPub, builderAppendKind('C')},
			{"append", "(Z)Ljava/lang/StringBuilder;", accPub, builderAppendKind('Z')},
			{"append", "(D)Ljava/lang/StringBuilder;", accPub, builderAppendKind('D')},
			{"length", "()I", accPub, builderLength},
			{"charAt", "(I)C", accPub, builderCharAt},
			{"toString", "()Ljava/lang/String;", accPub, builderToString},
		},
		"java/lang/System": {
			{"currentTimeMillis", "()J", accPubStatic, systemCurrentTimeMillis},
			{"nanoTime", "()J", accPubStatic, systemNanoTime},
			{"identityHashCode", "(Ljava/lang/Object;)I", accPubStatic, systemIdentityHashCode},
			{"arraycopy", "(Ljava/lang/Object;ILjava/lang/Object;II)V", accPubStatic, systemArraycopy},
		},
		"java/lang/Throwable": append(throwableCtors(),
			builtin{"getMessage", "()Ljava/lang/String;", accPub, throwableGetMessage},
			builtin{"getLocalizedMessage", "()Ljava/lang/String;", accPub, throwableGetMessage},
			builtin{"getCause", "()Ljava/lang/Throwable;", accPub, throwableGetCause},
			builtin{"initCause", "(Ljava/lang/Throwable;)Ljava/lang/Throwable;", accPub, throwableInitCause},
			builtin{"fillInStackTrace", "()Ljava/lang/Throwable;", accPub, throwableFillInStackTrace},
			builtin{"toString", "()Ljava/lang/String;", accPub, throwableToString},
			builtin{"printStackTrace", "()V", accPub, throwablePrintStackTrace},
		),
		"javelin/Console": {
			{"print", "(Ljava/lang/String;)V", accPubStatic, consolePrint(false)},
			{"print", "(I)V", accPubStatic, consolePrint(false)},
			{"println", "(Ljava/lang/String;)V", accPubStatic, consolePrint(true)},
			{"println", "(Ljava/lang/Object;)V", accPubStatic, consolePrint(true)},
			{"println", "(I)V", accPubStatic, consolePrint(true)},
			{"println", "(J)V", accPubStatic, consolePrint(true)},
			{"println", "(D)V", accPubStatic, consolePrint(true)},
			{"println", "(Z)V", accPubStatic, consolePrint(true)},
			{"println", "(C)V", accPubStatic, consolePrint(true)},
		},
	}
}

// throwableCtors are the constructors every core exception class declares.
func throwableCtors() []builtin {
	return []builtin{
		{"<init>", "()V", accPub, throwableInit},
		{"<init>", "(Ljava/lang/String;)V", accPub, throwableInit},
		{"<init>", "(Ljava/lang/String;Ljava/lang/Throwable;)V", accPub, throwableInit},
		{"<init>", "(Ljava/lang/Throwable;)V", accPub, throwableInitCause},
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (e *Env) stringSlot(s string) (Slot, error) {
	o, err := e.vm.NewString(s)
	if err != nil {
		return Slot{}, err
	}
	return RefSlot(o), nil
}

// stringOf converts o to text the way string concatenation does, calling
// toString() on objects that are not strings.
func (e *Env) stringOf(o *Object) (string, error) {
	if o == nil {
		return "null", nil
	}
	if s, ok := o.native.(string); ok {
		return s, nil
	}
	m := e.vm.ObjectClass.DeclaredMethod("toString", "()Ljava/lang/String;")
	if err := e.Push(RefSlot(o)); err != nil {
		return "", err
	}
	v, err := e.CallMethod(m)
	if err != nil {
		return "", err
	}
	return v.Ref.GoString(), nil
}

// callerClass returns the class of the nearest method below the current
// builtin frame.
func (e *Env) callerClass() *Class {
	for i := e.frames[e.top].Prev; i > 0; i = e.frames[i].Prev {
		f := &e.frames[i]
		if f.Flags&FrameCapture == 0 && f.Method != nil {
			return f.Method.Class
		}
	}
	return nil
}

func utf16Of(s string) []uint16 { return utf16.Encode([]rune(s)) }

// formatDouble renders v the way Double.toString does.
func formatDouble(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	}
	if a := math.Abs(v); a == 0 || (a >= 1e-3 && a < 1e7) {
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.ContainsRune(s, '.') {
			s += ".0"
		}
		return s
	}
	s := strconv.FormatFloat(v, 'E', -1, 64)
	mant, exp, _ := strings.Cut(s, "E")
	if !strings.ContainsRune(mant, '.') {
		mant += ".0"
	}
	n, _ := strconv.Atoi(exp)
	return mant + "E" + strconv.Itoa(n)
}

// formatArg renders a value of the primitive or reference type desc.
func (e *Env) formatArg(desc byte, v Slot) (string, error) {
	switch desc {
	case 'I', 'B', 'S':
		return strconv.Itoa(int(v.Int())), nil
	case 'J':
		return strconv.FormatInt(v.Long(), 10), nil
	case 'C':
		return string(rune(uint16(v.Int()))), nil
	case 'Z':
		return strconv.FormatBool(v.Boolean()), nil
	case 'F':
		return formatDouble(float64(v.Float())), nil
	case 'D':
		return formatDouble(v.Double()), nil
	}
	return e.stringOf(v.Ref)
}

// ---------------------------------------------------------------------------
// java/lang/Object
// ---------------------------------------------------------------------------

func objectHashCode(e *Env, args []Slot) (Slot, error) {
	return IntSlot(identityHash(args[0].Ref)), nil
}

func objectEquals(e *Env, args []Slot) (Slot, error) {
	return BoolSlot(args[0].Ref == args[1].Ref), nil
}

func objectToString(e *Env, args []Slot) (Slot, error) {
	o := args[0].Ref
	return e.stringSlot(fmt.Sprintf("%s@%x", o.Class.JavaName(), identityHash(o)))
}

func objectGetClass(e *Env, args []Slot) (Slot, error) {
	m, err := e.vm.Mirror(args[0].Ref.Class)
	if err != nil {
		return Slot{}, err
	}
	return RefSlot(m), nil
}

func objectClone(e *Env, args []Slot) (Slot, error) {
	o := args[0].Ref
	if !o.IsArray() && !e.vm.CloneableClass.IsAssignableFrom(o.Class) {
		return Slot{}, e.ThrowCore(CoreCloneNotSupportedException, o.Class.JavaName())
	}
	c, err := e.vm.cloneObject(o)
	if err != nil {
		return Slot{}, err
	}
	if _, ok := o.native.(*throwableData); ok {
		c.native = &throwableData{trace: StackTrace(o)}
	}
	return RefSlot(c), nil
}

func objectWait(e *Env, args []Slot) (Slot, error) {
	var timeout time.Duration
	if len(args) > 1 {
		ms := args[1].Long()
		if ms < 0 {
			return Slot{}, e.ThrowCore(CoreIllegalArgumentException, "timeout value is negative")
		}
		timeout = time.Duration(ms) * time.Millisecond
	}
	if _, err := args[0].Ref.Monitor().Wait(e, timeout); err != nil {
		return Slot{}, e.ThrowCore(CoreIllegalMonitorStateException, "current thread is not owner")
	}
	return Slot{}, nil
}

func objectNotify(e *Env, args []Slot) (Slot, error) {
	if err := args[0].Ref.Monitor().Notify(e); err != nil {
		return Slot{}, e.ThrowCore(CoreIllegalMonitorStateException, "current thread is not owner")
	}
	return Slot{}, nil
}

func objectNotifyAll(e *Env, args []Slot) (Slot, error) {
	if err := args[0].Ref.Monitor().NotifyAll(e); err != nil {
		return Slot{}, e.ThrowCore(CoreIllegalMonitorStateException, "current thread is not owner")
	}
	return Slot{}, nil
}

// ---------------------------------------------------------------------------
// java/lang/String
// ---------------------------------------------------------------------------

func stringInit(e *Env, args []Slot) (Slot, error) {
	args[0].Ref.native = ""
	return Slot{}, nil
}

func stringLength(e *Env, args []Slot) (Slot, error) {
	return IntSlot(int32(len(utf16Of(args[0].Ref.GoString())))), nil
}

func stringCharAt(e *Env, args []Slot) (Slot, error) {
	units := utf16Of(args[0].Ref.GoString())
	i := args[1].Int()
	if i < 0 || int(i) >= len(units) {
		return Slot{}, e.ThrowCore(CoreStringIndexOutOfBoundsException,
			fmt.Sprintf("index %d, length %d", i, len(units)))
	}
	return IntSlot(int32(units[i])), nil
}

func stringIsEmpty(e *Env, args []Slot) (Slot, error) {
	return BoolSlot(args[0].Ref.GoString() == ""), nil
}

func stringEquals(e *Env, args []Slot) (Slot, error) {
	other := args[1].Ref
	if other == nil || other.Class != e.vm.StringClass {
		return BoolSlot(false), nil
	}
	return BoolSlot(args[0].Ref.GoString() == other.GoString()), nil
}

func stringHashCode(e *Env, args []Slot) (Slot, error) {
	var h int32
	for _, u := range utf16Of(args[0].Ref.GoString()) {
		h = 31*h + int32(u)
	}
	return IntSlot(h), nil
}

func stringToString(e *Env, args []Slot) (Slot, error) { return args[0], nil }

func stringConcat(e *Env, args []Slot) (Slot, error) {
	if args[1].Ref == nil {
		return Slot{}, e.ThrowCore(CoreNullPointerException, "")
	}
	return e.stringSlot(args[0].Ref.GoString() + args[1].Ref.GoString())
}

func stringSubstring(e *Env, args []Slot) (Slot, error) {
	units := utf16Of(args[0].Ref.GoString())
	begin, end := args[1].Int(), args[2].Int()
	if begin < 0 || end > int32(len(units)) || begin > end {
		return Slot{}, e.ThrowCore(CoreStringIndexOutOfBoundsException,
			fmt.Sprintf("begin %d, end %d, length %d", begin, end, len(units)))
	}
	return e.stringSlot(string(utf16.Decode(units[begin:end])))
}

func stringIndexOf(e *Env, args []Slot) (Slot, error) {
	ch := uint16(args[1].Int())
	for i, u := range utf16Of(args[0].Ref.GoString()) {
		if u == ch {
			return IntSlot(int32(i)), nil
		}
	}
	return IntSlot(-1), nil
}

func stringIntern(e *Env, args []Slot) (Slot, error) {
	s, err := e.vm.Intern(args[0].Ref.GoString())
	if err != nil {
		return Slot{}, err
	}
	return RefSlot(s), nil
}

func stringValueOfInt(e *Env, args []Slot) (Slot, error) {
	return e.stringSlot(strconv.Itoa(int(args[0].Int())))
}

func stringValueOfLong(e *Env, args []Slot) (Slot, error) {
	return e.stringSlot(strconv.FormatInt(args[0].Long(), 10))
}

func stringValueOfDouble(e *Env, args []Slot) (Slot, error) {
	return e.stringSlot(formatDouble(args[0].Double()))
}

func stringValueOfObject(e *Env, args []Slot) (Slot, error) {
	s, err := e.stringOf(args[0].Ref)
	if err != nil {
		return Slot{}, err
	}
	return e.stringSlot(s)
}

// ---------------------------------------------------------------------------
// java/lang/Class
// ---------------------------------------------------------------------------

func classGetName(e *Env, args []Slot) (Slot, error) {
	return e.stringSlot(ClassOfMirror(args[0].Ref).JavaName())
}

func classToString(e *Env, args []Slot) (Slot, error) {
	c := ClassOfMirror(args[0].Ref)
	prefix := "class "
	switch {
	case c.IsPrimitive():
		prefix = ""
	case c.IsInterface():
		prefix = "interface "
	}
	return e.stringSlot(prefix + c.JavaName())
}

func classIsArray(e *Env, args []Slot) (Slot, error) {
	return BoolSlot(ClassOfMirror(args[0].Ref).IsArray()), nil
}

func classIsInterface(e *Env, args []Slot) (Slot, error) {
	return BoolSlot(ClassOfMirror(args[0].Ref).IsInterface()), nil
}

func classIsPrimitive(e *Env, args []Slot) (Slot, error) {
	return BoolSlot(ClassOfMirror(args[0].Ref).IsPrimitive()), nil
}

func (e *Env) mirrorSlot(c *Class) (Slot, error) {
	if c == nil {
		return NullSlot, nil
	}
	m, err := e.vm.Mirror(c)
	if err != nil {
		return Slot{}, err
	}
	return RefSlot(m), nil
}

func classGetSuperclass(e *Env, args []Slot) (Slot, error) {
	c := ClassOfMirror(args[0].Ref)
	if c.IsInterface() {
		return NullSlot, nil
	}
	return e.mirrorSlot(c.Super)
}

func classGetComponentType(e *Env, args []Slot) (Slot, error) {
	return e.mirrorSlot(ClassOfMirror(args[0].Ref).Component)
}

func classIsInstance(e *Env, args []Slot) (Slot, error) {
	o := args[1].Ref
	return BoolSlot(o != nil && ClassOfMirror(args[0].Ref).IsAssignableFrom(o.Class)), nil
}

func classIsAssignableFrom(e *Env, args []Slot) (Slot, error) {
	other := ClassOfMirror(args[1].Ref)
	if other == nil {
		return Slot{}, e.ThrowCore(CoreNullPointerException, "")
	}
	return BoolSlot(ClassOfMirror(args[0].Ref).IsAssignableFrom(other)), nil
}

func classForName(e *Env, args []Slot) (Slot, error) {
	if args[0].Ref == nil {
		return Slot{}, e.ThrowCore(CoreNullPointerException, "")
	}
	name := strings.ReplaceAll(args[0].Ref.GoString(), ".", "/")
	var loader *ClassLoader
	if caller := e.callerClass(); caller != nil {
		loader = caller.Loader
	}
	c, err := e.FindClass(loader, name, false)
	if err != nil {
		return Slot{}, err
	}
	if err := e.InitializeClass(c); err != nil {
		return Slot{}, err
	}
	return e.mirrorSlot(c)
}

// ---------------------------------------------------------------------------
// java/lang/StringBuilder
// ---------------------------------------------------------------------------

func builderOf(o *Object) *strings.Builder {
	if b, ok := o.native.(*strings.Builder); ok {
		return b
	}
	b := &strings.Builder{}
	o.native = b
	return b
}

func builderInit(e *Env, args []Slot) (Slot, error) {
	b := builderOf(args[0].Ref)
	if len(args) > 1 {
		if args[1].Ref == nil {
			return Slot{}, e.ThrowCore(CoreNullPointerException, "")
		}
		b.WriteString(args[1].Ref.GoString())
	}
	return Slot{}, nil
}

func builderAppend(e *Env, args []Slot) (Slot, error) {
	s, err := e.stringOf(args[1].Ref)
	if err != nil {
		return Slot{}, err
	}
	builderOf(args[0].Ref).WriteString(s)
	return args[0], nil
}

func builderAppendKind(desc byte) NativeFunc {
	return func(e *Env, args []Slot) (Slot, error) {
		s, err := e.formatArg(desc, args[1])
		if err != nil {
			return Slot{}, err
		}
		builderOf(args[0].Ref).WriteString(s)
		return args[0], nil
	}
}

func builderLength(e *Env, args []Slot) (Slot, error) {
	return IntSlot(int32(len(utf16Of(builderOf(args[0].Ref).String())))), nil
}

func builderCharAt(e *Env, args []Slot) (Slot, error) {
	units := utf16Of(builderOf(args[0].Ref).String())
	i := args[1].Int()
	if i < 0 || int(i) >= len(units) {
		return Slot{}, e.ThrowCore(CoreStringIndexOutOfBoundsException,
			fmt.Sprintf("index %d, length %d", i, len(units)))
	}
	return IntSlot(int32(units[i])), nil
}

func builderToString(e *Env, args []Slot) (Slot, error) {
	return e.stringSlot(builderOf(args[0].Ref).String())
}

// ---------------------------------------------------------------------------
// java/lang/System
// ---------------------------------------------------------------------------

var startTime = time.Now()

func systemCurrentTimeMillis(e *Env, args []Slot) (Slot, error) {
	return LongSlot(time.Now().UnixMilli()), nil
}

func systemNanoTime(e *Env, args []Slot) (Slot, error) {
	return LongSlot(int64(time.Since(startTime))), nil
}

func systemIdentityHashCode(e *Env, args []Slot) (Slot, error) {
	return IntSlot(identityHash(args[0].Ref)), nil
}

func systemArraycopy(e *Env, args []Slot) (Slot, error) {
	src, srcPos, dst, dstPos, n := args[0].Ref, args[1].Int(), args[2].Ref, args[3].Int(), args[4].Int()
	if src == nil || dst == nil {
		return Slot{}, e.ThrowCore(CoreNullPointerException, "")
	}
	if !src.IsArray() || !dst.IsArray() {
		return Slot{}, e.ThrowCore(CoreArrayStoreException, "arraycopy: argument type mismatch")
	}
	sc, dc := src.Class.Component, dst.Class.Component
	if (sc.IsPrimitive() || dc.IsPrimitive()) && sc != dc {
		return Slot{}, e.ThrowCore(CoreArrayStoreException,
			fmt.Sprintf("arraycopy: type mismatch: can not copy %s[] into %s[]", sc.JavaName(), dc.JavaName()))
	}
	if srcPos < 0 || dstPos < 0 || n < 0 ||
		int64(srcPos)+int64(n) > int64(src.Len()) || int64(dstPos)+int64(n) > int64(dst.Len()) {
		return Slot{}, e.ThrowCore(CoreArrayIndexOutOfBoundsException,
			fmt.Sprintf("arraycopy: last source index %d out of bounds for length %d", int64(srcPos)+int64(n), src.Len()))
	}
	tmp := make([]Slot, n)
	for i := range tmp {
		tmp[i] = src.ElemSlot(int(srcPos) + i)
	}
	for i, v := range tmp {
		if v.Ref != nil && !dc.IsAssignableFrom(v.Ref.Class) {
			return Slot{}, e.ThrowCore(CoreArrayStoreException,
				fmt.Sprintf("arraycopy: element type mismatch: %s", v.Ref.Class.JavaName()))
		}
		dst.SetElem(int(dstPos)+i, v)
	}
	return Slot{}, nil
}

// ---------------------------------------------------------------------------
// java/lang/Throwable
// ---------------------------------------------------------------------------

func throwableInit(e *Env, args []Slot) (Slot, error) {
	self := args[0].Ref
	if len(args) > 1 {
		self.SetField(e.vm.throwableMessage, args[1])
	}
	if len(args) > 2 {
		self.SetField(e.vm.throwableCause, args[2])
	}
	traceOf(self).trace = e.captureTrace(self)
	return Slot{}, nil
}

// throwableInitCause serves both <init>(Throwable) and initCause. The
// constructor form also derives the detail message from the cause.
func throwableInitCause(e *Env, args []Slot) (Slot, error) {
	self, cause := args[0].Ref, args[1].Ref
	if cause == self {
		return Slot{}, e.ThrowCore(CoreIllegalArgumentException, "Self-causation not permitted")
	}
	if e.frames[e.top].Method.Name == "<init>" {
		if cause != nil {
			s, err := e.stringOf(cause)
			if err != nil {
				return Slot{}, err
			}
			msg, err := e.stringSlot(s)
			if err != nil {
				return Slot{}, err
			}
			self.SetField(e.vm.throwableMessage, msg)
		}
		self.SetField(e.vm.throwableCause, RefSlot(cause))
		traceOf(self).trace = e.captureTrace(self)
		return Slot{}, nil
	}
	if self.GetField(e.vm.throwableCause).Ref != nil {
		return Slot{}, e.ThrowCore(CoreIllegalArgumentException, "Can't overwrite cause")
	}
	self.SetField(e.vm.throwableCause, RefSlot(cause))
	return RefSlot(self), nil
}

func throwableGetMessage(e *Env, args []Slot) (Slot, error) {
	return args[0].Ref.GetField(e.vm.throwableMessage), nil
}

func throwableGetCause(e *Env, args []Slot) (Slot, error) {
	return args[0].Ref.GetField(e.vm.throwableCause), nil
}

func throwableFillInStackTrace(e *Env, args []Slot) (Slot, error) {
	traceOf(args[0].Ref).trace = e.captureTrace(args[0].Ref)
	return args[0], nil
}

func throwableToString(e *Env, args []Slot) (Slot, error) {
	o := args[0].Ref
	s := o.Class.JavaName()
	if msg := e.vm.ThrowableMessage(o); msg != "" {
		s += ": " + msg
	}
	return e.stringSlot(s)
}

func throwablePrintStackTrace(e *Env, args []Slot) (Slot, error) {
	_, err := fmt.Fprint(e.vm.Stdout, e.vm.FormatException(args[0].Ref))
	return Slot{}, err
}

// ---------------------------------------------------------------------------
// javelin/Console
// ---------------------------------------------------------------------------

func consolePrint(newline bool) NativeFunc {
	return func(e *Env, args []Slot) (Slot, error) {
		m := e.frames[e.top].Method
		mt, err := classfile.ParseMethodDescriptor(m.Descriptor)
		if err != nil {
			return Slot{}, err
		}
		s, err := e.formatArg(mt.Params[0][0], args[0])
		if err != nil {
			return Slot{}, err
		}
		if newline {
			s += "\n"
		}
		_, err = io.WriteString(e.vm.Stdout, s)
		return Slot{}, err
	}
}
