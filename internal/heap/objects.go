package heap

// Kind tags the variant stored in an Obj's Data field.
type Kind uint8

const (
	KindString Kind = iota
	KindFunction
	KindClosure
	KindUpvalue
	KindClass
	KindInstance
	KindBoundMethod
	KindEnum
	KindArray
	KindMap
	KindSet
	KindFile
	KindScript
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindFunction:
		return "function"
	case KindClosure:
		return "closure"
	case KindUpvalue:
		return "upvalue"
	case KindClass:
		return "class"
	case KindInstance:
		return "instance"
	case KindBoundMethod:
		return "bound method"
	case KindEnum:
		return "enum"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindSet:
		return "set"
	case KindFile:
		return "file"
	case KindScript:
		return "script"
	default:
		return "object"
	}
}

// Obj is the heap-allocated envelope shared by every object variant: a type
// tag, a GC mark bit, a Next handle, and the kind-specific payload in Data.
// Live objects are tracked by the heap's object table; the allocator sets
// Next to NoHandle and nothing links objects through it.
type Obj struct {
	Kind   Kind
	Marked bool
	Next   Handle // always NoHandle
	Data   interface{}
}

// ObjString is an immutable interned byte sequence plus its precomputed
// FNV-1a hash.
type ObjString struct {
	Chars string
	Hash  uint32
}

// ClassKind distinguishes default, abstract, and static classes.
type ClassKind uint8

const (
	ClassDefault ClassKind = iota
	ClassAbstract
	ClassStatic
)

// FuncKind distinguishes the compiler contexts a Function was compiled in;
// it governs the implicit receiver slot and the implicit return.
type FuncKind uint8

const (
	FuncScript FuncKind = iota
	FuncFunction
	FuncMethod
	FuncInitializer
	FuncStaticMethod
	FuncAbstractMethod
	FuncNative
)

// ObjFunction is a compiled function: its arity, chunk, and static metadata.
// Function does not carry resolved upvalues; ObjClosure does.
type ObjFunction struct {
	Arity         int
	ArityDefault  int
	UpvalueCount  int
	Kind          FuncKind
	Name          string // qualified name, e.g. "Shape.area"
	Script        Handle // owning Script object
	Class         Handle // owning class, for a method/field-initializer; NoHandle otherwise
	Code          []byte
	Lines         []int32
	Constants     []Value
	UpvalueIsLocal []bool
	UpvalueIndex   []int

	// Native, when non-nil, marks this Function as a native extension
	// binding (Kind == FuncNative): calling it invokes Native directly
	// instead of pushing a bytecode frame. Natives are not GC-traced; the
	// closing-over state they need lives in the registering Go code, not
	// on the Ilex heap.
	Native func(args []Value) (Value, error)
}

// ObjUpvalue is either open (pointing at a live stack slot) or closed (owns
// its captured value inline). It transitions open -> closed exactly once.
type ObjUpvalue struct {
	StackIndex int // valid only while Closed == false; operand stack slot
	Closed     bool
	Value      Value
	NextOpen   Handle // next entry in the descending-address open-upvalue list; NoHandle terminates
}

// ObjClosure pairs a Function with one resolved upvalue handle per captured
// binding.
type ObjClosure struct {
	Function Handle
	Upvalues []Handle
}

// ObjClass is a class declaration: name, optional superclass, method tables,
// and static state.
type ObjClass struct {
	Name                string
	Kind                ClassKind
	Super               Handle
	HasSuper            bool
	Methods             map[string]Value // name -> closure Value
	AbstractMethods     map[string]bool
	PrivateMethods      map[string]Value
	FieldInitializers   map[string]Value // expression thunks compiled as 0-arg closures
	PrivateFieldInit    map[string]Value
	StaticVars          map[string]Value
	StaticConsts        map[string]Value
	ReadonlyStaticVars  map[string]bool
}

// ObjInstance is an instance of a class, with its own field tables.
type ObjInstance struct {
	Class        Handle
	Fields       map[string]Value
	PrivateField map[string]Value
	ReadonlyKeys map[string]bool
}

// ObjBoundMethod binds a receiver to a closure for `this`-aware member calls.
type ObjBoundMethod struct {
	Receiver Value
	Method   Handle // closure
}

// ObjEnum is a named set of constant values.
type ObjEnum struct {
	Name   string
	Values map[string]Value
	Order  []string
}

// ObjArray is a dynamic, ordered sequence of Values.
type ObjArray struct {
	Items []Value
}

// mapEntry is one Robin-Hood slot: key/value plus probe-sequence length.
// Psl == -1 marks an empty slot.
type mapEntry struct {
	Key     Value
	Value   Value
	Psl     int
	Deleted bool
}

// ObjMap is a Robin-Hood open-addressed table keyed by any valid key
// (string or finite number).
type ObjMap struct {
	entries []mapEntry
	count   int
}

// ObjSet is the value-less degenerate form of ObjMap.
type ObjSet struct {
	entries []mapEntry
	count   int
}

// ObjFile wraps an OS file handle, its path, and open-mode flags.
type ObjFile struct {
	Path   string
	Mode   string
	Handle interface {
		Read([]byte) (int, error)
		Write([]byte) (int, error)
		Close() error
	}
	Closed bool
}

// ObjScript is an importable source unit: its module identity, resolved
// directory, exported bindings, and whether it has already finished a run
// (for `use` caching).
type ObjScript struct {
	Name     string
	Dir      string
	AbsPath  string
	Exports  map[string]Value
	Readonly map[string]bool
	Used     bool
}
