package heap

// NoHandle is the nil Handle value; it never indexes a live object.
const NoHandle Handle = ^Handle(0)

const minNextGC = 1 << 20 // 1 MiB

// Roots is implemented by the VM (or compiler, during compilation) to let
// the heap discover every live reference it does not itself own, per the
// root sets enumerated in spec §4.6: operand stack, frames, open upvalues,
// globals, consts, per-type method tables, the script cache, well-known
// interned strings, and the compiler's function-under-construction chain.
type Roots interface {
	// MarkRoots is called once at the start of a collection; it must call
	// heap.Mark (or MarkValue) for every root reference it owns.
	MarkRoots(h *Heap)
}

// Heap owns every heap-allocated object, the string intern pool, and the
// bookkeeping needed to trigger and run a tracing mark-and-sweep collection.
type Heap struct {
	objects []Obj
	free    []Handle

	intern map[string]Handle

	bytesAllocated uint64
	nextGC         uint64

	roots Roots

	// StressTest, when true, forces a collection before every allocation;
	// used by GC-soundness tests per spec §8.
	StressTest bool

	// OnCollect, if set, is invoked after each completed sweep with the
	// number of bytes freed; used for trace logging.
	OnCollect func(freed uint64, live int)
}

// New creates an empty heap. SetRoots must be called before the first
// allocation that might trigger a collection.
func New() *Heap {
	return &Heap{
		intern: make(map[string]Handle),
		nextGC: minNextGC,
	}
}

// SetRoots installs the root provider (typically the VM itself).
func (h *Heap) SetRoots(r Roots) { h.roots = r }

func approxSize(k Kind, data interface{}) uint64 {
	switch v := data.(type) {
	case ObjString:
		return uint64(32 + len(v.Chars))
	case ObjArray:
		return uint64(24 + 8*len(v.Items))
	case ObjMap:
		return uint64(24 + 40*len(v.entries))
	case ObjSet:
		return uint64(24 + 40*len(v.entries))
	case ObjFunction:
		return uint64(64 + len(v.Code) + 4*len(v.Lines) + 16*len(v.Constants))
	default:
		return 48
	}
}

// alloc reserves a new object slot, running a collection first if the
// allocator's threshold (or StressTest) demands it.
func (h *Heap) alloc(kind Kind, data interface{}) Handle {
	size := approxSize(kind, data)
	if h.StressTest || h.bytesAllocated+size > h.nextGC {
		h.Collect()
	}
	h.bytesAllocated += size

	obj := Obj{Kind: kind, Data: data, Next: NoHandle}
	if n := len(h.free); n > 0 {
		handle := h.free[n-1]
		h.free = h.free[:n-1]
		h.objects[handle] = obj
		return handle
	}
	h.objects = append(h.objects, obj)
	return Handle(len(h.objects) - 1)
}

// Get returns a pointer to the object's payload slot, allowing in-place
// mutation (e.g. appending to an ObjArray's Items).
func (h *Heap) Get(handle Handle) *Obj { return &h.objects[handle] }

// Kind returns the kind tag of the object referenced by handle.
func (h *Heap) Kind(handle Handle) Kind { return h.objects[handle].Kind }

// --- allocation constructors ---

// InternString returns the canonical ObjString handle for s, allocating and
// interning a new one if s has not been seen before. Two equal strings
// always yield the same handle (invariant 1, spec §3).
func (h *Heap) InternString(s string) Handle {
	if handle, ok := h.intern[s]; ok {
		return handle
	}
	handle := h.alloc(KindString, ObjString{Chars: s, Hash: fnv1a(s)})
	h.intern[s] = handle
	return handle
}

func fnv1a(s string) uint32 {
	const (
		offset = 2166136261
		prime  = 16777619
	)
	hash := uint32(offset)
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= prime
	}
	return hash
}

func (h *Heap) NewFunction(f ObjFunction) Handle { return h.alloc(KindFunction, f) }
func (h *Heap) NewClosure(c ObjClosure) Handle    { return h.alloc(KindClosure, c) }
func (h *Heap) NewUpvalue(u ObjUpvalue) Handle    { return h.alloc(KindUpvalue, u) }
func (h *Heap) NewClass(c ObjClass) Handle        { return h.alloc(KindClass, c) }
func (h *Heap) NewInstance(i ObjInstance) Handle  { return h.alloc(KindInstance, i) }
func (h *Heap) NewBoundMethod(b ObjBoundMethod) Handle {
	return h.alloc(KindBoundMethod, b)
}
func (h *Heap) NewEnum(e ObjEnum) Handle   { return h.alloc(KindEnum, e) }
func (h *Heap) NewArray(a ObjArray) Handle { return h.alloc(KindArray, a) }
func (h *Heap) NewMap() Handle             { return h.alloc(KindMap, ObjMap{}) }
func (h *Heap) NewSet() Handle             { return h.alloc(KindSet, ObjSet{}) }
func (h *Heap) NewFile(f ObjFile) Handle   { return h.alloc(KindFile, f) }
func (h *Heap) NewScript(s ObjScript) Handle { return h.alloc(KindScript, s) }

// --- accessors ---

func (h *Heap) String(handle Handle) ObjString { return h.objects[handle].Data.(ObjString) }

// SetString overwrites a string object's payload in place. Used only by
// OP_INDEX_ASSIGN's single-character string mutation; the intern pool is
// keyed by the string's original content, so this intentionally does not
// attempt to keep the pool's key in sync (spec §9 flags this as a known
// aliasing hazard of mutable interned strings).
func (h *Heap) SetString(handle Handle, s ObjString) { h.objects[handle].Data = s }

// Function returns a copy of the function payload; use SetFunction to write
// back any in-place edits (e.g. patching a jump offset during compilation).
func (h *Heap) Function(handle Handle) ObjFunction { return h.objects[handle].Data.(ObjFunction) }
func (h *Heap) SetFunction(handle Handle, f ObjFunction) { h.objects[handle].Data = f }

func (h *Heap) Closure(handle Handle) ObjClosure { return h.objects[handle].Data.(ObjClosure) }

func (h *Heap) Class(handle Handle) ObjClass       { return h.objects[handle].Data.(ObjClass) }
func (h *Heap) SetClass(handle Handle, c ObjClass) { h.objects[handle].Data = c }

func (h *Heap) Instance(handle Handle) ObjInstance       { return h.objects[handle].Data.(ObjInstance) }
func (h *Heap) SetInstance(handle Handle, i ObjInstance) { h.objects[handle].Data = i }

func (h *Heap) BoundMethod(handle Handle) ObjBoundMethod { return h.objects[handle].Data.(ObjBoundMethod) }

func (h *Heap) Enum(handle Handle) ObjEnum       { return h.objects[handle].Data.(ObjEnum) }
func (h *Heap) SetEnum(handle Handle, e ObjEnum) { h.objects[handle].Data = e }

func (h *Heap) Array(handle Handle) ObjArray       { return h.objects[handle].Data.(ObjArray) }
func (h *Heap) SetArray(handle Handle, a ObjArray) { h.objects[handle].Data = a }

func (h *Heap) File(handle Handle) ObjFile       { return h.objects[handle].Data.(ObjFile) }
func (h *Heap) SetFile(handle Handle, f ObjFile) { h.objects[handle].Data = f }

func (h *Heap) Script(handle Handle) ObjScript       { return h.objects[handle].Data.(ObjScript) }
func (h *Heap) SetScript(handle Handle, s ObjScript) { h.objects[handle].Data = s }

func (h *Heap) Upvalue(handle Handle) ObjUpvalue       { return h.objects[handle].Data.(ObjUpvalue) }
func (h *Heap) SetUpvalue(handle Handle, u ObjUpvalue) { h.objects[handle].Data = u }

// --- GC roots marking ---

// Mark marks the object referenced by handle (and transitively its
// children) reachable for the current collection. Safe to call multiple
// times on the same handle; an already-marked object is not retraced.
func (h *Heap) Mark(handle Handle) {
	if handle == NoHandle || int(handle) >= len(h.objects) {
		return
	}
	obj := &h.objects[handle]
	if obj.Marked {
		return
	}
	obj.Marked = true
	h.trace(obj)
}

// MarkValue marks v if it boxes an object handle; numbers/bool/null/empty
// are by-value and need no marking.
func (h *Heap) MarkValue(v Value) {
	if v.IsObj() {
		h.Mark(v.AsHandle())
	}
}

func (h *Heap) trace(obj *Obj) {
	switch d := obj.Data.(type) {
	case ObjString:
		// leaf: no children
	case ObjFunction:
		for _, c := range d.Constants {
			h.MarkValue(c)
		}
		h.Mark(d.Script)
	case ObjClosure:
		h.Mark(d.Function)
		for _, up := range d.Upvalues {
			h.Mark(up)
		}
	case ObjUpvalue:
		if d.Closed {
			h.MarkValue(d.Value)
		}
	case ObjClass:
		if d.HasSuper {
			h.Mark(d.Super)
		}
		for _, v := range d.Methods {
			h.MarkValue(v)
		}
		for _, v := range d.PrivateMethods {
			h.MarkValue(v)
		}
		for _, v := range d.FieldInitializers {
			h.MarkValue(v)
		}
		for _, v := range d.PrivateFieldInit {
			h.MarkValue(v)
		}
		for _, v := range d.StaticVars {
			h.MarkValue(v)
		}
		for _, v := range d.StaticConsts {
			h.MarkValue(v)
		}
	case ObjInstance:
		h.Mark(d.Class)
		for _, v := range d.Fields {
			h.MarkValue(v)
		}
		for _, v := range d.PrivateField {
			h.MarkValue(v)
		}
	case ObjBoundMethod:
		h.MarkValue(d.Receiver)
		h.Mark(d.Method)
	case ObjEnum:
		for _, v := range d.Values {
			h.MarkValue(v)
		}
	case ObjArray:
		for _, v := range d.Items {
			h.MarkValue(v)
		}
	case ObjMap:
		for _, e := range d.entries {
			if !e.Deleted {
				h.MarkValue(e.Key)
				h.MarkValue(e.Value)
			}
		}
	case ObjSet:
		for _, e := range d.entries {
			if !e.Deleted {
				h.MarkValue(e.Key)
			}
		}
	case ObjScript:
		for _, v := range d.Exports {
			h.MarkValue(v)
		}
	case ObjFile:
		// leaf: no Value-typed children
	}
}

// Collect runs one complete tracing mark-and-sweep cycle: mark roots, trace
// transitively, weak-sweep the intern pool, then sweep the object table.
// Idempotent on a quiescent heap (spec §8 round-trip law).
func (h *Heap) Collect() {
	for i := range h.objects {
		h.objects[i].Marked = false
	}

	if h.roots != nil {
		h.roots.MarkRoots(h)
	}

	// weak sweep of interned strings: drop any unmarked entry from the pool
	// before the generic sweep frees its backing object.
	for s, handle := range h.intern {
		if !h.objects[handle].Marked {
			delete(h.intern, s)
		}
	}

	var freed uint64
	live := 0
	for i := range h.objects {
		obj := &h.objects[i]
		if obj.Data == nil {
			continue // already-freed slot
		}
		if !obj.Marked {
			if obj.Data != nil {
				freed += approxSize(obj.Kind, obj.Data)
				obj.Data = nil
				h.free = append(h.free, Handle(i))
			}
		} else {
			live++
		}
	}

	if h.bytesAllocated > freed {
		h.bytesAllocated -= freed
	} else {
		h.bytesAllocated = 0
	}
	h.nextGC = h.bytesAllocated * 2
	if h.nextGC < minNextGC {
		h.nextGC = minNextGC
	}

	if h.OnCollect != nil {
		h.OnCollect(freed, live)
	}
}

// BytesAllocated reports the heap's current live-byte estimate (test hook).
func (h *Heap) BytesAllocated() uint64 { return h.bytesAllocated }
