package heap

import (
	"errors"
	"math"
)

// ErrInvalidKey is returned when a Map/Set operation is attempted with a key
// that is neither a string nor a finite number, per spec invariant 5.
var ErrInvalidKey = errors.New("invalid map/set key: must be a string or finite number")

const mapMaxLoad = 0.9

func keyHash(h *Heap, key Value) (uint32, error) {
	switch {
	case key.IsObj() && h.Kind(key.AsHandle()) == KindString:
		return h.String(key.AsHandle()).Hash, nil
	case key.IsNumber():
		f := key.AsNumber()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, ErrInvalidKey
		}
		return fnvBytes(numberBytes(f)), nil
	default:
		return 0, ErrInvalidKey
	}
}

func numberBytes(f float64) []byte {
	bits := math.Float64bits(f)
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(bits >> (8 * i))
	}
	return b
}

func fnvBytes(b []byte) uint32 {
	const (
		offset = 2166136261
		prime  = 16777619
	)
	hash := uint32(offset)
	for _, c := range b {
		hash ^= uint32(c)
		hash *= prime
	}
	return hash
}

func keysEqual(h *Heap, a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		return a.AsNumber() == b.AsNumber()
	}
	return a == b
}

// robinHoodFind probes for key starting at its home bucket. A tombstone
// (Deleted) only marks its own slot vacated, not the end of the chain, so a
// tombstone is skipped rather than treated as "not found" the way a truly
// empty slot (Psl < 0) is. That also rules out the usual Robin Hood
// early-termination-on-psl shortcut: it assumes probe lengths only increase
// along a chain, an invariant tombstones break without a backward-shift
// delete, so every occupied-or-deleted slot in the chain must be checked.
func robinHoodFind(entries []mapEntry, h *Heap, key Value, hash uint32) (int, bool) {
	cap := len(entries)
	if cap == 0 {
		return -1, false
	}
	idx := int(hash) & (cap - 1)
	for i := 0; i < cap; i++ {
		e := &entries[idx]
		if e.Psl < 0 {
			return -1, false
		}
		if !e.Deleted && keysEqual(h, e.Key, key) {
			return idx, true
		}
		idx = (idx + 1) & (cap - 1)
	}
	return -1, false
}

func robinHoodInsert(entries []mapEntry, h *Heap, key, value Value, hash uint32) []mapEntry {
	cap := len(entries)
	idx := int(hash) & (cap - 1)
	incoming := mapEntry{Key: key, Value: value, Psl: 0}
	for {
		e := &entries[idx]
		if e.Psl < 0 || e.Deleted {
			*e = incoming
			return entries
		}
		if incoming.Psl > e.Psl {
			incoming, *e = *e, incoming
		}
		idx = (idx + 1) & (cap - 1)
		incoming.Psl++
	}
}

func newEntries(n int) []mapEntry {
	entries := make([]mapEntry, n)
	for i := range entries {
		entries[i].Psl = -1
	}
	return entries
}

func growMap(h *Heap, entries []mapEntry) []mapEntry {
	newCap := 8
	if len(entries) > 0 {
		newCap = len(entries) * 2
	}
	fresh := newEntries(newCap)
	for _, e := range entries {
		if e.Psl >= 0 && !e.Deleted {
			hash, _ := keyHash(h, e.Key)
			fresh = robinHoodInsert(fresh, h, e.Key, e.Value, hash)
		}
	}
	return fresh
}

// MapGet returns the value for key, or Null if absent (spec: "GET_PROPERTY
// on a missing key returns null, never faults").
func (h *Heap) MapGet(handle Handle, key Value) (Value, error) {
	m := h.Map(handle)
	hash, err := keyHash(h, key)
	if err != nil {
		return Null, err
	}
	if idx, ok := robinHoodFind(m.entries, h, key, hash); ok {
		return m.entries[idx].Value, nil
	}
	return Null, nil
}

// MapSet inserts or overwrites key -> value, growing the table if the load
// factor would otherwise exceed 0.9.
func (h *Heap) MapSet(handle Handle, key, value Value) error {
	m := h.Map(handle)
	hash, err := keyHash(h, key)
	if err != nil {
		return err
	}
	if idx, ok := robinHoodFind(m.entries, h, key, hash); ok {
		m.entries[idx].Value = value
		h.SetMap(handle, m)
		return nil
	}
	if float64(m.count+1) > float64(len(m.entries))*mapMaxLoad {
		m.entries = growMap(h, m.entries)
	}
	m.entries = robinHoodInsert(m.entries, h, key, value, hash)
	m.count++
	h.SetMap(handle, m)
	return nil
}

// MapDelete removes key, marking its slot deleted. Returns whether it was present.
func (h *Heap) MapDelete(handle Handle, key Value) (bool, error) {
	m := h.Map(handle)
	hash, err := keyHash(h, key)
	if err != nil {
		return false, err
	}
	idx, ok := robinHoodFind(m.entries, h, key, hash)
	if !ok {
		return false, nil
	}
	m.entries[idx].Deleted = true
	m.count--
	h.SetMap(handle, m)
	return true, nil
}

// MapLen reports the number of live entries.
func (h *Heap) MapLen(handle Handle) int { return h.Map(handle).count }

// MapEach calls fn for every live entry, in table order.
func (h *Heap) MapEach(handle Handle, fn func(key, value Value)) {
	m := h.Map(handle)
	for _, e := range m.entries {
		if e.Psl >= 0 && !e.Deleted {
			fn(e.Key, e.Value)
		}
	}
}

func (h *Heap) Map(handle Handle) ObjMap    { return h.objects[handle].Data.(ObjMap) }
func (h *Heap) SetMap(handle Handle, m ObjMap) { h.objects[handle].Data = m }

// --- Set: the value-less degenerate form of Map ---

func (h *Heap) SetAdd(handle Handle, key Value) error {
	s := h.Set(handle)
	hash, err := keyHash(h, key)
	if err != nil {
		return err
	}
	me := mapEntriesFromSet(s)
	if idx, ok := robinHoodFind(me, h, key, hash); ok {
		_ = idx
		return nil
	}
	if float64(s.count+1) > float64(len(me))*mapMaxLoad {
		me = growMap(h, me)
	}
	me = robinHoodInsert(me, h, key, Null, hash)
	s.entries = me
	s.count++
	h.SetSet(handle, s)
	return nil
}

func (h *Heap) SetContains(handle Handle, key Value) (bool, error) {
	s := h.Set(handle)
	hash, err := keyHash(h, key)
	if err != nil {
		return false, err
	}
	_, ok := robinHoodFind(s.entries, h, key, hash)
	return ok, nil
}

func (h *Heap) SetDelete(handle Handle, key Value) (bool, error) {
	s := h.Set(handle)
	hash, err := keyHash(h, key)
	if err != nil {
		return false, err
	}
	idx, ok := robinHoodFind(s.entries, h, key, hash)
	if !ok {
		return false, nil
	}
	s.entries[idx].Deleted = true
	s.count--
	h.SetSet(handle, s)
	return true, nil
}

func (h *Heap) SetLen(handle Handle) int { return h.Set(handle).count }

func (h *Heap) SetEach(handle Handle, fn func(key Value)) {
	s := h.Set(handle)
	for _, e := range s.entries {
		if e.Psl >= 0 && !e.Deleted {
			fn(e.Key)
		}
	}
}

func (h *Heap) Set(handle Handle) ObjSet    { return h.objects[handle].Data.(ObjSet) }
func (h *Heap) SetSet(handle Handle, s ObjSet) { h.objects[handle].Data = s }

func mapEntriesFromSet(s ObjSet) []mapEntry { return s.entries }
