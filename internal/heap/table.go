package heap

// StringTable is an open-addressed ObjString -> Value table with linear
// probing, a load factor of 0.75, and tombstones distinguished from empty
// slots, per spec §4.4. It backs the VM's globals; instance fields, class
// statics and script exports are plain Go maps.
type StringTable struct {
	entries  []tableEntry
	count    int // live entries + tombstones
	readonly map[string]bool
}

type tableEntry struct {
	key      string
	hasKey   bool
	tombstone bool
	value    Value
}

const tableMaxLoad = 0.75

func (t *StringTable) capacity() int { return len(t.entries) }

func (t *StringTable) ensureCapacity(want int) {
	if t.capacity() == 0 {
		t.entries = make([]tableEntry, 8)
		return
	}
	if float64(t.count+1) <= float64(t.capacity())*tableMaxLoad {
		return
	}
	newCap := t.capacity() * 2
	old := t.entries
	t.entries = make([]tableEntry, newCap)
	t.count = 0
	for _, e := range old {
		if e.hasKey && !e.tombstone {
			t.rawSet(e.key, e.value)
		}
	}
}

func (t *StringTable) findSlot(key string) int {
	cap := t.capacity()
	idx := int(fnv1a(key)) & (cap - 1)
	tombstoneIdx := -1
	for {
		e := &t.entries[idx]
		if !e.hasKey {
			if !e.tombstone {
				if tombstoneIdx != -1 {
					return tombstoneIdx
				}
				return idx
			}
		} else if e.key == key {
			return idx
		}
		if e.tombstone && tombstoneIdx == -1 {
			tombstoneIdx = idx
		}
		idx = (idx + 1) & (cap - 1)
	}
}

func (t *StringTable) rawSet(key string, value Value) bool {
	idx := t.findSlot(key)
	e := &t.entries[idx]
	isNew := !e.hasKey
	if isNew && !e.tombstone {
		t.count++
	}
	*e = tableEntry{key: key, hasKey: true, value: value}
	return isNew
}

// Get returns the value stored for key and whether it was present.
func (t *StringTable) Get(key string) (Value, bool) {
	if t.capacity() == 0 {
		return Value(0), false
	}
	idx := t.findSlot(key)
	e := &t.entries[idx]
	if !e.hasKey {
		return Value(0), false
	}
	return e.value, true
}

// ReadonlyError indicates an attempt to overwrite a const/readonly binding.
type ReadonlyError struct{ Key string }

func (e ReadonlyError) Error() string { return "cannot assign to const '" + e.Key + "'" }

// Set stores value for key. If readonlyFlag is true, future Set calls for
// the same key fail with ReadonlyError (spec invariant 6). Returns true if
// this created a new entry.
func (t *StringTable) Set(key string, value Value, readonlyFlag bool) (bool, error) {
	if t.readonly != nil && t.readonly[key] {
		return false, ReadonlyError{key}
	}
	t.ensureCapacity(t.count + 1)
	isNew := t.rawSet(key, value)
	if readonlyFlag {
		if t.readonly == nil {
			t.readonly = make(map[string]bool)
		}
		t.readonly[key] = true
	}
	return isNew, nil
}

// Delete writes a tombstone for key, distinguishing it from an empty slot by
// leaving hasKey false but tombstone true.
func (t *StringTable) Delete(key string) bool {
	if t.capacity() == 0 {
		return false
	}
	idx := t.findSlot(key)
	e := &t.entries[idx]
	if !e.hasKey {
		return false
	}
	*e = tableEntry{tombstone: true}
	return true
}

// AddAll copies every live entry of src into t (src entries win on conflict).
func (t *StringTable) AddAll(src *StringTable) {
	for _, e := range src.entries {
		if e.hasKey && !e.tombstone {
			t.Set(e.key, e.value, false)
		}
	}
}

// FindString looks for an existing key with equal bytes, starting the
// linear probe at the slot hash selects. Entries store no hash, so every
// occupied slot on the probe path is compared by its full key bytes.
func (t *StringTable) FindString(s string, hash uint32) (string, bool) {
	if t.capacity() == 0 {
		return "", false
	}
	cap := t.capacity()
	idx := int(hash) & (cap - 1)
	for {
		e := &t.entries[idx]
		if !e.hasKey && !e.tombstone {
			return "", false
		}
		if e.hasKey && e.key == s {
			return e.key, true
		}
		idx = (idx + 1) & (cap - 1)
	}
}

// Len reports the number of live (non-tombstone) entries.
func (t *StringTable) Len() int {
	n := 0
	for _, e := range t.entries {
		if e.hasKey && !e.tombstone {
			n++
		}
	}
	return n
}

// Each calls fn for every live entry.
func (t *StringTable) Each(fn func(key string, v Value)) {
	for _, e := range t.entries {
		if e.hasKey && !e.tombstone {
			fn(e.key, e.value)
		}
	}
}
