// Package table implements the open-addressing, linear-probing, string-keyed
// hash table spec §4.4 describes. It backs the VM's globals, every class's
// method table, every instance's field table, and the interpreter's
// string-interning pool — one data structure serving four roles, exactly as
// the spec requires.
//
// Table does not know about package object's concrete String type: keys
// are anything satisfying Key (raw bytes + precomputed hash), so this
// package stays free of an import cycle with object while object's String
// supplies the Key implementation.
package table

import "github.com/kristofer/smog/pkg/value"

// Key is the minimal contract a table key needs: its raw bytes (for
// FindString's bytewise interning probe) and its precomputed hash (so the
// table never rehashes a key during probing).
type Key interface {
	KeyChars() string
	KeyHash() uint32
}

const maxLoad = 0.75

type entry struct {
	key   Key
	value value.Value
}

// Table is a string-keyed open-addressing hash map with tombstone deletes.
// The zero Table is not ready to use; call New.
type Table struct {
	count   int // real entries plus tombstones; grow recounts real entries only
	entries []entry
}

// New returns an empty table. Capacity grows lazily on first insert.
func New() *Table {
	return &Table{}
}

// Len reports the table's occupancy count: live entries plus any tombstones
// Delete has left since the last grow.
func (t *Table) Len() int { return t.count }

// Get looks up key by identity (== on the Key interface — safe for interned
// string keys, since equal bytes are guaranteed to share one key object).
func (t *Table) Get(key Key) (value.Value, bool) {
	if len(t.entries) == 0 {
		return value.Value{}, false
	}
	e := t.find(key)
	if e.key == nil {
		return value.Value{}, false
	}
	return e.value, true
}

// Set installs v under key, growing the table first if the load factor
// would exceed 0.75. Returns true if key was not present before (whether a
// truly empty slot or a tombstone was used), false if it overwrote an
// existing entry.
func (t *Table) Set(key Key, v value.Value) bool {
	if len(t.entries) == 0 || float64(t.count+1) > float64(len(t.entries))*maxLoad {
		t.grow()
	}
	idx := t.probe(t.entries, key)
	e := &t.entries[idx]
	isNew := e.key == nil
	if isNew && e.value.Kind == value.KindNil {
		// Not reusing a tombstone: count only a truly-empty slot.
		t.count++
	}
	e.key = key
	e.value = v
	return isNew
}

// Delete writes a tombstone (nil key, true-valued) so probe chains through
// this slot keep working for later lookups. Returns false if key was
// absent.
func (t *Table) Delete(key Key) bool {
	if len(t.entries) == 0 {
		return false
	}
	e := t.find(key)
	if e.key == nil {
		return false
	}
	e.key = nil
	e.value = value.Bool(true)
	return true
}

// FindString probes by raw bytes and hash instead of key identity. It is
// used only during string interning, before an interned String object
// exists to compare pointers against.
func (t *Table) FindString(chars string, hash uint32) (Key, bool) {
	if len(t.entries) == 0 {
		return nil, false
	}
	mask := uint32(len(t.entries) - 1)
	index := hash & mask
	for {
		e := &t.entries[index]
		if e.key == nil {
			// Stop only at a truly empty slot; tombstones keep the probe going.
			if e.value.Kind == value.KindNil {
				return nil, false
			}
		} else if e.key.KeyHash() == hash && e.key.KeyChars() == chars {
			return e.key, true
		}
		index = (index + 1) & mask
	}
}

// AddAll shallow-copies every real entry into dst. Used by OP_INHERIT to
// flatten a superclass's method table into its subclass.
func (t *Table) AddAll(dst *Table) {
	for _, e := range t.entries {
		if e.key != nil {
			dst.Set(e.key, e.value)
		}
	}
}

// RemoveWhite deletes every entry whose key the collector did not mark.
// Called on the VM's string-intern table between mark and sweep so dead
// interned strings are unlinked from the pool before sweep frees them —
// the pool's references are weak.
func (t *Table) RemoveWhite(isMarked func(Key) bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && !isMarked(e.key) {
			t.Delete(e.key)
		}
	}
}

// Each calls f for every live entry, in storage order. Used by GC tracing
// to mark every key and value a method/field/globals table reaches.
func (t *Table) Each(f func(key Key, v value.Value)) {
	for _, e := range t.entries {
		if e.key != nil {
			f(e.key, e.value)
		}
	}
}

func (t *Table) find(key Key) *entry {
	return &t.entries[t.probe(t.entries, key)]
}

// probe returns the slot key should occupy: the slot holding key itself if
// present, else the first tombstone seen (so repeated delete/insert cycles
// don't grow probe chains unboundedly), else the first truly empty slot.
func (t *Table) probe(entries []entry, key Key) int {
	mask := uint32(len(entries) - 1)
	index := key.KeyHash() & mask
	var tombstone = -1
	for {
		e := &entries[index]
		if e.key == nil {
			if e.value.Kind == value.KindNil {
				if tombstone != -1 {
					return tombstone
				}
				return int(index)
			}
			if tombstone == -1 {
				tombstone = int(index)
			}
		} else if e.key == key {
			return int(index)
		}
		index = (index + 1) & mask
	}
}

func (t *Table) grow() {
	newCap := 8
	if len(t.entries) > 0 {
		newCap = len(t.entries) * 2
	}
	old := t.entries
	t.entries = make([]entry, newCap)
	t.count = 0
	for _, e := range old {
		if e.key != nil {
			idx := t.probe(t.entries, e.key)
			t.entries[idx] = entry{key: e.key, value: e.value}
			t.count++
		}
	}
}
