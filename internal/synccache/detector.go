package synccache

import (
	"maps"
	"sync"
)

// Change is the result of comparing a file against the cache.
type Change int

const (
	Changed Change = iota
	Unchanged
)

func (c Change) String() string {
	if c == Unchanged {
		return "unchanged"
	}
	return "changed"
}

// Entries maps a definition file path to its last successfully synced fingerprint.
type Entries map[string]Fingerprint

// Clone returns an independent copy.
func (e Entries) Clone() Entries {
	out := make(Entries, len(e))
	maps.Copy(out, e)
	return out
}

// Detector compares file contents against the in-memory cache entries.
// The pipeline is its single writer; readers such as the status server may
// call Lookup and Entries concurrently.
type Detector struct {
	mu      sync.RWMutex
	entries Entries
	dirty   bool
}

// NewDetector wraps entries. A nil map is treated as an empty cache.
func NewDetector(entries Entries) *Detector {
	if entries == nil {
		entries = Entries{}
	}
	return &Detector{entries: entries}
}

// Check fingerprints raw and reports whether it differs from the cached value
// for path. A missing entry counts as Changed.
func (d *Detector) Check(path string, raw []byte) (Change, Fingerprint) {
	fp := Compute(raw)
	d.mu.RLock()
	defer d.mu.RUnlock()
	if cached, ok := d.entries[path]; ok && cached == fp {
		return Unchanged, fp
	}
	return Changed, fp
}

// Advance records fp as the last successfully synced fingerprint for path.
func (d *Detector) Advance(path string, fp Fingerprint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.entries[path] == fp {
		return
	}
	d.entries[path] = fp
	d.dirty = true
}

// Lookup returns the cached fingerprint for path.
func (d *Detector) Lookup(path string) (Fingerprint, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fp, ok := d.entries[path]
	return fp, ok
}

// Dirty reports whether Advance changed anything since the last MarkClean.
func (d *Detector) Dirty() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dirty
}

// MarkClean resets the dirty flag after the entries were persisted.
func (d *Detector) MarkClean() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dirty = false
}

// Entries returns a snapshot of the current entries.
func (d *Detector) Entries() Entries {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.entries.Clone()
}

// Prune removes every entry for which keep returns false and reports how
// many were removed.
func (d *Detector) Prune(keep func(path string) bool) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := 0
	for path := range d.entries {
		if !keep(path) {
			delete(d.entries, path)
			removed++
		}
	}
	if removed > 0 {
		d.dirty = true
	}
	return removed
}
