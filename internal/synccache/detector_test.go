package synccache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetector_MissingEntryIsChanged(t *testing.T) {
	d := NewDetector(nil)

	change, fp := d.Check("flows/a.yml", []byte("a"))
	require.Equal(t, Changed, change)
	require.Equal(t, Compute([]byte("a")), fp)
}

func TestDetector_MatchingEntryIsUnchanged(t *testing.T) {
	d := NewDetector(Entries{"flows/a.yml": Compute([]byte("a"))})

	change, _ := d.Check("flows/a.yml", []byte("a"))
	require.Equal(t, Unchanged, change)
	require.Equal(t, "unchanged", change.String())

	change, _ = d.Check("flows/a.yml", []byte("a edited"))
	require.Equal(t, Changed, change)
	require.Equal(t, "changed", change.String())
}

func TestDetector_SameContentDifferentPath(t *testing.T) {
	d := NewDetector(Entries{"flows/a.yml": Compute([]byte("a"))})

	change, _ := d.Check("flows/copy-of-a.yml", []byte("a"))
	require.Equal(t, Changed, change)
}

func TestDetector_AdvanceTracksDirty(t *testing.T) {
	d := NewDetector(Entries{})
	require.False(t, d.Dirty())

	fp := Compute([]byte("a"))
	d.Advance("a.yml", fp)
	require.True(t, d.Dirty())

	got, ok := d.Lookup("a.yml")
	require.True(t, ok)
	require.Equal(t, fp, got)

	d.MarkClean()
	d.Advance("a.yml", fp)
	require.False(t, d.Dirty(), "re-advancing to the same fingerprint is a no-op")
}

func TestDetector_EntriesIsSnapshot(t *testing.T) {
	d := NewDetector(Entries{"a.yml": "1"})
	snap := d.Entries()
	snap["b.yml"] = "2"

	_, ok := d.Lookup("b.yml")
	require.False(t, ok)
}

func TestDetector_Prune(t *testing.T) {
	d := NewDetector(Entries{"a.yml": "1", "b.yml": "2", "c.yml": "3"})

	removed := d.Prune(func(path string) bool { return path != "b.yml" })
	require.Equal(t, 1, removed)
	require.True(t, d.Dirty())
	require.Equal(t, Entries{"a.yml": "1", "c.yml": "3"}, d.Entries())

	d.MarkClean()
	require.Zero(t, d.Prune(func(string) bool { return true }))
	require.False(t, d.Dirty(), "pruning nothing leaves the cache clean")
}
