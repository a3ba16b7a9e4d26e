package synccache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCompute_KnownDigest(t *testing.T) {
	// sha256("") is a well-known constant
	require.Equal(t,
		Fingerprint("e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"),
		Compute(nil))
}

func TestFileFingerprint_MatchesCompute(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.yml")
	content := []byte("namespace: demo\nid: flow1\n")
	require.NoError(t, os.WriteFile(path, content, 0644))

	fp, err := FileFingerprint(path)
	require.NoError(t, err)
	require.Equal(t, Compute(content), fp)
}

func TestFileFingerprint_IgnoresModTime(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yml")
	b := filepath.Join(dir, "b.yml")
	require.NoError(t, os.WriteFile(a, []byte("same"), 0644))
	require.NoError(t, os.WriteFile(b, []byte("same"), 0644))

	fa, err := FileFingerprint(a)
	require.NoError(t, err)
	fb, err := FileFingerprint(b)
	require.NoError(t, err)
	require.Equal(t, fa, fb)
}

func TestFileFingerprint_MissingFile(t *testing.T) {
	_, err := FileFingerprint(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}

func TestFingerprint_Short(t *testing.T) {
	require.Equal(t, "e3b0c44298fc", Compute(nil).Short())
	require.Equal(t, "abc", Fingerprint("abc").Short())
}

func TestCompute_DeterministicProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.SliceOf(rapid.Byte()).Draw(t, "a")
		b := rapid.SliceOf(rapid.Byte()).Draw(t, "b")

		if Compute(a) != Compute(append([]byte(nil), a...)) {
			t.Fatalf("fingerprint not deterministic")
		}
		if string(a) != string(b) && Compute(a) == Compute(b) {
			t.Fatalf("distinct inputs collided")
		}
		if len(Compute(a)) != 64 {
			t.Fatalf("unexpected digest length %d", len(Compute(a)))
		}
	})
}
