// Package paths decides which files under a definitions root are workflow
// definitions and resolves the flowsync state directory.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StateDir is the per-project directory for config, cache and metadata files.
const StateDir = ".flowsync"

// DefaultExtensions are the definition file extensions used when none are configured.
var DefaultExtensions = []string{".yml", ".yaml"}

// NormalizeExtensions lowercases exts and ensures a leading dot. An empty
// list yields DefaultExtensions.
func NormalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	if len(out) == 0 {
		return append([]string(nil), DefaultExtensions...)
	}
	return out
}

// MatchesExt reports whether path ends in one of exts, ignoring case.
func MatchesExt(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// IsHidden reports whether path, relative to root, has a dot-prefixed
// file or directory component. root itself is never hidden.
func IsHidden(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return strings.HasPrefix(filepath.Base(path), ".")
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

// IsDefinition reports whether path is a candidate definition file: not
// hidden below root and carrying a configured extension.
func IsDefinition(root, path string, exts []string) bool {
	return MatchesExt(path, exts) && !IsHidden(root, path)
}

// ResolveRoot follows symlinks in root and checks that the result is a
// directory. Walks and watches run on the resolved path because
// filepath.WalkDir does not descend into a symlinked root.
func ResolveRoot(root string) (string, error) {
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", root)
	}
	return resolved, nil
}

// Rebase maps path, found under from, to the same relative location under
// to. Paths outside from are returned unchanged.
func Rebase(from, to, path string) string {
	if from == to {
		return path
	}
	rel, err := filepath.Rel(from, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return filepath.Join(to, rel)
}

// ResolveStateDir returns dir/.flowsync, or ./.flowsync for an empty dir.
func ResolveStateDir(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(filepath.Clean(dir), StateDir)
}

// UserConfigDir returns ~/.config/flowsync, or "" when the home directory is unknown.
func UserConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "flowsync")
}
