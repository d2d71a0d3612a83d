package sanitize

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ResolveWithin joins ref onto root and returns the absolute path, failing
// when the result would land outside root.
//
// The root is canonicalized with EvalSymlinks first. When the target exists
// its real path is re-checked; when it does not, the nearest existing
// ancestor is checked instead. A concurrent rename between this check and
// the caller's open can still swap a component for a symlink.
func ResolveWithin(root, ref string) (string, error) {
	if ref == "" {
		return "", badInput(ErrEmptyPath)
	}
	if filepath.IsAbs(ref) {
		return "", badInput(fmt.Errorf("%w: %s", ErrAbsolutePath, ref))
	}

	rootReal, err := realRoot(root)
	if err != nil {
		return "", err
	}

	resolved := filepath.Join(rootReal, ref)
	rel, err := filepath.Rel(rootReal, resolved)
	if err != nil || escapes(rel) {
		return "", badInput(fmt.Errorf("%w: %s", ErrPathTraversal, ref))
	}
	if rel == "." {
		return "", badInput(ErrRootReference)
	}

	if err := checkRealPath(rootReal, resolved); err != nil {
		if errors.Is(err, ErrSymlinkEscape) {
			return "", badInput(fmt.Errorf("%w: %s", err, ref))
		}
		return "", err
	}
	return resolved, nil
}

// Relative returns the root-relative form of an absolute path under root.
func Relative(root, abs string) (string, error) {
	rootReal, err := realRoot(root)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(rootReal, filepath.Clean(abs))
	if err != nil || escapes(rel) {
		return "", badInput(fmt.Errorf("%w: %s", ErrPathTraversal, abs))
	}
	return rel, nil
}

func realRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving workspace root: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolving workspace root: %w", err)
	}
	return real, nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel)
}

// checkRealPath resolves the target, or its nearest existing ancestor, and
// verifies the real path is still inside rootReal.
func checkRealPath(rootReal, target string) error {
	candidate := target
	for {
		real, err := filepath.EvalSymlinks(candidate)
		if err == nil {
			rel, relErr := filepath.Rel(rootReal, real)
			if relErr != nil || escapes(rel) {
				return ErrSymlinkEscape
			}
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("resolving %s: %w", candidate, err)
		}
		// Dangling symlink: judge it by where it points.
		if info, lerr := os.Lstat(candidate); lerr == nil && info.Mode()&fs.ModeSymlink != 0 {
			return checkDanglingLink(rootReal, candidate)
		}
		parent := filepath.Dir(candidate)
		if parent == candidate || len(parent) < len(rootReal) {
			return nil
		}
		candidate = parent
	}
}

func checkDanglingLink(rootReal, link string) error {
	dest, err := os.Readlink(link)
	if err != nil {
		return fmt.Errorf("reading link %s: %w", link, err)
	}
	if !filepath.IsAbs(dest) {
		parent, err := filepath.EvalSymlinks(filepath.Dir(link))
		if err != nil {
			return fmt.Errorf("resolving %s: %w", filepath.Dir(link), err)
		}
		dest = filepath.Join(parent, dest)
	}
	rel, err := filepath.Rel(rootReal, filepath.Clean(dest))
	if err != nil || escapes(rel) {
		return ErrSymlinkEscape
	}
	return nil
}

// Exists reports whether path names an existing file or directory.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
