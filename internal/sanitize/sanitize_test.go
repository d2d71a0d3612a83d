package sanitize

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/fyrsmithlabs/pipegate/internal/errcode"
)

func TestValidateRunID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"simple", "run-001", false},
		{"dots and underscores", "eval_2024.01.run", false},
		{"single char", "a", false},
		{"max length", strings.Repeat("a", 128), false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 129), true},
		{"leading dot", ".hidden", true},
		{"leading dash", "-run", true},
		{"slash", "a/b", true},
		{"traversal", "..", true},
		{"space", "run 1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRunID(tt.id)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidRunID))
				assert.Equal(t, errcode.BadInput, errcode.Code(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateGateFileName(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		wantErr bool
	}{
		{"primary", "plan-gate.json", false},
		{"postbuild", "postbuild-gate.json", false},
		{"budget", "build-context-budget-gate.json", false},
		{"no extension", "plan-gate", true},
		{"nested", "gates/plan-gate.json", true},
		{"hidden", ".plan-gate.json", true},
		{"bare extension", ".json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGateFileName(tt.file)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidGateFile)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestResolveWithin(t *testing.T) {
	root := t.TempDir()
	rootReal, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)

	tests := []struct {
		name    string
		ref     string
		want    string
		wantErr error
	}{
		{"file", "brief.json", filepath.Join(rootReal, "brief.json"), nil},
		{"nested", "drift-reports/pmatch.json", filepath.Join(rootReal, "drift-reports", "pmatch.json"), nil},
		{"inner dotdot", "a/../b.json", filepath.Join(rootReal, "b.json"), nil},
		{"empty", "", "", ErrEmptyPath},
		{"absolute", "/etc/passwd", "", ErrAbsolutePath},
		{"escape", "../outside.json", "", ErrPathTraversal},
		{"deep escape", "a/../../outside.json", "", ErrPathTraversal},
		{"root itself", ".", "", ErrRootReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveWithin(root, tt.ref)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, errcode.BadInput, errcode.Code(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveWithin_SymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.json"), []byte("{}"), 0o600))

	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.json"), filepath.Join(root, "file.json")))
	require.NoError(t, os.Symlink(filepath.Join(outside, "missing.json"), filepath.Join(root, "dangling.json")))

	t.Run("linked directory", func(t *testing.T) {
		_, err := ResolveWithin(root, "link/secret.json")
		assert.ErrorIs(t, err, ErrSymlinkEscape)
	})

	t.Run("nonexistent file under linked directory", func(t *testing.T) {
		_, err := ResolveWithin(root, "link/new/report.json")
		assert.ErrorIs(t, err, ErrSymlinkEscape)
	})

	t.Run("linked file", func(t *testing.T) {
		_, err := ResolveWithin(root, "file.json")
		assert.ErrorIs(t, err, ErrSymlinkEscape)
	})

	t.Run("dangling link", func(t *testing.T) {
		_, err := ResolveWithin(root, "dangling.json")
		assert.ErrorIs(t, err, ErrSymlinkEscape)
	})
}

func TestResolveWithin_SymlinkInsideRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "real"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "alias")))

	got, err := ResolveWithin(root, "alias/plan.json")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(got, filepath.Join("alias", "plan.json")))
}

func TestRelative(t *testing.T) {
	root := t.TempDir()
	rootReal, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)

	rel, err := Relative(root, filepath.Join(rootReal, "gates", "plan-gate.json"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("gates", "plan-gate.json"), rel)

	_, err = Relative(root, filepath.Dir(rootReal))
	assert.ErrorIs(t, err, ErrPathTraversal)
}

func TestResolveRelative_RoundTrip(t *testing.T) {
	root := t.TempDir()
	segment := rapid.StringMatching(`[a-z0-9_-][a-z0-9._-]{0,8}`)

	rapid.Check(t, func(rt *rapid.T) {
		parts := rapid.SliceOfN(segment, 1, 4).Draw(rt, "parts")
		ref := filepath.Join(parts...)

		abs, err := ResolveWithin(root, ref)
		if err != nil {
			rt.Fatalf("ResolveWithin(%q): %v", ref, err)
		}
		rel, err := Relative(root, abs)
		if err != nil {
			rt.Fatalf("Relative(%q): %v", abs, err)
		}
		if rel != filepath.Clean(ref) {
			rt.Fatalf("round trip mismatch: %q -> %q", ref, rel)
		}
	})
}
