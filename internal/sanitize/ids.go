// Package sanitize validates attacker-influenced identifiers and confines
// artifact references to a workspace root.
//
// Run IDs and gate file names arrive from CLI flags and automation, so they
// are checked against a whitelist before any path join, independently of the
// generic path checks in ResolveWithin.
package sanitize

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/fyrsmithlabs/pipegate/internal/errcode"
)

// Sentinel errors for validation failures.
var (
	ErrInvalidRunID    = errors.New("invalid run id")
	ErrInvalidGateFile = errors.New("invalid gate file name")
	ErrEmptyPath       = errors.New("path reference must be a non-empty string")
	ErrAbsolutePath    = errors.New("path reference must be workspace-relative")
	ErrPathTraversal   = errors.New("path escapes workspace root")
	ErrRootReference   = errors.New("path reference must not point to the workspace root")
	ErrSymlinkEscape   = errors.New("path resolves outside workspace root through a symlink")
)

const (
	// MaxIdentifierLength bounds run ids and gate file stems.
	MaxIdentifierLength = 128
)

var (
	runIDPattern    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)
	gateFilePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}\.json$`)
)

// ValidateRunID checks that id is a safe run directory name.
func ValidateRunID(id string) error {
	if id == "" {
		return badInput(fmt.Errorf("%w: run_id is required", ErrInvalidRunID))
	}
	if !runIDPattern.MatchString(id) {
		return badInput(fmt.Errorf("%w: %q must match %s", ErrInvalidRunID, id, runIDPattern))
	}
	return nil
}

// ValidateGateFileName checks that name is a bare gate file name ending in .json.
func ValidateGateFileName(name string) error {
	if !gateFilePattern.MatchString(name) {
		return badInput(fmt.Errorf("%w: %q", ErrInvalidGateFile, name))
	}
	return nil
}

// badInput tags err with E_BAD_INPUT; errors.Is still sees the sentinel.
func badInput(err error) error {
	return errcode.Wrap(errcode.BadInput, "", err)
}
