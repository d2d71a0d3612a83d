package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/BurntSushi/toml"
)

// Allowlist holds patterns excluded from secret detection.
type Allowlist struct {
	Paths   []string
	Regexes []string
}

type allowlistFile struct {
	Allowlist struct {
		Paths   []string `toml:"paths"`
		Regexes []string `toml:"regexes"`
	} `toml:"allowlist"`
}

// LoadAllowlists merges <workspaceRoot>/.gitleaks.toml and file. Either may
// be empty or missing; a present but malformed file is an error.
func LoadAllowlists(workspaceRoot, file string) (*Allowlist, error) {
	merged := &Allowlist{}
	var sources []string
	if workspaceRoot != "" {
		sources = append(sources, filepath.Join(workspaceRoot, ".gitleaks.toml"))
	}
	if file != "" {
		sources = append(sources, file)
	}

	for _, path := range sources {
		list, err := loadTOML(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		merged.Paths = append(merged.Paths, list.Paths...)
		merged.Regexes = append(merged.Regexes, list.Regexes...)
	}
	return merged, nil
}

func loadTOML(path string) (*Allowlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg allowlistFile
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	for _, pattern := range append(append([]string{}, cfg.Allowlist.Paths...), cfg.Allowlist.Regexes...) {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: %q in %s: %v", ErrInvalidRegex, pattern, path, err)
		}
	}

	return &Allowlist{
		Paths:   cfg.Allowlist.Paths,
		Regexes: cfg.Allowlist.Regexes,
	}, nil
}
