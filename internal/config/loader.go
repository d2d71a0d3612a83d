package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// FileName is looked up in the workspace root when no path is given.
	FileName = "pipegate.yaml"

	// EnvPrefix marks environment overrides: PIPEGATE_LOGGING_LEVEL -> logging.level.
	EnvPrefix = "PIPEGATE_"

	// WorkspaceEnv scopes the workspace root when no flag is given.
	WorkspaceEnv = "WORKSPACE_ROOT"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Load builds configuration with precedence (highest first):
//  1. PIPEGATE_* environment variables
//  2. the YAML file at path, or <workspace>/pipegate.yaml when path is empty
//  3. Default()
//
// workspace is the root chosen by the caller; an empty value falls back to
// $WORKSPACE_ROOT and then the current directory. A missing default file is
// not an error; a missing explicit path is.
func Load(path, workspace string) (*Config, error) {
	root, err := resolveWorkspace(workspace)
	if err != nil {
		return nil, err
	}

	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = filepath.Join(root, FileName)
	}
	content, err := readConfigFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	case err != nil:
		return nil, err
	default:
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Unmarshal over the defaults; keys absent from file and env keep them.
	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Workspace.Root == "" {
		cfg.Workspace.Root = root
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envKey maps PIPEGATE_SECTION_FIELD_NAME to section.field_name: only the
// first underscore after the prefix separates levels.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func resolveWorkspace(workspace string) (string, error) {
	if workspace == "" {
		workspace = os.Getenv(WorkspaceEnv)
	}
	if workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		workspace = wd
	}
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return "", fmt.Errorf("failed to resolve workspace %s: %w", workspace, err)
	}
	return abs, nil
}

// readConfigFile opens path once and checks size on the open descriptor.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file %s: %w", path, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("config file %s is not a regular file", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return io.ReadAll(f)
}
