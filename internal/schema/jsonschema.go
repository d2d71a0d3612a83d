package schema

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/fyrsmithlabs/pipegate/internal/sanitize"
)

//go:embed contracts
var embedded embed.FS

// Embedded exposes the bundled contract schemas.
func Embedded() fs.FS {
	return embedded
}

// JSONSchemaValidator validates documents with google/jsonschema-go.
// Compiled schemas are cached per resolved source for the validator's life.
type JSONSchemaValidator struct {
	root string

	mu    sync.Mutex
	cache map[string]*jsonschema.Resolved
}

var _ Validator = (*JSONSchemaValidator)(nil)

// NewJSONSchemaValidator returns a validator that resolves schema refs under
// root before falling back to the embedded contracts. An empty root uses
// only the embedded contracts.
func NewJSONSchemaValidator(root string) *JSONSchemaValidator {
	return &JSONSchemaValidator{
		root:  root,
		cache: make(map[string]*jsonschema.Resolved),
	}
}

// Validate implements Validator.
func (v *JSONSchemaValidator) Validate(ctx context.Context, doc any, ref string) (Validation, error) {
	if err := ctx.Err(); err != nil {
		return Validation{}, err
	}

	resolved, loadErr, err := v.load(ref)
	if err != nil {
		return Validation{}, err
	}
	if loadErr != "" {
		return Invalid(loadErr), nil
	}

	instance, err := normalize(doc)
	if err != nil {
		return Invalid(fmt.Sprintf("/: document is not JSON encodable: %v", err)), nil
	}
	if err := resolved.Validate(instance); err != nil {
		return Invalid(formatErrors(err)...), nil
	}
	return OK(), nil
}

// load returns the compiled schema for ref. A non-empty loadErr reports a
// schema that is missing or broken; err reports an unsafe ref.
func (v *JSONSchemaValidator) load(ref string) (resolved *jsonschema.Resolved, loadErr string, err error) {
	data, key, err := v.read(ref)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Sprintf("Failed to load schema: %v", err), nil
		}
		return nil, "", err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if cached, ok := v.cache[key]; ok {
		return cached, "", nil
	}

	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, "Schema file is not valid JSON", nil
	}
	compiled, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Sprintf("Schema compilation failed: %v", err), nil
	}
	v.cache[key] = compiled
	return compiled, "", nil
}

// read locates the schema bytes, preferring the workspace copy.
func (v *JSONSchemaValidator) read(ref string) (data []byte, key string, err error) {
	if v.root != "" {
		abs, err := sanitize.ResolveWithin(v.root, ref)
		if err != nil {
			return nil, "", err
		}
		data, err := os.ReadFile(abs)
		if err == nil {
			return data, abs, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("%w: %s: %v", fs.ErrNotExist, ref, err)
		}
	}

	name := path.Clean(strings.TrimPrefix(filepath.ToSlash(ref), "./"))
	data, err = fs.ReadFile(embedded, name)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s", fs.ErrNotExist, ref)
	}
	return data, "embedded:" + name, nil
}

// normalize round-trips doc through JSON so typed structs validate the same
// way as decoded maps.
func normalize(doc any) (any, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func formatErrors(err error) []string {
	var out []string
	for _, line := range strings.Split(err.Error(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, "/: "+line)
	}
	if len(out) == 0 {
		out = []string{"/: validation failed"}
	}
	return out
}
