package gate

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/fyrsmithlabs/pipegate/internal/errcode"
)

// CriterionType selects how a criterion is checked.
type CriterionType string

const (
	FieldExists CriterionType = "field-exists"
	FieldEmpty  CriterionType = "field-empty"
	CountMin    CriterionType = "count-min"
	CountMax    CriterionType = "count-max"
	NumberMax   CriterionType = "number-max"
	CoverageMin CriterionType = "coverage-min"
	RegexMatch  CriterionType = "regex-match"
)

// CriterionTypes returns every supported criterion type.
func CriterionTypes() []CriterionType {
	return []CriterionType{FieldExists, FieldEmpty, CountMin, CountMax, NumberMax, CoverageMin, RegexMatch}
}

// Criterion is one named check against an artifact.
type Criterion struct {
	Name  string        `json:"name"`
	Type  CriterionType `json:"type"`
	Path  string        `json:"path"`
	Value any           `json:"value,omitempty"`

	// coverage-min only.
	SourcePath        string   `json:"source_path,omitempty"`
	SourceFilterPath  string   `json:"source_filter_path,omitempty"`
	SourceFilterValue any      `json:"source_filter_value,omitempty"`
	TargetPaths       []string `json:"target_paths,omitempty"`
}

// CriterionResult is the outcome of one criterion.
type CriterionResult struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Evidence string `json:"evidence"`
}

// Validate checks the criterion's shape. Failures are E_BAD_INPUT.
func (c Criterion) Validate() error {
	if c.Name == "" {
		return errcode.BadInputf("Each criterion must have a name")
	}
	if c.Type == "" {
		return errcode.BadInputf("Each criterion must have a type")
	}
	if !knownType(c.Type) {
		names := make([]string, 0, len(CriterionTypes()))
		for _, t := range CriterionTypes() {
			names = append(names, string(t))
		}
		return errcode.BadInputf("Each criterion type must be one of: %s", strings.Join(names, ", "))
	}
	if c.Path == "" {
		return errcode.BadInputf("Each criterion must have a path")
	}

	switch c.Type {
	case CountMin, CountMax:
		if _, ok := nonNegativeInt(c.Value); !ok {
			return errcode.BadInputf("%s criterion requires a non-negative integer value", c.Type)
		}
	case NumberMax:
		if n, ok := number(c.Value); !ok || n < 0 {
			return errcode.BadInputf("number-max criterion requires a non-negative number value")
		}
	case CoverageMin:
		if n, ok := number(c.Value); !ok || n < 0 || n > 1 {
			return errcode.BadInputf("coverage-min criterion requires a value between 0 and 1")
		}
		if c.SourcePath == "" {
			return errcode.BadInputf("coverage-min criterion requires source_path")
		}
		if len(c.TargetPaths) == 0 {
			return errcode.BadInputf("coverage-min criterion requires non-empty target_paths")
		}
		for _, p := range c.TargetPaths {
			if p == "" {
				return errcode.BadInputf("coverage-min criterion target_paths must contain non-empty strings")
			}
		}
	case RegexMatch:
		if s, ok := c.Value.(string); !ok || s == "" {
			return errcode.BadInputf("regex-match criterion requires non-empty string value")
		}
	}
	return nil
}

func knownType(t CriterionType) bool {
	for _, known := range CriterionTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// EvaluateCriteria checks each criterion against artifact in order. It never
// fails: malformed criteria produce failing results with evidence.
func EvaluateCriteria(artifact any, criteria []Criterion) ([]CriterionResult, error) {
	data, err := json.Marshal(artifact)
	if err != nil {
		return nil, errcode.Wrap(errcode.BadInput, "encode artifact", err)
	}
	doc := gjson.ParseBytes(data)

	results := make([]CriterionResult, 0, len(criteria))
	for _, c := range criteria {
		passed, evidence := check(doc, c)
		results = append(results, CriterionResult{Name: c.Name, Passed: passed, Evidence: evidence})
	}
	return results, nil
}

func check(doc gjson.Result, c Criterion) (bool, string) {
	switch c.Type {
	case FieldExists:
		return checkFieldExists(doc, c.Path)
	case FieldEmpty:
		return checkFieldEmpty(doc, c.Path)
	case CountMin:
		return checkCount(doc, c.Path, c.Value, true)
	case CountMax:
		return checkCount(doc, c.Path, c.Value, false)
	case NumberMax:
		return checkNumberMax(doc, c.Path, c.Value)
	case CoverageMin:
		return checkCoverage(doc, c)
	case RegexMatch:
		return checkRegexMatch(doc, c.Path, c.Value)
	}
	return false, fmt.Sprintf("Unknown criterion type: %s", c.Type)
}

func checkFieldExists(doc gjson.Result, path string) (bool, string) {
	val := lookup(doc, path)
	if !val.Exists() || val.Type == gjson.Null {
		return false, fmt.Sprintf("Field %q is missing or null", path)
	}
	return true, fmt.Sprintf("Field %q exists with type %s", path, typeOf(val))
}

func checkFieldEmpty(doc gjson.Result, path string) (bool, string) {
	val := lookup(doc, path)
	if !val.IsArray() {
		return false, fmt.Sprintf("Field %q is not an array", path)
	}
	n := len(val.Array())
	if n == 0 {
		return true, fmt.Sprintf("Field %q is an empty array", path)
	}
	return false, fmt.Sprintf("Field %q has %d item(s), expected 0", path, n)
}

func checkCount(doc gjson.Result, path string, bound any, isMin bool) (bool, string) {
	val := lookup(doc, path)
	if !val.IsArray() {
		return false, fmt.Sprintf("Field %q is not an array", path)
	}
	limit, ok := nonNegativeInt(bound)
	if !ok {
		if isMin {
			return false, "count-min value must be a non-negative integer"
		}
		return false, "count-max value must be a non-negative integer"
	}
	n := len(val.Array())
	if isMin {
		return n >= limit, fmt.Sprintf("Field %q has %d item(s), minimum required: %d", path, n, limit)
	}
	return n <= limit, fmt.Sprintf("Field %q has %d item(s), maximum allowed: %d", path, n, limit)
}

func checkNumberMax(doc gjson.Result, path string, bound any) (bool, string) {
	val := lookup(doc, path)
	if val.Type != gjson.Number {
		return false, fmt.Sprintf("Field %q is not a number", path)
	}
	limit, ok := number(bound)
	if !ok || limit < 0 {
		return false, "number-max value must be a non-negative number"
	}
	n := val.Float()
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return false, fmt.Sprintf("Field %q is not a finite number", path)
	}
	return n <= limit, fmt.Sprintf("Field %q is %s, maximum allowed: %s", path, formatNumber(n), formatNumber(limit))
}

func checkRegexMatch(doc gjson.Result, path string, pattern any) (bool, string) {
	val := lookup(doc, path)
	if val.Type != gjson.String {
		return false, fmt.Sprintf("Field %q is not a string", path)
	}
	expr, ok := pattern.(string)
	if !ok {
		return false, fmt.Sprintf("Regex pattern must be a string, got %T", pattern)
	}
	if len(val.Str) > maxRegexTargetLength {
		return false, fmt.Sprintf("Field %q is too large for regex evaluation (%d > %d)",
			path, len(val.Str), maxRegexTargetLength)
	}
	if IsPotentiallyUnsafeRegex(expr) {
		return false, fmt.Sprintf("Regex pattern /%s/ rejected as potentially unsafe", expr)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return false, fmt.Sprintf("Invalid regex pattern /%s/: %v", expr, err)
	}
	if re.MatchString(val.Str) {
		return true, fmt.Sprintf("Field %q matches pattern /%s/", path, expr)
	}
	return false, fmt.Sprintf("Field %q value %q does not match /%s/", path, val.Str, expr)
}

// number accepts the numeric forms a criterion value may take after JSON
// decoding or Go construction.
func number(v any) (float64, bool) {
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case float32:
		n = float64(t)
	case int:
		n = float64(t)
	case int64:
		n = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func nonNegativeInt(v any) (int, bool) {
	n, ok := number(v)
	if !ok || n < 0 || n != math.Trunc(n) || n > math.MaxInt32 {
		return 0, false
	}
	return int(n), true
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
