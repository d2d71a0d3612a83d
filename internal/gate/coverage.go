package gate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Coverage is the ratio of source identifiers found among target strings.
type Coverage struct {
	Ratio   float64
	Matched int
	Total   int
	Missing []string
}

// ComputeCoverage compares a set of required identifiers with the strings
// found downstream. An empty source is fully covered.
func ComputeCoverage(source []string, targets map[string]bool) Coverage {
	unique := make(map[string]bool, len(source))
	for _, id := range source {
		unique[id] = true
	}
	ids := sortedKeys(unique)
	if len(ids) == 0 {
		return Coverage{Ratio: 1, Missing: []string{}}
	}

	cov := Coverage{Total: len(ids), Missing: []string{}}
	for _, id := range ids {
		if targets[id] {
			cov.Matched++
		} else {
			cov.Missing = append(cov.Missing, id)
		}
	}
	cov.Ratio = float64(cov.Matched) / float64(cov.Total)
	return cov
}

// Passed reports whether the ratio meets threshold. Vacuous coverage passes.
func (c Coverage) Passed(threshold float64) bool {
	return c.Total == 0 || c.Ratio >= threshold
}

// Evidence renders the coverage line recorded on gates.
func (c Coverage) Evidence(threshold float64) string {
	missing := "none"
	if len(c.Missing) > 0 {
		missing = strings.Join(c.Missing, ", ")
	}
	return fmt.Sprintf("coverage=%.4f threshold=%.4f matched=%d/%d missing=%s",
		c.Ratio, threshold, c.Matched, c.Total, missing)
}

func checkCoverage(doc gjson.Result, c Criterion) (bool, string) {
	threshold, ok := number(c.Value)
	if !ok || threshold < 0 || threshold > 1 {
		return false, "coverage-min value must be between 0 and 1"
	}
	source := lookup(doc, c.SourcePath)
	if !source.IsArray() {
		return false, fmt.Sprintf("Field %q is not an array", c.SourcePath)
	}

	var filter []byte
	if c.SourceFilterPath != "" {
		filter, _ = json.Marshal(c.SourceFilterValue)
	}

	var ids []string
	for _, entry := range source.Array() {
		if c.SourceFilterPath != "" && !matchesFilter(entry, c.SourceFilterPath, filter) {
			continue
		}
		if id := traceID(entry); id != "" {
			ids = append(ids, id)
		}
	}

	targets := make(map[string]bool)
	for _, p := range c.TargetPaths {
		collectStrings(lookup(doc, p), targets)
	}

	cov := ComputeCoverage(ids, targets)
	return cov.Passed(threshold), cov.Evidence(threshold)
}

// traceID prefers an explicit trace_id and falls back to id.
func traceID(entry gjson.Result) string {
	for _, key := range []string{"trace_id", "id"} {
		if v := entry.Get(key); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

// matchesFilter compares the entry's value at path with the encoded filter
// value by JSON equality.
func matchesFilter(entry gjson.Result, path string, want []byte) bool {
	got := lookup(entry, path)
	if !got.Exists() {
		return string(want) == "null" || len(want) == 0
	}
	var a, b any
	if json.Unmarshal([]byte(got.Raw), &a) != nil || json.Unmarshal(want, &b) != nil {
		return false
	}
	ra, _ := json.Marshal(a)
	rb, _ := json.Marshal(b)
	return string(ra) == string(rb)
}
