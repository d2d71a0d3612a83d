package secrets

// Finding is a detected secret. Match holds the raw value and never leaves
// this package; callers only see Redaction records.
type Finding struct {
	RuleID   string
	RuleDesc string
	Line     int
	Match    string
}

// Result is the outcome of one Scrub call.
type Result struct {
	Content    string      `json:"-"`
	Redactions []Redaction `json:"redactions,omitempty"`
}

// Redaction describes one redacted secret without its value.
type Redaction struct {
	RuleID      string `json:"rule_id"`
	RuleDesc    string `json:"rule_desc,omitempty"`
	LineNumber  int    `json:"line_number"`
	OriginalLen int    `json:"original_len"`
	Preview     string `json:"preview"`
}

// HasRedactions reports whether anything was redacted.
func (r Result) HasRedactions() bool {
	return len(r.Redactions) > 0
}

// RuleCounts tallies redactions per rule id.
func (r Result) RuleCounts() map[string]int {
	counts := make(map[string]int, len(r.Redactions))
	for _, red := range r.Redactions {
		counts[red.RuleID]++
	}
	return counts
}

func buildRedactions(findings []Finding) []Redaction {
	if len(findings) == 0 {
		return nil
	}
	out := make([]Redaction, 0, len(findings))
	for _, f := range findings {
		out = append(out, Redaction{
			RuleID:      f.RuleID,
			RuleDesc:    f.RuleDesc,
			LineNumber:  f.Line,
			OriginalLen: len(f.Match),
			Preview:     extractPreview(f.Match, 4),
		})
	}
	return out
}
