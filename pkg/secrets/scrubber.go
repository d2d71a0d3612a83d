package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// Scrubber redacts secrets from free-form text such as trace messages.
type Scrubber interface {
	// Scrub returns content with every detected secret replaced by a
	// [REDACTED:rule:preview] marker.
	Scrub(content string) Result

	// Enabled reports whether detection runs at all.
	Enabled() bool
}

// Options configures a gitleaks-backed scrubber.
type Options struct {
	// WorkspaceRoot is searched for a .gitleaks.toml allowlist.
	WorkspaceRoot string

	// AllowlistFile is an additional allowlist TOML file.
	AllowlistFile string
}

// gitleaksScrubber holds one detector for the life of the process. Building
// the default config compiles several hundred rules, so it is done once.
type gitleaksScrubber struct {
	mu       sync.Mutex
	detector *detect.Detector
}

// New builds a scrubber from the default gitleaks rule set plus any
// allowlists found through opts.
func New(opts Options) (Scrubber, error) {
	allowlist, err := LoadAllowlists(opts.WorkspaceRoot, opts.AllowlistFile)
	if err != nil {
		return nil, fmt.Errorf("loading allowlists: %w", err)
	}

	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("building gitleaks detector: %w", err)
	}
	if err := applyAllowlist(&detector.Config, allowlist); err != nil {
		return nil, err
	}
	return &gitleaksScrubber{detector: detector}, nil
}

func (s *gitleaksScrubber) Enabled() bool { return true }

func (s *gitleaksScrubber) Scrub(content string) Result {
	if content == "" {
		return Result{Content: content}
	}

	s.mu.Lock()
	found := s.detector.DetectString(content)
	s.mu.Unlock()

	findings := make([]Finding, 0, len(found))
	for _, f := range found {
		if f.Secret == "" {
			continue
		}
		findings = append(findings, Finding{
			RuleID:   f.RuleID,
			RuleDesc: f.Description,
			Line:     f.StartLine,
			Match:    f.Secret,
		})
	}
	return Result{
		Content:    replaceFindings(content, findings),
		Redactions: buildRedactions(findings),
	}
}

// replaceFindings substitutes each secret with its marker. Longer secrets
// are replaced first so a secret containing another is not split.
func replaceFindings(content string, findings []Finding) string {
	if len(findings) == 0 {
		return content
	}
	sorted := make([]Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Match) > len(sorted[j].Match)
	})
	for _, f := range sorted {
		marker := fmt.Sprintf("[REDACTED:%s:%s]", f.RuleID, extractPreview(f.Match, 4))
		content = strings.ReplaceAll(content, f.Match, marker)
	}
	return content
}

func extractPreview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// applyAllowlist merges allowlist patterns into the gitleaks config.
func applyAllowlist(cfg *gitleaksConfig.Config, allowlist *Allowlist) error {
	if allowlist == nil || (len(allowlist.Paths) == 0 && len(allowlist.Regexes) == 0) {
		return nil
	}
	global := &gitleaksConfig.Allowlist{
		Description: "pipegate workspace allowlist",
	}
	for _, pattern := range allowlist.Paths {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidRegex, pattern, err)
		}
		global.Paths = append(global.Paths, (*gitleaksRegexp.Regexp)(re))
	}
	for _, pattern := range allowlist.Regexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidRegex, pattern, err)
		}
		global.Regexes = append(global.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	cfg.Allowlists = append(cfg.Allowlists, global)
	return nil
}

// Nop returns a scrubber that never redacts.
func Nop() Scrubber { return nopScrubber{} }

type nopScrubber struct{}

func (nopScrubber) Scrub(content string) Result { return Result{Content: content} }
func (nopScrubber) Enabled() bool               { return false }
