package artifact

import (
	"fmt"
	"math"
	"time"

	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
	"github.com/fyrsmithlabs/pipegate/internal/store"
	"github.com/fyrsmithlabs/pipegate/internal/taskset"
)

const (
	defaultFilesLoaded   = 3
	defaultTokenEstimate = 2000
	budgetTokenCeiling   = 4000
	charsPerToken        = 4
)

// ContextManifest records what a phase loaded into its context window.
type ContextManifest struct {
	SelectionPolicy   string       `json:"selection_policy"`
	OrderingPolicy    string       `json:"ordering_policy"`
	FilesLoaded       []LoadedFile `json:"files_loaded"`
	DocsLoaded        []LoadedDoc  `json:"docs_loaded,omitempty"`
	TokenEstimate     int          `json:"token_estimate"`
	CharCountEstimate int          `json:"char_count_estimate"`
}

type LoadedFile struct {
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
}

type LoadedDoc struct {
	URL         string `json:"url"`
	RetrievedAt string `json:"retrieved_at,omitempty"`
}

// BuildManifest synthesizes the manifest for a phase from its stage profile.
// It returns nil when the profile disables the manifest. Without a token
// estimate in the profile, the budget's token_max capped at 4000 is used,
// else 2000.
func BuildManifest(p pipeline.Phase, profile taskset.Profile, budget *store.ContextBudget, now time.Time) *ContextManifest {
	if !profile.ManifestPresent() {
		return nil
	}

	files := truncNonNegative(profile.FilesLoaded, defaultFilesLoaded)
	tokenDefault := float64(defaultTokenEstimate)
	if budget != nil && budget.TokenMax != 0 {
		tokenDefault = math.Min(budgetTokenCeiling, budget.TokenMax)
	}
	tokens := truncNonNegative(profile.TokenEstimate, tokenDefault)
	chars := truncNonNegative(profile.CharCountEstimate, float64(tokens*charsPerToken))

	loaded := make([]LoadedFile, files)
	for i := range loaded {
		loaded[i] = LoadedFile{
			Path:  fmt.Sprintf("docs/task/%s/source-%d.md", p, i+1),
			Bytes: 400 + i*20,
		}
	}
	return &ContextManifest{
		SelectionPolicy: "taskset-default-minimal",
		OrderingPolicy:  "requirements-first-then-recent-artifacts",
		FilesLoaded:     loaded,
		DocsLoaded: []LoadedDoc{{
			URL:         "https://example.com/reference",
			RetrievedAt: pipeline.Timestamp(now),
		}},
		TokenEstimate:     tokens,
		CharCountEstimate: chars,
	}
}

func truncNonNegative(v *float64, fallback float64) int {
	n := fallback
	if v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0) {
		n = *v
	}
	return int(math.Max(0, math.Trunc(n)))
}
