// Package artifact models the typed phase artifacts of a run.
//
// Each phase writes one JSON artifact. The gate engine consumes the generic
// Document form; the synthesizer builds artifacts from the typed structs in
// this package and converts them with ToDocument.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fyrsmithlabs/pipegate/internal/errcode"
	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
)

// Kind tags an artifact with what it describes.
type Kind string

const (
	KindBrief            Kind = "brief"
	KindDesign           Kind = "design"
	KindReview           Kind = "review"
	KindPlan             Kind = "plan"
	KindDriftReport      Kind = "drift-report"
	KindBuild            Kind = "build"
	KindQualityReport    Kind = "quality-report"
	KindReleaseReadiness Kind = "release-readiness"
)

// KindOf returns the artifact kind a phase produces. Post-build produces none.
func KindOf(p pipeline.Phase) (Kind, bool) {
	switch p {
	case pipeline.Arm:
		return KindBrief, true
	case pipeline.Design:
		return KindDesign, true
	case pipeline.AdversarialReview:
		return KindReview, true
	case pipeline.Plan:
		return KindPlan, true
	case pipeline.PMatch:
		return KindDriftReport, true
	case pipeline.Build:
		return KindBuild, true
	case pipeline.QualityStatic, pipeline.QualityTests:
		return KindQualityReport, true
	case pipeline.ReleaseReadiness:
		return KindReleaseReadiness, true
	}
	return "", false
}

// DefaultRef is the run-relative file a phase writes its artifact to, or ""
// when the phase has no artifact.
func DefaultRef(p pipeline.Phase) string {
	switch p {
	case pipeline.Arm:
		return "brief.json"
	case pipeline.Design:
		return "design.json"
	case pipeline.AdversarialReview:
		return "review.json"
	case pipeline.Plan:
		return "plan.json"
	case pipeline.PMatch:
		return "drift-reports/pmatch.json"
	case pipeline.Build:
		return "build.json"
	case pipeline.QualityStatic:
		return "quality-reports/static.json"
	case pipeline.QualityTests:
		return "quality-reports/tests.json"
	case pipeline.ReleaseReadiness:
		return "release-readiness.json"
	case pipeline.PostBuild:
		return ""
	}
	return string(p) + ".json"
}

// Document is an artifact in its generic JSON form.
type Document = map[string]any

// ToDocument converts a typed artifact to its generic form.
func ToDocument(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode artifact: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}
	return doc, nil
}

// Decode converts a generic document into a typed artifact.
func Decode(doc Document, v any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errcode.BadInputf("artifact does not match its kind: %v", err)
	}
	return nil
}

// Load reads a JSON artifact. Content that is not a JSON object is
// E_BAD_INPUT.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errcode.BadInputf("artifact is not a JSON object: %s: %v", path, err)
	}
	if doc == nil {
		return nil, errcode.BadInputf("artifact is not a JSON object: %s", path)
	}
	return doc, nil
}
