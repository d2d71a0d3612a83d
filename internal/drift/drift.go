// Package drift defines the contract with the external drift adjudication
// engine and a detector that runs it as a subprocess.
//
// The engine compares the assertions of one document against another and
// returns structured claims. The runner reads only each claim's
// verification status and covered requirement ids.
package drift

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/pipegate/internal/artifact"
	"github.com/fyrsmithlabs/pipegate/internal/errcode"
	"github.com/fyrsmithlabs/pipegate/internal/taskset"
)

// ActionDetect is the engine action for drift detection.
const ActionDetect = "drift-detect"

// Document types the engine accepts.
const (
	DocumentDesign         = "design"
	DocumentPlan           = "plan"
	DocumentImplementation = "implementation"
)

// Request is the JSON written to the engine's stdin.
type Request struct {
	Action      Action   `json:"action"`
	Document    Document `json:"document"`
	DriftConfig Config   `json:"drift_config"`
}

type Action struct {
	Type string `json:"type"`
}

// Document is the source document whose claims are checked.
type Document struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

// Config points the engine at its target and adjudication mode.
type Config struct {
	SourceRef          string     `json:"source_ref,omitempty"`
	TargetRef          string     `json:"target_ref"`
	Mode               string     `json:"mode,omitempty"`
	ExtractorClaimSets []ClaimSet `json:"extractor_claim_sets,omitempty"`
}

// ClaimSet is one extractor's pre-computed claims for dual-extractor mode.
type ClaimSet struct {
	Extractor string           `json:"extractor"`
	Claims    []ExtractorClaim `json:"claims"`
}

type ExtractorClaim struct {
	ID                 string   `json:"id"`
	Claim              string   `json:"claim"`
	ClaimType          string   `json:"claim_type,omitempty"`
	VerificationStatus string   `json:"verification_status"`
	Evidence           string   `json:"evidence"`
	Confidence         *float64 `json:"confidence,omitempty"`
}

// Response is the engine's drift data.
type Response struct {
	SourceDocument *artifact.DocumentRef   `json:"source_document,omitempty"`
	TargetDocument *artifact.DocumentRef   `json:"target_document,omitempty"`
	Claims         []artifact.Claim        `json:"claims"`
	Findings       []artifact.DriftFinding `json:"findings"`
	Adjudication   artifact.Adjudication   `json:"adjudication"`
}

// Detector runs drift detection.
type Detector interface {
	Detect(ctx context.Context, req Request) (*Response, error)
}

// NewRequest builds a detection request for content of docType against
// targetRef.
func NewRequest(content, docType, targetRef, mode string) Request {
	return Request{
		Action:   Action{Type: ActionDetect},
		Document: Document{Content: content, Type: docType},
		DriftConfig: Config{
			TargetRef: targetRef,
			Mode:      mode,
		},
	}
}

// Validate checks a request before it is sent.
func (r Request) Validate() error {
	if r.Action.Type != ActionDetect {
		return errcode.BadInputf("drift action must be %s", ActionDetect)
	}
	if r.Document.Content == "" {
		return errcode.BadInputf("drift document content is required")
	}
	switch r.Document.Type {
	case DocumentDesign, DocumentPlan, DocumentImplementation:
	default:
		return errcode.BadInputf("drift document type must be one of: design, plan, implementation")
	}
	if r.DriftConfig.TargetRef == "" {
		return errcode.BadInputf("drift_config.target_ref is required")
	}
	switch r.DriftConfig.Mode {
	case "", taskset.DriftModeHeuristic, taskset.DriftModeDualExtractor:
	default:
		return errcode.BadInputf("drift_config.mode must be heuristic or dual-extractor")
	}
	return nil
}

var errNoClaims = errors.New("response has no claims array")

// Validate checks the fields the runner depends on.
func (r *Response) Validate() error {
	if r.Claims == nil {
		return errcode.Wrap(errcode.DriftFailed, "drift response", errNoClaims)
	}
	for i, c := range r.Claims {
		switch c.VerificationStatus {
		case taskset.DriftVerified, taskset.DriftViolated, taskset.DriftPartial, taskset.DriftUnverifiable:
		default:
			return errcode.New(errcode.DriftFailed, "drift response claim[%d] has invalid verification_status %q", i, c.VerificationStatus)
		}
		if c.DriftScore < 0 || c.DriftScore > 1 {
			return errcode.New(errcode.DriftFailed, "drift response claim[%d] drift_score out of range: %v", i, c.DriftScore)
		}
	}
	return nil
}

// Report converts the response into a drift report artifact.
func (r *Response) Report() *artifact.DriftReport {
	findings := r.Findings
	if findings == nil {
		findings = []artifact.DriftFinding{}
	}
	extractors := r.Adjudication.Extractors
	if extractors == nil {
		extractors = []string{}
	}
	adj := r.Adjudication
	adj.Extractors = extractors
	return &artifact.DriftReport{
		SourceDocument: r.SourceDocument,
		TargetDocument: r.TargetDocument,
		Claims:         r.Claims,
		Findings:       findings,
		Adjudication:   adj,
	}
}

// Static returns a detector that always answers resp. It stands in for the
// engine in tests and offline runs.
func Static(resp *Response) Detector {
	return staticDetector{resp: resp}
}

type staticDetector struct{ resp *Response }

func (s staticDetector) Detect(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s.resp == nil {
		return nil, fmt.Errorf("static detector has no response")
	}
	return s.resp, nil
}
