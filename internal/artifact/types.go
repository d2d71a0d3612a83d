package artifact

// Brief is the arm phase artifact: requirements and constraints.
type Brief struct {
	Requirements  []Requirement    `json:"requirements"`
	Constraints   []Constraint     `json:"constraints"`
	NonGoals      []NonGoal        `json:"non_goals,omitempty"`
	Style         *Style           `json:"style,omitempty"`
	KeyConcepts   []KeyConcept     `json:"key_concepts,omitempty"`
	Decisions     []Decision       `json:"decisions,omitempty"`
	OpenQuestions []string         `json:"open_questions"`
	Context       *ContextManifest `json:"context_manifest,omitempty"`
}

type Requirement struct {
	ID          string `json:"id"`
	TraceID     string `json:"trace_id,omitempty"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

type Constraint struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Source      string `json:"source,omitempty"`
}

type NonGoal struct {
	Description string `json:"description"`
	Reason      string `json:"reason,omitempty"`
}

type Style struct {
	Tone        string   `json:"tone"`
	Patterns    []string `json:"patterns"`
	Conventions []string `json:"conventions"`
}

type KeyConcept struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

type Decision struct {
	Decision  string `json:"decision"`
	Rationale string `json:"rationale"`
}

// DesignDocument is the design phase artifact.
type DesignDocument struct {
	Analysis                  Analysis                   `json:"analysis"`
	ConstraintsClassification []ConstraintClassification `json:"constraints_classification"`
	Approach                  Approach                   `json:"approach"`
	Research                  []Research                 `json:"research,omitempty"`
	CodebaseAlignment         []Alignment                `json:"codebase_alignment,omitempty"`
	IterationHistory          []Iteration                `json:"iteration_history,omitempty"`
	Context                   *ContextManifest           `json:"context_manifest,omitempty"`
}

type Analysis struct {
	Summary    string      `json:"summary"`
	Principles []Principle `json:"principles,omitempty"`
}

type Principle struct {
	Principle   string `json:"principle"`
	Implication string `json:"implication"`
}

type ConstraintClassification struct {
	Constraint           string   `json:"constraint"`
	TraceID              string   `json:"trace_id,omitempty"`
	CoversRequirementIDs []string `json:"covers_requirement_ids,omitempty"`
	OriginalType         string   `json:"original_type"`
	ValidatedType        string   `json:"validated_type"`
	Evaluation           string   `json:"evaluation,omitempty"`
	Flagged              bool     `json:"flagged"`
}

type Approach struct {
	Description string      `json:"description"`
	Rationale   string      `json:"rationale,omitempty"`
	Components  []Component `json:"components,omitempty"`
}

type Component struct {
	Name           string   `json:"name"`
	Responsibility string   `json:"responsibility"`
	Interfaces     []string `json:"interfaces,omitempty"`
}

type Research struct {
	Source     string `json:"source"`
	URL        string `json:"url,omitempty"`
	Finding    string `json:"finding"`
	VerifiedAt string `json:"verified_at,omitempty"`
}

type Alignment struct {
	Pattern         string   `json:"pattern"`
	FilePaths       []string `json:"file_paths"`
	AlignmentStatus string   `json:"alignment_status"`
	Notes           string   `json:"notes,omitempty"`
}

type Iteration struct {
	Iteration int    `json:"iteration"`
	Changes   string `json:"changes"`
	Rationale string `json:"rationale"`
}

// ReviewReport is the adversarial-review artifact.
type ReviewReport struct {
	Reviewers            []Reviewer       `json:"reviewers"`
	DeduplicatedFindings []Finding        `json:"deduplicated_findings"`
	FactChecks           []FactCheck      `json:"fact_checks,omitempty"`
	CostBenefit          []CostBenefit    `json:"cost_benefit"`
	Mitigations          []Mitigation     `json:"mitigations,omitempty"`
	Iteration            *ReviewIteration `json:"iteration,omitempty"`
	Context              *ContextManifest `json:"context_manifest,omitempty"`
}

type Reviewer struct {
	ModelID  string    `json:"model_id"`
	Findings []Finding `json:"findings"`
}

// Finding is one review observation.
type Finding struct {
	ID                   string   `json:"id"`
	TraceID              string   `json:"trace_id,omitempty"`
	Category             string   `json:"category"`
	Description          string   `json:"description"`
	Severity             string   `json:"severity"`
	SourceModels         []string `json:"source_models,omitempty"`
	CoversRequirementIDs []string `json:"covers_requirement_ids,omitempty"`
	Evidence             string   `json:"evidence,omitempty"`
	Suggestion           string   `json:"suggestion,omitempty"`
}

type FactCheck struct {
	FindingID string `json:"finding_id"`
	Status    string `json:"status"`
	Evidence  string `json:"evidence"`
}

type Mitigation struct {
	FindingID string `json:"finding_id"`
	Status    string `json:"status"`
	Action    string `json:"action"`
}

type ReviewIteration struct {
	LoopCount            int      `json:"loop_count"`
	RemainingUnmitigated []string `json:"remaining_unmitigated"`
}

// ExecutionPlan is the plan phase artifact.
type ExecutionPlan struct {
	TaskGroups           []TaskGroup           `json:"task_groups"`
	FileOwnership        map[string]string     `json:"file_ownership,omitempty"`
	VerificationCommands []VerificationCommand `json:"verification_commands,omitempty"`
	Context              *ContextManifest      `json:"context_manifest,omitempty"`
}

type TaskGroup struct {
	GroupID     string     `json:"group_id"`
	BuilderTier string     `json:"builder_tier,omitempty"`
	Tasks       []PlanTask `json:"tasks"`
}

type PlanTask struct {
	ID                   string        `json:"id"`
	TraceID              string        `json:"trace_id,omitempty"`
	Description          string        `json:"description"`
	CoversRequirementIDs []string      `json:"covers_requirement_ids"`
	CoversConstraintIDs  []string      `json:"covers_constraint_ids,omitempty"`
	FilePaths            []string      `json:"file_paths,omitempty"`
	CodePatterns         []CodePattern `json:"code_patterns,omitempty"`
	TestCases            []TestCase    `json:"test_cases"`
	AcceptanceCriteria   []string      `json:"acceptance_criteria,omitempty"`
	Dependencies         []string      `json:"dependencies"`
}

type CodePattern struct {
	File        string `json:"file"`
	Pattern     string `json:"pattern"`
	Description string `json:"description"`
}

type TestCase struct {
	Name                 string   `json:"name"`
	TraceID              string   `json:"trace_id,omitempty"`
	CoversRequirementIDs []string `json:"covers_requirement_ids"`
	Setup                string   `json:"setup,omitempty"`
	Assertion            string   `json:"assertion,omitempty"`
	Expected             string   `json:"expected,omitempty"`
}

type VerificationCommand struct {
	Command          string `json:"command"`
	Description      string `json:"description"`
	WorkingDirectory string `json:"working_directory,omitempty"`
}

// DriftReport is the pmatch artifact: claims verified against a target.
type DriftReport struct {
	SourceDocument *DocumentRef     `json:"source_document,omitempty"`
	TargetDocument *DocumentRef     `json:"target_document,omitempty"`
	Claims         []Claim          `json:"claims"`
	Findings       []DriftFinding   `json:"findings"`
	Adjudication   Adjudication     `json:"adjudication"`
	Context        *ContextManifest `json:"context_manifest,omitempty"`
}

type DocumentRef struct {
	Type string `json:"type"`
	Ref  string `json:"ref"`
}

type Claim struct {
	ID                   string   `json:"id"`
	TraceID              string   `json:"trace_id,omitempty"`
	Claim                string   `json:"claim"`
	ClaimType            string   `json:"claim_type"`
	CoversRequirementIDs []string `json:"covers_requirement_ids,omitempty"`
	VerificationStatus   string   `json:"verification_status"`
	Evidence             string   `json:"evidence"`
	Extractor            string   `json:"extractor"`
	DriftScore           float64  `json:"drift_score"`
	Confidence           float64  `json:"confidence,omitempty"`
}

type DriftFinding struct {
	Description string   `json:"description"`
	ClaimType   string   `json:"claim_type,omitempty"`
	Severity    string   `json:"severity"`
	ClaimIDs    []string `json:"claim_ids,omitempty"`
	Mitigation  string   `json:"mitigation,omitempty"`
}

type Adjudication struct {
	Mode              string   `json:"mode"`
	Extractors        []string `json:"extractors"`
	ConflictsResolved int      `json:"conflicts_resolved"`
	ResolutionPolicy  string   `json:"resolution_policy"`
}

// BuildRecord is the build phase artifact. It has no contract schema.
type BuildRecord struct {
	TraceID              string           `json:"trace_id"`
	Summary              string           `json:"summary"`
	Outputs              []string         `json:"outputs"`
	CoversRequirementIDs []string         `json:"covers_requirement_ids"`
	Context              *ContextManifest `json:"context_manifest,omitempty"`
}

// QualityReport is the artifact of the quality-static and quality-tests phases.
type QualityReport struct {
	AuditType  string           `json:"audit_type"`
	Violations []Violation      `json:"violations"`
	Summary    QualitySummary   `json:"summary"`
	Context    *ContextManifest `json:"context_manifest,omitempty"`
}

type Violation struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	File     string `json:"file,omitempty"`
	Status   string `json:"status,omitempty"`
}

type QualitySummary struct {
	Pass         int `json:"pass"`
	Warn         int `json:"warn"`
	Fail         int `json:"fail"`
	Open         int `json:"open"`
	Fixed        int `json:"fixed"`
	AcceptedRisk int `json:"accepted_risk"`
}

// ReleaseReadiness is the final go/no-go artifact.
type ReleaseReadiness struct {
	ReleaseDecision string           `json:"release_decision"`
	SemverImpact    string           `json:"semver_impact"`
	Changelog       Changelog        `json:"changelog"`
	Migration       *Migration       `json:"migration,omitempty"`
	Rollback        Rollback         `json:"rollback"`
	OpenRisks       []string         `json:"open_risks"`
	Approvals       []Approval       `json:"approvals"`
	Context         *ContextManifest `json:"context_manifest,omitempty"`
}

type Changelog struct {
	Updated bool     `json:"updated"`
	Path    string   `json:"path,omitempty"`
	Entries []string `json:"entries,omitempty"`
}

type Migration struct {
	Required  bool `json:"required"`
	Validated bool `json:"validated"`
}

type Rollback struct {
	Strategy string `json:"strategy"`
	Owner    string `json:"owner,omitempty"`
	Tested   bool   `json:"tested"`
}

type Approval struct {
	Owner      string `json:"owner"`
	ApprovedAt string `json:"approved_at,omitempty"`
	Notes      string `json:"notes,omitempty"`
}
