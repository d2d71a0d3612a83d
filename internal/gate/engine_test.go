package gate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/pipegate/internal/errcode"
	"github.com/fyrsmithlabs/pipegate/internal/schema"
)

type fakeValidator struct {
	result schema.Validation
	refs   []string
}

func (f *fakeValidator) Validate(_ context.Context, _ any, ref string) (schema.Validation, error) {
	f.refs = append(f.refs, ref)
	return f.result, nil
}

func testEngine(v schema.Validator) *Engine {
	e := NewEngine(v)
	e.Now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 6_000_000, time.UTC) }
	e.NewID = func() string { return "gate-1" }
	return e
}

func TestEngineEvaluate(t *testing.T) {
	ctx := context.Background()
	artifact := map[string]any{"items": []any{1, 2}, "version": "1.0.0"}
	criteria := []Criterion{
		{Name: "has-items", Type: CountMin, Path: "items", Value: 1},
		{Name: "few-items", Type: CountMax, Path: "items", Value: 1},
	}

	t.Run("criterion failure", func(t *testing.T) {
		v := &fakeValidator{result: schema.OK()}
		g, err := testEngine(v).Evaluate(ctx, Input{
			Artifact: artifact, SchemaRef: "contracts/x.json", Phase: "plan", Criteria: criteria,
		})
		require.NoError(t, err)
		assert.Equal(t, StatusFail, g.Status)
		assert.Equal(t, []string{"few-items"}, g.BlockingFailures)
		assert.Equal(t, DefaultArtifactRef, g.ArtifactRef)
		assert.Equal(t, "gate-1", g.GateID)
		assert.Equal(t, "2026-01-02T03:04:05.006Z", g.Timestamp)
		assert.Equal(t, []string{"contracts/x.json"}, v.refs)
	})

	t.Run("schema failure", func(t *testing.T) {
		v := &fakeValidator{result: schema.Invalid("/: missing properties")}
		g, err := testEngine(v).Evaluate(ctx, Input{
			Artifact: artifact, ArtifactRef: "plan.json", SchemaRef: "s", Phase: "security-review", Criteria: []Criterion{},
		})
		require.NoError(t, err)
		assert.Equal(t, StatusFail, g.Status)
		assert.Empty(t, g.BlockingFailures)
		assert.Equal(t, "plan.json", g.ArtifactRef)
		assert.False(t, g.SchemaValidation.Valid)
	})

	t.Run("pass", func(t *testing.T) {
		g, err := testEngine(&fakeValidator{result: schema.Validation{Valid: true}}).Evaluate(ctx, Input{
			Artifact: artifact, SchemaRef: "s", Phase: "arm", Criteria: criteria[:1],
		})
		require.NoError(t, err)
		assert.Equal(t, StatusPass, g.Status)
		assert.Equal(t, []string{}, g.BlockingFailures)
		assert.Equal(t, []string{}, g.SchemaValidation.Errors)
	})

	t.Run("missing validator", func(t *testing.T) {
		_, err := testEngine(nil).Evaluate(ctx, Input{
			Artifact: artifact, SchemaRef: "s", Phase: "arm", Criteria: []Criterion{},
		})
		assert.True(t, errcode.Is(err, errcode.MissingDependency))
	})
}

func TestInputValidate(t *testing.T) {
	base := func() Input {
		return Input{Artifact: map[string]any{}, SchemaRef: "s", Phase: "plan", Criteria: []Criterion{}}
	}
	tests := []struct {
		name   string
		mutate func(*Input)
		msg    string
	}{
		{"artifact", func(in *Input) { in.Artifact = nil }, "artifact must be a JSON object"},
		{"schema", func(in *Input) { in.SchemaRef = " " }, "schema_ref is required"},
		{"phase", func(in *Input) { in.Phase = "post-build" }, "phase must be a valid pipeline phase"},
		{"criteria", func(in *Input) { in.Criteria = nil }, "criteria must be an array"},
		{"criterion", func(in *Input) { in.Criteria = []Criterion{{Type: FieldExists, Path: "a"}} }, "must have a name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base()
			tt.mutate(&in)
			err := in.Validate()
			require.Error(t, err)
			assert.True(t, errcode.Is(err, errcode.BadInput))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
	in := base()
	assert.NoError(t, in.Validate())
}

func TestPhases(t *testing.T) {
	phases := Phases()
	assert.Contains(t, phases, "denoise")
	assert.Contains(t, phases, "release-readiness")
	assert.NotContains(t, phases, "post-build")
}
