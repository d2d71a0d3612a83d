package logging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/pipegate/internal/config"
	"github.com/fyrsmithlabs/pipegate/pkg/secrets"
)

func TestSecretField(t *testing.T) {
	f := Secret("x-api-key", config.Secret("super-secret-value"))
	assert.Equal(t, "x-api-key", f.Key)
	assert.Equal(t, "[REDACTED:18]", f.String)
}

func TestRedactedString(t *testing.T) {
	f := RedactedString("authorization", "Bearer abc")
	assert.Equal(t, "[REDACTED:10]", f.String)
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	base := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	enc, err := NewRedactingEncoder(base, RedactionConfig{Enabled: false, Fields: []string{"token"}})
	require.NoError(t, err)
	assert.False(t, enc.sensitive("token"))
}

func TestRedactingEncoder_CaseInsensitiveKeys(t *testing.T) {
	logger, buf := bufferedLogger(t, nil)
	logger.Info(context.Background(), "auth",
		zap.String("API_KEY", "k"),
		zap.Any("Credential", map[string]string{"user": "u"}),
		zap.Strings("tokens", []string{"a"}),
	)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "[REDACTED]", lines[0]["API_KEY"])
	assert.Equal(t, "[REDACTED]", lines[0]["Credential"])
	assert.Equal(t, []any{"a"}, lines[0]["tokens"], "only exact key names are redacted")
}

// patScrubber redacts one fixed token the way a detector would.
type patScrubber struct{}

func (patScrubber) Scrub(content string) secrets.Result {
	if !strings.Contains(content, "ghp_") {
		return secrets.Result{Content: content}
	}
	return secrets.Result{
		Content:    strings.ReplaceAll(content, "ghp_abc123", "[REDACTED:github-pat:ghp_]"),
		Redactions: []secrets.Redaction{{RuleID: "github-pat"}},
	}
}

func (patScrubber) Enabled() bool { return true }

func TestRedactingEncoder_Scrubber(t *testing.T) {
	logger, buf := bufferedLogger(t, func(c *Config) {
		c.Redaction.Scrubber = patScrubber{}
	})
	logger.Info(context.Background(), "pushing with ghp_abc123",
		zap.String("remote", "https://ghp_abc123@example.com/repo.git"),
		zap.String("phase", "build"),
	)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "pushing with [REDACTED:github-pat:ghp_]", lines[0]["msg"])
	assert.Equal(t, "https://[REDACTED:github-pat:ghp_]@example.com/repo.git", lines[0]["remote"])
	assert.Equal(t, "build", lines[0]["phase"])
}

func TestRedactingEncoder_DisabledScrubberIgnored(t *testing.T) {
	base := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	enc, err := NewRedactingEncoder(base, RedactionConfig{Enabled: true, Scrubber: secrets.Nop()})
	require.NoError(t, err)
	assert.Nil(t, enc.scrubber)
}

func TestTestLogger_AssertNoSecrets(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "configured", zap.String("token", "[REDACTED]"), zap.Int("rules", 3))
	tl.AssertNoSecrets(t)
	tl.AssertField(t, "configured", "token", "[REDACTED]")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "configured")
	tl.Reset()
	assert.Empty(t, tl.All())
}
