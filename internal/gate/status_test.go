package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestWorstStatus(t *testing.T) {
	assert.Equal(t, StatusPass, WorstStatus())
	assert.Equal(t, StatusWarn, WorstStatus(StatusPass, StatusWarn))
	assert.Equal(t, StatusFail, WorstStatus(StatusWarn, StatusFail, StatusPass))
}

func TestWorstStatusReduction(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		statuses := rapid.SliceOf(rapid.SampledFrom([]Status{StatusPass, StatusWarn, StatusFail})).Draw(t, "statuses")
		want := StatusPass
		for _, s := range statuses {
			if s == StatusFail {
				want = StatusFail
				break
			}
			if s == StatusWarn {
				want = StatusWarn
			}
		}
		if got := WorstStatus(statuses...); got != want {
			t.Fatalf("WorstStatus(%v) = %s, want %s", statuses, got, want)
		}
	})
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("warn")
	assert.NoError(t, err)
	assert.Equal(t, StatusWarn, s)

	_, err = ParseStatus("ok")
	assert.Error(t, err)
}

func TestDowngrade(t *testing.T) {
	assert.Equal(t, StatusWarn, Downgrade(StatusFail, false))
	assert.Equal(t, StatusFail, Downgrade(StatusFail, true))
	assert.Equal(t, StatusPass, Downgrade(StatusPass, false))
}
