package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore wraps core so each level below Error is sampled with its
// own budget from cfg.Levels. Levels without an entry, and Error and above,
// pass through unsampled.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}

	sampled := make(map[zapcore.Level]bool, len(cfg.Levels))
	cores := make([]zapcore.Core, 0, len(cfg.Levels)+1)
	for level, rate := range cfg.Levels {
		if level >= zapcore.ErrorLevel {
			continue
		}
		sampled[level] = true
		lvl := level
		cores = append(cores, zapcore.NewSamplerWithOptions(
			&levelCore{Core: core, allow: func(l zapcore.Level) bool { return l == lvl }},
			cfg.Tick.Duration(),
			rate.Initial,
			rate.Thereafter,
		))
	}
	cores = append(cores, &levelCore{Core: core, allow: func(l zapcore.Level) bool { return !sampled[l] }})
	return zapcore.NewTee(cores...)
}

// levelCore restricts core to the levels allow accepts.
type levelCore struct {
	zapcore.Core
	allow func(zapcore.Level) bool
}

func (c *levelCore) Enabled(lvl zapcore.Level) bool {
	return c.allow(lvl) && c.Core.Enabled(lvl)
}

func (c *levelCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.allow(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelCore{Core: c.Core.With(fields), allow: c.allow}
}
