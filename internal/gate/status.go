package gate

import "github.com/fyrsmithlabs/pipegate/internal/errcode"

// Status is a gate verdict.
type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// ParseStatus validates s as a gate status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPass, StatusWarn, StatusFail:
		return Status(s), nil
	}
	return "", errcode.BadInputf("gate status must be one of: pass, warn, fail")
}

func (s Status) rank() int {
	switch s {
	case StatusFail:
		return 2
	case StatusWarn:
		return 1
	}
	return 0
}

// WorstStatus reduces statuses with fail > warn > pass. No input is a pass.
func WorstStatus(statuses ...Status) Status {
	worst := StatusPass
	for _, s := range statuses {
		if s.rank() > worst.rank() {
			worst = s
		}
	}
	return worst
}

// Downgrade turns a fail into a warn when enforce is false.
func Downgrade(s Status, enforce bool) Status {
	if s == StatusFail && !enforce {
		return StatusWarn
	}
	return s
}
