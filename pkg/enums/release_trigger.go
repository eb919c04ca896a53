package enums

import "fmt"

// ReleaseTrigger records what initiated an escrow release.
type ReleaseTrigger string

const (
	ReleaseTriggerManual ReleaseTrigger = "manual"
	ReleaseTriggerAuto   ReleaseTrigger = "auto"
	ReleaseTriggerAdmin  ReleaseTrigger = "admin"
)

var validReleaseTriggers = []ReleaseTrigger{
	ReleaseTriggerManual,
	ReleaseTriggerAuto,
	ReleaseTriggerAdmin,
}

// String implements fmt.Stringer.
func (t ReleaseTrigger) String() string {
	return string(t)
}

// IsValid reports whether the value is a known ReleaseTrigger.
func (t ReleaseTrigger) IsValid() bool {
	for _, candidate := range validReleaseTriggers {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseReleaseTrigger converts raw input into a ReleaseTrigger.
func ParseReleaseTrigger(value string) (ReleaseTrigger, error) {
	for _, candidate := range validReleaseTriggers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid release trigger %q", value)
}
