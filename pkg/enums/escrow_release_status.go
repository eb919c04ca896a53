package enums

import "fmt"

// EscrowReleaseStatus tracks an escrow release through the external
// escrow provider.
type EscrowReleaseStatus string

const (
	EscrowReleasePending   EscrowReleaseStatus = "pending"
	EscrowReleaseCompleted EscrowReleaseStatus = "completed"
)

var validEscrowReleaseStatuses = []EscrowReleaseStatus{
	EscrowReleasePending,
	EscrowReleaseCompleted,
}

// String implements fmt.Stringer.
func (s EscrowReleaseStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known EscrowReleaseStatus.
func (s EscrowReleaseStatus) IsValid() bool {
	for _, candidate := range validEscrowReleaseStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseEscrowReleaseStatus converts raw input into an EscrowReleaseStatus.
func ParseEscrowReleaseStatus(value string) (EscrowReleaseStatus, error) {
	for _, candidate := range validEscrowReleaseStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid escrow release status %q", value)
}
