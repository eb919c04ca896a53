package enums

import "fmt"

// CommissionScope selects the precedence tier of a commission rule.
// Vendor rules beat category rules, which beat the platform default.
type CommissionScope string

const (
	CommissionScopeVendor   CommissionScope = "vendor"
	CommissionScopeCategory CommissionScope = "category"
	CommissionScopePlatform CommissionScope = "platform"
)

var validCommissionScopes = []CommissionScope{
	CommissionScopeVendor,
	CommissionScopeCategory,
	CommissionScopePlatform,
}

// String implements fmt.Stringer.
func (s CommissionScope) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CommissionScope.
func (s CommissionScope) IsValid() bool {
	for _, candidate := range validCommissionScopes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseCommissionScope converts raw input into a CommissionScope.
func ParseCommissionScope(value string) (CommissionScope, error) {
	for _, candidate := range validCommissionScopes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid commission scope %q", value)
}
