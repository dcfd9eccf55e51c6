package model

import (
	"strings"

	"github.com/sells-group/carrier-sync/internal/resilience"
)

const maxDOTDigits = 8

// ValidateDOT trims and checks a USDOT number. It returns the canonical form
// (no leading zeros) or a ValidationError. No fetch should be attempted for an
// identifier that fails here.
func ValidateDOT(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", resilience.NewValidationError("dot", raw, "identifier is empty")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", resilience.NewValidationError("dot", raw, "identifier must be numeric")
		}
	}
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return "", resilience.NewValidationError("dot", raw, "identifier must not be zero")
	}
	if len(s) > maxDOTDigits {
		return "", resilience.NewValidationError("dot", raw, "identifier has too many digits")
	}
	return s, nil
}
