package policy

import (
	"fmt"
	"strings"
)

// ValidationError reports one or more schema violations found while
// validating a policy. A policy that fails validation never enters the
// store.
type ValidationError struct {
	// PolicyID identifies the offending policy, when known.
	PolicyID string

	// Problems lists each violation.
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("policy %q invalid: %s", e.PolicyID, e.Problems[0])
	}
	return fmt.Sprintf("policy %q invalid: %s", e.PolicyID, strings.Join(e.Problems, "; "))
}

// AuthorityError reports a policy write rejected because the caller's
// authority is below the policy's required level.
type AuthorityError struct {
	PolicyID string
	Required Authority
	Actual   Authority
}

// Error implements the error interface.
func (e *AuthorityError) Error() string {
	return fmt.Sprintf("policy %q requires authority %s, caller has %s",
		e.PolicyID, e.Required, e.Actual)
}
