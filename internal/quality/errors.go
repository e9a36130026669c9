package quality

import (
	"errors"
	"fmt"

	"github.com/joescharf/revgate/internal/models"
)

// ErrForbidden is matched by every SecurityError. It is distinct from
// severity.ErrInvalidInput so callers can tell bad input from a forbidden
// operation.
var ErrForbidden = errors.New("forbidden")

// Reason identifies which approval precondition failed.
type Reason string

const (
	ReasonApprovalNotBoolean Reason = "approved must be a boolean"
	ReasonMissingAuth        Reason = "approval requires a reviewer authorization record"
	ReasonUnverifiedAuth     Reason = "approval requires a verified reviewer"
)

// SecurityError reports an approval claim that is not backed by verified
// authorization.
type SecurityError struct {
	Reason Reason
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("security error: %s", e.Reason)
}

// Is lets errors.Is(err, ErrForbidden) match any SecurityError.
func (e *SecurityError) Is(target error) bool {
	return target == ErrForbidden
}

// ApprovalFrom accepts an approval flag from untyped input such as decoded
// JSON. Anything other than a bool, including a missing value, is rejected.
func ApprovalFrom(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, &SecurityError{Reason: ReasonApprovalNotBoolean}
	}
	return b, nil
}

// CheckApproval returns a SecurityError when an approval claim is not backed
// by a verified auth record. A non-approval always passes.
func CheckApproval(approved bool, auth *models.ReviewerAuth) error {
	if !approved {
		return nil
	}
	if auth == nil {
		return &SecurityError{Reason: ReasonMissingAuth}
	}
	if !auth.IsVerified {
		return &SecurityError{Reason: ReasonUnverifiedAuth}
	}
	return nil
}
