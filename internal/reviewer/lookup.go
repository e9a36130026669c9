package reviewer

import (
	"context"

	"github.com/joescharf/revgate/internal/models"
)

// Lookup is the tagged result of one collaborator-permission request.
// Permission and Login are only meaningful for AuthOutcomeGranted; StatusCode
// for AuthOutcomeUnexpectedStatus; Err for AuthOutcomeTransportError.
type Lookup struct {
	Outcome    models.AuthOutcome
	Permission string
	Login      string
	StatusCode int
	Err        error
}

// Granted builds a successful lookup.
func Granted(permission, login string) Lookup {
	return Lookup{Outcome: models.AuthOutcomeGranted, Permission: permission, Login: login}
}

// NotFound builds a lookup for a login that is not a collaborator.
func NotFound() Lookup {
	return Lookup{Outcome: models.AuthOutcomeNotFound}
}

// UnexpectedStatus builds a lookup for any other non-success response.
func UnexpectedStatus(code int, err error) Lookup {
	return Lookup{Outcome: models.AuthOutcomeUnexpectedStatus, StatusCode: code, Err: err}
}

// TransportError builds a lookup for network or decoding failures.
func TransportError(err error) Lookup {
	return Lookup{Outcome: models.AuthOutcomeTransportError, Err: err}
}

// PermissionSource answers "what permission does login have on owner/repo".
// Implementations never return the credential in any field of Lookup.
type PermissionSource interface {
	CollaboratorPermission(ctx context.Context, credential, owner, repo, login string) Lookup
}

// Auditor records permission lookups that reached the host.
type Auditor interface {
	RecordAuthCheck(ctx context.Context, check *models.AuthCheck) error
}

// hasWritePermission reports whether a GitHub permission level allows merging.
func hasWritePermission(permission string) bool {
	switch permission {
	case "admin", "write":
		return true
	default:
		return false
	}
}
