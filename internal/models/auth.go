package models

import "time"

// ReviewerAuth is the outcome of checking whether a reviewer may approve
// changes on a repository. It never holds the credential used for the check.
// The zero value is unverified.
type ReviewerAuth struct {
	IsVerified     bool      `json:"isVerified"`
	Login          string    `json:"login"`
	HasWriteAccess bool      `json:"hasWriteAccess"`
	VerifiedAt     time.Time `json:"verifiedAt"`
}

// AuthorizedToApprove reports whether an approval backed by this record
// should earn an approval adjustment.
func (a *ReviewerAuth) AuthorizedToApprove() bool {
	return a != nil && a.IsVerified && a.HasWriteAccess
}

// AuthOutcome is the result class of a permission lookup.
type AuthOutcome string

const (
	AuthOutcomeGranted          AuthOutcome = "granted"
	AuthOutcomeNotFound         AuthOutcome = "not_found"
	AuthOutcomeUnexpectedStatus AuthOutcome = "unexpected_status"
	AuthOutcomeTransportError   AuthOutcome = "transport_error"
)

// AuthCheck is an audit record of one permission lookup against the host.
type AuthCheck struct {
	ID             string
	Owner          string
	Repo           string
	Login          string
	Outcome        AuthOutcome
	IsVerified     bool
	HasWriteAccess bool
	CheckedAt      time.Time
}
