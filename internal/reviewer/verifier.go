// Package reviewer verifies that a reviewer claiming approval is a
// write-capable collaborator on the repository under review.
package reviewer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/joescharf/revgate/internal/authcache"
	"github.com/joescharf/revgate/internal/models"
)

// Verifier resolves reviewer authorization through a PermissionSource,
// memoizing definitive answers in a cache. Every ambiguous outcome is
// unverified.
type Verifier struct {
	source PermissionSource
	cache  *authcache.Cache
	audit  Auditor
	logger *slog.Logger
	now    func() time.Time
	// scope keys the credential fingerprint; it never leaves the process.
	scope []byte
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithAuditor records every lookup that reaches the host.
func WithAuditor(a Auditor) Option {
	return func(v *Verifier) { v.audit = a }
}

// WithLogger sets the logger for lookup failures.
func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithClock replaces time.Now for VerifiedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVerifier creates a Verifier. A nil cache gets a default one.
func NewVerifier(source PermissionSource, cache *authcache.Cache, opts ...Option) *Verifier {
	if cache == nil {
		cache = authcache.New()
	}
	scope := make([]byte, 32)
	_, _ = rand.Read(scope)
	v := &Verifier{
		source: source,
		cache:  cache,
		logger: slog.Default(),
		now:    time.Now,
		scope:  scope,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Cache returns the verifier's cache.
func (v *Verifier) Cache() *authcache.Cache {
	return v.cache
}

// Verify checks whether login may approve changes on owner/repo, authenticating
// the lookup with credential. It never returns an error: failures produce an
// unverified result. The credential is not stored, logged or returned.
func (v *Verifier) Verify(ctx context.Context, login, owner, repo, credential string) models.ReviewerAuth {
	if login == "" || owner == "" || repo == "" {
		v.logger.Warn("reviewer verification skipped: incomplete identity",
			"login", login, "repo", owner+"/"+repo)
		return models.ReviewerAuth{Login: login, VerifiedAt: v.now()}
	}

	key := v.cacheKey(owner, repo, login, credential)
	if cached, ok := v.cache.Get(key); ok {
		return cached
	}

	lookup := v.source.CollaboratorPermission(ctx, credential, owner, repo, login)
	result := models.ReviewerAuth{Login: login, VerifiedAt: v.now()}

	switch lookup.Outcome {
	case models.AuthOutcomeGranted:
		result.IsVerified = strings.EqualFold(lookup.Login, login)
		result.HasWriteAccess = result.IsVerified && hasWritePermission(lookup.Permission)
		if !result.IsVerified {
			v.logger.Warn("collaborator permission returned a different login",
				"login", login, "repo", owner+"/"+repo)
		}
		v.cache.Put(key, result)
	case models.AuthOutcomeNotFound:
		v.cache.Put(key, result)
	case models.AuthOutcomeUnexpectedStatus:
		v.logger.Error("unexpected collaborator permission response",
			"login", login, "repo", owner+"/"+repo, "status", lookup.StatusCode,
			"error", errText(lookup.Err, credential))
	case models.AuthOutcomeTransportError:
		v.logger.Error("collaborator permission lookup failed",
			"login", login, "repo", owner+"/"+repo,
			"error", errText(lookup.Err, credential))
	default:
		v.logger.Error("unknown collaborator permission outcome",
			"login", login, "repo", owner+"/"+repo, "outcome", string(lookup.Outcome))
	}

	v.record(ctx, owner, repo, lookup.Outcome, result)
	return result
}

// cacheKey scopes the reviewer key to the credential, so a result obtained
// with one token is never served to a caller holding a different one. Only a
// keyed BLAKE2b fingerprint enters the key.
func (v *Verifier) cacheKey(owner, repo, login, credential string) string {
	key := authcache.Key(owner, repo, login)
	if credential == "" {
		return key
	}
	h, err := blake2b.New256(v.scope)
	if err != nil {
		// Only possible with a key over 64 bytes.
		panic(err)
	}
	_, _ = h.Write([]byte(credential))
	return key + "#" + hex.EncodeToString(h.Sum(nil)[:16])
}

func (v *Verifier) record(ctx context.Context, owner, repo string, outcome models.AuthOutcome, result models.ReviewerAuth) {
	if v.audit == nil {
		return
	}
	check := &models.AuthCheck{
		Owner:          owner,
		Repo:           repo,
		Login:          result.Login,
		Outcome:        outcome,
		IsVerified:     result.IsVerified,
		HasWriteAccess: result.HasWriteAccess,
		CheckedAt:      result.VerifiedAt,
	}
	if err := v.audit.RecordAuthCheck(ctx, check); err != nil {
		v.logger.Warn("failed to record auth check", "login", result.Login, "error", err)
	}
}

// errText renders err for logging with any occurrence of secret removed.
func errText(err error, secret string) string {
	if err == nil {
		return ""
	}
	return scrub(err.Error(), secret)
}

// scrub replaces secret in msg with [REDACTED].
func scrub(msg, secret string) string {
	if secret == "" {
		return msg
	}
	return strings.ReplaceAll(msg, secret, "[REDACTED]")
}
