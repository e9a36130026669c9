package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/revgate/internal/metrics"
	"github.com/joescharf/revgate/internal/models"
	"github.com/joescharf/revgate/internal/reviewer"
	"github.com/joescharf/revgate/internal/severity"
	"github.com/joescharf/revgate/internal/store"
)

const testToken = "ghp_supersecrettoken"

// stubPermissions answers permission lookups from a fixed table and
// remembers the credentials it was handed.
type stubPermissions struct {
	mu          sync.Mutex
	permissions map[string]string
	credentials []string
}

func (p *stubPermissions) CollaboratorPermission(_ context.Context, credential, _, _, login string) reviewer.Lookup {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.credentials = append(p.credentials, credential)
	perm, ok := p.permissions[login]
	if !ok {
		return reviewer.NotFound()
	}
	return reviewer.Granted(perm, login)
}

func setupTestServer(t *testing.T) (*Server, *store.SQLiteStore, *stubPermissions) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	perms := &stubPermissions{permissions: map[string]string{
		"alice": "write",
		"bob":   "read",
	}}
	v := reviewer.NewVerifier(perms, nil, reviewer.WithAuditor(s))
	return NewServer(s, v), s, perms
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return doWithAuth(t, h, method, path, body, "Bearer "+testToken)
}

// doWithAuth sends a request with the given Authorization header; empty omits it.
func doWithAuth(t *testing.T, h http.Handler, method, path, body, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// --- Classify ---

func TestClassify(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	w := do(t, router, "POST", "/api/v1/classify", `{"text":"Security: token in logs\nWarning: slow loop\nConsider renaming"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var f severity.Findings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &f))
	assert.Equal(t, []string{"Security: token in logs"}, f.Critical)
	assert.Equal(t, []string{"Warning: slow loop"}, f.Warnings)
	assert.Equal(t, []string{"Consider renaming"}, f.Suggestions)
}

func TestClassify_EmptyListsSerialized(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	w := do(t, srv.Router(), "POST", "/api/v1/classify", `{"text":"LGTM"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"critical":[],"warnings":[],"suggestions":[]}`, w.Body.String())
}

func TestClassify_InvalidInput(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"number", `{"text":42}`, "must be a string"},
		{"missing", `{}`, "must be a string"},
		{"blank", `{"text":"   "}`, "invalid input"},
		{"malformed", `{"text":`, "invalid JSON body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", "/api/v1/classify", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.msg)
		})
	}
}

// --- Score ---

func TestScore_NoApproval(t *testing.T) {
	srv, _, perms := setupTestServer(t)
	w := do(t, srv.Router(), "POST", "/api/v1/score", `{"text":"Warning: a\nWarning: b"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(70), resp["score"])
	assert.Equal(t, "good", resp["category"])
	assert.NotContains(t, resp, "reviewer")
	assert.Empty(t, perms.credentials, "no lookup without an approval claim")
}

func TestScore_AuthorizedApproval(t *testing.T) {
	srv, _, perms := setupTestServer(t)
	w := do(t, srv.Router(), "POST", "/api/v1/score",
		`{"text":"Warning: a","approved":true,"reviewer":"alice","repo":"acme/widgets"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Score    int                  `json:"score"`
		Reviewer *models.ReviewerAuth `json:"reviewer"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 95, resp.Score)
	require.NotNil(t, resp.Reviewer)
	assert.True(t, resp.Reviewer.IsVerified)
	assert.True(t, resp.Reviewer.HasWriteAccess)

	assert.Equal(t, []string{testToken}, perms.credentials)
	assert.NotContains(t, w.Body.String(), testToken)
}

func TestScore_ReadOnlyApprovalNoBonus(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	w := do(t, srv.Router(), "POST", "/api/v1/score",
		`{"text":"Warning: a","approved":true,"reviewer":"bob","repo":"acme/widgets"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(85), resp["score"])
}

func TestScore_Forbidden(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"no reviewer", `{"text":"ok","approved":true}`, "authorization record"},
		{"unknown reviewer", `{"text":"ok","approved":true,"reviewer":"mallory","repo":"acme/widgets"}`, "verified reviewer"},
		{"string approval", `{"text":"ok","approved":"true"}`, "must be a boolean"},
		{"numeric approval", `{"text":"ok","approved":1}`, "must be a boolean"},
		{"checked before text", `{"text":5,"approved":true}`, "security error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", "/api/v1/score", tt.body)
			assert.Equal(t, http.StatusForbidden, w.Code)
			assert.Contains(t, w.Body.String(), tt.msg)
			assert.NotContains(t, w.Body.String(), testToken)
		})
	}
}

func TestScore_BadRequest(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	w := do(t, router, "POST", "/api/v1/score", `{"text":"ok","approved":true,"reviewer":"alice","repo":"widgets"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, "POST", "/api/v1/score", `{"text":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Verify ---

func TestVerify(t *testing.T) {
	srv, s, perms := setupTestServer(t)
	router := srv.Router()

	w := do(t, router, "POST", "/api/v1/verify", `{"login":"alice","repo":"acme/widgets"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), testToken)

	var auth models.ReviewerAuth
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &auth))
	assert.True(t, auth.IsVerified)
	assert.True(t, auth.HasWriteAccess)
	assert.Equal(t, "alice", auth.Login)

	w = do(t, router, "POST", "/api/v1/verify", `{"login":"mallory","repo":"acme/widgets"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &auth))
	assert.False(t, auth.IsVerified)
	assert.False(t, auth.HasWriteAccess)

	// Cached: a repeat does not reach the permission source.
	do(t, router, "POST", "/api/v1/verify", `{"login":"alice","repo":"acme/widgets"}`)
	assert.Len(t, perms.credentials, 2)

	checks, err := s.ListAuthChecks(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, checks, 2)
}

func TestVerify_BadRequest(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	w := do(t, router, "POST", "/api/v1/verify", `{"repo":"acme/widgets"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, "POST", "/api/v1/verify", `{"login":"alice","repo":"acme/widgets/extra"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerify_NilVerifierUnverified(t *testing.T) {
	_, s, _ := setupTestServer(t)
	srv := NewServer(s, nil)

	w := do(t, srv.Router(), "POST", "/api/v1/verify", `{"login":"alice","repo":"acme/widgets"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var auth models.ReviewerAuth
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &auth))
	assert.False(t, auth.IsVerified)
}

// tokenGatedPermissions grants alice admin only for testToken, like the
// real endpoint rejecting other credentials.
type tokenGatedPermissions struct {
	mu    sync.Mutex
	calls int
}

func (p *tokenGatedPermissions) CollaboratorPermission(_ context.Context, credential, _, _, login string) reviewer.Lookup {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if credential != testToken {
		return reviewer.UnexpectedStatus(http.StatusUnauthorized, errors.New("bad credentials"))
	}
	return reviewer.Granted("admin", login)
}

func (p *tokenGatedPermissions) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func setupGatedServer(t *testing.T) (http.Handler, *tokenGatedPermissions) {
	t.Helper()
	_, s, _ := setupTestServer(t)
	perms := &tokenGatedPermissions{}
	v := reviewer.NewVerifier(perms, nil, reviewer.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return NewServer(s, v).Router(), perms
}

func TestScore_CachedApprovalNeedsCredential(t *testing.T) {
	router, perms := setupGatedServer(t)
	body := `{"text":"All good","approved":true,"reviewer":"alice","repo":"acme/widgets"}`

	w := do(t, router, "POST", "/api/v1/score", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"hasWriteAccess":true`)

	for _, header := range []string{"", "Bearer ", "Basic " + testToken} {
		w = doWithAuth(t, router, "POST", "/api/v1/score", body, header)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
		assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
		assert.NotContains(t, w.Body.String(), "isVerified")
	}
	assert.Equal(t, 1, perms.Calls())

	// Another credential does not inherit the cached grant.
	w = doWithAuth(t, router, "POST", "/api/v1/score", body, "Bearer ghp_stolen")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 2, perms.Calls())

	// Scoring without an approval claim needs no credential.
	w = doWithAuth(t, router, "POST", "/api/v1/score", `{"text":"All good"}`, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestVerify_CachedResultNeedsCredential(t *testing.T) {
	router, perms := setupGatedServer(t)
	body := `{"login":"alice","repo":"acme/widgets"}`

	w := do(t, router, "POST", "/api/v1/verify", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"isVerified":true`)

	w = doWithAuth(t, router, "POST", "/api/v1/verify", body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotContains(t, w.Body.String(), "hasWriteAccess")
	assert.Equal(t, 1, perms.Calls())

	w = doWithAuth(t, router, "POST", "/api/v1/verify", body, "Bearer ghp_stolen")
	require.Equal(t, http.StatusOK, w.Code)
	var auth models.ReviewerAuth
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &auth))
	assert.False(t, auth.IsVerified)
	assert.False(t, auth.HasWriteAccess)
	assert.Equal(t, 2, perms.Calls())
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	assert.Equal(t, "", bearerToken(req))

	req.Header.Set("Authorization", "bearer abc")
	assert.Equal(t, "abc", bearerToken(req))

	req.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", bearerToken(req))
}

// --- Reviews ---

func TestReviewsCRUD_API(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	body := `{"repo":"acme/widgets","prNumber":7,"reviewer":"alice","approved":true,"comment":"Warning: edge case","elapsedTime":42}`
	w := do(t, router, "POST", "/api/v1/reviews", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created models.ReviewRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 7, created.PRNumber)

	w = do(t, router, "GET", "/api/v1/reviews/"+created.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, "GET", "/api/v1/reviews?repo=acme/widgets", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var list []*models.ReviewRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = do(t, router, "DELETE", "/api/v1/reviews/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, "GET", "/api/v1/reviews/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListReviews_EmptyIsArray(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	w := do(t, srv.Router(), "GET", "/api/v1/reviews", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do(t, srv.Router(), "GET", "/api/v1/reviews?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateReview_Invalid(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	tests := []struct {
		name string
		body string
		code int
	}{
		{"bad repo", `{"repo":"acme","reviewer":"a","approved":false,"comment":"x"}`, http.StatusBadRequest},
		{"no reviewer", `{"repo":"acme/w","approved":false,"comment":"x"}`, http.StatusBadRequest},
		{"approval not bool", `{"repo":"acme/w","reviewer":"a","approved":"no","comment":"x"}`, http.StatusForbidden},
		{"empty comment", `{"repo":"acme/w","reviewer":"a","approved":false,"comment":""}`, http.StatusBadRequest},
		{"negative elapsed", `{"repo":"acme/w","reviewer":"a","approved":false,"comment":"x","elapsedTime":-1}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", "/api/v1/reviews", tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}
}

// --- Metrics ---

func TestBatchMetrics(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	body := `[
		{"approved":true,"comment":"Security: leak","elapsedTime":10},
		{"approved":false,"comment":"Consider tests","elapsedTime":30}
	]`
	w := do(t, srv.Router(), "POST", "/api/v1/metrics", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var m metrics.ReviewMetrics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Equal(t, 2, m.TotalReviews)
	assert.Equal(t, 1, m.CriticalIssues)
	assert.Equal(t, 1, m.Suggestions)
	assert.InDelta(t, 0.5, m.ApprovalRate, 1e-9)
	assert.InDelta(t, 20.0, m.AverageElapsedTime, 1e-9)
}

func TestBatchMetrics_Invalid(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	w := do(t, srv.Router(), "POST", "/api/v1/metrics", `{"approved":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv.Router(), "POST", "/api/v1/metrics", `[{"approved":true,"comment":"","elapsedTime":1}]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Same elapsed-time rule as stored reviews.
	w = do(t, srv.Router(), "POST", "/api/v1/metrics", `[{"approved":true,"comment":"ok","elapsedTime":-1}]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "must not be negative")
}

func TestStoredMetrics(t *testing.T) {
	srv, s, _ := setupTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.CreateReview(ctx, &models.ReviewRecord{Repo: "acme/w", Reviewer: "a", Approved: true, Comment: "Warning: x", ElapsedTime: 4}))
	require.NoError(t, s.CreateReview(ctx, &models.ReviewRecord{Repo: "acme/other", Reviewer: "a", Comment: "LGTM", ElapsedTime: 8}))

	w := do(t, srv.Router(), "GET", "/api/v1/metrics?repo=acme/w", "")
	require.Equal(t, http.StatusOK, w.Code)

	var m metrics.ReviewMetrics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Equal(t, 1, m.TotalReviews)
	assert.Equal(t, 1, m.Warnings)
	assert.InDelta(t, 1.0, m.ApprovalRate, 1e-9)
}

// --- Audit ---

func TestListAudit(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	w := do(t, router, "GET", "/api/v1/audit", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	do(t, router, "POST", "/api/v1/verify", `{"login":"bob","repo":"acme/widgets"}`)

	w = do(t, router, "GET", "/api/v1/audit?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var checks []*models.AuthCheck
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &checks))
	require.Len(t, checks, 1)
	assert.Equal(t, "bob", checks[0].Login)
	assert.Equal(t, models.AuthOutcomeGranted, checks[0].Outcome)
	assert.NotContains(t, w.Body.String(), testToken)
}

func TestCORSPreflight(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	req := httptest.NewRequest("OPTIONS", "/api/v1/score", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}
