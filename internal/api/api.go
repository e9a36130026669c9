package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/joescharf/revgate/internal/metrics"
	"github.com/joescharf/revgate/internal/models"
	"github.com/joescharf/revgate/internal/quality"
	"github.com/joescharf/revgate/internal/reviewer"
	"github.com/joescharf/revgate/internal/severity"
	"github.com/joescharf/revgate/internal/store"
)

// maxBodyBytes bounds request bodies. A single comment is capped at 10000
// characters, so this leaves room for batches without accepting unbounded input.
const maxBodyBytes = 8 << 20

// Server provides the REST API handlers.
type Server struct {
	store    store.Store
	verifier *reviewer.Verifier
	calc     *quality.Calculator
	logger   *slog.Logger
}

// NewServer creates a new API server. The verifier may be nil, in which case
// every reviewer is treated as unverified.
func NewServer(s store.Store, v *reviewer.Verifier) *Server {
	return &Server{
		store:    s,
		verifier: v,
		calc:     quality.NewCalculator(),
		logger:   slog.Default(),
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/classify", s.classify)
	mux.HandleFunc("POST /api/v1/score", s.score)
	mux.HandleFunc("POST /api/v1/verify", s.verify)

	mux.HandleFunc("GET /api/v1/reviews", s.listReviews)
	mux.HandleFunc("POST /api/v1/reviews", s.createReview)
	mux.HandleFunc("GET /api/v1/reviews/{id}", s.getReview)
	mux.HandleFunc("DELETE /api/v1/reviews/{id}", s.deleteReview)

	mux.HandleFunc("GET /api/v1/metrics", s.storedMetrics)
	mux.HandleFunc("POST /api/v1/metrics", s.batchMetrics)

	mux.HandleFunc("GET /api/v1/audit", s.listAudit)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps invalid input to 400 and forbidden approvals to 403.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, quality.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, severity.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// bearerToken extracts the credential from the Authorization header. It is
// forwarded to the permission lookup and never written to a response.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// writeUnauthorized rejects a reviewer lookup that carries no credential.
// Cached results are never served to anonymous callers.
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="revgate"`)
	writeError(w, http.StatusUnauthorized, "a Bearer token is required to verify reviewers")
}

// splitRepo parses "owner/name".
func splitRepo(full string) (owner, name string, ok bool) {
	owner, name, ok = strings.Cut(full, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", false
	}
	return owner, name, true
}

func (s *Server) verifyReviewer(r *http.Request, login, repo string) models.ReviewerAuth {
	owner, name, ok := splitRepo(repo)
	if !ok || s.verifier == nil {
		return models.ReviewerAuth{Login: login}
	}
	return s.verifier.Verify(r.Context(), login, owner, name, bearerToken(r))
}

// --- Classification and scoring ---

func (s *Server) classify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text any `json:"text"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	text, err := severity.TextFrom(body.Text)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	findings, err := severity.Classify(text)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, findings)
}

type scoreResponse struct {
	*quality.Score
	Reviewer *models.ReviewerAuth `json:"reviewer,omitempty"`
}

func (s *Server) score(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text     any    `json:"text"`
		Approved any    `json:"approved"`
		Reviewer string `json:"reviewer"`
		Repo     string `json:"repo"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	approved := false
	if body.Approved != nil {
		var err error
		if approved, err = quality.ApprovalFrom(body.Approved); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	if approved && bearerToken(r) == "" {
		writeUnauthorized(w)
		return
	}

	var auth *models.ReviewerAuth
	if approved && body.Reviewer != "" {
		if _, _, ok := splitRepo(body.Repo); !ok {
			writeError(w, http.StatusBadRequest, "repo must be owner/name")
			return
		}
		a := s.verifyReviewer(r, body.Reviewer, body.Repo)
		auth = &a
	}

	if err := quality.CheckApproval(approved, auth); err != nil {
		s.logger.Info("rejected approval", "reviewer", body.Reviewer, "repo", body.Repo, "error", err)
		writeDomainError(w, err)
		return
	}
	text, err := severity.TextFrom(body.Text)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	result, err := s.calc.Score(text, approved, auth)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{Score: result, Reviewer: auth})
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Login string `json:"login"`
		Repo  string `json:"repo"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if bearerToken(r) == "" {
		writeUnauthorized(w)
		return
	}
	if body.Login == "" {
		writeError(w, http.StatusBadRequest, "login is required")
		return
	}
	if _, _, ok := splitRepo(body.Repo); !ok {
		writeError(w, http.StatusBadRequest, "repo must be owner/name")
		return
	}
	writeJSON(w, http.StatusOK, s.verifyReviewer(r, body.Login, body.Repo))
}

// --- Reviews ---

func (s *Server) listReviews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ReviewListFilter{
		Repo:     q.Get("repo"),
		Reviewer: q.Get("reviewer"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	reviews, err := s.store.ListReviews(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if reviews == nil {
		reviews = []*models.ReviewRecord{}
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (s *Server) createReview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Repo        string  `json:"repo"`
		PRNumber    int     `json:"prNumber"`
		Reviewer    string  `json:"reviewer"`
		Approved    any     `json:"approved"`
		Comment     any     `json:"comment"`
		ElapsedTime float64 `json:"elapsedTime"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	if _, _, ok := splitRepo(body.Repo); !ok {
		writeError(w, http.StatusBadRequest, "repo must be owner/name")
		return
	}
	if body.Reviewer == "" {
		writeError(w, http.StatusBadRequest, "reviewer is required")
		return
	}
	approved, err := quality.ApprovalFrom(body.Approved)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	comment, err := severity.TextFrom(body.Comment)
	if err == nil {
		err = severity.Validate(comment)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := metrics.ValidateElapsed(body.ElapsedTime); err != nil {
		writeDomainError(w, err)
		return
	}

	rec := &models.ReviewRecord{
		Repo:        body.Repo,
		PRNumber:    body.PRNumber,
		Reviewer:    body.Reviewer,
		Approved:    approved,
		Comment:     comment,
		ElapsedTime: body.ElapsedTime,
	}
	if err := s.store.CreateReview(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) getReview(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetReview(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) deleteReview(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteReview(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Metrics ---

func (s *Server) storedMetrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records, err := s.store.ListReviews(r.Context(), store.ReviewListFilter{
		Repo:     q.Get("repo"),
		Reviewer: q.Get("reviewer"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	m, err := metrics.Aggregate(metrics.FromRecords(records))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) batchMetrics(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if !decodeBody(w, r, &raw) {
		return
	}
	reviews, err := metrics.DecodeReviews(raw)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	m, err := metrics.Aggregate(reviews)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// --- Audit ---

func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	checks, err := s.store.ListAuthChecks(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if checks == nil {
		checks = []*models.AuthCheck{}
	}
	writeJSON(w, http.StatusOK, checks)
}
