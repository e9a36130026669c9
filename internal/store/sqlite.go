package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/revgate/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows a single writer; one connection serializes API and
	// verifier writes instead of failing with "database is locked".
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Reviews ---

func (s *SQLiteStore) CreateReview(ctx context.Context, r *models.ReviewRecord) error {
	if r.ID == "" {
		r.ID = newULID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reviews (id, repo, pr_number, reviewer, approved, comment, elapsed_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Repo, r.PRNumber, r.Reviewer, boolToInt(r.Approved), r.Comment, r.ElapsedTime, r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetReview(ctx context.Context, id string) (*models.ReviewRecord, error) {
	r := &models.ReviewRecord{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, repo, pr_number, reviewer, approved, comment, elapsed_time, created_at
		FROM reviews WHERE id = ?`, id,
	).Scan(&r.ID, &r.Repo, &r.PRNumber, &r.Reviewer, &r.Approved, &r.Comment, &r.ElapsedTime, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("review not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) ListReviews(ctx context.Context, filter ReviewListFilter) ([]*models.ReviewRecord, error) {
	query := `SELECT id, repo, pr_number, reviewer, approved, comment, elapsed_time, created_at FROM reviews`
	var conditions []string
	var args []any

	if filter.Repo != "" {
		conditions = append(conditions, "repo = ?")
		args = append(args, filter.Repo)
	}
	if filter.Reviewer != "" {
		conditions = append(conditions, "reviewer = ?")
		args = append(args, filter.Reviewer)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reviews []*models.ReviewRecord
	for rows.Next() {
		r := &models.ReviewRecord{}
		if err := rows.Scan(&r.ID, &r.Repo, &r.PRNumber, &r.Reviewer, &r.Approved, &r.Comment, &r.ElapsedTime, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

func (s *SQLiteStore) DeleteReview(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM reviews WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("review not found: %s", id)
	}
	return nil
}

// --- Authorization audit ---

func (s *SQLiteStore) RecordAuthCheck(ctx context.Context, check *models.AuthCheck) error {
	if check.ID == "" {
		check.ID = newULID()
	}
	if check.CheckedAt.IsZero() {
		check.CheckedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_checks (id, owner, repo, login, outcome, is_verified, has_write_access, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		check.ID, check.Owner, check.Repo, check.Login, string(check.Outcome),
		boolToInt(check.IsVerified), boolToInt(check.HasWriteAccess), check.CheckedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record auth check: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAuthChecks(ctx context.Context, limit int) ([]*models.AuthCheck, error) {
	query := `SELECT id, owner, repo, login, outcome, is_verified, has_write_access, checked_at
		FROM auth_checks ORDER BY checked_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list auth checks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var checks []*models.AuthCheck
	for rows.Next() {
		c := &models.AuthCheck{}
		var outcome string
		if err := rows.Scan(&c.ID, &c.Owner, &c.Repo, &c.Login, &outcome, &c.IsVerified, &c.HasWriteAccess, &c.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan auth check: %w", err)
		}
		c.Outcome = models.AuthOutcome(outcome)
		checks = append(checks, c)
	}
	return checks, rows.Err()
}
