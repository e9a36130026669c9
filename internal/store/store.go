package store

import (
	"context"

	"github.com/joescharf/revgate/internal/models"
)

// ReviewListFilter specifies filters for listing reviews.
type ReviewListFilter struct {
	Repo     string
	Reviewer string
	Limit    int
}

// Store defines the persistence interface for revgate.
type Store interface {
	// Reviews
	CreateReview(ctx context.Context, r *models.ReviewRecord) error
	GetReview(ctx context.Context, id string) (*models.ReviewRecord, error)
	ListReviews(ctx context.Context, filter ReviewListFilter) ([]*models.ReviewRecord, error)
	DeleteReview(ctx context.Context, id string) error

	// Authorization audit
	RecordAuthCheck(ctx context.Context, check *models.AuthCheck) error
	ListAuthChecks(ctx context.Context, limit int) ([]*models.AuthCheck, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
