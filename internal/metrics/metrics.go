// Package metrics summarizes batches of reviews.
package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/joescharf/revgate/internal/models"
	"github.com/joescharf/revgate/internal/severity"
)

// Review is one entry of a batch.
type Review struct {
	Approved    bool    `json:"approved"`
	Comment     string  `json:"comment"`
	ElapsedTime float64 `json:"elapsedTime"`
}

// ReviewMetrics summarizes a batch. Rates are fractions in [0,1]; elapsed
// time is in the same unit as the input.
type ReviewMetrics struct {
	TotalReviews       int     `json:"totalReviews"`
	CriticalIssues     int     `json:"criticalIssues"`
	Warnings           int     `json:"warnings"`
	Suggestions        int     `json:"suggestions"`
	ApprovalRate       float64 `json:"approvalRate"`
	AverageElapsedTime float64 `json:"averageElapsedTime"`
}

// Aggregate classifies every comment and folds the batch into one summary.
// The first invalid review, including a negative or non-finite elapsed time,
// aborts the whole aggregation.
func Aggregate(reviews []Review) (ReviewMetrics, error) {
	var m ReviewMetrics
	var approved int
	var elapsed float64

	for i, r := range reviews {
		if err := ValidateElapsed(r.ElapsedTime); err != nil {
			return ReviewMetrics{}, fmt.Errorf("review %d: %w", i, err)
		}
		findings, err := severity.Classify(r.Comment)
		if err != nil {
			return ReviewMetrics{}, fmt.Errorf("review %d: %w", i, err)
		}

		m.CriticalIssues += len(findings.Critical)
		m.Warnings += len(findings.Warnings)
		m.Suggestions += len(findings.Suggestions)
		if r.Approved {
			approved++
		}
		elapsed += r.ElapsedTime
	}

	m.TotalReviews = len(reviews)
	if m.TotalReviews > 0 {
		m.ApprovalRate = float64(approved) / float64(m.TotalReviews)
		m.AverageElapsedTime = elapsed / float64(m.TotalReviews)
	}
	return m, nil
}

// ValidateElapsed accepts a finite, non-negative elapsed time. Batches and
// stored reviews share this rule.
func ValidateElapsed(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("elapsedTime must be a finite number: %w", severity.ErrInvalidInput)
	}
	if v < 0 {
		return fmt.Errorf("elapsedTime must not be negative: %w", severity.ErrInvalidInput)
	}
	return nil
}

// FromRecords converts stored review records into a batch.
func FromRecords(records []*models.ReviewRecord) []Review {
	out := make([]Review, 0, len(records))
	for _, rec := range records {
		out = append(out, Review{
			Approved:    rec.Approved,
			Comment:     rec.Comment,
			ElapsedTime: rec.ElapsedTime,
		})
	}
	return out
}

// DecodeReviews parses a JSON array of reviews, checking each field's type
// rather than letting missing or mistyped values default to zero.
func DecodeReviews(data []byte) ([]Review, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("reviews must be a JSON array: %w", severity.ErrInvalidInput)
	}

	var raw []map[string]any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("decode reviews: %v: %w", err, severity.ErrInvalidInput)
	}

	reviews := make([]Review, 0, len(raw))
	for i, item := range raw {
		r, err := reviewFromMap(item)
		if err != nil {
			return nil, fmt.Errorf("review %d: %w", i, err)
		}
		reviews = append(reviews, r)
	}
	return reviews, nil
}

func reviewFromMap(item map[string]any) (Review, error) {
	approved, ok := item["approved"].(bool)
	if !ok {
		return Review{}, fmt.Errorf("approved must be a boolean: %w", severity.ErrInvalidInput)
	}
	elapsed, ok := item["elapsedTime"].(float64)
	if !ok {
		return Review{}, fmt.Errorf("elapsedTime must be a number: %w", severity.ErrInvalidInput)
	}
	comment, err := severity.TextFrom(item["comment"])
	if err != nil {
		return Review{}, err
	}
	return Review{Approved: approved, Comment: comment, ElapsedTime: elapsed}, nil
}
