// Package quality turns review findings into a bounded 0-100 quality score.
package quality

import (
	"math"
	"strings"

	"github.com/joescharf/revgate/internal/models"
	"github.com/joescharf/revgate/internal/severity"
)

// Category labels a score band.
type Category string

const (
	CategoryExcellent        Category = "excellent"
	CategoryGood             Category = "good"
	CategoryNeedsImprovement Category = "needs-improvement"
	CategoryCritical         Category = "critical"
)

// Scoring weights.
const (
	maxScore = 100

	criticalWeight = 30
	// Criticals beyond criticalFullCount cost criticalWeight reduced by this fraction.
	criticalDiscount  = 1.0 / 6.0
	criticalFullCount = 3

	warningWeight    = 15
	suggestionWeight = 5
	approvalBonus    = 10
	// An authorized reviewer approving despite criticals is a misjudgment, not an attack.
	approvalMisjudgment = 10
)

// Per-dimension weights for the breakdown.
const (
	securityPerCritical       = 40
	performancePerWarning     = 20
	maintainabilityPerWarning = 10
	testabilityPerSuggestion  = 10
)

// Breakdown rates four dimensions independently, each 0-100.
type Breakdown struct {
	Security        int `json:"security"`
	Maintainability int `json:"maintainability"`
	Performance     int `json:"performance"`
	Testability     int `json:"testability"`
}

// Score is the computed quality of a review.
type Score struct {
	Score     int       `json:"score"`
	Category  Category  `json:"category"`
	Breakdown Breakdown `json:"breakdown"`
}

// Calculator computes quality scores. It holds no state and is safe for
// concurrent use.
type Calculator struct{}

// NewCalculator returns a new Calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Score classifies text and scores it. An approval claim requires a verified
// auth record; otherwise a SecurityError is returned before any scoring.
func (c *Calculator) Score(text string, approved bool, auth *models.ReviewerAuth) (*Score, error) {
	if err := CheckApproval(approved, auth); err != nil {
		return nil, err
	}
	findings, err := severity.Classify(text)
	if err != nil {
		return nil, err
	}
	return c.score(findings, approved, auth), nil
}

// ScoreFindings scores already-classified findings under the same approval rules.
func (c *Calculator) ScoreFindings(findings severity.Findings, approved bool, auth *models.ReviewerAuth) (*Score, error) {
	if err := CheckApproval(approved, auth); err != nil {
		return nil, err
	}
	return c.score(findings, approved, auth), nil
}

func (c *Calculator) score(f severity.Findings, approved bool, auth *models.ReviewerAuth) *Score {
	critical := len(f.Critical)

	score := maxScore
	score -= CriticalPenalty(critical)
	score -= len(f.Warnings) * warningWeight
	score -= len(f.Suggestions) * suggestionWeight

	if approved && auth.AuthorizedToApprove() {
		if critical == 0 {
			score = min(score+approvalBonus, maxScore)
		} else {
			score -= approvalMisjudgment
		}
	}

	score = clamp(score)
	return &Score{
		Score:     score,
		Category:  CategoryFor(score),
		Breakdown: breakdown(f),
	}
}

// CriticalPenalty returns the deduction for n critical findings: full weight
// for the first few, a discounted weight for each one after that.
func CriticalPenalty(n int) int {
	if n <= 0 {
		return 0
	}
	softened := int(math.Round(criticalWeight * (1 - criticalDiscount)))
	full := min(n, criticalFullCount)
	extra := max(0, n-criticalFullCount)
	return full*criticalWeight + extra*softened
}

// CategoryFor maps a score to its category band.
func CategoryFor(score int) Category {
	switch {
	case score >= 90:
		return CategoryExcellent
	case score >= 70:
		return CategoryGood
	case score >= 50:
		return CategoryNeedsImprovement
	default:
		return CategoryCritical
	}
}

// breakdown derives each dimension from the findings directly, not from the
// overall score, so one finding is not charged to every dimension.
func breakdown(f severity.Findings) Breakdown {
	b := Breakdown{
		Security:        maxScore,
		Maintainability: maxScore,
		Performance:     maxScore,
		Testability:     maxScore,
	}

	for _, line := range f.Critical {
		if mentions(line, "security") {
			b.Security -= securityPerCritical
		}
	}
	for _, line := range f.Warnings {
		if mentions(line, "performance") {
			b.Performance -= performancePerWarning
		}
		b.Maintainability -= maintainabilityPerWarning
	}
	for _, line := range f.Suggestions {
		if mentions(line, "test") {
			b.Testability -= testabilityPerSuggestion
		}
	}

	b.Security = clamp(b.Security)
	b.Maintainability = clamp(b.Maintainability)
	b.Performance = clamp(b.Performance)
	b.Testability = clamp(b.Testability)
	return b
}

func mentions(line, word string) bool {
	return strings.Contains(strings.ToLower(line), word)
}

func clamp(v int) int {
	return max(0, min(v, maxScore))
}
