// Package grading holds the pure arithmetic behind rubric grading, late penalties,
// grade bands and weighted final grades. Nothing here touches storage.
package grading

import (
	"fmt"
	"math"

	"github.com/noah-isme/gema-course-api/internal/apperror"
)

const epsilon = 1e-9

// Award is the points given for one rubric criterion.
type Award struct {
	CriteriaID    uint
	PointsAwarded float64
}

// Criterion is the upper bound a single award is checked against.
type Criterion struct {
	ID        uint
	Name      string
	MaxPoints float64
}

// Result is the numeric outcome of grading one submission.
type Result struct {
	TotalPoints        float64
	LatePenaltyApplied float64
	FinalPoints        float64
}

// PassFailResult is the outcome of grading a pass/fail submission.
type PassFailResult struct {
	IsPassed bool
}

// Compute totals the awards and applies the late penalty.
func Compute(awards []Award, latePenaltyPercent float64, isLate bool) Result {
	var total float64
	for _, award := range awards {
		total += award.PointsAwarded
	}

	penalty := 0.0
	if isLate {
		penalty = math.Round(total * latePenaltyPercent / 100)
	}

	return Result{
		TotalPoints:        total,
		LatePenaltyApplied: penalty,
		FinalPoints:        math.Max(0, total-penalty),
	}
}

// PassFail grades a pass/fail submission. It produces no numeric fields.
func PassFail(isPassed bool) PassFailResult {
	return PassFailResult{IsPassed: isPassed}
}

// ValidateAwards checks each award against its criterion at input time.
func ValidateAwards(awards []Award, criteria []Criterion) error {
	byID := make(map[uint]Criterion, len(criteria))
	for _, criterion := range criteria {
		byID[criterion.ID] = criterion
	}

	seen := make(map[uint]struct{}, len(awards))
	for _, award := range awards {
		criterion, ok := byID[award.CriteriaID]
		if !ok {
			return apperror.BadRequest("", fmt.Sprintf("criteria %d does not belong to this assignment", award.CriteriaID))
		}
		if _, dup := seen[award.CriteriaID]; dup {
			return apperror.BadRequest("", fmt.Sprintf("criteria %d graded more than once", award.CriteriaID))
		}
		seen[award.CriteriaID] = struct{}{}

		if math.IsNaN(award.PointsAwarded) || award.PointsAwarded < 0 {
			return apperror.BadRequest("", fmt.Sprintf("points for %q must not be negative", criterion.Name))
		}
		if award.PointsAwarded > criterion.MaxPoints+epsilon {
			return apperror.BadRequest("", fmt.Sprintf("points for %q exceed max of %g", criterion.Name, criterion.MaxPoints))
		}
	}

	return nil
}

// Percentage expresses points as a share of maxPoints. A non-positive max yields 0.
func Percentage(points, maxPoints float64) float64 {
	if maxPoints <= 0 {
		return 0
	}
	return points / maxPoints * 100
}
