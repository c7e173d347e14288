package grading

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-course-api/internal/apperror"
)

func TestComputeLatePenalty(t *testing.T) {
	awards := []Award{{CriteriaID: 1, PointsAwarded: 60}, {CriteriaID: 2, PointsAwarded: 40}}

	result := Compute(awards, 10, true)

	require.Equal(t, 100.0, result.TotalPoints)
	require.Equal(t, 10.0, result.LatePenaltyApplied)
	require.Equal(t, 90.0, result.FinalPoints)
}

func TestComputeOnTimeIgnoresPenalty(t *testing.T) {
	result := Compute([]Award{{CriteriaID: 1, PointsAwarded: 75}}, 50, false)

	require.Equal(t, 75.0, result.TotalPoints)
	require.Zero(t, result.LatePenaltyApplied)
	require.Equal(t, 75.0, result.FinalPoints)
}

func TestComputeRoundsPenalty(t *testing.T) {
	result := Compute([]Award{{CriteriaID: 1, PointsAwarded: 33}}, 15, true)

	// 33 * 0.15 = 4.95
	require.Equal(t, 5.0, result.LatePenaltyApplied)
	require.Equal(t, 28.0, result.FinalPoints)
}

func TestComputeFinalPointsNeverNegative(t *testing.T) {
	result := Compute([]Award{{CriteriaID: 1, PointsAwarded: 4}}, 100, true)

	require.Equal(t, 4.0, result.LatePenaltyApplied)
	require.Zero(t, result.FinalPoints)
}

func TestComputeEmptyAwards(t *testing.T) {
	result := Compute(nil, 25, true)

	require.Zero(t, result.TotalPoints)
	require.Zero(t, result.LatePenaltyApplied)
	require.Zero(t, result.FinalPoints)
}

func TestComputeIsDeterministic(t *testing.T) {
	awards := []Award{{CriteriaID: 3, PointsAwarded: 12.5}, {CriteriaID: 4, PointsAwarded: 7.25}}

	first := Compute(awards, 20, true)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Compute(awards, 20, true))
	}
}

func TestPassFail(t *testing.T) {
	require.True(t, PassFail(true).IsPassed)
	require.False(t, PassFail(false).IsPassed)
}

func TestValidateAwards(t *testing.T) {
	criteria := []Criterion{{ID: 1, Name: "Logic", MaxPoints: 40}, {ID: 2, Name: "Style", MaxPoints: 10}}

	cases := []struct {
		name    string
		awards  []Award
		wantErr bool
	}{
		{name: "within bounds", awards: []Award{{CriteriaID: 1, PointsAwarded: 40}, {CriteriaID: 2, PointsAwarded: 0}}},
		{name: "empty", awards: nil},
		{name: "exceeds max", awards: []Award{{CriteriaID: 2, PointsAwarded: 10.5}}, wantErr: true},
		{name: "negative", awards: []Award{{CriteriaID: 1, PointsAwarded: -1}}, wantErr: true},
		{name: "unknown criteria", awards: []Award{{CriteriaID: 9, PointsAwarded: 1}}, wantErr: true},
		{name: "duplicate criteria", awards: []Award{{CriteriaID: 1, PointsAwarded: 1}, {CriteriaID: 1, PointsAwarded: 2}}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateAwards(tc.awards, criteria)
			if tc.wantErr {
				require.Error(t, err)
				require.Equal(t, apperror.KindBadRequest, apperror.KindOf(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestPercentage(t *testing.T) {
	require.Equal(t, 50.0, Percentage(25, 50))
	require.Zero(t, Percentage(10, 0))
}
