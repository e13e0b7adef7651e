package risk

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteguardhq/siteguard/internal/domain"
)

func violation(vtype string, severity domain.Severity) domain.Violation {
	return domain.Violation{ID: uuid.New(), Type: vtype, Description: "d", Severity: severity}
}

func TestRiskLevel(t *testing.T) {
	tests := []struct {
		name       string
		violations []domain.Violation
		want       domain.RiskLevel
	}{
		{
			name:       "no violations",
			violations: nil,
			want:       domain.RiskNone,
		},
		{
			name: "single low",
			violations: []domain.Violation{
				violation("Missing PPE", domain.SeverityLow),
			},
			want: domain.RiskLow,
		},
		{
			name: "two moderate stay low",
			violations: []domain.Violation{
				violation("Missing PPE", domain.SeverityModerate),
				violation("Scaffolding Safety", domain.SeverityModerate),
			},
			want: domain.RiskLow,
		},
		{
			name: "three moderate escalate to medium",
			violations: []domain.Violation{
				violation("Missing PPE", domain.SeverityModerate),
				violation("Scaffolding Safety", domain.SeverityModerate),
				violation("Equipment Safety", domain.SeverityModerate),
			},
			want: domain.RiskMedium,
		},
		{
			name: "critical dominates moderate count",
			violations: []domain.Violation{
				violation("Fall Protection", domain.SeverityCritical),
				violation("Missing PPE", domain.SeverityModerate),
				violation("Scaffolding Safety", domain.SeverityModerate),
				violation("Equipment Safety", domain.SeverityModerate),
			},
			want: domain.RiskCritical,
		},
		{
			name: "many low without moderate stay low",
			violations: []domain.Violation{
				violation("Missing PPE", domain.SeverityLow),
				violation("Missing PPE", domain.SeverityLow),
				violation("Missing PPE", domain.SeverityLow),
				violation("Missing PPE", domain.SeverityLow),
			},
			want: domain.RiskLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.violations, nil)
			assert.Equal(t, tt.want, got.OverallRiskLevel)
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	violations := []domain.Violation{
		violation("Fall Protection", domain.SeverityCritical),
		violation("Missing PPE", domain.SeverityModerate),
	}
	recent := RecentTypeCounts{"Missing PPE": 4}

	first := Classify(violations, recent)
	second := Classify(violations, recent)
	assert.Equal(t, first, second)
}

func TestRecommendationsPriorityOrder(t *testing.T) {
	violations := []domain.Violation{
		violation("Fall Protection", domain.SeverityCritical),
		violation("Fall Protection", domain.SeverityCritical),
		violation("Missing PPE", domain.SeverityModerate),
	}

	got := Classify(violations, nil)

	require.Len(t, got.Recommendations, 3)
	assert.Contains(t, got.Recommendations[0], "Stop work immediately")
	assert.Contains(t, got.Recommendations[0], "2 critical")
	assert.Contains(t, got.Recommendations[1], "compliance report")
	assert.Contains(t, got.Recommendations[2], "follow-up inspection")
}

func TestRecommendationsTruncatedAtMax(t *testing.T) {
	// Critical + report + follow-up + recurring all fire; nothing else fits.
	violations := []domain.Violation{
		violation("Fall Protection", domain.SeverityCritical),
		violation("Missing PPE", domain.SeverityModerate),
		violation("Missing PPE", domain.SeverityModerate),
		violation("Missing PPE", domain.SeverityModerate),
	}
	recent := RecentTypeCounts{"Missing PPE": 5, "Fall Protection": 2}

	got := Classify(violations, recent)
	assert.LessOrEqual(t, len(got.Recommendations), MaxRecommendations)
	assert.Len(t, got.Recommendations, MaxRecommendations)
}

func TestCleanInspectionRecommendation(t *testing.T) {
	got := Classify(nil, nil)

	assert.Equal(t, domain.RiskNone, got.OverallRiskLevel)
	require.Len(t, got.Recommendations, 1)
	assert.Contains(t, got.Recommendations[0], "No violations detected")
}

func TestRecurringTypeRecommendation(t *testing.T) {
	violations := []domain.Violation{
		violation("Missing PPE", domain.SeverityLow),
		violation("Scaffolding Safety", domain.SeverityLow),
	}

	t.Run("fires when a current type has recent history", func(t *testing.T) {
		got := Classify(violations, RecentTypeCounts{"Missing PPE": 3})
		require.Len(t, got.Recommendations, 2)
		assert.Contains(t, got.Recommendations[1], `"Missing PPE" has recurred`)
	})

	t.Run("silent without history", func(t *testing.T) {
		got := Classify(violations, nil)
		require.Len(t, got.Recommendations, 1)
	})

	t.Run("picks the most frequent recent type", func(t *testing.T) {
		got := Classify(violations, RecentTypeCounts{"Missing PPE": 2, "Scaffolding Safety": 6})
		require.Len(t, got.Recommendations, 2)
		assert.Contains(t, got.Recommendations[1], "Scaffolding Safety")
	})

	t.Run("ties break alphabetically", func(t *testing.T) {
		got := Classify(violations, RecentTypeCounts{"Missing PPE": 3, "Scaffolding Safety": 3})
		require.Len(t, got.Recommendations, 2)
		assert.Contains(t, got.Recommendations[1], "Missing PPE")
	})
}

func TestClassifyDerivedFields(t *testing.T) {
	fine := domain.NewMoneyFromDollars(14502)
	violations := []domain.Violation{
		{ID: uuid.New(), Type: "Fall Protection", Severity: domain.SeverityCritical, FineEstimate: &fine},
		{ID: uuid.New(), Type: "Missing PPE", Severity: domain.SeverityModerate},
	}

	got := Classify(violations, nil)

	assert.Equal(t, domain.SeverityCounts{Critical: 1, Moderate: 1, Total: 2}, got.Counts)
	assert.Equal(t, fine, got.EstimatedTotalFines)
}
