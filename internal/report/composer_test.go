package report

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteguardhq/siteguard/internal/domain"
)

func testInspection() *domain.Inspection {
	fine := domain.NewMoneyFromDollars(14502)
	violations := []domain.Violation{
		{
			ID:               uuid.MustParse("11111111-1111-1111-1111-111111111111"),
			Type:             "Fall Protection",
			Description:      "Worker on elevated platform without fall arrest system",
			Severity:         domain.SeverityCritical,
			OSHACode:         "1926.501(b)(1)",
			CorrectiveAction: "Install guardrails and require harnesses",
			FineEstimate:     &fine,
			Location:         "North scaffold, third level",
			Confidence:       0.92,
		},
		{
			ID:          uuid.MustParse("22222222-2222-2222-2222-222222222222"),
			Type:        "Missing PPE",
			Description: "Two workers without hard hats",
			Severity:    domain.SeverityModerate,
			Confidence:  0.84,
		},
	}

	return &domain.Inspection{
		ID:                  uuid.MustParse("33333333-3333-3333-3333-333333333333"),
		SiteID:              "site-42",
		Timestamp:           time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		ImageFilename:       "north-scaffold.jpg",
		Violations:          violations,
		Counts:              domain.CalculateSeverityCounts(violations),
		OverallRiskLevel:    domain.RiskCritical,
		Recommendations:     []string{"Stop work immediately in affected areas."},
		EstimatedTotalFines: fine,
	}
}

func TestComposeDeterministic(t *testing.T) {
	inspection := testInspection()
	recipients := []string{"safety@example.com"}

	first, err := Compose(inspection, recipients)
	require.NoError(t, err)
	second, err := Compose(inspection, recipients)
	require.NoError(t, err)

	assert.Equal(t, first.RenderedContent, second.RenderedContent,
		"same inspection must render byte-identical content")
	assert.NotEqual(t, first.ID, second.ID, "each composition is a new report")
}

func TestComposeContent(t *testing.T) {
	rpt, err := Compose(testInspection(), []string{"safety@example.com"})
	require.NoError(t, err)

	content := rpt.RenderedContent
	assert.Contains(t, content, "CONSTRUCTION SITE SAFETY COMPLIANCE REPORT")
	assert.Contains(t, content, "Site ID: site-42")
	assert.Contains(t, content, "Inspection Date: 2026-03-14 09:30:00 UTC")
	assert.Contains(t, content, "Total Violations Found: 2")
	assert.Contains(t, content, "Overall Risk Level: CRITICAL")
	assert.Contains(t, content, "Estimated Total OSHA Fines: $14,502")
	assert.Contains(t, content, "1. Fall Protection - CRITICAL")
	assert.Contains(t, content, "OSHA Regulation: 1926.501(b)(1)")
	assert.Contains(t, content, "Detection Confidence: 92%")
	assert.Contains(t, content, "2. Missing PPE - MODERATE")
	assert.Contains(t, content, "Estimated Fine: Not estimated")
	assert.Contains(t, content, "Location: Location not specified")
	assert.Contains(t, content, "END OF SAFETY COMPLIANCE REPORT")
}

func TestComposeCleanInspection(t *testing.T) {
	inspection := &domain.Inspection{
		ID:               uuid.New(),
		Timestamp:        time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		OverallRiskLevel: domain.RiskNone,
		Recommendations:  []string{"No violations detected."},
	}

	rpt, err := Compose(inspection, []string{"safety@example.com"})
	require.NoError(t, err)

	assert.Contains(t, rpt.RenderedContent, "EXCELLENT SAFETY COMPLIANCE")
	assert.Contains(t, rpt.RenderedContent, "Site ID: Unknown Site")
	assert.NotContains(t, rpt.RenderedContent, "ACTION PLAN")
}

func TestComposeRecipients(t *testing.T) {
	tests := []struct {
		name       string
		recipients []string
		want       []string
		wantErr    bool
	}{
		{
			name:       "no recipients",
			recipients: nil,
			wantErr:    true,
		},
		{
			name:       "only blank recipients",
			recipients: []string{"", "   "},
			wantErr:    true,
		},
		{
			name:       "duplicates dropped, order preserved",
			recipients: []string{"B@example.com", "a@example.com", "b@example.com"},
			want:       []string{"b@example.com", "a@example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rpt, err := Compose(testInspection(), tt.recipients)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrEmptyRecipients))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rpt.Recipients)
			assert.Equal(t, domain.ReportStatusPending, rpt.Status)
		})
	}
}
