// Package mock provides a configurable vision.Analyzer for testing and
// development without an API key.
package mock

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/siteguardhq/siteguard/internal/domain"
	"github.com/siteguardhq/siteguard/internal/vision"
)

// Provider is a mock analysis provider.
type Provider struct {
	logger *slog.Logger

	// Configurable responses for testing
	AnalyzeResponse []domain.Violation
	AnalyzeError    error

	// Call tracking for testing
	AnalyzeCalls int
}

// New creates a new mock analysis provider.
func New(logger *slog.Logger) *Provider {
	return &Provider{logger: logger}
}

// Analyze returns the configured response, or a canned pair of sample
// violations when none is set.
func (p *Provider) Analyze(ctx context.Context, params vision.AnalyzeParams) ([]domain.Violation, error) {
	p.AnalyzeCalls++

	if p.AnalyzeError != nil {
		return nil, p.AnalyzeError
	}
	if p.AnalyzeResponse != nil {
		return p.AnalyzeResponse, nil
	}

	fineHigh := domain.NewMoneyFromDollars(14502)
	fineLow := domain.NewMoneyFromDollars(4000)
	return []domain.Violation{
		{
			ID:               uuid.New(),
			Type:             "Fall Protection",
			Description:      "Worker on upper scaffolding platform without guardrails or personal fall arrest system",
			Severity:         domain.SeverityCritical,
			OSHACode:         "29 CFR 1926.501(b)(1)",
			CorrectiveAction: "Stop work at elevation; install guardrails or provide harnesses before resuming",
			FineEstimate:     &fineHigh,
			Location:         "Right side of image, upper platform",
			Confidence:       0.92,
		},
		{
			ID:               uuid.New(),
			Type:             "Missing PPE",
			Description:      "Worker near material hoist not wearing a hard hat",
			Severity:         domain.SeverityModerate,
			OSHACode:         "29 CFR 1926.100(a)",
			CorrectiveAction: "Ensure all workers in the zone wear approved head protection",
			FineEstimate:     &fineLow,
			Location:         "Center-left of image",
			Confidence:       0.84,
		},
	}, nil
}

var _ vision.Analyzer = (*Provider)(nil)
