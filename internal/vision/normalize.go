package vision

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/siteguardhq/siteguard/internal/domain"
)

// defaultFine is applied when a violation carries a fine field that cannot be
// parsed as a dollar amount.
var defaultFine = domain.NewMoneyFromDollars(5000)

// RawViolation mirrors the loosely-typed violation objects returned by the
// model. Severity synonyms, preformatted fine strings and out-of-range
// confidence values are all tolerated here and repaired during normalization.
type RawViolation struct {
	ViolationType    string          `json:"violation_type"`
	Description      string          `json:"description"`
	Severity         string          `json:"severity"`
	OSHACode         string          `json:"osha_code"`
	CorrectiveAction string          `json:"corrective_action"`
	FineEstimate     json.RawMessage `json:"fine_estimate"`
	Location         string          `json:"location"`
	Confidence       float64         `json:"confidence"`
}

// severityAliases maps model variants onto the strict severity enum.
var severityAliases = map[string]domain.Severity{
	"CRITICAL": domain.SeverityCritical,
	"HIGH":     domain.SeverityCritical,
	"SEVERE":   domain.SeverityCritical,
	"MODERATE": domain.SeverityModerate,
	"MEDIUM":   domain.SeverityModerate,
	"LOW":      domain.SeverityLow,
	"MINOR":    domain.SeverityLow,
}

// ExtractJSONArray pulls a JSON array out of model output that may be wrapped
// in a markdown code fence or surrounded by prose. Returns
// ErrAnalysisMalformed if no parseable array is present.
func ExtractJSONArray(text string) ([]RawViolation, error) {
	candidates := make([]string, 0, 3)

	if idx := strings.Index(text, "```json"); idx != -1 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end != -1 {
			candidates = append(candidates, strings.TrimSpace(rest[:end]))
		}
	}
	if start, end := strings.Index(text, "["), strings.LastIndex(text, "]"); start != -1 && end > start {
		candidates = append(candidates, text[start:end+1])
	}
	candidates = append(candidates, strings.TrimSpace(text))

	for _, candidate := range candidates {
		var raw []RawViolation
		if err := json.Unmarshal([]byte(candidate), &raw); err == nil {
			return raw, nil
		}
	}
	return nil, fmt.Errorf("%w: no JSON array in model output", ErrAnalysisMalformed)
}

// Normalize converts raw model violations into strict domain violations.
//
// Repair is per-violation: severity synonyms are mapped onto the enum,
// unparseable fines fall back to a default, and confidence is clamped into
// [0,1] with a data-quality warning instead of failing the analysis. A
// violation missing both type and description carries no usable signal and is
// dropped with a warning.
func Normalize(raw []RawViolation, logger *slog.Logger) []domain.Violation {
	violations := make([]domain.Violation, 0, len(raw))

	for i, rv := range raw {
		if rv.ViolationType == "" && rv.Description == "" {
			logger.Warn("dropping empty violation from analysis result", "index", i)
			continue
		}

		v := domain.Violation{
			ID:               uuid.New(),
			Type:             rv.ViolationType,
			Description:      rv.Description,
			Severity:         normalizeSeverity(rv.Severity, logger),
			OSHACode:         rv.OSHACode,
			CorrectiveAction: rv.CorrectiveAction,
			Location:         rv.Location,
			Confidence:       clampConfidence(rv.Confidence, logger),
			FineEstimate:     normalizeFine(rv.FineEstimate, logger),
		}
		violations = append(violations, v)
	}
	return violations
}

func normalizeSeverity(s string, logger *slog.Logger) domain.Severity {
	if sev, ok := severityAliases[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return sev
	}
	logger.Warn("unrecognized severity from model, defaulting to MODERATE", "severity", s)
	return domain.SeverityModerate
}

func clampConfidence(c float64, logger *slog.Logger) float64 {
	switch {
	case c < 0:
		logger.Warn("confidence below range, clamping", "confidence", c)
		return 0
	case c > 1:
		logger.Warn("confidence above range, clamping", "confidence", c)
		return 1
	}
	return c
}

// normalizeFine accepts the numeric and preformatted-string forms the model
// produces ("5000", 5000, "$5,000"). Absent fines stay absent; present but
// unparseable fines fall back to the default estimate.
func normalizeFine(raw json.RawMessage, logger *slog.Logger) *domain.Money {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		m := domain.Money(f * 100)
		return &m
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		m, err := domain.ParseMoney(s)
		if err == nil {
			return &m
		}
	}

	logger.Warn("unparseable fine estimate, applying default", "raw", string(raw))
	m := defaultFine
	return &m
}
