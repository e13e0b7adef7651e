// Package report renders inspections into persisted compliance reports.
//
// Composition is deterministic: the same inspection content and recipient set
// always produce byte-identical rendered content. The only timestamp embedded
// in the body is the inspection's own. Delivery is a separate concern gated
// by delegated authorization; this package never sends anything.
package report

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/siteguardhq/siteguard/internal/domain"
)

// ErrEmptyRecipients is returned when a report is composed without at least
// one recipient.
var ErrEmptyRecipients = errors.New("report requires at least one recipient")

// timestampLayout is the fixed rendering of the inspection timestamp.
const timestampLayout = "2006-01-02 15:04:05 UTC"

// Compose renders an inspection into a pending Report for the given
// recipients. Duplicate recipients are dropped; order is preserved.
func Compose(inspection *domain.Inspection, recipients []string) (*domain.Report, error) {
	const op = "report.compose"

	cleaned := dedupeRecipients(recipients)
	if len(cleaned) == 0 {
		return nil, domain.Wrap(ErrEmptyRecipients, domain.EINVALID, op, "at least one recipient is required")
	}

	content, err := render(inspection)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to render report content")
	}

	return &domain.Report{
		ID:              uuid.New(),
		InspectionID:    inspection.ID,
		Recipients:      cleaned,
		Status:          domain.ReportStatusPending,
		RenderedContent: content,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

func dedupeRecipients(recipients []string) []string {
	seen := make(map[string]bool, len(recipients))
	cleaned := make([]string, 0, len(recipients))
	for _, r := range recipients {
		addr := strings.TrimSpace(strings.ToLower(r))
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		cleaned = append(cleaned, addr)
	}
	return cleaned
}

// =============================================================================
// Rendering
// =============================================================================

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"pct": func(c float64) int { return int(c * 100) },
	"inc": func(i int) int { return i + 1 },
}).Parse(`CONSTRUCTION SITE SAFETY COMPLIANCE REPORT
===========================================

SITE INFORMATION
Site ID: {{.SiteID}}
Inspection Date: {{.InspectionDate}}
Image: {{.ImageFilename}}
Inspection ID: {{.InspectionID}}

EXECUTIVE SUMMARY
Total Violations Found: {{.Counts.Total}}
  Critical Violations: {{.Counts.Critical}}
  Moderate Violations: {{.Counts.Moderate}}
  Low Priority Violations: {{.Counts.Low}}
Overall Risk Level: {{.RiskLevel}}

FINANCIAL IMPACT
Estimated Total OSHA Fines: {{.TotalFines}}

DETAILED VIOLATION ANALYSIS
===========================================
{{if not .Violations}}
EXCELLENT SAFETY COMPLIANCE
No safety violations were detected during this inspection.
The site demonstrates proper adherence to OSHA safety standards.
{{else}}{{range $i, $v := .Violations}}
{{inc $i}}. {{$v.Type}} - {{$v.Severity}}
   Description: {{$v.Description}}
   OSHA Regulation: {{if $v.OSHACode}}{{$v.OSHACode}}{{else}}Code not specified{{end}}
   Required Corrective Action: {{$v.CorrectiveAction}}
   Estimated Fine: {{if $v.FineEstimate}}{{$v.FineEstimate}}{{else}}Not estimated{{end}}
   Location: {{if $v.Location}}{{$v.Location}}{{else}}Location not specified{{end}}
   Detection Confidence: {{pct $v.Confidence}}%
{{end}}
ACTION PLAN
===========================================
PRIORITY 1 - CRITICAL VIOLATIONS ({{.Counts.Critical}} items)
  Stop work immediately in affected areas and correct all critical
  hazards before operations resume.
PRIORITY 2 - MODERATE VIOLATIONS ({{.Counts.Moderate}} items)
  Address within 24 hours; implement temporary safety measures as needed.
PRIORITY 3 - LOW PRIORITY VIOLATIONS ({{.Counts.Low}} items)
  Address within 72 hours during regular maintenance.
{{end}}
RECOMMENDATIONS
{{range .Recommendations}}  - {{.}}
{{end}}
FOLLOW-UP REQUIREMENTS
  Re-inspection required within 48 hours for critical violations.
  Document all corrective actions with photos.

===========================================
END OF SAFETY COMPLIANCE REPORT
===========================================
`))

type reportData struct {
	SiteID          string
	InspectionDate  string
	ImageFilename   string
	InspectionID    string
	Counts          domain.SeverityCounts
	RiskLevel       domain.RiskLevel
	TotalFines      domain.Money
	Violations      []domain.Violation
	Recommendations []string
}

func render(inspection *domain.Inspection) (string, error) {
	siteID := inspection.SiteID
	if siteID == "" {
		siteID = "Unknown Site"
	}

	data := reportData{
		SiteID:          siteID,
		InspectionDate:  inspection.Timestamp.UTC().Format(timestampLayout),
		ImageFilename:   inspection.ImageFilename,
		InspectionID:    inspection.ID.String(),
		Counts:          inspection.Counts,
		RiskLevel:       inspection.OverallRiskLevel,
		TotalFines:      inspection.EstimatedTotalFines,
		Violations:      inspection.Violations,
		Recommendations: inspection.Recommendations,
	}

	var b strings.Builder
	if err := reportTemplate.Execute(&b, data); err != nil {
		return "", fmt.Errorf("execute report template: %w", err)
	}
	return b.String(), nil
}
