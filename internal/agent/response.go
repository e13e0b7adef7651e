package agent

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/siteguardhq/siteguard/internal/domain"
)

// =============================================================================
// Chat Response
// =============================================================================

// ChatResponse is the structured outcome of a conversation turn. Every turn
// produces one, including failed turns: errors are carried in the Error
// field rather than aborting the exchange.
type ChatResponse struct {
	Response         string             `json:"response"`
	MessageType      domain.MessageType `json:"message_type"`
	ClarificationURL string             `json:"clarification_url,omitempty"`
	Data             any                `json:"data,omitempty"`
	Error            *ResponseError     `json:"error,omitempty"`
}

// ResponseError is a typed, caller-facing failure. Retryable errors indicate
// transient conditions (analysis timeouts, persistence outages) where the
// same request may succeed later.
type ResponseError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Error codes carried in ChatResponse.Error.
const (
	ErrCodeInvalidImage        = "invalid_image"
	ErrCodeAnalysisTimeout     = "analysis_timeout"
	ErrCodeAnalysisMalformed   = "analysis_malformed"
	ErrCodeAnalysisUnavailable = "analysis_unavailable"
	ErrCodeNotFound            = "not_found"
	ErrCodeInvalidRequest      = "invalid_request"
	ErrCodeDeliveryFailed      = "delivery_failed"
	ErrCodePersistence         = "persistence_unavailable"
)

// =============================================================================
// Data Payloads
// =============================================================================

// ViolationView is the wire representation of a detected violation.
type ViolationView struct {
	ID               uuid.UUID `json:"id"`
	Type             string    `json:"type"`
	Description      string    `json:"description"`
	Severity         string    `json:"severity"`
	OSHACode         string    `json:"osha_code,omitempty"`
	CorrectiveAction string    `json:"corrective_action,omitempty"`
	FineEstimate     *int64    `json:"fine_estimate_cents,omitempty"`
	Location         string    `json:"location,omitempty"`
	Confidence       float64   `json:"confidence"`
}

// InspectionView is the wire representation of a classified inspection.
type InspectionView struct {
	ID                  uuid.UUID       `json:"id"`
	SiteID              string          `json:"site_id,omitempty"`
	Timestamp           time.Time       `json:"timestamp"`
	ImageReference      string          `json:"image_reference,omitempty"`
	ImageFilename       string          `json:"image_filename,omitempty"`
	Violations          []ViolationView `json:"violations"`
	CriticalCount       int             `json:"critical_count"`
	ModerateCount       int             `json:"moderate_count"`
	LowCount            int             `json:"low_count"`
	TotalCount          int             `json:"total_count"`
	OverallRiskLevel    string          `json:"overall_risk_level"`
	Recommendations     []string        `json:"recommendations"`
	EstimatedTotalFines string          `json:"estimated_total_fines"`
}

// NewInspectionView converts a domain inspection into its wire form.
func NewInspectionView(in *domain.Inspection) InspectionView {
	violations := make([]ViolationView, 0, len(in.Violations))
	for _, v := range in.Violations {
		view := ViolationView{
			ID:               v.ID,
			Type:             v.Type,
			Description:      v.Description,
			Severity:         v.Severity.String(),
			OSHACode:         v.OSHACode,
			CorrectiveAction: v.CorrectiveAction,
			Location:         v.Location,
			Confidence:       v.Confidence,
		}
		if v.FineEstimate != nil {
			cents := int64(*v.FineEstimate)
			view.FineEstimate = &cents
		}
		violations = append(violations, view)
	}

	return InspectionView{
		ID:                  in.ID,
		SiteID:              in.SiteID,
		Timestamp:           in.Timestamp,
		ImageReference:      in.ImageReference,
		ImageFilename:       in.ImageFilename,
		Violations:          violations,
		CriticalCount:       in.Counts.Critical,
		ModerateCount:       in.Counts.Moderate,
		LowCount:            in.Counts.Low,
		TotalCount:          in.Counts.Total,
		OverallRiskLevel:    in.OverallRiskLevel.String(),
		Recommendations:     in.Recommendations,
		EstimatedTotalFines: in.EstimatedTotalFines.String(),
	}
}

// ImageAnalysisData is the payload of an image_analysis response.
type ImageAnalysisData struct {
	Inspection InspectionView `json:"inspection"`
}

// ReportData is the payload of a report response.
type ReportData struct {
	ReportID     uuid.UUID `json:"report_id"`
	InspectionID uuid.UUID `json:"inspection_id"`
	Recipients   []string  `json:"recipients"`
	Status       string    `json:"status"`
	Content      string    `json:"content,omitempty"`
}

// NewReportData converts a domain report into its wire form.
func NewReportData(r *domain.Report, includeContent bool) ReportData {
	data := ReportData{
		ReportID:     r.ID,
		InspectionID: r.InspectionID,
		Recipients:   r.Recipients,
		Status:       r.Status.String(),
	}
	if includeContent {
		data.Content = r.RenderedContent
	}
	return data
}

// OAuthData is the payload of an oauth response: the action is suspended
// until the human completes authorization at the clarification URL.
type OAuthData struct {
	ClarificationID uuid.UUID `json:"clarification_id"`
	ReportID        uuid.UUID `json:"report_id"`
}

// =============================================================================
// Response Text
// =============================================================================

func analysisSummary(in *domain.Inspection) string {
	if in.Counts.Total == 0 {
		return "I analyzed the site photo and found no safety violations. " +
			"The site appears to be following proper safety protocols. " +
			"Would you like me to generate a compliance report documenting this inspection?"
	}

	plural := "violations"
	if in.Counts.Total == 1 {
		plural = "violation"
	}
	summary := fmt.Sprintf(
		"I analyzed the site photo and found %d safety %s (%d critical, %d moderate, %d low). "+
			"Overall risk level: %s. Estimated fine exposure: %s.",
		in.Counts.Total, plural,
		in.Counts.Critical, in.Counts.Moderate, in.Counts.Low,
		in.OverallRiskLevel, in.EstimatedTotalFines,
	)
	return summary + " Would you like me to generate a compliance report for this inspection?"
}

func authorizationPrompt(url string) string {
	return "Before I can email the compliance report, I need your authorization to send email on your behalf. " +
		"Please complete the authorization here: " + url
}

func deliverySummary(r *domain.Report) string {
	return fmt.Sprintf("Compliance report %s has been sent to %d recipient(s).", r.ID, len(r.Recipients))
}
