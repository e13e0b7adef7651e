package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/siteguardhq/siteguard/internal/agent"
	"github.com/siteguardhq/siteguard/internal/domain"
	"github.com/siteguardhq/siteguard/internal/vision"
)

// maxUploadSize bounds the multipart form, image included.
const maxUploadSize = vision.MaxImageSize + 1<<20

// API serves the compliance workflow endpoints.
type API struct {
	coordinator *agent.Coordinator
	logger      *slog.Logger
}

// NewAPI creates the API handler.
func NewAPI(coordinator *agent.Coordinator, logger *slog.Logger) *API {
	return &API{coordinator: coordinator, logger: logger}
}

// RegisterRoutes attaches all endpoints to the mux.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat", a.handleChat)
	mux.HandleFunc("POST /generate-report", a.handleGenerateReport)
	mux.HandleFunc("POST /oauth/confirm", a.handleOAuthConfirm)
	mux.HandleFunc("GET /oauth/clarifications/{id}", a.handleClarificationStatus)
	mux.HandleFunc("GET /inspections/history", a.handleHistory)
	mux.HandleFunc("GET /metrics/safety", a.handleSafetyMetrics)
}

// =============================================================================
// POST /chat
// =============================================================================

type chatJSONRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	SiteID    string `json:"site_id"`

	// ImageBase64 is an alternative to the multipart upload for clients that
	// cannot send form-data.
	ImageBase64      string `json:"image_base64,omitempty"`
	ImageFilename    string `json:"image_filename,omitempty"`
	ImageContentType string `json:"image_content_type,omitempty"`
}

// handleChat accepts either a JSON body (text-only turn) or multipart
// form-data with an "image" part (photo analysis turn).
func (a *API) handleChat(w http.ResponseWriter, r *http.Request) {
	var req agent.TurnRequest

	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "multipart/form-data"):
		if err := a.parseMultipartTurn(r, &req); err != nil {
			respondError(w, r, a.logger, err)
			return
		}
	default:
		// The limit leaves room for a maximum-size image in base64.
		var body chatJSONRequest
		if err := decodeJSONLimit(r, &body, maxUploadSize*2); err != nil {
			respondError(w, r, a.logger, err)
			return
		}
		req.SessionID = body.SessionID
		req.Message = body.Message
		req.SiteID = body.SiteID

		if body.ImageBase64 != "" {
			data, err := base64.StdEncoding.DecodeString(body.ImageBase64)
			if err != nil {
				respondError(w, r, a.logger, domain.Invalid("handler.chat", "image_base64 is not valid base64"))
				return
			}
			if int64(len(data)) > vision.MaxImageSize {
				respondError(w, r, a.logger, domain.Invalid("handler.chat", "image exceeds the 20MB size limit"))
				return
			}
			req.ImageData = data
			req.ImageFilename = body.ImageFilename
			req.ImageContentType = body.ImageContentType
		}
	}

	resp, err := a.coordinator.HandleTurn(r.Context(), req)
	if err != nil {
		respondError(w, r, a.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (a *API) parseMultipartTurn(r *http.Request, req *agent.TurnRequest) error {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return domain.Invalid("handler.chat", "could not parse multipart form")
	}

	req.SessionID = r.FormValue("session_id")
	req.Message = r.FormValue("message")
	req.SiteID = r.FormValue("site_id")

	file, header, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil
		}
		return domain.Invalid("handler.chat", "could not read image upload")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, vision.MaxImageSize+1))
	if err != nil {
		return domain.Invalid("handler.chat", "could not read image upload")
	}
	if int64(len(data)) > vision.MaxImageSize {
		return domain.Invalid("handler.chat", "image exceeds the 20MB size limit")
	}

	req.ImageData = data
	req.ImageFilename = header.Filename
	req.ImageContentType = imageContentType(header)
	return nil
}

func imageContentType(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// =============================================================================
// POST /generate-report
// =============================================================================

type generateReportRequest struct {
	SessionID    string   `json:"session_id"`
	InspectionID string   `json:"inspection_id"`
	Recipients   []string `json:"recipients"`
}

func (a *API) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	var body generateReportRequest
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, r, a.logger, err)
		return
	}

	inspectionID, err := uuid.Parse(body.InspectionID)
	if err != nil {
		respondError(w, r, a.logger, domain.Invalid("handler.generate_report", "inspection_id must be a valid UUID"))
		return
	}

	resp, err := a.coordinator.GenerateReport(r.Context(), agent.ReportRequest{
		SessionID:    body.SessionID,
		InspectionID: inspectionID,
		Recipients:   body.Recipients,
	})
	if err != nil {
		respondError(w, r, a.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// =============================================================================
// POST /oauth/confirm
// =============================================================================

type oauthConfirmRequest struct {
	ClarificationID string `json:"clarification_id"`
	Token           string `json:"token"`
}

// handleOAuthConfirm receives the confirmation that the human completed
// delegated authorization. Confirmations are idempotent: repeats acknowledge
// without a second delivery.
func (a *API) handleOAuthConfirm(w http.ResponseWriter, r *http.Request) {
	var body oauthConfirmRequest
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, r, a.logger, err)
		return
	}

	clarificationID, err := uuid.Parse(body.ClarificationID)
	if err != nil {
		respondError(w, r, a.logger, domain.Invalid("handler.oauth_confirm", "clarification_id must be a valid UUID"))
		return
	}

	resp, err := a.coordinator.ResolveAuthorization(r.Context(), clarificationID, []byte(body.Token))
	if err != nil {
		respondError(w, r, a.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleClarificationStatus lets clients poll a suspended authorization
// while the human completes the OAuth flow out of band.
func (a *API) handleClarificationStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, r, a.logger, domain.Invalid("handler.clarification_status", "clarification id must be a valid UUID"))
		return
	}

	clar, err := a.coordinator.ClarificationStatus(r.Context(), id)
	if err != nil {
		respondError(w, r, a.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"clarification_id":  clar.ID,
		"action":            clar.Action.Kind,
		"authorization_url": clar.AuthorizationURL,
		"resolved":          clar.Resolved,
	})
}

// =============================================================================
// GET /inspections/history
// =============================================================================

const defaultHistoryLimit = 50

type historyEntryView struct {
	InspectionID    uuid.UUID `json:"inspection_id"`
	Timestamp       time.Time `json:"timestamp"`
	ViolationsCount int       `json:"violations_count"`
	RiskLevel       string    `json:"risk_level"`
	ReportSent      bool      `json:"report_sent"`
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, r, a.logger, domain.Invalid("handler.history", "limit must be a positive integer"))
			return
		}
		limit = n
	}

	entries, err := a.coordinator.History(r.Context(), limit)
	if err != nil {
		respondError(w, r, a.logger, err)
		return
	}

	views := make([]historyEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, historyEntryView{
			InspectionID:    e.InspectionID,
			Timestamp:       e.Timestamp,
			ViolationsCount: e.ViolationsCount,
			RiskLevel:       e.RiskLevel.String(),
			ReportSent:      e.ReportSent,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"inspections": views})
}

// =============================================================================
// GET /metrics/safety
// =============================================================================

type safetyMetricsView struct {
	TotalInspections               int            `json:"total_inspections"`
	TotalViolations                int            `json:"total_violations"`
	CriticalViolations             int            `json:"critical_violations"`
	ViolationTrends                map[string]int `json:"violation_trends"`
	MostCommonViolations           []string       `json:"most_common_violations"`
	AverageViolationsPerInspection float64        `json:"average_violations_per_inspection"`
	EstimatedFinesPrevented        string         `json:"estimated_fines_prevented"`
}

func (a *API) handleSafetyMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := a.coordinator.SafetyMetrics(r.Context())
	if err != nil {
		respondError(w, r, a.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, safetyMetricsView{
		TotalInspections:               m.TotalInspections,
		TotalViolations:                m.TotalViolations,
		CriticalViolations:             m.CriticalViolations,
		ViolationTrends:                m.ViolationTrends,
		MostCommonViolations:           m.MostCommonViolations,
		AverageViolationsPerInspection: m.AverageViolationsPerInspection,
		EstimatedFinesPrevented:        m.EstimatedFinesPrevented.String(),
	})
}

// =============================================================================
// Helpers
// =============================================================================

func decodeJSON(r *http.Request, dst any) error {
	return decodeJSONLimit(r, dst, 1<<20)
}

func decodeJSONLimit(r *http.Request, dst any, limit int64) error {
	defer r.Body.Close()

	dec := json.NewDecoder(io.LimitReader(r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Invalid("handler.decode", "request body is not valid JSON")
	}
	return nil
}
