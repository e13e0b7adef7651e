// Package agent implements the conversation coordinator: the orchestration
// layer that routes inspector turns through image analysis, risk
// classification, report composition, delegated authorization and delivery.
//
// The coordinator owns the per-turn state machine:
//
//	IDLE -> ANALYZING -> AWAITING_REPORT_REQUEST -> AWAITING_AUTHORIZATION -> DONE
//
// Turns without a photo stay in IDLE and produce guidance. Analysis failures
// terminate the turn with a typed error instead of a partial inspection.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/siteguardhq/siteguard/internal/authz"
	"github.com/siteguardhq/siteguard/internal/domain"
	"github.com/siteguardhq/siteguard/internal/email"
	"github.com/siteguardhq/siteguard/internal/metrics"
	"github.com/siteguardhq/siteguard/internal/report"
	"github.com/siteguardhq/siteguard/internal/risk"
	"github.com/siteguardhq/siteguard/internal/storage"
	"github.com/siteguardhq/siteguard/internal/store"
	"github.com/siteguardhq/siteguard/internal/vision"
)

// =============================================================================
// Turn State Machine
// =============================================================================

type turnState string

const (
	stateIdle                  turnState = "IDLE"
	stateAnalyzing             turnState = "ANALYZING"
	stateAwaitingReportRequest turnState = "AWAITING_REPORT_REQUEST"
	stateAwaitingAuthorization turnState = "AWAITING_AUTHORIZATION"
	stateDone                  turnState = "DONE"
)

// =============================================================================
// Coordinator
// =============================================================================

// Options configures a Coordinator.
type Options struct {
	Analyzer vision.Analyzer
	Store    store.Store
	Authz    *authz.Manager
	Email    email.Service
	Files    storage.Storage
	Logger   *slog.Logger

	// HistoryWindow is the number of recent inspections consulted for the
	// recurring-violation recommendation. Zero means risk.DefaultHistoryWindow.
	HistoryWindow int

	// DefaultRecipients is used when a report request names no recipients.
	DefaultRecipients []string
}

// Coordinator routes conversation turns through the compliance workflow.
// It also acts as the continuation dispatcher for the authorization manager,
// replaying suspended report deliveries once authorization resolves.
type Coordinator struct {
	analyzer          vision.Analyzer
	store             store.Store
	authz             *authz.Manager
	email             email.Service
	files             storage.Storage
	logger            *slog.Logger
	historyWindow     int
	defaultRecipients []string
}

// New creates a Coordinator and registers it as the authorization manager's
// continuation dispatcher.
func New(opts Options) *Coordinator {
	window := opts.HistoryWindow
	if window <= 0 {
		window = risk.DefaultHistoryWindow
	}
	c := &Coordinator{
		analyzer:          opts.Analyzer,
		store:             opts.Store,
		authz:             opts.Authz,
		email:             opts.Email,
		files:             opts.Files,
		logger:            opts.Logger,
		historyWindow:     window,
		defaultRecipients: opts.DefaultRecipients,
	}
	if c.authz != nil {
		c.authz.SetDispatcher(c)
	}
	return c
}

// =============================================================================
// Conversation Turns
// =============================================================================

// TurnRequest is one inspector message, optionally carrying a site photo.
type TurnRequest struct {
	SessionID        string
	Message          string
	ImageData        []byte
	ImageFilename    string
	ImageContentType string
	SiteID           string
}

// HandleTurn processes one conversation turn. A turn with a photo runs the
// full analysis pipeline and returns an image_analysis response; a turn
// without one returns guidance. Failed turns return a response with a typed
// error rather than a Go error: the returned error is reserved for
// programming mistakes, not workflow outcomes.
func (c *Coordinator) HandleTurn(ctx context.Context, req TurnRequest) (*ChatResponse, error) {
	state := stateIdle

	if len(req.ImageData) == 0 {
		resp := c.guidanceResponse(req.Message)
		c.recordTurns(ctx, req, resp)
		metrics.TurnsTotal.WithLabelValues(string(resp.MessageType)).Inc()
		return resp, nil
	}

	state = c.advance(req.SessionID, state, stateAnalyzing)

	started := time.Now()
	violations, err := c.analyzer.Analyze(ctx, vision.AnalyzeParams{
		ImageData:   req.ImageData,
		ContentType: req.ImageContentType,
		Context:     req.Message,
	})
	metrics.AnalysisDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		c.advance(req.SessionID, state, stateDone)
		resp := c.analysisFailure(err)
		c.recordTurns(ctx, req, resp)
		metrics.TurnsTotal.WithLabelValues(string(resp.MessageType)).Inc()
		return resp, nil
	}
	metrics.ImagesAnalyzed.WithLabelValues("success").Inc()
	for _, v := range violations {
		metrics.ViolationsDetected.WithLabelValues(v.Severity.String()).Inc()
	}

	inspection := c.buildInspection(ctx, req, violations)
	c.storePhoto(ctx, req, inspection)

	resp := &ChatResponse{
		Response:    analysisSummary(inspection),
		MessageType: domain.MessageTypeImageAnalysis,
		Data:        ImageAnalysisData{Inspection: NewInspectionView(inspection)},
	}

	if err := c.store.CreateInspection(ctx, inspection); err != nil {
		metrics.StoreErrors.WithLabelValues("create_inspection").Inc()
		c.logger.Error("failed to persist inspection",
			"inspection_id", inspection.ID,
			"error", err,
		)
		resp.Error = &ResponseError{
			Code:      ErrCodePersistence,
			Message:   "the inspection could not be stored yet; the analysis above is complete and the request can be retried",
			Retryable: true,
		}
	} else {
		metrics.InspectionsCreated.Inc()
	}

	c.advance(req.SessionID, state, stateAwaitingReportRequest)

	c.recordTurns(ctx, req, resp)
	metrics.TurnsTotal.WithLabelValues(string(resp.MessageType)).Inc()
	return resp, nil
}

// buildInspection assembles a fully classified inspection from the
// adapter-normalized violations.
func (c *Coordinator) buildInspection(ctx context.Context, req TurnRequest, violations []domain.Violation) *domain.Inspection {
	recent, err := c.store.RecentViolationTypeCounts(ctx, c.historyWindow)
	if err != nil {
		// The recurring-type recommendation degrades gracefully without
		// history; classification itself never depends on the store.
		c.logger.Warn("recent violation history unavailable", "error", err)
		recent = nil
	}

	assessment := risk.Classify(violations, recent)

	return &domain.Inspection{
		ID:                  uuid.New(),
		SiteID:              req.SiteID,
		Timestamp:           time.Now().UTC(),
		ImageFilename:       req.ImageFilename,
		Violations:          violations,
		Counts:              assessment.Counts,
		OverallRiskLevel:    assessment.OverallRiskLevel,
		Recommendations:     assessment.Recommendations,
		EstimatedTotalFines: assessment.EstimatedTotalFines,
	}
}

// storePhoto uploads the original photo and a thumbnail. Upload failures are
// logged and the inspection proceeds without an image reference.
func (c *Coordinator) storePhoto(ctx context.Context, req TurnRequest, inspection *domain.Inspection) {
	if c.files == nil {
		return
	}

	key := storage.ImageKey(inspection.ID, req.ImageFilename)
	err := c.files.Put(ctx, key, bytes.NewReader(req.ImageData), storage.PutOptions{
		ContentType: req.ImageContentType,
		MaxSize:     vision.MaxImageSize,
	})
	if err != nil {
		c.logger.Warn("failed to store inspection photo",
			"inspection_id", inspection.ID,
			"error", err,
		)
		return
	}
	inspection.ImageReference = key

	thumb, err := generateThumbnail(req.ImageData)
	if err != nil {
		c.logger.Warn("failed to generate thumbnail", "inspection_id", inspection.ID, "error", err)
		return
	}
	thumbKey := storage.ThumbnailKey(inspection.ID, req.ImageFilename)
	if err := c.files.Put(ctx, thumbKey, bytes.NewReader(thumb), storage.PutOptions{ContentType: "image/jpeg"}); err != nil {
		c.logger.Warn("failed to store thumbnail", "inspection_id", inspection.ID, "error", err)
	}
}

// analysisFailure maps an analyzer error to a typed turn outcome.
func (c *Coordinator) analysisFailure(err error) *ChatResponse {
	var respErr *ResponseError
	switch {
	case vision.IsInvalidImage(err):
		metrics.ImagesAnalyzed.WithLabelValues("invalid_image").Inc()
		respErr = &ResponseError{
			Code:    ErrCodeInvalidImage,
			Message: "the uploaded file could not be read as a site photo; please upload a JPEG, PNG, GIF or WebP image",
		}
	case vision.IsTimeout(err):
		metrics.ImagesAnalyzed.WithLabelValues("timeout").Inc()
		respErr = &ResponseError{
			Code:      ErrCodeAnalysisTimeout,
			Message:   "image analysis timed out; please try again",
			Retryable: true,
		}
	case vision.IsMalformed(err):
		metrics.ImagesAnalyzed.WithLabelValues("malformed").Inc()
		respErr = &ResponseError{
			Code:      ErrCodeAnalysisMalformed,
			Message:   "the analysis service returned an unreadable result; please try again",
			Retryable: true,
		}
	default:
		metrics.ImagesAnalyzed.WithLabelValues("unavailable").Inc()
		respErr = &ResponseError{
			Code:      ErrCodeAnalysisUnavailable,
			Message:   "image analysis is temporarily unavailable; please try again shortly",
			Retryable: true,
		}
	}

	c.logger.Error("image analysis failed", "code", respErr.Code, "error", err)
	return &ChatResponse{
		Response:    "I wasn't able to analyze that photo. " + respErr.Message,
		MessageType: domain.MessageTypeText,
		Error:       respErr,
	}
}

// guidanceResponse answers a text-only turn.
func (c *Coordinator) guidanceResponse(message string) *ChatResponse {
	text := "I can analyze construction site photos for OSHA safety violations, " +
		"generate compliance reports, and email them to your safety team. " +
		"Upload a site photo to get started, or ask for your inspection history or safety metrics."

	if strings.TrimSpace(message) == "" {
		text = "Please send a message or upload a construction site photo for safety analysis."
	}

	return &ChatResponse{
		Response:    text,
		MessageType: domain.MessageTypeText,
	}
}

// recordTurns appends the user and assistant turns to the session
// transcript. Transcript failures never fail the turn.
func (c *Coordinator) recordTurns(ctx context.Context, req TurnRequest, resp *ChatResponse) {
	if req.SessionID == "" {
		return
	}

	now := time.Now().UTC()

	userContent := req.Message
	if len(req.ImageData) > 0 {
		userContent = strings.TrimSpace(fmt.Sprintf("%s [photo: %s]", req.Message, req.ImageFilename))
	}
	userTurn := &domain.ConversationTurn{
		ID:          uuid.New(),
		SessionID:   req.SessionID,
		Role:        domain.RoleUser,
		Content:     userContent,
		MessageType: domain.MessageTypeText,
		Timestamp:   now,
	}
	if err := c.store.AppendTurn(ctx, userTurn); err != nil {
		c.logger.Warn("failed to record user turn", "session_id", req.SessionID, "error", err)
	}

	assistantTurn := &domain.ConversationTurn{
		ID:          uuid.New(),
		SessionID:   req.SessionID,
		Role:        domain.RoleAssistant,
		Content:     resp.Response,
		MessageType: resp.MessageType,
		Timestamp:   now,
	}
	if resp.Data != nil {
		if payload, err := json.Marshal(resp.Data); err == nil {
			assistantTurn.AttachedData = payload
		}
	}
	if err := c.store.AppendTurn(ctx, assistantTurn); err != nil {
		c.logger.Warn("failed to record assistant turn", "session_id", req.SessionID, "error", err)
	}
}

// advance logs a turn state transition and returns the new state.
func (c *Coordinator) advance(sessionID string, from, to turnState) turnState {
	c.logger.Debug("turn state transition",
		"session_id", sessionID,
		"from", string(from),
		"to", string(to),
	)
	return to
}

// =============================================================================
// Report Generation
// =============================================================================

// ReportRequest asks for a compliance report covering one inspection.
type ReportRequest struct {
	SessionID    string
	InspectionID uuid.UUID

	// Inspection carries the inspection inline when it was never persisted
	// (for example because the store was down during analysis). When set it
	// takes precedence over InspectionID.
	Inspection *domain.Inspection

	// Recipients for delivery. Empty falls back to the configured defaults.
	Recipients []string
}

// GenerateReport composes a compliance report and attempts delivery. When no
// delegated email credential is on file, the delivery is suspended: the
// composed report stays PENDING and the response carries the authorization
// URL. Repeated requests for the same inspection while unauthorized reuse
// the existing clarification, so the report that eventually goes out is the
// one composed first.
func (c *Coordinator) GenerateReport(ctx context.Context, req ReportRequest) (*ChatResponse, error) {
	inspection := req.Inspection
	if inspection == nil {
		var err error
		inspection, err = c.store.GetInspection(ctx, req.InspectionID)
		if err != nil {
			if store.IsNotFound(err) {
				return &ChatResponse{
					Response:    fmt.Sprintf("I couldn't find inspection %s. Run a photo analysis first.", req.InspectionID),
					MessageType: domain.MessageTypeText,
					Error:       &ResponseError{Code: ErrCodeNotFound, Message: "inspection not found"},
				}, nil
			}
			return nil, domain.Unavailable(err, "agent.generate_report", "could not load inspection")
		}
	}

	recipients := req.Recipients
	if len(recipients) == 0 {
		recipients = c.defaultRecipients
	}

	rpt, err := report.Compose(inspection, recipients)
	if err != nil {
		return &ChatResponse{
			Response:    "I need at least one recipient email address to generate a compliance report.",
			MessageType: domain.MessageTypeText,
			Error:       &ResponseError{Code: ErrCodeInvalidRequest, Message: err.Error()},
		}, nil
	}
	metrics.ReportsComposed.Inc()

	persisted := true
	if err := c.store.CreateReport(ctx, rpt); err != nil {
		persisted = false
		metrics.StoreErrors.WithLabelValues("create_report").Inc()
		c.logger.Error("failed to persist report", "report_id", rpt.ID, "error", err)
	}

	cont, err := domain.NewSendReportContinuation(domain.SendReportArgs{
		ReportID:     rpt.ID,
		InspectionID: rpt.InspectionID,
		Recipients:   rpt.Recipients,
	})
	if err != nil {
		return nil, domain.Internal(err, "agent.generate_report", "could not build continuation")
	}

	actionKey := "send_report:" + rpt.InspectionID.String()
	pending, err := c.authz.Require(ctx, cont, actionKey)
	if err != nil {
		return nil, err
	}

	if pending != nil {
		if !persisted {
			// The suspended continuation references the report by ID, so an
			// unpersisted report cannot be replayed later.
			return nil, domain.Unavailable(nil, "agent.generate_report",
				"could not persist the report for delivery after authorization")
		}
		metrics.ClarificationsRequested.Inc()
		c.advance(req.SessionID, stateAwaitingReportRequest, stateAwaitingAuthorization)
		return &ChatResponse{
			Response:         authorizationPrompt(pending.AuthorizationURL),
			MessageType:      domain.MessageTypeOAuth,
			ClarificationURL: pending.AuthorizationURL,
			Data:             OAuthData{ClarificationID: pending.ClarificationID, ReportID: rpt.ID},
		}, nil
	}

	delivered, err := c.deliver(ctx, rpt)
	if err != nil {
		return &ChatResponse{
			Response:    fmt.Sprintf("Report %s was generated but could not be delivered. It is saved and delivery can be retried.", rpt.ID),
			MessageType: domain.MessageTypeReport,
			Data:        NewReportData(delivered, false),
			Error:       &ResponseError{Code: ErrCodeDeliveryFailed, Message: "report delivery failed", Retryable: true},
		}, nil
	}

	c.advance(req.SessionID, stateAwaitingReportRequest, stateDone)
	return &ChatResponse{
		Response:    deliverySummary(delivered),
		MessageType: domain.MessageTypeReport,
		Data:        NewReportData(delivered, true),
	}, nil
}

// deliver emails a composed report and records the status transition. The
// report comes back in both outcomes so callers can preserve its ID.
func (c *Coordinator) deliver(ctx context.Context, rpt *domain.Report) (*domain.Report, error) {
	subject := fmt.Sprintf("Construction Safety Compliance Report - %s", rpt.CreatedAt.Format("2006-01-02"))

	messageID, err := c.email.SendComplianceReport(ctx, rpt.Recipients, subject, rpt.RenderedContent)
	if err != nil {
		metrics.ReportDeliveries.WithLabelValues("failed").Inc()
		c.logger.Error("report delivery failed", "report_id", rpt.ID, "error", err)

		if terr := rpt.TransitionTo(domain.ReportStatusFailed); terr == nil {
			if serr := c.store.UpdateReportStatus(ctx, rpt.ID, domain.ReportStatusFailed, ""); serr != nil {
				metrics.StoreErrors.WithLabelValues("update_report_status").Inc()
				c.logger.Error("failed to record FAILED status", "report_id", rpt.ID, "error", serr)
			}
		}
		return rpt, fmt.Errorf("deliver report %s: %w", rpt.ID, err)
	}

	if err := rpt.TransitionTo(domain.ReportStatusSent); err != nil {
		return rpt, domain.Internal(err, "agent.deliver", "invalid delivery transition")
	}
	rpt.ExternalMessageID = messageID

	if err := c.store.UpdateReportStatus(ctx, rpt.ID, domain.ReportStatusSent, messageID); err != nil {
		metrics.StoreErrors.WithLabelValues("update_report_status").Inc()
		c.logger.Error("failed to record SENT status", "report_id", rpt.ID, "error", err)
	}

	metrics.ReportDeliveries.WithLabelValues("sent").Inc()
	c.logger.Info("compliance report delivered",
		"report_id", rpt.ID,
		"recipients", len(rpt.Recipients),
		"message_id", messageID,
	)
	return rpt, nil
}

// =============================================================================
// Authorization Resolution
// =============================================================================

// ResolveAuthorization handles the confirmation that the human completed
// delegated authorization. The granted credential is stored, the
// clarification resolves, and the suspended delivery replays at most once.
// Duplicate confirmations are acknowledged without a second delivery.
func (c *Coordinator) ResolveAuthorization(ctx context.Context, clarificationID uuid.UUID, token []byte) (*ChatResponse, error) {
	if len(token) > 0 {
		if err := c.authz.ConfirmCredential(ctx, token); err != nil {
			return nil, err
		}
	}

	res, err := c.authz.Resolve(ctx, clarificationID)
	if err != nil {
		if res != nil && res.Report != nil {
			// Authorization completed but the replayed delivery failed. The
			// clarification stays resolved; the report ID survives for retry.
			return &ChatResponse{
				Response:    fmt.Sprintf("Authorization confirmed, but report %s could not be delivered. Delivery can be retried.", res.Report.ID),
				MessageType: domain.MessageTypeReport,
				Data:        NewReportData(res.Report, false),
				Error:       &ResponseError{Code: ErrCodeDeliveryFailed, Message: "report delivery failed", Retryable: true},
			}, nil
		}
		return nil, err
	}

	if res.AlreadyResolved {
		metrics.ClarificationsResolved.WithLabelValues("already_resolved").Inc()
		resp := &ChatResponse{
			Response:    "This authorization was already confirmed; no further action was needed.",
			MessageType: domain.MessageTypeText,
		}
		if res.Report != nil {
			resp.Data = NewReportData(res.Report, false)
		}
		return resp, nil
	}

	metrics.ClarificationsResolved.WithLabelValues("replayed").Inc()
	c.advance("", stateAwaitingAuthorization, stateDone)

	resp := &ChatResponse{
		Response:    "Authorization confirmed.",
		MessageType: domain.MessageTypeText,
	}
	if res.Report != nil {
		resp.Response = deliverySummary(res.Report)
		resp.MessageType = domain.MessageTypeReport
		resp.Data = NewReportData(res.Report, true)
	}
	return resp, nil
}

// Replay implements authz.Dispatcher. It re-executes a suspended delivery
// after authorization resolves. A report already SENT is returned as-is so a
// replay can never deliver twice.
func (c *Coordinator) Replay(ctx context.Context, action domain.Continuation) (*domain.Report, error) {
	args, err := action.SendReportArgs()
	if err != nil {
		return nil, domain.Internal(err, "agent.replay", "undecodable continuation")
	}

	rpt, err := c.store.GetReport(ctx, args.ReportID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domain.NotFound("agent.replay", "report", args.ReportID.String())
		}
		return nil, domain.Unavailable(err, "agent.replay", "could not load suspended report")
	}

	if rpt.Status == domain.ReportStatusSent {
		return rpt, nil
	}
	return c.deliver(ctx, rpt)
}

// ClarificationStatus reports whether a clarification has resolved, for
// clients polling while the human completes authorization.
func (c *Coordinator) ClarificationStatus(ctx context.Context, id uuid.UUID) (*domain.AuthorizationClarification, error) {
	clar, err := c.store.GetClarification(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domain.NotFound("agent.clarification_status", "clarification", id.String())
		}
		return nil, domain.Unavailable(err, "agent.clarification_status", "could not load clarification")
	}
	return clar, nil
}

// =============================================================================
// History and Metrics
// =============================================================================

// History returns inspection summaries, newest first.
func (c *Coordinator) History(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	entries, err := c.store.ListHistory(ctx, limit)
	if err != nil {
		return nil, domain.Unavailable(err, "agent.history", "could not load inspection history")
	}
	return entries, nil
}

// SafetyMetrics recomputes aggregate safety metrics across all inspections.
func (c *Coordinator) SafetyMetrics(ctx context.Context) (*domain.SafetyMetrics, error) {
	m, err := c.store.SafetyMetrics(ctx)
	if err != nil {
		return nil, domain.Unavailable(err, "agent.safety_metrics", "could not compute safety metrics")
	}
	return m, nil
}
