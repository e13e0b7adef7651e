package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/siteguardhq/siteguard/internal/domain"
)

// PostgresStore implements Store on PostgreSQL via database/sql with the pgx
// stdlib driver. Schema is managed by the goose migrations embedded in the
// internal package.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Store backed by the given database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// wrapErr maps driver errors to store sentinels. Anything that is not a
// missing row is treated as a retryable unavailability: the caller keeps the
// objects it was persisting, so no analysis work is lost.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

// =============================================================================
// Inspections
// =============================================================================

func (s *PostgresStore) CreateInspection(ctx context.Context, inspection *domain.Inspection) error {
	const op = "store.create_inspection"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr(op, err)
	}
	defer tx.Rollback()

	recommendations, err := json.Marshal(inspection.Recommendations)
	if err != nil {
		return fmt.Errorf("%s: marshal recommendations: %w", op, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inspections (
			id, site_id, ts, image_reference, image_filename,
			critical_count, moderate_count, low_count, total_count,
			risk_level, recommendations, total_fines_cents
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		inspection.ID, inspection.SiteID, inspection.Timestamp,
		inspection.ImageReference, inspection.ImageFilename,
		inspection.Counts.Critical, inspection.Counts.Moderate,
		inspection.Counts.Low, inspection.Counts.Total,
		inspection.OverallRiskLevel.String(), recommendations,
		inspection.EstimatedTotalFines.Cents(),
	)
	if err != nil {
		return wrapErr(op, err)
	}

	for i, v := range inspection.Violations {
		var fineCents *int64
		if v.FineEstimate != nil {
			c := v.FineEstimate.Cents()
			fineCents = &c
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO violations (
				id, inspection_id, sort_order, violation_type, description,
				severity, osha_code, corrective_action, fine_cents, location, confidence
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			v.ID, inspection.ID, i, v.Type, v.Description,
			v.Severity.String(), v.OSHACode, v.CorrectiveAction,
			fineCents, v.Location, v.Confidence,
		)
		if err != nil {
			return wrapErr(op, err)
		}
	}

	return wrapErr(op, tx.Commit())
}

func (s *PostgresStore) GetInspection(ctx context.Context, id uuid.UUID) (*domain.Inspection, error) {
	const op = "store.get_inspection"

	var inspection domain.Inspection
	var riskLevel string
	var recommendations []byte
	var fineCents int64

	err := s.db.QueryRowContext(ctx, `
		SELECT id, site_id, ts, image_reference, image_filename,
		       critical_count, moderate_count, low_count, total_count,
		       risk_level, recommendations, total_fines_cents
		FROM inspections WHERE id = $1`, id,
	).Scan(
		&inspection.ID, &inspection.SiteID, &inspection.Timestamp,
		&inspection.ImageReference, &inspection.ImageFilename,
		&inspection.Counts.Critical, &inspection.Counts.Moderate,
		&inspection.Counts.Low, &inspection.Counts.Total,
		&riskLevel, &recommendations, &fineCents,
	)
	if err != nil {
		return nil, wrapErr(op, err)
	}

	inspection.OverallRiskLevel = domain.RiskLevel(riskLevel)
	inspection.EstimatedTotalFines = domain.Money(fineCents)
	if err := json.Unmarshal(recommendations, &inspection.Recommendations); err != nil {
		return nil, fmt.Errorf("%s: unmarshal recommendations: %w", op, err)
	}

	violations, err := s.listViolations(ctx, id)
	if err != nil {
		return nil, err
	}
	inspection.Violations = violations
	return &inspection, nil
}

func (s *PostgresStore) listViolations(ctx context.Context, inspectionID uuid.UUID) ([]domain.Violation, error) {
	const op = "store.list_violations"

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, violation_type, description, severity, osha_code,
		       corrective_action, fine_cents, location, confidence
		FROM violations WHERE inspection_id = $1 ORDER BY sort_order`, inspectionID)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	var violations []domain.Violation
	for rows.Next() {
		var v domain.Violation
		var severity string
		var fineCents sql.NullInt64
		if err := rows.Scan(
			&v.ID, &v.Type, &v.Description, &severity, &v.OSHACode,
			&v.CorrectiveAction, &fineCents, &v.Location, &v.Confidence,
		); err != nil {
			return nil, wrapErr(op, err)
		}
		v.Severity = domain.Severity(severity)
		if fineCents.Valid {
			m := domain.Money(fineCents.Int64)
			v.FineEstimate = &m
		}
		violations = append(violations, v)
	}
	return violations, wrapErr(op, rows.Err())
}

func (s *PostgresStore) ListHistory(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	const op = "store.list_history"

	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.ts, i.total_count, i.risk_level,
		       EXISTS (
		           SELECT 1 FROM reports r
		           WHERE r.inspection_id = i.id AND r.status = 'SENT'
		       ) AS report_sent
		FROM inspections i
		ORDER BY i.ts DESC, i.id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		var riskLevel string
		if err := rows.Scan(&e.InspectionID, &e.Timestamp, &e.ViolationsCount, &riskLevel, &e.ReportSent); err != nil {
			return nil, wrapErr(op, err)
		}
		e.RiskLevel = domain.RiskLevel(riskLevel)
		entries = append(entries, e)
	}
	return entries, wrapErr(op, rows.Err())
}

func (s *PostgresStore) RecentViolationTypeCounts(ctx context.Context, window int) (map[string]int, error) {
	const op = "store.recent_violation_type_counts"

	if window <= 0 {
		window = 25
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.violation_type, COUNT(*)
		FROM violations v
		WHERE v.violation_type <> ''
		  AND v.inspection_id IN (
		      SELECT id FROM inspections ORDER BY ts DESC, id DESC LIMIT $1
		  )
		GROUP BY v.violation_type`, window)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var t string
		var c int
		if err := rows.Scan(&t, &c); err != nil {
			return nil, wrapErr(op, err)
		}
		counts[t] = c
	}
	return counts, wrapErr(op, rows.Err())
}

func (s *PostgresStore) SafetyMetrics(ctx context.Context) (*domain.SafetyMetrics, error) {
	const op = "store.safety_metrics"

	metrics := &domain.SafetyMetrics{ViolationTrends: make(map[string]int)}

	var finesCents int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(total_count), 0),
		       COALESCE(SUM(critical_count), 0),
		       COALESCE(SUM(total_fines_cents), 0)
		FROM inspections`,
	).Scan(&metrics.TotalInspections, &metrics.TotalViolations, &metrics.CriticalViolations, &finesCents)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	metrics.EstimatedFinesPrevented = domain.Money(finesCents)

	rows, err := s.db.QueryContext(ctx, `
		SELECT violation_type, COUNT(*)
		FROM violations
		WHERE violation_type <> ''
		GROUP BY violation_type`)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var t string
		var c int
		if err := rows.Scan(&t, &c); err != nil {
			return nil, wrapErr(op, err)
		}
		metrics.ViolationTrends[t] = c
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}

	if metrics.TotalInspections > 0 {
		metrics.AverageViolationsPerInspection =
			float64(metrics.TotalViolations) / float64(metrics.TotalInspections)
	}
	metrics.MostCommonViolations = rankViolationTypes(metrics.ViolationTrends)
	return metrics, nil
}

// =============================================================================
// Reports
// =============================================================================

func (s *PostgresStore) CreateReport(ctx context.Context, report *domain.Report) error {
	const op = "store.create_report"

	recipients, err := json.Marshal(report.Recipients)
	if err != nil {
		return fmt.Errorf("%s: marshal recipients: %w", op, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (id, inspection_id, recipients, status, rendered_content, external_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		report.ID, report.InspectionID, recipients, report.Status.String(),
		report.RenderedContent, report.ExternalMessageID, report.CreatedAt,
	)
	return wrapErr(op, err)
}

func (s *PostgresStore) GetReport(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	const op = "store.get_report"

	var report domain.Report
	var status string
	var recipients []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT id, inspection_id, recipients, status, rendered_content, external_message_id, created_at
		FROM reports WHERE id = $1`, id,
	).Scan(&report.ID, &report.InspectionID, &recipients, &status,
		&report.RenderedContent, &report.ExternalMessageID, &report.CreatedAt)
	if err != nil {
		return nil, wrapErr(op, err)
	}

	report.Status = domain.ReportStatus(status)
	if err := json.Unmarshal(recipients, &report.Recipients); err != nil {
		return nil, fmt.Errorf("%s: unmarshal recipients: %w", op, err)
	}
	return &report, nil
}

func (s *PostgresStore) UpdateReportStatus(ctx context.Context, id uuid.UUID, status domain.ReportStatus, externalMessageID string) error {
	const op = "store.update_report_status"

	result, err := s.db.ExecContext(ctx, `
		UPDATE reports
		SET status = $2,
		    external_message_id = CASE WHEN $3 <> '' THEN $3 ELSE external_message_id END
		WHERE id = $1`,
		id, status.String(), externalMessageID)
	if err != nil {
		return wrapErr(op, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// =============================================================================
// Clarifications
// =============================================================================

func (s *PostgresStore) CreateClarification(ctx context.Context, c *domain.AuthorizationClarification) error {
	const op = "store.create_clarification"

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clarifications (id, authorization_url, action_kind, action_payload, action_key, created_at, resolved)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.AuthorizationURL, string(c.Action.Kind), []byte(c.Action.Payload),
		c.ActionKey, c.CreatedAt, c.Resolved,
	)
	return wrapErr(op, err)
}

func (s *PostgresStore) GetClarification(ctx context.Context, id uuid.UUID) (*domain.AuthorizationClarification, error) {
	const op = "store.get_clarification"
	return s.scanClarification(ctx, op, `
		SELECT id, authorization_url, action_kind, action_payload, action_key, created_at, resolved
		FROM clarifications WHERE id = $1`, id)
}

func (s *PostgresStore) FindUnresolvedClarification(ctx context.Context, actionKey string) (*domain.AuthorizationClarification, error) {
	const op = "store.find_unresolved_clarification"
	return s.scanClarification(ctx, op, `
		SELECT id, authorization_url, action_kind, action_payload, action_key, created_at, resolved
		FROM clarifications WHERE action_key = $1 AND resolved = false`, actionKey)
}

func (s *PostgresStore) scanClarification(ctx context.Context, op, query string, arg interface{}) (*domain.AuthorizationClarification, error) {
	var c domain.AuthorizationClarification
	var kind string
	var payload []byte

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&c.ID, &c.AuthorizationURL, &kind, &payload, &c.ActionKey, &c.CreatedAt, &c.Resolved)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	c.Action = domain.Continuation{Kind: domain.ActionKind(kind), Payload: payload}
	return &c, nil
}

// ResolveClarification performs the state transition with a conditional
// update, so concurrent confirmations serialize in the database and exactly
// one caller observes resolved=true flipping.
func (s *PostgresStore) ResolveClarification(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "store.resolve_clarification"

	result, err := s.db.ExecContext(ctx, `
		UPDATE clarifications SET resolved = true
		WHERE id = $1 AND resolved = false`, id)
	if err != nil {
		return false, wrapErr(op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, wrapErr(op, err)
	}
	if affected > 0 {
		return true, nil
	}

	// No transition happened: either already resolved, or missing.
	var exists bool
	err = s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM clarifications WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, wrapErr(op, err)
	}
	if !exists {
		return false, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return false, nil
}

// =============================================================================
// Conversation turns
// =============================================================================

func (s *PostgresStore) AppendTurn(ctx context.Context, turn *domain.ConversationTurn) error {
	const op = "store.append_turn"

	attached := []byte(turn.AttachedData)
	if len(attached) == 0 {
		attached = []byte("null")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_turns (id, session_id, role, content, message_type, attached_data, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		turn.ID, turn.SessionID, string(turn.Role), turn.Content,
		string(turn.MessageType), attached, turn.Timestamp,
	)
	return wrapErr(op, err)
}

func (s *PostgresStore) ListTurns(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error) {
	const op = "store.list_turns"

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, message_type, attached_data, ts
		FROM (
			SELECT * FROM conversation_turns
			WHERE session_id = $1 ORDER BY ts DESC LIMIT $2
		) recent
		ORDER BY ts ASC`, sessionID, limit)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	var turns []domain.ConversationTurn
	for rows.Next() {
		var t domain.ConversationTurn
		var role, messageType string
		var attached []byte
		if err := rows.Scan(&t.ID, &t.SessionID, &role, &t.Content, &messageType, &attached, &t.Timestamp); err != nil {
			return nil, wrapErr(op, err)
		}
		t.Role = domain.Role(role)
		t.MessageType = domain.MessageType(messageType)
		if string(attached) != "null" {
			t.AttachedData = attached
		}
		turns = append(turns, t)
	}
	return turns, wrapErr(op, rows.Err())
}

// =============================================================================
// Delegated credentials
// =============================================================================

func (s *PostgresStore) PutCredential(ctx context.Context, provider string, token []byte) error {
	const op = "store.put_credential"

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (provider, token, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (provider) DO UPDATE SET token = EXCLUDED.token, updated_at = now()`,
		provider, token)
	return wrapErr(op, err)
}

func (s *PostgresStore) HasValidCredential(ctx context.Context, provider string) (bool, error) {
	const op = "store.has_valid_credential"

	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM credentials WHERE provider = $1 AND length(token) > 0)`,
		provider).Scan(&exists)
	if err != nil {
		return false, wrapErr(op, err)
	}
	return exists, nil
}

var _ Store = (*PostgresStore)(nil)
