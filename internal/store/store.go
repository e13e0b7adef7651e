// Package store provides persistence for inspections, reports, authorization
// clarifications, conversation turns and delegated credentials.
//
// Two implementations exist:
// - PostgresStore: production persistence on PostgreSQL
// - MemoryStore: in-process store for development and tests
//
// Persistence failures are retryable by design: callers receive the objects
// they were storing back in their responses even when a write fails, so no
// analysis work is lost while storage is down.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/siteguardhq/siteguard/internal/domain"
)

// Sentinel errors
var (
	// ErrNotFound is returned when a requested record doesn't exist.
	ErrNotFound = errors.New("record not found")

	// ErrUnavailable is returned when the backing store cannot be reached.
	// Callers should surface this as a retryable condition.
	ErrUnavailable = errors.New("persistence unavailable")
)

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnavailable returns true if the error indicates the store is unreachable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Store is the persistence contract for the workflow core.
//
// All methods are context-aware. Implementations must make
// ResolveClarification atomic: concurrent resolution attempts on the same
// clarification serialize, and exactly one caller observes the transition.
type Store interface {
	// CreateInspection persists a fully classified inspection with its
	// violations. Inspection creation is all-or-nothing.
	CreateInspection(ctx context.Context, inspection *domain.Inspection) error

	// GetInspection retrieves an inspection by ID, including violations.
	// Returns ErrNotFound if it does not exist.
	GetInspection(ctx context.Context, id uuid.UUID) (*domain.Inspection, error)

	// ListHistory returns inspection summaries, newest first.
	ListHistory(ctx context.Context, limit int) ([]domain.HistoryEntry, error)

	// RecentViolationTypeCounts counts violations by type across the most
	// recent `window` inspections. Feeds the recurring-type pattern rule.
	RecentViolationTypeCounts(ctx context.Context, window int) (map[string]int, error)

	// SafetyMetrics recomputes aggregate metrics from the full history set.
	SafetyMetrics(ctx context.Context) (*domain.SafetyMetrics, error)

	// CreateReport persists a composed report.
	CreateReport(ctx context.Context, report *domain.Report) error

	// GetReport retrieves a report by ID. Returns ErrNotFound if missing.
	GetReport(ctx context.Context, id uuid.UUID) (*domain.Report, error)

	// UpdateReportStatus records a delivery status transition. The external
	// message ID is stored when non-empty.
	UpdateReportStatus(ctx context.Context, id uuid.UUID, status domain.ReportStatus, externalMessageID string) error

	// CreateClarification persists a suspended action.
	CreateClarification(ctx context.Context, c *domain.AuthorizationClarification) error

	// GetClarification retrieves a clarification by ID.
	GetClarification(ctx context.Context, id uuid.UUID) (*domain.AuthorizationClarification, error)

	// FindUnresolvedClarification returns the unresolved clarification for an
	// action key, or ErrNotFound. At most one can exist per action.
	FindUnresolvedClarification(ctx context.Context, actionKey string) (*domain.AuthorizationClarification, error)

	// ResolveClarification marks a clarification resolved. Returns true if
	// this call performed the transition, false if it was already resolved.
	ResolveClarification(ctx context.Context, id uuid.UUID) (bool, error)

	// AppendTurn appends a turn to a session transcript.
	AppendTurn(ctx context.Context, turn *domain.ConversationTurn) error

	// ListTurns returns the transcript of a session, oldest first.
	ListTurns(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error)

	// PutCredential stores a delegated credential for a provider.
	PutCredential(ctx context.Context, provider string, token []byte) error

	// HasValidCredential reports whether a delegated credential is on file
	// for the provider.
	HasValidCredential(ctx context.Context, provider string) (bool, error)
}
