// Package authz manages delegated authorization clarifications.
//
// When an outbound action (report delivery) is attempted without a valid
// delegated credential, the manager suspends the action: it persists a
// replayable continuation, obtains an authorization URL from the external
// authorization service, and hands that URL back to the caller instead of
// performing the action. Once the human completes authorization out-of-band
// and the confirmation arrives, the manager resolves the clarification and
// replays the stored continuation exactly once.
//
// Clarification lifecycle: NONE -> REQUESTED -> RESOLVED. Resolution is
// idempotent and the core imposes no expiry on requested clarifications.
package authz

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/siteguardhq/siteguard/internal/domain"
	"github.com/siteguardhq/siteguard/internal/store"
)

// Provider is the boundary to the external authorization service. Its OAuth
// mechanics are outside the core; all the manager needs is a URL the human
// can visit and the credential key the completed grant is stored under.
type Provider interface {
	// Name is the credential key for grants from this provider.
	Name() string

	// AuthorizationURL builds the URL where the human completes
	// authorization. The clarification ID travels in the state parameter so
	// the confirmation can be matched back.
	AuthorizationURL(clarificationID uuid.UUID) string
}

// Dispatcher replays a suspended continuation after authorization resolves.
// The conversation coordinator implements this.
type Dispatcher interface {
	Replay(ctx context.Context, action domain.Continuation) (*domain.Report, error)
}

// Pending signals that an action was suspended on authorization. It is a
// control-flow value, not an error: callers turn it into an oauth response.
type Pending struct {
	ClarificationID  uuid.UUID
	AuthorizationURL string
}

// Resolution is the outcome of confirming a clarification.
type Resolution struct {
	// AlreadyResolved is true when the confirmation was a no-op because the
	// clarification had been resolved before. No replay happens in that case.
	AlreadyResolved bool

	// Clarification is the confirmed record.
	Clarification *domain.AuthorizationClarification

	// Report is the delivered report when the replayed action was a report
	// delivery and the replay ran in this call.
	Report *domain.Report
}

// Manager coordinates the clarification lifecycle.
type Manager struct {
	store      store.Store
	provider   Provider
	dispatcher Dispatcher
	logger     *slog.Logger

	// Per-clarification locks serialize concurrent resolution attempts in
	// this process; the store's conditional update covers other workers.
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewManager creates a clarification manager. The dispatcher is registered
// separately because the coordinator that implements it also depends on the
// manager.
func NewManager(st store.Store, provider Provider, logger *slog.Logger) *Manager {
	return &Manager{
		store:    st,
		provider: provider,
		logger:   logger,
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

// SetDispatcher registers the continuation dispatcher. Must be called before
// Resolve.
func (m *Manager) SetDispatcher(d Dispatcher) {
	m.dispatcher = d
}

// Require checks whether the delegated action can proceed. It returns
// (nil, nil) when a valid credential is on file. Otherwise it suspends the
// action: the continuation is persisted against a new clarification (or the
// existing unresolved one for the same action is reused, preserving the
// one-unresolved-per-action invariant) and a Pending is returned.
func (m *Manager) Require(ctx context.Context, action domain.Continuation, actionKey string) (*Pending, error) {
	const op = "authz.require"

	ok, err := m.store.HasValidCredential(ctx, m.provider.Name())
	if err != nil {
		return nil, domain.Unavailable(err, op, "could not check delegated credentials")
	}
	if ok {
		return nil, nil
	}

	if existing, err := m.store.FindUnresolvedClarification(ctx, actionKey); err == nil {
		return &Pending{ClarificationID: existing.ID, AuthorizationURL: existing.AuthorizationURL}, nil
	} else if !store.IsNotFound(err) {
		return nil, domain.Unavailable(err, op, "could not look up clarifications")
	}

	c := &domain.AuthorizationClarification{
		ID:        uuid.New(),
		Action:    action,
		ActionKey: actionKey,
		CreatedAt: time.Now().UTC(),
	}
	c.AuthorizationURL = m.provider.AuthorizationURL(c.ID)

	if err := m.store.CreateClarification(ctx, c); err != nil {
		return nil, domain.Unavailable(err, op, "could not persist clarification")
	}

	m.logger.Info("action suspended on delegated authorization",
		"clarification_id", c.ID,
		"action", string(action.Kind),
		"action_key", actionKey,
	)
	return &Pending{ClarificationID: c.ID, AuthorizationURL: c.AuthorizationURL}, nil
}

// ConfirmCredential records the delegated credential granted by the external
// authorization service.
func (m *Manager) ConfirmCredential(ctx context.Context, token []byte) error {
	const op = "authz.confirm_credential"
	if err := m.store.PutCredential(ctx, m.provider.Name(), token); err != nil {
		return domain.Unavailable(err, op, "could not store delegated credential")
	}
	return nil
}

// Resolve confirms a clarification and replays its continuation.
//
// The sequence is serialized per clarification: exactly one caller observes
// the REQUESTED -> RESOLVED transition and runs the replay; every other
// caller (concurrent or later) gets AlreadyResolved with no second replay.
// A replay failure does not un-resolve the clarification: authorization did
// complete. The error carries through so the caller can report it with the
// underlying report ID preserved.
func (m *Manager) Resolve(ctx context.Context, id uuid.UUID) (*Resolution, error) {
	const op = "authz.resolve"

	if m.dispatcher == nil {
		return nil, domain.Internal(nil, op, "no dispatcher registered")
	}

	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	c, err := m.store.GetClarification(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domain.NotFound(op, "clarification", id.String())
		}
		return nil, domain.Unavailable(err, op, "could not load clarification")
	}

	if c.Resolved {
		return &Resolution{AlreadyResolved: true, Clarification: c}, nil
	}

	transitioned, err := m.store.ResolveClarification(ctx, id)
	if err != nil {
		return nil, domain.Unavailable(err, op, "could not resolve clarification")
	}
	if !transitioned {
		c.Resolved = true
		return &Resolution{AlreadyResolved: true, Clarification: c}, nil
	}

	m.logger.Info("clarification resolved, replaying suspended action",
		"clarification_id", id,
		"action", string(c.Action.Kind),
	)
	c.Resolved = true

	report, err := m.dispatcher.Replay(ctx, c.Action)
	if err != nil {
		return &Resolution{Clarification: c, Report: report},
			fmt.Errorf("replay %s: %w", c.Action.Kind, err)
	}
	return &Resolution{Clarification: c, Report: report}, nil
}

// lockFor returns the mutex serializing resolution of one clarification.
func (m *Manager) lockFor(id uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[id] = lock
	}
	return lock
}
