// Package confirm holds at most one pending set of resolved entries per user
// until the user confirms or cancels it, or its deadline passes.
//
// Expiry is evaluated when a session is read; there is no background sweep.
package confirm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nutrilog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultTTL = 10 * time.Minute

type State string

const (
	StateIdle      State = "idle"
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateCancelled State = "cancelled"
	StateExpired   State = "expired"
)

// Persister writes a confirmed batch. The write must be all-or-nothing.
type Persister interface {
	PersistEntries(ctx context.Context, day time.Time, entries []nutrilog.ResolvedEntry) ([]int64, error)
}

type Pending struct {
	Entries   []nutrilog.ResolvedEntry `json:"entries"`
	CreatedAt time.Time                `json:"created_at"`
	ExpiresAt time.Time                `json:"expires_at"`
}

func (p *Pending) expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Transition is the result of an operation: the state the user moved to and
// the entries involved.
type Transition struct {
	State     State                    `json:"state"`
	Entries   []nutrilog.ResolvedEntry `json:"entries,omitempty"`
	IDs       []int64                  `json:"ids,omitempty"`
	Date      time.Time                `json:"date,omitzero"`
	ExpiresAt time.Time                `json:"expires_at,omitzero"`
}

type session struct {
	mu      sync.Mutex
	pending *Pending
}

type Options struct {
	TTL      time.Duration
	Location *time.Location
	Now      func() time.Time
	Tracer   trace.Tracer
}

type Manager struct {
	store  Persister
	ttl    time.Duration
	loc    *time.Location
	now    func() time.Time
	tracer trace.Tracer

	mu       sync.Mutex
	sessions map[string]*session
}

func NewManager(store Persister, opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(nutrilog.TracerNameConfirm)
	}
	return &Manager{
		store:    store,
		ttl:      opts.TTL,
		loc:      opts.Location,
		now:      opts.Now,
		tracer:   opts.Tracer,
		sessions: make(map[string]*session),
	}
}

// lock returns the user's session with its mutex held. All transitions of one
// user are serialized through it; different users proceed in parallel.
func (m *Manager) lock(userID string) *session {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if !ok {
		s = &session{}
		m.sessions[userID] = s
	}
	m.mu.Unlock()

	s.mu.Lock()
	return s
}

// current returns the live pending set, discarding it first if its deadline
// has passed. expired reports whether a discard happened.
func (m *Manager) current(userID string, s *session) (p *Pending, expired bool) {
	if s.pending == nil {
		return nil, false
	}
	if s.pending.expired(m.now()) {
		slog.Info("CONFIRM: Pending entries expired", "user", userID, "expires_at", s.pending.ExpiresAt)
		s.pending = nil
		return nil, true
	}
	return s.pending, false
}

// Stage makes entries the user's pending set, replacing any previous one and
// restarting the deadline.
func (m *Manager) Stage(ctx context.Context, userID string, entries []nutrilog.ResolvedEntry) (Transition, error) {
	if len(entries) == 0 {
		return Transition{}, nutrilog.ErrEmptyBatch
	}
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			return Transition{}, fmt.Errorf("entry %d: %w", i, err)
		}
	}

	s := m.lock(userID)
	defer s.mu.Unlock()

	if prev, _ := m.current(userID, s); prev != nil {
		slog.Info("CONFIRM: Replacing pending entries", "user", userID, "previous", len(prev.Entries))
	}

	now := m.now()
	s.pending = &Pending{
		Entries:   append([]nutrilog.ResolvedEntry(nil), entries...),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	slog.Info("CONFIRM: Staged entries", "user", userID, "entries", len(entries), "expires_at", s.pending.ExpiresAt)
	return Transition{State: StatePending, Entries: s.pending.Entries, ExpiresAt: s.pending.ExpiresAt}, nil
}

// Confirm persists the pending set for the current day and returns the user
// to idle. When persistence fails the pending set is kept so the user can
// retry.
func (m *Manager) Confirm(ctx context.Context, userID string) (Transition, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Confirm", trace.WithAttributes(attribute.String("user", userID)))
	defer span.End()

	s := m.lock(userID)
	defer s.mu.Unlock()

	p, expired := m.current(userID, s)
	if p == nil {
		if expired {
			return Transition{State: StateExpired}, nutrilog.ErrNoPendingConfirmation
		}
		return Transition{State: StateIdle}, nutrilog.ErrNoPendingConfirmation
	}

	day := nutrilog.Day(m.now(), m.loc)
	ids, err := m.store.PersistEntries(ctx, day, p.Entries)
	if err != nil {
		span.SetStatus(codes.Error, "persist failed")
		span.RecordError(err)
		slog.Error("CONFIRM: Failed to persist entries", "user", userID, "error", err)
		return Transition{State: StatePending, Entries: p.Entries, ExpiresAt: p.ExpiresAt}, fmt.Errorf("persist entries: %w", err)
	}

	s.pending = nil
	span.SetAttributes(attribute.Int("entries", len(ids)))
	slog.Info("CONFIRM: Entries confirmed", "user", userID, "entries", len(ids), "date", day.Format(time.DateOnly))
	return Transition{State: StateConfirmed, Entries: p.Entries, IDs: ids, Date: day}, nil
}

// Cancel discards the pending set.
func (m *Manager) Cancel(ctx context.Context, userID string) (Transition, error) {
	s := m.lock(userID)
	defer s.mu.Unlock()

	p, expired := m.current(userID, s)
	if p == nil {
		if expired {
			return Transition{State: StateExpired}, nutrilog.ErrNoPendingConfirmation
		}
		return Transition{State: StateIdle}, nutrilog.ErrNoPendingConfirmation
	}

	s.pending = nil
	slog.Info("CONFIRM: Entries cancelled", "user", userID, "entries", len(p.Entries))
	return Transition{State: StateCancelled, Entries: p.Entries}, nil
}

// Status reports the user's current state without changing it, except that
// an elapsed pending set is discarded and reported as expired.
func (m *Manager) Status(userID string) Transition {
	s := m.lock(userID)
	defer s.mu.Unlock()

	p, expired := m.current(userID, s)
	switch {
	case p != nil:
		return Transition{State: StatePending, Entries: p.Entries, ExpiresAt: p.ExpiresAt}
	case expired:
		return Transition{State: StateExpired}
	default:
		return Transition{State: StateIdle}
	}
}

// AdjustQuantity rescales one pending entry to a new quantity, as when the
// user says how many units of a scanned product they ate. The deadline is not
// restarted.
func (m *Manager) AdjustQuantity(ctx context.Context, userID string, index int, quantity float64) (Transition, error) {
	s := m.lock(userID)
	defer s.mu.Unlock()

	p, expired := m.current(userID, s)
	if p == nil {
		if expired {
			return Transition{State: StateExpired}, nutrilog.ErrNoPendingConfirmation
		}
		return Transition{State: StateIdle}, nutrilog.ErrNoPendingConfirmation
	}
	if index < 0 || index >= len(p.Entries) {
		return Transition{State: StatePending, Entries: p.Entries, ExpiresAt: p.ExpiresAt},
			&nutrilog.ValidationError{Field: "index", Reason: fmt.Sprintf("no pending entry %d", index)}
	}

	adjusted, err := p.Entries[index].WithQuantity(quantity)
	if err != nil {
		return Transition{State: StatePending, Entries: p.Entries, ExpiresAt: p.ExpiresAt}, err
	}

	entries := append([]nutrilog.ResolvedEntry(nil), p.Entries...)
	entries[index] = adjusted
	p.Entries = entries

	slog.Info("CONFIRM: Adjusted pending quantity", "user", userID, "index", index, "quantity", quantity)
	return Transition{State: StatePending, Entries: p.Entries, ExpiresAt: p.ExpiresAt}, nil
}
