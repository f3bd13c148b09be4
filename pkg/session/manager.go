package session

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arnavshah/weekly-scheduler-go/pkg/scheduler"
)

// Manager runs schedule operations against stored sessions. Operations on
// the same session are serialised; different sessions proceed independently.
type Manager struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock is dropped from Manager.locks once nobody holds or waits on it,
// so the map only tracks sessions with operations in flight.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager returns a Manager backed by store.
func NewManager(store Store, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger,
		now:    time.Now,
		locks:  make(map[string]*sessionLock),
	}
}

func (m *Manager) lock(id string) func() {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sessionLock{}
		m.locks[id] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, id)
		}
		m.mu.Unlock()
	}
}

// Create solves model and stores the result as a new session owned by owner.
// rng may be nil.
func (m *Manager) Create(ctx context.Context, owner string, model *scheduler.AvailabilityModel, rng *rand.Rand) (*Session, error) {
	now := m.now()
	s := &Session{
		ID:        uuid.New().String(),
		Owner:     owner,
		CreatedAt: now,
		UpdatedAt: now,
		State:     scheduler.Solve(model, rng),
	}
	if err := m.store.Put(ctx, s); err != nil {
		return nil, err
	}

	m.logger.Info("schedule solved",
		zap.String("session_id", s.ID),
		zap.Int("employees", len(model.Employees())),
		zap.Int("shifts", len(model.Shifts())),
		zap.Int("uncovered", len(s.State.Uncovered())),
	)
	return s, nil
}

// View calls fn with the session while holding its lock. fn must not keep
// references to the session after it returns.
func (m *Manager) View(ctx context.Context, id string, fn func(*Session) error) error {
	unlock := m.lock(id)
	defer unlock()

	s, err := m.load(ctx, id)
	if err != nil {
		return err
	}
	return fn(s)
}

// Swap applies scheduler.Swap to the session's schedule. A rejected swap is
// not persisted since it changes nothing.
func (m *Manager) Swap(ctx context.Context, id, a, b, shift string) (bool, error) {
	unlock := m.lock(id)
	defer unlock()

	s, err := m.load(ctx, id)
	if err != nil {
		return false, err
	}

	ok, err := scheduler.Swap(s.State, a, b, shift)
	if err != nil || !ok {
		m.logger.Debug("swap rejected",
			zap.String("session_id", id),
			zap.String("shift", shift),
			zap.Error(err),
		)
		return false, err
	}

	s.UpdatedAt = m.now()
	if err := m.store.Put(ctx, s); err != nil {
		return false, err
	}
	return true, nil
}

// Reset restores the session's schedule to its post-solve snapshot.
func (m *Manager) Reset(ctx context.Context, id string) error {
	unlock := m.lock(id)
	defer unlock()

	s, err := m.load(ctx, id)
	if err != nil {
		return err
	}

	s.State.Reset()
	s.UpdatedAt = m.now()
	return m.store.Put(ctx, s)
}

// Export returns the session's current assignment table.
func (m *Manager) Export(ctx context.Context, id string) (scheduler.Table, error) {
	var t scheduler.Table
	err := m.View(ctx, id, func(s *Session) error {
		t = s.State.Export()
		return nil
	})
	return t, err
}

// Delete removes the session.
func (m *Manager) Delete(ctx context.Context, id string) error {
	unlock := m.lock(id)
	defer unlock()

	return m.store.Delete(ctx, id)
}

func (m *Manager) load(ctx context.Context, id string) (*Session, error) {
	return m.store.Get(ctx, id)
}
