package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/Veolinan/triage/internal/logging"
	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/ports"
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates session access, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store ports.SessionStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks (default 30s).
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new Session Manager with the given persistence store.
func NewManager(store ports.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: 30 * time.Second,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// Load retrieves an existing session from the store.
func (m *Manager) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	var s *domain.Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		s, err = m.store.Load(ctx, sessionID)
		return err
	})
	return s, err
}

// Create persists a new session. It fails if the ID is already taken.
func (m *Manager) Create(ctx context.Context, s *domain.Session) error {
	return m.WithLock(ctx, s.ID, func(ctx context.Context) error {
		_, err := m.store.Load(ctx, s.ID)
		if err == nil {
			return fmt.Errorf("%w: %s", domain.ErrSessionExists, s.ID)
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return fmt.Errorf("failed to check session existence: %w", err)
		}
		return m.store.Save(ctx, s)
	})
}

// Save persists the session.
func (m *Manager) Save(ctx context.Context, s *domain.Session) error {
	return m.WithLock(ctx, s.ID, func(ctx context.Context) error {
		return m.store.Save(ctx, s)
	})
}

// Delete removes the session from the store.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, sessionID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying session store.
func (m *Manager) Store() ports.SessionStore {
	return m.store
}

// Update runs a read-modify-write of the session under its lock. The session
// returned by fn is persisted when fn returns it, even alongside an error, so
// that error phases are recorded; a nil session leaves the store untouched.
func (m *Manager) Update(ctx context.Context, sessionID string, fn func(*domain.Session) (*domain.Session, error)) (*domain.Session, error) {
	var (
		out   *domain.Session
		fnErr error
	)
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		cur, err := m.store.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		next, err := fn(cur)
		fnErr = err
		if next == nil {
			out = cur
			return nil
		}
		out = next
		if next == cur && err != nil {
			return nil
		}
		return m.store.Save(ctx, next)
	})
	if err != nil {
		return out, err
	}
	return out, fnErr
}

// Fetch runs a slow operation (a partition load) without holding the lock,
// then commits its result only if the session was not re-targeted in the
// meantime. A stale result is discarded and ErrStaleLoad is returned along
// with the current stored session.
func (m *Manager) Fetch(ctx context.Context, sessionID string, fn func(context.Context, *domain.Session) (*domain.Session, error)) (*domain.Session, error) {
	snapshot, err := m.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	result, fnErr := fn(ctx, snapshot)
	if result == nil {
		return snapshot, fnErr
	}

	var out *domain.Session
	err = m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		cur, err := m.store.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		if cur.Generation != snapshot.Generation || cur.Partition != snapshot.Partition || cur.Phase != snapshot.Phase {
			m.logger.InfoContext(ctx, "discarding stale load",
				"session_id", sessionID,
				"loaded_generation", snapshot.Generation,
				"current_generation", cur.Generation)
			out = cur
			return domain.ErrStaleLoad
		}
		out = result
		return m.store.Save(ctx, result)
	})
	if err != nil {
		return out, err
	}
	return out, fnErr
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, "session:"+sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
