package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Manager tracks live sessions by run id. At most one session per run; a
// session exists only between run start and run end.
type Manager struct {
	provider StrategyProvider
	outcomes OutcomeQueue
	loader   PreferenceLoader
	cfg      Config
	logger   zerolog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

// NewManager wires the session manager
func NewManager(logger zerolog.Logger, provider StrategyProvider, outcomes OutcomeQueue, loader PreferenceLoader, cfg Config) *Manager {
	return &Manager{
		provider: provider,
		outcomes: outcomes,
		loader:   loader,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// StartRun creates and arms a session for the run
func (m *Manager) StartRun(ctx context.Context, userID, runID uuid.UUID, settings Settings) (*Session, error) {
	m.mu.Lock()
	if _, exists := m.sessions[runID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("scheduler: run %s already has a session", runID)
	}
	m.mu.Unlock()

	sess, err := NewSession(ctx, m.logger, m.provider, m.outcomes, m.loader, userID, runID, settings, m.cfg)
	if err != nil {
		return nil, fmt.Errorf("scheduler: start run: %w", err)
	}

	m.mu.Lock()
	m.sessions[runID] = sess
	m.mu.Unlock()
	return sess, nil
}

// Get returns the live session for a run
func (m *Manager) Get(runID uuid.UUID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[runID]
	return sess, ok
}

// EndRun discards the run's session after stopping it
func (m *Manager) EndRun(runID uuid.UUID) {
	m.mu.Lock()
	sess, ok := m.sessions[runID]
	delete(m.sessions, runID)
	m.mu.Unlock()
	if ok {
		sess.Stop()
	}
}
