package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/jakopako/flowcheck/internal/browser"
	"github.com/jakopako/flowcheck/internal/log"
	"github.com/jakopako/flowcheck/internal/storage"
)

// State is the lifecycle state of the Manager.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateClosing State = "closing"
)

// DriverFactory opens a new browser for a session.
type DriverFactory func(ctx context.Context) (browser.Driver, error)

// Manager owns the single capture session of the process. Starting a
// session while another one runs tears the old one down first.
type Manager struct {
	mu        sync.Mutex
	store     *storage.Store
	newDriver DriverFactory
	state     State
	active    *Session
}

func NewManager(store *storage.Store, newDriver DriverFactory) *Manager {
	return &Manager{
		store:     store,
		newDriver: newDriver,
		state:     StateIdle,
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start opens a browser and starts a session capturing into
// opts.Section. An existing section is continued.
func (m *Manager) Start(ctx context.Context, opts Options) (*Session, error) {
	if opts.Section == "" {
		return nil, fmt.Errorf("a section name is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	logger := log.LoggerFromContext(ctx)
	if m.active != nil {
		logger.Warn(fmt.Sprintf("tearing down running session %s of section %s", m.active.ID, m.active.section.Name))
		m.state = StateClosing
		m.active.teardown()
		m.active = nil
		m.state = StateIdle
	}
	driver, err := m.newDriver(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser: %w", err)
	}
	s, err := newSession(ctx, m.store.Section(opts.Section), driver, opts)
	if err != nil {
		driver.Close()
		return nil, err
	}
	m.active = s
	m.state = StateRunning
	logger.Info(fmt.Sprintf("started capture session %s for section %s", s.ID, opts.Section))
	return s, nil
}

// Active returns the running session.
func (m *Manager) Active() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, ErrNoActiveSession
	}
	return m.active, nil
}

// Stop finalizes the running session and closes its browser.
func (m *Manager) Stop(ctx context.Context) (*storage.SessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, ErrNoActiveSession
	}
	m.state = StateClosing
	s := m.active
	m.active = nil
	info, err := s.finish(ctx)
	m.state = StateIdle
	if err != nil {
		return nil, err
	}
	log.LoggerFromContext(ctx).Info(fmt.Sprintf("stopped capture session %s: %d screens, %d actions, %d apis", info.ID, info.ScreenCount, info.ActionCount, info.APICount))
	return info, nil
}
