package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/command"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/pool"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/response"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/storage"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionLimitReached = errors.New("session limit reached")
	ErrSessionNameConflict = errors.New("session name already exists")
	ErrUnknownEndpoint     = errors.New("unknown remote endpoint")
)

// DefaultMaxSessions bounds the managed sessions when no limit is set.
const DefaultMaxSessions = 50

// Store persists session records. *storage.SessionRepository implements it.
type Store interface {
	SaveSession(ctx context.Context, rec *storage.SessionRecord) error
	GetSession(ctx context.Context, handle string) (*storage.SessionRecord, error)
	DeleteSession(ctx context.Context, handle string) error
	UpdateLastActivity(ctx context.Context, handle string) error
	GetSessionByName(ctx context.Context, owner, name string) (string, error)
	CheckSessionNameExists(ctx context.Context, owner, name string) (bool, error)
	RenameSession(ctx context.Context, handle, owner, oldName, newName string) error
	ListOwnerSessions(ctx context.Context, owner string) ([]*storage.SessionRecord, error)
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Driver is the template for every driver. RemoteURL is filled from the
	// selected endpoint.
	Driver      Options
	MaxSessions int
	Balancer    *pool.LoadBalancer
	// Store is optional. Without it sessions live only in memory.
	Store Store
}

// Managed is a driver registered with a Manager under a local handle.
type Managed struct {
	Handle    string
	Owner     string
	CreatedAt time.Time
	Driver    *Driver

	endpoint *pool.Endpoint

	mu           sync.Mutex
	name         string
	lastActivity time.Time
}

// Name returns the session name.
func (s *Managed) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// LastActivity returns when the session was last used.
func (s *Managed) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Touch records activity.
func (s *Managed) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// IsExpired checks if the session has been inactive too long.
func (s *Managed) IsExpired(timeout time.Duration) bool {
	return time.Since(s.LastActivity()) > timeout
}

// Summary describes a session, loaded or only persisted.
type Summary struct {
	Handle          string
	Name            string
	Owner           string
	Endpoint        string
	RemoteSessionID string
	Dialect         string
	Status          string
	CreatedAt       time.Time
	LastActivity    time.Time
	Loaded          bool
}

// Summary returns a snapshot of the session.
func (s *Managed) Summary() Summary {
	coord := s.Driver.Session()
	return Summary{
		Handle:          s.Handle,
		Name:            s.Name(),
		Owner:           s.Owner,
		Endpoint:        s.Driver.RemoteURL(),
		RemoteSessionID: coord.SessionID(),
		Dialect:         coord.Dialect().String(),
		Status:          string(coord.Status()),
		CreatedAt:       s.CreatedAt,
		LastActivity:    s.LastActivity(),
		Loaded:          true,
	}
}

func (s *Managed) record() *storage.SessionRecord {
	sum := s.Summary()
	return &storage.SessionRecord{
		Handle:          sum.Handle,
		Name:            sum.Name,
		Owner:           sum.Owner,
		Endpoint:        sum.Endpoint,
		RemoteSessionID: sum.RemoteSessionID,
		Dialect:         sum.Dialect,
		Capabilities:    s.Driver.Session().Capabilities(),
		CreatedAt:       sum.CreatedAt,
		LastActivity:    sum.LastActivity,
		Status:          sum.Status,
	}
}

// CreateRequest describes a new managed session.
type CreateRequest struct {
	Owner        string
	Name         string
	Capabilities map[string]any
	// Endpoint pins the remote end; empty lets the balancer choose.
	Endpoint string
}

// Manager keeps every managed driver keyed by handle.
type Manager struct {
	cfg ManagerConfig

	mu       sync.RWMutex
	sessions map[string]*Managed
	pending  int
	// claimed holds names of sessions still being created, keyed by nameKey.
	claimed map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a new session manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Managed),
		claimed:  make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func generateHandle() string {
	return "sess_" + uuid.NewString()
}

// reserve claims a slot under the session limit. The caller must call
// unreserve once the session is registered or has failed.
func nameKey(owner, name string) string { return owner + "\x00" + name }

// reserve takes a creation slot and, when name is set, claims it for owner.
// Both checks happen under one lock so concurrent creates cannot pass them
// together.
func (m *Manager) reserve(owner, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions)+m.pending >= m.cfg.MaxSessions {
		return fmt.Errorf("%w: %d sessions (max %d)", ErrSessionLimitReached, len(m.sessions)+m.pending, m.cfg.MaxSessions)
	}
	if name != "" {
		if m.claimed[nameKey(owner, name)] || m.loadedNameLocked(owner, name) {
			return ErrSessionNameConflict
		}
		m.claimed[nameKey(owner, name)] = true
	}
	m.pending++
	return nil
}

func (m *Manager) unreserve(owner, name string) {
	m.mu.Lock()
	m.pending--
	if name != "" {
		delete(m.claimed, nameKey(owner, name))
	}
	m.mu.Unlock()
}

func (m *Manager) loadedNameLocked(owner, name string) bool {
	for _, s := range m.sessions {
		if s.Owner == owner && s.Name() == name {
			return true
		}
	}
	return false
}

func (m *Manager) nameTaken(ctx context.Context, owner, name string) (bool, error) {
	m.mu.RLock()
	taken := m.claimed[nameKey(owner, name)] || m.loadedNameLocked(owner, name)
	m.mu.RUnlock()
	if taken {
		return true, nil
	}

	if m.cfg.Store == nil || owner == "" {
		return false, nil
	}
	return m.cfg.Store.CheckSessionNameExists(ctx, owner, name)
}

func (m *Manager) selectEndpoint(pinned string) (*pool.Endpoint, error) {
	if m.cfg.Balancer == nil {
		return nil, pool.ErrNoHealthyEndpoints
	}
	if pinned != "" {
		e, ok := m.cfg.Balancer.Find(pinned)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEndpoint, pinned)
		}
		return e, nil
	}
	return m.cfg.Balancer.SelectEndpoint()
}

// Create starts a remote session on the least loaded endpoint and registers
// it.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Managed, error) {
	if err := m.reserve(req.Owner, req.Name); err != nil {
		return nil, err
	}
	defer m.unreserve(req.Owner, req.Name)

	if req.Name != "" && m.cfg.Store != nil && req.Owner != "" {
		taken, err := m.cfg.Store.CheckSessionNameExists(ctx, req.Owner, req.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to check session name: %w", err)
		}
		if taken {
			return nil, ErrSessionNameConflict
		}
	}

	endpoint, err := m.selectEndpoint(req.Endpoint)
	if err != nil {
		return nil, err
	}

	opts := m.cfg.Driver
	opts.RemoteURL = endpoint.URL()
	drv, err := New(ctx, opts, req.Capabilities)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	s := &Managed{
		Handle:       generateHandle(),
		Owner:        req.Owner,
		CreatedAt:    now,
		Driver:       drv,
		endpoint:     endpoint,
		name:         req.Name,
		lastActivity: now,
	}
	rec := s.record()
	rec.EnsureName()
	s.name = rec.Name

	if m.cfg.Store != nil {
		err := m.cfg.Store.SaveSession(ctx, rec)
		if errors.Is(err, storage.ErrNameTaken) {
			// Another process claimed the name after the check above.
			if qerr := drv.Quit(ctx); qerr != nil {
				slog.Warn("failed to quit session after name conflict", "handle", s.Handle, "error", qerr)
			}
			return nil, ErrSessionNameConflict
		}
		if err != nil {
			slog.Warn("failed to persist session to Redis", "handle", s.Handle, "error", err)
		}
	}

	m.register(s)

	slog.Info("session created",
		"handle", s.Handle,
		"session_name", s.Name(),
		"owner", s.Owner,
		"endpoint", endpoint.URL(),
		"session_id", drv.Session().SessionID())
	return s, nil
}

// register adds s unless its handle is already loaded, and returns the
// session that ends up registered.
func (m *Manager) register(s *Managed) *Managed {
	m.mu.Lock()
	if existing, ok := m.sessions[s.Handle]; ok {
		m.mu.Unlock()
		return existing
	}
	m.sessions[s.Handle] = s
	m.mu.Unlock()

	if s.endpoint != nil {
		s.endpoint.IncrementSessionCount()
	}
	return s
}

// Get returns a loaded session.
func (m *Manager) Get(handle string) (*Managed, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, handle)
	}
	return s, nil
}

// Resume returns a loaded session or restores a persisted one.
func (m *Manager) Resume(ctx context.Context, handle string) (*Managed, error) {
	if s, err := m.Get(handle); err == nil {
		s.Touch()
		m.touchStore(ctx, handle)
		slog.Info("resumed session from memory", "handle", handle)
		return s, nil
	}
	if m.cfg.Store == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, handle)
	}

	rec, err := m.cfg.Store.GetSession(ctx, handle)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, handle)
		}
		return nil, fmt.Errorf("failed to load session from Redis: %w", err)
	}

	s, err := m.restore(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	m.touchStore(ctx, handle)

	slog.Info("restored session from Redis",
		"handle", handle,
		"session_name", s.Name(),
		"session_id", rec.RemoteSessionID)
	return s, nil
}

// ResumeByName resumes the owner's session with the given name.
func (m *Manager) ResumeByName(ctx context.Context, owner, name string) (*Managed, error) {
	if name == "" {
		return nil, fmt.Errorf("session name is required")
	}

	m.mu.RLock()
	for _, s := range m.sessions {
		if s.Owner == owner && s.Name() == name {
			m.mu.RUnlock()
			return m.Resume(ctx, s.Handle)
		}
	}
	m.mu.RUnlock()

	if m.cfg.Store == nil || owner == "" {
		return nil, fmt.Errorf("%w: name %q", ErrSessionNotFound, name)
	}
	handle, err := m.cfg.Store.GetSessionByName(ctx, owner, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: name %q", ErrSessionNotFound, name)
		}
		return nil, err
	}
	return m.Resume(ctx, handle)
}

// restore rebuilds a driver for a persisted record.
func (m *Manager) restore(rec *storage.SessionRecord) (*Managed, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	dialect, err := command.ParseDialect(rec.Dialect)
	if err != nil {
		return nil, err
	}

	if err := m.reserve("", ""); err != nil {
		return nil, err
	}
	defer m.unreserve("", "")

	opts := m.cfg.Driver
	opts.RemoteURL = rec.Endpoint
	drv, err := Restore(opts, rec.RemoteSessionID, dialect, rec.Capabilities)
	if err != nil {
		return nil, err
	}

	s := &Managed{
		Handle:       rec.Handle,
		Owner:        rec.Owner,
		CreatedAt:    rec.CreatedAt,
		Driver:       drv,
		name:         rec.Name,
		lastActivity: time.Now(),
	}
	if m.cfg.Balancer != nil {
		if e, ok := m.cfg.Balancer.Find(rec.Endpoint); ok {
			s.endpoint = e
		}
	}

	if existing := m.register(s); existing != s {
		_ = drv.Detach(context.Background())
		return existing, nil
	}
	return s, nil
}

func (m *Manager) touchStore(ctx context.Context, handle string) {
	if m.cfg.Store == nil {
		return
	}
	if err := m.cfg.Store.UpdateLastActivity(ctx, handle); err != nil {
		slog.Warn("failed to update last activity", "handle", handle, "error", err)
	}
}

// Execute runs a named command on a session. Quit also unregisters it.
func (m *Manager) Execute(ctx context.Context, handle, name string, params map[string]any) (*response.Response, error) {
	if name == command.Quit {
		return nil, m.Destroy(ctx, handle)
	}

	s, err := m.Resume(ctx, handle)
	if err != nil {
		return nil, err
	}
	return s.Driver.Execute(ctx, name, params)
}

// Destroy quits the driver and forgets the session. The session is removed
// even when the remote quit fails.
func (m *Manager) Destroy(ctx context.Context, handle string) error {
	m.mu.Lock()
	s, ok := m.sessions[handle]
	delete(m.sessions, handle)
	m.mu.Unlock()

	if !ok {
		if m.cfg.Store == nil {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, handle)
		}
		loaded, err := m.Resume(ctx, handle)
		if err != nil {
			return err
		}
		return m.Destroy(ctx, loaded.Handle)
	}

	quitErr := s.Driver.Quit(ctx)
	if s.endpoint != nil {
		s.endpoint.DecrementSessionCount()
	}
	if m.cfg.Store != nil {
		if err := m.cfg.Store.DeleteSession(ctx, handle); err != nil {
			slog.Warn("failed to delete session from Redis", "handle", handle, "error", err)
		}
	}

	slog.Info("session destroyed",
		"handle", handle,
		"session_name", s.Name(),
		"owner", s.Owner)
	return quitErr
}

// Rename changes a session's name.
func (m *Manager) Rename(ctx context.Context, handle, newName string) error {
	if newName == "" {
		return fmt.Errorf("new name is required")
	}
	s, err := m.Get(handle)
	if err != nil {
		return err
	}
	taken, err := m.nameTaken(ctx, s.Owner, newName)
	if err != nil {
		return err
	}
	if taken {
		return ErrSessionNameConflict
	}

	oldName := s.Name()
	if m.cfg.Store != nil && s.Owner != "" {
		if err := m.cfg.Store.RenameSession(ctx, handle, s.Owner, oldName, newName); err != nil {
			if errors.Is(err, storage.ErrNameTaken) {
				return ErrSessionNameConflict
			}
			return fmt.Errorf("failed to rename session in Redis: %w", err)
		}
	}

	s.mu.Lock()
	s.name = newName
	s.mu.Unlock()

	slog.Info("session renamed",
		"handle", handle,
		"old_name", oldName,
		"new_name", newName)
	return nil
}

// List returns the loaded sessions, oldest first.
func (m *Manager) List() []*Managed {
	m.mu.RLock()
	sessions := make([]*Managed, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].Handle < sessions[j].Handle
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}

// ListOwner returns every session of owner, including persisted ones that
// are not loaded.
func (m *Manager) ListOwner(ctx context.Context, owner string) ([]Summary, error) {
	loaded := make(map[string]bool)
	var out []Summary
	for _, s := range m.List() {
		if s.Owner == owner {
			out = append(out, s.Summary())
			loaded[s.Handle] = true
		}
	}
	if m.cfg.Store == nil || owner == "" {
		return out, nil
	}

	records, err := m.cfg.Store.ListOwnerSessions(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list owner sessions: %w", err)
	}
	for _, rec := range records {
		if loaded[rec.Handle] {
			continue
		}
		out = append(out, Summary{
			Handle:          rec.Handle,
			Name:            rec.Name,
			Owner:           rec.Owner,
			Endpoint:        rec.Endpoint,
			RemoteSessionID: rec.RemoteSessionID,
			Dialect:         rec.Dialect,
			Status:          rec.Status,
			CreatedAt:       rec.CreatedAt,
			LastActivity:    rec.LastActivity,
		})
	}
	return out, nil
}

// Count returns the number of loaded sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StartCleanupWorker destroys sessions idle longer than timeout, checking
// every interval, until Close.
func (m *Manager) StartCleanupWorker(interval, timeout time.Duration) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		slog.Info("cleanup worker started",
			"check_interval", interval,
			"session_timeout", timeout)

		for {
			select {
			case <-m.ctx.Done():
				slog.Info("cleanup worker stopping")
				return
			case <-ticker.C:
				m.cleanupExpiredSessions(m.ctx, timeout)
			}
		}
	}()
}

// cleanupExpiredSessions collects expired handles under the read lock, then
// destroys each one.
func (m *Manager) cleanupExpiredSessions(ctx context.Context, timeout time.Duration) {
	m.mu.RLock()
	var expired []string
	for handle, s := range m.sessions {
		if s.IsExpired(timeout) {
			expired = append(expired, handle)
		}
	}
	m.mu.RUnlock()

	if len(expired) == 0 {
		return
	}
	slog.Info("cleaning up expired sessions",
		"count", len(expired),
		"timeout", timeout)

	for _, handle := range expired {
		if err := m.Destroy(ctx, handle); err != nil {
			slog.Warn("failed to destroy expired session",
				"handle", handle,
				"error", err)
		}
	}
}

// Close stops the cleanup worker and releases every driver. With a store,
// remote sessions stay open so they can be restored; without one they are
// quit.
func (m *Manager) Close(ctx context.Context) error {
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Managed)
	m.mu.Unlock()

	var errs []error
	for handle, s := range sessions {
		var err error
		if m.cfg.Store != nil {
			err = s.Driver.Detach(ctx)
		} else {
			err = s.Driver.Quit(ctx)
		}
		if s.endpoint != nil {
			s.endpoint.DecrementSessionCount()
		}
		if err != nil {
			slog.Warn("failed to release session", "handle", handle, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
