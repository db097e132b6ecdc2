package rehearsal

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/zhouzirui/date-rehearsal/backend/internal/model/chat"
	"github.com/zhouzirui/date-rehearsal/backend/internal/service/capture"
	chatsvc "github.com/zhouzirui/date-rehearsal/backend/internal/service/chat"
	"github.com/zhouzirui/date-rehearsal/backend/internal/service/scheduler"
)

var ErrSessionNotFound = errors.New("session not found")

// Config holds the timing and audio settings shared by all sessions.
type Config struct {
	PollInterval time.Duration
	SampleRate   int
	Channels     int
	LevelRefresh time.Duration
	// EndedRetention is how long an ended session stays readable before it is evicted.
	EndedRetention time.Duration
}

const defaultEndedRetention = 30 * time.Minute

// CreateOptions selects the avatar, mode and optional capture device of a new session.
type CreateOptions struct {
	AvatarID string
	Mode     chat.Mode
	Device   capture.Device
}

// Manager owns the running sessions.
type Manager struct {
	chats    *chatsvc.Service
	analyzer scheduler.Analyzer
	cfg      Config

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	sessions  map[string]*Session
	evictions map[string]*time.Timer
}

func NewManager(chats *chatsvc.Service, analyzer scheduler.Analyzer, cfg Config) *Manager {
	if cfg.EndedRetention <= 0 {
		cfg.EndedRetention = defaultEndedRetention
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		chats:     chats,
		analyzer:  analyzer,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		sessions:  make(map[string]*Session),
		evictions: make(map[string]*time.Timer),
	}
}

// Create starts a session. Scheduling is bound to the manager's lifetime rather than
// the caller's context, so a session outlives the request that created it.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*Session, error) {
	conversation, err := m.chats.CreateConversation(ctx, opts.AvatarID, opts.Mode)
	if err != nil {
		return nil, err
	}

	session := newSession(m.ctx, conversation, SessionOptions{
		Analyzer:     m.analyzer,
		PollInterval: m.cfg.PollInterval,
		Device:       opts.Device,
		SampleRate:   m.cfg.SampleRate,
		Channels:     m.cfg.Channels,
		LevelRefresh: m.cfg.LevelRefresh,
	})

	id := session.ID()
	session.onEnded = func() { m.scheduleEviction(id) }

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()

	return session, nil
}

// Remove tears down a session and forgets it.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	if timer, scheduled := m.evictions[id]; scheduled {
		timer.Stop()
		delete(m.evictions, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	session.Close()
	m.chats.Delete(context.Background(), id)
	return nil
}

func (m *Manager) scheduleEviction(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return
	}
	if _, scheduled := m.evictions[id]; scheduled {
		return
	}
	m.evictions[id] = time.AfterFunc(m.cfg.EndedRetention, func() {
		if err := m.Remove(id); err == nil {
			log.Printf("[rehearsal] evicted ended session %s", id)
		}
	})
}

// Get retrieves a session by identifier.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Close tears down every session.
func (m *Manager) Close() {
	m.cancel()

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	for id, timer := range m.evictions {
		timer.Stop()
		delete(m.evictions, id)
	}
	m.mu.Unlock()

	for id, session := range sessions {
		session.Close()
		m.chats.Delete(context.Background(), id)
	}
}
