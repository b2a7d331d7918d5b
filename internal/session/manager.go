package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/time/rate"

	"insightdash/internal/entities"
)

// ErrNoSession marks operations against a phone with no open session.
var ErrNoSession = errors.New("no open session")

// Stream is one live event-stream connection.
type Stream interface {
	Read() ([]byte, error)
	Close() error
}

// DialFunc opens the event stream. It is called once per Open so a fresh
// connection backs every conversation.
type DialFunc func(ctx context.Context) (Stream, error)

// Manager owns the single active conversation and its event stream.
// Opening a conversation supersedes the previous one: its session is
// closed and its stream torn down before the new one starts, so stale
// events can never land in the wrong transcript.
type Manager struct {
	gw   Gateway
	dial DialFunc

	sendRate  rate.Limit
	sendBurst int

	observe func(eventType string)

	mu       sync.Mutex
	active   *Session
	stream   Stream
	limiters map[string]*rate.Limiter
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSendRate sets the per-conversation outgoing message rate limit.
func WithSendRate(r rate.Limit, burst int) ManagerOption {
	return func(m *Manager) {
		m.sendRate = r
		m.sendBurst = burst
	}
}

// WithEventObserver installs a hook called with each parsed event type.
func WithEventObserver(fn func(eventType string)) ManagerOption {
	return func(m *Manager) { m.observe = fn }
}

func NewManager(gw Gateway, dial DialFunc, opts ...ManagerOption) *Manager {
	m := &Manager{
		gw:        gw,
		dial:      dial,
		sendRate:  rate.Every(0),
		sendBurst: 0,
		limiters:  map[string]*rate.Limiter{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// limiterFor returns the conversation's limiter, creating it on first use.
// Limiters persist across reopen so closing a chat does not reset the
// allowance. A zero burst disables limiting.
func (m *Manager) limiterFor(phone string) *rate.Limiter {
	if m.sendBurst <= 0 {
		return nil
	}
	if lim, ok := m.limiters[phone]; ok {
		return lim
	}
	lim := rate.NewLimiter(m.sendRate, m.sendBurst)
	m.limiters[phone] = lim
	return lim
}

// Open starts a conversation with the phone number: it supersedes any
// previous session, dials the event stream and loads history. The returned
// session is live even when the stream dial fails; it just stays
// disconnected from live events.
func (m *Manager) Open(ctx context.Context, sc entities.SessionContext, phone string) (*Session, error) {
	m.mu.Lock()
	if m.active != nil {
		m.active.close()
	}
	if m.stream != nil {
		m.stream.Close()
		m.stream = nil
	}

	s := newSession(phone, sc, m.gw, m.limiterFor(phone))
	m.active = s

	stream, err := m.dial(ctx)
	if err != nil {
		log.Printf("[SESSION] event stream dial for %s failed: %v", phone, err)
		s.markDisconnected()
	} else {
		m.stream = stream
		s.setConnected()
		go m.readLoop(stream, s)
	}
	m.mu.Unlock()

	if err := s.loadHistory(ctx); err != nil {
		return s, err
	}
	return s, nil
}

// Get returns the open session for the phone number.
func (m *Manager) Get(phone string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.phone != phone {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, phone)
	}
	return m.active, nil
}

// Send routes a message through the open session for the phone number.
func (m *Manager) Send(ctx context.Context, phone, text string) (entities.ChatMessage, error) {
	s, err := m.Get(phone)
	if err != nil {
		return entities.ChatMessage{}, err
	}
	return s.Send(ctx, text)
}

// Close tears down the conversation: the session stops accepting mutations
// and the stream is closed so its read loop exits.
func (m *Manager) Close(phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.phone != phone {
		return fmt.Errorf("%w: %s", ErrNoSession, phone)
	}
	m.active.close()
	m.active = nil
	if m.stream != nil {
		m.stream.Close()
		m.stream = nil
	}
	return nil
}

// Shutdown closes whatever conversation is open. Used on process exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		m.active.close()
		m.active = nil
	}
	if m.stream != nil {
		m.stream.Close()
		m.stream = nil
	}
}

// readLoop pumps stream payloads into the session it was started for. It
// never touches m.active: a superseded session still receives its late
// events, and the closed flag discards them. A dead stream demotes the
// session to disconnected; there is no reconnect.
func (m *Manager) readLoop(stream Stream, s *Session) {
	for {
		data, err := stream.Read()
		if err != nil {
			log.Printf("[SESSION] event stream for %s closed: %v", s.phone, err)
			s.markDisconnected()
			return
		}
		ev := ParseEvent(data)
		if m.observe != nil {
			m.observe(ev.eventType())
		}
		s.applyEvent(ev)
	}
}
