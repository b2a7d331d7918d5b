package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"insightdash/internal/entities"
)

var (
	// ErrEmptyMessage rejects sends with no text.
	ErrEmptyMessage = errors.New("message text is empty")
	// ErrSessionClosed marks operations against a superseded or torn-down session.
	ErrSessionClosed = errors.New("session closed")
	// ErrThrottled marks a send rejected by the per-conversation rate limit.
	ErrThrottled = errors.New("send rate limit exceeded")
)

// Connection states for a messaging session.
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
)

// Gateway is the slice of the upstream client a session needs.
type Gateway interface {
	History(ctx context.Context, sc entities.SessionContext, phone string) ([]entities.ChatMessage, error)
	Send(ctx context.Context, sc entities.SessionContext, toNumber, message string) (string, error)
}

// Session is one live conversation with a phone number. The transcript is
// append-only: events and sends only ever add entries or update delivery
// status in place, so no message disappears while the operator is looking
// at it.
//
// The closed flag is the liveness guard. Opening a new session or tearing
// this one down sets it, after which every mutation is a no-op. This keeps
// a slow history fetch or a late stream event from writing into a
// conversation the operator already left.
type Session struct {
	phone   string
	sc      entities.SessionContext
	gw      Gateway
	limiter *rate.Limiter

	mu            sync.Mutex
	state         string
	messages      []entities.ChatMessage
	pending       []entities.ChatMessage
	historyLoaded bool
	closed        bool
}

func newSession(phone string, sc entities.SessionContext, gw Gateway, limiter *rate.Limiter) *Session {
	return &Session{
		phone:   phone,
		sc:      sc,
		gw:      gw,
		limiter: limiter,
		state:   StateConnecting,
	}
}

// Phone returns the conversation's phone number.
func (s *Session) Phone() string { return s.phone }

// State reports the connection state.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a snapshot of the transcript, oldest first. Messages
// buffered before history resolved are shown after the loaded history.
func (s *Session) Messages() []entities.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entities.ChatMessage, 0, len(s.messages)+len(s.pending))
	out = append(out, s.messages...)
	out = append(out, s.pending...)
	return out
}

// loadHistory fetches the transcript and merges it under any messages that
// arrived while the fetch was in flight. A session closed mid-fetch drops
// the result on the floor. Connection state is the stream's business, not
// history's; a failed fetch on a live stream stays connected.
func (s *Session) loadHistory(ctx context.Context) error {
	history, err := s.gw.History(ctx, s.sc, s.phone)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if err != nil {
		return fmt.Errorf("load history for %s: %w", s.phone, err)
	}
	s.messages = append(history, s.pending...)
	s.pending = nil
	s.historyLoaded = true
	return nil
}

// setConnected promotes the session once its event stream is open.
func (s *Session) setConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.state = StateConnected
}

// markDisconnected records a dead or never-opened stream. Unlike close the
// session stays usable: the transcript is intact and sends still go out.
func (s *Session) markDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.state = StateDisconnected
}

// Send appends the message optimistically under a temporary id, then calls
// the upstream and rewrites the id once the server confirms. On failure the
// entry stays visible with status "failed". The transcript length never
// shrinks on either path.
func (s *Session) Send(ctx context.Context, text string) (entities.ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return entities.ChatMessage{}, ErrEmptyMessage
	}
	if s.limiter != nil && !s.limiter.Allow() {
		return entities.ChatMessage{}, ErrThrottled
	}

	tempID := "temp-" + uuid.NewString()
	msg := entities.ChatMessage{
		ID:        tempID,
		Text:      text,
		Direction: entities.DirectionOutgoing,
		Timestamp: float64(time.Now().Unix()),
		Status:    entities.StatusSent,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return entities.ChatMessage{}, ErrSessionClosed
	}
	s.append(msg)
	s.mu.Unlock()

	serverID, err := s.gw.Send(ctx, s.sc, s.phone, text)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return msg, ErrSessionClosed
	}
	if err != nil {
		s.setStatus(tempID, entities.StatusFailed, 0)
		msg.Status = entities.StatusFailed
		return msg, fmt.Errorf("send to %s: %w", s.phone, err)
	}
	if serverID != "" {
		s.rewriteID(tempID, serverID)
		msg.ID = serverID
	}
	return msg, nil
}

// applyEvent feeds one parsed stream event into the transcript. Events
// against a closed session are dropped.
func (s *Session) applyEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	switch e := ev.(type) {
	case InboundMessage:
		s.append(entities.ChatMessage{
			Text:      e.Text,
			Direction: entities.DirectionIncoming,
			Timestamp: e.Timestamp,
			Status:    entities.StatusDelivered,
		})
	case StatusUpdate:
		// A status for a message we never saw is dropped without a trace.
		s.setStatus(e.ID, e.Status, e.Timestamp)
	case Unrecognized:
		s.append(entities.ChatMessage{
			Text:      "[unrecognized webhook event]",
			Direction: entities.DirectionSystem,
			Timestamp: float64(time.Now().Unix()),
		})
	}
}

// append routes a message into the transcript or, before history has
// resolved, into the pending buffer. Callers hold the lock.
func (s *Session) append(msg entities.ChatMessage) {
	if s.historyLoaded {
		s.messages = append(s.messages, msg)
		return
	}
	s.pending = append(s.pending, msg)
}

// setStatus rewrites the matched message's status and, when the event
// carried one, its timestamp. Callers hold the lock.
func (s *Session) setStatus(id, status string, ts float64) {
	update := func(m *entities.ChatMessage) {
		m.Status = status
		if ts != 0 {
			m.Timestamp = ts
		}
	}
	for i := range s.messages {
		if s.messages[i].ID == id {
			update(&s.messages[i])
			return
		}
	}
	for i := range s.pending {
		if s.pending[i].ID == id {
			update(&s.pending[i])
			return
		}
	}
}

func (s *Session) rewriteID(tempID, serverID string) {
	for i := range s.messages {
		if s.messages[i].ID == tempID {
			s.messages[i].ID = serverID
			return
		}
	}
	for i := range s.pending {
		if s.pending[i].ID == tempID {
			s.pending[i].ID = serverID
			return
		}
	}
}

// close marks the session dead. Every later mutation becomes a no-op.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.state = StateDisconnected
}
