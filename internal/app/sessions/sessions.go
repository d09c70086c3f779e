/*
Package sessions implements the in-memory session registry.

A session associates an opaque token with a user id, the connection the user
logged in from, and the chat-mode hints used to decide push delivery. The
registry enforces single login per user and at most one session per
connection, and expires sessions after an idle timeout.
*/
package sessions

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"linechat/internal/pkg/errs"
	"linechat/internal/pkg/logx"
	"linechat/internal/pkg/randx"
)

// DefaultTimeout is the idle timeout applied when the configured value is
// zero or negative.
const DefaultTimeout = 3600 * time.Second

// tokenAttempts bounds the best-effort token regeneration on collision.
const tokenAttempts = 10

// Conn is the handle a session keeps on its connection. It is a weak
// reference: the connection may become invalid at any moment, and a push on
// a stale handle fails silently.
type Conn interface {
	// Push enqueues one complete protocol frame for delivery.
	// It reports whether the frame was accepted.
	Push(frame string) bool
}

// session is one live slot in the registry.
type session struct {
	token         string
	userID        int
	conn          Conn
	createdAt     time.Time
	lastActivity  time.Time
	chatPartnerID int
	chatGroupID   int
}

// Registry is the token-keyed session table. All operations serialize under
// a single mutex; expired sessions are reaped lazily on every operation.
type Registry struct {
	mu       sync.Mutex
	timeout  time.Duration
	sessions map[string]*session
	logger   zerolog.Logger
}

// NewRegistry constructs a Registry with the given idle timeout.
// A timeout of zero or less selects DefaultTimeout.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Registry{
		timeout:  timeout,
		sessions: make(map[string]*session),
		logger:   logx.Component("sessions"),
	}
}

// reapExpiredLocked drops every session idle past the timeout.
// Caller must hold r.mu.
func (r *Registry) reapExpiredLocked() {
	now := time.Now()
	for token, s := range r.sessions {
		if now.Sub(s.lastActivity) >= r.timeout {
			delete(r.sessions, token)
		}
	}
}

// Create allocates a session for userID bound to conn and returns its token.
// Any session already bound to the same connection is expired first; a live
// session for the same user on another connection rejects the login.
func (r *Registry) Create(userID int, conn Conn) (string, *errs.CustomError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reapExpiredLocked()

	// One session per connection: a re-login on the same connection
	// replaces the previous session.
	for token, s := range r.sessions {
		if s.conn == conn {
			delete(r.sessions, token)
		}
	}

	// Single-login policy across connections.
	for _, s := range r.sessions {
		if s.userID == userID {
			return "", errs.New(errs.ErrAlreadyLoggedIn)
		}
	}

	var token string
	for attempt := 0; attempt < tokenAttempts; attempt++ {
		candidate, err := randx.SessionToken()
		if err != nil {
			r.logger.Error().Err(err).Msg("Failed to generate session token")
			return "", errs.New(errs.ErrServer)
		}
		if _, dup := r.sessions[candidate]; !dup {
			token = candidate
			break
		}
	}
	if token == "" {
		return "", errs.New(errs.ErrServer)
	}

	now := time.Now()
	r.sessions[token] = &session{
		token:        token,
		userID:       userID,
		conn:         conn,
		createdAt:    now,
		lastActivity: now,
	}

	return token, nil
}

// Validate resolves token to its user id and refreshes the idle clock.
// Unknown and expired tokens both surface as invalid; an expired slot is
// evicted on the spot.
func (r *Registry) Validate(token string) (int, *errs.CustomError) {
	if token == "" {
		return 0, errs.New(errs.ErrInvalidToken)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.reapExpiredLocked()

	s, ok := r.sessions[token]
	if !ok {
		return 0, errs.New(errs.ErrInvalidToken)
	}

	now := time.Now()
	if now.Sub(s.lastActivity) >= r.timeout {
		delete(r.sessions, token)
		return 0, errs.New(errs.ErrInvalidToken)
	}

	s.lastActivity = now
	return s.userID, nil
}

// Destroy removes the session for token. It reports whether one existed.
func (r *Registry) Destroy(token string) bool {
	if token == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[token]; !ok {
		return false
	}
	delete(r.sessions, token)
	return true
}

// RemoveByConn invalidates every session bound to conn. Called when a worker
// observes end-of-stream or a transport error.
func (r *Registry) RemoveByConn(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for token, s := range r.sessions {
		if s.conn == conn {
			delete(r.sessions, token)
		}
	}
}

// findByUserLocked returns the live session for userID, reaping first.
// Caller must hold r.mu.
func (r *Registry) findByUserLocked(userID int) *session {
	r.reapExpiredLocked()
	for _, s := range r.sessions {
		if s.userID == userID {
			return s
		}
	}
	return nil
}

// IsOnline reports whether userID has a live session.
func (r *Registry) IsOnline(userID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findByUserLocked(userID) != nil
}

// ConnOf returns the connection handle of userID's session, or nil.
func (r *Registry) ConnOf(userID int) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s := r.findByUserLocked(userID); s != nil {
		return s.conn
	}
	return nil
}

// SetChatPartner records that userID is viewing the 1:1 conversation with
// partnerID (0 clears the hint).
func (r *Registry) SetChatPartner(userID, partnerID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s := r.findByUserLocked(userID); s != nil {
		s.chatPartnerID = partnerID
	}
}

// ChatPartnerOf returns the chat partner hint for userID (0 = none).
func (r *Registry) ChatPartnerOf(userID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s := r.findByUserLocked(userID); s != nil {
		return s.chatPartnerID
	}
	return 0
}

// IsChattingWith reports whether userID is currently viewing the 1:1
// conversation with partnerID.
func (r *Registry) IsChattingWith(userID, partnerID int) bool {
	return partnerID != 0 && r.ChatPartnerOf(userID) == partnerID
}

// SetChatGroup records that userID is viewing groupID's conversation
// (0 clears the hint).
func (r *Registry) SetChatGroup(userID, groupID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s := r.findByUserLocked(userID); s != nil {
		s.chatGroupID = groupID
	}
}

// ChatGroupOf returns the group chat hint for userID (0 = none).
func (r *Registry) ChatGroupOf(userID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s := r.findByUserLocked(userID); s != nil {
		return s.chatGroupID
	}
	return 0
}

// IsInGroupChat reports whether userID is currently viewing groupID's
// conversation.
func (r *Registry) IsInGroupChat(userID, groupID int) bool {
	return groupID != 0 && r.ChatGroupOf(userID) == groupID
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reapExpiredLocked()
	return len(r.sessions)
}

// OnlineUserIDs returns the ids of every user with a live session.
func (r *Registry) OnlineUserIDs() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reapExpiredLocked()
	ids := make([]int, 0, len(r.sessions))
	for _, s := range r.sessions {
		ids = append(ids, s.userID)
	}
	return ids
}
