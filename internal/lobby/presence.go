package lobby

import (
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// Presence tracks which users currently hold at least one live transport
// session. A user stays in the online set for as long as any of their
// sessions (multi-tab, multi-device) is connected.
type Presence struct {
	mu       sync.RWMutex
	sessions map[string]int64   // sessionID -> userID
	online   map[int64]UserLite // userID -> profile, present iff >=1 session
	logger   *zap.Logger
}

// NewPresence constructs an empty presence tracker.
func NewPresence(logger *zap.Logger) *Presence {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Presence{
		sessions: make(map[string]int64),
		online:   make(map[int64]UserLite),
		logger:   logger,
	}
}

// Connect registers a session for the user. Connecting the same session twice
// simply overwrites the mapping.
func (p *Presence) Connect(sessionID string, user UserLite) {
	p.mu.Lock()
	p.sessions[sessionID] = user.ID
	p.online[user.ID] = user
	total := len(p.online)
	p.mu.Unlock()

	p.logger.Info("online +1",
		zap.Int64("user_id", user.ID),
		zap.String("session", sessionID),
		zap.Int("total", total))
}

// Disconnect removes the session mapping. The user leaves the online set only
// when no other session still maps to them. An unknown session is a no-op;
// disconnects may arrive out of order or twice and must never fail.
func (p *Presence) Disconnect(sessionID string) {
	p.mu.Lock()
	userID, known := p.sessions[sessionID]
	if !known {
		p.mu.Unlock()
		p.logger.Warn("disconnect for unknown session", zap.String("session", sessionID))
		return
	}
	delete(p.sessions, sessionID)

	remaining := false
	for _, mapped := range p.sessions {
		if mapped == userID {
			remaining = true
			break
		}
	}
	if !remaining {
		delete(p.online, userID)
	}
	total := len(p.online)
	p.mu.Unlock()

	p.logger.Info("online -1",
		zap.Int64("user_id", userID),
		zap.String("session", sessionID),
		zap.Int("total", total))
}

// Online returns the profile of an online user.
func (p *Presence) Online(userID int64) (UserLite, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	user, ok := p.online[userID]
	return user, ok
}

// Snapshot returns all online users ordered by display name, ties broken by
// user ID so snapshots stay deterministic.
func (p *Presence) Snapshot() []UserLite {
	p.mu.RLock()
	users := make([]UserLite, 0, len(p.online))
	for _, user := range p.online {
		users = append(users, user)
	}
	p.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool {
		if users[i].DisplayName != users[j].DisplayName {
			return users[i].DisplayName < users[j].DisplayName
		}
		return users[i].ID < users[j].ID
	})
	return users
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
