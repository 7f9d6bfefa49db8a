package lobby

import (
	"sync"
	"time"

	"github.com/clockfield/chesshall/backend/internal/fault"
	"go.uber.org/zap"
)

// Invite is a pending request from one user to another to start a game.
// Invites live only in memory and are lost on restart; that is deliberate.
type Invite struct {
	ID         int64
	FromUserID int64
	ToUserID   int64
	CreatedAt  time.Time
}

// onlineView is the slice of Presence the invite registry needs.
type onlineView interface {
	Online(userID int64) (UserLite, bool)
}

// InviteRegistry holds pending invitations keyed by a strictly increasing ID.
// Each invite is consumed exactly once: the first valid reply removes it, so
// a racing duplicate reply always observes an invalid invitation.
type InviteRegistry struct {
	mu      sync.Mutex
	nextID  int64
	invites map[int64]Invite
	online  onlineView
	clock   func() time.Time
	logger  *zap.Logger
}

// NewInviteRegistry constructs an empty registry backed by the given
// presence view.
func NewInviteRegistry(online onlineView, clock func() time.Time, logger *zap.Logger) *InviteRegistry {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InviteRegistry{
		invites: make(map[int64]Invite),
		online:  online,
		clock:   clock,
		logger:  logger,
	}
}

// Create registers a new invite and returns its ID. Self-invites are
// rejected, as are invites to users with no live session; an invite to an
// offline recipient fails fast rather than queueing. Two invites between the
// same pair of users may coexist.
func (r *InviteRegistry) Create(fromUserID, toUserID int64) (int64, error) {
	if fromUserID == toUserID {
		return 0, fault.New(fault.KindInvalidArgument, "cannot invite yourself")
	}
	if _, ok := r.online.Online(toUserID); !ok {
		return 0, fault.New(fault.KindInvalidState, "recipient offline")
	}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.invites[id] = Invite{
		ID:         id,
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		CreatedAt:  r.clock(),
	}
	r.mu.Unlock()

	r.logger.Info("invite created",
		zap.Int64("invite_id", id),
		zap.Int64("from", fromUserID),
		zap.Int64("to", toUserID))
	return id, nil
}

// Reply consumes the invite and returns it. The lookup, recipient check and
// removal happen under one lock so the invite is removed before any caller
// side effect runs. Unknown or already-consumed IDs fail as not found; a
// reply from anyone but the recipient (the sender included) is forbidden and
// leaves the invite consumable by its rightful recipient.
func (r *InviteRegistry) Reply(inviteID, replyingUserID int64) (Invite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	invite, ok := r.invites[inviteID]
	if !ok {
		return Invite{}, fault.New(fault.KindNotFound, "invalid invitation")
	}
	if invite.ToUserID != replyingUserID {
		return Invite{}, fault.New(fault.KindForbidden, "not the invite recipient")
	}
	delete(r.invites, inviteID)
	return invite, nil
}

// Pending reports how many invitations are currently unresolved.
func (r *InviteRegistry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.invites)
}
