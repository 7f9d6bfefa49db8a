package lobby

import (
	"context"
	"errors"
	"time"

	"github.com/clockfield/chesshall/backend/internal/game"
	"go.uber.org/zap"
)

var (
	errMissingNotifier    = errors.New("lobby: notifier is required")
	errMissingGameService = errors.New("lobby: game service is required")
)

// Notifier abstracts the real-time transport. SendToTopic fans out to every
// subscriber of a topic; SendToUser delivers to all live sessions of one user.
// The lobby does not manage reconnection, heartbeats or wire framing.
type Notifier interface {
	SendToTopic(topic string, payload interface{})
	SendToUser(userID int64, queue string, payload interface{})
}

// ServiceConfig describes the dependencies of the lobby orchestrator.
type ServiceConfig struct {
	Games    *game.Service
	Notifier Notifier
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service ties presence, invitations and game sessions together and owns
// every outbound notification. Failed operations produce no notifications:
// the caller gets the error, the other party observes nothing.
type Service struct {
	presence *Presence
	invites  *InviteRegistry
	games    *game.Service
	notifier Notifier
	logger   *zap.Logger
}

// NewService constructs the lobby orchestrator.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Notifier == nil {
		return nil, errMissingNotifier
	}
	if cfg.Games == nil {
		return nil, errMissingGameService
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	presence := NewPresence(logger)
	return &Service{
		presence: presence,
		invites:  NewInviteRegistry(presence, cfg.Clock, logger),
		games:    cfg.Games,
		notifier: cfg.Notifier,
		logger:   logger,
	}, nil
}

// Presence exposes the tracker for read-only lookups by the transport layer.
func (s *Service) Presence() *Presence {
	return s.presence
}

// Connect registers a live session for the user and broadcasts the updated
// online snapshot.
func (s *Service) Connect(sessionID string, user UserLite) {
	s.presence.Connect(sessionID, user)
	s.BroadcastOnline()
}

// Disconnect drops a session and broadcasts the snapshot whether or not the
// online set changed. Unknown sessions are tolerated.
func (s *Service) Disconnect(sessionID string) {
	s.presence.Disconnect(sessionID)
	s.BroadcastOnline()
}

// BroadcastOnline pushes the current presence snapshot to the shared topic.
// Also invoked when a client subscribes to the topic or asks explicitly.
func (s *Service) BroadcastOnline() {
	users := s.presence.Snapshot()
	s.notifier.SendToTopic(TopicOnlineUsers, OnlineUsersPayload{Users: users})
	s.logger.Debug("broadcast online users", zap.Int("count", len(users)))
}

// SendInvite registers an invitation from the sender to toUserID and pushes
// an addressed notification to the recipient's invitations queue.
func (s *Service) SendInvite(from UserLite, toUserID int64) (int64, error) {
	inviteID, err := s.invites.Create(from.ID, toUserID)
	if err != nil {
		s.logger.Warn("invite rejected",
			zap.Int64("from", from.ID),
			zap.Int64("to", toUserID),
			zap.Error(err))
		return 0, err
	}

	s.notifier.SendToUser(toUserID, QueueInvitations, InviteNotification{
		InvitationID: inviteID,
		FromUser:     from,
	})
	s.logger.Info("invite sent",
		zap.Int64("invite_id", inviteID),
		zap.Int64("from", from.ID),
		zap.Int64("to", toUserID))
	return inviteID, nil
}

// ReplyInvite resolves a pending invitation. The invite is consumed before
// any side effect, so a second reply for the same ID always fails and no
// notification leaks from a failed reply. On accept a game is created with
// the sender as white and the recipient as black, and both players are
// notified; on decline only the original sender is.
func (s *Service) ReplyInvite(ctx context.Context, replier UserLite, inviteID int64, accept bool) error {
	invite, err := s.invites.Reply(inviteID, replier.ID)
	if err != nil {
		s.logger.Warn("invite reply rejected",
			zap.Int64("invite_id", inviteID),
			zap.Int64("replier", replier.ID),
			zap.Error(err))
		return err
	}

	if !accept {
		s.notifier.SendToUser(invite.FromUserID, QueueInvitations, InviteDeclined{
			InvitationID: formatID(invite.ID),
			ByUser:       replier,
		})
		s.logger.Info("invite declined",
			zap.Int64("invite_id", invite.ID),
			zap.Int64("by", replier.ID))
		return nil
	}

	created, err := s.games.CreateGame(ctx, invite.FromUserID, invite.ToUserID)
	if err != nil {
		return err
	}

	payload := GameCreatedPayload{
		GameID:        formatID(created.ID),
		WhitePlayerID: created.WhitePlayerID,
		BlackPlayerID: created.BlackPlayerID,
	}
	s.notifier.SendToUser(invite.FromUserID, QueueGameCreated, payload)
	s.notifier.SendToUser(invite.ToUserID, QueueGameCreated, payload)
	return nil
}

// SubmitMove records a move and, on success, broadcasts it on the game's
// topic. A failed submission is surfaced to the submitter only.
func (s *Service) SubmitMove(ctx context.Context, userID, gameID int64, req game.MoveRequest) (game.Move, error) {
	move, err := s.games.RecordMove(ctx, gameID, userID, req)
	if err != nil {
		return game.Move{}, err
	}

	s.notifier.SendToTopic(GameTopic(gameID), MoveBroadcast{
		MoveNumber: move.MoveNumber,
		From:       move.FromSquare,
		To:         move.ToSquare,
		SAN:        move.SAN,
		By:         move.PlayedByUserID,
		Ts:         move.PlayedAt,
		Promotion:  move.Promotion,
	})
	return move, nil
}
