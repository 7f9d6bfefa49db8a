package lobby

import "time"

// Topic and queue names used by the notification dispatcher. Topics fan out
// to every subscriber; queues are addressed to a single user's sessions.
const (
	TopicOnlineUsers = "online-users"

	QueueInvitations = "invitations"
	QueueGameCreated = "game-created"
)

// GameTopic returns the broadcast topic carrying one game's moves.
func GameTopic(gameID int64) string {
	return "games/" + formatID(gameID)
}

// UserLite is the minimal public profile pushed over the wire.
type UserLite struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"displayName"`
}

// OnlineUsersPayload is the full presence snapshot broadcast on TopicOnlineUsers.
type OnlineUsersPayload struct {
	Users []UserLite `json:"users"`
}

// InviteNotification is addressed to an invite recipient.
type InviteNotification struct {
	InvitationID int64    `json:"invitationId"`
	FromUser     UserLite `json:"fromUser"`
}

// InviteDeclined is addressed to the original sender when the recipient declines.
type InviteDeclined struct {
	InvitationID string   `json:"invitationId"`
	ByUser       UserLite `json:"byUser"`
}

// GameCreatedPayload is addressed to both players after an accepted invite.
type GameCreatedPayload struct {
	GameID        string `json:"gameId"`
	WhitePlayerID int64  `json:"whitePlayerId"`
	BlackPlayerID int64  `json:"blackPlayerId"`
}

// MoveBroadcast is fanned out on the game topic after an accepted move.
type MoveBroadcast struct {
	MoveNumber int       `json:"moveNumber"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	SAN        string    `json:"san,omitempty"`
	By         int64     `json:"by"`
	Ts         time.Time `json:"ts"`
	Promotion  string    `json:"promotion,omitempty"`
}
