package game

import "time"

// Status enumerates the lifecycle of a game.
type Status string

const (
	// StatusCreated is reserved for games persisted before play begins; the
	// invite-accept flow never leaves a game in this state.
	StatusCreated Status = "CREATED"
	// StatusStarted marks a game in progress.
	StatusStarted Status = "STARTED"
	// StatusFinished marks a completed game. Nothing in this service sets it.
	StatusFinished Status = "FINISHED"
)

// Game is a persisted two-player session. Player assignments are fixed at
// creation: the inviter plays white, the recipient black.
type Game struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	WhitePlayerID int64     `gorm:"column:white_player_id;not null;index"`
	BlackPlayerID int64     `gorm:"column:black_player_id;not null;index"`
	Status        Status    `gorm:"column:status;size:16;not null"`
	LastFen       string    `gorm:"column:last_fen"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null;index"`
}

// TableName exposes the table backing games.
func (Game) TableName() string {
	return "games"
}

// Participant reports whether the user plays either side of the game.
func (g Game) Participant(userID int64) bool {
	return userID == g.WhitePlayerID || userID == g.BlackPlayerID
}

// Move is one append-only entry in a game's move log. MoveNumber is 1-based
// and unique per game; odd numbers belong to white, even to black.
type Move struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement"`
	GameID         int64     `gorm:"column:game_id;not null;uniqueIndex:idx_moves_game_number"`
	MoveNumber     int       `gorm:"column:move_number;not null;uniqueIndex:idx_moves_game_number"`
	FromSquare     string    `gorm:"column:from_square;size:2;not null"`
	ToSquare       string    `gorm:"column:to_square;size:2;not null"`
	SAN            string    `gorm:"column:san;size:16"`
	Promotion      string    `gorm:"column:promotion;size:1"`
	FenAfter       string    `gorm:"column:fen_after"`
	PlayedByUserID int64     `gorm:"column:played_by_user_id;not null"`
	PlayedAt       time.Time `gorm:"column:played_at;not null"`
}

// TableName exposes the table backing moves.
func (Move) TableName() string {
	return "moves"
}

// MoveRequest carries a client move submission. SAN, Promotion and FenAfter
// are optional and stored exactly as submitted; the server never verifies
// chess legality, only square syntax and turn order.
type MoveRequest struct {
	From      string
	To        string
	SAN       string
	Promotion string
	FenAfter  string
}
