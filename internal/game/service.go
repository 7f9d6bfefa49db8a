package game

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/clockfield/chesshall/backend/internal/fault"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("game: database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceConfig describes the dependencies of the game session store.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service persists games and their append-only move logs. Move submission for
// a single game is serialized through a per-game lock so move numbers stay
// gap-free under concurrent submissions; the (game_id, move_number) unique
// index backstops anything that slips past the lock.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger

	gameLocks sync.Map // gameID -> *sync.Mutex
}

// NewService constructs the game session store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:     cfg.Database,
		clock:  clock,
		logger: logger,
	}, nil
}

// CreateGame persists a new game with whiteID playing white and blackID
// playing black, already in STARTED state.
func (s *Service) CreateGame(ctx context.Context, whiteID, blackID int64) (Game, error) {
	now := s.clock().UTC()
	created := Game{
		WhitePlayerID: whiteID,
		BlackPlayerID: blackID,
		Status:        StatusStarted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.db.WithContext(ctx).Create(&created).Error; err != nil {
		s.logger.Error("game create failed", zap.Int64("white", whiteID), zap.Int64("black", blackID), zap.Error(err))
		return Game{}, err
	}
	s.logger.Info("game created",
		zap.Int64("game_id", created.ID),
		zap.Int64("white", whiteID),
		zap.Int64("black", blackID))
	return created, nil
}

// FindGame returns the game by ID or a NotFound fault.
func (s *Service) FindGame(ctx context.Context, gameID int64) (Game, error) {
	var found Game
	err := s.db.WithContext(ctx).Where("id = ?", gameID).Take(&found).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Game{}, fault.New(fault.KindNotFound, "game not found")
	}
	if err != nil {
		return Game{}, err
	}
	return found, nil
}

// RecordMove validates and appends a move. Validation order: game existence,
// participation, square syntax, turn parity. The stored move preserves the
// submitted SAN, promotion and FEN snapshot untouched.
func (s *Service) RecordMove(ctx context.Context, gameID, userID int64, req MoveRequest) (Move, error) {
	lock := s.lockFor(gameID)
	lock.Lock()
	defer lock.Unlock()

	move, err := s.appendMove(ctx, gameID, userID, req)
	if fault.IsKind(err, fault.KindConflict) {
		// Benign race with another writer on the same move number: re-derive
		// the next number once and revalidate before giving up.
		s.logger.Warn("move number conflict, retrying", zap.Int64("game_id", gameID), zap.Int64("user_id", userID))
		move, err = s.appendMove(ctx, gameID, userID, req)
	}
	return move, err
}

func (s *Service) appendMove(ctx context.Context, gameID, userID int64, req MoveRequest) (Move, error) {
	current, err := s.FindGame(ctx, gameID)
	if err != nil {
		return Move{}, err
	}
	if err := ValidateParticipant(current, userID); err != nil {
		return Move{}, err
	}
	if err := ValidateSquares(req.From, req.To); err != nil {
		return Move{}, err
	}
	if err := ValidatePromotion(req.Promotion); err != nil {
		return Move{}, err
	}

	var recorded Move
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		last, err := lastMoveNumber(tx, gameID)
		if err != nil {
			return err
		}
		next := last + 1
		if err := ValidateTurn(current, userID, next); err != nil {
			return err
		}

		now := s.clock().UTC()
		recorded = Move{
			GameID:         gameID,
			MoveNumber:     next,
			FromSquare:     req.From,
			ToSquare:       req.To,
			SAN:            req.SAN,
			Promotion:      req.Promotion,
			FenAfter:       req.FenAfter,
			PlayedByUserID: userID,
			PlayedAt:       now,
		}
		if err := tx.Create(&recorded).Error; err != nil {
			if isUniqueViolation(err) {
				return fault.Wrap(fault.KindConflict, "concurrent move submission", err)
			}
			return err
		}

		updates := map[string]interface{}{"updated_at": now}
		if req.FenAfter != "" {
			updates["last_fen"] = req.FenAfter
		}
		return tx.Model(&Game{}).Where("id = ?", gameID).Updates(updates).Error
	})
	if txErr != nil {
		return Move{}, txErr
	}

	s.logger.Info("move recorded",
		zap.Int64("game_id", gameID),
		zap.Int("move_number", recorded.MoveNumber),
		zap.Int64("played_by", userID))
	return recorded, nil
}

// ListMoves returns the full move log of a game ordered by move number.
func (s *Service) ListMoves(ctx context.Context, gameID int64) ([]Move, error) {
	var moves []Move
	if err := s.db.WithContext(ctx).
		Where("game_id = ?", gameID).
		Order("move_number ASC").
		Find(&moves).Error; err != nil {
		return nil, err
	}
	return moves, nil
}

// ActiveGamesFor returns games the user participates in that are still open,
// most recently active first.
func (s *Service) ActiveGamesFor(ctx context.Context, userID int64) ([]Game, error) {
	var games []Game
	if err := s.db.WithContext(ctx).
		Where("(white_player_id = ? OR black_player_id = ?) AND status IN ?",
			userID, userID, []Status{StatusCreated, StatusStarted}).
		Order("updated_at DESC").
		Find(&games).Error; err != nil {
		return nil, err
	}
	return games, nil
}

func (s *Service) lockFor(gameID int64) *sync.Mutex {
	actual, _ := s.gameLocks.LoadOrStore(gameID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// lastMoveNumber is 0 for a game with no moves, so the first move is 1.
func lastMoveNumber(tx *gorm.DB, gameID int64) (int, error) {
	var last int
	err := tx.Model(&Move{}).
		Where("game_id = ?", gameID).
		Select("COALESCE(MAX(move_number), 0)").
		Scan(&last).Error
	if err != nil {
		return 0, err
	}
	return last, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") || strings.Contains(message, "duplicate")
}
