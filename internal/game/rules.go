package game

import (
	"github.com/clockfield/chesshall/backend/internal/fault"
)

// ValidateSquares checks that both squares use algebraic notation (file a-h,
// rank 1-8) and differ from each other. Chess legality is not checked.
func ValidateSquares(from, to string) error {
	if !validSquare(from) || !validSquare(to) {
		return fault.New(fault.KindInvalidArgument, "invalid squares")
	}
	if from == to {
		return fault.New(fault.KindInvalidArgument, "invalid squares")
	}
	return nil
}

func validSquare(square string) bool {
	if len(square) != 2 {
		return false
	}
	file := square[0]
	rank := square[1]
	return file >= 'a' && file <= 'h' && rank >= '1' && rank <= '8'
}

// ValidatePromotion accepts an empty promotion or one of q, r, b, n.
func ValidatePromotion(promotion string) error {
	switch promotion {
	case "", "q", "r", "b", "n":
		return nil
	default:
		return fault.New(fault.KindInvalidArgument, "invalid promotion piece")
	}
}

// WhiteToMove reports whether the given 1-based move number belongs to white.
func WhiteToMove(nextMoveNumber int) bool {
	return nextMoveNumber%2 == 1
}

// ValidateTurn checks that userID owns the move implied by nextMoveNumber's
// parity.
func ValidateTurn(g Game, userID int64, nextMoveNumber int) error {
	if WhiteToMove(nextMoveNumber) {
		if userID != g.WhitePlayerID {
			return fault.New(fault.KindInvalidState, "not your turn")
		}
		return nil
	}
	if userID != g.BlackPlayerID {
		return fault.New(fault.KindInvalidState, "not your turn")
	}
	return nil
}

// ValidateParticipant checks that userID plays either side of the game.
func ValidateParticipant(g Game, userID int64) error {
	if !g.Participant(userID) {
		return fault.New(fault.KindForbidden, "not a participant")
	}
	return nil
}
