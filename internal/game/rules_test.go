package game

import (
	"testing"

	"github.com/clockfield/chesshall/backend/internal/fault"
)

func TestValidateSquaresAcceptsBoardSquares(t *testing.T) {
	for file := byte('a'); file <= 'h'; file++ {
		for rank := byte('1'); rank <= '8'; rank++ {
			from := string([]byte{file, rank})
			to := "d5"
			if from == to {
				to = "d4"
			}
			if err := ValidateSquares(from, to); err != nil {
				t.Fatalf("expected %s -> %s to validate, got %v", from, to, err)
			}
		}
	}
}

func TestValidateSquaresRejectsMalformedInput(t *testing.T) {
	cases := []struct {
		name string
		from string
		to   string
	}{
		{name: "wrong file", from: "i2", to: "e4"},
		{name: "wrong rank", from: "e2", to: "e9"},
		{name: "identical squares", from: "e4", to: "e4"},
		{name: "too short", from: "e", to: "e4"},
		{name: "too long", from: "e22", to: "e4"},
		{name: "empty from", from: "", to: "e4"},
		{name: "empty to", from: "e2", to: ""},
		{name: "uppercase file", from: "E2", to: "e4"},
	}

	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			err := ValidateSquares(testCase.from, testCase.to)
			if err == nil {
				t.Fatalf("expected %q -> %q to be rejected", testCase.from, testCase.to)
			}
			if !fault.IsKind(err, fault.KindInvalidArgument) {
				t.Fatalf("expected invalid argument, got %v", err)
			}
		})
	}
}

func TestValidatePromotion(t *testing.T) {
	for _, piece := range []string{"", "q", "r", "b", "n"} {
		if err := ValidatePromotion(piece); err != nil {
			t.Fatalf("expected promotion %q to validate, got %v", piece, err)
		}
	}
	for _, piece := range []string{"k", "p", "Q", "qq"} {
		if err := ValidatePromotion(piece); err == nil {
			t.Fatalf("expected promotion %q to be rejected", piece)
		}
	}
}

func TestWhiteToMoveFollowsParity(t *testing.T) {
	if !WhiteToMove(1) {
		t.Fatal("move 1 belongs to white")
	}
	if WhiteToMove(2) {
		t.Fatal("move 2 belongs to black")
	}
	if !WhiteToMove(17) {
		t.Fatal("odd moves belong to white")
	}
}

func TestValidateTurnEnforcesParity(t *testing.T) {
	g := Game{WhitePlayerID: 10, BlackPlayerID: 20}

	if err := ValidateTurn(g, 10, 1); err != nil {
		t.Fatalf("white should own move 1: %v", err)
	}
	if err := ValidateTurn(g, 20, 2); err != nil {
		t.Fatalf("black should own move 2: %v", err)
	}

	err := ValidateTurn(g, 20, 1)
	if !fault.IsKind(err, fault.KindInvalidState) {
		t.Fatalf("expected invalid state for black on move 1, got %v", err)
	}
	err = ValidateTurn(g, 10, 2)
	if !fault.IsKind(err, fault.KindInvalidState) {
		t.Fatalf("expected invalid state for white on move 2, got %v", err)
	}
}

func TestValidateParticipantRejectsOutsiders(t *testing.T) {
	g := Game{WhitePlayerID: 10, BlackPlayerID: 20}
	if err := ValidateParticipant(g, 10); err != nil {
		t.Fatalf("white is a participant: %v", err)
	}
	if err := ValidateParticipant(g, 20); err != nil {
		t.Fatalf("black is a participant: %v", err)
	}
	err := ValidateParticipant(g, 30)
	if !fault.IsKind(err, fault.KindForbidden) {
		t.Fatalf("expected forbidden for outsider, got %v", err)
	}
}
