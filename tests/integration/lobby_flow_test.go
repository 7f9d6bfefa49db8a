package integration_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clockfield/chesshall/backend/internal/auth"
	"github.com/clockfield/chesshall/backend/internal/game"
	"github.com/clockfield/chesshall/backend/internal/lobby"
	"github.com/clockfield/chesshall/backend/internal/server"
	"github.com/clockfield/chesshall/backend/internal/users"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

const frameDeadline = 2 * time.Second

type wsEnvelope struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Queue   string          `json:"queue,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type registeredUser struct {
	Token  string `json:"token"`
	UserID int64  `json:"userId"`
}

func buildHandler(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&users.User{}, &game.Game{}, &game.Move{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(strings.Repeat("i", 32)),
		Issuer:        "chesshall-auth",
		Audience:      "chesshall-api",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}
	usersService, err := users.NewService(users.ServiceConfig{Database: db, Tokens: issuer})
	if err != nil {
		t.Fatalf("failed to create users service: %v", err)
	}
	gamesService, err := game.NewService(game.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create games service: %v", err)
	}
	hub := server.NewHub(nil)
	lobbyService, err := lobby.NewService(lobby.ServiceConfig{Games: gamesService, Notifier: hub})
	if err != nil {
		t.Fatalf("failed to create lobby service: %v", err)
	}
	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: issuer,
		Users:        usersService,
		Games:        gamesService,
		Lobby:        lobbyService,
		Hub:          hub,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return handler
}

func register(t *testing.T, baseURL, email, name string) registeredUser {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"email":       email,
		"displayName": name,
		"password":    "secret-password",
	})
	if err != nil {
		t.Fatalf("failed to encode body: %v", err)
	}
	response, err := http.Post(baseURL+"/api/auth/register", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("register request failed: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("register failed with status %d", response.StatusCode)
	}
	var registered registeredUser
	if err := json.NewDecoder(response.Body).Decode(&registered); err != nil {
		t.Fatalf("malformed register response: %v", err)
	}
	return registered
}

func dial(t *testing.T, baseURL, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	return conn
}

func send(t *testing.T, conn *websocket.Conn, messageType string, payload interface{}) {
	t.Helper()
	encoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to encode payload: %v", err)
	}
	frame, err := json.Marshal(wsEnvelope{Type: messageType, Payload: encoded})
	if err != nil {
		t.Fatalf("failed to encode envelope: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("failed to write frame: %v", err)
	}
}

// awaitFrame reads frames until one matches, skipping unrelated broadcasts
// such as interleaved presence snapshots.
func awaitFrame(t *testing.T, conn *websocket.Conn, match func(wsEnvelope) bool) wsEnvelope {
	t.Helper()
	deadline := time.Now().Add(frameDeadline)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatalf("failed to set deadline: %v", err)
		}
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("no matching frame before deadline: %v", err)
		}
		var decoded wsEnvelope
		if err := json.Unmarshal(frame, &decoded); err != nil {
			t.Fatalf("malformed frame: %v", err)
		}
		if match(decoded) {
			return decoded
		}
	}
}

func onQueue(queue string) func(wsEnvelope) bool {
	return func(received wsEnvelope) bool {
		return received.Type == "queue" && received.Queue == queue
	}
}

func onTopic(topic string) func(wsEnvelope) bool {
	return func(received wsEnvelope) bool {
		return received.Type == "topic" && received.Topic == topic
	}
}

func TestInviteAcceptAndPlayFlow(t *testing.T) {
	testServer := httptest.NewServer(buildHandler(t))
	defer testServer.Close()

	alice := register(t, testServer.URL, "alice@example.com", "Alice")
	bob := register(t, testServer.URL, "bob@example.com", "Bob")

	aliceConn := dial(t, testServer.URL, alice.Token)
	defer aliceConn.Close()
	bobConn := dial(t, testServer.URL, bob.Token)
	defer bobConn.Close()

	// Subscribing to the shared presence topic yields a snapshot containing
	// both connected players.
	send(t, aliceConn, "subscribe", map[string]string{"topic": "online-users"})
	snapshot := awaitFrame(t, aliceConn, func(received wsEnvelope) bool {
		if received.Type != "topic" || received.Topic != "online-users" {
			return false
		}
		var online struct {
			Users []struct {
				ID int64 `json:"id"`
			} `json:"users"`
		}
		if err := json.Unmarshal(received.Payload, &online); err != nil {
			return false
		}
		return len(online.Users) == 2
	})
	if snapshot.Topic != "online-users" {
		t.Fatalf("unexpected snapshot frame: %+v", snapshot)
	}

	// Alice invites Bob; the addressed notification carries her profile.
	send(t, aliceConn, "invite.send", map[string]int64{"toUserId": bob.UserID})
	inviteFrame := awaitFrame(t, bobConn, onQueue("invitations"))
	var invite struct {
		InvitationID int64 `json:"invitationId"`
		FromUser     struct {
			ID          int64  `json:"id"`
			DisplayName string `json:"displayName"`
		} `json:"fromUser"`
	}
	if err := json.Unmarshal(inviteFrame.Payload, &invite); err != nil {
		t.Fatalf("malformed invite payload: %v", err)
	}
	if invite.FromUser.ID != alice.UserID || invite.FromUser.DisplayName != "Alice" {
		t.Fatalf("unexpected invite sender: %+v", invite.FromUser)
	}

	// Bob accepts; both players learn about the same game, Alice as white.
	send(t, bobConn, "invite.reply", map[string]interface{}{
		"invitationId": invite.InvitationID,
		"accept":       true,
	})
	var created struct {
		GameID        string `json:"gameId"`
		WhitePlayerID int64  `json:"whitePlayerId"`
		BlackPlayerID int64  `json:"blackPlayerId"`
	}
	aliceCreated := awaitFrame(t, aliceConn, onQueue("game-created"))
	if err := json.Unmarshal(aliceCreated.Payload, &created); err != nil {
		t.Fatalf("malformed game-created payload: %v", err)
	}
	if created.WhitePlayerID != alice.UserID || created.BlackPlayerID != bob.UserID {
		t.Fatalf("unexpected color assignment: %+v", created)
	}
	bobCreated := awaitFrame(t, bobConn, onQueue("game-created"))
	var createdForBob struct {
		GameID string `json:"gameId"`
	}
	if err := json.Unmarshal(bobCreated.Payload, &createdForBob); err != nil {
		t.Fatalf("malformed game-created payload: %v", err)
	}
	if createdForBob.GameID != created.GameID {
		t.Fatalf("players saw different games: %s vs %s", created.GameID, createdForBob.GameID)
	}

	gameTopic := "games/" + created.GameID
	send(t, aliceConn, "subscribe", map[string]string{"topic": gameTopic})
	send(t, bobConn, "subscribe", map[string]string{"topic": gameTopic})

	// White's opening move is broadcast to both subscribers.
	send(t, aliceConn, "move.submit", map[string]interface{}{
		"gameId": jsonNumber(t, created.GameID),
		"from":   "e2",
		"to":     "e4",
		"san":    "e4",
	})
	for _, conn := range []*websocket.Conn{aliceConn, bobConn} {
		moveFrame := awaitFrame(t, conn, onTopic(gameTopic))
		var move struct {
			MoveNumber int    `json:"moveNumber"`
			From       string `json:"from"`
			By         int64  `json:"by"`
		}
		if err := json.Unmarshal(moveFrame.Payload, &move); err != nil {
			t.Fatalf("malformed move payload: %v", err)
		}
		if move.MoveNumber != 1 || move.From != "e2" || move.By != alice.UserID {
			t.Fatalf("unexpected move broadcast: %+v", move)
		}
	}

	// Alice moving again out of turn gets an error on her connection only.
	send(t, aliceConn, "move.submit", map[string]interface{}{
		"gameId": jsonNumber(t, created.GameID),
		"from":   "d2",
		"to":     "d4",
	})
	errorFrame := awaitFrame(t, aliceConn, func(received wsEnvelope) bool {
		return received.Type == "error"
	})
	var failure struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(errorFrame.Payload, &failure); err != nil {
		t.Fatalf("malformed error payload: %v", err)
	}
	if failure.Kind != "invalid_state" {
		t.Fatalf("expected invalid_state, got %q", failure.Kind)
	}

	// Black replies as move 2.
	send(t, bobConn, "move.submit", map[string]interface{}{
		"gameId": jsonNumber(t, created.GameID),
		"from":   "e7",
		"to":     "e5",
	})
	reply := awaitFrame(t, bobConn, func(received wsEnvelope) bool {
		if received.Type != "topic" || received.Topic != gameTopic {
			return false
		}
		var move struct {
			MoveNumber int `json:"moveNumber"`
		}
		return json.Unmarshal(received.Payload, &move) == nil && move.MoveNumber == 2
	})
	if reply.Topic != gameTopic {
		t.Fatalf("unexpected reply frame: %+v", reply)
	}
}

func TestInviteToOfflineUserFailsFast(t *testing.T) {
	testServer := httptest.NewServer(buildHandler(t))
	defer testServer.Close()

	alice := register(t, testServer.URL, "alice@example.com", "Alice")
	offline := register(t, testServer.URL, "carol@example.com", "Carol")

	aliceConn := dial(t, testServer.URL, alice.Token)
	defer aliceConn.Close()

	send(t, aliceConn, "invite.send", map[string]int64{"toUserId": offline.UserID})
	errorFrame := awaitFrame(t, aliceConn, func(received wsEnvelope) bool {
		return received.Type == "error"
	})
	var failure struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if err := json.Unmarshal(errorFrame.Payload, &failure); err != nil {
		t.Fatalf("malformed error payload: %v", err)
	}
	if failure.Kind != "invalid_state" || !strings.Contains(failure.Error, "offline") {
		t.Fatalf("expected offline recipient error, got %+v", failure)
	}
}

func jsonNumber(t *testing.T, value string) int64 {
	t.Helper()
	var parsed int64
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		t.Fatalf("expected numeric id, got %q", value)
	}
	return parsed
}
