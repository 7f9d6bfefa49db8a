package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/clockfield/chesshall/backend/internal/fault"
	"github.com/clockfield/chesshall/backend/internal/game"
	"github.com/clockfield/chesshall/backend/internal/lobby"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 16
)

// client is one live websocket session bound to an authenticated user.
type client struct {
	sessionID string
	user      lobby.UserLite
	hub       *Hub
	lobby     *lobby.Service
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	logger    *zap.Logger
}

func newClient(sessionID string, user lobby.UserLite, hub *Hub, lobbyService *lobby.Service, conn *websocket.Conn, logger *zap.Logger) *client {
	return &client{
		sessionID: sessionID,
		user:      user,
		hub:       hub,
		lobby:     lobbyService,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		done:      make(chan struct{}),
		logger:    logger,
	}
}

// enqueue hands a frame to the write pump without blocking; a full buffer
// drops the frame, the peer can recover state over the read APIs.
func (c *client) enqueue(frame []byte) {
	select {
	case <-c.done:
	case c.send <- frame:
	default:
		c.logger.Warn("dropping frame for slow session",
			zap.String("session", c.sessionID),
			zap.Int64("user_id", c.user.ID))
	}
}

// readPump consumes inbound envelopes until the connection dies. It must run
// on the goroutine that owns the connection reads.
func (c *client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.lobby.Disconnect(c.sessionID)
		close(c.done)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed",
					zap.String("session", c.sessionID),
					zap.Error(err))
			}
			return
		}

		var received envelope
		if err := json.Unmarshal(frame, &received); err != nil {
			c.sendError(fault.New(fault.KindInvalidArgument, "malformed envelope"))
			continue
		}
		c.dispatch(ctx, received)
	}
}

// writePump flushes queued frames and keeps the connection alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type subscribePayload struct {
	Topic string `json:"topic"`
}

type inviteSendPayload struct {
	ToUserID int64 `json:"toUserId"`
}

type inviteReplyPayload struct {
	InvitationID int64 `json:"invitationId"`
	Accept       bool  `json:"accept"`
}

type moveSubmitPayload struct {
	GameID    int64  `json:"gameId"`
	From      string `json:"from"`
	To        string `json:"to"`
	SAN       string `json:"san"`
	Promotion string `json:"promotion"`
	FenAfter  string `json:"fenAfter"`
}

func (c *client) dispatch(ctx context.Context, received envelope) {
	switch received.Type {
	case envelopeTypeSubscribe:
		var request subscribePayload
		if err := json.Unmarshal(received.Payload, &request); err != nil {
			c.sendError(fault.New(fault.KindInvalidArgument, "malformed subscribe payload"))
			return
		}
		c.hub.subscribe(c, request.Topic)
		if request.Topic == lobby.TopicOnlineUsers {
			// Fresh subscribers get a snapshot immediately.
			c.lobby.BroadcastOnline()
		}
	case envelopeTypeUnsubscribe:
		var request subscribePayload
		if err := json.Unmarshal(received.Payload, &request); err != nil {
			return
		}
		c.hub.unsubscribe(c, request.Topic)
	case envelopeTypePresenceRequest:
		c.lobby.BroadcastOnline()
	case envelopeTypeInviteSend:
		var request inviteSendPayload
		if err := json.Unmarshal(received.Payload, &request); err != nil {
			c.sendError(fault.New(fault.KindInvalidArgument, "malformed invite payload"))
			return
		}
		if _, err := c.lobby.SendInvite(c.user, request.ToUserID); err != nil {
			c.sendError(err)
		}
	case envelopeTypeInviteReply:
		var request inviteReplyPayload
		if err := json.Unmarshal(received.Payload, &request); err != nil {
			c.sendError(fault.New(fault.KindInvalidArgument, "malformed reply payload"))
			return
		}
		if err := c.lobby.ReplyInvite(ctx, c.user, request.InvitationID, request.Accept); err != nil {
			c.sendError(err)
		}
	case envelopeTypeMoveSubmit:
		var request moveSubmitPayload
		if err := json.Unmarshal(received.Payload, &request); err != nil {
			c.sendError(fault.New(fault.KindInvalidArgument, "malformed move payload"))
			return
		}
		_, err := c.lobby.SubmitMove(ctx, c.user.ID, request.GameID, game.MoveRequest{
			From:      request.From,
			To:        request.To,
			SAN:       request.SAN,
			Promotion: request.Promotion,
			FenAfter:  request.FenAfter,
		})
		if err != nil {
			c.sendError(err)
		}
	default:
		c.logger.Warn("unknown envelope type",
			zap.String("session", c.sessionID),
			zap.String("type", received.Type))
	}
}

// sendError reports a failure to this session only; nothing is broadcast.
func (c *client) sendError(err error) {
	frame, encodeErr := encodeEnvelope(envelope{Type: envelopeTypeError}, errorPayload{
		Error: err.Error(),
		Kind:  fault.KindOf(err).String(),
	})
	if encodeErr != nil {
		return
	}
	c.enqueue(frame)
}
