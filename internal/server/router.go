package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/clockfield/chesshall/backend/internal/auth"
	"github.com/clockfield/chesshall/backend/internal/fault"
	"github.com/clockfield/chesshall/backend/internal/game"
	"github.com/clockfield/chesshall/backend/internal/lobby"
	"github.com/clockfield/chesshall/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const identityContextKey = "chesshall_identity"

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingUsersService  = errors.New("users service dependency required")
	errMissingGamesService  = errors.New("games service dependency required")
	errMissingLobbyService  = errors.New("lobby service dependency required")
	errMissingHub           = errors.New("hub dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenManager validates bearer tokens presented on HTTP and websocket calls.
type TokenManager interface {
	Validate(token string) (auth.Identity, error)
}

// Dependencies wires the HTTP surface to the services behind it.
type Dependencies struct {
	TokenManager TokenManager
	Users        *users.Service
	Games        *game.Service
	Lobby        *lobby.Service
	Hub          *Hub
	Logger       *zap.Logger
}

// NewHTTPHandler builds the gin router covering the REST API and the
// websocket attach point.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Games == nil {
		return nil, errMissingGamesService
	}
	if deps.Lobby == nil {
		return nil, errMissingLobbyService
	}
	if deps.Hub == nil {
		return nil, errMissingHub
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens: deps.TokenManager,
		users:  deps.Users,
		games:  deps.Games,
		lobby:  deps.Lobby,
		hub:    deps.Hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect cross-origin during development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	router.POST("/api/auth/register", handler.handleRegister)
	router.POST("/api/auth/login", handler.handleLogin)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/api/users/me", handler.handleCurrentUser)
	protected.GET("/api/games/active", handler.handleActiveGames)
	protected.GET("/api/games/:id/moves", handler.handleListMoves)
	protected.GET("/ws", handler.handleWebsocket)

	return router, nil
}

type httpHandler struct {
	tokens   TokenManager
	users    *users.Service
	games    *game.Service
	lobby    *lobby.Service
	hub      *Hub
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

type registerPayload struct {
	Email       string `json:"email" binding:"required,email"`
	DisplayName string `json:"displayName" binding:"required,min=2,max=80"`
	Password    string `json:"password" binding:"required,min=8,max=72"`
}

type loginPayload struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type authResponsePayload struct {
	Token       string `json:"token"`
	UserID      int64  `json:"userId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	response, err := h.users.Register(c.Request.Context(), request.Email, request.DisplayName, request.Password)
	if err != nil {
		if fault.IsKind(err, fault.KindConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "email_in_use"})
			return
		}
		h.logger.Error("registration failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration_failed"})
		return
	}

	c.JSON(http.StatusCreated, authResponsePayload{
		Token:       response.Token,
		UserID:      response.UserID,
		Email:       response.Email,
		DisplayName: response.DisplayName,
	})
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	response, err := h.users.Login(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		return
	}

	c.JSON(http.StatusOK, authResponsePayload{
		Token:       response.Token,
		UserID:      response.UserID,
		Email:       response.Email,
		DisplayName: response.DisplayName,
	})
}

type currentUserPayload struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

func (h *httpHandler) handleCurrentUser(c *gin.Context) {
	identity := callerIdentity(c)

	account, err := h.users.FindByID(c.Request.Context(), identity.UserID)
	if err != nil {
		writeFault(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, currentUserPayload{
		ID:          account.ID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
	})
}

type activeGamePayload struct {
	GameID      int64  `json:"gameId"`
	YouAreWhite bool   `json:"youAreWhite"`
	Status      string `json:"status"`
	LastFen     string `json:"lastFen,omitempty"`
}

func (h *httpHandler) handleActiveGames(c *gin.Context) {
	identity := callerIdentity(c)

	active, err := h.games.ActiveGamesFor(c.Request.Context(), identity.UserID)
	if err != nil {
		writeFault(c, h.logger, err)
		return
	}

	response := make([]activeGamePayload, 0, len(active))
	for _, current := range active {
		response = append(response, activeGamePayload{
			GameID:      current.ID,
			YouAreWhite: current.WhitePlayerID == identity.UserID,
			Status:      string(current.Status),
			LastFen:     current.LastFen,
		})
	}
	c.JSON(http.StatusOK, response)
}

type moveRecordPayload struct {
	MoveNumber     int       `json:"moveNumber"`
	FromSquare     string    `json:"fromSquare"`
	ToSquare       string    `json:"toSquare"`
	SAN            string    `json:"san,omitempty"`
	Promotion      string    `json:"promotion,omitempty"`
	PlayedByUserID int64     `json:"playedByUserId"`
	PlayedAt       time.Time `json:"playedAt"`
	FenAfter       string    `json:"fenAfter,omitempty"`
}

func (h *httpHandler) handleListMoves(c *gin.Context) {
	gameID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_game_id"})
		return
	}

	moves, err := h.games.ListMoves(c.Request.Context(), gameID)
	if err != nil {
		writeFault(c, h.logger, err)
		return
	}

	response := make([]moveRecordPayload, 0, len(moves))
	for _, move := range moves {
		response = append(response, moveRecordPayload{
			MoveNumber:     move.MoveNumber,
			FromSquare:     move.FromSquare,
			ToSquare:       move.ToSquare,
			SAN:            move.SAN,
			Promotion:      move.Promotion,
			PlayedByUserID: move.PlayedByUserID,
			PlayedAt:       move.PlayedAt,
			FenAfter:       move.FenAfter,
		})
	}
	c.JSON(http.StatusOK, response)
}

// handleWebsocket upgrades the connection and binds it to the lobby as one
// session. The session lives until the read pump exits.
func (h *httpHandler) handleWebsocket(c *gin.Context) {
	identity := callerIdentity(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sessionID := uuid.NewString()
	user := userLite(identity.UserID, identity.DisplayName)
	session := newClient(sessionID, user, h.hub, h.lobby, conn, h.logger)

	h.hub.register(session)
	h.lobby.Connect(sessionID, user)
	h.logger.Info("session connected",
		zap.String("session", sessionID),
		zap.Int64("user_id", identity.UserID))

	// The request context dies with the handler; the pumps outlive it.
	go session.writePump()
	go session.readPump(context.Background())
}

// authorizeRequest validates the bearer token; websocket clients may carry it
// in a query parameter since browsers cannot set headers on upgrade requests.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := ""
	header := c.GetHeader("Authorization")
	switch {
	case strings.HasPrefix(header, "Bearer "):
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	default:
		token = strings.TrimSpace(c.Query("token"))
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}

	identity, err := h.tokens.Validate(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(identityContextKey, identity)
	c.Next()
}

func callerIdentity(c *gin.Context) auth.Identity {
	value, _ := c.Get(identityContextKey)
	identity, _ := value.(auth.Identity)
	return identity
}

func writeFault(c *gin.Context, logger *zap.Logger, err error) {
	switch fault.KindOf(err) {
	case fault.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case fault.KindForbidden:
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case fault.KindInvalidArgument:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case fault.KindInvalidState, fault.KindConflict:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
