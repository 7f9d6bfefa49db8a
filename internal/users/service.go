package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/clockfield/chesshall/backend/internal/auth"
	"github.com/clockfield/chesshall/backend/internal/fault"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("users: database handle is required")
	errMissingIssuer   = errors.New("users: token issuer is required")

	// ErrInvalidCredentials covers both unknown emails and wrong passwords so
	// responses do not reveal which one failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// TokenIssuer is the slice of the auth package this service needs.
type TokenIssuer interface {
	Issue(identity auth.Identity) (string, int64, error)
}

// ServiceConfig describes the dependencies of the account service.
type ServiceConfig struct {
	Database *gorm.DB
	Tokens   TokenIssuer
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages player accounts and issues session tokens.
type Service struct {
	db     *gorm.DB
	tokens TokenIssuer
	clock  func() time.Time
	logger *zap.Logger
}

// AuthResponse is returned by Register and Login.
type AuthResponse struct {
	Token       string
	UserID      int64
	Email       string
	DisplayName string
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Tokens == nil {
		return nil, errMissingIssuer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		tokens: cfg.Tokens,
		clock:  clock,
		logger: logger,
	}, nil
}

// Register creates an account and returns a signed token for it. Emails are
// normalized to lower case; duplicates fail with a conflict.
func (s *Service) Register(ctx context.Context, email, displayName, password string) (AuthResponse, error) {
	email = normalizeEmail(email)
	displayName = strings.TrimSpace(displayName)

	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return AuthResponse{}, err
	}
	if count > 0 {
		return AuthResponse{}, fault.New(fault.KindConflict, "email already in use")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return AuthResponse{}, err
	}

	account := User{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		CreatedAt:    s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		return AuthResponse{}, err
	}

	s.logger.Info("user registered", zap.Int64("user_id", account.ID))
	return s.issueFor(account)
}

// Login verifies credentials and returns a signed token.
func (s *Service) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	email = normalizeEmail(email)

	var account User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return AuthResponse{}, ErrInvalidCredentials
	}
	if err != nil {
		return AuthResponse{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return AuthResponse{}, ErrInvalidCredentials
	}

	return s.issueFor(account)
}

// FindByID returns the account for a validated token subject.
func (s *Service) FindByID(ctx context.Context, userID int64) (User, error) {
	var account User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, fault.New(fault.KindNotFound, "user not found")
	}
	if err != nil {
		return User{}, err
	}
	return account, nil
}

func (s *Service) issueFor(account User) (AuthResponse, error) {
	token, _, err := s.tokens.Issue(auth.Identity{
		UserID:      account.ID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
	})
	if err != nil {
		return AuthResponse{}, err
	}
	return AuthResponse{
		Token:       token,
		UserID:      account.ID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
	}, nil
}
