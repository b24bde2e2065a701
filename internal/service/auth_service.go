package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zhejian/glasslink/internal/model"
	"github.com/zhejian/glasslink/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/crypto/bcrypt"
)

type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

type TokenStore interface {
	Create(ctx context.Context, t *model.RefreshToken) error
	GetByHash(ctx context.Context, hash string) (*model.RefreshToken, error)
	Rotate(ctx context.Context, oldHash string, at time.Time, ip *string, next *model.RefreshToken) error
	Revoke(ctx context.Context, hash string, at time.Time, ip *string) error
}

// Session is the outcome of a successful register, login or refresh.
type Session struct {
	AccessToken      string
	AccessExpiresIn  time.Duration
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AuthServiceInterface defines account and session operations
type AuthServiceInterface interface {
	Register(ctx context.Context, email, password, ip string) (*Session, error)
	Login(ctx context.Context, email, password, ip string) (*Session, error)
	Refresh(ctx context.Context, refreshToken, ip string) (*Session, error)
	Logout(ctx context.Context, refreshToken, ip string) error
	Me(ctx context.Context, userID uuid.UUID) (*model.MeResponse, error)
}

type AuthService struct {
	users      UserStore
	tokens     TokenStore
	issuer     *TokenIssuer
	refreshTTL time.Duration
	bcryptCost int
	logger     *slog.Logger
	now        func() time.Time

	// compared against when the email is unknown so both paths cost a bcrypt check
	dummyHash []byte
}

func NewAuthService(users UserStore, tokens TokenStore, issuer *TokenIssuer, refreshTTL time.Duration, bcryptCost int, logger *slog.Logger) *AuthService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("glasslink-dummy-password"), bcryptCost)
	return &AuthService{
		users:      users,
		tokens:     tokens,
		issuer:     issuer,
		refreshTTL: refreshTTL,
		bcryptCost: bcryptCost,
		logger:     logger,
		now:        time.Now,
		dummyHash:  dummy,
	}
}

func (s *AuthService) Register(ctx context.Context, email, password, ip string) (*Session, error) {
	email = strings.TrimSpace(email)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, newValidationError("password", "Password is too long.")
		}
		return nil, err
	}

	u := &model.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailConflict) {
			s.authEvent(ctx, "register", "conflict")
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	s.authEvent(ctx, "register", "ok")
	s.logger.InfoContext(ctx, "user registered", slog.String("user_id", u.ID.String()))
	return s.startSession(ctx, u, ip)
}

func (s *AuthService) Login(ctx context.Context, email, password, ip string) (*Session, error) {
	u, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		s.authEvent(ctx, "login", "invalid")
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.authEvent(ctx, "login", "invalid")
		return nil, ErrInvalidCredentials
	}

	s.authEvent(ctx, "login", "ok")
	return s.startSession(ctx, u, ip)
}

// Refresh rotates an active refresh token into a new session.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, ip string) (*Session, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	now := s.now().UTC()

	current, err := s.tokens.GetByHash(ctx, HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.authEvent(ctx, "refresh", "invalid")
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	if !current.Active(now) {
		s.authEvent(ctx, "refresh", "invalid")
		return nil, ErrInvalidRefreshToken
	}

	u, err := s.users.GetByID(ctx, current.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	raw, next, err := s.newRefresh(u.ID, ip, now)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Rotate(ctx, current.TokenHash, now, optional(ip), next); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// lost a race with a concurrent refresh or logout
			s.authEvent(ctx, "refresh", "invalid")
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	s.authEvent(ctx, "refresh", "ok")
	return s.session(u, raw, next.ExpiresAt)
}

// Logout revokes the token if it is still active. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken, ip string) error {
	if refreshToken == "" {
		return nil
	}
	err := s.tokens.Revoke(ctx, HashToken(refreshToken), s.now().UTC(), optional(ip))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return nil
}

func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*model.MeResponse, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return &model.MeResponse{ID: u.ID, Email: u.Email}, nil
}

func (s *AuthService) startSession(ctx context.Context, u *model.User, ip string) (*Session, error) {
	raw, tok, err := s.newRefresh(u.ID, ip, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Create(ctx, tok); err != nil {
		return nil, err
	}
	return s.session(u, raw, tok.ExpiresAt)
}

func (s *AuthService) newRefresh(userID uuid.UUID, ip string, now time.Time) (string, *model.RefreshToken, error) {
	raw, err := newRefreshToken()
	if err != nil {
		return "", nil, err
	}
	return raw, &model.RefreshToken{
		ID:          uuid.New(),
		UserID:      userID,
		TokenHash:   HashToken(raw),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.refreshTTL),
		CreatedByIP: optional(ip),
	}, nil
}

func (s *AuthService) session(u *model.User, refreshRaw string, refreshExp time.Time) (*Session, error) {
	access, _, err := s.issuer.Issue(u)
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken:      access,
		AccessExpiresIn:  s.issuer.ttl,
		RefreshToken:     refreshRaw,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *AuthService) authEvent(ctx context.Context, kind, result string) {
	authEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("result", result),
	))
}

var _ AuthServiceInterface = (*AuthService)(nil)
