package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pawhaven/adoption-portal/internal/core/domain"
	"github.com/pawhaven/adoption-portal/internal/core/ports"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

type sessionClaims struct {
	Email     string `json:"email"`
	SessionID string `json:"sid"`
	Type      string `json:"typ"`
	jwt.RegisteredClaims
}

// AuthService is the credential store: accounts, password hashing and
// session token issuance.
type AuthService struct {
	repo       ports.UserRepository
	revoker    ports.SessionRevoker
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

var _ ports.AuthService = (*AuthService)(nil)

func NewAuthService(repo ports.UserRepository, revoker ports.SessionRevoker, jwtSecret string, accessTTL, refreshTTL time.Duration) *AuthService {
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	if refreshTTL < accessTTL {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &AuthService{
		repo:       repo,
		revoker:    revoker,
		jwtSecret:  []byte(jwtSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) Register(ctx context.Context, email, password string) (*domain.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &domain.User{
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// SignIn checks the password and opens a new session.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}

	return s.issueSession(user.Identity(), uuid.NewString())
}

// Refresh exchanges a refresh token for a new token pair on the same session.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.Session, error) {
	claims, err := s.parse(refreshToken, tokenTypeRefresh, true)
	if err != nil {
		return nil, err
	}
	if err := s.checkRevoked(ctx, claims.SessionID); err != nil {
		return nil, err
	}

	user, err := s.repo.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}

	return s.issueSession(user.Identity(), claims.SessionID)
}

// SignOut revokes the session behind accessToken. Expired tokens can still
// sign out as long as their signature is valid.
func (s *AuthService) SignOut(ctx context.Context, accessToken string) error {
	claims, err := s.parse(accessToken, tokenTypeAccess, false)
	if err != nil {
		return err
	}
	if err := s.revoker.Revoke(ctx, claims.SessionID, s.refreshTTL); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// Verify validates an access token and returns what it proves.
func (s *AuthService) Verify(ctx context.Context, accessToken string) (*ports.TokenClaims, error) {
	claims, err := s.parse(accessToken, tokenTypeAccess, true)
	if err != nil {
		return nil, err
	}
	if err := s.checkRevoked(ctx, claims.SessionID); err != nil {
		return nil, err
	}
	return &ports.TokenClaims{
		Identity:  domain.Identity{ID: claims.Subject, Email: claims.Email},
		SessionID: claims.SessionID,
	}, nil
}

func (s *AuthService) GetUser(ctx context.Context, accessToken string) (*domain.Identity, error) {
	claims, err := s.Verify(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return &claims.Identity, nil
}

// FindUserByEmail is the administrative directory lookup.
func (s *AuthService) FindUserByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	user, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	id := user.Identity()
	return &id, nil
}

func (s *AuthService) checkRevoked(ctx context.Context, sessionID string) error {
	revoked, err := s.revoker.IsRevoked(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("revocation check: %w", err)
	}
	if revoked {
		return domain.ErrSessionRevoked
	}
	return nil
}

func (s *AuthService) issueSession(id domain.Identity, sessionID string) (*domain.Session, error) {
	now := s.now()
	accessExp := now.Add(s.accessTTL)

	access, err := s.sign(id, sessionID, tokenTypeAccess, now, accessExp)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(id, sessionID, tokenTypeRefresh, now, now.Add(s.refreshTTL))
	if err != nil {
		return nil, err
	}

	return &domain.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    accessExp.UTC().Truncate(time.Second),
		Identity:     id,
	}, nil
}

func (s *AuthService) sign(id domain.Identity, sessionID, typ string, issuedAt, expiresAt time.Time) (string, error) {
	claims := sessionClaims{
		Email:     id.Email,
		SessionID: sessionID,
		Type:      typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.jwtSecret)
}

func (s *AuthService) parse(token, typ string, validateExpiry bool) (*sessionClaims, error) {
	if token == "" {
		return nil, domain.ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if !validateExpiry {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, domain.ErrInvalidToken
	}
	if claims.Type != typ || claims.Subject == "" || claims.SessionID == "" {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}
