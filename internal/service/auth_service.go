package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/ieltsmock-backend/internal/apperr"
	"github.com/stemsi/ieltsmock-backend/internal/broker"
	"github.com/stemsi/ieltsmock-backend/internal/config"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// Session errors surfaced by the JWT middleware.
var (
	ErrNoSession          = errors.New("no active session")
	ErrSessionInvalidated = errors.New("session invalidated")
	ErrWrongTokenUse      = errors.New("wrong token use")
)

// TokenType distinguishes the principal a token was issued to.
type TokenType string

const (
	TokenTypeAdmin     TokenType = "admin"
	TokenTypeStudent   TokenType = "student"
	TokenTypeCandidate TokenType = "candidate"
)

// TokenUse separates short-lived access tokens from refresh tokens.
type TokenUse string

const (
	TokenUseAccess  TokenUse = "access"
	TokenUseRefresh TokenUse = "refresh"
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType       `json:"token_type"`
	TokenUse  TokenUse        `json:"token_use"`
	UserID    int             `json:"user_id,omitempty"`
	Role      model.AdminRole `json:"role,omitempty"`       // Admin only
	SessionID string          `json:"session_id,omitempty"` // Student only
	AttemptID string          `json:"attempt_id,omitempty"` // Candidate only
	TestKey   string          `json:"test_key,omitempty"`   // Candidate only
}

// TokenPair is returned by every login-like operation.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// AuthService handles password hashing, JWT issuance, and student sessions.
type AuthService struct {
	cfg    *config.Config
	broker broker.Broker
	now    func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, b broker.Broker) *AuthService {
	return &AuthService{cfg: cfg, broker: b, now: time.Now}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return apperr.InvalidCredentials("invalid credentials")
	}
	return nil
}

// IssueAdminTokens creates a token pair for an admin or the owner.
func (s *AuthService) IssueAdminTokens(adminID int, role model.AdminRole) (*TokenPair, error) {
	return s.issuePair(Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: strconv.Itoa(adminID)},
		TokenType:        TokenTypeAdmin,
		UserID:           adminID,
		Role:             role,
	})
}

// IssueStudentTokens creates a token pair for a registered student and
// records the session in the broker. A newer login replaces the stored
// session, so older tokens stop validating.
func (s *AuthService) IssueStudentTokens(ctx context.Context, studentID int) (*TokenPair, error) {
	sid := uuid.New().String()
	pair, err := s.issuePair(Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: strconv.Itoa(studentID)},
		TokenType:        TokenTypeStudent,
		UserID:           studentID,
		SessionID:        sid,
	})
	if err != nil {
		return nil, err
	}

	key := config.CacheKey.StudentSessionKey(studentID)
	if err := s.broker.Set(ctx, key, []byte(sid), s.cfg.RefreshExpiry); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return pair, nil
}

// IssueCandidateTokens creates a token pair bound to one attempt.
func (s *AuthService) IssueCandidateTokens(attemptID uuid.UUID, testKey string) (*TokenPair, error) {
	return s.issuePair(Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: attemptID.String()},
		TokenType:        TokenTypeCandidate,
		AttemptID:        attemptID.String(),
		TestKey:          testKey,
	})
}

func (s *AuthService) issuePair(base Claims) (*TokenPair, error) {
	now := s.now()

	access := base
	access.ID = uuid.New().String()
	access.IssuedAt = jwt.NewNumericDate(now)
	access.ExpiresAt = jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry))
	access.TokenUse = TokenUseAccess

	refresh := base
	refresh.ID = uuid.New().String()
	refresh.IssuedAt = jwt.NewNumericDate(now)
	refresh.ExpiresAt = jwt.NewNumericDate(now.Add(s.cfg.RefreshExpiry))
	refresh.TokenUse = TokenUseRefresh

	accessStr, err := s.sign(access)
	if err != nil {
		return nil, err
	}
	refreshStr, err := s.sign(refresh)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessStr,
		RefreshToken: refreshStr,
		ExpiresIn:    int(s.cfg.JWTExpiry.Seconds()),
	}, nil
}

func (s *AuthService) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// ValidateAccessToken is ValidateToken restricted to access tokens.
func (s *AuthService) ValidateAccessToken(tokenStr string) (*Claims, error) {
	claims, err := s.ValidateToken(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.TokenUse != TokenUseAccess {
		return nil, ErrWrongTokenUse
	}
	return claims, nil
}

// Refresh exchanges a refresh token for a new pair with the same identity.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.ValidateToken(refreshToken)
	if err != nil {
		return nil, apperr.InvalidCredentials("invalid refresh token")
	}
	if claims.TokenUse != TokenUseRefresh {
		return nil, apperr.InvalidCredentials("invalid refresh token")
	}

	base := Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: claims.Subject},
		TokenType:        claims.TokenType,
		UserID:           claims.UserID,
		Role:             claims.Role,
		SessionID:        claims.SessionID,
		AttemptID:        claims.AttemptID,
		TestKey:          claims.TestKey,
	}

	if claims.TokenType == TokenTypeStudent {
		if err := s.ValidateStudentSession(ctx, claims.UserID, claims.SessionID); err != nil {
			return nil, apperr.InvalidCredentials("session is no longer active")
		}
		key := config.CacheKey.StudentSessionKey(claims.UserID)
		if err := s.broker.Set(ctx, key, []byte(claims.SessionID), s.cfg.RefreshExpiry); err != nil {
			return nil, fmt.Errorf("extend session: %w", err)
		}
	}

	return s.issuePair(base)
}

// ValidateStudentSession checks that sid is the student's current session.
func (s *AuthService) ValidateStudentSession(ctx context.Context, studentID int, sid string) error {
	key := config.CacheKey.StudentSessionKey(studentID)
	stored, err := s.broker.Get(ctx, key)
	if err != nil {
		if errors.Is(err, broker.ErrMiss) {
			return ErrNoSession
		}
		return fmt.Errorf("check session: %w", err)
	}
	if string(stored) != sid {
		return ErrSessionInvalidated
	}
	return nil
}

// ResetStudentSession removes a student's session, logging them out everywhere.
func (s *AuthService) ResetStudentSession(ctx context.Context, studentID int) error {
	return s.broker.Del(ctx, config.CacheKey.StudentSessionKey(studentID))
}
