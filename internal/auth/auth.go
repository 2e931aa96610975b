// Package auth holds the backend session of this device. Sessions come from
// HS256 access tokens issued by the backend for the owner account.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hray3182/Timeline/internal/models"
	"go.uber.org/zap"
)

var (
	ErrDisabled     = errors.New("authentication is not configured")
	ErrInvalidToken = errors.New("invalid access token")
)

// SessionStore persists the single session of the device
type SessionStore interface {
	LoadSession(ctx context.Context) (*models.Session, error)
	SaveSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context) error
}

type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type Provider struct {
	secret []byte
	store  SessionStore
	logger *zap.Logger
	now    func() time.Time
}

func NewProvider(secret string, store SessionStore, logger *zap.Logger) *Provider {
	return &Provider{
		secret: []byte(secret),
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

func (p *Provider) Enabled() bool {
	return len(p.secret) > 0
}

// GetSession returns the current session, or nil when there is none or it
// has expired.
func (p *Provider) GetSession(ctx context.Context) (*models.Session, error) {
	if !p.Enabled() {
		return nil, nil
	}

	session, err := p.store.LoadSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}
	if session.IsExpired(p.now()) {
		p.logger.Info("Session expired", zap.String("user_id", session.UserID), zap.Time("expires_at", session.ExpiresAt))
		return nil, nil
	}
	return session, nil
}

// SignIn verifies token and stores the session it carries.
func (p *Provider) SignIn(ctx context.Context, token string) (*models.Session, error) {
	session, err := p.Verify(token)
	if err != nil {
		return nil, err
	}
	if err := p.store.SaveSession(ctx, session); err != nil {
		return nil, err
	}

	p.logger.Info("Signed in", zap.String("user_id", session.UserID))
	return session, nil
}

func (p *Provider) SignOut(ctx context.Context) error {
	return p.store.DeleteSession(ctx)
}

// Verify checks signature, expiry and subject of an access token.
func (p *Provider) Verify(token string) (*models.Session, error) {
	if !p.Enabled() {
		return nil, ErrDisabled
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(p.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}

	session := &models.Session{
		UserID:      userID.String(),
		Email:       claims.Email,
		AccessToken: token,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return session, nil
}

// Issue signs a token for userID. Used for local development and tests.
func (p *Provider) Issue(userID, email string, ttl time.Duration) (string, error) {
	if !p.Enabled() {
		return "", ErrDisabled
	}

	now := p.now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}
