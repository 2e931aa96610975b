package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hray3182/Timeline/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryStore struct {
	session *models.Session
}

func (m *memoryStore) LoadSession(ctx context.Context) (*models.Session, error) {
	return m.session, nil
}

func (m *memoryStore) SaveSession(ctx context.Context, session *models.Session) error {
	m.session = session
	return nil
}

func (m *memoryStore) DeleteSession(ctx context.Context) error {
	m.session = nil
	return nil
}

func TestSignInAndGetSession(t *testing.T) {
	store := &memoryStore{}
	p := NewProvider("secret", store, zap.NewNop())
	ctx := context.Background()
	userID := uuid.NewString()

	token, err := p.Issue(userID, "me@example.com", time.Hour)
	require.NoError(t, err)

	session, err := p.SignIn(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, userID, session.UserID)
	assert.Equal(t, "me@example.com", session.Email)

	got, err := p.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, userID, got.UserID)

	require.NoError(t, p.SignOut(ctx))
	got, err = p.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestExpiredSessionIsAbsent(t *testing.T) {
	store := &memoryStore{session: &models.Session{
		UserID:    uuid.NewString(),
		ExpiresAt: time.Now().Add(-time.Minute),
	}}
	p := NewProvider("secret", store, zap.NewNop())

	got, err := p.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestVerifyRejects(t *testing.T) {
	p := NewProvider("secret", &memoryStore{}, zap.NewNop())

	other := NewProvider("other", &memoryStore{}, zap.NewNop())
	foreign, err := other.Issue(uuid.NewString(), "", time.Hour)
	require.NoError(t, err)
	_, err = p.Verify(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := p.Issue(uuid.NewString(), "", -time.Hour)
	require.NoError(t, err)
	_, err = p.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	badSubject, err := p.Issue("not-a-uuid", "", time.Hour)
	require.NoError(t, err)
	_, err = p.Verify(badSubject)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: uuid.NewString()})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = p.Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDisabledProvider(t *testing.T) {
	p := NewProvider("", &memoryStore{session: &models.Session{UserID: "u"}}, zap.NewNop())

	got, err := p.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = p.SignIn(context.Background(), "token")
	assert.ErrorIs(t, err, ErrDisabled)
}
