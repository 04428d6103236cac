package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"taskboard/internal/domain"
	"taskboard/internal/kv"
)

func newLocal(t *testing.T, now func() time.Time) *Local {
	t.Helper()
	opts := []LocalOption{WithBcryptCost(bcrypt.MinCost)}
	if now != nil {
		opts = append(opts, WithClock(now))
	}
	l, err := NewLocal(kv.NewMemory(), "test-secret", time.Hour, opts...)
	require.NoError(t, err)
	return l
}

func TestLocalSignUpSignInVerify(t *testing.T) {
	l := newLocal(t, nil)
	ctx := context.Background()

	user, err := l.SignUp(ctx, "Ana", "Ana@Example.com ", "hunter22")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.Equal(t, "Ana", user.Name)

	session, err := l.SignIn(ctx, "ana@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, user, session.User)
	assert.NotEmpty(t, session.AccessToken)

	id, err := l.Verify(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id.UserID)
	assert.Equal(t, user.Email, id.Email)
}

func TestLocalSignUpRejections(t *testing.T) {
	l := newLocal(t, nil)
	ctx := context.Background()
	_, err := l.SignUp(ctx, "Ana", "ana@example.com", "hunter22")
	require.NoError(t, err)

	var rejected *RejectedError
	_, err = l.SignUp(ctx, "Other", "ANA@example.com", "hunter22")
	assert.True(t, errors.As(err, &rejected), "duplicate email: %v", err)

	_, err = l.SignUp(ctx, "Bo", "bo@example.com", "123")
	assert.True(t, errors.As(err, &rejected), "short password: %v", err)

	_, err = l.SignUp(ctx, "Bo", "not-an-email", "hunter22")
	assert.True(t, errors.As(err, &rejected), "bad email: %v", err)

	var ve domain.ValidationError
	_, err = l.SignUp(ctx, "", "bo@example.com", "")
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "name, password", ve.Field)
}

func TestLocalSignInFailures(t *testing.T) {
	l := newLocal(t, nil)
	ctx := context.Background()
	_, err := l.SignUp(ctx, "Ana", "ana@example.com", "hunter22")
	require.NoError(t, err)

	_, err = l.SignIn(ctx, "ana@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = l.SignIn(ctx, "nobody@example.com", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = l.SignIn(ctx, "ana@example.com", "")
	var ve domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "password", ve.Field)
}

func TestLocalVerifyRejects(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newLocal(t, func() time.Time { return now })
	ctx := context.Background()
	_, err := l.SignUp(ctx, "Ana", "ana@example.com", "hunter22")
	require.NoError(t, err)
	session, err := l.SignIn(ctx, "ana@example.com", "hunter22")
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":   "",
		"garbage": "not.a.jwt",
		"foreign": foreignToken(t, "other-secret"),
	} {
		_, err := l.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}

	now = now.Add(2 * time.Hour)
	_, err = l.Verify(ctx, session.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired")
}

func TestNewLocalRequiresSecret(t *testing.T) {
	_, err := NewLocal(kv.NewMemory(), " ", time.Hour)
	assert.Error(t, err)
}

func foreignToken(t *testing.T, secret string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "intruder",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}
