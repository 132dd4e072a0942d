package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlink/backend/internal/infrastructure/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestService(now time.Time) *JWTService {
	s := NewJWTService(config.OpsConfig{JWTSecret: testSecret, JWTIssuer: "ledgerlink"})
	s.now = func() time.Time { return now }
	return s
}

func TestJWTService_IssueAndValidate(t *testing.T) {
	now := time.Now()
	s := newTestService(now)

	issued, err := s.Issue("alice", []string{ScopePoll, ScopeRead}, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, issued.ID)
	assert.WithinDuration(t, now.Add(time.Hour), issued.ExpiresAt, time.Second)

	claims, err := s.Validate(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Operator)
	assert.Equal(t, issued.ID, claims.ID)
	assert.True(t, claims.HasScope(ScopePoll))
	assert.False(t, claims.HasScope("admin"))
	assert.InDelta(t, time.Hour.Seconds(), claims.RemainingTTL(now).Seconds(), 1)
}

func TestJWTService_Issue_Errors(t *testing.T) {
	s := newTestService(time.Now())
	_, err := s.Issue("", nil, time.Hour)
	assert.ErrorIs(t, err, ErrMissingOperator)

	empty := NewJWTService(config.OpsConfig{})
	_, err = empty.Issue("alice", nil, time.Hour)
	assert.ErrorIs(t, err, ErrMissingSecret)
	_, err = empty.Validate("anything")
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestJWTService_Validate_Expired(t *testing.T) {
	now := time.Now()
	issued, err := newTestService(now).Issue("alice", nil, time.Minute)
	require.NoError(t, err)

	_, err = newTestService(now.Add(2 * time.Minute)).Validate(issued.Token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTService_Validate_NotYetValid(t *testing.T) {
	now := time.Now()
	issued, err := newTestService(now.Add(time.Hour)).Issue("alice", nil, 2*time.Hour)
	require.NoError(t, err)

	_, err = newTestService(now).Validate(issued.Token)
	assert.ErrorIs(t, err, ErrTokenNotYetValid)
}

func TestJWTService_Validate_Rejects(t *testing.T) {
	now := time.Now()
	s := newTestService(now)

	t.Run("garbage", func(t *testing.T) {
		_, err := s.Validate("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other secret", func(t *testing.T) {
		other := NewJWTService(config.OpsConfig{JWTSecret: "another-secret-another-secret-xx", JWTIssuer: "ledgerlink"})
		issued, err := other.Issue("alice", nil, time.Hour)
		require.NoError(t, err)
		_, err = s.Validate(issued.Token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other issuer", func(t *testing.T) {
		other := NewJWTService(config.OpsConfig{JWTSecret: testSecret, JWTIssuer: "someone-else"})
		issued, err := other.Issue("alice", nil, time.Hour)
		require.NoError(t, err)
		_, err = s.Validate(issued.Token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		claims := &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "ledgerlink",
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
			Operator: "alice",
		}
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = s.Validate(unsigned)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing operator", func(t *testing.T) {
		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "ledgerlink",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		_, err = s.Validate(signed)
		assert.ErrorIs(t, err, ErrMissingOperator)
	})
}
