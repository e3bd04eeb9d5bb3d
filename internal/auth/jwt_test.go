package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	tests := []struct {
		name     string
		auth     *Authenticator
		password string
		wantErr  error
	}{
		{"plain ok", NewAuthenticator("k", "s3cret", ""), "s3cret", nil},
		{"plain wrong", NewAuthenticator("k", "s3cret", ""), "nope", ErrInvalidPassword},
		{"hash ok", NewAuthenticator("k", "", hash), "s3cret", nil},
		{"hash wins over plain", NewAuthenticator("k", "other", hash), "other", ErrInvalidPassword},
		{"unconfigured", NewAuthenticator("k", "", ""), "", ErrNotConfigured},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.auth.CheckPassword(tt.password)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestJWTRoundTrip(t *testing.T) {
	a := NewAuthenticator("secret", "pw", "")

	token, err := a.GenerateJWT(AdminSubject)
	require.NoError(t, err)

	sub, err := a.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, AdminSubject, sub)

	_, err = NewAuthenticator("other", "pw", "").ValidateJWT(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.ValidateJWT("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTExpires(t *testing.T) {
	a := NewAuthenticator("secret", "pw", "")
	issued := time.Now().Add(-25 * time.Hour)
	a.now = func() time.Time { return issued }

	token, err := a.GenerateJWT(AdminSubject)
	require.NoError(t, err)

	a.now = time.Now
	_, err = a.ValidateJWT(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
