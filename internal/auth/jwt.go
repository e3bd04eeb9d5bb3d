package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	AdminSubject = "admin"
	tokenTTL     = 24 * time.Hour
)

var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrInvalidToken    = errors.New("invalid token")
	ErrNotConfigured   = errors.New("admin password is not configured")
)

// Authenticator guards the admin endpoints with a single shared password and
// HS256 session tokens.
type Authenticator struct {
	secret       []byte
	password     string
	passwordHash string
	now          func() time.Time
}

// NewAuthenticator prefers passwordHash (bcrypt) over the plain password when
// both are set.
func NewAuthenticator(secret, password, passwordHash string) *Authenticator {
	return &Authenticator{
		secret:       []byte(secret),
		password:     password,
		passwordHash: passwordHash,
		now:          time.Now,
	}
}

func (a *Authenticator) CheckPassword(password string) error {
	switch {
	case a.passwordHash != "":
		if err := bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(password)); err != nil {
			return ErrInvalidPassword
		}
		return nil
	case a.password != "":
		if subtle.ConstantTimeCompare([]byte(a.password), []byte(password)) != 1 {
			return ErrInvalidPassword
		}
		return nil
	default:
		return ErrNotConfigured
	}
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func (a *Authenticator) GenerateJWT(subject string) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Authenticator) ValidateJWT(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
