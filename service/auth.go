package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"storefront/model"
	"storefront/store"
)

const minPasswordLen = 6

var usernamePattern = regexp.MustCompile(`^[a-z0-9_.-]{3,32}$`)

// AuthService registers users and issues session tokens (HS256 JWTs).
type AuthService struct {
	accounts store.AccountStore
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

func NewAuthService(accounts store.AccountStore, secret string, ttl time.Duration) *AuthService {
	return &AuthService{accounts: accounts, secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (a *AuthService) Register(ctx context.Context, username, password string) error {
	if !usernamePattern.MatchString(username) {
		return &model.ValidationError{Field: "username", Reason: "3-32 chars of a-z 0-9 _ . -"}
	}
	if len(password) < minPasswordLen {
		return &model.ValidationError{Field: "password", Reason: fmt.Sprintf("at least %d characters", minPasswordLen)}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return a.accounts.CreateUser(ctx, username, string(hash))
}

func (a *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	u, err := a.accounts.GetUser(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := a.now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": u.Username,
		"typ": "session",
		"iat": now.Unix(),
		"exp": now.Add(a.ttl).Unix(),
	})
	return t.SignedString(a.secret)
}

func (a *AuthService) ParseToken(token string) (*Session, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims["typ"] != "session" {
		return nil, fmt.Errorf("%w: invalid token type", ErrUnauthenticated)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: invalid sub", ErrUnauthenticated)
	}
	return &Session{Username: sub}, nil
}
