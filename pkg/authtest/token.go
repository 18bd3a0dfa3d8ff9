// Package authtest mints and verifies the disposable JWT credentials the
// suites use against the Golden Path staging deployment. A test user lives
// for one test and is discarded at teardown.
package authtest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token verification errors. Messages deliberately contain the substrings
// ("unauthorized", "expired") the negative suites classify on.
var (
	ErrExpired      = errors.New("unauthorized: token expired")
	ErrInvalidToken = errors.New("unauthorized: invalid token")
)

// TestUser is a disposable credential: a JWT plus the identity baked into it.
type TestUser struct {
	UserID string
	Email  string
	Token  string
}

// Claims is the verified identity carried by a token.
type Claims struct {
	UserID string
	Email  string
}

// Minter signs HS256 test tokens with a shared secret. The same secret flows
// to the scripted staging replica so locally minted users are accepted there.
type Minter struct {
	secret []byte
	ttl    time.Duration
}

// NewMinter creates a minter with a one-hour token lifetime.
func NewMinter(secret string) *Minter {
	return &Minter{secret: []byte(secret), ttl: time.Hour}
}

// MintUser creates a fresh test user with a random identity.
func (m *Minter) MintUser(prefix string) (TestUser, error) {
	id := uuid.NewString()
	email := fmt.Sprintf("%s-%s@e2e.goldenpath.dev", prefix, id[:8])
	token, err := m.Mint(id, email, m.ttl)
	if err != nil {
		return TestUser{}, err
	}
	return TestUser{UserID: id, Email: email, Token: token}, nil
}

// Mint signs a token for the given identity with the given lifetime.
// A negative ttl yields an already-expired token.
func (m *Minter) Mint(userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"id":    userID,
		"email": email,
		"type":  "access",
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// MintExpired creates a user whose token expired an hour ago.
func (m *Minter) MintExpired(prefix string) (TestUser, error) {
	id := uuid.NewString()
	email := fmt.Sprintf("%s-%s@e2e.goldenpath.dev", prefix, id[:8])
	token, err := m.Mint(id, email, -time.Hour)
	if err != nil {
		return TestUser{}, err
	}
	return TestUser{UserID: id, Email: email, Token: token}, nil
}

// Verify parses and validates a bearer token (with or without the "Bearer "
// prefix) and returns the identity it carries.
func (m *Minter) Verify(tokenString string) (Claims, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	if tokenString == "" {
		return Claims{}, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims["type"] != "access" {
		return Claims{}, ErrInvalidToken
	}
	userID, ok := claims["id"].(string)
	if !ok || userID == "" {
		return Claims{}, ErrInvalidToken
	}
	email, _ := claims["email"].(string)

	return Claims{UserID: userID, Email: email}, nil
}

// MalformedToken returns a string that is not a JWT at all.
func MalformedToken() string {
	return "not-a-jwt-token"
}
