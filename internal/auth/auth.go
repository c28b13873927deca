package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidKey     = errors.New("invalid API key")
	ErrMissingAccount = errors.New("account is required")
	ErrKeyGeneration  = errors.New("failed to generate API key")
	ErrUnknownAccount = errors.New("account is not registered")
)

// Claims carried by a venue API key
type Claims struct {
	jwt.RegisteredClaims
	Account string `json:"account"`
}

// Service issues and validates venue API keys. A key is an HS256 JWT naming
// the trading account it may act for.
type Service struct {
	secret   []byte
	ttl      time.Duration
	accounts map[string]bool
}

// NewService creates a key service. A zero ttl issues keys that never expire.
func NewService(secret string, ttl time.Duration) *Service {
	return &Service{
		secret:   []byte(secret),
		ttl:      ttl,
		accounts: make(map[string]bool),
	}
}

// Register allows keys to be issued for account
func (s *Service) Register(account string) {
	s.accounts[account] = true
}

// IssueKey returns a signed key for a registered account
func (s *Service) IssueKey(account string) (string, error) {
	if account == "" {
		return "", ErrMissingAccount
	}
	if !s.accounts[account] {
		return "", fmt.Errorf("%w: %s", ErrUnknownAccount, account)
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		Account: account,
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	key, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", ErrKeyGeneration
	}
	return key, nil
}

// Validate verifies a key's signature and expiry and returns its claims
func (s *Service) Validate(key string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(key, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Account == "" {
		return nil, ErrInvalidKey
	}
	return claims, nil
}
