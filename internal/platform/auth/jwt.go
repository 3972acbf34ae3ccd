package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ScopeCheck 允许查询、取消和清除缓存；ScopeAdmin 拥有全部权限。
const (
	ScopeCheck = "check"
	ScopeAdmin = "admin"
)

var (
	ErrEmptySecret   = errors.New("jwt secret is empty")
	ErrEmptyIssuer   = errors.New("jwt issuer is empty")
	ErrInvalidTTL    = errors.New("jwt ttl must be > 0")
	ErrEmptyClientID = errors.New("empty client id")
)

type Claims struct {
	ClientID string
	Scope    string
}

type jwtClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

type TokenService interface {
	Sign(clientID string, scope string) (string, error)
	Verify(token string) (Claims, error)
}

func NewHS256Service(secret, issuer string, ttl time.Duration) (TokenService, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if issuer == "" {
		return nil, ErrEmptyIssuer
	}
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	return &hs256Service{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}
