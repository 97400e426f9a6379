package server

import (
	"context"
	"errors"
	"time"

	"github.com/emrgen/linkfeed/internal/module"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// TokenService issues session tokens and resolves them back to users.
type TokenService interface {
	module.TokenVerifier
	IssueToken(ctx context.Context, userID string) (string, error)
}

var _ TokenService = (*JwtTokenService)(nil)

// JwtTokenService signs HS256 tokens carrying the user id.
type JwtTokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewJwtTokenService(secret string, ttl time.Duration) *JwtTokenService {
	return &JwtTokenService{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

type sessionClaims struct {
	UserID string `json:"userId"`
	gojwt.RegisteredClaims
}

func (t *JwtTokenService) IssueToken(ctx context.Context, userID string) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		UserID: userID,
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:  userID,
			IssuedAt: gojwt.NewNumericDate(now),
		},
	}
	if t.ttl > 0 {
		claims.ExpiresAt = gojwt.NewNumericDate(now.Add(t.ttl))
	}

	return gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(t.secret)
}

func (t *JwtTokenService) VerifyToken(ctx context.Context, token string) (string, error) {
	var claims sessionClaims
	_, err := gojwt.ParseWithClaims(token, &claims, func(token *gojwt.Token) (any, error) {
		return t.secret, nil
	}, gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}))
	if err != nil {
		logrus.Debugf("failed to verify token: %v", err)
		return "", err
	}

	if claims.UserID == "" {
		return "", errors.New("token carries no user")
	}
	return claims.UserID, nil
}

// NullTokenService takes any token to be the user id it names. It is meant
// for local runs where nobody signs tokens.
type NullTokenService struct{}

var _ TokenService = NullTokenService{}

func NewNullTokenService() NullTokenService {
	return NullTokenService{}
}

func (NullTokenService) IssueToken(ctx context.Context, userID string) (string, error) {
	return userID, nil
}

func (NullTokenService) VerifyToken(ctx context.Context, token string) (string, error) {
	logrus.Debugf("null token service: %v", token)
	return token, nil
}
