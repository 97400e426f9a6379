package service

import (
	"context"
	"strings"

	"github.com/emrgen/linkfeed/internal/client"
	"github.com/emrgen/linkfeed/internal/gql"
	"github.com/emrgen/linkfeed/internal/model"
	"github.com/emrgen/linkfeed/internal/token"
	"github.com/sirupsen/logrus"
)

// AuthPayload is what login and signup return.
type AuthPayload struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// AuthService logs in and out, keeping the session token in a store the
// transports read from.
type AuthService struct {
	client *client.Client
	tokens token.Store
}

func NewAuthService(c *client.Client, tokens token.Store) *AuthService {
	return &AuthService{client: c, tokens: tokens}
}

func (s *AuthService) Signup(ctx context.Context, email, password, name string) (*AuthPayload, error) {
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}
	return s.authenticate(ctx, SignupMutation, "signup", map[string]any{
		"email":    strings.ToLower(email),
		"password": password,
		"name":     name,
	})
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthPayload, error) {
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}
	return s.authenticate(ctx, LoginMutation, "login", map[string]any{
		"email":    strings.ToLower(email),
		"password": password,
	})
}

func (s *AuthService) authenticate(ctx context.Context, doc *gql.Document, field string, variables map[string]any) (*AuthPayload, error) {
	res, err := s.client.Mutate(ctx, doc, client.MutateOptions{
		Variables:   variables,
		FetchPolicy: client.NoCache,
	})
	if err != nil {
		return nil, err
	}

	var payload AuthPayload
	if err := decodeField(res.Data, field, &payload); err != nil {
		return nil, err
	}
	if payload.Token == "" {
		return nil, ErrUnexpectedResult
	}

	if err := s.tokens.SetToken(payload.Token); err != nil {
		return nil, err
	}
	if payload.User != nil {
		logrus.Infof("logged in as %s", payload.User.Name)
	}

	return &payload, nil
}

// Logout forgets the session token.
func (s *AuthService) Logout() error {
	return s.tokens.Clear()
}

// Whoami decodes the stored session token.
func (s *AuthService) Whoami() (*token.Claims, error) {
	t, err := s.tokens.Token()
	if err != nil {
		return nil, err
	}
	if t == "" {
		return nil, token.ErrNoToken
	}
	return token.ParseClaims(t)
}
