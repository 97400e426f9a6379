package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/emrgen/linkfeed/internal/model"
	"github.com/emrgen/linkfeed/internal/module"
	"github.com/emrgen/linkfeed/internal/queue"
	"github.com/emrgen/linkfeed/internal/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vektah/gqlparser/v2/ast"
	"golang.org/x/crypto/bcrypt"
)

var (
	errInvalidCredentials = errors.New("invalid email or password")
	errUnknownField       = errors.New("unknown field")
)

// Resolver resolves the root fields of the schema.
type Resolver struct {
	store  store.Store
	queue  queue.LinkQueue
	tokens TokenService
}

func NewResolver(s store.Store, q queue.LinkQueue, tokens TokenService) *Resolver {
	return &Resolver{store: s, queue: q, tokens: tokens}
}

func (r *Resolver) Query(ctx context.Context, field *ast.Field, args map[string]any) (any, error) {
	switch field.Name {
	case "info":
		return "linkfeed development server", nil
	case "feed":
		return r.feed(ctx, args)
	}
	return nil, fmt.Errorf("%w: Query.%s", errUnknownField, field.Name)
}

func (r *Resolver) Mutation(ctx context.Context, field *ast.Field, args map[string]any) (any, error) {
	switch field.Name {
	case "post":
		return r.post(ctx, stringArg(args, "url"), stringArg(args, "description"))
	case "signup":
		return r.signup(ctx, stringArg(args, "email"), stringArg(args, "password"), stringArg(args, "name"))
	case "login":
		return r.login(ctx, stringArg(args, "email"), stringArg(args, "password"))
	case "vote":
		return r.vote(ctx, stringArg(args, "linkId"))
	}
	return nil, fmt.Errorf("%w: Mutation.%s", errUnknownField, field.Name)
}

// Subscription streams the events of a subscription root field until ctx
// ends.
func (r *Resolver) Subscription(ctx context.Context, field *ast.Field) (<-chan *object, error) {
	out := make(chan *object)

	switch field.Name {
	case "newLink":
		links, err := r.queue.SubscribeLinks(ctx)
		if err != nil {
			return nil, err
		}
		go forward(ctx, links, out, linkObject)
	case "newVote":
		votes, err := r.queue.SubscribeVotes(ctx)
		if err != nil {
			return nil, err
		}
		go forward(ctx, votes, out, voteObject)
	default:
		return nil, fmt.Errorf("%w: Subscription.%s", errUnknownField, field.Name)
	}

	return out, nil
}

func forward[T any](ctx context.Context, in <-chan T, out chan<- *object, convert func(T) *object) {
	defer close(out)
	for v := range in {
		select {
		case out <- convert(v):
		case <-ctx.Done():
			return
		}
	}
}

func (r *Resolver) feed(ctx context.Context, args map[string]any) (*object, error) {
	opts := store.ListLinksOptions{
		Filter: stringArg(args, "filter"),
		Skip:   intArg(args, "skip"),
		Take:   intArg(args, "first"),
	}
	if orderBy, ok := args["orderBy"].(map[string]any); ok && orderBy["createdAt"] == "asc" {
		opts.Oldest = true
	}

	links, count, err := r.store.ListLinks(ctx, opts)
	if err != nil {
		return nil, err
	}

	objects := make([]*object, len(links))
	for i, l := range links {
		objects[i] = linkObject(l)
	}
	return &object{typename: "Feed", fields: map[string]any{
		"links": objects,
		"count": count,
	}}, nil
}

func (r *Resolver) post(ctx context.Context, rawURL, description string) (*object, error) {
	userID, err := module.UserID(ctx)
	if err != nil {
		return nil, err
	}
	if u, err := url.Parse(rawURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid url: %q", rawURL)
	}

	link := &model.Link{
		ID:          uuid.New().String(),
		URL:         rawURL,
		Description: strings.TrimSpace(description),
		PostedByID:  &userID,
	}
	if err := r.store.CreateLink(ctx, link); err != nil {
		return nil, err
	}

	created, err := r.store.GetLink(ctx, link.ID)
	if err != nil {
		return nil, err
	}
	if err := r.queue.PublishLink(ctx, created); err != nil {
		logrus.Warnf("publish link %s: %v", created.ID, err)
	}

	logrus.Infof("link %s posted by %s", created.ID, userID)
	return linkObject(created), nil
}

func (r *Resolver) signup(ctx context.Context, email, password, name string) (*object, error) {
	if email == "" || password == "" {
		return nil, errInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		ID:       uuid.New().String(),
		Name:     name,
		Email:    strings.ToLower(email),
		Password: string(hash),
	}
	if err := r.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, fmt.Errorf("user %s already exists", user.Email)
		}
		return nil, err
	}

	return r.authPayload(ctx, user)
}

func (r *Resolver) login(ctx context.Context, email, password string) (*object, error) {
	user, err := r.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, errInvalidCredentials
	}

	return r.authPayload(ctx, user)
}

func (r *Resolver) authPayload(ctx context.Context, user *model.User) (*object, error) {
	token, err := r.tokens.IssueToken(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &object{typename: "AuthPayload", fields: map[string]any{
		"token": token,
		"user":  userObject(user),
	}}, nil
}

func (r *Resolver) vote(ctx context.Context, linkID string) (*object, error) {
	userID, err := module.UserID(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := r.store.GetLink(ctx, linkID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("link %s not found", linkID)
		}
		return nil, err
	}

	vote := &model.Vote{
		ID:     uuid.New().String(),
		LinkID: linkID,
		UserID: userID,
	}
	if err := r.store.CreateVote(ctx, vote); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, fmt.Errorf("already voted for link: %s", linkID)
		}
		return nil, err
	}

	created, err := r.store.GetVote(ctx, vote.ID)
	if err != nil {
		return nil, err
	}
	if err := r.queue.PublishVote(ctx, created); err != nil {
		logrus.Warnf("publish vote %s: %v", created.ID, err)
	}

	return voteObject(created), nil
}

func linkObject(l *model.Link) *object {
	votes := make([]*object, len(l.Votes))
	for i := range l.Votes {
		vote := l.Votes[i]
		if vote.Link == nil {
			vote.Link = l
		}
		votes[i] = voteObject(&vote)
	}

	var postedBy any
	if l.PostedBy != nil {
		postedBy = userObject(l.PostedBy)
	}

	return &object{typename: "Link", fields: map[string]any{
		"id":          l.ID,
		"createdAt":   l.CreatedAt.UTC().Format(time.RFC3339Nano),
		"description": l.Description,
		"url":         l.URL,
		"postedBy":    postedBy,
		"votes":       votes,
	}}
}

func voteObject(v *model.Vote) *object {
	return &object{typename: "Vote", fields: map[string]any{
		"id": v.ID,
		// links and votes refer to each other
		"link": thunk(func(ctx context.Context) (any, error) {
			if v.Link == nil {
				return &object{typename: "Link", fields: map[string]any{"id": v.LinkID}}, nil
			}
			return linkObject(v.Link), nil
		}),
		"user": thunk(func(ctx context.Context) (any, error) {
			if v.User == nil {
				return &object{typename: "User", fields: map[string]any{"id": v.UserID}}, nil
			}
			return userObject(v.User), nil
		}),
	}}
}

func userObject(u *model.User) *object {
	return &object{typename: "User", fields: map[string]any{
		"id":    u.ID,
		"name":  u.Name,
		"email": u.Email,
	}}
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

func intArg(args map[string]any, name string) int {
	switch v := args[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}
