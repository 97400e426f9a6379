package queue

import (
	"context"
	"encoding/json"

	"github.com/emrgen/linkfeed/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var _ LinkQueue = (*Redis)(nil)

// Redis is a LinkQueue over redis pub/sub, shared by every server process
// connected to the same redis.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) PublishLink(ctx context.Context, link *model.Link) error {
	return publish(ctx, r.client, NewLinkQueue, link)
}

func (r *Redis) PublishVote(ctx context.Context, vote *model.Vote) error {
	return publish(ctx, r.client, NewVoteQueue, vote)
}

func (r *Redis) SubscribeLinks(ctx context.Context) (<-chan *model.Link, error) {
	return subscribe[model.Link](ctx, r.client, NewLinkQueue)
}

func (r *Redis) SubscribeVotes(ctx context.Context) (<-chan *model.Vote, error) {
	return subscribe[model.Vote](ctx, r.client, NewVoteQueue)
}

func publish(ctx context.Context, client *redis.Client, channel string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return client.Publish(ctx, channel, payload).Err()
}

func subscribe[T any](ctx context.Context, client *redis.Client, channel string) (<-chan *T, error) {
	pubsub := client.Subscribe(ctx, channel)
	// wait for the subscription so nothing published after return is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	out := make(chan *T, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var v T
				if err := json.Unmarshal([]byte(msg.Payload), &v); err != nil {
					logrus.Warnf("%s: invalid message: %v", channel, err)
					continue
				}
				select {
				case out <- &v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
