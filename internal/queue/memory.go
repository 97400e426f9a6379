package queue

import (
	"context"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emrgen/linkfeed/internal/model"
	"github.com/sirupsen/logrus"
)

const subscriberBuffer = 32

var _ LinkQueue = (*Memory)(nil)

// Memory is an in-process LinkQueue.
type Memory struct {
	links *topic[*model.Link]
	votes *topic[*model.Vote]
}

func NewMemory() *Memory {
	return &Memory{
		links: newTopic[*model.Link](NewLinkQueue),
		votes: newTopic[*model.Vote](NewVoteQueue),
	}
}

func (m *Memory) PublishLink(ctx context.Context, link *model.Link) error {
	m.links.publish(link)
	return nil
}

func (m *Memory) PublishVote(ctx context.Context, vote *model.Vote) error {
	m.votes.publish(vote)
	return nil
}

func (m *Memory) SubscribeLinks(ctx context.Context) (<-chan *model.Link, error) {
	return m.links.subscribe(ctx), nil
}

func (m *Memory) SubscribeVotes(ctx context.Context) (<-chan *model.Vote, error) {
	return m.votes.subscribe(ctx), nil
}

type topic[T any] struct {
	name string
	mu   sync.Mutex
	subs mapset.Set[chan T]
}

func newTopic[T any](name string) *topic[T] {
	return &topic[T]{name: name, subs: mapset.NewThreadUnsafeSet[chan T]()}
}

// publish never blocks; a subscriber whose buffer is full misses the event.
func (t *topic[T]) publish(v T) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.subs.Each(func(ch chan T) bool {
		select {
		case ch <- v:
		default:
			logrus.Warnf("%s: subscriber is full, dropping event", t.name)
		}
		return false
	})
}

func (t *topic[T]) subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, subscriberBuffer)

	t.mu.Lock()
	t.subs.Add(ch)
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		t.mu.Lock()
		t.subs.Remove(ch)
		t.mu.Unlock()
		close(ch)
	}()

	return ch
}
