package queue

import (
	"context"

	"github.com/emrgen/linkfeed/internal/model"
)

var NewLinkQueue = "link:new:queue"
var NewVoteQueue = "vote:new:queue"

// LinkQueue fans out created links and votes to subscription streams.
type LinkQueue interface {
	// PublishLink announces a created link.
	PublishLink(ctx context.Context, link *model.Link) error
	// PublishVote announces a created vote.
	PublishVote(ctx context.Context, vote *model.Vote) error
	// SubscribeLinks streams links published after it returns, until ctx ends.
	SubscribeLinks(ctx context.Context) (<-chan *model.Link, error)
	// SubscribeVotes streams votes published after it returns, until ctx ends.
	SubscribeVotes(ctx context.Context) (<-chan *model.Vote, error)
}
