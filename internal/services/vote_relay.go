package services

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ideahub/backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// VoteChannel is the Redis pub/sub channel carrying vote updates between
// instances.
const VoteChannel = "ideahub:votes"

// VotePublisher fans a new tally out to live subscribers.
type VotePublisher interface {
	PublishVotes(ctx context.Context, ideaID uuid.UUID, counts VoteCounts) error
}

// LocalVotePublisher delivers straight to this process's hub.
type LocalVotePublisher struct {
	hub *LiveHub
}

func NewLocalVotePublisher(hub *LiveHub) *LocalVotePublisher {
	return &LocalVotePublisher{hub: hub}
}

func (p *LocalVotePublisher) PublishVotes(ctx context.Context, ideaID uuid.UUID, counts VoteCounts) error {
	p.hub.Broadcast(ideaID, NewVoteUpdate(ideaID, counts))
	return nil
}

const (
	relayMinBackoff = 500 * time.Millisecond
	relayMaxBackoff = 30 * time.Second
)

// RedisVoteRelay publishes updates to Redis and rebroadcasts every update it
// receives to the local hub, so subscribers on any instance see every vote.
// While the subscription is down, updates published here are also delivered
// to the local hub directly.
type RedisVoteRelay struct {
	client     *redis.Client
	hub        *LiveHub
	channel    string
	subscribed atomic.Bool
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewRedisVoteRelay(client *redis.Client, hub *LiveHub) *RedisVoteRelay {
	return &RedisVoteRelay{
		client:     client,
		hub:        hub,
		channel:    VoteChannel,
		minBackoff: relayMinBackoff,
		maxBackoff: relayMaxBackoff,
	}
}

func (r *RedisVoteRelay) PublishVotes(ctx context.Context, ideaID uuid.UUID, counts VoteCounts) error {
	update := NewVoteUpdate(ideaID, counts)
	payload, err := json.Marshal(update)
	if err != nil {
		return err
	}
	err = r.client.Publish(ctx, r.channel, payload).Err()
	if err != nil || !r.subscribed.Load() {
		r.hub.Broadcast(ideaID, update)
	}
	return err
}

// Subscribed reports whether updates currently arrive through Redis.
func (r *RedisVoteRelay) Subscribed() bool {
	return r.subscribed.Load()
}

// Run relays messages until ctx is cancelled, resubscribing with
// exponential backoff whenever the subscription fails or closes.
func (r *RedisVoteRelay) Run(ctx context.Context) error {
	backoff := r.minBackoff
	for {
		err := r.subscribe(ctx)
		r.subscribed.Store(false)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			// the subscription was up, so start over from the short delay
			backoff = r.minBackoff
		}
		logger.Warn().Err(err).Dur("retry_in", backoff).Msg("[VoteRelay] Subscription lost, delivering locally")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}
}

// subscribe holds one subscription until it fails, closes or ctx ends.
func (r *RedisVoteRelay) subscribe(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.subscribed.Store(true)
	logger.Infof("[VoteRelay] Subscribed to %s", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle([]byte(msg.Payload))
		}
	}
}

func (r *RedisVoteRelay) handle(payload []byte) {
	var update VoteUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		logger.Warn().Err(err).Msg("[VoteRelay] Ignoring malformed message")
		return
	}
	if update.Type != voteUpdateType || update.IdeaID == uuid.Nil {
		logger.Warn().Str("type", update.Type).Msg("[VoteRelay] Ignoring unexpected message")
		return
	}
	r.hub.Broadcast(update.IdeaID, update)
}
