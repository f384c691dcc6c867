package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
)

type fakeConn struct {
	id     string
	mu     sync.Mutex
	sent   [][]byte
	fail   bool
	closed bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail || c.closed {
		return errors.New("connection closed")
	}
	c.sent = append(c.sent, payload)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Messages() []VoteUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]VoteUpdate, 0, len(c.sent))
	for _, raw := range c.sent {
		var u VoteUpdate
		if err := json.Unmarshal(raw, &u); err == nil {
			out = append(out, u)
		}
	}
	return out
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestLiveHub_NewLiveHub(t *testing.T) {
	hub := NewLiveHub()
	if hub == nil {
		t.Fatal("NewLiveHub should not return nil")
	}
	if hub.ConnectionCount() != 0 {
		t.Errorf("new hub should have 0 connections, got %d", hub.ConnectionCount())
	}
	if hub.IdeaCount() != 0 {
		t.Errorf("new hub should have 0 ideas, got %d", hub.IdeaCount())
	}
}

func TestLiveHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewLiveHub()
	idea := uuid.New()
	c1, c2 := newFakeConn("c1"), newFakeConn("c2")

	hub.Subscribe(c1, idea)
	hub.Subscribe(c2, idea)
	hub.Subscribe(c2, idea)
	if n := hub.SubscriberCount(idea); n != 2 {
		t.Fatalf("expected 2 subscribers, got %d", n)
	}

	hub.Unsubscribe(c1, idea)
	if n := hub.SubscriberCount(idea); n != 1 {
		t.Errorf("expected 1 subscriber after unsubscribe, got %d", n)
	}

	hub.Unsubscribe(newFakeConn("stranger"), idea)
	hub.Unsubscribe(c2, uuid.New())
	if n := hub.SubscriberCount(idea); n != 1 {
		t.Errorf("unknown unsubscribes should not affect count, got %d", n)
	}

	hub.Unsubscribe(c2, idea)
	if hub.IdeaCount() != 0 {
		t.Errorf("empty idea entry should be removed, got %d ideas", hub.IdeaCount())
	}
}

func TestLiveHub_BroadcastOnlyToIdea(t *testing.T) {
	hub := NewLiveHub()
	ideaI, ideaJ := uuid.New(), uuid.New()
	onI, onJ := newFakeConn("i"), newFakeConn("j")
	hub.Subscribe(onI, ideaI)
	hub.Subscribe(onJ, ideaJ)

	counts := newVoteCounts(3, 1)
	if n := hub.Broadcast(ideaI, NewVoteUpdate(ideaI, counts)); n != 1 {
		t.Errorf("expected 1 delivery, got %d", n)
	}

	msgs := onI.Messages()
	if len(msgs) != 1 {
		t.Fatalf("subscriber of I should get 1 message, got %d", len(msgs))
	}
	if msgs[0].Type != "votes" || msgs[0].IdeaID != ideaI {
		t.Errorf("unexpected message %+v", msgs[0])
	}
	if msgs[0].VoteCounts != counts {
		t.Errorf("counts = %+v, expected %+v", msgs[0].VoteCounts, counts)
	}
	if len(onJ.Messages()) != 0 {
		t.Error("subscriber of J should not receive I's update")
	}
}

func TestLiveHub_BroadcastDropsDeadConnections(t *testing.T) {
	hub := NewLiveHub()
	idea := uuid.New()
	alive1, dead, alive2 := newFakeConn("a1"), newFakeConn("dead"), newFakeConn("a2")
	dead.fail = true
	for _, c := range []*fakeConn{alive1, dead, alive2} {
		hub.Subscribe(c, idea)
	}

	if n := hub.Broadcast(idea, NewVoteUpdate(idea, VoteCounts{})); n != 2 {
		t.Errorf("expected 2 deliveries, got %d", n)
	}
	if len(alive1.Messages()) != 1 || len(alive2.Messages()) != 1 {
		t.Error("a failing peer must not stop delivery to the others")
	}
	if !dead.IsClosed() {
		t.Error("dead connection should be closed")
	}
	if n := hub.SubscriberCount(idea); n != 2 {
		t.Errorf("dead connection should be removed, got %d subscribers", n)
	}
}

func TestLiveHub_LastDeadConnectionRemovesIdea(t *testing.T) {
	hub := NewLiveHub()
	idea := uuid.New()
	dead := newFakeConn("dead")
	dead.fail = true
	hub.Subscribe(dead, idea)

	hub.Broadcast(idea, NewVoteUpdate(idea, VoteCounts{}))
	if hub.IdeaCount() != 0 {
		t.Errorf("idea entry should be removed, got %d ideas", hub.IdeaCount())
	}
}

func TestLiveHub_BroadcastWithoutSubscribers(t *testing.T) {
	hub := NewLiveHub()
	if n := hub.Broadcast(uuid.New(), NewVoteUpdate(uuid.New(), VoteCounts{})); n != 0 {
		t.Errorf("expected 0 deliveries, got %d", n)
	}
}

func TestLiveHub_Close(t *testing.T) {
	hub := NewLiveHub()
	idea := uuid.New()
	c := newFakeConn("c")
	hub.Subscribe(c, idea)

	hub.Close()
	if !c.IsClosed() {
		t.Error("Close should close open connections")
	}
	if hub.ConnectionCount() != 0 {
		t.Errorf("expected 0 connections after close, got %d", hub.ConnectionCount())
	}
	if hub.Subscribe(newFakeConn("late"), idea) {
		t.Error("Subscribe should fail after Close")
	}
}

func TestLiveHub_ConcurrentAccess(t *testing.T) {
	hub := NewLiveHub()
	ideas := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			idea := ideas[i%len(ideas)]
			c := newFakeConn(fmt.Sprintf("c%d", i))
			c.fail = i%5 == 0
			hub.Subscribe(c, idea)
			hub.Broadcast(idea, NewVoteUpdate(idea, newVoteCounts(i, 0)))
			hub.Unsubscribe(c, idea)
		}(i)
	}
	wg.Wait()

	if hub.ConnectionCount() != 0 {
		t.Errorf("expected 0 connections, got %d", hub.ConnectionCount())
	}
	if hub.IdeaCount() != 0 {
		t.Errorf("expected 0 ideas, got %d", hub.IdeaCount())
	}
}

func TestLocalVotePublisher(t *testing.T) {
	hub := NewLiveHub()
	idea := uuid.New()
	c := newFakeConn("c")
	hub.Subscribe(c, idea)

	pub := NewLocalVotePublisher(hub)
	if err := pub.PublishVotes(context.Background(), idea, newVoteCounts(2, 0)); err != nil {
		t.Fatalf("PublishVotes() error = %v", err)
	}

	msgs := c.Messages()
	if len(msgs) != 1 || msgs[0].Score != 2 {
		t.Errorf("expected one update with score 2, got %+v", msgs)
	}
}
