package services

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/ideahub/backend/pkg/logger"
)

// LiveConn is one open live channel to a client. Send must be safe to call
// from a goroutine other than the connection's reader.
type LiveConn interface {
	ID() string
	Send(payload []byte) error
	Close() error
}

// VoteUpdate is the message pushed to live subscribers of an idea.
type VoteUpdate struct {
	Type   string    `json:"type"`
	IdeaID uuid.UUID `json:"idea_id"`
	VoteCounts
}

const voteUpdateType = "votes"

func NewVoteUpdate(ideaID uuid.UUID, counts VoteCounts) VoteUpdate {
	return VoteUpdate{Type: voteUpdateType, IdeaID: ideaID, VoteCounts: counts}
}

// LiveHub maps idea ids to their open live connections. It is owned by the
// server process and holds no durable state.
type LiveHub struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]map[LiveConn]struct{}
	closed bool
}

func NewLiveHub() *LiveHub {
	return &LiveHub{
		subs: make(map[uuid.UUID]map[LiveConn]struct{}),
	}
}

// Subscribe registers conn for updates on ideaID. The caller sends the
// initial snapshot itself. Returns false once the hub is closed.
func (h *LiveHub) Subscribe(conn LiveConn, ideaID uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	set, ok := h.subs[ideaID]
	if !ok {
		set = make(map[LiveConn]struct{})
		h.subs[ideaID] = set
	}
	set[conn] = struct{}{}
	return true
}

// Unsubscribe removes conn and drops the idea entry once it is empty.
func (h *LiveHub) Unsubscribe(conn LiveConn, ideaID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(conn, ideaID)
}

func (h *LiveHub) removeLocked(conn LiveConn, ideaID uuid.UUID) bool {
	set, ok := h.subs[ideaID]
	if !ok {
		return false
	}
	if _, ok := set[conn]; !ok {
		return false
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.subs, ideaID)
	}
	return true
}

// Broadcast sends payload to every connection subscribed to ideaID and
// returns how many received it. Connections that fail are closed and
// unsubscribed; the failure is never returned.
func (h *LiveHub) Broadcast(ideaID uuid.UUID, payload interface{}) int {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error().Err(err).Str("idea_id", ideaID.String()).Msg("[LiveHub] Failed to encode payload")
		return 0
	}

	h.mu.Lock()
	set := h.subs[ideaID]
	conns := make([]LiveConn, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	delivered := 0
	for _, c := range conns {
		if err := c.Send(data); err != nil {
			logger.Warn().Err(err).
				Str("idea_id", ideaID.String()).
				Str("conn_id", c.ID()).
				Msg("[LiveHub] Dropping dead connection")
			h.drop(c, ideaID)
			continue
		}
		delivered++
	}
	return delivered
}

func (h *LiveHub) drop(c LiveConn, ideaID uuid.UUID) {
	h.mu.Lock()
	removed := h.removeLocked(c, ideaID)
	h.mu.Unlock()

	if removed {
		c.Close()
	}
}

// SubscriberCount returns the number of connections for one idea.
func (h *LiveHub) SubscriberCount(ideaID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[ideaID])
}

// ConnectionCount returns the number of subscriptions across all ideas.
func (h *LiveHub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

// IdeaCount returns the number of ideas with at least one subscriber.
func (h *LiveHub) IdeaCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close closes every connection and rejects further subscriptions.
func (h *LiveHub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[uuid.UUID]map[LiveConn]struct{})
	h.closed = true
	h.mu.Unlock()

	for _, set := range subs {
		for c := range set {
			c.Close()
		}
	}
}
