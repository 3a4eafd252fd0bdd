package live

import (
	"sort"
	"sync"

	"github.com/okian/starchallenge/internal/domain/types"
)

// Conn is one live subscriber as seen by the broker.
type Conn interface {
	ID() string
	// Send queues msg without blocking. It fails with ErrSlowConsumer or ErrConnClosed.
	Send(msg []byte) error
	Close() error
}

// Registry tracks connections and their challenge memberships. Readers get
// copies, so callers may iterate while others subscribe or disconnect.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]Conn
	topics map[string]map[string]Conn
	joined map[string]map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]Conn),
		topics: make(map[string]map[string]Conn),
		joined: make(map[string]map[string]struct{}),
	}
}

// Add registers a connection. It reports false if the id was already present.
func (r *Registry) Add(c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c.ID()]; ok {
		return false
	}
	r.conns[c.ID()] = c
	return true
}

// Join subscribes c to topic, registering c if needed. It reports whether
// the membership is new.
func (r *Registry) Join(c Conn, topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := c.ID()
	if _, ok := r.conns[id]; !ok {
		r.conns[id] = c
	}
	members, ok := r.topics[topic]
	if !ok {
		members = make(map[string]Conn)
		r.topics[topic] = members
	}
	if _, ok := members[id]; ok {
		return false
	}
	members[id] = c

	set, ok := r.joined[id]
	if !ok {
		set = make(map[string]struct{})
		r.joined[id] = set
	}
	set[topic] = struct{}{}
	return true
}

// Leave removes one membership. It reports whether anything changed.
func (r *Registry) Leave(connID, topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(connID, topic)
}

func (r *Registry) leaveLocked(connID, topic string) bool {
	members, ok := r.topics[topic]
	if !ok {
		return false
	}
	if _, ok := members[connID]; !ok {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.topics, topic)
	}
	if set, ok := r.joined[connID]; ok {
		delete(set, topic)
		if len(set) == 0 {
			delete(r.joined, connID)
		}
	}
	return true
}

// Remove drops a connection and every membership it held, returning the
// topics it left.
func (r *Registry) Remove(connID string) (Conn, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.conns[connID]
	delete(r.conns, connID)

	var left []string
	for topic := range r.joined[connID] {
		left = append(left, topic)
	}
	for _, topic := range left {
		r.leaveLocked(connID, topic)
	}
	sort.Strings(left)
	return c, left
}

// Subscribers returns a snapshot of the connections subscribed to topic.
func (r *Registry) Subscribers(topic string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.topics[topic]
	out := make([]Conn, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// Count returns the number of subscribers of topic.
func (r *Registry) Count(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[topic])
}

// Topics returns the topics a connection is subscribed to, sorted.
func (r *Registry) Topics(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.joined[connID]))
	for t := range r.joined[connID] {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Conns returns a snapshot of every registered connection.
func (r *Registry) Conns() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Stats reports connection and per-topic subscriber counts, topics sorted by id.
func (r *Registry) Stats() types.ConnectionStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := types.ConnectionStats{
		ConnectedClients:       len(r.conns),
		ChallengeSubscriptions: make([]types.ChallengeSubscriptions, 0, len(r.topics)),
	}
	for topic, members := range r.topics {
		stats.ChallengeSubscriptions = append(stats.ChallengeSubscriptions, types.ChallengeSubscriptions{
			ChallengeID:       topic,
			SubscribedClients: len(members),
		})
	}
	sort.Slice(stats.ChallengeSubscriptions, func(i, j int) bool {
		return stats.ChallengeSubscriptions[i].ChallengeID < stats.ChallengeSubscriptions[j].ChallengeID
	})
	return stats
}

func (r *Registry) subscriptionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, members := range r.topics {
		n += len(members)
	}
	return n
}
