// Package channel tracks which connections are members of which topics.
package channel

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Member is anything that can join a topic.
type Member interface {
	comparable
	ID() string
}

// Registry holds topic membership in two mirrored indexes: topic to members
// and member to topics. Both are updated under one lock, so a member is in a
// topic's set if and only if the topic is in the member's set. Topics and
// members with no entries are removed.
type Registry[M Member] struct {
	mu      sync.RWMutex
	topics  map[string]map[M]struct{}
	members map[M]map[string]struct{}
}

// New creates an empty registry.
func New[M Member]() *Registry[M] {
	return &Registry[M]{
		topics:  make(map[string]map[M]struct{}),
		members: make(map[M]map[string]struct{}),
	}
}

// Join adds m to topic. It reports whether m was newly added.
func (r *Registry[M]) Join(topic string, m M) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.topics[topic]
	if !ok {
		set = make(map[M]struct{})
		r.topics[topic] = set
	}
	if _, exists := set[m]; exists {
		return false
	}
	set[m] = struct{}{}

	joined, ok := r.members[m]
	if !ok {
		joined = make(map[string]struct{})
		r.members[m] = joined
	}
	joined[topic] = struct{}{}
	return true
}

// Leave removes m from topic. It reports whether m was a member.
func (r *Registry[M]) Leave(topic string, m M) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leave(topic, m)
}

func (r *Registry[M]) leave(topic string, m M) bool {
	set, ok := r.topics[topic]
	if !ok {
		return false
	}
	if _, exists := set[m]; !exists {
		return false
	}

	delete(set, m)
	if len(set) == 0 {
		delete(r.topics, topic)
	}

	if joined, ok := r.members[m]; ok {
		delete(joined, topic)
		if len(joined) == 0 {
			delete(r.members, m)
		}
	}
	return true
}

// LeaveAll removes m from every topic and returns the topics it left in
// ascending order.
func (r *Registry[M]) LeaveAll(m M) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	topics := sortedKeys(r.members[m])
	for _, topic := range topics {
		r.leave(topic, m)
	}
	return topics
}

// Members returns the members of topic sorted by ID.
func (r *Registry[M]) Members(topic string) []M {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.topics[topic]
	out := make([]M, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b M) int {
		return strings.Compare(a.ID(), b.ID())
	})
	return out
}

// IsMember reports whether m has joined topic.
func (r *Registry[M]) IsMember(topic string, m M) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.topics[topic][m]
	return ok
}

// HasTopic reports whether topic has at least one member.
func (r *Registry[M]) HasTopic(topic string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.topics[topic]
	return ok
}

// Topics returns the topics m has joined in ascending order.
func (r *Registry[M]) Topics(m M) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.members[m])
}

// TopicCount returns the number of topics with at least one member.
func (r *Registry[M]) TopicCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}

// MemberCount returns the number of members joined to at least one topic.
func (r *Registry[M]) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Verify checks that both indexes mirror each other and hold no empty sets.
func (r *Registry[M]) Verify() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for topic, set := range r.topics {
		if len(set) == 0 {
			return fmt.Errorf("topic %q has no members", topic)
		}
		for m := range set {
			if _, ok := r.members[m][topic]; !ok {
				return fmt.Errorf("member %s in topic %q is missing from the member index", m.ID(), topic)
			}
		}
	}
	for m, joined := range r.members {
		if len(joined) == 0 {
			return fmt.Errorf("member %s has no topics", m.ID())
		}
		for topic := range joined {
			if _, ok := r.topics[topic][m]; !ok {
				return fmt.Errorf("topic %q of member %s is missing from the topic index", topic, m.ID())
			}
		}
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
