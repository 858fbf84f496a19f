package terminal

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

// registry maps connection IDs to their live session. Keys hash onto
// independently locked shards, so traffic on one connection never waits on
// an unrelated connection's lock.
type registry struct {
	shards [shardCount]*shard
}

type shard struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newRegistry() *registry {
	r := &registry{}
	for i := range r.shards {
		r.shards[i] = &shard{sessions: make(map[string]*Session)}
	}
	return r
}

func (r *registry) shardFor(id string) *shard {
	return r.shards[xxhash.Sum64String(id)%shardCount]
}

func (r *registry) get(id string) (*Session, bool) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.sessions[id]
	return s, ok
}

// put stores s under id and returns the session it displaced, if any.
func (r *registry) put(id string, s *Session) *Session {
	sh := r.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	prev := sh.sessions[id]
	sh.sessions[id] = s
	return prev
}

// remove deletes whatever is stored under id.
func (r *registry) remove(id string) *Session {
	sh := r.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.sessions[id]
	if !ok {
		return nil
	}
	delete(sh.sessions, id)
	return s
}

// removeIf deletes id only while it still maps to s. Exactly one of several
// racing callers gets true for a given session.
func (r *registry) removeIf(id string, s *Session) bool {
	sh := r.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if cur, ok := sh.sessions[id]; !ok || cur != s {
		return false
	}
	delete(sh.sessions, id)
	return true
}

// snapshot copies out every live session.
func (r *registry) snapshot() []*Session {
	var out []*Session
	for _, sh := range r.shards {
		sh.mu.Lock()
		for _, s := range sh.sessions {
			out = append(out, s)
		}
		sh.mu.Unlock()
	}
	return out
}

func (r *registry) len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.Lock()
		n += len(sh.sessions)
		sh.mu.Unlock()
	}
	return n
}
