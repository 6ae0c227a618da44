// Package pairing correlates an OAuth2 callback with the chat context that
// started it.
//
// Whenever a user speaks in a guild the bot records user → guild. When that
// user later completes authorization in the browser, the callback looks the
// user up here to learn which guild to add them to. Entries are never
// removed by a lookup: a second authorization by the same user resolves to
// the same (most recent) guild. The index lives only in memory and is
// bounded by an LRU; an evicted entry behaves exactly like a missing one.
package pairing

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is the number of users remembered when no capacity is configured.
const DefaultCapacity = 10000

// Index maps a Discord user ID to the guild ID they last issued a command in.
// Safe for concurrent use.
type Index struct {
	cache *lru.Cache[string, string]
}

// NewIndex creates an index holding at most capacity users.
// capacity <= 0 selects DefaultCapacity.
func NewIndex(capacity int) *Index {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	// lru.New only fails for a non-positive size.
	cache, _ := lru.New[string, string](capacity)
	return &Index{cache: cache}
}

// Record sets the target guild for userID (last write wins).
func (i *Index) Record(userID, guildID string) {
	if userID == "" || guildID == "" {
		return
	}
	i.cache.Add(userID, guildID)
}

// Consume returns the guild recorded for userID without removing it.
func (i *Index) Consume(userID string) (string, bool) {
	return i.cache.Get(userID)
}

// Len returns the number of remembered users.
func (i *Index) Len() int {
	return i.cache.Len()
}
