package store

import (
	"errors"
	"iter"
)

// ErrCorruptStore is returned by Load when the bindings file exists but
// cannot be decoded. Startup must abort rather than drop state.
var ErrCorruptStore = errors.New("bindings file is malformed")

// BindingStore manages the set of bound users.
// Every mutating call has persisted the full collection before it returns.
type BindingStore interface {
	Load() error
	Upsert(u BoundUser) error
	Remove(id string) (bool, error)
	Find(id string) (BoundUser, bool)
	// List yields a snapshot of all records in insertion order.
	List() iter.Seq[BoundUser]
	All() []BoundUser
	Count() int
}

// PendingIndex remembers which guild a user last issued a command in, so the
// OAuth2 callback can tell where to add them.
type PendingIndex interface {
	Record(userID, guildID string)
	// Consume reads the guild for userID without removing it.
	Consume(userID string) (string, bool)
}

// Stores bundles the stores used by the bot and the callback server.
type Stores struct {
	Bindings BindingStore
	Pending  PendingIndex
}
