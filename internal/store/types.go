package store

import (
	"github.com/google/uuid"
)

// BoundUser is a Discord user who completed the OAuth2 flow.
// JSON keys match the bound-users.json layout the bot has always written,
// so an existing file loads unchanged.
type BoundUser struct {
	ID string `json:"id"`
	// Username is a snapshot taken at authorization time and may go stale.
	Username    string `json:"username"`
	AccessToken string `json:"token"`
	// TokenType is the credential scheme, e.g. "Bearer".
	TokenType string `json:"type"`
}

// GenRunID generates a new UUID v7 (time-ordered) used to correlate the log
// lines of one batch join.
func GenRunID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// StoreConfig configures the store layer.
type StoreConfig struct {
	// BindingsPath is the JSON file holding bound users (default: bound-users.json).
	BindingsPath string

	// EncryptionKey is the AES-256 key used to seal access tokens at rest.
	// If empty, tokens are stored in plain text.
	EncryptionKey string

	// PendingCapacity bounds the pending-authorization index (default 10000).
	PendingCapacity int
}
