package file

import (
	"fmt"

	"github.com/nextlevelbuilder/joinbridge/internal/crypto"
	"github.com/nextlevelbuilder/joinbridge/internal/pairing"
	"github.com/nextlevelbuilder/joinbridge/internal/store"
)

// DefaultBindingsPath matches the file name the bot has always used.
const DefaultBindingsPath = "bound-users.json"

// NewFileStores creates the binding store (loaded from disk) and the
// in-memory pending index.
func NewFileStores(cfg store.StoreConfig) (*store.Stores, error) {
	path := cfg.BindingsPath
	if path == "" {
		path = DefaultBindingsPath
	}

	cipher, err := crypto.NewTokenCipher(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("binding encryption key: %w", err)
	}

	bindings := NewFileBindingStore(path, cipher)
	if err := bindings.Load(); err != nil {
		return nil, err
	}

	return &store.Stores{
		Bindings: bindings,
		Pending:  pairing.NewIndex(cfg.PendingCapacity),
	}, nil
}
