package cmd

import (
	"fmt"
	"os"

	"github.com/nextlevelbuilder/joinbridge/internal/config"
	"github.com/nextlevelbuilder/joinbridge/internal/crypto"
	"github.com/nextlevelbuilder/joinbridge/internal/store/file"
)

// loadConfigOrExit loads the config or exits with a message on stderr.
func loadConfigOrExit() *config.Config {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

// openBindings opens the bindings file named by cfg. The bot should be
// stopped while the CLI edits the file: the running process does not
// notice external changes and would overwrite them on its next save.
func openBindings(cfg *config.Config) (*file.FileBindingStore, error) {
	cipher, err := crypto.NewTokenCipher(cfg.Store.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("binding encryption key: %w", err)
	}
	bindings := file.NewFileBindingStore(cfg.Store.Path, cipher)
	if err := bindings.Load(); err != nil {
		return nil, err
	}
	return bindings, nil
}
