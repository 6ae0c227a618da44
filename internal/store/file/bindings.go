package file

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/nextlevelbuilder/joinbridge/internal/crypto"
	"github.com/nextlevelbuilder/joinbridge/internal/store"
)

// FileBindingStore keeps bound users in memory and mirrors them to a JSON
// array on disk. Every mutation rewrites the whole file before returning.
type FileBindingStore struct {
	path   string
	cipher *crypto.TokenCipher // nil = tokens stored in plain text

	mu    sync.RWMutex
	users []store.BoundUser
	index map[string]int // id → position in users
}

// NewFileBindingStore creates a store backed by path. Call Load before use.
func NewFileBindingStore(path string, cipher *crypto.TokenCipher) *FileBindingStore {
	return &FileBindingStore{
		path:   path,
		cipher: cipher,
		index:  make(map[string]int),
	}
}

// Path returns the backing file path.
func (s *FileBindingStore) Path() string { return s.path }

// Load replaces the in-memory state with the file contents.
// A missing or empty file yields an empty store. Undecodable JSON or a
// token that cannot be decrypted returns an error wrapping store.ErrCorruptStore.
func (s *FileBindingStore) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.reset(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read bindings %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		s.reset(nil)
		return nil
	}

	var raw []store.BoundUser
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %s: %v", store.ErrCorruptStore, s.path, err)
	}

	users := make([]store.BoundUser, 0, len(raw))
	pos := make(map[string]int, len(raw))
	dupes := 0
	for _, u := range raw {
		if u.ID == "" {
			slog.Warn("bindings: skipping record without id", "path", s.path, "username", u.Username)
			continue
		}
		token, err := s.cipher.Open(u.AccessToken)
		if err != nil {
			return fmt.Errorf("%w: %s: token for %s: %v", store.ErrCorruptStore, s.path, u.ID, err)
		}
		u.AccessToken = token

		// Older files may hold the same id more than once; keep the first
		// position and the latest values.
		if i, ok := pos[u.ID]; ok {
			users[i] = u
			dupes++
			continue
		}
		pos[u.ID] = len(users)
		users = append(users, u)
	}

	s.reset(users)
	slog.Info("bindings loaded", "path", s.path, "count", len(users), "duplicates_merged", dupes)
	return nil
}

// Upsert inserts u or replaces the record with the same ID.
func (s *FileBindingStore) Upsert(u store.BoundUser) error {
	if u.ID == "" {
		return fmt.Errorf("bound user has no id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.index[u.ID]; ok {
		prev := s.users[i]
		s.users[i] = u
		if err := s.save(); err != nil {
			s.users[i] = prev
			return err
		}
		slog.Info("binding updated", "user_id", u.ID, "username", u.Username)
		return nil
	}

	s.users = append(s.users, u)
	s.index[u.ID] = len(s.users) - 1
	if err := s.save(); err != nil {
		s.users = s.users[:len(s.users)-1]
		delete(s.index, u.ID)
		return err
	}
	slog.Info("binding added", "user_id", u.ID, "username", u.Username)
	return nil
}

// Remove deletes the record with the given ID. Returns false (and does not
// touch the file) if no such record exists.
func (s *FileBindingStore) Remove(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return false, nil
	}

	prev := s.users
	s.users = slices.Delete(slices.Clone(s.users), i, i+1)
	if err := s.save(); err != nil {
		s.users = prev
		return false, err
	}
	s.reindex()

	slog.Info("binding removed", "user_id", id)
	return true, nil
}

// Find returns the record with the given ID.
func (s *FileBindingStore) Find(id string) (store.BoundUser, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return store.BoundUser{}, false
	}
	return s.users[i], true
}

// List yields a snapshot taken when iteration starts, in insertion order.
// Ranging over it again takes a fresh snapshot.
func (s *FileBindingStore) List() iter.Seq[store.BoundUser] {
	return func(yield func(store.BoundUser) bool) {
		for _, u := range s.All() {
			if !yield(u) {
				return
			}
		}
	}
}

// All returns a copy of every record in insertion order.
func (s *FileBindingStore) All() []store.BoundUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.users)
}

// Count returns the number of bound users.
func (s *FileBindingStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// --- Internal ---

func (s *FileBindingStore) reset(users []store.BoundUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = users
	s.reindex()
}

// reindex rebuilds the id index. Must be called with s.mu held.
func (s *FileBindingStore) reindex() {
	s.index = make(map[string]int, len(s.users))
	for i, u := range s.users {
		s.index[u.ID] = i
	}
}

// save writes the full collection to a temp file and renames it over the
// target. Must be called with s.mu held.
func (s *FileBindingStore) save() error {
	out := make([]store.BoundUser, len(s.users))
	for i, u := range s.users {
		sealed, err := s.cipher.Seal(u.AccessToken)
		if err != nil {
			return fmt.Errorf("seal token for %s: %w", u.ID, err)
		}
		u.AccessToken = sealed
		out[i] = u
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal bindings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create bindings dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".bound-users-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write bindings: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod bindings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close bindings: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace bindings: %w", err)
	}
	return nil
}
