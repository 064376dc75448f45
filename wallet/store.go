package wallet

import (
	"os"
	"path/filepath"
	"strings"
)

// connectedFlagFile is the single piece of persisted session state: a
// marker that a wallet was connected before, used only to attempt silent
// reconnection on the next start. It never asserts identity.
const connectedFlagFile = "wallet-connected"

// ConnectionStore persists the "was previously connected" flag across
// restarts.
type ConnectionStore interface {
	WasConnected() bool
	SetConnected() error
	Clear() error
}

// FileStore keeps the flag as a marker file under the client data
// directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir. The directory is created on
// first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path() string {
	return filepath.Join(s.dir, connectedFlagFile)
}

// WasConnected reports whether the flag is set. Any read error counts as
// "not connected"; silent reconnection is best-effort by definition.
func (s *FileStore) WasConnected() bool {
	data, err := os.ReadFile(s.path())
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "true"
}

// SetConnected sets the flag.
func (s *FileStore) SetConnected() error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path(), []byte("true\n"), 0o600)
}

// Clear removes the flag. Removing an absent flag is not an error.
func (s *FileStore) Clear() error {
	err := os.Remove(s.path())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// MemoryStore is an in-process ConnectionStore for tests.
type MemoryStore struct {
	connected bool
}

func (s *MemoryStore) WasConnected() bool { return s.connected }
func (s *MemoryStore) SetConnected() error {
	s.connected = true
	return nil
}
func (s *MemoryStore) Clear() error {
	s.connected = false
	return nil
}
