// Package kvslot provides the durable key-value slot used to persist the
// current identity and the purchase cache across restarts. Records are
// written wholesale; a reader never sees a partial update.
package kvslot

import (
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// Slot stores opaque records by key.
type Slot interface {
	Load(key string) (data []byte, ok bool, err error)
	Store(key string, data []byte) error
	Delete(key string) error
}

var ErrInvalidKey = errors.New("kvslot: invalid key")

// FileSlot keeps each record in its own file under a directory. Writes go to
// a temp file first and are renamed into place, so a crash mid-write leaves
// the previous record intact.
type FileSlot struct {
	dir string
}

// NewFileSlot creates the directory if needed.
func NewFileSlot(dir string) (*FileSlot, error) {
	if dir == "" {
		return nil, errors.New("kvslot: directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileSlot{dir: dir}, nil
}

func (s *FileSlot) path(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	// Hex-encode so keys cannot escape the slot directory.
	return filepath.Join(s.dir, hex.EncodeToString([]byte(key))+".rec"), nil
}

func (s *FileSlot) Load(key string) ([]byte, bool, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *FileSlot) Store(key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".slot-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, p)
}

func (s *FileSlot) Delete(key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Memory is an in-process slot for tests.
type Memory struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string][]byte)}
}

func (m *Memory) Load(key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrInvalidKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.records[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

func (m *Memory) Store(key string, data []byte) error {
	if key == "" {
		return ErrInvalidKey
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.mu.Lock()
	m.records[key] = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	m.mu.Lock()
	delete(m.records, key)
	m.mu.Unlock()
	return nil
}
