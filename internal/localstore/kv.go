// Package localstore persists the last edited quote and a short history on the
// device running the editor. It is not a sync mechanism.
package localstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// KV is the minimal key-value store the document store needs.
type KV interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// MemoryKV keeps values in memory. Safe for concurrent use.
type MemoryKV struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemoryKV() *MemoryKV { return &MemoryKV{m: map[string][]byte{}} }

func (kv *MemoryKV) Get(key string) ([]byte, bool, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	v, ok := kv.m[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (kv *MemoryKV) Set(key string, value []byte) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	kv.m[key] = v
	return nil
}

func (kv *MemoryKV) Delete(key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.m, key)
	return nil
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// FileKV stores one file per key under Dir. Writes go through a temp file and
// a rename so a crash never leaves a half-written value behind.
type FileKV struct {
	Dir string
}

// NewFileKV creates the directory if needed.
func NewFileKV(dir string) (*FileKV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("localstore: create dir: %w", err)
	}
	return &FileKV{Dir: dir}, nil
}

func (kv *FileKV) path(key string) (string, error) {
	if !keyPattern.MatchString(key) {
		return "", fmt.Errorf("localstore: invalid key %q", key)
	}
	return filepath.Join(kv.Dir, key+".json"), nil
}

func (kv *FileKV) Get(key string) ([]byte, bool, error) {
	p, err := kv.path(key)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (kv *FileKV) Set(key string, value []byte) error {
	p, err := kv.path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(kv.Dir, key+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func (kv *FileKV) Delete(key string) error {
	p, err := kv.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
