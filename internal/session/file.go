package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists the session as a small JSON object on disk. The file is
// rewritten in full on every change (temp file + rename) with mode 0600,
// since it holds a credential.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by path. The file is created lazily on
// first write.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("session: file path is required")
	}
	return &FileStore{path: path}, nil
}

func (f *FileStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return "", err
	}
	v, ok := values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *FileStore) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	values[key] = value
	return f.write(values)
}

func (f *FileStore) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	changed := false
	for _, k := range keys {
		if _, ok := values[k]; ok {
			delete(values, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return f.write(values)
}

func (f *FileStore) Close() error { return nil }

func (f *FileStore) read() (map[string]string, error) {
	values := make(map[string]string)
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return values, nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse session file %s: %w", f.path, err)
	}
	return values, nil
}

func (f *FileStore) write(values map[string]string) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod session file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}
