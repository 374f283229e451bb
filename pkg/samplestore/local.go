package samplestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Local implements Store on the local filesystem. Keys are resolved
// relative to the configured root directory.
type Local struct {
	root string
}

var _ Store = (*Local)(nil)

// NewLocal creates a Local store rooted at dir, creating the directory
// (with parents) if needed.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: abs}, nil
}

func (l *Local) resolve(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

func (l *Local) Put(_ context.Context, key string, data []byte) error {
	full := l.resolve(key)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0o644)
}

func (l *Local) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(l.resolve(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("samplestore: get %s: %w", key, ErrNotExist)
	}
	return data, err
}

func (l *Local) Delete(_ context.Context, key string) error {
	err := os.Remove(l.resolve(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (l *Local) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(l.resolve(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
