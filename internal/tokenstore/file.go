package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

// File stores the token as the sole content of a 0600 file. Writes are atomic
// and durable: a crash never leaves a half-written token behind.
type File struct {
	path string
}

// NewFile returns a store backed by path.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Load(context.Context) (string, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("tokenstore: read %s: %w", f.path, err)
	}
	token := strings.TrimSuffix(string(b), "\n")
	if err := validate(token); err != nil {
		return "", err
	}
	return token, nil
}

func (f *File) Save(_ context.Context, token string) error {
	if err := validate(token); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("tokenstore: create dir: %w", err)
	}
	// renameio: temp file, fsync, atomic rename
	if err := renameio.WriteFile(f.path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("tokenstore: write %s: %w", f.path, err)
	}
	return nil
}

func (f *File) Clear(context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("tokenstore: remove %s: %w", f.path, err)
	}
	return nil
}
