package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Local stores objects as files below a base directory.
type Local struct {
	basePath string
	logger   *slog.Logger
}

// NewLocal creates the base directory if needed.
func NewLocal(basePath string, logger *slog.Logger) (*Local, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("initialized local storage", "base_path", abs)
	return &Local{basePath: abs, logger: logger}, nil
}

func (s *Local) resolve(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(k)), nil
}

func (s *Local) Put(ctx context.Context, key string, data io.Reader, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.resolve(key)
	if err != nil {
		return &Error{Op: "Put", Key: key, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return &Error{Op: "Put", Key: key, Err: err}
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".put-*")
	if err != nil {
		return &Error{Op: "Put", Key: key, Err: err}
	}
	n, err := io.Copy(tmp, data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), p)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return &Error{Op: "Put", Key: key, Err: err}
	}
	s.logger.Debug("stored file", "key", key, "size", n)
	return nil
}

func (s *Local) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.resolve(key)
	if err != nil {
		return nil, &Error{Op: "Get", Key: key, Err: err}
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, &Error{Op: "Get", Key: key, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &Error{Op: "Get", Key: key, Err: err}
	}
	return f, nil
}

func (s *Local) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.resolve(key)
	if err != nil {
		return &Error{Op: "Delete", Key: key, Err: err}
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return &Error{Op: "Delete", Key: key, Err: err}
	}
	return nil
}

func (s *Local) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p, err := s.resolve(key)
	if err != nil {
		return false, &Error{Op: "Exists", Key: key, Err: err}
	}
	_, err = os.Stat(p)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, &Error{Op: "Exists", Key: key, Err: err}
	}
	return true, nil
}
