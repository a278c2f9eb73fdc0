package kvstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	appErr "github.com/devJinesh/DocuQuery/internal/pkg/errors"
)

type fileConfig struct {
	Dir string `json:"dir"`
}

// fileStore keeps one file per key. Writes go to a temp file that is renamed
// over the target so a reader never sees a partial record.
type fileStore struct {
	dir string
}

func init() {
	Register("file", createFileStore)
}

func createFileStore(args interface{}) (Store, error) {
	cfg := &fileConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("file kv store dir is required")
	}
	return NewFile(cfg.Dir), nil
}

func NewFile(dir string) Store {
	return &fileStore{dir: dir}
}

func (s *fileStore) Get(ctx context.Context, key string) ([]byte, error) {
	_ = ctx
	if !validKey(key) {
		return nil, appErr.ErrNotFound
	}
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *fileStore) Set(ctx context.Context, key string, value []byte) error {
	_ = ctx
	if !validKey(key) {
		return fmt.Errorf("invalid key %q: %w", key, appErr.ErrInvalid)
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "."+key+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (s *fileStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	if !validKey(key) {
		return nil
	}
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}
