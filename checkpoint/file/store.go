// Package file stores checkpoints as one small JSON document per input,
// e.g. <dir>/dG93ZXItcHJvZA==.json containing {"job_events_last_id": 1234}.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/marcelsud/tower-poller/checkpoint"
	"github.com/marcelsud/tower-poller/input"
)

const (
	defaultFileMode = 0o644
	defaultDirMode  = 0o755
)

type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates dir if needed and returns a store rooted there
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, defaultDirMode); err != nil {
		return nil, fmt.Errorf("creating checkpoint dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the file backing an input's checkpoints
func (s *Store) Path(inputName string) string {
	return filepath.Join(s.dir, checkpoint.Key(inputName)+".json")
}

func (s *Store) Get(_ context.Context, inputName string, category input.Category) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := readDoc(s.Path(inputName))
	if err != nil {
		return 0, checkpoint.GetError(err)
	}
	return doc[category.CheckpointField()], nil
}

func (s *Store) Set(ctx context.Context, inputName string, category input.Category, cursor int64) error {
	if err := ctx.Err(); err != nil {
		return checkpoint.SetError(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(inputName)
	doc, err := readDoc(path)
	if err != nil {
		return checkpoint.SetError(err)
	}
	field := category.CheckpointField()
	if cursor <= doc[field] {
		return nil
	}
	doc[field] = cursor
	if err := writeDoc(path, doc); err != nil {
		return checkpoint.SetError(err)
	}
	return nil
}

// Ping checks that the checkpoint directory is still there
func (s *Store) Ping(context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("checkpoint dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("checkpoint dir %s is not a directory", s.dir)
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	return nil
}

func readDoc(path string) (map[string]int64, error) {
	doc := make(map[string]int64)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint file: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing checkpoint file %s: %w", path, err)
	}
	return doc, nil
}

// writeDoc replaces path atomically: readers see the old or the new
// document, never a partial one.
func writeDoc(path string, doc map[string]int64) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, defaultFileMode)
	if err != nil {
		return fmt.Errorf("opening checkpoint tmp: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("writing checkpoint tmp: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("syncing checkpoint tmp: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("closing checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming checkpoint file: %w", err)
	}
	if err := syncDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("syncing checkpoint dir: %w", err)
	}
	return nil
}

// syncDir flushes the directory entry so the rename survives a power loss
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	if err := d.Sync(); err != nil {
		_ = d.Close()
		return err
	}
	return d.Close()
}
