package decision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"marlin/internal/logger"

	"github.com/fsnotify/fsnotify"
)

// FileSource consumes decision batches from a JSON file maintained by the
// external advisory process. The file is watched for rewrites; each loaded
// batch is handed out by Fetch exactly once, so the executor never replays
// a stale batch on a later cycle. An invalid rewrite keeps the previous
// pending batch untouched.
type FileSource struct {
	path string

	mu      sync.Mutex
	pending map[string]Decision

	watcher *fsnotify.Watcher
}

func NewFileSource(path string) (*FileSource, error) {
	if path == "" {
		return nil, fmt.Errorf("decision file path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	s := &FileSource{path: abs}
	// Pick up a batch already on disk so a restart does not lose it.
	if _, err := os.Stat(abs); err == nil {
		s.reload()
	}
	return s, nil
}

// Watch starts the fsnotify loop. The watch is placed on the parent
// directory because editors and the advisory process replace the file
// atomically (write temp + rename), which drops a watch on the file itself.
func (s *FileSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating decision watcher failed: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s failed: %w", dir, err)
	}
	s.watcher = watcher

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != s.path {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				s.reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("decision watcher error: %v", err)
			}
		}
	}()
	logger.Infof("decision source watching %s", s.path)
	return nil
}

func (s *FileSource) reload() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		logger.Warnf("reading decision file failed: %v", err)
		return
	}
	batch, err := ParseBatch(raw)
	if err != nil {
		logger.Warnf("decision file rejected, keeping previous batch: %v", err)
		return
	}
	s.mu.Lock()
	s.pending = batch
	s.mu.Unlock()
	logger.Infof("decision batch loaded: %d instruments", len(batch))
}

// Fetch returns the pending batch and marks it consumed. An empty map means
// nothing new arrived since the last cycle.
func (s *FileSource) Fetch(ctx context.Context) (map[string]Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()
	if batch == nil {
		return map[string]Decision{}, nil
	}
	return batch, nil
}
