package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events an editor produces on save.
const DefaultDebounce = 300 * time.Millisecond

// Service watches quest asset files and reports when one changed.
type Service struct {
	fs       *fsnotify.Watcher
	debounce time.Duration

	mu    sync.Mutex
	files map[string]*fileState

	// OnChange is called once per settled change with the absolute path.
	OnChange func(path string) error
	// OnError receives watch errors and OnChange failures. path may be empty.
	OnError func(path string, err error)
}

type fileState struct {
	modTime time.Time
	size    int64
	timer   *time.Timer
}

// NewService watches paths. debounce <= 0 uses DefaultDebounce.
func NewService(paths []string, debounce time.Duration) (*Service, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	s := &Service{
		fs:       fs,
		debounce: debounce,
		files:    make(map[string]*fileState),
	}
	for _, p := range paths {
		if err := s.add(p); err != nil {
			fs.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Service) add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("failed to stat asset: %w", err)
	}

	s.mu.Lock()
	s.files[abs] = &fileState{modTime: info.ModTime(), size: info.Size()}
	s.mu.Unlock()

	// Editors replace files on save; the directory watch survives that.
	if err := s.fs.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}
	slog.Debug("Watcher: watching asset", "path", abs)
	return nil
}

// Run blocks until ctx is cancelled, then closes the watcher.
func (s *Service) Run(ctx context.Context) error {
	defer s.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-s.fs.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil {
				continue
			}
			s.schedule(abs)

		case err, ok := <-s.fs.Errors:
			if !ok {
				return nil
			}
			s.fail("", err)
		}
	}
}

func (s *Service) schedule(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, watched := s.files[path]
	if !watched {
		return
	}
	if st.timer != nil {
		st.timer.Stop()
	}
	st.timer = time.AfterFunc(s.debounce, func() { s.settle(path) })
}

// settle fires OnChange when the file differs from what was last seen.
func (s *Service) settle(path string) {
	info, err := os.Stat(path)
	if err != nil {
		s.fail(path, err)
		return
	}

	s.mu.Lock()
	st := s.files[path]
	if info.ModTime().Equal(st.modTime) && info.Size() == st.size {
		s.mu.Unlock()
		return
	}
	st.modTime, st.size = info.ModTime(), info.Size()
	s.mu.Unlock()

	slog.Info("Watcher: asset changed", "path", path)
	if s.OnChange == nil {
		return
	}
	if err := s.OnChange(path); err != nil {
		s.fail(path, err)
	}
}

func (s *Service) fail(path string, err error) {
	if s.OnError != nil {
		s.OnError(path, err)
		return
	}
	slog.Warn("Watcher: error", "path", path, "error", err)
}

// Close stops watching and any pending debounce timers.
func (s *Service) Close() error {
	s.mu.Lock()
	for _, st := range s.files {
		if st.timer != nil {
			st.timer.Stop()
		}
	}
	s.mu.Unlock()
	return s.fs.Close()
}
