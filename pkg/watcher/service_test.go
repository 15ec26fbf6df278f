package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewService_MissingFile(t *testing.T) {
	_, err := NewService([]string{filepath.Join(t.TempDir(), "missing.yaml")}, 0)
	assert.Error(t, err)
}

func TestService_OnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quest.yaml")
	other := filepath.Join(dir, "other.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: a\n"), 0o644))
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))

	s, err := NewService([]string{path}, 20*time.Millisecond)
	require.NoError(t, err)

	var calls atomic.Int32
	changed := make(chan string, 4)
	s.OnChange = func(p string) error {
		calls.Add(1)
		changed <- p
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Unwatched files in the same directory are ignored.
	require.NoError(t, os.WriteFile(other, []byte("xy"), 0o644))

	// A burst of writes settles into one call.
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("name: changed"+string(rune('a'+i))+"\n"), 0o644))
	}

	select {
	case p := <-changed:
		abs, _ := filepath.Abs(path)
		assert.Equal(t, abs, p)
	case <-time.After(3 * time.Second):
		t.Fatal("OnChange not called")
	}
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestService_OnChangeErrorReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	s, err := NewService([]string{path}, 10*time.Millisecond)
	require.NoError(t, err)
	defer s.Close()

	boom := errors.New("boom")
	s.OnChange = func(string) error { return boom }
	got := make(chan error, 1)
	s.OnError = func(_ string, err error) { got <- err }

	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))
	abs, _ := filepath.Abs(path)
	s.settle(abs)

	select {
	case err := <-got:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("OnError not called")
	}
}

func TestService_SettleIgnoresUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	s, err := NewService([]string{path}, 10*time.Millisecond)
	require.NoError(t, err)
	defer s.Close()

	called := false
	s.OnChange = func(string) error { called = true; return nil }
	abs, _ := filepath.Abs(path)
	s.settle(abs)
	assert.False(t, called)
}
