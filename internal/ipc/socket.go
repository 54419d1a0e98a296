package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

const (
	socketName = "parlando.sock"

	pingTimeout    = 180 * time.Millisecond
	acquireAttempts = 3
)

// ErrAlreadyRunning means another agent owns the socket, and therefore the
// microphone.
var ErrAlreadyRunning = errors.New("parlando agent already running")

// SocketPath returns the per-user control socket under XDG_RUNTIME_DIR.
func SocketPath() (string, error) {
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, socketName), nil
}

// Socket is a claimed control socket.
type Socket struct {
	net.Listener
	Path string
}

// Close stops listening and unlinks the socket file. It is safe to call
// after Serve has already closed the listener.
func (s *Socket) Close() error {
	err := s.Listener.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	if rmErr := os.Remove(s.Path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		err = errors.Join(err, rmErr)
	}
	return err
}

// Acquire claims path for this process. A file left behind by a dead agent
// is replaced; a live agent yields ErrAlreadyRunning. When the current owner
// neither answers nor refuses, the file is left alone.
func Acquire(ctx context.Context, path string) (*Socket, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}

	for attempt := 1; ; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return &Socket{Listener: listener, Path: path}, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen on %s: %w", path, err)
		}

		alive, pingErr := answering(ctx, path, pingTimeout)
		switch {
		case alive:
			return nil, ErrAlreadyRunning
		case pingErr != nil:
			return nil, fmt.Errorf("check existing socket %s: %w", path, pingErr)
		case attempt >= acquireAttempts:
			return nil, fmt.Errorf("socket %s still in use after %d attempts", path, attempt)
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 25 * time.Millisecond):
		}
	}
}
