package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
)

// DefaultTimeout keeps CLI round trips snappy; the agent answers from memory.
const DefaultTimeout = 220 * time.Millisecond

// ErrNotRunning means nothing is listening on the socket path.
var ErrNotRunning = errors.New("no running parlando agent")

// Client talks to the agent listening on Path.
type Client struct {
	Path    string
	Timeout time.Duration
}

// Status fetches the agent's current status.
func (c Client) Status(ctx context.Context) (*Status, error) {
	resp, err := c.call(ctx, CommandStatus)
	if err != nil {
		return nil, err
	}
	if resp.Status == nil {
		return nil, errors.New("status response carried no status")
	}
	return resp.Status, nil
}

// Stop asks the agent to exit after its current cycle and returns the
// agent's acknowledgement.
func (c Client) Stop(ctx context.Context) (string, error) {
	resp, err := c.call(ctx, CommandStop)
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

func (c Client) call(ctx context.Context, command string) (Response, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", c.Path)
	if err != nil {
		if notListening(err) {
			return Response{}, ErrNotRunning
		}
		return Response{}, fmt.Errorf("dial %s: %w", c.Path, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}
	if err := json.NewEncoder(conn).Encode(Request{Command: command}); err != nil {
		return Response{}, fmt.Errorf("send %s: %w", command, err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return Response{}, fmt.Errorf("read %s response: %w", command, err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("decode %s response: %w", command, err)
	}
	if !resp.OK {
		return Response{}, fmt.Errorf("agent rejected %s: %s", command, resp.Error)
	}
	return resp, nil
}

// answering reports whether a live agent answers on path. A refused or missing
// socket is not an error; anything else is inconclusive.
func answering(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	_, err := Client{Path: path, Timeout: timeout}.Status(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotRunning):
		return false, nil
	default:
		return false, err
	}
}

func notListening(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED)
}
