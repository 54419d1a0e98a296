package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// requestTimeout bounds one client exchange so a stuck peer cannot hold a
// connection open.
const requestTimeout = time.Second

// Agent is the part of a running agent the control socket exposes.
// *Board implements it.
type Agent interface {
	Snapshot() Status
	RequestStop()
}

// Serve answers status and stop requests until ctx is cancelled or the
// listener is closed. In-flight exchanges finish before it returns.
func Serve(ctx context.Context, listener net.Listener, agent Agent) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	unblock := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer unblock()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept control connection: %w", err)
		}

		wg.Go(func() {
			defer conn.Close()
			_ = conn.SetDeadline(time.Now().Add(requestTimeout))
			_ = json.NewEncoder(conn).Encode(answer(conn, agent))
		})
	}
}

func answer(r io.Reader, agent Agent) Response {
	line, err := bufio.NewReader(r).ReadBytes('\n')
	if err != nil {
		return failure("read request: %v", err)
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return failure("decode request: %v", err)
	}

	switch req.Command {
	case CommandStatus:
		status := agent.Snapshot()
		return Response{OK: true, Status: &status}
	case CommandStop:
		agent.RequestStop()
		return Response{OK: true, Message: stopMessage}
	default:
		return failure("unknown command: %s", req.Command)
	}
}

func failure(format string, args ...any) Response {
	return Response{Error: fmt.Sprintf(format, args...)}
}
