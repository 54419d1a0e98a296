package ipc

import (
	"context"
	"maps"
	"os"
	"sync"
	"time"

	"github.com/rbright/parlando/internal/fsm"
	"github.com/rbright/parlando/internal/session"
)

// Board keeps the latest published agent activity for status queries. It
// implements session.Observer; the loop writes and IPC clients read.
type Board struct {
	mu          sync.Mutex
	pid         int
	startedAt   time.Time
	mode        fsm.Mode
	modeSince   time.Time
	turns       int64
	outcomes    map[string]int64
	lastOutcome session.Outcome
	lastTurnAt  time.Time
	stopping    bool
	now         func() time.Time
	stop        context.CancelFunc
}

// NewBoard returns a board in idle mode. stop is invoked by RequestStop.
func NewBoard(stop context.CancelFunc) *Board {
	now := time.Now()
	return &Board{
		pid:       os.Getpid(),
		startedAt: now,
		mode:      fsm.ModeIdle,
		modeSince: now,
		outcomes:  make(map[string]int64),
		now:       time.Now,
		stop:      stop,
	}
}

func (b *Board) ModeChanged(_ fsm.Mode, to fsm.Mode, _ fsm.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mode = to
	b.modeSince = b.now()
}

func (b *Board) TurnFinished(turn session.Turn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.turns++
	b.outcomes[string(turn.Outcome)]++
	b.lastOutcome = turn.Outcome
	b.lastTurnAt = turn.FinishedAt
}

// Snapshot copies the current status.
func (b *Board) Snapshot() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	status := Status{
		PID:         b.pid,
		Mode:        string(b.mode),
		ModeSince:   b.modeSince.Format(time.RFC3339),
		StartedAt:   b.startedAt.Format(time.RFC3339),
		Turns:       b.turns,
		Outcomes:    maps.Clone(b.outcomes),
		LastOutcome: string(b.lastOutcome),
		Stopping:    b.stopping,
	}
	if !b.lastTurnAt.IsZero() {
		status.LastTurnAt = b.lastTurnAt.Format(time.RFC3339)
	}
	return status
}

// RequestStop asks the agent to exit after the current cycle. Repeated
// requests are harmless.
func (b *Board) RequestStop() {
	b.mu.Lock()
	b.stopping = true
	stop := b.stop
	b.mu.Unlock()

	if stop != nil {
		stop()
	}
}
