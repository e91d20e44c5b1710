// Package notice collects transient user-visible messages. Each notice is
// delivered once: Drain hands them out and forgets them.
package notice

import (
	"time"

	"github.com/neexbeast/campusnav/internal/queue"
)

// Level is the severity shown to the user.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notice is a one-shot message for the user.
type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Board queues notices until the client reads them.
type Board struct {
	q   *queue.Queue[Notice]
	now func() time.Time
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{q: queue.New[Notice](), now: time.Now}
}

// Info queues an informational notice.
func (b *Board) Info(msg string) { b.push(LevelInfo, msg) }

// Error queues an error notice.
func (b *Board) Error(msg string) { b.push(LevelError, msg) }

func (b *Board) push(level Level, msg string) {
	b.q.Push(Notice{Level: level, Message: msg, At: b.now().UTC()})
}

// Drain returns pending notices, oldest first, and clears them.
func (b *Board) Drain() []Notice {
	return b.q.Drain()
}
