// Package conversation keeps the transcript shown next to the memo.
package conversation

import (
	"sync"

	"memodraft/internal/models"
)

// WelcomeText opens every new session.
const WelcomeText = "Welcome! Upload your financial documents and select a memo section to generate, or ask me a question about your documents below."

// Log is append-only. Turns are never edited or removed; Reset starts a new login.
type Log struct {
	mu    sync.RWMutex
	turns []models.Turn
}

// NewLog returns a log holding the welcome reply.
func NewLog() *Log {
	l := &Log{}
	l.Reset(models.ModelReply{Content: WelcomeText})
	return l
}

func (l *Log) Append(turns ...models.Turn) {
	l.mu.Lock()
	for _, t := range turns {
		if t != nil {
			l.turns = append(l.turns, t)
		}
	}
	l.mu.Unlock()
}

// Turns returns a copy of the transcript.
func (l *Log) Turns() []models.Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// At returns the turn at index i.
func (l *Log) At(i int) (models.Turn, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.turns) {
		return nil, false
	}
	return l.turns[i], true
}

// Reset drops the transcript and seeds it with a single welcome turn.
func (l *Log) Reset(welcome models.Turn) {
	l.mu.Lock()
	l.turns = l.turns[:0:0]
	if welcome != nil {
		l.turns = append(l.turns, welcome)
	}
	l.mu.Unlock()
}
