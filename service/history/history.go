package history

import (
	"sync"

	"github.com/tempo-fm/chime/models"
)

// Entry is one detected play inside the current reporting window.
type Entry struct {
	Track   string
	Artists string
}

// Report is the flushed contents of one chat's reporting window.
// Entries keep insertion order.
type Report struct {
	ChatID  int64
	Entries []Entry
	Total   int
}

// Empty reports whether nothing was played in the window.
func (r Report) Empty() bool {
	return r.Total == 0
}

// Log accumulates plays per chat between daily flushes. All state is
// in-memory and lost on restart.
type Log struct {
	mu      sync.Mutex
	entries map[int64][]Entry
}

func NewLog() *Log {
	return &Log{entries: make(map[int64][]Entry)}
}

// Append records one play for a chat.
func (l *Log) Append(event *models.NowPlaying) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[event.ChatID] = append(l.entries[event.ChatID], Entry{
		Track:   event.Track.Name,
		Artists: event.Track.ArtistNames(),
	})
}

// Count returns how many plays the chat has in the current window.
func (l *Log) Count(chatID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries[chatID])
}

// ChatIDs returns every chat with a nonzero window.
func (l *Log) ChatIDs() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]int64, 0, len(l.entries))
	for id, entries := range l.entries {
		if len(entries) > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// FlushAndReport snapshots and clears the chat's window in one step.
// The snapshot steals the slice under the lock, so an append racing with
// the flush lands in the next window and is never lost. An empty window
// yields a report with Empty() true, not an error.
func (l *Log) FlushAndReport(chatID int64) Report {
	l.mu.Lock()
	entries := l.entries[chatID]
	delete(l.entries, chatID)
	l.mu.Unlock()

	return Report{
		ChatID:  chatID,
		Entries: entries,
		Total:   len(entries),
	}
}
