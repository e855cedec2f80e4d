package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// LogEntry is one structured diagnostic returned with a pass result.
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"ts"`
	Index   int       `json:"index,omitempty"`
}

// PassLog collects the non-fatal diagnostics of one pass and mirrors them
// to the process logger. Safe for concurrent use.
type PassLog struct {
	mu      sync.Mutex
	entries []LogEntry
	log     *slog.Logger
	now     func() time.Time
}

func NewPassLog(log *slog.Logger) *PassLog {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &PassLog{log: log, now: time.Now}
}

// Record appends an entry. Index 0 means the entry concerns the whole pass.
func (p *PassLog) Record(level slog.Level, index int, msg string) {
	e := LogEntry{Level: levelName(level), Message: msg, Time: p.now(), Index: index}
	p.mu.Lock()
	p.entries = append(p.entries, e)
	p.mu.Unlock()

	if index > 0 {
		p.log.Log(context.Background(), level, msg, "index", index)
	} else {
		p.log.Log(context.Background(), level, msg)
	}
}

func (p *PassLog) Info(index int, msg string)  { p.Record(slog.LevelInfo, index, msg) }
func (p *PassLog) Warn(index int, msg string)  { p.Record(slog.LevelWarn, index, msg) }
func (p *PassLog) Error(index int, msg string) { p.Record(slog.LevelError, index, msg) }

// Entries returns a copy of the entries so far, never nil.
func (p *PassLog) Entries() []LogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]LogEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warning"
	case l >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
