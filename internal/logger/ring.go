package logger

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Entry is one captured log record, as served by the /api/logs endpoint.
type Entry struct {
	Time    time.Time `json:"timestamp"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Ring keeps the most recent log records in a fixed-size buffer so the API
// can show them without touching the process's stdout stream.
type Ring struct {
	mu   sync.Mutex
	buf  []Entry
	next int
	full bool
}

// NewRing allocates a buffer holding the last capacity records.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 500
	}
	return &Ring{buf: make([]Entry, capacity)}
}

func (r *Ring) add(e Entry) {
	r.mu.Lock()
	r.buf[r.next] = e
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

// Entries returns up to limit records, newest first.
func (r *Ring) Entries(limit int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.buf)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// ringHandler tees records into the ring before delegating to the real
// handler.
type ringHandler struct {
	inner slog.Handler
	ring  *Ring
}

func (h ringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h ringHandler) Handle(ctx context.Context, rec slog.Record) error {
	h.ring.add(Entry{Time: rec.Time, Level: rec.Level.String(), Message: rec.Message})
	return h.inner.Handle(ctx, rec)
}

func (h ringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ringHandler{inner: h.inner.WithAttrs(attrs), ring: h.ring}
}

func (h ringHandler) WithGroup(name string) slog.Handler {
	return ringHandler{inner: h.inner.WithGroup(name), ring: h.ring}
}
