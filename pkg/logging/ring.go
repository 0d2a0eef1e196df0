// Package logging wires the CLI's structured logging: records go to a
// base handler and into a bounded in-memory ring that backs the
// "show cli log" command.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Entry is one captured log record.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %-5s %s",
		e.Time.Format("2006-01-02 15:04:05"), e.Level, e.Message)
}

// Ring is a fixed-capacity buffer of log entries. Old entries are
// overwritten once the ring is full.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 256
	}
	return &Ring{entries: make([]Entry, capacity)}
}

func (r *Ring) Add(e Entry) {
	r.mu.Lock()
	r.entries[r.next] = e
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

// Last returns up to n entries, oldest first. n <= 0 returns all.
func (r *Ring) Last(n int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []Entry
	if r.full {
		all = append(all, r.entries[r.next:]...)
	}
	all = append(all, r.entries[:r.next]...)
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}

// RingHandler is an slog.Handler that forwards records to a wrapped
// base handler and captures them in a Ring.
type RingHandler struct {
	base   slog.Handler
	ring   *Ring
	attrs  []slog.Attr
	groups []string
}

func NewRingHandler(base slog.Handler, ring *Ring) *RingHandler {
	return &RingHandler{base: base, ring: ring}
}

// Enabled implements slog.Handler.
func (h *RingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *RingHandler) Handle(ctx context.Context, r slog.Record) error {
	err := h.base.Handle(ctx, r)
	h.ring.Add(Entry{
		Time:    r.Time,
		Level:   r.Level,
		Message: formatRecord(r, h.attrs, h.groups),
	})
	return err
}

// WithAttrs implements slog.Handler.
func (h *RingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RingHandler{
		base:   h.base.WithAttrs(attrs),
		ring:   h.ring,
		attrs:  append(append([]slog.Attr{}, h.attrs...), attrs...),
		groups: h.groups,
	}
}

// WithGroup implements slog.Handler.
func (h *RingHandler) WithGroup(name string) slog.Handler {
	return &RingHandler{
		base:   h.base.WithGroup(name),
		ring:   h.ring,
		attrs:  h.attrs,
		groups: append(append([]string{}, h.groups...), name),
	}
}

// formatRecord produces a compact text representation of a log record.
func formatRecord(r slog.Record, preAttrs []slog.Attr, groups []string) string {
	var b strings.Builder
	b.WriteString(r.Message)

	for _, a := range preAttrs {
		fmt.Fprintf(&b, " %s=%s", a.Key, a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if len(groups) > 0 {
			key = strings.Join(groups, ".") + "." + key
		}
		fmt.Fprintf(&b, " %s=%s", key, a.Value.String())
		return true
	})

	return b.String()
}
