// Package transport is the boundary toward the chat surface. The relay
// itself never speaks a chat protocol; it hands replies to a Sender and
// leaves delivery details (wire format, retries) to the implementation
// behind it.
package transport

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/gobwas/glob"
)

// Sender delivers one reply toward a user. Implementations must be safe
// for concurrent use; the relay calls Send from timer callbacks and
// handler goroutines alike.
type Sender interface {
	Send(ctx context.Context, userID int64, text string) error
	// Typing emits a best-effort "still working" signal. Surfaces
	// without such a signal return nil.
	Typing(ctx context.Context, userID int64) error
}

// Chunk splits text into pieces of at most max bytes without breaking a
// UTF-8 sequence, preferring to cut at a line boundary near the limit.
// Empty text yields no chunks.
func Chunk(text string, max int) []string {
	if text == "" {
		return nil
	}
	if max <= 0 || len(text) <= max {
		return []string{text}
	}

	var chunks []string
	for len(text) > max {
		cut := max
		// Back off to the last newline in the window, unless that
		// would leave the chunk mostly empty.
		if idx := strings.LastIndexByte(text[:cut], '\n'); idx > max/2 {
			cut = idx + 1
		} else {
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = max
			}
		}
		chunks = append(chunks, strings.TrimRight(text[:cut], "\n"))
		text = text[cut:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// SendChunked delivers text through the sender in order, split per
// Chunk. Delivery stops at the first error.
func SendChunked(ctx context.Context, s Sender, userID int64, text string, max int) error {
	for _, chunk := range Chunk(text, max) {
		if err := s.Send(ctx, userID, chunk); err != nil {
			return fmt.Errorf("delivering chunk: %w", err)
		}
	}
	return nil
}

// FileFilter decides whether an inbound file name is acceptable, by
// glob patterns on the base name. An empty pattern list permits all.
type FileFilter struct {
	globs []glob.Glob
}

// NewFileFilter compiles the allow patterns. Patterns follow gobwas
// glob syntax ("*.go", "*.{md,txt}").
func NewFileFilter(patterns []string) (*FileFilter, error) {
	f := &FileFilter{}
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("file pattern %q: %w", p, err)
		}
		f.globs = append(f.globs, g)
	}
	return f, nil
}

// Allowed reports whether the file name passes the filter.
func (f *FileFilter) Allowed(name string) bool {
	if len(f.globs) == 0 {
		return true
	}
	for _, g := range f.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// ConsoleSender writes replies to a writer, one block per Send. It
// backs the local chat client and doubles as a test sink.
type ConsoleSender struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSender creates a ConsoleSender writing to w.
func NewConsoleSender(w io.Writer) *ConsoleSender {
	return &ConsoleSender{w: w}
}

func (c *ConsoleSender) Send(_ context.Context, _ int64, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.w, text)
	return err
}

// Typing is a no-op: a console has no typing indicator.
func (c *ConsoleSender) Typing(context.Context, int64) error { return nil }
