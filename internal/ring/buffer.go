// Package ring implements the bounded log capture buffers used to hold a
// task's recently captured stdout/stderr lines in memory.
package ring

import "sync"

// DefaultCapacity is the per-stream line capacity mandated by the spec (P9).
const DefaultCapacity = 500

// Buffer is a fixed-capacity FIFO of text lines. Appending beyond capacity
// evicts from the head. Safe for concurrent single-producer/multi-reader use.
type Buffer struct {
	mu       sync.Mutex
	lines    []string
	capacity int
}

// New returns a Buffer with the given capacity, defaulting to DefaultCapacity
// when cap <= 0.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{capacity: capacity}
}

// Append adds a line, evicting the oldest line if the buffer is full.
func (b *Buffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if over := len(b.lines) - b.capacity; over > 0 {
		b.lines = b.lines[over:]
	}
}

// Snapshot returns an independent copy of the current lines.
func (b *Buffer) Snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = nil
}

// Len reports the current number of buffered lines.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Pair bundles the stdout/stderr buffers for one live task entry.
type Pair struct {
	Stdout *Buffer
	Stderr *Buffer
}

// NewPair allocates a fresh stdout/stderr buffer pair at DefaultCapacity.
func NewPair() Pair {
	return Pair{Stdout: New(DefaultCapacity), Stderr: New(DefaultCapacity)}
}

// Clear empties both buffers without affecting any running child.
func (p Pair) Clear() {
	p.Stdout.Clear()
	p.Stderr.Clear()
}
