// Package chunker splits extracted text into fixed-size overlapping windows.
package chunker

import "chatanything/config"

// Chunker cuts text into windows of at most size characters, each starting
// size-overlap characters after the previous one. Sizes count runes, so a
// multi-byte character is never split.
type Chunker struct {
	size    int
	overlap int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithChunkSize sets the window size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets how many characters consecutive windows share.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

func New(opts ...Option) *Chunker {
	c := &Chunker{
		size:    config.ChunkSize,
		overlap: config.ChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the windows in order. Empty text gives no chunks; text that
// fits in one window gives exactly one.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	step := c.size - c.overlap
	chunks := make([]string, 0, Count(n, c.size, c.overlap))
	for start := 0; ; start += step {
		end := min(start+c.size, n)
		chunks = append(chunks, string(runes[start:end]))
		if end == n {
			break
		}
	}
	return chunks
}

// Count is the number of windows Split produces for n characters.
func Count(n, size, overlap int) int {
	switch {
	case n <= 0:
		return 0
	case n <= size:
		return 1
	}
	step := size - overlap
	return (n - overlap + step - 1) / step
}
