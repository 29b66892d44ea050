package chunking

import "strings"

// OverlapConfig holds window settings for overlap chunking.
type OverlapConfig struct {
	// WindowSize is the target chunk size in characters.
	WindowSize int
	// Overlap is how many characters consecutive chunks share.
	Overlap int
}

// ApplyDefaults sets default values for unset fields.
func (c *OverlapConfig) ApplyDefaults() {
	if c.WindowSize == 0 {
		c.WindowSize = 1200
	}
	if c.Overlap == 0 {
		c.Overlap = 200
	}
	if c.Overlap >= c.WindowSize {
		c.Overlap = c.WindowSize / 4
	}
}

// OverlapChunker produces fixed-window chunks with configurable
// overlap, snapping window ends to sentence or line boundaries when one
// falls nearby. Used for ingesting arbitrary reference documents.
type OverlapChunker struct {
	cfg OverlapConfig
}

// NewOverlapChunker creates a chunker with the given config.
func NewOverlapChunker(cfg OverlapConfig) *OverlapChunker {
	cfg.ApplyDefaults()
	return &OverlapChunker{cfg: cfg}
}

// Chunk splits text into overlapping windows.
func (o *OverlapChunker) Chunk(text string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= o.cfg.WindowSize {
		return []Chunk{newChunk(text, "overlap")}
	}

	var chunks []Chunk
	step := o.cfg.WindowSize - o.cfg.Overlap
	for start := 0; start < len(text); start += step {
		end := start + o.cfg.WindowSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = snapToBoundary(text, start, end, start+step)
		}
		content := strings.TrimSpace(text[start:end])
		if content != "" {
			chunks = append(chunks, newChunk(content, "overlap"))
		}
		if end == len(text) {
			break
		}
	}
	return chunks
}

// snapToBoundary moves end backwards to the nearest sentence or line
// boundary within a quarter-window, so windows avoid cutting sentences
// mid-way. The end never retreats past floor, the next window's start:
// consecutive windows must cover the text with no gap. Returns the
// original end when no boundary is close enough.
func snapToBoundary(text string, start, end, floor int) int {
	limit := end - (end-start)/4
	if floor > limit {
		limit = floor
	}
	for i := end - 1; i > limit; i-- {
		switch text[i] {
		case '\n':
			return i + 1
		case '.', '!', '?':
			if i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\n') {
				return i + 1
			}
		}
	}
	return end
}
