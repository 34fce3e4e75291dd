// Package chunker splits extracted document text into overlapping,
// size-bounded segments. Lengths are measured in Unicode code points.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MinChunkSize is the floor applied to any requested chunk size.
	MinChunkSize = 200
	// overlap never exceeds chunkSize minus this margin
	overlapMargin = 50
	blockSep      = "\n\n"
)

var (
	headingRe   = regexp.MustCompile(`(?m)^#{1,6}[ \t]+\S.*$`)
	paragraphRe = regexp.MustCompile(`\n\s*\n+`)
)

// Split returns the chunks of text in source order. Every chunk is non-empty
// after trimming and at most chunkSize+overlap characters long.
//
// Markdown headings start new blocks; without headings, blank lines do.
// Blocks are packed greedily up to chunkSize, oversized blocks are cut into
// windows advancing by chunkSize-overlap, and every chunk after the first is
// prefixed with the tail of its predecessor.
func Split(text string, chunkSize, overlap int) []string {
	size, overlap := Normalize(chunkSize, overlap)

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	chunks := pack(splitBlocks(text), size, overlap)
	return withOverlap(chunks, size, overlap)
}

// Normalize applies the size floor and clamps overlap into [0, size-50].
func Normalize(chunkSize, overlap int) (int, int) {
	size := max(chunkSize, MinChunkSize)
	overlap = min(max(overlap, 0), max(size-overlapMargin, 0))
	return size, overlap
}

func splitBlocks(text string) []string {
	var blocks []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			blocks = append(blocks, s)
		}
	}

	locs := headingRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		for _, p := range paragraphRe.Split(text, -1) {
			add(p)
		}
		return blocks
	}

	add(text[:locs[0][0]])
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		add(text[loc[0]:end])
	}
	return blocks
}

func pack(blocks []string, size, overlap int) []string {
	var (
		chunks     []string
		current    []string
		currentLen int
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		if s := strings.TrimSpace(strings.Join(current, blockSep)); s != "" {
			chunks = append(chunks, s)
		}
		current = nil
		currentLen = 0
	}

	for _, b := range blocks {
		n := utf8.RuneCountInString(b)
		if n > size {
			flush()
			chunks = append(chunks, windows(b, size, overlap)...)
			continue
		}
		add := n
		if len(current) > 0 {
			add += len(blockSep)
		}
		if currentLen+add > size {
			flush()
			add = n
		}
		current = append(current, b)
		currentLen += add
	}
	flush()
	return chunks
}

// windows hard-splits a block longer than size.
func windows(block string, size, overlap int) []string {
	r := []rune(block)
	step := max(size-overlap, 1)

	var out []string
	for start := 0; start < len(r); start += step {
		end := min(start+size, len(r))
		if s := strings.TrimSpace(string(r[start:end])); s != "" {
			out = append(out, s)
		}
		if end == len(r) {
			break
		}
	}
	return out
}

func withOverlap(chunks []string, size, overlap int) []string {
	if overlap == 0 || len(chunks) < 2 {
		return chunks
	}
	out := make([]string, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		cur := chunks[i]
		room := size + overlap - utf8.RuneCountInString(cur) - len(blockSep)
		n := min(overlap, room)
		if n <= 0 {
			out[i] = cur
			continue
		}
		prev := []rune(chunks[i-1])
		tail := strings.TrimSpace(string(prev[max(len(prev)-n, 0):]))
		if tail == "" {
			out[i] = cur
			continue
		}
		out[i] = tail + blockSep + cur
	}
	return out
}
