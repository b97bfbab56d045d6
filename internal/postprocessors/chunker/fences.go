package chunker

import "strings"

// span is a half-open rune range [start, end).
type span struct {
	start int
	end   int
}

// contains reports whether pos falls strictly inside the span.
// Cutting at either edge keeps the block whole.
func (s span) contains(pos int) bool {
	return pos > s.start && pos < s.end
}

func insideAny(spans []span, pos int) bool {
	for _, s := range spans {
		if s.contains(pos) {
			return true
		}
		if s.start >= pos {
			break
		}
	}
	return false
}

// fencedBlocks finds ``` and ~~~ fenced code blocks, in order.
// A block runs from the opening fence line to the end of the closing fence
// line, including its newline. An unclosed fence runs to the end of text.
func fencedBlocks(runes []rune) []span {
	var (
		blocks  []span
		open    = -1
		marker  string
		lineBeg = 0
	)

	for lineBeg < len(runes) {
		lineEnd := lineBeg
		for lineEnd < len(runes) && runes[lineEnd] != '\n' {
			lineEnd++
		}
		next := lineEnd
		if next < len(runes) {
			next++ // include the newline
		}

		line := strings.TrimLeft(string(runes[lineBeg:lineEnd]), " \t")
		switch {
		case open < 0 && (strings.HasPrefix(line, "```") || strings.HasPrefix(line, "~~~")):
			open = lineBeg
			marker = line[:3]
		case open >= 0 && strings.HasPrefix(line, marker):
			blocks = append(blocks, span{start: open, end: next})
			open = -1
		}

		lineBeg = next
	}

	if open >= 0 {
		blocks = append(blocks, span{start: open, end: len(runes)})
	}
	return blocks
}
