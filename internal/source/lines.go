package source

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"codegraph/internal/graph"
)

// LineIndex converts between byte offsets and zero-based line / UTF-16
// character positions for one text.
type LineIndex struct {
	text   string
	starts []int
}

// NewLineIndex indexes the line starts of text.
func NewLineIndex(text string) *LineIndex {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{text: text, starts: starts}
}

// Text returns the indexed text.
func (x *LineIndex) Text() string { return x.text }

// LineCount returns the number of lines, counting a trailing empty line.
func (x *LineIndex) LineCount() int { return len(x.starts) }

// Position converts a byte offset into a position. Offsets past the end are
// clamped.
func (x *LineIndex) Position(offset int) graph.Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(x.text) {
		offset = len(x.text)
	}
	line := sort.Search(len(x.starts), func(i int) bool { return x.starts[i] > offset }) - 1
	return graph.Position{Line: line, Character: utf16Len(x.text[x.starts[line]:offset])}
}

// Offset converts a position into a byte offset. A character past the end of
// its line is an error, except that the line's own length is accepted.
func (x *LineIndex) Offset(p graph.Position) (int, error) {
	if p.Line < 0 || p.Line >= len(x.starts) || p.Character < 0 {
		return 0, fmt.Errorf("%w: line %d", ErrRangeNotFound, p.Line)
	}
	start := x.starts[p.Line]
	end := len(x.text)
	if p.Line+1 < len(x.starts) {
		end = x.starts[p.Line+1] - 1
	}

	units := 0
	for i := start; i < end; {
		if units >= p.Character {
			return i, nil
		}
		r, size := utf8.DecodeRuneInString(x.text[i:])
		units += runeUnits(r)
		i += size
	}
	if units >= p.Character {
		return end, nil
	}
	return 0, fmt.Errorf("%w: %d:%d", ErrRangeNotFound, p.Line, p.Character)
}

// Slice returns the text covered by r.
func (x *LineIndex) Slice(r graph.Range) (string, error) {
	start, err := x.Offset(r.Start)
	if err != nil {
		return "", err
	}
	end, err := x.Offset(r.End)
	if err != nil {
		return "", err
	}
	if end < start {
		return "", fmt.Errorf("%w: end before start", ErrRangeNotFound)
	}
	return x.text[start:end], nil
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += runeUnits(r)
	}
	return n
}

func runeUnits(r rune) int {
	if r >= 0x10000 {
		return 2
	}
	return 1
}
