package chunk

import (
	"strings"
	"unicode"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 100
)

// Splitter cuts text into fragments of at most Size characters, preferring to
// cut at a paragraph break, then a line break, then after a sentence
// terminator, then at whitespace. Only when none of those exists inside the
// window does it fall back to a hard cut. Adjacent fragments share Overlap
// characters of context.
type Splitter struct {
	size    int
	overlap int
}

type Option func(*Splitter)

func WithSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.size = size
		}
	}
}

func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

func NewSplitter(opts ...Option) *Splitter {
	s := &Splitter{
		size:    DefaultChunkSize,
		overlap: DefaultOverlap,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.overlap >= s.size {
		s.overlap = s.size - 1
	}
	return s
}

// Split returns the ordered fragments of text. Empty input yields nil, input
// no longer than the chunk size yields a single fragment.
func (s *Splitter) Split(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)
	if n <= s.size {
		return []string{text}
	}

	var out []string
	start := 0
	prevEnd := 0
	for start < n {
		end := start + s.size
		if end >= n {
			out = append(out, string(runes[start:n]))
			break
		}

		cut := findBoundary(runes, start, prevEnd, end)
		out = append(out, string(runes[start:cut]))
		prevEnd = cut

		next := cut - s.overlap
		if next <= start {
			// Overlap would stall the scan; advance without it.
			next = cut
		}
		start = next
	}
	return out
}

// findBoundary picks the cut position in (floor, end] with the highest
// boundary priority: paragraph break, line break, sentence end, whitespace,
// hard cut at end. floor is the previous fragment's end; cutting at or
// before it would emit a fragment that is pure overlap.
func findBoundary(runes []rune, start, floor, end int) int {
	lo := floor + 1
	if lo <= start {
		lo = start + 1
	}

	// Paragraph break: cut after the blank line.
	for i := end; i >= lo; i-- {
		if i >= start+2 && runes[i-1] == '\n' && runes[i-2] == '\n' {
			return i
		}
	}

	// Line break.
	for i := end; i >= lo; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}

	// Sentence terminator, keeping one trailing space with the fragment when
	// it still fits the window.
	for i := end; i >= lo; i-- {
		if isSentenceEnd(runes[i-1]) {
			cut := i
			if cut < end && unicode.IsSpace(runes[cut]) {
				cut++
			}
			return cut
		}
	}

	// Whitespace.
	for i := end; i >= lo; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}

	return end
}

func isSentenceEnd(r rune) bool {
	return strings.ContainsRune(".!?", r)
}

// FixedSplit cuts text into fragments of exactly size characters (the final
// fragment may be shorter), with consecutive fragments sharing exactly
// overlap characters. It is the fallback for inputs where boundary search is
// not warranted.
func FixedSplit(text string, size, overlap int) []string {
	if text == "" || size <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}

	runes := []rune(text)
	n := len(runes)
	if n <= size {
		return []string{text}
	}

	step := size - overlap
	var out []string
	for start := 0; start < n; start += step {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, string(runes[start:end]))
		if end == n {
			break
		}
	}
	return out
}
