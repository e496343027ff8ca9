package chunk_test

import (
	"strings"
	"testing"

	"scientia/src/core/chunk"
)

func TestSplitSentenceBoundaries(t *testing.T) {
	s := chunk.NewSplitter(chunk.WithSize(4), chunk.WithOverlap(0))

	got := s.Split("A. B. C.")
	want := []string{"A. ", "B. ", "C."}

	if len(got) != len(want) {
		t.Fatalf("Split returned %d fragments %q, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("fragment %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitEdgeCases(t *testing.T) {
	tests := []struct {
		name string
		text string
		size int
		want int
	}{
		{name: "empty input", text: "", size: 10, want: 0},
		{name: "shorter than target", text: "short", size: 10, want: 1},
		{name: "exactly target", text: "0123456789", size: 10, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := chunk.NewSplitter(chunk.WithSize(tt.size), chunk.WithOverlap(2))
			got := s.Split(tt.text)
			if len(got) != tt.want {
				t.Errorf("Split(%q) returned %d fragments, want %d", tt.text, len(got), tt.want)
			}
		})
	}
}

func TestSplitPrefersParagraphOverSentence(t *testing.T) {
	text := "One. Two\n\nThree. Four. Five. Six. Seven."
	s := chunk.NewSplitter(chunk.WithSize(12), chunk.WithOverlap(0))

	got := s.Split(text)
	if len(got) == 0 {
		t.Fatal("Split returned no fragments")
	}
	if got[0] != "One. Two\n\n" {
		t.Errorf("first fragment = %q, want cut after the paragraph break", got[0])
	}
}

func TestSplitFragmentInvariants(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)
	size := 100
	overlap := 20
	s := chunk.NewSplitter(chunk.WithSize(size), chunk.WithOverlap(overlap))

	got := s.Split(text)
	if len(got) < 2 {
		t.Fatalf("expected multiple fragments, got %d", len(got))
	}
	for i, frag := range got {
		if frag == "" {
			t.Fatalf("fragment %d is empty", i)
		}
		if i < len(got)-1 && len([]rune(frag)) > size {
			t.Errorf("fragment %d has length %d, want <= %d", i, len([]rune(frag)), size)
		}
	}

	// Every fragment here is longer than the overlap, so consecutive
	// fragments share exactly overlap characters and dropping that prefix
	// from each successor reassembles the input.
	var rebuilt strings.Builder
	rebuilt.WriteString(got[0])
	for i := 1; i < len(got); i++ {
		prev := []rune(got[i-1])
		cur := []rune(got[i])
		if string(prev[len(prev)-overlap:]) != string(cur[:overlap]) {
			t.Fatalf("fragments %d and %d do not share %d characters", i-1, i, overlap)
		}
		rebuilt.WriteString(string(cur[overlap:]))
	}
	if rebuilt.String() != text {
		t.Error("fragments do not reassemble into the original text")
	}
}

func TestSplitEveryFragmentAddsContent(t *testing.T) {
	// A strong boundary right before a long boundary-less run: the overlap
	// window reaches back across the paragraph break, which must not be
	// re-used as the next cut.
	text := "abcdefgh\n\n" + strings.Repeat("q", 15)
	s := chunk.NewSplitter(chunk.WithSize(10), chunk.WithOverlap(5))

	got := s.Split(text)
	want := []string{"abcdefgh\n\n", "fgh\n\nqqqqq", "qqqqqqqqqq", "qqqqqqqqqq"}
	if len(got) != len(want) {
		t.Fatalf("Split returned %d fragments %q, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("fragment %d = %q, want %q", i, got[i], want[i])
		}
	}

	// A fragment no longer than the overlap is pure shared context with no
	// content of its own.
	for i := 1; i < len(got); i++ {
		if len([]rune(got[i])) <= 5 {
			t.Errorf("fragment %d %q carries no content beyond the overlap", i, got[i])
		}
	}
}

func TestSplitHardCutFallback(t *testing.T) {
	text := strings.Repeat("a", 25)
	s := chunk.NewSplitter(chunk.WithSize(10), chunk.WithOverlap(0))

	got := s.Split(text)
	want := []string{strings.Repeat("a", 10), strings.Repeat("a", 10), strings.Repeat("a", 5)}
	if len(got) != len(want) {
		t.Fatalf("Split returned %d fragments, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("fragment %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFixedSplitCountLaw(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		size    int
		overlap int
	}{
		{name: "no overlap even", length: 100, size: 10, overlap: 0},
		{name: "no overlap ragged", length: 103, size: 10, overlap: 0},
		{name: "with overlap", length: 100, size: 10, overlap: 3},
		{name: "large overlap", length: 57, size: 8, overlap: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := strings.Repeat("x", tt.length)
			got := chunk.FixedSplit(text, tt.size, tt.overlap)

			step := tt.size - tt.overlap
			want := (tt.length - tt.overlap + step - 1) / step
			if len(got) != want {
				t.Fatalf("FixedSplit produced %d fragments, want ceil((L-O)/(S-O)) = %d", len(got), want)
			}

			for i, frag := range got {
				if i < len(got)-1 && len(frag) != tt.size {
					t.Errorf("fragment %d has length %d, want %d", i, len(frag), tt.size)
				}
			}
		})
	}
}

func TestFixedSplitExactOverlap(t *testing.T) {
	text := "abcdefghijklmnop"
	got := chunk.FixedSplit(text, 6, 2)

	for i := 1; i < len(got); i++ {
		prev := got[i-1]
		tail := prev[len(prev)-2:]
		if !strings.HasPrefix(got[i], tail) {
			t.Errorf("fragment %d does not share 2 characters with its predecessor: %q -> %q", i, prev, got[i])
		}
	}
}
