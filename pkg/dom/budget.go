package dom

import (
	"slices"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

func encoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		// cl100k_base may need a download on first use; CountTokens falls
		// back to an estimate when it is unavailable.
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	return enc
}

// CountTokens returns the cl100k_base token count of text, or a character
// based estimate when the encoding cannot be loaded.
func CountTokens(text string) int {
	if e := encoding(); e != nil {
		return len(e.Encode(text, nil, nil))
	}
	return estimateTokens(text)
}

func estimateTokens(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	estimate := len([]rune(trimmed)) / 4
	if words := len(strings.Fields(trimmed)); estimate < words {
		estimate = words
	}
	return max(estimate, 1)
}

// Listing is an element listing cut to a token budget.
type Listing struct {
	Text string

	// Above and Below count left out elements that scrolling would list.
	Above int
	Below int

	// Omitted counts left out elements that are in view or not located.
	Omitted int
}

// RenderWithin renders as many elements as fit in maxTokens. Elements in the
// viewport or not located come first, then those below it, then those above
// it nearest first. The kept elements are listed in index order. A
// non-positive budget renders everything.
func (s *State) RenderWithin(maxTokens int) Listing {
	if maxTokens <= 0 {
		return Listing{Text: s.Render()}
	}

	keep := make([]bool, len(s.Elements))
	var l Listing
	used, full := 0, false
	for _, i := range s.priority() {
		e := s.Elements[i]
		if !full {
			cost := CountTokens(RenderElement(e) + "\n")
			if used+cost <= maxTokens {
				used += cost
				keep[i] = true
				continue
			}
			full = true
		}
		switch e.Position {
		case PositionAbove:
			l.Above++
		case PositionBelow:
			l.Below++
		default:
			l.Omitted++
		}
	}

	var b strings.Builder
	for i, e := range s.Elements {
		if keep[i] {
			b.WriteString(RenderElement(e))
			b.WriteByte('\n')
		}
	}
	l.Text = b.String()
	return l
}

func (s *State) priority() []int {
	var inView, below, above []int
	for i, e := range s.Elements {
		switch e.Position {
		case PositionAbove:
			above = append(above, i)
		case PositionBelow:
			below = append(below, i)
		default:
			inView = append(inView, i)
		}
	}
	slices.Reverse(above)
	return slices.Concat(inView, below, above)
}
