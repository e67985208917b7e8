package dom

import (
	"fmt"
	"html"
	"sort"
	"strings"
)

// TagCounts counts elements by tag name.
func (s *State) TagCounts() map[string]int {
	counts := make(map[string]int)
	for _, e := range s.Elements {
		if e.Tag != "" && e.Tag != "#text" {
			counts[e.Tag]++
		}
	}
	return counts
}

// TagSummary returns up to limit "tag:count" pairs, most common first and
// ties broken by name, or "-" when there are no elements.
func (s *State) TagSummary(limit int) string {
	if s == nil {
		return "-"
	}
	return SummarizeTags(s.TagCounts(), limit)
}

// SummarizeTags formats tag counts the way TagSummary does.
func SummarizeTags(counts map[string]int, limit int) string {
	if len(counts) == 0 {
		return "-"
	}

	tags := make([]string, 0, len(counts))
	for tag := range counts {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		if counts[tags[i]] != counts[tags[j]] {
			return counts[tags[i]] > counts[tags[j]]
		}
		return tags[i] < tags[j]
	})
	if limit > 0 && len(tags) > limit {
		tags = tags[:limit]
	}

	parts := make([]string, len(tags))
	for i, tag := range tags {
		parts[i] = fmt.Sprintf("%s:%d", tag, counts[tag])
	}
	return strings.Join(parts, ", ")
}

// Render lists elements one per line as [i]<tag attr="v">text</tag>.
func (s *State) Render() string {
	var b strings.Builder
	for _, e := range s.Elements {
		b.WriteString(RenderElement(e))
		b.WriteByte('\n')
	}
	return b.String()
}

// RenderElement formats a single element line without a trailing newline.
func RenderElement(e Element) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d]<%s", e.Index, e.Tag)
	for _, a := range e.Attrs {
		fmt.Fprintf(&b, ` %s="%s"`, a.Name, html.EscapeString(a.Value))
	}
	b.WriteByte('>')
	b.WriteString(e.Text)
	fmt.Fprintf(&b, "</%s>", e.Tag)
	return b.String()
}

// Describe returns "tag[attr=v ...]" for log lines.
func (e Element) Describe() string {
	if len(e.Attrs) == 0 {
		return e.Tag
	}
	parts := make([]string, len(e.Attrs))
	for i, a := range e.Attrs {
		parts[i] = a.Name + "=" + a.Value
	}
	return e.Tag + "[" + strings.Join(parts, " ") + "]"
}
