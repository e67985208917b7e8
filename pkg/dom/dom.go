// Package dom turns page HTML into the indexed element listing shown to the
// model, and summarises which tags a page exposes.
package dom

import (
	"fmt"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// InteractiveSelector matches elements the agent may act on.
const InteractiveSelector = "a, button, input, select, textarea, summary, details, label, " +
	"[role], [onclick], [contenteditable], [tabindex]"

// maxElementText bounds the text shown for one element.
const maxElementText = 80

// Attr is one allowlisted attribute.
type Attr struct {
	Name  string
	Value string
}

// Option is one choice of a select element.
type Option struct {
	Value string
	Label string
}

// Position places an element relative to the viewport.
type Position int

const (
	// PositionUnknown means no layout was read for the element.
	PositionUnknown Position = iota
	PositionAbove
	PositionInView
	PositionBelow
)

// Element is one interactive element on the page.
type Element struct {
	Index    int
	Tag      string
	Attrs    []Attr
	Text     string
	Selector string
	// Options lists the choices of a select element.
	Options  []Option
	Position Position
}

// Attr returns the value of an allowlisted attribute.
func (e Element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// State is the extracted view of one page.
type State struct {
	URL      string
	Title    string
	Elements []Element
}

// Extract parses rawHTML and collects its interactive elements. Only
// attributes named in allowlist are kept.
func Extract(rawHTML string, allowlist []string) (*State, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	state := &State{Title: strings.TrimSpace(doc.Find("title").First().Text())}
	ids := idCounts(doc)

	doc.Find(InteractiveSelector).Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		if !visible(s) {
			return
		}
		el := Element{
			Index:    len(state.Elements),
			Tag:      strings.ToLower(goquery.NodeName(s)),
			Attrs:    allowedAttrs(node, allowlist),
			Text:     elementText(s),
			Selector: selectorFor(node, ids),
		}
		if el.Tag == "select" {
			el.Options = options(s)
			el.Text = optionText(el.Options)
		}
		state.Elements = append(state.Elements, el)
	})
	return state, nil
}

// Place records where element index sits, given the top and bottom edges of
// its box relative to the top of a viewport of the given height. Empty boxes
// stay unknown.
func (s *State) Place(index int, top, bottom, viewport float64) {
	if index < 0 || index >= len(s.Elements) || viewport <= 0 {
		return
	}
	e := &s.Elements[index]
	switch {
	case bottom <= top:
		e.Position = PositionUnknown
	case bottom <= 0:
		e.Position = PositionAbove
	case top >= viewport:
		e.Position = PositionBelow
	default:
		e.Position = PositionInView
	}
}

// Option returns the option of a select element whose label or value
// matches choice, ignoring case and surrounding space.
func (e Element) Option(choice string) (Option, bool) {
	choice = strings.TrimSpace(choice)
	for _, o := range e.Options {
		if strings.EqualFold(o.Label, choice) || strings.EqualFold(o.Value, choice) {
			return o, true
		}
	}
	return Option{}, false
}

// Element returns the element with the given index.
func (s *State) Element(index int) (Element, bool) {
	if index < 0 || index >= len(s.Elements) {
		return Element{}, false
	}
	return s.Elements[index], true
}

func visible(s *goquery.Selection) bool {
	if s.Closest("script, style, noscript, template, [hidden], [aria-hidden=true]").Length() > 0 {
		return false
	}
	if goquery.NodeName(s) == "input" {
		if t, _ := s.Attr("type"); strings.EqualFold(t, "hidden") {
			return false
		}
	}
	style := strings.ReplaceAll(strings.ToLower(s.AttrOr("style", "")), " ", "")
	return !strings.Contains(style, "display:none") && !strings.Contains(style, "visibility:hidden")
}

func allowedAttrs(n *html.Node, allowlist []string) []Attr {
	var attrs []Attr
	for _, a := range n.Attr {
		key := strings.ToLower(a.Key)
		if !slices.Contains(allowlist, key) {
			continue
		}
		val := strings.TrimSpace(a.Val)
		if val == "" {
			continue
		}
		attrs = append(attrs, Attr{Name: key, Value: truncate(val, maxElementText)})
	}
	return attrs
}

func elementText(s *goquery.Selection) string {
	text := strings.Join(strings.Fields(s.Text()), " ")
	return truncate(text, maxElementText)
}

func options(s *goquery.Selection) []Option {
	var opts []Option
	s.Find("option").Each(func(_ int, o *goquery.Selection) {
		label := strings.Join(strings.Fields(o.Text()), " ")
		opts = append(opts, Option{Value: o.AttrOr("value", label), Label: label})
	})
	return opts
}

func optionText(opts []Option) string {
	labels := make([]string, len(opts))
	for i, o := range opts {
		labels[i] = o.Label
	}
	return truncate(strings.Join(labels, " | "), maxElementText)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
