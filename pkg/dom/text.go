package dom

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// skippedSelector matches elements whose content is never shown as text.
const skippedSelector = "head, script, style, noscript, template, iframe, embed, object, svg"

// PageText is the readable text of a page.
type PageText struct {
	Title       string
	Description string
	Text        string
	Truncated   bool
}

// ExtractText collects visible text from rawHTML, skipping scripts, styles
// and embedded content. The result is cut at maxLength bytes when maxLength
// is positive.
func ExtractText(rawHTML string, maxLength int) (*PageText, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	out := &PageText{
		Title:       strings.TrimSpace(doc.Find("title").First().Text()),
		Description: strings.TrimSpace(doc.Find("meta[name=description]").First().AttrOr("content", "")),
	}

	doc.Find(skippedSelector).Remove()
	var words []string
	for _, n := range doc.Nodes {
		collectText(n, &words)
	}
	out.Text = strings.Join(words, " ")

	if maxLength > 0 && len(out.Text) > maxLength {
		cut := maxLength
		for cut > 0 && !isRuneStart(out.Text[cut]) {
			cut--
		}
		out.Text = out.Text[:cut] + "..."
		out.Truncated = true
	}
	return out, nil
}

// String renders the text for the model, with the meta description on its
// own line first and a marker when the text was cut.
func (p *PageText) String() string {
	var b strings.Builder
	if p.Description != "" {
		b.WriteString("Description: ")
		b.WriteString(p.Description)
		b.WriteByte('\n')
	}
	if p.Text == "" {
		b.WriteString("(no visible text)")
	} else {
		b.WriteString(p.Text)
	}
	if p.Truncated {
		b.WriteString(" [truncated]")
	}
	return b.String()
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// collectText appends the words of every text node under n, so adjacent
// blocks stay separate words.
func collectText(n *html.Node, words *[]string) {
	switch n.Type {
	case html.CommentNode:
		return
	case html.TextNode:
		*words = append(*words, strings.Fields(n.Data)...)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, words)
	}
}
