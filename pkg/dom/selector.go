package dom

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var simpleID = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

func idCounts(doc *goquery.Document) map[string]int {
	counts := make(map[string]int)
	doc.Find("[id]").Each(func(_ int, s *goquery.Selection) {
		counts[s.AttrOr("id", "")]++
	})
	return counts
}

// uniqueID returns the node's id when it is usable as a CSS selector and
// unique in the document.
func uniqueID(n *html.Node, ids map[string]int) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == "id" && simpleID.MatchString(a.Val) && ids[a.Val] == 1 {
			return a.Val, true
		}
	}
	return "", false
}

// selectorFor builds a CSS selector for n: "#id" when n has a unique id,
// otherwise a chain of tag:nth-of-type steps anchored at the nearest
// ancestor with a unique id, or at the document root.
func selectorFor(n *html.Node, ids map[string]int) string {
	var steps []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if id, ok := uniqueID(cur, ids); ok {
			steps = append(steps, "#"+id)
			break
		}
		steps = append(steps, step(cur))
	}

	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return strings.Join(steps, " > ")
}

func step(n *html.Node) string {
	tag := strings.ToLower(n.Data)
	if tag == "html" || tag == "body" {
		return tag
	}
	pos, same := 0, 0
	for sib := n.Parent.FirstChild; sib != nil; sib = sib.NextSibling {
		if sib.Type != html.ElementNode || !strings.EqualFold(sib.Data, n.Data) {
			continue
		}
		same++
		if sib == n {
			pos = same
		}
	}
	if same == 1 {
		return tag
	}
	return tag + ":nth-of-type(" + strconv.Itoa(pos) + ")"
}
