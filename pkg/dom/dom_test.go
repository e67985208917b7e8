package dom

import (
	"fmt"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!doctype html>
<html>
<head>
  <title> Search Example </title>
  <meta name="description" content="A test page">
  <script>var a = "<button>not real</button>";</script>
</head>
<body>
  <nav>
    <a href="/docs" class="nav-link">Docs</a>
    <a href="/blog" class="nav-link">Blog</a>
  </nav>
  <form id="search">
    <input type="hidden" name="csrf" value="t0k3n">
    <input type="text" name="q" placeholder="Search..." aria-label="Search" data-secret="x">
    <button type="submit">  Go
      now </button>
  </form>
  <div role="button" tabindex="0" style="display: none">Hidden</div>
  <div hidden><a href="/secret">secret</a></div>
  <div onclick="go()">Clickable div</div>
  <template><button>templated</button></template>
  <p id="dup">one</p><p id="dup">two</p>
</body>
</html>`

var allowlist = []string{"id", "name", "type", "placeholder", "aria-label", "href", "role"}

func TestExtract(t *testing.T) {
	state, err := Extract(samplePage, allowlist)
	require.NoError(t, err)

	assert.Equal(t, "Search Example", state.Title)

	var tags []string
	for _, e := range state.Elements {
		tags = append(tags, e.Tag)
	}
	assert.Equal(t, []string{"a", "a", "input", "button", "div"}, tags)

	for i, e := range state.Elements {
		assert.Equal(t, i, e.Index)
	}

	input := state.Elements[2]
	assert.Equal(t, []Attr{
		{Name: "type", Value: "text"},
		{Name: "name", Value: "q"},
		{Name: "placeholder", Value: "Search..."},
		{Name: "aria-label", Value: "Search"},
	}, input.Attrs, "only allowlisted attributes are kept")

	button := state.Elements[3]
	assert.Equal(t, "Go now", button.Text)

	href, ok := state.Elements[1].Attr("href")
	assert.True(t, ok)
	assert.Equal(t, "/blog", href)

	_, ok = state.Element(99)
	assert.False(t, ok)
}

func TestExtract_Selectors(t *testing.T) {
	state, err := Extract(samplePage, allowlist)
	require.NoError(t, err)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(samplePage))
	require.NoError(t, err)

	for _, e := range state.Elements {
		matches := doc.Find(e.Selector)
		require.Equal(t, 1, matches.Length(), "selector %q must match exactly one element", e.Selector)
		assert.Equal(t, e.Tag, goquery.NodeName(matches))
	}

	assert.Equal(t, "#search > input:nth-of-type(2)", state.Elements[2].Selector)
	assert.Equal(t, "#search > button", state.Elements[3].Selector)
	assert.Equal(t, "html > body > nav > a:nth-of-type(2)", state.Elements[1].Selector)
}

func TestTagSummary(t *testing.T) {
	state, err := Extract(samplePage, allowlist)
	require.NoError(t, err)

	assert.Equal(t, "a:2, button:1, div:1, input:1", state.TagSummary(6))
	assert.Equal(t, "a:2, button:1", state.TagSummary(2))

	empty := &State{}
	assert.Equal(t, "-", empty.TagSummary(6))

	var nilState *State
	assert.Equal(t, "-", nilState.TagSummary(6))
}

func TestRender(t *testing.T) {
	state := &State{Elements: []Element{
		{Index: 0, Tag: "a", Attrs: []Attr{{Name: "href", Value: "/x?a=1&b=2"}}, Text: "Link"},
		{Index: 1, Tag: "input", Attrs: []Attr{{Name: "name", Value: "q"}}},
	}}

	assert.Equal(t,
		"[0]<a href=\"/x?a=1&amp;b=2\">Link</a>\n[1]<input name=\"q\"></input>\n",
		state.Render())
	assert.Equal(t, "a[href=/x?a=1&b=2]", state.Elements[0].Describe())
	assert.Equal(t, "div", Element{Tag: "div"}.Describe())
}

func TestRenderWithin(t *testing.T) {
	var elements []Element
	for i := 0; i < 50; i++ {
		elements = append(elements, Element{Index: i, Tag: "button", Text: strings.Repeat("word ", 10)})
	}
	state := &State{Elements: elements}

	full := state.RenderWithin(0)
	assert.Equal(t, Listing{Text: state.Render()}, full)

	limited := state.RenderWithin(100)
	assert.Positive(t, limited.Omitted)
	assert.Zero(t, limited.Above+limited.Below, "unlocated elements give no scroll hint")
	assert.LessOrEqual(t, CountTokens(limited.Text), 100+len(elements))
	assert.True(t, strings.HasPrefix(full.Text, limited.Text))
}

func TestRenderWithin_Viewport(t *testing.T) {
	var elements []Element
	for i := 0; i < 10; i++ {
		elements = append(elements, Element{Index: i, Tag: "button", Text: fmt.Sprintf("Button %d", i)})
	}
	state := &State{Elements: elements}
	// rows are 100px tall in a 300px viewport scrolled down by 300px
	for i := range elements {
		top := float64(i*100 - 300)
		state.Place(i, top, top+100, 300)
	}
	assert.Equal(t, PositionAbove, state.Elements[2].Position)
	assert.Equal(t, PositionInView, state.Elements[3].Position)
	assert.Equal(t, PositionInView, state.Elements[5].Position)
	assert.Equal(t, PositionBelow, state.Elements[6].Position)

	budget := 0
	for _, i := range []int{3, 4, 5, 6} {
		budget += CountTokens(RenderElement(state.Elements[i]) + "\n")
	}
	l := state.RenderWithin(budget)

	assert.Equal(t, "[3]<button>Button 3</button>\n[4]<button>Button 4</button>\n"+
		"[5]<button>Button 5</button>\n[6]<button>Button 6</button>\n", l.Text)
	assert.Equal(t, 3, l.Above)
	assert.Equal(t, 3, l.Below)
	assert.Zero(t, l.Omitted)

	// the nearest elements above are listed before the farther ones
	budget += CountTokens(RenderElement(state.Elements[2]) + "\n")
	for _, i := range []int{7, 8, 9} {
		budget += CountTokens(RenderElement(state.Elements[i]) + "\n")
	}
	l = state.RenderWithin(budget)
	assert.Contains(t, l.Text, "[2]<button>")
	assert.NotContains(t, l.Text, "[1]<button>")
	assert.Equal(t, 2, l.Above)
	assert.Zero(t, l.Below)
}

func TestPlace(t *testing.T) {
	state := &State{Elements: []Element{{Index: 0}, {Index: 1}}}

	state.Place(0, 0, 0, 600)
	assert.Equal(t, PositionUnknown, state.Elements[0].Position, "empty boxes are not located")

	state.Place(1, 10, 20, 0)
	assert.Equal(t, PositionUnknown, state.Elements[1].Position)

	state.Place(1, -50, 1, 600)
	assert.Equal(t, PositionInView, state.Elements[1].Position)

	state.Place(5, 0, 10, 600)
}

func TestExtract_Select(t *testing.T) {
	state, err := Extract(`<html><body>
<select name="color">
  <option value="r">Red</option>
  <option>Dark   blue</option>
</select>
</body></html>`, allowlist)
	require.NoError(t, err)

	require.Len(t, state.Elements, 1, "options are reached through their select")
	sel := state.Elements[0]
	assert.Equal(t, "select", sel.Tag)
	assert.Equal(t, "Red | Dark blue", sel.Text)
	assert.Equal(t, []Option{{Value: "r", Label: "Red"}, {Value: "Dark blue", Label: "Dark blue"}}, sel.Options)

	opt, ok := sel.Option(" dark BLUE ")
	assert.True(t, ok)
	assert.Equal(t, "Dark blue", opt.Value)

	opt, ok = sel.Option("r")
	assert.True(t, ok)
	assert.Equal(t, "Red", opt.Label)

	_, ok = sel.Option("green")
	assert.False(t, ok)
}

func TestEstimateTokens(t *testing.T) {
	assert.Zero(t, estimateTokens("   "))
	assert.Equal(t, 1, estimateTokens("a"))
	assert.Equal(t, 3, estimateTokens("one two three"))
}
