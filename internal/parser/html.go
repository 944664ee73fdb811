package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/figweave/internal/doctree"
	"golang.org/x/net/html"
)

// HTMLParser handles HTML files.
type HTMLParser struct{}

func (p *HTMLParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	tree := &doctree.DocTree{Title: baseTitle(filename)}
	if title := findTitle(doc); title != "" {
		tree.Title = title
	}

	b := &htmlBuilder{}
	if body := findBody(doc); body != nil {
		b.walk(body)
	} else {
		b.walk(doc)
	}
	b.flush()

	tree.Children = nestSections(b.out)
	return tree, nil
}

type htmlBuilder struct {
	text strings.Builder
	out  []doctree.Node
}

func (b *htmlBuilder) flush() {
	if t := strings.TrimSpace(b.text.String()); t != "" {
		b.out = append(b.out, &doctree.Text{Content: t})
	}
	b.text.Reset()
}

func (b *htmlBuilder) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.text.WriteString(n.Data)
		return
	case html.ElementNode:
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			b.walk(c)
		}
		return
	}

	if level := headingLevel(n.Data); level > 0 {
		b.flush()
		b.out = append(b.out, &doctree.Section{Name: n.Data, Level: level, Title: textContent(n)})
		return
	}

	switch n.Data {
	case "script", "style", "nav", "footer", "header", "noscript", "template":
		return
	case "figure":
		b.flush()
		b.out = append(b.out, htmlFigure(n))
		return
	case "img":
		if src := attr(n, "src"); src != "" {
			b.flush()
			b.out = append(b.out, figureNode("img", "img", src, attr(n, "alt"), attr(n, "id")))
		}
		return
	case "br":
		b.text.WriteByte('\n')
		return
	}

	block := isBlock(n.Data)
	if block {
		b.flush()
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.walk(c)
	}
	if block {
		b.flush()
	}
}

// htmlFigure maps <figure> to a figure node: every <img> becomes a graphics
// directive, <figcaption> the caption and the id attribute the label.
func htmlFigure(n *html.Node) *doctree.Figure {
	fig := &doctree.Figure{Env: "figure"}
	var caption string
	var visit func(*html.Node)
	visit = func(c *html.Node) {
		if c.Type == html.ElementNode {
			switch c.Data {
			case "img":
				if src := attr(c, "src"); src != "" {
					fig.Body = append(fig.Body, &doctree.Graphics{Directive: "img", Args: []doctree.Arg{{Raw: src}}})
				}
			case "figcaption":
				if caption == "" {
					caption = textContent(c)
				}
				return
			}
		}
		for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
			visit(gc)
		}
	}
	visit(n)

	if caption != "" {
		fig.Body = append(fig.Body, captionNode(caption))
	}
	if id := attr(n, "id"); id != "" {
		fig.Body = append(fig.Body, labelNode(id))
	}
	return fig
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "li", "ul", "ol", "td", "th", "tr", "table", "blockquote",
		"pre", "section", "article", "main", "aside", "dl", "dt", "dd":
		return true
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func headingLevel(tag string) int {
	switch tag {
	case "h1":
		return 1
	case "h2":
		return 2
	case "h3":
		return 3
	case "h4":
		return 4
	case "h5":
		return 5
	case "h6":
		return 6
	}
	return 0
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.Join(strings.Fields(buf.String()), " ")
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return textContent(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
