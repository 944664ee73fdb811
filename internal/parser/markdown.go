package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/figweave/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	b := &mdBuilder{src: src}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		b.block(n)
	}
	b.flush()

	return &doctree.DocTree{
		Title:    baseTitle(filename),
		Children: nestSections(b.out),
	}, nil
}

type mdBuilder struct {
	src  []byte
	text strings.Builder
	out  []doctree.Node
}

func (b *mdBuilder) flush() {
	if t := strings.TrimSpace(b.text.String()); t != "" {
		b.out = append(b.out, &doctree.Text{Content: t})
	}
	b.text.Reset()
}

func (b *mdBuilder) block(n ast.Node) {
	switch node := n.(type) {
	case *ast.Heading:
		b.flush()
		b.out = append(b.out, &doctree.Section{
			Name:  fmt.Sprintf("h%d", node.Level),
			Level: node.Level,
			Title: plainText(node, b.src),
		})
		return
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			b.text.Write(line.Value(b.src))
		}
	case *ast.HTMLBlock, *ast.ThematicBreak:
		return
	default:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if c.Type() == ast.TypeInline {
				b.inline(c)
			} else {
				b.block(c)
			}
		}
	}
	b.flush()
}

func (b *mdBuilder) inline(n ast.Node) {
	switch node := n.(type) {
	case *ast.Text:
		b.text.Write(node.Value(b.src))
		if node.HardLineBreak() || node.SoftLineBreak() {
			b.text.WriteByte('\n')
		}
	case *ast.String:
		b.text.Write(node.Value)
	case *ast.AutoLink:
		b.text.Write(node.Label(b.src))
	case *ast.RawHTML:
	case *ast.Image:
		b.flush()
		caption := plainText(node, b.src)
		if caption == "" {
			caption = string(node.Title)
		}
		b.out = append(b.out, figureNode("image", "image", string(node.Destination), caption, ""))
	default:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			b.inline(c)
		}
	}
}

// plainText concatenates the text segments under n.
func plainText(n ast.Node, src []byte) string {
	var buf strings.Builder
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch t := c.(type) {
			case *ast.Text:
				buf.Write(t.Value(src))
				if t.SoftLineBreak() {
					buf.WriteByte(' ')
				}
			case *ast.String:
				buf.Write(t.Value)
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return strings.TrimSpace(buf.String())
}
