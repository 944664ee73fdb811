package parser

import (
	"strings"
	"testing"

	"github.com/dgallion1/figweave/internal/doctree"
)

const samplePage = `<html><head><title>Page</title></head><body>
<nav>menu</nav>
<h1>Top</h1>
<p>Intro <b>bold</b> text.</p>
<figure id="fig-a"><img src="a.png"><figcaption>Alpha.</figcaption></figure>
<h2>Sub</h2>
<p>See <img src="b.png" alt="Beta"> here.</p>
<script>var x;</script>
</body></html>`

func TestHTMLParser_Structure(t *testing.T) {
	tree, err := (&HTMLParser{}).Parse(strings.NewReader(samplePage), "page.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.Title != "Page" {
		t.Errorf("expected title %q, got %q", "Page", tree.Title)
	}
	if len(tree.Children) != 1 {
		t.Fatalf("expected one h1, got %d nodes", len(tree.Children))
	}

	top := section(t, tree.Children[0])
	if top.Title != "Top" || top.Name != "h1" {
		t.Errorf("unexpected h1 %+v", top)
	}
	if len(top.Body) != 3 {
		t.Fatalf("expected text, figure, h2 under h1; got %d", len(top.Body))
	}
	if got := textOf(t, top.Body[0]); got != "Intro bold text." {
		t.Errorf("expected inline markup joined, got %q", got)
	}

	fig, ok := top.Body[1].(*doctree.Figure)
	if !ok {
		t.Fatalf("expected figure, got %s", top.Body[1].Kind())
	}
	if fig.Body[0].(*doctree.Graphics).Args[0].Raw != "a.png" {
		t.Errorf("expected a.png graphics")
	}
	if c := doctree.Find(fig, doctree.IsOther("caption")); c == nil || doctree.TextContent(c.Children()) != "Alpha." {
		t.Error("expected figcaption caption")
	}
	if l, ok := doctree.Find(fig, doctree.IsOther("label")).(*doctree.Other); !ok || l.Args[0].Raw != "fig-a" {
		t.Error("expected id label")
	}

	sub := section(t, top.Body[2])
	if len(sub.Body) != 3 {
		t.Fatalf("expected text, figure, text under h2; got %d", len(sub.Body))
	}
	img, ok := sub.Body[1].(*doctree.Figure)
	if !ok {
		t.Fatalf("expected standalone img figure, got %s", sub.Body[1].Kind())
	}
	if c := doctree.Find(img, doctree.IsOther("caption")); c == nil || doctree.TextContent(c.Children()) != "Beta" {
		t.Error("expected alt text caption")
	}

	all := doctree.TextContent(tree.Children)
	if strings.Contains(all, "menu") || strings.Contains(all, "var x") {
		t.Errorf("expected nav and script skipped, got %q", all)
	}
}

func TestHTMLParser_NoBody(t *testing.T) {
	tree, err := (&HTMLParser{}).Parse(strings.NewReader("plain words"), "frag.htm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.Title != "frag" {
		t.Errorf("expected filename title, got %q", tree.Title)
	}
	if got := doctree.TextContent(tree.Children); got != "plain words" {
		t.Errorf("expected text, got %q", got)
	}
}
