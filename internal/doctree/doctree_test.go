package doctree

import "testing"

func sampleFigure() *Figure {
	return &Figure{
		Env: "figure",
		Body: []Node{
			&Graphics{Directive: "includegraphics", Args: []Arg{{Optional: true, Raw: "width=3in"}, {Raw: "a.png"}}},
			&Other{Name: "caption", Args: []Arg{{Raw: "A cat."}}, Body: []Node{
				&Other{Name: "label", Args: []Arg{{Raw: "fig:cat"}}},
				&Text{Content: "A "},
				&Other{Name: "textbf", Body: []Node{&Text{Content: "cat"}}},
				&Text{Content: "."},
			}},
		},
	}
}

func TestFind_PreOrder(t *testing.T) {
	fig := sampleFigure()
	got := Find(fig, IsOther("label"))
	if got == nil {
		t.Fatal("expected to find label nested in caption")
	}
	if got.(*Other).Args[0].Raw != "fig:cat" {
		t.Errorf("expected label %q, got %q", "fig:cat", got.(*Other).Args[0].Raw)
	}
	if Find(fig, IsOther("missing")) != nil {
		t.Error("expected nil for missing node")
	}
}

func TestFindAll_Graphics(t *testing.T) {
	fig := sampleFigure()
	fig.Body = append(fig.Body, &Other{Name: "subfigure", Body: []Node{
		&Graphics{Directive: "includegraphics", Args: []Arg{{Raw: "b.png"}}},
	}})
	all := FindAll(fig, func(n Node) bool { return n.Kind() == KindGraphics })
	if len(all) != 2 {
		t.Fatalf("expected 2 graphics, got %d", len(all))
	}
	if all[1].(*Graphics).Args[0].Raw != "b.png" {
		t.Errorf("expected nested graphics second, got %q", all[1].(*Graphics).Args[0].Raw)
	}
}

func TestTextContent_SkipsMetadata(t *testing.T) {
	caption := Find(sampleFigure(), IsOther("caption")).(*Other)
	if got := TextContent(caption.Children()); got != "A cat." {
		t.Errorf("expected %q, got %q", "A cat.", got)
	}
}

func TestLastRequired(t *testing.T) {
	args := []Arg{{Raw: "first"}, {Optional: true, Raw: "opt"}, {Raw: "last"}}
	got, ok := LastRequired(args)
	if !ok || got.Raw != "last" {
		t.Errorf("expected %q, got %q (ok=%v)", "last", got.Raw, ok)
	}
	if _, ok := LastRequired([]Arg{{Optional: true, Raw: "x"}}); ok {
		t.Error("expected no required argument")
	}
}

func TestKindString(t *testing.T) {
	tests := map[Node]string{
		&Section{}:  "section",
		&Figure{}:   "figure",
		&Graphics{}: "graphics",
		&Text{}:     "text",
		&Other{}:    "other",
	}
	for n, want := range tests {
		if got := n.Kind().String(); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
}
