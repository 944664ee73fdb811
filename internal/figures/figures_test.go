package figures

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dgallion1/figweave/internal/doctree"
)

func writeFile(t *testing.T, root, rel string) string {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte("img"), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	return full
}

func includegraphics(path string) *doctree.Graphics {
	return &doctree.Graphics{Directive: "includegraphics", Args: []doctree.Arg{{Raw: path}}}
}

func caption(text string) *doctree.Other {
	return &doctree.Other{Name: "caption", Args: []doctree.Arg{{Raw: text}}, Body: []doctree.Node{&doctree.Text{Content: text}}}
}

func label(text string) *doctree.Other {
	return &doctree.Other{Name: "label", Args: []doctree.Arg{{Raw: text}}}
}

func TestSafeDocumentID(t *testing.T) {
	tests := []struct{ in, want string }{
		{"2301.01234", "2301_01234"},
		{"hep-th/9901001", "hep-th_9901001"},
		{"doc1", "doc1"},
		{"my paper (1)", "my_paper__1_"},
		{"a+b", "a_b"},
		{"résumé", "r_sum_"},
	}
	for _, tt := range tests {
		if got := SafeDocumentID(tt.in); got != tt.want {
			t.Errorf("SafeDocumentID(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestResolve_Present(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "fig1.png")

	ref := Resolver{}.Resolve(root, "fig1.png", "doc1")
	if !ref.Resolved() {
		t.Fatal("expected fig1.png to resolve")
	}
	if _, err := os.Stat(ref.ResolvedPath); err != nil {
		t.Errorf("expected resolved path to exist: %v", err)
	}
	if !filepath.IsAbs(ref.ResolvedPath) {
		t.Errorf("expected absolute path, got %q", ref.ResolvedPath)
	}
	if ref.ImageID != "doc1_fig1.png" {
		t.Errorf("expected image id %q, got %q", "doc1_fig1.png", ref.ImageID)
	}
}

func TestResolve_Missing(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{"fig1.png", "figures/fig1.png", "", "   "} {
		if ref := (Resolver{}).Resolve(root, p, "doc1"); ref.Resolved() {
			t.Errorf("expected %q to stay unresolved, got %q", p, ref.ResolvedPath)
		}
	}
}

func TestResolve_RelativeAndFlattened(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "figures/plot.pdf")
	writeFile(t, root, "flat.png")

	ref := Resolver{}.Resolve(root, "figures/plot.pdf", "2301.01234")
	if !ref.Resolved() {
		t.Fatal("expected relative path to resolve")
	}
	if ref.ImageID != "2301_01234_plot.pdf" {
		t.Errorf("expected basename image id, got %q", ref.ImageID)
	}

	ref = Resolver{}.Resolve(root, "img/flat.png", "d")
	if !ref.Resolved() {
		t.Fatal("expected flattened lookup to resolve")
	}
	if filepath.Base(ref.ResolvedPath) != "flat.png" {
		t.Errorf("expected flat.png, got %q", ref.ResolvedPath)
	}
}

func TestResolve_NoExtensionGuessingByDefault(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "fig1.pdf")

	if ref := (Resolver{}).Resolve(root, "fig1", "d"); ref.Resolved() {
		t.Error("expected literal lookup to miss fig1 without extension")
	}
	ref := Resolver{GuessExtensions: []string{".png", ".pdf"}}.Resolve(root, "fig1", "d")
	if !ref.Resolved() || filepath.Base(ref.ResolvedPath) != "fig1.pdf" {
		t.Errorf("expected guessed fig1.pdf, got %q", ref.ResolvedPath)
	}
}

func TestResolve_RejectsEscape(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "root")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, parent, "secret.png")

	ref := Resolver{}.Resolve(root, "../secret.png", "d")
	if ref.Resolved() {
		t.Errorf("expected path outside root to stay unresolved, got %q", ref.ResolvedPath)
	}
}

func TestResolve_Directory(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "dir.png"), 0o755); err != nil {
		t.Fatal(err)
	}
	if ref := (Resolver{}).Resolve(root, "dir.png", "d"); ref.Resolved() {
		t.Error("expected a directory not to resolve")
	}
}

func TestGraphicsPath(t *testing.T) {
	tests := []struct {
		name string
		g    *doctree.Graphics
		want string
	}{
		{"last required", &doctree.Graphics{Directive: "includegraphics", Args: []doctree.Arg{
			{Optional: true, Raw: "width=0.5\\linewidth"}, {Raw: "display"}, {Raw: " {fig.png} "},
		}}, "fig.png"},
		{"epsfbox first", &doctree.Graphics{Directive: "epsfbox", Args: []doctree.Arg{{Raw: "a.eps"}, {Raw: "ignored"}}}, "a.eps"},
		{"epsfig file key", &doctree.Graphics{Directive: "epsfig", Args: []doctree.Arg{{Raw: "file=plot.eps,width=3in"}}}, "plot.eps"},
		{"psfig figure key", &doctree.Graphics{Directive: "psfig", Args: []doctree.Arg{{Raw: "figure=p.ps"}}}, "p.ps"},
		{"no args", &doctree.Graphics{Directive: "includegraphics"}, ""},
		{"only optional", &doctree.Graphics{Directive: "includegraphics", Args: []doctree.Arg{{Optional: true, Raw: "x"}}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GraphicsPath(tt.g); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestExtract_SimpleFigure(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "fig1.png")

	fig := &doctree.Figure{Env: "figure", Body: []doctree.Node{
		includegraphics("fig1.png"), caption("A cat."), label("fig:cat"),
	}}
	recs := NewExtractor(Resolver{}, nil).Extract(fig, root, "doc1")
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	r := recs[0]
	if r.ImageID != "doc1_fig1.png" || r.Caption != "A cat." || r.Label != "fig:cat" {
		t.Errorf("unexpected record %+v", r)
	}
	if want := filepath.Join(root, "fig1.png"); r.SourcePath != want {
		t.Errorf("expected source path %q, got %q", want, r.SourcePath)
	}
}

func TestExtract_DuplicateRawPaths(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.png")
	writeFile(t, root, "b.png")

	fig := &doctree.Figure{Env: "figure", Body: []doctree.Node{
		includegraphics("a.png"), includegraphics("a.png"), includegraphics("b.png"), caption("Pair."),
	}}
	recs := NewExtractor(Resolver{}, nil).Extract(fig, root, "doc1")
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].ImageID != "doc1_a.png" || recs[1].ImageID != "doc1_b.png" {
		t.Errorf("expected a then b, got %q, %q", recs[0].ImageID, recs[1].ImageID)
	}
	for _, r := range recs {
		if r.Caption != "Pair." {
			t.Errorf("expected shared caption, got %q", r.Caption)
		}
	}
}

func TestExtract_UnresolvedDropped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.png")

	fig := &doctree.Figure{Env: "figure", Body: []doctree.Node{
		includegraphics("missing.png"), includegraphics("b.png"),
	}}
	recs := NewExtractor(Resolver{}, nil).Extract(fig, root, "d")
	if len(recs) != 1 || recs[0].ImageID != "d_b.png" {
		t.Fatalf("expected only b.png, got %+v", recs)
	}
	if recs[0].Caption != "" || recs[0].Label != "" {
		t.Errorf("expected empty caption and label, got %+v", recs[0])
	}
}

func TestExtract_EmptyFigure(t *testing.T) {
	fig := &doctree.Figure{Env: "figure", Body: []doctree.Node{caption("Nothing here.")}}
	if recs := NewExtractor(Resolver{}, nil).Extract(fig, t.TempDir(), "d"); len(recs) != 0 {
		t.Errorf("expected no records, got %d", len(recs))
	}
}

func TestExtract_NestedGraphicsAndLabelInCaption(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "left.png")
	writeFile(t, root, "right.png")

	capt := &doctree.Other{Name: "caption", Body: []doctree.Node{
		label("fig:pair"),
		&doctree.Text{Content: "Left and "},
		&doctree.Other{Name: "emph", Body: []doctree.Node{&doctree.Text{Content: "right"}}},
		&doctree.Text{Content: "."},
	}}
	fig := &doctree.Figure{Env: "figure", Body: []doctree.Node{
		&doctree.Other{Name: "subfigure", Body: []doctree.Node{includegraphics("left.png")}},
		&doctree.Other{Name: "subfigure", Body: []doctree.Node{includegraphics("right.png")}},
		capt,
	}}
	recs := NewExtractor(Resolver{}, nil).Extract(fig, root, "d")
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Caption != "Left and right." {
		t.Errorf("expected caption %q, got %q", "Left and right.", recs[0].Caption)
	}
	if recs[1].Label != "fig:pair" {
		t.Errorf("expected label %q, got %q", "fig:pair", recs[1].Label)
	}
}

func TestExtract_LeadingCharacterEqualsLabel(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.png")

	fig := &doctree.Figure{Env: "figure", Body: []doctree.Node{
		includegraphics("a.png"), caption("X Marks the spot."), label("X"),
	}}
	recs := NewExtractor(Resolver{}, nil).Extract(fig, root, "d")
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].Caption != "Marks the spot." {
		t.Errorf("expected stripped caption, got %q", recs[0].Caption)
	}
}

func TestExtract_BareGraphics(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "logo.png")

	recs := NewExtractor(Resolver{}, nil).Extract(includegraphics("logo.png"), root, "d")
	if len(recs) != 1 || recs[0].Caption != "" {
		t.Fatalf("expected one caption-less record, got %+v", recs)
	}
}
