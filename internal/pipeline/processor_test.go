package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgallion1/figweave/internal/dataset"
	"github.com/dgallion1/figweave/internal/doctree"
	"github.com/dgallion1/figweave/internal/materialize"
)

func TestProcessBundle_InterleavesFigure(t *testing.T) {
	in := t.TempDir()
	archive := writeTarGz(t, in, "2301.01234v1.tar.gz", map[string]string{
		"main.tex": catPaper,
		"fig1.png": "png-bytes",
	})
	figDir := t.TempDir()
	proc := newTestProcessor(t, materialize.NewFileMaterializer(figDir, "", nil))

	doc, st, err := proc.ProcessBundle(context.Background(), archive, "")
	if err != nil {
		t.Fatalf("ProcessBundle: %v", err)
	}
	if doc.DocID != "2301_01234" {
		t.Errorf("expected doc id %q, got %q", "2301_01234", doc.DocID)
	}
	if doc.Title != "Cats" {
		t.Errorf("expected title %q, got %q", "Cats", doc.Title)
	}
	if len(doc.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %+v", doc.Entries)
	}
	if !strings.Contains(doc.Entries[0].Text, "Cats are great.") || !strings.HasPrefix(doc.Entries[0].Text, "Intro") {
		t.Errorf("unexpected first entry %q", doc.Entries[0].Text)
	}
	fig := doc.Entries[1]
	if fig.ImageID != "2301_01234_fig1.png" || fig.ImageFilename != "2301_01234_fig1.png" {
		t.Errorf("unexpected figure entry %+v", fig)
	}
	if fig.Caption != "A cat." || fig.Label != "fig:cat" {
		t.Errorf("unexpected caption/label %+v", fig)
	}
	if doc.Entries[2].Text != "Done." {
		t.Errorf("expected trailing %q, got %q", "Done.", doc.Entries[2].Text)
	}

	if st.Sources != 1 || st.SourcesFailed != 0 || st.TextItems != 2 || st.FigureItems != 1 || st.FiguresDropped != 0 {
		t.Errorf("unexpected stats %+v", st)
	}
	data, err := os.ReadFile(filepath.Join(figDir, "2301_01234_fig1.png"))
	if err != nil || string(data) != "png-bytes" {
		t.Errorf("expected stored figure, got %q, %v", data, err)
	}
}

func TestProcessBundle_MissingGraphicMergesText(t *testing.T) {
	archive := writeTarGz(t, t.TempDir(), "paper.tar.gz", map[string]string{"main.tex": catPaper})
	proc := newTestProcessor(t, materialize.NewFileMaterializer(t.TempDir(), "", nil))

	doc, st, err := proc.ProcessBundle(context.Background(), archive, "")
	if err != nil {
		t.Fatalf("ProcessBundle: %v", err)
	}
	if len(doc.Entries) != 1 || doc.Entries[0].IsFigure() {
		t.Fatalf("expected a single text entry, got %+v", doc.Entries)
	}
	if !strings.HasSuffix(doc.Entries[0].Text, "Cats are great. Done.") {
		t.Errorf("unexpected text %q", doc.Entries[0].Text)
	}
	if st.FigureItems != 0 || st.FiguresDropped != 0 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestProcessBundle_MaterializeFailureDropsFigure(t *testing.T) {
	archive := writeTarGz(t, t.TempDir(), "paper.tar.gz", map[string]string{
		"main.tex": catPaper,
		"fig1.png": "png",
	})
	mat := &failingMaterializer{
		next: materialize.NewFileMaterializer(t.TempDir(), "", nil),
		fail: map[string]bool{"paper_fig1.png": true},
	}
	doc, st, err := newTestProcessor(t, mat).ProcessBundle(context.Background(), archive, "")
	if err != nil {
		t.Fatalf("ProcessBundle: %v", err)
	}
	if st.FiguresDropped != 1 {
		t.Errorf("expected 1 dropped figure, got %d", st.FiguresDropped)
	}
	if len(doc.Entries) != 1 || doc.Entries[0].IsFigure() {
		t.Fatalf("expected text re-merged around the dropped figure, got %+v", doc.Entries)
	}
	if len(mat.calls) != 1 {
		t.Errorf("expected one materialize call, got %v", mat.calls)
	}
}

func TestProcessBundle_NameOverridesPath(t *testing.T) {
	dir := t.TempDir()
	archive := writeTarGz(t, dir, "upload-123", map[string]string{"main.tex": catPaper})
	doc, _, err := newTestProcessor(t, nil).ProcessBundle(context.Background(), archive, "arXiv-2105.00001.tar.gz")
	if err != nil {
		t.Fatalf("ProcessBundle: %v", err)
	}
	if doc.DocID != "2105_00001" {
		t.Errorf("expected doc id from name, got %q", doc.DocID)
	}
	if doc.Source != "arXiv-2105.00001.tar.gz" {
		t.Errorf("expected source name recorded, got %q", doc.Source)
	}
}

func TestProcessBundle_AllSourcesFail(t *testing.T) {
	archive := writeTarGz(t, t.TempDir(), "broken.tar.gz", map[string]string{"report.docx": "not a zip"})
	_, st, err := newTestProcessor(t, nil).ProcessBundle(context.Background(), archive, "")
	if !errors.Is(err, ErrNoUsableSource) {
		t.Fatalf("expected ErrNoUsableSource, got %v", err)
	}
	if st.Sources != 1 || st.SourcesFailed != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestProcessBundle_MultipleSourcesInOrder(t *testing.T) {
	archive := writeTarGz(t, t.TempDir(), "multi.tar.gz", map[string]string{
		"appendix.tex": "Appendix text.",
		"main.tex":     "\\begin{document}\nMain text.\n\\end{document}\n",
	})
	doc, st, err := newTestProcessor(t, nil).ProcessBundle(context.Background(), archive, "")
	if err != nil {
		t.Fatalf("ProcessBundle: %v", err)
	}
	if st.Sources != 2 {
		t.Errorf("expected 2 sources, got %d", st.Sources)
	}
	if len(doc.Entries) != 1 || doc.Entries[0].Text != "Main text. Appendix text." {
		t.Errorf("expected main before appendix, got %+v", doc.Entries)
	}
}

func TestProcessBundle_CleansUpExtraction(t *testing.T) {
	work := t.TempDir()
	archive := writeTarGz(t, t.TempDir(), "paper.tar.gz", map[string]string{"main.tex": catPaper})
	proc := NewProcessor(ProcessorConfig{WorkDir: work}, nil, nil)
	if _, _, err := proc.ProcessBundle(context.Background(), archive, ""); err != nil {
		t.Fatalf("ProcessBundle: %v", err)
	}
	entries, err := os.ReadDir(work)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected work dir emptied, found %d entries", len(entries))
	}
}

func TestProcessBundle_CancelledContext(t *testing.T) {
	archive := writeTarGz(t, t.TempDir(), "paper.tar.gz", map[string]string{"main.tex": catPaper})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := newTestProcessor(t, nil).ProcessBundle(ctx, archive, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestProcessBundle_UnsupportedArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.rar")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := newTestProcessor(t, nil).ProcessBundle(context.Background(), path, ""); err == nil {
		t.Error("expected error for unsupported archive")
	}
}

func TestProcessBundle_DistinctFiguresGetDistinctFiles(t *testing.T) {
	tex := `\documentclass{article}
\begin{document}
First.
\includegraphics{plot.jpg}
Second.
\includegraphics{plot.jpeg}
\end{document}
`
	archive := writeTarGz(t, t.TempDir(), "2301.01234.tar.gz", map[string]string{
		"main.tex":  tex,
		"plot.jpg":  "JPG",
		"plot.jpeg": "JPEG",
	})
	figDir := t.TempDir()
	proc := newTestProcessor(t, materialize.NewFileMaterializer(figDir, "", nil))

	doc, _, err := proc.ProcessBundle(context.Background(), archive, "")
	if err != nil {
		t.Fatalf("ProcessBundle: %v", err)
	}
	want := map[string]string{
		"2301_01234_plot.jpg":  "JPG",
		"2301_01234_plot.jpeg": "JPEG",
	}
	seen := map[string]bool{}
	for _, e := range doc.Entries {
		if !e.IsFigure() {
			continue
		}
		body, ok := want[e.ImageID]
		if !ok {
			t.Fatalf("unexpected image id %q", e.ImageID)
		}
		if seen[e.ImageFilename] {
			t.Errorf("filename %q shared by two figures", e.ImageFilename)
		}
		seen[e.ImageFilename] = true
		data, err := os.ReadFile(filepath.Join(figDir, e.ImageFilename))
		if err != nil || string(data) != body {
			t.Errorf("%s: expected %q, got %q, %v", e.ImageID, body, data, err)
		}
	}
	if len(seen) != 2 {
		t.Fatalf("expected 2 figures, got %d in %+v", len(seen), doc.Entries)
	}
	if _, err := os.Stat(filepath.Join(figDir, "2301_01234_plot_2.jpg")); err != nil {
		t.Errorf("expected numbered file for the second figure: %v", err)
	}
}

func TestWalkSource_RecoversPanic(t *testing.T) {
	proc := newTestProcessor(t, nil)
	tree := &doctree.DocTree{Children: []doctree.Node{
		&doctree.Text{Content: "fine"},
		(*doctree.Text)(nil),
	}}
	items, err := proc.walkSource(tree, "d", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "walk panic") {
		t.Errorf("expected walk panic error, got %v", err)
	}
	if items != nil {
		t.Errorf("expected no items, got %+v", items)
	}

	ok := &doctree.DocTree{Children: []doctree.Node{&doctree.Text{Content: "fine"}}}
	items, err = proc.walkSource(ok, "d", t.TempDir())
	if err != nil || len(items) != 1 {
		t.Errorf("expected one item, got %+v, %v", items, err)
	}
}

func TestProcessBundle_PunctuatedNameIsStorable(t *testing.T) {
	archive := writeTarGz(t, t.TempDir(), "upload.tar.gz", map[string]string{"main.tex": catPaper})
	doc, _, err := newTestProcessor(t, nil).ProcessBundle(context.Background(), archive, "my paper (1).tar.gz")
	if err != nil {
		t.Fatalf("ProcessBundle: %v", err)
	}
	if doc.DocID != "my_paper__1_" {
		t.Errorf("expected doc id %q, got %q", "my_paper__1_", doc.DocID)
	}
	store, err := dataset.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Write(doc); err != nil {
		t.Errorf("expected document to be storable, got %v", err)
	}
}
