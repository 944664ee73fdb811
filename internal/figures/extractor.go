package figures

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/figweave/internal/doctree"
	"github.com/dgallion1/figweave/internal/normalize"
)

// Extractor turns a figure node into figure records.
type Extractor struct {
	Resolver Resolver
	Log      *slog.Logger
}

// NewExtractor returns an extractor using r. A nil logger discards output.
func NewExtractor(r Resolver, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Extractor{Resolver: r, Log: log}
}

// Extract resolves every graphics directive inside n, in discovery order, and
// returns one record per resolved file. Caption and label are read once and
// shared by all records. n is usually a *doctree.Figure; a bare
// *doctree.Graphics yields caption-less records.
func (e *Extractor) Extract(n doctree.Node, root, docID string) []doctree.FigureRecord {
	var graphics []*doctree.Graphics
	switch node := n.(type) {
	case *doctree.Graphics:
		graphics = append(graphics, node)
	default:
		for _, g := range doctree.FindAll(n, isGraphics) {
			graphics = append(graphics, g.(*doctree.Graphics))
		}
	}
	if len(graphics) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var refs []doctree.GraphicsReference
	for _, g := range graphics {
		raw := GraphicsPath(g)
		if raw == "" {
			e.Log.Debug("graphics directive without path", "directive", g.Directive)
			continue
		}
		if seen[raw] {
			continue
		}
		seen[raw] = true

		ref := e.Resolver.Resolve(root, raw, docID)
		if !ref.Resolved() {
			e.Log.Debug("figure dropped: file not found", "doc_id", docID, "raw_path", raw)
			continue
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return nil
	}

	caption, label := captionAndLabel(n)
	records := make([]doctree.FigureRecord, 0, len(refs))
	for _, ref := range refs {
		records = append(records, doctree.FigureRecord{
			ImageID:    ref.ImageID,
			Caption:    caption,
			Label:      label,
			SourcePath: ref.ResolvedPath,
		})
	}
	return records
}

func isGraphics(n doctree.Node) bool {
	return n.Kind() == doctree.KindGraphics
}

func captionAndLabel(n doctree.Node) (string, string) {
	var caption, label string
	if c, ok := doctree.Find(n, doctree.IsOther("caption")).(*doctree.Other); ok {
		raw := doctree.TextContent(c.Children())
		if len(c.Children()) == 0 {
			if a, ok := doctree.LastRequired(c.Args); ok {
				raw = a.Raw
			}
		}
		caption = normalize.Normalize(raw)
	}
	if l, ok := doctree.Find(n, doctree.IsOther("label")).(*doctree.Other); ok {
		if a, ok := doctree.LastRequired(l.Args); ok {
			label = normalize.Normalize(a.Raw)
		}
	}

	// Some sources repeat the label token at the start of the caption.
	if caption != "" && label != "" {
		_, size := utf8.DecodeRuneInString(caption)
		if caption[:size] == label {
			caption = strings.TrimSpace(caption[size:])
		}
	}
	return caption, label
}

// GraphicsPath returns the file argument of a graphics directive. The file is
// the last required argument except for epsfbox, which takes it first, and
// epsfig/psfig, which use a file= or figure= key.
func GraphicsPath(g *doctree.Graphics) string {
	req := doctree.RequiredArgs(g.Args)
	if len(req) == 0 {
		return ""
	}
	switch g.Directive {
	case "epsfbox":
		return cleanRawPath(req[0].Raw)
	case "epsfig", "psfig":
		last := req[len(req)-1].Raw
		for _, kv := range strings.Split(last, ",") {
			key, val, ok := strings.Cut(kv, "=")
			if !ok {
				continue
			}
			switch strings.TrimSpace(key) {
			case "file", "figure":
				return cleanRawPath(val)
			}
		}
		return cleanRawPath(last)
	default:
		return cleanRawPath(req[len(req)-1].Raw)
	}
}
