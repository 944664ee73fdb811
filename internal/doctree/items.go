package doctree

// GraphicsReference is a graphics path as written in the source plus, when the
// file exists under the document root, its resolved absolute path.
type GraphicsReference struct {
	RawPath      string
	ResolvedPath string // Empty when the file does not exist
	ImageID      string
}

// Resolved reports whether the reference points at an existing file.
func (g GraphicsReference) Resolved() bool {
	return g.ResolvedPath != ""
}

// FigureRecord is one resolved graphic with the caption and label of the
// figure it came from.
type FigureRecord struct {
	ImageID    string
	Caption    string // Normalized, empty when the figure has none
	Label      string // Normalized, empty when the figure has none
	SourcePath string
}

// ItemKind tags a DocumentItem.
type ItemKind int

const (
	ItemText ItemKind = iota
	ItemFigure
)

// Item is one element of the interleaved sequence: either text or a figure.
type Item struct {
	Kind   ItemKind
	Text   string
	Figure FigureRecord
}

// TextItem builds a text item.
func TextItem(text string) Item {
	return Item{Kind: ItemText, Text: text}
}

// FigureItem builds a figure item.
func FigureItem(rec FigureRecord) Item {
	return Item{Kind: ItemFigure, Figure: rec}
}

func (it Item) IsText() bool   { return it.Kind == ItemText }
func (it Item) IsFigure() bool { return it.Kind == ItemFigure }
