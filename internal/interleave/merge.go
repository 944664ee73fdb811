package interleave

import (
	"strings"

	"github.com/dgallion1/figweave/internal/doctree"
)

// Merge cleans a walked sequence. Figures repeating an earlier image id are
// dropped, then empty text, then text identical to the text right before it;
// finally adjacent text items are joined with a single space. The input slice
// is not modified and Merge(Merge(x)) equals Merge(x).
func Merge(items []doctree.Item) []doctree.Item {
	seen := make(map[string]bool)
	out := make([]doctree.Item, 0, len(items))
	for _, it := range items {
		if it.IsFigure() {
			if seen[it.Figure.ImageID] {
				continue
			}
			seen[it.Figure.ImageID] = true
			out = append(out, it)
			continue
		}
		if strings.TrimSpace(it.Text) == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].IsText() && out[n-1].Text == it.Text {
			continue
		}
		out = append(out, it)
	}

	merged := make([]doctree.Item, 0, len(out))
	for _, it := range out {
		if n := len(merged); n > 0 && it.IsText() && merged[n-1].IsText() {
			merged[n-1] = doctree.TextItem(merged[n-1].Text + " " + it.Text)
			continue
		}
		merged = append(merged, it)
	}
	return merged
}
