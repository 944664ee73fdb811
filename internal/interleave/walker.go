// Package interleave walks a parsed document in order and produces the
// interleaved text/figure sequence.
package interleave

import (
	"fmt"
	"log/slog"

	"github.com/dgallion1/figweave/internal/doctree"
	"github.com/dgallion1/figweave/internal/figures"
	"github.com/dgallion1/figweave/internal/normalize"
)

// Walker visits doctree nodes in pre-order and emits document items.
type Walker struct {
	extractor *figures.Extractor
	log       *slog.Logger
}

func NewWalker(ex *figures.Extractor, log *slog.Logger) *Walker {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if ex == nil {
		ex = figures.NewExtractor(figures.Resolver{}, log)
	}
	return &Walker{extractor: ex, log: log}
}

// WalkTree walks every top-level node of tree. The tree is not modified.
func (w *Walker) WalkTree(tree *doctree.DocTree, docID, docRoot string) []doctree.Item {
	if tree == nil {
		return nil
	}
	var items []doctree.Item
	for _, n := range tree.Children {
		items = w.visit(n, docID, docRoot, items)
	}
	return items
}

// Walk returns the pre-merge item sequence for the subtree rooted at root.
func (w *Walker) Walk(root doctree.Node, docID, docRoot string) []doctree.Item {
	if root == nil {
		return nil
	}
	return w.visit(root, docID, docRoot, nil)
}

func (w *Walker) visit(n doctree.Node, docID, docRoot string, items []doctree.Item) []doctree.Item {
	if n == nil {
		return items
	}
	switch node := n.(type) {
	case *doctree.Section:
		if title := normalize.Normalize(node.Title); title != "" {
			items = append(items, doctree.TextItem(title))
		}
	case *doctree.Figure, *doctree.Graphics:
		// The extractor owns figure subtrees; do not descend.
		for _, rec := range w.extract(n, docID, docRoot) {
			items = append(items, doctree.FigureItem(rec))
		}
		return items
	case *doctree.Text:
		if text := normalize.Normalize(node.Content); text != "" {
			items = append(items, doctree.TextItem(text))
		}
	case *doctree.Other:
	}

	for _, c := range n.Children() {
		items = w.visit(c, docID, docRoot, items)
	}
	return items
}

// extract isolates a malformed figure so the rest of the document survives.
func (w *Walker) extract(n doctree.Node, docID, docRoot string) (recs []doctree.FigureRecord) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Warn("figure skipped", "doc_id", docID, "kind", n.Kind().String(), "error", fmt.Sprint(r))
			recs = nil
		}
	}()
	return w.extractor.Extract(n, docRoot, docID)
}
