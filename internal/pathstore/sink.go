package pathstore

import (
	"context"
	"fmt"

	"github.com/dgallion1/figweave/internal/dataset"
)

// Sink mirrors stored datasets into pathstore under datasets/<doc_id>.
type Sink struct {
	client *Client
}

func NewSink(c *Client) *Sink {
	return &Sink{client: c}
}

// DocumentKey is the pathstore prefix of one dataset.
func DocumentKey(docID string) string {
	return "datasets/" + docID
}

// EntryKey is the key of entry i of a dataset.
func EntryKey(docID string, i int) string {
	return fmt.Sprintf("%s/entries/%05d", DocumentKey(docID), i)
}

// Publish replaces any previous copy of doc: a meta node, one node per entry
// and a link from the meta node to every figure entry.
func (s *Sink) Publish(ctx context.Context, doc *dataset.Document) error {
	base := DocumentKey(doc.DocID)
	if err := s.client.DeleteNode(ctx, base, true); err != nil {
		return err
	}

	text, figs := doc.Counts()
	meta := NodeRequest{
		Value: map[string]any{
			"doc_id":       doc.DocID,
			"title":        doc.Title,
			"source":       doc.Source,
			"created_at":   doc.CreatedAt,
			"entries":      len(doc.Entries),
			"text_items":   text,
			"figure_items": figs,
		},
		Source: "figweave",
	}
	if err := s.client.PutNode(ctx, base+"/meta", meta); err != nil {
		return err
	}

	for i, e := range doc.Entries {
		key := EntryKey(doc.DocID, i)
		if err := s.client.PutNode(ctx, key, NodeRequest{Value: e, Source: "figweave"}); err != nil {
			return err
		}
		if !e.IsFigure() {
			continue
		}
		if err := s.client.PutLink(ctx, LinkRequest{From: base + "/meta", To: key, Weight: 1, Summary: e.Caption}); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes a published dataset.
func (s *Sink) Remove(ctx context.Context, docID string) error {
	return s.client.DeleteNode(ctx, DocumentKey(docID), true)
}
