// Package dataset assembles the final interleaved sequence of a document and
// persists it.
package dataset

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dgallion1/figweave/internal/doctree"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Entry is one dataset item: either a text entry or a figure entry.
type Entry struct {
	Text          string `json:"text,omitempty"`
	ImageID       string `json:"image_id,omitempty"`
	ImageFilename string `json:"image_filename,omitempty"`
	Caption       string `json:"caption,omitempty"`
	Label         string `json:"label,omitempty"`
}

func (e Entry) IsFigure() bool { return e.ImageID != "" }

// Document is the persisted form of one processed bundle.
type Document struct {
	DocID     string    `json:"doc_id"`
	Source    string    `json:"source,omitempty"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Entries   []Entry   `json:"entries"`
}

// Counts returns the number of text and figure entries.
func (d *Document) Counts() (text, figures int) {
	for _, e := range d.Entries {
		if e.IsFigure() {
			figures++
		} else {
			text++
		}
	}
	return text, figures
}

// FromItems converts a merged item sequence. filenames maps image ids to the
// stored file names; a figure missing from it keeps its image id as name.
func FromItems(docID string, items []doctree.Item, filenames map[string]string) *Document {
	doc := &Document{DocID: docID, CreatedAt: time.Now().UTC(), Entries: make([]Entry, 0, len(items))}
	for _, it := range items {
		if it.IsText() {
			doc.Entries = append(doc.Entries, Entry{Text: it.Text})
			continue
		}
		name := filenames[it.Figure.ImageID]
		if name == "" {
			name = it.Figure.ImageID
		}
		doc.Entries = append(doc.Entries, Entry{
			ImageID:       it.Figure.ImageID,
			ImageFilename: name,
			Caption:       it.Figure.Caption,
			Label:         it.Figure.Label,
		})
	}
	return doc
}

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("document.json", bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("document.json")
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile schema: %w", schemaErr)
		}
	})
	return schema, schemaErr
}

// Validate checks doc against the embedded document schema.
func Validate(doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	return ValidateJSON(data)
}

// ValidateJSON checks raw document JSON against the embedded schema.
func ValidateJSON(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal document: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("document does not match schema: %w", err)
	}
	return nil
}
