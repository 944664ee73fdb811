package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrInvalidID = errors.New("invalid document id")
)

var validID = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// Summary describes a stored document without its entries.
type Summary struct {
	DocID       string    `json:"doc_id"`
	Title       string    `json:"title,omitempty"`
	TextItems   int       `json:"text_items"`
	FigureItems int       `json:"figure_items"`
	CreatedAt   time.Time `json:"created_at"`
}

// FileStore keeps one JSON file per document in Dir and figure files in
// Dir/figures.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "figures"), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

// FiguresDir is where materialized figure files live.
func (s *FileStore) FiguresDir() string {
	return filepath.Join(s.Dir, "figures")
}

func (s *FileStore) path(docID string) (string, error) {
	if !validID.MatchString(docID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, docID)
	}
	return filepath.Join(s.Dir, docID+".json"), nil
}

// Write validates doc and stores it, replacing any previous version.
func (s *FileStore) Write(doc *Document) error {
	p, err := s.path(doc.DocID)
	if err != nil {
		return err
	}
	if err := Validate(doc); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, ".doc-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close document: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store document: %w", err)
	}
	return nil
}

func (s *FileStore) Read(docID string) (*Document, error) {
	p, err := s.path(docID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", docID, err)
	}
	return &doc, nil
}

func (s *FileStore) Exists(docID string) bool {
	p, err := s.path(docID)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// List returns summaries of all stored documents ordered by id.
func (s *FileStore) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	var out []Summary
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		doc, err := s.Read(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		text, figs := doc.Counts()
		out = append(out, Summary{
			DocID:       doc.DocID,
			Title:       doc.Title,
			TextItems:   text,
			FigureItems: figs,
			CreatedAt:   doc.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocID < out[j].DocID })
	return out, nil
}

// Delete removes a document and the figure files it references.
func (s *FileStore) Delete(docID string) error {
	doc, err := s.Read(docID)
	if err != nil {
		return err
	}
	for _, e := range doc.Entries {
		if !e.IsFigure() {
			continue
		}
		if err := os.Remove(filepath.Join(s.FiguresDir(), filepath.Base(e.ImageFilename))); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete figure %s: %w", e.ImageFilename, err)
		}
	}
	p, _ := s.path(docID)
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// FigurePath returns the on-disk path of a stored figure file.
func (s *FileStore) FigurePath(name string) (string, error) {
	base := filepath.Base(name)
	if base != name || strings.HasPrefix(base, ".") {
		return "", ErrNotFound
	}
	p := filepath.Join(s.FiguresDir(), base)
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return p, nil
}
