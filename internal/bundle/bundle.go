// Package bundle unpacks a source bundle (an archive of markup sources and
// image assets) and loads its source files in processing order.
package bundle

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dgallion1/figweave/internal/figures"
	"github.com/dgallion1/figweave/internal/parser"
)

var (
	ErrNoSources          = errors.New("no source files found")
	ErrUnsupportedArchive = errors.New("unsupported archive format")
)

// Bundle is an extracted document on disk.
type Bundle struct {
	DocID   string
	Root    string // Extraction directory; graphics resolve against it
	Sources []Source
}

// Cleanup removes the extraction directory.
func (b *Bundle) Cleanup() error {
	return os.RemoveAll(b.Root)
}

// Options controls extraction and source loading.
type Options struct {
	MaxIncludeDepth int
	Log             *slog.Logger
}

// Open extracts the archive at path into a fresh directory under workDir and
// loads its sources. name is the original file name and selects the archive
// format; it defaults to the base of path.
func Open(path, name, workDir string, opts Options) (*Bundle, error) {
	if name == "" {
		name = filepath.Base(path)
	}
	if opts.Log == nil {
		opts.Log = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	root, err := os.MkdirTemp(workDir, "bundle-*")
	if err != nil {
		return nil, fmt.Errorf("create extraction dir: %w", err)
	}

	b := &Bundle{DocID: DocumentID(name), Root: root}
	if err := Extract(path, name, root); err != nil {
		b.Cleanup()
		return nil, err
	}
	sources, err := LoadSources(root, opts.MaxIncludeDepth, opts.Log)
	if err != nil {
		b.Cleanup()
		return nil, err
	}
	b.Sources = sources
	return b, nil
}

var arxivID = regexp.MustCompile(`(?:arXiv-)?(\d+\.\d+)`)

var archiveSuffixes = []string{".tar.gz", ".tgz", ".tar", ".gz", ".zip"}

// DocumentID derives a document id from an archive or file name. An arXiv
// style identifier wins; otherwise the name without archive and source
// extensions is used. Path separators, dots and spaces become underscores.
func DocumentID(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if m := arxivID.FindStringSubmatch(base); m != nil {
		return figures.SafeDocumentID(m[1])
	}
	stem := archiveStem(base)
	if parser.IsSupportedExtension(stem) {
		stem = strings.TrimSuffix(stem, filepath.Ext(stem))
	}
	if stem == "" {
		return "document"
	}
	return figures.SafeDocumentID(stem)
}

func archiveStem(base string) string {
	lower := strings.ToLower(base)
	for _, s := range archiveSuffixes {
		if strings.HasSuffix(lower, s) {
			return base[:len(base)-len(s)]
		}
	}
	return base
}
