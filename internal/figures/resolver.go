// Package figures resolves graphics directives to files under a document root
// and turns figure nodes into figure records.
package figures

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dgallion1/figweave/internal/doctree"
)

// Resolver maps raw graphics paths onto files under a document root.
type Resolver struct {
	// GuessExtensions is tried, in order, when a raw path has no extension.
	// Nil means the raw path is only compared literally.
	GuessExtensions []string
}

// SafeDocumentID maps every rune outside [A-Za-z0-9_-] to an underscore so
// the id can name a stored document and prefix a figure filename.
func SafeDocumentID(docID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, docID)
}

// ImageID is the paper-scoped output identifier for a raw graphics path.
func ImageID(docID, rawPath string) string {
	base := path.Base(filepath.ToSlash(cleanRawPath(rawPath)))
	return SafeDocumentID(docID) + "_" + base
}

// Resolve looks the raw path up under root. The path is tried as written
// (relative to the root), then flattened to its basename. It never fails: a
// missing file leaves ResolvedPath empty.
func (r Resolver) Resolve(root, rawPath, docID string) doctree.GraphicsReference {
	raw := cleanRawPath(rawPath)
	ref := doctree.GraphicsReference{RawPath: raw}
	if raw == "" {
		return ref
	}
	ref.ImageID = ImageID(docID, raw)

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return ref
	}

	rel := filepath.FromSlash(raw)
	candidates := []string{rel}
	if base := filepath.Base(rel); base != rel {
		candidates = append(candidates, base)
	}
	if filepath.Ext(raw) == "" {
		literal := len(candidates)
		for i := 0; i < literal; i++ {
			for _, ext := range r.GuessExtensions {
				candidates = append(candidates, candidates[i]+ext)
			}
		}
	}

	for _, c := range candidates {
		full := filepath.Join(absRoot, c)
		if !within(absRoot, full) {
			continue
		}
		if regularFile(full) {
			ref.ResolvedPath = full
			return ref
		}
	}
	return ref
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func regularFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// cleanRawPath strips the whitespace, braces and quotes that survive argument
// parsing, e.g. "{fig.png}" or "\"my fig\".png".
func cleanRawPath(raw string) string {
	s := strings.TrimSpace(raw)
	for len(s) >= 2 && s[0] == '{' && s[len(s)-1] == '}' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s = strings.ReplaceAll(s, `"`, "")
	return strings.TrimSpace(s)
}
