package bundle

import (
	"bytes"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/figweave/internal/parser"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxIncludeDepth bounds nested \input expansion.
const DefaultMaxIncludeDepth = 8

// Source is one markup file of a bundle, with includes already expanded.
type Source struct {
	Path string // Absolute path on disk
	Rel  string // Path relative to the bundle root, slash separated
	Text string // Decoded content; empty for binary formats
}

// Binary reports whether the source must be parsed from its file.
func (s Source) Binary() bool {
	return strings.EqualFold(filepath.Ext(s.Path), ".docx")
}

// LoadSources finds the markup files under root and returns them in
// processing order: files holding \begin{document} first, then the rest by
// path. When any .tex file exists only .tex files are sources. Files pulled
// in through \input or \include are expanded in place and not returned again.
func LoadSources(root string, maxIncludeDepth int, log *slog.Logger) ([]Source, error) {
	if maxIncludeDepth <= 0 {
		maxIncludeDepth = DefaultMaxIncludeDepth
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	var tex, other []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		switch {
		case strings.EqualFold(filepath.Ext(path), ".tex"):
			tex = append(tex, path)
		case parser.IsSupportedExtension(path):
			other = append(other, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan bundle: %w", err)
	}

	candidates := tex
	if len(candidates) == 0 {
		candidates = other
	}
	if len(candidates) == 0 {
		return nil, ErrNoSources
	}

	loaded := make(map[string]Source, len(candidates))
	for _, path := range candidates {
		src := Source{Path: path, Rel: relSlash(root, path)}
		if !src.Binary() {
			text, err := readText(path)
			if err != nil {
				return nil, err
			}
			src.Text = text
		}
		loaded[path] = src
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		mi := strings.Contains(loaded[candidates[i]].Text, `\begin{document}`)
		mj := strings.Contains(loaded[candidates[j]].Text, `\begin{document}`)
		if mi != mj {
			return mi
		}
		return loaded[candidates[i]].Rel < loaded[candidates[j]].Rel
	})

	ex := &includeExpander{root: root, maxDepth: maxIncludeDepth, log: log, included: make(map[string]bool)}

	// A file some other candidate includes is emitted through that file,
	// wherever it sorts.
	target := make(map[string]bool)
	for _, path := range candidates {
		for _, t := range ex.targets(loaded[path].Text, filepath.Dir(path)) {
			if t != path {
				target[t] = true
			}
		}
	}

	var out []Source
	emitted := make(map[string]bool)
	emit := func(path string) {
		src := loaded[path]
		if strings.EqualFold(filepath.Ext(path), ".tex") {
			src.Text = ex.expand(src.Text, filepath.Dir(path), []string{path})
		}
		emitted[path] = true
		out = append(out, src)
	}
	for _, path := range candidates {
		if !target[path] && !ex.included[path] {
			emit(path)
		}
	}
	// Files that only include each other still need one entry point.
	for _, path := range candidates {
		if !emitted[path] && !ex.included[path] {
			emit(path)
		}
	}
	return out, nil
}

func relSlash(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

// readText decodes a source file. Invalid UTF-8 is read as ISO-8859-1.
func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read source: %w", err)
	}
	return decode(data), nil
}

func decode(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return norm.NFC.String(string(data))
	}
	s, err := charmap.ISO8859_1.NewDecoder().String(string(data))
	if err != nil {
		return strings.ToValidUTF8(string(data), "�")
	}
	return norm.NFC.String(s)
}

var includeRe = regexp.MustCompile(`\\(?:input|include)\s*\{([^}]*)\}`)

type includeExpander struct {
	root     string
	maxDepth int
	log      *slog.Logger
	included map[string]bool
}

// expand replaces include directives in text with the included file's
// content. chain holds the files currently being expanded, for cycle checks.
func (e *includeExpander) expand(text, dir string, chain []string) string {
	if len(chain) > e.maxDepth {
		e.log.Warn("include depth exceeded", "file", relSlash(e.root, chain[len(chain)-1]), "max_depth", e.maxDepth)
		return text
	}

	var b strings.Builder
	last := 0
	for _, m := range includeRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		if commented(text, start) {
			continue
		}
		target := strings.TrimSpace(text[m[2]:m[3]])
		path := e.locate(target, dir)
		if path == "" {
			e.log.Debug("include not found", "target", target)
			continue
		}
		if inChain(chain, path) {
			e.log.Warn("include cycle skipped", "target", target)
			continue
		}

		body, err := readText(path)
		if err != nil {
			e.log.Warn("include unreadable", "target", target, "error", err)
			continue
		}
		e.included[path] = true

		b.WriteString(text[last:start])
		b.WriteString(e.expand(body, filepath.Dir(path), append(chain, path)))
		b.WriteByte('\n')
		last = end
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

// targets lists the files text includes directly, without reading them.
func (e *includeExpander) targets(text, dir string) []string {
	var out []string
	for _, m := range includeRe.FindAllStringSubmatchIndex(text, -1) {
		if commented(text, m[0]) {
			continue
		}
		if path := e.locate(strings.TrimSpace(text[m[2]:m[3]]), dir); path != "" {
			out = append(out, path)
		}
	}
	return out
}

// locate finds an include target relative to the bundle root or the
// including file, adding .tex when the name has no extension.
func (e *includeExpander) locate(target, dir string) string {
	if target == "" {
		return ""
	}
	names := []string{target}
	if filepath.Ext(target) == "" {
		names = []string{target + ".tex", target}
	}
	for _, base := range []string{e.root, dir} {
		for _, n := range names {
			p, err := safeJoin(base, n)
			if err != nil {
				continue
			}
			if rel, err := filepath.Rel(e.root, p); err != nil || strings.HasPrefix(rel, "..") {
				continue
			}
			if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
				return p
			}
		}
	}
	return ""
}

func inChain(chain []string, path string) bool {
	for _, c := range chain {
		if c == path {
			return true
		}
	}
	return false
}

// commented reports whether pos sits after an unescaped % on its line.
func commented(text string, pos int) bool {
	lineStart := strings.LastIndexByte(text[:pos], '\n') + 1
	line := text[lineStart:pos]
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case '%':
			return true
		}
	}
	return false
}
