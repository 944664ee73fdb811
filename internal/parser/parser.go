package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/figweave/internal/doctree"
)

// Parser converts raw source bytes into a DocTree.
type Parser interface {
	Parse(r io.Reader, filename string) (*doctree.DocTree, error)
}

// SupportedExtensions lists source file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".tex":      true,
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".docx":     true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".tex":
		return &LaTeXParser{}, nil
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// baseTitle strips the directory and extension from filename.
func baseTitle(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// figureNode builds a figure holding one graphics directive and an optional
// caption and label.
func figureNode(env, directive, src, caption, label string) *doctree.Figure {
	fig := &doctree.Figure{Env: env, Body: []doctree.Node{
		&doctree.Graphics{Directive: directive, Args: []doctree.Arg{{Raw: src}}},
	}}
	if caption != "" {
		fig.Body = append(fig.Body, captionNode(caption))
	}
	if label != "" {
		fig.Body = append(fig.Body, labelNode(label))
	}
	return fig
}

func captionNode(text string) *doctree.Other {
	return &doctree.Other{
		Name: "caption",
		Args: []doctree.Arg{{Raw: text}},
		Body: []doctree.Node{&doctree.Text{Content: text}},
	}
}

func labelNode(label string) *doctree.Other {
	return &doctree.Other{Name: "label", Args: []doctree.Arg{{Raw: label}}}
}
