// Package materialize copies or converts resolved figure files into the
// dataset's figure directory.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

// ErrUnsupportedFormat is returned for figure files with no known mapping.
var ErrUnsupportedFormat = errors.New("unsupported figure format")

// Materializer stores the image behind one figure record.
type Materializer interface {
	// Materialize stores sourcePath under a name derived from imageID and
	// returns the stored file's path.
	Materialize(ctx context.Context, sourcePath, imageID string) (string, error)
}

// Namer reports the file name Materialize would store a figure under, so
// callers can keep distinct figures from sharing one file.
type Namer interface {
	Name(sourcePath, imageID string) (string, error)
}

// FileMaterializer writes figures into Dir. PDF figures are rasterized to PNG
// with Rasterizer (pdftoppm); with no rasterizer they are copied.
type FileMaterializer struct {
	Dir        string
	Rasterizer string
	Runner     Runner
	Log        *slog.Logger
}

func NewFileMaterializer(dir, rasterizer string, log *slog.Logger) *FileMaterializer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &FileMaterializer{Dir: dir, Rasterizer: rasterizer, Runner: ExecRunner{}, Log: log}
}

type format int

const (
	formatUnknown format = iota
	formatRaster
	formatPDF
	formatPostScript
)

func classify(path string) (format, string) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".png", ".gif", ".bmp", ".svg", ".webp":
		return formatRaster, ext
	case ".jpg", ".jpeg":
		return formatRaster, ".jpg"
	case ".tif", ".tiff":
		return formatRaster, ".tiff"
	case ".pdf":
		return formatPDF, ".pdf"
	case ".eps", ".ps":
		return formatPostScript, ext
	}
	return formatUnknown, ext
}

// OutputName returns the stored file name for imageID once the source has
// been converted to ext.
func OutputName(imageID, ext string) string {
	return strings.TrimSuffix(imageID, filepath.Ext(imageID)) + ext
}

// Name returns the stored file name for a figure without touching disk.
func (m *FileMaterializer) Name(sourcePath, imageID string) (string, error) {
	kind, ext := classify(sourcePath)
	switch kind {
	case formatRaster, formatPostScript:
		return OutputName(imageID, ext), nil
	case formatPDF:
		if m.Rasterizer == "" {
			return OutputName(imageID, ".pdf"), nil
		}
		return OutputName(imageID, ".png"), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

func (m *FileMaterializer) Materialize(ctx context.Context, sourcePath, imageID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, err := m.Name(sourcePath, imageID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create figure dir: %w", err)
	}

	kind, _ := classify(sourcePath)
	if kind != formatPDF {
		return m.copy(sourcePath, name)
	}
	pages, err := pageCount(sourcePath)
	if err != nil {
		return "", fmt.Errorf("read pdf figure: %w", err)
	}
	if pages < 1 {
		return "", fmt.Errorf("read pdf figure: no pages")
	}
	if m.Rasterizer == "" {
		return m.copy(sourcePath, name)
	}
	return m.rasterize(ctx, sourcePath, name)
}

// pageCount opens a PDF with ledongthuc/pdf, which may panic on damaged input.
func pageCount(path string) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return reader.NumPage(), nil
}

func (m *FileMaterializer) copy(src, name string) (string, error) {
	dst := filepath.Join(m.Dir, name)
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open figure: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(m.Dir, ".fig-*")
	if err != nil {
		return "", fmt.Errorf("create figure: %w", err)
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("copy figure: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close figure: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("store figure: %w", err)
	}
	m.Log.Debug("figure stored", "path", dst)
	return dst, nil
}

// rasterize renders the first page of a PDF figure to PNG.
func (m *FileMaterializer) rasterize(ctx context.Context, src, name string) (string, error) {
	tmpDir, err := os.MkdirTemp(m.Dir, ".raster-*")
	if err != nil {
		return "", fmt.Errorf("create raster dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	_, stderr, err := m.Runner.Run(ctx, m.Rasterizer, m.Log, "-png", "-f", "1", "-l", "1", "-singlefile", "-r", "150", src, prefix)
	if err != nil {
		return "", fmt.Errorf("%s failed: %w: %s", m.Rasterizer, err, truncate(string(stderr), 512))
	}
	out := prefix + ".png"
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("%s produced no output: %w", m.Rasterizer, err)
	}

	dst := filepath.Join(m.Dir, name)
	if err := os.Rename(out, dst); err != nil {
		return "", fmt.Errorf("store figure: %w", err)
	}
	m.Log.Debug("figure rasterized", "path", dst)
	return dst, nil
}
