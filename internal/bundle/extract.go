package bundle

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/figweave/internal/parser"
)

// Extract unpacks the archive at path into dest. The format is chosen from
// name: .tar.gz/.tgz, .tar, .gz (gzipped tar or a single gzipped source),
// .zip, or a bare source file which is copied as is. Entries that would land
// outside dest are rejected.
func Extract(path, name, dest string) error {
	lower := strings.ToLower(filepath.Base(name))
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return withFile(path, func(f *os.File) error {
			gz, err := gzip.NewReader(f)
			if err != nil {
				return fmt.Errorf("open gzip: %w", err)
			}
			defer gz.Close()
			return extractTar(gz, dest)
		})
	case strings.HasSuffix(lower, ".tar"):
		return withFile(path, func(f *os.File) error { return extractTar(f, dest) })
	case strings.HasSuffix(lower, ".gz"):
		return withFile(path, func(f *os.File) error { return extractGzip(f, archiveStem(filepath.Base(name)), dest) })
	case strings.HasSuffix(lower, ".zip"):
		return extractZip(path, dest)
	case parser.IsSupportedExtension(lower):
		return withFile(path, func(f *os.File) error {
			return writeEntry(dest, filepath.Base(name), f)
		})
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedArchive, name)
	}
}

// Supported reports whether Extract accepts a file called name.
func Supported(name string) bool {
	lower := strings.ToLower(filepath.Base(name))
	for _, s := range archiveSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return parser.IsSupportedExtension(lower)
}

func withFile(path string, fn func(*os.File) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	return fn(f)
}

// extractGzip handles a .gz that is either a tarball or one compressed source.
func extractGzip(r io.Reader, stem, dest string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	br := bufio.NewReaderSize(gz, 1024)
	head, _ := br.Peek(512)
	if isTarHeader(head) {
		return extractTar(br, dest)
	}

	if filepath.Ext(stem) == "" || !parser.IsSupportedExtension(stem) {
		stem += ".tex"
	}
	return writeEntry(dest, stem, br)
}

func isTarHeader(b []byte) bool {
	return len(b) >= 262 && bytes.HasPrefix(b[257:], []byte("ustar"))
}

func extractTar(r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			target, err := safeJoin(dest, hdr.Name)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create dir: %w", err)
			}
		case tar.TypeReg:
			if err := writeEntry(dest, hdr.Name, tr); err != nil {
				return err
			}
		}
		// Links and special files are skipped.
	}
}

func extractZip(path, dest string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !f.Mode().IsRegular() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open zip entry %s: %w", f.Name, err)
		}
		err = writeEntry(dest, f.Name, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeEntry(dest, name string, r io.Reader) error {
	target, err := safeJoin(dest, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	return out.Close()
}

// safeJoin joins an archive entry name onto dest, refusing names that escape.
func safeJoin(dest, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.ReplaceAll(name, `\`, "/")))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes extraction root", name)
	}
	return filepath.Join(dest, clean), nil
}
