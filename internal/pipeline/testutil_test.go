package pipeline

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/dgallion1/figweave/internal/materialize"
)

const catPaper = `\documentclass{article}
\title{Cats}
\begin{document}
\section{Intro}
Cats are great.
\begin{figure}
\includegraphics[width=\linewidth]{fig1.png}
\caption{A cat.}
\label{fig:cat}
\end{figure}
Done.
\end{document}
`

// writeTarGz builds a gzipped tarball named name under dir.
func writeTarGz(t *testing.T, dir, name string, files map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		body := files[n]
		hdr := &tar.Header{Name: n, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header: %v", err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("tar write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return path
}

// failingMaterializer refuses the listed image ids and copies the rest.
type failingMaterializer struct {
	next materialize.Materializer
	fail map[string]bool

	mu    sync.Mutex
	calls []string
}

func (m *failingMaterializer) Materialize(ctx context.Context, src, imageID string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, imageID)
	m.mu.Unlock()
	if m.fail[imageID] {
		return "", errors.New("conversion failed")
	}
	return m.next.Materialize(ctx, src, imageID)
}

func newTestProcessor(t *testing.T, mat materialize.Materializer) *Processor {
	t.Helper()
	return NewProcessor(ProcessorConfig{WorkDir: t.TempDir(), MaxConcurrentMaterialize: 2}, mat, nil)
}
