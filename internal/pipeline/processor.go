package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/figweave/internal/bundle"
	"github.com/dgallion1/figweave/internal/dataset"
	"github.com/dgallion1/figweave/internal/doctree"
	"github.com/dgallion1/figweave/internal/figures"
	"github.com/dgallion1/figweave/internal/interleave"
	"github.com/dgallion1/figweave/internal/materialize"
	"github.com/dgallion1/figweave/internal/parser"
)

// ErrNoUsableSource is returned when every source of a bundle failed to parse.
var ErrNoUsableSource = errors.New("no source could be parsed")

// Stats counts what happened while processing one bundle.
type Stats struct {
	Sources        int `json:"sources"`
	SourcesFailed  int `json:"sources_failed"`
	TextItems      int `json:"text_items"`
	FigureItems    int `json:"figure_items"`
	FiguresDropped int `json:"figures_dropped"`
}

// ProcessorConfig holds the knobs of a Processor.
type ProcessorConfig struct {
	WorkDir                  string
	MaxIncludeDepth          int
	MaxConcurrentMaterialize int
	GuessExtensions          []string
}

// Processor turns one source bundle into a dataset document.
type Processor struct {
	cfg    ProcessorConfig
	walker *interleave.Walker
	mat    materialize.Materializer
	log    *slog.Logger
}

func NewProcessor(cfg ProcessorConfig, mat materialize.Materializer, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.MaxConcurrentMaterialize <= 0 {
		cfg.MaxConcurrentMaterialize = 4
	}
	ex := figures.NewExtractor(figures.Resolver{GuessExtensions: cfg.GuessExtensions}, log)
	return &Processor{
		cfg:    cfg,
		walker: interleave.NewWalker(ex, log),
		mat:    mat,
		log:    log,
	}
}

// ProcessBundle extracts the archive at path, walks every source in order,
// merges the items, and stores the figures. name is the original archive
// name; the document id derives from it.
func (p *Processor) ProcessBundle(ctx context.Context, path, name string) (*dataset.Document, Stats, error) {
	return p.process(ctx, path, name, nil)
}

// process is ProcessBundle with a phase callback for job tracking.
func (p *Processor) process(ctx context.Context, path, name string, phase func(JobStatus)) (*dataset.Document, Stats, error) {
	var st Stats
	if phase == nil {
		phase = func(JobStatus) {}
	}

	phase(StatusExtracting)
	b, err := bundle.Open(path, name, p.cfg.WorkDir, bundle.Options{MaxIncludeDepth: p.cfg.MaxIncludeDepth, Log: p.log})
	if err != nil {
		return nil, st, fmt.Errorf("open bundle: %w", err)
	}
	defer func() {
		if err := b.Cleanup(); err != nil {
			p.log.Warn("bundle cleanup failed", "doc_id", b.DocID, "error", err)
		}
	}()
	log := p.log.With("doc_id", b.DocID)
	st.Sources = len(b.Sources)

	phase(StatusWalking)
	var items []doctree.Item
	title := ""
	for _, src := range b.Sources {
		if err := ctx.Err(); err != nil {
			return nil, st, err
		}
		tree, err := parseSource(src)
		if err != nil {
			st.SourcesFailed++
			log.Warn("source skipped", "source", src.Rel, "error", err)
			continue
		}
		walked, err := p.walkSource(tree, b.DocID, b.Root)
		if err != nil {
			st.SourcesFailed++
			log.Warn("source skipped", "source", src.Rel, "error", err)
			continue
		}
		if title == "" {
			title = tree.Title
		}
		items = append(items, walked...)
	}
	if st.Sources > 0 && st.SourcesFailed == st.Sources {
		return nil, st, ErrNoUsableSource
	}
	items = interleave.Merge(items)

	phase(StatusMaterializing)
	filenames, dropped, err := p.materialize(ctx, items, log)
	if err != nil {
		return nil, st, err
	}
	if len(dropped) > 0 {
		st.FiguresDropped = len(dropped)
		items = interleave.Merge(withoutFigures(items, dropped))
	}

	doc := dataset.FromItems(b.DocID, items, filenames)
	doc.Source = name
	doc.Title = title
	st.TextItems, st.FigureItems = doc.Counts()
	log.Info("bundle processed",
		"sources", st.Sources,
		"sources_failed", st.SourcesFailed,
		"text_items", st.TextItems,
		"figure_items", st.FigureItems,
		"figures_dropped", st.FiguresDropped,
	)
	return doc, st, nil
}

// materialize stores every figure with bounded concurrency. A figure that
// cannot be stored is reported in dropped; only context cancellation fails
// the whole call.
func (p *Processor) materialize(ctx context.Context, items []doctree.Item, log *slog.Logger) (map[string]string, map[string]bool, error) {
	filenames := make(map[string]string)
	dropped := make(map[string]bool)
	if p.mat == nil {
		return filenames, dropped, nil
	}

	keys := p.storageKeys(items)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrentMaterialize)
	for _, it := range items {
		if !it.IsFigure() {
			continue
		}
		rec := it.Figure
		key := keys[rec.ImageID]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			stored, err := p.mat.Materialize(gctx, rec.SourcePath, key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn("figure dropped", "image_id", rec.ImageID, "error", err)
				dropped[rec.ImageID] = true
				return nil
			}
			filenames[rec.ImageID] = filepath.Base(stored)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("materialize figures: %w", err)
	}
	return filenames, dropped, nil
}

// storageKeys picks the name each figure is materialized under. Distinct
// image ids can map to one stored file (plot.jpg and plot.jpeg both become
// .jpg), so later figures in document order get a numbered key instead.
func (p *Processor) storageKeys(items []doctree.Item) map[string]string {
	keys := make(map[string]string)
	namer, ok := p.mat.(materialize.Namer)
	claimed := make(map[string]bool)
	for _, it := range items {
		if !it.IsFigure() {
			continue
		}
		rec := it.Figure
		if _, seen := keys[rec.ImageID]; seen {
			continue
		}
		key := rec.ImageID
		if ok {
			name, err := namer.Name(rec.SourcePath, key)
			if err == nil {
				ext := filepath.Ext(rec.ImageID)
				stem := strings.TrimSuffix(rec.ImageID, ext)
				for i := 2; claimed[name]; i++ {
					key = fmt.Sprintf("%s_%d%s", stem, i, ext)
					name, _ = namer.Name(rec.SourcePath, key)
				}
				claimed[name] = true
			}
		}
		keys[rec.ImageID] = key
	}
	return keys
}

func withoutFigures(items []doctree.Item, ids map[string]bool) []doctree.Item {
	out := make([]doctree.Item, 0, len(items))
	for _, it := range items {
		if it.IsFigure() && ids[it.Figure.ImageID] {
			continue
		}
		out = append(out, it)
	}
	return out
}

// walkSource isolates walker panics to the one source.
func (p *Processor) walkSource(tree *doctree.DocTree, docID, root string) (items []doctree.Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			items, err = nil, fmt.Errorf("walk panic: %v", r)
		}
	}()
	return p.walker.WalkTree(tree, docID, root), nil
}

// parseSource isolates parser panics to the one source.
func parseSource(src bundle.Source) (tree *doctree.DocTree, err error) {
	defer func() {
		if r := recover(); r != nil {
			tree, err = nil, fmt.Errorf("parser panic: %v", r)
		}
	}()

	p, err := parser.ForFile(src.Path)
	if err != nil {
		return nil, err
	}
	if lp, ok := p.(*parser.LaTeXParser); ok {
		return lp.ParseString(src.Text, src.Rel), nil
	}
	if src.Binary() {
		f, err := os.Open(src.Path)
		if err != nil {
			return nil, fmt.Errorf("open source: %w", err)
		}
		defer f.Close()
		return p.Parse(f, src.Rel)
	}
	return p.Parse(strings.NewReader(src.Text), src.Rel)
}
