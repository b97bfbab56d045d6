// Package watch keeps the index in step with a folder of notes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
	"github.com/custodia-labs/recall/internal/logger"
	"github.com/custodia-labs/recall/internal/normalisers"
)

// DefaultDebounce is how long a path must stay quiet before it is processed.
const DefaultDebounce = 300 * time.Millisecond

// MetaSource records the file a document was read from.
const MetaSource = "source"

// Loader reads a file into a normalised document.
type Loader interface {
	LoadFile(ctx context.Context, path string, meta domain.Metadata) (*domain.Document, error)
}

// ChangeType is the kind of index change a file event produced.
type ChangeType int

const (
	// ChangeIndexed means the document was (re)ingested.
	ChangeIndexed ChangeType = iota

	// ChangeRemoved means the document's chunks were deleted.
	ChangeRemoved
)

// String returns a short label.
func (c ChangeType) String() string {
	if c == ChangeRemoved {
		return "removed"
	}
	return "indexed"
}

// Event reports the outcome of processing one path.
type Event struct {
	Type       ChangeType
	Path       string
	DocumentID string
	Chunks     int
	Err        error
}

// Watcher ingests supported files under a root directory as they change.
type Watcher struct {
	root      string
	ingest    driving.IngestService
	documents driving.DocumentService
	loader    Loader
	debounce  time.Duration

	mu     sync.Mutex
	closed bool
	fsw    *fsnotify.Watcher
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLoader overrides the default normaliser registry.
func WithLoader(l Loader) Option {
	return func(w *Watcher) {
		if l != nil {
			w.loader = l
		}
	}
}

// New creates a watcher for root. It does not start watching until Run.
func New(root string, ingest driving.IngestService, documents driving.DocumentService, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("watch: root path error: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch: %w: %s is not a directory", domain.ErrInvalidInput, root)
	}
	if ingest == nil || documents == nil {
		return nil, fmt.Errorf("watch: %w: services not configured", domain.ErrInvalidInput)
	}

	w := &Watcher{
		root:      abs,
		ingest:    ingest,
		documents: documents,
		loader:    normalisers.NewDefaultRegistry(),
		debounce:  DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Root returns the absolute watched directory.
func (w *Watcher) Root() string {
	return w.root
}

// DocumentID derives the document id for a path under the root:
// the slash-separated relative path.
func (w *Watcher) DocumentID(path string) (string, error) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", err
	}
	if rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return "", fmt.Errorf("%w: %s is outside %s", domain.ErrInvalidInput, path, w.root)
	}
	return filepath.ToSlash(rel), nil
}

// Scan ingests every supported file already under the root.
func (w *Watcher) Scan(ctx context.Context) ([]Event, error) {
	var paths []string
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != w.root && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && normalisers.IsSupportedPath(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("watch: scan: %w", err)
	}
	sort.Strings(paths)

	events := make([]Event, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return events, err
		}
		events = append(events, w.index(ctx, p))
	}
	return events, nil
}

// Run watches the root until ctx is done, sending one Event per processed
// path. The events channel is not closed by Run.
func (w *Watcher) Run(ctx context.Context, events chan<- Event) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errors.New("watch: watcher is closed")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("watch: %w", err)
	}
	w.fsw = fsw
	w.mu.Unlock()
	defer w.Close()

	if err := w.addTree(w.root); err != nil {
		return err
	}
	logger.Info("Watching %s", w.root)

	pending := make(map[string]fsnotify.Op)
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if op, ok := w.handleFsEvent(ev); ok {
				pending[ev.Name] = op
				timer.Reset(w.debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watch error: %v", err)

		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			for _, p := range paths {
				for _, e := range w.process(ctx, p, pending[p]) {
					select {
					case events <- e:
					case <-ctx.Done():
						return nil
					}
				}
				delete(pending, p)
			}
		}
	}
}

// Close stops the underlying watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

// handleFsEvent filters raw events. New directories are added to the watch
// list; the returned op is the one to process after the debounce.
func (w *Watcher) handleFsEvent(ev fsnotify.Event) (fsnotify.Op, bool) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || isHiddenPath(rel) {
		return 0, false
	}

	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return fsnotify.Remove, true
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return 0, false
		}
		if info.IsDir() {
			if ev.Has(fsnotify.Create) {
				if err := w.addTree(ev.Name); err != nil {
					logger.Warn("Watch %s: %v", ev.Name, err)
				}
				return fsnotify.Create, true
			}
			return 0, false
		}
		if !normalisers.IsSupportedPath(ev.Name) {
			return 0, false
		}
		return fsnotify.Write, true
	default:
		return 0, false
	}
}

func (w *Watcher) process(ctx context.Context, path string, op fsnotify.Op) []Event {
	info, statErr := os.Stat(path)
	switch {
	case op == fsnotify.Remove && statErr != nil:
		return w.remove(ctx, path)
	case statErr != nil:
		return nil
	case info.IsDir():
		// Files copied in with a new directory produce no events of their own.
		var events []Event
		_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			switch {
			case err != nil:
				return nil
			case d.IsDir():
				if p != path && isHidden(d.Name()) {
					return filepath.SkipDir
				}
			case !isHidden(d.Name()) && normalisers.IsSupportedPath(p):
				events = append(events, w.index(ctx, p))
			}
			return nil
		})
		return events
	default:
		return []Event{w.index(ctx, path)}
	}
}

// index replaces the document for path. An emptied file removes it.
func (w *Watcher) index(ctx context.Context, path string) Event {
	docID, err := w.DocumentID(path)
	ev := Event{Type: ChangeIndexed, Path: path, DocumentID: docID}
	if err != nil {
		ev.Err = err
		return ev
	}

	doc, err := w.loader.LoadFile(ctx, path, domain.Metadata{MetaSource: domain.StringValue(path)})
	if err != nil {
		ev.Err = err
		return ev
	}
	if strings.TrimSpace(doc.Content) == "" {
		return w.removeDocument(ctx, path, docID)
	}

	result, err := w.ingest.Replace(ctx, domain.IngestRequest{
		DocumentID: docID,
		Title:      doc.Title,
		Text:       doc.Content,
		Metadata:   doc.Metadata,
	})
	if err != nil {
		ev.Err = err
		return ev
	}
	ev.Chunks = result.ChunksCreated
	if result.ChunksFailed > 0 {
		ev.Err = fmt.Errorf("%d of %d chunks failed", result.ChunksFailed, result.TotalChunks)
	}
	logger.Debug("Indexed %s as %s (%d chunks)", path, docID, result.ChunksCreated)
	return ev
}

// remove deletes the document for a removed file, or every document under
// a removed directory.
func (w *Watcher) remove(ctx context.Context, path string) []Event {
	docID, err := w.DocumentID(path)
	if err != nil {
		return []Event{{Type: ChangeRemoved, Path: path, Err: err}}
	}
	if normalisers.IsSupportedPath(path) {
		return []Event{w.removeDocument(ctx, path, docID)}
	}

	docs, err := w.documents.List(ctx)
	if err != nil {
		return []Event{{Type: ChangeRemoved, Path: path, DocumentID: docID, Err: err}}
	}
	var events []Event
	prefix := docID + "/"
	for _, d := range docs {
		if strings.HasPrefix(d.ID, prefix) {
			events = append(events, w.removeDocument(ctx, filepath.Join(w.root, filepath.FromSlash(d.ID)), d.ID))
		}
	}
	return events
}

func (w *Watcher) removeDocument(ctx context.Context, path, docID string) Event {
	ev := Event{Type: ChangeRemoved, Path: path, DocumentID: docID}
	result, err := w.documents.Delete(ctx, docID)
	if err != nil {
		ev.Err = err
		return ev
	}
	ev.Chunks = result.ChunksDeleted
	logger.Debug("Removed %s (%d chunks)", docID, result.ChunksDeleted)
	return ev
}

// addTree watches dir and every non-hidden directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// isHiddenPath reports whether any element of path is hidden.
func isHiddenPath(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if isHidden(part) {
			return true
		}
	}
	return false
}
