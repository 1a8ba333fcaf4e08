package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"image-shrink-go/internal/logger"
	"image-shrink-go/internal/pipeline"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Compressor is the part of the pipeline the watcher drives.
type Compressor interface {
	CompressFile(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Options configure a Watcher.
type Options struct {
	OutputDir  string   // empty writes next to the source with Suffix
	Suffix     string   // names ending in Suffix are our own output
	Extensions []string // compressible extensions
	Settle     time.Duration
	Credential string
}

// Watcher compresses images as they appear in a directory.
type Watcher struct {
	compressor Compressor
	opts       Options
	allowed    pipeline.ExtensionSet
	log        *logrus.Logger

	mu      sync.Mutex
	pending map[string]time.Time
	done    map[string]time.Time // path -> mtime of the compressed version
}

// New returns a Watcher.
func New(c Compressor, opts Options, log *logrus.Logger) *Watcher {
	if opts.Settle <= 0 {
		opts.Settle = 500 * time.Millisecond
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Watcher{
		compressor: c,
		opts:       opts,
		allowed:    pipeline.NewExtensionSet(opts.Extensions),
		log:        log,
		pending:    make(map[string]time.Time),
		done:       make(map[string]time.Time),
	}
}

// Run watches dir until ctx is cancelled. Files are compressed once no event
// has been seen for them during the settle interval, so partially written
// files are not picked up.
func (w *Watcher) Run(ctx context.Context, dir string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.log.WithField("dir", dir).Info("Watching for new images")

	ticker := time.NewTicker(w.opts.Settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.ShouldHandle(event) {
				continue
			}
			w.mu.Lock()
			w.pending[event.Name] = time.Now()
			w.mu.Unlock()

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Errorf("Watcher error: %v", err)

		case now := <-ticker.C:
			for _, path := range w.settled(now) {
				w.compress(ctx, path)
			}
		}
	}
}

// ShouldHandle reports whether event is a new or rewritten image that is not
// one of the watcher's own outputs.
func (w *Watcher) ShouldHandle(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
		return false
	}

	if !w.allowed.Match(name) {
		return false
	}

	if w.opts.Suffix != "" && strings.HasSuffix(strings.TrimSuffix(name, filepath.Ext(name)), w.opts.Suffix) {
		return false
	}
	if w.opts.OutputDir != "" {
		out, err1 := filepath.Abs(w.opts.OutputDir)
		dir, err2 := filepath.Abs(filepath.Dir(event.Name))
		if err1 == nil && err2 == nil && out == dir {
			return false
		}
	}
	return true
}

// settled removes and returns the pending paths that have been quiet for the
// settle interval.
func (w *Watcher) settled(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []string
	for path, seen := range w.pending {
		if now.Sub(seen) >= w.opts.Settle {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	return ready
}

func (w *Watcher) compress(ctx context.Context, path string) {
	log := logger.WithFileOperation(w.log, path, "watch")

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	w.mu.Lock()
	last, seen := w.done[path]
	w.mu.Unlock()
	if seen && !info.ModTime().After(last) {
		return
	}

	dest := ""
	if w.opts.OutputDir != "" {
		dest = w.opts.OutputDir + string(os.PathSeparator)
	}
	res, err := w.compressor.CompressFile(ctx, pipeline.Request{
		SourcePath:  path,
		Destination: dest,
		Credential:  w.opts.Credential,
	})
	if err != nil {
		log.Errorf("Compression failed: %v", err)
		return
	}

	w.mu.Lock()
	w.done[path] = info.ModTime()
	w.mu.Unlock()
	log.WithField("output", res.OutputPath).Info("Compressed new image")
}
