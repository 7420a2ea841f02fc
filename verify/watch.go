package verify

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReportFunc receives the outcome of re-verifying a changed file.
type ReportFunc func(path string, reports []Report, err error)

// Watcher re-verifies program files when they are written.
type Watcher struct {
	engine   FileVerifier
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	report   ReportFunc
	debounce time.Duration
}

// NewWatcher creates a watcher that sends every re-verification to report.
func NewWatcher(engine FileVerifier, logger *zap.Logger, report ReportFunc) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("error creating watcher: %w", err)
	}
	return &Watcher{
		engine:   engine,
		watcher:  w,
		logger:   logger,
		report:   report,
		debounce: 100 * time.Millisecond,
	}, nil
}

// Add watches the given files, and every directory below the given
// directories.
func (w *Watcher) Add(paths ...string) error {
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("error accessing %s: %w", path, err)
		}
		if !info.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				return fmt.Errorf("error watching %s: %w", path, err)
			}
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return w.watcher.Add(p)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("error adding directory to watcher: %w", err)
		}
	}
	return nil
}

// Run handles file events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	if !hasProgramExtension(event.Name) || filepath.Base(event.Name) == DefaultConfigFile {
		return
	}
	// editors often write a file in several steps
	time.Sleep(w.debounce)

	w.logger.Debug("File changed", zap.String("file", event.Name), zap.Stringer("op", event.Op))
	reports, err := w.engine.VerifyFile(ctx, event.Name)
	w.report(event.Name, reports, err)
}
