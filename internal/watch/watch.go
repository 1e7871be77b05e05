// Package watch re-validates contracts on an interval and whenever the
// contract files change.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"

	"github.com/ShayCichocki/consumer-contracts/internal/contract"
	"github.com/ShayCichocki/consumer-contracts/internal/logging"
	"github.com/ShayCichocki/consumer-contracts/internal/runner"
)

const (
	// DefaultInterval is the time between scheduled batches.
	DefaultInterval = time.Minute
	// DefaultDebounce coalesces bursts of file events into one batch.
	DefaultDebounce = 250 * time.Millisecond
)

// LoadFunc returns the current contract set.
type LoadFunc func(ctx context.Context) ([]*contract.Contract, error)

// ReportFunc receives every finished batch.
type ReportFunc func(b *runner.BatchResult)

// Option configures a Watcher. Use With* functions to create Options.
type Option func(*Watcher)

// WithInterval sets the time between scheduled batches.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithDebounce sets how long file events are coalesced before a batch.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithDir watches dir, recursively, for contract file changes. Without it
// only the interval triggers batches.
func WithDir(dir string) Option {
	return func(w *Watcher) { w.dir = dir }
}

// WithReport sets the callback invoked after each batch.
func WithReport(fn ReportFunc) Option {
	return func(w *Watcher) { w.report = fn }
}

// Watcher runs contract batches until its context ends.
type Watcher struct {
	load     LoadFunc
	runner   *runner.Runner
	dir      string
	interval time.Duration
	debounce time.Duration
	report   ReportFunc

	contracts []*contract.Contract
}

// New creates a Watcher that validates the contracts returned by load
// using r.
func New(load LoadFunc, r *runner.Runner, opts ...Option) *Watcher {
	w := &Watcher{
		load:     load,
		runner:   r,
		interval: DefaultInterval,
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run loads and validates the contracts once, then again on every tick and
// file change. A failed initial load is returned; later load failures are
// logged and the previous contracts are validated instead. Run returns nil
// when ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx).WithName("watch")

	contracts, err := w.load(ctx)
	if err != nil {
		return err
	}
	w.contracts = contracts

	var (
		fw     *fsnotify.Watcher
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if w.dir != "" {
		fw, err = w.newFileWatcher()
		if err != nil {
			// Interval batches still run.
			logger.Error(err, "File watching disabled", "dir", w.dir)
		} else {
			defer fw.Close()
			events, errs = fw.Events, fw.Errors
		}
	}

	w.batch(ctx, logger, "start")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	debounce := time.NewTimer(w.debounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.reload(ctx, logger)
			w.batch(ctx, logger, "interval")
		case <-debounce.C:
			w.reload(ctx, logger)
			w.batch(ctx, logger, "change")
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := fw.Add(ev.Name); err != nil {
						logger.Error(err, "Cannot watch directory", "dir", ev.Name)
					}
				}
			}
			logger.V(logging.DEBUG).Info("Contract file changed", "file", ev.Name, "op", ev.Op.String())
			debounce.Reset(w.debounce)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Error(err, "File watcher error")
		}
	}
}

// Contracts returns the contract set used by the latest batch.
func (w *Watcher) Contracts() []*contract.Contract { return w.contracts }

func (w *Watcher) reload(ctx context.Context, logger logr.Logger) {
	contracts, err := w.load(ctx)
	if err != nil {
		logger.Error(err, "Reload failed, keeping previous contracts", "count", len(w.contracts))
		return
	}
	w.contracts = contracts
}

func (w *Watcher) batch(ctx context.Context, logger logr.Logger, trigger string) {
	if ctx.Err() != nil {
		return
	}
	b := w.runner.Run(ctx, w.contracts)
	logger.V(logging.VERBOSE).Info("Batch complete", "trigger", trigger, "passed", b.TotalPassed, "failed", b.TotalFailed)
	if w.report != nil {
		w.report(b)
	}
}

func (w *Watcher) newFileWatcher() (*fsnotify.Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	err = filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Join(err, fw.Close())
	}
	return fw, nil
}
