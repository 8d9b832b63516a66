package bench

import (
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"github.com/benchsuite/reproduce/internal/logging"
)

// Progress reports one benchmark whose result file was written.
type Progress struct {
	Benchmark string
	Result    string
	Done      int
	Total     int
}

// ResultWatcher follows the .result files of a benchmark run as the CLI
// writes them. Results left over from earlier runs are not counted until
// they are written again.
type ResultWatcher struct {
	watcher *fsnotify.Watcher
	logger  *logging.Logger

	// result path -> benchmark path
	expected map[string]string
	done     map[string]bool
	order    []string

	onResult func(Progress)
	debounce time.Duration

	mu       sync.Mutex
	stopCh   chan struct{}
	loopDone chan struct{}
	stopOnce sync.Once
}

// NewResultWatcher watches the directories holding files. onResult is
// called once per benchmark, from the watcher goroutine.
func NewResultWatcher(files []string, onResult func(Progress), logger *logging.Logger) (*ResultWatcher, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &ResultWatcher{
		watcher:  watcher,
		logger:   logger,
		expected: make(map[string]string, len(files)),
		done:     make(map[string]bool, len(files)),
		onResult: onResult,
		debounce: 50 * time.Millisecond,
		stopCh:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}

	var dirs []string
	for _, f := range files {
		result := ResultPath(f)
		w.expected[result] = f
		w.order = append(w.order, result)
		if dir := filepath.Dir(f); !slices.Contains(dirs, dir) {
			dirs = append(dirs, dir)
		}
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return nil, err
		}
	}
	return w, nil
}

// Start begins watching in the background.
func (w *ResultWatcher) Start() {
	go w.watchLoop()
}

// Stop ends watching. It is safe to call more than once.
func (w *ResultWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})
	<-w.loopDone
}

// Completed returns the benchmarks whose results were written, in the
// order they were passed in.
func (w *ResultWatcher) Completed() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []string
	for _, result := range w.order {
		if w.done[result] {
			out = append(out, w.expected[result])
		}
	}
	return out
}

// watchLoop collects write events, then reports them once the directory has
// been quiet for the debounce interval, since the CLI writes each result in
// several chunks.
func (w *ResultWatcher) watchLoop() {
	defer close(w.loopDone)

	timer := time.NewTimer(0)
	<-timer.C
	pending := make(map[string]bool)

	for {
		select {
		case <-w.stopCh:
			w.flush(pending)
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				w.flush(pending)
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if _, ok := w.expected[event.Name]; !ok {
				continue
			}
			pending[event.Name] = true
			timer.Reset(w.debounce)

		case <-timer.C:
			w.flush(pending)
			pending = make(map[string]bool)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("result watcher error", "error", err)
		}
	}
}

func (w *ResultWatcher) flush(pending map[string]bool) {
	for _, result := range w.order {
		if !pending[result] {
			continue
		}

		w.mu.Lock()
		if w.done[result] {
			w.mu.Unlock()
			continue
		}
		w.done[result] = true
		p := Progress{
			Benchmark: w.expected[result],
			Result:    result,
			Done:      len(w.done),
			Total:     len(w.expected),
		}
		w.mu.Unlock()

		w.logger.Info("benchmark result written", "benchmark", p.Benchmark, "done", p.Done, "total", p.Total)
		if w.onResult != nil {
			w.onResult(p)
		}
	}
}

// MissingResults returns the benchmarks in files that have no result file
// on afs.
func MissingResults(afs afero.Fs, files []string) []string {
	var missing []string
	for _, f := range files {
		if ok, err := afero.Exists(afs, ResultPath(f)); err != nil || !ok {
			missing = append(missing, f)
		}
	}
	return missing
}
