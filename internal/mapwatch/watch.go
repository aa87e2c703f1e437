// Package mapwatch reports changes to map files on disk.
package mapwatch

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Suppress is the quiet period a file must see before its change is
// reported. Every new event for the file restarts it.
const Suppress = 100 * time.Millisecond

// Watcher watches the directories of the given map files and emits the
// cleaned path of a map file once it has been written, created or renamed
// and then left alone for Suppress. Editors often replace files instead of
// writing them in place, so the directory is watched rather than the file.
type Watcher struct {
	watcher *fsnotify.Watcher
	log     *zap.Logger
	files   map[string]struct{}
	quiet   time.Duration
	ready   chan settled
	Events  chan string
	Errors  chan error
	closeCh chan struct{}
	doneCh  chan struct{}
	once    sync.Once
}

// settled is posted by a file's timer; gen tells a stale timer from the
// current one.
type settled struct {
	name string
	gen  uint64
}

type pendingFile struct {
	timer *time.Timer
	gen   uint64
}

func New(log *zap.Logger, paths ...string) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	files := make(map[string]struct{}, len(paths))
	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			_ = w.Close()
			return nil, err
		}
		files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, err
		}
	}

	watcher := &Watcher{
		watcher: w,
		log:     log,
		files:   files,
		quiet:   Suppress,
		ready:   make(chan settled),
		Events:  make(chan string, 16),
		Errors:  make(chan error, 1),
		closeCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go watcher.run()
	return watcher, nil
}

// Close stops the watcher; Events and Errors are closed once it has exited.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
		<-w.doneCh
	})
	return err
}

func (w *Watcher) run() {
	pending := make(map[string]*pendingFile)
	defer func() {
		for _, pf := range pending {
			pf.timer.Stop()
		}
		close(w.Events)
		close(w.Errors)
		close(w.doneCh)
	}()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			if _, ok := w.files[name]; !ok {
				continue
			}
			w.log.Debug("map file changed", zap.String("path", name), zap.Stringer("op", event.Op))
			w.arm(pending, name)
		case s := <-w.ready:
			pf, ok := pending[s.name]
			if !ok || pf.gen != s.gen {
				continue
			}
			delete(pending, s.name)
			select {
			case w.Events <- s.name:
			case <-w.closeCh:
				return
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.Errors <- err:
			case <-w.closeCh:
				return
			default:
				w.log.Warn("map watcher error dropped", zap.Error(err))
			}
		case <-w.closeCh:
			return
		}
	}
}

// arm (re)starts the quiet period of name.
func (w *Watcher) arm(pending map[string]*pendingFile, name string) {
	pf, ok := pending[name]
	if !ok {
		pf = &pendingFile{}
		pending[name] = pf
	} else {
		pf.timer.Stop()
	}
	pf.gen++
	s := settled{name: name, gen: pf.gen}
	pf.timer = time.AfterFunc(w.quiet, func() {
		select {
		case w.ready <- s:
		case <-w.closeCh:
		}
	})
}
