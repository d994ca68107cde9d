// Package watch observes scan output directories and turns bursts of
// filesystem activity into debounced refresh notifications.
package watch

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/loykin/reconsole/internal/metrics"
	"github.com/loykin/reconsole/internal/notify"
)

// Options configures watch sessions.
type Options struct {
	QuietWindow   time.Duration
	TrailingFlush bool
	// RelativeTo is the directory event paths are reported relative to,
	// normally the output root. When empty only the watched directory's base
	// name is reported.
	RelativeTo string
}

// Session is a recursive watch over one output directory.
type Session struct {
	root  string
	label string // reported as Event.Path
	fsw  *fsnotify.Watcher
	deb  *Debouncer
	out  *notify.Channel

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// Start begins watching root and every directory below it. Change events are
// put onto out.
func Start(root string, out *notify.Channel, opts Options) (*Session, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("watch root is not a directory: " + root)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	s := &Session{
		root:  root,
		label: relativeLabel(opts.RelativeTo, root),
		fsw:   fsw,
		deb:   NewDebouncer(opts.QuietWindow, opts.TrailingFlush),
		out:   out,
		done:  make(chan struct{}),
	}
	if err := s.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	s.wg.Add(1)
	go s.loop()
	slog.Info("Watch session started", "root", root, "quiet_window", s.deb.Window, "trailing_flush", opts.TrailingFlush)
	return s, nil
}

// relativeLabel returns root relative to base with forward slashes, or the base
// name of root when that is not possible.
func relativeLabel(base, root string) string {
	if base != "" {
		absBase, err1 := filepath.Abs(base)
		absRoot, err2 := filepath.Abs(root)
		if err1 == nil && err2 == nil {
			if rel, err := filepath.Rel(absBase, absRoot); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				return filepath.ToSlash(rel)
			}
		}
	}
	return filepath.Base(root)
}

// Root returns the watched directory.
func (s *Session) Root() string { return s.root }

// addTree registers dir and all of its subdirectories with fsnotify.
func (s *Session) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := s.fsw.Add(p); err != nil && p == dir {
			return err
		}
		return nil
	})
}

func (s *Session) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.fsw.Events:
			if !ok {
				return
			}
			s.handle(ev)
		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("Watch session error", "root", s.root, "error", err)
		}
	}
}

func (s *Session) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// the scanner may have written files before the directory was added
			_ = s.addTree(ev.Name)
		}
	}
	emit := s.deb.Observe(time.Now(), s.emit)
	metrics.IncWatchEvent(emit)
	if emit {
		s.emit()
	}
}

func (s *Session) emit() {
	select {
	case <-s.done:
		return
	default:
	}
	s.out.Put(notify.RefreshTree(s.label))
	slog.Debug("Queued file tree refresh notification", "root", s.root)
}

// Close stops the session and releases the underlying OS watch.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.deb.Stop()
		s.closeErr = s.fsw.Close()
		s.wg.Wait()
		slog.Info("Watch session stopped", "root", s.root)
	})
	return s.closeErr
}
