package scripthost

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fruitsalade/studiokit/internal/logging"
	"github.com/fruitsalade/studiokit/pkg/protocol"
)

// Watcher publishes a library_changed event when the library root gains
// or loses a folder, or a folder's script files or the name registry
// change. Bursts within the debounce window collapse into one event.
type Watcher struct {
	root      string
	ext       string
	registry  string
	debounce  time.Duration
	publisher *Broadcaster
}

// NewWatcher watches root for changes to files with ext and to the
// registry file name.
func NewWatcher(root, ext, registry string, debounce time.Duration, b *Broadcaster) *Watcher {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &Watcher{root: filepath.Clean(root), ext: ext, registry: registry, debounce: debounce, publisher: b}
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.root); err != nil {
		return err
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			w.add(fw, filepath.Join(w.root, e.Name()))
		}
	}
	logging.Info("watching script library", logging.Root(w.root))

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending fsnotify.Event
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) && filepath.Dir(ev.Name) == w.root {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					w.add(fw, ev.Name)
				}
			}
			if !w.relevant(ev) {
				continue
			}
			pending = ev
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.publisher.Publish(protocol.Event{
				Type: protocol.EventLibraryChanged,
				Path: filepath.ToSlash(pending.Name),
				Op:   strings.ToLower(pending.Op.String()),
			})

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logging.Warn("library watcher error", logging.Err(err))
		}
	}
}

func (w *Watcher) add(fw *fsnotify.Watcher, dir string) {
	if err := fw.Add(dir); err != nil {
		logging.Warn("cannot watch folder", logging.String("dir", dir), logging.Err(err))
	}
}

// relevant filters out chmod noise and files the panel never shows.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	parent := filepath.Dir(ev.Name)
	name := filepath.Base(ev.Name)
	if parent == w.root {
		// Folder add/remove/rename, or the registry.
		return name == w.registry || isDir(ev.Name) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
	}
	return strings.EqualFold(filepath.Ext(name), w.ext)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
