package config

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const pollInterval = 60 * time.Second

// Watcher re-reads the config file on change and hands the new snapshot to
// the callback. fsnotify first, mtime polling as a safety net for editors
// that replace the file instead of writing it.
type Watcher struct {
	path     string
	onChange func(*Config)

	mu        sync.Mutex
	lastMtime time.Time
}

func NewWatcher(path string, onChange func(*Config)) *Watcher {
	return &Watcher{path: path, onChange: onChange}
}

func (w *Watcher) Start(ctx context.Context) {
	if st, err := os.Stat(w.path); err == nil {
		w.lastMtime = st.ModTime()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[Config] fsnotify unavailable (%v), polling only", err)
	} else if err := watcher.Add(w.path); err != nil {
		log.Printf("[Config] cannot watch %s (%v), polling only", w.path, err)
		watcher.Close()
		watcher = nil
	}

	if watcher != nil {
		go func() {
			defer watcher.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-watcher.Events:
					if !ok {
						return
					}
					if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						// Debounce: editors fire several events per save.
						time.Sleep(100 * time.Millisecond)
						w.reload()
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return
					}
					log.Printf("[Config] watch error: %v", err)
				}
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.reloadIfChanged()
			}
		}
	}()
}

func (w *Watcher) reloadIfChanged() {
	st, err := os.Stat(w.path)
	if err != nil {
		return
	}
	w.mu.Lock()
	changed := st.ModTime().After(w.lastMtime)
	w.mu.Unlock()
	if changed {
		w.reload()
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.Printf("[Config] reload failed, keeping previous: %v", err)
		return
	}
	if st, err := os.Stat(w.path); err == nil {
		w.mu.Lock()
		w.lastMtime = st.ModTime()
		w.mu.Unlock()
	}
	log.Printf("[Config] reloaded %s", w.path)
	w.onChange(cfg)
}
