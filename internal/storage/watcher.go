package storage

import (
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/handiism/music-parser/internal/logging"
)

// Watcher pokes subscribers whenever a file appears or changes in the
// cache directory. Pollers use it to re-check early; it never replaces
// polling.
type Watcher struct {
	fw     *fsnotify.Watcher
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[int]chan struct{}
	nextID int
	done   chan struct{}
	once   sync.Once
}

// Watch starts watching the cache directory.
func (c *Cache) Watch() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(c.dir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		fw:     fw,
		logger: c.logger,
		subs:   make(map[int]chan struct{}),
		done:   make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Subscribe returns a channel that receives a value after filesystem
// activity, and a function that cancels the subscription.
func (w *Watcher) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.subs[id] = ch
	w.mu.Unlock()

	return ch, func() {
		w.mu.Lock()
		delete(w.subs, id)
		w.mu.Unlock()
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		err = w.fw.Close()
		<-w.done
	})
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Write) {
				w.broadcast()
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Debug("watcher error", logging.Error(err))
		}
	}
}

func (w *Watcher) broadcast() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
