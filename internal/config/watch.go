package config

import (
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file on change and hands the caller the safe
// subset of fields that may change without restarting the listener:
// auth_method, credentials, max_users, session_timeout_sec, publish.
// Everything else in a changed file is parsed and validated but otherwise
// ignored, since the listen address and library path shape goroutines and
// state that are not safe to swap out live.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	apply   func(Safe)
	onError func(error)
	done    chan struct{}
}

// Safe is the subset of Config a live reload is allowed to change.
type Safe struct {
	AuthMethod        string
	Credentials       []Credential
	MaxUsers          int
	SessionTimeoutSec int
	Publish           bool
}

func safeSubset(c Config) Safe {
	return Safe{
		AuthMethod:        c.AuthMethod,
		Credentials:       c.Credentials,
		MaxUsers:          c.MaxUsers,
		SessionTimeoutSec: c.SessionTimeoutSec,
		Publish:           c.Publish,
	}
}

// WatchSafe starts watching path for writes, reloading and validating the
// file on each one, and invoking apply with the safe subset on success.
// onError is called (non-fatally) on read/parse/validate failures; the
// watcher keeps running so a subsequent fix to the file still applies.
func WatchSafe(path string, apply func(Safe), onError func(error)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{path: path, watcher: fw, apply: apply, onError: onError, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	var debounce *time.Timer
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		if w.onError != nil {
			w.onError(err)
		}
		return
	}
	w.apply(safeSubset(cfg))
}

// Stop releases the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	close(w.done)
	w.watcher.Close()
}
