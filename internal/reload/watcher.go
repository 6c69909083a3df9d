// Package reload restarts the module graph when the configuration file
// changes on disk or the process receives SIGHUP.
package reload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"time"
)

// DefaultPollInterval is used when NewWatcher is given a non-positive
// interval.
const DefaultPollInterval = 5 * time.Second

// Event reports new content in the watched file.
type Event struct {
	ConfigPath string

	// Digest is the hex SHA-256 of the new content.
	Digest string
}

// Watcher polls a configuration file and reports content changes.
//
// A change is reported once its digest has been seen on two consecutive
// polls, so an editor that writes the file in several steps produces one
// event for the final content rather than one per step. A touch, or a save
// of identical bytes, produces nothing.
type Watcher struct {
	path     string
	interval time.Duration
	events   chan Event
}

// NewWatcher creates a watcher for path. Nothing happens until Run.
func NewWatcher(path string, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{path: path, interval: interval, events: make(chan Event, 1)}
}

// Events delivers changes. Only the newest undelivered event is kept. The
// channel is closed when Run returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run polls until ctx is done. A missing or unreadable file is not an
// error; the watcher waits for it to come back.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.events)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	reported, _ := Digest(w.path)
	lastStat, _ := stamp(w.path)
	var pending string

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		st, err := stamp(w.path)
		if err != nil {
			pending = ""
			continue
		}
		if st == lastStat && pending == "" {
			continue
		}
		lastStat = st

		digest, err := Digest(w.path)
		switch {
		case err != nil, digest == reported:
			pending = ""
		case digest != pending:
			pending = digest
		default:
			reported, pending = digest, ""
			w.publish(Event{ConfigPath: w.path, Digest: digest})
		}
	}
}

// publish replaces any undelivered event with ev.
func (w *Watcher) publish(ev Event) {
	select {
	case w.events <- ev:
		return
	default:
	}
	select {
	case <-w.events:
	default:
	}
	select {
	case w.events <- ev:
	default:
	}
}

type fileStamp struct {
	mod  time.Time
	size int64
}

func stamp(path string) (fileStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, err
	}
	return fileStamp{mod: info.ModTime(), size: info.Size()}, nil
}

// Digest returns the hex SHA-256 of the file at path.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
