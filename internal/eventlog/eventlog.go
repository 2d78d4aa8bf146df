// Package eventlog writes broker events as timestamped text lines to a
// global log and optional per-task logs, with single-generation rotation and
// mirror hooks for hosts.
package eventlog

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"brokerCtl/internal/model"
)

type Options struct {
	GlobalPath string
	// RotateBytes of zero disables rotation.
	RotateBytes int64
	LineMirror  func(line string)
	EventMirror func(ev model.TaskEvent)
	Now         func() time.Time
}

type Logger struct {
	opts    Options
	mu      sync.Mutex
	dropped atomic.Int64
}

func New(opts Options) *Logger {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Logger{opts: opts}
}

// Record formats ev and appends it to the global log and perTaskPath (when
// set), then hands the line and the raw event to the mirror hooks. Write
// failures are counted and otherwise ignored.
func (l *Logger) Record(ev model.TaskEvent, perTaskPath string) {
	if l == nil {
		return
	}
	line := FormatLine(l.opts.Now(), ev)

	l.mu.Lock()
	if l.opts.GlobalPath != "" {
		l.appendLine(l.opts.GlobalPath, line)
	}
	if perTaskPath != "" && perTaskPath != l.opts.GlobalPath {
		l.appendLine(perTaskPath, line)
	}
	l.mu.Unlock()

	if l.opts.LineMirror != nil {
		callHook("line mirror", func() { l.opts.LineMirror(line) })
	}
	if l.opts.EventMirror != nil {
		callHook("event mirror", func() { l.opts.EventMirror(ev) })
	}
}

// Dropped returns how many log writes failed since the logger was created.
func (l *Logger) Dropped() int64 {
	if l == nil {
		return 0
	}
	return l.dropped.Load()
}

func FormatLine(at time.Time, ev model.TaskEvent) string {
	return fmt.Sprintf("%s %s", at.UTC().Format(time.RFC3339Nano), ev.String())
}

// appendLine must be called with l.mu held.
func (l *Logger) appendLine(path, line string) {
	if err := l.rotateIfNeeded(path); err != nil {
		l.dropped.Add(1)
		return
	}
	if err := appendFile(path, line+"\n"); err != nil {
		l.dropped.Add(1)
	}
}

func (l *Logger) rotateIfNeeded(path string) error {
	if l.opts.RotateBytes <= 0 {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Size() < l.opts.RotateBytes {
		return nil
	}
	// os.Rename replaces an existing .1 on Unix; remove first for Windows.
	_ = os.Remove(path + ".1")
	if err := os.Rename(path, path+".1"); err != nil {
		return fmt.Errorf("rotate %s: %w", path, err)
	}
	return nil
}

func appendFile(path, data string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(data); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

func callHook(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("eventlog: %s panicked: %v", name, r)
		}
	}()
	fn()
}
