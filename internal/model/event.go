package model

import (
	"fmt"
	"strings"
	"time"
)

type EventKind string

const (
	KindStarted       EventKind = "started"
	KindStdout        EventKind = "stdout"
	KindStderr        EventKind = "stderr"
	KindFinished      EventKind = "finished"
	KindFailed        EventKind = "failed"
	KindCanceled      EventKind = "canceled"
	KindTimeout       EventKind = "timeout"
	KindRetrying      EventKind = "retrying"
	KindInternalError EventKind = "internal_error"
)

// TaskEvent is the closed set of events the broker emits. Only the types in
// this file implement it.
type TaskEvent interface {
	TaskID() string
	Kind() EventKind
	String() string
	isTaskEvent()
}

type Started struct {
	ID      string
	Command []string
	WorkDir string
}

type Stdout struct {
	ID   string
	Line string
}

type Stderr struct {
	ID   string
	Line string
}

type Finished struct {
	ID       string
	ExitCode int
	Duration time.Duration
}

type Failed struct {
	ID       string
	ExitCode int
	Duration time.Duration
}

type Canceled struct {
	ID       string
	Duration time.Duration
}

type Timeout struct {
	ID       string
	Duration time.Duration
}

// Retrying announces that attempt Attempt will be resubmitted after Delay.
type Retrying struct {
	ID      string
	Attempt int
	Delay   time.Duration
}

// InternalError reports a task that could not be admitted or spawned.
type InternalError struct {
	ID      string
	Message string
}

func (e Started) TaskID() string       { return e.ID }
func (e Stdout) TaskID() string        { return e.ID }
func (e Stderr) TaskID() string        { return e.ID }
func (e Finished) TaskID() string      { return e.ID }
func (e Failed) TaskID() string        { return e.ID }
func (e Canceled) TaskID() string      { return e.ID }
func (e Timeout) TaskID() string       { return e.ID }
func (e Retrying) TaskID() string      { return e.ID }
func (e InternalError) TaskID() string { return e.ID }

func (Started) Kind() EventKind       { return KindStarted }
func (Stdout) Kind() EventKind        { return KindStdout }
func (Stderr) Kind() EventKind        { return KindStderr }
func (Finished) Kind() EventKind      { return KindFinished }
func (Failed) Kind() EventKind        { return KindFailed }
func (Canceled) Kind() EventKind      { return KindCanceled }
func (Timeout) Kind() EventKind       { return KindTimeout }
func (Retrying) Kind() EventKind      { return KindRetrying }
func (InternalError) Kind() EventKind { return KindInternalError }

func (Started) isTaskEvent()       {}
func (Stdout) isTaskEvent()        {}
func (Stderr) isTaskEvent()        {}
func (Finished) isTaskEvent()      {}
func (Failed) isTaskEvent()        {}
func (Canceled) isTaskEvent()      {}
func (Timeout) isTaskEvent()       {}
func (Retrying) isTaskEvent()      {}
func (InternalError) isTaskEvent() {}

func (e Started) String() string {
	dir := e.WorkDir
	if dir == "" {
		dir = "."
	}
	return fmt.Sprintf("[%s] started: %s (cwd=%s)", e.ID, strings.Join(e.Command, " "), dir)
}

func (e Stdout) String() string { return fmt.Sprintf("[%s] stdout: %s", e.ID, e.Line) }
func (e Stderr) String() string { return fmt.Sprintf("[%s] stderr: %s", e.ID, e.Line) }

func (e Finished) String() string {
	return fmt.Sprintf("[%s] finished: exit=%d duration=%s", e.ID, e.ExitCode, formatDuration(e.Duration))
}

func (e Failed) String() string {
	return fmt.Sprintf("[%s] failed: exit=%d duration=%s", e.ID, e.ExitCode, formatDuration(e.Duration))
}

func (e Canceled) String() string {
	return fmt.Sprintf("[%s] canceled: duration=%s", e.ID, formatDuration(e.Duration))
}

func (e Timeout) String() string {
	return fmt.Sprintf("[%s] timeout: duration=%s", e.ID, formatDuration(e.Duration))
}

func (e Retrying) String() string {
	return fmt.Sprintf("[%s] retrying: attempt=%d delay=%s", e.ID, e.Attempt, formatDuration(e.Delay))
}

func (e InternalError) String() string {
	return fmt.Sprintf("[%s] internal error: %s", e.ID, e.Message)
}

// IsTerminal reports whether ev ends an attempt chain.
func IsTerminal(ev TaskEvent) bool {
	switch ev.(type) {
	case Finished, Failed, Canceled, Timeout:
		return true
	}
	return false
}

// StateOf maps a terminal event to its history state. Non-terminal events
// return "".
func StateOf(ev TaskEvent) string {
	switch ev.(type) {
	case Finished:
		return StateCompleted
	case Failed:
		return StateFailed
	case Canceled:
		return StateCanceled
	case Timeout:
		return StateTimeout
	}
	return ""
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}
