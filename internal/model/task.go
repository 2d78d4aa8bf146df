package model

import (
	"strings"
	"time"
)

// History states for a task chain. Completed, failed, canceled and timeout
// follow a terminal event. Rejected chains never started; aborted chains
// started at least once and then ended on an internal error (a spawn failure
// or a shutdown during retry backoff). Interrupted chains were still running
// when their host stopped waiting for them.
const (
	StatePending     = "pending"
	StateRejected    = "rejected"
	StateCompleted   = "completed"
	StateFailed      = "failed"
	StateCanceled    = "canceled"
	StateTimeout     = "timeout"
	StateAborted     = "aborted"
	StateInterrupted = "interrupted"
)

// TaskDescriptor describes one command to run. Callers treat it as immutable
// once handed to the broker.
type TaskDescriptor struct {
	ID      string            `json:"id" yaml:"id"`
	Command []string          `json:"command" yaml:"command"`
	WorkDir string            `json:"workdir,omitempty" yaml:"workdir,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	// Timeout of zero falls back to the broker default; negative disables it.
	Timeout time.Duration `json:"-" yaml:"-"`
	LogPath string        `json:"log_path,omitempty" yaml:"log_path,omitempty"`

	TimeoutSeconds float64 `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// Normalize keeps Timeout and TimeoutSeconds in agreement so a descriptor
// survives a round trip through JSON or YAML.
func (d TaskDescriptor) Normalize() TaskDescriptor {
	switch {
	case d.Timeout == 0 && d.TimeoutSeconds != 0:
		d.Timeout = Seconds(d.TimeoutSeconds)
	case d.Timeout != 0:
		d.TimeoutSeconds = d.Timeout.Seconds()
	}
	return d
}

// Clone returns a copy that shares no slices or maps with d.
func (d TaskDescriptor) Clone() TaskDescriptor {
	out := d
	out.Command = append([]string(nil), d.Command...)
	if d.Env != nil {
		out.Env = make(map[string]string, len(d.Env))
		for k, v := range d.Env {
			out.Env[k] = v
		}
	}
	return out
}

func (d TaskDescriptor) CommandLine() string {
	return strings.Join(d.Command, " ")
}

// Seconds converts a fractional second count to a duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
