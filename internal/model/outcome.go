package model

import "time"

// Outcome is the recorded end of one task chain.
type Outcome struct {
	ID         string         `json:"id"`
	Descriptor TaskDescriptor `json:"descriptor"`
	State      string         `json:"state"`
	// Attempts counts every spawn issued for the chain, retries included.
	Attempts  int           `json:"attempts"`
	ExitCode  int           `json:"exit_code"`
	Duration  time.Duration `json:"duration"`
	Message   string        `json:"message,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// IsDead reports whether the outcome belongs in the dead letter queue.
func (o Outcome) IsDead() bool {
	return o.State == StateFailed || o.State == StateTimeout || o.State == StateAborted
}
