package storage

import (
	"fmt"
	"sort"
	"time"

	"brokerCtl/internal/model"
)

// ListDead returns failed, timed-out and aborted outcomes, oldest first.
func (s *Store) ListDead() ([]model.Outcome, error) {
	var out []model.Outcome
	for _, state := range []string{model.StateFailed, model.StateTimeout, model.StateAborted} {
		outcomes, err := s.ListByState(state)
		if err != nil {
			return nil, err
		}
		out = append(out, outcomes...)
	}
	sortByCreated(out)
	return out, nil
}

// RetryDeadTask moves a dead task back to pending and returns the outcome it
// had, so the caller can run its descriptor again and put the row back with
// RecordOutcome if the rerun never happens.
func (s *Store) RetryDeadTask(id string) (*model.Outcome, error) {
	o, err := s.GetTask(id)
	if err != nil {
		return nil, err
	}
	if !o.IsDead() {
		return nil, fmt.Errorf("task '%s' is %s, not in the dead letter queue", id, o.State)
	}

	res, err := s.Db.Exec(`update tasks set state = ?, updated_at = ? where id = ? and state = ?`,
		model.StatePending,
		time.Now().UTC(),
		id,
		o.State,
	)
	if err != nil {
		return nil, err
	}
	rowsAffected, _ := res.RowsAffected()
	if rowsAffected == 0 {
		return nil, fmt.Errorf("task '%s' changed state while retrying", id)
	}
	return o, nil
}

func sortByCreated(outcomes []model.Outcome) {
	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].CreatedAt.Before(outcomes[j].CreatedAt)
	})
}
