package storage

import (
	"brokerCtl/internal/model"
)

func (s *Store) ListByState(state string) ([]model.Outcome, error) {
	statement := `select ` + outcomeColumns + ` from tasks where state = ? order by created_at asc`
	rows, err := s.Db.Query(statement, state)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []model.Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, *o)
	}
	return outcomes, rows.Err()
}

// state -> count
func (s *Store) GetStats() (map[string]int, error) {
	statement := `select state, count(*) from tasks group by state;`

	rows, err := s.Db.Query(statement)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stateMap := make(map[string]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stateMap[state] = count
	}
	return stateMap, rows.Err()
}
