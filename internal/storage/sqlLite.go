package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"brokerCtl/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("task not found")

type Store struct {
	Db *sql.DB
}

func (s *Store) Init() error {
	createTaskTable := `create table if not exists tasks(
		id text primary key,
		command text not null,
		descriptor text not null,
		state text not null default 'pending',
		attempts integer not null default 0,
		exit_code integer not null default 0,
		duration_ms integer not null default 0,
		message text,
		created_at DATETIME not null,
		updated_at DATETIME not null
	);`
	if _, err := s.Db.Exec(createTaskTable); err != nil {
		return err
	}
	_, err := s.Db.Exec(`create index if not exists tasks_state on tasks(state);`)
	return err
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// Outcomes arrive from several callback goroutines; one connection keeps
	// sqlite from returning "database is locked".
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	store := &Store{
		Db: db,
	}
	if err := store.Init(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.Db.Close()
}

// RecordOutcome inserts or replaces the history row for o.ID, keeping the
// first created_at.
func (s *Store) RecordOutcome(o model.Outcome) error {
	descriptor, err := json.Marshal(o.Descriptor.Normalize())
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	statement := `insert into tasks (
		id, command, descriptor, state, attempts, exit_code, duration_ms, message, created_at, updated_at
		) values (?,?,?,?,?,?,?,?,?,?)
		on conflict(id) do update set
			command = excluded.command,
			descriptor = excluded.descriptor,
			state = excluded.state,
			attempts = excluded.attempts,
			exit_code = excluded.exit_code,
			duration_ms = excluded.duration_ms,
			message = excluded.message,
			updated_at = excluded.updated_at;`
	_, err = s.Db.Exec(statement,
		o.ID,
		o.Descriptor.CommandLine(),
		string(descriptor),
		o.State,
		o.Attempts,
		o.ExitCode,
		o.Duration.Milliseconds(),
		o.Message,
		o.CreatedAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("record outcome %s: %w", o.ID, err)
	}
	return nil
}

func (s *Store) GetTask(id string) (*model.Outcome, error) {
	row := s.Db.QueryRow(`select `+outcomeColumns+` from tasks where id = ?`, id)
	o, err := scanOutcome(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return o, nil
}

const outcomeColumns = `id, descriptor, state, attempts, exit_code, duration_ms, message, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanOutcome(row scanner) (*model.Outcome, error) {
	var o model.Outcome
	var descriptor string
	var durationMs int64
	var message sql.NullString
	if err := row.Scan(
		&o.ID,
		&descriptor,
		&o.State,
		&o.Attempts,
		&o.ExitCode,
		&durationMs,
		&message,
		&o.CreatedAt,
		&o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(descriptor), &o.Descriptor); err != nil {
		return nil, fmt.Errorf("parse descriptor for %s: %w", o.ID, err)
	}
	o.Descriptor = o.Descriptor.Normalize()
	o.Duration = time.Duration(durationMs) * time.Millisecond
	if message.Valid {
		o.Message = message.String
	}
	return &o, nil
}
