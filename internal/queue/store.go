package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/crewkit/engine/internal/storage"
)

// Kind names which descriptor a Job.Descriptor JSON blob unmarshals into.
type Kind string

const (
	KindCrew Kind = "crew"
	KindFlow Kind = "flow"
)

// Status is the lifecycle state of a Job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job is a durable queue row: a kind-tagged descriptor plus lifecycle
// bookkeeping. Descriptor carries the raw JSON so the store does not need
// to know CrewDescriptor/FlowDescriptor shapes.
type Job struct {
	ID         string
	Kind       Kind
	Descriptor json.RawMessage
	Status     Status
	Result     string
	Error      string
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// Store persists Job rows over the shared storage.DB handle.
type Store struct {
	db     *sql.DB
	driver storage.Driver
}

// NewStore constructs a Store bound to db.
func NewStore(db *sql.DB, driver storage.Driver) *Store {
	return &Store{db: db, driver: driver}
}

func (s *Store) q(query string) string { return storage.Rebind(s.driver, query) }

// Enqueue inserts a new queued job and returns its generated id.
func (s *Store) Enqueue(ctx context.Context, kind Kind, descriptor any) (string, error) {
	body, err := json.Marshal(descriptor)
	if err != nil {
		return "", fmt.Errorf("queue: marshal descriptor: %w", err)
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO jobs (id, kind, descriptor, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`), id, string(kind), string(body), string(StatusQueued), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("queue: enqueue: %w", err)
	}
	return id, nil
}

// Claim atomically moves the oldest queued job to running and returns it.
// It returns (nil, nil) when no job is queued.
func (s *Store) Claim(ctx context.Context) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("queue: claim: begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, s.q(`
		SELECT id, kind, descriptor, status, result, error, created_at, started_at, finished_at
		FROM jobs WHERE status = ? ORDER BY created_at ASC LIMIT 1
	`), string(StatusQueued))
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: claim: select: %w", err)
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, s.q(`
		UPDATE jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?
	`), string(StatusRunning), now, job.ID, string(StatusQueued))
	if err != nil {
		return nil, fmt.Errorf("queue: claim: update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("queue: claim: rows affected: %w", err)
	}
	if affected == 0 {
		// lost a race with another worker; caller should try again
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("queue: claim: commit: %w", err)
	}
	job.Status = StatusRunning
	job.StartedAt = &now
	return job, nil
}

// Complete records a successful result.
func (s *Store) Complete(ctx context.Context, id, result string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE jobs SET status = ?, result = ?, finished_at = ? WHERE id = ?
	`), string(StatusSucceeded), result, now, id)
	if err != nil {
		return fmt.Errorf("queue: complete: %w", err)
	}
	return nil
}

// Fail records a failed result.
func (s *Store) Fail(ctx context.Context, id, reason string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE jobs SET status = ?, error = ?, finished_at = ? WHERE id = ?
	`), string(StatusFailed), reason, now, id)
	if err != nil {
		return fmt.Errorf("queue: fail: %w", err)
	}
	return nil
}

// Get returns a job by id, or (nil, nil) if it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, kind, descriptor, status, result, error, created_at, started_at, finished_at
		FROM jobs WHERE id = ?
	`), id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: get: %w", err)
	}
	return job, nil
}

type jobScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner jobScanner) (*Job, error) {
	var (
		job        Job
		kind       string
		status     string
		descriptor string
		result     sql.NullString
		errMsg     sql.NullString
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	if err := scanner.Scan(&job.ID, &kind, &descriptor, &status, &result, &errMsg, &job.CreatedAt, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	job.Kind = Kind(kind)
	job.Status = Status(status)
	job.Descriptor = json.RawMessage(descriptor)
	if result.Valid {
		job.Result = result.String
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	return &job, nil
}
