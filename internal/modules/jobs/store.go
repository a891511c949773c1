package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nextconvert/cutstudio/internal/modules/pipeline"
	"github.com/nextconvert/cutstudio/internal/shared/database"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrSessionBusy = errors.New("session already has a job in progress")
	ErrJobFinished = errors.New("job has already finished")
)

// Record is a job as persisted and returned by the API
type Record struct {
	ID         string           `json:"id"`
	SessionID  string           `json:"-"`
	Kind       pipeline.JobKind `json:"kind"`
	Spec       Spec             `json:"spec"`
	Status     pipeline.Status  `json:"status"`
	Progress   float64          `json:"progress"`
	Outputs    []string         `json:"outputs"`
	Published  []string         `json:"published,omitempty"`
	Kept       []string         `json:"kept,omitempty"`
	Warnings   []string         `json:"warnings,omitempty"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	StartedAt  *time.Time       `json:"startedAt,omitempty"`
	FinishedAt *time.Time       `json:"finishedAt,omitempty"`
}

// Active reports whether the job is queued or running
func (r *Record) Active() bool {
	return !r.Status.Terminal()
}

// Store persists job records
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*Record, error)
	UpdateRun(ctx context.Context, id string, run pipeline.JobRun) error
	UpdateProgress(ctx context.Context, id string, percent float64) error
	SetPublished(ctx context.Context, id string, keys []string) error
	Delete(ctx context.Context, id string) error
}

// PostgresStore keeps job records in the jobs table
type PostgresStore struct {
	db *database.Postgres
}

// NewPostgresStore creates a store on db
func NewPostgresStore(db *database.Postgres) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectColumns = `
	SELECT id, session_id, kind, spec, phase, stage_index, stage_kind, description, progress,
	       final_path, outputs, kept, published, warnings, error, created_at, started_at, finished_at
	FROM jobs`

// Create inserts rec in the idle phase. A session may own one unfinished job.
func (s *PostgresStore) Create(ctx context.Context, rec *Record) error {
	specJSON, err := json.Marshal(rec.Spec)
	if err != nil {
		return fmt.Errorf("encode job spec: %w", err)
	}

	err = s.db.Pool.QueryRow(ctx, `
		INSERT INTO jobs (id, session_id, kind, spec, phase)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, rec.ID, rec.SessionID, string(rec.Kind), specJSON, string(pipeline.PhaseIdle)).Scan(&rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSessionBusy
		}
		return fmt.Errorf("insert job: %w", err)
	}
	rec.Status = pipeline.Status{Phase: pipeline.PhaseIdle}
	return nil
}

// Get loads one record
func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.Pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	return rec, err
}

// ListBySession returns the session's most recent jobs, newest first
func (s *PostgresStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]*Record, error) {
	rows, err := s.db.Pool.Query(ctx, selectColumns+`
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpdateRun mirrors an orchestrator snapshot into the record. Intermediates
// still on disk are recorded as kept so a failed run can be inspected.
func (s *PostgresStore) UpdateRun(ctx context.Context, id string, run pipeline.JobRun) error {
	outputs, _ := json.Marshal(nonNil(run.Outputs()))
	kept, _ := json.Marshal(nonNil(run.Kept()))
	warnings, _ := json.Marshal(nonNil(run.Warnings))

	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE jobs SET
			phase = $2, stage_index = $3, stage_kind = $4, description = $5, progress = $6,
			final_path = $7, outputs = $8, warnings = $9, error = $10,
			started_at = COALESCE(started_at, $11), finished_at = $12, kept = $13
		WHERE id = $1
	`, id, string(run.Status.Phase), run.Status.StageIndex, string(run.Status.StageKind),
		run.Status.Description, run.Progress, run.Status.FinalPath, outputs, warnings,
		run.Status.Reason, nullTime(run.StartedAt), nullTime(run.FinishedAt), kept)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// UpdateProgress stores the current stage percentage
func (s *PostgresStore) UpdateProgress(ctx context.Context, id string, percent float64) error {
	_, err := s.db.Pool.Exec(ctx, `UPDATE jobs SET progress = $2 WHERE id = $1`, id, percent)
	return err
}

// SetPublished records the object storage keys of the final artifacts
func (s *PostgresStore) SetPublished(ctx context.Context, id string, keys []string) error {
	data, _ := json.Marshal(nonNil(keys))
	_, err := s.db.Pool.Exec(ctx, `UPDATE jobs SET published = $2 WHERE id = $1`, id, data)
	return err
}

// Delete removes a record
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var kind, phase, stageKind string
	var specJSON, outputsJSON, keptJSON, publishedJSON, warningsJSON []byte

	err := row.Scan(
		&rec.ID, &rec.SessionID, &kind, &specJSON, &phase, &rec.Status.StageIndex, &stageKind,
		&rec.Status.Description, &rec.Progress, &rec.Status.FinalPath, &outputsJSON,
		&keptJSON, &publishedJSON, &warningsJSON, &rec.Error, &rec.CreatedAt, &rec.StartedAt, &rec.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Kind = pipeline.JobKind(kind)
	rec.Status.Phase = pipeline.Phase(phase)
	rec.Status.StageKind = pipeline.StageKind(stageKind)
	rec.Status.Reason = rec.Error

	if err := json.Unmarshal(specJSON, &rec.Spec); err != nil {
		return nil, fmt.Errorf("decode job spec: %w", err)
	}
	json.Unmarshal(outputsJSON, &rec.Outputs)
	json.Unmarshal(keptJSON, &rec.Kept)
	json.Unmarshal(publishedJSON, &rec.Published)
	json.Unmarshal(warningsJSON, &rec.Warnings)

	return &rec, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
