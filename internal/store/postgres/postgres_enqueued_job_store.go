package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/RezaEskandarii/quirrel/internal/state"
	"github.com/RezaEskandarii/quirrel/types"
)

// PostgresEnqueuedJobStore keeps timer jobs in quirrel_schema.jobs, one row per derived
// name.
type PostgresEnqueuedJobStore struct {
	db *sql.DB
}

func NewPostgresEnqueuedJobStore(db *sql.DB) *PostgresEnqueuedJobStore {
	return &PostgresEnqueuedJobStore{db: db}
}

const jobColumns = `id, name, job_id, route, owner, endpoint, headers, body, kind, delay_ms,
	run_at, every_ms, times, retry, exclusive, count, status`

const insertJob = `
	INSERT INTO quirrel_schema.jobs (
		name, job_id, route, owner, endpoint, headers, body, kind, delay_ms,
		run_at, every_ms, times, retry, exclusive, count, status, created_at, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, now(), now())`

func (r *PostgresEnqueuedJobStore) Insert(ctx context.Context, job types.Job, override bool) (*types.Job, error) {
	headers, err := json.Marshal(job.Headers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal headers: %w", err)
	}
	retry := job.Schedule.Retry
	if retry == nil {
		retry = []int64{}
	}
	retryJSON, err := json.Marshal(retry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal retry: %w", err)
	}
	if job.Count < 1 {
		job.Count = 1
	}

	query := insertJob + ` ON CONFLICT (name) DO NOTHING RETURNING ` + jobColumns
	if override {
		query = insertJob + `
		ON CONFLICT (name) DO UPDATE SET
			job_id = EXCLUDED.job_id,
			route = EXCLUDED.route,
			owner = EXCLUDED.owner,
			endpoint = EXCLUDED.endpoint,
			headers = EXCLUDED.headers,
			body = EXCLUDED.body,
			kind = EXCLUDED.kind,
			delay_ms = EXCLUDED.delay_ms,
			run_at = EXCLUDED.run_at,
			every_ms = EXCLUDED.every_ms,
			times = EXCLUDED.times,
			retry = EXCLUDED.retry,
			exclusive = EXCLUDED.exclusive,
			count = EXCLUDED.count,
			status = EXCLUDED.status,
			locked_by = NULL,
			locked_at = NULL,
			updated_at = now()
		RETURNING ` + jobColumns
	}

	row := r.db.QueryRowContext(ctx, query,
		job.Name,
		job.ID,
		job.Route,
		job.Owner,
		job.Endpoint,
		string(headers),
		job.Body,
		job.Schedule.Kind,
		job.Schedule.DelayMs,
		job.RunAt,
		job.Schedule.EveryMs,
		job.Schedule.Times,
		string(retryJSON),
		job.Exclusive,
		job.Count,
		state.StatusQueued,
	)
	inserted, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		// a live job already holds the name
		existing, err := r.FindByName(ctx, job.Name)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("job %s vanished during insert", job.Name)
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert job %s: %w", job.Name, err)
	}
	return inserted, nil
}

func (r *PostgresEnqueuedJobStore) FindByName(ctx context.Context, name string) (*types.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM quirrel_schema.jobs WHERE name = $1`, name)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find job %s: %w", name, err)
	}
	return job, nil
}

func (r *PostgresEnqueuedJobStore) ListByRoute(ctx context.Context, route string, page int, pageSize int) (*types.PaginationResult[types.Job], error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	var totalItems int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM quirrel_schema.jobs WHERE ($1 = '' OR route = $1)`, route,
	).Scan(&totalItems)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM quirrel_schema.jobs
		WHERE ($1 = '' OR route = $1)
		ORDER BY run_at ASC, id ASC
		LIMIT $2 OFFSET $3`, route, pageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}
	return types.NewPaginationResult(jobs, totalItems, page, pageSize), nil
}

func (r *PostgresEnqueuedJobStore) DeleteByName(ctx context.Context, name string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM quirrel_schema.jobs WHERE name = $1`, name)
	if err != nil {
		return false, fmt.Errorf("failed to delete job %s: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *PostgresEnqueuedJobStore) DeleteAll(ctx context.Context, owner string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM quirrel_schema.jobs WHERE owner = $1`, owner)
	if err != nil {
		return 0, fmt.Errorf("failed to delete jobs of %s: %w", owner, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (r *PostgresEnqueuedJobStore) FetchDueJobs(ctx context.Context, now time.Time, limit int) ([]types.Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM quirrel_schema.jobs
		WHERE status IN ($1, $2) AND run_at <= $3
		ORDER BY run_at ASC
		LIMIT $4`, state.StatusQueued, state.StatusRetrying, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (r *PostgresEnqueuedJobStore) LockJob(ctx context.Context, name string, lockedBy string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE quirrel_schema.jobs
		SET locked_at = NOW(),
		    locked_by = $1,
		    status = $2
		WHERE name = $3 AND (status = $4 OR status = $5)
	`, lockedBy, state.StatusProcessing, name, state.StatusQueued, state.StatusRetrying)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (r *PostgresEnqueuedJobStore) Reschedule(ctx context.Context, name string, lockedBy string, runAt time.Time, count int, status state.JobStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE quirrel_schema.jobs
		SET run_at = $1,
		    count = $2,
		    status = $3,
		    locked_by = NULL,
		    locked_at = NULL,
		    updated_at = now()
		WHERE name = $4 AND locked_by = $5
	`, runAt, count, status, name, lockedBy)
	return err
}

func (r *PostgresEnqueuedJobStore) MakeDue(ctx context.Context, name string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE quirrel_schema.jobs
		SET run_at = $1, updated_at = now()
		WHERE name = $2 AND (status = $3 OR status = $4)
	`, now, name, state.StatusQueued, state.StatusRetrying)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (r *PostgresEnqueuedJobStore) Complete(ctx context.Context, name string, lockedBy string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM quirrel_schema.jobs WHERE name = $1 AND locked_by = $2`, name, lockedBy)
	return err
}

func (r *PostgresEnqueuedJobStore) UnlockStaleJobs(ctx context.Context, timeout time.Duration) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE quirrel_schema.jobs
		SET status = $1,
		    locked_by = NULL,
		    locked_at = NULL
		WHERE status = $2 AND locked_at < $3
	`, state.StatusQueued, state.StatusProcessing, time.Now().Add(-timeout))
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func (r *PostgresEnqueuedJobStore) CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) AS count
		FROM quirrel_schema.jobs
		GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[state.JobStatus]int)
	for rows.Next() {
		var status state.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		result[status] = count
	}

	for _, status := range state.AllStatuses {
		if _, ok := result[status]; !ok {
			result[status] = 0
		}
	}

	return result, rows.Err()
}

func (r *PostgresEnqueuedJobStore) Close() error {
	return r.db.Close()
}

func scanJobs(rows *sql.Rows) ([]types.Job, error) {
	var jobs []types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanJob(row rowScanner) (*types.Job, error) {
	var (
		job     types.Job
		headers []byte
		retry   []byte
		status  state.JobStatus
	)
	err := row.Scan(
		&job.RegistryID, &job.Name, &job.ID, &job.Route, &job.Owner, &job.Endpoint,
		&headers, &job.Body, &job.Schedule.Kind, &job.Schedule.DelayMs,
		&job.RunAt, &job.Schedule.EveryMs, &job.Schedule.Times, &retry,
		&job.Exclusive, &job.Count, &status,
	)
	if err != nil {
		return nil, err
	}

	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &job.Headers); err != nil {
			return nil, fmt.Errorf("job %s headers: %w", job.Name, err)
		}
	}
	if len(retry) > 0 {
		if err := json.Unmarshal(retry, &job.Schedule.Retry); err != nil {
			return nil, fmt.Errorf("job %s retry: %w", job.Name, err)
		}
	}
	if len(job.Schedule.Retry) == 0 {
		job.Schedule.Retry = nil
	}
	job.Schedule.RunAt = job.RunAt
	job.Active = status != state.StatusProcessing
	return &job, nil
}
