package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/RezaEskandarii/quirrel/types"
)

// PostgresCronJobStore keeps recurring jobs in pg_cron. Each entry's command calls
// pg_net, so deliveries happen inside the database even while no instance is running.
// Ownership lives in a side table since cron.job has no room for it.
type PostgresCronJobStore struct {
	db *sql.DB
}

func NewPostgresCronJobStore(db *sql.DB) *PostgresCronJobStore {
	return &PostgresCronJobStore{db: db}
}

const selectCronEntry = `
	SELECT j.jobid, j.jobname, j.schedule, j.command, j.active,
	       COALESCE(o.owner, ''), COALESCE(o.route, ''), o.created_at, COALESCE(o.fired, 0)
	FROM cron.job j
	LEFT JOIN quirrel_schema.cron_owners o ON o.name = j.jobname`

func (r *PostgresCronJobStore) Schedule(ctx context.Context, entry types.CronEntry) (int64, error) {
	headers, meta, err := commandHeaders(entry.Action)
	if err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	// serializes concurrent replaces of the same name until commit
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, entry.Name); err != nil {
		return 0, fmt.Errorf("failed to lock cron job %s: %w", entry.Name, err)
	}

	if _, err := tx.ExecContext(ctx, `SELECT cron.unschedule(jobid) FROM cron.job WHERE jobname = $1`, entry.Name); err != nil {
		return 0, fmt.Errorf("failed to unschedule cron job %s: %w", entry.Name, err)
	}

	var jobID int64
	err = tx.QueryRowContext(ctx, `SELECT cron.schedule($1, $2, `+httpPostCommand+`)`,
		entry.Name,
		entry.Expression,
		entry.Action.URL,
		entry.Action.Body,
		headers,
		meta,
	).Scan(&jobID)
	if err != nil {
		return 0, fmt.Errorf("failed to schedule cron job %s: %w", entry.Name, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO quirrel_schema.cron_owners (name, owner, route, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name) DO UPDATE SET
			owner = EXCLUDED.owner,
			route = EXCLUDED.route,
			created_at = now(),
			fired = 0
	`, entry.Name, entry.Owner, entry.Route)
	if err != nil {
		return 0, fmt.Errorf("failed to record cron job owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return jobID, nil
}

func (r *PostgresCronJobStore) FindByName(ctx context.Context, name string) (*types.CronEntry, error) {
	row := r.db.QueryRowContext(ctx, selectCronEntry+` WHERE j.jobname = $1`, name)
	entry, err := scanCronEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *PostgresCronJobStore) List(ctx context.Context, owner string, page int, pageSize int) (*types.PaginationResult[types.CronEntry], error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	where := ` WHERE j.jobname LIKE 'cron-job:%' AND ($1 = '' OR o.owner = $1)`

	var totalItems int
	countQuery := `SELECT COUNT(*) FROM cron.job j LEFT JOIN quirrel_schema.cron_owners o ON o.name = j.jobname` + where
	if err := r.db.QueryRowContext(ctx, countQuery, owner).Scan(&totalItems); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, selectCronEntry+where+` ORDER BY j.jobid LIMIT $2 OFFSET $3`, owner, pageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []types.CronEntry
	for rows.Next() {
		entry, err := scanCronEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return types.NewPaginationResult(entries, totalItems, page, pageSize), nil
}

func (r *PostgresCronJobStore) Unschedule(ctx context.Context, name string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, name); err != nil {
		return false, fmt.Errorf("failed to lock cron job %s: %w", name, err)
	}

	res, err := tx.ExecContext(ctx, `SELECT cron.unschedule(jobid) FROM cron.job WHERE jobname = $1`, name)
	if err != nil {
		return false, fmt.Errorf("failed to unschedule cron job %s: %w", name, err)
	}
	affected, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, `DELETE FROM quirrel_schema.cron_owners WHERE name = $1`, name); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *PostgresCronJobStore) UnscheduleAll(ctx context.Context, owner string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		SELECT cron.unschedule(j.jobid)
		FROM cron.job j
		JOIN quirrel_schema.cron_owners o ON o.name = j.jobname
		WHERE o.owner = $1
	`, owner)
	if err != nil {
		return 0, fmt.Errorf("failed to unschedule cron jobs of %s: %w", owner, err)
	}
	affected, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, `DELETE FROM quirrel_schema.cron_owners WHERE owner = $1`, owner); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (r *PostgresCronJobStore) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCronEntry(row rowScanner) (*types.CronEntry, error) {
	var (
		entry     types.CronEntry
		command   string
		createdAt sql.NullTime
		fired     int
	)
	err := row.Scan(
		&entry.ID, &entry.Name, &entry.Expression, &command, &entry.Active,
		&entry.Owner, &entry.Route, &createdAt, &fired,
	)
	if err != nil {
		return nil, err
	}

	action, err := parseCommand(command)
	if err != nil {
		return nil, fmt.Errorf("cron job %s: %w", entry.Name, err)
	}
	// the next run sends fired+1
	if entry.Action, err = action.WithMetaCount(fired + 1); err != nil {
		return nil, fmt.Errorf("cron job %s: %w", entry.Name, err)
	}

	if entry.Route == "" {
		entry.Route = strings.TrimPrefix(entry.Name, "cron-job:")
	}
	if createdAt.Valid {
		entry.CreatedAt = createdAt.Time
	}
	return &entry, nil
}
