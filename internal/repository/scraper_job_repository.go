package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"notebook-scout/internal/database"
	"notebook-scout/internal/domain/scraperjob"

	"github.com/google/uuid"
)

var ErrScraperJobNotFound = errors.New("scraper job not found")

// ScraperJobRepository persists the job lifecycle. Create, MarkRunning,
// SaveProgress and Finish back the orchestrator; the rest serve the API and
// startup recovery.
type ScraperJobRepository interface {
	Create(ctx context.Context, job scraperjob.Job) error
	MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	SaveProgress(ctx context.Context, id uuid.UUID, counters scraperjob.Counters, p scraperjob.Progress) error
	Finish(ctx context.Context, job scraperjob.Job) error
	Get(ctx context.Context, id uuid.UUID) (scraperjob.Job, error)
	List(ctx context.Context, status scraperjob.Status, limit, offset int) ([]scraperjob.Job, int, error)
	MarkStaleRunning(ctx context.Context, reason string, at time.Time) (int64, error)
	LatestRequestedAt(ctx context.Context) (*time.Time, error)
}

type PostgresScraperJobRepository struct {
	db database.DB
}

func NewPostgresScraperJobRepository(db database.DB) *PostgresScraperJobRepository {
	return &PostgresScraperJobRepository{db: db}
}

const scraperJobColumns = `id, status, parameters, pages_scraped, pages_failed, listings_found,
	listings_new, listings_updated, error_summary, progress_json, requested_at, started_at, completed_at`

func scanScraperJob(row database.Row) (scraperjob.Job, error) {
	var j scraperjob.Job
	var params, progress []byte
	if err := row.Scan(
		&j.ID, &j.Status, &params,
		&j.Counters.PagesScraped, &j.Counters.PagesFailed, &j.Counters.ListingsFound,
		&j.Counters.ListingsNew, &j.Counters.ListingsUpdated,
		&j.ErrorSummary, &progress, &j.RequestedAt, &j.StartedAt, &j.CompletedAt,
	); err != nil {
		return scraperjob.Job{}, err
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &j.Params); err != nil {
			return scraperjob.Job{}, fmt.Errorf("decode job parameters: %w", err)
		}
	}
	if len(progress) > 0 {
		var p scraperjob.Progress
		if err := json.Unmarshal(progress, &p); err != nil {
			return scraperjob.Job{}, fmt.Errorf("decode job progress: %w", err)
		}
		j.Progress = &p
	}
	return j, nil
}

func (r *PostgresScraperJobRepository) Create(ctx context.Context, job scraperjob.Job) error {
	params, err := json.Marshal(job.Params)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO scraper_jobs (id, status, parameters, requested_at) VALUES ($1, $2, $3, $4)`,
		job.ID, job.Status, params, job.RequestedAt,
	)
	if err != nil {
		return fmt.Errorf("create scraper job: %w", err)
	}
	return nil
}

func (r *PostgresScraperJobRepository) MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	n, err := r.db.Exec(ctx,
		`UPDATE scraper_jobs SET status = $2, started_at = $3 WHERE id = $1 AND status = $4`,
		id, scraperjob.StatusRunning, startedAt, scraperjob.StatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark scraper job running: %w", err)
	}
	if n == 0 {
		return ErrScraperJobNotFound
	}
	return nil
}

func (r *PostgresScraperJobRepository) SaveProgress(ctx context.Context, id uuid.UUID, c scraperjob.Counters, p scraperjob.Progress) error {
	progress, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`UPDATE scraper_jobs SET
			pages_scraped = $2, pages_failed = $3, listings_found = $4,
			listings_new = $5, listings_updated = $6, progress_json = $7
		 WHERE id = $1`,
		id, c.PagesScraped, c.PagesFailed, c.ListingsFound, c.ListingsNew, c.ListingsUpdated, progress,
	)
	if err != nil {
		return fmt.Errorf("save scraper job progress: %w", err)
	}
	return nil
}

// Finish writes the terminal state. A job that already reached a terminal
// state is left alone.
func (r *PostgresScraperJobRepository) Finish(ctx context.Context, job scraperjob.Job) error {
	var progress []byte
	if job.Progress != nil {
		b, err := json.Marshal(job.Progress)
		if err != nil {
			return err
		}
		progress = b
	}
	c := job.Counters
	_, err := r.db.Exec(ctx,
		`UPDATE scraper_jobs SET
			status = $2,
			pages_scraped = $3, pages_failed = $4, listings_found = $5,
			listings_new = $6, listings_updated = $7,
			error_summary = $8,
			progress_json = COALESCE($9, progress_json),
			started_at = COALESCE(started_at, $10),
			completed_at = $11
		 WHERE id = $1 AND status IN ('pending', 'running')`,
		job.ID, job.Status,
		c.PagesScraped, c.PagesFailed, c.ListingsFound, c.ListingsNew, c.ListingsUpdated,
		job.ErrorSummary, progress, job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("finish scraper job: %w", err)
	}
	return nil
}

func (r *PostgresScraperJobRepository) Get(ctx context.Context, id uuid.UUID) (scraperjob.Job, error) {
	j, err := scanScraperJob(r.db.QueryRow(ctx, `SELECT `+scraperJobColumns+` FROM scraper_jobs WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return scraperjob.Job{}, ErrScraperJobNotFound
		}
		return scraperjob.Job{}, err
	}
	return j, nil
}

func (r *PostgresScraperJobRepository) List(ctx context.Context, status scraperjob.Status, limit, offset int) ([]scraperjob.Job, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	args := []any{}
	if status != "" {
		where = ` WHERE status = $1`
		args = append(args, status)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(1) FROM scraper_jobs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.db.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM scraper_jobs%s ORDER BY requested_at DESC LIMIT $%d OFFSET $%d`,
			scraperJobColumns, where, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]scraperjob.Job, 0)
	for rows.Next() {
		j, err := scanScraperJob(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// MarkStaleRunning fails jobs left pending or running by a previous process.
func (r *PostgresScraperJobRepository) MarkStaleRunning(ctx context.Context, reason string, at time.Time) (int64, error) {
	n, err := r.db.Exec(ctx,
		`UPDATE scraper_jobs
		 SET status = 'failed', error_summary = $1, completed_at = $2
		 WHERE status IN ('pending', 'running')`,
		reason, at,
	)
	if err != nil {
		return 0, fmt.Errorf("mark stale scraper jobs: %w", err)
	}
	return n, nil
}

func (r *PostgresScraperJobRepository) LatestRequestedAt(ctx context.Context) (*time.Time, error) {
	var t *time.Time
	if err := r.db.QueryRow(ctx, `SELECT MAX(requested_at) FROM scraper_jobs`).Scan(&t); err != nil {
		return nil, err
	}
	return t, nil
}
