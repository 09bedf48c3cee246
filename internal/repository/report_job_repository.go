package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/progressive-sch/progressive-api/internal/models"
)

// ReportJobRepository provides database access for asynchronous export jobs.
type ReportJobRepository struct {
	db *sqlx.DB
}

// NewReportJobRepository creates a new instance of ReportJobRepository.
func NewReportJobRepository(db *sqlx.DB) *ReportJobRepository {
	return &ReportJobRepository{db: db}
}

// Create persists a new job in QUEUED state.
func (r *ReportJobRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.ReportStatusQueued
	}

	payload, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("marshal report params: %w", err)
	}
	job.ParamsJSON = payload

	const query = `INSERT INTO report_jobs (id, params, status, progress, file_path, download_token, error, requested_by, created_at, updated_at) VALUES (:id, :params, :status, :progress, :file_path, :download_token, :error, :requested_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// FindByID returns a job by identifier with its params decoded.
func (r *ReportJobRepository) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	const query = `SELECT id, params, status, progress, file_path, download_token, error, requested_by, created_at, updated_at FROM report_jobs WHERE id = $1 LIMIT 1`
	var job models.ReportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find report job by id: %w", err)
	}
	if len(job.ParamsJSON) > 0 {
		if err := json.Unmarshal(job.ParamsJSON, &job.Params); err != nil {
			return nil, fmt.Errorf("unmarshal report params: %w", err)
		}
	}
	return &job, nil
}

// ListByRequester returns the jobs created by a user, newest first.
func (r *ReportJobRepository) ListByRequester(ctx context.Context, userID string, limit int) ([]models.ReportJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT id, params, status, progress, file_path, download_token, error, requested_by, created_at, updated_at FROM report_jobs WHERE requested_by = $1 ORDER BY created_at DESC LIMIT %d`, limit)
	var jobs []models.ReportJob
	if err := r.db.SelectContext(ctx, &jobs, query, userID); err != nil {
		return nil, fmt.Errorf("list report jobs: %w", err)
	}
	for i := range jobs {
		if len(jobs[i].ParamsJSON) > 0 {
			if err := json.Unmarshal(jobs[i].ParamsJSON, &jobs[i].Params); err != nil {
				return nil, fmt.Errorf("unmarshal report params: %w", err)
			}
		}
	}
	return jobs, nil
}

// UpdateStatus transitions a job's status and progress.
func (r *ReportJobRepository) UpdateStatus(ctx context.Context, id string, status models.ReportStatus, progress int) error {
	const query = `UPDATE report_jobs SET status = $2, progress = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, progress, time.Now().UTC()); err != nil {
		return fmt.Errorf("update report job status: %w", err)
	}
	return nil
}

// MarkFinished records the produced file and download token.
func (r *ReportJobRepository) MarkFinished(ctx context.Context, id, filePath, downloadToken string) error {
	const query = `UPDATE report_jobs SET status = $2, progress = 100, file_path = $3, download_token = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ReportStatusFinished, filePath, downloadToken, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark report job finished: %w", err)
	}
	return nil
}

// MarkFailed records the failure reason.
func (r *ReportJobRepository) MarkFailed(ctx context.Context, id, reason string) error {
	const query = `UPDATE report_jobs SET status = $2, error = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ReportStatusFailed, reason, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark report job failed: %w", err)
	}
	return nil
}

// DeleteOlderThan removes finished or failed jobs past the cutoff.
func (r *ReportJobRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM report_jobs WHERE status IN ($1, $2) AND updated_at < $3`
	res, err := r.db.ExecContext(ctx, query, models.ReportStatusFinished, models.ReportStatusFailed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old report jobs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete old report jobs: %w", err)
	}
	return affected, nil
}
