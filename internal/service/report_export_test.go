package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/progressive-sch/progressive-api/internal/models"
	"github.com/progressive-sch/progressive-api/pkg/jobs"
	"github.com/progressive-sch/progressive-api/pkg/storage"
)

type mockJobRepo struct {
	jobs map[string]*models.ReportJob
}

func (r *mockJobRepo) Create(ctx context.Context, job *models.ReportJob) error {
	if r.jobs == nil {
		r.jobs = make(map[string]*models.ReportJob)
	}
	copy := *job
	r.jobs[job.ID] = &copy
	return nil
}

func (r *mockJobRepo) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	if job, ok := r.jobs[id]; ok {
		copy := *job
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (r *mockJobRepo) ListByRequester(ctx context.Context, userID string, limit int) ([]models.ReportJob, error) {
	var out []models.ReportJob
	for _, job := range r.jobs {
		if job.RequestedBy == userID {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (r *mockJobRepo) UpdateStatus(ctx context.Context, id string, status models.ReportStatus, progress int) error {
	if job, ok := r.jobs[id]; ok {
		job.Status = status
		job.Progress = progress
	}
	return nil
}

func (r *mockJobRepo) MarkFinished(ctx context.Context, id, filePath, downloadToken string) error {
	if job, ok := r.jobs[id]; ok {
		job.Status = models.ReportStatusFinished
		job.Progress = 100
		job.FilePath = &filePath
		job.DownloadToken = &downloadToken
	}
	return nil
}

func (r *mockJobRepo) MarkFailed(ctx context.Context, id, reason string) error {
	if job, ok := r.jobs[id]; ok {
		job.Status = models.ReportStatusFailed
		job.Error = &reason
	}
	return nil
}

type failingMarkRepo struct{}

func (r *failingMarkRepo) Upsert(ctx context.Context, mark *models.Mark) error { return nil }

func (r *failingMarkRepo) ListDetails(ctx context.Context, filter models.MarkFilter) ([]models.MarkDetail, error) {
	return nil, errors.New("connection reset")
}

func (r *failingMarkRepo) Summary(ctx context.Context, filter models.MarkFilter) (*models.MarkSummary, error) {
	return nil, errors.New("connection reset")
}

func newExportService(t *testing.T, marks markRepository, jobsRepo *mockJobRepo) *ReportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("export-test-secret", time.Hour)
	return NewReportService(marks, &mockUserRepo{}, &mockSemesterLookup{}, jobsRepo, store, signer, zap.NewNop())
}

func TestEnqueueExportRejectsUnknownFormat(t *testing.T) {
	svc := newExportService(t, &mockMarkRepo{}, &mockJobRepo{})

	_, err := svc.EnqueueExport(context.Background(), "admin-1", models.ReportParams{Format: "XLSX"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PDF or CSV")
}

func TestRunExportJobFinishesWithDownloadableFile(t *testing.T) {
	score := 72.0
	grade := models.GradeC
	marks := &mockMarkRepo{
		details: []models.MarkDetail{{
			Mark:        models.Mark{ID: "m1", StudentID: "st1", Score: &score, Grade: &grade},
			StudentName: "Jane Doe",
			SubjectName: "Mathematics",
		}},
		summary: models.MarkSummary{Total: 72, Average: 72.00, SubjectsCount: 1},
	}
	jobsRepo := &mockJobRepo{}
	svc := newExportService(t, marks, jobsRepo)

	job := &models.ReportJob{
		ID:          "job-1",
		Params:      models.ReportParams{Format: models.ReportFormatCSV},
		Status:      models.ReportStatusQueued,
		RequestedBy: "admin-1",
	}
	require.NoError(t, jobsRepo.Create(context.Background(), job))

	require.NoError(t, svc.RunExportJob(context.Background(), jobs.Job{ID: "job-1", Type: "report_export"}))

	stored := jobsRepo.jobs["job-1"]
	assert.Equal(t, models.ReportStatusFinished, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	require.NotNil(t, stored.DownloadToken)

	payload, filename, contentType, err := svc.ResolveDownload(context.Background(), *stored.DownloadToken)
	require.NoError(t, err)
	assert.Equal(t, "consolidated_results_job-1.csv", filename)
	assert.Equal(t, "text/csv", contentType)
	assert.True(t, strings.HasPrefix(string(payload), "Admission No"))
	assert.Contains(t, string(payload), "Jane Doe")
}

func TestRunExportJobMarksFailedOnRepositoryError(t *testing.T) {
	jobsRepo := &mockJobRepo{}
	svc := newExportService(t, &failingMarkRepo{}, jobsRepo)

	job := &models.ReportJob{
		ID:          "job-2",
		Params:      models.ReportParams{Format: models.ReportFormatPDF},
		Status:      models.ReportStatusQueued,
		RequestedBy: "admin-1",
	}
	require.NoError(t, jobsRepo.Create(context.Background(), job))

	err := svc.RunExportJob(context.Background(), jobs.Job{ID: "job-2", Type: "report_export"})
	require.Error(t, err)

	stored := jobsRepo.jobs["job-2"]
	assert.Equal(t, models.ReportStatusFailed, stored.Status)
	require.NotNil(t, stored.Error)
	assert.Contains(t, *stored.Error, "list results")
}

func TestListJobsReturnsOnlyCallersJobs(t *testing.T) {
	jobsRepo := &mockJobRepo{}
	svc := newExportService(t, &mockMarkRepo{}, jobsRepo)

	require.NoError(t, jobsRepo.Create(context.Background(), &models.ReportJob{
		ID: "job-a", Params: models.ReportParams{Format: models.ReportFormatPDF},
		Status: models.ReportStatusFinished, RequestedBy: "admin-1",
	}))
	require.NoError(t, jobsRepo.Create(context.Background(), &models.ReportJob{
		ID: "job-b", Params: models.ReportParams{Format: models.ReportFormatCSV},
		Status: models.ReportStatusQueued, RequestedBy: "admin-2",
	}))

	own, err := svc.ListJobs(context.Background(), "admin-1", 0)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "job-a", own[0].JobID)
	assert.Equal(t, models.ReportStatusFinished, own[0].Status)
}

func TestJobStatusHidesForeignJobs(t *testing.T) {
	jobsRepo := &mockJobRepo{}
	svc := newExportService(t, &mockMarkRepo{}, jobsRepo)

	job := &models.ReportJob{
		ID:          "job-3",
		Params:      models.ReportParams{Format: models.ReportFormatPDF},
		Status:      models.ReportStatusQueued,
		RequestedBy: "admin-1",
	}
	require.NoError(t, jobsRepo.Create(context.Background(), job))

	_, err := svc.JobStatus(context.Background(), "teacher-1", models.RoleTeacher, "job-3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	status, err := svc.JobStatus(context.Background(), "admin-2", models.RoleAdmin, "job-3")
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusQueued, status.Status)
}
