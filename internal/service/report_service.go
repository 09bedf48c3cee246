package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/progressive-sch/progressive-api/internal/models"
	appErrors "github.com/progressive-sch/progressive-api/pkg/errors"
	"github.com/progressive-sch/progressive-api/pkg/export"
	"github.com/progressive-sch/progressive-api/pkg/jobs"
	"github.com/progressive-sch/progressive-api/pkg/storage"
)

type reportJobRepository interface {
	Create(ctx context.Context, job *models.ReportJob) error
	FindByID(ctx context.Context, id string) (*models.ReportJob, error)
	ListByRequester(ctx context.Context, userID string, limit int) ([]models.ReportJob, error)
	UpdateStatus(ctx context.Context, id string, status models.ReportStatus, progress int) error
	MarkFinished(ctx context.Context, id, filePath, downloadToken string) error
	MarkFailed(ctx context.Context, id, reason string) error
}

type semesterLookup interface {
	FindByID(ctx context.Context, id string) (*models.Semester, error)
}

// ReportService produces report cards and consolidated result exports, both
// synchronously as attachments and asynchronously through the job queue.
type ReportService struct {
	marks     markRepository
	users     userLookup
	semesters semesterLookup
	jobsRepo  reportJobRepository
	queue     *jobs.Queue
	store     *storage.LocalStorage
	signer    *storage.SignedURLSigner
	pdf       *export.PDFExporter
	csv       *export.CSVExporter
	logger    *zap.Logger
}

// NewReportService constructs a ReportService instance. The queue is wired
// afterwards via AttachQueue since the queue handler needs the service.
func NewReportService(marks markRepository, users userLookup, semesters semesterLookup, jobsRepo reportJobRepository, store *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		marks:     marks,
		users:     users,
		semesters: semesters,
		jobsRepo:  jobsRepo,
		store:     store,
		signer:    signer,
		pdf:       export.NewPDFExporter(),
		csv:       export.NewCSVExporter(),
		logger:    logger,
	}
}

// AttachQueue wires the background queue used for asynchronous exports.
func (s *ReportService) AttachQueue(queue *jobs.Queue) {
	s.queue = queue
}

// StudentReport assembles the report card for one student. Students may only
// request their own.
func (s *ReportService) StudentReport(ctx context.Context, viewerID string, viewerRole models.UserRole, studentID, semesterID string) (*models.StudentReport, error) {
	if viewerRole == models.RoleStudent && viewerID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only view their own results")
	}

	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	var semester *models.Semester
	if semesterID != "" {
		semester, err = s.semesters.FindByID(ctx, semesterID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
		}
	}

	filter := models.MarkFilter{StudentID: studentID, SemesterID: semesterID}
	rows, err := s.marks.ListDetails(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list results")
	}
	models.FillGradePoints(rows)
	summary, err := s.marks.Summary(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate results")
	}

	return &models.StudentReport{
		Student: models.UserInfo{
			ID:              student.ID,
			Email:           student.Email,
			FirstName:       student.FirstName,
			LastName:        student.LastName,
			Role:            student.Role,
			AdmissionNumber: student.AdmissionNumber,
		},
		Semester: semester,
		Rows:     rows,
		Summary:  *summary,
	}, nil
}

// StudentReportPDF renders the report card as a PDF attachment named after
// the admission number.
func (s *ReportService) StudentReportPDF(ctx context.Context, viewerID string, viewerRole models.UserRole, studentID, semesterID string) ([]byte, string, error) {
	report, err := s.StudentReport(ctx, viewerID, viewerRole, studentID, semesterID)
	if err != nil {
		return nil, "", err
	}

	title := fmt.Sprintf("Report Card - %s %s", report.Student.FirstName, report.Student.LastName)
	payload, err := s.pdf.Render(studentReportDataset(report), title)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report pdf")
	}

	identifier := report.Student.ID
	if report.Student.AdmissionNumber != nil {
		identifier = *report.Student.AdmissionNumber
	}
	return payload, fmt.Sprintf("%s_results.pdf", identifier), nil
}

// ClassMarksPDF renders a class mark sheet as a PDF attachment. The roster
// rows are expected to have passed the assignment gate already; students
// without a mark yet appear with dashes.
func (s *ReportService) ClassMarksPDF(ctx context.Context, rows []models.ClassMarkRow, subjectName, className string) ([]byte, string, error) {
	title := fmt.Sprintf("Class Marks - %s", className)
	if subjectName != "" {
		title = fmt.Sprintf("Class Marks - %s (%s)", className, subjectName)
	}
	payload, err := s.pdf.Render(classMarksDataset(rows), title)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render class marks pdf")
	}
	return payload, fmt.Sprintf("class_%s_%s_marks.pdf", slugify(className), slugify(subjectName)), nil
}

func classMarksDataset(rows []models.ClassMarkRow) export.Dataset {
	data := export.Dataset{
		Headers: []string{"Admission No", "Student", "Score", "Grade", "Points"},
	}
	for _, row := range rows {
		admission := "-"
		if row.AdmissionNumber != nil {
			admission = *row.AdmissionNumber
		}
		score := "-"
		if row.Score != nil {
			score = strconv.FormatFloat(*row.Score, 'f', 2, 64)
		}
		grade := "-"
		if row.Grade != nil {
			grade = *row.Grade
		}
		points := "-"
		if row.GradePoints != nil {
			points = strconv.FormatFloat(*row.GradePoints, 'f', 1, 64)
		}
		data.Rows = append(data.Rows, map[string]string{
			"Admission No": admission,
			"Student":      row.StudentName,
			"Score":        score,
			"Grade":        grade,
			"Points":       points,
		})
	}
	return data
}

func slugify(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// ConsolidatedPDF renders every mark matching the filter into one document.
func (s *ReportService) ConsolidatedPDF(ctx context.Context, filter models.MarkFilter) ([]byte, string, error) {
	rows, err := s.marks.ListDetails(ctx, filter)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list results")
	}
	models.FillGradePoints(rows)
	summary, err := s.marks.Summary(ctx, filter)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate results")
	}

	payload, err := s.pdf.Render(marksDataset(rows, summary), "Consolidated Results")
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render consolidated pdf")
	}
	return payload, "consolidated_results.pdf", nil
}

// EnqueueExport persists a job and hands it to the background queue.
func (s *ReportService) EnqueueExport(ctx context.Context, requestedBy string, params models.ReportParams) (*models.ExportJobResponse, error) {
	if params.Format != models.ReportFormatPDF && params.Format != models.ReportFormatCSV {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be PDF or CSV")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "export queue is not running")
	}

	job := &models.ReportJob{
		ID:          uuid.NewString(),
		Params:      params,
		Status:      models.ReportStatusQueued,
		RequestedBy: requestedBy,
	}
	if err := s.jobsRepo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist export job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "report_export"}); err != nil {
		reason := "export queue is full"
		if markErr := s.jobsRepo.MarkFailed(ctx, job.ID, reason); markErr != nil {
			s.logger.Warn("failed to mark export job failed", zap.Error(markErr))
		}
		return nil, appErrors.Clone(appErrors.ErrConflict, reason)
	}

	return &models.ExportJobResponse{JobID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// JobStatus returns the state of an export job. Non-admins only see their
// own jobs.
func (s *ReportService) JobStatus(ctx context.Context, viewerID string, viewerRole models.UserRole, jobID string) (*models.ExportJobResponse, error) {
	job, err := s.jobsRepo.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if viewerRole != models.RoleAdmin && job.RequestedBy != viewerID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	return &models.ExportJobResponse{
		JobID:         job.ID,
		Status:        job.Status,
		Progress:      job.Progress,
		DownloadToken: job.DownloadToken,
		Error:         job.Error,
	}, nil
}

// ListJobs returns the caller's recent export jobs, newest first.
func (s *ReportService) ListJobs(ctx context.Context, viewerID string, limit int) ([]models.ExportJobResponse, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	records, err := s.jobsRepo.ListByRequester(ctx, viewerID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list export jobs")
	}
	out := make([]models.ExportJobResponse, 0, len(records))
	for _, job := range records {
		out = append(out, models.ExportJobResponse{
			JobID:         job.ID,
			Status:        job.Status,
			Progress:      job.Progress,
			DownloadToken: job.DownloadToken,
			Error:         job.Error,
		})
	}
	return out, nil
}

// RunExportJob is the queue handler. It renders the dataset, stores the file
// and records the signed download token.
func (s *ReportService) RunExportJob(ctx context.Context, queued jobs.Job) error {
	job, err := s.jobsRepo.FindByID(ctx, queued.ID)
	if err != nil {
		return fmt.Errorf("load export job %s: %w", queued.ID, err)
	}

	if err := s.jobsRepo.UpdateStatus(ctx, job.ID, models.ReportStatusRunning, 10); err != nil {
		s.logger.Warn("failed to mark export job running", zap.Error(err))
	}

	filter := models.MarkFilter{
		StudentID:  job.Params.StudentID,
		ClassID:    job.Params.ClassID,
		SubjectID:  job.Params.SubjectID,
		SemesterID: job.Params.SemesterID,
	}

	rows, err := s.marks.ListDetails(ctx, filter)
	if err != nil {
		return s.failJob(ctx, job.ID, fmt.Errorf("list results: %w", err))
	}
	models.FillGradePoints(rows)
	summary, err := s.marks.Summary(ctx, filter)
	if err != nil {
		return s.failJob(ctx, job.ID, fmt.Errorf("aggregate results: %w", err))
	}

	if err := s.jobsRepo.UpdateStatus(ctx, job.ID, models.ReportStatusRunning, 60); err != nil {
		s.logger.Warn("failed to update export job progress", zap.Error(err))
	}

	dataset := marksDataset(rows, summary)
	var payload []byte
	var filename string
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
		filename = fmt.Sprintf("consolidated_results_%s.csv", job.ID)
	default:
		payload, err = s.pdf.Render(dataset, "Consolidated Results")
		filename = fmt.Sprintf("consolidated_results_%s.pdf", job.ID)
	}
	if err != nil {
		return s.failJob(ctx, job.ID, fmt.Errorf("render export: %w", err))
	}

	stored, err := s.store.Save(filename, payload)
	if err != nil {
		return s.failJob(ctx, job.ID, fmt.Errorf("store export: %w", err))
	}

	token, _, err := s.signer.Generate(job.ID, filename)
	if err != nil {
		return s.failJob(ctx, job.ID, fmt.Errorf("sign download token: %w", err))
	}

	if err := s.jobsRepo.MarkFinished(ctx, job.ID, stored, token); err != nil {
		return fmt.Errorf("finish export job %s: %w", job.ID, err)
	}

	s.logger.Info("export job finished",
		zap.String("job_id", job.ID),
		zap.String("file", filename),
		zap.Int("rows", len(rows)))
	return nil
}

// ResolveDownload validates a signed token and returns the stored file with
// its filename and content type.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) ([]byte, string, string, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired download token")
	}

	job, err := s.jobsRepo.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", "", appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.Status != models.ReportStatusFinished {
		return nil, "", "", appErrors.Clone(appErrors.ErrNotFound, "export is not ready")
	}

	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export file is gone")
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export file")
	}

	contentType := "application/pdf"
	if job.Params.Format == models.ReportFormatCSV {
		contentType = "text/csv"
	}
	return payload, relPath, contentType, nil
}

// CleanupExpired removes export files older than the TTL.
func (s *ReportService) CleanupExpired(ttl time.Duration) {
	removed, err := s.store.CleanupOlderThan(ttl)
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		s.logger.Info("removed expired export files", zap.Int("count", len(removed)))
	}
}

func (s *ReportService) failJob(ctx context.Context, jobID string, cause error) error {
	if err := s.jobsRepo.MarkFailed(ctx, jobID, cause.Error()); err != nil {
		s.logger.Warn("failed to mark export job failed", zap.Error(err))
	}
	return cause
}

func studentReportDataset(report *models.StudentReport) export.Dataset {
	data := marksDataset(report.Rows, &report.Summary)
	identifier := report.Student.ID
	if report.Student.AdmissionNumber != nil {
		identifier = *report.Student.AdmissionNumber
	}
	header := []string{
		fmt.Sprintf("Student: %s %s (%s)", report.Student.FirstName, report.Student.LastName, identifier),
	}
	if report.Semester != nil {
		header = append(header, fmt.Sprintf("Semester: %s", report.Semester.Name))
	}
	data.Summary = append(header, data.Summary...)
	return data
}

func marksDataset(rows []models.MarkDetail, summary *models.MarkSummary) export.Dataset {
	data := export.Dataset{
		Headers: []string{"Admission No", "Student", "Subject", "Class", "Semester", "Score", "Grade", "Points", "Teacher"},
	}
	for _, row := range rows {
		admission := "-"
		if row.AdmissionNumber != nil {
			admission = *row.AdmissionNumber
		}
		score := "-"
		if row.Score != nil {
			score = strconv.FormatFloat(*row.Score, 'f', 2, 64)
		}
		grade := "-"
		if row.Grade != nil {
			grade = *row.Grade
		}
		points := "-"
		if row.GradePoints != nil {
			points = strconv.FormatFloat(*row.GradePoints, 'f', 1, 64)
		}
		data.Rows = append(data.Rows, map[string]string{
			"Admission No": admission,
			"Student":      row.StudentName,
			"Subject":      row.SubjectName,
			"Class":        row.ClassName,
			"Semester":     row.SemesterName,
			"Score":        score,
			"Grade":        grade,
			"Points":       points,
			"Teacher":      row.TeacherName,
		})
	}
	if summary != nil {
		data.Summary = []string{
			fmt.Sprintf("Total: %.2f", summary.Total),
			fmt.Sprintf("Average: %.2f", summary.Average),
			fmt.Sprintf("GPA: %.2f", summary.GPA),
			fmt.Sprintf("Subjects: %d", summary.SubjectsCount),
		}
	}
	return data
}
