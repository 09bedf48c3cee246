package models

import "time"

// ReportFormat selects the rendered output of an export job.
type ReportFormat string

const (
	ReportFormatPDF ReportFormat = "PDF"
	ReportFormatCSV ReportFormat = "CSV"
)

// ReportStatus tracks export job progress.
type ReportStatus string

const (
	ReportStatusQueued   ReportStatus = "QUEUED"
	ReportStatusRunning  ReportStatus = "RUNNING"
	ReportStatusFinished ReportStatus = "FINISHED"
	ReportStatusFailed   ReportStatus = "FAILED"
)

// ReportParams filters the consolidated results export.
type ReportParams struct {
	Format     ReportFormat `json:"format"`
	StudentID  string       `json:"student_id,omitempty"`
	ClassID    string       `json:"class_id,omitempty"`
	SubjectID  string       `json:"subject_id,omitempty"`
	SemesterID string       `json:"semester_id,omitempty"`
}

// ReportJob is a persisted asynchronous export.
type ReportJob struct {
	ID            string       `db:"id" json:"id"`
	Params        ReportParams `db:"-" json:"params"`
	ParamsJSON    []byte       `db:"params" json:"-"`
	Status        ReportStatus `db:"status" json:"status"`
	Progress      int          `db:"progress" json:"progress"`
	FilePath      *string      `db:"file_path" json:"-"`
	DownloadToken *string      `db:"download_token" json:"download_token,omitempty"`
	Error         *string      `db:"error" json:"error,omitempty"`
	RequestedBy   string       `db:"requested_by" json:"requested_by"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}
