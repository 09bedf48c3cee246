package models

// StudentReport is the report card payload for one student. Rows carry a
// NULL grade when no score was recorded; renderers show "-" for those.
type StudentReport struct {
	Student  UserInfo     `json:"student"`
	Semester *Semester    `json:"semester,omitempty"`
	Rows     []MarkDetail `json:"rows"`
	Summary  MarkSummary  `json:"summary"`
}

// ExportJobResponse describes a queued or finished export job.
type ExportJobResponse struct {
	JobID         string       `json:"job_id"`
	Status        ReportStatus `json:"status"`
	Progress      int          `json:"progress"`
	DownloadToken *string      `json:"download_token,omitempty"`
	Error         *string      `json:"error,omitempty"`
}
