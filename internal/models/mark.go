package models

import "time"

// Grade letter boundaries. A mark with no score carries no grade.
const (
	GradeA = "A"
	GradeB = "B"
	GradeC = "C"
	GradeD = "D"
	GradeF = "F"
)

// GradeForScore maps a numeric score to its letter grade and grade-point
// value.
func GradeForScore(score float64) (string, float64) {
	switch {
	case score >= 90:
		return GradeA, 4.0
	case score >= 80:
		return GradeB, 3.0
	case score >= 70:
		return GradeC, 2.0
	case score >= 60:
		return GradeD, 1.0
	default:
		return GradeF, 0.0
	}
}

// Mark is a single recorded score for one student in one subject, given by
// one teacher within one class and semester. The five reference columns form
// the natural key; writes are upserts against it.
type Mark struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	SubjectID  string    `db:"subject_id" json:"subject_id"`
	TeacherID  string    `db:"teacher_id" json:"teacher_id"`
	ClassID    string    `db:"class_id" json:"class_id"`
	SemesterID string    `db:"semester_id" json:"semester_id"`
	Score      *float64  `db:"score" json:"score,omitempty"`
	Grade      *string   `db:"grade" json:"grade,omitempty"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// SetScore stores the score and recomputes the derived grade. A nil score
// clears the grade; the grade is never independently settable.
func (m *Mark) SetScore(score *float64) {
	m.Score = score
	if score == nil {
		m.Grade = nil
		return
	}
	letter, _ := GradeForScore(*score)
	m.Grade = &letter
}

// MarkDetail joins display names for result listings and reports. GradePoints
// is derived from the score when the rows are assembled, not stored.
type MarkDetail struct {
	Mark
	StudentName     string   `db:"student_name" json:"student_name"`
	AdmissionNumber *string  `db:"admission_number" json:"admission_number,omitempty"`
	SubjectName     string   `db:"subject_name" json:"subject_name"`
	TeacherName     string   `db:"teacher_name" json:"teacher_name"`
	ClassName       string   `db:"class_name" json:"class_name"`
	SemesterName    string   `db:"semester_name" json:"semester_name"`
	GradePoints     *float64 `db:"-" json:"grade_points,omitempty"`
}

// FillGradePoints derives the grade-point value for every scored row.
func FillGradePoints(rows []MarkDetail) {
	for i := range rows {
		if rows[i].Score == nil {
			continue
		}
		_, points := GradeForScore(*rows[i].Score)
		rows[i].GradePoints = &points
	}
}

// ClassMarkRow pairs one student of a class with their recorded mark for a
// subject and semester, if any. Students without a mark carry nil score
// fields.
type ClassMarkRow struct {
	StudentID       string   `json:"student_id"`
	StudentName     string   `json:"student_name"`
	AdmissionNumber *string  `json:"admission_number,omitempty"`
	Score           *float64 `json:"score,omitempty"`
	Grade           *string  `json:"grade,omitempty"`
	GradePoints     *float64 `json:"grade_points,omitempty"`
}

// MarkEntry is one row of a batch upload.
type MarkEntry struct {
	StudentID string   `json:"student_id" validate:"required"`
	Score     *float64 `json:"score" validate:"omitempty,gte=0,lte=100"`
}

// UploadMarksRequest records scores for one subject, class and semester.
// TeacherID is only honoured for admins acting on behalf of a teacher;
// teachers always record under their own identity.
type UploadMarksRequest struct {
	SubjectID  string      `json:"subject_id" validate:"required"`
	ClassID    string      `json:"class_id" validate:"required"`
	SemesterID string      `json:"semester_id" validate:"required"`
	TeacherID  string      `json:"teacher_id,omitempty"`
	Entries    []MarkEntry `json:"entries" validate:"required,min=1,dive"`
}

// UploadMarksResult summarises a batch upload. A failed row never aborts the
// rest of the batch.
type UploadMarksResult struct {
	Saved   int      `json:"saved"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// MarkFilter scopes mark queries; any subset of fields may be set.
type MarkFilter struct {
	StudentID  string
	SubjectID  string
	TeacherID  string
	ClassID    string
	SemesterID string
}

// MarkSummary aggregates matching marks. GPA averages the grade-point values
// of scored marks. Missing aggregates default to 0.
type MarkSummary struct {
	Total         float64 `db:"total" json:"total"`
	Average       float64 `db:"average" json:"average"`
	GPA           float64 `db:"gpa" json:"gpa"`
	SubjectsCount int     `db:"subjects_count" json:"subjects_count"`
}
