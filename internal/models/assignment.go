package models

import "time"

// TeacherAssignment entitles a teacher to record marks for a subject within
// a specific class.
type TeacherAssignment struct {
	ID        string    `db:"id" json:"id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AssignmentRequest grants a teacher the right to record marks for a subject
// in a class.
type AssignmentRequest struct {
	TeacherID string `json:"teacher_id" validate:"required"`
	SubjectID string `json:"subject_id" validate:"required"`
	ClassID   string `json:"class_id" validate:"required"`
}

// TeacherAssignmentDetail joins display names for listings.
type TeacherAssignmentDetail struct {
	TeacherAssignment
	TeacherName string `db:"teacher_name" json:"teacher_name"`
	SubjectName string `db:"subject_name" json:"subject_name"`
	ClassName   string `db:"class_name" json:"class_name"`
}
