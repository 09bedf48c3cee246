package models

import "time"

// Department is the top of the academic hierarchy.
type Department struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Course belongs to a department and owns classes and subjects.
type Course struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	DepartmentID string    `db:"department_id" json:"department_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// CourseDetail joins the owning department name for listings.
type CourseDetail struct {
	Course
	DepartmentName string `db:"department_name" json:"department_name"`
}

// SchoolClass is a concrete class group within a course.
type SchoolClass struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CourseID  string    `db:"course_id" json:"course_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SchoolClassDetail joins the owning course name for listings.
type SchoolClassDetail struct {
	SchoolClass
	CourseName string `db:"course_name" json:"course_name"`
}

// Subject is taught within a course.
type Subject struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CourseID  string    `db:"course_id" json:"course_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SubjectDetail joins the owning course name for listings.
type SubjectDetail struct {
	Subject
	CourseName string `db:"course_name" json:"course_name"`
}

// DepartmentRequest creates or renames a department.
type DepartmentRequest struct {
	Name string `json:"name" validate:"required"`
}

// CourseRequest creates or updates a course.
type CourseRequest struct {
	Name         string `json:"name" validate:"required"`
	DepartmentID string `json:"department_id" validate:"required"`
}

// ClassRequest creates or updates a class.
type ClassRequest struct {
	Name     string `json:"name" validate:"required"`
	CourseID string `json:"course_id" validate:"required"`
}

// SubjectRequest creates or updates a subject.
type SubjectRequest struct {
	Name     string `json:"name" validate:"required"`
	CourseID string `json:"course_id" validate:"required"`
}
