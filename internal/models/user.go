package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTeacher UserRole = "TEACHER"
	RoleStudent UserRole = "STUDENT"
)

// User represents an application user stored in the users table. Students
// additionally carry an admission number and academic placement references.
type User struct {
	ID              string     `db:"id" json:"id"`
	Email           string     `db:"email" json:"email"`
	PasswordHash    string     `db:"password_hash" json:"-"`
	FirstName       string     `db:"first_name" json:"first_name"`
	LastName        string     `db:"last_name" json:"last_name"`
	Role            UserRole   `db:"role" json:"role"`
	AdmissionNumber *string    `db:"admission_number" json:"admission_number,omitempty"`
	DepartmentID    *string    `db:"department_id" json:"department_id,omitempty"`
	CourseID        *string    `db:"course_id" json:"course_id,omitempty"`
	ClassID         *string    `db:"class_id" json:"class_id,omitempty"`
	SemesterID      *string    `db:"semester_id" json:"semester_id,omitempty"`
	Active          bool       `db:"active" json:"active"`
	LastLogin       *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName joins first and last name for display contexts.
func (u User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      UserRole
	Active    *bool
	Search    string
	ClassID   string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// CreateStudentRequest registers a student. Email and password are derived
// from the allocated admission number, not supplied.
type CreateStudentRequest struct {
	FirstName    string `json:"first_name" validate:"required"`
	LastName     string `json:"last_name" validate:"required"`
	DepartmentID string `json:"department_id" validate:"required"`
	CourseID     string `json:"course_id" validate:"required"`
	ClassID      string `json:"class_id" validate:"required"`
	SemesterID   string `json:"semester_id" validate:"required"`
}

// CreatedStudent reports the allocated credentials back to the admin.
type CreatedStudent struct {
	User            User   `json:"user"`
	AdmissionNumber string `json:"admission_number"`
	Email           string `json:"email"`
	InitialPassword string `json:"initial_password"`
}

// CreateTeacherRequest registers a teacher. The email is derived from the
// names on the staff domain.
type CreateTeacherRequest struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
}

// CreatedTeacher reports the derived credentials back to the admin.
type CreatedTeacher struct {
	User            User   `json:"user"`
	Email           string `json:"email"`
	InitialPassword string `json:"initial_password"`
}

// UpdateUserRequest updates an existing user's mutable fields.
type UpdateUserRequest struct {
	FirstName    string  `json:"first_name" validate:"required"`
	LastName     string  `json:"last_name" validate:"required"`
	DepartmentID *string `json:"department_id,omitempty"`
	CourseID     *string `json:"course_id,omitempty"`
	ClassID      *string `json:"class_id,omitempty"`
	SemesterID   *string `json:"semester_id,omitempty"`
	Active       *bool   `json:"active,omitempty"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
