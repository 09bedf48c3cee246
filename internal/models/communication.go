package models

import "time"

// Visibility controls which roles may see an announcement or event.
type Visibility string

const (
	VisibilityAll     Visibility = "ALL"
	VisibilityTeacher Visibility = "TEACHER"
	VisibilityStudent Visibility = "STUDENT"
)

// VisibleTo reports whether content with this visibility is shown to the role.
func (v Visibility) VisibleTo(role UserRole) bool {
	if v == VisibilityAll {
		return true
	}
	switch role {
	case RoleAdmin:
		return true
	case RoleTeacher:
		return v == VisibilityTeacher
	case RoleStudent:
		return v == VisibilityStudent
	}
	return false
}

// Announcement is a dated notice published to a role audience.
type Announcement struct {
	ID         string     `db:"id" json:"id"`
	Title      string     `db:"title" json:"title"`
	Content    string     `db:"content" json:"content"`
	Visibility Visibility `db:"visibility" json:"visibility"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// Event is a scheduled occasion published to a role audience.
type Event struct {
	ID          string     `db:"id" json:"id"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	Date        time.Time  `db:"date" json:"date"`
	Visibility  Visibility `db:"visibility" json:"visibility"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// AnnouncementRequest creates or updates an announcement.
type AnnouncementRequest struct {
	Title      string     `json:"title" validate:"required"`
	Content    string     `json:"content" validate:"required"`
	Visibility Visibility `json:"visibility" validate:"required,oneof=ALL TEACHER STUDENT"`
}

// EventRequest creates or updates an event. Date uses YYYY-MM-DD.
type EventRequest struct {
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description" validate:"required"`
	Date        string     `json:"date" validate:"required,datetime=2006-01-02"`
	Visibility  Visibility `json:"visibility" validate:"required,oneof=ALL TEACHER STUDENT"`
}

// FeedFilter scopes announcement/event listings.
type FeedFilter struct {
	ViewerRole UserRole
	Unfiltered bool
	Limit      int
	Page       int
	PageSize   int
}
