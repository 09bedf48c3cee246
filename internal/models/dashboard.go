package models

// EntityCounts summarises record totals for the admin dashboard.
type EntityCounts struct {
	Departments   int `db:"departments" json:"departments"`
	Courses       int `db:"courses" json:"courses"`
	Classes       int `db:"classes" json:"classes"`
	Subjects      int `db:"subjects" json:"subjects"`
	Semesters     int `db:"semesters" json:"semesters"`
	Students      int `db:"students" json:"students"`
	Teachers      int `db:"teachers" json:"teachers"`
	Announcements int `db:"announcements" json:"announcements"`
	Events        int `db:"events" json:"events"`
	Marks         int `db:"marks" json:"marks"`
}

// AdminDashboard is the admin landing payload.
type AdminDashboard struct {
	Counts        EntityCounts   `json:"counts"`
	Announcements []Announcement `json:"announcements"`
	Events        []Event        `json:"events"`
}

// TeacherDashboard is the teacher landing payload.
type TeacherDashboard struct {
	Assignments   []TeacherAssignmentDetail `json:"assignments"`
	Announcements []Announcement            `json:"announcements"`
	Events        []Event                   `json:"events"`
}

// StudentDashboard is the student landing payload.
type StudentDashboard struct {
	RecentMarks   []MarkDetail   `json:"recent_marks"`
	Announcements []Announcement `json:"announcements"`
	Events        []Event        `json:"events"`
}
