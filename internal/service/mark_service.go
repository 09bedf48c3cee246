package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/progressive-sch/progressive-api/internal/models"
	appErrors "github.com/progressive-sch/progressive-api/pkg/errors"
)

type markRepository interface {
	Upsert(ctx context.Context, mark *models.Mark) error
	ListDetails(ctx context.Context, filter models.MarkFilter) ([]models.MarkDetail, error)
	Summary(ctx context.Context, filter models.MarkFilter) (*models.MarkSummary, error)
}

type assignmentChecker interface {
	Exists(ctx context.Context, teacherID, subjectID, classID string) (bool, error)
}

type userDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
}

// MarkService records and reads marks. Every write passes the teaching
// assignment gate: the recording teacher must hold the (subject, class)
// assignment, also when an admin records on their behalf.
type MarkService struct {
	repo        markRepository
	assignments assignmentChecker
	users       userDirectory
	audit       auditWriter
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewMarkService constructs a MarkService instance.
func NewMarkService(repo markRepository, assignments assignmentChecker, users userDirectory, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *MarkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &MarkService{repo: repo, assignments: assignments, users: users, audit: audit, validator: validate, logger: logger}
}

// Upload records a batch of scores. The grade of each mark is derived from
// its score at write time. Entries without a score are skipped and never
// create or overwrite a row. Rows that fail are counted and reported without
// aborting the batch.
func (s *MarkService) Upload(ctx context.Context, actorID string, actorRole models.UserRole, req models.UploadMarksRequest) (*models.UploadMarksResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid marks payload")
	}

	teacherID, err := s.resolveTeacher(ctx, actorID, actorRole, req.TeacherID)
	if err != nil {
		return nil, err
	}

	held, err := s.assignments.Exists(ctx, teacherID, req.SubjectID, req.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check assignment")
	}
	if !held {
		return nil, appErrors.Clone(appErrors.ErrNotAssigned, "teacher is not assigned to this subject in this class")
	}

	result := &models.UploadMarksResult{}
	for _, entry := range req.Entries {
		if entry.Score == nil {
			result.Skipped++
			continue
		}
		student, err := s.users.FindByID(ctx, entry.StudentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				result.Skipped++
				result.Errors = append(result.Errors, fmt.Sprintf("student %s not found", entry.StudentID))
				continue
			}
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("student %s: %v", entry.StudentID, err))
			continue
		}
		if student.Role != models.RoleStudent || student.ClassID == nil || *student.ClassID != req.ClassID {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("student %s is not in the class", entry.StudentID))
			continue
		}

		mark := &models.Mark{
			StudentID:  entry.StudentID,
			SubjectID:  req.SubjectID,
			TeacherID:  teacherID,
			ClassID:    req.ClassID,
			SemesterID: req.SemesterID,
		}
		mark.SetScore(entry.Score)

		if err := s.repo.Upsert(ctx, mark); err != nil {
			s.logger.Warn("failed to upsert mark", zap.String("student_id", entry.StudentID), zap.Error(err))
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("student %s: save failed", entry.StudentID))
			continue
		}
		result.Saved++
	}

	s.recordAudit(ctx, actorID, models.AuditActionCreate, req.SubjectID)
	return result, nil
}

// ListForViewer returns marks the caller is allowed to see. Students are
// pinned to their own marks, teachers to marks they recorded, admins are
// unfiltered.
func (s *MarkService) ListForViewer(ctx context.Context, viewerID string, viewerRole models.UserRole, filter models.MarkFilter) ([]models.MarkDetail, error) {
	switch viewerRole {
	case models.RoleStudent:
		filter.StudentID = viewerID
	case models.RoleTeacher:
		filter.TeacherID = viewerID
	case models.RoleAdmin:
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "unknown role")
	}

	marks, err := s.repo.ListDetails(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list marks")
	}
	models.FillGradePoints(marks)
	return marks, nil
}

// ClassMarks returns the full roster of the class with the scores recorded
// for one subject, gated on the assignment. Students without a mark yet are
// listed with empty score fields. Admins may view on behalf of the teacher.
func (s *MarkService) ClassMarks(ctx context.Context, actorID string, actorRole models.UserRole, teacherID, subjectID, classID, semesterID string) ([]models.ClassMarkRow, error) {
	resolved, err := s.resolveTeacher(ctx, actorID, actorRole, teacherID)
	if err != nil {
		return nil, err
	}

	held, err := s.assignments.Exists(ctx, resolved, subjectID, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check assignment")
	}
	if !held {
		return nil, appErrors.Clone(appErrors.ErrNotAssigned, "teacher is not assigned to this subject in this class")
	}

	students, _, err := s.users.List(ctx, models.UserFilter{
		Role:      models.RoleStudent,
		ClassID:   classID,
		PageSize:  100,
		SortBy:    "admission_number",
		SortOrder: "ASC",
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class students")
	}

	marks, err := s.repo.ListDetails(ctx, models.MarkFilter{
		TeacherID:  resolved,
		SubjectID:  subjectID,
		ClassID:    classID,
		SemesterID: semesterID,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class marks")
	}
	models.FillGradePoints(marks)

	byStudent := make(map[string]models.MarkDetail, len(marks))
	for _, mark := range marks {
		byStudent[mark.StudentID] = mark
	}

	rows := make([]models.ClassMarkRow, 0, len(students))
	for _, student := range students {
		row := models.ClassMarkRow{
			StudentID:       student.ID,
			StudentName:     student.FirstName + " " + student.LastName,
			AdmissionNumber: student.AdmissionNumber,
		}
		if mark, ok := byStudent[student.ID]; ok {
			row.Score = mark.Score
			row.Grade = mark.Grade
			row.GradePoints = mark.GradePoints
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Summary aggregates matching marks.
func (s *MarkService) Summary(ctx context.Context, filter models.MarkFilter) (*models.MarkSummary, error) {
	summary, err := s.repo.Summary(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate marks")
	}
	return summary, nil
}

// resolveTeacher decides under which teacher identity a write or gated read
// runs. Teachers always act as themselves; admins may name a teacher.
func (s *MarkService) resolveTeacher(ctx context.Context, actorID string, actorRole models.UserRole, requestedTeacherID string) (string, error) {
	switch actorRole {
	case models.RoleTeacher:
		return actorID, nil
	case models.RoleAdmin:
		if requestedTeacherID == "" {
			return "", appErrors.Clone(appErrors.ErrValidation, "teacher_id is required when acting as admin")
		}
		teacher, err := s.users.FindByID(ctx, requestedTeacherID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", appErrors.Clone(appErrors.ErrValidation, "teacher does not exist")
			}
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
		}
		if teacher.Role != models.RoleTeacher {
			return "", appErrors.Clone(appErrors.ErrValidation, "user is not a teacher")
		}
		return teacher.ID, nil
	default:
		return "", appErrors.Clone(appErrors.ErrForbidden, "only teachers and admins may record marks")
	}
}

func (s *MarkService) recordAudit(ctx context.Context, actorID, action, resourceID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{Action: action, Resource: "marks", ResourceID: &resourceID}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record marks audit log", zap.Error(err))
	}
}
