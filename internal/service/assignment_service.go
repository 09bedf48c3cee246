package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/progressive-sch/progressive-api/internal/models"
	appErrors "github.com/progressive-sch/progressive-api/pkg/errors"
)

type assignmentRepository interface {
	ListAll(ctx context.Context) ([]models.TeacherAssignmentDetail, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.TeacherAssignmentDetail, error)
	FindByID(ctx context.Context, id string) (*models.TeacherAssignment, error)
	FindByKey(ctx context.Context, teacherID, subjectID, classID string) (*models.TeacherAssignment, error)
	Exists(ctx context.Context, teacherID, subjectID, classID string) (bool, error)
	Create(ctx context.Context, assignment *models.TeacherAssignment) error
	Delete(ctx context.Context, id string) error
}

type userLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type subjectLookup interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type classLookup interface {
	FindByID(ctx context.Context, id string) (*models.SchoolClass, error)
}

// AssignmentService manages which teacher may record marks for which subject
// and class.
type AssignmentService struct {
	repo      assignmentRepository
	users     userLookup
	subjects  subjectLookup
	classes   classLookup
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssignmentService constructs an AssignmentService instance.
func NewAssignmentService(repo assignmentRepository, users userLookup, subjects subjectLookup, classes classLookup, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AssignmentService{repo: repo, users: users, subjects: subjects, classes: classes, audit: audit, validator: validate, logger: logger}
}

// ListAll returns every assignment.
func (s *AssignmentService) ListAll(ctx context.Context) ([]models.TeacherAssignmentDetail, error) {
	assignments, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, nil
}

// ListByTeacher returns the assignments held by one teacher.
func (s *AssignmentService) ListByTeacher(ctx context.Context, teacherID string) ([]models.TeacherAssignmentDetail, error) {
	assignments, err := s.repo.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teacher assignments")
	}
	return assignments, nil
}

// Exists reports whether the teacher holds the (subject, class) assignment.
func (s *AssignmentService) Exists(ctx context.Context, teacherID, subjectID, classID string) (bool, error) {
	exists, err := s.repo.Exists(ctx, teacherID, subjectID, classID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check assignment")
	}
	return exists, nil
}

// Create grants an assignment. Repeating an existing grant returns the stored
// row rather than failing.
func (s *AssignmentService) Create(ctx context.Context, actorID string, req models.AssignmentRequest) (*models.TeacherAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	teacher, err := s.users.FindByID(ctx, req.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "teacher does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if teacher.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a teacher")
	}

	if _, err := s.subjects.FindByID(ctx, req.SubjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "subject does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if _, err := s.classes.FindByID(ctx, req.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "class does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	existing, err := s.repo.FindByKey(ctx, req.TeacherID, req.SubjectID, req.ClassID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check assignment")
	}

	assignment := &models.TeacherAssignment{TeacherID: req.TeacherID, SubjectID: req.SubjectID, ClassID: req.ClassID}
	if err := s.repo.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}

	s.recordAudit(ctx, actorID, models.AuditActionCreate, assignment.ID)
	return assignment, nil
}

// Delete revokes an assignment. Teachers may only revoke their own.
func (s *AssignmentService) Delete(ctx context.Context, actorID string, actorRole models.UserRole, id string) error {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if actorRole != models.RoleAdmin && existing.TeacherID != actorID {
		return appErrors.Clone(appErrors.ErrForbidden, "assignment belongs to another teacher")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
	}
	s.recordAudit(ctx, actorID, models.AuditActionDelete, id)
	return nil
}

func (s *AssignmentService) recordAudit(ctx context.Context, actorID, action, resourceID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{Action: action, Resource: "teacher_assignment", ResourceID: &resourceID}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record assignment audit log", zap.Error(err))
	}
}
