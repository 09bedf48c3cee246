package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/progressive-sch/progressive-api/internal/models"
	"github.com/progressive-sch/progressive-api/internal/service"
	appErrors "github.com/progressive-sch/progressive-api/pkg/errors"
	"github.com/progressive-sch/progressive-api/pkg/response"
)

// AcademicHandler groups the department, course, class and subject endpoints.
type AcademicHandler struct {
	departments *service.DepartmentService
	courses     *service.CourseService
	classes     *service.ClassService
	subjects    *service.SubjectService
}

func NewAcademicHandler(departments *service.DepartmentService, courses *service.CourseService, classes *service.ClassService, subjects *service.SubjectService) *AcademicHandler {
	return &AcademicHandler{
		departments: departments,
		courses:     courses,
		classes:     classes,
		subjects:    subjects,
	}
}

func bindError(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload")
}

// ListDepartments godoc
// @Summary List departments
// @Tags Academic
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /departments [get]
func (h *AcademicHandler) ListDepartments(c *gin.Context) {
	departments, err := h.departments.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, departments, nil)
}

// GetDepartment godoc
// @Summary Get a department
// @Tags Academic
// @Produce json
// @Param id path string true "Department ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /departments/{id} [get]
func (h *AcademicHandler) GetDepartment(c *gin.Context) {
	department, err := h.departments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, department, nil)
}

// CreateDepartment godoc
// @Summary Create a department
// @Tags Academic
// @Accept json
// @Produce json
// @Param payload body models.DepartmentRequest true "Department payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /departments [post]
func (h *AcademicHandler) CreateDepartment(c *gin.Context) {
	var req models.DepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	department, err := h.departments.Create(c.Request.Context(), actorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, department)
}

// UpdateDepartment godoc
// @Summary Update a department
// @Tags Academic
// @Accept json
// @Produce json
// @Param id path string true "Department ID"
// @Param payload body models.DepartmentRequest true "Department payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /departments/{id} [put]
func (h *AcademicHandler) UpdateDepartment(c *gin.Context) {
	var req models.DepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	department, err := h.departments.Update(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, department, nil)
}

// DeleteDepartment godoc
// @Summary Delete a department
// @Tags Academic
// @Param id path string true "Department ID"
// @Success 204
// @Security BearerAuth
// @Router /departments/{id} [delete]
func (h *AcademicHandler) DeleteDepartment(c *gin.Context) {
	if err := h.departments.Delete(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListCourses godoc
// @Summary List courses
// @Tags Academic
// @Produce json
// @Param department_id query string false "Filter by department"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses [get]
func (h *AcademicHandler) ListCourses(c *gin.Context) {
	courses, err := h.courses.List(c.Request.Context(), c.Query("department_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// GetCourse godoc
// @Summary Get a course
// @Tags Academic
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id} [get]
func (h *AcademicHandler) GetCourse(c *gin.Context) {
	course, err := h.courses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// CreateCourse godoc
// @Summary Create a course
// @Tags Academic
// @Accept json
// @Produce json
// @Param payload body models.CourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /courses [post]
func (h *AcademicHandler) CreateCourse(c *gin.Context) {
	var req models.CourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	course, err := h.courses.Create(c.Request.Context(), actorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// UpdateCourse godoc
// @Summary Update a course
// @Tags Academic
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body models.CourseRequest true "Course payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id} [put]
func (h *AcademicHandler) UpdateCourse(c *gin.Context) {
	var req models.CourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	course, err := h.courses.Update(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// DeleteCourse godoc
// @Summary Delete a course
// @Tags Academic
// @Param id path string true "Course ID"
// @Success 204
// @Security BearerAuth
// @Router /courses/{id} [delete]
func (h *AcademicHandler) DeleteCourse(c *gin.Context) {
	if err := h.courses.Delete(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListClasses godoc
// @Summary List classes
// @Tags Academic
// @Produce json
// @Param course_id query string false "Filter by course"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /classes [get]
func (h *AcademicHandler) ListClasses(c *gin.Context) {
	classes, err := h.classes.List(c.Request.Context(), c.Query("course_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, nil)
}

// GetClass godoc
// @Summary Get a class
// @Tags Academic
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id} [get]
func (h *AcademicHandler) GetClass(c *gin.Context) {
	class, err := h.classes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// CreateClass godoc
// @Summary Create a class
// @Tags Academic
// @Accept json
// @Produce json
// @Param payload body models.ClassRequest true "Class payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /classes [post]
func (h *AcademicHandler) CreateClass(c *gin.Context) {
	var req models.ClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	class, err := h.classes.Create(c.Request.Context(), actorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, class)
}

// UpdateClass godoc
// @Summary Update a class
// @Tags Academic
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body models.ClassRequest true "Class payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id} [put]
func (h *AcademicHandler) UpdateClass(c *gin.Context) {
	var req models.ClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	class, err := h.classes.Update(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// DeleteClass godoc
// @Summary Delete a class
// @Tags Academic
// @Param id path string true "Class ID"
// @Success 204
// @Security BearerAuth
// @Router /classes/{id} [delete]
func (h *AcademicHandler) DeleteClass(c *gin.Context) {
	if err := h.classes.Delete(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListSubjects godoc
// @Summary List subjects
// @Tags Academic
// @Produce json
// @Param course_id query string false "Filter by course"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /subjects [get]
func (h *AcademicHandler) ListSubjects(c *gin.Context) {
	subjects, err := h.subjects.List(c.Request.Context(), c.Query("course_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, nil)
}

// GetSubject godoc
// @Summary Get a subject
// @Tags Academic
// @Produce json
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /subjects/{id} [get]
func (h *AcademicHandler) GetSubject(c *gin.Context) {
	subject, err := h.subjects.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subject, nil)
}

// CreateSubject godoc
// @Summary Create a subject
// @Tags Academic
// @Accept json
// @Produce json
// @Param payload body models.SubjectRequest true "Subject payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /subjects [post]
func (h *AcademicHandler) CreateSubject(c *gin.Context) {
	var req models.SubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	subject, err := h.subjects.Create(c.Request.Context(), actorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, subject)
}

// UpdateSubject godoc
// @Summary Update a subject
// @Tags Academic
// @Accept json
// @Produce json
// @Param id path string true "Subject ID"
// @Param payload body models.SubjectRequest true "Subject payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /subjects/{id} [put]
func (h *AcademicHandler) UpdateSubject(c *gin.Context) {
	var req models.SubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	subject, err := h.subjects.Update(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subject, nil)
}

// DeleteSubject godoc
// @Summary Delete a subject
// @Tags Academic
// @Param id path string true "Subject ID"
// @Success 204
// @Security BearerAuth
// @Router /subjects/{id} [delete]
func (h *AcademicHandler) DeleteSubject(c *gin.Context) {
	if err := h.subjects.Delete(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
