package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classattend/internal/directory"
)

func (h *Handler) listSubjects(c *gin.Context) {
	list, err := h.Directory.ListSubjects(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subjects": list})
}

func (h *Handler) subjectStudents(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.Directory.GetSubject(ctx, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	list, err := h.Directory.ListEnrolledStudents(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": list})
}

func (h *Handler) listStudents(c *gin.Context) {
	if roll := c.Query("roll_no"); roll != "" {
		st, err := h.Directory.StudentByRoll(c.Request.Context(), roll)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
		return
	}
	list, err := h.Directory.ListStudents(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": list})
}

func (h *Handler) createStudent(c *gin.Context) {
	var req directory.NewStudent
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	st, err := h.Directory.RegisterStudent(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *Handler) getStudent(c *gin.Context) {
	st, err := h.Directory.GetStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) updateStudent(c *gin.Context) {
	var req directory.StudentUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	st, err := h.Directory.UpdateStudent(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) deleteStudent(c *gin.Context) {
	if err := h.Directory.DeleteStudent(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) studentSubjects(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.Directory.GetStudent(ctx, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	list, err := h.Directory.ListEnrolledSubjects(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subjects": list})
}

func (h *Handler) enroll(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id" binding:"required"`
		SubjectID string `json:"subject_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	// an empty subject enrolls the student in the whole catalogue
	if req.SubjectID == "" {
		n, err := h.Directory.EnrollInAll(ctx, req.StudentID)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"created": n})
		return
	}
	if err := h.Directory.Enroll(ctx, req.StudentID, req.SubjectID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"student_id": req.StudentID, "subject_id": req.SubjectID})
}

func (h *Handler) bulkEnroll(c *gin.Context) {
	n, err := h.Directory.BulkEnrollAll(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": n})
}

func (h *Handler) enrollmentStatus(c *gin.Context) {
	list, err := h.Directory.EnrollmentStatus(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	incomplete := 0
	for _, st := range list {
		if !st.Complete() {
			incomplete++
		}
	}
	c.JSON(http.StatusOK, gin.H{"students": list, "incomplete": incomplete})
}
