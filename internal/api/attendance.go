package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"classattend/internal/apperr"
	"classattend/internal/attendance"
	"classattend/internal/auth"
	"classattend/internal/queue"
)

// parseDate reads a YYYY-MM-DD value. An empty value yields the zero time
// unless required is set.
func parseDate(field, v string, required bool) (time.Time, error) {
	if v == "" {
		if required {
			return time.Time{}, apperr.E(apperr.KindValidation, "api.parseDate", fmt.Errorf("%s is required", field),
				apperr.FieldError{Field: field, Error: "is required"})
		}
		return time.Time{}, nil
	}
	t, err := attendance.ParseDate(v)
	if err != nil {
		return time.Time{}, apperr.E(apperr.KindValidation, "api.parseDate", err,
			apperr.FieldError{Field: field, Error: "want YYYY-MM-DD"})
	}
	return t, nil
}

type recognitionRequest struct {
	SubjectID  string   `json:"subject_id" binding:"required"`
	Date       string   `json:"date" binding:"required"`
	Period     string   `json:"period" binding:"required"`
	StudentIDs []string `json:"student_ids"`
}

func (h *Handler) finalize(c *gin.Context, source string) {
	var req recognitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	date, err := parseDate("date", req.Date, true)
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.Ledger.Finalize(c.Request.Context(), req.SubjectID, date, req.Period, req.StudentIDs)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info("recognition batch from %s: subject %s %s %s, %d ids", source, req.SubjectID, res.Date, res.Period, len(req.StudentIDs))
	body := gin.H{"result": res, "written": res.Written()}
	if res.Mismatch() {
		body["warning"] = "some rows could not be written; check failed ids"
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) deviceRecognition(c *gin.Context) {
	claims, _ := auth.CurrentDevice(c)
	h.finalize(c, "device "+claims.Subject)
}

func (h *Handler) staffRecognition(c *gin.Context) {
	sess, _ := auth.CurrentSession(c)
	h.finalize(c, "user "+sess.Username)
}

func (h *Handler) markAttendance(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id" binding:"required"`
		SubjectID string `json:"subject_id" binding:"required"`
		Date      string `json:"date" binding:"required"`
		Period    string `json:"period" binding:"required"`
		Status    string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	date, err := parseDate("date", req.Date, true)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Ledger.MarkAttendance(c.Request.Context(), req.StudentID, req.SubjectID, date, req.Period, req.Status); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": req.Status})
}

func (h *Handler) listAttendance(c *gin.Context) {
	f := attendance.Filter{
		StudentID: c.Query("student_id"),
		SubjectID: c.Query("subject_id"),
		Limit:     100,
	}
	var err error
	if f.From, err = parseDate("from", c.Query("from"), false); err != nil {
		h.fail(c, err)
		return
	}
	if f.To, err = parseDate("to", c.Query("to"), false); err != nil {
		h.fail(c, err)
		return
	}
	if v := c.Query("period"); v != "" {
		p, err := attendance.ParsePeriod(v)
		if err != nil {
			badRequest(c, err)
			return
		}
		f.Period = p
	}
	if v := c.Query("status"); v != "" {
		st, err := attendance.ParseStatus(v)
		if err != nil {
			badRequest(c, err)
			return
		}
		f.Status = st
	}
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.ParseUint(v, 10, 64); err == nil {
			f.Limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.ParseUint(v, 10, 64); err == nil {
			f.Offset = parsed
		}
	}
	rows, err := h.Ledger.List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": rows})
}

func (h *Handler) dailyReport(c *gin.Context) {
	date, err := parseDate("date", c.Query("date"), true)
	if err != nil {
		h.fail(c, err)
		return
	}
	rep, err := h.Reports.DailyReport(c.Request.Context(), c.Query("subject_id"), date)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *Handler) classDay(c *gin.Context) {
	date, err := parseDate("date", c.Query("date"), true)
	if err != nil {
		h.fail(c, err)
		return
	}
	rep, err := h.Reports.ClassDay(c.Request.Context(), date)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *Handler) classSummary(c *gin.Context) {
	from, err := parseDate("from", c.Query("from"), true)
	if err != nil {
		h.fail(c, err)
		return
	}
	to, err := parseDate("to", c.Query("to"), true)
	if err != nil {
		h.fail(c, err)
		return
	}
	rep, err := h.Reports.ClassSummary(c.Request.Context(), from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *Handler) studentSummary(c *gin.Context) {
	rep, err := h.Reports.StudentSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *Handler) studentHistory(c *gin.Context) {
	rows, err := h.Reports.StudentHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": rows})
}

func (h *Handler) requestSync(c *gin.Context) {
	var req queue.PublishJob
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	from, err := parseDate("from", req.From, false)
	if err != nil {
		h.fail(c, err)
		return
	}
	to, err := parseDate("to", req.To, false)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		h.fail(c, apperr.Validation("api.requestSync", "from %s is after to %s", req.From, req.To))
		return
	}
	if req.SubjectID != "" {
		if _, err := h.Directory.GetSubject(c.Request.Context(), req.SubjectID); err != nil {
			h.fail(c, err)
			return
		}
	}
	msg, err := queue.NewMessage(queue.TypePublish, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Jobs.Publish(c.Request.Context(), msg); err != nil {
		h.log.Error("queue publish failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sync queue unavailable"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": true, "job": req})
}
