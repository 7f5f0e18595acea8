// Package api exposes the ledger, directory and reports over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classattend/internal/attendance"
	"classattend/internal/auth"
	"classattend/internal/directory"
	"classattend/internal/httpmiddleware"
	"classattend/internal/logger"
	"classattend/internal/queue"
	"classattend/internal/report"
	"classattend/internal/session"
	"classattend/internal/users"
)

// Deps are the collaborators the HTTP layer calls.
type Deps struct {
	Users     *users.Service
	Sessions  *session.Store
	Directory *directory.Service
	Ledger    *attendance.Service
	Reports   *report.Service
	Devices   *auth.Devices
	Jobs      queue.Queue
	Log       logger.Logger
	// Health reports named dependency checks for /healthz.
	Health func(ctx context.Context) map[string]bool

	RateLimitPerMin int
	SecureCookies   bool
}

// Handler holds the route handlers.
type Handler struct {
	Deps
	log logger.Logger
}

// New creates a handler.
func New(d Deps) *Handler {
	if d.Log == nil {
		d.Log = logger.Discard()
	}
	return &Handler{Deps: d, log: d.Log}
}

// Router builds the gin engine with every route mounted.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}))
	r.Use(securityHeaders())

	perIP := httpmiddleware.NewSimpleTokenBucket(h.RateLimitPerMin, h.RateLimitPerMin)
	r.Use(perIP.GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.healthz)

	v1 := r.Group("/v1")
	v1.POST("/auth/login", h.login)
	v1.POST("/devices/refresh", h.refreshDevice)

	dev := v1.Group("/devices", auth.DeviceAuth(h.Devices.Signer()))
	dev.POST("/recognitions", h.deviceRecognition)

	perUser := httpmiddleware.NewSimpleTokenBucket(h.RateLimitPerMin, h.RateLimitPerMin)
	staff := v1.Group("", auth.SessionAuth(h.Sessions), perUser.Middleware(sessionKey))
	staff.POST("/auth/logout", h.logout)
	staff.GET("/auth/me", h.me)
	staff.POST("/auth/password", h.changePassword)
	staff.GET("/auth/can/:permission", h.can)

	staff.GET("/sessions", auth.RequirePermission(users.PermManageUsers), h.countSessions)
	staff.GET("/sessions/latest", auth.RequirePermission(users.PermManageUsers), h.latestSession)
	staff.DELETE("/sessions", auth.RequirePermission(users.PermManageUsers), h.revokeAllSessions)

	staff.POST("/devices/register", auth.RequirePermission(users.PermTakeAttendance), h.registerDevice)

	staff.GET("/users", auth.RequirePermission(users.PermManageUsers), h.listUsers)
	staff.POST("/users", auth.RequirePermission(users.PermManageUsers), h.createUser)
	staff.PUT("/users/:id/active", auth.RequirePermission(users.PermManageUsers), h.setUserActive)

	staff.GET("/subjects", h.listSubjects)
	staff.GET("/subjects/:id/students", auth.RequirePermission(users.PermViewClassReports), h.subjectStudents)

	staff.GET("/students", auth.RequirePermission(users.PermViewClassReports), h.listStudents)
	staff.POST("/students", auth.RequirePermission(users.PermManageStudents), h.createStudent)
	staff.GET("/students/:id", auth.RequirePermission(users.PermViewClassReports), h.getStudent)
	staff.PUT("/students/:id", auth.RequirePermission(users.PermManageStudents), h.updateStudent)
	staff.DELETE("/students/:id", auth.RequirePermission(users.PermManageStudents), h.deleteStudent)
	staff.GET("/students/:id/subjects", auth.RequirePermission(users.PermViewClassReports), h.studentSubjects)

	staff.POST("/enrollments", auth.RequirePermission(users.PermManageStudents), h.enroll)
	staff.POST("/enrollments/bulk", auth.RequirePermission(users.PermManageStudents), h.bulkEnroll)
	staff.GET("/enrollments/status", auth.RequirePermission(users.PermManageStudents), h.enrollmentStatus)

	staff.POST("/recognitions", auth.RequirePermission(users.PermTakeAttendance), h.staffRecognition)
	staff.POST("/attendance", auth.RequirePermission(users.PermEditAttendance), h.markAttendance)
	staff.GET("/attendance", auth.RequirePermission(users.PermViewAllReports), h.listAttendance)

	staff.GET("/reports/daily", auth.RequirePermission(users.PermViewClassReports), h.dailyReport)
	staff.GET("/reports/class-day", auth.RequirePermission(users.PermViewClassReports), h.classDay)
	staff.GET("/reports/class", auth.RequirePermission(users.PermViewAllReports), h.classSummary)
	staff.GET("/reports/students/:id/summary", auth.RequirePermission(users.PermViewClassReports), h.studentSummary)
	staff.GET("/reports/students/:id/history", auth.RequirePermission(users.PermViewClassReports), h.studentHistory)

	staff.POST("/sync", auth.RequirePermission(users.PermExportData), h.requestSync)

	return r
}

func sessionKey(c *gin.Context) string {
	if sess, ok := auth.CurrentSession(c); ok {
		return "user:" + sess.Username
	}
	return httpmiddleware.ClientIP(c)
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

func (h *Handler) healthz(c *gin.Context) {
	checks := map[string]bool{}
	if h.Health != nil {
		checks = h.Health(c.Request.Context())
	}
	status := http.StatusOK
	for _, ok := range checks {
		if !ok {
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks})
}
