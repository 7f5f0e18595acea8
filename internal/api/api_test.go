package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"classattend/internal/attendance"
	"classattend/internal/auth"
	"classattend/internal/directory"
	"classattend/internal/logger"
	"classattend/internal/queue"
	"classattend/internal/report"
	"classattend/internal/session"
	"classattend/internal/store/storetest"
	"classattend/internal/users"
)

func init() { gin.SetMode(gin.TestMode) }

type testServer struct {
	router  *gin.Engine
	jobs    *queue.InMemory
	subject directory.Subject
	ledger  *attendance.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	db := storetest.PrepareDB(t)
	log := logger.Discard()

	accounts := users.NewService(users.NewRepository(db), log)
	accounts.SetCost(bcrypt.MinCost)
	_, err := accounts.SeedDefaults(ctx)
	require.NoError(t, err)

	dirRepo := directory.NewRepository(db)
	dir := directory.NewService(dirRepo, log)
	_, err = dir.SeedSubjects(ctx, directory.DefaultSubjects[:2])
	require.NoError(t, err)
	subject, err := dir.SubjectByCode(ctx, "FOC")
	require.NoError(t, err)

	sessions, err := session.Open(filepath.Join(t.TempDir(), "sessions.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sessions.Close() })

	ledgerRepo := attendance.NewRepository(db)
	ledger := attendance.NewService(db, ledgerRepo, dirRepo, nil, log, attendance.Options{})
	t.Cleanup(ledger.Wait)

	jobs := queue.NewInMemory(8)
	h := New(Deps{
		Users:           accounts,
		Sessions:        sessions,
		Directory:       dir,
		Ledger:          ledger,
		Reports:         report.NewService(db, dirRepo, ledgerRepo, map[string]int{"FOC": 3}),
		Devices:         auth.NewDevices(db, auth.NewSigner("test", "secret", time.Minute, time.Hour)),
		Jobs:            jobs,
		Log:             log,
		RateLimitPerMin: 1000,
	})
	return &testServer{router: h.Router(), jobs: jobs, subject: subject, ledger: ledger}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	out := map[string]any{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	w, body := s.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"username": username, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	token := s.login(t, "admin", "admin123")
	w, body := s.do(t, http.MethodGet, "/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body["permissions"], "manage_users")
	assert.Equal(t, "Head of Department", body["role_title"])

	w, _ = s.do(t, http.MethodPost, "/v1/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = s.do(t, http.MethodGet, "/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPermissions(t *testing.T) {
	s := newTestServer(t)
	teacher := s.login(t, "teacher", "teacher123")

	w, _ := s.do(t, http.MethodPost, "/v1/students", teacher, gin.H{"roll_no": "R01", "name": "Asha Rao"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodGet, "/v1/users", teacher, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodGet, "/v1/students", teacher, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPermissionCheck(t *testing.T) {
	s := newTestServer(t)
	teacher := s.login(t, "teacher", "teacher123")

	w, body := s.do(t, http.MethodGet, "/v1/auth/can/take_attendance", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["allowed"])

	w, body = s.do(t, http.MethodGet, "/v1/auth/can/manage_users", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["allowed"])

	w, _ = s.do(t, http.MethodGet, "/v1/auth/can/fly", teacher, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionAdministration(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin", "admin123")
	teacher := s.login(t, "teacher", "teacher123")

	w, _ := s.do(t, http.MethodGet, "/v1/sessions", teacher, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body := s.do(t, http.MethodGet, "/v1/sessions", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["active"])

	w, body = s.do(t, http.MethodGet, "/v1/sessions/latest?username=teacher", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "teacher", body["username"])
	assert.NotContains(t, body, "token")

	w, _ = s.do(t, http.MethodGet, "/v1/sessions/latest?username=nobody", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = s.do(t, http.MethodGet, "/v1/sessions/latest", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = s.do(t, http.MethodDelete, "/v1/sessions", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["revoked"])

	w, _ = s.do(t, http.MethodGet, "/v1/auth/me", teacher, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = s.do(t, http.MethodGet, "/v1/auth/me", admin, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRecognitionAndDailyReport(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin", "admin123")
	teacher := s.login(t, "teacher", "teacher123")

	var ids []string
	for _, st := range []gin.H{
		{"roll_no": "R01", "name": "Asha Rao"},
		{"roll_no": "R02", "name": "Bilal Khan"},
		{"roll_no": "R03", "name": "Chitra Nair"},
	} {
		w, body := s.do(t, http.MethodPost, "/v1/students", admin, st)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		ids = append(ids, body["id"].(string))
	}

	w, _ := s.do(t, http.MethodPost, "/v1/students", admin, gin.H{"roll_no": "R01", "name": "Someone Else"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body := s.do(t, http.MethodGet, "/v1/students?roll_no=R02", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ids[1], body["id"])
	w, _ = s.do(t, http.MethodGet, "/v1/students?roll_no=R99", teacher, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodGet, "/v1/reports/daily?subject_id="+s.subject.ID+"&date=2024-01-10", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var before report.Daily
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &before))
	assert.Equal(t, 3, before.NotMarked)
	assert.Equal(t, report.NoPeriod, before.Period)

	w, body = s.do(t, http.MethodPost, "/v1/recognitions", teacher, gin.H{
		"subject_id":  s.subject.ID,
		"date":        "2024-01-10",
		"period":      "10:15 - 11:15",
		"student_ids": []string{ids[0]},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 3, body["written"])
	assert.NotContains(t, body, "warning")

	w, _ = s.do(t, http.MethodGet, "/v1/reports/daily?subject_id="+s.subject.ID+"&date=2024-01-10", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var after report.Daily
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &after))
	assert.Equal(t, 1, after.Present)
	assert.Equal(t, 2, after.Absent)
	assert.Equal(t, 0, after.NotMarked)
	assert.Equal(t, 33.3, after.PresentPct)
	assert.Equal(t, "10:15-11:15", after.Period)

	w, _ = s.do(t, http.MethodPost, "/v1/recognitions", teacher, gin.H{
		"subject_id": s.subject.ID, "date": "10/01/2024", "period": "10:15-11:15",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/v1/recognitions", teacher, gin.H{
		"subject_id": "missing", "date": "2024-01-10", "period": "10:15-11:15",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// teachers may not edit marks directly
	w, _ = s.do(t, http.MethodPost, "/v1/attendance", teacher, gin.H{
		"student_id": ids[1], "subject_id": s.subject.ID, "date": "2024-01-10", "period": "10:15-11:15", "status": "present",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = s.do(t, http.MethodPost, "/v1/attendance", admin, gin.H{
		"student_id": ids[1], "subject_id": s.subject.ID, "date": "2024-01-10", "period": "10:15-11:15", "status": "present",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w, body = s.do(t, http.MethodGet, "/v1/attendance?status=present", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["records"], 2)

	w, _ = s.do(t, http.MethodGet, "/v1/reports/students/"+ids[0]+"/summary", teacher, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodGet, "/v1/reports/class?from=2024-01-10&to=2024-01-01", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = s.do(t, http.MethodGet, "/v1/reports/class?from=2024-01-01&to=2024-01-31", admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeviceFlow(t *testing.T) {
	s := newTestServer(t)
	teacher := s.login(t, "teacher", "teacher123")

	w, _ := s.do(t, http.MethodPost, "/v1/devices/register", "", gin.H{"device_id": "kiosk-1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body := s.do(t, http.MethodPost, "/v1/devices/register", teacher, gin.H{"device_id": "kiosk-1", "label": "Room 101"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	access := body["access_token"].(string)
	refresh := body["refresh_token"].(string)

	w, body = s.do(t, http.MethodPost, "/v1/devices/recognitions", access, gin.H{
		"subject_id": s.subject.ID, "date": "2024-01-10", "period": "11:15-12:15", "student_ids": []string{},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 0, body["written"])

	// a staff session is not a device token
	w, _ = s.do(t, http.MethodPost, "/v1/devices/recognitions", teacher, gin.H{
		"subject_id": s.subject.ID, "date": "2024-01-10", "period": "11:15-12:15",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body = s.do(t, http.MethodPost, "/v1/devices/refresh", "", gin.H{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEqual(t, refresh, body["refresh_token"])

	w, _ = s.do(t, http.MethodPost, "/v1/devices/refresh", "", gin.H{"refresh_token": refresh})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSyncEnqueuesPublishJob(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin", "admin123")
	teacher := s.login(t, "teacher", "teacher123")

	w, _ := s.do(t, http.MethodPost, "/v1/sync", teacher, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodPost, "/v1/sync", admin, gin.H{"from": "2024-02-01", "to": "2024-01-01"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/v1/sync", admin, gin.H{"subject_id": s.subject.ID, "from": "2024-01-01"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msgs, err := s.jobs.Consume(ctx)
	require.NoError(t, err)
	select {
	case msg := <-msgs:
		assert.Equal(t, queue.TypePublish, msg.Type)
		var job queue.PublishJob
		require.NoError(t, msg.Decode(&job))
		assert.Equal(t, s.subject.ID, job.SubjectID)
		assert.Equal(t, "2024-01-01", job.From)
	case <-ctx.Done():
		t.Fatal("no publish job queued")
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w, _ := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}
