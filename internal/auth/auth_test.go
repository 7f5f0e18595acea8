package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classattend/internal/apperr"
	"classattend/internal/session"
	"classattend/internal/store/storetest"
	"classattend/internal/users"
)

func init() { gin.SetMode(gin.TestMode) }

func TestSignerIssueAndParse(t *testing.T) {
	s := NewSigner("attendance-ledger", "secret", time.Minute, time.Hour)
	pair, err := s.Issue("kiosk-1", RoleDevice)
	require.NoError(t, err)

	claims, err := s.Parse(pair.AccessToken, KindAccess)
	require.NoError(t, err)
	assert.Equal(t, "kiosk-1", claims.Subject)
	assert.Equal(t, RoleDevice, claims.Role)

	_, err = s.Parse(pair.RefreshToken, KindAccess)
	assert.ErrorIs(t, err, ErrWrongKind)

	other := NewSigner("someone-else", "secret", time.Minute, time.Hour)
	_, err = other.Parse(pair.AccessToken, KindAccess)
	assert.Error(t, err)

	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = s.Parse(pair.AccessToken, KindAccess)
	assert.Error(t, err)
}

func TestDeviceRegisterAndRefresh(t *testing.T) {
	db := storetest.PrepareDB(t)
	devices := NewDevices(db, NewSigner("iss", "secret", time.Minute, time.Hour))
	ctx := context.Background()

	_, err := devices.Register(ctx, " ", "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	pair, err := devices.Register(ctx, "kiosk-1", "Room 101")
	require.NoError(t, err)
	// registering again is idempotent for the device row
	_, err = devices.Register(ctx, "kiosk-1", "Room 101")
	require.NoError(t, err)

	next, err := devices.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// rotated token cannot be reused
	_, err = devices.Refresh(ctx, pair.RefreshToken)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	require.NoError(t, devices.Revoke(ctx, next.RefreshToken))
	_, err = devices.Refresh(ctx, next.RefreshToken)
	assert.Error(t, err)

	_, err = devices.Refresh(ctx, next.AccessToken)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

type fakeSessions map[string]session.Session

func (f fakeSessions) Validate(_ context.Context, token string) (session.Session, error) {
	if token == "unreachable" {
		return session.Session{}, apperr.Storage("session.Validate", context.DeadlineExceeded)
	}
	s, ok := f[token]
	if !ok {
		return session.Session{}, session.ErrInvalid
	}
	return s, nil
}

func TestSessionAuthAndPermissions(t *testing.T) {
	sessions := fakeSessions{
		"hod":     {Username: "admin", User: session.Snapshot{Username: "admin", Role: string(users.RoleHOD)}},
		"teacher": {Username: "teacher", User: session.Snapshot{Username: "teacher", Role: string(users.RoleTeacher)}},
	}
	r := gin.New()
	g := r.Group("/", SessionAuth(sessions))
	g.GET("/users", RequirePermission(users.PermManageUsers), func(c *gin.Context) {
		sess, _ := CurrentSession(c)
		c.String(http.StatusOK, sess.Username)
	})

	tests := []struct {
		name   string
		header string
		cookie string
		want   int
	}{
		{"no token", "", "", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", "", http.StatusUnauthorized},
		{"store unavailable", "Bearer unreachable", "", http.StatusServiceUnavailable},
		{"hod via header", "Bearer hod", "", http.StatusOK},
		{"hod via cookie", "", "hod", http.StatusOK},
		{"teacher lacks permission", "bearer teacher", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/users", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestDeviceAuth(t *testing.T) {
	signer := NewSigner("iss", "secret", time.Minute, time.Hour)
	pair, err := signer.Issue("kiosk-1", RoleDevice)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/d", DeviceAuth(signer), func(c *gin.Context) {
		claims, _ := CurrentDevice(c)
		c.String(http.StatusOK, claims.Subject)
	})

	do := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/d", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}
	w := do(pair.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "kiosk-1", w.Body.String())
	assert.Equal(t, http.StatusUnauthorized, do(pair.RefreshToken).Code)
	assert.Equal(t, http.StatusUnauthorized, do("").Code)
}
