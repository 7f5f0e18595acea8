package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"classattend/internal/auth"
	"classattend/internal/session"
	"classattend/internal/users"
)

func snapshotOf(u users.User) session.Snapshot {
	return session.Snapshot{
		UserID:     u.ID,
		Username:   u.Username,
		Role:       string(u.Role),
		Name:       u.Name,
		Email:      u.Email,
		Department: u.Department,
	}
}

func (h *Handler) setSessionCookie(c *gin.Context, sess session.Session) {
	maxAge := 0
	if sess.Remember {
		maxAge = int(sess.ExpiresAt.Sub(sess.CreatedAt).Seconds())
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.SessionCookie, sess.Token, maxAge, "/", "", h.SecureCookies, true)
}

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
		Remember bool   `json:"remember"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	u, err := h.Users.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	sess, err := h.Sessions.Issue(ctx, u.Username, snapshotOf(u), req.Remember)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.setSessionCookie(c, sess)
	h.log.Info("user %s logged in", u.Username)
	c.JSON(http.StatusOK, gin.H{
		"token":       sess.Token,
		"expires_at":  sess.ExpiresAt,
		"user":        u,
		"permissions": u.Role.Permissions().Names(),
	})
}

func (h *Handler) logout(c *gin.Context) {
	sess, _ := auth.CurrentSession(c)
	if err := h.Sessions.Revoke(c.Request.Context(), sess.Token); err != nil {
		h.fail(c, err)
		return
	}
	c.SetCookie(auth.SessionCookie, "", -1, "/", "", h.SecureCookies, true)
	c.Status(http.StatusNoContent)
}

func (h *Handler) me(c *gin.Context) {
	sess, _ := auth.CurrentSession(c)
	c.JSON(http.StatusOK, gin.H{
		"user":        sess.User,
		"role_title":  users.Role(sess.User.Role).Title(),
		"expires_at":  sess.ExpiresAt,
		"permissions": users.Role(sess.User.Role).Permissions().Names(),
	})
}

// can answers whether the caller's role carries one named permission.
func (h *Handler) can(c *gin.Context) {
	p, err := users.ParsePermission(c.Param("permission"))
	if err != nil {
		badRequest(c, err)
		return
	}
	sess, _ := auth.CurrentSession(c)
	c.JSON(http.StatusOK, gin.H{"permission": p.String(), "allowed": users.Role(sess.User.Role).Can(p)})
}

func (h *Handler) countSessions(c *gin.Context) {
	n, err := h.Sessions.Count(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": n})
}

func (h *Handler) latestSession(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		badRequest(c, errors.New("username required"))
		return
	}
	sess, err := h.Sessions.LatestForUser(c.Request.Context(), username)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"username":   sess.Username,
		"created_at": sess.CreatedAt,
		"expires_at": sess.ExpiresAt,
		"remember":   sess.Remember,
	})
}

// revokeAllSessions logs every user out, the caller included.
func (h *Handler) revokeAllSessions(c *gin.Context) {
	sess, _ := auth.CurrentSession(c)
	n, err := h.Sessions.RevokeAll(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.log.Warn("%s revoked all %d sessions", sess.Username, n)
	c.SetCookie(auth.SessionCookie, "", -1, "/", "", h.SecureCookies, true)
	c.JSON(http.StatusOK, gin.H{"revoked": n})
}

func (h *Handler) changePassword(c *gin.Context) {
	var req struct {
		OldPassword string `json:"old_password" binding:"required"`
		NewPassword string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sess, _ := auth.CurrentSession(c)
	ctx := c.Request.Context()
	if err := h.Users.ChangePassword(ctx, sess.User.UserID, req.OldPassword, req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	// every other session of the user is dropped
	if _, err := h.Sessions.RevokeUser(ctx, sess.Username); err != nil {
		h.log.Warn("revoke sessions for %s: %v", sess.Username, err)
	}
	next, err := h.Sessions.Issue(ctx, sess.Username, sess.User, sess.Remember)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.setSessionCookie(c, next)
	c.JSON(http.StatusOK, gin.H{"token": next.Token, "expires_at": next.ExpiresAt})
}

func (h *Handler) registerDevice(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required"`
		Label    string `json:"label"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tokens, err := h.Devices.Register(c.Request.Context(), req.DeviceID, req.Label)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

func (h *Handler) refreshDevice(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tokens, err := h.Devices.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

func (h *Handler) listUsers(c *gin.Context) {
	list, err := h.Users.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": list})
}

func (h *Handler) createUser(c *gin.Context) {
	var req users.NewUser
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := h.Users.Create(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *Handler) setUserActive(c *gin.Context) {
	active, err := strconv.ParseBool(c.DefaultQuery("active", "true"))
	if err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	u, err := h.Users.Get(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Users.SetActive(ctx, id, active); err != nil {
		h.fail(c, err)
		return
	}
	if !active {
		n, err := h.Sessions.RevokeUser(ctx, u.Username)
		if err != nil {
			h.log.Warn("revoke sessions for %s: %v", u.Username, err)
		} else if n > 0 {
			h.log.Info("revoked %d session(s) of deactivated user %s", n, u.Username)
		}
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "is_active": active})
}
