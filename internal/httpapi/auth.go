package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"otsopos/backend/internal/domain"
)

type grantRequest struct {
	Action string `json:"action" binding:"required"`
	PIN    string `json:"pin" binding:"required"`
}

func (a *API) handleLogin(c *gin.Context) {
	if !a.loginLimiter.Allow(c.ClientIP()) {
		writeError(c, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	op, err := a.auth.Authenticate(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			writeError(c, http.StatusUnauthorized, errors.New("invalid credentials"))
			return
		}
		fail(c, err)
		return
	}

	sess := a.sessions.Start(op)
	token, expiresAt, err := a.auth.IssueToken(op, sess.ID)
	if err != nil {
		a.sessions.End(sess.ID)
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	a.service.Audit(c.Request.Context(), op, "Login", fmt.Sprintf("%s logged in", op.DisplayName()))

	c.JSON(http.StatusOK, domain.LoginResponse{
		AccessToken: token,
		SessionID:   sess.ID,
		Operator:    op,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	})
}

// handleLogout ends the session; its working cart goes with it.
func (a *API) handleLogout(c *gin.Context) {
	sess := currentSession(c)
	a.sessions.End(sess.ID)
	a.service.Audit(c.Request.Context(), sess.Operator, "Logout", fmt.Sprintf("%s logged out", sess.Operator.DisplayName()))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleRequestGrant is the first phase of a gated action. The returned
// token goes in the X-Authorization-Grant header of the gated request.
func (a *API) handleRequestGrant(c *gin.Context) {
	// Keyed per operator, not per address.
	if !a.pinLimiter.Allow(pinLimiterKey(c)) {
		writeError(c, http.StatusTooManyRequests, errors.New("too many PIN attempts"))
		return
	}
	var req grantRequest
	if !bindJSON(c, &req) {
		return
	}
	grant, err := a.auth.RequestAuthorization(c.Request.Context(), operator(c), req.Action, req.PIN)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"grant": grant})
}

func pinLimiterKey(c *gin.Context) string {
	op := operator(c)
	if op.Email != "" {
		return "op:" + strings.ToLower(op.Email)
	}
	return "ip:" + c.ClientIP()
}
