package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/tornproxy/internal/common"
	"github.com/dmitrijs2005/tornproxy/internal/logging"
	"github.com/dmitrijs2005/tornproxy/internal/server/gateway"
	"github.com/dmitrijs2005/tornproxy/internal/server/models"
	"github.com/gin-gonic/gin"
)

type handlers struct {
	*Server
	log logging.Logger
}

type authenticateRequest struct {
	Key string `json:"key" binding:"required"`
}

type createCredentialRequest struct {
	Description string `json:"description"`
}

type userResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (h *handlers) authenticate(c *gin.Context) {
	var req authenticateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_message": "invalid payload"})
		return
	}

	user, sess, err := h.Sessions.Authenticate(c.Request.Context(), req.Key)
	if err != nil {
		var authErr *common.UpstreamAuthError
		switch {
		case errors.As(err, &authErr):
			c.Data(http.StatusUnauthorized, "application/json; charset=utf-8", authErr.Payload)
		case errors.Is(err, common.ErrUpstreamForward):
			c.JSON(http.StatusBadGateway, errorBody(err))
		default:
			h.log.Error(c.Request.Context(), "authenticate failed", "error", err)
			c.JSON(http.StatusInternalServerError, errorBody(common.ErrorInternal))
		}
		return
	}

	h.setSessionCookie(c, sess.Token, int(time.Until(sess.ExpiresAt).Seconds()))
	c.JSON(http.StatusOK, userResponse{ID: user.ID, Name: user.Name})
}

func (h *handlers) me(c *gin.Context) {
	user, err := h.Sessions.Me(c.Request.Context(), userIDFrom(c))
	if err != nil {
		if errors.Is(err, common.ErrSession) {
			abortUnauthenticated(c)
			return
		}
		c.JSON(http.StatusInternalServerError, errorBody(common.ErrorInternal))
		return
	}
	c.JSON(http.StatusOK, userResponse{ID: user.ID, Name: user.Name})
}

func (h *handlers) lock(c *gin.Context) {
	token, _ := c.Cookie(common.SessionCookieName)
	h.setSessionCookie(c, "", -1)

	if err := h.Sessions.Revoke(c.Request.Context(), token); err != nil {
		h.log.Error(c.Request.Context(), "lock failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorBody(common.ErrorInternal))
		return
	}

	c.JSON(http.StatusCreated, gin.H{})
}

func (h *handlers) listCredentials(c *gin.Context) {
	list, err := h.Credentials.List(c.Request.Context(), userIDFrom(c))
	h.respondList(c, list, err)
}

func (h *handlers) createCredential(c *gin.Context) {
	var req createCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_message": "invalid payload"})
		return
	}

	list, err := h.Credentials.Create(c.Request.Context(), userIDFrom(c), req.Description)
	h.respondList(c, list, err)
}

func (h *handlers) updateCredential(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_message": "invalid payload"})
		return
	}

	upd, err := models.DecodeCredentialUpdate(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_message": "invalid payload"})
		return
	}

	list, err := h.Credentials.Update(c.Request.Context(), c.Param("token"), userIDFrom(c), upd)
	h.respondList(c, list, err)
}

func (h *handlers) respondList(c *gin.Context, list []*models.ProxyCredential, err error) {
	if err != nil {
		h.log.Error(c.Request.Context(), "credential operation failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorBody(common.ErrorInternal))
		return
	}
	if list == nil {
		list = []*models.ProxyCredential{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *handlers) healthz(c *gin.Context) {
	if h.Health != nil {
		if err := h.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) proxy(c *gin.Context) {
	path := c.Request.URL.Path

	resp, err := h.Proxy.Handle(c.Request.Context(), path, c.Request.URL.Query())
	if err != nil {
		status, env := gateway.Normalize(gateway.HostFor(path), err)
		c.JSON(status, env)
		return
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, resp.Body)
}

func (h *handlers) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(common.SessionCookieName, value, maxAge, "/", "", h.SecureCookie, true)
}
