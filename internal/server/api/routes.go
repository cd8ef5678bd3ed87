// Package api is the HTTP surface of the proxy: the owner management API
// under /api, the proxied upstream paths and a health check.
package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dmitrijs2005/tornproxy/internal/logging"
	"github.com/dmitrijs2005/tornproxy/internal/server/models"
	"github.com/dmitrijs2005/tornproxy/internal/server/services"
	"github.com/dmitrijs2005/tornproxy/internal/server/upstream"
	"github.com/gin-gonic/gin"
)

// SessionManager is implemented by services.SessionService.
type SessionManager interface {
	Authenticate(ctx context.Context, rawSecret string) (*models.User, *services.Session, error)
	Validate(ctx context.Context, token string) (int64, error)
	Revoke(ctx context.Context, token string) error
	Me(ctx context.Context, userID int64) (*models.User, error)
}

// CredentialManager is implemented by services.CredentialService.
type CredentialManager interface {
	List(ctx context.Context, ownerID int64) ([]*models.ProxyCredential, error)
	Create(ctx context.Context, ownerID int64, description string) ([]*models.ProxyCredential, error)
	Update(ctx context.Context, token string, ownerID int64, upd models.CredentialUpdate) ([]*models.ProxyCredential, error)
}

// Proxy is implemented by gateway.Gateway.
type Proxy interface {
	Handle(ctx context.Context, path string, query url.Values) (*upstream.Response, error)
}

// Server holds the handler dependencies.
type Server struct {
	Sessions     SessionManager
	Credentials  CredentialManager
	Proxy        Proxy
	Health       func(ctx context.Context) error
	SecureCookie bool
	Logger       logging.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(s *Server) *gin.Engine {
	if s.Logger == nil {
		s.Logger = logging.Nop()
	}
	log := s.Logger.With("module", "api")

	r := gin.New()
	r.Use(RequestID(), RequestLogger(log), gin.Recovery())

	RegisterRoutes(r, s, log)
	return r
}

// RegisterRoutes registers the management, health and proxy routes.
func RegisterRoutes(r *gin.Engine, s *Server, log logging.Logger) {
	h := &handlers{Server: s, log: log}

	api := r.Group("/api")
	{
		api.POST("/authenticate", h.authenticate)
		api.POST("/lock", h.lock)
		api.GET("/me", SessionAuth(s.Sessions, log), h.me)
	}

	creds := api.Group("/credentials")
	creds.Use(SessionAuth(s.Sessions, log))
	{
		creds.GET("", h.listCredentials)
		creds.POST("", h.createCredential)
		creds.PUT("/:token", h.updateCredential)
	}

	r.GET("/healthz", h.healthz)

	// Proxied upstream paths. The companion host has a fixed prefix; every
	// other GET falls through to the primary host.
	r.GET("/tornstats/*path", h.proxy)
	r.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.JSON(http.StatusNotFound, gin.H{"error_message": "not found"})
			return
		}
		h.proxy(c)
	})
}
