package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"parcel-tracker/internal/domain"
	"parcel-tracker/internal/service"
	"parcel-tracker/internal/session"
)

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Options carries the optional parts of the HTTP surface.
type Options struct {
	PublicDir string
	RateLimit RateLimitConfig
	DB        Pinger
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	users    service.UserService
	tracking service.TrackingService
	scans    *service.ScanService
	reports  *service.ReportService
	sessions *session.Manager
	logger   *logrus.Logger
	opts     Options
}

func NewHandler(
	users service.UserService,
	tracking service.TrackingService,
	scans *service.ScanService,
	reports *service.ReportService,
	sessions *session.Manager,
	logger *logrus.Logger,
	opts Options,
) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		users:    users,
		tracking: tracking,
		scans:    scans,
		reports:  reports,
		sessions: sessions,
		logger:   logger,
		opts:     opts,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware(), requestLogger(h.logger), h.sessions.Load())

	limited := rateLimit(h.opts.RateLimit, h.logger)
	router.POST("/register", limited, h.register)
	router.POST("/login", limited, h.login)
	router.POST("/logout", h.logout)

	authed := router.Group("/", h.sessions.RequireLogin())
	{
		authed.POST("/tracking", h.addTracking)
		authed.DELETE("/tracking", h.deleteTracking)
		authed.POST("/tracking_number", h.listTracking)
		authed.POST("/tracking/status", h.trackingStatus)
		authed.GET("/me", h.me)
		authed.GET("/darkmode", h.getDarkMode)
		authed.POST("/darkmode", h.setDarkMode)
	}

	// called by the sorting hardware, which has no session
	router.POST("/tracking/status/update", h.updateStatus)
	router.POST("/readQR", h.readQR)

	api := router.Group("/api")
	{
		api.GET("/health", h.health)
		api.GET("/ready", h.ready)

		admin := api.Group("/admin", h.sessions.RequireLogin(), h.sessions.RequireRole(h.users, domain.RoleAdmin))
		admin.GET("/users", h.adminUsers)
		admin.GET("/tracking", h.adminTracking)
		admin.POST("/export", h.adminExport)
		admin.GET("/exports", h.adminExports)
	}

	h.registerPages(router)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) ready(c *gin.Context) {
	if h.opts.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.opts.DB.PingContext(ctx); err != nil {
			h.logger.WithError(err).Warn("readiness check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
