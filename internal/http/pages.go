package http

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"parcel-tracker/internal/domain"
)

// registerPages serves the browser front-end when a public directory is
// configured. Unmatched GET requests fall through to static files.
func (h *Handler) registerPages(router *gin.Engine) {
	dir := h.opts.PublicDir
	if dir == "" {
		return
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		h.logger.Warnf("public dir %s not usable, pages disabled", dir)
		return
	}

	page := func(name string) gin.HandlerFunc {
		file := filepath.Join(dir, name)
		return func(c *gin.Context) {
			c.File(file)
		}
	}

	router.GET("/login", page("login.html"))
	router.GET("/register", page("register.html"))
	router.GET("/", h.sessions.RequireLogin(), page("index.html"))
	router.GET("/tracking", h.sessions.RequireLogin(), page("tracking.html"))
	router.GET("/admin", h.sessions.RequireLogin(), h.sessions.RequireRole(h.users, domain.RoleAdmin), page("admin.html"))

	fs := http.Dir(dir)
	router.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.FileFromFS(c.Request.URL.Path, fs)
	})
}
