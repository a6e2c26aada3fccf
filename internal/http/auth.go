package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parcel-tracker/internal/domain"
	"parcel-tracker/internal/session"
)

type registerRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
	Dorm     string `json:"dorm" form:"dorm"`
}

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

type darkModeRequest struct {
	Enabled *bool `json:"enabled"`
}

type UserResponse struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	DormNumber string `json:"dorm_number"`
}

type LoginUserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Dorm     string `json:"dorm"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := bindBody(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.Register(c.Request.Context(), req.Username, req.Password, req.Dorm)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered",
		"user":    userToResponse(user),
	})
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := bindBody(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if _, err := h.sessions.Start(c, user.ID); err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.WithField("user_id", user.ID).Info("user logged in")
	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"user": LoginUserResponse{
			ID:       user.ID,
			Username: user.Username,
			Dorm:     user.DormNumber,
		},
	})
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.sessions.Destroy(c); err != nil {
		h.logger.WithError(err).Error("logout")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not log out"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (h *Handler) me(c *gin.Context) {
	id, _ := session.UserID(c)
	c.JSON(http.StatusOK, gin.H{"user": gin.H{"id": id}})
}

func (h *Handler) getDarkMode(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"darkMode": session.FromContext(c).DarkMode})
}

func (h *Handler) setDarkMode(c *gin.Context) {
	var req darkModeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid dark mode value"})
		return
	}

	s := session.FromContext(c)
	s.DarkMode = *req.Enabled
	if err := h.sessions.Save(c, s); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Dark mode preference saved",
		"darkMode": s.DarkMode,
	})
}

func userToResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:         user.ID,
		Username:   user.Username,
		DormNumber: user.DormNumber,
	}
}
