package http

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/sirupsen/logrus"

	"parcel-tracker/internal/domain"
	"parcel-tracker/internal/session"
)

type trackingRequest struct {
	TrackingNumber string `json:"trackingNumber" form:"trackingNumber"`
}

type statusUpdateRequest struct {
	TrackingNumber string `json:"trackingNumber" form:"trackingNumber"`
	Status         string `json:"status" form:"status"`
}

// userId may arrive as a JSON number or a numeric string.
type trackingListRequest struct {
	UserID any `json:"userId"`
}

type TrackingResponse struct {
	ID             int64                 `json:"id"`
	UserID         int64                 `json:"user_id"`
	TrackingNumber string                `json:"tracking_number"`
	Status         domain.TrackingStatus `json:"status"`
	CreatedAt      string                `json:"created_at"`
}

type TrackingListItem struct {
	TrackingNumber string                `json:"tracking_number"`
	Status         domain.TrackingStatus `json:"status"`
	CreatedAt      string                `json:"created_at"`
}

func (h *Handler) addTracking(c *gin.Context) {
	var req trackingRequest
	if err := bindBody(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, _ := session.UserID(c)
	tn, err := h.tracking.Add(c.Request.Context(), userID, req.TrackingNumber)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"user_id":         userID,
		"tracking_number": tn.TrackingNumber,
	}).Info("tracking number added")
	c.JSON(http.StatusCreated, gin.H{
		"message":  "Tracking added",
		"tracking": trackingToResponse(*tn),
	})
}

func (h *Handler) listTracking(c *gin.Context) {
	var raw any
	if c.ContentType() == binding.MIMEJSON {
		var req trackingListRequest
		if err := bindBody(c, &req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or missing user ID"})
			return
		}
		raw = req.UserID
	} else {
		raw = c.PostForm("userId")
	}

	userID, ok := parseUserID(raw)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or missing user ID"})
		return
	}

	numbers, err := h.tracking.ListByUser(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := make([]TrackingListItem, len(numbers))
	for i := range numbers {
		resp[i] = TrackingListItem{
			TrackingNumber: numbers[i].TrackingNumber,
			Status:         numbers[i].Status,
			CreatedAt:      formatTime(numbers[i].CreatedAt),
		}
	}
	c.JSON(http.StatusOK, gin.H{"trackingNumbers": resp})
}

func (h *Handler) deleteTracking(c *gin.Context) {
	var req trackingRequest
	if err := bindBody(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	deleted, err := h.tracking.Delete(c.Request.Context(), req.TrackingNumber)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Tracking number deleted",
		"deleted": trackingToResponse(*deleted),
	})
}

func (h *Handler) trackingStatus(c *gin.Context) {
	var req trackingRequest
	if err := bindBody(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := h.tracking.Status(c.Request.Context(), req.TrackingNumber)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trackingNumber": req.TrackingNumber,
		"status":         status,
	})
}

func (h *Handler) updateStatus(c *gin.Context) {
	var req statusUpdateRequest
	if err := bindBody(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.tracking.UpdateStatus(c.Request.Context(), req.TrackingNumber, req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "Status updated",
		"trackingNumber": req.TrackingNumber,
		"status":         updated.Status,
	})
}

func parseUserID(v any) (int64, bool) {
	switch id := v.(type) {
	case float64:
		if id <= 0 || id != math.Trunc(id) || id > math.MaxInt64 {
			return 0, false
		}
		return int64(id), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil || n <= 0 {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func trackingToResponse(tn domain.TrackingNumber) TrackingResponse {
	return TrackingResponse{
		ID:             tn.ID,
		UserID:         tn.OwnerUserID,
		TrackingNumber: tn.TrackingNumber,
		Status:         tn.Status,
		CreatedAt:      formatTime(tn.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
