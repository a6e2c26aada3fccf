package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"parcel-tracker/internal/domain"
	"parcel-tracker/internal/storage"
)

type AdminUserResponse struct {
	ID         int64       `json:"id"`
	Username   string      `json:"username"`
	DormNumber string      `json:"dorm_number"`
	Role       domain.Role `json:"role"`
}

type AdminTrackingResponse struct {
	TrackingNumber string                `json:"tracking_number"`
	Status         domain.TrackingStatus `json:"status"`
	CreatedAt      string                `json:"created_at"`
	Username       string                `json:"username"`
	DormNumber     string                `json:"dorm_number"`
}

type StorageObjectResponse struct {
	Key          string  `json:"key"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified,omitempty"`
}

func (h *Handler) adminUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := make([]AdminUserResponse, len(users))
	for i, u := range users {
		resp[i] = AdminUserResponse{
			ID:         u.ID,
			Username:   u.Username,
			DormNumber: u.DormNumber,
			Role:       u.Role,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) adminTracking(c *gin.Context) {
	entries, err := h.tracking.ListAll(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := make([]AdminTrackingResponse, len(entries))
	for i, e := range entries {
		resp[i] = AdminTrackingResponse{
			TrackingNumber: e.TrackingNumber.TrackingNumber,
			Status:         e.Status,
			CreatedAt:      formatTime(e.CreatedAt),
			Username:       e.Username,
			DormNumber:     e.DormNumber,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) adminExport(c *gin.Context) {
	res, err := h.reports.ExportTracking(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.WithField("location", res.Location).Infof("exported %d tracking entries", res.Entries)
	c.JSON(http.StatusOK, gin.H{
		"location": res.Location,
		"url":      res.URL,
	})
}

func (h *Handler) adminExports(c *gin.Context) {
	objects, err := h.reports.ListExports(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := make([]StorageObjectResponse, len(objects))
	for i := range objects {
		resp[i] = objectToResponse(objects[i])
	}
	c.JSON(http.StatusOK, resp)
}

func objectToResponse(obj storage.ObjectInfo) StorageObjectResponse {
	resp := StorageObjectResponse{
		Key:  obj.Key,
		Size: obj.Size,
	}
	if obj.LastModified != nil && !obj.LastModified.IsZero() {
		v := obj.LastModified.Format(time.RFC3339)
		resp.LastModified = &v
	}
	return resp
}
