package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) readQR(c *gin.Context) {
	res, err := h.scans.Resolve(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("read qr")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "QR read successfully!",
		"qr_text":      res.QRText,
		"mapped_label": res.MappedLabel,
	})
}
