package httpserver

import (
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (h *handlers) download(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		c.String(http.StatusBadRequest, "missing download token")
		return
	}

	dl, err := h.deps.Downloads.Redeem(c.Request.Context(), token)
	if err != nil {
		writeTextError(c, err)
		return
	}
	defer dl.Body.Close()

	contentType := dl.File.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	size := dl.File.SizeBytes
	if size <= 0 {
		size = -1
	}
	c.DataFromReader(http.StatusOK, size, contentType, dl.Body, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": dl.File.FileName}),
		"Cache-Control":       "no-store",
	})
}
