package controllers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/marketplace-client/logger"
	"github.com/kendall-kelly/marketplace-client/utils"
	"go.uber.org/zap"
)

var stagedContentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".heic": "image/heic",
}

// ResolveAttachment handles GET /api/v1/attachments/resolve?ref=...
func (ctl *Controller) ResolveAttachment(c *gin.Context) {
	ref := strings.TrimSpace(c.Query("ref"))
	if ref == "" {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "ref is required")
		return
	}

	url, err := ctl.Resolver.ResolveURL(c.Request.Context(), ref)
	if err != nil {
		logger.Error("attachment url resolution failed", zap.String("ref", ref), zap.Error(err))
		respondError(c, http.StatusBadGateway, "RESOLVE_FAILED", "Failed to resolve attachment URL")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"ref": ref,
			"url": url,
		},
	})
}

// GetStagedAttachment handles GET /api/v1/attachments/staged/:filename - previews
// an attachment that has been picked but not delivered yet
func GetStagedAttachment(c *gin.Context) {
	filename := c.Param("filename")

	if filename == "" {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Filename is required")
		return
	}

	// Security: Prevent directory traversal attacks
	if strings.Contains(filename, "..") || strings.Contains(filename, "/") || strings.Contains(filename, "\\") {
		respondError(c, http.StatusBadRequest, "INVALID_FILENAME", "Invalid filename")
		return
	}

	contentType, ok := stagedContentTypes[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		respondError(c, http.StatusBadRequest, "INVALID_FILE_TYPE", "Only image attachments can be previewed")
		return
	}

	filePath := filepath.Join(utils.StagingDir, filename)
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		respondError(c, http.StatusNotFound, "FILE_NOT_FOUND", "Attachment not found")
		return
	}

	// staged files disappear once delivered
	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "no-store")
	c.File(filePath)
}
