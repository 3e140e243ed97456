package handler

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bobfox23/Certificate-tool/config"
	"github.com/bobfox23/Certificate-tool/model"
	"github.com/bobfox23/Certificate-tool/pkg/logger"
	"github.com/bobfox23/Certificate-tool/service"
)

type CertificateHandler struct {
	store     *service.CertificateStore
	blobs     service.BlobStore
	processor *service.BatchProcessor
	maxBytes  int64
}

func NewCertificateHandler(store *service.CertificateStore, blobs service.BlobStore, processor *service.BatchProcessor, uploadCfg *config.UploadConfig) *CertificateHandler {
	return &CertificateHandler{
		store:     store,
		blobs:     blobs,
		processor: processor,
		maxBytes:  int64(uploadCfg.MaxSizeMB) * 1024 * 1024,
	}
}

// Upload handles certificate file upload. Files that fail the size or
// type gate are recorded directly in error state and never queued.
func (h *CertificateHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	defer file.Close()

	contentType := detectContentType(header.Filename, header.Header.Get("Content-Type"))

	record := &model.CertificateFile{
		ID:          uuid.New().String(),
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Status:      model.StatusQueued,
		CreatedAt:   time.Now(),
	}

	blobStored := false
	if gateErr := service.ValidateUpload(contentType, header.Size, h.maxBytes); gateErr != nil {
		record.Status = model.StatusError
		record.ErrorMsg = gateErr.Error()
	} else {
		data, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
			return
		}
		if err := h.blobs.Put(c.Request.Context(), record.ID, data, contentType); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store file: " + err.Error()})
			return
		}
		blobStored = true
	}

	if !h.store.Save(record) {
		// No record will ever reference the blob, so drop it again.
		if blobStored {
			if err := h.blobs.Delete(c.Request.Context(), record.ID); err != nil {
				logger.Warn(c.Request.Context(), "failed to delete unreferenced document",
					"file_id", record.ID, "error", err)
			}
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "File limit reached; clear existing files first"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        record.ID,
		"filename":  record.Filename,
		"status":    record.Status,
		"error_msg": record.ErrorMsg,
	})
}

// detectContentType resolves the effective MIME type, falling back to
// the file extension when the browser sent nothing useful.
func detectContentType(filename, headerType string) string {
	if headerType != "" && headerType != "application/octet-stream" {
		// Normalize away charset suffixes
		if i := strings.Index(headerType, ";"); i >= 0 {
			headerType = strings.TrimSpace(headerType[:i])
		}
		return headerType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return headerType
	}
}

// List returns all certificate files without their instance payloads
func (h *CertificateHandler) List(c *gin.Context) {
	files := h.store.List()

	result := make([]gin.H, len(files))
	for i, f := range files {
		result[i] = gin.H{
			"id":         f.ID,
			"filename":   f.Filename,
			"status":     f.Status,
			"error_msg":  f.ErrorMsg,
			"created_at": f.CreatedAt.Format(time.RFC3339),
			"updated_at": f.UpdatedAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusOK, gin.H{"files": result})
}

// Get returns a single certificate file with extraction results
func (h *CertificateHandler) Get(c *gin.Context) {
	id := c.Param("id")

	file := h.store.Get(id)
	if file == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}

	c.JSON(http.StatusOK, file)
}

// Process starts a batch over the currently queued files
func (h *CertificateHandler) Process(c *gin.Context) {
	var req struct {
		APIKey string `json:"api_key"`
	}
	// Body is optional; the stored credential is the fallback.
	_ = c.ShouldBindJSON(&req)

	started, err := h.processor.StartBatch(req.APIKey)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBatchRunning), errors.Is(err, service.ErrExportRunning):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrCredentialMissing):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"started": started})
}

// Clear removes all certificate files and their stored documents
func (h *CertificateHandler) Clear(c *gin.Context) {
	if err := h.store.Clear(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err := h.blobs.Clear(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear stored documents: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "All files cleared"})
}

// SetCredential stores the client-held extraction API key in memory
func (h *CertificateHandler) SetCredential(c *gin.Context) {
	var req struct {
		APIKey string `json:"api_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api_key is required"})
		return
	}

	h.store.SetCredential(req.APIKey)
	c.JSON(http.StatusOK, gin.H{"message": "Credential stored"})
}
