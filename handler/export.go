package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bobfox23/Certificate-tool/service"
)

type ExportHandler struct {
	reconciler *service.ReconciliationService
}

func NewExportHandler(reconciler *service.ReconciliationService) *ExportHandler {
	return &ExportHandler{reconciler: reconciler}
}

// Archive streams the provider-partitioned ZIP of original documents
func (h *ExportHandler) Archive(c *gin.Context) {
	data, err := h.reconciler.BuildArchive(c.Request.Context())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExportEmpty):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrBatchRunning), errors.Is(err, service.ErrExportRunning):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+service.ArchiveName+`"`)
	c.Data(http.StatusOK, "application/zip", data)
}

// Report renders the reconciled game table as TSV. The wide variant is
// one row per (file, instance); the narrow variant is deduplicated by
// game name and sorted by provider.
func (h *ExportHandler) Report(c *gin.Context) {
	var body string
	switch c.DefaultQuery("format", "wide") {
	case "wide":
		body = h.reconciler.WideReport()
	case "narrow":
		body = h.reconciler.NarrowReport()
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be wide or narrow"})
		return
	}

	c.Data(http.StatusOK, "text/tab-separated-values; charset=utf-8", []byte(body))
}

// Workbook renders the narrow report as an XLSX download
func (h *ExportHandler) Workbook(c *gin.Context) {
	data, err := h.reconciler.NarrowWorkbook()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="GameCertificates.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
