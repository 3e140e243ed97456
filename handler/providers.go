package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bobfox23/Certificate-tool/service"
)

type ProviderHandler struct {
	store *service.CertificateStore
}

func NewProviderHandler(store *service.CertificateStore) *ProviderHandler {
	return &ProviderHandler{store: store}
}

// Load parses a pasted provider spreadsheet export and atomically
// replaces the provider table.
func (h *ProviderHandler) Load(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	table, count := service.ParseProviderTable(req.Text)
	h.store.ReplaceProviderTable(table)

	c.JSON(http.StatusOK, gin.H{
		"loaded":  count,
		"entries": len(table),
	})
}

// Summary returns the size of the current provider table
func (h *ProviderHandler) Summary(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entries": h.store.ProviderCount()})
}
