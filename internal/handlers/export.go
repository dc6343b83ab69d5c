package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/alimgiray/bountyscope/internal/models"
	"github.com/alimgiray/bountyscope/internal/services"
	"github.com/alimgiray/bountyscope/pkg/logger"
	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ExportHandler struct {
	exportService *services.ExportService
}

func NewExportHandler(exportService *services.ExportService) *ExportHandler {
	return &ExportHandler{exportService: exportService}
}

// ExportIssues streams the filtered issue listing as an .xlsx download
func (h *ExportHandler) ExportIssues(c *gin.Context) {
	filter, opts, err := models.ParseIssueFilter(c.Request.URL.Query())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": err.Error(),
		})
		return
	}

	var buf bytes.Buffer
	count, err := h.exportService.ExportIssues(&buf, filter, opts)
	if err != nil {
		if errors.Is(err, models.ErrInvalidFilter) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
			return
		}
		logger.WithError(err).Error("Failed to export issues")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to export issues",
		})
		return
	}

	filename := fmt.Sprintf("bounties-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("X-Total-Count", strconv.Itoa(count))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
