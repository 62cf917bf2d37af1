package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/davomat-bot/internal/service"
	appErrors "github.com/noah-isme/davomat-bot/pkg/errors"
	"github.com/noah-isme/davomat-bot/pkg/response"
)

type summaryExporter interface {
	SummaryCSV(ctx context.Context, scope service.SummaryScope) ([]byte, error)
	SummaryPDF(ctx context.Context, scope service.SummaryScope) ([]byte, error)
}

// ReportHandler serves absence summary downloads for operators who prefer
// a spreadsheet over chat messages.
type ReportHandler struct {
	reports summaryExporter
}

// NewReportHandler constructs the handler.
func NewReportHandler(reports summaryExporter) *ReportHandler {
	return &ReportHandler{reports: reports}
}

func scopeFrom(c *gin.Context) (service.SummaryScope, error) {
	switch c.DefaultQuery("scope", string(service.ScopeLifetime)) {
	case string(service.ScopeLifetime):
		return service.ScopeLifetime, nil
	case string(service.ScopeMonth):
		return service.ScopeMonth, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "scope must be lifetime or month")
	}
}

// SummaryCSV streams the absence summary as CSV.
func (h *ReportHandler) SummaryCSV(c *gin.Context) {
	scope, err := scopeFrom(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	raw, err := h.reports.SummaryCSV(c.Request.Context(), scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("absences_%s_%s.csv", scope, time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", raw)
}

// SummaryPDF streams the absence summary as PDF.
func (h *ReportHandler) SummaryPDF(c *gin.Context) {
	scope, err := scopeFrom(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	raw, err := h.reports.SummaryPDF(c.Request.Context(), scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("absences_%s_%s.pdf", scope, time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", raw)
}
