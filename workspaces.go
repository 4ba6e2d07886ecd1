package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/middlewares"
	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"bitbucket.org/mmdatafocus/procurement_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

type createWorkspaceRequest struct {
	SourceFile string                    `json:"source_file"`
	Records    []*models.QuotationRecord `json:"records"`
}

// createWorkspaceHandler opens a verification session over an extracted
// batch.
func createWorkspaceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createWorkspaceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if len(req.Records) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "records are required"})
			return
		}
		if containsNilRecord(req.Records) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "record payload contains null entries"})
			return
		}
		ws := manager.Create(c.Request.Context(), req.SourceFile, req.Records)
		c.JSON(http.StatusCreated, gin.H{
			"workspace_id": ws.ID,
			"source_file":  ws.SourceFile,
			"state":        ws.State(),
			"summary":      ws.Summary(),
		})
	}
}

func loadWorkspace(c *gin.Context) (*workflow.Workspace, bool) {
	ws, err := manager.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "workspace not found"})
		return nil, false
	}
	return ws, true
}

// getWorkspaceHandler returns the batch plus its benchmark analytics.
func getWorkspaceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, ok := loadWorkspace(c)
		if !ok {
			return
		}
		records := ws.Records()

		skus := make([]string, 0, len(records))
		for _, r := range records {
			if r.Sku != nil && strings.TrimSpace(*r.Sku) != "" {
				skus = append(skus, *r.Sku)
			}
		}
		stats, err := middlewares.GetSkuStatsBatch(c.Request.Context(), skus)
		if err != nil {
			stats = map[string]*models.SkuPriceStats{}
		}

		budget := config.DefaultBudgetEstimate()
		if raw := c.Query("budget"); raw != "" {
			if parsed, err := decimal.NewFromString(raw); err == nil && parsed.IsPositive() {
				budget = parsed
			}
		}

		favorable, unfavorable := workflow.PriceVariances(records, stats)
		c.JSON(http.StatusOK, gin.H{
			"workspace_id": ws.ID,
			"source_file":  ws.SourceFile,
			"state":        ws.State(),
			"summary":      ws.Summary(),
			"records":      records,
			"benchmark": gin.H{
				"favorable_variances":   favorable,
				"unfavorable_variances": unfavorable,
				"quantity_comparisons":  workflow.QuantityComparisons(records, stats),
				"spend_impact":          workflow.SpendImpact(records, budget),
			},
		})
	}
}

type editCellRequest struct {
	RowIndex int                `json:"row_index"`
	Field    models.RecordField `json:"field"`
	Value    *string            `json:"value"`
}

func editWorkspaceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, ok := loadWorkspace(c)
		if !ok {
			return
		}
		var req editCellRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if !req.Field.Known() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown field " + string(req.Field)})
			return
		}
		if err := ws.EditCell(c.Request.Context(), req.RowIndex, req.Field, req.Value); err != nil {
			c.JSON(workspaceErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"summary": ws.Summary()})
	}
}

type markDeleteRequest struct {
	RowIndex int `json:"row_index"`
}

func markDeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, ok := loadWorkspace(c)
		if !ok {
			return
		}
		var req markDeleteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := ws.MarkForDelete(req.RowIndex); err != nil {
			c.JSON(workspaceErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"marked": req.RowIndex})
	}
}

func confirmDeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, ok := loadWorkspace(c)
		if !ok {
			return
		}
		if err := ws.ConfirmDelete(c.Request.Context()); err != nil {
			c.JSON(workspaceErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"summary": ws.Summary()})
	}
}

func cancelDeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, ok := loadWorkspace(c)
		if !ok {
			return
		}
		ws.CancelDelete()
		c.Status(http.StatusNoContent)
	}
}

func revalidateWorkspaceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, ok := loadWorkspace(c)
		if !ok {
			return
		}
		if err := ws.Revalidate(c.Request.Context()); err != nil {
			c.JSON(workspaceErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"summary": ws.Summary(),
			"records": ws.Records(),
		})
	}
}

func approveWorkspaceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, ok := loadWorkspace(c)
		if !ok {
			return
		}
		result, err := ws.Approve(c.Request.Context())
		if err != nil {
			c.JSON(workspaceErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func discardWorkspaceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := manager.Discard(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "workspace not found"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

var exportColumns = []struct {
	header string
	field  models.RecordField
}{
	{"SKU", models.FieldSku},
	{"Item Description", models.FieldItemDescription},
	{"Distributor", models.FieldDistributor},
	{"Quote Currency", models.FieldQuoteCurrency},
	{"Quantity", models.FieldQuantity},
	{"Unit Price", models.FieldUnitPrice},
	{"Total Price", models.FieldTotalPrice},
}

// exportWorkspaceHandler streams the batch as an xlsx workbook.
func exportWorkspaceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, ok := loadWorkspace(c)
		if !ok {
			return
		}
		records := ws.Records()

		wb := excelize.NewFile()
		defer wb.Close()
		sheet := wb.GetSheetName(0)

		for col, spec := range exportColumns {
			cell, _ := excelize.CoordinatesToCellName(col+1, 1)
			_ = wb.SetCellValue(sheet, cell, spec.header)
		}
		statusCell, _ := excelize.CoordinatesToCellName(len(exportColumns)+1, 1)
		_ = wb.SetCellValue(sheet, statusCell, "Validation Status")

		for row, record := range records {
			for col, spec := range exportColumns {
				cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
				_ = wb.SetCellValue(sheet, cell, record.FieldString(spec.field))
			}
			cell, _ := excelize.CoordinatesToCellName(len(exportColumns)+1, row+2)
			_ = wb.SetCellValue(sheet, cell, string(record.ValidationStatus))
		}

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "batch_"+ws.ID+".xlsx"))
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		if err := wb.Write(c.Writer); err != nil {
			c.Status(http.StatusInternalServerError)
		}
	}
}

func workspaceErrorStatus(err error) int {
	var blocked *workflow.ApprovalBlockedError
	var commit *workflow.CommitError
	switch {
	case errors.As(err, &blocked):
		return http.StatusUnprocessableEntity
	case errors.As(err, &commit):
		return http.StatusBadGateway
	case errors.Is(err, workflow.ErrRevalidationInFlight):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrStaleDeleteMark):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrNoDeleteMark),
		errors.Is(err, workflow.ErrRowOutOfRange),
		errors.Is(err, workflow.ErrEmptyBatch):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrWorkspaceNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
