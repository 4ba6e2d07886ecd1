package main

import (
	"errors"
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
	"bitbucket.org/mmdatafocus/procurement_backend/workflow"
	"github.com/gin-gonic/gin"
)

// containsNilRecord catches JSON nulls inside a record array, which bind
// to nil pointers and must be rejected before the batch is processed.
func containsNilRecord(records []*models.QuotationRecord) bool {
	for _, r := range records {
		if r == nil {
			return true
		}
	}
	return false
}

// validateRecordsHandler runs the rule engine over a caller-supplied
// batch and returns it annotated. Stateless: nothing is stored.
func validateRecordsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var records []*models.QuotationRecord
		if err := c.ShouldBindJSON(&records); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record payload"})
			return
		}
		if containsNilRecord(records) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "record payload contains null entries"})
			return
		}
		if err := ruleEngine.ValidateBatch(c.Request.Context(), records); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, records)
	}
}

type approveBatchRequest struct {
	Records    []*models.QuotationRecord `json:"records" validate:"required,min=1"`
	SourceFile string                    `json:"source_file" validate:"required"`
}

// approveBatchHandler commits a batch directly, without a workspace
// session. The same error gate applies.
func approveBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req approveBatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := utils.ValidateInput(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if containsNilRecord(req.Records) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "record payload contains null entries"})
			return
		}

		summary := models.SummarizeBatch(req.Records)
		if summary.Error > 0 {
			blocked := &workflow.ApprovalBlockedError{ErrorCount: summary.Error}
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": blocked.Error()})
			return
		}

		committer := &workflow.ApprovalCommitter{}
		result, err := committer.Approve(c.Request.Context(), req.Records, req.SourceFile)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func listRecordsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var statusFilter *models.ValidationStatus
		if v := c.Query("status"); v != "" {
			var status models.ValidationStatus
			if err := status.Parse(v); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			statusFilter = &status
		}
		records, err := models.GetCurrentRecords(c.Request.Context(), config.GetDB(), statusFilter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records, "total": len(records)})
	}
}

func getRecordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
			return
		}
		record, err := models.GetRecordByID(c.Request.Context(), config.GetDB(), id)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func updateRecordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
			return
		}
		var body map[models.RecordField]*string
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid update payload"})
			return
		}
		for field := range body {
			if !field.Known() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown field " + string(field)})
				return
			}
		}

		record, err := models.UpdateRecordFields(c.Request.Context(), config.GetDB(), id, body, changedByFrom(c))
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func deleteRecordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
			return
		}
		if err := models.SoftDeleteRecord(c.Request.Context(), config.GetDB(), id); err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": id})
	}
}

func recordChangesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
			return
		}
		changes, err := models.GetFieldChangesByRecord(c.Request.Context(), config.GetDB(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"changes": changes})
	}
}

func changedByFrom(c *gin.Context) string {
	if user := c.GetHeader("X-User"); user != "" {
		return user
	}
	return "operator"
}
