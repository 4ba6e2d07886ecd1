package main

import (
	"net/http"

	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
	"github.com/gin-gonic/gin"
)

type analystRequest struct {
	Query             string                    `json:"query" validate:"required"`
	ContextRecords    []*models.QuotationRecord `json:"context_records"`
	HistoricalSummary map[string]any            `json:"historical_summary"`
}

// analystHandler answers a procurement question against the supplied
// batch context. Returns 503 when no LLM is configured.
func analystHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if analystClient == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analyst is not configured"})
			return
		}
		var req analystRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := utils.ValidateInput(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if containsNilRecord(req.ContextRecords) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "record payload contains null entries"})
			return
		}
		c.JSON(http.StatusOK, analystClient.Query(c.Request.Context(), req.Query, req.ContextRecords, req.HistoricalSummary))
	}
}
