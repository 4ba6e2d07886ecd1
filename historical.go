package main

import (
	"net/http"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/middlewares"
	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"github.com/gin-gonic/gin"
)

func searchHistoricalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if v := c.Query("limit"); v != "" {
			limit, _ = strconv.Atoi(v)
		}
		filter := models.HistoricalFilter{
			Query:       strings.TrimSpace(c.Query("q")),
			Sku:         strings.TrimSpace(c.Query("sku")),
			Distributor: strings.TrimSpace(c.Query("distributor")),
			EuCompany:   strings.TrimSpace(c.Query("eu_company")),
			Limit:       limit,
		}
		records, err := models.SearchHistorical(c.Request.Context(), config.GetDB(), filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records, "total": len(records)})
	}
}

// batchStatsHandler answers ?skus=a,b,c with per-SKU aggregates through
// the request's dataloader. SKUs without history are absent from the map.
func batchStatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.Query("skus"))
		if raw == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "skus query parameter is required"})
			return
		}
		stats, err := middlewares.GetSkuStatsBatch(c.Request.Context(), splitAndTrim(raw))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

// skuStatsHandler answers the single-SKU benchmark lookup. 404 when the
// SKU has no purchase history.
func skuStatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sku := strings.TrimSpace(c.Param("sku"))
		if sku == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sku is required"})
			return
		}
		stats, err := middlewares.GetSkuStats(c.Request.Context(), sku)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if stats == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no history for sku " + sku})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func priceTrendHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sku := strings.TrimSpace(c.Param("sku"))
		if sku == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sku is required"})
			return
		}
		points, err := models.PriceTrendBySku(c.Request.Context(), config.GetDB(), sku)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sku": sku, "data_points": points})
	}
}

func dashboardMetricsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics, err := models.GetDashboardMetrics(c.Request.Context(), config.GetDB())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, metrics)
	}
}

func companiesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		values, err := models.DistinctCompanies(c.Request.Context(), config.GetDB())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"companies": values})
	}
}

func distributorsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		values, err := models.DistinctDistributors(c.Request.Context(), config.GetDB())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"distributors": values})
	}
}

func allSkusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		values, err := models.DistinctSkus(c.Request.Context(), config.GetDB())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"skus": values})
	}
}
