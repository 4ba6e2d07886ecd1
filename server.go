package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/analyst"
	"bitbucket.org/mmdatafocus/procurement_backend/appctx"
	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/extraction"
	"bitbucket.org/mmdatafocus/procurement_backend/middlewares"
	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"bitbucket.org/mmdatafocus/procurement_backend/validation"
	"bitbucket.org/mmdatafocus/procurement_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// Wiring shared by the HTTP handlers. Built once in main; everything
// that needs the database resolves it lazily so the server can open its
// port before the connection is up.
var (
	ruleEngine    *validation.Engine
	manager       *workflow.Manager
	session       *workflow.ExtractionSession
	analystClient *analyst.Client
)

func buildWiring() {
	ruleEngine = validation.NewEngine(middlewares.LoaderStats{})
	committer := &workflow.ApprovalCommitter{}
	manager = workflow.NewManager(ruleEngine, committer, workflow.NewRedisDraftStore())
	session = &workflow.ExtractionSession{
		Extractor: pickExtractor(),
		Validator: ruleEngine,
	}
	// optional: the analyst endpoint 503s when no key is configured
	analystClient, _ = analyst.NewClient()
}

// pickExtractor prefers the remote extraction service; without one
// configured, spreadsheet uploads are handled locally.
func pickExtractor() extraction.Extractor {
	if client, err := extraction.NewClient(); err == nil {
		return &fallbackExtractor{remote: client, sheets: &extraction.SheetExtractor{}}
	}
	return &extraction.SheetExtractor{}
}

// fallbackExtractor routes spreadsheets to the local reader and
// everything else to the remote service.
type fallbackExtractor struct {
	remote extraction.Extractor
	sheets *extraction.SheetExtractor
}

func (f *fallbackExtractor) Extract(ctx context.Context, doc extraction.Document) ([]*models.QuotationRecord, error) {
	if f.sheets.CanHandle(doc.Filename) {
		return f.sheets.Extract(ctx, doc)
	}
	return f.remote.Extract(ctx, doc)
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	buildWiring()

	// Start the HTTP server ASAP so the platform considers the revision
	// healthy. Until the DB is ready, app endpoints return 503.
	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(appctx.Set(c.Request.Context(), appctx.ContextKeyCorrelationId, cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(middlewares.LoaderMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.POST("/upload/extract", uploadExtractHandler())
		api.GET("/uploads/:id", uploadStatusHandler())

		api.POST("/records/validate", validateRecordsHandler())
		api.POST("/records/approve-batch", approveBatchHandler())
		api.GET("/records", listRecordsHandler())
		api.GET("/records/:id", getRecordHandler())
		api.PUT("/records/:id", updateRecordHandler())
		api.DELETE("/records/:id", deleteRecordHandler())
		api.GET("/records/:id/changes", recordChangesHandler())

		api.GET("/historical/search", searchHistoricalHandler())
		api.GET("/historical/batch-stats", batchStatsHandler())
		api.GET("/historical/stats/:sku", skuStatsHandler())
		api.GET("/historical/price-trend/:sku", priceTrendHandler())

		api.POST("/analyst", analystHandler())

		api.GET("/dashboard/metrics", dashboardMetricsHandler())
		api.GET("/companies", companiesHandler())
		api.GET("/distributors", distributorsHandler())
		api.GET("/all-skus", allSkusHandler())

		api.POST("/workspaces", createWorkspaceHandler())
		api.GET("/workspaces/:id", getWorkspaceHandler())
		api.POST("/workspaces/:id/edit", editWorkspaceHandler())
		api.POST("/workspaces/:id/mark-delete", markDeleteHandler())
		api.POST("/workspaces/:id/confirm-delete", confirmDeleteHandler())
		api.POST("/workspaces/:id/cancel-delete", cancelDeleteHandler())
		api.POST("/workspaces/:id/revalidate", revalidateWorkspaceHandler())
		api.POST("/workspaces/:id/approve", approveWorkspaceHandler())
		api.GET("/workspaces/:id/export", exportWorkspaceHandler())
		api.DELETE("/workspaces/:id", discardWorkspaceHandler())
	}

	r.NoRoute(customNotFoundHandler)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running migrations
	// as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Outbox dispatcher publishes approval events AFTER commit.
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	go NewOutboxProcessor(db, logger).Run(dispatcherCtx)

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	cancelDispatcher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger logs only failed requests.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 || c.Writer.Status() >= http.StatusInternalServerError {
			logger.WithFields(logrus.Fields{
				"status": c.Writer.Status(),
				"method": c.Request.Method,
				"path":   c.Request.URL.Path,
			}).Error(c.Errors.String())
		}
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
