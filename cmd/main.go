package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"jobreel-server/internal/apperrors"
	"jobreel-server/internal/catalog"
	"jobreel-server/internal/config"
	"jobreel-server/internal/coordinator"
	"jobreel-server/internal/database"
	"jobreel-server/internal/embedding"
	"jobreel-server/internal/jobs"
	"jobreel-server/internal/objectstore"
	"jobreel-server/internal/queue"
	"jobreel-server/internal/renderer"
	"jobreel-server/internal/vectorsearch"
	"jobreel-server/internal/views"
	"jobreel-server/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

var (
	db             *database.DB
	genQueue       *queue.Queue
	videoCatalog   *catalog.Catalog
	viewLedger     *views.Ledger
	coord          *coordinator.Coordinator
	searchDeadline time.Duration
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	if len(os.Args) > 1 && os.Args[1] == "worker" {
		runWorker()
		return
	}

	cfg := config.Load()
	searchDeadline = time.Duration(cfg.SearchDeadlineS) * time.Second

	var err error
	db, err = database.NewConnection(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Health(); err != nil {
		log.Fatalf("Database health check failed: %v", err)
	}
	log.Println("database connection established")

	if err := db.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run auto-migration: %v", err)
	}
	log.Println("database migrations completed")

	sqlDB, err := db.SQL()
	if err != nil {
		log.Fatalf("Failed to obtain raw sql.DB: %v", err)
	}
	if err := database.ApplyCoreSchema(sqlDB); err != nil {
		log.Fatalf("Failed to apply core schema: %v", err)
	}

	genQueue = queue.New(sqlDB, cfg.MaxUserConcurrent)
	videoCatalog = catalog.New(db.DB)
	viewLedger = views.New(db.DB)
	search := vectorsearch.New(sqlDB)
	embedClient := embedding.NewClient(cfg.EmbeddingAPIURL, cfg.EmbeddingDim)
	notifier := queue.NewNotifier(cfg.RedisURL)
	defer notifier.Close()

	coord = coordinator.New(embedClient, search, viewLedger, videoCatalog, genQueue, notifier, cfg)

	r := gin.Default()
	r.Use(corsMiddleware())
	r.Use(gin.Recovery())

	r.GET("/healthz", healthCheck)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/search", searchHandler)

		v1.POST("/views/mark_seen", markSeenHandler)
		v1.GET("/views/check", checkHandler)
		v1.POST("/views/bulk_check", bulkCheckHandler)
		v1.GET("/views/:user_id", listSeenHandler)
		v1.DELETE("/views/:user_id", resetHandler)

		v1.GET("/jobs", listJobsHandler)
		v1.GET("/jobs/:id", getJobHandler)

		v1.GET("/videos/:id", getVideoHandler)
	}

	log.Printf("jobreel server starting on port %s", cfg.Port)
	log.Fatal(r.Run(":" + cfg.Port))
}

// runWorker drives the long-running C7/C9 process: it never starts the gin
// router, since generation and HTTP serving scale independently per §5.
func runWorker() {
	log.Println("starting jobreel worker")

	cfg := config.Load()

	var err error
	db, err = database.NewConnection(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	sqlDB, err := db.SQL()
	if err != nil {
		log.Fatalf("Failed to obtain raw sql.DB: %v", err)
	}
	if err := database.ApplyCoreSchema(sqlDB); err != nil {
		log.Fatalf("Failed to apply core schema: %v", err)
	}

	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "worker-" + uuid.NewString()[:8]
	}

	jobReader := jobs.New(sqlDB)
	renderClient := renderer.NewClient(cfg.RendererURL, time.Duration(cfg.RenderTimeoutS)*time.Second)

	objStore, err := objectstore.New(context.Background(), objectstore.Config{
		Endpoint:  cfg.ObjectStore.Endpoint,
		Region:    cfg.ObjectStore.Region,
		Bucket:    cfg.ObjectStore.Bucket,
		AccessKey: cfg.ObjectStore.AccessKey,
		SecretKey: cfg.ObjectStore.SecretKey,
		CDNBase:   cfg.ObjectStore.CDNBase,
	})
	if err != nil {
		log.Fatalf("Failed to initialize object store: %v", err)
	}

	cat := catalog.New(db.DB)
	q := queue.New(sqlDB, cfg.MaxUserConcurrent)
	notifier := queue.NewNotifier(cfg.RedisURL)
	defer notifier.Close()

	// A nil *queue.Notifier must become a genuinely nil WakeSource, not a
	// non-nil interface wrapping a nil pointer, or Run's "wake != nil" check
	// would treat an unconfigured notifier's already-closed channel as a
	// constant wake signal and spin the poll loop.
	var wakeSource worker.WakeSource
	if notifier != nil {
		wakeSource = notifier
	}

	runtime := worker.New(jobReader, renderClient, objStore, cat, q, wakeSource, worker.Config{
		WorkerID:       workerID,
		PollInterval:   time.Duration(cfg.PollIntervalS) * time.Second,
		SweepInterval:  time.Duration(cfg.SweepIntervalS) * time.Second,
		StaleThreshold: time.Duration(cfg.JobTimeoutMin) * time.Minute,
		QueueTTL:       time.Duration(cfg.QueueTTLHours) * time.Hour,
		MaxRetries:     cfg.MaxRetries,
		TempDir:        os.TempDir(),
	})

	log.Printf("[worker %s] ready, polling every %ds", workerID, cfg.PollIntervalS)
	runtime.Run(context.Background())
}

// Handlers

func healthCheck(c *gin.Context) {
	status := "ok"
	code := http.StatusOK
	if err := db.Health(); err != nil {
		status = "error: " + err.Error()
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status})
}

type searchRequest struct {
	Query  string `json:"query" binding:"required"`
	UserID string `json:"user_id" binding:"required"`
}

func searchHandler(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if searchDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, searchDeadline)
		defer cancel()
	}

	result, err := coord.Search(ctx, req.Query, req.UserID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":              req.UserID,
		"job_ids":              result.JobIDs,
		"count":                len(result.JobIDs),
		"generation_triggered": result.GenerationTriggered,
		"generation_job_ids":   result.GenerationJobIDs,
	})
}

type markSeenRequest struct {
	UserID string `json:"user_id" binding:"required"`
	JobID  string `json:"job_id" binding:"required"`
}

func markSeenHandler(c *gin.Context) {
	var req markSeenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := viewLedger.MarkSeen(c.Request.Context(), req.UserID, req.JobID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func checkHandler(c *gin.Context) {
	userID := c.Query("user_id")
	jobID := c.Query("job_id")
	if userID == "" || jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and job_id are required"})
		return
	}
	seen, err := viewLedger.Check(c.Request.Context(), userID, jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"seen": seen})
}

type bulkCheckRequest struct {
	UserID string   `json:"user_id" binding:"required"`
	JobIDs []string `json:"job_ids" binding:"required"`
}

func bulkCheckHandler(c *gin.Context) {
	var req bulkCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	seen, err := viewLedger.BulkCheck(c.Request.Context(), req.UserID, req.JobIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"seen": seen})
}

func listSeenHandler(c *gin.Context) {
	userID := c.Param("user_id")
	limit := intQueryOrDefault(c, "limit", 50)
	skip := intQueryOrDefault(c, "skip", 0)

	jobIDs, total, err := viewLedger.ListSeen(c.Request.Context(), userID, limit, skip)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_ids": jobIDs, "total": total})
}

func resetHandler(c *gin.Context) {
	userID := c.Param("user_id")
	n, err := viewLedger.Reset(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": n})
}

func listJobsHandler(c *gin.Context) {
	limit := intQueryOrDefault(c, "limit", 50)
	jobList, err := genQueue.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobList})
}

func getJobHandler(c *gin.Context) {
	job, err := genQueue.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

func getVideoHandler(c *gin.Context) {
	video, err := videoCatalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, video)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrEmbeddingUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, apperrors.ErrStoreUnreachable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func intQueryOrDefault(c *gin.Context, key string, def int) int {
	var n int
	if _, err := fmt.Sscanf(c.Query(key), "%d", &n); err != nil || n <= 0 {
		return def
	}
	return n
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
