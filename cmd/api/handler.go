package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	digestusecase "github.com/omnific9/SchoolCalEnricher/internal/digest/usecase"
	"github.com/omnific9/SchoolCalEnricher/internal/event/domain"
	"github.com/omnific9/SchoolCalEnricher/internal/event/repository"
	eventusecase "github.com/omnific9/SchoolCalEnricher/internal/event/usecase"
	"github.com/omnific9/SchoolCalEnricher/internal/syncstate"
	"github.com/omnific9/SchoolCalEnricher/pkg/config"
)

// FetchTrigger queues a background fetch run
type FetchTrigger interface {
	TriggerFetch(reason string) bool
}

type Handler struct {
	syncUsecase   eventusecase.SyncUsecase
	digestUsecase digestusecase.DigestUsecase
	state         syncstate.Store
	runs          repository.RunRepository
	trigger       FetchTrigger
	policy        config.Policy
	log           zerolog.Logger
}

// NewHandler creates the HTTP handler. digestUc and trigger may be nil.
func NewHandler(syncUc eventusecase.SyncUsecase, digestUc digestusecase.DigestUsecase, state syncstate.Store, runs repository.RunRepository, trigger FetchTrigger, policy config.Policy, log zerolog.Logger) *Handler {
	return &Handler{
		syncUsecase:   syncUc,
		digestUsecase: digestUc,
		state:         state,
		runs:          runs,
		trigger:       trigger,
		policy:        policy,
		log:           log,
	}
}

// Router builds the gin engine with every route registered
func (h *Handler) Router(jwtSecret string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, accept, origin")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h, jwtSecret)
	return r
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

type fetchRequest struct {
	DryRun bool `json:"dry_run"`
	// Async queues the run on the scheduler instead of waiting for it
	Async bool `json:"async"`
}

// RunFetch runs the email to calendar sync
// POST /api/fetch
func (h *Handler) RunFetch(c *gin.Context) {
	var req fetchRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Async && !req.DryRun && h.trigger != nil {
		queued := h.trigger.TriggerFetch("api")
		c.JSON(http.StatusAccepted, gin.H{"queued": queued})
		return
	}

	summary, err := h.syncUsecase.Run(c.Request.Context(), eventusecase.RunOptions{DryRun: req.DryRun})
	if errors.Is(err, eventusecase.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "summary": summary})
		return
	}
	c.JSON(http.StatusOK, summary)
}

type digestRequest struct {
	DryRun bool `json:"dry_run"`
	Days   int  `json:"days" binding:"gte=0,lte=31"`
}

// RunDigest builds and sends the digest
// POST /api/digest
func (h *Handler) RunDigest(c *gin.Context) {
	if h.digestUsecase == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "digest is not configured"})
		return
	}
	var req digestRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.digestUsecase.Run(c.Request.Context(), digestusecase.RunOptions{DryRun: req.DryRun, Days: req.Days})
	if errors.Is(err, digestusecase.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "result": result})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListRuns returns the most recent run summaries
// GET /api/runs?kind=fetch&limit=20
func (h *Handler) ListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	kind := domain.RunKind(c.Query("kind"))
	if kind != "" && kind != domain.RunKindFetch && kind != domain.RunKindDigest {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be fetch or digest"})
		return
	}

	runs, err := h.runs.List(c.Request.Context(), kind, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []*domain.RunSummary{}
	}
	c.JSON(http.StatusOK, runs)
}

// GetRun returns one run summary
// GET /api/runs/:id
func (h *Handler) GetRun(c *gin.Context) {
	run, err := h.runs.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// GetWatermark returns the persisted sync state
// GET /api/watermark
func (h *Handler) GetWatermark(c *gin.Context) {
	state, err := h.state.Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, state)
}

type watermarkRequest struct {
	Watermark time.Time `json:"watermark" binding:"required"`
}

// SetWatermark overwrites the watermark, e.g. to replay a period
// PUT /api/watermark
func (h *Handler) SetWatermark(c *gin.Context) {
	var req watermarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state := domain.SyncState{Watermark: req.Watermark.UTC(), UpdatedAt: time.Now().UTC()}
	if err := h.state.Save(c.Request.Context(), state); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.log.Info().Time("watermark", state.Watermark).Str("by", c.GetString("subject")).Msg("watermark set")
	c.JSON(http.StatusOK, state)
}
