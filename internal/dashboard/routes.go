package dashboard

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/shopfloor/internal/cascade"
	"gorm.io/gorm"
)

// TenantHeader carries the tenant id on every /api request.
const TenantHeader = "X-Tenant-ID"

const tenantKey = "tenant"

type handlers struct {
	db     *gorm.DB
	engine Cascade
	opts   StartOpts
}

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	h := &handlers{db: opts.DB, engine: opts.Engine, opts: opts}

	router.GET("/healthz", h.health)
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	api := router.Group("/api", requireTenant())
	api.POST("/tasks/:id/start", h.startTask)
	api.POST("/tasks/:id/stop", h.stopTask)
	api.POST("/tasks/:id/complete", h.completeTask)
	api.GET("/jobs/:id", h.jobDetail)
	api.GET("/jobs/:id/events", h.jobEvents)
	api.POST("/jobs/:id/recalculate", h.recalculateJob)
	api.POST("/jobs/:id/reconcile", h.reconcileJob)
}

func requireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := c.GetHeader(TenantHeader)
		if tenant == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": TenantHeader + " header is required"})
			return
		}
		c.Set(tenantKey, tenant)
		c.Next()
	}
}

// operatorRequest is the body of start, stop and complete.
type operatorRequest struct {
	OperatorID string `json:"operator_id"`
}

func bindOperator(c *gin.Context, required bool) (string, bool) {
	var req operatorRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
			return "", false
		}
	}
	if required && req.OperatorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "operator_id is required"})
		return "", false
	}
	return req.OperatorID, true
}

// writeError maps cascade errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var nf *cascade.NotFoundError
	var pe *cascade.PreconditionError
	switch {
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &pe):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *handlers) health(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) startTask(c *gin.Context) {
	op, ok := bindOperator(c, true)
	if !ok {
		return
	}
	if err := h.engine.Start(c.Request.Context(), c.GetString(tenantKey), c.Param("id"), op); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_id": c.Param("id"), "status": "started"})
}

func (h *handlers) stopTask(c *gin.Context) {
	op, ok := bindOperator(c, true)
	if !ok {
		return
	}
	entry, err := h.engine.Stop(c.Request.Context(), c.GetString(tenantKey), c.Param("id"), op)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"time_entry": newTimeEntryView(entry)})
}

func (h *handlers) completeTask(c *gin.Context) {
	op, ok := bindOperator(c, false)
	if !ok {
		return
	}
	if err := h.engine.Complete(c.Request.Context(), c.GetString(tenantKey), c.Param("id"), op); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_id": c.Param("id"), "status": "completed"})
}

func (h *handlers) recalculateJob(c *gin.Context) {
	if err := h.engine.RecalculateJobStage(c.Request.Context(), c.GetString(tenantKey), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	h.jobDetail(c)
}

func (h *handlers) reconcileJob(c *gin.Context) {
	n, err := h.engine.ReconcileJob(c.Request.Context(), c.GetString(tenantKey), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": c.Param("id"), "rows_changed": n})
}

func (h *handlers) jobDetail(c *gin.Context) {
	view, err := JobProgress(h.db.WithContext(c.Request.Context()), c.GetString(tenantKey), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job " + c.Param("id") + " not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, view)
}
