package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"insightdash/internal/entities"
	"insightdash/internal/gateway"
	"insightdash/internal/usecases"
)

// Customers serves one page of the normalized customers table. Upstream
// fetch trouble renders an empty table with an error flag instead of a 5xx,
// so the dashboard stays usable.
func (h *Handler) Customers(c *gin.Context) {
	page := usecases.ParsePage(c.Query("page"))
	view, err := h.analysis.Customers(c.Request.Context(), SessionFrom(c), page, usecases.DefaultPerPage)
	if err != nil {
		if errors.Is(err, gateway.ErrUnauthenticated) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"table": view, "error": "Failed to load customers"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"table": view})
}

func (h *Handler) FrequencyBuckets(c *gin.Context) {
	h.buckets(c, h.analysis.FrequencyBuckets)
}

func (h *Handler) SpendingBuckets(c *gin.Context) {
	h.buckets(c, h.analysis.SpendingBuckets)
}

func (h *Handler) buckets(c *gin.Context, load func(ctx context.Context, sc entities.SessionContext) (usecases.BucketView, error)) {
	view, err := load(c.Request.Context(), SessionFrom(c))
	if err != nil {
		if errors.Is(err, gateway.ErrUnauthenticated) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"analysis": view, "error": "Failed to load analysis data"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"analysis": view})
}

// Series serves chart points from an upstream table endpoint chosen by the
// `source` query param.
func (h *Handler) Series(c *gin.Context) {
	path, ok := seriesSources[c.Query("source")]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown series source"})
		return
	}
	labelField := c.Query("label")
	valueField := c.Query("value")
	if labelField == "" || valueField == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "label and value params required"})
		return
	}

	query := url.Values{}
	if fileID := c.Query("file_id"); fileID != "" {
		query.Set("file_id", fileID)
	}

	points, err := h.analysis.Series(c.Request.Context(), SessionFrom(c), path, labelField, valueField, query)
	if err != nil {
		if errors.Is(err, gateway.ErrUnauthenticated) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"series": points, "error": "Failed to load series data"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"series": points})
}

// seriesSources whitelists which upstream tables charts may read.
var seriesSources = map[string]string{
	"customers": usecases.PathCustomers,
	"orders":    usecases.PathOrders,
	"forecast":  usecases.PathForecast,
}

func (h *Handler) GetRanges(c *gin.Context) {
	cohorts, err := h.ranges.Cohorts(c.Param("metric"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"metric": c.Param("metric"), "cohorts": cohorts})
}

// SetRangeBound updates one bound of one cohort. An empty value clears the
// bound; anything unparseable is rejected without touching the config.
func (h *Handler) SetRangeBound(c *gin.Context) {
	var req struct {
		Bound string `json:"bound"`
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if err := h.ranges.SetBound(c.Param("metric"), c.Param("cohort"), req.Bound, req.Value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// ReorderRanges replaces the cohort priority order. The body must be a
// permutation of the current cohort names.
func (h *Handler) ReorderRanges(c *gin.Context) {
	var req struct {
		Order []string `json:"order"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if err := h.ranges.Reorder(c.Param("metric"), req.Order); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reordered"})
}

func (h *Handler) ResetRanges(c *gin.Context) {
	if err := h.ranges.Reset(c.Param("metric")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	cohorts, _ := h.ranges.Cohorts(c.Param("metric"))
	c.JSON(http.StatusOK, gin.H{"status": "reset", "cohorts": cohorts})
}
