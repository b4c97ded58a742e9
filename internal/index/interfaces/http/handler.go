// Package http 指数服务的 HTTP 接口层
package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/equityindex/internal/index/application"
	"github.com/wyfcoding/equityindex/internal/index/domain"
)

// IndexHandler 指数查询相关的 HTTP 处理器
type IndexHandler struct {
	query *application.IndexQueryService
}

// NewIndexHandler 创建处理器实例
func NewIndexHandler(query *application.IndexQueryService) *IndexHandler {
	return &IndexHandler{query: query}
}

// RegisterRoutes 注册路由
func (h *IndexHandler) RegisterRoutes(r *gin.RouterGroup) {
	v1 := r.Group("/v1/index")
	{
		v1.POST("/build", h.BuildIndex)
		v1.GET("", h.GetIndex)
		v1.GET("/performance", h.GetPerformance)
		v1.GET("/composition", h.GetComposition)
		v1.GET("/composition/changes", h.GetCompositionChanges)
		v1.GET("/export", h.ExportData)
		v1.GET("/ticker/:ticker", h.GetTickerMetadata)
	}
}

// GetTickerMetadata 股票元数据点查
func (h *IndexHandler) GetTickerMetadata(c *gin.Context) {
	dto, err := h.query.GetTickerMetadata(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

// GetIndex 单日指数查询
func (h *IndexHandler) GetIndex(c *gin.Context) {
	date, ok := parseDate(c, "date", true, time.Time{})
	if !ok {
		return
	}

	dto, err := h.query.GetIndex(c.Request.Context(), date)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

// BuildIndex 物化一个日期区间的指数结果
func (h *IndexHandler) BuildIndex(c *gin.Context) {
	start, ok := parseDate(c, "start_date", true, time.Time{})
	if !ok {
		return
	}
	end, ok := parseDate(c, "end_date", false, start)
	if !ok {
		return
	}

	dto, err := h.query.BuildRange(c.Request.Context(), start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

// GetPerformance 区间指数表现查询
func (h *IndexHandler) GetPerformance(c *gin.Context) {
	start, end, ok := parseRange(c)
	if !ok {
		return
	}

	dtos, err := h.query.GetPerformanceRange(c.Request.Context(), start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dtos)
}

// GetComposition 单日成分查询
func (h *IndexHandler) GetComposition(c *gin.Context) {
	date, ok := parseDate(c, "date", true, time.Time{})
	if !ok {
		return
	}

	dtos, err := h.query.GetComposition(c.Request.Context(), date)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dtos)
}

// GetCompositionChanges 区间成分变动查询
func (h *IndexHandler) GetCompositionChanges(c *gin.Context) {
	start, end, ok := parseRange(c)
	if !ok {
		return
	}

	changes, err := h.query.GetCompositionChanges(c.Request.Context(), start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes})
}

// ExportData 导出区间数据为 xlsx
func (h *IndexHandler) ExportData(c *gin.Context) {
	start, end, ok := parseRange(c)
	if !ok {
		return
	}

	workbook, err := h.query.ExportWorkbook(c.Request.Context(), start, end)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="index_data.xlsx"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := workbook.Write(c.Writer); err != nil {
		respondError(c, err)
	}
}

func parseDate(c *gin.Context, name string, required bool, fallback time.Time) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		if required {
			c.JSON(http.StatusBadRequest, gin.H{"error": name + " is required"})
			return time.Time{}, false
		}
		return fallback, true
	}
	date, err := time.Parse(domain.DateLayout, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be formatted as YYYY-MM-DD"})
		return time.Time{}, false
	}
	return date, true
}

func parseRange(c *gin.Context) (time.Time, time.Time, bool) {
	start, ok := parseDate(c, "start_date", true, time.Time{})
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	end, ok := parseDate(c, "end_date", true, time.Time{})
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, application.ErrInvalidRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInsufficientData):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrComputationTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	case domain.IsStorageError(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
