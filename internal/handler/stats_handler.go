package handler

import (
	"net/http"
	"strconv"

	"github.com/SergeiKhy/linkhub/internal/middleware"
	"github.com/SergeiKhy/linkhub/internal/models"
	"github.com/SergeiKhy/linkhub/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type StatsHandler struct {
	stats  service.StatsService
	logger *zap.Logger
}

func NewStatsHandler(stats service.StatsService, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{stats: stats, logger: logger}
}

// Overview возвращает сводку ссылки: счётчики и алиасы
func (h *StatsHandler) Overview(c *gin.Context) {
	subject, linkID, ok := h.subjectAndLinkID(c)
	if !ok {
		return
	}

	overview, err := h.stats.Overview(c.Request.Context(), subject, linkID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

// Daily возвращает визиты по календарным дням UTC
func (h *StatsHandler) Daily(c *gin.Context) {
	subject, linkID, ok := h.subjectAndLinkID(c)
	if !ok {
		return
	}
	aliasID, ok := h.aliasFilter(c)
	if !ok {
		return
	}

	stats, err := h.stats.DailyStats(c.Request.Context(), subject, linkID, aliasID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	if stats == nil {
		stats = []models.DailyVisitStats{}
	}
	c.JSON(http.StatusOK, gin.H{"daily": stats})
}

// Geo возвращает распределение визитов по странам и штатам США
func (h *StatsHandler) Geo(c *gin.Context) {
	subject, linkID, ok := h.subjectAndLinkID(c)
	if !ok {
		return
	}
	aliasID, ok := h.aliasFilter(c)
	if !ok {
		return
	}

	countries, states, err := h.stats.GeoStats(c.Request.Context(), subject, linkID, aliasID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	if countries == nil {
		countries = []models.GeoStats{}
	}
	if states == nil {
		states = []models.GeoStats{}
	}
	c.JSON(http.StatusOK, gin.H{"countries": countries, "us_states": states})
}

// Clients возвращает распределение по браузерам и платформам
func (h *StatsHandler) Clients(c *gin.Context) {
	subject, linkID, ok := h.subjectAndLinkID(c)
	if !ok {
		return
	}
	aliasID, ok := h.aliasFilter(c)
	if !ok {
		return
	}

	stats, err := h.stats.ClientStats(c.Request.Context(), subject, linkID, aliasID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Referers возвращает распределение по доменам переходов
func (h *StatsHandler) Referers(c *gin.Context) {
	subject, linkID, ok := h.subjectAndLinkID(c)
	if !ok {
		return
	}
	aliasID, ok := h.aliasFilter(c)
	if !ok {
		return
	}

	stats, err := h.stats.RefererStats(c.Request.Context(), subject, linkID, aliasID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"referers": stats})
}

// aliasFilter читает опциональный query параметр alias_id
func (h *StatsHandler) aliasFilter(c *gin.Context) (*int64, bool) {
	raw := c.Query("alias_id")
	if raw == "" {
		return nil, true
	}

	aliasID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_id", Message: "alias_id must be an integer"})
		return nil, false
	}
	return &aliasID, true
}

func (h *StatsHandler) subjectAndLinkID(c *gin.Context) (models.Subject, int64, bool) {
	subject, ok := middleware.SubjectFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "Authentication required"})
		return models.Subject{}, 0, false
	}

	linkID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_id", Message: "Link ID must be an integer"})
		return models.Subject{}, 0, false
	}

	return subject, linkID, true
}
