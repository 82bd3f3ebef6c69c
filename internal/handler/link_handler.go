package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/SergeiKhy/linkhub/internal/middleware"
	"github.com/SergeiKhy/linkhub/internal/models"
	"github.com/SergeiKhy/linkhub/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LinkHandler struct {
	service        service.LinkService
	visitProcessor service.VisitProcessor
	baseURL        string
	logger         *zap.Logger
}

func NewLinkHandler(service service.LinkService, visitProcessor service.VisitProcessor, baseURL string, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{
		service:        service,
		visitProcessor: visitProcessor,
		baseURL:        baseURL,
		logger:         logger,
	}
}

type CreateLinkRequest struct {
	Title       string     `json:"title"`
	URL         string     `json:"url" binding:"required"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CustomAlias string     `json:"custom_alias,omitempty"`
	Description string     `json:"description,omitempty"`
}

type AliasResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ShortURL    string `json:"short_url"`
	Description string `json:"description,omitempty"`
}

type CreateLinkResponse struct {
	ID          int64         `json:"id"`
	Title       string        `json:"title"`
	OriginalURL string        `json:"original_url"`
	Owner       string        `json:"owner"`
	ExpiresAt   *time.Time    `json:"expires_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	Alias       AliasResponse `json:"alias"`
}

// CreateLink создаёт ссылку с алиасом. Создатель становится владельцем.
func (h *LinkHandler) CreateLink(c *gin.Context) {
	subject, ok := middleware.SubjectFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "Authentication required"})
		return
	}

	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	input := &models.CreateLinkInput{
		Title:       req.Title,
		OriginalURL: req.URL,
		ExpiresAt:   req.ExpiresAt,
		Description: req.Description,
	}
	if req.CustomAlias != "" {
		input.CustomAlias = &req.CustomAlias
	}

	link, alias, err := h.service.CreateLink(c.Request.Context(), subject, input)
	if err != nil {
		h.logger.Warn("Failed to create link", zap.String("netid", subject.NetID), zap.Error(err))
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateLinkResponse{
		ID:          link.ID,
		Title:       link.Title,
		OriginalURL: link.OriginalURL,
		Owner:       link.Owner,
		ExpiresAt:   link.ExpiresAt,
		CreatedAt:   link.CreatedAt,
		Alias:       h.aliasResponse(alias),
	})
}

// ListLinks возвращает все ссылки, доступные субъекту: собственные и
// расшаренные напрямую или через организации.
func (h *LinkHandler) ListLinks(c *gin.Context) {
	subject, ok := middleware.SubjectFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "Authentication required"})
		return
	}

	links, err := h.service.ListLinks(c.Request.Context(), subject)
	if err != nil {
		h.logger.Error("Failed to list links", zap.String("netid", subject.NetID), zap.Error(err))
		writeServiceError(c, err)
		return
	}

	if links == nil {
		links = []models.Link{}
	}
	c.JSON(http.StatusOK, gin.H{"links": links})
}

// GetLink возвращает ссылку с её алиасами
func (h *LinkHandler) GetLink(c *gin.Context) {
	subject, linkID, ok := h.subjectAndLinkID(c)
	if !ok {
		return
	}

	link, aliases, err := h.service.GetLink(c.Request.Context(), subject, linkID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	aliasResponses := make([]AliasResponse, 0, len(aliases))
	for i := range aliases {
		aliasResponses = append(aliasResponses, h.aliasResponse(&aliases[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"link":    link,
		"aliases": aliasResponses,
	})
}

type UpdateLinkRequest struct {
	Title     *string    `json:"title,omitempty"`
	URL       *string    `json:"url,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// UpdateLink изменяет заголовок, срок или целевой URL ссылки
func (h *LinkHandler) UpdateLink(c *gin.Context) {
	subject, linkID, ok := h.subjectAndLinkID(c)
	if !ok {
		return
	}

	var req UpdateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	input := &models.UpdateLinkInput{
		Title:       req.Title,
		OriginalURL: req.URL,
		ExpiresAt:   req.ExpiresAt,
	}

	link, err := h.service.UpdateLink(c.Request.Context(), subject, linkID, input)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, link)
}

// DeleteLink скрывает ссылку вместе с её алиасами
func (h *LinkHandler) DeleteLink(c *gin.Context) {
	subject, linkID, ok := h.subjectAndLinkID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteLink(c.Request.Context(), subject, linkID); err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Link deleted"})
}

type AddAliasRequest struct {
	Alias       string `json:"alias,omitempty"`
	Description string `json:"description,omitempty"`
}

// AddAlias добавляет алиас к существующей ссылке
func (h *LinkHandler) AddAlias(c *gin.Context) {
	subject, linkID, ok := h.subjectAndLinkID(c)
	if !ok {
		return
	}

	var req AddAliasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	var custom *string
	if req.Alias != "" {
		custom = &req.Alias
	}

	alias, err := h.service.AddAlias(c.Request.Context(), subject, linkID, custom, req.Description)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.aliasResponse(alias))
}

// DeleteAlias скрывает один алиас; остальные алиасы ссылки продолжают работать
func (h *LinkHandler) DeleteAlias(c *gin.Context) {
	subject, ok := middleware.SubjectFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "Authentication required"})
		return
	}

	aliasID, err := strconv.ParseInt(c.Param("alias_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_id", Message: "Alias ID must be an integer"})
		return
	}

	if err := h.service.DeleteAlias(c.Request.Context(), subject, aliasID); err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Alias deleted"})
}

// Redirect разрешает алиас и отправляет посетителя на целевой URL.
// Учёт визита асинхронный и не задерживает редирект.
func (h *LinkHandler) Redirect(c *gin.Context) {
	alias := c.Param("alias")

	res, err := h.service.Resolve(c.Request.Context(), alias)
	if err != nil {
		h.logger.Debug("Alias did not resolve", zap.String("alias", alias), zap.Error(err))
		writeServiceError(c, err)
		return
	}

	event := &models.VisitEvent{
		LinkID:    res.Link.ID,
		AliasID:   res.AliasID,
		AliasName: res.Alias,
		SourceIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referer:   c.Request.Referer(),
	}
	if err := h.visitProcessor.Record(c.Request.Context(), event); err != nil {
		h.logger.Debug("Failed to record visit (non-blocking)", zap.Error(err))
	}

	c.Redirect(http.StatusTemporaryRedirect, res.Link.OriginalURL)
}

func (h *LinkHandler) aliasResponse(alias *models.Alias) AliasResponse {
	return AliasResponse{
		ID:          alias.ID,
		Name:        alias.Name,
		ShortURL:    h.baseURL + "/" + alias.Name,
		Description: alias.Description,
	}
}

func (h *LinkHandler) subjectAndLinkID(c *gin.Context) (models.Subject, int64, bool) {
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
