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

type ACLHandler struct {
	acl    service.ACLService
	logger *zap.Logger
}

func NewACLHandler(acl service.ACLService, logger *zap.Logger) *ACLHandler {
	return &ACLHandler{acl: acl, logger: logger}
}

type GrantRequest struct {
	SubjectType string `json:"subject_type" binding:"required"`
	Subject     string `json:"subject" binding:"required"`
	Permission  string `json:"permission" binding:"required"`
}

// Grant выдаёт или обновляет право доступа к ссылке
func (h *ACLHandler) Grant(c *gin.Context) {
	subject, linkID, ok := h.subjectAndLinkID(c)
	if !ok {
		return
	}

	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	permission := models.ParsePermission(req.Permission)
	if permission == models.PermissionNone {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_permission", Message: "Permission must be viewer or editor"})
		return
	}

	grant := &models.Grant{
		LinkID:      linkID,
		SubjectType: req.SubjectType,
		Subject:     req.Subject,
		Permission:  permission,
	}
	if err := h.acl.Grant(c.Request.Context(), linkID, subject, grant); err != nil {
		writeServiceError(c, err)
		return
	}

	h.logger.Info("Grant issued",
		zap.Int64("link_id", linkID),
		zap.String("by", subject.NetID),
		zap.String("subject", req.Subject),
		zap.String("permission", req.Permission),
	)
	c.JSON(http.StatusOK, grant)
}

type RevokeRequest struct {
	SubjectType string `json:"subject_type" binding:"required"`
	Subject     string `json:"subject" binding:"required"`
}

// Revoke отзывает право доступа; отзыв отсутствующего гранта не ошибка
func (h *ACLHandler) Revoke(c *gin.Context) {
	subject, linkID, ok := h.subjectAndLinkID(c)
	if !ok {
		return
	}

	var req RevokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	if err := h.acl.Revoke(c.Request.Context(), linkID, subject, req.SubjectType, req.Subject); err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Grant revoked"})
}

// ListGrants возвращает все гранты ссылки
func (h *ACLHandler) ListGrants(c *gin.Context) {
	subject, linkID, ok := h.subjectAndLinkID(c)
	if !ok {
		return
	}

	grants, err := h.acl.ListGrants(c.Request.Context(), linkID, subject)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	if grants == nil {
		grants = []models.Grant{}
	}
	c.JSON(http.StatusOK, gin.H{"grants": grants})
}

type TransferRequest struct {
	NewOwner string `json:"new_owner" binding:"required"`
}

// Transfer передаёт владение ссылкой другому пользователю.
// Прежний владелец остаётся редактором.
func (h *ACLHandler) Transfer(c *gin.Context) {
	subject, linkID, ok := h.subjectAndLinkID(c)
	if !ok {
		return
	}

	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	if err := h.acl.TransferOwnership(c.Request.Context(), linkID, subject, req.NewOwner); err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Ownership transferred", "new_owner": req.NewOwner})
}

// Permission возвращает эффективный уровень доступа запрашивающего
func (h *ACLHandler) Permission(c *gin.Context) {
	subject, linkID, ok := h.subjectAndLinkID(c)
	if !ok {
		return
	}

	permission, err := h.acl.EffectivePermission(c.Request.Context(), linkID, subject)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"permission": permission.String()})
}

func (h *ACLHandler) subjectAndLinkID(c *gin.Context) (models.Subject, int64, bool) {
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
