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

type OrgHandler struct {
	acl    service.ACLService
	logger *zap.Logger
}

func NewOrgHandler(acl service.ACLService, logger *zap.Logger) *OrgHandler {
	return &OrgHandler{acl: acl, logger: logger}
}

type CreateOrgRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateOrganization создаёт организацию; создатель становится её администратором
func (h *OrgHandler) CreateOrganization(c *gin.Context) {
	subject, ok := middleware.SubjectFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "Authentication required"})
		return
	}

	var req CreateOrgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	org, err := h.acl.CreateOrganization(c.Request.Context(), subject, req.Name)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	h.logger.Info("Organization created",
		zap.Int64("org_id", org.ID),
		zap.String("name", org.Name),
		zap.String("by", subject.NetID),
	)
	c.JSON(http.StatusCreated, org)
}

// DeleteOrganization удаляет организацию. Гранты, ссылающиеся на неё,
// перестают давать доступ сразу: членство проверяется на каждом запросе.
func (h *OrgHandler) DeleteOrganization(c *gin.Context) {
	subject, orgID, ok := h.subjectAndOrgID(c)
	if !ok {
		return
	}

	if err := h.acl.DeleteOrganization(c.Request.Context(), subject, orgID); err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Organization deleted"})
}

// ListOrganizations возвращает организации, в которых состоит субъект
func (h *OrgHandler) ListOrganizations(c *gin.Context) {
	subject, ok := middleware.SubjectFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "Authentication required"})
		return
	}

	orgs, err := h.acl.ListOrganizations(c.Request.Context(), subject.NetID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	if orgs == nil {
		orgs = []models.Organization{}
	}
	c.JSON(http.StatusOK, gin.H{"organizations": orgs})
}

type MemberRequest struct {
	NetID   string `json:"netid" binding:"required"`
	IsAdmin bool   `json:"is_admin"`
}

// AddMember добавляет участника организации
func (h *OrgHandler) AddMember(c *gin.Context) {
	subject, orgID, ok := h.subjectAndOrgID(c)
	if !ok {
		return
	}

	var req MemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	if err := h.acl.AddMember(c.Request.Context(), subject, orgID, req.NetID, req.IsAdmin); err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Member added"})
}

// RemoveMember убирает участника; выйти из организации можно самому
func (h *OrgHandler) RemoveMember(c *gin.Context) {
	subject, orgID, ok := h.subjectAndOrgID(c)
	if !ok {
		return
	}

	netid := c.Param("netid")
	if netid == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "NetID is required"})
		return
	}

	if err := h.acl.RemoveMember(c.Request.Context(), subject, orgID, netid); err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Member removed"})
}

// ListMembers возвращает состав организации
func (h *OrgHandler) ListMembers(c *gin.Context) {
	subject, orgID, ok := h.subjectAndOrgID(c)
	if !ok {
		return
	}

	members, err := h.acl.ListMembers(c.Request.Context(), subject, orgID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	if members == nil {
		members = []models.OrganizationMember{}
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (h *OrgHandler) subjectAndOrgID(c *gin.Context) (models.Subject, int64, bool) {
	subject, ok := middleware.SubjectFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "Authentication required"})
		return models.Subject{}, 0, false
	}

	orgID, err := strconv.ParseInt(c.Param("org_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_id", Message: "Organization ID must be an integer"})
		return models.Subject{}, 0, false
	}

	return subject, orgID, true
}
