package handler

import (
	"net/http"

	"github.com/SergeiKhy/linkhub/internal/middleware"
	"github.com/SergeiKhy/linkhub/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func NewRouter(
	linkService service.LinkService,
	statsService service.StatsService,
	aclService service.ACLService,
	visitProcessor service.VisitProcessor,
	rateLimiter *middleware.RateLimiter,
	auth *middleware.Auth,
	baseURL string,
	logger *zap.Logger,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())

	// Middleware для логгирования
	router.Use(func(c *gin.Context) {
		logger.Info("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", middleware.GetRequestID(c)),
		)
		c.Next()
	})

	linkHandler := NewLinkHandler(linkService, visitProcessor, baseURL, logger)
	statsHandler := NewStatsHandler(statsService, logger)
	aclHandler := NewACLHandler(aclService, logger)
	orgHandler := NewOrgHandler(aclService, logger)

	// API v.1 — всё под bearer токеном
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", HealthCheck)

		// Лимитер после аутентификации: ключ — netid, а не адрес NAT
		authed := v1.Group("")
		authed.Use(auth.Middleware(), rateLimiter.Middleware())

		authed.POST("/links", linkHandler.CreateLink)
		authed.GET("/links", linkHandler.ListLinks)
		authed.GET("/links/:id", linkHandler.GetLink)
		authed.PATCH("/links/:id", linkHandler.UpdateLink)
		authed.DELETE("/links/:id", linkHandler.DeleteLink)
		authed.POST("/links/:id/aliases", linkHandler.AddAlias)
		authed.DELETE("/aliases/:alias_id", linkHandler.DeleteAlias)

		authed.GET("/links/:id/grants", aclHandler.ListGrants)
		authed.PUT("/links/:id/grants", aclHandler.Grant)
		authed.DELETE("/links/:id/grants", aclHandler.Revoke)
		authed.POST("/links/:id/transfer", aclHandler.Transfer)
		authed.GET("/links/:id/permission", aclHandler.Permission)

		authed.GET("/links/:id/stats", statsHandler.Overview)
		authed.GET("/links/:id/stats/daily", statsHandler.Daily)
		authed.GET("/links/:id/stats/geo", statsHandler.Geo)
		authed.GET("/links/:id/stats/clients", statsHandler.Clients)
		authed.GET("/links/:id/stats/referers", statsHandler.Referers)

		authed.POST("/orgs", orgHandler.CreateOrganization)
		authed.GET("/orgs", orgHandler.ListOrganizations)
		authed.DELETE("/orgs/:org_id", orgHandler.DeleteOrganization)
		authed.GET("/orgs/:org_id/members", orgHandler.ListMembers)
		authed.POST("/orgs/:org_id/members", orgHandler.AddMember)
		authed.DELETE("/orgs/:org_id/members/:netid", orgHandler.RemoveMember)
	}

	// Редирект (корневой путь) — публичный, без токена, лимит по IP
	router.GET("/:alias", rateLimiter.Middleware(), linkHandler.Redirect)

	return router
}

// HealthCheck простой liveness endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
