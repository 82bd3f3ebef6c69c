package handler

import (
	"errors"
	"net/http"

	"github.com/SergeiKhy/linkhub/internal/service"
	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeServiceError переводит ошибки сервисного слоя в HTTP статусы
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_url",
			Message: "URL must start with http:// or https://",
		})
	case errors.Is(err, service.ErrInvalidAlias):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_alias",
			Message: "Alias must be 4-32 characters: letters, digits, '-' or '_'",
		})
	case errors.Is(err, service.ErrReserved):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "reserved_alias",
			Message: "This alias is reserved",
		})
	case errors.Is(err, service.ErrAliasTaken):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "alias_taken",
			Message: "Alias is already in use",
		})
	case errors.Is(err, service.ErrUnsafeURL):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "unsafe_url",
			Message: "Destination was flagged as unsafe",
		})
	case errors.Is(err, service.ErrGateClosed):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "safety_unavailable",
			Message: "Destination could not be verified, try again later",
		})
	case errors.Is(err, service.ErrInvalidGrant):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_grant",
			Message: "Grant must name a user or organization with viewer or editor level",
		})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "forbidden",
			Message: "Insufficient permissions",
		})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Resource not found",
		})
	case errors.Is(err, service.ErrExpired):
		c.JSON(http.StatusGone, ErrorResponse{
			Error:   "expired",
			Message: "Link has expired",
		})
	case errors.Is(err, service.ErrOrgExists):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "org_exists",
			Message: "Organization name is already in use",
		})
	case errors.Is(err, service.ErrOrgNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "org_not_found",
			Message: "Organization not found",
		})
	case errors.Is(err, service.ErrAliasSpaceExhausted):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "alias_space_exhausted",
			Message: "Could not allocate a short alias, try again later",
		})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Internal server error",
		})
	}
}
