// internal/utils/response.go
package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/imi-licensing/internal/apperrors"
	"github.com/javajoker/imi-licensing/internal/models"
)

// ActorKey is the gin context key holding the authenticated models.Actor.
const ActorKey = "actor"

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	State   string      `json:"state,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

func CreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{
		Success: true,
		Data:    data,
	})
}

func ErrorResponse(c *gin.Context, statusCode int, code, message string, details interface{}) {
	c.JSON(statusCode, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func BadRequestResponse(c *gin.Context, message string, details interface{}) {
	if message == "" {
		message = "Invalid request"
	}
	ErrorResponse(c, http.StatusBadRequest, "BAD_REQUEST", message, details)
}

func UnauthorizedResponse(c *gin.Context, message string) {
	if message == "" {
		message = "Authentication required"
	}
	ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

func ForbiddenResponse(c *gin.Context, message string) {
	if message == "" {
		message = "Access denied"
	}
	ErrorResponse(c, http.StatusForbidden, "FORBIDDEN", message, nil)
}

func InternalErrorResponse(c *gin.Context, message string) {
	if message == "" {
		message = "Internal server error"
	}
	ErrorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", message, nil)
}

// ErrorFromDomain writes the response for an error returned by a service.
func ErrorFromDomain(c *gin.Context, err error) {
	var (
		validationErr *apperrors.ValidationError
		notFoundErr   *apperrors.NotFoundError
		conflictErr   *apperrors.ConflictError
		storeErr      *apperrors.StoreError
	)

	switch {
	case errors.As(err, &validationErr):
		var details interface{}
		if len(validationErr.Fields) > 0 {
			details = validationErr.Fields
		}
		ErrorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", validationErr.Message, details)
	case errors.As(err, &notFoundErr):
		ErrorResponse(c, http.StatusNotFound, "NOT_FOUND", notFoundErr.Error(), nil)
	case errors.Is(err, apperrors.ErrPermission):
		ForbiddenResponse(c, err.Error())
	case errors.As(err, &conflictErr):
		c.JSON(http.StatusConflict, APIResponse{
			Success: false,
			Error: &APIError{
				Code:    "CONFLICT",
				Message: conflictErr.Message,
				State:   conflictErr.CurrentState,
			},
		})
	case errors.As(err, &storeErr) && storeErr.Retryable:
		c.Header("Retry-After", "1")
		ErrorResponse(c, http.StatusServiceUnavailable, "UNAVAILABLE", "Service temporarily unavailable", nil)
	case errors.Is(err, apperrors.ErrConsistency):
		InternalErrorResponse(c, "Internal consistency error")
	default:
		InternalErrorResponse(c, "")
	}
	c.Error(err)
}

func GetActorFromContext(c *gin.Context) (models.Actor, bool) {
	if v, exists := c.Get(ActorKey); exists {
		if actor, ok := v.(models.Actor); ok {
			return actor, true
		}
	}
	return models.Actor{}, false
}

func GetUserIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	actor, ok := GetActorFromContext(c)
	return actor.ID, ok
}

// ParseUUIDParam reads a path parameter as a uuid, answering 400 when it is malformed.
func ParseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		BadRequestResponse(c, "Invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}
