package helper

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fastap/internal/core/domain"
	"fastap/internal/core/model/response"
)

func SendSuccess(c *gin.Context, statusCode int, data any, message ...string) {
	response := response.SuccessResponse{
		Data: data,
	}

	if len(message) > 0 && message[0] != "" {
		response.Message = message[0]
	}

	c.JSON(statusCode, response)
}

func SendError(c *gin.Context, statusCode int, code string, errors []response.ValidationError, details ...any) {
	errorResponse := response.ErrorResponse{
		Error: response.ResponseError{
			Code:   code,
			Errors: errors,
		},
	}

	if len(details) > 0 {
		errorResponse.Error.Details = details[0]
	}

	c.JSON(statusCode, errorResponse)
}

func SendInternalError(c *gin.Context, message string, details ...any) {
	errors := []response.ValidationError{
		{
			Field:   "server",
			Message: message,
		},
	}

	SendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", errors, details...)
}

func SendUnauthorizedError(c *gin.Context, message string) {
	errors := []response.ValidationError{
		{
			Field:   "auth",
			Message: message,
		},
	}

	SendError(c, http.StatusUnauthorized, "UNAUTHORIZED", errors)
}

func SendBadRequestError(c *gin.Context, field string, message string) {
	errors := []response.ValidationError{
		{
			Field:   field,
			Message: message,
		},
	}

	SendError(c, http.StatusBadRequest, "BAD_REQUEST", errors)
}

// StatusFor maps a domain error kind to its HTTP status.
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation, domain.KindConflict:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindInternal:
		return http.StatusInternalServerError
	}

	return http.StatusInternalServerError
}

// SendAppError renders errors returned by the core services. Anything that is
// not a *domain.Error is logged and hidden behind a generic 500.
func SendAppError(c *gin.Context, err error) {
	var appErr *domain.Error

	if !errors.As(err, &appErr) {
		zap.L().Error("unhandled error",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		SendInternalError(c, "Error interno del servidor.")
		return
	}

	if appErr.Kind == domain.KindInternal {
		zap.L().Error("internal error",
			zap.String("path", c.FullPath()),
			zap.String("message", appErr.Message),
			zap.Error(appErr.Err))
	}

	SendError(c, StatusFor(appErr.Kind), appErr.Kind.String(), []response.ValidationError{
		{
			Field:   appErr.Field,
			Message: appErr.Message,
		},
	})
}

// AbortWithAppError renders err and stops the handler chain.
func AbortWithAppError(c *gin.Context, err error) {
	SendAppError(c, err)
	c.Abort()
}
