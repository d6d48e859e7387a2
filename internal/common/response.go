package common

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// OK writes the standard success envelope.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

// Fail writes the standard error envelope with an explicit code.
func Fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    nil,
	})
}

// FailErr maps a taxonomy error to its HTTP status and envelope code.
func FailErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		Fail(c, http.StatusForbidden, 40301, err.Error())
	case errors.Is(err, ErrNotFound):
		Fail(c, http.StatusNotFound, 40401, err.Error())
	case errors.Is(err, ErrChainNotConfigured):
		Fail(c, http.StatusNotFound, 40402, err.Error())
	case errors.Is(err, ErrValidation):
		Fail(c, http.StatusBadRequest, 40001, err.Error())
	case errors.Is(err, ErrRateLimited):
		Fail(c, http.StatusTooManyRequests, 42901, err.Error())
	case errors.Is(err, ErrProviderUnavailable):
		Fail(c, http.StatusServiceUnavailable, 50301, err.Error())
	case errors.Is(err, ErrTimeout):
		Fail(c, http.StatusGatewayTimeout, 50401, err.Error())
	case errors.Is(err, ErrProvider),
		errors.Is(err, ErrNonceFetchFailed),
		errors.Is(err, ErrSigningFailed),
		errors.Is(err, ErrBroadcastFailed):
		Fail(c, http.StatusBadGateway, 50201, err.Error())
	default:
		Fail(c, http.StatusInternalServerError, 50001, err.Error())
	}
}
