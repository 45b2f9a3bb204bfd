// Package response writes JSON error bodies for handlers and middleware. Every error
// response has the shape {"detail": "<message>"}; 429 responses add "retry_after" in
// seconds and set the Retry-After header.
package response

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/event-registry/event-registry/internal/apperr"
	"github.com/event-registry/event-registry/internal/lifecycle"
)

// Status maps err to an HTTP status code.
func Status(err error) int {
	var transition *lifecycle.InvalidTransitionError
	if errors.As(err, &transition) {
		return http.StatusConflict
	}

	switch apperr.KindOf(err) {
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// body builds the client-safe body for err. Internal errors never expose their message.
func body(err error, status int) gin.H {
	if status == http.StatusInternalServerError {
		return gin.H{"detail": "internal server error"}
	}

	var transition *lifecycle.InvalidTransitionError
	if errors.As(err, &transition) {
		return gin.H{"detail": transition.Error()}
	}

	e, ok := apperr.As(err)
	if !ok {
		return gin.H{"detail": http.StatusText(status)}
	}
	h := gin.H{"detail": e.Message}
	if e.Kind == apperr.KindRateLimited && e.RetryAfter > 0 {
		h["retry_after"] = retrySeconds(e)
	}
	return h
}

func retrySeconds(e *apperr.Error) int {
	return int(math.Ceil(e.RetryAfter.Seconds()))
}

// Error writes err as a JSON error response.
func Error(c *gin.Context, err error) {
	status := write(c, err)
	c.JSON(status, body(err, status))
}

// Abort writes err and stops the handler chain.
func Abort(c *gin.Context, err error) {
	status := write(c, err)
	c.AbortWithStatusJSON(status, body(err, status))
}

// Detail writes a plain {"detail": msg} response.
func Detail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"detail": msg})
}

// AbortDetail writes a plain {"detail": msg} response and aborts.
func AbortDetail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

// write logs server-side failures and sets headers; it returns the status to send.
func write(c *gin.Context, err error) int {
	status := Status(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(),
			"request_id", c.GetString("request_id"), "error", err)
	}
	if e, ok := apperr.As(err); ok && e.Kind == apperr.KindRateLimited && e.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(retrySeconds(e)))
	}
	_ = c.Error(err)
	return status
}
