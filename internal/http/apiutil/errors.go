package apiutil

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/apperr"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindStateConflict:
		return http.StatusUnprocessableEntity
	case apperr.KindTransient:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// HandleServiceError writes the JSON error response for a service error.
// Configuration and unclassified errors are logged and answered generically.
func HandleServiceError(c *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	if !ok || appErr.Kind == apperr.KindConfiguration || appErr.Kind == apperr.KindInternal {
		log.WithError(err).WithField("trace_id", TraceID(c)).Error("request failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":    "internal server error",
			"trace_id": TraceID(c),
		})
		return
	}

	body := gin.H{
		"error":    appErr.Message,
		"code":     appErr.Code,
		"trace_id": TraceID(c),
	}
	if appErr.Kind == apperr.KindTransient {
		body["retryable"] = true
	}
	c.AbortWithStatusJSON(StatusFor(appErr.Kind), body)
}

// ParseIDParam reads a positive integer path parameter, answering 400 when invalid.
func ParseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// ParseOptionalBool reads "1/0/true/false" style query values, nil when absent.
func ParseOptionalBool(value string) (*bool, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, true
	}
	parsed, errParse := strconv.ParseBool(value)
	if errParse != nil {
		return nil, false
	}
	return &parsed, true
}
