package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"booking/internal/booking"
	"booking/internal/storage"
)

// Error keys returned in the "key" field of error bodies
const (
	keyBusinessRule = "businessrule"
	keyIDInvalid    = "idinvalid"
	keyIDNull       = "idnull"
	keyIDExists     = "idexists"
	keyNotFound     = "notfound"
	keyBadRequest   = "badrequest"
	keyUnauthorized = "unauthorized"
	keyInternal     = "internal"
)

type errorResponse struct {
	Error string `json:"error"`
	Key   string `json:"key,omitempty"`
}

func badRequest(c *gin.Context, key, message string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: message, Key: key})
}

// fail maps a service error to a response
func (s *Server) fail(c *gin.Context, err error) {
	var rule *booking.RuleError
	switch {
	case errors.As(err, &rule):
		c.JSON(http.StatusBadRequest, errorResponse{Error: rule.Message, Key: keyBusinessRule})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: "Not found", Key: keyNotFound})
	default:
		ctx := c.Request.Context()
		trace.SpanFromContext(ctx).RecordError(err)
		s.logger.Error("Request failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", c.GetString(ctxRequestID)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Internal server error", Key: keyInternal})
	}
}

// pathID parses a positive int64 path parameter
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, keyIDInvalid, "Invalid ID")
		return 0, false
	}
	return id, true
}
