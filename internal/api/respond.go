package api

import (
	"net/http"

	apperrors "ipo-compliance/internal/common/errors"

	"github.com/gin-gonic/gin"
)

type errorBody struct {
	Code     apperrors.ErrorCode    `json:"code"`
	Message  string                 `json:"message"`
	Details  string                 `json:"details,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// respondError writes err with the status its code maps to. Internal failures get a
// generic body; the cause is only logged.
func (s *Server) respondError(c *gin.Context, err error) int {
	stdErr := apperrors.AsStandard(err)
	status := apperrors.HTTPStatus(stdErr.Code)

	fields := map[string]interface{}{
		"code":      string(stdErr.Code),
		"status":    status,
		"requestId": GetRequestID(c),
		"error":     err.Error(),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", fields)
	} else {
		s.logger.Warn("request rejected", fields)
	}

	body := errorBody{Code: stdErr.Code, Message: stdErr.Message, Details: stdErr.Details, Metadata: stdErr.Metadata}
	if status == http.StatusInternalServerError {
		body = errorBody{Code: apperrors.ErrCodeInternal, Message: "Internal server error"}
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body, "requestId": GetRequestID(c)})
	return status
}

// clientID reads the caller identity forwarded by the gateway.
func clientID(c *gin.Context) (string, bool) {
	if id := c.GetHeader("X-User-ID"); id != "" {
		return id, true
	}
	if id := c.Query("clientId"); id != "" {
		return id, true
	}
	return "", false
}
