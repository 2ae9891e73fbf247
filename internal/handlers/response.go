package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paulexconde/surveyflow/internal/logger"
	"github.com/paulexconde/surveyflow/pkg/fault"
)

type APIError struct {
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	apiErr := APIError{Message: msg, Code: code}

	var verr *fault.ValidationError
	if errors.As(err, &verr) {
		apiErr.Fields = verr.Fields
	}
	c.JSON(status, ErrorEnvelope{Error: apiErr})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// respondFault maps service errors: not found is 404, client faults 400, anything else 500
// with the details logged instead of returned.
func respondFault(c *gin.Context, log *logger.Logger, code string, err error) {
	switch {
	case errors.Is(err, fault.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case fault.IsClientError(err):
		RespondError(c, http.StatusBadRequest, code, err)
	default:
		log.Error("request failed", "code", code, "path", c.FullPath(), "request_id", c.GetString(ctxRequestID), "error", err)
		RespondError(c, http.StatusInternalServerError, "internal_error", errors.New("internal server error"))
	}
}
