package api

import (
	"errors"

	"escrow-service/internal/apperr"
	"escrow-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

// errorBody maps err to its HTTP status and public payload. Messages and details
// only reach the client when the code allows it.
func errorBody(err error) (int, errorEnvelope) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := apperr.As(err)
	if typed == nil {
		typed = apperr.Wrap(apperr.CodeInternal, err, "unexpected error")
	}
	meta := apperr.MetadataFor(typed.Code())

	body := apiError{Code: string(typed.Code()), Message: meta.PublicMessage}
	if meta.DetailsAllowed {
		if m := typed.Message(); m != "" {
			body.Message = m
		}
		body.Details = typed.Details()
	}
	return meta.HTTPStatus, errorEnvelope{Error: body}
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status, body := errorBody(err)
	if body.Error.Code == string(apperr.CodeInternal) {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, body)
}

func abortWith(c *gin.Context, err error) {
	status, body := errorBody(err)
	if body.Error.Code == string(apperr.CodeInternal) {
		util.GetLogger().Error("Request aborted", zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}
