package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ecocycle/collection-service/pkg/errors"
	"github.com/ecocycle/collection-service/pkg/logging"
)

// APIErrorResponse is the body of every non-2xx response
type APIErrorResponse struct {
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	Details     map[string]string `json:"details,omitempty"`
	Recoverable bool              `json:"recoverable,omitempty"`
	RequestID   string            `json:"requestId,omitempty"`
	TraceID     string            `json:"traceId,omitempty"`
	Timestamp   string            `json:"timestamp"`
	Path        string            `json:"path"`
}

func errorBody(c *gin.Context, appErr *errors.AppError) APIErrorResponse {
	return APIErrorResponse{
		Code:        appErr.Code,
		Message:     appErr.Message,
		Details:     appErr.Details,
		Recoverable: appErr.Recoverable,
		RequestID:   GetRequestID(c),
		TraceID:     c.GetString(ContextKeyTraceID),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Path:        c.Request.URL.Path,
	}
}

func internalError() *errors.AppError {
	return errors.ErrInternal("An unexpected error occurred")
}

// ErrorHandler renders the last error a handler attached with c.Error when
// nothing has been written yet.
func ErrorHandler(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		appErr := errors.FromError(c.Errors.Last().Err)
		logAPIError(logger, c, appErr)
		c.JSON(appErr.HTTPStatus, errorBody(c, appErr))
	}
}

// ErrorResponder writes error bodies for one request and logs them: 4xx at
// warn, 5xx at error.
type ErrorResponder struct {
	ctx    *gin.Context
	logger *logging.Logger
}

func NewErrorResponder(ctx *gin.Context, logger *logging.Logger) *ErrorResponder {
	return &ErrorResponder{ctx: ctx, logger: logger}
}

func (r *ErrorResponder) RespondWithAppError(appErr *errors.AppError) {
	logAPIError(r.logger, r.ctx, appErr)
	r.ctx.JSON(appErr.HTTPStatus, errorBody(r.ctx, appErr))
}

// RespondInternalError hides err from the body but keeps it in the log
func (r *ErrorResponder) RespondInternalError(err error) {
	r.RespondWithAppError(internalError().Wrap(err))
}

func logAPIError(logger *logging.Logger, c *gin.Context, appErr *errors.AppError) {
	if logger == nil {
		return
	}

	level := slog.LevelWarn
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	attrs := []any{
		"code", appErr.Code,
		"status", appErr.HTTPStatus,
		"method", c.Request.Method,
		"route", c.FullPath(),
	}
	if appErr.Err != nil {
		attrs = append(attrs, "error", appErr.Err.Error())
	}
	if len(appErr.Details) > 0 {
		attrs = append(attrs, "details", appErr.Details)
	}

	ctx := c.Request.Context()
	logger.WithContext(ctx).Log(ctx, level, appErr.Message, attrs...)
}

// AbortWithAppError stops the chain with appErr as the response
func AbortWithAppError(c *gin.Context, appErr *errors.AppError) {
	c.AbortWithStatusJSON(appErr.HTTPStatus, errorBody(c, appErr))
}
