package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jensholdgaard/art-auction/internal/auction"
	"github.com/jensholdgaard/art-auction/internal/telemetry"
)

// Response is the envelope for successful calls.
type Response struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is the envelope for failed calls. Reason is a stable code
// clients can switch on.
type ErrorResponse struct {
	Status     int    `json:"status"`
	Message    string `json:"message"`
	Reason     string `json:"reason"`
	Error      string `json:"error"`
	MinimumBid string `json:"minimum_bid,omitempty"`
}

func respond(c *gin.Context, status int, data any, message string) {
	c.JSON(status, Response{Status: status, Message: message, Data: data})
}

// statusFor maps a service error onto an HTTP status code and message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, auction.ErrBidTooLow):
		return http.StatusConflict, "bid amount too low"
	case errors.Is(err, auction.ErrNotFound):
		return http.StatusNotFound, "resource not found"
	case errors.Is(err, auction.ErrValidation):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, auction.ErrUnauthorized):
		return http.StatusForbidden, "operation not permitted"
	case errors.Is(err, auction.ErrInvalidState):
		return http.StatusConflict, "operation not allowed in the current state"
	case errors.Is(err, auction.ErrConflict):
		return http.StatusConflict, "conflicting update"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (h *Handler) fail(c *gin.Context, handler string, err error) {
	ctx := c.Request.Context()
	status, message := statusFor(err)
	resp := ErrorResponse{
		Status:  status,
		Message: message,
		Reason:  auction.Code(err),
		Error:   err.Error(),
	}

	var tooLow *auction.BidTooLowError
	if errors.As(err, &tooLow) {
		resp.MinimumBid = tooLow.Minimum.StringFixed(2)
	}

	logger := telemetry.LogWithTrace(ctx, h.logger)
	if status >= http.StatusInternalServerError {
		// Infrastructure details stay in the log.
		resp.Error = message
		logger.ErrorContext(ctx, handler+": request failed", slog.Any("error", err))
	} else {
		logger.DebugContext(ctx, handler+": request rejected",
			slog.String("reason", resp.Reason),
			slog.Any("error", err),
		)
	}
	c.AbortWithStatusJSON(status, resp)
}

func (h *Handler) badRequest(c *gin.Context, handler, message string) {
	h.logger.DebugContext(c.Request.Context(), handler+": bad request", slog.String("error", message))
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Status:  http.StatusBadRequest,
		Message: "invalid request payload",
		Reason:  "invalid_payload",
		Error:   message,
	})
}

// bind decodes the JSON body into req and answers 400 when it does not fit.
func (h *Handler) bind(c *gin.Context, handler string, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.badRequest(c, handler, err.Error())
		return false
	}
	return true
}
