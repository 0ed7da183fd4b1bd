package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/pulsechat/internal/chat"
	"go.uber.org/zap"
)

// statusFor maps a chat error kind to the HTTP status the client sees.
func statusFor(kind chat.Kind) int {
	switch kind {
	case chat.KindValidation:
		return http.StatusBadRequest
	case chat.KindNotFound:
		return http.StatusNotFound
	case chat.KindConflict:
		return http.StatusConflict
	case chat.KindForbidden:
		return http.StatusForbidden
	case chat.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes an error response. Expected failures echo their message;
// anything else is logged and hidden behind fallback.
func fail(c *gin.Context, logger *zap.Logger, err error, fallback string) {
	kind := chat.KindOf(err)
	if kind == "" {
		logger.Error(fallback, zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": fallback})
		return
	}
	c.JSON(statusFor(kind), gin.H{"success": false, "message": err.Error()})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": message})
}

// paramID parses a UUID path parameter, answering 400 when it is malformed.
func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
