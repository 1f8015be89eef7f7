package handlers

import (
	"github.com/0xArchitect/ludo-backend/internal/middleware"
	"github.com/0xArchitect/ludo-backend/internal/services"
	"github.com/0xArchitect/ludo-backend/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// WebSocketHandler upgrades authenticated clients to the ledger event stream
type WebSocketHandler struct {
	pushService *services.WebSocketPushService
	logger      logrus.FieldLogger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(pushService *services.WebSocketPushService, logger logrus.FieldLogger) *WebSocketHandler {
	return &WebSocketHandler{pushService: pushService, logger: logger}
}

// HandleWebSocket GET /ws. Browsers cannot set headers on the upgrade,
// so the token usually arrives as ?token=.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		respondWithError(c, h.logger, types.ErrUnauthorized)
		return
	}
	h.pushService.HandleWebSocket(c.Writer, c.Request, identity.UserID)
}
