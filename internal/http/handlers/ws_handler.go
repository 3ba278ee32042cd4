// README: WebSocket upgrade handler feeding connections into the event hub.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"lifeline/internal/events"
	"lifeline/internal/types"
)

type WSHandler struct {
	hub *events.Hub
	log *logrus.Logger
}

func NewWSHandler(hub *events.Hub, log *logrus.Logger) *WSHandler {
	return &WSHandler{hub: hub, log: log}
}

// Serve upgrades the connection and hands it to the hub. The user identity
// comes from the actor header, or a query parameter for browser clients
// that cannot set headers on the upgrade request.
func (h *WSHandler) Serve(c *gin.Context) {
	userID, _ := actor(c)
	if userID == "" {
		userID = types.ID(c.Query("user"))
	}
	if userID == "" {
		writeError(c, http.StatusBadRequest, "missing user identity")
		return
	}
	if err := events.ServeWS(h.hub, c.Writer, c.Request, userID); err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
	}
}
