package route

import (
	"github.com/gin-gonic/gin"
)

type EventHandler interface {
	MessageSent(c *gin.Context)
	MessagesRead(c *gin.Context)
}

// RegisterEvents wires the relay-facing delivery endpoints used in direct
// transport mode.
func RegisterEvents(g *gin.RouterGroup, h EventHandler) {
	g.POST("/message_sent", h.MessageSent)
	g.POST("/messages_read", h.MessagesRead)
}
