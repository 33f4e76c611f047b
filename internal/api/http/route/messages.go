package route

import (
	"github.com/gin-gonic/gin"
)

type MessageHandler interface {
	SendMessage(c *gin.Context)
}

func RegisterMessages(g *gin.RouterGroup, h MessageHandler) {
	g.POST("", h.SendMessage)
}
