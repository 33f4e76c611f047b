package route

import (
	"github.com/gin-gonic/gin"
)

type CounterHandler interface {
	GetCounters(c *gin.Context)
	GetPeerCounter(c *gin.Context)
	MarkRead(c *gin.Context)
	StreamCounters(c *gin.Context)
}

func RegisterCounters(g *gin.RouterGroup, h CounterHandler) {
	g.POST("/mark_read", h.MarkRead)
	g.GET("/ws/:user_id", h.StreamCounters)
	g.GET("/:user_id", h.GetCounters)
	g.GET("/:user_id/peer/:peer_id", h.GetPeerCounter)
}
