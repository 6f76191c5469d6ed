package route

import (
	"github.com/gin-gonic/gin"
)

type WallHandler interface {
	Submit(c *gin.Context)
	Finalize(c *gin.Context)
	Wall(c *gin.Context)
	ListMessages(c *gin.Context)
	DeleteMessage(c *gin.Context)
}

// RegisterWall wires the two-phase posting flow: the free submit leg, the
// paywalled confirmation leg (pending gate first, so consumed tokens are
// never charged), and the read/admin surface.
func RegisterWall(g *gin.RouterGroup, h WallHandler, rateLimit, pendingGate, payment gin.HandlerFunc) {
	if rateLimit != nil {
		g.POST("/wall", rateLimit, h.Submit)
	} else {
		g.POST("/wall", h.Submit)
	}

	g.GET("/wall", h.Wall)
	g.GET("/wall-paid", pendingGate, payment, h.Finalize)

	g.GET("/wall/messages", h.ListMessages)
	g.DELETE("/wall/messages/:id", h.DeleteMessage)
}
