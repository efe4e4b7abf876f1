// Package httpapi serves the server's observability surface over HTTP:
// health, diagnostics and world listings as JSON, plus the websocket
// spectator feed. Game traffic never crosses this surface.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	server "driftisle/server"
	"driftisle/server/internal/net/ws"
)

// Diagnostics is the view of the hub the API serves. *server.Hub
// satisfies it; tests substitute fixtures.
type Diagnostics interface {
	DiagnosticsSnapshot() server.DiagnosticsSnapshot
	WorldsSnapshot() []server.WorldDiagnostics
	Ticks() uint64
}

// NewRouter builds the API router. feed may be nil, which disables the
// /ws endpoint.
func NewRouter(hub Diagnostics, feed *ws.Feed) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"ticks":  hub.Ticks(),
		})
	})

	router.GET("/diagnostics", func(c *gin.Context) {
		c.JSON(http.StatusOK, hub.DiagnosticsSnapshot())
	})

	router.GET("/worlds", func(c *gin.Context) {
		worlds := hub.WorldsSnapshot()
		if worlds == nil {
			worlds = []server.WorldDiagnostics{}
		}
		c.JSON(http.StatusOK, worlds)
	})

	if feed != nil {
		router.GET("/ws", gin.WrapH(feed))
	}

	return router
}
