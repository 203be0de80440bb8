package rest

import (
	"net/http"

	"github.com/dfryer1193/roomshot/room/application"
	"github.com/gin-gonic/gin"
)

// NewApi registers the relay routes on router.
func NewApi(router *gin.Engine, relay *application.RelayService, maxUploadBytes int64, metricsHandler gin.HandlerFunc) {
	rooms := &RoomsApi{relay: relay, maxUploadBytes: maxUploadBytes}

	router.POST("/create-room", rooms.CreateRoom)
	router.POST("/screenshot", rooms.PostScreenshot)
	router.GET("/screen/:roomId", rooms.GetScreen)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metricsHandler != nil {
		router.GET("/metrics", metricsHandler)
	}

	router.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "Not Found")
	})
}
