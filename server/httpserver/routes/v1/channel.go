package v1

import (
	"github.com/THPTUHA/livelook/server/httpserver/controllers"
	"github.com/gin-gonic/gin"
)

// Channel mounts the broadcast endpoints. write guards the mutating routes.
func Channel(ginApp *gin.RouterGroup, ctr *controllers.Controller, write ...gin.HandlerFunc) {
	ginApp.GET("/status", ctr.Status)
	ginApp.GET("/channels", ctr.ListChannels)
	ginApp.POST("/start", append(write, ctr.Start)...)
	ginApp.POST("/end", append(write, ctr.End)...)
}
