package v1

import (
	"github.com/THPTUHA/livelook/server/httpserver/controllers"
	"github.com/gin-gonic/gin"
)

func Token(ginApp *gin.RouterGroup, ctr *controllers.Controller) {
	ginApp.GET("/rtc-token", ctr.RTCToken)
}
