// Package router maps the HTTP API onto the handlers.
package router

import (
	"github.com/gin-gonic/gin"

	"videotrans/internal/handler"
	"videotrans/internal/service"
)

func SetupRouter(r *gin.Engine, svc *service.Service, enq handler.Enqueuer) {
	hdl := handler.NewHandler(svc, enq)

	api := r.Group("/api")
	{
		api.POST("/task", hdl.StartTask)
		api.GET("/task/:taskId", hdl.GetTask)
		api.POST("/task/:taskId/stop", hdl.StopTask)
		api.GET("/history", hdl.GetHistory)
	}
	r.GET("/ws/progress", hdl.ServeWS)
}
