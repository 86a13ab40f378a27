package router

import (
	"github.com/wb-go/wbf/ginext"

	"snacklock/internal/api/handlers/notification"
)

func New(handler *notification.Handler) *ginext.Engine {
	e := ginext.New()
	e.Use(ginext.Logger())
	e.Use(ginext.Recovery())

	e.GET("/health", handler.Health)

	api := e.Group("/api")

	api.POST("/register", handler.Register)
	api.GET("/notifications/:id", handler.GetStatus)
	api.POST("/dispatch", handler.Dispatch)

	return e
}
