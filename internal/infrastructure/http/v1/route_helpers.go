package v1

import (
	"github.com/gin-gonic/gin"
)

// CRUDRouteHandler is implemented by handlers of individually addressed resources.
type CRUDRouteHandler interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
}

// RegisterCRUDRoutes registers create/read/patch/delete routes for a resource.
//
// Usage:
//
//	handler := handlers.NewMovementHandler(base, service)
//	RegisterCRUDRoutes(api.Group("/movements"), handler)
func RegisterCRUDRoutes(group *gin.RouterGroup, handler CRUDRouteHandler) {
	group.POST("", handler.Create)
	group.GET("/:id", handler.Get)
	group.PATCH("/:id", handler.Update)
	group.DELETE("/:id", handler.Delete)
}
