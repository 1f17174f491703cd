package http

import "github.com/gin-gonic/gin"

// Register attaches project list routes to the given router group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("", h.list)
	rg.POST("", h.create)
	rg.POST("/reload", h.reload)
	rg.GET("/events", h.events)
	rg.POST("/risk", h.refreshAll)
	rg.GET("/risk/runs", h.listRuns)

	rg.GET("/:id", h.get)
	rg.DELETE("/:id", h.delete)
	rg.POST("/:id/risk", h.refreshOne)
	rg.POST("/:id/edit", h.beginEdit)
	rg.PATCH("/:id/edit", h.updateEdit)
	rg.POST("/:id/edit/save", h.saveEdit)
	rg.DELETE("/:id/edit", h.cancelEdit)
}
