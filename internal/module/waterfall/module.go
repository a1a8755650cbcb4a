package waterfall

import "github.com/gin-gonic/gin"

// Module implements the app.Module interface for the layout endpoints.
type Module struct {
	handler *Handler
}

// NewModule creates a Module. Panics if h is nil.
func NewModule(h *Handler) *Module {
	if h == nil {
		panic("waterfall.NewModule: handler must not be nil")
	}
	return &Module{handler: h}
}

// RegisterRoutes registers the waterfall API routes.
func (m *Module) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/waterfall", m.handler.Page)
	api.POST("/layout", m.handler.Layout)
}
