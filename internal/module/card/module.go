package card

import "github.com/gin-gonic/gin"

// CardModule implements the app.Module interface for the card store.
type CardModule struct {
	handler *CardHandler
}

// NewModule creates a CardModule. Panics if h is nil.
func NewModule(h *CardHandler) *CardModule {
	if h == nil {
		panic("card.NewModule: handler must not be nil")
	}
	return &CardModule{handler: h}
}

// RegisterRoutes registers the card API routes.
func (m *CardModule) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/cards", m.handler.Create)
	api.POST("/cards/batch", m.handler.CreateBatch)
	api.GET("/cards", m.handler.List)
	api.GET("/cards/:id", m.handler.Get)
	api.DELETE("/cards/:id", m.handler.Delete)
}
