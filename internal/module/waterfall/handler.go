package waterfall

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/waterfall/internal/pkg"
)

// Handler serves the waterfall endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a Handler over svc.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Page handles GET /api/v1/waterfall.
func (h *Handler) Page(c *gin.Context) {
	var q Query
	if !pkg.BindQuery(c, &q) {
		return
	}

	view, err := h.svc.Page(c.Request.Context(), q)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, view)
}

// Layout handles POST /api/v1/layout.
func (h *Handler) Layout(c *gin.Context) {
	var req LayoutRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	placement, err := h.svc.Layout(c.Request.Context(), req)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, placement)
}
