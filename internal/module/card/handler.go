package card

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/waterfall/internal/domain"
	"github.com/simp-lee/waterfall/internal/pkg"
)

// CardHandler handles REST API requests for the card resource.
type CardHandler struct {
	svc domain.CardService
}

// NewHandler creates a CardHandler with the given service.
func NewHandler(svc domain.CardService) *CardHandler {
	return &CardHandler{svc: svc}
}

// Create handles POST /api/v1/cards.
func (h *CardHandler) Create(c *gin.Context) {
	var item domain.CardItem
	if !pkg.BindAndValidate(c, &item) {
		return
	}

	created, err := h.svc.CreateCard(c.Request.Context(), item)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Created(c, created)
}

// CreateBatch handles POST /api/v1/cards/batch.
func (h *CardHandler) CreateBatch(c *gin.Context) {
	var req BatchCreateRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	items, err := h.svc.CreateCards(c.Request.Context(), req.Items)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Created(c, BatchCreateResponse{Created: len(items), Items: items})
}

// Get handles GET /api/v1/cards/:id.
func (h *CardHandler) Get(c *gin.Context) {
	id, err := parseCardID(c)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	item, err := h.svc.GetCard(c.Request.Context(), id)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, item)
}

// List handles GET /api/v1/cards.
func (h *CardHandler) List(c *gin.Context) {
	req := pkg.ParsePageRequest(c, pkg.DefaultPageLimits)

	result, err := h.svc.ListCards(c.Request.Context(), req)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.List(c, result)
}

// Delete handles DELETE /api/v1/cards/:id.
func (h *CardHandler) Delete(c *gin.Context) {
	id, err := parseCardID(c)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	if err := h.svc.DeleteCard(c.Request.Context(), id); err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, nil)
}

// parseCardID reads the :id path parameter. The optional kind query
// parameter ("string" or "int") forces the id kind; otherwise an all-digit
// id is an integer id and anything else a string id.
func parseCardID(c *gin.Context) (domain.CardID, error) {
	raw := strings.TrimSpace(c.Param("id"))
	if raw == "" {
		return domain.CardID{}, domain.Validationf("card id is required")
	}

	kind := strings.ToLower(strings.TrimSpace(c.Query("kind")))
	switch kind {
	case domain.CardIDKindString:
		return domain.StringID(raw), nil
	case domain.CardIDKindInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.CardID{}, domain.Validationf("card id %q is not an integer", raw)
		}
		return domain.IntID(n), nil
	case "":
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return domain.IntID(n), nil
		}
		return domain.StringID(raw), nil
	default:
		return domain.CardID{}, domain.Validationf("kind must be %q or %q, got %q", domain.CardIDKindString, domain.CardIDKindInt, kind)
	}
}
