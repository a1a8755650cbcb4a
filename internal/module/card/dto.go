package card

import "github.com/simp-lee/waterfall/internal/domain"

// BatchCreateRequest is the body of POST /cards/batch.
type BatchCreateRequest struct {
	Items []domain.CardItem `json:"items" binding:"required,min=1,max=500"`
}

// BatchCreateResponse reports what a batch insert stored.
type BatchCreateResponse struct {
	Created int               `json:"created"`
	Items   []domain.CardItem `json:"items"`
}
