package domain

import "context"

// Card is the persisted form of a CardItem.
type Card struct {
	BaseModel
	CardID     string         `gorm:"size:191;uniqueIndex:idx_cards_card_id;not null"`
	CardIDKind string         `gorm:"size:8;uniqueIndex:idx_cards_card_id;not null;default:string"`
	URL        string         `gorm:"size:2048;not null"`
	Width      float64        `gorm:"not null"`
	Height     float64        `gorm:"not null"`
	Attributes map[string]any `gorm:"serializer:json"`
}

// NewCard converts an item into its persisted form.
func NewCard(item CardItem) *Card {
	return &Card{
		CardID:     item.ID.String(),
		CardIDKind: item.ID.Kind(),
		URL:        item.URL,
		Width:      item.Width,
		Height:     item.Height,
		Attributes: item.Extra,
	}
}

// Item converts the stored card back into a CardItem.
func (c *Card) Item() (CardItem, error) {
	id, err := ParseCardID(c.CardIDKind, c.CardID)
	if err != nil {
		return CardItem{}, err
	}
	return CardItem{
		ID:     id,
		URL:    c.URL,
		Width:  c.Width,
		Height: c.Height,
		Extra:  c.Attributes,
	}, nil
}

// CardRepository defines the data access interface for cards.
type CardRepository interface {
	Create(ctx context.Context, card *Card) error
	CreateBatch(ctx context.Context, cards []*Card) error
	GetByCardID(ctx context.Context, id CardID) (*Card, error)
	List(ctx context.Context, req PageRequest) (*PageResult[Card], error)
	Delete(ctx context.Context, id CardID) error
}

// CardService defines the business logic interface for cards. It is also
// the default CardSource of the waterfall.
type CardService interface {
	CardSource
	CreateCard(ctx context.Context, item CardItem) (*CardItem, error)
	CreateCards(ctx context.Context, items []CardItem) ([]CardItem, error)
	GetCard(ctx context.Context, id CardID) (*CardItem, error)
	ListCards(ctx context.Context, req PageRequest) (*PageResult[CardItem], error)
	DeleteCard(ctx context.Context, id CardID) error
}
