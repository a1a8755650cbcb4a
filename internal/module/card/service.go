package card

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/simp-lee/waterfall/internal/cache"
	"github.com/simp-lee/waterfall/internal/domain"
	"github.com/simp-lee/waterfall/internal/pkg"
)

// fetchSort keeps source pages stable across calls.
const fetchSort = "id:asc"

// Option configures the card service.
type Option func(*cardService)

// WithCache sets the layout cache whose generation is bumped on writes.
func WithCache(c cache.LayoutCache) Option {
	return func(s *cardService) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *cardService) {
		if l != nil {
			s.log = l
		}
	}
}

// WithPageBase sets the number of the first page passed to Fetch (0 or 1).
func WithPageBase(base int) Option {
	return func(s *cardService) { s.pageBase = base }
}

type cardService struct {
	repo     domain.CardRepository
	cache    cache.LayoutCache
	log      *slog.Logger
	pageBase int
	newID    func() string
}

// NewService creates a CardService over repo.
func NewService(repo domain.CardRepository, opts ...Option) domain.CardService {
	s := &cardService{
		repo:     repo,
		cache:    cache.Noop{},
		log:      slog.Default(),
		pageBase: domain.DefaultPageBase,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch serves one page of stored cards in insertion order.
func (s *cardService) Fetch(ctx context.Context, page, pageSize int) ([]domain.CardItem, error) {
	req := domain.PageRequest{Page: page - s.pageBase + 1, PageSize: pageSize, Sort: fetchSort}
	if req.Page < 1 {
		return nil, domain.Validationf("page must be at least %d, got %d", s.pageBase, page)
	}
	if req.PageSize < 1 {
		return nil, domain.Validationf("page size must be at least 1, got %d", pageSize)
	}

	result, err := s.ListCards(ctx, req)
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

// CreateCard validates item, assigns a UUID when it has no id, and stores it.
func (s *cardService) CreateCard(ctx context.Context, item domain.CardItem) (*domain.CardItem, error) {
	if item.ID.IsZero() {
		item.ID = domain.StringID(s.newID())
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, domain.NewCard(item)); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return &item, nil
}

// CreateCards stores items in one transaction. Ids must be unique within the batch.
func (s *cardService) CreateCards(ctx context.Context, items []domain.CardItem) ([]domain.CardItem, error) {
	if len(items) == 0 {
		return nil, domain.Validationf("at least one card is required")
	}

	seen := make(map[string]struct{}, len(items))
	cards := make([]*domain.Card, 0, len(items))
	out := make([]domain.CardItem, 0, len(items))
	for _, item := range items {
		if item.ID.IsZero() {
			item.ID = domain.StringID(s.newID())
		}
		if err := item.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[item.ID.Key()]; dup {
			return nil, domain.Validationf("card %s appears more than once in the batch", item.ID)
		}
		seen[item.ID.Key()] = struct{}{}
		cards = append(cards, domain.NewCard(item))
		out = append(out, item)
	}

	if err := s.repo.CreateBatch(ctx, cards); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return out, nil
}

func (s *cardService) GetCard(ctx context.Context, id domain.CardID) (*domain.CardItem, error) {
	if id.IsZero() {
		return nil, domain.Validationf("card id is required")
	}
	card, err := s.repo.GetByCardID(ctx, id)
	if err != nil {
		return nil, err
	}
	item, err := card.Item()
	if err != nil {
		return nil, domain.NewAppError(domain.CodeInternal, "corrupt card record", err)
	}
	return &item, nil
}

func (s *cardService) ListCards(ctx context.Context, req domain.PageRequest) (*domain.PageResult[domain.CardItem], error) {
	result, err := s.repo.List(ctx, req)
	if err != nil {
		return nil, err
	}

	var convErr error
	page := pkg.MapPageResult(result, func(c domain.Card) domain.CardItem {
		item, err := c.Item()
		if err != nil && convErr == nil {
			convErr = err
		}
		return item
	})
	if convErr != nil {
		return nil, domain.NewAppError(domain.CodeInternal, "corrupt card record", convErr)
	}
	return page, nil
}

func (s *cardService) DeleteCard(ctx context.Context, id domain.CardID) error {
	if id.IsZero() {
		return domain.Validationf("card id is required")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// invalidate bumps the layout cache generation. A failure only means cached
// layouts live until their TTL.
func (s *cardService) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.log.WarnContext(ctx, "layout cache invalidation failed", slog.Any("error", err))
	}
}
