package card

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/simp-lee/waterfall/internal/domain"
	"github.com/simp-lee/waterfall/internal/pkg"
)

// Allowed fields for sorting and filtering in List queries.
var (
	allowedSortFields   = []string{"id", "card_id", "width", "height", "created_at", "updated_at"}
	allowedFilterFields = []string{"card_id", "url", "width", "height"}
)

const batchSize = 100

type cardRepository struct {
	db *gorm.DB
}

// NewRepository creates a CardRepository backed by the given GORM database.
func NewRepository(db *gorm.DB) domain.CardRepository {
	return &cardRepository{db: db}
}

func (r *cardRepository) Create(ctx context.Context, card *domain.Card) error {
	if err := r.db.WithContext(ctx).Create(card).Error; err != nil {
		return mapError(err)
	}
	return nil
}

// CreateBatch inserts all cards or none.
func (r *cardRepository) CreateBatch(ctx context.Context, cards []*domain.Card) error {
	if len(cards) == 0 {
		return nil
	}
	err := pkg.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		return tx.CreateInBatches(cards, batchSize).Error
	})
	return mapError(err)
}

func (r *cardRepository) GetByCardID(ctx context.Context, id domain.CardID) (*domain.Card, error) {
	var card domain.Card
	err := r.db.WithContext(ctx).
		Where("card_id = ? AND card_id_kind = ?", id.String(), id.Kind()).
		First(&card).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &card, nil
}

// List returns a paginated, sorted, and filtered list of cards.
func (r *cardRepository) List(ctx context.Context, req domain.PageRequest) (*domain.PageResult[domain.Card], error) {
	var total int64
	base := r.db.WithContext(ctx).Model(&domain.Card{}).
		Scopes(pkg.Filter(req, allowedFilterFields))

	if err := base.Count(&total).Error; err != nil {
		return nil, mapError(err)
	}

	var cards []domain.Card
	if err := base.Scopes(
		pkg.Paginate(req),
		pkg.Sort(req, allowedSortFields),
	).Find(&cards).Error; err != nil {
		return nil, mapError(err)
	}

	return pkg.NewPageResult(cards, total, req), nil
}

func (r *cardRepository) Delete(ctx context.Context, id domain.CardID) error {
	result := r.db.WithContext(ctx).
		Where("card_id = ? AND card_id_kind = ?", id.String(), id.Kind()).
		Delete(&domain.Card{})
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// mapError converts GORM errors to domain errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicateKeyError(err) {
		return domain.NewAppError(domain.CodeAlreadyExists, "card already exists", err)
	}
	return domain.NewAppError(domain.CodeInternal, "database error", err)
}

// isDuplicateKeyError detects unique constraint violations by message; the
// pure-Go SQLite driver does not translate them to gorm.ErrDuplicatedKey.
func isDuplicateKeyError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}
