package card

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/simp-lee/waterfall/internal/domain"
)

// --- mock repository ---

type mockCardRepo struct {
	cards []*domain.Card
	// hooks for error injection
	createErr error
	batchErr  error
	listErr   error
	lastList  domain.PageRequest
}

func newMockRepo() *mockCardRepo {
	return &mockCardRepo{}
}

func (m *mockCardRepo) find(id domain.CardID) int {
	return slices.IndexFunc(m.cards, func(c *domain.Card) bool {
		return c.CardID == id.String() && c.CardIDKind == id.Kind()
	})
}

func (m *mockCardRepo) Create(_ context.Context, card *domain.Card) error {
	if m.createErr != nil {
		return m.createErr
	}
	card.ID = uint(len(m.cards) + 1)
	m.cards = append(m.cards, card)
	return nil
}

func (m *mockCardRepo) CreateBatch(ctx context.Context, cards []*domain.Card) error {
	if m.batchErr != nil {
		return m.batchErr
	}
	for _, c := range cards {
		_ = m.Create(ctx, c)
	}
	return nil
}

func (m *mockCardRepo) GetByCardID(_ context.Context, id domain.CardID) (*domain.Card, error) {
	i := m.find(id)
	if i < 0 {
		return nil, domain.ErrNotFound
	}
	return m.cards[i], nil
}

func (m *mockCardRepo) List(_ context.Context, req domain.PageRequest) (*domain.PageResult[domain.Card], error) {
	m.lastList = req
	if m.listErr != nil {
		return nil, m.listErr
	}
	start := min((req.Page-1)*req.PageSize, len(m.cards))
	end := min(start+req.PageSize, len(m.cards))
	items := make([]domain.Card, 0, end-start)
	for _, c := range m.cards[start:end] {
		items = append(items, *c)
	}
	return &domain.PageResult[domain.Card]{
		Items:    items,
		Total:    int64(len(m.cards)),
		Page:     req.Page,
		PageSize: req.PageSize,
	}, nil
}

func (m *mockCardRepo) Delete(_ context.Context, id domain.CardID) error {
	i := m.find(id)
	if i < 0 {
		return domain.ErrNotFound
	}
	m.cards = slices.Delete(m.cards, i, i+1)
	return nil
}

// --- fake layout cache ---

type countingCache struct {
	bumps   int
	bumpErr error
}

func (c *countingCache) Get(context.Context, string, any) (bool, error) { return false, nil }
func (c *countingCache) Set(context.Context, string, any) error         { return nil }
func (c *countingCache) Generation(context.Context) (int64, error)      { return int64(c.bumps), nil }
func (c *countingCache) Bump(context.Context) error {
	c.bumps++
	return c.bumpErr
}

func item(id domain.CardID, w, h float64) domain.CardItem {
	return domain.CardItem{ID: id, URL: "https://img.example.com/" + id.String(), Width: w, Height: h}
}

func TestCreateCard(t *testing.T) {
	repo := newMockRepo()
	c := &countingCache{}
	svc := NewService(repo, WithCache(c))

	got, err := svc.CreateCard(context.Background(), item(domain.IntID(5), 300, 200))
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	if got.ID != domain.IntID(5) {
		t.Errorf("id = %v, want 5", got.ID)
	}
	if len(repo.cards) != 1 || repo.cards[0].CardIDKind != domain.CardIDKindInt {
		t.Errorf("stored = %+v", repo.cards)
	}
	if c.bumps != 1 {
		t.Errorf("cache bumps = %d, want 1", c.bumps)
	}
}

func TestCreateCard_GeneratesID(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo).(*cardService)
	svc.newID = func() string { return "generated" }

	got, err := svc.CreateCard(context.Background(), domain.CardItem{URL: "https://x.test/a.jpg", Width: 1, Height: 1})
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	if got.ID != domain.StringID("generated") {
		t.Errorf("id = %v, want generated", got.ID)
	}
}

func TestCreateCard_Validation(t *testing.T) {
	tests := []struct {
		name string
		item domain.CardItem
	}{
		{"missing url", domain.CardItem{ID: domain.IntID(1), Width: 1, Height: 1}},
		{"zero width", item(domain.IntID(1), 0, 1)},
		{"negative height", item(domain.IntID(1), 1, -2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo()
			c := &countingCache{}
			svc := NewService(repo, WithCache(c))

			_, err := svc.CreateCard(context.Background(), tt.item)
			if !domain.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if len(repo.cards) != 0 || c.bumps != 0 {
				t.Errorf("stored %d cards and bumped %d times, want none", len(repo.cards), c.bumps)
			}
		})
	}
}

func TestCreateCard_RepoErrorSkipsInvalidation(t *testing.T) {
	repo := newMockRepo()
	repo.createErr = domain.NewAppError(domain.CodeAlreadyExists, "card already exists", nil)
	c := &countingCache{}
	svc := NewService(repo, WithCache(c))

	_, err := svc.CreateCard(context.Background(), item(domain.StringID("a"), 1, 1))
	if !domain.IsAlreadyExists(err) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if c.bumps != 0 {
		t.Errorf("cache bumps = %d, want 0", c.bumps)
	}
}

func TestCreateCard_CacheFailureIsNotFatal(t *testing.T) {
	c := &countingCache{bumpErr: errors.New("redis down")}
	svc := NewService(newMockRepo(), WithCache(c))

	if _, err := svc.CreateCard(context.Background(), item(domain.StringID("a"), 1, 1)); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
}

func TestCreateCards(t *testing.T) {
	repo := newMockRepo()
	c := &countingCache{}
	svc := NewService(repo, WithCache(c))

	got, err := svc.CreateCards(context.Background(), []domain.CardItem{
		item(domain.IntID(1), 1, 1),
		item(domain.StringID("1"), 1, 1),
		{URL: "https://x.test/c.jpg", Width: 2, Height: 3},
	})
	if err != nil {
		t.Fatalf("CreateCards: %v", err)
	}
	if len(got) != 3 || len(repo.cards) != 3 {
		t.Fatalf("returned %d, stored %d, want 3", len(got), len(repo.cards))
	}
	if got[2].ID.IsZero() {
		t.Error("missing id was not generated")
	}
	if c.bumps != 1 {
		t.Errorf("cache bumps = %d, want 1 per batch", c.bumps)
	}
}

func TestCreateCards_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		items []domain.CardItem
	}{
		{"empty", nil},
		{"duplicate id", []domain.CardItem{item(domain.IntID(1), 1, 1), item(domain.IntID(1), 2, 2)}},
		{"invalid item", []domain.CardItem{item(domain.IntID(1), 1, 1), item(domain.IntID(2), 0, 1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo()
			svc := NewService(repo)
			if _, err := svc.CreateCards(context.Background(), tt.items); !domain.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if len(repo.cards) != 0 {
				t.Errorf("stored %d cards, want 0", len(repo.cards))
			}
		})
	}
}

func TestGetCard(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	want := item(domain.StringID("a"), 4, 3)
	want.Extra = map[string]any{"title": "x"}
	if _, err := svc.CreateCard(ctx, want); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	got, err := svc.GetCard(ctx, domain.StringID("a"))
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if diff := cmp.Diff(want, *got, cmp.Comparer(func(a, b domain.CardID) bool { return a == b })); diff != "" {
		t.Errorf("GetCard mismatch (-want +got):\n%s", diff)
	}

	if _, err := svc.GetCard(ctx, domain.StringID("missing")); !domain.IsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.GetCard(ctx, domain.CardID{}); !domain.IsValidation(err) {
		t.Errorf("expected validation error for zero id, got %v", err)
	}
}

func TestListCards_CorruptRecord(t *testing.T) {
	repo := newMockRepo()
	repo.cards = []*domain.Card{{CardID: "x", CardIDKind: "int"}}
	svc := NewService(repo)

	_, err := svc.ListCards(context.Background(), domain.PageRequest{Page: 1, PageSize: 10})
	if !domain.IsInternal(err) {
		t.Errorf("expected internal error, got %v", err)
	}
}

func TestDeleteCard(t *testing.T) {
	repo := newMockRepo()
	c := &countingCache{}
	svc := NewService(repo, WithCache(c))
	ctx := context.Background()

	if _, err := svc.CreateCard(ctx, item(domain.IntID(1), 1, 1)); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	if err := svc.DeleteCard(ctx, domain.IntID(1)); err != nil {
		t.Fatalf("DeleteCard: %v", err)
	}
	if c.bumps != 2 {
		t.Errorf("cache bumps = %d, want 2", c.bumps)
	}
	if err := svc.DeleteCard(ctx, domain.IntID(1)); !domain.IsNotFound(err) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	if c.bumps != 2 {
		t.Errorf("failed delete bumped the cache")
	}
}

func TestFetch(t *testing.T) {
	seed := func(repo *mockCardRepo) {
		for i := range 5 {
			_ = repo.Create(context.Background(), domain.NewCard(item(domain.IntID(int64(i)), 1, 1)))
		}
	}

	tests := []struct {
		name     string
		base     int
		page     int
		size     int
		wantIDs  []domain.CardID
		wantPage int
		wantErr  bool
	}{
		{"one based first page", 1, 1, 2, []domain.CardID{domain.IntID(0), domain.IntID(1)}, 1, false},
		{"one based last page", 1, 3, 2, []domain.CardID{domain.IntID(4)}, 3, false},
		{"zero based first page", 0, 0, 2, []domain.CardID{domain.IntID(0), domain.IntID(1)}, 1, false},
		{"zero based second page", 0, 1, 2, []domain.CardID{domain.IntID(2), domain.IntID(3)}, 2, false},
		{"past the end", 1, 4, 2, []domain.CardID{}, 4, false},
		{"below base", 1, 0, 2, nil, 0, true},
		{"zero size", 1, 1, 0, nil, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo()
			seed(repo)
			svc := NewService(repo, WithPageBase(tt.base))

			got, err := svc.Fetch(context.Background(), tt.page, tt.size)
			if tt.wantErr {
				if !domain.IsValidation(err) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			ids := make([]domain.CardID, 0, len(got))
			for _, it := range got {
				ids = append(ids, it.ID)
			}
			if !slices.Equal(ids, tt.wantIDs) {
				t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
			}
			if repo.lastList.Page != tt.wantPage || repo.lastList.Sort != fetchSort {
				t.Errorf("list request = %+v", repo.lastList)
			}
		})
	}
}

func TestFetch_PropagatesRepoError(t *testing.T) {
	repo := newMockRepo()
	repo.listErr = domain.NewAppError(domain.CodeInternal, "database error", errors.New("disk full"))
	svc := NewService(repo)

	if _, err := svc.Fetch(context.Background(), 1, 10); !domain.IsInternal(err) {
		t.Errorf("expected internal error, got %v", err)
	}
}
