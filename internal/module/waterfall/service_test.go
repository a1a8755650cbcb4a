package waterfall

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"

	"github.com/simp-lee/waterfall/internal/cache"
	"github.com/simp-lee/waterfall/internal/domain"
)

var errTest = errors.New("connection refused")

var idComparer = cmp.Comparer(func(a, b domain.CardID) bool { return a == b })

// sliceSource pages over a fixed list with 1-based pages.
type sliceSource struct {
	items []domain.CardItem
	calls int
	err   error
}

func (s *sliceSource) Fetch(_ context.Context, page, pageSize int) ([]domain.CardItem, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	start := min((page-1)*pageSize, len(s.items))
	end := min(start+pageSize, len(s.items))
	return s.items[start:end], nil
}

func squares(n int) []domain.CardItem {
	items := make([]domain.CardItem, 0, n)
	for i := range n {
		items = append(items, domain.CardItem{ID: domain.IntID(int64(i + 1)), URL: "u", Width: 100, Height: 100})
	}
	return items
}

func testDefaults() Defaults {
	return Defaults{
		Layout:         domain.LayoutSettings{Gap: 8, Column: 2, Bottom: 200, PageSize: 2},
		ContainerWidth: 1000,
		MaxPageSize:    50,
		MaxPage:        10,
	}
}

func newTestService(t *testing.T, src domain.CardSource, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(src, testDefaults(), opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestService_Page(t *testing.T) {
	tests := []struct {
		name        string
		page        *int
		wantIDs     []domain.CardID
		wantPos     []domain.CardPosition
		wantHeight  float64
		wantHasMore bool
	}{
		{
			name:    "default is the first page",
			wantIDs: []domain.CardID{domain.IntID(1), domain.IntID(2)},
			wantPos: []domain.CardPosition{
				{ID: domain.IntID(1), Column: 0, Width: 496, ImageHeight: 496, CardHeight: 496, X: 0, Y: 0},
				{ID: domain.IntID(2), Column: 1, Width: 496, ImageHeight: 496, CardHeight: 496, X: 504, Y: 0},
			},
			wantHeight:  496,
			wantHasMore: true,
		},
		{
			name:    "last partial page",
			page:    intPtr(3),
			wantIDs: []domain.CardID{domain.IntID(5)},
			wantPos: []domain.CardPosition{
				{ID: domain.IntID(5), Column: 0, Width: 496, ImageHeight: 496, CardHeight: 496, X: 0, Y: 1008},
			},
			wantHeight:  1504,
			wantHasMore: false,
		},
		{
			name:        "past the end",
			page:        intPtr(5),
			wantIDs:     []domain.CardID{},
			wantPos:     []domain.CardPosition{},
			wantHeight:  1504,
			wantHasMore: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, &sliceSource{items: squares(5)})

			view, err := svc.Page(context.Background(), Query{Page: tt.page})
			if err != nil {
				t.Fatalf("Page: %v", err)
			}

			ids := make([]domain.CardID, 0, len(view.Items))
			for _, it := range view.Items {
				ids = append(ids, it.ID)
			}
			if diff := cmp.Diff(tt.wantIDs, ids, idComparer); diff != "" {
				t.Errorf("items mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantPos, view.Positions, idComparer); diff != "" {
				t.Errorf("positions mismatch (-want +got):\n%s", diff)
			}
			if view.Height != tt.wantHeight || view.HasMore != tt.wantHasMore {
				t.Errorf("height=%v has_more=%v, want %v %v", view.Height, view.HasMore, tt.wantHeight, tt.wantHasMore)
			}
			if diff := cmp.Diff([]float64{496, 496}, view.ColumnWidths); diff != "" {
				t.Errorf("column widths mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestService_PageOverrides(t *testing.T) {
	svc := newTestService(t, &sliceSource{items: squares(6)})

	view, err := svc.Page(context.Background(), Query{
		Width:    300,
		Column:   3,
		Gap:      floatPtr(0),
		PageSize: 500,
		Gutter:   "inner",
		Rounding: "distribute",
	})
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if view.PageSize != 50 {
		t.Errorf("page size = %d, want clamped to 50", view.PageSize)
	}
	if len(view.Items) != 6 || view.HasMore {
		t.Errorf("items = %d has_more = %v", len(view.Items), view.HasMore)
	}
	if diff := cmp.Diff([]float64{100, 100, 100}, view.ColumnWidths); diff != "" {
		t.Errorf("column widths mismatch (-want +got):\n%s", diff)
	}
	if view.Height != 200 {
		t.Errorf("height = %v, want 200", view.Height)
	}
}

func TestService_PageValidation(t *testing.T) {
	tests := []struct {
		name string
		q    Query
	}{
		{"page below base", Query{Page: intPtr(0)}},
		{"page above max", Query{Page: intPtr(11)}},
		{"container too narrow", Query{Width: 10, Column: 4, Gap: floatPtr(8)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &sliceSource{items: squares(3)}
			svc := newTestService(t, src)
			if _, err := svc.Page(context.Background(), tt.q); !domain.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if src.calls != 0 {
				t.Errorf("source called %d times, want 0", src.calls)
			}
		})
	}
}

func TestService_PageSourceFailure(t *testing.T) {
	svc := newTestService(t, &sliceSource{err: errTest})

	_, err := svc.Page(context.Background(), Query{})
	if !domain.IsUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestService_PageZeroBased(t *testing.T) {
	d := testDefaults()
	d.Layout.PageBase = intPtr(0)
	var pages []int
	src := domain.CardSourceFunc(func(_ context.Context, page, _ int) ([]domain.CardItem, error) {
		pages = append(pages, page)
		return squares(2), nil
	})
	svc, err := NewService(src, d)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	view, err := svc.Page(context.Background(), Query{})
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if view.Page != 0 || len(pages) != 1 || pages[0] != 0 {
		t.Errorf("view page = %d, fetched pages = %v", view.Page, pages)
	}
}

func TestService_PageCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	lc := cache.NewRedis(client, "test:", time.Minute)

	src := &sliceSource{items: squares(5)}
	svc := newTestService(t, src, WithCache(lc))
	ctx := context.Background()

	first, err := svc.Page(ctx, Query{Page: intPtr(2)})
	if err != nil {
		t.Fatalf("first Page: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("source calls = %d, want 2", src.calls)
	}

	second, err := svc.Page(ctx, Query{Page: intPtr(2)})
	if err != nil {
		t.Fatalf("second Page: %v", err)
	}
	if src.calls != 2 {
		t.Errorf("source calls = %d after cached read, want 2", src.calls)
	}
	if diff := cmp.Diff(first, second, idComparer); diff != "" {
		t.Errorf("cached view mismatch (-first +second):\n%s", diff)
	}

	if err := lc.Bump(ctx); err != nil {
		t.Fatalf("Bump: %v", err)
	}
	if _, err := svc.Page(ctx, Query{Page: intPtr(2)}); err != nil {
		t.Fatalf("Page after bump: %v", err)
	}
	if src.calls != 4 {
		t.Errorf("source calls = %d after invalidation, want 4", src.calls)
	}
}

func TestService_PageCacheDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	lc := cache.NewRedis(client, "test:", time.Minute)
	mr.Close()

	src := &sliceSource{items: squares(2)}
	svc := newTestService(t, src, WithCache(lc))

	view, err := svc.Page(context.Background(), Query{})
	if err != nil {
		t.Fatalf("Page with cache down: %v", err)
	}
	if len(view.Items) != 2 {
		t.Errorf("items = %d, want 2", len(view.Items))
	}
}

func TestService_Layout(t *testing.T) {
	svc := newTestService(t, &sliceSource{})

	tests := []struct {
		name       string
		req        LayoutRequest
		wantWidths []float64
		wantHeight float64
	}{
		{
			name:       "configured defaults",
			req:        LayoutRequest{Width: 1000, Items: squares(3)},
			wantWidths: []float64{496, 496},
			wantHeight: 1000,
		},
		{
			name:       "outer gutter with chrome",
			req:        LayoutRequest{Width: 100, Column: 1, Gap: floatPtr(10), Gutter: "outer", ChromeHeight: floatPtr(20), Items: squares(1)},
			wantWidths: []float64{80},
			wantHeight: 10 + 80 + 20 + 10,
		},
		{
			name:       "no items",
			req:        LayoutRequest{Width: 400, Column: 4, Gap: floatPtr(0)},
			wantWidths: []float64{100, 100, 100, 100},
			wantHeight: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Layout(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("Layout: %v", err)
			}
			if diff := cmp.Diff(tt.wantWidths, got.ColumnWidths); diff != "" {
				t.Errorf("column widths mismatch (-want +got):\n%s", diff)
			}
			if got.Height != tt.wantHeight {
				t.Errorf("height = %v, want %v", got.Height, tt.wantHeight)
			}
			if len(got.Positions) != len(tt.req.Items) {
				t.Errorf("positions = %d, want %d", len(got.Positions), len(tt.req.Items))
			}
		})
	}
}

func TestService_LayoutRejectsInvalidItem(t *testing.T) {
	svc := newTestService(t, &sliceSource{})

	items := squares(2)
	items[1].Width = 0
	if _, err := svc.Layout(context.Background(), LayoutRequest{Width: 500, Items: items}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNewService_Errors(t *testing.T) {
	d := testDefaults()
	if _, err := NewService(nil, d); err == nil {
		t.Error("expected error for nil source")
	}

	bad := d
	bad.Layout.Column = 0
	if _, err := NewService(&sliceSource{}, bad); err == nil {
		t.Error("expected error for zero column default")
	}

	bad = d
	bad.ContainerWidth = 0
	if _, err := NewService(&sliceSource{}, bad); err == nil {
		t.Error("expected error for zero container width")
	}
}
