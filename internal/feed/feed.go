// Package feed drives the paged card source of a waterfall and feeds the
// results into a layout engine.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"github.com/simp-lee/waterfall/internal/domain"
	"github.com/simp-lee/waterfall/internal/layout"
)

// ErrExhausted is returned by LoadMore once the source reported its last page.
var ErrExhausted = errors.New("feed exhausted")

// Batch is the outcome of loading one page.
type Batch struct {
	Page       int
	Items      []domain.CardItem
	Positions  []domain.CardPosition
	Rejected   int
	Duplicates int
	Exhausted  bool
}

// ScrollMetrics describes the host's scroll state. ContentHeight may be left
// zero to use the height of the placed cards.
type ScrollMetrics struct {
	ScrollTop      float64
	ViewportHeight float64
	// ContentTop is the offset of the waterfall inside the scrolling viewport.
	// Ignored when the bottom is measured against the container itself.
	ContentTop    float64
	ContentHeight float64
}

// Option configures a Feed.
type Option func(*Feed)

// WithLogger sets the logger used for fetch and rejection events.
func WithLogger(l *slog.Logger) Option {
	return func(f *Feed) {
		if l != nil {
			f.log = l
		}
	}
}

// WithRetry retries a failed page fetch up to attempts times in total, with
// exponential backoff between initial and maxWait.
func WithRetry(attempts uint, initial, maxWait time.Duration) Option {
	return func(f *Feed) {
		if attempts > 0 {
			f.attempts = attempts
		}
		if initial > 0 {
			f.initialBackoff = initial
		}
		if maxWait > 0 {
			f.maxBackoff = maxWait
		}
	}
}

// Feed owns the paging cursor and the layout of one waterfall instance.
// It is safe for concurrent use.
type Feed struct {
	cfg            domain.LayoutConfig
	log            *slog.Logger
	attempts       uint
	initialBackoff time.Duration
	maxBackoff     time.Duration

	group singleflight.Group

	mu        sync.Mutex
	engine    *layout.Engine
	next      int
	exhausted bool
	seen      map[string]struct{}
}

// New creates a feed for a container of the given width.
func New(cfg domain.LayoutConfig, containerWidth float64, opts ...Option) (*Feed, error) {
	if cfg.Request() == nil {
		return nil, domain.Validationf("layout config has no request source")
	}
	engine, err := layout.NewEngine(layout.OptionsFrom(cfg), containerWidth)
	if err != nil {
		return nil, err
	}

	f := &Feed{
		cfg:            cfg,
		log:            slog.Default(),
		attempts:       1,
		initialBackoff: 200 * time.Millisecond,
		maxBackoff:     5 * time.Second,
		engine:         engine,
		next:           cfg.PageBase(),
		seen:           make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// LoadMore requests the page at the cursor and places its cards. Concurrent
// calls share one request for the same page. On failure nothing changes and
// the same page is requested again next time.
//
// The shared request does not belong to any one caller: it keeps the
// caller's values but not its cancellation, and is bounded by the source's
// own timeouts. A caller whose ctx ends first gets ctx.Err(); the page may
// still be placed for the others.
func (f *Feed) LoadMore(ctx context.Context) (*Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	if f.exhausted {
		f.mu.Unlock()
		return nil, ErrExhausted
	}
	page := f.next
	f.mu.Unlock()

	shared := context.WithoutCancel(ctx)
	ch := f.group.DoChan(strconv.Itoa(page), func() (any, error) {
		return f.loadPage(shared, page)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Batch), nil
	}
}

// LoadUntil loads pages until the cursor is past page or the source is exhausted.
func (f *Feed) LoadUntil(ctx context.Context, page int) error {
	for f.NextPage() <= page {
		if _, err := f.LoadMore(ctx); err != nil {
			if errors.Is(err, ErrExhausted) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (f *Feed) loadPage(ctx context.Context, page int) (*Batch, error) {
	if stale := f.staleBatch(page); stale != nil {
		return stale, nil
	}

	items, err := f.fetch(ctx, page)
	if err != nil {
		f.log.WarnContext(ctx, "page fetch failed",
			slog.Int("page", page),
			slog.Any("error", err),
		)
		return nil, domain.NewAppError(domain.CodeUnavailable, fmt.Sprintf("fetch page %d", page), err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// A sequential caller may have completed this page meanwhile.
	if f.next != page || f.exhausted {
		return &Batch{Page: page, Exhausted: f.exhausted}, nil
	}

	batch := &Batch{Page: page}
	accepted := make([]domain.CardItem, 0, len(items))
	for _, item := range items {
		if err := item.Validate(); err != nil {
			batch.Rejected++
			f.log.WarnContext(ctx, "card rejected",
				slog.Int("page", page),
				slog.Any("error", err),
			)
			continue
		}
		key := item.ID.Key()
		if _, dup := f.seen[key]; dup {
			batch.Duplicates++
			f.log.DebugContext(ctx, "duplicate card skipped",
				slog.Int("page", page),
				slog.String("id", item.ID.String()),
			)
			continue
		}
		f.seen[key] = struct{}{}
		accepted = append(accepted, item)
	}

	positions, err := f.engine.Place(accepted)
	if err != nil {
		for _, item := range accepted {
			delete(f.seen, item.ID.Key())
		}
		return nil, err
	}

	f.next++
	if len(items) < f.cfg.PageSize() {
		f.exhausted = true
	}

	batch.Items = accepted
	batch.Positions = positions
	batch.Exhausted = f.exhausted

	f.log.DebugContext(ctx, "page loaded",
		slog.Int("page", page),
		slog.Int("placed", len(accepted)),
		slog.Int("rejected", batch.Rejected),
		slog.Int("duplicates", batch.Duplicates),
		slog.Bool("exhausted", f.exhausted),
	)
	return batch, nil
}

func (f *Feed) staleBatch(page int) *Batch {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next != page || f.exhausted {
		return &Batch{Page: page, Exhausted: f.exhausted}
	}
	return nil
}

func (f *Feed) fetch(ctx context.Context, page int) ([]domain.CardItem, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.initialBackoff
	b.MaxInterval = f.maxBackoff

	return backoff.Retry(ctx, func() ([]domain.CardItem, error) {
		return f.cfg.Request().Fetch(ctx, page, f.cfg.PageSize())
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(f.attempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			f.log.DebugContext(ctx, "retrying page fetch",
				slog.Int("page", page),
				slog.Duration("wait", wait),
				slog.Any("error", err),
			)
		}),
	)
}

// NearBottom reports whether the remaining scroll distance to the end of the
// content is within the configured bottom threshold.
func (f *Feed) NearBottom(m ScrollMetrics) bool {
	contentHeight := m.ContentHeight
	if contentHeight <= 0 {
		contentHeight = f.Height()
	}

	end := contentHeight
	if f.cfg.BottomReference() == domain.BottomViewport {
		end += m.ContentTop
	}
	remaining := end - (m.ScrollTop + m.ViewportHeight)
	return remaining <= f.cfg.Bottom()
}

// Check loads the next page when the scroll position is near the bottom.
// It returns a nil batch when nothing was loaded.
func (f *Feed) Check(ctx context.Context, m ScrollMetrics) (*Batch, error) {
	if f.Exhausted() || !f.NearBottom(m) {
		return nil, nil
	}
	batch, err := f.LoadMore(ctx)
	if errors.Is(err, ErrExhausted) {
		return nil, nil
	}
	return batch, err
}

// Resize re-places every card for a new container width.
func (f *Feed) Resize(containerWidth float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engine.Resize(containerWidth)
}

// Config returns the layout configuration of the feed.
func (f *Feed) Config() domain.LayoutConfig { return f.cfg }

// NextPage returns the page the next LoadMore will request.
func (f *Feed) NextPage() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next
}

// Exhausted reports whether the source has returned its last page.
func (f *Feed) Exhausted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exhausted
}

// Items returns every placed card in load order.
func (f *Feed) Items() []domain.CardItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engine.Items()
}

// Positions returns every placement in load order.
func (f *Feed) Positions() []domain.CardPosition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engine.Positions()
}

// ColumnHeights returns the bottom edge of each column.
func (f *Feed) ColumnHeights() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engine.ColumnHeights()
}

// Height returns the current content height.
func (f *Feed) Height() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engine.Height()
}
