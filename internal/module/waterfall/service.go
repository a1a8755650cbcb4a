// Package waterfall serves computed masonry layouts over HTTP.
package waterfall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/simp-lee/waterfall/internal/cache"
	"github.com/simp-lee/waterfall/internal/domain"
	"github.com/simp-lee/waterfall/internal/feed"
	"github.com/simp-lee/waterfall/internal/layout"
)

// Defaults are the configured values used when a request leaves a field out.
type Defaults struct {
	Layout         domain.LayoutSettings
	ContainerWidth float64
	MaxPageSize    int
	MaxPage        int
}

// Option configures a Service.
type Option func(*Service)

// WithCache sets the cache for computed pages.
func WithCache(c cache.LayoutCache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithLogger sets the service logger. It is also handed to every feed.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithFeedOptions adds options applied to every feed the service builds.
func WithFeedOptions(opts ...feed.Option) Option {
	return func(s *Service) { s.feedOpts = append(s.feedOpts, opts...) }
}

// Service lays out pages of a card source.
type Service struct {
	source   domain.CardSource
	defaults Defaults
	cache    cache.LayoutCache
	log      *slog.Logger
	feedOpts []feed.Option
}

// NewService creates a Service reading cards from source.
func NewService(source domain.CardSource, defaults Defaults, opts ...Option) (*Service, error) {
	if source == nil {
		return nil, domain.Validationf("card source is required")
	}
	if _, err := domain.NewLayoutConfig(defaults.Layout, source); err != nil {
		return nil, fmt.Errorf("waterfall defaults: %w", err)
	}
	if !(defaults.ContainerWidth > 0) {
		return nil, domain.Validationf("default container width must be positive, got %v", defaults.ContainerWidth)
	}

	s := &Service{
		source:   source,
		defaults: defaults,
		cache:    cache.Noop{},
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// request is a Query resolved against the defaults.
type request struct {
	settings domain.LayoutSettings
	width    float64
	page     int
}

func (s *Service) resolve(q Query) (request, error) {
	settings := s.defaults.Layout
	if q.Column > 0 {
		settings.Column = q.Column
	}
	if q.Gap != nil {
		settings.Gap = *q.Gap
	}
	if q.PageSize > 0 {
		settings.PageSize = q.PageSize
	}
	if s.defaults.MaxPageSize > 0 {
		settings.PageSize = min(settings.PageSize, s.defaults.MaxPageSize)
	}
	if q.Gutter != "" {
		settings.Gutter = domain.Gutter(q.Gutter)
	}
	if q.Rounding != "" {
		settings.Rounding = domain.Rounding(q.Rounding)
	}

	width := s.defaults.ContainerWidth
	if q.Width > 0 {
		width = q.Width
	}

	base := domain.DefaultPageBase
	if settings.PageBase != nil {
		base = *settings.PageBase
	}
	page := base
	if q.Page != nil {
		page = *q.Page
	}
	if page < base {
		return request{}, domain.Validationf("page must be at least %d, got %d", base, page)
	}
	if s.defaults.MaxPage > 0 && page-base+1 > s.defaults.MaxPage {
		return request{}, domain.Validationf("page must be at most %d, got %d", base+s.defaults.MaxPage-1, page)
	}

	return request{settings: settings, width: width, page: page}, nil
}

func (r request) cacheKey(gen int64) string {
	s := r.settings
	return fmt.Sprintf("g%d:w%g:c%d:gap%g:%s:%s:ch%g:ps%d:p%d",
		gen, r.width, s.Column, s.Gap, s.Gutter, s.Rounding, s.ChromeHeight, s.PageSize, r.page)
}

// Page lays out every page from the first up to q.Page and returns that page.
func (s *Service) Page(ctx context.Context, q Query) (*View, error) {
	req, err := s.resolve(q)
	if err != nil {
		return nil, err
	}

	gen, err := s.cache.Generation(ctx)
	if err != nil {
		s.log.WarnContext(ctx, "layout cache generation unavailable", slog.Any("error", err))
		return s.compute(ctx, req)
	}

	var view View
	err = cache.Aside(ctx, s.cache, s.log, req.cacheKey(gen), &view, func() error {
		v, err := s.compute(ctx, req)
		if err != nil {
			return err
		}
		view = *v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *Service) compute(ctx context.Context, req request) (*View, error) {
	cfg, err := domain.NewLayoutConfig(req.settings, s.source)
	if err != nil {
		return nil, err
	}

	opts := append([]feed.Option{feed.WithLogger(s.log)}, s.feedOpts...)
	f, err := feed.New(cfg, req.width, opts...)
	if err != nil {
		return nil, err
	}

	var last *feed.Batch
	for f.NextPage() <= req.page {
		b, err := f.LoadMore(ctx)
		if errors.Is(err, feed.ErrExhausted) {
			break
		}
		if err != nil {
			return nil, err
		}
		last = b
	}

	widths, err := layout.ColumnWidths(req.width, layout.OptionsFrom(cfg))
	if err != nil {
		return nil, err
	}

	view := &View{
		Page:          req.page,
		PageSize:      cfg.PageSize(),
		ColumnWidths:  widths,
		Items:         []domain.CardItem{},
		Positions:     []domain.CardPosition{},
		ColumnHeights: f.ColumnHeights(),
		Height:        f.Height(),
		HasMore:       !f.Exhausted(),
	}
	if last != nil && last.Page == req.page {
		view.Items = last.Items
		view.Positions = last.Positions
		view.Rejected = last.Rejected
		view.Duplicates = last.Duplicates
	}
	return view, nil
}

// Layout places items in a fresh container without touching any source.
func (s *Service) Layout(_ context.Context, req LayoutRequest) (*Placement, error) {
	d := s.defaults.Layout
	opts := layout.Options{
		Gap:          d.Gap,
		Column:       d.Column,
		Gutter:       d.Gutter,
		Rounding:     d.Rounding,
		ChromeHeight: d.ChromeHeight,
	}
	if req.Column > 0 {
		opts.Column = req.Column
	}
	if req.Gap != nil {
		opts.Gap = *req.Gap
	}
	if req.Gutter != "" {
		opts.Gutter = domain.Gutter(req.Gutter)
	}
	if req.Rounding != "" {
		opts.Rounding = domain.Rounding(req.Rounding)
	}
	if req.ChromeHeight != nil {
		opts.ChromeHeight = *req.ChromeHeight
	}

	engine, err := layout.NewEngine(opts, req.Width)
	if err != nil {
		return nil, err
	}
	positions, err := engine.Place(req.Items)
	if err != nil {
		return nil, err
	}

	return &Placement{
		ColumnWidths:  engine.ColumnWidths(),
		Positions:     positions,
		ColumnHeights: engine.ColumnHeights(),
		Height:        engine.Height(),
	}, nil
}
