// Package layout places cards into a masonry grid.
//
// Each card goes to the column whose accumulated height is smallest, ties
// going to the leftmost column. Rendered width is fixed per column; the image
// height follows the card's intrinsic aspect ratio.
package layout

import (
	"math"
	"slices"

	"github.com/simp-lee/waterfall/internal/domain"
)

// ErrContainerTooNarrow is returned when the gaps leave no room for columns.
var ErrContainerTooNarrow = domain.NewAppError(domain.CodeValidation, "container too narrow for the configured columns and gap", nil)

// Options are the geometry settings of an Engine.
type Options struct {
	Gap          float64
	Column       int
	Gutter       domain.Gutter
	Rounding     domain.Rounding
	ChromeHeight float64
}

// OptionsFrom extracts the geometry settings of a layout configuration.
func OptionsFrom(cfg domain.LayoutConfig) Options {
	return Options{
		Gap:          cfg.Gap(),
		Column:       cfg.Column(),
		Gutter:       cfg.Gutter(),
		Rounding:     cfg.Rounding(),
		ChromeHeight: cfg.ChromeHeight(),
	}
}

func (o Options) validate() error {
	if o.Column < 1 {
		return domain.Validationf("column must be at least 1, got %d", o.Column)
	}
	if !(o.Gap >= 0) || math.IsInf(o.Gap, 1) {
		return domain.Validationf("gap must be a non-negative number, got %v", o.Gap)
	}
	if !(o.ChromeHeight >= 0) || math.IsInf(o.ChromeHeight, 1) {
		return domain.Validationf("chrome height must be a non-negative number, got %v", o.ChromeHeight)
	}
	if _, err := domain.ParseGutter(string(o.Gutter)); err != nil {
		return err
	}
	if _, err := domain.ParseRounding(string(o.Rounding)); err != nil {
		return err
	}
	return nil
}

// Engine holds the placements of one container. It is not safe for
// concurrent use.
type Engine struct {
	opts      Options
	width     float64
	colWidths []float64
	colX      []float64
	nextY     []float64
	bottoms   []float64
	items     []domain.CardItem
	positions []domain.CardPosition
}

// NewEngine creates an empty engine for a container of the given width.
func NewEngine(opts Options, containerWidth float64) (*Engine, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.Gutter, _ = domain.ParseGutter(string(opts.Gutter))
	opts.Rounding, _ = domain.ParseRounding(string(opts.Rounding))

	widths, err := ColumnWidths(containerWidth, opts)
	if err != nil {
		return nil, err
	}

	e := &Engine{opts: opts, width: containerWidth}
	e.setColumns(widths)
	return e, nil
}

// ColumnWidths splits containerWidth into opts.Column widths.
//
// With the inner gutter the widths plus (column-1) gaps add up to the
// container width; with the outer gutter they add up with (column+1) gaps.
// Fractional rounding gives equal widths. Distribute rounding gives whole
// pixels and hands the leftover pixels to the leftmost columns; a sub-pixel
// remainder, if any, goes to the last column so the sum stays exact.
func ColumnWidths(containerWidth float64, opts Options) ([]float64, error) {
	if opts.Column < 1 {
		return nil, domain.Validationf("column must be at least 1, got %d", opts.Column)
	}
	if !(containerWidth > 0) || math.IsInf(containerWidth, 1) {
		return nil, domain.Validationf("container width must be a positive number, got %v", containerWidth)
	}

	gaps := float64(opts.Column - 1)
	if opts.Gutter == domain.GutterOuter {
		gaps = float64(opts.Column + 1)
	}
	available := containerWidth - gaps*opts.Gap
	if available <= 0 {
		return nil, ErrContainerTooNarrow
	}

	widths := make([]float64, opts.Column)
	if opts.Rounding != domain.RoundingDistribute {
		each := available / float64(opts.Column)
		for i := range widths {
			widths[i] = each
		}
		return widths, nil
	}

	whole := math.Floor(available)
	base := math.Floor(whole / float64(opts.Column))
	if base < 1 {
		return nil, ErrContainerTooNarrow
	}
	extra := int(whole - base*float64(opts.Column))
	for i := range widths {
		widths[i] = base
		if i < extra {
			widths[i]++
		}
	}
	widths[len(widths)-1] += available - whole
	return widths, nil
}

func (e *Engine) setColumns(widths []float64) {
	n := len(widths)
	e.colWidths = widths
	e.colX = make([]float64, n)
	e.nextY = make([]float64, n)
	e.bottoms = make([]float64, n)

	x := 0.0
	if e.opts.Gutter == domain.GutterOuter {
		x = e.opts.Gap
	}
	for i, w := range widths {
		e.colX[i] = x
		x += w + e.opts.Gap
		e.nextY[i] = e.startY()
	}
}

func (e *Engine) startY() float64 {
	if e.opts.Gutter == domain.GutterOuter {
		return e.opts.Gap
	}
	return 0
}

// Place appends items to the layout and returns their positions. All items
// are validated first; on error nothing is placed.
func (e *Engine) Place(items []domain.CardItem) ([]domain.CardPosition, error) {
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return nil, err
		}
	}

	placed := make([]domain.CardPosition, 0, len(items))
	for _, item := range items {
		pos := e.place(item)
		e.items = append(e.items, item)
		e.positions = append(e.positions, pos)
		placed = append(placed, pos)
	}
	return placed, nil
}

func (e *Engine) place(item domain.CardItem) domain.CardPosition {
	col := e.shortestColumn()
	width := e.colWidths[col]
	imageHeight := width * item.Height / item.Width
	pos := domain.CardPosition{
		ID:          item.ID,
		Column:      col,
		Width:       width,
		ImageHeight: imageHeight,
		CardHeight:  imageHeight + e.opts.ChromeHeight,
		X:           e.colX[col],
		Y:           e.nextY[col],
	}
	e.bottoms[col] = pos.Bottom()
	e.nextY[col] = pos.Bottom() + e.opts.Gap
	return pos
}

func (e *Engine) shortestColumn() int {
	best := 0
	for i := 1; i < len(e.nextY); i++ {
		if e.nextY[i] < e.nextY[best] {
			best = i
		}
	}
	return best
}

// Resize re-places every card for a new container width. On error the
// previous layout is kept.
func (e *Engine) Resize(containerWidth float64) error {
	return e.Relayout(e.opts, containerWidth)
}

// Relayout re-places every card with new options and container width, in
// their original order. On error the previous layout is kept.
func (e *Engine) Relayout(opts Options, containerWidth float64) error {
	if err := opts.validate(); err != nil {
		return err
	}
	opts.Gutter, _ = domain.ParseGutter(string(opts.Gutter))
	opts.Rounding, _ = domain.ParseRounding(string(opts.Rounding))

	widths, err := ColumnWidths(containerWidth, opts)
	if err != nil {
		return err
	}

	e.opts = opts
	e.width = containerWidth
	e.setColumns(widths)
	e.positions = e.positions[:0]
	for _, item := range e.items {
		e.positions = append(e.positions, e.place(item))
	}
	return nil
}

// Reset removes every card and keeps the geometry.
func (e *Engine) Reset() {
	e.items = nil
	e.positions = nil
	e.setColumns(e.colWidths)
}

// Options returns the current geometry settings.
func (e *Engine) Options() Options { return e.opts }

// ContainerWidth returns the current container width.
func (e *Engine) ContainerWidth() float64 { return e.width }

// Len returns the number of placed cards.
func (e *Engine) Len() int { return len(e.positions) }

// Positions returns a copy of every placement in insertion order.
func (e *Engine) Positions() []domain.CardPosition { return slices.Clone(e.positions) }

// Items returns a copy of every placed item in insertion order.
func (e *Engine) Items() []domain.CardItem { return slices.Clone(e.items) }

// ColumnWidths returns a copy of the current per-column widths.
func (e *Engine) ColumnWidths() []float64 { return slices.Clone(e.colWidths) }

// ColumnHeights returns, per column, the bottom edge of its last card (0 when empty).
func (e *Engine) ColumnHeights() []float64 { return slices.Clone(e.bottoms) }

// Height returns the content height: the tallest column, plus the trailing
// gap under the outer gutter.
func (e *Engine) Height() float64 {
	if len(e.positions) == 0 {
		return 0
	}
	h := slices.Max(e.bottoms)
	if e.opts.Gutter == domain.GutterOuter {
		h += e.opts.Gap
	}
	return h
}
