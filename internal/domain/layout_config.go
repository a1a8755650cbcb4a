package domain

import (
	"context"
	"math"
)

// CardSource produces the cards of one page. It is the only way the layout
// obtains data. Implementations must tolerate being called again for the
// same page.
type CardSource interface {
	Fetch(ctx context.Context, page, pageSize int) ([]CardItem, error)
}

// CardSourceFunc adapts a plain function to CardSource.
type CardSourceFunc func(ctx context.Context, page, pageSize int) ([]CardItem, error)

// Fetch calls f.
func (f CardSourceFunc) Fetch(ctx context.Context, page, pageSize int) ([]CardItem, error) {
	return f(ctx, page, pageSize)
}

// BottomReference selects what the bottom threshold is measured against.
type BottomReference string

const (
	// BottomViewport measures from the window viewport to the end of the container.
	BottomViewport BottomReference = "viewport"
	// BottomContainer measures inside a scrollable container.
	BottomContainer BottomReference = "container"
)

// Gutter selects where gaps are inserted horizontally.
type Gutter string

const (
	// GutterInner puts gaps only between columns; the first column starts at x=0.
	GutterInner Gutter = "inner"
	// GutterOuter also puts a gap before the first and after the last column.
	GutterOuter Gutter = "outer"
)

// Rounding selects how the container width is split into columns.
type Rounding string

const (
	// RoundingFractional gives every column the same, possibly fractional, width.
	RoundingFractional Rounding = "fractional"
	// RoundingDistribute uses whole pixels and hands leftover pixels to the
	// leftmost columns, one each.
	RoundingDistribute Rounding = "distribute"
)

// Defaults applied by NewLayoutConfig for zero-valued optional settings.
const (
	DefaultPageBase        = 1
	DefaultBottomReference = BottomViewport
	DefaultGutter          = GutterInner
	DefaultRounding        = RoundingFractional
)

// LayoutSettings is the plain input for NewLayoutConfig.
type LayoutSettings struct {
	Gap             float64
	Column          int
	Bottom          float64
	PageSize        int
	PageBase        *int
	BottomReference BottomReference
	Gutter          Gutter
	Rounding        Rounding
	ChromeHeight    float64
}

// LayoutConfig is the validated, immutable configuration of one waterfall.
type LayoutConfig struct {
	gap          float64
	column       int
	bottom       float64
	pageSize     int
	pageBase     int
	bottomRef    BottomReference
	gutter       Gutter
	rounding     Rounding
	chromeHeight float64
	request      CardSource
}

// NewLayoutConfig validates s and binds the card source.
func NewLayoutConfig(s LayoutSettings, request CardSource) (LayoutConfig, error) {
	if request == nil {
		return LayoutConfig{}, Validationf("request source is required")
	}
	if s.Column < 1 {
		return LayoutConfig{}, Validationf("column must be at least 1, got %d", s.Column)
	}
	if s.PageSize < 1 {
		return LayoutConfig{}, Validationf("page size must be at least 1, got %d", s.PageSize)
	}
	if !isFiniteNonNegative(s.Gap) {
		return LayoutConfig{}, Validationf("gap must be a non-negative number, got %v", s.Gap)
	}
	if !isFiniteNonNegative(s.Bottom) {
		return LayoutConfig{}, Validationf("bottom must be a non-negative number, got %v", s.Bottom)
	}
	if !isFiniteNonNegative(s.ChromeHeight) {
		return LayoutConfig{}, Validationf("chrome height must be a non-negative number, got %v", s.ChromeHeight)
	}

	pageBase := DefaultPageBase
	if s.PageBase != nil {
		pageBase = *s.PageBase
	}
	if pageBase != 0 && pageBase != 1 {
		return LayoutConfig{}, Validationf("page base must be 0 or 1, got %d", pageBase)
	}

	bottomRef, err := ParseBottomReference(string(s.BottomReference))
	if err != nil {
		return LayoutConfig{}, err
	}
	gutter, err := ParseGutter(string(s.Gutter))
	if err != nil {
		return LayoutConfig{}, err
	}
	rounding, err := ParseRounding(string(s.Rounding))
	if err != nil {
		return LayoutConfig{}, err
	}

	return LayoutConfig{
		gap:          s.Gap,
		column:       s.Column,
		bottom:       s.Bottom,
		pageSize:     s.PageSize,
		pageBase:     pageBase,
		bottomRef:    bottomRef,
		gutter:       gutter,
		rounding:     rounding,
		chromeHeight: s.ChromeHeight,
		request:      request,
	}, nil
}

func (c LayoutConfig) Gap() float64                     { return c.gap }
func (c LayoutConfig) Column() int                      { return c.column }
func (c LayoutConfig) Bottom() float64                  { return c.bottom }
func (c LayoutConfig) PageSize() int                    { return c.pageSize }
func (c LayoutConfig) PageBase() int                    { return c.pageBase }
func (c LayoutConfig) BottomReference() BottomReference { return c.bottomRef }
func (c LayoutConfig) Gutter() Gutter                   { return c.gutter }
func (c LayoutConfig) Rounding() Rounding               { return c.rounding }
func (c LayoutConfig) ChromeHeight() float64            { return c.chromeHeight }
func (c LayoutConfig) Request() CardSource              { return c.request }

// ParseBottomReference maps a config string to a BottomReference. Empty means the default.
func ParseBottomReference(s string) (BottomReference, error) {
	switch BottomReference(s) {
	case "":
		return DefaultBottomReference, nil
	case BottomViewport, BottomContainer:
		return BottomReference(s), nil
	default:
		return "", Validationf("bottom reference must be %q or %q, got %q", BottomViewport, BottomContainer, s)
	}
}

// ParseGutter maps a config string to a Gutter. Empty means the default.
func ParseGutter(s string) (Gutter, error) {
	switch Gutter(s) {
	case "":
		return DefaultGutter, nil
	case GutterInner, GutterOuter:
		return Gutter(s), nil
	default:
		return "", Validationf("gutter must be %q or %q, got %q", GutterInner, GutterOuter, s)
	}
}

// ParseRounding maps a config string to a Rounding. Empty means the default.
func ParseRounding(s string) (Rounding, error) {
	switch Rounding(s) {
	case "":
		return DefaultRounding, nil
	case RoundingFractional, RoundingDistribute:
		return Rounding(s), nil
	default:
		return "", Validationf("rounding must be %q or %q, got %q", RoundingFractional, RoundingDistribute, s)
	}
}

func isFiniteNonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 1) && !math.IsNaN(v)
}
