package waterfall

import "github.com/simp-lee/waterfall/internal/domain"

// Query holds the query string of GET /waterfall. Absent fields fall back
// to the configured defaults.
type Query struct {
	Width    float64  `form:"width" json:"width" binding:"omitempty,gt=0"`
	Column   int      `form:"column" json:"column" binding:"omitempty,min=1,max=64"`
	Gap      *float64 `form:"gap" json:"gap" binding:"omitempty,min=0"`
	Page     *int     `form:"page" json:"page" binding:"omitempty,min=0"`
	PageSize int      `form:"page_size" json:"page_size" binding:"omitempty,min=1"`
	Gutter   string   `form:"gutter" json:"gutter" binding:"omitempty,oneof=inner outer"`
	Rounding string   `form:"rounding" json:"rounding" binding:"omitempty,oneof=fractional distribute"`
}

// LayoutRequest is the body of POST /layout.
type LayoutRequest struct {
	Width        float64           `json:"width" binding:"required,gt=0"`
	Column       int               `json:"column" binding:"omitempty,min=1,max=64"`
	Gap          *float64          `json:"gap" binding:"omitempty,min=0"`
	Gutter       string            `json:"gutter" binding:"omitempty,oneof=inner outer"`
	Rounding     string            `json:"rounding" binding:"omitempty,oneof=fractional distribute"`
	ChromeHeight *float64          `json:"chrome_height" binding:"omitempty,min=0"`
	Items        []domain.CardItem `json:"items" binding:"max=1000"`
}

// View is one page of a waterfall as laid out after every earlier page.
type View struct {
	Page          int                   `json:"page"`
	PageSize      int                   `json:"page_size"`
	ColumnWidths  []float64             `json:"column_widths"`
	Items         []domain.CardItem     `json:"items"`
	Positions     []domain.CardPosition `json:"positions"`
	ColumnHeights []float64             `json:"column_heights"`
	Height        float64               `json:"height"`
	Rejected      int                   `json:"rejected"`
	Duplicates    int                   `json:"duplicates"`
	HasMore       bool                  `json:"has_more"`
}

// Placement is the result of a stateless layout.
type Placement struct {
	ColumnWidths  []float64             `json:"column_widths"`
	Positions     []domain.CardPosition `json:"positions"`
	ColumnHeights []float64             `json:"column_heights"`
	Height        float64               `json:"height"`
}
