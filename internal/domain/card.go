package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// CardID identifies a card. It is either a string or an integer, and the JSON
// form keeps whichever kind was supplied.
type CardID struct {
	str   string
	num   int64
	isNum bool
}

// StringID returns a string-valued CardID.
func StringID(s string) CardID { return CardID{str: s} }

// IntID returns an integer-valued CardID.
func IntID(n int64) CardID { return CardID{num: n, isNum: true} }

// IsZero reports whether the id was never set (or is the empty string).
func (id CardID) IsZero() bool { return !id.isNum && id.str == "" }

// IsInt reports whether the id holds an integer.
func (id CardID) IsInt() bool { return id.isNum }

// String returns the textual form of the id.
func (id CardID) String() string {
	if id.isNum {
		return strconv.FormatInt(id.num, 10)
	}
	return id.str
}

// Key returns a map key that keeps string "1" and integer 1 apart.
func (id CardID) Key() string {
	if id.isNum {
		return "i:" + strconv.FormatInt(id.num, 10)
	}
	return "s:" + id.str
}

// Kind returns "int" or "string".
func (id CardID) Kind() string {
	if id.isNum {
		return CardIDKindInt
	}
	return CardIDKindString
}

// Card id kinds as persisted.
const (
	CardIDKindString = "string"
	CardIDKindInt    = "int"
)

// ParseCardID rebuilds a CardID from its persisted kind and textual value.
func ParseCardID(kind, value string) (CardID, error) {
	switch kind {
	case CardIDKindInt:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return CardID{}, fmt.Errorf("parse int card id %q: %w", value, err)
		}
		return IntID(n), nil
	case CardIDKindString, "":
		return StringID(value), nil
	default:
		return CardID{}, fmt.Errorf("unknown card id kind %q", kind)
	}
}

// MarshalJSON encodes the id as a JSON string or number.
func (id CardID) MarshalJSON() ([]byte, error) {
	if id.isNum {
		return []byte(strconv.FormatInt(id.num, 10)), nil
	}
	return json.Marshal(id.str)
}

// UnmarshalJSON accepts a JSON string or an integral JSON number.
func (id *CardID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = CardID{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("card id must be a string or an integer, got %s", data)
	}
	*id = IntID(n)
	return nil
}

// CardItem is one unit of content to lay out. Width and Height are the
// intrinsic pixel dimensions of the media at URL. Extra carries any further
// named fields; they are preserved on the way through.
type CardItem struct {
	ID     CardID
	URL    string
	Width  float64
	Height float64
	Extra  map[string]any
}

var coreCardFields = map[string]struct{}{
	"id": {}, "url": {}, "width": {}, "height": {},
}

// Validate checks the item invariants: non-empty id and url, positive dimensions.
func (c CardItem) Validate() error {
	if c.ID.IsZero() {
		return Validationf("card id is required")
	}
	if strings.TrimSpace(c.URL) == "" {
		return Validationf("card %s: url is required", c.ID)
	}
	if !(c.Width > 0) {
		return Validationf("card %s: width must be greater than 0", c.ID)
	}
	if !(c.Height > 0) {
		return Validationf("card %s: height must be greater than 0", c.ID)
	}
	return nil
}

// AspectRatio returns Height/Width, or 0 for a degenerate width.
func (c CardItem) AspectRatio() float64 {
	if c.Width <= 0 {
		return 0
	}
	return c.Height / c.Width
}

// MarshalJSON flattens Extra next to the core fields. Core fields win on conflict.
func (c CardItem) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(c.Extra)+4)
	for k, v := range c.Extra {
		if _, core := coreCardFields[k]; core {
			continue
		}
		m[k] = v
	}
	m["id"] = c.ID
	m["url"] = c.URL
	m["width"] = c.Width
	m["height"] = c.Height
	return json.Marshal(m)
}

// UnmarshalJSON reads the core fields and collects every other key into Extra.
func (c *CardItem) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var item CardItem
	if v, ok := raw["id"]; ok {
		if err := json.Unmarshal(v, &item.ID); err != nil {
			return fmt.Errorf("card id: %w", err)
		}
	}
	if v, ok := raw["url"]; ok {
		if err := json.Unmarshal(v, &item.URL); err != nil {
			return fmt.Errorf("card url: %w", err)
		}
	}
	if v, ok := raw["width"]; ok {
		if err := json.Unmarshal(v, &item.Width); err != nil {
			return fmt.Errorf("card width: %w", err)
		}
	}
	if v, ok := raw["height"]; ok {
		if err := json.Unmarshal(v, &item.Height); err != nil {
			return fmt.Errorf("card height: %w", err)
		}
	}

	for k, v := range raw {
		if _, core := coreCardFields[k]; core {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return fmt.Errorf("card field %q: %w", k, err)
		}
		if item.Extra == nil {
			item.Extra = make(map[string]any, len(raw)-len(coreCardFields))
		}
		item.Extra[k] = val
	}

	*c = item
	return nil
}

// CardPosition is the computed placement of one card inside the container.
// X and Y are the top-left corner in the same units as Width and the gap.
type CardPosition struct {
	ID          CardID  `json:"id"`
	Column      int     `json:"column"`
	Width       float64 `json:"width"`
	ImageHeight float64 `json:"image_height"`
	CardHeight  float64 `json:"card_height"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
}

// Bottom returns the y coordinate just below the card.
func (p CardPosition) Bottom() float64 { return p.Y + p.CardHeight }
