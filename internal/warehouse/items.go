package warehouse

import (
	"encoding/json"
	"math"
	"strings"
)

const (
	unknownProductName = "Nieznany produkt"
	unknownProductCode = "N/A"
)

type rawItem struct {
	ProductID   int64    `json:"product_id"`
	ProductName *string  `json:"product_name"`
	ProductCode *string  `json:"product_code"`
	Quantity    *float64 `json:"quantity"`
	Qty         *float64 `json:"qty"`
	Location    *string  `json:"location"`
}

// EncodeItems serialises items for the items_json column.
func EncodeItems(items []Item) (string, error) {
	if items == nil {
		items = []Item{}
	}
	b, err := json.Marshal(items)
	return string(b), err
}

// DecodeItems reads items_json written by any schema revision. Older rows used "qty", stored
// fractional quantities and may miss names or codes. Unreadable payloads yield an empty list.
func DecodeItems(raw string) []Item {
	if strings.TrimSpace(raw) == "" {
		return []Item{}
	}
	var rows []rawItem
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return []Item{}
	}
	items := make([]Item, 0, len(rows))
	for _, r := range rows {
		it := Item{
			ProductID:   r.ProductID,
			ProductName: unknownProductName,
			ProductCode: unknownProductCode,
		}
		if r.ProductName != nil && *r.ProductName != "" {
			it.ProductName = *r.ProductName
		}
		if r.ProductCode != nil && *r.ProductCode != "" {
			it.ProductCode = *r.ProductCode
		}
		switch {
		case r.Quantity != nil:
			it.Quantity = int(math.Round(*r.Quantity))
		case r.Qty != nil:
			it.Quantity = int(math.Round(*r.Qty))
		}
		if r.Location != nil {
			it.Location = *r.Location
		}
		items = append(items, it)
	}
	return items
}
