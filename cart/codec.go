package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	models "storefront-cart/model"
)

// persistedItem is the stored shape of a line item. Price is kept as a JSON
// number on write; on read a numeric string is accepted as well.
type persistedItem struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Price    json.Number `json:"price"`
	Image    string      `json:"image"`
	Category string      `json:"category"`
	Currency string      `json:"currency"`
}

var errMalformed = errors.New("malformed persisted cart")

func encodeItems(items []models.CartLineItem) (string, error) {
	out := make([]persistedItem, len(items))
	for i, it := range items {
		out[i] = persistedItem{
			ID:       it.ID,
			Name:     it.Name,
			Price:    json.Number(it.Price.String()),
			Image:    it.Image,
			Category: it.Category,
			Currency: it.Currency,
		}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func encodeTotal(total decimal.Decimal) string { return total.String() }

// decodeItems parses a stored item list. An empty value decodes to an empty
// list. Unknown fields are ignored. Any item that could not have been added
// through Add (empty id, unparseable or out-of-range price, repeated id)
// makes the whole payload malformed.
func decodeItems(raw string) ([]models.CartLineItem, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var in []persistedItem
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}

	items := make([]models.CartLineItem, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for i, p := range in {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: item %d has no id", errMalformed, i)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", errMalformed, p.ID)
		}
		seen[p.ID] = struct{}{}

		price, err := decimal.NewFromString(p.Price.String())
		if err != nil {
			return nil, fmt.Errorf("%w: item %q price: %v", errMalformed, p.ID, err)
		}
		if err := CheckAmount(price); err != nil {
			return nil, fmt.Errorf("%w: item %q price: %v", errMalformed, p.ID, err)
		}

		items = append(items, models.CartLineItem{
			ID:       p.ID,
			Name:     p.Name,
			Price:    price,
			Currency: p.Currency,
			Image:    p.Image,
			Category: p.Category,
		})
	}
	return items, nil
}
