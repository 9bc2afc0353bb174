package domain

// Cart is the checkout-time snapshot of what the customer is buying. Lines keep
// the unit price seen at checkout so later catalog changes never touch an
// existing order.
type Cart struct {
	Currency string     `json:"currency"`
	Lines    []CartLine `json:"lines"`
}

type CartLine struct {
	ProductID      string `json:"productId"`
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	Digital        bool   `json:"digital"`
}

// TotalCents is the line total.
func (l CartLine) TotalCents() int64 {
	return l.UnitPriceCents * int64(l.Quantity)
}

// SubtotalCents sums all line totals.
func (c Cart) SubtotalCents() int64 {
	var sum int64
	for _, l := range c.Lines {
		sum += l.TotalCents()
	}
	return sum
}

// DigitalProductIDs returns the distinct product ids of digital lines, in line order.
func (c Cart) DigitalProductIDs() []string {
	seen := make(map[string]struct{}, len(c.Lines))
	var ids []string
	for _, l := range c.Lines {
		if !l.Digital {
			continue
		}
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	return ids
}

// Clone returns a deep copy so callers cannot mutate a stored snapshot.
func (c Cart) Clone() Cart {
	out := Cart{Currency: c.Currency}
	if c.Lines != nil {
		out.Lines = make([]CartLine, len(c.Lines))
		copy(out.Lines, c.Lines)
	}
	return out
}

// PricedCart carries the totals computed for a cart and an optional discount.
type PricedCart struct {
	Currency      string `json:"currency"`
	SubtotalCents int64  `json:"subtotalCents"`
	DiscountCents int64  `json:"discountCents"`
	TotalCents    int64  `json:"totalCents"`
}
