// Package pricing recomputes line item and cart totals.  Prices are
// gross-inclusive: the tax is contained in the gross price.
package pricing

import (
	"math"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// Round2 rounds to two decimals, halves away from zero.  The small
// offset absorbs binary representation error such as 1.005*100.
func Round2(v float64) float64 {
	if v < 0 {
		return -Round2(-v)
	}
	return math.Floor(v*100+0.5+1e-9) / 100
}

// Line returns the item with GrossPrice, NetPrice and TaxPrice computed
// from GrossRegular, Discount and TaxPercent.
func Line(it model.LineItem) model.LineItem {
	gross := it.GrossRegular - it.Discount
	if gross < 0 {
		gross = 0
	}
	gross = Round2(gross)
	net := gross
	if it.TaxPercent > 0 {
		net = Round2(gross * 100 / (100 + it.TaxPercent))
	}
	it.GrossPrice = gross
	it.NetPrice = net
	it.TaxPrice = Round2(gross - net)
	return it
}

// Recompute prices every item and sums the rounded line values.  It
// returns a new slice and leaves items untouched.
func Recompute(items []model.LineItem) ([]model.LineItem, model.Totals) {
	out := make([]model.LineItem, len(items))
	var t model.Totals
	for i, it := range items {
		it = Line(it)
		out[i] = it
		t.Gross += it.GrossPrice
		t.Net += it.NetPrice
		t.Tax += it.TaxPrice
	}
	t.Gross = Round2(t.Gross)
	t.Net = Round2(t.Net)
	t.Tax = Round2(t.Tax)
	return out, t
}

// Apply recomputes the cart in place.
func Apply(c *model.Cart) {
	c.Items, c.Totals = Recompute(c.Items)
}
