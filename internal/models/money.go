package models

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Vat is the tax included in an amount at a given percentage.
type Vat struct {
	Percentage decimal.Decimal `json:"percentage"`
	Amount     decimal.Decimal `json:"amount"`
}

// AggregateVat sums the per-unit VAT of every item times its count, grouped by
// percentage and ordered by ascending percentage.
func AggregateVat(items []TransactionItem) []Vat {
	byPct := make(map[string]*Vat)
	for _, item := range items {
		count := decimal.NewFromInt(int64(item.Count))
		for _, v := range item.Vat {
			key := v.Percentage.String()
			amount := v.Amount.Mul(count)
			if agg, ok := byPct[key]; ok {
				agg.Amount = agg.Amount.Add(amount)
				continue
			}
			byPct[key] = &Vat{Percentage: v.Percentage, Amount: amount}
		}
	}

	out := make([]Vat, 0, len(byPct))
	for _, v := range byPct {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Percentage.LessThan(out[j].Percentage)
	})
	return out
}

// SumItems returns the total amount of items.
func SumItems(items []TransactionItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return total
}
