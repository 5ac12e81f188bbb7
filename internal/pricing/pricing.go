// Package pricing computes order totals from a cart snapshot and the discounts
// in force. It does no I/O; callers load products and discounts and pass them in.
//
// SALE discounts apply first, per unit, to the product they are enrolled on.
// A VOUCHER applies second, once per order, to the post-SALE subtotal of its
// eligible lines. Fractional amounts are always rounded down.
package pricing

import (
	"sort"
	"time"

	"storefront/internal/model"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Line struct {
	ProductID uint
	UnitPrice int64
	Quantity  int
}

type Rule struct {
	DiscountID  uint
	Name        string
	Kind        model.DiscountKind
	ValueType   model.DiscountValueType
	Value       decimal.Decimal
	MaxDiscount *int64
	Products    map[uint]struct{}
}

func RuleFromDiscount(d *model.Discount) Rule {
	products := make(map[uint]struct{}, len(d.Products))
	for _, p := range d.Products {
		products[p.ProductID] = struct{}{}
	}
	return Rule{
		DiscountID:  d.ID,
		Name:        d.Name,
		Kind:        d.Kind,
		ValueType:   d.ValueType,
		Value:       d.Value,
		MaxDiscount: d.MaxDiscount,
		Products:    products,
	}
}

func (r Rule) Covers(productID uint) bool {
	_, ok := r.Products[productID]
	return ok
}

// amountOn is the reduction this rule grants on base, never more than base.
func (r Rule) amountOn(base int64) int64 {
	if base <= 0 {
		return 0
	}
	var amount int64
	switch r.ValueType {
	case model.ValuePercentage:
		amount = decimal.NewFromInt(base).Mul(r.Value).Div(hundred).Floor().IntPart()
		if r.MaxDiscount != nil && amount > *r.MaxDiscount {
			amount = *r.MaxDiscount
		}
	case model.ValueFixed:
		amount = r.Value.Floor().IntPart()
	}
	if amount < 0 {
		return 0
	}
	if amount > base {
		return base
	}
	return amount
}

type PricedLine struct {
	Line
	SaleID       uint
	UnitDiscount int64
	Subtotal     int64 // UnitPrice * Quantity
	SaleDiscount int64 // UnitDiscount * Quantity
}

// Net is the line total after its SALE discount.
func (l PricedLine) Net() int64 {
	return l.Subtotal - l.SaleDiscount
}

type Applied struct {
	DiscountID uint
	Name       string
	Kind       model.DiscountKind
	Amount     int64
}

type Quote struct {
	Lines                 []PricedLine
	Subtotal              int64
	SaleDiscountAmount    int64
	VoucherDiscountAmount int64
	Applied               []Applied
	VoucherProductIDs     []uint
}

func (q Quote) Total(shippingCost int64) int64 {
	return q.Subtotal - q.SaleDiscountAmount - q.VoucherDiscountAmount + shippingCost
}

// Evaluate prices lines. sales maps a product id to the single SALE rule in
// force for it; voucher may be nil.
func Evaluate(lines []Line, sales map[uint]Rule, voucher *Rule) Quote {
	q := Quote{Lines: make([]PricedLine, 0, len(lines))}

	saleTotals := make(map[uint]*Applied)
	var saleOrder []uint

	for _, l := range lines {
		pl := PricedLine{Line: l, Subtotal: l.UnitPrice * int64(l.Quantity)}
		if rule, ok := sales[l.ProductID]; ok {
			pl.SaleID = rule.DiscountID
			pl.UnitDiscount = rule.amountOn(l.UnitPrice)
			pl.SaleDiscount = pl.UnitDiscount * int64(l.Quantity)
			if pl.SaleDiscount > 0 {
				a, seen := saleTotals[rule.DiscountID]
				if !seen {
					a = &Applied{DiscountID: rule.DiscountID, Name: rule.Name, Kind: model.DiscountSale}
					saleTotals[rule.DiscountID] = a
					saleOrder = append(saleOrder, rule.DiscountID)
				}
				a.Amount += pl.SaleDiscount
			}
		}
		q.Subtotal += pl.Subtotal
		q.SaleDiscountAmount += pl.SaleDiscount
		q.Lines = append(q.Lines, pl)
	}

	for _, id := range saleOrder {
		q.Applied = append(q.Applied, *saleTotals[id])
	}

	if voucher == nil {
		return q
	}

	var base int64
	for _, pl := range q.Lines {
		if voucher.Covers(pl.ProductID) {
			base += pl.Net()
			q.VoucherProductIDs = append(q.VoucherProductIDs, pl.ProductID)
		}
	}
	q.VoucherDiscountAmount = voucher.amountOn(base)
	// recorded even at zero: an accepted code consumes a use once paid
	q.Applied = append(q.Applied, Applied{
		DiscountID: voucher.DiscountID,
		Name:       voucher.Name,
		Kind:       model.DiscountVoucher,
		Amount:     q.VoucherDiscountAmount,
	})
	return q
}

// ResolveSales picks, for every product, the one SALE discount active at now.
// Overlaps are rejected when discounts are saved; if one slips through the
// lowest id wins so pricing stays deterministic.
func ResolveSales(discounts []*model.Discount, now time.Time) map[uint]Rule {
	active := make([]*model.Discount, 0, len(discounts))
	for _, d := range discounts {
		if d.Kind == model.DiscountSale && d.IsActive && InWindow(now, d.StartDate, d.EndDate) {
			active = append(active, d)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	sales := make(map[uint]Rule)
	for _, d := range active {
		rule := RuleFromDiscount(d)
		for pid := range rule.Products {
			if _, taken := sales[pid]; !taken {
				sales[pid] = rule
			}
		}
	}
	return sales
}

// InWindow reports whether t falls in the closed interval [start, end].
func InWindow(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

// WindowsOverlap reports whether two closed intervals share an instant.
func WindowsOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !bStart.After(aEnd)
}
