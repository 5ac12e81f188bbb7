package pricing

import (
	"time"

	"storefront/internal/apperror"
	"storefront/internal/model"
)

// CheckVoucher applies the checkout-time eligibility rules. userUses is the
// number of orders on which this user already consumed the voucher.
func CheckVoucher(d *model.Discount, now time.Time, userUses int64, cartProductIDs []uint) error {
	if d.Kind != model.DiscountVoucher {
		return apperror.InvalidVoucher("not a voucher")
	}
	if !d.IsActive {
		return apperror.InvalidVoucher("voucher is not active")
	}
	if now.Before(d.StartDate) {
		return apperror.InvalidVoucher("voucher is not yet valid")
	}
	if now.After(d.EndDate) {
		return apperror.InvalidVoucher("voucher has expired")
	}
	if d.MaxUses != nil && d.UsesCount >= *d.MaxUses {
		return apperror.InvalidVoucher("voucher usage limit reached")
	}
	if d.MaxUsesPerUser != nil && userUses >= int64(*d.MaxUsesPerUser) {
		return apperror.InvalidVoucher("you have already used this voucher")
	}

	rule := RuleFromDiscount(d)
	for _, pid := range cartProductIDs {
		if rule.Covers(pid) {
			return nil
		}
	}
	return apperror.InvalidVoucher("voucher does not apply to any product in the cart")
}
