package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/dto"
	"storefront/internal/model"
	"storefront/internal/pricing"
	"storefront/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type DiscountService interface {
	// Quote prices lines against the discounts in force now. tx may be nil.
	Quote(ctx context.Context, tx *gorm.DB, userID uint, lines []pricing.Line, voucherCode string) (*pricing.Quote, error)
	ValidateVoucher(ctx context.Context, userID uint, req *dto.ValidateVoucherRequest) (*dto.ValidateVoucherResponse, error)
	CreateDiscount(ctx context.Context, req *dto.DiscountRequest) (*model.Discount, error)
	UpdateDiscount(ctx context.Context, discountID uint, req *dto.DiscountRequest) (*model.Discount, error)
}

type discountServiceImpl struct {
	db               *gorm.DB
	discountRepo     repository.DiscountRepository
	productRepo      repository.ProductRepository
	voucherUsageRepo repository.VoucherUsageRepository
	now              func() time.Time
}

func NewDiscountService(
	db *gorm.DB,
	discountRepo repository.DiscountRepository,
	productRepo repository.ProductRepository,
	voucherUsageRepo repository.VoucherUsageRepository,
) DiscountService {
	return &discountServiceImpl{
		db:               db,
		discountRepo:     discountRepo,
		productRepo:      productRepo,
		voucherUsageRepo: voucherUsageRepo,
		now:              time.Now,
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *discountServiceImpl) Quote(ctx context.Context, tx *gorm.DB, userID uint, lines []pricing.Line, voucherCode string) (*pricing.Quote, error) {
	now := s.now().UTC()

	productIDs := make([]uint, len(lines))
	for i, l := range lines {
		productIDs[i] = l.ProductID
	}

	sales, err := s.discountRepo.FindActiveSales(ctx, tx, productIDs, now)
	if err != nil {
		return nil, fmt.Errorf("find active sales: %w", err)
	}

	var voucher *pricing.Rule
	if code := normalizeCode(voucherCode); code != "" {
		d, err := s.checkVoucher(ctx, userID, code, productIDs, now)
		if err != nil {
			return nil, err
		}
		rule := pricing.RuleFromDiscount(d)
		voucher = &rule
	}

	q := pricing.Evaluate(lines, pricing.ResolveSales(sales, now), voucher)
	return &q, nil
}

func (s *discountServiceImpl) checkVoucher(ctx context.Context, userID uint, code string, productIDs []uint, now time.Time) (*model.Discount, error) {
	d, err := s.discountRepo.FindByCode(ctx, code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.InvalidVoucher("voucher code not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find voucher %s: %w", code, err)
	}

	uses, err := s.voucherUsageRepo.CountByUser(ctx, userID, d.ID)
	if err != nil {
		return nil, fmt.Errorf("count voucher usage: %w", err)
	}

	if err := pricing.CheckVoucher(d, now, uses, productIDs); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *discountServiceImpl) ValidateVoucher(ctx context.Context, userID uint, req *dto.ValidateVoucherRequest) (*dto.ValidateVoucherResponse, error) {
	code := normalizeCode(req.Code)
	if code == "" {
		return nil, apperror.Validation("code is required")
	}
	items, err := mergeCartItems(req.CartItems)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	products, err := s.productRepo.FindMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	byID := make(map[uint]*model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	lines := make([]pricing.Line, 0, len(items))
	for _, it := range items {
		p, ok := byID[it.ProductID]
		if !ok || !p.IsActive {
			return nil, apperror.NotFound("product %d not found", it.ProductID)
		}
		lines = append(lines, pricing.Line{ProductID: p.ID, UnitPrice: p.Price, Quantity: it.Quantity})
	}

	q, err := s.Quote(ctx, nil, userID, lines, code)
	if err != nil {
		return nil, err
	}

	resp := &dto.ValidateVoucherResponse{
		Code:               code,
		DiscountAmount:     q.VoucherDiscountAmount,
		ApplicableProducts: q.VoucherProductIDs,
	}
	for _, a := range q.Applied {
		if a.Kind == model.DiscountVoucher {
			resp.DiscountID = a.DiscountID
		}
	}
	return resp, nil
}

func (s *discountServiceImpl) CreateDiscount(ctx context.Context, req *dto.DiscountRequest) (*model.Discount, error) {
	d, productIDs, err := discountFromRequest(req)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkConflicts(ctx, tx, d, productIDs); err != nil {
			return err
		}
		if err := s.discountRepo.Create(ctx, tx, d); err != nil {
			return fmt.Errorf("create discount: %w", err)
		}
		return s.discountRepo.ReplaceProducts(ctx, tx, d.ID, productIDs)
	})
	if err != nil {
		return nil, err
	}

	return s.discountRepo.FindByID(ctx, nil, d.ID)
}

func (s *discountServiceImpl) UpdateDiscount(ctx context.Context, discountID uint, req *dto.DiscountRequest) (*model.Discount, error) {
	d, productIDs, err := discountFromRequest(req)
	if err != nil {
		return nil, err
	}
	d.ID = discountID

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.discountRepo.FindByID(ctx, tx, discountID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("discount %d not found", discountID)
		}
		if err != nil {
			return fmt.Errorf("find discount: %w", err)
		}
		if existing.Kind != d.Kind {
			return apperror.Validation("discount kind cannot change from %s to %s", existing.Kind, d.Kind)
		}

		if err := s.checkConflicts(ctx, tx, d, productIDs); err != nil {
			return err
		}
		if err := s.discountRepo.Update(ctx, tx, d); err != nil {
			return fmt.Errorf("update discount: %w", err)
		}
		return s.discountRepo.ReplaceProducts(ctx, tx, d.ID, productIDs)
	})
	if err != nil {
		return nil, err
	}

	return s.discountRepo.FindByID(ctx, nil, discountID)
}

// checkConflicts rejects a duplicate voucher code and a SALE that would share a
// product and an instant with another active SALE.
func (s *discountServiceImpl) checkConflicts(ctx context.Context, tx *gorm.DB, d *model.Discount, productIDs []uint) error {
	products, err := s.productRepo.FindMany(ctx, productIDs)
	if err != nil {
		return fmt.Errorf("get products: %w", err)
	}
	if len(products) != len(productIDs) {
		return apperror.Validation("some products not found")
	}

	if d.Kind == model.DiscountVoucher {
		taken, err := s.discountRepo.CodeTaken(ctx, tx, *d.Code, d.ID)
		if err != nil {
			return fmt.Errorf("check voucher code: %w", err)
		}
		if taken {
			return apperror.Conflict("voucher code %s already exists", *d.Code)
		}
		return nil
	}

	if !d.IsActive {
		return nil
	}
	overlapping, err := s.discountRepo.FindOverlappingSales(ctx, tx, productIDs, d.StartDate, d.EndDate, d.ID)
	if err != nil {
		return fmt.Errorf("find overlapping sales: %w", err)
	}
	if len(overlapping) > 0 {
		other := overlapping[0]
		shared := intersect(productIDs, other.ProductIDs())
		return apperror.Conflict("sale overlaps with %q on the same products", other.Name).
			WithDetails(map[string]any{"discount_id": other.ID, "product_ids": shared})
	}
	return nil
}

func discountFromRequest(req *dto.DiscountRequest) (*model.Discount, []uint, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, nil, apperror.Validation("name is required")
	}
	if req.Kind != model.DiscountSale && req.Kind != model.DiscountVoucher {
		return nil, nil, apperror.Validation("kind must be SALE or VOUCHER")
	}
	switch req.ValueType {
	case model.ValuePercentage:
		if req.Value.GreaterThan(decimal.NewFromInt(100)) {
			return nil, nil, apperror.Validation("percentage cannot exceed 100")
		}
	case model.ValueFixed:
	default:
		return nil, nil, apperror.Validation("value_type must be PERCENTAGE or FIXED")
	}
	if !req.Value.IsPositive() {
		return nil, nil, apperror.Validation("value must be positive")
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() || !req.EndDate.After(req.StartDate) {
		return nil, nil, apperror.Validation("end_date must be after start_date")
	}
	if req.MaxDiscount != nil && *req.MaxDiscount <= 0 {
		return nil, nil, apperror.Validation("max_discount must be positive")
	}

	productIDs := uniqueIDs(req.ProductIDs)
	if len(productIDs) == 0 {
		return nil, nil, apperror.Validation("at least one product is required")
	}

	d := &model.Discount{
		Name:        name,
		Kind:        req.Kind,
		ValueType:   req.ValueType,
		Value:       req.Value,
		MaxDiscount: req.MaxDiscount,
		StartDate:   req.StartDate.UTC(),
		EndDate:     req.EndDate.UTC(),
		IsActive:    req.IsActive == nil || *req.IsActive,
	}

	if req.Kind == model.DiscountVoucher {
		code := normalizeCode(req.Code)
		if code == "" {
			return nil, nil, apperror.Validation("code is required for vouchers")
		}
		if req.MaxUses != nil && *req.MaxUses <= 0 {
			return nil, nil, apperror.Validation("max_uses must be positive")
		}
		if req.MaxUsesPerUser != nil && *req.MaxUsesPerUser <= 0 {
			return nil, nil, apperror.Validation("max_uses_per_user must be positive")
		}
		d.Code = &code
		d.MaxUses = req.MaxUses
		d.MaxUsesPerUser = req.MaxUsesPerUser
	}

	return d, productIDs, nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func intersect(a, b []uint) []uint {
	in := make(map[uint]struct{}, len(b))
	for _, id := range b {
		in[id] = struct{}{}
	}
	var out []uint
	for _, id := range a {
		if _, ok := in[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// mergeCartItems folds repeated products into one line.
func mergeCartItems(items []dto.CartItem) ([]dto.CartItem, error) {
	if len(items) == 0 {
		return nil, apperror.Validation("cart is empty")
	}
	index := make(map[uint]int, len(items))
	merged := make([]dto.CartItem, 0, len(items))
	for _, it := range items {
		if it.ProductID == 0 {
			return nil, apperror.Validation("product_id is required")
		}
		if it.Quantity <= 0 {
			return nil, apperror.Validation("item quantity must be positive")
		}
		if i, ok := index[it.ProductID]; ok {
			merged[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(merged)
		merged = append(merged, it)
	}
	return merged, nil
}
