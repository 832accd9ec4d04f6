// Package admin is the back-office: dashboard numbers, stock and price
// edits, sales and search maintenance.
package admin

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	ordermodel "go-storefront/apps/order/model"
	"go-storefront/apps/product/catalog"
	productmodel "go-storefront/apps/product/model"
	usermodel "go-storefront/apps/user/model"
	"go-storefront/pkg/response"
)

var ErrNotFound = errors.New("not found")

var monthDay = regexp.MustCompile(`^(0[1-9]|1[0-2])-(0[1-9]|[12][0-9]|3[01])$`)

// ValidationError carries field-keyed messages for the client.
type ValidationError struct {
	Fields response.FieldErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid admin request: %d field(s)", len(e.Fields))
}

// Catalog is the product read side that must follow admin writes.
type Catalog interface {
	InvalidateCache(ctx context.Context)
	Reindex(ctx context.Context) (int, error)
	IndexProducts(ctx context.Context, ids ...uint)
}

type Stats struct {
	Revenue      decimal.Decimal `json:"revenue"`
	OrderCount   int64           `json:"orderCount"`
	UserCount    int64           `json:"userCount"`
	ProductCount int64           `json:"productCount"`
}

type ProductRow struct {
	ID        uint             `json:"id"`
	Title     string           `json:"title"`
	Price     decimal.Decimal  `json:"price"`
	SalePrice *decimal.Decimal `json:"salePrice"`
	Count     int              `json:"count"`
}

type UserRow struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type List[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
}

// ProductPatch edits list price and stock. Nil fields are left alone.
type ProductPatch struct {
	Price *decimal.Decimal `json:"price"`
	Count *int             `json:"count"`
}

// SaleInput puts a product on sale. Dates are MM-DD and optional.
type SaleInput struct {
	SalePrice decimal.Decimal `json:"salePrice"`
	DateFrom  string          `json:"dateFrom"`
	DateTo    string          `json:"dateTo"`
}

type Service struct {
	db      *gorm.DB
	catalog Catalog
}

func NewService(db *gorm.DB, c Catalog) *Service {
	return &Service{db: db, catalog: c}
}

// Stats 仪表盘: revenue counts accepted (paid) orders only.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	db := s.db.WithContext(ctx)
	var st Stats

	var revenue []decimal.NullDecimal
	if err := db.Model(&ordermodel.Order{}).Where("status = ?", ordermodel.StatusAccepted).
		Pluck("SUM(total_cost)", &revenue).Error; err != nil {
		return nil, fmt.Errorf("sum revenue: %w", err)
	}
	if len(revenue) > 0 && revenue[0].Valid {
		st.Revenue = revenue[0].Decimal
	}
	if err := db.Model(&ordermodel.Order{}).Count(&st.OrderCount).Error; err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	if err := db.Model(&usermodel.User{}).Count(&st.UserCount).Error; err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if err := db.Model(&productmodel.Product{}).Count(&st.ProductCount).Error; err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}
	return &st, nil
}

func pageBounds(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = catalog.DefaultLimit
	}
	return page, min(limit, catalog.MaxLimit)
}

func (s *Service) Products(ctx context.Context, page, limit int) (*List[ProductRow], error) {
	page, limit = pageBounds(page, limit)
	db := s.db.WithContext(ctx)

	var total int64
	if err := db.Model(&productmodel.Product{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}
	var products []productmodel.Product
	err := db.Preload("Sale").Order("id ASC").Limit(limit).Offset((page - 1) * limit).Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	out := &List[ProductRow]{Items: make([]ProductRow, 0, len(products)), Total: total}
	for _, p := range products {
		row := ProductRow{ID: p.ID, Title: p.Title, Price: p.Price, Count: p.Count}
		if p.Sale != nil {
			sp := p.Sale.SalePrice
			row.SalePrice = &sp
		}
		out.Items = append(out.Items, row)
	}
	return out, nil
}

func (s *Service) Users(ctx context.Context, page, limit int) (*List[UserRow], error) {
	page, limit = pageBounds(page, limit)
	db := s.db.WithContext(ctx)

	var total int64
	if err := db.Model(&usermodel.User{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	var users []usermodel.User
	if err := db.Order("id ASC").Limit(limit).Offset((page - 1) * limit).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := &List[UserRow]{Items: make([]UserRow, 0, len(users)), Total: total}
	for _, u := range users {
		out.Items = append(out.Items, UserRow{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt})
	}
	return out, nil
}

// UpdateProduct sets the list price and/or the stock count.
func (s *Service) UpdateProduct(ctx context.Context, id uint, p ProductPatch) error {
	fields := response.FieldErrors{}
	updates := map[string]any{}
	if p.Price != nil {
		if !p.Price.IsPositive() {
			fields.Add("price", "Ensure this value is greater than 0.")
		}
		updates["price"] = *p.Price
	}
	if p.Count != nil {
		if *p.Count < 0 {
			fields.Add("count", "Ensure this value is greater than or equal to 0.")
		}
		updates["count"] = *p.Count
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	if len(updates) == 0 {
		return nil
	}

	res := s.db.WithContext(ctx).Model(&productmodel.Product{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update product %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return s.productMissing(ctx, id)
	}

	s.catalog.IndexProducts(ctx, id)
	log.Info().Uint("product_id", id).Interface("changes", updates).Msg("product updated")
	return nil
}

// productMissing tells a no-op update on an existing row from a missing one.
func (s *Service) productMissing(ctx context.Context, id uint) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&productmodel.Product{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("lookup product %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PutSale creates or replaces the sale of a product.
func (s *Service) PutSale(ctx context.Context, productID uint, in SaleInput) error {
	fields := response.FieldErrors{}
	if !in.SalePrice.IsPositive() {
		fields.Add("salePrice", "Ensure this value is greater than 0.")
	}
	for name, v := range map[string]string{"dateFrom": in.DateFrom, "dateTo": in.DateTo} {
		if v != "" && !monthDay.MatchString(v) {
			fields.Add(name, "Use the MM-DD format.")
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p productmodel.Product
		if err := tx.First(&p, productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load product %d: %w", productID, err)
		}
		if in.SalePrice.GreaterThanOrEqual(p.Price) {
			return &ValidationError{Fields: response.FieldErrors{"salePrice": {"Sale price must be lower than the price."}}}
		}
		sale := productmodel.ProductSale{ProductID: productID, SalePrice: in.SalePrice, DateFrom: in.DateFrom, DateTo: in.DateTo}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"sale_price", "date_from", "date_to"}),
		}).Create(&sale).Error
	})
	if err != nil {
		return err
	}

	s.catalog.IndexProducts(ctx, productID)
	return nil
}

func (s *Service) DeleteSale(ctx context.Context, productID uint) error {
	res := s.db.WithContext(ctx).Where("product_id = ?", productID).Delete(&productmodel.ProductSale{})
	if res.Error != nil {
		return fmt.Errorf("delete sale of product %d: %w", productID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	s.catalog.IndexProducts(ctx, productID)
	return nil
}

// Reindex rebuilds the search index and drops cached catalog lookups.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	s.catalog.InvalidateCache(ctx)
	return s.catalog.Reindex(ctx)
}
