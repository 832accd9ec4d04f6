// Package order turns baskets into orders and applies later order edits.
package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"go-storefront/apps/cart"
	"go-storefront/apps/order/model"
	"go-storefront/apps/product"
	productmodel "go-storefront/apps/product/model"
	"go-storefront/pkg/mq"
	"go-storefront/pkg/response"
	"go-storefront/pkg/tracer"
)

var (
	ErrNotFound = errors.New("order not found")
	// ErrLocked is returned when editing an order that has left processing.
	ErrLocked = errors.New("order can no longer be changed")
)

// Event routing keys.
const (
	EventCreated = "order.created"
	EventUpdated = "order.updated"
)

// ValidationError carries field-keyed messages for the client.
type ValidationError struct {
	Fields response.FieldErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order: %d field(s)", len(e.Fields))
}

// StockError reports a line that asked for more than is in stock.
type StockError struct {
	ProductID uint
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("not enough stock for product %d: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// Line is one requested (product, count) pair.
type Line struct {
	ID    uint `json:"id"`
	Count int  `json:"count"`
}

// BasketClearer empties a session basket.
type BasketClearer interface {
	Clear(ctx context.Context, sid string) error
}

// Catalog renders loaded products and refreshes their search entries.
type Catalog interface {
	Short(p *productmodel.Product) product.ProductShort
	IndexProducts(ctx context.Context, ids ...uint)
}

// CreatedEvent is published once an order is committed.
type CreatedEvent struct {
	OrderID   uint            `json:"orderId"`
	ProfileID uint            `json:"profileId"`
	TotalCost decimal.Decimal `json:"totalCost"`
	Lines     []Line          `json:"products"`
	CreatedAt time.Time       `json:"createdAt"`
}

type Service struct {
	db     *gorm.DB
	basket  BasketClearer
	catalog Catalog
	events  mq.Publisher
}

func NewService(db *gorm.DB, basket BasketClearer, catalog Catalog, events mq.Publisher) *Service {
	if events == nil {
		events = mq.LogPublisher{}
	}
	return &Service{db: db, basket: basket, catalog: catalog, events: events}
}

// Checkout creates an order for profileID from lines. Either the order, all
// of its lines and every stock decrement commit together, or nothing does.
// On success the session basket sid is cleared.
func (s *Service) Checkout(ctx context.Context, profileID uint, sid string, lines []Line) (_ uint, err error) {
	ctx, span := tracer.Start(ctx, "order.Checkout")
	defer func() { tracer.End(span, err) }()

	lines, err = s.validateLines(ctx, lines)
	if err != nil {
		return 0, err
	}

	o := model.Order{
		ProfileID:    profileID,
		Status:       model.StatusProcessing,
		DeliveryType: model.DeliveryOrdinary,
		PaymentType:  model.PaymentOnline,
		TotalCost:    decimal.Zero,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&o).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		total := decimal.Zero
		for _, l := range lines {
			// 扣库存: compare-and-swap, so concurrent checkouts never overdraw
			res := tx.Model(&productmodel.Product{}).
				Where("id = ? AND count >= ?", l.ID, l.Count).
				UpdateColumn("count", gorm.Expr("count - ?", l.Count))
			if res.Error != nil {
				return fmt.Errorf("decrease stock of product %d: %w", l.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				var left productmodel.Product
				if err := tx.Select("id", "count").First(&left, l.ID).Error; err != nil {
					return fmt.Errorf("load stock of product %d: %w", l.ID, err)
				}
				return &StockError{ProductID: l.ID, Requested: l.Count, Available: left.Count}
			}

			var p productmodel.Product
			if err := tx.Preload("Sale").First(&p, l.ID).Error; err != nil {
				return fmt.Errorf("load product %d: %w", l.ID, err)
			}

			if err := tx.Create(&model.OrderProduct{OrderID: o.ID, ProductID: l.ID, Count: l.Count}).Error; err != nil {
				return fmt.Errorf("create order line: %w", err)
			}
			total = total.Add(p.EffectivePrice().Mul(decimal.NewFromInt(int64(l.Count))))
		}

		o.TotalCost = total
		if err := tx.Model(&o).UpdateColumn("total_cost", total).Error; err != nil {
			return fmt.Errorf("set total cost: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if sid != "" && s.basket != nil {
		if err := s.basket.Clear(ctx, sid); err != nil && !errors.Is(err, cart.ErrEmptyBasket) {
			log.Warn().Err(err).Uint("order_id", o.ID).Msg("basket not cleared after checkout")
		}
	}

	if s.catalog != nil {
		ids := make([]uint, 0, len(lines))
		for _, l := range lines {
			ids = append(ids, l.ID)
		}
		s.catalog.IndexProducts(ctx, ids...)
	}

	event := CreatedEvent{OrderID: o.ID, ProfileID: profileID, TotalCost: o.TotalCost, Lines: lines, CreatedAt: o.CreatedAt}
	if err := s.events.Publish(ctx, EventCreated, event); err != nil {
		log.Warn().Err(err).Uint("order_id", o.ID).Msg("publish order.created")
	}

	log.Info().Uint("order_id", o.ID).Uint("profile_id", profileID).Str("total", o.TotalCost.String()).Msg("order created")
	return o.ID, nil
}

// validateLines checks shape and product existence and merges repeated
// product ids, keeping first-seen order.
func (s *Service) validateLines(ctx context.Context, lines []Line) ([]Line, error) {
	fields := response.FieldErrors{}
	if len(lines) == 0 {
		fields.Add("products", "This list may not be empty.")
		return nil, &ValidationError{Fields: fields}
	}

	ids := make([]uint, 0, len(lines))
	for i, l := range lines {
		prefix := "products." + strconv.Itoa(i)
		if l.ID == 0 {
			fields.Add(prefix+".id", "This field is required.")
		}
		if l.Count < 1 {
			fields.Add(prefix+".count", "Ensure this value is greater than or equal to 1.")
		}
		ids = append(ids, l.ID)
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	var found []uint
	if err := s.db.WithContext(ctx).Model(&productmodel.Product{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return nil, fmt.Errorf("lookup products: %w", err)
	}
	exists := make(map[uint]bool, len(found))
	for _, id := range found {
		exists[id] = true
	}

	merged := make([]Line, 0, len(lines))
	pos := map[uint]int{}
	for i, l := range lines {
		if !exists[l.ID] {
			fields.Add(fmt.Sprintf("products.%d.id", i), fmt.Sprintf("Invalid pk %q - object does not exist.", strconv.FormatUint(uint64(l.ID), 10)))
			continue
		}
		if j, ok := pos[l.ID]; ok {
			merged[j].Count += l.Count
			continue
		}
		pos[l.ID] = len(merged)
		merged = append(merged, l)
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return merged, nil
}
