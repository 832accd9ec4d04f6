package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"go-storefront/apps/order/model"
	"go-storefront/apps/product"
	usermodel "go-storefront/apps/user/model"
	"go-storefront/pkg/response"
	"go-storefront/pkg/tracer"
	"go-storefront/pkg/validate"
)

// LineView is an order line rendered with its product. Price is the
// product's current effective price.
type LineView struct {
	product.ProductShort
	ID      uint `json:"id"`
	Product uint `json:"product"`
	Count   int  `json:"count"`
}

type View struct {
	ID           uint            `json:"id"`
	CreatedAt    time.Time       `json:"createdAt"`
	FullName     string          `json:"fullName"`
	Email        string          `json:"email"`
	Phone        string          `json:"phone"`
	DeliveryType string          `json:"deliveryType"`
	PaymentType  string          `json:"paymentType"`
	TotalCost    decimal.Decimal `json:"totalCost"`
	Status       string          `json:"status"`
	City         string          `json:"city"`
	Address      string          `json:"address"`
	Products     []LineView      `json:"products"`
}

func withLines(db *gorm.DB) *gorm.DB {
	return db.Preload("Products", func(tx *gorm.DB) *gorm.DB { return tx.Order("id ASC") }).
		Preload("Products.Product.Sale").
		Preload("Products.Product.Images").
		Preload("Products.Product.Tags").
		Preload("Products.Product.Reviews", func(tx *gorm.DB) *gorm.DB { return tx.Select("id", "product_id") })
}

// List returns the caller's orders, oldest first.
func (s *Service) List(ctx context.Context, profileID uint) ([]View, error) {
	var orders []model.Order
	err := withLines(s.db.WithContext(ctx)).
		Where("profile_id = ?", profileID).
		Order("created_at ASC, id ASC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	owner, err := s.owner(ctx, profileID)
	if err != nil {
		return nil, err
	}
	out := make([]View, 0, len(orders))
	for i := range orders {
		out = append(out, s.view(&orders[i], owner))
	}
	return out, nil
}

// Get returns one of the caller's orders.
func (s *Service) Get(ctx context.Context, profileID, orderID uint) (*View, error) {
	var o model.Order
	err := withLines(s.db.WithContext(ctx)).
		Where("id = ? AND profile_id = ?", orderID, profileID).
		First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order %d: %w", orderID, err)
	}
	owner, err := s.owner(ctx, profileID)
	if err != nil {
		return nil, err
	}
	v := s.view(&o, owner)
	return &v, nil
}

func (s *Service) owner(ctx context.Context, profileID uint) (*usermodel.Profile, error) {
	var p usermodel.Profile
	err := s.db.WithContext(ctx).Preload("User").First(&p, profileID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &usermodel.Profile{ID: profileID}, nil
		}
		return nil, fmt.Errorf("load profile %d: %w", profileID, err)
	}
	return &p, nil
}

func (s *Service) view(o *model.Order, owner *usermodel.Profile) View {
	v := View{
		ID:           o.ID,
		CreatedAt:    o.CreatedAt,
		FullName:     owner.FullName,
		Phone:        owner.Phone,
		DeliveryType: o.DeliveryType,
		PaymentType:  o.PaymentType,
		TotalCost:    o.TotalCost,
		Status:       o.Status,
		City:         o.City,
		Address:      o.Address,
		Products:     make([]LineView, 0, len(o.Products)),
	}
	if owner.User != nil {
		v.Email = owner.User.Email
	}
	for _, line := range o.Products {
		lv := LineView{ID: line.ID, Product: line.ProductID, Count: line.Count}
		if line.Product != nil {
			lv.ProductShort = s.catalog.Short(line.Product)
		}
		v.Products = append(v.Products, lv)
	}
	return v
}

// Patch is a partial order update. Nil fields are left alone.
type Patch struct {
	DeliveryType *string          `json:"deliveryType" validate:"omitnil,oneof=ordinary express"`
	PaymentType  *string          `json:"paymentType" validate:"omitnil,oneof=online someone"`
	City         *string          `json:"city" validate:"omitempty,max=255"`
	Address      *string          `json:"address" validate:"omitempty,max=255"`
	TotalCost    *decimal.Decimal `json:"totalCost"`
}

// Update applies p to one of the caller's orders while it is still
// processing. Switching to express delivery adds the surcharge to the
// supplied total, or to the stored total when none is supplied and the
// order was not express already.
func (s *Service) Update(ctx context.Context, profileID, orderID uint, p Patch) (_ uint, err error) {
	ctx, span := tracer.Start(ctx, "order.Update")
	defer func() { tracer.End(span, err) }()

	if fields := validate.Struct(p); fields != nil {
		return 0, &ValidationError{Fields: fields}
	}
	if p.TotalCost != nil && p.TotalCost.IsNegative() {
		return 0, &ValidationError{Fields: response.FieldErrors{"totalCost": {"Ensure this value is greater than or equal to 0."}}}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o model.Order
		if err := tx.Where("id = ? AND profile_id = ?", orderID, profileID).First(&o).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load order %d: %w", orderID, err)
		}
		if o.Status != model.StatusProcessing {
			return ErrLocked
		}

		updates := map[string]any{}
		if p.DeliveryType != nil {
			updates["delivery_type"] = *p.DeliveryType
		}
		if p.PaymentType != nil {
			updates["payment_type"] = *p.PaymentType
		}
		if p.City != nil {
			updates["city"] = *p.City
		}
		if p.Address != nil {
			updates["address"] = *p.Address
		}

		total := p.TotalCost
		if p.DeliveryType != nil && *p.DeliveryType == model.DeliveryExpress {
			switch {
			case total != nil:
				t := total.Add(model.ExpressSurcharge)
				total = &t
			case o.DeliveryType != model.DeliveryExpress:
				t := o.TotalCost.Add(model.ExpressSurcharge)
				total = &t
			}
		}
		if total != nil {
			updates["total_cost"] = *total
		}

		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&o).Updates(updates).Error; err != nil {
			return fmt.Errorf("update order %d: %w", orderID, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if err := s.events.Publish(ctx, EventUpdated, map[string]uint{"orderId": orderID}); err != nil {
		log.Warn().Err(err).Uint("order_id", orderID).Msg("publish order.updated")
	}
	return orderID, nil
}
