package model

import (
	"time"

	"github.com/shopspring/decimal"

	productmodel "go-storefront/apps/product/model"
)

const (
	DeliveryOrdinary = "ordinary"
	DeliveryExpress  = "express"

	PaymentOnline  = "online"
	PaymentSomeone = "someone"

	StatusProcessing = "processing"
	StatusAccepted   = "accepted"
)

// ExpressSurcharge is added to the total when an order switches to express.
var ExpressSurcharge = decimal.NewFromInt(5)

// Order 订单主表
type Order struct {
	ID           uint            `gorm:"primaryKey"`
	CreatedAt    time.Time       `gorm:"index"`
	DeliveryType string          `gorm:"type:varchar(8);not null;default:ordinary"`
	PaymentType  string          `gorm:"type:varchar(8);not null;default:online"`
	TotalCost    decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	Status       string          `gorm:"type:varchar(16);not null;default:processing"`
	City         string          `gorm:"type:varchar(128)"`
	Address      string          `gorm:"type:varchar(256)"`
	ProfileID    uint            `gorm:"index;not null"`
	Products     []OrderProduct  `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

// OrderProduct 订单明细, one line per product.
type OrderProduct struct {
	ID        uint                  `gorm:"primaryKey"`
	OrderID   uint                  `gorm:"index;not null"`
	ProductID uint                  `gorm:"index;not null"`
	Product   *productmodel.Product `gorm:"constraint:OnDelete:CASCADE"`
	Count     int                   `gorm:"not null"`
}

func (Order) TableName() string        { return "orders" }
func (OrderProduct) TableName() string { return "order_products" }

func All() []any {
	return []any{&Order{}, &OrderProduct{}}
}
