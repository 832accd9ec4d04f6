package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	DefaultProductImage  = "products/images/default.png"
	DefaultCategoryImage = "categories/images/default.png"
	DefaultImageAlt      = "default image"
)

// Product 商品
type Product struct {
	ID              uint            `gorm:"primaryKey"`
	Title           string          `gorm:"type:varchar(128);not null"`
	Price           decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Count           int             `gorm:"not null;default:0"` // 库存, never negative
	Date            time.Time       `gorm:"autoCreateTime;index"`
	Description     string          `gorm:"type:varchar(300)"`
	FullDescription string          `gorm:"type:varchar(500)"`
	FreeDelivery    bool            `gorm:"not null;default:false"`
	Rating          decimal.Decimal `gorm:"type:decimal(2,1);not null;default:0"`
	CategoryID      *uint           `gorm:"index"`
	Category        *Category       `gorm:"constraint:OnDelete:SET NULL"`
	Tags            []Tag           `gorm:"many2many:product_tags;constraint:OnDelete:CASCADE"`
	Specifications  []Specification `gorm:"many2many:product_specifications;constraint:OnDelete:CASCADE"`
	Sale            *ProductSale    `gorm:"constraint:OnDelete:CASCADE"`
	Images          []ProductImage  `gorm:"constraint:OnDelete:CASCADE"`
	Reviews         []Review        `gorm:"constraint:OnDelete:CASCADE"`
}

// EffectivePrice is the sale price when the product has a sale, else the
// list price. Sale date windows are informational only.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.Sale != nil {
		return p.Sale.SalePrice
	}
	return p.Price
}

// AfterCreate gives every new product at least one image.
func (p *Product) AfterCreate(tx *gorm.DB) error {
	if len(p.Images) > 0 {
		return nil
	}
	return tx.Create(&ProductImage{ProductID: p.ID, Src: DefaultProductImage, Alt: DefaultImageAlt}).Error
}

// ProductSale 促销价
type ProductSale struct {
	ID        uint            `gorm:"primaryKey"`
	ProductID uint            `gorm:"uniqueIndex;not null"`
	Product   *Product        `gorm:"constraint:OnDelete:CASCADE"`
	SalePrice decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	DateFrom  string          `gorm:"type:varchar(5)"` // MM-DD
	DateTo    string          `gorm:"type:varchar(5)"`
}

// Category 商品分类, one level of children in practice.
type Category struct {
	ID            uint   `gorm:"primaryKey"`
	Title         string `gorm:"type:varchar(128);not null"`
	ParentID      *uint  `gorm:"index"`
	Image         *CategoryImage `gorm:"constraint:OnDelete:CASCADE"`
	Subcategories []Category     `gorm:"foreignKey:ParentID;constraint:OnDelete:SET NULL"`
}

func (c *Category) AfterCreate(tx *gorm.DB) error {
	if c.Image != nil {
		return nil
	}
	return tx.Create(&CategoryImage{CategoryID: c.ID, Src: DefaultCategoryImage, Alt: DefaultImageAlt}).Error
}

type Tag struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"type:varchar(128);not null" json:"name"`
}

type Specification struct {
	ID    uint   `gorm:"primaryKey"`
	Name  string `gorm:"type:varchar(128);not null"`
	Value string `gorm:"type:varchar(128);not null"`
}

type ProductImage struct {
	ID        uint   `gorm:"primaryKey"`
	ProductID uint   `gorm:"index;not null"`
	Src       string `gorm:"type:varchar(255);not null"`
	Alt       string `gorm:"type:varchar(128)"`
}

type CategoryImage struct {
	ID         uint   `gorm:"primaryKey"`
	CategoryID uint   `gorm:"uniqueIndex;not null"`
	Src        string `gorm:"type:varchar(255);not null"`
	Alt        string `gorm:"type:varchar(128)"`
}

// Review 商品评价. Rate is 1..5.
type Review struct {
	ID        uint      `gorm:"primaryKey"`
	ProductID uint      `gorm:"index;not null"`
	ProfileID *uint     `gorm:"index"`
	Author    string    `gorm:"type:varchar(128);not null"`
	Email     string    `gorm:"type:varchar(254);not null"`
	Text      string    `gorm:"type:varchar(500);not null"`
	Rate      int       `gorm:"not null"`
	Date      time.Time `gorm:"autoCreateTime"`
}

func (Product) TableName() string       { return "products" }
func (ProductSale) TableName() string   { return "product_sales" }
func (Category) TableName() string      { return "categories" }
func (Tag) TableName() string           { return "tags" }
func (Specification) TableName() string { return "specifications" }
func (ProductImage) TableName() string  { return "product_images" }
func (CategoryImage) TableName() string { return "category_images" }
func (Review) TableName() string        { return "reviews" }

// All lists the catalog models in migration order.
func All() []any {
	return []any{
		&Category{}, &CategoryImage{}, &Tag{}, &Specification{},
		&Product{}, &ProductSale{}, &ProductImage{}, &Review{},
	}
}
