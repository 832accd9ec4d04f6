// Package catalog filters, sorts and paginates the product listing.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"go-storefront/apps/product/model"
)

// sortExprs maps a sort key to the SQL expression it orders by.
var sortExprs = map[string]string{
	"date":    "products.date",
	"title":   "products.title",
	"count":   "products.count",
	"rating":  "products.rating",
	"reviews": "(SELECT COUNT(*) FROM reviews WHERE reviews.product_id = products.id)",
	"price":   "COALESCE(product_sales.sale_price, products.price)",
}

// Page is one page of the filtered catalog.
type Page struct {
	Items       []model.Product
	CurrentPage int
	LastPage    int
	Total       int64
}

type Engine struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Engine {
	return &Engine{db: db}
}

// List applies p to the product table. Every filter narrows the result;
// tags are conjunctive. Products with a NULL sort value come last in either
// direction.
func (e *Engine) List(ctx context.Context, p Params) (*Page, error) {
	db := e.db.WithContext(ctx)

	if len(p.TagIDs) > 0 {
		var known int64
		if err := db.Model(&model.Tag{}).Where("id IN ?", p.TagIDs).Count(&known).Error; err != nil {
			return nil, fmt.Errorf("lookup tags: %w", err)
		}
		if int(known) != len(p.TagIDs) {
			return nil, &InvalidParamsError{Fields: map[string][]string{
				"tags": {"Select a valid choice. One of the tags does not exist."},
			}}
		}
	}

	var total int64
	if err := e.filtered(db, p).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	lastPage := int((total + int64(p.Limit) - 1) / int64(p.Limit))
	if lastPage < 1 {
		lastPage = 1
	}
	if p.Page > lastPage {
		return nil, ErrPageNotFound
	}

	dir := "DESC"
	if p.Ascending {
		dir = "ASC"
	}
	expr := sortExprs[p.SortBy]

	var items []model.Product
	err := e.filtered(db, p).
		Select("products.*").
		Order(fmt.Sprintf("%s IS NULL, %s %s, products.id ASC", expr, expr, dir)).
		Offset((p.Page - 1) * p.Limit).
		Limit(p.Limit).
		Preload("Sale").
		Preload("Images").
		Preload("Tags").
		Preload("Reviews", func(tx *gorm.DB) *gorm.DB { return tx.Select("id", "product_id") }).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	return &Page{Items: items, CurrentPage: p.Page, LastPage: lastPage, Total: total}, nil
}

func (e *Engine) filtered(db *gorm.DB, p Params) *gorm.DB {
	q := db.Model(&model.Product{}).
		Joins("LEFT JOIN product_sales ON product_sales.product_id = products.id").
		Where("products.price >= ? AND products.price <= ?", p.MinPrice, p.MaxPrice)

	if p.Name != "" {
		q = q.Where("LOWER(products.title) LIKE ? ESCAPE '!'", "%"+escapeLike(strings.ToLower(p.Name))+"%")
	}
	if p.FreeDelivery {
		q = q.Where("products.free_delivery = ?", true)
	}
	if p.Available {
		q = q.Where("products.count > 0")
	}
	if p.CategoryID != nil {
		q = q.Where("(products.category_id = ? OR products.category_id IN (SELECT id FROM categories WHERE parent_id = ?))",
			*p.CategoryID, *p.CategoryID)
	}
	for _, id := range p.TagIDs {
		q = q.Where("EXISTS (SELECT 1 FROM product_tags WHERE product_tags.product_id = products.id AND product_tags.tag_id = ?)", id)
	}
	return q
}

func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}
