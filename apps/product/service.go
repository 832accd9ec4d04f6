// Package product serves the catalog read models: listings, product
// details, sales, tags, categories and search.
package product

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go-storefront/apps/product/catalog"
	"go-storefront/apps/product/model"
	"go-storefront/pkg/cache"
	"go-storefront/pkg/search"
)

var ErrNotFound = errors.New("product not found")

const (
	showcaseSize = 5

	cacheKeyTags       = "tags"
	cacheKeyCategories = "categories"
)

// Searcher is the full-text index the service queries and feeds.
type Searcher interface {
	Search(ctx context.Context, q string, limit int) ([]uint, error)
	Index(ctx context.Context, docs ...search.ProductDoc) error
}

type Service struct {
	db       *gorm.DB
	catalog  *catalog.Engine
	cache    *cache.Cache
	search   Searcher
	mediaURL string
}

// NewService wires the catalog reader. cache and idx may be nil.
func NewService(db *gorm.DB, c *cache.Cache, idx Searcher, mediaURL string) *Service {
	return &Service{
		db:       db,
		catalog:  catalog.New(db),
		cache:    c,
		search:   idx,
		mediaURL: mediaURL,
	}
}

// withShort preloads what ProductShort needs.
func withShort(db *gorm.DB) *gorm.DB {
	return db.Preload("Sale").
		Preload("Images").
		Preload("Tags").
		Preload("Reviews", func(tx *gorm.DB) *gorm.DB { return tx.Select("id", "product_id") })
}

func (s *Service) shorts(products []model.Product) []ProductShort {
	out := make([]ProductShort, 0, len(products))
	for i := range products {
		out = append(out, s.Short(&products[i]))
	}
	return out
}

// Catalog runs the filter engine and converts the page.
func (s *Service) Catalog(ctx context.Context, p catalog.Params) (*Page[ProductShort], error) {
	res, err := s.catalog.List(ctx, p)
	if err != nil {
		return nil, err
	}
	return &Page[ProductShort]{
		Items:       s.shorts(res.Items),
		CurrentPage: res.CurrentPage,
		LastPage:    res.LastPage,
	}, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*ProductFull, error) {
	var p model.Product
	err := s.db.WithContext(ctx).
		Preload("Sale").
		Preload("Images").
		Preload("Tags").
		Preload("Specifications").
		Preload("Reviews", func(tx *gorm.DB) *gorm.DB { return tx.Order("date ASC, id ASC") }).
		First(&p, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	return s.full(&p), nil
}

// ShortByIDs loads short views keyed by id. Missing ids are absent from
// the result.
func (s *Service) ShortByIDs(ctx context.Context, ids []uint) (map[uint]ProductShort, error) {
	out := make(map[uint]ProductShort, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var products []model.Product
	if err := withShort(s.db.WithContext(ctx)).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	for i := range products {
		out[products[i].ID] = s.Short(&products[i])
	}
	return out, nil
}

// Popular returns the most reviewed products.
func (s *Service) Popular(ctx context.Context) ([]ProductShort, error) {
	var products []model.Product
	err := withShort(s.db.WithContext(ctx)).
		Order("(SELECT COUNT(*) FROM reviews WHERE reviews.product_id = products.id) DESC").
		Order("date DESC").
		Limit(showcaseSize).
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("popular products: %w", err)
	}
	return s.shorts(products), nil
}

// Limited returns the products with the least stock left.
func (s *Service) Limited(ctx context.Context) ([]ProductShort, error) {
	var products []model.Product
	err := withShort(s.db.WithContext(ctx)).
		Order("count ASC").
		Order("id ASC").
		Limit(showcaseSize).
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("limited products: %w", err)
	}
	return s.shorts(products), nil
}

// Banners returns a random selection of products.
func (s *Service) Banners(ctx context.Context) ([]ProductShort, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&model.Product{}).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("banner ids: %w", err)
	}
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if len(ids) > showcaseSize {
		ids = ids[:showcaseSize]
	}

	byID, err := s.ShortByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]ProductShort, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Sales lists discounted products, highest sale price first.
func (s *Service) Sales(ctx context.Context, page, limit int) (*Page[SaleView], error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = catalog.DefaultLimit
	}
	limit = min(limit, catalog.MaxLimit)

	db := s.db.WithContext(ctx)
	var total int64
	if err := db.Model(&model.ProductSale{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count sales: %w", err)
	}
	lastPage := max(1, int((total+int64(limit)-1)/int64(limit)))
	if page > lastPage {
		return nil, catalog.ErrPageNotFound
	}

	var sales []model.ProductSale
	err := db.Preload("Product.Images").
		Order("sale_price DESC").
		Order("id ASC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&sales).Error
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}

	items := make([]SaleView, 0, len(sales))
	for _, sale := range sales {
		v := SaleView{ID: sale.ID, SalePrice: sale.SalePrice, DateFrom: sale.DateFrom, DateTo: sale.DateTo, Images: []Image{}}
		if sale.Product != nil {
			v.Title = sale.Product.Title
			v.Price = sale.Product.Price
			v.Images = s.images(sale.Product.Images)
		}
		items = append(items, v)
	}
	return &Page[SaleView]{Items: items, CurrentPage: page, LastPage: lastPage}, nil
}

func (s *Service) Tags(ctx context.Context) ([]model.Tag, error) {
	return cache.GetOrLoad(ctx, s.cache, cacheKeyTags, func(ctx context.Context) ([]model.Tag, error) {
		var tags []model.Tag
		if err := s.db.WithContext(ctx).Order("id ASC").Find(&tags).Error; err != nil {
			return nil, fmt.Errorf("list tags: %w", err)
		}
		return tags, nil
	})
}

// Categories returns top-level categories with their children.
func (s *Service) Categories(ctx context.Context) ([]CategoryView, error) {
	return cache.GetOrLoad(ctx, s.cache, cacheKeyCategories, func(ctx context.Context) ([]CategoryView, error) {
		var cats []model.Category
		err := s.db.WithContext(ctx).
			Preload("Image").
			Preload("Subcategories", func(tx *gorm.DB) *gorm.DB { return tx.Order("id ASC") }).
			Preload("Subcategories.Image").
			Where("parent_id IS NULL").
			Order("id ASC").
			Find(&cats).Error
		if err != nil {
			return nil, fmt.Errorf("list categories: %w", err)
		}

		out := make([]CategoryView, 0, len(cats))
		for _, c := range cats {
			v := CategoryView{ID: c.ID, Title: c.Title, Image: s.categoryImage(c.Image), Subcategories: []Subcategory{}}
			for _, sub := range c.Subcategories {
				v.Subcategories = append(v.Subcategories, Subcategory{ID: sub.ID, Title: sub.Title, Image: s.categoryImage(sub.Image)})
			}
			out = append(out, v)
		}
		return out, nil
	})
}

// InvalidateCache drops cached tags and categories.
func (s *Service) InvalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKeyTags, cacheKeyCategories); err != nil {
		log.Warn().Err(err).Msg("catalog cache invalidation failed")
	}
}

// Search ranks products with the full-text index. Without an index, or when
// the index fails, it falls back to the catalog name filter.
func (s *Service) Search(ctx context.Context, q string, limit int) ([]ProductShort, error) {
	if limit < 1 || limit > catalog.MaxLimit {
		limit = catalog.DefaultLimit
	}
	if q == "" {
		return []ProductShort{}, nil
	}

	if s.search != nil {
		ids, err := s.search.Search(ctx, q, limit)
		if err == nil {
			byID, err := s.ShortByIDs(ctx, ids)
			if err != nil {
				return nil, err
			}
			out := make([]ProductShort, 0, len(ids))
			for _, id := range ids {
				if p, ok := byID[id]; ok {
					out = append(out, p)
				}
			}
			return out, nil
		}
		log.Warn().Err(err).Str("q", q).Msg("search index unavailable, using catalog filter")
	}

	p := catalog.Params{
		Name:     q,
		MinPrice: catalog.DefaultMinPrice,
		MaxPrice: catalog.DefaultMaxPrice,
		SortBy:   "rating",
		Page:     1,
		Limit:    limit,
	}
	page, err := s.Catalog(ctx, p)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// Reindex pushes every product into the search index in batches.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	if s.search == nil {
		return 0, errors.New("search index not configured")
	}

	var products []model.Product
	total := 0
	err := s.db.WithContext(ctx).Preload("Sale").FindInBatches(&products, 200, func(tx *gorm.DB, _ int) error {
		docs := make([]search.ProductDoc, 0, len(products))
		for i := range products {
			docs = append(docs, Doc(&products[i]))
		}
		if err := s.search.Index(ctx, docs...); err != nil {
			return err
		}
		total += len(docs)
		return nil
	}).Error
	if err != nil {
		return total, fmt.Errorf("reindex: %w", err)
	}
	log.Info().Int("products", total).Msg("search index rebuilt")
	return total, nil
}

// IndexProducts refreshes the index entries of the given products. Failures
// are logged; the database stays the source of truth.
func (s *Service) IndexProducts(ctx context.Context, ids ...uint) {
	if s.search == nil || len(ids) == 0 {
		return
	}
	var products []model.Product
	if err := s.db.WithContext(ctx).Preload("Sale").Where("id IN ?", ids).Find(&products).Error; err != nil {
		log.Warn().Err(err).Msg("load products for indexing")
		return
	}
	docs := make([]search.ProductDoc, 0, len(products))
	for i := range products {
		docs = append(docs, Doc(&products[i]))
	}
	if err := s.search.Index(ctx, docs...); err != nil {
		log.Warn().Err(err).Uints("ids", ids).Msg("index products")
	}
}

// Doc projects a product for the search index.
func Doc(p *model.Product) search.ProductDoc {
	return search.ProductDoc{
		ID:           p.ID,
		Title:        p.Title,
		Description:  p.Description,
		Price:        p.EffectivePrice().InexactFloat64(),
		Count:        p.Count,
		CategoryID:   p.CategoryID,
		FreeDelivery: p.FreeDelivery,
	}
}
