package cart

import (
	"context"
	"errors"
	"slices"

	"go-storefront/apps/product"
)

var ErrUnknownProduct = errors.New("product does not exist")

// ProductReader loads product views by id.
type ProductReader interface {
	ShortByIDs(ctx context.Context, ids []uint) (map[uint]product.ProductShort, error)
}

// Service pairs the basket with the catalog.
type Service struct {
	store    *Store
	products ProductReader
}

func NewService(store *Store, products ProductReader) *Service {
	return &Service{store: store, products: products}
}

// Contents lists basket products by id with count set to the basket
// quantity. Products deleted since they were added are skipped.
func (s *Service) Contents(ctx context.Context, sid string) ([]product.ProductShort, error) {
	lines, err := s.store.Get(ctx, sid)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(lines))
	for id := range lines {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	byID, err := s.products.ShortByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]product.ProductShort, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			continue
		}
		p.Count = lines[id]
		out = append(out, p)
	}
	return out, nil
}

// Add puts count of productID in the basket and returns the new contents.
func (s *Service) Add(ctx context.Context, sid string, productID uint, count int) ([]product.ProductShort, error) {
	if count < 1 {
		return nil, ErrInvalidCount
	}
	found, err := s.products.ShortByIDs(ctx, []uint{productID})
	if err != nil {
		return nil, err
	}
	if _, ok := found[productID]; !ok {
		return nil, ErrUnknownProduct
	}
	if err := s.store.Add(ctx, sid, productID, count); err != nil {
		return nil, err
	}
	return s.Contents(ctx, sid)
}

// Remove takes count of productID out of the basket and returns the new
// contents.
func (s *Service) Remove(ctx context.Context, sid string, productID uint, count int) ([]product.ProductShort, error) {
	if err := s.store.Remove(ctx, sid, productID, count); err != nil {
		return nil, err
	}
	return s.Contents(ctx, sid)
}
