package product

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-storefront/apps/product/catalog"
	"go-storefront/apps/product/model"
	"go-storefront/pkg/cache"
	"go-storefront/pkg/search"
	"go-storefront/pkg/testutil"
)

type fakeSearcher struct {
	ids     []uint
	err     error
	indexed []search.ProductDoc
}

func (f *fakeSearcher) Search(_ context.Context, _ string, _ int) ([]uint, error) {
	return f.ids, f.err
}

func (f *fakeSearcher) Index(_ context.Context, docs ...search.ProductDoc) error {
	f.indexed = append(f.indexed, docs...)
	return nil
}

func TestGetFullProduct(t *testing.T) {
	db := testutil.DB(t)
	p := &model.Product{
		Title:           "Kettle",
		Price:           testutil.Dec(t, "40"),
		Count:           2,
		FullDescription: "Boils water",
		Specifications:  []model.Specification{{Name: "Volume", Value: "1.7l"}},
	}
	require.NoError(t, db.Create(p).Error)
	testutil.Sale(t, db, p, "35.5")
	require.NoError(t, db.Create(&model.Review{ProductID: p.ID, Author: "Ann", Email: "ann@x.io", Text: "Good", Rate: 5}).Error)

	svc := NewService(db, nil, nil, "/media/")
	got, err := svc.Get(context.Background(), p.ID)
	require.NoError(t, err)

	assert.True(t, got.Price.Equal(testutil.Dec(t, "35.5")), "effective price is the sale price")
	assert.Equal(t, "Boils water", got.FullDescription)
	assert.Equal(t, []Specification{{Name: "Volume", Value: "1.7l"}}, got.Specifications)
	require.Len(t, got.Reviews, 1)
	assert.Equal(t, "Ann", got.Reviews[0].Author)
	require.Len(t, got.Images, 1)
	assert.Equal(t, "/media/"+model.DefaultProductImage, got.Images[0].Src)

	_, err = svc.Get(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestShowcases(t *testing.T) {
	db := testutil.DB(t)
	a := testutil.Product(t, db, "A", "10", 9)
	b := testutil.Product(t, db, "B", "10", 1)
	c := testutil.Product(t, db, "C", "10", 4)
	for i := 0; i < 2; i++ {
		require.NoError(t, db.Create(&model.Review{ProductID: c.ID, Author: "x", Email: "x@x.io", Text: "t", Rate: 4}).Error)
	}
	require.NoError(t, db.Create(&model.Review{ProductID: a.ID, Author: "x", Email: "x@x.io", Text: "t", Rate: 4}).Error)

	svc := NewService(db, nil, nil, "/media/")
	ctx := context.Background()

	popular, err := svc.Popular(ctx)
	require.NoError(t, err)
	require.Len(t, popular, 3)
	assert.Equal(t, c.ID, popular[0].ID)
	assert.Equal(t, a.ID, popular[1].ID)
	assert.Len(t, popular[0].Reviews, 2)

	limited, err := svc.Limited(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint{b.ID, c.ID, a.ID}, []uint{limited[0].ID, limited[1].ID, limited[2].ID})

	banners, err := svc.Banners(ctx)
	require.NoError(t, err)
	assert.Len(t, banners, 3)
}

func TestBannersCapped(t *testing.T) {
	db := testutil.DB(t)
	for i := 0; i < 8; i++ {
		testutil.Product(t, db, "P", "1", 1)
	}
	banners, err := NewService(db, nil, nil, "/media/").Banners(context.Background())
	require.NoError(t, err)
	assert.Len(t, banners, showcaseSize)
}

func TestSales(t *testing.T) {
	db := testutil.DB(t)
	cheap := testutil.Product(t, db, "Cheap", "20", 1)
	dear := testutil.Product(t, db, "Dear", "200", 1)
	testutil.Product(t, db, "Full price", "50", 1)
	testutil.Sale(t, db, cheap, "15")
	testutil.Sale(t, db, dear, "150")

	svc := NewService(db, nil, nil, "/media/")
	page, err := svc.Sales(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Dear", page.Items[0].Title)
	assert.True(t, page.Items[0].Price.Equal(testutil.Dec(t, "200")))
	assert.True(t, page.Items[0].SalePrice.Equal(testutil.Dec(t, "150")))
	assert.Len(t, page.Items[0].Images, 1)

	_, err = svc.Sales(context.Background(), 2, 10)
	assert.ErrorIs(t, err, catalog.ErrPageNotFound)
}

func TestCategoriesAreCached(t *testing.T) {
	db := testutil.DB(t)
	rdb, mr := testutil.Redis(t)
	parent := &model.Category{Title: "Home"}
	require.NoError(t, db.Create(parent).Error)
	require.NoError(t, db.Create(&model.Category{Title: "Kitchen", ParentID: &parent.ID}).Error)

	svc := NewService(db, cache.New(rdb, "catalog:", time.Minute), nil, "/media/")
	ctx := context.Background()

	cats, err := svc.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "Home", cats[0].Title)
	require.Len(t, cats[0].Subcategories, 1)
	assert.Equal(t, "Kitchen", cats[0].Subcategories[0].Title)
	require.NotNil(t, cats[0].Image)
	assert.Equal(t, "/media/"+model.DefaultCategoryImage, cats[0].Image.Src)
	assert.True(t, mr.Exists("catalog:categories"))

	// A new category is invisible until the cache is dropped.
	require.NoError(t, db.Create(&model.Category{Title: "Garden"}).Error)
	cats, err = svc.Categories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 1)

	svc.InvalidateCache(ctx)
	cats, err = svc.Categories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 2)
}

func TestTags(t *testing.T) {
	db := testutil.DB(t)
	require.NoError(t, db.Create(&[]model.Tag{{Name: "new"}, {Name: "hot"}}).Error)

	tags, err := NewService(db, nil, nil, "/media/").Tags(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.Tag{{ID: 1, Name: "new"}, {ID: 2, Name: "hot"}}, tags)
}

func TestSearch(t *testing.T) {
	db := testutil.DB(t)
	mouse := testutil.Product(t, db, "Wireless mouse", "25", 3)
	pad := testutil.Product(t, db, "Mouse pad", "5", 3)
	testutil.Product(t, db, "Keyboard", "45", 3)
	ctx := context.Background()

	t.Run("index order is kept", func(t *testing.T) {
		idx := &fakeSearcher{ids: []uint{pad.ID, 999, mouse.ID}}
		got, err := NewService(db, nil, idx, "/media/").Search(ctx, "mouse", 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, pad.ID, got[0].ID)
		assert.Equal(t, mouse.ID, got[1].ID)
	})

	t.Run("falls back to name filter", func(t *testing.T) {
		idx := &fakeSearcher{err: errors.New("connection refused")}
		got, err := NewService(db, nil, idx, "/media/").Search(ctx, "mouse", 10)
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = NewService(db, nil, nil, "/media/").Search(ctx, "keyb", 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Keyboard", got[0].Title)
	})

	t.Run("empty query", func(t *testing.T) {
		got, err := NewService(db, nil, nil, "/media/").Search(ctx, "", 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestReindex(t *testing.T) {
	db := testutil.DB(t)
	p := testutil.Product(t, db, "Lamp", "30", 2)
	testutil.Sale(t, db, p, "20")
	testutil.Product(t, db, "Chair", "80", 0)

	idx := &fakeSearcher{}
	svc := NewService(db, nil, idx, "/media/")
	n, err := svc.Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, idx.indexed, 2)
	assert.Equal(t, "Lamp", idx.indexed[0].Title)
	assert.InDelta(t, 20.0, idx.indexed[0].Price, 0.001)

	_, err = NewService(db, nil, nil, "/media/").Reindex(context.Background())
	assert.Error(t, err)
}

func TestMediaURL(t *testing.T) {
	assert.Equal(t, "/media/a/b.png", MediaURL("/media/", "a/b.png"))
	assert.Equal(t, "/media/a/b.png", MediaURL("/media", "/a/b.png"))
	assert.Equal(t, "https://cdn/x.png", MediaURL("/media/", "https://cdn/x.png"))
}
