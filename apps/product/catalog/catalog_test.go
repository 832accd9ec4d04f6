package catalog

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"go-storefront/apps/product/model"
	"go-storefront/pkg/testutil"
)

func titles(page *Page) []string {
	out := make([]string, len(page.Items))
	for i, p := range page.Items {
		out[i] = p.Title
	}
	return out
}

func list(t *testing.T, e *Engine, query string) *Page {
	t.Helper()
	q, err := url.ParseQuery(query)
	require.NoError(t, err)
	p, err := ParseParams(q)
	require.NoError(t, err)
	page, err := e.List(context.Background(), p)
	require.NoError(t, err)
	return page
}

func seed(t *testing.T, db *gorm.DB) {
	t.Helper()
	parent := &model.Category{Title: "Electronics"}
	require.NoError(t, db.Create(parent).Error)
	child := &model.Category{Title: "Phones", ParentID: &parent.ID}
	require.NoError(t, db.Create(child).Error)
	other := &model.Category{Title: "Books"}
	require.NoError(t, db.Create(other).Error)

	red := model.Tag{Name: "red"}
	big := model.Tag{Name: "big"}
	require.NoError(t, db.Create(&red).Error)
	require.NoError(t, db.Create(&big).Error)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	products := []*model.Product{
		{Title: "Alpha phone", Price: testutil.Dec(t, "300"), Count: 5, CategoryID: &child.ID, Tags: []model.Tag{red, big}, Date: base},
		{Title: "Beta TV", Price: testutil.Dec(t, "900"), Count: 0, CategoryID: &parent.ID, Tags: []model.Tag{red}, FreeDelivery: true, Date: base.Add(time.Hour)},
		{Title: "Gamma novel", Price: testutil.Dec(t, "20"), Count: 3, CategoryID: &other.ID, Tags: []model.Tag{big}, Date: base.Add(2 * time.Hour)},
		{Title: "Delta 100%_cotton", Price: testutil.Dec(t, "50"), Count: 1, Date: base.Add(3 * time.Hour)},
	}
	for _, p := range products {
		require.NoError(t, db.Create(p).Error)
	}
	// Beta is on sale below every other product.
	testutil.Sale(t, db, products[1], "10")

	for _, r := range []model.Review{
		{ProductID: products[2].ID, Author: "a", Email: "a@x.io", Text: "ok", Rate: 4},
		{ProductID: products[2].ID, Author: "b", Email: "b@x.io", Text: "ok", Rate: 5},
		{ProductID: products[0].ID, Author: "c", Email: "c@x.io", Text: "ok", Rate: 3},
	} {
		require.NoError(t, db.Create(&r).Error)
	}
}

func TestListDefaultsToNewestFirst(t *testing.T) {
	db := testutil.DB(t)
	seed(t, db)
	e := New(db)

	page := list(t, e, "")
	assert.Equal(t, []string{"Delta 100%_cotton", "Gamma novel", "Beta TV", "Alpha phone"}, titles(page))
	assert.Equal(t, 1, page.CurrentPage)
	assert.Equal(t, 1, page.LastPage)
	assert.EqualValues(t, 4, page.Total)
	require.NotNil(t, page.Items[2].Sale)
	assert.Len(t, page.Items[0].Images, 1, "default image is attached")
}

func TestListFilters(t *testing.T) {
	db := testutil.DB(t)
	seed(t, db)
	e := New(db)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"name is case insensitive", "filter[name]=PHONE", []string{"Alpha phone"}},
		{"name wildcards are literal", "filter[name]=0%25_c", []string{"Delta 100%_cotton"}},
		{"percent alone matches only literal percent", "filter[name]=%25", []string{"Delta 100%_cotton"}},
		{"price bounds use list price", "filter[minPrice]=40&filter[maxPrice]=900", []string{"Delta 100%_cotton", "Beta TV", "Alpha phone"}},
		{"default max price", "filter[minPrice]=850", []string{"Beta TV"}},
		{"free delivery", "filter[freeDelivery]=true", []string{"Beta TV"}},
		{"available", "filter[available]=true", []string{"Delta 100%_cotton", "Gamma novel", "Alpha phone"}},
		{"parent category includes children", "category=1", []string{"Beta TV", "Alpha phone"}},
		{"child category", "category=2", []string{"Alpha phone"}},
		{"single tag", "tags[]=1", []string{"Beta TV", "Alpha phone"}},
		{"tags are conjunctive", "tags[]=1&tags[]=2", []string{"Alpha phone"}},
		{"combined", "tags[]=1&filter[available]=true&category=1", []string{"Alpha phone"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, titles(list(t, e, tt.query)))
		})
	}
}

func TestListSorting(t *testing.T) {
	db := testutil.DB(t)
	seed(t, db)
	e := New(db)

	tests := []struct {
		query string
		want  []string
	}{
		{"sort=price&sortType=inc", []string{"Beta TV", "Gamma novel", "Delta 100%_cotton", "Alpha phone"}},
		{"sort=price&sortType=dec", []string{"Alpha phone", "Delta 100%_cotton", "Gamma novel", "Beta TV"}},
		{"sort=title&sortType=inc", []string{"Alpha phone", "Beta TV", "Delta 100%_cotton", "Gamma novel"}},
		{"sort=count&sortType=dec", []string{"Alpha phone", "Gamma novel", "Delta 100%_cotton", "Beta TV"}},
		{"sort=reviews&sortType=dec", []string{"Gamma novel", "Alpha phone", "Beta TV", "Delta 100%_cotton"}},
		{"sort=date&sortType=inc", []string{"Alpha phone", "Beta TV", "Gamma novel", "Delta 100%_cotton"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, titles(list(t, e, tt.query)))
		})
	}
}

func TestListPagination(t *testing.T) {
	db := testutil.DB(t)
	seed(t, db)
	e := New(db)

	page := list(t, e, "limit=3&currentPage=2")
	assert.Equal(t, []string{"Alpha phone"}, titles(page))
	assert.Equal(t, 2, page.CurrentPage)
	assert.Equal(t, 2, page.LastPage)

	q, _ := url.ParseQuery("limit=3&currentPage=3")
	p, err := ParseParams(q)
	require.NoError(t, err)
	_, err = e.List(context.Background(), p)
	assert.ErrorIs(t, err, ErrPageNotFound)
}

func TestListEmptyCatalog(t *testing.T) {
	e := New(testutil.DB(t))
	page := list(t, e, "")
	assert.Empty(t, page.Items)
	assert.Equal(t, 1, page.LastPage)
}

func TestListUnknownTag(t *testing.T) {
	db := testutil.DB(t)
	seed(t, db)
	q, _ := url.ParseQuery("tags[]=1&tags[]=99")
	p, err := ParseParams(q)
	require.NoError(t, err)

	_, err = New(db).List(context.Background(), p)
	var invalid *InvalidParamsError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Fields, "tags")
}

func TestParseParamsInvalid(t *testing.T) {
	q, _ := url.ParseQuery("filter[minPrice]=abc&filter[available]=yes&sort=color&currentPage=0&limit=-1&category=x&tags[]=y")
	_, err := ParseParams(q)

	var invalid *InvalidParamsError
	require.ErrorAs(t, err, &invalid)
	for _, field := range []string{"filter[minPrice]", "filter[available]", "sort", "currentPage", "limit", "category", "tags"} {
		assert.Contains(t, invalid.Fields, field)
	}
}

func TestParseParamsDefaults(t *testing.T) {
	p, err := ParseParams(url.Values{"limit": {"1000"}, "sortType": {"inc"}, "tags[]": {"2", "2"}})
	require.NoError(t, err)
	assert.Equal(t, "date", p.SortBy)
	assert.True(t, p.Ascending)
	assert.Equal(t, MaxLimit, p.Limit)
	assert.Equal(t, []uint{2}, p.TagIDs)
	assert.True(t, p.MaxPrice.Equal(DefaultMaxPrice))

	_, err = ParseParams(url.Values{"filter[minPrice]": {"10"}, "filter[maxPrice]": {"5"}})
	assert.Error(t, err)
}
