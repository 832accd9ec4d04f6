package product

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"go-storefront/apps/product/model"
)

type Image struct {
	Src string `json:"src"`
	Alt string `json:"alt"`
}

// ProductShort is the listing representation of a product. Price is the
// effective price.
type ProductShort struct {
	ID           uint            `json:"id"`
	Category     *uint           `json:"category"`
	Price        decimal.Decimal `json:"price"`
	Count        int             `json:"count"`
	Date         time.Time       `json:"date"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	FreeDelivery bool            `json:"freeDelivery"`
	Images       []Image         `json:"images"`
	Tags         []model.Tag     `json:"tags"`
	Reviews      []uint          `json:"reviews"`
	Rating       decimal.Decimal `json:"rating"`
}

type Specification struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type ReviewView struct {
	Author string    `json:"author"`
	Email  string    `json:"email"`
	Text   string    `json:"text"`
	Rate   int       `json:"rate"`
	Date   time.Time `json:"date"`
}

// ProductFull is the detail representation; its reviews are inlined.
type ProductFull struct {
	ProductShort
	FullDescription string          `json:"fullDescription"`
	Specifications  []Specification `json:"specifications"`
	Reviews         []ReviewView    `json:"reviews"`
}

type SaleView struct {
	ID        uint            `json:"id"`
	SalePrice decimal.Decimal `json:"salePrice"`
	DateFrom  string          `json:"dateFrom"`
	DateTo    string          `json:"dateTo"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Images    []Image         `json:"images"`
}

type Subcategory struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
	Image *Image `json:"image"`
}

type CategoryView struct {
	ID            uint          `json:"id"`
	Title         string        `json:"title"`
	Image         *Image        `json:"image"`
	Subcategories []Subcategory `json:"subcategories"`
}

// Page is a paginated listing.
type Page[T any] struct {
	Items       []T `json:"items"`
	CurrentPage int `json:"currentPage"`
	LastPage    int `json:"lastPage"`
}

// MediaURL joins a stored path onto the public media prefix.
func MediaURL(prefix, src string) string {
	if src == "" || strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return src
	}
	return strings.TrimRight(prefix, "/") + "/" + strings.TrimLeft(src, "/")
}

func (s *Service) images(in []model.ProductImage) []Image {
	out := make([]Image, 0, len(in))
	for _, img := range in {
		out = append(out, Image{Src: MediaURL(s.mediaURL, img.Src), Alt: img.Alt})
	}
	return out
}

// Short converts a product loaded with Sale, Images, Tags and Reviews.
func (s *Service) Short(p *model.Product) ProductShort {
	reviews := make([]uint, 0, len(p.Reviews))
	for _, r := range p.Reviews {
		reviews = append(reviews, r.ID)
	}
	tags := p.Tags
	if tags == nil {
		tags = []model.Tag{}
	}
	return ProductShort{
		ID:           p.ID,
		Category:     p.CategoryID,
		Price:        p.EffectivePrice(),
		Count:        p.Count,
		Date:         p.Date,
		Title:        p.Title,
		Description:  p.Description,
		FreeDelivery: p.FreeDelivery,
		Images:       s.images(p.Images),
		Tags:         tags,
		Reviews:      reviews,
		Rating:       p.Rating,
	}
}

func (s *Service) full(p *model.Product) *ProductFull {
	specs := make([]Specification, 0, len(p.Specifications))
	for _, sp := range p.Specifications {
		specs = append(specs, Specification{Name: sp.Name, Value: sp.Value})
	}
	return &ProductFull{
		ProductShort:    s.Short(p),
		FullDescription: p.FullDescription,
		Specifications:  specs,
		Reviews:         ReviewViews(p.Reviews),
	}
}

// ReviewViews converts reviews in the given order.
func ReviewViews(in []model.Review) []ReviewView {
	out := make([]ReviewView, 0, len(in))
	for _, r := range in {
		out = append(out, ReviewView{Author: r.Author, Email: r.Email, Text: r.Text, Rate: r.Rate, Date: r.Date})
	}
	return out
}

func (s *Service) categoryImage(img *model.CategoryImage) *Image {
	if img == nil {
		return nil
	}
	return &Image{Src: MediaURL(s.mediaURL, img.Src), Alt: img.Alt}
}
