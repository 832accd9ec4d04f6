// Package review stores product reviews and keeps product ratings current.
package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"go-storefront/apps/product"
	productmodel "go-storefront/apps/product/model"
	usermodel "go-storefront/apps/user/model"
	"go-storefront/pkg/response"
	"go-storefront/pkg/tracer"
	"go-storefront/pkg/validate"
)

var ErrProductNotFound = errors.New("product not found")

// ValidationError carries field-keyed messages for the client.
type ValidationError struct {
	Fields response.FieldErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid review: %d field(s)", len(e.Fields))
}

// Input is the review form. Author and email are taken from the profile
// when the reviewer is signed in.
type Input struct {
	Author string `json:"author" validate:"max=128"`
	Email  string `json:"email" validate:"omitempty,email,max=254"`
	Text   string `json:"text" validate:"required,max=500"`
	Rate   int    `json:"rate" validate:"required,gte=1,lte=5"`
}

// ListResult is one page of a product's reviews.
type ListResult struct {
	Items       []product.ReviewView `json:"items"`
	Total       int64                `json:"total"`
	AverageRate decimal.Decimal      `json:"averageRate"`
}

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Create stores a review for productID, recomputes the product rating and
// returns every review of the product, oldest first.
func (s *Service) Create(ctx context.Context, productID uint, profileID *uint, in Input) (_ []product.ReviewView, err error) {
	ctx, span := tracer.Start(ctx, "review.Create")
	defer func() { tracer.End(span, err) }()

	db := s.db.WithContext(ctx)
	if profileID != nil {
		var p usermodel.Profile
		if err := db.Preload("User").First(&p, *profileID).Error; err != nil {
			return nil, fmt.Errorf("load reviewer profile: %w", err)
		}
		in.Author = p.FullName
		if p.User != nil {
			in.Email = p.User.Email
		}
	}

	fields := validate.Struct(in)
	if fields == nil {
		fields = response.FieldErrors{}
	}
	if in.Author == "" {
		fields.Add("author", "This field is required.")
	}
	if in.Email == "" {
		fields.Add("email", "This field is required.")
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	var reviews []productmodel.Review
	err = db.Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&productmodel.Product{}).Where("id = ?", productID).Count(&exists).Error; err != nil {
			return fmt.Errorf("lookup product %d: %w", productID, err)
		}
		if exists == 0 {
			return ErrProductNotFound
		}

		r := productmodel.Review{
			ProductID: productID,
			ProfileID: profileID,
			Author:    in.Author,
			Email:     in.Email,
			Text:      in.Text,
			Rate:      in.Rate,
		}
		if err := tx.Create(&r).Error; err != nil {
			return fmt.Errorf("create review: %w", err)
		}

		if err := tx.Where("product_id = ?", productID).Order("date ASC, id ASC").Find(&reviews).Error; err != nil {
			return fmt.Errorf("list reviews: %w", err)
		}
		rating := Rating(reviews)
		if err := tx.Model(&productmodel.Product{}).Where("id = ?", productID).UpdateColumn("rating", rating).Error; err != nil {
			return fmt.Errorf("update rating: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Uint("product_id", productID).Int("reviews", len(reviews)).Msg("review created")
	return product.ReviewViews(reviews), nil
}

// List pages through a product's reviews, newest first.
func (s *Service) List(ctx context.Context, productID uint, page, limit int) (*ListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	db := s.db.WithContext(ctx)

	var p productmodel.Product
	if err := db.Select("id", "rating").First(&p, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("load product %d: %w", productID, err)
	}

	query := db.Model(&productmodel.Review{}).Where("product_id = ?", productID).Session(&gorm.Session{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count reviews: %w", err)
	}

	var reviews []productmodel.Review
	err := query.Order("date DESC, id DESC").Offset((page - 1) * limit).Limit(limit).Find(&reviews).Error
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return &ListResult{Items: product.ReviewViews(reviews), Total: total, AverageRate: p.Rating}, nil
}

// Rating is the mean rate rounded to one decimal place, zero without reviews.
func Rating(reviews []productmodel.Review) decimal.Decimal {
	if len(reviews) == 0 {
		return decimal.Zero
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rate
	}
	return decimal.NewFromInt(int64(sum)).DivRound(decimal.NewFromInt(int64(len(reviews))), 1)
}
