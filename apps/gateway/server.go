package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go-storefront/apps/admin"
	"go-storefront/apps/cart"
	"go-storefront/apps/order"
	"go-storefront/apps/payment"
	"go-storefront/apps/product"
	"go-storefront/apps/product/catalog"
	"go-storefront/apps/review"
	"go-storefront/apps/user"
	"go-storefront/pkg/cache"
	"go-storefront/pkg/jwt"
	"go-storefront/pkg/mq"
	"go-storefront/pkg/response"
)

// deps are the backends the gateway is built from. Search may be nil.
type deps struct {
	DB            *gorm.DB
	Redis         *redis.Client
	Tokens        *jwt.Manager
	Events        mq.Publisher
	Search        product.Searcher
	Media         user.MediaStorage
	MediaRoot     string
	MediaURL      string
	CacheTTL      time.Duration
	SecureCookies bool
}

type server struct {
	deps
	users    *user.Service
	products *product.Service
	reviews  *review.Service
	basket   *cart.Service
	orders   *order.Service
	payments *payment.Service
	admin    *admin.Service
}

func newServer(d deps) *server {
	if d.CacheTTL <= 0 {
		d.CacheTTL = 10 * time.Minute
	}
	products := product.NewService(d.DB, cache.New(d.Redis, "catalog:", d.CacheTTL), d.Search, d.MediaURL)
	store := cart.NewStore(d.Redis, cart.DefaultTTL)
	return &server{
		deps:     d,
		users:    user.NewService(d.DB, d.Tokens, d.Redis, d.Media, d.MediaURL),
		products: products,
		reviews:  review.NewService(d.DB),
		basket:   cart.NewService(store, products),
		orders:   order.NewService(d.DB, store, products, d.Events),
		payments: payment.NewService(d.DB, d.Events),
		admin:    admin.NewService(d.DB, products),
	}
}

// fail maps a service error onto the HTTP response.
func fail(c *gin.Context, err error) {
	var (
		orderInvalid   *order.ValidationError
		reviewInvalid  *review.ValidationError
		userInvalid    *user.ValidationError
		adminInvalid   *admin.ValidationError
		catalogInvalid *catalog.InvalidParamsError
		stock          *order.StockError
	)
	switch {
	case errors.As(err, &orderInvalid):
		response.Invalid(c, orderInvalid.Fields)
	case errors.As(err, &reviewInvalid):
		response.Invalid(c, reviewInvalid.Fields)
	case errors.As(err, &userInvalid):
		response.Invalid(c, userInvalid.Fields)
	case errors.As(err, &adminInvalid):
		response.Invalid(c, adminInvalid.Fields)
	case errors.As(err, &catalogInvalid):
		response.Invalid(c, catalogInvalid.Fields)
	case errors.As(err, &stock):
		response.Error(c, http.StatusConflict, stock.Error())
	case errors.Is(err, payment.ErrAlreadyPaid),
		errors.Is(err, order.ErrLocked):
		response.Error(c, http.StatusConflict, err.Error())
	case errors.Is(err, cart.ErrInvalidCount):
		response.Invalid(c, response.FieldErrors{"count": {"Ensure this value is greater than or equal to 1."}})
	case errors.Is(err, user.ErrInvalidCredentials):
		response.Error(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, catalog.ErrPageNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, review.ErrProductNotFound),
		errors.Is(err, cart.ErrUnknownProduct),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, user.ErrNotFound),
		errors.Is(err, admin.ErrNotFound):
		response.Error(c, http.StatusNotFound, err.Error())
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "internal error")
	}
}

// idParam parses a positive numeric path parameter, answering 404 otherwise.
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, http.StatusNotFound, "not found")
		return 0, false
	}
	return uint(id), true
}

// intQuery reads a positive integer query value, def when absent.
func intQuery(c *gin.Context, name string, def int) (int, bool) {
	v := c.Query(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		response.Invalid(c, response.FieldErrors{name: {"A valid positive integer is required."}})
		return 0, false
	}
	return n, true
}

// bind decodes the request body into dst or writes a 400.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Invalid(c, response.FieldErrors{response.NonFieldErrors: {"Invalid request body: " + err.Error()}})
		return false
	}
	return true
}
