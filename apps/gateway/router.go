package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"go-storefront/apps/cart"
	"go-storefront/apps/gateway/middleware"
	usermodel "go-storefront/apps/user/model"
	"go-storefront/pkg/response"
)

func (s *server) router(serviceName string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(), otelgin.Middleware(serviceName))

	r.GET("/healthz", s.healthz)
	if s.MediaRoot != "" {
		r.Static(strings.TrimRight(s.MediaURL, "/"), s.MediaRoot)
	}

	auth := middleware.Auth(s.Tokens, s.users)
	optionalAuth := middleware.OptionalAuth(s.Tokens, s.users)
	session := middleware.BasketSession(int(cart.DefaultTTL/time.Second), s.SecureCookies)

	v1 := r.Group("/api/v1")

	// 公开接口
	{
		v1.POST("/sign-up", s.signUp)
		v1.POST("/sign-in", s.signIn)

		v1.GET("/catalog", s.catalog)
		v1.GET("/products/popular", s.popular)
		v1.GET("/products/limited", s.limited)
		v1.GET("/products/:id", s.product)
		v1.GET("/products/:id/reviews", s.listReviews)
		v1.POST("/products/:id/reviews", optionalAuth, s.createReview)
		v1.GET("/banners", s.banners)
		v1.GET("/sales", s.sales)
		v1.GET("/tags", s.tags)
		v1.GET("/categories", s.categories)
		v1.GET("/search", s.search)
	}

	// 购物车: anonymous, keyed by the session cookie
	basket := v1.Group("/basket", session)
	{
		basket.GET("", s.basketContents)
		basket.POST("", s.basketAdd)
		basket.DELETE("", s.basketRemove)
	}

	// 受保护接口
	authed := v1.Group("/", auth)
	{
		authed.POST("/sign-out", s.signOut)
		authed.GET("/profile", s.profile)
		authed.POST("/profile", s.updateProfile)
		authed.POST("/profile/password", s.changePassword)
		authed.POST("/profile/avatar", s.replaceAvatar)

		authed.GET("/orders", s.listOrders)
		authed.POST("/orders", session, middleware.RateLimit(middleware.ResCheckout), s.checkout)
		authed.GET("/orders/:id", s.getOrder)
		authed.PATCH("/orders/:id", s.updateOrder)
		authed.POST("/orders/:id", s.updateOrder)

		authed.POST("/payment/:id", middleware.RateLimit(middleware.ResPayment), s.pay)
		authed.PATCH("/payment/:id", middleware.RateLimit(middleware.ResPayment), s.pay)
	}

	// 管理后台
	adm := v1.Group("/admin", auth, middleware.RequireRole(usermodel.RoleAdmin))
	{
		adm.GET("/stats", s.adminStats)
		adm.GET("/products", s.adminProducts)
		adm.PATCH("/products/:id", s.adminUpdateProduct)
		adm.PUT("/products/:id/sale", s.adminPutSale)
		adm.DELETE("/products/:id/sale", s.adminDeleteSale)
		adm.GET("/users", s.adminUsers)
		adm.POST("/search/reindex", s.adminReindex)
	}

	return r
}

func (s *server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"database": "ok", "redis": "ok"}
	healthy := true
	if sqlDB, err := s.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		checks["database"] = "unavailable"
		healthy = false
	}
	if err := s.Redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = "unavailable"
		healthy = false
	}
	if !healthy {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, checks)
		return
	}
	response.OK(c, checks)
}
