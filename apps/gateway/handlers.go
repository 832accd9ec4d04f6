package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-storefront/apps/admin"
	"go-storefront/apps/gateway/middleware"
	"go-storefront/apps/order"
	"go-storefront/apps/payment"
	"go-storefront/apps/product/catalog"
	"go-storefront/apps/review"
	"go-storefront/apps/user"
	"go-storefront/pkg/response"
)

// --- 账户 ---

func (s *server) signUp(c *gin.Context) {
	var req user.SignUpInput
	if !bind(c, &req) {
		return
	}
	token, err := s.users.SignUp(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"token": token})
}

func (s *server) signIn(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !bind(c, &req) {
		return
	}
	token, err := s.users.SignIn(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"token": token})
}

func (s *server) signOut(c *gin.Context) {
	if err := s.users.SignOut(c.Request.Context(), middleware.Claims(c)); err != nil {
		fail(c, err)
		return
	}
	response.OK(c, gin.H{})
}

func (s *server) profile(c *gin.Context) {
	uid, _ := middleware.UserID(c)
	v, err := s.users.Profile(c.Request.Context(), uid)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, v)
}

func (s *server) updateProfile(c *gin.Context) {
	var req user.ProfileInput
	if !bind(c, &req) {
		return
	}
	uid, _ := middleware.UserID(c)
	v, err := s.users.UpdateProfile(c.Request.Context(), uid, req)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, v)
}

func (s *server) changePassword(c *gin.Context) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !bind(c, &req) {
		return
	}
	uid, _ := middleware.UserID(c)
	if err := s.users.ChangePassword(c.Request.Context(), uid, req.CurrentPassword, req.NewPassword); err != nil {
		fail(c, err)
		return
	}
	response.OK(c, gin.H{})
}

func (s *server) replaceAvatar(c *gin.Context) {
	fh, err := c.FormFile("avatar")
	if err != nil {
		response.Invalid(c, response.FieldErrors{"avatar": {"No file was submitted."}})
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer f.Close()

	uid, _ := middleware.UserID(c)
	v, err := s.users.ReplaceAvatar(c.Request.Context(), uid, fh.Filename, f)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, v)
}

// --- 商品 ---

func (s *server) catalog(c *gin.Context) {
	params, err := catalog.ParseParams(c.Request.URL.Query())
	if err != nil {
		fail(c, err)
		return
	}
	page, err := s.products.Catalog(c.Request.Context(), params)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, page)
}

func (s *server) product(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	p, err := s.products.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, p)
}

func (s *server) popular(c *gin.Context) {
	items, err := s.products.Popular(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, items)
}

func (s *server) limited(c *gin.Context) {
	items, err := s.products.Limited(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, items)
}

func (s *server) banners(c *gin.Context) {
	items, err := s.products.Banners(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, items)
}

func (s *server) sales(c *gin.Context) {
	page, ok := intQuery(c, "currentPage", 1)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", catalog.DefaultLimit)
	if !ok {
		return
	}
	out, err := s.products.Sales(c.Request.Context(), page, limit)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, out)
}

func (s *server) tags(c *gin.Context) {
	tags, err := s.products.Tags(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, tags)
}

func (s *server) categories(c *gin.Context) {
	cats, err := s.products.Categories(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, cats)
}

func (s *server) search(c *gin.Context) {
	limit, ok := intQuery(c, "limit", catalog.DefaultLimit)
	if !ok {
		return
	}
	items, err := s.products.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, items)
}

// --- 评论 ---

func (s *server) listReviews(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	page, ok := intQuery(c, "currentPage", 1)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", catalog.DefaultLimit)
	if !ok {
		return
	}
	out, err := s.reviews.List(c.Request.Context(), id, page, limit)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, out)
}

func (s *server) createReview(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req review.Input
	if !bind(c, &req) {
		return
	}

	var profileID *uint
	if uid, ok := middleware.UserID(c); ok {
		pid, err := s.users.ProfileID(c.Request.Context(), uid)
		if err != nil {
			fail(c, err)
			return
		}
		profileID = &pid
	}

	out, err := s.reviews.Create(c.Request.Context(), id, profileID, req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, out)
}

// --- 购物车 ---

type basketLine struct {
	ID    uint `json:"id" form:"id"`
	Count *int `json:"count" form:"count"`
}

// count defaults to one unit when the client sends none.
func (l basketLine) count() int {
	if l.Count == nil {
		return 1
	}
	return *l.Count
}

func (s *server) basketContents(c *gin.Context) {
	items, err := s.basket.Contents(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, items)
}

func (s *server) basketAdd(c *gin.Context) {
	var req basketLine
	if err := c.ShouldBind(&req); err != nil {
		response.Invalid(c, response.FieldErrors{response.NonFieldErrors: {"Invalid request body: " + err.Error()}})
		return
	}
	items, err := s.basket.Add(c.Request.Context(), middleware.SessionID(c), req.ID, req.count())
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, items)
}

func (s *server) basketRemove(c *gin.Context) {
	var req basketLine
	if err := c.ShouldBind(&req); err != nil {
		response.Invalid(c, response.FieldErrors{response.NonFieldErrors: {"Invalid request body: " + err.Error()}})
		return
	}
	items, err := s.basket.Remove(c.Request.Context(), middleware.SessionID(c), req.ID, req.count())
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, items)
}

// --- 订单 ---

// profileID resolves the caller's profile or writes the error response.
func (s *server) profileID(c *gin.Context) (uint, bool) {
	uid, _ := middleware.UserID(c)
	pid, err := s.users.ProfileID(c.Request.Context(), uid)
	if err != nil {
		fail(c, err)
		return 0, false
	}
	return pid, true
}

func (s *server) listOrders(c *gin.Context) {
	pid, ok := s.profileID(c)
	if !ok {
		return
	}
	orders, err := s.orders.List(c.Request.Context(), pid)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, orders)
}

func (s *server) checkout(c *gin.Context) {
	var lines []order.Line
	if !bind(c, &lines) {
		return
	}
	pid, ok := s.profileID(c)
	if !ok {
		return
	}
	id, err := s.orders.Checkout(c.Request.Context(), pid, middleware.SessionID(c), lines)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"orderId": id})
}

func (s *server) getOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	pid, ok := s.profileID(c)
	if !ok {
		return
	}
	o, err := s.orders.Get(c.Request.Context(), pid, id)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, o)
}

func (s *server) updateOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var patch order.Patch
	if !bind(c, &patch) {
		return
	}
	pid, ok := s.profileID(c)
	if !ok {
		return
	}
	orderID, err := s.orders.Update(c.Request.Context(), pid, id, patch)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, gin.H{"orderId": orderID})
}

func (s *server) pay(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var card payment.Card
	if !bind(c, &card) {
		return
	}
	pid, ok := s.profileID(c)
	if !ok {
		return
	}
	if err := s.payments.Pay(c.Request.Context(), pid, id, card); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// --- 管理后台 ---

func (s *server) adminStats(c *gin.Context) {
	st, err := s.admin.Stats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, st)
}

func (s *server) adminProducts(c *gin.Context) {
	page, ok := intQuery(c, "page", 1)
	if !ok {
		return
	}
	size, ok := intQuery(c, "page_size", catalog.DefaultLimit)
	if !ok {
		return
	}
	list, err := s.admin.Products(c.Request.Context(), page, size)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, list)
}

func (s *server) adminUsers(c *gin.Context) {
	page, ok := intQuery(c, "page", 1)
	if !ok {
		return
	}
	size, ok := intQuery(c, "page_size", catalog.DefaultLimit)
	if !ok {
		return
	}
	list, err := s.admin.Users(c.Request.Context(), page, size)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, list)
}

func (s *server) adminUpdateProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var patch admin.ProductPatch
	if !bind(c, &patch) {
		return
	}
	if err := s.admin.UpdateProduct(c.Request.Context(), id, patch); err != nil {
		fail(c, err)
		return
	}
	response.OK(c, gin.H{"id": id})
}

func (s *server) adminPutSale(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in admin.SaleInput
	if !bind(c, &in) {
		return
	}
	if err := s.admin.PutSale(c.Request.Context(), id, in); err != nil {
		fail(c, err)
		return
	}
	response.OK(c, gin.H{"id": id})
}

func (s *server) adminDeleteSale(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := s.admin.DeleteSale(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) adminReindex(c *gin.Context) {
	n, err := s.admin.Reindex(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, gin.H{"indexed": n})
}
