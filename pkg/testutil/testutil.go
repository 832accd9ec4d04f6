// Package testutil builds throwaway SQLite and Redis backends for tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	ordermodel "go-storefront/apps/order/model"
	productmodel "go-storefront/apps/product/model"
	usermodel "go-storefront/apps/user/model"
	"go-storefront/pkg/database"
)

// DB opens a migrated SQLite database in a temp dir.
func DB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"), false)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, usermodel.All(), productmodel.All(), ordermodel.All()))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// Redis starts a miniredis server and returns a client for it.
func Redis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

// Dec parses s or fails the test.
func Dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

// Product inserts a product with the given list price and stock.
func Product(t *testing.T, db *gorm.DB, title, price string, count int) *productmodel.Product {
	t.Helper()
	p := &productmodel.Product{Title: title, Price: Dec(t, price), Count: count}
	require.NoError(t, db.Create(p).Error)
	return p
}

// Sale puts p on sale at price.
func Sale(t *testing.T, db *gorm.DB, p *productmodel.Product, price string) {
	t.Helper()
	require.NoError(t, db.Create(&productmodel.ProductSale{ProductID: p.ID, SalePrice: Dec(t, price)}).Error)
}

// Profile creates a user with a profile and returns both.
func Profile(t *testing.T, db *gorm.DB, username string) (*usermodel.User, *usermodel.Profile) {
	t.Helper()
	u := &usermodel.User{Username: username, Password: "x", Role: usermodel.RoleUser}
	require.NoError(t, db.Create(u).Error)
	p := &usermodel.Profile{UserID: u.ID, FullName: username}
	require.NoError(t, db.Create(p).Error)
	return u, p
}
