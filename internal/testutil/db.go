// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/aniladanir/guest-inbox-webhook/internal/domain"
	"github.com/aniladanir/guest-inbox-webhook/internal/persistant/postgresql"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB returns a migrated in-memory sqlite database private to the test.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := postgresql.Connect(sqlite.Open(dsn), domain.Models(), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("test db handle: %v", err)
	}
	// one connection keeps the in-memory database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { postgresql.Close(db) })

	return db
}

// CreateHost inserts an active host with the given routing identifiers.
func CreateHost(t testing.TB, db *gorm.DB, phoneNumberID, verifyToken string) *domain.Host {
	t.Helper()

	host := &domain.Host{
		Email:         phoneNumberID + "@example.com",
		PropertyID:    "prop-" + phoneNumberID,
		PhoneNumberID: phoneNumberID,
		AccessToken:   "token-" + phoneNumberID,
		VerifyToken:   verifyToken,
		Active:        true,
	}
	if err := db.Create(host).Error; err != nil {
		t.Fatalf("create host: %v", err)
	}
	return host
}

// Count returns the number of rows of model.
func Count(t testing.TB, db *gorm.DB, model any) int64 {
	t.Helper()

	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
