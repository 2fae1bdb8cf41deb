package database

import (
	"fmt"
	"sync/atomic"
	"testing"

	"gorm.io/gorm"
)

var memSeq atomic.Int64

// OpenTest returns a migrated in-memory sqlite database private to the test.
// A single connection serializes transactions the same way the file DSN does in production.
func OpenTest(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:storefront_test_%d?mode=memory&cache=shared&_txlock=immediate&_foreign_keys=1", memSeq.Add(1))
	db, err := Open("sqlite", dsn, "silent")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
