// Package testdb opens in-memory sqlite databases for service tests.
// Postgres-only locking clauses are stripped before execution so the
// production queries run unmodified.
package testdb

import (
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	documentdomain "github.com/billforge/billforge/internal/document/domain"
	notificationdomain "github.com/billforge/billforge/internal/notification/domain"
	paymentdomain "github.com/billforge/billforge/internal/payment/domain"
	scheduledomain "github.com/billforge/billforge/internal/schedule/domain"
)

func stripLockingClause(d *gorm.DB) {
	sql := d.Statement.SQL.String()
	if strings.Contains(sql, "FOR UPDATE") {
		newSQL := strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
		newSQL = strings.ReplaceAll(newSQL, "FOR UPDATE", "")
		d.Statement.SQL.Reset()
		d.Statement.SQL.WriteString(newSQL)
	}
}

// Open returns an isolated in-memory database with the billing schema
// applied.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	db.Callback().Query().Before("gorm:query").Register("sqlite_skip_locked", stripLockingClause)
	db.Callback().Row().Before("gorm:row").Register("sqlite_skip_locked_row", stripLockingClause)

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(
		&documentdomain.Document{},
		&documentdomain.LineItem{},
		&paymentdomain.Payment{},
		&scheduledomain.RecurringSchedule{},
		&notificationdomain.Notification{},
	); err != nil {
		t.Fatalf("migrate schema: %v", err)
	}

	return db
}
