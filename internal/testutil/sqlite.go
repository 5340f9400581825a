// Package testutil opens in-memory SQLite databases carrying the merchline schema.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenSQLite returns an isolated in-memory database named after the test.
// Row locking clauses are stripped because SQLite serializes writers anyway.
func OpenSQLite(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	strip := func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			sql = strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
			sql = strings.ReplaceAll(sql, "FOR UPDATE", "")
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(sql)
		}
	}
	if err := db.Callback().Query().Before("gorm:query").Register("sqlite_strip_for_update", strip); err != nil {
		t.Fatalf("register query callback: %v", err)
	}
	if err := db.Callback().Row().Before("gorm:row").Register("sqlite_strip_for_update_row", strip); err != nil {
		t.Fatalf("register row callback: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	ApplySchema(t, db)
	return db
}

// ApplySchema creates every table used by the services.
func ApplySchema(t testing.TB, db *gorm.DB) {
	t.Helper()
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v\n%s", err, stmt)
		}
	}
}

// Node returns a snowflake generator for tests.
func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

var schema = []string{
	`CREATE TABLE companies (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		company_id INTEGER,
		role TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE company_user_groups (
		id INTEGER PRIMARY KEY,
		company_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE TABLE company_user_group_members (
		group_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME,
		PRIMARY KEY (group_id, user_id)
	)`,
	`CREATE TABLE product_categories (
		id INTEGER PRIMARY KEY,
		company_id INTEGER,
		name TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE product_category_tags (
		id INTEGER PRIMARY KEY,
		company_id INTEGER,
		name TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'category',
		product_category_id INTEGER,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE TABLE products (
		id INTEGER PRIMARY KEY,
		company_id INTEGER,
		parent_id INTEGER,
		is_parent BOOLEAN NOT NULL DEFAULT 0,
		name TEXT NOT NULL,
		sku TEXT NOT NULL DEFAULT '',
		merchant_sku TEXT NOT NULL UNIQUE,
		price_amount NUMERIC NOT NULL DEFAULT 0,
		price_currency TEXT NOT NULL DEFAULT 'EUR',
		color TEXT NOT NULL DEFAULT '',
		material TEXT NOT NULL DEFAULT '',
		size TEXT NOT NULL DEFAULT '',
		minimum_order_quantity INTEGER NOT NULL DEFAULT 1,
		is_exceed_stock_enabled BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE product_tags (
		product_id INTEGER NOT NULL,
		product_category_tag_id INTEGER NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME,
		PRIMARY KEY (product_id, product_category_tag_id)
	)`,
	`CREATE TABLE product_graduated_prices (
		id INTEGER PRIMARY KEY,
		product_id INTEGER NOT NULL,
		first_unit INTEGER NOT NULL,
		last_unit INTEGER NOT NULL,
		price NUMERIC NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE product_access_control_groups (
		id INTEGER PRIMARY KEY,
		company_id INTEGER,
		name TEXT NOT NULL,
		slug TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_product_access_control_groups_slug
		ON product_access_control_groups (COALESCE(company_id, 0), slug)`,
	`CREATE TABLE product_access_control_group_members (
		acg_id INTEGER NOT NULL,
		member_type TEXT NOT NULL,
		member_id INTEGER NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME,
		PRIMARY KEY (acg_id, member_type, member_id)
	)`,
	`CREATE TABLE product_access_control_group_tags (
		acg_id INTEGER NOT NULL,
		product_category_tag_id INTEGER NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME,
		PRIMARY KEY (acg_id, product_category_tag_id)
	)`,
	`CREATE TABLE campaigns (
		id INTEGER PRIMARY KEY,
		company_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		type TEXT NOT NULL DEFAULT 'onboarding',
		quota INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE campaign_quotas (
		id INTEGER PRIMARY KEY,
		campaign_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		ordered_quota INTEGER NOT NULL,
		ordered_date DATETIME NOT NULL,
		created_by INTEGER NOT NULL,
		updated_by INTEGER NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE TABLE campaign_order_limits (
		id INTEGER PRIMARY KEY,
		campaign_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		order_limit INTEGER NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME,
		UNIQUE (campaign_id, role)
	)`,
	`CREATE TABLE campaign_quota_notifications (
		id INTEGER PRIMARY KEY,
		campaign_id INTEGER NOT NULL,
		threshold INTEGER NOT NULL,
		threshold_type TEXT NOT NULL DEFAULT 'percent',
		recipients TEXT NOT NULL DEFAULT '[]',
		frequency INTEGER NOT NULL DEFAULT 1,
		frequency_unit TEXT NOT NULL DEFAULT 'day',
		is_active BOOLEAN NOT NULL DEFAULT 1,
		last_sent_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE pending_orders (
		id INTEGER PRIMARY KEY,
		campaign_id INTEGER NOT NULL,
		company_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		quota INTEGER NOT NULL,
		order_line_requests TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME,
		updated_at DATETIME
	)`,
}
