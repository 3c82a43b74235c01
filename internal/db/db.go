// Package db opens the durable store and keeps its schema current.
package db

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mosskim/gembot/internal/config"
	"github.com/mosskim/gembot/internal/store"
)

// Open connects to the configured database, verifies the connection and
// initializes the schema. Initialization is idempotent; an already-migrated
// store is left untouched. Failures surface as store.ErrStoreUnavailable.
func Open(cfg config.Store) (*gorm.DB, error) {
	var dial gorm.Dialector
	switch cfg.Driver {
	case "", "sqlite":
		dial = sqlite.Open(sqliteDSN(cfg.DSN))
	case "mysql":
		dial = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: store driver %q", store.ErrInvalidArgument, cfg.Driver)
	}

	gdb, err := gorm.Open(dial, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", store.ErrStoreUnavailable, cfg.Driver, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("%w: ping: %v", store.ErrStoreUnavailable, err)
	}

	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

// Migrate creates or updates the four tables and their covering indexes.
func Migrate(gdb *gorm.DB) error {
	err := gdb.AutoMigrate(
		&store.User{},
		&store.Chat{},
		&store.Message{},
		&store.TokenUsage{},
	)
	if err != nil {
		return fmt.Errorf("%w: migrate: %v", store.ErrStoreUnavailable, err)
	}

	// AutoMigrate covers the composite indexes declared on the models; the
	// body search index needs dialect-specific DDL (MySQL requires a prefix
	// length on TEXT columns).
	if !gdb.Migrator().HasIndex(&store.Message{}, "idx_messages_body") {
		var ddl string
		switch gdb.Dialector.Name() {
		case "mysql":
			ddl = "CREATE INDEX idx_messages_body ON messages (body(64))"
		default:
			ddl = "CREATE INDEX IF NOT EXISTS idx_messages_body ON messages (body)"
		}
		if err := gdb.Exec(ddl).Error; err != nil {
			return fmt.Errorf("%w: body index: %v", store.ErrStoreUnavailable, err)
		}
	}
	return nil
}

// sqliteDSN appends the pragmas the store relies on: a driver-level busy
// timeout, WAL so reads proceed alongside the writer, and enforced foreign
// keys.
func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "gembot.db"
	}
	pragmas := "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	if strings.Contains(dsn, "?") {
		return dsn + "&" + pragmas
	}
	return dsn + "?" + pragmas
}
