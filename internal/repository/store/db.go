package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"Hope_Community/internal/config"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Stores 四个逻辑库各自一个连接池，跨库操作不保证原子性
type Stores struct {
	Communities *gorm.DB
	Users       *gorm.DB
	Threads     *gorm.DB
	Replies     *gorm.DB
}

func Open(cfg config.DatabaseConfig) (*Stores, error) {
	s := &Stores{}
	targets := []struct {
		dst **gorm.DB
		dsn string
	}{
		{&s.Communities, cfg.Communities},
		{&s.Users, cfg.Users},
		{&s.Threads, cfg.Threads},
		{&s.Replies, cfg.Replies},
	}
	for _, t := range targets {
		db, err := openOne(cfg.Driver, t.dsn)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		*t.dst = db
	}
	return s, nil
}

func openOne(driver, dsn string) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}

	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		if err := ensureDir(dsn); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(sqliteDSN(dsn))
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// sqlite 单写者，单连接避免 database is locked
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}
	return db, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
}

func ensureDir(path string) error {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Stores) Close() error {
	var errs []error
	for _, db := range []*gorm.DB{s.Communities, s.Users, s.Threads, s.Replies} {
		if db == nil {
			continue
		}
		if sqlDB, err := db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}

func (s *Stores) Ping(ctx context.Context) error {
	for name, db := range map[string]*gorm.DB{
		"communities": s.Communities,
		"users":       s.Users,
		"threads":     s.Threads,
		"replies":     s.Replies,
	} {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("%s store: %w", name, err)
		}
		if err = sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("%s store: %w", name, err)
		}
	}
	return nil
}
