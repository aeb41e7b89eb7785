// Package database 负责打开和关闭各类存储连接，不持有任何全局句柄。
package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	// 纯 Go 的 SQLite 驱动，注册名为 "sqlite"，内置 FTS5
	_ "modernc.org/sqlite"
)

// OpenSQLite 打开（必要时创建）嵌入式 SQLite 数据库，开启 WAL 与 busy_timeout。
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}

	log.Infof("SQLite database opened: %s", path)
	return db, nil
}

// Close 关闭 gorm 底层的连接池。
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
