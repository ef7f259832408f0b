// Package storage persists task records in a local sqlite database so task
// status survives restarts and the history API has something to list.
package storage

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"videotrans/log"
)

var DB *gorm.DB

// resolveDBPath is a var so tests can point the database at a temp dir.
var resolveDBPath = func() string {
	if dir := os.Getenv("VIDEOTRANS_DATA_DIR"); dir != "" {
		return filepath.Join(dir, "videotrans.db")
	}
	return filepath.Join("data", "videotrans.db")
}

func InitDB() {
	dbPath := resolveDBPath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		log.GetLogger().Fatal("failed to create database directory",
			zap.String("dir", filepath.Dir(dbPath)), zap.Error(err))
	}

	var err error
	DB, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.GetLogger().Fatal("failed to connect database", zap.Error(err))
	}

	if err := DB.AutoMigrate(&TaskRecord{}); err != nil {
		log.GetLogger().Fatal("failed to migrate database", zap.Error(err))
	}
	log.GetLogger().Info("database initialized", zap.String("path", dbPath))
}
