package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cinescope/internal/config"
	"cinescope/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Initialize initializes the database connection and runs migrations
func Initialize(cfg *config.Config, log *zap.Logger) error {
	// Ensure database directory exists
	dbDir := filepath.Dir(cfg.Database.Path)
	if dbDir != "." && dbDir != "" {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	var err error
	DB, err = gorm.Open(sqlite.Open(cfg.Database.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // zap handles logging
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	// WAL mode for better concurrency between the API and background jobs
	if err := DB.Exec("PRAGMA journal_mode = WAL").Error; err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := DB.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := Migrate(DB); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("Database initialized successfully", zap.String("path", cfg.Database.Path))
	return nil
}

// Migrate runs schema migrations on the given connection.
func Migrate(db *gorm.DB) error {
	entities := []interface{}{
		&models.Movie{},
		&models.UserRating{},
		&models.CastMember{},
		&models.PosterAnalysis{},
		&models.CachedAnalysis{},
		&models.ImportJob{},
		&models.ChatConversation{},
		&models.ChatMessage{},
	}

	for _, entity := range entities {
		if err := db.AutoMigrate(entity); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", entity, err)
		}
	}

	return createIndexes(db)
}

// createIndexes creates composite indexes that GORM doesn't create automatically
func createIndexes(db *gorm.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_cast_members_name_role ON cast_members(name, role)",
		"CREATE INDEX IF NOT EXISTS idx_chat_messages_conversation_timestamp ON chat_messages(conversation_id, timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_import_jobs_status_created ON import_jobs(status, created_at)",
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// Close closes the database connection
func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}
