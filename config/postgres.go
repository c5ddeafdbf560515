package config

import (
	"errors"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yoockh/basketvoice/internal/models"
)

var PostgresDB *gorm.DB

// InitPostgres opens the conversation archive (POSTGRES_URI). With
// POSTGRES_AUTO_MIGRATE=true the conversation_logs table is created on start.
func InitPostgres() error {
	uri := os.Getenv("POSTGRES_URI")
	if uri == "" {
		return errors.New("POSTGRES_URI environment variable is not set")
	}

	db, err := gorm.Open(postgres.Open(uri), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Warn),
		SkipDefaultTransaction: true, // InsertExchange opens its own
	})
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	// archive workers are the only writers
	sqlDB.SetMaxOpenConns(getEnvInt("POSTGRES_MAX_CONNS", 10))
	sqlDB.SetMaxIdleConns(4)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if getEnvBool("POSTGRES_AUTO_MIGRATE", false) {
		if err := db.AutoMigrate(&models.ConversationLog{}); err != nil {
			return err
		}
	}

	PostgresDB = db
	return nil
}
