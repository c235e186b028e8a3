package database

import (
	"fmt"
	"time"

	"matrix/config"
	"matrix/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the postgres pool and, when enabled, runs the auto-migration.
func Connect(cfg config.DBConfig, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	log.Info("connected to database", zap.String("host", cfg.Host), zap.String("name", cfg.Name))

	if cfg.AutoMigrate {
		log.Info("starting auto-migration")
		if err := Migrate(db); err != nil {
			return nil, err
		}
		log.Info("auto migration completed")
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Member{},
		&models.RewardPlan{},
		&models.Bonus{},
		&models.RewardClaim{},
		&models.Wallet{},
		&models.WalletReward{},
		&models.Transaction{},
		&models.Withdrawal{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
