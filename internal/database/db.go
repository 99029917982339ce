package database

import (
	"commission-service/internal/model"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewConnection initializes a new connection pool using GORM. Driver errors such as unique
// violations are translated to gorm sentinels (gorm.ErrDuplicatedKey).
func NewConnection(dsn string, autoMigrate bool, logger *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	if autoMigrate {
		if err := Migrate(db); err != nil {
			logger.Warn("failed to auto-migrate models", zap.Error(err))
		}
	}

	return db, nil
}

// Migrate creates or updates the rule, commission and audit tables with their indexes
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.CommissionRule{},
		&model.Commission{},
		&model.AuditLog{},
	)
}
