package repository

import (
	"context"

	"commission-service/internal/model"

	"gorm.io/gorm"
)

// AuditFilter narrows audit history to one entity type or a single entity
type AuditFilter struct {
	EntityType string
	EntityID   string
	Page       int
	Limit      int
}

type AuditRepository interface {
	Log(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, filter AuditFilter) ([]model.AuditLog, int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Log(ctx context.Context, entry *model.AuditLog) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter) ([]model.AuditLog, int64, error) {
	var logs []model.AuditLog
	var total int64

	db := GetDB(ctx, r.db)
	filtered := func(tx *gorm.DB) *gorm.DB {
		if filter.EntityType != "" {
			tx = tx.Where("entity_type = ?", filter.EntityType)
		}
		if filter.EntityID != "" {
			tx = tx.Where("entity_id = ?", filter.EntityID)
		}
		return tx
	}

	if err := db.Model(&model.AuditLog{}).Scopes(filtered).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := db.Scopes(filtered).Order("created_at desc").Offset(offset).Limit(filter.Limit).Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
