package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"commission-service/internal/model"
	"commission-service/internal/observability"
	"commission-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditRecord is one history entry to append. Details is serialized to JSON.
type AuditRecord struct {
	EntityType   string
	EntityID     string
	Action       string
	BeforeStatus string
	AfterStatus  string
	Actor        *uuid.UUID
	OccurredAt   time.Time
	Details      any
}

type AuditFilter struct {
	EntityType string
	EntityID   string
	Page       int
	Limit      int
}

type AuditLogResponse struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Action       string `json:"action"`
	EntityType   string `json:"entity_type"`
	EntityID     string `json:"entity_id"`
	BeforeStatus string `json:"before_status,omitempty"`
	AfterStatus  string `json:"after_status,omitempty"`
	Details      string `json:"details"`
	CreatedAt    string `json:"created_at"`
}

type AuditService interface {
	Record(ctx context.Context, record AuditRecord)
	GetAuditLogs(ctx context.Context, filter AuditFilter) ([]AuditLogResponse, int64, error)
}

// AuditServiceDeps bundles constructor inputs for the audit recorder.
type AuditServiceDeps struct {
	Repository repository.AuditRepository
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Clock      func() time.Time
}

type auditService struct {
	repo    repository.AuditRepository
	logger  *zap.Logger
	metrics *observability.Metrics
	clock   func() time.Time
}

// NewAuditService creates a new AuditService instance
func NewAuditService(deps AuditServiceDeps) AuditService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &auditService{
		repo:    deps.Repository,
		logger:  logger,
		metrics: deps.Metrics,
		clock:   clock,
	}
}

// Record appends an audit entry. Failures are logged and counted but never returned: the
// primary transition has already happened and must not be rolled back by a lost history row.
func (s *auditService) Record(ctx context.Context, record AuditRecord) {
	logger := observability.FromContext(ctx, s.logger)

	details := "{}"
	if record.Details != nil {
		raw, err := json.Marshal(record.Details)
		if err != nil {
			logger.Warn("audit details not serializable", zap.String("action", record.Action), zap.Error(err))
		} else {
			details = string(raw)
		}
	}

	createdAt := record.OccurredAt
	if createdAt.IsZero() {
		createdAt = s.clock()
	}

	entry := model.AuditLog{
		UserID:       record.Actor,
		Action:       record.Action,
		EntityType:   record.EntityType,
		EntityID:     record.EntityID,
		BeforeStatus: record.BeforeStatus,
		AfterStatus:  record.AfterStatus,
		Details:      details,
		CreatedAt:    createdAt.UTC(),
	}

	if err := s.repo.Log(ctx, &entry); err != nil {
		logger.Warn("audit log append failed",
			zap.String("entity_type", record.EntityType),
			zap.String("entity_id", record.EntityID),
			zap.String("action", record.Action),
			zap.Error(err),
		)
		s.metrics.AuditWriteFailed(ctx, record.EntityType, record.Action)
	}
}

// GetAuditLogs retrieves paginated history, newest first
func (s *auditService) GetAuditLogs(ctx context.Context, filter AuditFilter) ([]AuditLogResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	logs, total, err := s.repo.List(ctx, repository.AuditFilter{
		EntityType: filter.EntityType,
		EntityID:   filter.EntityID,
		Page:       filter.Page,
		Limit:      filter.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit logs: %w", err)
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		userID := ""
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		res = append(res, AuditLogResponse{
			ID:           l.ID.String(),
			UserID:       userID,
			Action:       l.Action,
			EntityType:   l.EntityType,
			EntityID:     l.EntityID,
			BeforeStatus: l.BeforeStatus,
			AfterStatus:  l.AfterStatus,
			Details:      l.Details,
			CreatedAt:    l.CreatedAt.Format(time.RFC3339),
		})
	}

	return res, total, nil
}
