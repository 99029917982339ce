package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"commission-service/internal/model"
	"commission-service/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// serialTx runs transactions one at a time, which is what the advisory lock gives the real store
type serialTx struct {
	mu sync.Mutex
}

func (t *serialTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(ctx)
}

type memRuleRepo struct {
	mu      sync.Mutex
	rules   map[uuid.UUID]model.CommissionRule
	listErr error
}

func newMemRuleRepo() *memRuleRepo {
	return &memRuleRepo{rules: map[uuid.UUID]model.CommissionRule{}}
}

func (r *memRuleRepo) put(rule model.CommissionRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[rule.ID] = rule
}

func (r *memRuleRepo) get(id uuid.UUID) (model.CommissionRule, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	return rule, ok
}

func (r *memRuleRepo) Create(_ context.Context, rule *model.CommissionRule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	r.put(*rule)
	return nil
}

func (r *memRuleRepo) Update(_ context.Context, rule *model.CommissionRule) error {
	r.put(*rule)
	return nil
}

func (r *memRuleRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rules, id)
	return nil
}

func (r *memRuleRepo) FindByID(_ context.Context, id uuid.UUID) (*model.CommissionRule, error) {
	rule, ok := r.get(id)
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &rule, nil
}

func (r *memRuleRepo) List(_ context.Context, employeeID *uuid.UUID, _, _ int) ([]model.CommissionRule, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.CommissionRule
	for _, rule := range r.rules {
		if employeeID == nil || rule.EmployeeID == *employeeID {
			out = append(out, rule)
		}
	}
	return out, int64(len(out)), nil
}

func (r *memRuleRepo) ListActiveForEmployee(_ context.Context, employeeID uuid.UUID, asOf time.Time) ([]model.CommissionRule, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.CommissionRule
	for _, rule := range r.rules {
		if rule.EmployeeID == employeeID && rule.IsActive && rule.EffectiveAt(asOf) {
			out = append(out, rule)
		}
	}
	RankRules(out)
	return out, nil
}

type memCommissionRepo struct {
	mu          sync.Mutex
	commissions map[uuid.UUID]model.Commission
	deleted     map[uuid.UUID]model.Commission

	// hideOpen makes the next N open-source lookups miss, so an insert races the unique index
	hideOpen int
}

func newMemCommissionRepo() *memCommissionRepo {
	return &memCommissionRepo{
		commissions: map[uuid.UUID]model.Commission{},
		deleted:     map[uuid.UUID]model.Commission{},
	}
}

func (r *memCommissionRepo) all() []model.Commission {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Commission, 0, len(r.commissions))
	for _, c := range r.commissions {
		out = append(out, c)
	}
	return out
}

func (r *memCommissionRepo) Create(_ context.Context, commission *model.Commission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.commissions {
		if c.EmployeeID == commission.EmployeeID && c.Source() == commission.Source() && c.Status != model.CommissionCancelled {
			return gorm.ErrDuplicatedKey
		}
	}
	if commission.ID == uuid.Nil {
		commission.ID = uuid.New()
	}
	r.commissions[commission.ID] = *commission
	return nil
}

func (r *memCommissionRepo) Update(_ context.Context, commission *model.Commission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commissions[commission.ID] = *commission
	return nil
}

func (r *memCommissionRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Commission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.commissions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (r *memCommissionRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Commission, error) {
	return r.FindByID(ctx, id)
}

func (r *memCommissionRepo) FindOpenBySource(_ context.Context, employeeID uuid.UUID, source model.SourceRef) (*model.Commission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hideOpen > 0 {
		r.hideOpen--
		return nil, gorm.ErrRecordNotFound
	}
	for _, c := range r.commissions {
		if c.EmployeeID == employeeID && c.Source() == source && c.Status != model.CommissionCancelled {
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memCommissionRepo) LockSource(context.Context, uuid.UUID, model.SourceRef) error {
	return nil
}

func (r *memCommissionRepo) CountByRule(_ context.Context, ruleID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, set := range []map[uuid.UUID]model.Commission{r.commissions, r.deleted} {
		for _, c := range set {
			if c.RuleID != nil && *c.RuleID == ruleID {
				n++
			}
		}
	}
	return n, nil
}

func (r *memCommissionRepo) List(_ context.Context, filter repository.CommissionFilter) ([]model.Commission, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Commission
	for _, c := range r.commissions {
		if filter.EmployeeID != nil && c.EmployeeID != *filter.EmployeeID {
			continue
		}
		if filter.Status != "" && string(c.Status) != filter.Status {
			continue
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b model.Commission) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, int64(len(out)), nil
}

func (r *memCommissionRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.commissions[id]; ok {
		r.deleted[id] = c
		delete(r.commissions, id)
	}
	return nil
}

type memAuditRepo struct {
	mu      sync.Mutex
	entries []model.AuditLog
	err     error
}

func (r *memAuditRepo) Log(_ context.Context, entry *model.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memAuditRepo) List(_ context.Context, filter repository.AuditFilter) ([]model.AuditLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.AuditLog
	for _, e := range r.entries {
		if filter.EntityType != "" && e.EntityType != filter.EntityType {
			continue
		}
		if filter.EntityID != "" && e.EntityID != filter.EntityID {
			continue
		}
		out = append(out, e)
	}
	return out, int64(len(out)), nil
}

func (r *memAuditRepo) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type recordingNotifier struct {
	mu     sync.Mutex
	topics []string
}

func (n *recordingNotifier) Publish(topic string, _ any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.topics = append(n.topics, topic)
}

func (n *recordingNotifier) published() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.topics...)
}
