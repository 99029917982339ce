package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"commission-service/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestRuleRepository_ListActiveForEmployee(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRuleRepository(db)

	employeeID := uuid.New()
	ruleID := uuid.New()
	asOf := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "employee_id", "type", "rate", "tiers", "priority", "effective_from", "is_active", "created_at"}).
		AddRow(ruleID.String(), employeeID.String(), "tiered", "0", `[{"upper_bound":"1000","rate":"5"},{"upper_bound":null,"rate":"8"}]`, 3, asOf.AddDate(0, -1, 0), true, asOf.AddDate(0, -1, 0))

	mock.ExpectQuery(`SELECT \* FROM "commission_rules" WHERE .*employee_id = \$1 AND is_active = \$2.*effective_from <= \$3 AND \(effective_to IS NULL OR effective_to > \$4\).*"commission_rules"\."deleted_at" IS NULL ORDER BY priority DESC, created_at ASC, id ASC`).
		WithArgs(employeeID, true, asOf, asOf).
		WillReturnRows(rows)

	rules, err := repo.ListActiveForEmployee(context.Background(), employeeID, asOf)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	rule := rules[0]
	assert.Equal(t, ruleID, rule.ID)
	assert.Equal(t, model.RuleTypeTiered, rule.Type)
	require.Len(t, rule.Tiers, 2)
	require.NotNil(t, rule.Tiers[0].UpperBound)
	assert.True(t, rule.Tiers[0].UpperBound.Equal(decimal.NewFromInt(1000)))
	assert.Nil(t, rule.Tiers[1].UpperBound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleRepository_FindByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRuleRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "commission_rules" WHERE id = \$1 AND "commission_rules"\."deleted_at" IS NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommissionRepository_LockSource(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCommissionRepository(db)
	employeeID := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("commission:" + employeeID.String() + "|shipment|SHP-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.LockSource(context.Background(), employeeID, model.SourceRef{Type: model.SourceShipment, ID: "SHP-1"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommissionRepository_FindOpenBySourceExcludesCancelled(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCommissionRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "commissions" WHERE .*employee_id = \$1 AND source_type = \$2 AND source_id = \$3.*status <> \$4.*"commissions"\."deleted_at" IS NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindOpenBySource(context.Background(), uuid.New(), model.SourceRef{Type: model.SourceQuote, ID: "Q-1"})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommissionRepository_CountByRuleIncludesDeleted(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCommissionRepository(db)
	ruleID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "commissions" WHERE rule_id = $1`)).
		WithArgs(ruleID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountByRule(context.Background(), ruleID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommissionRepository_CreateTranslatesUniqueViolation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCommissionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "commissions"`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_commissions_open_source"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &model.Commission{
		EmployeeID:  uuid.New(),
		SourceType:  model.SourceShipment,
		SourceID:    "SHP-1",
		BaseAmount:  decimal.NewFromInt(1000),
		Currency:    "USD",
		TotalAmount: decimal.NewFromInt(100),
		Status:      model.CommissionPending,
	})
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionManager_CommitAndJoin(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTransactionManager(db)

	mock.ExpectBegin()
	mock.ExpectCommit()

	var inner *gorm.DB
	err := tm.RunInTx(context.Background(), func(txCtx context.Context) error {
		outer := GetDB(txCtx, db)
		// a nested call joins the outer transaction instead of beginning a new one
		return tm.RunInTx(txCtx, func(nestedCtx context.Context) error {
			inner = GetDB(nestedCtx, db)
			assert.Same(t, outer.Statement.ConnPool, inner.Statement.ConnPool)
			return nil
		})
	})
	require.NoError(t, err)
	require.NotNil(t, inner)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionManager_RollbackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTransactionManager(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := tm.RunInTx(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_ListFiltersByEntity(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "audit_logs" WHERE entity_type = $1 AND entity_id = $2`)).
		WithArgs(model.EntityCommission, "c-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT \* FROM "audit_logs" WHERE entity_type = \$1 AND entity_id = \$2 ORDER BY created_at desc`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "action", "entity_type", "entity_id", "details", "created_at"}).
			AddRow(uuid.NewString(), model.ActionCreateCommission, model.EntityCommission, "c-1", "{}", time.Now()))

	logs, total, err := repo.List(context.Background(), AuditFilter{EntityType: model.EntityCommission, EntityID: "c-1", Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, logs, 1)
	assert.Equal(t, model.ActionCreateCommission, logs[0].Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}
