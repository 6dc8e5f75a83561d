package worker

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bizhub-system/business-management/internal/model"
	"github.com/bizhub-system/business-management/internal/repository"
	"github.com/bizhub-system/business-management/internal/service"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type lifecycleFixture struct {
	db               *gorm.DB
	subscriptionRepo *repository.SubscriptionRepository
	worker           *SubscriptionLifecycleWorker
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:lifecycle_%s?mode=memory&cache=shared",
		strings.ReplaceAll(uuid.New().String(), "-", ""))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Business{},
		&model.Module{},
		&model.Package{},
		&model.Subscription{},
		&model.BusinessModule{},
		&model.AuditEvent{},
	))

	logger := zap.NewNop()
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	entitlement := service.NewEntitlementService(
		db,
		repository.NewBusinessRepository(db),
		repository.NewPackageRepository(db),
		subscriptionRepo,
		repository.NewBusinessModuleRepository(db),
		repository.NewModuleRepository(db),
		service.NewAuditService(repository.NewAuditRepository(db)),
		service.NoopNotifier{},
		logger,
		14,
	)

	return &lifecycleFixture{
		db:               db,
		subscriptionRepo: subscriptionRepo,
		worker:           NewSubscriptionLifecycleWorker(subscriptionRepo, entitlement, "", logger),
	}
}

func (f *lifecycleFixture) seedBusiness(t *testing.T, name string) (*model.Business, *model.Package) {
	t.Helper()
	business := &model.Business{Name: name, Email: name + "@example.com"}
	require.NoError(t, f.db.Create(business).Error)

	module := &model.Module{Code: name + "_core", Name: "core", Version: "1.0.0"}
	require.NoError(t, f.db.Create(module).Error)
	pkg := &model.Package{Name: name + "套餐", BasePrice: 100, Modules: []model.Module{*module}}
	require.NoError(t, f.db.Create(pkg).Error)
	return business, pkg
}

func TestRunOnceConvertsExpiredTrials(t *testing.T) {
	f := newLifecycleFixture(t)
	business, pkg := f.seedBusiness(t, "acme")

	expiredAt := time.Now().Add(-time.Hour)
	trial := &model.Subscription{
		BusinessID:   business.ID,
		PackageID:    pkg.ID,
		Status:       model.SubscriptionStatusTrial,
		BillingCycle: model.BillingCycleMonthly,
		StartDate:    time.Now().AddDate(0, 0, -14),
		EndDate:      expiredAt,
		TrialEndsAt:  &expiredAt,
	}
	require.NoError(t, f.db.Create(trial).Error)

	// 未到期的试用不能被误转正
	futureEnd := time.Now().Add(24 * time.Hour)
	other, otherPkg := f.seedBusiness(t, "globex")
	running := &model.Subscription{
		BusinessID:   other.ID,
		PackageID:    otherPkg.ID,
		Status:       model.SubscriptionStatusTrial,
		BillingCycle: model.BillingCycleMonthly,
		StartDate:    time.Now(),
		EndDate:      futureEnd,
		TrialEndsAt:  &futureEnd,
	}
	require.NoError(t, f.db.Create(running).Error)

	f.worker.RunOnce()

	var converted model.Subscription
	require.NoError(t, f.db.First(&converted, "id = ?", trial.ID).Error)
	assert.Equal(t, model.SubscriptionStatusActive, converted.Status)
	assert.Nil(t, converted.TrialEndsAt)

	var untouched model.Subscription
	require.NoError(t, f.db.First(&untouched, "id = ?", running.ID).Error)
	assert.Equal(t, model.SubscriptionStatusTrial, untouched.Status)
}

func TestRunOnceActivatesDuePending(t *testing.T) {
	f := newLifecycleFixture(t)
	business, pkg := f.seedBusiness(t, "acme")

	now := time.Now()
	current := &model.Subscription{
		BusinessID:   business.ID,
		PackageID:    pkg.ID,
		Status:       model.SubscriptionStatusActive,
		BillingCycle: model.BillingCycleMonthly,
		StartDate:    now.AddDate(0, -1, 0),
		EndDate:      now.Add(-time.Minute),
	}
	require.NoError(t, f.db.Create(current).Error)

	pending := &model.Subscription{
		BusinessID:   business.ID,
		PackageID:    pkg.ID,
		Status:       model.SubscriptionStatusPending,
		BillingCycle: model.BillingCycleMonthly,
		StartDate:    now.Add(-time.Minute),
		EndDate:      now.AddDate(0, 1, 0),
	}
	require.NoError(t, f.db.Create(pending).Error)

	f.worker.RunOnce()

	var activated model.Subscription
	require.NoError(t, f.db.First(&activated, "id = ?", pending.ID).Error)
	assert.Equal(t, model.SubscriptionStatusActive, activated.Status)

	var expired model.Subscription
	require.NoError(t, f.db.First(&expired, "id = ?", current.ID).Error)
	assert.Equal(t, model.SubscriptionStatusExpired, expired.Status)
}

func TestRunOnceAfterStopIsNoop(t *testing.T) {
	f := newLifecycleFixture(t)
	business, pkg := f.seedBusiness(t, "acme")

	expiredAt := time.Now().Add(-time.Hour)
	trial := &model.Subscription{
		BusinessID:   business.ID,
		PackageID:    pkg.ID,
		Status:       model.SubscriptionStatusTrial,
		BillingCycle: model.BillingCycleMonthly,
		StartDate:    time.Now().AddDate(0, 0, -14),
		EndDate:      expiredAt,
		TrialEndsAt:  &expiredAt,
	}
	require.NoError(t, f.db.Create(trial).Error)

	f.worker.Stop()
	f.worker.RunOnce()

	var untouched model.Subscription
	require.NoError(t, f.db.First(&untouched, "id = ?", trial.ID).Error)
	assert.Equal(t, model.SubscriptionStatusTrial, untouched.Status)
}
