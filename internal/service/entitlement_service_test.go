package service

import (
	"sync"
	"testing"
	"time"

	"github.com/bizhub-system/business-management/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculatePrice(t *testing.T) {
	env := newTestEnv(t)
	pkg := &model.Package{BasePrice: 100}

	assert.Equal(t, 100.0, env.entitlement.CalculatePrice(pkg, model.BillingCycleMonthly))
	assert.Equal(t, 285.0, env.entitlement.CalculatePrice(pkg, model.BillingCycleQuarterly))
	assert.Equal(t, 960.0, env.entitlement.CalculatePrice(pkg, model.BillingCycleAnnual))

	// 保留2位小数
	odd := &model.Package{BasePrice: 99.99}
	assert.Equal(t, 284.97, env.entitlement.CalculatePrice(odd, model.BillingCycleQuarterly))
}

func TestCreateSubscriptionTrialSubstitutesTrialPackage(t *testing.T) {
	env := newTestEnv(t)
	modules := env.createModules(t, "core", "hr", "crm")
	basic := env.createPackage(t, "基础版", 100, false, modules[:1])
	env.createPackage(t, "全功能试用", 0, true, modules)
	business := env.createBusiness(t, "acme")

	// 请求基础版但要求试用：实际落的是试用全功能套餐
	sub, err := env.entitlement.CreateSubscription(business, basic.ID, model.BillingCycleMonthly, true, nil)
	require.NoError(t, err)

	assert.Equal(t, model.SubscriptionStatusTrial, sub.Status)
	require.NotNil(t, sub.TrialEndsAt)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 14), *sub.TrialEndsAt, time.Minute)
	assert.NotEqual(t, basic.ID, sub.PackageID)

	codes := env.activeModuleCodes(t, business)
	assert.Len(t, codes, 3)
	assert.True(t, codes["crm"])

	reloaded, err := env.businessRepo.GetByID(business.ID.String())
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusTrial, reloaded.SubscriptionStatus)

	// 启用记录带试用标记
	activations, err := env.businessModuleRepo.ListActive(business.ID.String())
	require.NoError(t, err)
	for _, activation := range activations {
		assert.True(t, activation.TrialOnly)
	}
}

func TestCreateSubscriptionMutualExclusion(t *testing.T) {
	env := newTestEnv(t)
	modules := env.createModules(t, "core")
	pkg := env.createPackage(t, "基础版", 100, false, modules)
	business := env.createBusiness(t, "acme")

	first, err := env.entitlement.CreateSubscription(business, pkg.ID, model.BillingCycleMonthly, false, nil)
	require.NoError(t, err)

	second, err := env.entitlement.CreateSubscription(business, pkg.ID, model.BillingCycleAnnual, false, nil)
	require.NoError(t, err)

	// 第二次创建把第一条转为cancelled，当前订阅唯一
	var reloaded model.Subscription
	require.NoError(t, env.db.First(&reloaded, "id = ?", first.ID).Error)
	assert.Equal(t, model.SubscriptionStatusCancelled, reloaded.Status)

	current, err := env.entitlement.GetCurrentSubscription(business)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, second.ID, current.ID)
}

func TestCreateSubscriptionConcurrentMutualExclusion(t *testing.T) {
	env := newTestEnv(t)
	modules := env.createModules(t, "core")
	pkg := env.createPackage(t, "基础版", 100, false, modules)
	business := env.createBusiness(t, "acme")

	// 并发创建在竞争下允许单次调用失败，但当前订阅唯一的不变式必须成立
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := *business
			_, _ = env.entitlement.CreateSubscription(&b, pkg.ID, model.BillingCycleMonthly, false, nil)
		}()
	}
	wg.Wait()

	_, err := env.entitlement.CreateSubscription(business, pkg.ID, model.BillingCycleMonthly, false, nil)
	require.NoError(t, err)

	var currentCount int64
	require.NoError(t, env.db.Model(&model.Subscription{}).
		Where("business_id = ? AND status IN ?", business.ID,
			[]string{model.SubscriptionStatusTrial, model.SubscriptionStatusActive}).
		Count(&currentCount).Error)
	assert.EqualValues(t, 1, currentCount)
}

func TestCurrentSubscriptionUniqueIndex(t *testing.T) {
	env := newTestEnv(t)
	modules := env.createModules(t, "core")
	pkg := env.createPackage(t, "基础版", 100, false, modules)
	business := env.createBusiness(t, "acme")

	now := time.Now()
	first := &model.Subscription{
		BusinessID:   business.ID,
		PackageID:    pkg.ID,
		Status:       model.SubscriptionStatusActive,
		BillingCycle: model.BillingCycleMonthly,
		StartDate:    now,
		EndDate:      now.AddDate(0, 1, 0),
	}
	require.NoError(t, env.db.Create(first).Error)

	// 绕过状态机直接插入第二条active行，partial唯一索引兜底拒绝
	second := &model.Subscription{
		BusinessID:   business.ID,
		PackageID:    pkg.ID,
		Status:       model.SubscriptionStatusActive,
		BillingCycle: model.BillingCycleMonthly,
		StartDate:    now,
		EndDate:      now.AddDate(0, 1, 0),
	}
	assert.Error(t, env.db.Create(second).Error)

	// 非当前状态不受索引约束
	closed := &model.Subscription{
		BusinessID:   business.ID,
		PackageID:    pkg.ID,
		Status:       model.SubscriptionStatusCancelled,
		BillingCycle: model.BillingCycleMonthly,
		StartDate:    now,
		EndDate:      now.AddDate(0, 1, 0),
	}
	assert.NoError(t, env.db.Create(closed).Error)
}

func TestCreateSubscriptionInvalidBillingCycle(t *testing.T) {
	env := newTestEnv(t)
	business := env.createBusiness(t, "acme")

	_, err := env.entitlement.CreateSubscription(business, uuid.New(), "weekly", false, nil)
	assert.ErrorIs(t, err, ErrInvalidBillingCycle)
}

func TestCreateSubscriptionPackageNotFound(t *testing.T) {
	env := newTestEnv(t)
	business := env.createBusiness(t, "acme")

	_, err := env.entitlement.CreateSubscription(business, uuid.New(), model.BillingCycleMonthly, false, nil)
	assert.ErrorIs(t, err, ErrPackageNotFound)
}

func TestHandleTrialExpirationConvertsInPlace(t *testing.T) {
	env := newTestEnv(t)
	modules := env.createModules(t, "core", "hr")
	env.createPackage(t, "全功能试用", 0, true, modules)
	business := env.createBusiness(t, "acme")

	sub, err := env.entitlement.CreateSubscription(business, uuid.Nil, model.BillingCycleMonthly, true, nil)
	require.NoError(t, err)
	before := env.activeModuleCodes(t, business)

	require.NoError(t, env.entitlement.HandleTrialExpiration(sub))

	// 同一行原地转正，不新建订阅
	var rows []model.Subscription
	require.NoError(t, env.db.Where("business_id = ?", business.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, sub.ID, rows[0].ID)
	assert.Equal(t, model.SubscriptionStatusActive, rows[0].Status)
	assert.Nil(t, rows[0].TrialEndsAt)

	// 模块集合不变，试用标记清除
	assert.Equal(t, before, env.activeModuleCodes(t, business))
	activations, err := env.businessModuleRepo.ListActive(business.ID.String())
	require.NoError(t, err)
	for _, activation := range activations {
		assert.False(t, activation.TrialOnly)
	}

	reloaded, err := env.businessRepo.GetByID(business.ID.String())
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusActive, reloaded.SubscriptionStatus)

	// 非trial状态再次转正被拒绝
	assert.ErrorIs(t, env.entitlement.HandleTrialExpiration(sub), ErrSubscriptionNotTrial)
}

func TestChangePackageImmediateReconcilesBySymmetricDiff(t *testing.T) {
	env := newTestEnv(t)
	modules := env.createModules(t, "a", "b", "c")
	pkgX := env.createPackage(t, "X", 100, false, modules[:2]) // a, b
	pkgY := env.createPackage(t, "Y", 200, false, modules[1:]) // b, c
	business := env.createBusiness(t, "acme")

	oldSub, err := env.entitlement.CreateSubscription(business, pkgX.ID, model.BillingCycleMonthly, false, nil)
	require.NoError(t, err)

	// 共有模块b带租户侧设置，变更套餐后必须保留
	require.NoError(t, env.db.Model(&model.BusinessModule{}).
		Where("business_id = ? AND module_id = ?", business.ID, modules[1].ID).
		Update("settings", model.JSONMap{"theme": "dark"}).Error)

	newSub, err := env.entitlement.ChangePackage(business, pkgY.ID, model.BillingCycleQuarterly, true, nil)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusActive, newSub.Status)
	assert.Equal(t, 570.0, newSub.Price) // 200×3×0.95

	var reloaded model.Subscription
	require.NoError(t, env.db.First(&reloaded, "id = ?", oldSub.ID).Error)
	assert.Equal(t, model.SubscriptionStatusCancelled, reloaded.Status)

	codes := env.activeModuleCodes(t, business)
	assert.False(t, codes["a"])
	assert.True(t, codes["b"])
	assert.True(t, codes["c"])

	var shared model.BusinessModule
	require.NoError(t, env.db.
		Where("business_id = ? AND module_id = ?", business.ID, modules[1].ID).
		First(&shared).Error)
	assert.True(t, shared.IsActive)
	assert.Equal(t, "dark", shared.Settings["theme"])
}

func TestChangePackageFromTrialClearsTrialFlags(t *testing.T) {
	env := newTestEnv(t)
	modules := env.createModules(t, "core", "hr")
	env.createPackage(t, "全功能试用", 0, true, modules)
	paid := env.createPackage(t, "基础版", 100, false, modules[:1])
	business := env.createBusiness(t, "acme")

	_, err := env.entitlement.CreateSubscription(business, uuid.Nil, model.BillingCycleMonthly, true, nil)
	require.NoError(t, err)

	newSub, err := env.entitlement.ChangePackage(business, paid.ID, model.BillingCycleMonthly, false, nil)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusActive, newSub.Status)

	// 试用期间保留下来的模块不再带试用标记
	activations, err := env.businessModuleRepo.ListActive(business.ID.String())
	require.NoError(t, err)
	require.Len(t, activations, 1)
	assert.False(t, activations[0].TrialOnly)
}

func TestChangePackageDeferredQueuesPending(t *testing.T) {
	env := newTestEnv(t)
	modules := env.createModules(t, "a", "b")
	pkgX := env.createPackage(t, "X", 100, false, modules[:1])
	pkgY := env.createPackage(t, "Y", 200, false, modules)
	business := env.createBusiness(t, "acme")

	current, err := env.entitlement.CreateSubscription(business, pkgX.ID, model.BillingCycleMonthly, false, nil)
	require.NoError(t, err)
	before := env.activeModuleCodes(t, business)

	pending, err := env.entitlement.ChangePackage(business, pkgY.ID, model.BillingCycleMonthly, false, nil)
	require.NoError(t, err)

	assert.Equal(t, model.SubscriptionStatusPending, pending.Status)
	assert.True(t, pending.StartDate.Equal(current.EndDate))

	// 当前订阅跑完本期但不再续费
	var reloaded model.Subscription
	require.NoError(t, env.db.First(&reloaded, "id = ?", current.ID).Error)
	assert.Equal(t, model.SubscriptionStatusActive, reloaded.Status)
	assert.False(t, reloaded.IsAutoRenew)

	// 模块集合推迟到激活时才变
	assert.Equal(t, before, env.activeModuleCodes(t, business))
}

func TestActivatePendingSubscription(t *testing.T) {
	env := newTestEnv(t)
	modules := env.createModules(t, "a", "b")
	pkgX := env.createPackage(t, "X", 100, false, modules[:1]) // a
	pkgY := env.createPackage(t, "Y", 200, false, modules[1:]) // b
	business := env.createBusiness(t, "acme")

	current, err := env.entitlement.CreateSubscription(business, pkgX.ID, model.BillingCycleMonthly, false, nil)
	require.NoError(t, err)

	pending, err := env.entitlement.ChangePackage(business, pkgY.ID, model.BillingCycleMonthly, false, nil)
	require.NoError(t, err)

	require.NoError(t, env.entitlement.ActivatePendingSubscription(pending))

	assert.Equal(t, model.SubscriptionStatusActive, pending.Status)

	var old model.Subscription
	require.NoError(t, env.db.First(&old, "id = ?", current.ID).Error)
	assert.Equal(t, model.SubscriptionStatusExpired, old.Status)

	codes := env.activeModuleCodes(t, business)
	assert.False(t, codes["a"])
	assert.True(t, codes["b"])

	// 已激活的行不能再次激活
	assert.ErrorIs(t, env.entitlement.ActivatePendingSubscription(pending), ErrSubscriptionNotPending)
}

func TestCancelImmediately(t *testing.T) {
	env := newTestEnv(t)
	modules := env.createModules(t, "a")
	pkg := env.createPackage(t, "X", 100, false, modules)
	business := env.createBusiness(t, "acme")

	_, err := env.entitlement.CreateSubscription(business, pkg.ID, model.BillingCycleMonthly, false, nil)
	require.NoError(t, err)

	require.NoError(t, env.entitlement.Cancel(business, true))

	current, err := env.entitlement.GetCurrentSubscription(business)
	require.NoError(t, err)
	assert.Nil(t, current)

	assert.Empty(t, env.activeModuleCodes(t, business))

	reloaded, err := env.businessRepo.GetByID(business.ID.String())
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusCancelled, reloaded.SubscriptionStatus)
}

func TestCancelAtPeriodEnd(t *testing.T) {
	env := newTestEnv(t)
	modules := env.createModules(t, "a")
	pkg := env.createPackage(t, "X", 100, false, modules)
	business := env.createBusiness(t, "acme")

	sub, err := env.entitlement.CreateSubscription(business, pkg.ID, model.BillingCycleMonthly, false, nil)
	require.NoError(t, err)

	require.NoError(t, env.entitlement.Cancel(business, false))

	// 本期照常运行，只是不再自动续费
	var reloaded model.Subscription
	require.NoError(t, env.db.First(&reloaded, "id = ?", sub.ID).Error)
	assert.Equal(t, model.SubscriptionStatusActive, reloaded.Status)
	assert.False(t, reloaded.IsAutoRenew)
	assert.True(t, env.activeModuleCodes(t, business)["a"])
}

func TestCancelWithoutCurrentSubscription(t *testing.T) {
	env := newTestEnv(t)
	business := env.createBusiness(t, "acme")

	assert.ErrorIs(t, env.entitlement.Cancel(business, true), ErrNoCurrentSubscription)
}

func TestPeriodEndAnchoring(t *testing.T) {
	env := newTestEnv(t)
	modules := env.createModules(t, "a")
	pkg := env.createPackage(t, "X", 100, false, modules)
	business := env.createBusiness(t, "acme")

	start := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	env.entitlement.now = func() time.Time { return start }

	sub, err := env.entitlement.CreateSubscription(business, pkg.ID, model.BillingCycleAnnual, false, nil)
	require.NoError(t, err)

	// 周期截止锚定到当天结束
	assert.Equal(t, 2027, sub.EndDate.Year())
	assert.Equal(t, time.March, sub.EndDate.Month())
	assert.Equal(t, 15, sub.EndDate.Day())
	assert.Equal(t, 23, sub.EndDate.Hour())
	assert.Equal(t, 59, sub.EndDate.Minute())
}
