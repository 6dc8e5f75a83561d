package service

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bizhub-system/business-management/internal/constants"
	"github.com/bizhub-system/business-management/internal/model"
	"github.com/bizhub-system/business-management/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EntitlementService 订阅/套餐/模块状态机
//
// 每次改变"当前订阅"的变更都在同一个事务里同时更新三件事：
// Subscription.status、Business.subscription_status、模块启用集合，
// 并发读者不会观察到三者互相矛盾的状态。事务按企业记录划界，
// 同一企业的变更串行，不同企业互不竞争。
type EntitlementService struct {
	db                 *gorm.DB
	businessRepo       *repository.BusinessRepository
	packageRepo        *repository.PackageRepository
	subscriptionRepo   *repository.SubscriptionRepository
	businessModuleRepo *repository.BusinessModuleRepository
	moduleRepo         *repository.ModuleRepository
	auditService       *AuditService
	notifier           Notifier
	logger             *zap.Logger
	trialDays          int
	now                func() time.Time
}

// SubscriptionOverrides 订阅级的价格/用户数覆盖
type SubscriptionOverrides struct {
	Price     *float64
	UserLimit *int
}

func NewEntitlementService(
	db *gorm.DB,
	businessRepo *repository.BusinessRepository,
	packageRepo *repository.PackageRepository,
	subscriptionRepo *repository.SubscriptionRepository,
	businessModuleRepo *repository.BusinessModuleRepository,
	moduleRepo *repository.ModuleRepository,
	auditService *AuditService,
	notifier Notifier,
	logger *zap.Logger,
	trialDays int,
) *EntitlementService {
	if trialDays <= 0 {
		trialDays = 14
	}
	return &EntitlementService{
		db:                 db,
		businessRepo:       businessRepo,
		packageRepo:        packageRepo,
		subscriptionRepo:   subscriptionRepo,
		businessModuleRepo: businessModuleRepo,
		moduleRepo:         moduleRepo,
		auditService:       auditService,
		notifier:           notifier,
		logger:             logger,
		trialDays:          trialDays,
		now:                time.Now,
	}
}

// CalculatePrice 按计费周期结算套餐价格
// 月付×1，季付×3享95折，年付×12享8折，保留2位小数。
func (s *EntitlementService) CalculatePrice(pkg *model.Package, billingCycle string) float64 {
	base := pkg.BasePrice
	var price float64
	switch billingCycle {
	case model.BillingCycleQuarterly:
		price = base * 3 * 0.95
	case model.BillingCycleAnnual:
		price = base * 12 * 0.8
	default:
		price = base
	}
	return math.Round(price*100) / 100
}

// periodEnd 计费周期截止时间，锚定到当天结束
func (s *EntitlementService) periodEnd(start time.Time, billingCycle string) time.Time {
	var end time.Time
	switch billingCycle {
	case model.BillingCycleQuarterly:
		end = start.AddDate(0, 3, 0)
	case model.BillingCycleAnnual:
		end = start.AddDate(1, 0, 0)
	default:
		end = start.AddDate(0, 1, 0)
	}
	return time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, end.Location())
}

// CreateSubscription 为企业创建订阅
// startTrial时无视所选套餐，替换为试用专用的全功能套餐，
// 并设置trial_ends_at。已有当前订阅时先将其置为cancelled，
// 保证同一企业最多一条trial/active订阅。
func (s *EntitlementService) CreateSubscription(business *model.Business, packageID uuid.UUID, billingCycle string, startTrial bool, overrides *SubscriptionOverrides) (*model.Subscription, error) {
	if !model.ValidBillingCycle(billingCycle) {
		return nil, ErrInvalidBillingCycle
	}

	pkg, err := s.resolvePackage(packageID, startTrial)
	if err != nil {
		return nil, err
	}

	var subscription *model.Subscription
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.lockBusiness(tx, business.ID); err != nil {
			return err
		}

		current, err := s.subscriptionRepo.GetCurrentTx(tx, business.ID.String())
		if err != nil {
			return err
		}
		if current != nil {
			if err := s.closeSubscription(tx, current, model.SubscriptionStatusCancelled, s.now()); err != nil {
				return err
			}
		}

		subscription, err = s.createSubscriptionTx(tx, business, pkg, billingCycle, startTrial, overrides)
		if err != nil {
			return err
		}

		if err := s.applyActivations(tx, business.ID, pkg, startTrial); err != nil {
			return err
		}

		return s.setBusinessStatus(tx, business, subscription.Status)
	})
	if err != nil {
		return nil, err
	}

	s.auditService.LogSubscriptionOperation(business.ID, "create", subscription.ID.String(), "system", nil, map[string]interface{}{
		"package_id":    pkg.ID.String(),
		"status":        subscription.Status,
		"billing_cycle": billingCycle,
	})
	s.notifier.Notify(constants.NotifyEventStatusChanged, business, map[string]interface{}{
		"subscription_id": subscription.ID.String(),
		"status":          subscription.Status,
	})

	return subscription, nil
}

// ChangePackage 变更企业套餐
//
// 当前为trial：取消试用订阅，立即创建正式订阅。
// applyImmediately：取消当前订阅，创建新active订阅，模块按新旧套餐的
// 对称差对账——两者共有的模块不动，保留其租户侧设置。
// 非立即生效：当前订阅关闭自动续费（不取消），排队一条pending订阅，
// start_date为当前订阅到期日，模块对账推迟到激活时执行。
// 无当前订阅：等价于直接创建active订阅。
func (s *EntitlementService) ChangePackage(business *model.Business, newPackageID uuid.UUID, billingCycle string, applyImmediately bool, overrides *SubscriptionOverrides) (*model.Subscription, error) {
	if !model.ValidBillingCycle(billingCycle) {
		return nil, ErrInvalidBillingCycle
	}

	newPkg, err := s.resolvePackage(newPackageID, false)
	if err != nil {
		return nil, err
	}

	var subscription *model.Subscription
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.lockBusiness(tx, business.ID); err != nil {
			return err
		}

		current, err := s.subscriptionRepo.GetCurrentTx(tx, business.ID.String())
		if err != nil {
			return err
		}

		switch {
		case current == nil:
			subscription, err = s.createSubscriptionTx(tx, business, newPkg, billingCycle, false, overrides)
			if err != nil {
				return err
			}
			if err := s.applyActivations(tx, business.ID, newPkg, false); err != nil {
				return err
			}
			return s.setBusinessStatus(tx, business, subscription.Status)

		case current.Status == model.SubscriptionStatusTrial || applyImmediately:
			if err := s.closeSubscription(tx, current, model.SubscriptionStatusCancelled, s.now()); err != nil {
				return err
			}
			subscription, err = s.createSubscriptionTx(tx, business, newPkg, billingCycle, false, overrides)
			if err != nil {
				return err
			}
			if err := s.reconcileModules(tx, business.ID, current.Package, newPkg); err != nil {
				return err
			}
			// 从试用切换到付费：保留下来的启用记录摘掉试用标记
			if current.Status == model.SubscriptionStatusTrial {
				if err := tx.Model(&model.BusinessModule{}).
					Where("business_id = ? AND is_active = ?", business.ID, true).
					Update("trial_only", false).Error; err != nil {
					return err
				}
			}
			return s.setBusinessStatus(tx, business, subscription.Status)

		default:
			// 下个周期生效：当前订阅跑完本期
			current.IsAutoRenew = false
			if err := tx.Save(current).Error; err != nil {
				return err
			}

			subscription = s.buildSubscription(business, newPkg, billingCycle, overrides)
			subscription.Status = model.SubscriptionStatusPending
			subscription.StartDate = current.EndDate
			subscription.EndDate = s.periodEnd(current.EndDate, billingCycle)
			return tx.Create(subscription).Error
		}
	})
	if err != nil {
		return nil, err
	}

	s.auditService.LogSubscriptionOperation(business.ID, "package_change", subscription.ID.String(), "system", nil, map[string]interface{}{
		"package_id":        newPkg.ID.String(),
		"status":            subscription.Status,
		"apply_immediately": applyImmediately,
	})
	s.notifier.Notify(constants.NotifyEventPackageChanged, business, map[string]interface{}{
		"subscription_id": subscription.ID.String(),
		"package_id":      newPkg.ID.String(),
		"status":          subscription.Status,
	})

	return subscription, nil
}

// Cancel 取消企业订阅
// immediately时订阅立即置为cancelled并停用全部模块；
// 否则只关闭自动续费，当前周期照常运行到期。
func (s *EntitlementService) Cancel(business *model.Business, immediately bool) error {
	var cancelled *model.Subscription
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.lockBusiness(tx, business.ID); err != nil {
			return err
		}

		current, err := s.subscriptionRepo.GetCurrentTx(tx, business.ID.String())
		if err != nil {
			return err
		}
		if current == nil {
			return ErrNoCurrentSubscription
		}
		cancelled = current

		if !immediately {
			current.IsAutoRenew = false
			return tx.Save(current).Error
		}

		if err := s.closeSubscription(tx, current, model.SubscriptionStatusCancelled, s.now()); err != nil {
			return err
		}
		if err := s.businessModuleRepo.DeactivateAll(tx, business.ID); err != nil {
			return err
		}
		return s.setBusinessStatus(tx, business, model.SubscriptionStatusCancelled)
	})
	if err != nil {
		return err
	}

	s.auditService.LogSubscriptionOperation(business.ID, "cancel", cancelled.ID.String(), "system", nil, map[string]interface{}{
		"immediately": immediately,
	})
	s.notifier.Notify(constants.NotifyEventStatusChanged, business, map[string]interface{}{
		"subscription_id": cancelled.ID.String(),
		"status":          cancelled.Status,
	})

	return nil
}

// ActivatePendingSubscription 激活到期的pending订阅
// 旧的当前订阅（若仍存在）置为expired，模块按对称差对账。
func (s *EntitlementService) ActivatePendingSubscription(pending *model.Subscription) error {
	business, err := s.businessRepo.GetByID(pending.BusinessID.String())
	if err != nil {
		return err
	}

	newPkg, err := s.packageRepo.GetByID(pending.PackageID.String())
	if err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.lockBusiness(tx, business.ID); err != nil {
			return err
		}

		var row model.Subscription
		if err := tx.Where("id = ?", pending.ID).First(&row).Error; err != nil {
			return err
		}
		if row.Status != model.SubscriptionStatusPending {
			return ErrSubscriptionNotPending
		}

		current, err := s.subscriptionRepo.GetCurrentTx(tx, business.ID.String())
		if err != nil {
			return err
		}

		var oldPkg *model.Package
		if current != nil && current.ID != row.ID {
			oldPkg = current.Package
			if err := s.closeSubscription(tx, current, model.SubscriptionStatusExpired, current.EndDate); err != nil {
				return err
			}
		}

		row.Status = model.SubscriptionStatusActive
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		pending.Status = row.Status

		if err := s.reconcileModules(tx, business.ID, oldPkg, newPkg); err != nil {
			return err
		}

		return s.setBusinessStatus(tx, business, model.SubscriptionStatusActive)
	})
	if err != nil {
		return err
	}

	s.auditService.LogSubscriptionOperation(business.ID, "activate_pending", pending.ID.String(), "system", nil, map[string]interface{}{
		"package_id": newPkg.ID.String(),
	})
	s.notifier.Notify(constants.NotifyEventStatusChanged, business, map[string]interface{}{
		"subscription_id": pending.ID.String(),
		"status":          model.SubscriptionStatusActive,
	})

	return nil
}

// HandleTrialExpiration 试用到期转正
// 同一行原地trial→active，清除trial_ends_at，模块集合不变，
// 只把启用记录上的trial_only标记摘掉。
func (s *EntitlementService) HandleTrialExpiration(subscription *model.Subscription) error {
	business, err := s.businessRepo.GetByID(subscription.BusinessID.String())
	if err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.lockBusiness(tx, business.ID); err != nil {
			return err
		}

		var row model.Subscription
		if err := tx.Where("id = ?", subscription.ID).First(&row).Error; err != nil {
			return err
		}
		if row.Status != model.SubscriptionStatusTrial {
			return ErrSubscriptionNotTrial
		}

		row.Status = model.SubscriptionStatusActive
		row.TrialEndsAt = nil
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		subscription.Status = row.Status
		subscription.TrialEndsAt = nil

		if err := tx.Model(&model.BusinessModule{}).
			Where("business_id = ? AND is_active = ?", business.ID, true).
			Update("trial_only", false).Error; err != nil {
			return err
		}

		return s.setBusinessStatus(tx, business, model.SubscriptionStatusActive)
	})
	if err != nil {
		return err
	}

	s.auditService.LogSubscriptionOperation(business.ID, "trial_conversion", subscription.ID.String(), "system",
		map[string]interface{}{"status": model.SubscriptionStatusTrial},
		map[string]interface{}{"status": model.SubscriptionStatusActive},
	)
	s.notifier.Notify(constants.NotifyEventStatusChanged, business, map[string]interface{}{
		"subscription_id": subscription.ID.String(),
		"status":          model.SubscriptionStatusActive,
	})

	return nil
}

// GetCurrentSubscription 企业的当前订阅，不存在时返回(nil, nil)
func (s *EntitlementService) GetCurrentSubscription(business *model.Business) (*model.Subscription, error) {
	return s.subscriptionRepo.GetCurrent(business.ID.String())
}

// ActiveModules 企业当前启用的模块集合
func (s *EntitlementService) ActiveModules(business *model.Business) ([]*model.Module, error) {
	activations, err := s.businessModuleRepo.ListActive(business.ID.String())
	if err != nil {
		return nil, err
	}
	if len(activations) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(activations))
	for _, activation := range activations {
		ids = append(ids, activation.ModuleID)
	}

	var modules []*model.Module
	if err := s.db.Where("id IN ?", ids).Order("code").Find(&modules).Error; err != nil {
		return nil, err
	}
	return modules, nil
}

// ===== 内部工具 =====

// lockBusiness 锁定企业行，同一企业的订阅事务彼此串行
// Postgres READ COMMITTED下并发事务会读到同一份"当前订阅"，
// 没有行锁时两边都能落下trial/active行。SQLite写事务本身串行
// 且没有FOR UPDATE语法，跳过；partial唯一索引兜底两个后端。
func (s *EntitlementService) lockBusiness(tx *gorm.DB, businessID uuid.UUID) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	var locked model.Business
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").Take(&locked, "id = ?", businessID).Error
}

func (s *EntitlementService) resolvePackage(packageID uuid.UUID, startTrial bool) (*model.Package, error) {
	if startTrial {
		pkg, err := s.packageRepo.GetTrialPackage()
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrTrialPackageNotConfigured
			}
			return nil, err
		}
		return pkg, nil
	}

	pkg, err := s.packageRepo.GetByID(packageID.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPackageNotFound
		}
		return nil, err
	}
	return pkg, nil
}

func (s *EntitlementService) buildSubscription(business *model.Business, pkg *model.Package, billingCycle string, overrides *SubscriptionOverrides) *model.Subscription {
	subscription := &model.Subscription{
		BusinessID:   business.ID,
		PackageID:    pkg.ID,
		BillingCycle: billingCycle,
		Price:        s.CalculatePrice(pkg, billingCycle),
		IsAutoRenew:  true,
	}
	if overrides != nil {
		if overrides.Price != nil {
			subscription.Price = *overrides.Price
			subscription.PriceOverride = overrides.Price
		}
		subscription.UserLimitOverride = overrides.UserLimit
	}
	return subscription
}

func (s *EntitlementService) createSubscriptionTx(tx *gorm.DB, business *model.Business, pkg *model.Package, billingCycle string, startTrial bool, overrides *SubscriptionOverrides) (*model.Subscription, error) {
	now := s.now()
	subscription := s.buildSubscription(business, pkg, billingCycle, overrides)
	subscription.StartDate = now
	subscription.EndDate = s.periodEnd(now, billingCycle)

	if startTrial {
		subscription.Status = model.SubscriptionStatusTrial
		trialEnd := now.AddDate(0, 0, s.trialDays)
		subscription.TrialEndsAt = &trialEnd
	} else {
		subscription.Status = model.SubscriptionStatusActive
	}

	if err := tx.Create(subscription).Error; err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	return subscription, nil
}

func (s *EntitlementService) closeSubscription(tx *gorm.DB, subscription *model.Subscription, status string, endDate time.Time) error {
	subscription.Status = status
	subscription.EndDate = endDate
	subscription.IsAutoRenew = false
	return tx.Save(subscription).Error
}

// applyActivations 启用套餐内全部模块（幂等upsert，版本戳来自模块目录）
func (s *EntitlementService) applyActivations(tx *gorm.DB, businessID uuid.UUID, pkg *model.Package, trialOnly bool) error {
	for _, module := range pkg.Modules {
		if err := s.businessModuleRepo.Activate(tx, businessID, module.ID, module.Version, trialOnly); err != nil {
			return fmt.Errorf("failed to activate module %s: %w", module.Code, err)
		}
	}
	return nil
}

// reconcileModules 按新旧套餐模块集合的对称差对账
// 只停用旧集合独有的，只启用新集合独有的；两者共有的不动，
// 保留启用记录上的租户侧设置。
func (s *EntitlementService) reconcileModules(tx *gorm.DB, businessID uuid.UUID, oldPkg, newPkg *model.Package) error {
	oldSet := make(map[uuid.UUID]bool)
	if oldPkg != nil {
		for _, module := range oldPkg.Modules {
			oldSet[module.ID] = true
		}
	}

	newSet := make(map[uuid.UUID]bool, len(newPkg.Modules))
	for _, module := range newPkg.Modules {
		newSet[module.ID] = true
	}

	for moduleID := range oldSet {
		if !newSet[moduleID] {
			if err := s.businessModuleRepo.Deactivate(tx, businessID, moduleID); err != nil {
				return err
			}
		}
	}

	for _, module := range newPkg.Modules {
		if oldSet[module.ID] {
			continue
		}
		if err := s.businessModuleRepo.Activate(tx, businessID, module.ID, module.Version, false); err != nil {
			return err
		}
	}

	return nil
}

func (s *EntitlementService) setBusinessStatus(tx *gorm.DB, business *model.Business, status string) error {
	business.SubscriptionStatus = status
	return tx.Model(&model.Business{}).
		Where("id = ?", business.ID).
		Update("subscription_status", status).Error
}
