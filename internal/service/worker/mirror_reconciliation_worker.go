package worker

import (
	"context"
	"sync"
	"time"

	"github.com/bizhub-system/business-management/internal/model"
	"github.com/bizhub-system/business-management/internal/repository"
	"github.com/bizhub-system/business-management/internal/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MirrorReconciliationWorker 身份镜像对账扫描
//
// 双步同步（镜像写入+成员关系登记）跨两个存储域，不是原子的，
// 中途崩溃会留下漂移。本扫描逐企业比对中央成员集合与分区内镜像集合：
// 缺失的镜像重新执行同步补齐，孤儿镜像（成员关系已不存在）删除。
// 两个修复动作都是幂等的，重复扫描收敛到一致状态。
type MirrorReconciliationWorker struct {
	businessRepo   *repository.BusinessRepository
	userRepo       *repository.UserRepository
	tenantUserRepo *repository.TenantUserRepository
	contextSwitch  *service.TenantContextSwitch
	syncService    *service.IdentitySyncService
	logger         *zap.Logger
	wg             sync.WaitGroup
	ctx            context.Context
	cancel         context.CancelFunc
	sweepInterval  time.Duration
	sem            chan struct{}
}

func NewMirrorReconciliationWorker(
	businessRepo *repository.BusinessRepository,
	userRepo *repository.UserRepository,
	tenantUserRepo *repository.TenantUserRepository,
	contextSwitch *service.TenantContextSwitch,
	syncService *service.IdentitySyncService,
	sweepInterval time.Duration,
	maxConcurrency int,
	logger *zap.Logger,
) *MirrorReconciliationWorker {
	ctx, cancel := context.WithCancel(context.Background())

	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Minute
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}

	return &MirrorReconciliationWorker{
		businessRepo:   businessRepo,
		userRepo:       userRepo,
		tenantUserRepo: tenantUserRepo,
		contextSwitch:  contextSwitch,
		syncService:    syncService,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
		sweepInterval:  sweepInterval,
		sem:            make(chan struct{}, maxConcurrency),
	}
}

func (w *MirrorReconciliationWorker) Start() {
	w.logger.Info("启动镜像对账扫描", zap.Duration("interval", w.sweepInterval))

	w.Sweep()

	w.wg.Add(1)
	go w.scheduler()
}

func (w *MirrorReconciliationWorker) Stop() {
	w.logger.Info("停止镜像对账扫描")
	w.cancel()
	w.wg.Wait()
}

func (w *MirrorReconciliationWorker) scheduler() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.Sweep()
		}
	}
}

// Sweep 执行一轮全量对账
func (w *MirrorReconciliationWorker) Sweep() {
	businesses, err := w.businessRepo.ListProvisioned()
	if err != nil {
		w.logger.Error("查询已开通企业失败", zap.Error(err))
		return
	}

	for _, business := range businesses {
		w.wg.Add(1)
		go func(b *model.Business) {
			defer w.wg.Done()
			w.reconcileBusiness(b)
		}(business)
	}
}

// reconcileBusiness 对账单个企业
func (w *MirrorReconciliationWorker) reconcileBusiness(business *model.Business) {
	w.sem <- struct{}{}
	defer func() { <-w.sem }()

	select {
	case <-w.ctx.Done():
		return
	default:
	}

	members, err := w.userRepo.ListBusinessMembers(business.ID.String())
	if err != nil {
		w.logger.Error("查询企业成员失败",
			zap.String("business_id", business.ID.String()), zap.Error(err))
		return
	}

	// 中央侧：global_id -> 成员关系
	expected := make(map[string]*model.BusinessUser, len(members))
	users := make(map[string]*model.User, len(members))
	for _, member := range members {
		user, err := w.userRepo.GetByID(member.UserID.String())
		if err != nil {
			w.logger.Error("加载成员用户失败",
				zap.String("user_id", member.UserID.String()), zap.Error(err))
			continue
		}
		expected[user.GlobalID] = member
		users[user.GlobalID] = user
	}

	// 分区侧：镜像的global_id集合
	var mirrored []string
	err = w.contextSwitch.RunIn(w.ctx, *business.TenantID, func(ctx context.Context, db *gorm.DB) error {
		var listErr error
		mirrored, listErr = w.tenantUserRepo.ListGlobalIDs(db)
		return listErr
	})
	if err != nil {
		w.logger.Error("读取分区镜像集合失败",
			zap.String("business_id", business.ID.String()),
			zap.String("partition_id", *business.TenantID), zap.Error(err))
		return
	}

	mirrorSet := make(map[string]bool, len(mirrored))
	for _, globalID := range mirrored {
		mirrorSet[globalID] = true
	}

	var repaired, removed int

	// 缺失镜像：重新执行同步
	for globalID, member := range expected {
		if mirrorSet[globalID] {
			continue
		}
		user := users[globalID]
		if err := w.syncService.SyncToBusiness(w.ctx, user, business, member.IsPrimary, member.IsBusinessAdmin); err != nil {
			w.logger.Error("补齐缺失镜像失败",
				zap.String("business_id", business.ID.String()),
				zap.String("global_id", globalID), zap.Error(err))
			continue
		}
		repaired++
	}

	// 孤儿镜像：成员关系已不存在，删除
	for _, globalID := range mirrored {
		if _, ok := expected[globalID]; ok {
			continue
		}
		gid := globalID
		err := w.contextSwitch.RunIn(w.ctx, *business.TenantID, func(ctx context.Context, db *gorm.DB) error {
			return w.tenantUserRepo.DeleteByGlobalID(db, gid)
		})
		if err != nil {
			w.logger.Error("删除孤儿镜像失败",
				zap.String("business_id", business.ID.String()),
				zap.String("global_id", gid), zap.Error(err))
			continue
		}
		removed++
	}

	if repaired > 0 || removed > 0 {
		w.logger.Info("镜像对账完成",
			zap.String("business_id", business.ID.String()),
			zap.Int("repaired", repaired),
			zap.Int("removed", removed))
	}
}
