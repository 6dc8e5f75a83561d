package worker

import (
	"context"
	"sync"
	"time"

	"github.com/bizhub-system/business-management/internal/repository"
	"github.com/bizhub-system/business-management/internal/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SubscriptionLifecycleWorker 订阅生命周期定时任务
// 周期性执行两件事：把trial_ends_at已过的试用订阅原地转正，
// 把start_date已到的pending订阅激活。两个动作都走EntitlementService
// 的状态机，单条失败只记日志，不影响同批其他订阅。
type SubscriptionLifecycleWorker struct {
	subscriptionRepo   *repository.SubscriptionRepository
	entitlementService *service.EntitlementService
	cron               *cron.Cron
	cronExpr           string
	logger             *zap.Logger
	wg                 sync.WaitGroup
	ctx                context.Context
	cancel             context.CancelFunc
	now                func() time.Time
}

func NewSubscriptionLifecycleWorker(
	subscriptionRepo *repository.SubscriptionRepository,
	entitlementService *service.EntitlementService,
	cronExpr string,
	logger *zap.Logger,
) *SubscriptionLifecycleWorker {
	ctx, cancel := context.WithCancel(context.Background())

	if cronExpr == "" {
		cronExpr = "0 0 * * * *" // 默认每小时
	}

	return &SubscriptionLifecycleWorker{
		subscriptionRepo:   subscriptionRepo,
		entitlementService: entitlementService,
		cron:               cron.New(cron.WithSeconds()),
		cronExpr:           cronExpr,
		logger:             logger,
		ctx:                ctx,
		cancel:             cancel,
		now:                time.Now,
	}
}

func (w *SubscriptionLifecycleWorker) Start() error {
	w.logger.Info("启动订阅生命周期任务", zap.String("cron", w.cronExpr))

	if _, err := w.cron.AddFunc(w.cronExpr, w.RunOnce); err != nil {
		return err
	}
	w.cron.Start()
	return nil
}

func (w *SubscriptionLifecycleWorker) Stop() {
	w.logger.Info("停止订阅生命周期任务")
	w.cancel()
	stopCtx := w.cron.Stop()
	<-stopCtx.Done()
	w.wg.Wait()
}

// RunOnce 执行一轮扫描，供cron回调和手动触发共用
func (w *SubscriptionLifecycleWorker) RunOnce() {
	select {
	case <-w.ctx.Done():
		return
	default:
	}

	w.wg.Add(1)
	defer w.wg.Done()

	w.ExpireTrials()
	w.ActivatePending()
}

// ExpireTrials 处理到期试用
func (w *SubscriptionLifecycleWorker) ExpireTrials() {
	expired, err := w.subscriptionRepo.ListExpiredTrials(w.now())
	if err != nil {
		w.logger.Error("查询到期试用订阅失败", zap.Error(err))
		return
	}
	if len(expired) == 0 {
		return
	}

	w.logger.Info("发现到期试用订阅", zap.Int("count", len(expired)))

	for _, subscription := range expired {
		if err := w.entitlementService.HandleTrialExpiration(subscription); err != nil {
			w.logger.Error("试用转正失败",
				zap.String("subscription_id", subscription.ID.String()),
				zap.String("business_id", subscription.BusinessID.String()),
				zap.Error(err))
		}
	}
}

// ActivatePending 激活到期的pending订阅
func (w *SubscriptionLifecycleWorker) ActivatePending() {
	due, err := w.subscriptionRepo.ListDuePending(w.now())
	if err != nil {
		w.logger.Error("查询待激活订阅失败", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}

	w.logger.Info("发现待激活订阅", zap.Int("count", len(due)))

	for _, subscription := range due {
		if err := w.entitlementService.ActivatePendingSubscription(subscription); err != nil {
			w.logger.Error("激活pending订阅失败",
				zap.String("subscription_id", subscription.ID.String()),
				zap.String("business_id", subscription.BusinessID.String()),
				zap.Error(err))
		}
	}
}
