package service

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

type tenantContextKey struct{}

// TenantContextSwitch 租户上下文切换器
// 分区绑定保存在派生的context.Context里：work返回后派生context随调用栈
// 消亡，恢复中央上下文由结构保证，不依赖调用方清理，任何退出路径
// （包括panic和超时取消）都不会把租户作用域泄漏给后续请求。
// 并发请求各自持有自己的context，互不可见。
type TenantContextSwitch struct {
	manager *PartitionManager
}

func NewTenantContextSwitch(manager *PartitionManager) *TenantContextSwitch {
	return &TenantContextSwitch{manager: manager}
}

// CurrentPartition 返回ctx当前绑定的分区标识
func CurrentPartition(ctx context.Context) (string, bool) {
	partitionID, ok := ctx.Value(tenantContextKey{}).(string)
	return partitionID, ok
}

// RunIn 在指定分区的上下文内执行work
// 已处于任一分区上下文时直接失败（不允许嵌套，也不允许同分区重入），
// 每次调用受PartitionManager配置的超时约束。
func (s *TenantContextSwitch) RunIn(ctx context.Context, partitionID string, work func(ctx context.Context, db *gorm.DB) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if bound, ok := CurrentPartition(ctx); ok {
		return fmt.Errorf("%w: 当前已绑定分区 %s", ErrNestedTenantContext, bound)
	}

	db, err := s.manager.GetHandle(partitionID)
	if err != nil {
		return err
	}

	runCtx := context.WithValue(ctx, tenantContextKey{}, partitionID)
	if timeout := s.manager.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}

	return work(runCtx, db.WithContext(runCtx))
}
