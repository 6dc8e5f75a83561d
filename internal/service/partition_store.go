package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bizhub-system/business-management/internal/constants"
	"github.com/bizhub-system/business-management/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PartitionStore 租户分区生命周期管理
// 分区标识全局唯一且与企业一一对应；冲突视为可重试，重新生成标识，
// 底层存储创建失败视为致命错误直接上抛。
type PartitionStore struct {
	backend    repository.PartitionBackend
	manager    *PartitionManager
	logger     *zap.Logger
	generateID func() string
}

func NewPartitionStore(backend repository.PartitionBackend, manager *PartitionManager, logger *zap.Logger) *PartitionStore {
	return &PartitionStore{
		backend:    backend,
		manager:    manager,
		logger:     logger,
		generateID: defaultPartitionID,
	}
}

func defaultPartitionID() string {
	return constants.PartitionIDPrefix + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// Provision 分配新分区并物化底层存储，返回分区标识
func (s *PartitionStore) Provision(businessID string) (string, error) {
	for attempt := 1; attempt <= constants.ProvisionMaxAttempts; attempt++ {
		partitionID := s.generateID()

		err := s.backend.Create(partitionID)
		if err == nil {
			s.logger.Info("tenant partition provisioned",
				zap.String("business_id", businessID),
				zap.String("partition_id", partitionID),
			)
			return partitionID, nil
		}

		if errors.Is(err, repository.ErrPartitionExists) {
			s.logger.Warn("partition id collision, regenerating",
				zap.String("partition_id", partitionID),
				zap.Int("attempt", attempt),
			)
			continue
		}

		return "", fmt.Errorf("failed to create tenant partition: %w", err)
	}

	return "", ErrPartitionAllocation
}

// Locate 按分区标识获取句柄
func (s *PartitionStore) Locate(partitionID string) (*gorm.DB, error) {
	return s.manager.GetHandle(partitionID)
}

// Destroy 销毁分区及其全部镜像数据
// 只能在所属企业删除（或同一清退流程中删除）之后调用，避免悬空的tenant_id指针。
func (s *PartitionStore) Destroy(partitionID string) error {
	s.manager.RemoveHandle(partitionID)

	if err := s.backend.Drop(partitionID); err != nil {
		if errors.Is(err, repository.ErrPartitionNotFound) {
			return ErrPartitionNotFound
		}
		return fmt.Errorf("failed to destroy tenant partition: %w", err)
	}

	s.logger.Info("tenant partition destroyed", zap.String("partition_id", partitionID))
	return nil
}

// Exists 分区是否存在
func (s *PartitionStore) Exists(partitionID string) (bool, error) {
	return s.backend.Exists(partitionID)
}
