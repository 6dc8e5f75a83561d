package repository

import (
	"fmt"
	"sync"

	"github.com/bizhub-system/business-management/internal/model"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// MemoryPartitionBackend 进程内分区实现，每个分区一个独立的内存SQLite库
// 用于本地开发和测试，不依赖外部Postgres。
// 后端为每个分区持有一个锚连接：cache=shared的内存库在最后一个连接
// 关闭时即销毁，Open返回的句柄可以被上层任意关闭。
type MemoryPartitionBackend struct {
	mu      sync.RWMutex
	anchors map[string]*gorm.DB
}

func NewMemoryPartitionBackend() *MemoryPartitionBackend {
	return &MemoryPartitionBackend{
		anchors: make(map[string]*gorm.DB),
	}
}

var _ PartitionBackend = (*MemoryPartitionBackend)(nil)

func memoryDSN(partitionID string) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", partitionID)
}

func (b *MemoryPartitionBackend) Create(partitionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.anchors[partitionID]; exists {
		return ErrPartitionExists
	}

	anchor, err := gorm.Open(sqlite.Open(memoryDSN(partitionID)), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to create partition %s: %w", partitionID, err)
	}

	if err := anchor.AutoMigrate(&model.TenantUser{}); err != nil {
		return fmt.Errorf("failed to migrate partition %s: %w", partitionID, err)
	}

	b.anchors[partitionID] = anchor
	return nil
}

func (b *MemoryPartitionBackend) Open(partitionID string) (*gorm.DB, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, exists := b.anchors[partitionID]; !exists {
		return nil, ErrPartitionNotFound
	}

	handle, err := gorm.Open(sqlite.Open(memoryDSN(partitionID)), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open partition %s: %w", partitionID, err)
	}
	return handle, nil
}

func (b *MemoryPartitionBackend) Drop(partitionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	anchor, exists := b.anchors[partitionID]
	if !exists {
		return ErrPartitionNotFound
	}

	if sqlDB, err := anchor.DB(); err == nil {
		sqlDB.Close()
	}
	delete(b.anchors, partitionID)
	return nil
}

func (b *MemoryPartitionBackend) Exists(partitionID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, exists := b.anchors[partitionID]
	return exists, nil
}
