package service

import (
	"errors"
	"sync"
	"time"

	"github.com/bizhub-system/business-management/internal/repository"
	"gorm.io/gorm"
)

// PartitionManager 租户分区句柄管理器
// 按分区标识缓存已打开的句柄，超出上限时按最近使用时间逐出最旧的。
type PartitionManager struct {
	backend    repository.PartitionBackend
	handles    map[string]*PartitionHandle
	mutex      sync.RWMutex
	timeout    time.Duration
	maxHandles int
}

type PartitionHandle struct {
	DB       *gorm.DB
	LastUsed time.Time
}

func NewPartitionManager(backend repository.PartitionBackend, timeout time.Duration, maxHandles int) *PartitionManager {
	if maxHandles <= 0 {
		maxHandles = 32
	}
	return &PartitionManager{
		backend:    backend,
		handles:    make(map[string]*PartitionHandle),
		timeout:    timeout,
		maxHandles: maxHandles,
	}
}

// GetHandle 获取分区句柄，未缓存时通过后端打开
func (pm *PartitionManager) GetHandle(partitionID string) (*gorm.DB, error) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	if handle, exists := pm.handles[partitionID]; exists {
		handle.LastUsed = time.Now()
		return handle.DB, nil
	}

	db, err := pm.backend.Open(partitionID)
	if err != nil {
		if errors.Is(err, repository.ErrPartitionNotFound) {
			return nil, ErrPartitionNotFound
		}
		return nil, err
	}

	pm.handles[partitionID] = &PartitionHandle{
		DB:       db,
		LastUsed: time.Now(),
	}

	pm.cleanupOldHandles()

	return db, nil
}

func (pm *PartitionManager) cleanupOldHandles() {
	if len(pm.handles) <= pm.maxHandles {
		return
	}

	var oldestKey string
	var oldestTime = time.Now()

	for key, handle := range pm.handles {
		if handle.LastUsed.Before(oldestTime) {
			oldestTime = handle.LastUsed
			oldestKey = key
		}
	}

	if oldestKey != "" {
		pm.closeHandle(oldestKey)
	}
}

// RemoveHandle 关闭并移除缓存的句柄（分区销毁时调用）
func (pm *PartitionManager) RemoveHandle(partitionID string) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	pm.closeHandle(partitionID)
}

func (pm *PartitionManager) closeHandle(partitionID string) {
	handle, exists := pm.handles[partitionID]
	if !exists {
		return
	}
	if sqlDB, err := handle.DB.DB(); err == nil {
		sqlDB.Close()
	}
	delete(pm.handles, partitionID)
}

// Timeout 单次租户上下文操作的超时上限
func (pm *PartitionManager) Timeout() time.Duration {
	return pm.timeout
}
