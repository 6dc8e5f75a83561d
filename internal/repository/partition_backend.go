package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bizhub-system/business-management/internal/config"
	"github.com/bizhub-system/business-management/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	ErrPartitionExists   = errors.New("partition already exists")
	ErrPartitionNotFound = errors.New("partition not found")
)

// PartitionBackend 租户分区的物理存储抽象
// Create对已存在的分区返回ErrPartitionExists（供上层做冲突重试），
// Open/Drop对不存在的分区返回ErrPartitionNotFound。
type PartitionBackend interface {
	Create(partitionID string) error
	Open(partitionID string) (*gorm.DB, error)
	Drop(partitionID string) error
	Exists(partitionID string) (bool, error)
}

// PostgresPartitionBackend 每租户一个schema的Postgres实现
type PostgresPartitionBackend struct {
	db  *gorm.DB
	cfg config.DatabaseConfig
}

func NewPostgresPartitionBackend(db *gorm.DB, cfg config.DatabaseConfig) *PostgresPartitionBackend {
	return &PostgresPartitionBackend{db: db, cfg: cfg}
}

var _ PartitionBackend = (*PostgresPartitionBackend)(nil)

func (b *PostgresPartitionBackend) Create(partitionID string) error {
	exists, err := b.Exists(partitionID)
	if err != nil {
		return err
	}
	if exists {
		return ErrPartitionExists
	}

	if err := b.db.Exec(fmt.Sprintf(`CREATE SCHEMA %q`, partitionID)).Error; err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return ErrPartitionExists
		}
		return fmt.Errorf("failed to create partition schema: %w", err)
	}

	// 分区内表结构迁移
	handle, err := b.Open(partitionID)
	if err != nil {
		return err
	}
	defer closeHandle(handle)

	if err := handle.AutoMigrate(&model.TenantUser{}); err != nil {
		return fmt.Errorf("failed to migrate partition schema: %w", err)
	}

	return nil
}

func (b *PostgresPartitionBackend) Open(partitionID string) (*gorm.DB, error) {
	exists, err := b.Exists(partitionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrPartitionNotFound
	}

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s search_path=%s",
		b.cfg.Host, b.cfg.Username, b.cfg.Password, b.cfg.DBName, b.cfg.Port, b.cfg.SSLMode, partitionID)
	if b.cfg.Timezone != "" {
		dsn += " TimeZone=" + b.cfg.Timezone
	}

	handle, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open partition %s: %w", partitionID, err)
	}
	return handle, nil
}

func (b *PostgresPartitionBackend) Drop(partitionID string) error {
	exists, err := b.Exists(partitionID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrPartitionNotFound
	}
	return b.db.Exec(fmt.Sprintf(`DROP SCHEMA %q CASCADE`, partitionID)).Error
}

func (b *PostgresPartitionBackend) Exists(partitionID string) (bool, error) {
	var count int64
	err := b.db.Raw(
		`SELECT COUNT(*) FROM information_schema.schemata WHERE schema_name = ?`,
		partitionID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func closeHandle(handle *gorm.DB) {
	if sqlDB, err := handle.DB(); err == nil {
		sqlDB.Close()
	}
}
