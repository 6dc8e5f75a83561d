package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/bizhub-system/business-management/internal/model"
	"github.com/bizhub-system/business-management/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// IdentitySyncService 中央身份与租户镜像的同步协议
//
// 同步顺序是刻意选择的：先写租户镜像，成功后再写中央成员关系。
// 中途崩溃只会留下"有镜像、无成员关系"的状态，以成员关系为准的
// 对账扫描会清掉这种镜像；反向顺序会留下指向无镜像企业的成员关系。
// 两步各自幂等，SyncIncomplete可安全重试。
type IdentitySyncService struct {
	identity       *IdentityService
	businessRepo   *repository.BusinessRepository
	tenantUserRepo *repository.TenantUserRepository
	contextSwitch  *TenantContextSwitch
	auditService   *AuditService
	logger         *zap.Logger
	maxConcurrency int
}

func NewIdentitySyncService(
	identity *IdentityService,
	businessRepo *repository.BusinessRepository,
	tenantUserRepo *repository.TenantUserRepository,
	contextSwitch *TenantContextSwitch,
	auditService *AuditService,
	logger *zap.Logger,
	maxConcurrency int,
) *IdentitySyncService {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &IdentitySyncService{
		identity:       identity,
		businessRepo:   businessRepo,
		tenantUserRepo: tenantUserRepo,
		contextSwitch:  contextSwitch,
		auditService:   auditService,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// SyncToBusiness 把中央用户同步进企业的租户分区
// 首次同步在分区内按邮箱创建镜像（已存在则不动，幂等创建而非幂等更新），
// 然后在中央域落成员关系。成功返回后该(用户,企业)对的镜像不变式成立。
func (s *IdentitySyncService) SyncToBusiness(ctx context.Context, user *model.User, business *model.Business, isPrimary, isAdmin bool) error {
	if !business.IsProvisioned() {
		return ErrBusinessNotProvisioned
	}

	err := s.contextSwitch.RunIn(ctx, *business.TenantID, func(ctx context.Context, db *gorm.DB) error {
		mirror, err := s.tenantUserRepo.FindByEmail(db, user.Email)
		if err != nil {
			return err
		}
		if mirror != nil {
			return nil
		}

		return s.tenantUserRepo.Create(db, &model.TenantUser{
			GlobalID:     user.GlobalID,
			Name:         user.Name,
			Email:        user.Email,
			PasswordHash: user.PasswordHash,
			Status:       model.UserStatusActive,
			VerifiedAt:   user.VerifiedAt,
		})
	})
	if err != nil {
		return fmt.Errorf("%w: 镜像写入失败: %v", ErrSyncIncomplete, err)
	}

	// 回到中央域落成员关系；已存在时不覆盖pivot标志
	membership, err := s.identity.GetMembership(user, business)
	if err != nil {
		return fmt.Errorf("%w: 成员关系读取失败: %v", ErrSyncIncomplete, err)
	}
	if membership == nil {
		if err := s.identity.AttachToBusiness(user, business, isPrimary, isAdmin); err != nil {
			return fmt.Errorf("%w: 成员关系写入失败: %v", ErrSyncIncomplete, err)
		}
	}

	s.auditService.LogIdentityOperation(business.ID, "sync", user.GlobalID, "system", map[string]interface{}{
		"email": user.Email,
	})

	return nil
}

// RemoveFromBusiness 把用户从企业移除
// 先删镜像再解除成员关系：中途崩溃留下的是"有成员关系、无镜像"，
// 由对账扫描重新同步补齐，不会产生无人引用的孤儿镜像。
// 镜像不存在（从未同步过）时删除为空操作，随后正常解除成员关系。
func (s *IdentitySyncService) RemoveFromBusiness(ctx context.Context, user *model.User, business *model.Business) error {
	if business.IsProvisioned() {
		err := s.contextSwitch.RunIn(ctx, *business.TenantID, func(ctx context.Context, db *gorm.DB) error {
			return s.tenantUserRepo.DeleteByGlobalID(db, user.GlobalID)
		})
		if err != nil {
			return fmt.Errorf("%w: 镜像删除失败: %v", ErrSyncIncomplete, err)
		}
	}

	if err := s.identity.DetachFromBusiness(user, business); err != nil {
		return fmt.Errorf("%w: 成员关系解除失败: %v", ErrSyncIncomplete, err)
	}

	s.auditService.LogIdentityOperation(business.ID, "remove", user.GlobalID, "system", map[string]interface{}{
		"email": user.Email,
	})

	return nil
}

// PurgeUser 彻底清退中央用户
// 逐企业执行移除（先删镜像、再解成员关系），全部成功后才物理删除
// 中央记录，不留无主镜像。任一企业移除失败则中止并保留中央记录，
// 各步幂等，重试收敛。
func (s *IdentitySyncService) PurgeUser(ctx context.Context, user *model.User) error {
	memberships, err := s.identity.ListMemberships(user)
	if err != nil {
		return fmt.Errorf("failed to list memberships: %w", err)
	}

	for _, membership := range memberships {
		business, err := s.businessRepo.GetByID(membership.BusinessID.String())
		if err != nil {
			return fmt.Errorf("failed to load business %s: %w", membership.BusinessID, err)
		}
		if err := s.RemoveFromBusiness(ctx, user, business); err != nil {
			return err
		}
	}

	if err := s.identity.userRepo.HardDelete(user.ID.String()); err != nil {
		return fmt.Errorf("failed to purge user %s: %w", user.GlobalID, err)
	}

	s.logger.Info("central user purged",
		zap.String("global_id", user.GlobalID),
		zap.Int("businesses", len(memberships)),
	)
	return nil
}

// PartitionFailure 单个分区的传播失败
type PartitionFailure struct {
	BusinessID  string `json:"business_id"`
	PartitionID string `json:"partition_id"`
	Error       string `json:"error"`
}

// PropagateResult 属性传播的聚合结果
type PropagateResult struct {
	Succeeded []string           `json:"succeeded"`
	Failed    []PartitionFailure `json:"failed"`
}

// PropagateUpdate 更新中央用户的受限属性子集并扇出到所有租户镜像
// 各分区更新相互独立：某个分区失败不阻止其余分区，调用方拿到
// 按分区聚合的结果，只需重试失败的分区。
func (s *IdentitySyncService) PropagateUpdate(ctx context.Context, user *model.User, req model.UpdateProfileRequest) (*PropagateResult, error) {
	if req.Status != "" && !model.ValidUserStatus(req.Status) {
		return nil, ErrInvalidUserStatus
	}

	attrs := mirrorAttrs(req)

	if req.Name != "" {
		user.Name = req.Name
	}
	if req.Email != "" {
		user.Email = req.Email
	}
	if req.Status != "" {
		user.Status = req.Status
	}
	if req.VerifiedAt != nil {
		user.VerifiedAt = req.VerifiedAt
	}
	if err := s.identity.userRepo.Update(user); err != nil {
		return nil, fmt.Errorf("failed to update central user: %w", err)
	}

	memberships, err := s.identity.ListMemberships(user)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}

	type target struct {
		businessID  string
		partitionID string
	}
	var targets []target
	for _, membership := range memberships {
		business, err := s.businessRepo.GetByID(membership.BusinessID.String())
		if err != nil {
			return nil, fmt.Errorf("failed to load business %s: %w", membership.BusinessID, err)
		}
		if !business.IsProvisioned() {
			continue
		}
		targets = append(targets, target{
			businessID:  business.ID.String(),
			partitionID: *business.TenantID,
		})
	}

	result := &PropagateResult{}
	if len(targets) == 0 {
		return result, nil
	}

	outcomes := make([]error, len(targets))
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for i, t := range targets {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, t target) {
			defer wg.Done()
			defer func() { <-sem }()

			outcomes[i] = s.contextSwitch.RunIn(ctx, t.partitionID, func(ctx context.Context, db *gorm.DB) error {
				return s.tenantUserRepo.UpdateAttrs(db, user.GlobalID, attrs)
			})
		}(i, t)
	}
	wg.Wait()

	for i, t := range targets {
		if outcomes[i] != nil {
			s.logger.Warn("mirror update failed",
				zap.String("business_id", t.businessID),
				zap.String("partition_id", t.partitionID),
				zap.Error(outcomes[i]),
			)
			result.Failed = append(result.Failed, PartitionFailure{
				BusinessID:  t.businessID,
				PartitionID: t.partitionID,
				Error:       outcomes[i].Error(),
			})
			continue
		}
		result.Succeeded = append(result.Succeeded, t.businessID)
	}

	return result, nil
}

// ResolveInTenant 在企业分区内按全局标识取用户的租户侧身份
// 角色/权限判定都经由这里，不存在时返回(nil, nil)。
func (s *IdentitySyncService) ResolveInTenant(ctx context.Context, user *model.User, business *model.Business) (*model.TenantUser, error) {
	if !business.IsProvisioned() {
		return nil, ErrBusinessNotProvisioned
	}

	var mirror *model.TenantUser
	err := s.contextSwitch.RunIn(ctx, *business.TenantID, func(ctx context.Context, db *gorm.DB) error {
		var err error
		mirror, err = s.tenantUserRepo.FindByGlobalID(db, user.GlobalID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return mirror, nil
}

// mirrorAttrs 过滤出允许同步到镜像的属性子集
func mirrorAttrs(req model.UpdateProfileRequest) map[string]interface{} {
	attrs := make(map[string]interface{})
	if req.Name != "" {
		attrs["name"] = req.Name
	}
	if req.Email != "" {
		attrs["email"] = req.Email
	}
	if req.Status != "" {
		attrs["status"] = req.Status
	}
	if req.VerifiedAt != nil {
		attrs["verified_at"] = req.VerifiedAt
	}
	return attrs
}
