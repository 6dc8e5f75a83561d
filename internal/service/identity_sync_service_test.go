package service

import (
	"context"
	"testing"

	"github.com/bizhub-system/business-management/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestSyncToBusinessCreatesMirrorAndMembership(t *testing.T) {
	env := newTestEnv(t)
	business := env.createBusiness(t, "acme")
	user := env.createUser(t, "张伟", "zhangwei@example.com")

	ctx := context.Background()
	require.NoError(t, env.sync.SyncToBusiness(ctx, user, business, true, true))

	ids := env.mirrorGlobalIDs(t, business)
	require.Len(t, ids, 1)
	assert.Equal(t, user.GlobalID, ids[0])

	membership, err := env.identity.GetMembership(user, business)
	require.NoError(t, err)
	require.NotNil(t, membership)
	assert.True(t, membership.IsBusinessAdmin)
	assert.True(t, membership.IsPrimary)
}

func TestSyncToBusinessIdempotent(t *testing.T) {
	env := newTestEnv(t)
	business := env.createBusiness(t, "acme")
	user := env.createUser(t, "张伟", "zhangwei@example.com")

	ctx := context.Background()
	require.NoError(t, env.sync.SyncToBusiness(ctx, user, business, false, true))
	// 重复同步不产生第二个镜像，也不翻转成员标志
	require.NoError(t, env.sync.SyncToBusiness(ctx, user, business, true, false))

	assert.Len(t, env.mirrorGlobalIDs(t, business), 1)

	membership, err := env.identity.GetMembership(user, business)
	require.NoError(t, err)
	require.NotNil(t, membership)
	assert.True(t, membership.IsBusinessAdmin)
	assert.False(t, membership.IsPrimary)
}

func TestSyncToBusinessUnprovisioned(t *testing.T) {
	env := newTestEnv(t)
	business := env.createBareBusiness(t, "acme")
	user := env.createUser(t, "张伟", "zhangwei@example.com")

	err := env.sync.SyncToBusiness(context.Background(), user, business, false, false)
	assert.ErrorIs(t, err, ErrBusinessNotProvisioned)
}

func TestRemoveFromBusiness(t *testing.T) {
	env := newTestEnv(t)
	business := env.createBusiness(t, "acme")
	user := env.createUser(t, "张伟", "zhangwei@example.com")

	ctx := context.Background()
	require.NoError(t, env.sync.SyncToBusiness(ctx, user, business, false, false))
	require.NoError(t, env.sync.RemoveFromBusiness(ctx, user, business))

	assert.Empty(t, env.mirrorGlobalIDs(t, business))

	membership, err := env.identity.GetMembership(user, business)
	require.NoError(t, err)
	assert.Nil(t, membership)
}

func TestRemoveFromBusinessWithoutMirror(t *testing.T) {
	env := newTestEnv(t)
	business := env.createBusiness(t, "acme")
	user := env.createUser(t, "张伟", "zhangwei@example.com")

	// 只有成员关系、没有镜像：镜像删除是空操作，关系正常解除
	require.NoError(t, env.identity.AttachToBusiness(user, business, false, false))
	require.NoError(t, env.sync.RemoveFromBusiness(context.Background(), user, business))

	membership, err := env.identity.GetMembership(user, business)
	require.NoError(t, err)
	assert.Nil(t, membership)
}

func TestPropagateUpdateFansOutToAllPartitions(t *testing.T) {
	env := newTestEnv(t)
	first := env.createBusiness(t, "acme")
	second := env.createBusiness(t, "globex")
	user := env.createUser(t, "张伟", "zhangwei@example.com")

	ctx := context.Background()
	require.NoError(t, env.sync.SyncToBusiness(ctx, user, first, true, false))
	require.NoError(t, env.sync.SyncToBusiness(ctx, user, second, false, false))

	result, err := env.sync.PropagateUpdate(ctx, user, model.UpdateProfileRequest{Name: "张维"})
	require.NoError(t, err)
	assert.Len(t, result.Succeeded, 2)
	assert.Empty(t, result.Failed)

	// 中央记录和两个分区的镜像都拿到新名字
	central, err := env.identity.FindByGlobalID(user.GlobalID)
	require.NoError(t, err)
	assert.Equal(t, "张维", central.Name)

	for _, business := range []*model.Business{first, second} {
		mirror, err := env.sync.ResolveInTenant(ctx, user, business)
		require.NoError(t, err)
		require.NotNil(t, mirror)
		assert.Equal(t, "张维", mirror.Name)
	}
}

func TestPropagateUpdateReportsFailedPartitions(t *testing.T) {
	env := newTestEnv(t)
	healthy := env.createBusiness(t, "acme")
	broken := env.createBusiness(t, "globex")
	user := env.createUser(t, "张伟", "zhangwei@example.com")

	ctx := context.Background()
	require.NoError(t, env.sync.SyncToBusiness(ctx, user, healthy, true, false))
	require.NoError(t, env.sync.SyncToBusiness(ctx, user, broken, false, false))

	// 干掉第二个分区，传播只在它身上失败
	require.NoError(t, env.partitionStore.Destroy(*broken.TenantID))

	result, err := env.sync.PropagateUpdate(ctx, user, model.UpdateProfileRequest{Name: "张维"})
	require.NoError(t, err)
	assert.Equal(t, []string{healthy.ID.String()}, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, broken.ID.String(), result.Failed[0].BusinessID)
}

func TestPurgeUserRemovesMirrorsAndCentralRecord(t *testing.T) {
	env := newTestEnv(t)
	first := env.createBusiness(t, "acme")
	second := env.createBusiness(t, "globex")
	user := env.createUser(t, "张伟", "zhangwei@example.com")

	ctx := context.Background()
	require.NoError(t, env.sync.SyncToBusiness(ctx, user, first, true, false))
	require.NoError(t, env.sync.SyncToBusiness(ctx, user, second, false, false))

	require.NoError(t, env.sync.PurgeUser(ctx, user))

	// 两个分区的镜像、全部成员关系、中央记录都被清掉
	assert.Empty(t, env.mirrorGlobalIDs(t, first))
	assert.Empty(t, env.mirrorGlobalIDs(t, second))

	var membershipCount int64
	require.NoError(t, env.db.Model(&model.BusinessUser{}).
		Where("user_id = ?", user.ID).Count(&membershipCount).Error)
	assert.Zero(t, membershipCount)

	central, err := env.identity.FindByGlobalID(user.GlobalID)
	require.NoError(t, err)
	assert.Nil(t, central)

	// 物理删除，软删除行也不保留
	var rowCount int64
	require.NoError(t, env.db.Unscoped().Model(&model.User{}).
		Where("id = ?", user.ID).Count(&rowCount).Error)
	assert.Zero(t, rowCount)
}

func TestPurgeUserWithoutMemberships(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "张伟", "zhangwei@example.com")

	require.NoError(t, env.sync.PurgeUser(context.Background(), user))

	central, err := env.identity.FindByGlobalID(user.GlobalID)
	require.NoError(t, err)
	assert.Nil(t, central)
}

func TestPropagateUpdateRejectsUnknownStatus(t *testing.T) {
	env := newTestEnv(t)
	business := env.createBusiness(t, "acme")
	user := env.createUser(t, "张伟", "zhangwei@example.com")

	ctx := context.Background()
	require.NoError(t, env.sync.SyncToBusiness(ctx, user, business, true, false))

	_, err := env.sync.PropagateUpdate(ctx, user, model.UpdateProfileRequest{Status: "banned"})
	assert.ErrorIs(t, err, ErrInvalidUserStatus)

	// 非法状态被拒绝时中央记录和镜像都不变
	central, err := env.identity.FindByGlobalID(user.GlobalID)
	require.NoError(t, err)
	assert.Equal(t, model.UserStatusActive, central.Status)

	mirror, err := env.sync.ResolveInTenant(ctx, user, business)
	require.NoError(t, err)
	require.NotNil(t, mirror)
	assert.Equal(t, model.UserStatusActive, mirror.Status)
}

func TestResolveInTenantMissingMirror(t *testing.T) {
	env := newTestEnv(t)
	business := env.createBusiness(t, "acme")
	user := env.createUser(t, "张伟", "zhangwei@example.com")

	mirror, err := env.sync.ResolveInTenant(context.Background(), user, business)
	require.NoError(t, err)
	assert.Nil(t, mirror)
}

func TestRunInRejectsNesting(t *testing.T) {
	env := newTestEnv(t)
	business := env.createBusiness(t, "acme")
	other := env.createBusiness(t, "globex")

	err := env.contextSwitch.RunIn(context.Background(), *business.TenantID, func(ctx context.Context, db *gorm.DB) error {
		// 分区上下文内不允许再切分区，同分区也不行
		inner := env.contextSwitch.RunIn(ctx, *other.TenantID, func(ctx context.Context, db *gorm.DB) error {
			return nil
		})
		assert.ErrorIs(t, inner, ErrNestedTenantContext)

		same := env.contextSwitch.RunIn(ctx, *business.TenantID, func(ctx context.Context, db *gorm.DB) error {
			return nil
		})
		assert.ErrorIs(t, same, ErrNestedTenantContext)
		return nil
	})
	require.NoError(t, err)
}
