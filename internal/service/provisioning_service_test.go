package service

import (
	"context"
	"testing"

	"github.com/bizhub-system/business-management/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registrationFixture() *model.RegistrationRequest {
	return &model.RegistrationRequest{
		BusinessName:  "acme",
		BusinessEmail: "hello@acme.example.com",
		AdminName:     "张伟",
		AdminEmail:    "admin@acme.example.com",
		AdminPassword: "password123",
	}
}

func TestProvisionFullFlow(t *testing.T) {
	env := newTestEnv(t)
	modules := env.createModules(t, "core", "hr")
	env.createPackage(t, "全功能试用", 0, true, modules)

	req := registrationFixture()
	req.StartTrial = true

	business, err := env.provisioning.Provision(context.Background(), req)
	require.NoError(t, err)

	// 企业已落库并拿到分区
	assert.True(t, business.IsProvisioned())
	exists, err := env.partitionStore.Exists(*business.TenantID)
	require.NoError(t, err)
	assert.True(t, exists)

	// 管理员账号、成员关系、分区镜像齐备
	admin, err := env.identity.FindByEmail(req.AdminEmail)
	require.NoError(t, err)
	require.NotNil(t, admin)

	membership, err := env.identity.GetMembership(admin, business)
	require.NoError(t, err)
	require.NotNil(t, membership)
	assert.True(t, membership.IsBusinessAdmin)
	assert.True(t, membership.IsPrimary)

	ids := env.mirrorGlobalIDs(t, business)
	require.Len(t, ids, 1)
	assert.Equal(t, admin.GlobalID, ids[0])

	// 试用订阅已就位
	sub, err := env.entitlement.GetCurrentSubscription(business)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, model.SubscriptionStatusTrial, sub.Status)
	assert.Len(t, env.activeModuleCodes(t, business), 2)
}

func TestProvisionWithoutSubscription(t *testing.T) {
	env := newTestEnv(t)

	business, err := env.provisioning.Provision(context.Background(), registrationFixture())
	require.NoError(t, err)

	sub, err := env.entitlement.GetCurrentSubscription(business)
	require.NoError(t, err)
	assert.Nil(t, sub)
}

func TestProvisionIsResumable(t *testing.T) {
	env := newTestEnv(t)
	modules := env.createModules(t, "core")
	env.createPackage(t, "全功能试用", 0, true, modules)

	req := registrationFixture()
	req.StartTrial = true

	ctx := context.Background()
	first, err := env.provisioning.Provision(ctx, req)
	require.NoError(t, err)

	// 同一请求重放：每一步都命中前置条件检查，全部复用已有资源
	second, err := env.provisioning.Provision(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, *first.TenantID, *second.TenantID)

	var businessCount, userCount, subCount int64
	require.NoError(t, env.db.Model(&model.Business{}).Count(&businessCount).Error)
	require.NoError(t, env.db.Model(&model.User{}).Count(&userCount).Error)
	require.NoError(t, env.db.Model(&model.Subscription{}).Count(&subCount).Error)
	assert.EqualValues(t, 1, businessCount)
	assert.EqualValues(t, 1, userCount)
	assert.EqualValues(t, 1, subCount)

	assert.Len(t, env.mirrorGlobalIDs(t, second), 1)
}

func TestProvisionRejectsDuplicateNameWithDifferentEmail(t *testing.T) {
	env := newTestEnv(t)

	ctx := context.Background()
	_, err := env.provisioning.Provision(ctx, registrationFixture())
	require.NoError(t, err)

	conflicting := registrationFixture()
	conflicting.BusinessEmail = "other@example.com"
	_, err = env.provisioning.Provision(ctx, conflicting)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "企业已存在")
}

func TestDeleteBusinessTearsDownEverything(t *testing.T) {
	env := newTestEnv(t)
	modules := env.createModules(t, "core")
	env.createPackage(t, "全功能试用", 0, true, modules)

	req := registrationFixture()
	req.StartTrial = true

	ctx := context.Background()
	business, err := env.provisioning.Provision(ctx, req)
	require.NoError(t, err)
	partitionID := *business.TenantID

	stats, err := env.deleter.PreCheckDeletion(business)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MemberCount)
	assert.Equal(t, 1, stats.ActiveModuleCount)
	assert.Equal(t, 1, stats.SubscriptionCount)
	assert.True(t, stats.HasPartition)

	require.NoError(t, env.deleter.DeleteBusiness(business))

	exists, err := env.partitionStore.Exists(partitionID)
	require.NoError(t, err)
	assert.False(t, exists)

	reloaded, err := env.businessRepo.GetByID(business.ID.String())
	require.Error(t, err)
	assert.Nil(t, reloaded)

	// 中央用户保留，只有成员关系被解除
	admin, err := env.identity.FindByEmail(req.AdminEmail)
	require.NoError(t, err)
	require.NotNil(t, admin)
	memberships, err := env.identity.ListMemberships(admin)
	require.NoError(t, err)
	assert.Empty(t, memberships)

	var subCount int64
	require.NoError(t, env.db.Model(&model.Subscription{}).
		Where("business_id = ?", business.ID).Count(&subCount).Error)
	assert.Zero(t, subCount)
}
