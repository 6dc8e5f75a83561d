package worker

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/bizhub-system/business-management/internal/model"
	"github.com/bizhub-system/business-management/internal/repository"
	"github.com/bizhub-system/business-management/internal/service"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type reconcileFixture struct {
	db             *gorm.DB
	businessRepo   *repository.BusinessRepository
	userRepo       *repository.UserRepository
	tenantUserRepo *repository.TenantUserRepository
	partitionStore *service.PartitionStore
	contextSwitch  *service.TenantContextSwitch
	identity       *service.IdentityService
	sync           *service.IdentitySyncService
	worker         *MirrorReconciliationWorker
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:reconcile_%s?mode=memory&cache=shared",
		strings.ReplaceAll(uuid.New().String(), "-", ""))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Business{},
		&model.User{},
		&model.BusinessUser{},
		&model.AuditEvent{},
	))

	logger := zap.NewNop()
	backend := repository.NewMemoryPartitionBackend()
	manager := service.NewPartitionManager(backend, 0, 16)

	f := &reconcileFixture{
		db:             db,
		businessRepo:   repository.NewBusinessRepository(db),
		userRepo:       repository.NewUserRepository(db),
		tenantUserRepo: repository.NewTenantUserRepository(),
		partitionStore: service.NewPartitionStore(backend, manager, logger),
		contextSwitch:  service.NewTenantContextSwitch(manager),
	}
	f.identity = service.NewIdentityService(f.userRepo, service.NoopNotifier{}, logger)
	f.sync = service.NewIdentitySyncService(
		f.identity, f.businessRepo, f.tenantUserRepo, f.contextSwitch,
		service.NewAuditService(repository.NewAuditRepository(db)), logger, 4,
	)
	f.worker = NewMirrorReconciliationWorker(
		f.businessRepo, f.userRepo, f.tenantUserRepo,
		f.contextSwitch, f.sync, 0, 0, logger,
	)
	return f
}

func (f *reconcileFixture) seedBusiness(t *testing.T, name string) *model.Business {
	t.Helper()
	business := &model.Business{Name: name, Email: name + "@example.com"}
	require.NoError(t, f.businessRepo.Create(business))

	partitionID, err := f.partitionStore.Provision(business.ID.String())
	require.NoError(t, err)
	require.NoError(t, f.businessRepo.SetTenantID(business.ID.String(), partitionID))
	business.TenantID = &partitionID
	return business
}

func (f *reconcileFixture) mirrorIDs(t *testing.T, business *model.Business) []string {
	t.Helper()
	handle, err := f.partitionStore.Locate(*business.TenantID)
	require.NoError(t, err)
	ids, err := f.tenantUserRepo.ListGlobalIDs(handle)
	require.NoError(t, err)
	return ids
}

func TestSweepRepairsMissingMirror(t *testing.T) {
	f := newReconcileFixture(t)
	business := f.seedBusiness(t, "acme")

	// 成员关系在、镜像缺失：模拟双步同步第二步之后分区数据丢失
	user, err := f.identity.CreateUser("张伟", "zhangwei@example.com", "password123")
	require.NoError(t, err)
	require.NoError(t, f.identity.AttachToBusiness(user, business, true, true))
	require.Empty(t, f.mirrorIDs(t, business))

	f.worker.Sweep()
	f.worker.wg.Wait()

	ids := f.mirrorIDs(t, business)
	require.Len(t, ids, 1)
	assert.Equal(t, user.GlobalID, ids[0])
}

func TestSweepRemovesOrphanMirror(t *testing.T) {
	f := newReconcileFixture(t)
	business := f.seedBusiness(t, "acme")

	ctx := context.Background()
	member, err := f.identity.CreateUser("张伟", "zhangwei@example.com", "password123")
	require.NoError(t, err)
	require.NoError(t, f.sync.SyncToBusiness(ctx, member, business, true, true))

	// 孤儿镜像：分区里有镜像，但中央已无对应成员关系
	orphan := &model.TenantUser{
		GlobalID: uuid.New().String(),
		Name:     "李娜",
		Email:    "lina@example.com",
		Status:   model.UserStatusActive,
	}
	err = f.contextSwitch.RunIn(ctx, *business.TenantID, func(ctx context.Context, db *gorm.DB) error {
		return f.tenantUserRepo.Create(db, orphan)
	})
	require.NoError(t, err)
	require.Len(t, f.mirrorIDs(t, business), 2)

	f.worker.Sweep()
	f.worker.wg.Wait()

	ids := f.mirrorIDs(t, business)
	require.Len(t, ids, 1)
	assert.Equal(t, member.GlobalID, ids[0])
}

func TestSweepConverges(t *testing.T) {
	f := newReconcileFixture(t)
	business := f.seedBusiness(t, "acme")

	user, err := f.identity.CreateUser("张伟", "zhangwei@example.com", "password123")
	require.NoError(t, err)
	require.NoError(t, f.identity.AttachToBusiness(user, business, false, false))

	// 重复扫描收敛：第二轮不再有可修复项，镜像集合稳定
	f.worker.Sweep()
	f.worker.wg.Wait()
	f.worker.Sweep()
	f.worker.wg.Wait()

	assert.Len(t, f.mirrorIDs(t, business), 1)
}
