package service

import (
	"fmt"
	"strings"
	"testing"

	"github.com/bizhub-system/business-management/internal/model"
	"github.com/bizhub-system/business-management/internal/repository"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// testEnv 进程内测试环境：中央库和租户分区都跑在内存SQLite上
type testEnv struct {
	db      *gorm.DB
	backend *repository.MemoryPartitionBackend

	businessRepo       *repository.BusinessRepository
	userRepo           *repository.UserRepository
	tenantUserRepo     *repository.TenantUserRepository
	moduleRepo         *repository.ModuleRepository
	packageRepo        *repository.PackageRepository
	subscriptionRepo   *repository.SubscriptionRepository
	businessModuleRepo *repository.BusinessModuleRepository
	auditRepo          *repository.AuditRepository

	partitionManager *PartitionManager
	partitionStore   *PartitionStore
	contextSwitch    *TenantContextSwitch
	auditService     *AuditService
	identity         *IdentityService
	sync             *IdentitySyncService
	entitlement      *EntitlementService
	provisioning     *ProvisioningService
	deleter          *BusinessDeleter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:central_%s?mode=memory&cache=shared&_pragma=busy_timeout(10000)",
		strings.ReplaceAll(uuid.New().String(), "-", ""))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.Business{},
		&model.User{},
		&model.BusinessUser{},
		&model.Module{},
		&model.Package{},
		&model.Subscription{},
		&model.BusinessModule{},
		&model.AuditEvent{},
	))

	env := &testEnv{
		db:                 db,
		backend:            repository.NewMemoryPartitionBackend(),
		businessRepo:       repository.NewBusinessRepository(db),
		userRepo:           repository.NewUserRepository(db),
		tenantUserRepo:     repository.NewTenantUserRepository(),
		moduleRepo:         repository.NewModuleRepository(db),
		packageRepo:        repository.NewPackageRepository(db),
		subscriptionRepo:   repository.NewSubscriptionRepository(db),
		businessModuleRepo: repository.NewBusinessModuleRepository(db),
		auditRepo:          repository.NewAuditRepository(db),
	}

	logger := zap.NewNop()
	notifier := NoopNotifier{}

	env.partitionManager = NewPartitionManager(env.backend, 0, 16)
	env.partitionStore = NewPartitionStore(env.backend, env.partitionManager, logger)
	env.contextSwitch = NewTenantContextSwitch(env.partitionManager)
	env.auditService = NewAuditService(env.auditRepo)
	env.identity = NewIdentityService(env.userRepo, notifier, logger)
	env.sync = NewIdentitySyncService(
		env.identity, env.businessRepo, env.tenantUserRepo,
		env.contextSwitch, env.auditService, logger, 4,
	)
	env.entitlement = NewEntitlementService(
		db, env.businessRepo, env.packageRepo, env.subscriptionRepo,
		env.businessModuleRepo, env.moduleRepo, env.auditService,
		notifier, logger, 14,
	)
	env.provisioning = NewProvisioningService(
		env.businessRepo, env.partitionStore, env.identity,
		env.sync, env.entitlement, env.auditService, notifier, logger,
	)
	env.deleter = NewBusinessDeleter(
		db, env.businessRepo, env.userRepo, env.subscriptionRepo,
		env.businessModuleRepo, env.auditRepo, env.partitionStore, logger,
	)

	return env
}

// createModules 按代码创建目录模块
func (env *testEnv) createModules(t *testing.T, codes ...string) []model.Module {
	t.Helper()
	modules := make([]model.Module, 0, len(codes))
	for _, code := range codes {
		module := &model.Module{Code: code, Name: code, Version: "1.0.0"}
		require.NoError(t, env.moduleRepo.Create(module))
		modules = append(modules, *module)
	}
	return modules
}

// createPackage 创建套餐并挂上模块
func (env *testEnv) createPackage(t *testing.T, name string, basePrice float64, isTrial bool, modules []model.Module) *model.Package {
	t.Helper()
	pkg := &model.Package{
		Name:      name,
		BasePrice: basePrice,
		IsTrial:   isTrial,
		Modules:   modules,
	}
	require.NoError(t, env.db.Create(pkg).Error)
	return pkg
}

// createBusiness 创建企业并开通分区
func (env *testEnv) createBusiness(t *testing.T, name string) *model.Business {
	t.Helper()
	business := &model.Business{Name: name, Email: name + "@example.com"}
	require.NoError(t, env.businessRepo.Create(business))

	partitionID, err := env.partitionStore.Provision(business.ID.String())
	require.NoError(t, err)
	require.NoError(t, env.businessRepo.SetTenantID(business.ID.String(), partitionID))
	business.TenantID = &partitionID
	return business
}

// createBareBusiness 创建未开通分区的企业
func (env *testEnv) createBareBusiness(t *testing.T, name string) *model.Business {
	t.Helper()
	business := &model.Business{Name: name, Email: name + "@example.com"}
	require.NoError(t, env.businessRepo.Create(business))
	return business
}

// createUser 创建中央用户
func (env *testEnv) createUser(t *testing.T, name, email string) *model.User {
	t.Helper()
	user, err := env.identity.CreateUser(name, email, "password123")
	require.NoError(t, err)
	return user
}

// activeModuleCodes 企业当前启用的模块代码集合
func (env *testEnv) activeModuleCodes(t *testing.T, business *model.Business) map[string]bool {
	t.Helper()
	modules, err := env.entitlement.ActiveModules(business)
	require.NoError(t, err)
	codes := make(map[string]bool, len(modules))
	for _, module := range modules {
		codes[module.Code] = true
	}
	return codes
}

// mirrorGlobalIDs 分区内镜像的全局标识集合
func (env *testEnv) mirrorGlobalIDs(t *testing.T, business *model.Business) []string {
	t.Helper()
	handle, err := env.partitionStore.Locate(*business.TenantID)
	require.NoError(t, err)
	ids, err := env.tenantUserRepo.ListGlobalIDs(handle)
	require.NoError(t, err)
	return ids
}
