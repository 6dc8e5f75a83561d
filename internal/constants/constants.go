package constants

const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
	StatusDeleted   = "deleted"
)

const (
	EventTypeCreate = "create"
	EventTypeUpdate = "update"
	EventTypeDelete = "delete"
	EventTypeError  = "error"
)

const (
	ResourceTypeBusiness     = "business"
	ResourceTypePartition    = "partition"
	ResourceTypeUser         = "user"
	ResourceTypeMirror       = "tenant_user"
	ResourceTypeSubscription = "subscription"
	ResourceTypePackage      = "package"
	ResourceTypeModule       = "module"
	ResourceTypeMembership   = "membership"
)

// 通知事件名 - 与外部通知协作方的约定
const (
	NotifyEventWelcome          = "business.welcome"
	NotifyEventAdminNewBusiness = "admin.business_registered"
	NotifyEventUserRegistered   = "user.registered"
	NotifyEventPackageChanged   = "subscription.package_changed"
	NotifyEventStatusChanged    = "subscription.status_changed"
	NotifyEventVerification     = "user.verification"
	NotifyEventResellerTransfer = "business.reseller_transfer"
)

const (
	AuditResultSuccess = "success"
	AuditResultFailed  = "failed"
)

// PartitionIDPrefix 租户分区标识前缀
const PartitionIDPrefix = "tenant_"

// ProvisionMaxAttempts 分区标识冲突时的重试上限
const ProvisionMaxAttempts = 3

const (
	AuthHeaderRequired        = "Authorization header is required"
	AuthHeaderInvalidFormat   = "Authorization header format must be Bearer {token}"
	AuthTokenInvalidOrExpired = "Invalid or expired token"
	AuthTokenInvalid          = "Invalid token"
)
