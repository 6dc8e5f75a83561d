package service

import "errors"

var (
	ErrBusinessNotFound           = errors.New("企业不存在")
	ErrBusinessAlreadyExists      = func(name string) error { return errors.New("企业已存在: " + name) }
	ErrBusinessNotProvisioned     = errors.New("企业尚未开通租户分区")
	ErrBusinessAlreadyProvisioned = errors.New("企业已开通租户分区，不可重复分配")
	ErrPartitionAllocation        = errors.New("租户分区分配失败")
	ErrPartitionNotFound          = errors.New("租户分区不存在")
	ErrNestedTenantContext        = errors.New("租户上下文不允许嵌套切换")
	ErrSyncIncomplete             = errors.New("身份同步未完成，两步均幂等，可安全重试")
	ErrUserNotFound               = errors.New("用户不存在")
	ErrInvalidUserStatus          = errors.New("无效的用户状态")
	ErrUserAlreadyExists          = func(email string) error { return errors.New("用户已存在: " + email) }
	ErrPackageNotFound            = errors.New("套餐不存在")
	ErrTrialPackageNotConfigured  = errors.New("试用套餐未配置")
	ErrInvalidBillingCycle        = errors.New("无效的计费周期")
	ErrNoCurrentSubscription      = errors.New("企业没有当前订阅")
	ErrSubscriptionNotPending     = errors.New("订阅不处于pending状态")
	ErrSubscriptionNotTrial       = errors.New("订阅不处于trial状态")
)
