package model

import "github.com/google/uuid"

// RegistrationRequest 企业注册请求
// 由HTTP层提交给开通编排器：企业属性 + 管理员用户属性 + 可选套餐
type RegistrationRequest struct {
	BusinessName  string     `json:"business_name" binding:"required"`
	BusinessEmail string     `json:"business_email" binding:"omitempty,email"`
	BusinessPhone string     `json:"business_phone"`
	ResellerID    *uuid.UUID `json:"reseller_id"`
	IndustryID    *uuid.UUID `json:"industry_id"`

	AdminName     string `json:"admin_name" binding:"required"`
	AdminEmail    string `json:"admin_email" binding:"required,email"`
	AdminPassword string `json:"admin_password" binding:"required,min=6"`

	PackageID    *uuid.UUID `json:"package_id"`
	BillingCycle string     `json:"billing_cycle"`
	StartTrial   bool       `json:"start_trial"`
}
