package service

import (
	"github.com/bizhub-system/business-management/internal/model"
	"github.com/bizhub-system/business-management/internal/repository"
	"github.com/google/uuid"
)

type AuditService struct {
	auditRepo *repository.AuditRepository
}

func NewAuditService(auditRepo *repository.AuditRepository) *AuditService {
	return &AuditService{
		auditRepo: auditRepo,
	}
}

func (s *AuditService) CreateAuditEvent(businessID uuid.UUID, eventType, action, resource, resourceID, actor string, oldValue, newValue map[string]interface{}, details map[string]interface{}, result string) error {
	auditEvent := &model.AuditEvent{
		BusinessID: businessID,
		EventType:  eventType,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Actor:      actor,
		OldValue:   oldValue,
		NewValue:   newValue,
		Details:    details,
		Result:     result,
	}

	if result == "failed" && details["error"] != nil {
		if msg, ok := details["error"].(string); ok {
			auditEvent.ErrorMsg = msg
		}
	}

	return s.auditRepo.Create(auditEvent)
}

// LogBusinessOperation 记录企业级操作（开通、删除、经销商转移）
func (s *AuditService) LogBusinessOperation(businessID uuid.UUID, operation, actor string, oldValue, newValue map[string]interface{}) error {
	return s.CreateAuditEvent(
		businessID,
		"business",
		operation,
		"business",
		businessID.String(),
		actor,
		oldValue,
		newValue,
		map[string]interface{}{
			"operation": operation,
		},
		"success",
	)
}

// LogSubscriptionOperation 记录订阅状态机变迁
func (s *AuditService) LogSubscriptionOperation(businessID uuid.UUID, operation, subscriptionID, actor string, oldValue, newValue map[string]interface{}) error {
	return s.CreateAuditEvent(
		businessID,
		"subscription",
		operation,
		"subscription",
		subscriptionID,
		actor,
		oldValue,
		newValue,
		map[string]interface{}{
			"operation": operation,
		},
		"success",
	)
}

// LogIdentityOperation 记录身份同步操作（镜像创建/删除、属性传播）
func (s *AuditService) LogIdentityOperation(businessID uuid.UUID, operation, globalID, actor string, details map[string]interface{}) error {
	return s.CreateAuditEvent(
		businessID,
		"identity",
		operation,
		"tenant_user",
		globalID,
		actor,
		nil,
		nil,
		details,
		"success",
	)
}

func (s *AuditService) GetAuditLogs(businessID uuid.UUID, params repository.AuditListParams) ([]*model.AuditEvent, int64, error) {
	return s.auditRepo.ListByBusiness(businessID, params)
}
