package service

import (
	"fmt"

	"github.com/bizhub-system/business-management/internal/constants"
	"github.com/bizhub-system/business-management/internal/model"
	"github.com/bizhub-system/business-management/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// IdentityService 中央身份目录
// 持有canonical用户记录和企业成员关系；只改成员关系本身，
// 租户镜像的增删由IdentitySyncService负责，保持关系更新原子且小。
type IdentityService struct {
	userRepo *repository.UserRepository
	notifier Notifier
	logger   *zap.Logger
}

func NewIdentityService(userRepo *repository.UserRepository, notifier Notifier, logger *zap.Logger) *IdentityService {
	return &IdentityService{
		userRepo: userRepo,
		notifier: notifier,
		logger:   logger,
	}
}

// CreateUser 创建中央用户
// 生成不复用的全局标识，密码做bcrypt哈希，注册事件尽力通知。
func (s *IdentityService) CreateUser(name, email, password string) (*model.User, error) {
	existing, err := s.userRepo.FindByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUserAlreadyExists(email)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		GlobalID:     uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hashedPassword),
		Status:       model.UserStatusActive,
	}

	if err := s.userRepo.Create(user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.notifier.Notify(constants.NotifyEventUserRegistered, nil, map[string]interface{}{
		"global_id": user.GlobalID,
		"email":     user.Email,
	})

	return user, nil
}

func (s *IdentityService) FindByEmail(email string) (*model.User, error) {
	return s.userRepo.FindByEmail(email)
}

func (s *IdentityService) FindByGlobalID(globalID string) (*model.User, error) {
	return s.userRepo.FindByGlobalID(globalID)
}

// AttachToBusiness 建立/更新成员关系（幂等），不触碰租户镜像
func (s *IdentityService) AttachToBusiness(user *model.User, business *model.Business, isPrimary, isAdmin bool) error {
	membership := &model.BusinessUser{
		BusinessID:      business.ID,
		UserID:          user.ID,
		IsPrimary:       isPrimary,
		IsBusinessAdmin: isAdmin,
	}
	if err := s.userRepo.AttachBusiness(membership); err != nil {
		return fmt.Errorf("failed to attach user to business: %w", err)
	}
	return nil
}

// DetachFromBusiness 解除成员关系，不触碰租户镜像
func (s *IdentityService) DetachFromBusiness(user *model.User, business *model.Business) error {
	if err := s.userRepo.DetachBusiness(user.ID.String(), business.ID.String()); err != nil {
		return fmt.Errorf("failed to detach user from business: %w", err)
	}
	return nil
}

// GetMembership 读取成员关系，不存在时返回(nil, nil)
func (s *IdentityService) GetMembership(user *model.User, business *model.Business) (*model.BusinessUser, error) {
	return s.userRepo.GetMembership(user.ID.String(), business.ID.String())
}

func (s *IdentityService) ListMemberships(user *model.User) ([]*model.BusinessUser, error) {
	return s.userRepo.ListMemberships(user.ID.String())
}
