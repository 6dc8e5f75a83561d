package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/bizhub-system/business-management/internal/model"
	"github.com/bizhub-system/business-management/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type AuthService struct {
	userRepo    *repository.UserRepository
	logger      *zap.Logger
	secretKey   string
	tokenExpiry time.Duration
}

// JWTClaims JWT声明结构
// GlobalID是跨域身份键，授权协作方用它在租户分区内解析本地身份
type JWTClaims struct {
	UserID   string `json:"user_id"`
	GlobalID string `json:"global_id"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

func NewAuthService(userRepo *repository.UserRepository, logger *zap.Logger, secretKey string, tokenExpiry time.Duration) *AuthService {
	if tokenExpiry == 0 {
		tokenExpiry = 24 * time.Hour // 默认24小时
	}
	return &AuthService{
		userRepo:    userRepo,
		logger:      logger,
		secretKey:   secretKey,
		tokenExpiry: tokenExpiry,
	}
}

// Login 用户登录
func (s *AuthService) Login(email, password string) (*model.AuthResponse, error) {
	user, err := s.userRepo.FindByEmail(email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.New("invalid credentials")
	}

	// 验证密码
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	if user.Status == model.UserStatusSuspended {
		return nil, errors.New("account suspended")
	}

	// 生成JWT令牌
	token, err := s.generateToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	// 更新最后登录时间
	now := time.Now()
	user.LastLoginAt = &now
	if err := s.userRepo.Update(user); err != nil {
		// 记录错误但不中断登录流程
		s.logger.Warn("更新最后登录时间失败", zap.String("email", email), zap.Error(err))
	}

	return &model.AuthResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(s.tokenExpiry),
		User:      user,
	}, nil
}

// RefreshToken 刷新令牌
func (s *AuthService) RefreshToken(globalID string) (*model.AuthResponse, error) {
	user, err := s.userRepo.FindByGlobalID(globalID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	token, err := s.generateToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &model.AuthResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(s.tokenExpiry),
		User:      user,
	}, nil
}

// ValidateToken 验证令牌
func (s *AuthService) ValidateToken(tokenString string) (*model.User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.secretKey), nil
	})

	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	user, err := s.userRepo.FindByGlobalID(claims.GlobalID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// generateToken 生成JWT令牌
func (s *AuthService) generateToken(user *model.User) (string, error) {
	claims := JWTClaims{
		UserID:   user.ID.String(),
		GlobalID: user.GlobalID,
		Email:    user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "business-management",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secretKey))
}
