package handler

import (
	"net/http"

	"github.com/bizhub-system/business-management/internal/model"
	"github.com/bizhub-system/business-management/internal/service"
	"github.com/bizhub-system/business-management/pkg/utils"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Login 用户登录
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "Invalid request body: %v", err)
		return
	}

	authResp, err := h.authService.Login(req.Email, req.Password)
	if err != nil {
		utils.Error(c, http.StatusUnauthorized, "Login failed: %v", err)
		return
	}

	utils.Success(c, http.StatusOK, authResp)
}

// RefreshToken 刷新令牌
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "Invalid request body: %v", err)
		return
	}

	// 验证令牌并获取用户信息
	user, err := h.authService.ValidateToken(req.Token)
	if err != nil {
		utils.Error(c, http.StatusUnauthorized, "Invalid token: %v", err)
		return
	}

	// 生成新令牌
	authResp, err := h.authService.RefreshToken(user.GlobalID)
	if err != nil {
		utils.Error(c, http.StatusInternalServerError, "Token refresh failed: %v", err)
		return
	}

	utils.Success(c, http.StatusOK, authResp)
}

// Profile 获取当前用户信息
func (h *AuthHandler) Profile(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
		utils.Error(c, http.StatusBadRequest, "Invalid authorization header")
		return
	}

	user, err := h.authService.ValidateToken(authHeader[7:]) // 去掉"Bearer "前缀
	if err != nil {
		utils.Error(c, http.StatusUnauthorized, "Invalid token: %v", err)
		return
	}

	utils.Success(c, http.StatusOK, user)
}

// Logout 用户登出
func (h *AuthHandler) Logout(c *gin.Context) {
	// 在实际应用中，可以将令牌加入黑名单或使用Redis存储已登出的令牌
	// 这里简化处理，只返回成功响应
	utils.Success(c, http.StatusOK, gin.H{
		"message": "Successfully logged out",
	})
}
