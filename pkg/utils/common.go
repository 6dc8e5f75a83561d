package utils

import (
	"strconv"

	"github.com/google/uuid"

	internal "github.com/bizhub-system/business-management/internal/utils"
)

// 处理层使用的业务错误码，与internal/utils保持同一套编号
const (
	ErrCodeInvalidInput       = internal.ErrCodeInvalidInput
	ErrCodeNotFound           = internal.ErrCodeNotFound
	ErrCodeAlreadyExists      = internal.ErrCodeAlreadyExists
	ErrCodeInternalError      = internal.ErrCodeInternalError
	ErrCodeValidationFailed   = internal.ErrCodeValidationFailed
	ErrCodeUnauthorized       = internal.ErrCodeUnauthorized
	ErrCodePreconditionFailed = internal.ErrCodePreconditionFailed
)

func ParseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return result
}

func ParseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}
