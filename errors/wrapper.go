package errors

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"strings"

	"arcompat/logging"
)

// WrapDatabaseError 包装执行层错误并记录警告日志。
//
// sql.ErrNoRows 被归为 NOT_FOUND，唯一键冲突归为 DUPLICATE_ERROR，
// 其余一律归为 DATABASE_ERROR；原始错误保留为 cause。
func WrapDatabaseError(ctx context.Context, err error, operation string, fields ...logging.Field) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(IError); ok {
		return err
	}

	code := ErrCodeDatabase
	switch {
	case stdErrors.Is(err, sql.ErrNoRows):
		code = ErrCodeNotFound
	case isUniqueViolation(err):
		code = ErrCodeDuplicate
	}

	wrapped := WrapError(err, code, operation)
	if code == ErrCodeDatabase || code == ErrCodeDuplicate {
		all := append([]logging.Field{
			logging.Error(err),
			logging.String("error_code", string(code)),
			logging.String("operation", operation),
		}, fields...)
		logging.GetLogger().Warn(ctx, "数据库操作失败", all...)
	}
	return wrapped
}

// isUniqueViolation 基于消息关键字识别 mysql/sqlite/postgres 的唯一键冲突
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint")
}
