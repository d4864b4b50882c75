package util

import (
	"errors"
	"fmt"
)

// ErrorKind 业务错误分类，控制器按分类决定响应状态码
type ErrorKind int

const (
	KindUnexpected ErrorKind = iota
	KindNotFound
	KindInvalidState
	KindQuotaExceeded
	KindConflict
	KindForbidden
	KindTimeExceeded
	KindBadRequest
	KindUnauthorized
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindInvalidState:
		return "INVALID_STATE"
	case KindQuotaExceeded:
		return "QUOTA_EXCEEDED"
	case KindConflict:
		return "CONFLICT"
	case KindForbidden:
		return "FORBIDDEN"
	case KindTimeExceeded:
		return "TIME_EXCEEDED"
	case KindBadRequest:
		return "BAD_REQUEST"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	default:
		return "UNEXPECTED"
	}
}

type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 同类且同消息的 AppError 视为相等，便于 errors.Is 比较哨兵错误
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

func newError(kind ErrorKind, format string, args ...interface{}) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFoundError(format string, args ...interface{}) *AppError {
	return newError(KindNotFound, format, args...)
}

func InvalidStateError(format string, args ...interface{}) *AppError {
	return newError(KindInvalidState, format, args...)
}

func QuotaExceededError(format string, args ...interface{}) *AppError {
	return newError(KindQuotaExceeded, format, args...)
}

func ConflictError(format string, args ...interface{}) *AppError {
	return newError(KindConflict, format, args...)
}

func ForbiddenError(format string, args ...interface{}) *AppError {
	return newError(KindForbidden, format, args...)
}

func TimeExceededError(format string, args ...interface{}) *AppError {
	return newError(KindTimeExceeded, format, args...)
}

func BadRequestError(format string, args ...interface{}) *AppError {
	return newError(KindBadRequest, format, args...)
}

func UnauthorizedError(format string, args ...interface{}) *AppError {
	return newError(KindUnauthorized, format, args...)
}

// Unexpected 包装底层存储等非预期错误，已经是 AppError 的原样返回
func Unexpected(err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	return &AppError{Kind: KindUnexpected, Message: "服务器内部错误", Err: err}
}

// KindOf 非 AppError 一律视为 KindUnexpected
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnexpected
}

var (
	ErrUserNotFound        = NotFoundError("用户不存在")
	ErrEmailRegistered     = ConflictError("该邮箱已被注册")
	ErrInvalidCredentials  = UnauthorizedError("邮箱或密码错误")
	ErrAccountDisabled     = ForbiddenError("账号已被禁用")
	ErrPermissionDenied    = ForbiddenError("无权操作")
	ErrCourseNotFound      = NotFoundError("课程不存在")
	ErrLessonNotFound      = NotFoundError("课时不存在")
	ErrActivityNotFound    = NotFoundError("活动不存在")
	ErrActivityNotActive   = InvalidStateError("活动未发布")
	ErrAttemptNotFound     = NotFoundError("作答记录不存在")
	ErrAttemptInProgress   = ConflictError("已有进行中的作答")
	ErrAttemptSubmitted    = ConflictError("作答已提交")
	ErrNotYourAttempt      = ForbiddenError("不是你的作答记录")
	ErrTimeLimitExceeded   = TimeExceededError("已超过作答时限")
	ErrNotificationMissing = NotFoundError("通知不存在")
	ErrEnrollmentNotFound  = NotFoundError("选课记录不存在")
	ErrAlreadyEnrolled     = ConflictError("已选过该课程")
)
