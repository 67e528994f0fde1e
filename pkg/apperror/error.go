package apperror

import (
	"errors"
	"net/http"
	"strings"
)

// ==================== 错误类别 ====================

// Kind 业务错误类别
type Kind string

const (
	KindValidation    Kind = "VALIDATION"    // 参数/规则校验失败
	KindNotFound      Kind = "NOT_FOUND"     // 资源不存在
	KindConflict      Kind = "CONFLICT"      // 状态冲突（重复开盒、改已售出盒子等）
	KindState         Kind = "STATE"         // 状态机非法流转
	KindExhaustion    Kind = "EXHAUSTION"    // 抽取时无可用 item
	KindConfiguration Kind = "CONFIGURATION" // 概率配置缺失/损坏，fail closed
	KindForbidden     Kind = "FORBIDDEN"     // 无权限
	KindInternal      Kind = "INTERNAL"      // 内部错误
)

// ==================== 错误结构 ====================

// Error 结构化业务错误
// Rules 用于校验类错误，一次性携带全部未通过的规则明细
type Error struct {
	Kind    Kind
	Message string
	Rules   []string
	Err     error
}

func (e *Error) Error() string {
	if len(e.Rules) > 0 {
		return e.Message + ": " + strings.Join(e.Rules, "; ")
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ==================== 构造函数 ====================

// Validation 校验错误，rules 为全部未通过的规则
func Validation(message string, rules ...string) *Error {
	return &Error{Kind: KindValidation, Message: message, Rules: rules}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// State 状态机非法流转错误
func State(message string) *Error {
	return &Error{Kind: KindState, Message: message}
}

func Exhaustion(message string) *Error {
	return &Error{Kind: KindExhaustion, Message: message}
}

func Configuration(message string) *Error {
	return &Error{Kind: KindConfiguration, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// ==================== 判定辅助 ====================

// KindOf 取出错误类别，非业务错误一律归为 INTERNAL
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind 判断错误是否属于指定类别
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus 业务错误类别到 HTTP 状态码的映射
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindExhaustion:
		return http.StatusConflict
	case KindState:
		return http.StatusUnprocessableEntity
	case KindForbidden:
		return http.StatusForbidden
	case KindConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
