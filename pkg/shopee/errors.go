package shopee

import "fmt"

// Shopee 开放平台错误码（response body 里的 error 字段）
// 空字符串表示成功
const (
	ErrCodeAuth        = "error_auth"          // access_token 无效或过期
	ErrCodeParam       = "error_param"         // 参数错误
	ErrCodePermission  = "error_permission"    // 无权限
	ErrCodeNotFound    = "error_not_found"     // 资源不存在
	ErrCodeServer      = "error_server"        // Shopee 服务端错误
	ErrCodeSign        = "error_sign"          // 签名错误
	ErrCodeRateLimit   = "error_request_limit" // 请求频率超限
	ErrCodeInvalidCode = "error_invalid_code"  // 授权码无效（换取 token 时）
)

// APIError Shopee 返回的业务错误
type APIError struct {
	Code      string // error 字段
	Message   string // message 字段
	RequestID string // request_id 字段，排障用
}

func (e *APIError) Error() string {
	return fmt.Sprintf("shopee api error [%s]: %s (request_id=%s)", e.Code, e.Message, e.RequestID)
}

// Retryable 判断该错误是否值得重试
// 参数/权限/资源类错误重试无意义，直接终态；
// 服务端错误与限流是临时性的；未知错误码默认按可重试处理，由 max_retries 兜底。
func (e *APIError) Retryable() bool {
	switch e.Code {
	case ErrCodeParam, ErrCodePermission, ErrCodeNotFound, ErrCodeSign, ErrCodeInvalidCode:
		return false
	case ErrCodeAuth:
		// token 失效走凭证刷新路径，任务本身可重试
		return true
	case ErrCodeServer, ErrCodeRateLimit:
		return true
	}
	return true
}
