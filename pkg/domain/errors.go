package domain

import "errors"

// 失败分类，具体错误通过 fmt.Errorf("%w: ...") 包装
var (
	ErrTransport    = errors.New("transport failure")
	ErrProtocol     = errors.New("protocol failure")
	ErrPayloadShape = errors.New("payload shape failure")
	ErrState        = errors.New("state failure")
)

// KindOf 返回错误所属分类名称，用于日志与统计标签
func KindOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrPayloadShape):
		return "payload_shape"
	case errors.Is(err, ErrState):
		return "state"
	default:
		return "unknown"
	}
}
