package rpc

import "fmt"

// Well-known fault codes returned by the platform RPC layer.
const (
	CodeOperationNotSupported = 9
	CodeLoginRequired         = 401
)

// descriptions maps fault codes to user-facing messages.
var descriptions = map[int]string{
	CodeOperationNotSupported: "操作不允许",
	CodeLoginRequired:         "登录过期，请重新登录",

	15430: "美券已抢完",
	15431: "美券已被他人领走",
	15432: "美券不存在",
	15433: "该美券投放信息不存在",
	15434: "已经领取过此次的美券",
	15435: "美券无效",
	16000: "已达到优惠上限",
	16001: "已砍过",

	20001: "该帖子被所长关小黑屋了",
	20006: "该回复被所长关小黑屋了",
	20007: "已经赞过啦",
	20008: "已经赞过啦",

	22001: "请输入正确验证码",
	22002: "请输入正确信息",
	22003: "该手机号还未设置过密码，请使用验证码登录，然后设置密码",
	23001: "该手机号已注册过更美",
	23002: "该手机号未注册过更美，请先注册",

	42004: "美券已经被使用",
	44001: "对不起，秒杀已结束",

	99003: "达到最大尝试次数",
}

// Describe returns the user-facing message for a fault code, or fallback when
// the code is unknown.
func Describe(code int, fallback string) string {
	if d, ok := descriptions[code]; ok {
		return d
	}
	return fallback
}

// RawResponse is the upstream HTTP response a fault may carry. When present,
// the body is surfaced to the end user verbatim instead of a generic error.
type RawResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Fault is a categorized failure signaled by the platform RPC layer.
type Fault struct {
	Code     int
	Message  string
	Response *RawResponse
}

func (f *Fault) Error() string {
	if f.Message != "" {
		return fmt.Sprintf("rpc fault %d: %s", f.Code, f.Message)
	}
	return fmt.Sprintf("rpc fault %d", f.Code)
}

// IsLoginRequired reports whether the fault carries the distinguished
// login-required code.
func (f *Fault) IsLoginRequired() bool {
	return f.Code == CodeLoginRequired
}
