package api

import (
	"net"
	"net/http"
	"strings"
)

// 文档注释：获取待定位的客户端 IP
// 背景：多层代理环境下，优先显式参数，其次常见反向代理头，最后回退远端地址。
// 约束：代理头可被伪造；部署在不可信链路时应配合源站白名单只信任网关写入的头。
func getClientIP(r *http.Request) string {
	if q := r.URL.Query().Get("ip"); q != "" {
		return q
	}
	h := r.Header
	if x := h.Get("x-forwarded-for"); x != "" {
		first, _, _ := strings.Cut(x, ",")
		return strings.TrimSpace(first)
	}
	for _, k := range []string{"cf-connecting-ip", "x-real-ip", "x-client-ip"} {
		if x := h.Get(k); x != "" {
			return strings.TrimSpace(x)
		}
	}
	if x := h.Get("forwarded"); x != "" {
		if i := strings.Index(strings.ToLower(x), "for="); i >= 0 {
			y := x[i+4:]
			if p := strings.IndexAny(y, ";,"); p >= 0 {
				y = y[:p]
			}
			y = strings.Trim(y, "\" ")
			// RFC 7239：节点可带端口，IPv6 写作 "[2001:db8::1]:4711"
			if host, _, err := net.SplitHostPort(y); err == nil {
				return host
			}
			return strings.Trim(y, "[]")
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
