package origindefense

import (
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"strings"
)

// 文档注释：源站访问白名单（单 IP + CIDR）
// 背景：解析服务部署在网关或 CDN 之后时，只允许回源网段与指定调试 IP 直接访问；其他请求返回 403。
// 约束：
// 1) 不依赖项目内部代码，可在其他项目直接复用；
// 2) 支持 IPv4/IPv6 CIDR，IPv4-mapped IPv6 地址按 IPv4 比较；
// 3) 来源 IP 以 RemoteAddr 为准；如需识别上游真实 IP，通过 ORIGIN_REAL_IP_HEADER 指定。
type Middleware struct {
	l            *slog.Logger
	enabled      bool
	allowIPs     map[netip.Addr]struct{}
	allowCIDRs   []netip.Prefix
	realIPHeader string
}

// Config：白名单配置
type Config struct {
	Enabled      bool
	AllowIPs     []string
	AllowCIDRs   []string
	AllowLocal   bool
	RealIPHeader string
}

// ConfigFromEnv：读取环境变量
// ORIGIN_DEFENSE_ENABLE=true              是否启用
// ORIGIN_ALLOW_IPS=1.2.3.4,5.6.7.8       允许的单 IP（逗号分隔）
// ORIGIN_ALLOW_CIDRS=10.0.0.0/8,...      允许的 CIDR（逗号分隔）
// ORIGIN_ALLOW_LOCAL=true                 允许 127.0.0.1/::1
// ORIGIN_REAL_IP_HEADER=X-Forwarded-For   上游真实 IP 头（首个有效 IP 生效）
func ConfigFromEnv() Config {
	return Config{
		Enabled:      os.Getenv("ORIGIN_DEFENSE_ENABLE") == "true",
		AllowIPs:     splitList(os.Getenv("ORIGIN_ALLOW_IPS")),
		AllowCIDRs:   splitList(os.Getenv("ORIGIN_ALLOW_CIDRS")),
		AllowLocal:   os.Getenv("ORIGIN_ALLOW_LOCAL") == "true",
		RealIPHeader: strings.TrimSpace(os.Getenv("ORIGIN_REAL_IP_HEADER")),
	}
}

func NewFromEnv(l *slog.Logger) *Middleware { return New(l, ConfigFromEnv()) }

// New：无法解析的条目记录日志后忽略
func New(l *slog.Logger, c Config) *Middleware {
	m := &Middleware{l: l, enabled: c.Enabled, allowIPs: map[netip.Addr]struct{}{}, realIPHeader: c.RealIPHeader}
	ips := c.AllowIPs
	if c.AllowLocal {
		ips = append(ips, "127.0.0.1", "::1")
	}
	for _, s := range ips {
		ip, err := netip.ParseAddr(s)
		if err != nil {
			l.Warn("origin_defense_bad_ip", "value", s)
			continue
		}
		m.allowIPs[ip.Unmap()] = struct{}{}
	}
	for _, s := range c.AllowCIDRs {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			l.Warn("origin_defense_bad_cidr", "value", s)
			continue
		}
		m.allowCIDRs = append(m.allowCIDRs, p.Masked())
	}
	return m
}

// Wrap：未启用时原样返回 next
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if !m.enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, ok := m.extractIP(r)
		if !ok {
			m.l.Debug("origin_defense_block", "reason", "no_ip")
			write403(w)
			return
		}
		if m.Allowed(ip) {
			next.ServeHTTP(w, r)
			return
		}
		m.l.Debug("origin_defense_block", "ip", ip.String())
		write403(w)
	})
}

// Allowed：判断 IP 是否在允许集合
func (m *Middleware) Allowed(ip netip.Addr) bool {
	ip = ip.Unmap()
	if _, ok := m.allowIPs[ip]; ok {
		return true
	}
	for _, p := range m.allowCIDRs {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// extractIP：优先指定头的首个有效 IP，否则取 RemoteAddr
func (m *Middleware) extractIP(r *http.Request) (netip.Addr, bool) {
	if m.realIPHeader != "" {
		if raw := r.Header.Get(m.realIPHeader); raw != "" {
			first, _, _ := strings.Cut(raw, ",")
			if ip, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
				return ip, true
			}
		}
	}
	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return ap.Addr(), true
	}
	ip, err := netip.ParseAddr(r.RemoteAddr)
	return ip, err == nil
}

func write403(w http.ResponseWriter) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"error":"forbidden"}`))
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
