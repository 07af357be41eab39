package middleware

import (
	"net/http"
	"os"
	"strconv"

	"golang.org/x/time/rate"

	"county-api/internal/logger"
	"county-api/pkg/origindefense"
)

// 文档注释：全局令牌桶限流
// 背景：批量解析占用 CPU，流量峰值时对入口限速，避免工作池与缓存被打满。
// 约束：不排队，超限直接返回 429；突发容量等于每秒速率。
func RateLimit(qps int) func(http.Handler) http.Handler {
	lim := rate.NewLimiter(rate.Limit(qps), qps)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !lim.Allow() {
				logger.L().Debug("rate_limited", "path", r.URL.Path)
				w.Header().Set("retry-after", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Wrap：按环境变量组合源站白名单与限流
// RATE_LIMIT_ENABLED=true 启用限流，RATE_LIMIT_QPS 默认 200。
func Wrap(next http.Handler) http.Handler {
	h := origindefense.NewFromEnv(logger.L()).Wrap(next)
	if os.Getenv("RATE_LIMIT_ENABLED") != "true" {
		return h
	}
	qps := 200
	if n, err := strconv.Atoi(os.Getenv("RATE_LIMIT_QPS")); err == nil && n > 0 {
		qps = n
	}
	logger.L().Info("rate_limit_enabled", "qps", qps)
	return RateLimit(qps)(h)
}
