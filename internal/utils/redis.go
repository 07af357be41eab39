// 包 utils：Postgres 与 Redis 连接工具，统一环境变量读取
package utils

import (
	"os"
	"strconv"

	"github.com/redis/go-redis/v9"

	"county-api/internal/logger"
)

// OpenRedisFromEnv：从环境变量打开 Redis 客户端，支持 REDIS_DB 选择
// 约束：REDIS_HOST 为空时返回 nil（不启用 Redis）；REDIS_DB 解析失败时回退到 0
func OpenRedisFromEnv() *redis.Client {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		return nil
	}
	addr := host + ":" + Getenv("REDIS_PORT", "6379")
	db := 0
	if n, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil && n >= 0 {
		db = n
	}
	logger.L().Debug("redis_env", "addr", addr, "db", db)
	return redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASS"), DB: db})
}
