package utils

import (
	"database/sql"
	"os"
	"strconv"

	_ "github.com/lib/pq"
)

// BuildPostgresDSNFromEnv：由 PG_* 环境变量拼装 DSN
func BuildPostgresDSNFromEnv() string {
	host := Getenv("PG_HOST", "localhost")
	port := Getenv("PG_PORT", "5432")
	user := Getenv("PG_USER", "postgres")
	pass := os.Getenv("PG_PASSWORD")
	db := Getenv("PG_DB", "county")
	ssl := Getenv("PG_SSLMODE", "disable")
	dsn := "postgres://" + user
	if pass != "" {
		dsn += ":" + pass
	}
	dsn += "@" + host + ":" + port + "/" + db + "?sslmode=" + ssl
	return dsn
}

// OpenPostgres：打开连接池；连接数取 PG_MAX_OPEN_CONNS / PG_MAX_IDLE_CONNS
// 约束：sql.Open 不建立连接，首次使用或 Ping 时才会暴露连接错误。
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(GetenvInt("PG_MAX_OPEN_CONNS", 20))
	db.SetMaxIdleConns(GetenvInt("PG_MAX_IDLE_CONNS", 10))
	return db, nil
}

func OpenPostgresFromEnv() (*sql.DB, error) {
	return OpenPostgres(BuildPostgresDSNFromEnv())
}

// Getenv：读取环境变量，空值回退到默认
func Getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetenvInt：解析失败或为空时回退到默认
func GetenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
