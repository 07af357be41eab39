// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"county-api/internal/api"
	"county-api/internal/cache"
	"county-api/internal/config"
	"county-api/internal/ipgeo"
	"county-api/internal/logger"
	"county-api/internal/metrics"
	"county-api/internal/middleware"
	"county-api/internal/migrate"
	"county-api/internal/resolver"
	"county-api/internal/store"
	"county-api/internal/utils"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	l.Debug("log_init_ok")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		l.Error("server_error", "err", err)
		os.Exit(1)
	}
}

// 文档注释：装配依赖并服务到 ctx 取消
// 约束：所有资源（物化的数据集文件、数据库、Redis、GeoIP）由 defer 释放，任何失败都以 error 返回，不在此处退出进程。
func run(ctx context.Context) error {
	l := logger.L()
	apiBase := utils.Getenv("API_BASE", "/api")
	l.Debug("config_api_base", "base", apiBase)

	dsCfg := config.DatasetFromEnv()
	t0 := time.Now()
	res, err := dsCfg.Open(ctx)
	if err != nil {
		l.Error("dataset_load_error", "dir", dsCfg.Dir, "name", dsCfg.Name, "path", dsCfg.Path, "err", err)
		return err
	}
	l.Info("dataset_load_ok", "name", res.Name(), "regions", res.Regions(), "index", res.IndexKind(), "ms", time.Since(t0).Milliseconds())
	metrics.Regions.Set(float64(res.Regions()))
	holder := resolver.NewHolder(res)
	defer func() {
		if r := holder.Load(); r != nil {
			_ = r.Close()
		}
	}()

	var st *store.Store
	if os.Getenv("STORE_ENABLED") == "true" {
		db, err := utils.OpenPostgresFromEnv()
		if err != nil {
			l.Error("db_open_error", "err", err)
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			l.Error("db_ping_error", "err", err)
		} else {
			l.Info("db_ping_ok")
		}
		if err := migrate.EnsureSchema(ctx, db); err != nil {
			l.Error("schema_error", "err", err)
			return err
		}
		st = store.AttachDB(db)
	} else {
		l.Info("store_disabled")
	}

	rc := utils.OpenRedisFromEnv()
	if rc == nil {
		l.Info("redis_disabled")
	} else {
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
	}

	cacheCfg := config.CacheFromEnv()
	deps := api.Deps{
		Resolvers:  holder,
		LRU:        cache.NewLRU[resolver.Result](cacheCfg.Size, cacheCfg.TTL),
		Redis:      rc,
		CacheTTL:   cacheCfg.TTL,
		Store:      st,
		MaxBatch:   utils.GetenvInt("BATCH_MAX", 10000),
		Reload:     dsCfg.Open,
		AdminToken: os.Getenv("ADMIN_TOKEN"),
	}
	// 背景：GeoIP 库缺失只关闭 /resolve/ip，不影响坐标解析
	if p := os.Getenv("GEOIP_PATH"); p != "" {
		if loc, err := ipgeo.Open(p); err == nil {
			defer loc.Close()
			deps.IP = loc
		} else {
			l.Error("geoip_open_error", "path", p, "err", err)
		}
	}

	r := chi.NewRouter()
	r.Mount(apiBase, api.BuildRoutes(deps))
	handler := logger.AccessMiddleware(l)(r)
	handler = middleware.Wrap(handler)

	addr := utils.Getenv("ADDR", ":8080")
	s := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if os.Getenv("TLS_ENABLE") == "true" {
			certPath := utils.Getenv("TLS_CERT_PATH", filepath.Join("data", "certs", "server.crt"))
			keyPath := utils.Getenv("TLS_KEY_PATH", filepath.Join("data", "certs", "server.key"))
			if err := utils.EnsureSelfSignedCert(certPath, keyPath, "county-api.local"); err != nil {
				errCh <- err
				return
			}
			l.Info("listening_tls", "addr", addr, "cert", certPath)
			errCh <- s.ListenAndServeTLS(certPath, keyPath)
			return
		}
		l.Info("listening", "addr", addr)
		errCh <- s.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		l.Info("shutdown_signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			l.Error("shutdown_error", "err", err)
		}
	}
	l.Info("server_stopped")
	return nil
}
