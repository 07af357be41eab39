// 包 api：集中注册 HTTP API 路由以解耦主入口
// 背景：单点、批量、按 IP 三种解析入口共用同一解析器与两级缓存（进程内 LRU → Redis）。
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"county-api/internal/cache"
	"county-api/internal/geo"
	"county-api/internal/ipgeo"
	"county-api/internal/logger"
	"county-api/internal/metrics"
	"county-api/internal/resolver"
	"county-api/internal/store"
)

// IPLocator：IP → 坐标查询
type IPLocator interface {
	Lookup(ip string) (ipgeo.Location, bool, error)
}

// Deps：路由依赖；除 Resolvers 外均可为空，为空时对应功能关闭
type Deps struct {
	Resolvers *resolver.Holder
	LRU       *cache.LRU[resolver.Result]
	Redis     *redis.Client
	CacheTTL  time.Duration
	Store     *store.Store
	IP        IPLocator
	MaxBatch  int
	// Reload：重新构建解析器；AdminToken 为空时重载接口始终拒绝
	Reload     func(ctx context.Context) (*resolver.Resolver, error)
	AdminToken string
}

type server struct {
	Deps
}

// BuildRoutes：返回挂载到 API_BASE 下的路由
func BuildRoutes(d Deps) http.Handler {
	if d.MaxBatch <= 0 {
		d.MaxBatch = 10000
	}
	if d.CacheTTL <= 0 {
		d.CacheTTL = time.Hour
	}
	s := &server{Deps: d}
	r := chi.NewRouter()
	r.Get("/resolve", s.instrument("resolve", s.handleResolve))
	r.Post("/resolve/batch", s.instrument("resolve_batch", s.handleBatch))
	r.Get("/resolve/ip", s.instrument("resolve_ip", s.handleResolveIP))
	r.Get("/stats", s.instrument("stats", s.handleStats))
	r.Get("/healthz", s.handleHealth)
	r.Post("/admin/reload", s.handleReload)
	r.Handle("/metrics", metrics.Handler())
	return r
}

func (s *server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t0 := time.Now()
		metrics.RequestsTotal.WithLabelValues(route).Inc()
		h(w, r)
		metrics.RequestDurationMs.WithLabelValues(route).Observe(float64(time.Since(t0).Milliseconds()))
	}
}

// current：当前解析器；未就绪或已关闭时返回 nil
func (s *server) current() *resolver.Resolver {
	if s.Resolvers == nil {
		return nil
	}
	res := s.Resolvers.Load()
	if res == nil || res.Closed() {
		return nil
	}
	return res
}

// cacheNamespace：缓存键命名空间；带内容指纹，重新发布的同名数据集不会读到旧结果
func cacheNamespace(res *resolver.Resolver) string {
	return res.Name() + "@" + res.Fingerprint()
}

// 文档注释：在当前解析器上执行 fn
// 背景：重载切换后旧实例立即关闭，已取到旧实例的请求会得到 ErrResolverClosed。
// 约束：此时改用 Holder 中的新实例重试一次；没有更新的实例时原样返回 ErrResolverClosed。
func (s *server) withResolver(fn func(*resolver.Resolver) error) error {
	res := s.current()
	if res == nil {
		return resolver.ErrResolverClosed
	}
	err := fn(res)
	if !errors.Is(err, resolver.ErrResolverClosed) {
		return err
	}
	next := s.current()
	if next == nil || next == res {
		return err
	}
	logger.L().Debug("resolver_retry_after_reload", "name", next.Name())
	return fn(next)
}

// 文档注释：带两级缓存的单点解析
// 背景：LRU 命中直接返回；未命中再查 Redis，最后落到解析器，并回填两级缓存。
// 约束：Redis 错误只记录日志并降级为未命中；解析器错误（关闭）不写缓存。
func (s *server) resolveCached(ctx context.Context, res *resolver.Resolver, c geo.Coordinate) (resolver.Result, error) {
	key := cache.Key(cacheNamespace(res), c)
	if v, ok := s.LRU.Get(key); ok {
		metrics.CacheHitsTotal.WithLabelValues("lru").Inc()
		return v, nil
	}
	metrics.CacheMissesTotal.WithLabelValues("lru").Inc()
	if s.Redis != nil {
		b, err := s.Redis.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var v resolver.Result
			if json.Unmarshal(b, &v) == nil {
				metrics.CacheHitsTotal.WithLabelValues("redis").Inc()
				s.LRU.Set(key, v)
				return v, nil
			}
		case !errors.Is(err, redis.Nil):
			logger.L().Debug("redis_get_error", "key", key, "err", err)
		}
		metrics.CacheMissesTotal.WithLabelValues("redis").Inc()
	}
	id, ok, err := res.Resolve(c)
	if err != nil {
		return resolver.Result{}, err
	}
	v := resolver.Result{Status: resolver.StatusNoMatch}
	if ok {
		v = resolver.Result{RegionID: id, Status: resolver.StatusMatched}
	}
	metrics.ResolveTotal.WithLabelValues(v.Status.String()).Inc()
	s.LRU.Set(key, v)
	if s.Redis != nil {
		b, _ := json.Marshal(v)
		if err := s.Redis.Set(ctx, key, b, s.CacheTTL).Err(); err != nil {
			logger.L().Debug("redis_set_error", "key", key, "err", err)
		}
	}
	return v, nil
}

// recordStats：统计失败不影响响应
func (s *server) recordStats(ctx context.Context, queries, matched int) {
	if s.Store == nil {
		return
	}
	if err := s.Store.IncrStats(ctx, queries, matched); err != nil {
		logger.L().Debug("stats_incr_error", "err", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
