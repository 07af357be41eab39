package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"county-api/internal/geo"
	"county-api/internal/ipgeo"
	"county-api/internal/logger"
	"county-api/internal/metrics"
	"county-api/internal/resolver"
)

// 单批请求体上限
const maxBatchBody = 32 << 20

// resolveResponse：单点解析返回结构
// 约束：lat/lon 为参与判定的 WGS84 坐标（已完成坐标系转换）。
type resolveResponse struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	RegionID   string  `json:"region_id"`
	Found      bool    `json:"found"`
	IP         string  `json:"ip,omitempty"`
	AccuracyKm uint16  `json:"accuracy_km,omitempty"`
}

// parseCoordinate：读取 lat/lon/coord_sys 查询参数并转换为 WGS84
func parseCoordinate(r *http.Request) (geo.Coordinate, error) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("bad lat %q", q.Get("lat"))
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("bad lon %q", q.Get("lon"))
	}
	c := geo.Coordinate{Latitude: lat, Longitude: lon}
	if !c.Valid() {
		return geo.Coordinate{}, fmt.Errorf("coordinate %v out of range", c)
	}
	cs := q.Get("coord_sys")
	w, ok := geo.ToWGS84(c, cs)
	if !ok {
		return geo.Coordinate{}, fmt.Errorf("unknown coord_sys %q", cs)
	}
	return w, nil
}

func (s *server) handleResolve(w http.ResponseWriter, r *http.Request) {
	c, err := parseCoordinate(r)
	if err != nil {
		metrics.InvalidCoordinatesTotal.Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondResolve(w, r, c, resolveResponse{})
}

// respondResolve：解析并写出单点结果；out 携带调用方已填的附加字段
func (s *server) respondResolve(w http.ResponseWriter, r *http.Request, c geo.Coordinate, out resolveResponse) {
	var v resolver.Result
	err := s.withResolver(func(res *resolver.Resolver) (err error) {
		v, err = s.resolveCached(r.Context(), res, c)
		return err
	})
	if errors.Is(err, resolver.ErrResolverClosed) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	matched := 0
	if v.Found() {
		matched = 1
	}
	s.recordStats(r.Context(), 1, matched)
	out.Lat, out.Lon = c.Latitude, c.Longitude
	out.RegionID, out.Found = v.RegionID, v.Found()
	logger.L().Debug("resolve", "lat", c.Latitude, "lon", c.Longitude, "region_id", v.RegionID, "found", v.Found())
	writeJSON(w, http.StatusOK, out)
}

// 文档注释：批量解析
// 背景：请求体为 [{"lat":..,"lon":..}, ...]，返回等长数组，顺序与输入一致；客户端断开即取消。
// 约束：任一坐标非法则整批拒绝并指出下标；超过 MaxBatch 返回 413；store=true 且启用存储时持久化并在 x-batch-id 头返回批次号。
func (s *server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if s.current() == nil {
		writeError(w, http.StatusServiceUnavailable, resolver.ErrResolverClosed.Error())
		return
	}
	var coords []geo.Coordinate
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBody)).Decode(&coords); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "bad batch body: "+err.Error())
		return
	}
	if len(coords) > s.MaxBatch {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("batch of %d exceeds limit %d", len(coords), s.MaxBatch))
		return
	}
	cs := r.URL.Query().Get("coord_sys")
	for i, c := range coords {
		if !c.Valid() {
			metrics.InvalidCoordinatesTotal.Inc()
			writeError(w, http.StatusBadRequest, fmt.Sprintf("coordinate %d %v out of range", i, c))
			return
		}
		wc, ok := geo.ToWGS84(c, cs)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown coord_sys %q", cs))
			return
		}
		coords[i] = wc
	}
	metrics.BatchSize.Observe(float64(len(coords)))
	var (
		results []resolver.Result
		dsName  string
	)
	err := s.withResolver(func(res *resolver.Resolver) (err error) {
		dsName = res.Name()
		results, err = res.ResolveBatch(r.Context(), coords)
		return err
	})
	if errors.Is(err, resolver.ErrResolverClosed) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		logger.L().Warn("batch_aborted", "size", len(coords), "err", err)
		writeError(w, http.StatusServiceUnavailable, "batch cancelled")
		return
	}
	matched := 0
	for _, v := range results {
		metrics.ResolveTotal.WithLabelValues(v.Status.String()).Inc()
		if v.Found() {
			matched++
		}
	}
	s.recordStats(r.Context(), len(results), matched)
	if s.Store != nil && r.URL.Query().Get("store") == "true" {
		id, err := s.Store.SaveBatch(r.Context(), uuid.Nil, dsName, coords, results)
		if err != nil {
			logger.L().Error("batch_save_error", "err", err)
			writeError(w, http.StatusInternalServerError, "store batch: "+err.Error())
			return
		}
		w.Header().Set("x-batch-id", id.String())
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *server) handleResolveIP(w http.ResponseWriter, r *http.Request) {
	if s.IP == nil {
		writeError(w, http.StatusNotImplemented, "ip lookup not configured")
		return
	}
	ip := getClientIP(r)
	loc, ok, err := s.IP.Lookup(ip)
	switch {
	case errors.Is(err, ipgeo.ErrInvalidIP):
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid ip %q", ip))
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	case !ok:
		writeError(w, http.StatusNotFound, "no location for ip "+ip)
		return
	}
	s.respondResolve(w, r, loc.Coordinate, resolveResponse{IP: ip, AccuracyKm: loc.AccuracyRadius})
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeError(w, http.StatusNotImplemented, "store not enabled")
		return
	}
	t, err := s.Store.GetTotals(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	res := s.current()
	if res == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"dataset": res.Name(),
		"regions": res.Regions(),
		"index":   res.IndexKind(),
	})
}

// 文档注释：重新加载数据集
// 背景：数据集重新发布后无需重启进程；新实例构建成功才切换，失败时继续服务旧实例。
// 约束：需要 x-admin-token 与 ADMIN_TOKEN 一致；切换后清空进程内缓存。缓存键带内容指纹，Redis 中旧内容的结果不再被读取，随 TTL 过期。
func (s *server) handleReload(w http.ResponseWriter, r *http.Request) {
	t := r.Header.Get("x-admin-token")
	if s.AdminToken == "" || subtle.ConstantTimeCompare([]byte(t), []byte(s.AdminToken)) != 1 {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if s.Reload == nil || s.Resolvers == nil {
		writeError(w, http.StatusNotImplemented, "reload not configured")
		return
	}
	next, err := s.Reload(r.Context())
	if err != nil {
		logger.L().Error("dataset_reload_error", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if old := s.Resolvers.Swap(next); old != nil {
		_ = old.Close()
	}
	s.LRU.Purge()
	metrics.Regions.Set(float64(next.Regions()))
	logger.L().Info("dataset_reloaded", "name", next.Name(), "regions", next.Regions())
	w.WriteHeader(http.StatusNoContent)
}
