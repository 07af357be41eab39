// 包 store：批量解析结果与查询统计的 PostgreSQL 访问层
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"county-api/internal/geo"
	"county-api/internal/logger"
	"county-api/internal/resolver"
)

// ErrLengthMismatch：坐标与结果数量不一致
var ErrLengthMismatch = errors.New("coordinates and results differ in length")

// 单条 INSERT 的最大行数；每行 6 个参数，低于 PostgreSQL 65535 参数上限
const insertChunk = 1000

// Store：持有连接池并提供批量写入与统计接口
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// 文档注释：保存一次批量解析
// 背景：CLI 的 -store 与 API 批量接口共用；批次头与明细在同一事务内写入。
// 参数：batchID 为零值时生成新的 UUID；coords 与 results 按下标一一对应。
// 返回：实际使用的批次 ID。
func (s *Store) SaveBatch(ctx context.Context, batchID uuid.UUID, dataset string, coords []geo.Coordinate, results []resolver.Result) (uuid.UUID, error) {
	if len(coords) != len(results) {
		return uuid.Nil, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(coords), len(results))
	}
	if batchID == uuid.Nil {
		batchID = uuid.New()
	}
	var matched, cancelled int
	for _, r := range results {
		switch r.Status {
		case resolver.StatusMatched:
			matched++
		case resolver.StatusCancelled:
			cancelled++
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO _county_batches(id, dataset, size, matched, cancelled) VALUES($1,$2,$3,$4,$5)`,
		batchID, dataset, len(coords), matched, cancelled); err != nil {
		return uuid.Nil, err
	}
	for lo := 0; lo < len(coords); lo += insertChunk {
		hi := min(lo+insertChunk, len(coords))
		q, args := batchInsert(batchID, lo, coords[lo:hi], results[lo:hi])
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return uuid.Nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return uuid.Nil, err
	}
	logger.L().Info("batch_saved", "batch_id", batchID, "size", len(coords), "matched", matched, "cancelled", cancelled)
	return batchID, nil
}

// batchInsert：构造多行 INSERT；seq 从 offset 开始
func batchInsert(id uuid.UUID, offset int, coords []geo.Coordinate, results []resolver.Result) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO _county_batch_results(batch_id, seq, lat, lon, region_id, status) VALUES ")
	args := make([]any, 0, len(coords)*6)
	for i, c := range coords {
		if i > 0 {
			b.WriteByte(',')
		}
		n := len(args)
		fmt.Fprintf(&b, "($%d,$%d,$%d,$%d,$%d,$%d)", n+1, n+2, n+3, n+4, n+5, n+6)
		var region sql.NullString
		if results[i].Found() {
			region = sql.NullString{String: results[i].RegionID, Valid: true}
		}
		args = append(args, id, offset+i, c.Latitude, c.Longitude, region, results[i].Status.String())
	}
	return b.String(), args
}

// BatchRow：批次明细的一行
type BatchRow struct {
	Coordinate geo.Coordinate
	Result     resolver.Result
}

// LoadBatch：按 seq 顺序读取批次明细；批次不存在时返回空切片
func (s *Store) LoadBatch(ctx context.Context, batchID uuid.UUID) ([]BatchRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT lat, lon, region_id, status FROM _county_batch_results WHERE batch_id=$1 ORDER BY seq`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BatchRow
	for rows.Next() {
		var r BatchRow
		var region sql.NullString
		var status string
		if err := rows.Scan(&r.Coordinate.Latitude, &r.Coordinate.Longitude, &region, &status); err != nil {
			return nil, err
		}
		if err := r.Result.Status.UnmarshalText([]byte(status)); err != nil {
			return nil, err
		}
		r.Result.RegionID = region.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// IncrStats：递增累计与当日查询计数；matched 为命中数
// 约束：统计失败不影响主流程，调用方只记录日志。
func (s *Store) IncrStats(ctx context.Context, queries, matched int) error {
	if queries <= 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE _county_stats_total SET total_queries=total_queries+$1, total_matched=total_matched+$2 WHERE id=1",
		queries, matched); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO _county_stats_daily(day, queries, matched) VALUES(current_date, $1, $2)
         ON CONFLICT (day) DO UPDATE SET queries=_county_stats_daily.queries+$1, matched=_county_stats_daily.matched+$2`,
		queries, matched); err != nil {
		return err
	}
	logger.L().Debug("stats_incr", "queries", queries, "matched", matched)
	return nil
}

// Totals：累计与当日查询次数
type Totals struct {
	Total        int64 `json:"total"`
	TotalMatched int64 `json:"total_matched"`
	Today        int64 `json:"today"`
}

// GetTotals：读取累计与当日统计；当日尚无记录时 Today 为 0
func (s *Store) GetTotals(ctx context.Context) (*Totals, error) {
	var t Totals
	if err := s.db.QueryRowContext(ctx,
		"SELECT total_queries, total_matched FROM _county_stats_total WHERE id=1").Scan(&t.Total, &t.TotalMatched); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT queries FROM _county_stats_daily WHERE day=current_date").Scan(&t.Today); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	logger.L().Debug("stats_totals", "total", t.Total, "today", t.Today)
	return &t, nil
}
