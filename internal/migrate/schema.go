// 包 migrate：首次运行自动创建批量结果与统计表
package migrate

import (
	"context"
	"database/sql"

	"county-api/internal/logger"
)

// Statements：按顺序执行的建表语句
// 约束：全部使用 IF NOT EXISTS / ON CONFLICT DO NOTHING，可重复执行。
var Statements = []string{
	`CREATE TABLE IF NOT EXISTS _county_batches (
            id UUID PRIMARY KEY,
            dataset TEXT NOT NULL,
            size INT NOT NULL,
            matched INT NOT NULL,
            cancelled INT NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
	`CREATE TABLE IF NOT EXISTS _county_batch_results (
            batch_id UUID NOT NULL REFERENCES _county_batches(id) ON DELETE CASCADE,
            seq INT NOT NULL,
            lat DOUBLE PRECISION NOT NULL,
            lon DOUBLE PRECISION NOT NULL,
            region_id TEXT,
            status TEXT NOT NULL,
            PRIMARY KEY (batch_id, seq)
        )`,
	`CREATE INDEX IF NOT EXISTS idx_batch_results_region ON _county_batch_results(region_id)`,
	`CREATE TABLE IF NOT EXISTS _county_stats_total (
            id INT PRIMARY KEY,
            total_queries BIGINT NOT NULL DEFAULT 0,
            total_matched BIGINT NOT NULL DEFAULT 0
        )`,
	`CREATE TABLE IF NOT EXISTS _county_stats_daily (
            day DATE PRIMARY KEY,
            queries BIGINT NOT NULL DEFAULT 0,
            matched BIGINT NOT NULL DEFAULT 0
        )`,
	`INSERT INTO _county_stats_total(id, total_queries, total_matched)
         VALUES(1, 0, 0)
         ON CONFLICT (id) DO NOTHING`,
}

// EnsureSchema：依次执行建表语句，任一失败即返回
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, s := range Statements {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
