// 批处理入口：读取 lat,lon CSV，批量解析后输出 lat,lon,region_id,status CSV
// 背景：离线回填场景一次处理数十万坐标；SIGINT 取消后仍输出已完成部分，未处理行状态为 cancelled。
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"county-api/internal/config"
	"county-api/internal/logger"
	"county-api/internal/migrate"
	"county-api/internal/resolver"
	"county-api/internal/store"
	"county-api/internal/utils"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()

	ds := config.DatasetFromEnv()
	in := flag.String("in", "-", "input CSV (lat,lon); - for stdin")
	out := flag.String("out", "-", "output CSV; - for stdout")
	coordSys := flag.String("coord-sys", "", "input coordinate system: WGS84, GCJ-02 or BD-09")
	persist := flag.Bool("store", false, "persist the run to Postgres (PG_* env)")
	flag.StringVar(&ds.Dir, "dataset-dir", ds.Dir, "directory holding <name>.shp/.shx/.dbf")
	flag.StringVar(&ds.Name, "dataset-name", ds.Name, "shapefile base name")
	flag.StringVar(&ds.Path, "dataset-path", ds.Path, "GeoJSON dataset file (overrides -dataset-dir)")
	flag.StringVar(&ds.IDField, "id-field", ds.IDField, "attribute holding the region identifier")
	flag.StringVar(&ds.Index, "index", ds.Index, "spatial index: grid, rtree or linear")
	flag.IntVar(&ds.Workers, "workers", ds.Workers, "worker goroutines (0 = GOMAXPROCS)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, ds, *in, *out, *coordSys, *persist); err != nil {
		l.Error("batch_error", "err", err)
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, ds config.Dataset, in, out, coordSys string, persist bool) error {
	l := logger.L()
	r, err := openInput(in)
	if err != nil {
		return err
	}
	rows, err := readRows(r, coordSys)
	_ = r.Close()
	if err != nil {
		return err
	}
	l.Info("batch_input_ok", "rows", len(rows))

	res, err := ds.Open(ctx)
	if err != nil {
		return err
	}
	defer res.Close()

	w, err := openOutput(out)
	if err != nil {
		return err
	}
	results, batchErr := process(ctx, res, rows, w)
	if err := w.Close(); err != nil && batchErr == nil {
		batchErr = err
	}
	if results == nil {
		return batchErr
	}

	if persist {
		// 背景：取消后仍保存部分结果，使用独立 context 避免写库被同一信号中断
		saveCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		id, err := saveRun(saveCtx, res.Name(), rows, results)
		if err != nil {
			return err
		}
		l.Info("batch_stored", "batch_id", id.String())
	}
	return batchErr
}

// 文档注释：解析并写出结果
// 约束：批量被取消时仍写出完整行数，未处理的行状态为 cancelled，并返回 ctx 错误；results 为 nil 表示没有可保存的结果。
func process(ctx context.Context, res *resolver.Resolver, rows []row, w io.Writer) ([]resolver.Result, error) {
	t0 := time.Now()
	results, batchErr := res.ResolveBatch(ctx, coordinates(rows))
	logger.L().Info("batch_resolved", "rows", len(rows), "ms", time.Since(t0).Milliseconds(), "err", batchErr)
	if results == nil {
		return nil, batchErr
	}
	if err := writeRows(w, rows, results); err != nil {
		return nil, err
	}
	return results, batchErr
}

func saveRun(ctx context.Context, name string, rows []row, results []resolver.Result) (uuid.UUID, error) {
	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		return uuid.Nil, err
	}
	defer db.Close()
	if err := migrate.EnsureSchema(ctx, db); err != nil {
		return uuid.Nil, err
	}
	return store.AttachDB(db).SaveBatch(ctx, uuid.New(), name, coordinates(rows), results)
}

func openInput(p string) (io.ReadCloser, error) {
	if p == "-" || p == "" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(p)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func openOutput(p string) (io.WriteCloser, error) {
	if p == "-" || p == "" {
		return nopWriteCloser{os.Stdout}, nil
	}
	return os.Create(p)
}
