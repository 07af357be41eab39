// 包 resolver：县级区域解析门面（空间索引候选 → 精确点入多边形 → 区域标识）
// 背景：数据集与索引构建后只读，单点查询为纯函数，可被任意多协程并发调用；批量查询使用固定大小的工作池。
// 约束：生命周期只有 Ready 与 Closed 两态；Closed 后查询返回 ErrResolverClosed。未命中是正常结果而非错误。
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"county-api/internal/bundle"
	"county-api/internal/dataset"
	"county-api/internal/geo"
	"county-api/internal/logger"
	"county-api/internal/spatial"
)

// ErrResolverClosed：在 Close 之后调用查询
var ErrResolverClosed = errors.New("resolver closed")

type options struct {
	indexKind   string
	workers     int
	datasetOpts []dataset.Option
	log         *slog.Logger
}

// Option：构建选项
type Option func(*options)

// WithIndex：空间索引类型（grid/rtree/linear），默认 grid
func WithIndex(kind string) Option { return func(o *options) { o.indexKind = kind } }

// WithWorkers：批量查询的工作协程数，<=0 时使用 GOMAXPROCS
func WithWorkers(n int) Option { return func(o *options) { o.workers = n } }

// WithDatasetOptions：Open 加载数据集时使用的选项
func WithDatasetOptions(opts ...dataset.Option) Option {
	return func(o *options) { o.datasetOpts = append(o.datasetOpts, opts...) }
}

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.log = l } }

func buildOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.workers <= 0 {
		o.workers = runtime.GOMAXPROCS(0)
	}
	if o.log == nil {
		o.log = logger.L()
	}
	return o
}

// Resolver：只读数据集与索引的组合
type Resolver struct {
	ds      *dataset.Dataset
	idx     spatial.Index
	kind    string
	workers int
	log     *slog.Logger
	sum     string

	files     *bundle.FileSet
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New：基于已加载的数据集构建解析器
// 返回：数据集为空返回 ErrDatasetNotFound；索引类型未知返回 error。
func New(ds *dataset.Dataset, opts ...Option) (*Resolver, error) {
	return newResolver(ds, buildOptions(opts))
}

func newResolver(ds *dataset.Dataset, o options) (*Resolver, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, fmt.Errorf("%w: no region records", dataset.ErrDatasetNotFound)
	}
	t0 := time.Now()
	idx, err := spatial.New(o.indexKind, ds.Bounds())
	if err != nil {
		return nil, err
	}
	r := &Resolver{ds: ds, idx: idx, kind: o.indexKind, workers: o.workers, log: o.log, sum: ds.Fingerprint()}
	if r.kind == "" {
		r.kind = spatial.KindGrid
	}
	attrs := []any{"name", ds.Name, "fingerprint", r.sum, "records", ds.Len(), "index", r.kind, "workers", r.workers, "ms", time.Since(t0).Milliseconds()}
	if g, ok := idx.(*spatial.Grid); ok {
		cols, rows := g.Dims()
		attrs = append(attrs, "grid_cols", cols, "grid_rows", rows, "grid_max_cell", g.MaxCell())
	}
	o.log.Info("resolver_ready", attrs...)
	return r, nil
}

// 文档注释：从发布的数据集构建解析器
// 背景：把 fsys 中的 <name>.{shp,dbf,...} 物化到临时目录后加载；临时文件在 Close 时删除。
// 约束：物化、加载或索引任一步失败都会释放临时文件并返回错误，不会产生可用的半成品实例。
func Open(ctx context.Context, fsys fs.FS, name string, opts ...Option) (*Resolver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	set, err := bundle.Materialize(fsys, name)
	if err != nil {
		return nil, err
	}
	r, err := loadFileSet(set, name, o)
	if err != nil {
		_ = set.Release()
		o.log.Error("resolver_open_error", "name", name, "err", err)
		return nil, err
	}
	r.files = set
	return r, nil
}

// OpenDir：从本地目录打开数据集
func OpenDir(ctx context.Context, dir, name string, opts ...Option) (*Resolver, error) {
	return Open(ctx, os.DirFS(dir), name, opts...)
}

func loadFileSet(set *bundle.FileSet, name string, o options) (*Resolver, error) {
	src, closer, err := set.Open()
	if err != nil {
		return nil, err
	}
	dsOpts := append([]dataset.Option{dataset.WithName(name)}, o.datasetOpts...)
	ds, err := dataset.LoadShapefile(src, dsOpts...)
	_ = closer.Close()
	if err != nil {
		return nil, err
	}
	return newResolver(ds, o)
}

// Resolve：返回包含该坐标的区域标识
// 返回：命中 (id, true, nil)；未命中 ("", false, nil)；关闭后 ErrResolverClosed。
func (r *Resolver) Resolve(c geo.Coordinate) (string, bool, error) {
	if r.closed.Load() {
		return "", false, ErrResolverClosed
	}
	res := r.resolvePoint(c)
	return res.RegionID, res.Status == StatusMatched, nil
}

func (r *Resolver) resolvePoint(c geo.Coordinate) Result {
	pt := c.Point()
	i, ok := geo.ResolveAmong(r.ds.Records, r.idx.Candidates(pt), pt)
	if !ok {
		return Result{Status: StatusNoMatch}
	}
	return Result{RegionID: r.ds.Records[i].ID, Status: StatusMatched}
}

// 文档注释：批量解析
// 背景：固定大小工作池从原子游标领取下标，结果按下标写回，输出顺序与输入一致，与完成顺序无关。
// 约束：每个坐标之前检查取消；取消时未处理的槽位保持 StatusCancelled，并返回已填充的部分结果与 ctx 错误。
func (r *Resolver) ResolveBatch(ctx context.Context, coords []geo.Coordinate) ([]Result, error) {
	if r.closed.Load() {
		return nil, ErrResolverClosed
	}
	out := make([]Result, len(coords))
	if len(coords) == 0 {
		return out, nil
	}
	var next atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < min(r.workers, len(coords)); w++ {
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				i := int(next.Add(1) - 1)
				if i >= len(coords) {
					return nil
				}
				out[i] = r.resolvePoint(coords[i])
			}
		})
	}
	if err := g.Wait(); err != nil {
		r.log.Warn("batch_cancelled", "size", len(coords), "err", err)
		return out, err
	}
	return out, nil
}

// Close：进入 Closed 状态并释放物化文件；幂等
func (r *Resolver) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		if r.files != nil {
			r.closeErr = r.files.Release()
		}
		r.log.Info("resolver_closed", "name", r.ds.Name, "err", r.closeErr)
	})
	return r.closeErr
}

// Closed：是否已关闭
func (r *Resolver) Closed() bool { return r.closed.Load() }

// Name：数据集名称
func (r *Resolver) Name() string { return r.ds.Name }

// Fingerprint：数据集内容指纹，见 dataset.Dataset.Fingerprint
func (r *Resolver) Fingerprint() string { return r.sum }

// Regions：已加载的区域数
func (r *Resolver) Regions() int { return r.ds.Len() }

// IndexKind：使用的空间索引类型
func (r *Resolver) IndexKind() string { return r.kind }
