// 包 dataset：行政区边界数据集（只读），按加载顺序保存区域记录
// 背景：启动时一次性从 shapefile 或 GeoJSON 构建，之后只读共享；加载顺序即重叠区域的裁决优先级。
// 约束：任何结构或属性错误都使整次加载失败，不返回部分数据集。
package dataset

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb"

	"county-api/internal/geo"
)

var (
	ErrDatasetNotFound  = errors.New("dataset not found")
	ErrDatasetCorrupt   = errors.New("dataset corrupt")
	ErrAttributeMissing = errors.New("region attribute missing")
)

// DefaultIDField：区域标识属性名（与上游县级边界数据一致）
const DefaultIDField = "LVL_2_ID"

// Record：一个区域；Polygons 至少一个部件，任一部件命中即命中
type Record struct {
	ID       string
	Polygons orb.MultiPolygon
	Bound    orb.Bound
}

func (r Record) Geometry() orb.MultiPolygon { return r.Polygons }

// Dataset：按源顺序排列的区域记录
type Dataset struct {
	Name    string
	CRS     string
	Records []Record
}

func (d *Dataset) Len() int { return len(d.Records) }

// 文档注释：数据集内容指纹
// 背景：按记录顺序对标识、部件结构与全部顶点做 xxhash；同名数据集重新发布后指纹随内容变化，可作为外部缓存键的一部分。
// 约束：只依赖内容与顺序，与名称、来源格式无关。
func (d *Dataset) Fingerprint() string {
	h := xxhash.New()
	var buf [8]byte
	putInt := func(n int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(n))
		_, _ = h.Write(buf[:])
	}
	putFloat := func(f float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		_, _ = h.Write(buf[:])
	}
	for _, r := range d.Records {
		putInt(len(r.ID))
		_, _ = h.WriteString(r.ID)
		putInt(len(r.Polygons))
		for _, poly := range r.Polygons {
			putInt(len(poly))
			for _, ring := range poly {
				putInt(len(ring))
				for _, p := range ring {
					putFloat(p[0])
					putFloat(p[1])
				}
			}
		}
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// Bounds：按记录顺序返回包围盒，供空间索引构建
func (d *Dataset) Bounds() []orb.Bound {
	out := make([]orb.Bound, len(d.Records))
	for i, r := range d.Records {
		out[i] = r.Bound
	}
	return out
}

type options struct {
	idField  string
	encoding string
	name     string
}

// Option：加载选项
type Option func(*options)

// WithIDField：区域标识属性名，默认 LVL_2_ID
func WithIDField(name string) Option {
	return func(o *options) {
		if name != "" {
			o.idField = name
		}
	}
}

// WithEncoding：dBase 文本编码（IANA 名称），优先于 .cpg
func WithEncoding(name string) Option { return func(o *options) { o.encoding = name } }

// WithName：数据集名称，仅用于日志
func WithName(name string) Option { return func(o *options) { o.name = name } }

func buildOptions(opts []Option) options {
	o := options{idField: DefaultIDField}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDatasetCorrupt, fmt.Sprintf(format, args...))
}

// 文档注释：校验并规范化环
// 背景：源数据显式闭合，内部统一为隐式闭合；少于 3 个不同点的退化环视为数据损坏。
func normalizeRing(r orb.Ring) (orb.Ring, error) {
	r = geo.OpenRing(r)
	seen := make(map[orb.Point]struct{}, len(r))
	for _, p := range r {
		seen[p] = struct{}{}
		if len(seen) >= 3 {
			return r, nil
		}
	}
	return nil, corrupt("ring has %d distinct points, need 3", len(seen))
}

func newRecord(id string, mp orb.MultiPolygon) Record {
	return Record{ID: id, Polygons: mp, Bound: geo.BoundOf(mp)}
}
