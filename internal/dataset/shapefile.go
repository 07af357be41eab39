package dataset

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/paulmach/orb"

	"county-api/internal/geo"
	"county-api/internal/logger"
	"county-api/internal/shapefile"
)

// Sources：一个 shapefile 数据集的字节流
// 约束：SHP 与 DBF 必需；SHX 仅做交叉校验；PRJ 记录坐标参考文本；CPG 声明属性编码。每个流只读一次。
type Sources struct {
	SHP io.Reader
	SHX io.Reader
	DBF io.Reader
	PRJ io.Reader
	CPG io.Reader
}

func wrapRead(what string, err error) error {
	if errors.Is(err, shapefile.ErrMalformed) {
		return fmt.Errorf("%w: %s: %w", ErrDatasetCorrupt, what, err)
	}
	return fmt.Errorf("read %s: %w", what, err)
}

// 文档注释：从 shapefile 字节流加载数据集
// 背景：几何流与属性流按记录下标连接，记录数必须一致；包围盒在加载时按全部顶点折叠计算。
// 返回：完整数据集；缺流返回 ErrDatasetNotFound，结构异常返回 ErrDatasetCorrupt，标识缺失返回 ErrAttributeMissing。
func LoadShapefile(src Sources, opts ...Option) (*Dataset, error) {
	o := buildOptions(opts)
	if src.SHP == nil {
		return nil, fmt.Errorf("%w: geometry stream (.shp)", ErrDatasetNotFound)
	}
	if src.DBF == nil {
		return nil, fmt.Errorf("%w: attribute stream (.dbf)", ErrDatasetNotFound)
	}
	_, recs, err := shapefile.ReadSHP(src.SHP)
	if err != nil {
		return nil, wrapRead("geometry", err)
	}
	if src.SHX != nil {
		_, entries, err := shapefile.ReadSHX(src.SHX)
		if err != nil {
			return nil, wrapRead("index", err)
		}
		if err := shapefile.CheckIndex(entries, recs); err != nil {
			return nil, wrapRead("index", err)
		}
	}
	enc := o.encoding
	if enc == "" && src.CPG != nil {
		b, err := io.ReadAll(src.CPG)
		if err != nil {
			return nil, fmt.Errorf("read code page: %w", err)
		}
		enc = strings.TrimSpace(string(b))
	}
	dec, err := shapefile.DecoderFor(enc)
	if err != nil {
		return nil, corrupt("attribute encoding %q: %v", enc, err)
	}
	tbl, err := shapefile.ReadDBF(src.DBF, dec)
	if err != nil {
		return nil, wrapRead("attributes", err)
	}
	if len(tbl.Rows) != len(recs) {
		return nil, corrupt("geometry has %d records, attributes have %d", len(recs), len(tbl.Rows))
	}
	if len(recs) == 0 {
		return nil, corrupt("no records")
	}
	col := tbl.FieldIndex(o.idField)
	if col < 0 {
		return nil, fmt.Errorf("%w: field %s not in attribute schema", ErrAttributeMissing, o.idField)
	}
	ds := &Dataset{Name: o.name, Records: make([]Record, 0, len(recs))}
	if src.PRJ != nil {
		b, err := io.ReadAll(src.PRJ)
		if err != nil {
			return nil, fmt.Errorf("read projection: %w", err)
		}
		ds.CRS = strings.TrimSpace(string(b))
	}
	for i, rec := range recs {
		if rec.Null {
			return nil, corrupt("record %d has no geometry", rec.Number)
		}
		mp, err := assembleParts(rec.Parts)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", rec.Number, err)
		}
		id := tbl.Rows[i][col]
		if id == "" {
			return nil, fmt.Errorf("%w: record %d has empty %s", ErrAttributeMissing, rec.Number, o.idField)
		}
		ds.Records = append(ds.Records, newRecord(id, mp))
	}
	logger.L().Debug("dataset_shapefile_loaded", "name", o.name, "records", len(ds.Records), "id_field", o.idField, "encoding", enc)
	return ds, nil
}

// 文档注释：按 ESRI 约定把部件组装为多面
// 背景：顺时针环为外环，逆时针环为其前一个外环的洞；没有前置外环的洞提升为外环。
func assembleParts(parts []orb.Ring) (orb.MultiPolygon, error) {
	var mp orb.MultiPolygon
	for i, part := range parts {
		ring, err := normalizeRing(part)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
		if len(mp) == 0 || geo.SignedArea(ring) < 0 {
			mp = append(mp, orb.Polygon{ring})
			continue
		}
		last := len(mp) - 1
		mp[last] = append(mp[last], ring)
	}
	return mp, nil
}
