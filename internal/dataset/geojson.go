package dataset

import (
	"fmt"
	"io"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"county-api/internal/logger"
)

// 文档注释：从 GeoJSON FeatureCollection 加载数据集
// 背景：兼容以 GeoJSON 发布的边界数据；要素顺序即加载顺序，标识取自 properties[idField]。
// 约束：仅支持 Polygon/MultiPolygon；GeoJSON 按位置区分外环与洞（首环为外环）；数值标识按最短十进制文本化。
func LoadGeoJSON(r io.Reader, opts ...Option) (*Dataset, error) {
	o := buildOptions(opts)
	if r == nil {
		return nil, fmt.Errorf("%w: geojson stream", ErrDatasetNotFound)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read geojson: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, corrupt("geojson: %v", err)
	}
	if len(fc.Features) == 0 {
		return nil, corrupt("no features")
	}
	ds := &Dataset{Name: o.name, Records: make([]Record, 0, len(fc.Features))}
	for i, f := range fc.Features {
		var mp orb.MultiPolygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mp = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			mp = g
		case nil:
			return nil, corrupt("feature %d has no geometry", i)
		default:
			return nil, corrupt("feature %d geometry %s unsupported", i, g.GeoJSONType())
		}
		norm, err := normalizeMultiPolygon(mp)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		id := propertyString(f.Properties, o.idField)
		if id == "" {
			return nil, fmt.Errorf("%w: feature %d has no %s", ErrAttributeMissing, i, o.idField)
		}
		ds.Records = append(ds.Records, newRecord(id, norm))
	}
	logger.L().Debug("dataset_geojson_loaded", "name", o.name, "records", len(ds.Records), "id_field", o.idField)
	return ds, nil
}

func normalizeMultiPolygon(mp orb.MultiPolygon) (orb.MultiPolygon, error) {
	if len(mp) == 0 {
		return nil, corrupt("empty geometry")
	}
	out := make(orb.MultiPolygon, 0, len(mp))
	for pi, poly := range mp {
		if len(poly) == 0 {
			return nil, corrupt("polygon %d has no rings", pi)
		}
		np := make(orb.Polygon, 0, len(poly))
		for ri, ring := range poly {
			r, err := normalizeRing(ring)
			if err != nil {
				return nil, fmt.Errorf("polygon %d ring %d: %w", pi, ri, err)
			}
			np = append(np, r)
		}
		out = append(out, np)
	}
	return out, nil
}

func propertyString(p geojson.Properties, key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}
