// 包 geo：坐标与几何原语，以及点入多边形的精确判定
// 背景：几何类型直接复用 orb（Point 为 [经度, 纬度]），本包只补充加载期包围盒计算与命中语义。
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Coordinate：调用方输入的经纬度
// 约束：按平面坐标处理，不做大地测量修正；Point() 转换为 orb.Point{经度, 纬度}，避免轴序混淆。
type Coordinate struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

func (c Coordinate) Point() orb.Point { return orb.Point{c.Longitude, c.Latitude} }

func (c Coordinate) String() string {
	return fmt.Sprintf("(%g, %g)", c.Latitude, c.Longitude)
}

// Valid：经纬度有限且落在 WGS84 取值范围内
// 背景：仅用于 API/CLI 入口校验；核心判定对任意浮点输入都不会失败。
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) || math.IsInf(c.Latitude, 0) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// BoundOf：对所有环（外环与洞）的全部顶点折叠 min/max
// 约束：调用方保证至少一个顶点；空输入返回零值包围盒。
func BoundOf(polys []orb.Polygon) orb.Bound {
	var b orb.Bound
	first := true
	for _, p := range polys {
		for _, r := range p {
			for _, pt := range r {
				if first {
					b = pt.Bound()
					first = false
					continue
				}
				b = b.Extend(pt)
			}
		}
	}
	return b
}

// BoundContains：包围盒含边界的点包含判定
func BoundContains(b orb.Bound, pt orb.Point) bool {
	return pt[0] >= b.Min[0] && pt[0] <= b.Max[0] && pt[1] >= b.Min[1] && pt[1] <= b.Max[1]
}

// OpenRing：去掉与首点相同的闭合尾点
// 背景：shapefile 与 GeoJSON 都显式闭合环；内部统一为隐式闭合表示。
func OpenRing(r orb.Ring) orb.Ring {
	if len(r) > 1 && r[0] == r[len(r)-1] {
		return r[:len(r)-1]
	}
	return r
}

// SignedArea：鞋带公式的有向面积，逆时针为正
func SignedArea(r orb.Ring) float64 {
	n := len(r)
	if n < 3 {
		return 0
	}
	s := 0.0
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		s += (r[j][0] * r[i][1]) - (r[i][0] * r[j][1])
	}
	return s / 2
}
