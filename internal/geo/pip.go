package geo

import "github.com/paulmach/orb"

// 文档注释：点入多边形判定（Even-Odd）
// 背景：对空间索引给出的候选集合执行精确命中判定；支持洞与多面结构。
// 约束：边界点语义固定：落在外环边上视为在内，落在洞边上视为不在洞内，即边界点归属该区域。
// 判定先做精确的共线检测（叉积为 0 且在线段包围盒内），再做射线奇偶计数，避免边界结果依赖浮点偶然。

// RingContains：返回点是否在环内，以及是否恰好落在环的边上
// 约束：环按隐式闭合处理；少于 3 个点的环不包含任何点。
func RingContains(ring orb.Ring, pt orb.Point) (inside bool, onEdge bool) {
	n := len(ring)
	if n < 3 {
		return false, false
	}
	x, y := pt[0], pt[1]
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := ring[j], ring[i]
		if onSegment(pt, a, b) {
			return true, true
		}
		// 半开区间规则：顶点恰在射线上时只计一次
		if (b[1] > y) != (a[1] > y) {
			xCross := (a[0]-b[0])*(y-b[1])/(a[1]-b[1]) + b[0]
			if x < xCross {
				inside = !inside
			}
		}
	}
	return inside, false
}

func onSegment(p, a, b orb.Point) bool {
	cross := (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
	if cross != 0 {
		return false
	}
	return p[0] >= min(a[0], b[0]) && p[0] <= max(a[0], b[0]) &&
		p[1] >= min(a[1], b[1]) && p[1] <= max(a[1], b[1])
}

// PolygonContains：外环命中且不在任何洞内
func PolygonContains(poly orb.Polygon, pt orb.Point) bool {
	if len(poly) == 0 {
		return false
	}
	if in, _ := RingContains(poly[0], pt); !in {
		return false
	}
	for _, hole := range poly[1:] {
		in, edge := RingContains(hole, pt)
		if in && !edge {
			return false
		}
	}
	return true
}

// MultiPolygonContains：任一部件命中即命中
func MultiPolygonContains(mp orb.MultiPolygon, pt orb.Point) bool {
	for _, p := range mp {
		if PolygonContains(p, pt) {
			return true
		}
	}
	return false
}

// Shape：可参与命中判定的区域记录
type Shape interface {
	Geometry() orb.MultiPolygon
}

// ResolveAmong：按候选顺序返回第一个包含该点的记录下标
// 背景：候选由空间索引按加载顺序升序给出，重叠区域由加载顺序最小者胜出。
// 返回：命中下标与 true；全部未命中返回 -1 与 false（未命中不是错误）。
func ResolveAmong[S Shape](shapes []S, candidates []int, pt orb.Point) (int, bool) {
	for _, idx := range candidates {
		if idx < 0 || idx >= len(shapes) {
			continue
		}
		if MultiPolygonContains(shapes[idx].Geometry(), pt) {
			return idx, true
		}
	}
	return -1, false
}
