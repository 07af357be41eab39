// 包 spatial：包围盒粗过滤索引，把查询点收窄为少量候选记录下标
// 背景：精确的点入多边形判定代价高，先用包围盒排除绝大多数记录；索引只保存记录下标，几何仍归数据集所有。
// 约束：候选按原始加载顺序升序（重叠裁决依赖此顺序）；包围盒判定含边界；构建后不可变，可并发只读查询。
package spatial

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

// Index：候选查询接口
type Index interface {
	// Candidates 返回包围盒包含 pt 的记录下标，升序
	Candidates(pt orb.Point) []int
	Len() int
}

// 索引类型名
const (
	KindLinear = "linear"
	KindGrid   = "grid"
	KindRTree  = "rtree"
)

// New：按名称构建索引，空名称使用网格索引
func New(kind string, bounds []orb.Bound) (Index, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindGrid:
		return NewGrid(bounds), nil
	case KindRTree:
		return NewRTree(bounds), nil
	case KindLinear:
		return NewLinear(bounds), nil
	}
	return nil, fmt.Errorf("spatial: unknown index kind %q", kind)
}
