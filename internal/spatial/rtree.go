package spatial

import (
	"slices"

	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"
)

// RTree：包装 tidwall/rtree，值为记录下标
// 约束：树内遍历顺序与插入顺序无关，结果需要排序后返回。
type RTree struct {
	tree rtree.RTreeG[int]
}

func NewRTree(bounds []orb.Bound) *RTree {
	t := &RTree{}
	for i, b := range bounds {
		t.tree.Insert([2]float64{b.Min[0], b.Min[1]}, [2]float64{b.Max[0], b.Max[1]}, i)
	}
	return t
}

func (t *RTree) Len() int { return t.tree.Len() }

func (t *RTree) Candidates(pt orb.Point) []int {
	var out []int
	p := [2]float64{pt[0], pt[1]}
	t.tree.Search(p, p, func(_, _ [2]float64, i int) bool {
		out = append(out, i)
		return true
	})
	slices.Sort(out)
	return out
}
