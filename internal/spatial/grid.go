package spatial

import (
	"math"

	"github.com/paulmach/orb"

	"county-api/internal/geo"
)

const maxGridSide = 1024

// 文档注释：均匀网格索引
// 背景：在全部包围盒的并集上划分约 √N×√N 个单元，县级数据平均每格只落入少量记录；查询只访问一个单元。
// 约束：记录与查询点使用同一个单调的坐标→单元映射，因此包围盒含边界的记录一定出现在点所在单元中。
type Grid struct {
	bounds     []orb.Bound
	union      orb.Bound
	cols, rows int
	cw, ch     float64
	cells      [][]int
}

func NewGrid(bounds []orb.Bound) *Grid {
	g := &Grid{bounds: bounds, cols: 1, rows: 1}
	if len(bounds) == 0 {
		return g
	}
	g.union = bounds[0]
	for _, b := range bounds[1:] {
		g.union = g.union.Union(b)
	}
	side := int(math.Ceil(math.Sqrt(float64(len(bounds)))))
	side = max(1, min(side, maxGridSide))
	w := g.union.Max[0] - g.union.Min[0]
	h := g.union.Max[1] - g.union.Min[1]
	if w > 0 {
		g.cols = side
		g.cw = w / float64(side)
	}
	if h > 0 {
		g.rows = side
		g.ch = h / float64(side)
	}
	g.cells = make([][]int, g.cols*g.rows)
	for i, b := range bounds {
		c0, c1 := g.col(b.Min[0]), g.col(b.Max[0])
		r0, r1 := g.row(b.Min[1]), g.row(b.Max[1])
		for r := r0; r <= r1; r++ {
			for c := c0; c <= c1; c++ {
				k := r*g.cols + c
				g.cells[k] = append(g.cells[k], i)
			}
		}
	}
	return g
}

func cell(v, origin, size float64, n int) int {
	if n == 1 {
		return 0
	}
	i := int((v - origin) / size)
	return max(0, min(i, n-1))
}

func (g *Grid) col(x float64) int { return cell(x, g.union.Min[0], g.cw, g.cols) }
func (g *Grid) row(y float64) int { return cell(y, g.union.Min[1], g.ch, g.rows) }

func (g *Grid) Len() int { return len(g.bounds) }

// Dims：网格列数与行数
func (g *Grid) Dims() (cols, rows int) { return g.cols, g.rows }

// MaxCell：单元内最多的记录数，用于启动日志评估网格密度
func (g *Grid) MaxCell() int {
	n := 0
	for _, c := range g.cells {
		n = max(n, len(c))
	}
	return n
}

func (g *Grid) Candidates(pt orb.Point) []int {
	if len(g.bounds) == 0 || !geo.BoundContains(g.union, pt) {
		return nil
	}
	var out []int
	for _, i := range g.cells[g.row(pt[1])*g.cols+g.col(pt[0])] {
		if geo.BoundContains(g.bounds[i], pt) {
			out = append(out, i)
		}
	}
	return out
}
