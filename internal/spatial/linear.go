package spatial

import (
	"github.com/paulmach/orb"

	"county-api/internal/geo"
)

// Linear：逐条扫描，作为其它索引的对照实现
type Linear struct {
	bounds []orb.Bound
}

func NewLinear(bounds []orb.Bound) *Linear { return &Linear{bounds: bounds} }

func (l *Linear) Len() int { return len(l.bounds) }

func (l *Linear) Candidates(pt orb.Point) []int {
	var out []int
	for i, b := range l.bounds {
		if geo.BoundContains(b, pt) {
			out = append(out, i)
		}
	}
	return out
}
