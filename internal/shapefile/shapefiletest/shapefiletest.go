// 包 shapefiletest：为测试构造 shapefile 字节流（.shp/.shx/.dbf）
// 背景：测试需要合法与故意损坏的数据集，避免在仓库中提交二进制样本。
package shapefiletest

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/paulmach/orb"
)

// Shape：一条面记录的部件；nil 表示空形状记录
type Shape []orb.Ring

// Field：字符型属性字段
type Field struct {
	Name   string
	Length int
}

// Dataset：一组几何与对应属性行
type Dataset struct {
	Shapes []Shape
	Fields []Field
	Rows   [][]string
}

// Square：顺时针闭合的正方形外环（ESRI 外环方向）
func Square(x0, y0, x1, y1 float64) orb.Ring {
	return orb.Ring{{x0, y0}, {x0, y1}, {x1, y1}, {x1, y0}, {x0, y0}}
}

// Hole：逆时针闭合的正方形洞
func Hole(x0, y0, x1, y1 float64) orb.Ring {
	return orb.Ring{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}
}

func contentLen(s Shape) int {
	if s == nil {
		return 4
	}
	n := 0
	for _, r := range s {
		n += len(r)
	}
	return 44 + 4*len(s) + 16*n
}

func bound(shapes []Shape) orb.Bound {
	var b orb.Bound
	first := true
	for _, s := range shapes {
		for _, r := range s {
			for _, p := range r {
				if first {
					b = p.Bound()
					first = false
				} else {
					b = b.Extend(p)
				}
			}
		}
	}
	return b
}

func writeHeader(buf *bytes.Buffer, fileLen int, shapeType int32, b orb.Bound) {
	be := binary.BigEndian
	le := binary.LittleEndian
	_ = binary.Write(buf, be, int32(9994))
	buf.Write(make([]byte, 20))
	_ = binary.Write(buf, be, int32(fileLen/2))
	_ = binary.Write(buf, le, int32(1000))
	_ = binary.Write(buf, le, shapeType)
	for _, v := range []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1], 0, 0, 0, 0} {
		_ = binary.Write(buf, le, math.Float64bits(v))
	}
}

// SHP：编码几何流（类型 5）
func SHP(shapes []Shape) []byte {
	total := 100
	for _, s := range shapes {
		total += 8 + contentLen(s)
	}
	var buf bytes.Buffer
	writeHeader(&buf, total, 5, bound(shapes))
	le := binary.LittleEndian
	for i, s := range shapes {
		_ = binary.Write(&buf, binary.BigEndian, int32(i+1))
		_ = binary.Write(&buf, binary.BigEndian, int32(contentLen(s)/2))
		if s == nil {
			_ = binary.Write(&buf, le, int32(0))
			continue
		}
		_ = binary.Write(&buf, le, int32(5))
		b := bound([]Shape{s})
		for _, v := range []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]} {
			_ = binary.Write(&buf, le, v)
		}
		n := 0
		for _, r := range s {
			n += len(r)
		}
		_ = binary.Write(&buf, le, int32(len(s)))
		_ = binary.Write(&buf, le, int32(n))
		start := 0
		for _, r := range s {
			_ = binary.Write(&buf, le, int32(start))
			start += len(r)
		}
		for _, r := range s {
			for _, p := range r {
				_ = binary.Write(&buf, le, p[0])
				_ = binary.Write(&buf, le, p[1])
			}
		}
	}
	return buf.Bytes()
}

// SHX：编码与 SHP 对应的索引流
func SHX(shapes []Shape) []byte {
	var buf bytes.Buffer
	writeHeader(&buf, 100+8*len(shapes), 5, bound(shapes))
	off := 100
	for _, s := range shapes {
		cl := contentLen(s)
		_ = binary.Write(&buf, binary.BigEndian, int32(off/2))
		_ = binary.Write(&buf, binary.BigEndian, int32(cl/2))
		off += 8 + cl
	}
	return buf.Bytes()
}

// DBF：编码字符型属性表；值按字段长度截断并右补空格
func DBF(fields []Field, rows [][]string) []byte {
	le := binary.LittleEndian
	recLen := 1
	for _, f := range fields {
		recLen += f.Length
	}
	headerLen := 32 + 32*len(fields) + 1
	var buf bytes.Buffer
	buf.WriteByte(0x03)
	buf.Write([]byte{124, 1, 1})
	_ = binary.Write(&buf, le, uint32(len(rows)))
	_ = binary.Write(&buf, le, uint16(headerLen))
	_ = binary.Write(&buf, le, uint16(recLen))
	buf.Write(make([]byte, 20))
	for _, f := range fields {
		name := make([]byte, 11)
		copy(name, f.Name)
		buf.Write(name)
		buf.WriteByte('C')
		buf.Write(make([]byte, 4))
		buf.WriteByte(byte(f.Length))
		buf.WriteByte(0)
		buf.Write(make([]byte, 14))
	}
	buf.WriteByte(0x0D)
	for _, row := range rows {
		buf.WriteByte(' ')
		for j, f := range fields {
			v := []byte{}
			if j < len(row) {
				v = []byte(row[j])
			}
			cell := bytes.Repeat([]byte{' '}, f.Length)
			copy(cell, v)
			buf.Write(cell)
		}
	}
	buf.WriteByte(0x1A)
	return buf.Bytes()
}

// Files：按 shapefile 扩展名返回全部字节流
func (d Dataset) Files() map[string][]byte {
	return map[string][]byte{
		".shp": SHP(d.Shapes),
		".shx": SHX(d.Shapes),
		".dbf": DBF(d.Fields, d.Rows),
		".prj": []byte(`GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["Degree",0.017453292519943295]]`),
	}
}

// Overlapping：两块重叠正方形 A(0,0)-(10,10) 与 B(5,5)-(15,15)，按 A、B 顺序
func Overlapping() Dataset {
	return Dataset{
		Shapes: []Shape{{Square(0, 0, 10, 10)}, {Square(5, 5, 15, 15)}},
		Fields: []Field{{Name: "LVL_2_ID", Length: 10}, {Name: "NAME", Length: 20}},
		Rows:   [][]string{{"A", "Alpha"}, {"B", "Bravo"}},
	}
}
