// 包 shapefile：读取 ESRI Shapefile 的几何（.shp）、索引（.shx）与属性表（.dbf）
// 背景：边界数据集以 shapefile 形式发布；只实现面要素的只读解析，严格做长度与边界校验，任何结构异常返回 error 而非 panic。
package shapefile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/paulmach/orb"
)

// ErrMalformed：文件结构不合法（头部、截断、长度与计数不一致等）
var ErrMalformed = errors.New("shapefile: malformed")

// 形状类型（仅支持面要素族与空形状）
const (
	ShapeNull     int32 = 0
	ShapePolygon  int32 = 5
	ShapePolygonZ int32 = 15
	ShapePolygonM int32 = 25
)

const (
	fileCode      = 9994
	fileVersion   = 1000
	headerSize    = 100
	recHeaderSize = 8
	polyFixedSize = 44 // 类型 + 包围盒 + 部件数 + 点数
)

// Header：.shp/.shx 共用的 100 字节文件头
type Header struct {
	FileLength int // 字节
	ShapeType  int32
	Bound      orb.Bound
}

// Record：一条几何记录
// 约束：Parts 为原始部件（环），保留文件中的闭合点与顺序；空形状 Parts 为 nil 且 Null 为 true。
type Record struct {
	Number    int32
	ShapeType int32
	Offset    int // 记录头在文件中的字节偏移
	Length    int // 内容长度（字节，不含记录头）
	Null      bool
	Parts     []orb.Ring
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

func isPolygonType(t int32) bool {
	return t == ShapePolygon || t == ShapePolygonZ || t == ShapePolygonM
}

// 文档注释：解析 100 字节文件头
// 背景：文件码与文件长度为大端，版本、类型与包围盒为小端；文件长度单位为 16 位字。
// 约束：返回的 FileLength 不超过实际数据长度，否则视为截断。
func parseHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < headerSize {
		return h, malformed("header truncated (%d bytes)", len(data))
	}
	if code := int32(binary.BigEndian.Uint32(data[0:4])); code != fileCode {
		return h, malformed("bad file code %d", code)
	}
	if v := int32(binary.LittleEndian.Uint32(data[28:32])); v != fileVersion {
		return h, malformed("bad version %d", v)
	}
	h.FileLength = int(binary.BigEndian.Uint32(data[24:28])) * 2
	if h.FileLength < headerSize {
		return h, malformed("file length %d shorter than header", h.FileLength)
	}
	if h.FileLength > len(data) {
		return h, malformed("file truncated: header says %d bytes, have %d", h.FileLength, len(data))
	}
	h.ShapeType = int32(binary.LittleEndian.Uint32(data[32:36]))
	h.Bound = orb.Bound{
		Min: orb.Point{readFloat(data, 36), readFloat(data, 44)},
		Max: orb.Point{readFloat(data, 52), readFloat(data, 60)},
	}
	return h, nil
}

func readFloat(b []byte, off int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b[off : off+8]))
}

// 文档注释：读取 .shp 几何流
// 背景：整体读入后按记录头顺序切分；每条记录校验内容长度与部件数/点数是否一致。
// 返回：文件头与按文件顺序排列的记录；异常均包裹 ErrMalformed，读流错误原样返回。
func ReadSHP(r io.Reader) (Header, []Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Header{}, nil, err
	}
	h, err := parseHeader(data)
	if err != nil {
		return h, nil, err
	}
	if !isPolygonType(h.ShapeType) {
		return h, nil, malformed("unsupported shape type %d", h.ShapeType)
	}
	var recs []Record
	off := headerSize
	for off < h.FileLength {
		if off+recHeaderSize > h.FileLength {
			return h, nil, malformed("record header truncated at offset %d", off)
		}
		num := int32(binary.BigEndian.Uint32(data[off : off+4]))
		clen := int(binary.BigEndian.Uint32(data[off+4:off+8])) * 2
		start := off + recHeaderSize
		if clen < 4 || start+clen > h.FileLength {
			return h, nil, malformed("record %d content length %d exceeds payload", num, clen)
		}
		rec, err := parseRecord(data[start:start+clen], h.ShapeType)
		if err != nil {
			return h, nil, fmt.Errorf("record %d: %w", num, err)
		}
		rec.Number = num
		rec.Offset = off
		rec.Length = clen
		recs = append(recs, rec)
		off = start + clen
	}
	return h, recs, nil
}

func parseRecord(c []byte, fileType int32) (Record, error) {
	st := int32(binary.LittleEndian.Uint32(c[0:4]))
	if st == ShapeNull {
		return Record{ShapeType: st, Null: true}, nil
	}
	if st != fileType {
		return Record{}, malformed("shape type %d differs from file type %d", st, fileType)
	}
	if len(c) < polyFixedSize {
		return Record{}, malformed("polygon content %d bytes, need %d", len(c), polyFixedSize)
	}
	numParts := int64(int32(binary.LittleEndian.Uint32(c[36:40])))
	numPoints := int64(int32(binary.LittleEndian.Uint32(c[40:44])))
	if numParts < 1 || numPoints < 0 {
		return Record{}, malformed("bad counts parts=%d points=%d", numParts, numPoints)
	}
	need := polyFixedSize + 4*numParts + 16*numPoints
	if need > int64(len(c)) {
		return Record{}, malformed("%d parts / %d points need %d bytes, content has %d", numParts, numPoints, need, len(c))
	}
	np, npts := int(numParts), int(numPoints)
	starts := make([]int, np+1)
	for i := 0; i < np; i++ {
		starts[i] = int(int32(binary.LittleEndian.Uint32(c[polyFixedSize+4*i:])))
	}
	starts[np] = npts
	if starts[0] != 0 {
		return Record{}, malformed("first part starts at %d", starts[0])
	}
	for i := 0; i < np; i++ {
		if starts[i] >= starts[i+1] {
			return Record{}, malformed("part %d offsets out of order (%d, %d)", i, starts[i], starts[i+1])
		}
	}
	pts := make([]orb.Point, npts)
	base := polyFixedSize + 4*np
	for k := range pts {
		x := readFloat(c, base+16*k)
		y := readFloat(c, base+16*k+8)
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			return Record{}, malformed("non-finite vertex %d", k)
		}
		pts[k] = orb.Point{x, y}
	}
	parts := make([]orb.Ring, np)
	for i := 0; i < np; i++ {
		parts[i] = orb.Ring(pts[starts[i]:starts[i+1]:starts[i+1]])
	}
	return Record{ShapeType: st, Parts: parts}, nil
}
