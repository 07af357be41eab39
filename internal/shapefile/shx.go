package shapefile

import (
	"encoding/binary"
	"io"
)

// IndexEntry：.shx 中一条记录的偏移与内容长度（字节）
type IndexEntry struct {
	Offset int
	Length int
}

// 文档注释：读取 .shx 索引流
// 背景：索引与几何文件同头部格式，其后为每条记录 8 字节（偏移、长度，大端 16 位字）。
// 约束：仅用于与 .shp 交叉校验记录数与偏移；不参与几何读取。
func ReadSHX(r io.Reader) (Header, []IndexEntry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Header{}, nil, err
	}
	h, err := parseHeader(data)
	if err != nil {
		return h, nil, err
	}
	body := h.FileLength - headerSize
	if body%recHeaderSize != 0 {
		return h, nil, malformed("index body %d bytes is not a multiple of %d", body, recHeaderSize)
	}
	out := make([]IndexEntry, 0, body/recHeaderSize)
	for off := headerSize; off < h.FileLength; off += recHeaderSize {
		out = append(out, IndexEntry{
			Offset: int(binary.BigEndian.Uint32(data[off:off+4])) * 2,
			Length: int(binary.BigEndian.Uint32(data[off+4:off+8])) * 2,
		})
	}
	return h, out, nil
}

// CheckIndex：校验索引条目与几何记录逐条一致
func CheckIndex(entries []IndexEntry, recs []Record) error {
	if len(entries) != len(recs) {
		return malformed("index has %d entries, geometry has %d records", len(entries), len(recs))
	}
	for i, e := range entries {
		if e.Offset != recs[i].Offset || e.Length != recs[i].Length {
			return malformed("index entry %d (%d+%d) disagrees with record at %d+%d", i, e.Offset, e.Length, recs[i].Offset, recs[i].Length)
		}
	}
	return nil
}
