package shapefile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

const (
	dbfHeaderSize     = 32
	dbfFieldSize      = 32
	dbfFieldTerm      = 0x0D
	dbfDeletedFlag    = '*'
	dbfMaxFieldNameSz = 11
)

// Field：dBase 字段描述
type Field struct {
	Name     string
	Type     byte
	Length   int
	Decimals int
}

// Table：属性表，行顺序与几何记录一一对应
type Table struct {
	Fields  []Field
	Rows    [][]string
	Deleted []bool
}

// FieldIndex：按名称（大小写不敏感）查找字段下标，缺失返回 -1
func (t *Table) FieldIndex(name string) int {
	for i, f := range t.Fields {
		if strings.EqualFold(f.Name, name) {
			return i
		}
	}
	return -1
}

// 文档注释：按 IANA 名称获取属性文本解码器
// 背景：dBase 文本常为 Latin-1/Windows-1252 等单字节编码，由 .cpg 或配置声明。
// 返回：空名称或 UTF-8 返回 nil（原样透传）；未知或不受支持的编码返回 error。
func DecoderFor(name string) (*encoding.Decoder, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return nil, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, fmt.Errorf("shapefile: encoding %q is not supported", name)
	}
	return enc.NewDecoder(), nil
}

// 文档注释：读取 .dbf 属性流
// 背景：头部 32 字节（记录数、头长、记录长为小端），随后为 32 字节字段描述直至 0x0D；记录以删除标记字节开头。
// 约束：字段长度之和 + 1 必须等于记录长度；数据不足以容纳声明的记录数视为截断。dec 为 nil 时按原字节解释。
func ReadDBF(r io.Reader, dec *encoding.Decoder) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) < dbfHeaderSize+1 {
		return nil, malformed("dbf header truncated (%d bytes)", len(data))
	}
	numRecs := int64(binary.LittleEndian.Uint32(data[4:8]))
	headerLen := int(binary.LittleEndian.Uint16(data[8:10]))
	recLen := int(binary.LittleEndian.Uint16(data[10:12]))
	if headerLen < dbfHeaderSize+1 || headerLen > len(data) {
		return nil, malformed("dbf header length %d out of range", headerLen)
	}
	t := &Table{}
	width := 1
	pos := dbfHeaderSize
	for pos < headerLen && data[pos] != dbfFieldTerm {
		if pos+dbfFieldSize > headerLen {
			return nil, malformed("dbf field descriptor truncated at %d", pos)
		}
		d := data[pos : pos+dbfFieldSize]
		name := d[:dbfMaxFieldNameSz]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		f := Field{
			Name:     strings.TrimSpace(string(name)),
			Type:     d[11],
			Length:   int(d[16]),
			Decimals: int(d[17]),
		}
		t.Fields = append(t.Fields, f)
		width += f.Length
		pos += dbfFieldSize
	}
	if pos >= headerLen {
		return nil, malformed("dbf field terminator missing")
	}
	if width != recLen {
		return nil, malformed("dbf record length %d, fields need %d", recLen, width)
	}
	if int64(headerLen)+numRecs*int64(recLen) > int64(len(data)) {
		return nil, malformed("dbf truncated: %d records of %d bytes after %d header bytes, have %d", numRecs, recLen, headerLen, len(data))
	}
	n := int(numRecs)
	t.Rows = make([][]string, n)
	t.Deleted = make([]bool, n)
	for i := 0; i < n; i++ {
		rec := data[headerLen+i*recLen : headerLen+(i+1)*recLen]
		t.Deleted[i] = rec[0] == dbfDeletedFlag
		row := make([]string, len(t.Fields))
		off := 1
		for j, f := range t.Fields {
			v, err := decodeValue(rec[off:off+f.Length], dec)
			if err != nil {
				return nil, malformed("dbf record %d field %s: %v", i, f.Name, err)
			}
			row[j] = v
			off += f.Length
		}
		t.Rows[i] = row
	}
	return t, nil
}

func decodeValue(b []byte, dec *encoding.Decoder) (string, error) {
	b = bytes.TrimRight(b, "\x00")
	if dec != nil {
		out, err := dec.Bytes(b)
		if err != nil {
			return "", err
		}
		b = out
	}
	return strings.TrimSpace(string(b)), nil
}
