package shapefile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"county-api/internal/shapefile/shapefiletest"
)

func TestReadDBF(t *testing.T) {
	ds := shapefiletest.Overlapping()
	tbl, err := ReadDBF(bytes.NewReader(shapefiletest.DBF(ds.Fields, ds.Rows)), nil)
	if err != nil {
		t.Fatalf("ReadDBF: %v", err)
	}
	if len(tbl.Fields) != 2 || tbl.Fields[0].Name != "LVL_2_ID" || tbl.Fields[0].Length != 10 {
		t.Fatalf("fields = %+v", tbl.Fields)
	}
	if i := tbl.FieldIndex("lvl_2_id"); i != 0 {
		t.Errorf("FieldIndex = %d, want 0", i)
	}
	if i := tbl.FieldIndex("FIPS"); i != -1 {
		t.Errorf("FieldIndex(missing) = %d, want -1", i)
	}
	if len(tbl.Rows) != 2 || tbl.Rows[0][0] != "A" || tbl.Rows[1][1] != "Bravo" {
		t.Errorf("rows = %q", tbl.Rows)
	}
	if tbl.Deleted[0] || tbl.Deleted[1] {
		t.Error("no record should be marked deleted")
	}
}

func TestReadDBFLatin1(t *testing.T) {
	fields := []shapefiletest.Field{{Name: "NAME", Length: 12}}
	rows := [][]string{{"Dor\xe9"}}
	dec, err := DecoderFor("ISO-8859-1")
	if err != nil {
		t.Fatalf("DecoderFor: %v", err)
	}
	tbl, err := ReadDBF(bytes.NewReader(shapefiletest.DBF(fields, rows)), dec)
	if err != nil {
		t.Fatalf("ReadDBF: %v", err)
	}
	if got := tbl.Rows[0][0]; got != "Doré" {
		t.Errorf("decoded = %q, want %q", got, "Doré")
	}
}

func TestDecoderFor(t *testing.T) {
	for _, name := range []string{"", "UTF-8", "utf8"} {
		dec, err := DecoderFor(name)
		if err != nil || dec != nil {
			t.Errorf("DecoderFor(%q) = %v, %v; want nil, nil", name, dec, err)
		}
	}
	if _, err := DecoderFor("no-such-charset"); err == nil {
		t.Error("unknown charset should fail")
	}
}

func TestReadDBFMalformed(t *testing.T) {
	ds := shapefiletest.Overlapping()
	valid := shapefiletest.DBF(ds.Fields, ds.Rows)
	patch := func(f func(b []byte)) []byte {
		b := append([]byte(nil), valid...)
		f(b)
		return b
	}
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated records", valid[:len(valid)-20]},
		{"record count too large", patch(func(b []byte) { binary.LittleEndian.PutUint32(b[4:8], 9) })},
		{"record length mismatch", patch(func(b []byte) { binary.LittleEndian.PutUint16(b[10:12], 7) })},
		{"header length past end", patch(func(b []byte) { binary.LittleEndian.PutUint16(b[8:10], 0xFFFF) })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadDBF(bytes.NewReader(tt.data), nil); !errors.Is(err, ErrMalformed) {
				t.Errorf("err = %v, want ErrMalformed", err)
			}
		})
	}
}
