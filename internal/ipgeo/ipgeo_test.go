package ipgeo

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "absent.mmdb")); err == nil {
		t.Error("opening a missing database should fail")
	}
}

func TestFromBytesRejectsGarbage(t *testing.T) {
	if _, err := FromBytes([]byte("not a maxmind database")); err == nil {
		t.Error("garbage should not parse as mmdb")
	}
}

// 需要真实数据库：设置 GEOIP_TEST_PATH 指向 GeoLite2-City.mmdb
func TestLookup(t *testing.T) {
	path := os.Getenv("GEOIP_TEST_PATH")
	if path == "" {
		t.Skip("GEOIP_TEST_PATH not set")
	}
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if _, _, err := l.Lookup("not-an-ip"); err != ErrInvalidIP {
		t.Errorf("err = %v, want ErrInvalidIP", err)
	}
	if _, ok, err := l.Lookup("127.0.0.1"); err != nil || ok {
		t.Errorf("loopback = %v, %v; want miss", ok, err)
	}
	loc, ok, err := l.Lookup("8.8.8.8")
	if err != nil || !ok {
		t.Fatalf("8.8.8.8 = %v, %v", ok, err)
	}
	if !loc.Coordinate.Valid() {
		t.Errorf("invalid coordinate %v", loc.Coordinate)
	}
}
