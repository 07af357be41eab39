package bundle

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"county-api/internal/dataset"
	"county-api/internal/shapefile/shapefiletest"
)

func mapFS(name string, files map[string][]byte) fstest.MapFS {
	m := fstest.MapFS{}
	for ext, b := range files {
		m[name+ext] = &fstest.MapFile{Data: b}
	}
	return m
}

func TestMaterializeAndRelease(t *testing.T) {
	fsys := mapFS("usa_counties", shapefiletest.Overlapping().Files())
	set, err := Materialize(fsys, "usa_counties")
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	for _, ext := range []string{".shp", ".dbf", ".shx", ".prj"} {
		if _, err := os.Stat(set.Path(ext)); err != nil {
			t.Errorf("%s not materialized: %v", ext, err)
		}
	}
	if set.Path(".cpg") != "" {
		t.Error(".cpg was not supplied and should not be materialized")
	}
	src, closer, err := set.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ds, err := dataset.LoadShapefile(src)
	closer.Close()
	if err != nil {
		t.Fatalf("LoadShapefile: %v", err)
	}
	if ds.Len() != 2 {
		t.Errorf("Len = %d", ds.Len())
	}
	if err := set.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(set.Dir); !os.IsNotExist(err) {
		t.Errorf("temp dir still present: %v", err)
	}
	if err := set.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}
}

func TestMaterializeMissingRequired(t *testing.T) {
	files := shapefiletest.Overlapping().Files()
	delete(files, ".dbf")
	_, err := Materialize(mapFS("usa_counties", files), "usa_counties")
	if !errors.Is(err, dataset.ErrDatasetNotFound) {
		t.Errorf("err = %v, want ErrDatasetNotFound", err)
	}
}

// failingFS：读取指定扩展名时返回错误，模拟物化中途失败
type failingFS struct {
	fstest.MapFS
	ext string
}

type failingFile struct{ fs.File }

func (failingFile) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func (f failingFS) Open(name string) (fs.File, error) {
	file, err := f.MapFS.Open(name)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(name) == f.ext {
		return failingFile{file}, nil
	}
	return file, nil
}

func TestMaterializeCleansUpPartialExtraction(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	fsys := failingFS{MapFS: mapFS("usa_counties", shapefiletest.Overlapping().Files()), ext: ".shx"}
	if _, err := Materialize(fsys, "usa_counties"); err == nil {
		t.Fatal("expected failure while copying .shx")
	}
	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("partial extraction left behind: %v", entries)
	}
}
