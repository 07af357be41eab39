package resolver

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"testing"
	"testing/fstest"

	"county-api/internal/dataset"
	"county-api/internal/geo"
	"county-api/internal/shapefile/shapefiletest"
	"county-api/internal/spatial"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func at(lon, lat float64) geo.Coordinate { return geo.Coordinate{Latitude: lat, Longitude: lon} }

func load(t *testing.T, d shapefiletest.Dataset) *dataset.Dataset {
	t.Helper()
	files := d.Files()
	ds, err := dataset.LoadShapefile(dataset.Sources{
		SHP: bytes.NewReader(files[".shp"]),
		SHX: bytes.NewReader(files[".shx"]),
		DBF: bytes.NewReader(files[".dbf"]),
	})
	if err != nil {
		t.Fatalf("LoadShapefile: %v", err)
	}
	return ds
}

func mustResolver(t *testing.T, d shapefiletest.Dataset, opts ...Option) *Resolver {
	t.Helper()
	r, err := New(load(t, d), append([]Option{WithLogger(quiet)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestResolveOverlappingSquares(t *testing.T) {
	tests := []struct {
		name string
		c    geo.Coordinate
		id   string
		ok   bool
	}{
		{"inside A only", at(2, 2), "A", true},
		{"inside B only", at(12, 12), "B", true},
		{"overlap resolves to first loaded", at(7, 7), "A", true},
		{"outside both", at(20, 20), "", false},
		{"on A left edge", at(0, 5), "A", true},
		{"on B right edge", at(15, 10), "B", true},
		{"shared corner", at(10, 10), "A", true},
	}
	for _, kind := range []string{spatial.KindLinear, spatial.KindGrid, spatial.KindRTree} {
		r := mustResolver(t, shapefiletest.Overlapping(), WithIndex(kind))
		if r.IndexKind() != kind {
			t.Errorf("IndexKind = %q, want %q", r.IndexKind(), kind)
		}
		for _, tt := range tests {
			id, ok, err := r.Resolve(tt.c)
			if err != nil {
				t.Fatalf("%s/%s: %v", kind, tt.name, err)
			}
			if id != tt.id || ok != tt.ok {
				t.Errorf("%s/%s: Resolve(%v) = (%q, %v), want (%q, %v)", kind, tt.name, tt.c, id, ok, tt.id, tt.ok)
			}
		}
	}
}

func TestResolveHole(t *testing.T) {
	d := shapefiletest.Dataset{
		Shapes: []shapefiletest.Shape{
			{shapefiletest.Square(0, 0, 10, 10), shapefiletest.Hole(3, 3, 6, 6)},
		},
		Fields: []shapefiletest.Field{{Name: "LVL_2_ID", Length: 8}},
		Rows:   [][]string{{"RING"}},
	}
	r := mustResolver(t, d)
	if _, ok, _ := r.Resolve(at(4, 4)); ok {
		t.Error("point inside the hole should not resolve")
	}
	if id, ok, _ := r.Resolve(at(3, 4)); !ok || id != "RING" {
		t.Errorf("point on hole edge = (%q, %v), want RING", id, ok)
	}
	if id, ok, _ := r.Resolve(at(1, 1)); !ok || id != "RING" {
		t.Errorf("point in ring body = (%q, %v), want RING", id, ok)
	}
}

func TestResolveHoleFilledByLaterRegion(t *testing.T) {
	// 飞地：外层区域的洞由后加载的区域填充
	d := shapefiletest.Dataset{
		Shapes: []shapefiletest.Shape{
			{shapefiletest.Square(0, 0, 10, 10), shapefiletest.Hole(3, 3, 6, 6)},
			{shapefiletest.Square(3, 3, 6, 6)},
		},
		Fields: []shapefiletest.Field{{Name: "LVL_2_ID", Length: 8}},
		Rows:   [][]string{{"OUTER"}, {"ENCLAVE"}},
	}
	r := mustResolver(t, d)
	if id, _, _ := r.Resolve(at(4, 4)); id != "ENCLAVE" {
		t.Errorf("inside enclave = %q, want ENCLAVE", id)
	}
	// 洞边上的点同时属于两者的边界，加载顺序在前者胜出
	if id, _, _ := r.Resolve(at(3, 4)); id != "OUTER" {
		t.Errorf("on shared boundary = %q, want OUTER", id)
	}
}

func TestResolveBatchPreservesOrder(t *testing.T) {
	r := mustResolver(t, shapefiletest.Overlapping(), WithWorkers(3))
	got, err := r.ResolveBatch(context.Background(), []geo.Coordinate{at(2, 2), at(20, 20), at(12, 12)})
	if err != nil {
		t.Fatalf("ResolveBatch: %v", err)
	}
	want := []Result{
		{RegionID: "A", Status: StatusMatched},
		{Status: StatusNoMatch},
		{RegionID: "B", Status: StatusMatched},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d results", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if !got[0].Found() || got[1].Found() {
		t.Error("Found() disagrees with status")
	}
}

func TestResolveBatchEmpty(t *testing.T) {
	r := mustResolver(t, shapefiletest.Overlapping())
	got, err := r.ResolveBatch(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Errorf("got %v, %v", got, err)
	}
}

func TestResolveBatchMatchesResolve(t *testing.T) {
	r := mustResolver(t, shapefiletest.Overlapping(), WithWorkers(8))
	rng := rand.New(rand.NewSource(7))
	coords := make([]geo.Coordinate, 5000)
	for i := range coords {
		coords[i] = at(rng.Float64()*20-2, rng.Float64()*20-2)
	}
	batch, err := r.ResolveBatch(context.Background(), coords)
	if err != nil {
		t.Fatalf("ResolveBatch: %v", err)
	}
	perm := rng.Perm(len(coords))
	shuffled := make([]geo.Coordinate, len(coords))
	for i, p := range perm {
		shuffled[i] = coords[p]
	}
	again, err := r.ResolveBatch(context.Background(), shuffled)
	if err != nil {
		t.Fatalf("ResolveBatch shuffled: %v", err)
	}
	for i, c := range coords {
		id, ok, _ := r.Resolve(c)
		if batch[i].RegionID != id || batch[i].Found() != ok {
			t.Fatalf("coord %v: batch %+v, single (%q, %v)", c, batch[i], id, ok)
		}
	}
	for i, p := range perm {
		if again[i] != batch[p] {
			t.Fatalf("coord %v: shuffled %+v, unshuffled %+v", shuffled[i], again[i], batch[p])
		}
	}
}

func TestResolveBatchCancelled(t *testing.T) {
	r := mustResolver(t, shapefiletest.Overlapping())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	coords := []geo.Coordinate{at(2, 2), at(12, 12), at(20, 20)}
	got, err := r.ResolveBatch(ctx, coords)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(got) != len(coords) {
		t.Fatalf("partial result has %d slots, want %d", len(got), len(coords))
	}
	for i, res := range got {
		if res.Status != StatusCancelled {
			t.Errorf("slot %d = %v, want cancelled", i, res.Status)
		}
	}
}

func TestCloseLifecycle(t *testing.T) {
	r := mustResolver(t, shapefiletest.Overlapping())
	if r.Closed() {
		t.Fatal("new resolver should be ready")
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, _, err := r.Resolve(at(2, 2)); !errors.Is(err, ErrResolverClosed) {
		t.Errorf("Resolve after Close err = %v", err)
	}
	if _, err := r.ResolveBatch(context.Background(), []geo.Coordinate{at(2, 2)}); !errors.Is(err, ErrResolverClosed) {
		t.Errorf("ResolveBatch after Close err = %v", err)
	}
	if r.Regions() != 2 {
		t.Errorf("Regions = %d", r.Regions())
	}
}

func TestNewRejectsEmptyDataset(t *testing.T) {
	if _, err := New(nil, WithLogger(quiet)); !errors.Is(err, dataset.ErrDatasetNotFound) {
		t.Errorf("New(nil) err = %v", err)
	}
	if _, err := New(&dataset.Dataset{}, WithLogger(quiet)); !errors.Is(err, dataset.ErrDatasetNotFound) {
		t.Errorf("New(empty) err = %v", err)
	}
	ds := load(t, shapefiletest.Overlapping())
	if _, err := New(ds, WithLogger(quiet), WithIndex("kd")); err == nil {
		t.Error("unknown index kind should fail")
	}
}

// 对随机点，暴力计算的真实包含集合必须是索引候选集的子集
func TestCandidatesNeverOmitTrueMatch(t *testing.T) {
	d := shapefiletest.Dataset{Fields: []shapefiletest.Field{{Name: "LVL_2_ID", Length: 8}}}
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 60; i++ {
		x, y := rng.Float64()*50, rng.Float64()*50
		d.Shapes = append(d.Shapes, shapefiletest.Shape{shapefiletest.Square(x, y, x+rng.Float64()*10+0.5, y+rng.Float64()*10+0.5)})
		d.Rows = append(d.Rows, []string{string(rune('a'+i%26)) + string(rune('0'+i/26))})
	}
	ds := load(t, d)
	for _, kind := range []string{spatial.KindGrid, spatial.KindRTree} {
		idx, err := spatial.New(kind, ds.Bounds())
		if err != nil {
			t.Fatal(err)
		}
		for n := 0; n < 2000; n++ {
			pt := at(rng.Float64()*65-2, rng.Float64()*65-2).Point()
			cands := make(map[int]bool)
			for _, i := range idx.Candidates(pt) {
				cands[i] = true
			}
			for i, rec := range ds.Records {
				if geo.MultiPolygonContains(rec.Polygons, pt) && !cands[i] {
					t.Fatalf("%s: record %d contains %v but is not a candidate", kind, i, pt)
				}
			}
		}
	}
}

func mapFS(name string, files map[string][]byte) fstest.MapFS {
	m := fstest.MapFS{}
	for ext, b := range files {
		m[name+ext] = &fstest.MapFile{Data: b}
	}
	return m
}

func TestOpenBundled(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	fsys := mapFS("usa_counties", shapefiletest.Overlapping().Files())
	r, err := Open(context.Background(), fsys, "usa_counties", WithLogger(quiet), WithIndex(spatial.KindRTree))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if id, ok, _ := r.Resolve(at(7, 7)); !ok || id != "A" {
		t.Errorf("Resolve = (%q, %v)", id, ok)
	}
	if entries, _ := os.ReadDir(tmp); len(entries) != 1 {
		t.Errorf("expected one materialized dir, got %v", entries)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if entries, _ := os.ReadDir(tmp); len(entries) != 0 {
		t.Errorf("temp files left after Close: %v", entries)
	}
}

func TestOpenReleasesOnLoadFailure(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	d := shapefiletest.Overlapping()
	d.Rows = d.Rows[:1]
	_, err := Open(context.Background(), mapFS("usa_counties", d.Files()), "usa_counties", WithLogger(quiet))
	if !errors.Is(err, dataset.ErrDatasetCorrupt) {
		t.Fatalf("err = %v, want ErrDatasetCorrupt", err)
	}
	if entries, _ := os.ReadDir(tmp); len(entries) != 0 {
		t.Errorf("temp files left after failed Open: %v", entries)
	}
}

func TestOpenMissingDataset(t *testing.T) {
	_, err := Open(context.Background(), fstest.MapFS{}, "usa_counties", WithLogger(quiet))
	if !errors.Is(err, dataset.ErrDatasetNotFound) {
		t.Errorf("err = %v, want ErrDatasetNotFound", err)
	}
}

func TestOpenDir(t *testing.T) {
	dir := t.TempDir()
	for ext, b := range shapefiletest.Overlapping().Files() {
		if err := os.WriteFile(dir+"/counties"+ext, b, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	r, err := OpenDir(context.Background(), dir, "counties", WithLogger(quiet), WithDatasetOptions(dataset.WithIDField("NAME")))
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	defer r.Close()
	if id, _, _ := r.Resolve(at(12, 12)); id != "Bravo" {
		t.Errorf("Resolve = %q, want Bravo", id)
	}
}

func TestStatusText(t *testing.T) {
	for _, s := range []Status{StatusCancelled, StatusNoMatch, StatusMatched} {
		b, _ := s.MarshalText()
		var back Status
		if err := back.UnmarshalText(b); err != nil || back != s {
			t.Errorf("%v round trip = %v, %v", s, back, err)
		}
	}
	var s Status
	if err := s.UnmarshalText([]byte("maybe")); err == nil {
		t.Error("unknown status should fail")
	}
}

func TestHolderSwap(t *testing.T) {
	a := mustResolver(t, shapefiletest.Overlapping())
	b := mustResolver(t, shapefiletest.Overlapping(), WithDatasetOptions(dataset.WithIDField("NAME")))
	h := NewHolder(a)
	if h.Load() != a {
		t.Fatal("Load should return the initial resolver")
	}
	if old := h.Swap(b); old != a {
		t.Error("Swap should return the previous resolver")
	}
	if h.Load() != b {
		t.Error("Load should return the swapped-in resolver")
	}
	var empty Holder
	if empty.Load() != nil {
		t.Error("zero Holder should be empty")
	}
}
