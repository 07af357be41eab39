package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"county-api/internal/logger"
	"county-api/internal/shapefile/shapefiletest"
)

func datasetEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for ext, b := range shapefiletest.Overlapping().Files() {
		if err := os.WriteFile(filepath.Join(dir, "counties"+ext), b, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	tmp := t.TempDir()
	logger.Set(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Setenv("TMPDIR", tmp)
	t.Setenv("DATASET_DIR", dir)
	t.Setenv("DATASET_NAME", "counties")
	t.Setenv("DATASET_PATH", "")
	t.Setenv("DATASET_ID_FIELD", "LVL_2_ID")
	t.Setenv("REDIS_HOST", "")
	t.Setenv("GEOIP_PATH", "")
	return tmp
}

// 启动失败时物化的数据集临时目录必须已被清理
func TestRunReleasesDatasetOnSchemaFailure(t *testing.T) {
	tmp := datasetEnv(t)
	t.Setenv("STORE_ENABLED", "true")
	t.Setenv("PG_HOST", "127.0.0.1")
	t.Setenv("PG_PORT", "1")

	if err := run(context.Background()); err == nil {
		t.Fatal("unreachable database should fail startup")
	}
	left, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("temp dir not released: %d entries left", len(left))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	tmp := datasetEnv(t)
	t.Setenv("STORE_ENABLED", "")
	t.Setenv("TLS_ENABLE", "")
	t.Setenv("ADDR", "127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)
	if err := run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	left, _ := os.ReadDir(tmp)
	if len(left) != 0 {
		t.Errorf("temp dir not released: %d entries left", len(left))
	}
}

func TestRunMissingDataset(t *testing.T) {
	datasetEnv(t)
	t.Setenv("DATASET_NAME", "absent")
	if err := run(context.Background()); err == nil {
		t.Fatal("missing dataset should fail startup")
	}
}
