// 包 config：数据集与解析器的环境变量配置，服务与批处理入口共用
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"county-api/internal/dataset"
	"county-api/internal/resolver"
	"county-api/internal/utils"
)

// Dataset：数据集位置与加载参数
// 约束：Path 以 .geojson/.json 结尾时按 GeoJSON 加载，否则在 Dir 下按 Name 查找 shapefile 组。
type Dataset struct {
	Dir      string
	Name     string
	Path     string
	IDField  string
	Encoding string
	Index    string
	Workers  int
}

// DatasetFromEnv：DATASET_DIR/DATASET_NAME/DATASET_PATH/DATASET_ID_FIELD/DATASET_ENCODING/INDEX_KIND/RESOLVE_WORKERS
func DatasetFromEnv() Dataset {
	return Dataset{
		Dir:      utils.Getenv("DATASET_DIR", filepath.Join("data", "dataset")),
		Name:     utils.Getenv("DATASET_NAME", "usa_counties"),
		Path:     os.Getenv("DATASET_PATH"),
		IDField:  utils.Getenv("DATASET_ID_FIELD", dataset.DefaultIDField),
		Encoding: os.Getenv("DATASET_ENCODING"),
		Index:    os.Getenv("INDEX_KIND"),
		Workers:  utils.GetenvInt("RESOLVE_WORKERS", 0),
	}
}

func (d Dataset) isGeoJSON() bool {
	ext := strings.ToLower(filepath.Ext(d.Path))
	return ext == ".geojson" || ext == ".json"
}

// Open：按配置构建解析器
func (d Dataset) Open(ctx context.Context) (*resolver.Resolver, error) {
	dsOpts := []dataset.Option{dataset.WithIDField(d.IDField), dataset.WithEncoding(d.Encoding)}
	opts := []resolver.Option{resolver.WithIndex(d.Index), resolver.WithWorkers(d.Workers)}
	if !d.isGeoJSON() {
		opts = append(opts, resolver.WithDatasetOptions(dsOpts...))
		return resolver.OpenDir(ctx, d.Dir, d.Name, opts...)
	}
	f, err := os.Open(d.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dataset.ErrDatasetNotFound, err)
	}
	defer f.Close()
	name := strings.TrimSuffix(filepath.Base(d.Path), filepath.Ext(d.Path))
	ds, err := dataset.LoadGeoJSON(f, append(dsOpts, dataset.WithName(name))...)
	if err != nil {
		return nil, err
	}
	return resolver.New(ds, opts...)
}

// Cache：结果缓存参数；CACHE_SIZE=0 关闭进程内缓存
type Cache struct {
	Size int
	TTL  time.Duration
}

func CacheFromEnv() Cache {
	return Cache{
		Size: utils.GetenvInt("CACHE_SIZE", 100000),
		TTL:  time.Duration(utils.GetenvInt("CACHE_TTL_S", 3600)) * time.Second,
	}
}
