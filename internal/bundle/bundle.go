// 包 bundle：把随程序发布的 shapefile 数据集物化到临时目录，并保证释放
// 背景：数据集可能以 embed.FS 或只读目录形式发布，而加载需要可寻址文件；物化后以句柄表达资源归属。
// 约束：Materialize 失败时已写出的部分文件会被清理；Release 幂等，调用方在所有退出路径上调用一次即可。
package bundle

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"county-api/internal/dataset"
	"county-api/internal/logger"
)

// 数据集组成文件：.shp/.dbf 必需，其余可选
var (
	requiredExts = []string{".shp", ".dbf"}
	optionalExts = []string{".shx", ".prj", ".cpg"}
)

// FileSet：一次物化的结果，持有临时目录
type FileSet struct {
	Name  string
	Dir   string
	paths map[string]string
	once  sync.Once
	err   error
}

// Path：返回某扩展名对应的物化文件路径，未物化返回空
func (s *FileSet) Path(ext string) string { return s.paths[ext] }

// Materialize：把 fsys 中的 <name>.{shp,dbf,shx,prj,cpg} 复制到新的临时目录
// 返回：缺少必需文件时返回 dataset.ErrDatasetNotFound；任何失败都会先删除临时目录。
func Materialize(fsys fs.FS, name string) (*FileSet, error) {
	for _, ext := range requiredExts {
		if _, err := fs.Stat(fsys, name+ext); err != nil {
			return nil, fmt.Errorf("%w: %s%s: %v", dataset.ErrDatasetNotFound, name, ext, err)
		}
	}
	dir, err := os.MkdirTemp("", filepath.Base(name)+"-*")
	if err != nil {
		return nil, err
	}
	set := &FileSet{Name: name, Dir: dir, paths: make(map[string]string)}
	copyOne := func(ext string, required bool) error {
		src, err := fsys.Open(name + ext)
		if err != nil {
			if !required && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		defer src.Close()
		dst := filepath.Join(dir, filepath.Base(name)+ext)
		f, err := os.Create(dst)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, src); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		set.paths[ext] = dst
		return nil
	}
	for _, ext := range requiredExts {
		if err := copyOne(ext, true); err != nil {
			_ = set.Release()
			return nil, fmt.Errorf("materialize %s%s: %w", name, ext, err)
		}
	}
	for _, ext := range optionalExts {
		if err := copyOne(ext, false); err != nil {
			_ = set.Release()
			return nil, fmt.Errorf("materialize %s%s: %w", name, ext, err)
		}
	}
	logger.L().Debug("bundle_materialized", "name", name, "dir", dir, "files", len(set.paths))
	return set, nil
}

// Release：删除临时目录；重复调用返回首次结果
func (s *FileSet) Release() error {
	s.once.Do(func() {
		s.err = os.RemoveAll(s.Dir)
		logger.L().Debug("bundle_released", "name", s.Name, "dir", s.Dir, "err", s.err)
	})
	return s.err
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []error
	for _, c := range m {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open：打开物化文件作为加载流；调用方读取完毕后关闭返回的 Closer
func (s *FileSet) Open() (dataset.Sources, io.Closer, error) {
	var src dataset.Sources
	var closers multiCloser
	targets := []struct {
		ext string
		dst *io.Reader
	}{
		{".shp", &src.SHP}, {".dbf", &src.DBF}, {".shx", &src.SHX}, {".prj", &src.PRJ}, {".cpg", &src.CPG},
	}
	for _, t := range targets {
		p := s.paths[t.ext]
		if p == "" {
			continue
		}
		f, err := os.Open(p)
		if err != nil {
			_ = closers.Close()
			return dataset.Sources{}, nil, fmt.Errorf("%w: %v", dataset.ErrDatasetNotFound, err)
		}
		closers = append(closers, f)
		*t.dst = f
	}
	return src, closers, nil
}
