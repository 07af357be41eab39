// 包 ipgeo：IP → 坐标（MaxMind GeoIP2/GeoLite2 City 数据库）
// 背景：为 /resolve/ip 提供访问者位置估计，再交给区域解析；精度受库本身限制，城市级以上。
package ipgeo

import (
	"errors"
	"net"

	"github.com/oschwald/geoip2-golang"

	"county-api/internal/geo"
	"county-api/internal/logger"
)

// ErrInvalidIP：无法解析的 IP 文本
var ErrInvalidIP = errors.New("invalid ip")

// Location：一次查询得到的坐标与精度半径（公里）
type Location struct {
	Coordinate     geo.Coordinate
	AccuracyRadius uint16
	CountryISO     string
}

// Locator：只读数据库句柄，可并发使用
type Locator struct {
	db *geoip2.Reader
}

// Open：打开 mmdb 文件
func Open(path string) (*Locator, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	md := db.Metadata()
	logger.L().Info("geoip_open_ok", "path", path, "type", md.DatabaseType, "build_epoch", md.BuildEpoch)
	return &Locator{db: db}, nil
}

// FromBytes：从内存中的 mmdb 构建
func FromBytes(b []byte) (*Locator, error) {
	db, err := geoip2.FromBytes(b)
	if err != nil {
		return nil, err
	}
	return &Locator{db: db}, nil
}

// 文档注释：查询 IP 对应坐标
// 返回：命中 (loc, true, nil)；库中无该 IP 或无坐标 (零值, false, nil)；IP 非法返回 ErrInvalidIP。
// 约束：库中缺失坐标时经纬度均为 0，与真实的 (0,0) 无法区分，按未命中处理。
func (l *Locator) Lookup(ip string) (Location, bool, error) {
	addr := net.ParseIP(ip)
	if addr == nil {
		return Location{}, false, ErrInvalidIP
	}
	rec, err := l.db.City(addr)
	if err != nil {
		return Location{}, false, err
	}
	if rec.Location.Latitude == 0 && rec.Location.Longitude == 0 {
		logger.L().Debug("geoip_no_location", "ip", ip)
		return Location{}, false, nil
	}
	return Location{
		Coordinate:     geo.Coordinate{Latitude: rec.Location.Latitude, Longitude: rec.Location.Longitude},
		AccuracyRadius: rec.Location.AccuracyRadius,
		CountryISO:     rec.Country.IsoCode,
	}, true, nil
}

func (l *Locator) Close() error { return l.db.Close() }
