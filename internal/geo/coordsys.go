package geo

import (
	"math"
	"strings"
)

// 坐标系名称（大小写不敏感）
const (
	CoordSysWGS84 = "WGS84"
	CoordSysGCJ02 = "GCJ-02"
	CoordSysBD09  = "BD-09"
)

// 文档注释：坐标系转换（GCJ-02/BD-09 → WGS84）
// 背景：上游采集端可能提交国内互联网地图坐标，而边界数据为 WGS84 经纬度；在进入判定前统一转换。
// 约束：简化实现，误差在数十米级；空值或 WGS84 原样返回；未知坐标系返回 false 由调用方拒绝。
func ToWGS84(c Coordinate, coordSys string) (Coordinate, bool) {
	switch {
	case coordSys == "" || strings.EqualFold(coordSys, CoordSysWGS84):
		return c, true
	case strings.EqualFold(coordSys, CoordSysGCJ02):
		lat, lon := gcj02ToWGS84(c.Latitude, c.Longitude)
		return Coordinate{Latitude: lat, Longitude: lon}, true
	case strings.EqualFold(coordSys, CoordSysBD09):
		lat, lon := bd09ToWGS84(c.Latitude, c.Longitude)
		return Coordinate{Latitude: lat, Longitude: lon}, true
	}
	return c, false
}

func gcj02ToWGS84(lat, lon float64) (float64, float64) {
	glat, glon := offsetGCJ(lat, lon)
	return lat*2 - glat, lon*2 - glon
}

func bd09ToWGS84(lat, lon float64) (float64, float64) {
	x := lon - 0.0065
	y := lat - 0.006
	z := math.Sqrt(x*x+y*y) - 0.00002*math.Sin(y*math.Pi)
	theta := math.Atan2(y, x) - 0.000003*math.Cos(x*math.Pi)
	return gcj02ToWGS84(z*math.Sin(theta), z*math.Cos(theta))
}

const (
	krasovskyA  = 6378245.0
	krasovskyEE = 0.00669342162296594323
)

// 境外坐标不做偏移
func offsetGCJ(lat, lon float64) (float64, float64) {
	if outOfChina(lat, lon) {
		return lat, lon
	}
	dLat := deltaLat(lon-105.0, lat-35.0)
	dLon := deltaLon(lon-105.0, lat-35.0)
	radLat := lat / 180.0 * math.Pi
	magic := math.Sin(radLat)
	magic = 1 - krasovskyEE*magic*magic
	sqrtMagic := math.Sqrt(magic)
	dLat = (dLat * 180.0) / ((krasovskyA * (1 - krasovskyEE)) / (magic * sqrtMagic) * math.Pi)
	dLon = (dLon * 180.0) / (krasovskyA / sqrtMagic * math.Cos(radLat) * math.Pi)
	return lat + dLat, lon + dLon
}

func outOfChina(lat, lon float64) bool {
	return lon < 72.004 || lon > 137.8347 || lat < 0.8293 || lat > 55.8271
}

func deltaLat(x, y float64) float64 {
	ret := -100.0 + 2.0*x + 3.0*y + 0.2*y*y + 0.1*x*y + 0.2*math.Sqrt(math.Abs(x))
	ret += (20.0*math.Sin(6.0*x*math.Pi) + 20.0*math.Sin(2.0*x*math.Pi)) * 2.0 / 3.0
	ret += (20.0*math.Sin(y*math.Pi) + 40.0*math.Sin(y/3.0*math.Pi)) * 2.0 / 3.0
	ret += (160.0*math.Sin(y/12.0*math.Pi) + 320*math.Sin(y*math.Pi/30.0)) * 2.0 / 3.0
	return ret
}

func deltaLon(x, y float64) float64 {
	ret := 300.0 + x + 2.0*y + 0.1*x*x + 0.1*x*y + 0.1*math.Sqrt(math.Abs(x))
	ret += (20.0*math.Sin(6.0*x*math.Pi) + 20.0*math.Sin(2.0*x*math.Pi)) * 2.0 / 3.0
	ret += (20.0*math.Sin(x*math.Pi) + 40.0*math.Sin(x/3.0*math.Pi)) * 2.0 / 3.0
	ret += (150.0*math.Sin(x/12.0*math.Pi) + 300.0*math.Sin(x/30.0*math.Pi)) * 2.0 / 3.0
	return ret
}
