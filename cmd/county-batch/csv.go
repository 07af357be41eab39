package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"county-api/internal/geo"
	"county-api/internal/logger"
	"county-api/internal/resolver"
)

// row：一行输入；保留原始文本以便原样回写
type row struct {
	lat, lon string
	coord    geo.Coordinate
}

// 文档注释：读取 lat,lon CSV
// 约束：首行无法解析为数字时视为表头跳过；其余行任一坐标非法即整体失败并报告行号；多余列忽略。
func readRows(r io.Reader, coordSys string) ([]row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	var rows []row
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("line %d: want lat,lon, got %d fields", line, len(rec))
		}
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if errLat != nil || errLon != nil {
			if line == 1 {
				logger.L().Debug("batch_header_skipped", "fields", strings.Join(rec, ","))
				continue
			}
			return nil, fmt.Errorf("line %d: bad coordinate %q,%q", line, rec[0], rec[1])
		}
		c := geo.Coordinate{Latitude: lat, Longitude: lon}
		if !c.Valid() {
			return nil, fmt.Errorf("line %d: coordinate %v out of range", line, c)
		}
		w, ok := geo.ToWGS84(c, coordSys)
		if !ok {
			return nil, fmt.Errorf("unknown coordinate system %q", coordSys)
		}
		rows = append(rows, row{lat: strings.TrimSpace(rec[0]), lon: strings.TrimSpace(rec[1]), coord: w})
	}
}

func coordinates(rows []row) []geo.Coordinate {
	out := make([]geo.Coordinate, len(rows))
	for i, r := range rows {
		out[i] = r.coord
	}
	return out
}

// writeRows：输出表头与逐行结果，行序与输入一致
func writeRows(w io.Writer, rows []row, results []resolver.Result) error {
	if len(rows) != len(results) {
		return fmt.Errorf("have %d rows but %d results", len(rows), len(results))
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"lat", "lon", "region_id", "status"}); err != nil {
		return err
	}
	for i, r := range rows {
		if err := cw.Write([]string{r.lat, r.lon, results[i].RegionID, results[i].Status.String()}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
