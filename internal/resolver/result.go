package resolver

import "fmt"

// Status：批量结果槽位状态；零值为 StatusCancelled，未被处理的槽位天然保持该值
type Status int

const (
	StatusCancelled Status = iota
	StatusNoMatch
	StatusMatched
)

func (s Status) String() string {
	switch s {
	case StatusNoMatch:
		return "no_match"
	case StatusMatched:
		return "matched"
	}
	return "cancelled"
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "cancelled":
		*s = StatusCancelled
	case "no_match":
		*s = StatusNoMatch
	case "matched":
		*s = StatusMatched
	default:
		return fmt.Errorf("resolver: unknown status %q", b)
	}
	return nil
}

// Result：单个坐标的批量解析结果
type Result struct {
	RegionID string `json:"region_id,omitempty"`
	Status   Status `json:"status"`
}

func (r Result) Found() bool { return r.Status == StatusMatched }
