package aggregator

import (
	"math"
	"time"

	"github.com/hewenyu/consul-monitor/internal/core/model"
)

// Bucket 表示一个固定宽度时间窗口内的状态百分比
type Bucket struct {
	Timestamp   time.Time `json:"timestamp"`
	PassingPct  float64   `json:"passing_pct"`
	WarningPct  float64   `json:"warning_pct"`
	CriticalPct float64   `json:"critical_pct"`
}

// Bucketize 把原始历史记录聚合为覆盖尾随spanHours、止于end的
// 连续定宽窗口序列，窗口数 = ceil(spanHours*60/windowMinutes)
//
// 每条记录按左闭右开区间 [窗口起点, 窗口起点+窗口宽度) 归入唯一窗口，
// 落在范围外的记录被跳过。空窗口产出0/0/0而非null——
// 有意的简化：无数据与全部健康无法区分
func Bucketize(history []model.Observation, windowMinutes int, end time.Time, spanHours int) []Bucket {
	if windowMinutes <= 0 || spanHours <= 0 {
		return []Bucket{}
	}

	window := time.Duration(windowMinutes) * time.Minute
	totalMinutes := spanHours * 60
	count := totalMinutes / windowMinutes
	if totalMinutes%windowMinutes != 0 {
		count++
	}
	start := end.Add(-time.Duration(totalMinutes) * time.Minute)

	type tally struct {
		passing, warning, critical, total int
	}
	tallies := make([]tally, count)

	for _, obs := range history {
		if obs.Timestamp.IsZero() {
			continue
		}
		offset := obs.Timestamp.Sub(start)
		if offset < 0 {
			continue
		}
		idx := int(offset / window)
		if idx >= count {
			continue
		}

		tallies[idx].total++
		switch obs.Status {
		case model.StatusPassing:
			tallies[idx].passing++
		case model.StatusWarning:
			tallies[idx].warning++
		case model.StatusCritical:
			tallies[idx].critical++
		}
		// 不可识别的状态只计入分母，百分比之和因此保持<=100
	}

	buckets := make([]Bucket, count)
	for i := range buckets {
		buckets[i].Timestamp = start.Add(time.Duration(i) * window)
		if tallies[i].total == 0 {
			continue
		}
		buckets[i].PassingPct = percentage(tallies[i].passing, tallies[i].total)
		buckets[i].WarningPct = percentage(tallies[i].warning, tallies[i].total)
		buckets[i].CriticalPct = percentage(tallies[i].critical, tallies[i].total)
	}
	return buckets
}

// percentage 计算百分比并保留一位小数
func percentage(part, total int) float64 {
	return math.Round(float64(part)/float64(total)*1000) / 10
}
