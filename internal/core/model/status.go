package model

// Status 健康状态枚举，与Consul检查状态保持一致
type Status string

const (
	// StatusPassing 表示检查通过
	StatusPassing Status = "passing"
	// StatusWarning 表示检查告警
	StatusWarning Status = "warning"
	// StatusCritical 表示检查失败
	StatusCritical Status = "critical"
	// StatusUnknown 表示状态未知（无历史数据或状态不可识别）
	StatusUnknown Status = "unknown"
)

// 状态严重程度排序: critical > warning > passing > unknown
var statusSeverity = map[Status]int{
	StatusCritical: 3,
	StatusWarning:  2,
	StatusPassing:  1,
	StatusUnknown:  0,
}

// Severity 返回状态的严重程度，不可识别的状态视为unknown
func Severity(s Status) int {
	return statusSeverity[s]
}

// Recognized 判断状态是否为可识别的Consul检查状态
func Recognized(s Status) bool {
	switch s {
	case StatusPassing, StatusWarning, StatusCritical:
		return true
	}
	return false
}

// WorstOf 返回两个状态中严重程度更高的一个
func WorstOf(a, b Status) Status {
	if Severity(b) > Severity(a) {
		return b
	}
	return a
}

// Composite 计算一组检查的综合健康状态
// 规则: 取所有检查中最严重的状态；无检查时默认passing；
// 有检查但全部状态不可识别时返回unknown
func Composite(checks []CheckObservation) Status {
	if len(checks) == 0 {
		return StatusPassing
	}

	worst := StatusUnknown
	for _, check := range checks {
		if !Recognized(check.Status) {
			continue
		}
		worst = WorstOf(worst, check.Status)
	}
	return worst
}
