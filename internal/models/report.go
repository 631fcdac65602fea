package models

import (
	"encoding/json"
	"time"
)

// RunReport 采集报告
type RunReport struct {
	// 任务信息
	SessionID string     `json:"session_id"`
	TargetURL string     `json:"target_url"`
	TabID     string     `json:"tab_id"`
	Mode      ExportMode `json:"mode"`

	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	// 结果
	Reason FinishReason `json:"reason"`
	Pages  int          `json:"pages"`
	Rows   int          `json:"rows"`
	File   string       `json:"file,omitempty"`
	Error  string       `json:"error,omitempty"`

	// 配置快照
	Config ExportConfig `json:"config"`
}

// NewRunReport 由采集结果生成报告
func NewRunReport(targetURL string, result RunResult, config ExportConfig) RunReport {
	report := RunReport{
		SessionID: result.SessionID,
		TargetURL: targetURL,
		TabID:     result.TabID,
		Mode:      config.Mode,
		StartTime: result.StartedAt,
		EndTime:   result.FinishedAt,
		Duration:  result.Duration().Seconds(),
		Reason:    result.Reason,
		Pages:     result.Pages,
		Rows:      result.Rows,
		File:      result.File,
		Config:    config,
	}
	if result.Err != nil {
		report.Error = result.Err.Error()
	}
	return report
}

// ToJSON 序列化为JSON
func (r *RunReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *RunReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
