package models

import (
	"encoding/json"
	"time"
)

// RunStateKey 运行状态在存储中的键名
const RunStateKey = "running"

// RunState 全局运行状态
// Running为空表示未运行,否则为正在采集的标签页ID
type RunState struct {
	Running   string    `json:"running"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsRunning 是否有标签页正在采集
func (s *RunState) IsRunning() bool {
	return s.Running != ""
}

// ToJSON 序列化为JSON
func (s *RunState) ToJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// FromJSON 从JSON反序列化
// 兼容 {"running": false} 这种写法,视为未运行
func (s *RunState) FromJSON(data []byte) error {
	var raw struct {
		Running   json.RawMessage `json:"running"`
		UpdatedAt time.Time       `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.UpdatedAt = raw.UpdatedAt
	s.Running = ""

	var tabID string
	if len(raw.Running) > 0 && json.Unmarshal(raw.Running, &tabID) == nil {
		s.Running = tabID
	}
	return nil
}
