package models

import (
	"fmt"
	"time"
)

// ExportMode 采集模式
type ExportMode string

const (
	ModeDynamic ExportMode = "dynamic" // 浏览器渲染(go-rod)
	ModeStatic  ExportMode = "static"  // 静态抓取(Colly),翻页控件须为链接
)

// FinishReason 采集结束原因
type FinishReason string

const (
	ReasonCompleted   FinishReason = "completed"    // "下一页"控件已禁用
	ReasonStopped     FinishReason = "stopped"      // 用户停止
	ReasonNavigated   FinishReason = "navigated"    // 标签页发生导航
	ReasonStalled     FinishReason = "stalled"      // 翻页超时
	ReasonControlLost FinishReason = "control_lost" // 翻页后找不到"下一页"控件
	ReasonCancelled   FinishReason = "cancelled"    // context取消
	ReasonFailed      FinishReason = "failed"       // 启动失败
)

// ExportConfig 采集配置
type ExportConfig struct {
	Mode                     ExportMode    `json:"mode" mapstructure:"mode"`                                                 // 采集模式 (默认:dynamic)
	Locale                   string        `json:"locale" mapstructure:"locale"`                                             // "下一页"文案语言 (默认:en)
	NextLabel                string        `json:"next_label,omitempty" mapstructure:"next_label"`                           // 覆盖本地化文案
	NextSelector             string        `json:"next_selector" mapstructure:"next_selector"`                               // 候选控件选择器
	SettleDelay              time.Duration `json:"settle_delay" mapstructure:"settle_delay"`                                 // 表格变化合并等待时间
	StallTimeout             time.Duration `json:"stall_timeout" mapstructure:"stall_timeout"`                               // 翻页超时,0表示不限
	MissingControlIsLastPage bool          `json:"missing_control_is_last_page" mapstructure:"missing_control_is_last_page"` // 启动时找不到控件视为单页
	Headless                 bool          `json:"headless" mapstructure:"headless"`                                         // 无头模式 (默认:true)
	Stealth                  bool          `json:"stealth" mapstructure:"stealth"`                                           // 注入stealth脚本
	NoSandbox                bool          `json:"no_sandbox" mapstructure:"no_sandbox"`                                     // 关闭Chrome沙箱(容器内需要)
	BrowserBin               string        `json:"browser_bin,omitempty" mapstructure:"browser_bin"`                         // Chromium路径
	WaitLogin                bool          `json:"wait_login" mapstructure:"wait_login"`                                     // 开始前等待用户回车
	LoadTimeout              time.Duration `json:"load_timeout" mapstructure:"load_timeout"`                                 // 首次加载超时
}

// Validate 验证配置
func (c *ExportConfig) Validate() error {
	if c.Mode != ModeDynamic && c.Mode != ModeStatic {
		return fmt.Errorf("无效的采集模式: %s (有效值: dynamic, static)", c.Mode)
	}
	if c.SettleDelay < 0 || c.SettleDelay > 10*time.Second {
		return fmt.Errorf("合并等待时间必须在0-10秒之间,当前值: %s", c.SettleDelay)
	}
	if c.StallTimeout < 0 {
		return fmt.Errorf("翻页超时不能为负数,当前值: %s", c.StallTimeout)
	}
	if c.StallTimeout > 0 && c.StallTimeout <= c.SettleDelay {
		return fmt.Errorf("翻页超时(%s)必须大于合并等待时间(%s)", c.StallTimeout, c.SettleDelay)
	}
	if c.NextSelector == "" {
		return fmt.Errorf("候选控件选择器不能为空")
	}
	if c.LoadTimeout < 0 {
		return fmt.Errorf("加载超时不能为负数,当前值: %s", c.LoadTimeout)
	}
	return nil
}

// RunResult 一次采集的结果
type RunResult struct {
	SessionID  string       `json:"session_id"`
	TabID      string       `json:"tab_id"`
	Reason     FinishReason `json:"reason"`
	Pages      int          `json:"pages"`          // 已采集页数
	Rows       int          `json:"rows"`           // 导出的非空行数(含表头)
	File       string       `json:"file,omitempty"` // 导出文件路径,未导出时为空
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Err        error        `json:"-"`
}

// Duration 采集耗时
func (r RunResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Exported 是否生成了文件
func (r RunResult) Exported() bool {
	return r.File != ""
}
