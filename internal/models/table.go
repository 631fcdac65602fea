package models

import (
	"fmt"
	"strings"
	"time"
)

// CellType 单元格类型
type CellType string

const (
	CellHeader CellType = "th" // 表头单元格
	CellData   CellType = "td" // 数据单元格
)

// ExportTimeLayout 导出文件名中的UTC时间戳格式
const ExportTimeLayout = "20060102T150405Z"

// Row 一行单元格文本(按列顺序,未加引号)
type Row []string

// IsEmpty 判断是否为零列行
func (r Row) IsEmpty() bool {
	return len(r) == 0
}

// Quoted 返回逐个加双引号的字段,字段内的双引号按CSV规则转义为两个
func (r Row) Quoted() []string {
	quoted := make([]string, len(r))
	for i, cell := range r {
		quoted[i] = `"` + strings.ReplaceAll(cell, `"`, `""`) + `"`
	}
	return quoted
}

// Table 表格快照: 第一行为表头,其后按页顺序追加数据行
type Table []Row

// DataRows 返回非空行数
func (t Table) DataRows() int {
	count := 0
	for _, row := range t {
		if !row.IsEmpty() {
			count++
		}
	}
	return count
}

// CSV 序列化为CSV文本
// 零列行被丢弃(不输出空行),字段以逗号连接,行以换行符连接,末尾无换行
func (t Table) CSV() string {
	lines := make([]string, 0, len(t))
	for _, row := range t {
		if row.IsEmpty() {
			continue
		}
		lines = append(lines, strings.Join(row.Quoted(), ","))
	}
	return strings.Join(lines, "\n")
}

// ExportFilename 根据页面路径和时间生成导出文件名
// 例如: /reports/list + 2026-10-19 12:00:00 UTC -> _reports_list_20261019T120000Z.csv
func ExportFilename(pagePath string, t time.Time) string {
	base := strings.ReplaceAll(pagePath, "/", "_")
	return fmt.Sprintf("%s_%s.csv", base, t.UTC().Format(ExportTimeLayout))
}

// ControlState "下一页"控件状态
type ControlState struct {
	Found          bool   // 是否找到控件
	NativeDisabled bool   // 原生disabled属性
	AriaDisabled   string // aria-disabled属性值(不存在时为空)
}

// Disabled 原生disabled为true,或aria-disabled为"true",任一成立即视为禁用
func (s ControlState) Disabled() bool {
	if s.NativeDisabled {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(s.AriaDisabled), "true")
}

// MutationEvent 表格结构变化事件
type MutationEvent struct {
	TargetTag string `json:"tag"`     // 发生变化的节点标签名
	Added     int    `json:"added"`   // 新增子节点数
	Removed   int    `json:"removed"` // 移除子节点数
}

// IsTableBody 变化目标是否为tbody
func (e MutationEvent) IsTableBody() bool {
	return strings.EqualFold(e.TargetTag, "TBODY")
}
