// Package collector 翻页采集表格数据并导出为CSV
//
// Collector 只依赖本文件中的接口,浏览器(go-rod)和静态抓取(Colly)的实现位于 crawlers 包
package collector

import (
	"context"

	"github.com/RecoveryAshes/tablexport/internal/models"
)

// Document 页面上的第一个表格及其"下一页"控件
type Document interface {
	// Path 当前页面URL的路径部分
	Path(ctx context.Context) (string, error)
	// Rows 按行返回第一个表格中指定类型单元格的文本,每个tr对应一行(可能为空行)
	Rows(ctx context.Context, cellType models.CellType) (models.Table, error)
	// NextControl 查找文本或aria-label包含label(小写)的控件,找不到时返回ErrNextControlNotFound
	NextControl(ctx context.Context, label string) (Control, error)
	// Observe 开始监听第一个表格的子树变化,页面没有表格时返回ErrNoTable
	Observe(ctx context.Context) (Subscription, error)
}

// Control "下一页"控件
type Control interface {
	State(ctx context.Context) (models.ControlState, error)
	Click(ctx context.Context) error
}

// Subscription 表格变化订阅,同一变化可能被投递多次
type Subscription interface {
	Events() <-chan models.MutationEvent
	Close() error
}

// Exporter 保存导出内容,返回保存位置
type Exporter interface {
	Export(ctx context.Context, name string, content string) (string, error)
}
