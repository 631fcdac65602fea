package collector

import "errors"

var (
	// ErrNoTable 页面上没有表格
	ErrNoTable = errors.New("页面上没有找到表格")
	// ErrNextControlNotFound 找不到"下一页"控件
	ErrNextControlNotFound = errors.New("没有找到\"下一页\"控件")
	// ErrStallTimeout 点击"下一页"后表格长时间没有变化
	ErrStallTimeout = errors.New("翻页超时,表格没有更新")
	// ErrControlNotNavigable 静态模式下控件不是带href的链接
	ErrControlNotNavigable = errors.New("\"下一页\"控件不是可跳转的链接")
	// ErrObserverClosed 表格变化订阅意外结束
	ErrObserverClosed = errors.New("表格变化订阅已关闭")
)
