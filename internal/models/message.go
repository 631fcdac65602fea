package models

// MessageType 发送给采集器的命令类型
type MessageType string

const (
	MessageLoadData   MessageType = "loadData"   // 开始采集
	MessageStopExport MessageType = "stopExport" // 用户停止并导出
	MessageUpdated    MessageType = "updated"    // 页面导航触发的停止
)

// Message 标签页消息
type Message struct {
	Type MessageType `json:"type"`
}

// IsStop 是否为停止类命令
func (m Message) IsStop() bool {
	return m.Type == MessageStopExport || m.Type == MessageUpdated
}

// NavigationEvent 标签页导航事件(导航开始前触发)
type NavigationEvent struct {
	TabID   string // 标签页ID
	FrameID string // 发生导航的frame
	URL     string // 导航目标
}
