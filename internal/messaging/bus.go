// Package messaging 在触发器、页面监听器和采集器之间按标签页投递消息
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/RecoveryAshes/tablexport/internal/models"
	"github.com/rs/zerolog/log"
)

// ErrNoReceiver 目标标签页没有注册接收者
var ErrNoReceiver = errors.New("标签页没有消息接收者")

// ErrBusClosed 消息总线已关闭
var ErrBusClosed = errors.New("消息总线已关闭")

// Sender 向标签页发送消息
type Sender interface {
	Send(ctx context.Context, tabID string, msg models.Message) error
}

// Bus 按标签页ID路由消息的进程内总线
// 每个标签页最多一个接收者,重复注册会替换旧的接收者
type Bus struct {
	mu        sync.Mutex
	receivers map[string]*receiver
	closed    bool
}

type receiver struct {
	ch   chan models.Message
	done chan struct{}
}

// NewBus 创建消息总线
func NewBus() *Bus {
	return &Bus{receivers: make(map[string]*receiver)}
}

// Register 为标签页注册接收者,返回接收channel和注销函数
// 注销后channel不会被关闭,接收方应通过自己的context退出
func (b *Bus) Register(tabID string, buffer int) (<-chan models.Message, func()) {
	if buffer < 0 {
		buffer = 0
	}
	r := &receiver{
		ch:   make(chan models.Message, buffer),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if old, ok := b.receivers[tabID]; ok {
		close(old.done)
		log.Debug().Str("tab", tabID).Msg("替换已有的消息接收者")
	}
	b.receivers[tabID] = r
	b.mu.Unlock()

	var once sync.Once
	unregister := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if current, ok := b.receivers[tabID]; ok && current == r {
				delete(b.receivers, tabID)
				close(r.done)
			}
		})
	}
	return r.ch, unregister
}

// Send 投递消息,阻塞到接收方取走(或进入缓冲)或ctx结束
func (b *Bus) Send(ctx context.Context, tabID string, msg models.Message) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	r, ok := b.receivers[tabID]
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("发送 %s 到标签页 %s 失败: %w", msg.Type, tabID, ErrNoReceiver)
	}

	select {
	case r.ch <- msg:
		log.Debug().Str("tab", tabID).Str("type", string(msg.Type)).Msg("消息已投递")
		return nil
	case <-r.done:
		return fmt.Errorf("发送 %s 到标签页 %s 失败: %w", msg.Type, tabID, ErrNoReceiver)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HasReceiver 标签页是否有接收者
func (b *Bus) HasReceiver(tabID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.receivers[tabID]
	return ok
}

// Close 关闭总线,之后的Send都返回ErrBusClosed
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for tabID, r := range b.receivers {
		close(r.done)
		delete(b.receivers, tabID)
	}
}
