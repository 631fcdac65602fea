package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/RecoveryAshes/tablexport/internal/messaging"
	"github.com/RecoveryAshes/tablexport/internal/models"
	"github.com/RecoveryAshes/tablexport/internal/state"
	"github.com/rs/zerolog/log"
)

// ErrAnotherTabRunning 运行状态记录了其他标签页
var ErrAnotherTabRunning = errors.New("另一个标签页正在采集")

// Trigger 开始或停止某个标签页的采集
type Trigger struct {
	store  state.Store
	sender messaging.Sender
}

// NewTrigger 创建触发器
func NewTrigger(store state.Store, sender messaging.Sender) *Trigger {
	return &Trigger{store: store, sender: sender}
}

// Start 记录运行状态后向标签页发送loadData
// 单页表格可能在消息送达后立即结束,所以必须先写状态
func (t *Trigger) Start(ctx context.Context, tabID string) error {
	previous, err := t.store.Running(ctx)
	if err != nil {
		return fmt.Errorf("读取运行状态失败: %w", err)
	}
	if previous != "" && previous != tabID {
		return fmt.Errorf("%w: %s", ErrAnotherTabRunning, previous)
	}

	if err := t.store.SetRunning(ctx, tabID); err != nil {
		return fmt.Errorf("写入运行状态失败: %w", err)
	}

	if err := t.sender.Send(ctx, tabID, models.Message{Type: models.MessageLoadData}); err != nil {
		if restoreErr := t.restore(context.WithoutCancel(ctx), previous); restoreErr != nil {
			log.Error().Err(restoreErr).Msg("恢复运行状态失败")
		}
		return fmt.Errorf("发送开始命令失败: %w", err)
	}

	log.Info().Str("tab", tabID).Msg("已发送开始命令")
	return nil
}

func (t *Trigger) restore(ctx context.Context, previous string) error {
	if previous == "" {
		return t.store.Clear(ctx)
	}
	return t.store.SetRunning(ctx, previous)
}

// Stop 向标签页发送stopExport
// 标签页已不存在时清除指向它的运行状态
func (t *Trigger) Stop(ctx context.Context, tabID string) error {
	err := t.sender.Send(ctx, tabID, models.Message{Type: models.MessageStopExport})
	if errors.Is(err, messaging.ErrNoReceiver) {
		if running, readErr := t.store.Running(ctx); readErr == nil && running == tabID {
			if clearErr := t.store.Clear(ctx); clearErr != nil {
				log.Error().Err(clearErr).Msg("清除运行状态失败")
			}
		}
	}
	if err != nil {
		return fmt.Errorf("发送停止命令失败: %w", err)
	}

	log.Info().Str("tab", tabID).Msg("已发送停止命令")
	return nil
}

// Status 返回正在采集的标签页
func (t *Trigger) Status(ctx context.Context) (string, bool, error) {
	running, err := t.store.Running(ctx)
	if err != nil {
		return "", false, fmt.Errorf("读取运行状态失败: %w", err)
	}
	return running, running != "", nil
}
