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

// Watcher 正在采集的标签页发生导航时通知它停止并导出
type Watcher struct {
	store  state.Store
	sender messaging.Sender
}

// NewWatcher 创建导航监听器
func NewWatcher(store state.Store, sender messaging.Sender) *Watcher {
	return &Watcher{store: store, sender: sender}
}

// HandleNavigation 只处理运行状态记录的标签页
func (w *Watcher) HandleNavigation(ctx context.Context, ev models.NavigationEvent) error {
	running, err := w.store.Running(ctx)
	if err != nil {
		return fmt.Errorf("读取运行状态失败: %w", err)
	}
	if running == "" || running != ev.TabID {
		return nil
	}

	log.Info().Str("tab", ev.TabID).Str("url", ev.URL).Msg("采集中的标签页发生导航,导出已采集数据")
	if err := w.sender.Send(ctx, ev.TabID, models.Message{Type: models.MessageUpdated}); err != nil {
		return fmt.Errorf("发送updated失败: %w", err)
	}
	return nil
}

// Run 处理导航事件直到ctx结束或channel关闭
func (w *Watcher) Run(ctx context.Context, events <-chan models.NavigationEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := w.HandleNavigation(ctx, ev); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				log.Warn().Err(err).Str("tab", ev.TabID).Msg("处理导航事件失败")
			}
		}
	}
}
