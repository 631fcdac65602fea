package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/RecoveryAshes/tablexport/internal/messaging"
	"github.com/RecoveryAshes/tablexport/internal/models"
	"github.com/RecoveryAshes/tablexport/internal/state"
)

// recordingSender 记录发送的消息
type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

type sentMessage struct {
	tabID string
	msg   models.Message
}

func (s *recordingSender) Send(ctx context.Context, tabID string, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMessage{tabID: tabID, msg: msg})
	return nil
}

func (s *recordingSender) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

// runningOnSend 发送时检查运行状态是否已写入
type runningOnSend struct {
	store   state.Store
	running string
}

func (s *runningOnSend) Send(ctx context.Context, tabID string, msg models.Message) error {
	s.running, _ = s.store.Running(ctx)
	return nil
}

func TestTrigger_Start(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		previous    string
		sendErr     error
		wantErr     error
		wantRunning string
		wantSent    int
	}{
		{"空闲时开始", "", nil, nil, "tab-1", 1},
		{"同一标签页重复开始", "tab-1", nil, nil, "tab-1", 1},
		{"其他标签页正在采集", "tab-2", nil, ErrAnotherTabRunning, "tab-2", 0},
		{"发送失败恢复空闲", "", messaging.ErrNoReceiver, messaging.ErrNoReceiver, "", 0},
		{"发送失败恢复原状态", "tab-1", messaging.ErrNoReceiver, messaging.ErrNoReceiver, "tab-1", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := state.NewMemoryStore()
			if tt.previous != "" {
				_ = store.SetRunning(ctx, tt.previous)
			}
			sender := &recordingSender{err: tt.sendErr}
			trigger := NewTrigger(store, sender)

			err := trigger.Start(ctx, "tab-1")
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Start() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Start() error = %v, want %v", err, tt.wantErr)
			}

			running, _ := store.Running(ctx)
			if running != tt.wantRunning {
				t.Errorf("运行状态 = %q, want %q", running, tt.wantRunning)
			}

			sent := sender.messages()
			if len(sent) != tt.wantSent {
				t.Fatalf("发送了 %d 条消息, want %d", len(sent), tt.wantSent)
			}
			if tt.wantSent == 1 && (sent[0].tabID != "tab-1" || sent[0].msg.Type != models.MessageLoadData) {
				t.Errorf("发送了 %+v, want loadData -> tab-1", sent[0])
			}
		})
	}
}

func TestTrigger_StartWritesStateBeforeSending(t *testing.T) {
	store := state.NewMemoryStore()
	sender := &runningOnSend{store: store}

	if err := NewTrigger(store, sender).Start(context.Background(), "tab-9"); err != nil {
		t.Fatal(err)
	}
	if sender.running != "tab-9" {
		t.Errorf("发送loadData时运行状态 = %q, want tab-9", sender.running)
	}
}

func TestTrigger_Stop(t *testing.T) {
	ctx := context.Background()

	t.Run("发送stopExport", func(t *testing.T) {
		store := state.NewMemoryStore()
		sender := &recordingSender{}
		if err := NewTrigger(store, sender).Stop(ctx, "tab-1"); err != nil {
			t.Fatal(err)
		}
		sent := sender.messages()
		if len(sent) != 1 || sent[0].msg.Type != models.MessageStopExport {
			t.Errorf("发送了 %+v, want stopExport", sent)
		}
	})

	t.Run("标签页已关闭时清除残留状态", func(t *testing.T) {
		store := state.NewMemoryStore()
		_ = store.SetRunning(ctx, "tab-1")
		err := NewTrigger(store, messaging.NewBus()).Stop(ctx, "tab-1")
		if !errors.Is(err, messaging.ErrNoReceiver) {
			t.Fatalf("Stop() error = %v, want ErrNoReceiver", err)
		}
		if running, _ := store.Running(ctx); running != "" {
			t.Errorf("运行状态 = %q, want 空", running)
		}
	})

	t.Run("不清除其他标签页的状态", func(t *testing.T) {
		store := state.NewMemoryStore()
		_ = store.SetRunning(ctx, "tab-2")
		_ = NewTrigger(store, messaging.NewBus()).Stop(ctx, "tab-1")
		if running, _ := store.Running(ctx); running != "tab-2" {
			t.Errorf("运行状态 = %q, want tab-2", running)
		}
	})
}

func TestTrigger_Status(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	trigger := NewTrigger(store, &recordingSender{})

	if tabID, running, err := trigger.Status(ctx); err != nil || running || tabID != "" {
		t.Errorf("Status() = %q, %v, %v; want 空闲", tabID, running, err)
	}

	_ = store.SetRunning(ctx, "tab-3")
	if tabID, running, err := trigger.Status(ctx); err != nil || !running || tabID != "tab-3" {
		t.Errorf("Status() = %q, %v, %v; want tab-3 运行中", tabID, running, err)
	}
}
