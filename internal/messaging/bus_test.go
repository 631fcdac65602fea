package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RecoveryAshes/tablexport/internal/models"
)

func TestBus_SendReceive(t *testing.T) {
	bus := NewBus()
	ch, unregister := bus.Register("tab-1", 1)
	defer unregister()

	msg := models.Message{Type: models.MessageLoadData}
	if err := bus.Send(context.Background(), "tab-1", msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case got := <-ch:
		if got != msg {
			t.Errorf("收到 %v, want %v", got, msg)
		}
	case <-time.After(time.Second):
		t.Fatal("未收到消息")
	}
}

func TestBus_NoReceiver(t *testing.T) {
	bus := NewBus()
	err := bus.Send(context.Background(), "missing", models.Message{Type: models.MessageStopExport})
	if !errors.Is(err, ErrNoReceiver) {
		t.Errorf("Send() error = %v, want ErrNoReceiver", err)
	}
}

func TestBus_Unregister(t *testing.T) {
	bus := NewBus()
	_, unregister := bus.Register("tab-1", 0)
	if !bus.HasReceiver("tab-1") {
		t.Fatal("注册后应有接收者")
	}

	unregister()
	unregister() // 重复调用无副作用

	if bus.HasReceiver("tab-1") {
		t.Error("注销后不应有接收者")
	}
	err := bus.Send(context.Background(), "tab-1", models.Message{Type: models.MessageUpdated})
	if !errors.Is(err, ErrNoReceiver) {
		t.Errorf("Send() error = %v, want ErrNoReceiver", err)
	}
}

func TestBus_UnregisterUnblocksSender(t *testing.T) {
	bus := NewBus()
	_, unregister := bus.Register("tab-1", 0)

	errCh := make(chan error, 1)
	go func() {
		errCh <- bus.Send(context.Background(), "tab-1", models.Message{Type: models.MessageLoadData})
	}()

	time.Sleep(20 * time.Millisecond)
	unregister()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrNoReceiver) {
			t.Errorf("Send() error = %v, want ErrNoReceiver", err)
		}
	case <-time.After(time.Second):
		t.Fatal("注销后发送方仍被阻塞")
	}
}

func TestBus_ReplaceReceiver(t *testing.T) {
	bus := NewBus()
	_, unregisterOld := bus.Register("tab-1", 1)
	newCh, unregisterNew := bus.Register("tab-1", 1)
	defer unregisterNew()

	// 旧的注销函数不影响新接收者
	unregisterOld()
	if !bus.HasReceiver("tab-1") {
		t.Fatal("新接收者不应被旧的注销函数移除")
	}

	if err := bus.Send(context.Background(), "tab-1", models.Message{Type: models.MessageStopExport}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := <-newCh; got.Type != models.MessageStopExport {
		t.Errorf("新接收者收到 %v", got)
	}
}

func TestBus_ContextCancelled(t *testing.T) {
	bus := NewBus()
	_, unregister := bus.Register("tab-1", 0)
	defer unregister()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := bus.Send(ctx, "tab-1", models.Message{Type: models.MessageLoadData})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Send() error = %v, want DeadlineExceeded", err)
	}
}

func TestBus_Close(t *testing.T) {
	bus := NewBus()
	bus.Register("tab-1", 1)
	bus.Close()
	bus.Close()

	err := bus.Send(context.Background(), "tab-1", models.Message{Type: models.MessageLoadData})
	if !errors.Is(err, ErrBusClosed) {
		t.Errorf("Send() error = %v, want ErrBusClosed", err)
	}
}
